package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the on-disk response cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired cache entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := loadRunConfig(cmd)
		cfg.CacheEnabled = true
		c, err := cfg.newCache()
		if err != nil {
			return err
		}
		n, err := c.Prune()
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d expired entries from %s\n", n, c.Dir())
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cache entry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := loadRunConfig(cmd)
		cfg.CacheEnabled = true
		c, err := cfg.newCache()
		if err != nil {
			return err
		}
		n, err := c.Clear()
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d entries from %s\n", n, c.Dir())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
