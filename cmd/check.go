package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that Jira is reachable and the credentials are valid",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := loadRunConfig(cmd)
		if cfg.JiraURL == "" || cfg.Token == "" {
			return fmt.Errorf("jira.url and jira.token must be configured")
		}
		jc, err := cfg.newJiraClient()
		if err != nil {
			return err
		}
		name, err := jc.Check(cmd.Context())
		if err != nil {
			return fmt.Errorf("connection check failed: %w", err)
		}
		fmt.Printf("Connected to %s as %s\n", cfg.JiraURL, name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
