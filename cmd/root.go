package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/worklogs/worklogs/internal/utils"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

// Version is set at build time with -ldflags.
var Version = "dev"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "worklogs",
	Short: "Collect Jira issues and export their worklogs.",
	Long: `worklogs finds every issue related to a Jira project filter (epic children,
same-project links and subtasks) and exports their worklogs to CSV and HTML reports.

Configuration is read from $HOME/.worklogs.yaml and from environment variables
(JIRA_URL, JIRA_TOKEN, PROJECT, ...).`,
	Version: Version,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.worklogs.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy (Useful for debugging. Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().StringP("project", "p", "", "Jira project key (default from config: ZYN)")
	rootCmd.PersistentFlags().String("jql", "", "Custom JQL for the initial search (overrides the ERP activity filter)")

	viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
	viper.BindPFlag("jql", rootCmd.PersistentFlags().Lookup("jql"))
}

func setDefaults() {
	viper.SetDefault("jira.url", "")
	viper.SetDefault("jira.token", "")
	viper.SetDefault("jira.email", "")
	viper.SetDefault("project", "ZYN")
	viper.SetDefault("erp_activity", "")
	viper.SetDefault("jql", "")
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.dir", ".cache")
	viper.SetDefault("cache.ttl", 3600)
	viper.SetDefault("workers", 10)
	viper.SetDefault("fields.epic_link", "customfield_10014")
	viper.SetDefault("fields.product_item", "customfield_11440")
	viper.SetDefault("fields.team", "customfield_10076")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".worklogs")
		viper.SetConfigType("yaml")
	}

	// jira.url <-> JIRA_URL
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := filepath.Join(home, ".worklogs.yaml")
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s\n", err)
			}
		} else {
			fmt.Printf("Error reading config file: %s\n", err)
		}
	}

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}
