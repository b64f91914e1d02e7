package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/worklogs/worklogs/internal/server"
	"github.com/worklogs/worklogs/internal/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored runs over HTTP (JSON API and HTML reports)",
	RunE: func(cmd *cobra.Command, args []string) error {
		listenAddr, _ := cmd.Flags().GetString("listen")
		user, _ := cmd.Flags().GetString("user")
		pass, _ := cmd.Flags().GetString("pass")

		db, absPath, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		utils.Log.Infof("Serving runs from %s", absPath)

		s := server.New(db, user, pass)
		s.BaseURL = viper.GetString("jira.url")
		s.Log = utils.Log
		return s.Start(listenAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&dbPath, "dbpath", "", "Path to SQLite DB file (default: ~/.config/worklogs/worklogs.sqlite)")
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().String("user", "", "Basic auth username (empty = no auth)")
	serveCmd.Flags().String("pass", "", "Basic auth password")
}
