package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/worklogs/worklogs/internal/utils"
	"github.com/worklogs/worklogs/pkg/collector"
)

// collectCmd prints the related issue set without extracting worklogs.
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Print every issue related to the project filter",
	RunE: func(cmd *cobra.Command, _ []string) error {
		devMode, _ := cmd.Flags().GetBool("dev")
		showPhases, _ := cmd.Flags().GetBool("phases")

		cfg := loadRunConfig(cmd)
		if err := cfg.validate(devMode); err != nil {
			return err
		}
		client, _, err := cfg.newTracker(devMode)
		if err != nil {
			return err
		}

		res, err := collector.New(client, collector.Config{Project: cfg.Project, JQL: cfg.Query(), Log: utils.Log}).Collect(cmd.Context())
		if err != nil {
			return err
		}

		for _, k := range res.Keys {
			fmt.Println(k)
		}

		if showPhases {
			w := tabwriter.NewWriter(os.Stderr, 0, 0, 3, ' ', tabwriter.AlignRight)
			fmt.Fprintln(w, "PHASE\tVISITED\tADDED\t")
			for _, p := range res.Phases {
				fmt.Fprintf(w, "%s\t%d\t%d\t\n", p.Phase, p.Visited, p.Added)
			}
			fmt.Fprintln(w, " \t \t \t")
			fmt.Fprintf(w, "TOTAL\t \t%d\t\n", len(res.Keys))
			w.Flush()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(collectCmd)
	collectCmd.Flags().Bool("dev", false, "Use the built-in sample dataset instead of Jira")
	collectCmd.Flags().Bool("phases", false, "Print per-phase counts to stderr")
}
