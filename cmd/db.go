package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/worklogs/worklogs/internal/utils"
	"github.com/worklogs/worklogs/pkg/report"
	"github.com/worklogs/worklogs/pkg/storage"
)

var dbPath string

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Inspect the run history database",
}

func openDB() (*storage.DB, string, error) {
	absPath, err := utils.GetAbsDBPath(dbPath)
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return nil, absPath, fmt.Errorf("database file not found: %s (run 'worklogs extract --db' first)", absPath)
	}
	db, err := storage.Open(absPath)
	return db, absPath, err
}

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell to the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		absPath, err := utils.GetAbsDBPath(dbPath)
		if err != nil {
			return err
		}
		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			return fmt.Errorf("database file not found: %s", absPath)
		}

		// Check if sqlite3 is in PATH
		sqlitePath, err := exec.LookPath("sqlite3")
		if err != nil {
			return fmt.Errorf("sqlite3 command not found in your PATH. Please install it to use the db shell")
		}

		c := exec.Command(sqlitePath, absPath)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr

		return c.Run()
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, _ := cmd.Flags().GetString("project")
		limit, _ := cmd.Flags().GetInt("limit")

		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(context.Background(), project, limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs stored.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tPROJECT\tISSUES\tENTRIES\tHOURS\tFAILURES\t")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.2f\t%d\t\n", r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Project, r.Issues, r.Entries, r.TotalHours(), r.Failures)
		}
		return w.Flush()
	},
}

var entriesCmd = &cobra.Command{
	Use:   "entries <run-id|latest>",
	Short: "Print the entries of a stored run as CSV, or its summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, _ := cmd.Flags().GetString("project")
		summary, _ := cmd.Flags().GetBool("summary")

		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		id := args[0]
		if id == "latest" {
			run, err := db.LatestRun(ctx, project)
			if errors.Is(err, storage.ErrRunNotFound) {
				return fmt.Errorf("no runs stored")
			}
			if err != nil {
				return err
			}
			id = run.ID
		}

		entries, err := db.RunEntries(ctx, id)
		if err != nil {
			return err
		}
		if summary {
			return report.WriteSummary(os.Stdout, report.Summarize(entries))
		}
		return report.WriteCSV(os.Stdout, entries)
	},
}

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints statistics about the stored runs.",
	Long:  "Prints statistics about the stored runs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(context.Background())
		if err != nil {
			return err
		}

		if len(stats) == 0 {
			fmt.Println("No data in the database to generate stats.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "PROJECT\tRUNS\tENTRIES\tHOURS\t")

		var totalRuns, totalEntries int
		var totalSeconds int64
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%d\t%d\t%.2f\t\n", s.Project, s.Runs, s.Entries, float64(s.TotalSeconds)/3600)
			totalRuns += s.Runs
			totalEntries += s.Entries
			totalSeconds += s.TotalSeconds
		}

		fmt.Fprintln(w, " \t \t \t \t")
		fmt.Fprintf(w, "TOTAL\t%d\t%d\t%.2f\t\n", totalRuns, totalEntries, float64(totalSeconds)/3600)

		w.Flush()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(shellCmd)
	dbCmd.AddCommand(runsCmd)
	dbCmd.AddCommand(entriesCmd)
	dbCmd.AddCommand(statsCmd)
	dbCmd.PersistentFlags().StringVar(&dbPath, "dbpath", "", "Path to SQLite DB file (default: ~/.config/worklogs/worklogs.sqlite)")

	runsCmd.Flags().Int("limit", 20, "Maximum number of runs to list (0 = all)")
	entriesCmd.Flags().Bool("summary", false, "Print the summary instead of CSV rows")
}
