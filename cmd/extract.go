package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/worklogs/worklogs/internal/utils"
	"github.com/worklogs/worklogs/pkg/collector"
	"github.com/worklogs/worklogs/pkg/extract"
	"github.com/worklogs/worklogs/pkg/report"
	"github.com/worklogs/worklogs/pkg/storage"
	"github.com/worklogs/worklogs/pkg/worklog"
)

// extractCmd implements: worklogs extract
//
//	--format csv|html|both  Report formats to write
//	--output-dir string     Where reports are written
//	--no-cache              Ignore the on-disk cache for this run
//	--cache-ttl int         Cache TTL in seconds
//	--workers int           Number of parallel worklog fetches
//	--db                    Store the run in the history database
//	--skip-validation       Do not check the Jira connection first
//	--dev                   Use the built-in sample dataset
var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Collect related issues and export their worklogs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("unknown command: '%s'. See 'worklogs extract --help'", args[0])
		}

		format, _ := cmd.Flags().GetString("format")
		format = strings.ToLower(format)
		if format != "csv" && format != "html" && format != "both" {
			return fmt.Errorf("invalid format %q (csv, html or both)", format)
		}
		outputDir, _ := cmd.Flags().GetString("output-dir")
		noCache, _ := cmd.Flags().GetBool("no-cache")
		skipValidation, _ := cmd.Flags().GetBool("skip-validation")
		devMode, _ := cmd.Flags().GetBool("dev")
		useDB, _ := cmd.Flags().GetBool("db")
		dbPath, _ := cmd.Flags().GetString("dbpath")

		cfg := loadRunConfig(cmd)
		if noCache {
			cfg.CacheEnabled = false
		}
		if err := cfg.validate(devMode); err != nil {
			return err
		}

		return runExtract(cmd.Context(), cfg, extractOptions{
			Format:         format,
			OutputDir:      outputDir,
			SkipValidation: skipValidation,
			DevMode:        devMode,
			UseDB:          useDB,
			DBPath:         dbPath,
		})
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("format", "f", "both", "Report format: csv, html or both")
	extractCmd.Flags().StringP("output-dir", "o", ".", "Directory for the generated reports")
	extractCmd.Flags().Bool("no-cache", false, "Do not read or write the on-disk cache")
	extractCmd.Flags().Int("cache-ttl", 3600, "Cache time-to-live in seconds (at least 1)")
	extractCmd.Flags().IntP("workers", "w", 10, "Number of issues processed in parallel")
	extractCmd.Flags().Bool("skip-validation", false, "Skip the Jira connection check")
	extractCmd.Flags().Bool("dev", false, "Use the built-in sample dataset instead of Jira")
	extractCmd.Flags().Bool("db", false, "Save the run to the history database")
	extractCmd.Flags().String("dbpath", "", "Path to SQLite DB file (default: ~/.config/worklogs/worklogs.sqlite)")

	viper.BindPFlag("cache.ttl", extractCmd.Flags().Lookup("cache-ttl"))
	viper.BindPFlag("workers", extractCmd.Flags().Lookup("workers"))
}

type extractOptions struct {
	Format         string
	OutputDir      string
	SkipValidation bool
	DevMode        bool
	UseDB          bool
	DBPath         string
}

func runExtract(ctx context.Context, cfg runConfig, opts extractOptions) error {
	client, jc, err := cfg.newTracker(opts.DevMode)
	if err != nil {
		return err
	}

	if jc != nil && !opts.SkipValidation {
		name, err := jc.Check(ctx)
		if err != nil {
			return fmt.Errorf("connection check failed: %w", err)
		}
		utils.Log.Infof("Connected to %s as %s", cfg.JiraURL, name)
	}

	c, err := cfg.newCache()
	if err != nil {
		return err
	}
	if c.Enabled() {
		utils.Log.Debugf("Caching in %s (ttl %s)", c.Dir(), c.TTL())
	}

	started := time.Now()
	collected, err := collector.New(client, collector.Config{
		Project: cfg.Project,
		JQL:     cfg.Query(),
		Log:     utils.Log,
	}).Collect(ctx)
	if err != nil {
		return err
	}
	collectionTime := time.Since(started)

	if len(collected.Keys) == 0 {
		utils.Log.Warn("No issues found")
		return nil
	}

	total := len(collected.Keys)
	var done int64
	ex, err := extract.New(extract.Config{
		Client:  client,
		Cache:   c,
		Workers: cfg.Workers,
		Log:     utils.Log,
		OnItemDone: func(key string, entries []worklog.TimeEntry, err error) {
			n := atomic.AddInt64(&done, 1)
			if err == nil {
				utils.Log.Debugf("[%d/%d] %s: %d worklogs", n, total, key, len(entries))
			}
		},
	})
	if err != nil {
		return err
	}

	utils.Log.Infof("Extracting worklogs from %d issues with %d workers", total, ex.Workers())
	extractStart := time.Now()
	extracted := ex.Extract(ctx, collected.Keys)
	extractionTime := time.Since(extractStart)
	totalTime := time.Since(started)

	if n := len(extracted.Failures); n > 0 {
		utils.Log.Warnf("%d of %d issues could not be extracted", n, total)
	}

	stats := report.Summarize(extracted.Entries)
	if err := report.WriteSummary(os.Stdout, stats); err != nil {
		return err
	}
	if len(extracted.Entries) == 0 {
		return nil
	}

	failed := make([]string, 0, len(extracted.Failures))
	for _, f := range extracted.Failures {
		failed = append(failed, f.Key)
	}

	queries := []string{cfg.Query()}
	baseURL := ""
	if jc != nil {
		queries = jc.Queries()
		baseURL = cfg.JiraURL
	}

	now := time.Now()
	if err := writeReports(opts, cfg.Project, now, extracted.Entries, report.PageInfo{
		Project:     cfg.Project,
		BaseURL:     baseURL,
		GeneratedAt: now,
		Timing: &report.Timing{
			Collection: collectionTime,
			Extraction: extractionTime,
			Total:      totalTime,
			Issues:     total,
			Worklogs:   len(extracted.Entries),
		},
		Queries:  queries,
		Failures: failed,
	}); err != nil {
		return err
	}

	if opts.UseDB {
		run, err := saveRun(ctx, opts.DBPath, storage.Run{
			Project:    cfg.Project,
			JQL:        cfg.Query(),
			StartedAt:  started,
			FinishedAt: now,
			Issues:     total,
			Failures:   len(failed),
			Collection: collectionTime,
			Extraction: extractionTime,
		}, extracted.Entries)
		if err != nil {
			return err
		}
		utils.Log.Infof("Run saved as %s", run.ID)
	}

	utils.Log.Infof("Done in %.2fs (collection %.2fs, extraction %.2fs)", totalTime.Seconds(), collectionTime.Seconds(), extractionTime.Seconds())
	return nil
}

func writeReports(opts extractOptions, project string, at time.Time, entries []worklog.TimeEntry, info report.PageInfo) error {
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return err
	}

	if opts.Format == "csv" || opts.Format == "both" {
		path := filepath.Join(opts.OutputDir, report.FileName(project, "csv", at))
		if err := writeFile(path, func(f *os.File) error { return report.WriteCSV(f, entries) }); err != nil {
			return fmt.Errorf("writing CSV report: %w", err)
		}
		utils.Log.Infof("Worklogs exported to %s", path)
	}
	if opts.Format == "html" || opts.Format == "both" {
		path := filepath.Join(opts.OutputDir, report.FileName(project, "html", at))
		if err := writeFile(path, func(f *os.File) error { return report.WriteHTML(f, entries, info) }); err != nil {
			return fmt.Errorf("writing HTML report: %w", err)
		}
		utils.Log.Infof("HTML report generated: %s", path)
	}
	return nil
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func saveRun(ctx context.Context, dbPath string, run storage.Run, entries []worklog.TimeEntry) (storage.Run, error) {
	absPath, err := utils.GetAbsDBPath(dbPath)
	if err != nil {
		return storage.Run{}, err
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	lock, err := utils.NewHistoryLock(absPath)
	if err != nil {
		return storage.Run{}, err
	}
	lock.Log = utils.Log
	if err := lock.Acquire(ctx, fmt.Sprintf("run %s of %s (pid %d)", run.ID, run.Project, os.Getpid())); err != nil {
		return storage.Run{}, err
	}
	defer lock.Release()

	db, err := storage.Open(absPath)
	if err != nil {
		return storage.Run{}, err
	}
	defer db.Close()

	return db.SaveRun(ctx, run, entries)
}
