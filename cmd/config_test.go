package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/worklogs/worklogs/pkg/report"
	"github.com/worklogs/worklogs/pkg/storage"
)

func TestRunConfigQuery(t *testing.T) {
	tests := []struct {
		name string
		cfg  runConfig
		want string
	}{
		{"erp filter", runConfig{Project: "ZYN", ERPActivity: "F123"}, `project = ZYN AND "ERP Activity" ~ "F123"`},
		{"override", runConfig{Project: "ZYN", ERPActivity: "F123", JQL: "project = OPS"}, "project = OPS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Query(); got != tt.want {
				t.Fatalf("Query() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     runConfig
		dev     bool
		wantErr bool
	}{
		{"dev needs only a project", runConfig{Project: "ZYN", CacheTTL: time.Hour}, true, false},
		{"missing project", runConfig{CacheTTL: time.Hour}, true, true},
		{"missing credentials", runConfig{Project: "ZYN", ERPActivity: "F", CacheTTL: time.Hour}, false, true},
		{"missing filter", runConfig{Project: "ZYN", JiraURL: "https://jira", Token: "t", CacheTTL: time.Hour}, false, true},
		{"complete", runConfig{Project: "ZYN", JiraURL: "https://jira", Token: "t", ERPActivity: "F", CacheTTL: time.Hour}, false, false},
		{"jql instead of filter", runConfig{Project: "ZYN", JiraURL: "https://jira", Token: "t", JQL: "project = ZYN", CacheTTL: time.Hour}, false, false},
		{"too many workers", runConfig{Project: "ZYN", Workers: 500, CacheTTL: time.Hour}, true, true},
		{"zero cache ttl", runConfig{Project: "ZYN"}, true, true},
		{"negative cache ttl", runConfig{Project: "ZYN", CacheTTL: -time.Second}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate(tt.dev)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunConfigValidateNamesKeys(t *testing.T) {
	err := runConfig{ERPActivity: "F"}.validate(false)
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, key := range []string{"project is required", "jira.url is required", "jira.token is required"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %q", err, key)
		}
	}
}

func TestRunConfigValidateRejectsZeroTTL(t *testing.T) {
	err := runConfig{Project: "ZYN"}.validate(true)
	if err == nil || !strings.Contains(err.Error(), "cache.ttl must be at least 1 second(s)") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestRunExtractDev(t *testing.T) {
	dir := t.TempDir()
	cfg := runConfig{
		Project:      "ZYN",
		JQL:          "project = ZYN",
		CacheEnabled: true,
		CacheDir:     filepath.Join(dir, "cache"),
		CacheTTL:     time.Hour,
		Workers:      3,
	}
	opts := extractOptions{
		Format:    "both",
		OutputDir: filepath.Join(dir, "out"),
		DevMode:   true,
		UseDB:     true,
		DBPath:    filepath.Join(dir, "history.sqlite"),
	}
	if err := runExtract(context.Background(), cfg, opts); err != nil {
		t.Fatalf("runExtract: %v", err)
	}

	files, err := os.ReadDir(opts.OutputDir)
	if err != nil {
		t.Fatal(err)
	}
	var csvFiles, htmlFiles int
	for _, f := range files {
		switch {
		case strings.HasPrefix(f.Name(), "ZYN_worklogs_") && strings.HasSuffix(f.Name(), ".csv"):
			csvFiles++
		case strings.HasPrefix(f.Name(), "ZYN_worklogs_") && strings.HasSuffix(f.Name(), ".html"):
			htmlFiles++
		}
	}
	if csvFiles != 1 || htmlFiles != 1 {
		t.Fatalf("expected one CSV and one HTML report, got %d and %d", csvFiles, htmlFiles)
	}

	cached, err := os.ReadDir(cfg.CacheDir)
	if err != nil || len(cached) == 0 {
		t.Fatalf("cache not populated: %v", err)
	}

	db, err := storage.Open(opts.DBPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	run, err := db.LatestRun(context.Background(), "ZYN")
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	entries, err := db.RunEntries(context.Background(), run.ID)
	if err != nil {
		t.Fatal(err)
	}
	// The sample dataset links one foreign issue, which is never collected.
	for _, e := range entries {
		if strings.HasPrefix(e.ItemKey, "EXT-") {
			t.Fatalf("foreign issue extracted: %+v", e)
		}
	}
	if s := report.Summarize(entries); s.Issues != 6 || s.Entries != 12 {
		t.Fatalf("unexpected run contents: %d issues, %d entries", s.Issues, s.Entries)
	}
}
