package extract

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/worklogs/worklogs/pkg/cache"
	"github.com/worklogs/worklogs/pkg/tracker/dev"
	"github.com/worklogs/worklogs/pkg/worklog"
)

func seeded(keys ...string) *dev.Tracker {
	tr := dev.New()
	for i, k := range keys {
		tr.SetMetadata(k, worklog.Metadata{IssueType: "Story", Summary: "issue " + k})
		tr.AddWorklog(k,
			worklog.Worklog{ID: k + "/a", Author: "Ada", TimeSpent: "1h", TimeSpentSeconds: 3600, Started: "2024-01-02T09:00:00.000+0000", Comment: worklog.TextComment("first")},
			worklog.Worklog{ID: k + "/b", Author: "Bob", TimeSpent: "30m", Started: "2024-02-03T09:00:00.000+0000", Comment: worklog.DocumentComment([]byte(`{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"done"}]}]}`))},
		)
		if i%2 == 0 {
			tr.AddWorklog(k, worklog.Worklog{ID: k + "/c", Author: "Cy", TimeSpent: "3h 30m"})
		}
	}
	return tr
}

func entryIDs(entries []worklog.TimeEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.EntryID)
	}
	sort.Strings(ids)
	return ids
}

func mustNew(t *testing.T, cfg Config) *Extractor {
	t.Helper()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestExtractBuildsEntries(t *testing.T) {
	tr := seeded("ZYN-1")
	res := mustNew(t, Config{Client: tr, Workers: 2}).Extract(context.Background(), []string{"ZYN-1"})
	if len(res.Failures) != 0 {
		t.Fatalf("unexpected failures: %v", res.Failures)
	}
	if len(res.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(res.Entries))
	}

	byID := make(map[string]worklog.TimeEntry)
	for _, e := range res.Entries {
		byID[e.EntryID] = e
	}
	if e := byID["ZYN-1/b"]; e.Comment != "done" || e.DurationSeconds != 1800 || e.Title != "issue ZYN-1" {
		t.Fatalf("unexpected entry %+v", e)
	}
	if e := byID["ZYN-1/c"]; e.DurationSeconds != 12600 || e.Hours() != 3.5 || e.Comment != "" {
		t.Fatalf("unexpected entry %+v", e)
	}
	if e := byID["ZYN-1/a"]; e.Team != worklog.NoneValue || e.ProductItem != worklog.NoneValue {
		t.Fatalf("defaults not applied: %+v", e)
	}
}

func TestExtractIsolatesFailures(t *testing.T) {
	keys := []string{"ZYN-1", "ZYN-2", "ZYN-3", "ZYN-4", "ZYN-5"}
	boom := errors.New("boom")
	tr := seeded(keys...).FailOn(dev.OpWorklogs, "ZYN-3", boom)

	res := mustNew(t, Config{Client: tr, Workers: 3}).Extract(context.Background(), keys)

	if len(res.Failures) != 1 || res.Failures[0].Key != "ZYN-3" || !errors.Is(res.Failures[0].Err, boom) {
		t.Fatalf("unexpected failures: %v", res.Failures)
	}
	for _, e := range res.Entries {
		if e.ItemKey == "ZYN-3" {
			t.Fatalf("failed key contributed entry %+v", e)
		}
	}
	// ZYN-1 and ZYN-5 have three worklogs, ZYN-2 and ZYN-4 have two.
	if len(res.Entries) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(res.Entries))
	}
}

func TestExtractRecoversPanics(t *testing.T) {
	keys := []string{"ZYN-1", "ZYN-2", "ZYN-3"}
	tr := seeded(keys...).PanicOn(dev.OpMetadata, "ZYN-2")

	res := mustNew(t, Config{Client: tr}).Extract(context.Background(), keys)
	if len(res.Failures) != 1 || res.Failures[0].Key != "ZYN-2" {
		t.Fatalf("unexpected failures: %v", res.Failures)
	}
	if !strings.Contains(res.Failures[0].Err.Error(), "panic") {
		t.Fatalf("panic not reported: %v", res.Failures[0].Err)
	}
	if len(res.Entries) != 6 {
		t.Fatalf("expected 6 entries, got %d", len(res.Entries))
	}
}

func TestExtractUsesCache(t *testing.T) {
	keys := []string{"ZYN-1", "ZYN-2"}
	tr := seeded(keys...)
	c, err := cache.New(cache.Options{Dir: t.TempDir(), TTL: time.Hour})
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}

	first := mustNew(t, Config{Client: tr, Cache: c}).Extract(context.Background(), keys)
	second := mustNew(t, Config{Client: tr, Cache: c}).Extract(context.Background(), keys)

	for _, k := range keys {
		if n := tr.Calls(dev.OpMetadata, k); n != 1 {
			t.Fatalf("metadata for %s fetched %d times", k, n)
		}
		if n := tr.Calls(dev.OpWorklogs, k); n != 1 {
			t.Fatalf("worklogs for %s fetched %d times", k, n)
		}
	}

	sortEntries := func(es []worklog.TimeEntry) {
		sort.Slice(es, func(i, j int) bool { return es[i].EntryID < es[j].EntryID })
	}
	sortEntries(first.Entries)
	sortEntries(second.Entries)
	if diff := cmp.Diff(first.Entries, second.Entries); diff != "" {
		t.Fatalf("cached run differs (-first +second):\n%s", diff)
	}
}

func TestExtractFailuresAreNotCached(t *testing.T) {
	tr := seeded("ZYN-1").FailOn(dev.OpMetadata, "ZYN-1", errors.New("down"))
	c, err := cache.New(cache.Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	mustNew(t, Config{Client: tr, Cache: c}).Extract(context.Background(), []string{"ZYN-1"})
	if _, ok := c.Get(NamespaceMetadata, "ZYN-1"); ok {
		t.Fatalf("failed fetch was cached")
	}
}

func TestExtractCoalescesConcurrentFetches(t *testing.T) {
	tr := seeded("ZYN-1").SetDelay(100 * time.Millisecond)
	keys := []string{"ZYN-1", "ZYN-1", "ZYN-1", "ZYN-1"}

	res := mustNew(t, Config{Client: tr, Workers: 4}).Extract(context.Background(), keys)
	if len(res.Failures) != 0 {
		t.Fatalf("unexpected failures: %v", res.Failures)
	}
	if n := tr.Calls(dev.OpMetadata, "ZYN-1"); n != 1 {
		t.Fatalf("metadata fetched %d times, want 1", n)
	}
	if len(res.Entries) != 12 {
		t.Fatalf("expected 12 entries, got %d", len(res.Entries))
	}
}

func TestExtractCallsOnItemDone(t *testing.T) {
	keys := []string{"ZYN-1", "ZYN-2", "ZYN-3"}
	tr := seeded(keys...).FailOn(dev.OpMetadata, "ZYN-2", errors.New("nope"))

	var mu sync.Mutex
	done := make(map[string]int)
	var failed []string
	e := mustNew(t, Config{Client: tr, OnItemDone: func(key string, entries []worklog.TimeEntry, err error) {
		mu.Lock()
		defer mu.Unlock()
		done[key] = len(entries)
		if err != nil {
			failed = append(failed, key)
		}
	}})
	e.Extract(context.Background(), keys)

	if diff := cmp.Diff(map[string]int{"ZYN-1": 3, "ZYN-2": 0, "ZYN-3": 3}, done); diff != "" {
		t.Fatalf("progress mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"ZYN-2"}, failed); diff != "" {
		t.Fatalf("failed mismatch (-want +got):\n%s", diff)
	}
}

func TestNewDefaults(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without client")
	}
	e := mustNew(t, Config{Client: dev.New(), Workers: -1})
	if e.Workers() != DEFAULT_WORKERS {
		t.Fatalf("workers = %d", e.Workers())
	}
	if res := e.Extract(context.Background(), nil); len(res.Entries) != 0 || len(res.Failures) != 0 {
		t.Fatalf("unexpected result for empty input: %+v", res)
	}
}
