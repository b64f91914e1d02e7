package dev

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/worklogs/worklogs/pkg/tracker"
	"github.com/worklogs/worklogs/pkg/worklog"
)

// This is an in-memory tracker used by tests and offline (--dev) runs.

type Op string

const (
	OpSearch   Op = "search"
	OpChildren Op = "children"
	OpLinks    Op = "links"
	OpSubtasks Op = "subtasks"
	OpWorklogs Op = "worklogs"
	OpMetadata Op = "metadata"
)

const anyQuery = "*"

type Tracker struct {
	mu       sync.Mutex
	kinds    map[string]tracker.ItemKind
	searches map[string][]string
	children map[string][]string
	links    map[string][]string
	subtasks map[string][]string
	worklogs map[string][]worklog.Worklog
	metadata map[string]worklog.Metadata
	failures map[string]error
	panics   map[string]bool
	calls    map[string]int
	delay    time.Duration
}

var _ tracker.Client = (*Tracker)(nil)

func New() *Tracker {
	return &Tracker{
		kinds:    make(map[string]tracker.ItemKind),
		searches: make(map[string][]string),
		children: make(map[string][]string),
		links:    make(map[string][]string),
		subtasks: make(map[string][]string),
		worklogs: make(map[string][]worklog.Worklog),
		metadata: make(map[string]worklog.Metadata),
		failures: make(map[string]error),
		panics:   make(map[string]bool),
		calls:    make(map[string]int),
	}
}

func opKey(op Op, key string) string { return string(op) + ":" + key }

// AddIssue registers the kind of an issue.
func (t *Tracker) AddIssue(key string, kind tracker.ItemKind) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.kinds[key] = kind
	return t
}

// Match makes jql return keys. A jql of "*" answers any query without its
// own results.
func (t *Tracker) Match(jql string, keys ...string) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.searches[jql] = append(t.searches[jql], keys...)
	return t
}

// MatchAny answers every unregistered query with keys.
func (t *Tracker) MatchAny(keys ...string) *Tracker {
	return t.Match(anyQuery, keys...)
}

func (t *Tracker) AddChild(epic string, children ...string) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.children[epic] = append(t.children[epic], children...)
	return t
}

// Link cross-links a and b; the link is visible from both sides.
func (t *Tracker) Link(a, b string) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.links[a] = append(t.links[a], b)
	t.links[b] = append(t.links[b], a)
	return t
}

func (t *Tracker) AddSubtask(parent string, subtasks ...string) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subtasks[parent] = append(t.subtasks[parent], subtasks...)
	return t
}

func (t *Tracker) AddWorklog(key string, wls ...worklog.Worklog) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.worklogs[key] = append(t.worklogs[key], wls...)
	return t
}

func (t *Tracker) SetMetadata(key string, md worklog.Metadata) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metadata[key] = md
	return t
}

// FailOn makes op fail with err for key.
func (t *Tracker) FailOn(op Op, key string, err error) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[opKey(op, key)] = err
	return t
}

// PanicOn makes op panic for key.
func (t *Tracker) PanicOn(op Op, key string) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.panics[opKey(op, key)] = true
	return t
}

// SetDelay makes every call sleep for d before answering.
func (t *Tracker) SetDelay(d time.Duration) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delay = d
	return t
}

// Calls returns how many times op was called for key.
func (t *Tracker) Calls(op Op, key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[opKey(op, key)]
}

// TotalCalls returns how many times op was called across all keys.
func (t *Tracker) TotalCalls(op Op) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	prefix := string(op) + ":"
	for k, c := range t.calls {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			n += c
		}
	}
	return n
}

func (t *Tracker) enter(ctx context.Context, op Op, key string) error {
	t.mu.Lock()
	t.calls[opKey(op, key)]++
	delay := t.delay
	err := t.failures[opKey(op, key)]
	shouldPanic := t.panics[opKey(op, key)]
	t.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if shouldPanic {
		panic(fmt.Sprintf("dev tracker: %s %s", op, key))
	}
	return err
}

func (t *Tracker) items(keys []string) []tracker.Item {
	out := make([]tracker.Item, 0, len(keys))
	for _, k := range keys {
		kind := t.kinds[k]
		if kind == "" {
			kind = "Story"
		}
		out = append(out, tracker.Item{Key: k, Kind: kind})
	}
	return out
}

func (t *Tracker) Search(ctx context.Context, jql string) ([]tracker.Item, error) {
	if err := t.enter(ctx, OpSearch, jql); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	keys, ok := t.searches[jql]
	if !ok {
		keys = t.searches[anyQuery]
	}
	return t.items(keys), nil
}

func (t *Tracker) EpicChildren(ctx context.Context, epicKey string) ([]tracker.Item, error) {
	if err := t.enter(ctx, OpChildren, epicKey); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.items(t.children[epicKey]), nil
}

func (t *Tracker) Links(ctx context.Context, key string) ([]string, error) {
	if err := t.enter(ctx, OpLinks, key); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.links[key]...), nil
}

func (t *Tracker) Subtasks(ctx context.Context, key string) ([]string, error) {
	if err := t.enter(ctx, OpSubtasks, key); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.subtasks[key]...), nil
}

func (t *Tracker) Worklogs(ctx context.Context, key string) ([]worklog.Worklog, error) {
	if err := t.enter(ctx, OpWorklogs, key); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]worklog.Worklog(nil), t.worklogs[key]...), nil
}

func (t *Tracker) Metadata(ctx context.Context, key string) (worklog.Metadata, error) {
	if err := t.enter(ctx, OpMetadata, key); err != nil {
		return worklog.Metadata{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	md, ok := t.metadata[key]
	if !ok {
		md = worklog.Metadata{IssueType: string(t.kinds[key]), Summary: key}
	}
	return md.WithDefaults(), nil
}

// Keys returns every issue key the tracker knows about, sorted.
func (t *Tracker) Keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	seen := make(map[string]bool)
	add := func(keys ...string) {
		for _, k := range keys {
			seen[k] = true
		}
	}
	for k := range t.kinds {
		add(k)
	}
	for _, v := range t.searches {
		add(v...)
	}
	for k, v := range t.children {
		add(k)
		add(v...)
	}
	for k, v := range t.links {
		add(k)
		add(v...)
	}
	for k, v := range t.subtasks {
		add(k)
		add(v...)
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Sample builds a small project: an epic with two children, a story linked
// to one issue of the same project and one foreign issue, and a subtask.
func Sample(project string) *Tracker {
	k := func(n string) string { return project + "-" + n }
	foreign := "EXT-1"

	t := New().
		AddIssue(k("1"), tracker.KindEpic).
		AddIssue(k("2"), "Story").
		AddIssue(k("3"), "Story").
		AddIssue(k("4"), "Task").
		AddIssue(k("5"), "Bug").
		AddIssue(k("6"), "Sub-task").
		MatchAny(k("1"), k("2")).
		AddChild(k("1"), k("3"), k("4")).
		Link(k("2"), k("5")).
		Link(k("2"), foreign).
		AddSubtask(k("3"), k("6"))

	t.SetMetadata(k("1"), worklog.Metadata{IssueType: "Epic", Summary: "Payments revamp", Team: "Core", ProductItem: "Payments"})
	t.SetMetadata(k("2"), worklog.Metadata{IssueType: "Story", Summary: "Checkout page", Components: []string{"web"}, Labels: []string{"ui"}, Team: "Web", ProductItem: "Payments"})
	t.SetMetadata(k("3"), worklog.Metadata{IssueType: "Story", EpicLink: k("1"), Summary: "Card tokenization", Components: []string{"api"}, Team: "Core", ProductItem: "Payments"})
	t.SetMetadata(k("4"), worklog.Metadata{IssueType: "Task", EpicLink: k("1"), Summary: "PCI review", Labels: []string{"compliance"}, Team: "Core"})
	t.SetMetadata(k("5"), worklog.Metadata{IssueType: "Bug", Summary: "Rounding error", Components: []string{"api"}, Team: "Core"})
	t.SetMetadata(k("6"), worklog.Metadata{IssueType: "Sub-task", Summary: "Write tokenizer tests", Team: "Core"})

	authors := []struct{ name, email string }{
		{"Ada Lovelace", "ada@example.com"},
		{"Grace Hopper", "grace@example.com"},
	}
	spent := []string{"3h 30m", "1h", "45m", "2h", "1d", "30m"}
	id := 1000
	for i, key := range []string{k("1"), k("2"), k("3"), k("4"), k("5"), k("6")} {
		for j := 0; j < 2; j++ {
			a := authors[(i+j)%len(authors)]
			secs, _ := worklog.ParseDuration(spent[(i+j)%len(spent)])
			t.AddWorklog(key, worklog.Worklog{
				ID:               fmt.Sprint(id),
				Author:           a.name,
				AuthorEmail:      a.email,
				TimeSpent:        spent[(i+j)%len(spent)],
				TimeSpentSeconds: secs,
				Started:          fmt.Sprintf("2024-%02d-%02dT09:00:00.000+0000", 1+(i+j)%3, 10+j),
				Comment:          worklog.TextComment(fmt.Sprintf("work on %s", key)),
			})
			id++
		}
	}
	return t
}
