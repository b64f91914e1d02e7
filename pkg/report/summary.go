package report

import (
	"sort"

	"github.com/worklogs/worklogs/pkg/worklog"
)

// Bucket is the time logged under one value of a breakdown.
type Bucket struct {
	Name    string
	Seconds int64
	Entries int
	Issues  int
}

func (b Bucket) Hours() float64 { return float64(b.Seconds) / 3600 }

// IssueRow is the time logged on one issue.
type IssueRow struct {
	Key          string
	Title        string
	Kind         string
	EpicLink     string
	ProductItem  string
	Team         string
	Components   []string
	Labels       []string
	Seconds      int64
	Entries      int
	Contributors int
}

func (r IssueRow) Hours() float64 { return float64(r.Seconds) / 3600 }

type Stats struct {
	TotalSeconds int64
	Entries      int
	Contributors int
	Issues       int

	ByAuthor    []Bucket
	ByMonth     []Bucket // chronological
	ByProduct   []Bucket
	ByComponent []Bucket
	ByLabel     []Bucket
	ByTeam      []Bucket
	ByIssue     []IssueRow
}

func (s *Stats) TotalHours() float64 { return float64(s.TotalSeconds) / 3600 }

// Share returns seconds as a percentage of the total.
func (s *Stats) Share(seconds int64) float64 {
	if s.TotalSeconds == 0 {
		return 0
	}
	return float64(seconds) * 100 / float64(s.TotalSeconds)
}

type accumulator struct {
	seconds map[string]int64
	entries map[string]int
	issues  map[string]map[string]bool
}

func newAccumulator() *accumulator {
	return &accumulator{
		seconds: make(map[string]int64),
		entries: make(map[string]int),
		issues:  make(map[string]map[string]bool),
	}
}

func (a *accumulator) add(name, issue string, seconds int64) {
	a.seconds[name] += seconds
	a.entries[name]++
	if a.issues[name] == nil {
		a.issues[name] = make(map[string]bool)
	}
	a.issues[name][issue] = true
}

func (a *accumulator) buckets() []Bucket {
	out := make([]Bucket, 0, len(a.seconds))
	for name, secs := range a.seconds {
		out = append(out, Bucket{Name: name, Seconds: secs, Entries: a.entries[name], Issues: len(a.issues[name])})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seconds != out[j].Seconds {
			return out[i].Seconds > out[j].Seconds
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// orNone returns values, or a single "None" when there are no values.
func orNone(values []string) []string {
	if len(values) == 0 {
		return []string{worklog.NoneValue}
	}
	return values
}

// Summarize aggregates entries by author, issue, month, product item,
// component, label and team. Breakdowns are sorted by hours, descending,
// except ByMonth which is chronological.
func Summarize(entries []worklog.TimeEntry) *Stats {
	s := &Stats{Entries: len(entries)}

	authors := newAccumulator()
	months := newAccumulator()
	products := newAccumulator()
	components := newAccumulator()
	labels := newAccumulator()
	teams := newAccumulator()

	issues := make(map[string]*IssueRow)
	contributors := make(map[string]map[string]bool)

	for _, e := range entries {
		secs := e.DurationSeconds
		s.TotalSeconds += secs

		authors.add(e.Author, e.ItemKey, secs)
		if m := e.YearMonth(); m != "" {
			months.add(m, e.ItemKey, secs)
		}
		products.add(e.ProductItem, e.ItemKey, secs)
		for _, c := range orNone(e.Components) {
			components.add(c, e.ItemKey, secs)
		}
		for _, l := range orNone(e.Labels) {
			labels.add(l, e.ItemKey, secs)
		}
		teams.add(e.Team, e.ItemKey, secs)

		row, ok := issues[e.ItemKey]
		if !ok {
			row = &IssueRow{Key: e.ItemKey}
			issues[e.ItemKey] = row
			contributors[e.ItemKey] = make(map[string]bool)
		}
		row.Title = e.Title
		row.Kind = e.ItemKind
		row.EpicLink = e.EpicLink
		row.ProductItem = e.ProductItem
		row.Team = e.Team
		row.Components = e.Components
		row.Labels = e.Labels
		row.Seconds += secs
		row.Entries++
		contributors[e.ItemKey][e.Author] = true
	}

	s.ByAuthor = authors.buckets()
	s.ByProduct = products.buckets()
	s.ByComponent = components.buckets()
	s.ByLabel = labels.buckets()
	s.ByTeam = teams.buckets()

	s.ByMonth = months.buckets()
	sort.Slice(s.ByMonth, func(i, j int) bool { return s.ByMonth[i].Name < s.ByMonth[j].Name })

	s.ByIssue = make([]IssueRow, 0, len(issues))
	for key, row := range issues {
		row.Contributors = len(contributors[key])
		s.ByIssue = append(s.ByIssue, *row)
	}
	sort.Slice(s.ByIssue, func(i, j int) bool {
		if s.ByIssue[i].Seconds != s.ByIssue[j].Seconds {
			return s.ByIssue[i].Seconds > s.ByIssue[j].Seconds
		}
		return s.ByIssue[i].Key < s.ByIssue[j].Key
	})

	s.Contributors = len(s.ByAuthor)
	s.Issues = len(s.ByIssue)
	return s
}
