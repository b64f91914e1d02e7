package report

import (
	"sort"
	"time"

	"github.com/worklogs/worklogs/pkg/worklog"
)

// StartedLayout is the timestamp format Jira uses for worklog start times.
const StartedLayout = "2006-01-02T15:04:05.000-0700"

// ParseStarted parses a worklog start time. RFC 3339 is accepted as well.
func ParseStarted(s string) (time.Time, bool) {
	for _, layout := range []string{StartedLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Insights are the highlights shown above the breakdown tables.
type Insights struct {
	TopIssue          *IssueRow // most hours
	LongestIssue      *IssueRow // widest span between first and last worklog
	LongestDays       int
	MostCollaborative *IssueRow // most distinct authors

	// ByType counts issues per issue type: Issues is the number of issues,
	// Seconds their logged time. Sorted by issue count, then hours.
	ByType         []Bucket
	MostCommonType *Bucket

	HoursPerContributor float64

	// Period covers every entry with a parseable start time. Days counts
	// calendar days inclusively; zero when no entry is dated.
	FirstDate   time.Time
	LastDate    time.Time
	Days        int
	HoursPerDay float64
}

func wholeDays(d time.Duration) int { return int(d / (24 * time.Hour)) }

// Analyze derives Insights from a summary and the entries it was built from.
func Analyze(s *Stats, entries []worklog.TimeEntry) *Insights {
	in := &Insights{}
	if s.Contributors > 0 {
		in.HoursPerContributor = s.TotalHours() / float64(s.Contributors)
	}
	if len(s.ByIssue) == 0 {
		return in
	}

	// ByIssue is ordered by hours, so the first row wins every tie below.
	in.TopIssue = &s.ByIssue[0]
	for i := range s.ByIssue {
		if s.ByIssue[i].Contributors > in.MostCollaborative.contributors() {
			in.MostCollaborative = &s.ByIssue[i]
		}
	}

	type span struct {
		first, last time.Time
		dated       int
	}
	spans := make(map[string]*span)
	for _, e := range entries {
		t, ok := ParseStarted(e.StartedAt)
		if !ok {
			continue
		}
		if in.FirstDate.IsZero() || t.Before(in.FirstDate) {
			in.FirstDate = t
		}
		if t.After(in.LastDate) {
			in.LastDate = t
		}
		sp := spans[e.ItemKey]
		if sp == nil {
			spans[e.ItemKey] = &span{first: t, last: t, dated: 1}
			continue
		}
		sp.dated++
		if t.Before(sp.first) {
			sp.first = t
		}
		if t.After(sp.last) {
			sp.last = t
		}
	}
	if !in.FirstDate.IsZero() {
		in.Days = wholeDays(in.LastDate.Sub(in.FirstDate)) + 1
		in.HoursPerDay = s.TotalHours() / float64(in.Days)
	}

	for i := range s.ByIssue {
		sp := spans[s.ByIssue[i].Key]
		if sp == nil || sp.dated < 2 {
			continue
		}
		days := wholeDays(sp.last.Sub(sp.first))
		if in.LongestIssue == nil || days > in.LongestDays {
			in.LongestIssue = &s.ByIssue[i]
			in.LongestDays = days
		}
	}

	types := newAccumulator()
	for _, r := range s.ByIssue {
		types.seconds[r.Kind] += r.Seconds
		types.entries[r.Kind] += r.Entries
		if types.issues[r.Kind] == nil {
			types.issues[r.Kind] = make(map[string]bool)
		}
		types.issues[r.Kind][r.Key] = true
	}
	in.ByType = types.buckets()
	sort.SliceStable(in.ByType, func(i, j int) bool { return in.ByType[i].Issues > in.ByType[j].Issues })
	in.MostCommonType = &in.ByType[0]

	return in
}

func (r *IssueRow) contributors() int {
	if r == nil {
		return 0
	}
	return r.Contributors
}
