package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/worklogs/worklogs/pkg/worklog"
)

func sampleEntries() []worklog.TimeEntry {
	return []worklog.TimeEntry{
		{ItemKey: "ZYN-1", ItemKind: "Story", Title: "Checkout", EpicLink: "ZYN-9", Components: []string{"web", "api"}, Labels: []string{"ui"}, ProductItem: "Payments", Team: "Web",
			EntryID: "1", Author: "Ada", AuthorContact: "ada@example.com", DurationText: "3h 30m", DurationSeconds: 12600, StartedAt: "2024-01-15T09:00:00.000+0000", Comment: "done"},
		{ItemKey: "ZYN-1", ItemKind: "Story", Title: "Checkout", EpicLink: "ZYN-9", Components: []string{"web", "api"}, Labels: []string{"ui"}, ProductItem: "Payments", Team: "Web",
			EntryID: "2", Author: "Bob", DurationText: "1h", DurationSeconds: 3600, StartedAt: "2024-02-01T09:00:00.000+0000", Comment: "review, \"quoted\""},
		{ItemKey: "ZYN-2", ItemKind: "Bug", Title: "Rounding", ProductItem: "None", Team: "None",
			EntryID: "3", Author: "Ada", DurationText: "30m", DurationSeconds: 1800, StartedAt: "2024-01-20T09:00:00.000+0000"},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleEntries())

	if s.TotalSeconds != 18000 || s.TotalHours() != 5 || s.Entries != 3 {
		t.Fatalf("unexpected totals: %+v", s)
	}
	if s.Contributors != 2 || s.Issues != 2 {
		t.Fatalf("contributors=%d issues=%d", s.Contributors, s.Issues)
	}

	tests := []struct {
		name string
		got  []Bucket
		want []Bucket
	}{
		{"author", s.ByAuthor, []Bucket{
			{Name: "Ada", Seconds: 14400, Entries: 2, Issues: 2},
			{Name: "Bob", Seconds: 3600, Entries: 1, Issues: 1},
		}},
		{"month", s.ByMonth, []Bucket{
			{Name: "2024-01", Seconds: 14400, Entries: 2, Issues: 2},
			{Name: "2024-02", Seconds: 3600, Entries: 1, Issues: 1},
		}},
		{"component", s.ByComponent, []Bucket{
			{Name: "api", Seconds: 16200, Entries: 2, Issues: 1},
			{Name: "web", Seconds: 16200, Entries: 2, Issues: 1},
			{Name: "None", Seconds: 1800, Entries: 1, Issues: 1},
		}},
		{"label", s.ByLabel, []Bucket{
			{Name: "ui", Seconds: 16200, Entries: 2, Issues: 1},
			{Name: "None", Seconds: 1800, Entries: 1, Issues: 1},
		}},
		{"team", s.ByTeam, []Bucket{
			{Name: "Web", Seconds: 16200, Entries: 2, Issues: 1},
			{Name: "None", Seconds: 1800, Entries: 1, Issues: 1},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.got); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if len(s.ByIssue) != 2 || s.ByIssue[0].Key != "ZYN-1" || s.ByIssue[0].Contributors != 2 || s.ByIssue[0].Hours() != 4.5 {
		t.Fatalf("unexpected issue rows: %+v", s.ByIssue)
	}
	if got := s.Share(3600); got != 20 {
		t.Fatalf("Share = %v", got)
	}
}

func TestAnalyze(t *testing.T) {
	in := Analyze(Summarize(sampleEntries()), sampleEntries())

	if in.TopIssue == nil || in.TopIssue.Key != "ZYN-1" {
		t.Fatalf("top issue = %+v", in.TopIssue)
	}
	if in.LongestIssue == nil || in.LongestIssue.Key != "ZYN-1" || in.LongestDays != 17 {
		t.Fatalf("longest issue = %+v, %d days", in.LongestIssue, in.LongestDays)
	}
	if in.MostCollaborative == nil || in.MostCollaborative.Key != "ZYN-1" {
		t.Fatalf("most collaborative = %+v", in.MostCollaborative)
	}
	wantTypes := []Bucket{
		{Name: "Story", Seconds: 16200, Entries: 2, Issues: 1},
		{Name: "Bug", Seconds: 1800, Entries: 1, Issues: 1},
	}
	if diff := cmp.Diff(wantTypes, in.ByType); diff != "" {
		t.Fatalf("types mismatch (-want +got):\n%s", diff)
	}
	if in.MostCommonType == nil || in.MostCommonType.Name != "Story" {
		t.Fatalf("most common type = %+v", in.MostCommonType)
	}
	if in.HoursPerContributor != 2.5 {
		t.Fatalf("hours per contributor = %v", in.HoursPerContributor)
	}
	if got := in.FirstDate.Format("2006-01-02") + ".." + in.LastDate.Format("2006-01-02"); got != "2024-01-15..2024-02-01" {
		t.Fatalf("period = %s", got)
	}
	if in.Days != 18 || in.HoursPerDay != 5.0/18 {
		t.Fatalf("days = %d, hours/day = %v", in.Days, in.HoursPerDay)
	}
}

func TestAnalyzeCountsIssuesPerType(t *testing.T) {
	entries := []worklog.TimeEntry{
		{ItemKey: "ZYN-1", ItemKind: "Story", Author: "Ada", DurationSeconds: 36000, StartedAt: "2024-01-01T09:00:00.000+0000"},
		{ItemKey: "ZYN-2", ItemKind: "Bug", Author: "Ada", DurationSeconds: 600, StartedAt: "2024-01-02T09:00:00.000+0000"},
		{ItemKey: "ZYN-3", ItemKind: "Bug", Author: "Bob", DurationSeconds: 600, StartedAt: "not a date"},
		{ItemKey: "ZYN-3", ItemKind: "Bug", Author: "Eve", DurationSeconds: 600},
	}
	in := Analyze(Summarize(entries), entries)

	if in.MostCommonType.Name != "Bug" || in.MostCommonType.Issues != 2 {
		t.Fatalf("most common type = %+v", in.MostCommonType)
	}
	if in.MostCollaborative.Key != "ZYN-3" {
		t.Fatalf("most collaborative = %s", in.MostCollaborative.Key)
	}
	// No issue has two dated entries.
	if in.LongestIssue != nil {
		t.Fatalf("longest issue = %+v", in.LongestIssue)
	}
	if in.Days != 2 {
		t.Fatalf("days = %d", in.Days)
	}
}

func TestAnalyzeEmpty(t *testing.T) {
	in := Analyze(Summarize(nil), nil)
	if in.TopIssue != nil || in.MostCommonType != nil || in.Days != 0 || in.HoursPerDay != 0 {
		t.Fatalf("unexpected insights %+v", in)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.Share(10) != 0 || len(s.ByAuthor) != 0 {
		t.Fatalf("unexpected summary %+v", s)
	}
	var buf bytes.Buffer
	if err := WriteSummary(&buf, s); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No worklogs") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestWriteSummarySortsByHours(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSummary(&buf, Summarize(sampleEntries())); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Total hours logged: 5.00") {
		t.Fatalf("missing total in %q", out)
	}
	if strings.Index(out, "Ada") > strings.Index(out, "Bob") {
		t.Fatalf("authors not sorted by hours:\n%s", out)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleEntries()); err != nil {
		t.Fatal(err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if diff := cmp.Diff(csvHeader, records[0]); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
	want := []string{"ZYN-1", "Checkout", "Story", "ZYN-9", "Ada", "ada@example.com", "3h 30m", "3.5", "2024-01-15T09:00:00.000+0000", "done"}
	if diff := cmp.Diff(want, records[1]); diff != "" {
		t.Fatalf("row mismatch (-want +got):\n%s", diff)
	}
	if records[2][9] != `review, "quoted"` {
		t.Fatalf("comment not preserved: %q", records[2][9])
	}
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}
}

func TestFormatHours(t *testing.T) {
	tests := map[int64]string{0: "0", 1800: "0.5", 12600: "3.5", 1000: "0.28", 3600: "1"}
	for secs, want := range tests {
		if got := FormatHours(secs); got != want {
			t.Errorf("FormatHours(%d) = %q, want %q", secs, got, want)
		}
	}
}

func TestFileName(t *testing.T) {
	at := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	if got := FileName("ZYN", "csv", at); got != "ZYN_worklogs_20240305_140709.csv" {
		t.Fatalf("FileName = %q", got)
	}
	if got := FileName("ZYN", ".html", at); got != "ZYN_worklogs_20240305_140709.html" {
		t.Fatalf("FileName = %q", got)
	}
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	info := PageInfo{
		Project:     "ZYN",
		BaseURL:     "https://jira.example.com/",
		GeneratedAt: time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC),
		Timing:      &Timing{Collection: 2 * time.Second, Extraction: 3 * time.Second, Total: 5 * time.Second, Issues: 2, Worklogs: 3},
		Queries:     []string{`project = ZYN AND "ERP Activity" ~ "F"`},
		Failures:    []string{"ZYN-3"},
	}
	if err := WriteHTML(&buf, sampleEntries(), info); err != nil {
		t.Fatalf("WriteHTML: %v", err)
	}

	doc, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if got := doc.Find("title").Text(); got != "Jira Worklog Report - ZYN" {
		t.Fatalf("title = %q", got)
	}
	cards := doc.Find(".stat-card .number").Map(func(_ int, s *goquery.Selection) string { return s.Text() })
	if diff := cmp.Diff([]string{"5.0", "3", "2", "2"}, cards); diff != "" {
		t.Fatalf("stat cards mismatch (-want +got):\n%s", diff)
	}
	if got := doc.Find("#timing").Text(); !strings.Contains(got, "Collection: 2.00s") || !strings.Contains(got, "3 worklogs") {
		t.Fatalf("timing = %q", got)
	}

	href, _ := doc.Find("#by-issue tbody tr").First().Find("a.issue").First().Attr("href")
	if href != "https://jira.example.com/browse/ZYN-1" {
		t.Fatalf("issue link = %q", href)
	}
	if n := doc.Find("#entries tbody tr").Length(); n != 3 {
		t.Fatalf("expected 3 entry rows, got %d", n)
	}
	if n := doc.Find("#by-month tbody tr").Length(); n != 2 {
		t.Fatalf("expected 2 month rows, got %d", n)
	}
	if got := doc.Find("#queries code").Text(); got != info.Queries[0] {
		t.Fatalf("query = %q", got)
	}
	if got := doc.Find("#failures li").Text(); got != "ZYN-3" {
		t.Fatalf("failures = %q", got)
	}

	if got := doc.Find("#insight-period .value").Text(); got != "18 days" {
		t.Fatalf("period = %q", got)
	}
	if got := doc.Find("#insight-per-contributor .value").Text(); got != "2.5h" {
		t.Fatalf("hours per contributor = %q", got)
	}
	if href, _ := doc.Find("#insight-top a.issue").Attr("href"); href != "https://jira.example.com/browse/ZYN-1" {
		t.Fatalf("top issue link = %q", href)
	}
	if got := doc.Find("#insight-longest .value").Text(); got != "17 days" {
		t.Fatalf("longest = %q", got)
	}
	if got := doc.Find("#insight-type .value").Text(); got != "Story" {
		t.Fatalf("most common type = %q", got)
	}
	if n := doc.Find("#by-type tbody tr").Length(); n != 2 {
		t.Fatalf("expected 2 type rows, got %d", n)
	}

	authors := doc.Find("#author-details details")
	if authors.Length() != 2 {
		t.Fatalf("expected 2 author blocks, got %d", authors.Length())
	}
	ada := authors.First()
	if got := ada.Find("summary").Text(); !strings.HasPrefix(got, "Ada: 4.00h") {
		t.Fatalf("author summary = %q", got)
	}
	// Newest first.
	if got := ada.Find(".worklog-meta").First().Text(); !strings.Contains(got, "2024-01-20") {
		t.Fatalf("first Ada entry = %q", got)
	}
	if got := ada.Find(".worklog-comment").First().Text(); got != "No comment" {
		t.Fatalf("empty comment = %q", got)
	}
}

func TestWriteHTMLWithoutBaseURL(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, sampleEntries(), PageInfo{Project: "ZYN"}); err != nil {
		t.Fatal(err)
	}
	doc, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Find("a.issue").Length() != 0 {
		t.Fatalf("links rendered without a base URL")
	}
	if doc.Find("#queries").Length() != 0 || doc.Find("#timing").Length() != 0 {
		t.Fatalf("optional sections rendered")
	}
}
