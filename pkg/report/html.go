package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/worklogs/worklogs/pkg/worklog"
	g "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"
)

// Timing describes how long a run took.
type Timing struct {
	Collection time.Duration
	Extraction time.Duration
	Total      time.Duration
	Issues     int
	Worklogs   int
}

// PageInfo is the context printed around the report tables.
type PageInfo struct {
	Project     string
	BaseURL     string // issue links point to BaseURL/browse/KEY; empty = no links
	GeneratedAt time.Time
	Timing      *Timing  // optional
	Queries     []string // search queries issued during collection
	Failures    []string // keys that could not be extracted
}

func (m PageInfo) browseURL(key string) string {
	if m.BaseURL == "" {
		return ""
	}
	return strings.TrimRight(m.BaseURL, "/") + "/browse/" + key
}

const reportCSS = `
* { margin: 0; padding: 0; box-sizing: border-box; }
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; background: #f1f3f9; color: #333; padding: 20px; }
.container { max-width: 1400px; margin: 0 auto; background: white; border-radius: 12px; box-shadow: 0 10px 30px rgba(0,0,0,0.15); overflow: hidden; }
.header { background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); color: white; padding: 40px; text-align: center; }
.header h1 { font-size: 2.2em; margin-bottom: 10px; font-weight: 600; }
.subtitle { opacity: 0.9; }
.timing { margin-top: 12px; font-size: 0.9em; opacity: 0.85; }
.stats-grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(220px, 1fr)); gap: 20px; padding: 40px; background: #f8f9fa; }
.stat-card { background: white; padding: 25px; border-radius: 8px; box-shadow: 0 2px 8px rgba(0,0,0,0.1); text-align: center; }
.stat-card .number { font-size: 2.2em; font-weight: bold; color: #667eea; margin-bottom: 5px; }
.stat-card .label { color: #666; font-size: 0.9em; text-transform: uppercase; letter-spacing: 1px; }
.section { padding: 30px 40px; }
.section-title { font-size: 1.5em; margin-bottom: 20px; padding-bottom: 10px; border-bottom: 3px solid #667eea; }
table { width: 100%; border-collapse: collapse; font-size: 0.92em; }
th { background: #667eea; color: white; text-align: left; padding: 10px; }
td { padding: 8px 10px; border-bottom: 1px solid #eee; vertical-align: top; }
tr:hover td { background: #f5f6ff; }
td.num { text-align: right; font-variant-numeric: tabular-nums; }
.bar { background: #e9ecef; border-radius: 4px; height: 10px; min-width: 120px; }
.bar > div { background: linear-gradient(90deg, #667eea, #764ba2); height: 10px; border-radius: 4px; }
a.issue { color: #0052CC; text-decoration: none; font-weight: bold; }
code { background: #f4f4f4; padding: 2px 6px; border-radius: 4px; font-size: 0.9em; }
.failures { background: #fff4e5; border-left: 4px solid #f0a020; }
.insight-grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(250px, 1fr)); gap: 20px; margin-bottom: 20px; }
.insight { background: white; padding: 20px; border-radius: 8px; border-left: 4px solid #667eea; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
.insight .caption { font-weight: bold; color: #667eea; margin-bottom: 8px; }
.insight .value { font-size: 1.3em; font-weight: bold; color: #764ba2; }
.insight .note { font-size: 0.85em; color: #666; margin-top: 5px; }
details.author { border-bottom: 1px solid #eee; padding: 8px 0; }
details.author summary { cursor: pointer; font-weight: bold; }
.worklog-entry { padding: 6px 12px; border-left: 3px solid #667eea; margin: 6px 0; }
.worklog-meta { font-size: 0.85em; color: #666; }
`

// WriteHTML renders the report page.
func WriteHTML(out io.Writer, entries []worklog.TimeEntry, meta PageInfo) error {
	return Page(Summarize(entries), entries, meta).Render(out)
}

// Page builds the full report document.
func Page(s *Stats, entries []worklog.TimeEntry, meta PageInfo) g.Node {
	title := "Jira Worklog Report - " + meta.Project
	return g.Group([]g.Node{
		g.Raw("<!DOCTYPE html>"),
		HTML(Lang("en"),
			Head(
				Meta(Charset("UTF-8")),
				Meta(Name("viewport"), Content("width=device-width, initial-scale=1.0")),
				TitleEl(g.Text(title)),
				StyleEl(g.Raw(reportCSS)),
			),
			Body(
				Div(Class("container"),
					header(title, meta),
					statCards(s),
					insightsSection(Analyze(s, entries), meta),
					g.If(len(meta.Failures) > 0, failuresSection(meta.Failures)),
					bucketSection("by-month", "Hours by Year and Month", "Year-Month", s, s.ByMonth, false),
					bucketSection("by-product", "Hours by Product Item", "Product Item", s, s.ByProduct, true),
					bucketSection("by-component", "Hours by Component", "Component", s, s.ByComponent, true),
					bucketSection("by-label", "Hours by Label", "Label", s, s.ByLabel, true),
					bucketSection("by-team", "Hours by Team", "Team", s, s.ByTeam, true),
					bucketSection("by-author", "Hours by Author", "Author", s, s.ByAuthor, true),
					authorDetailsSection(s, entries, meta),
					issueSection(s, meta),
					entriesSection(entries, meta),
					g.If(len(meta.Queries) > 0, queriesSection(meta.Queries)),
				),
			),
		),
	})
}

func header(title string, meta PageInfo) g.Node {
	generated := meta.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}
	return Div(Class("header"),
		H1(g.Text(title)),
		Div(Class("subtitle"), g.Textf("Generated on %s", generated.Format("2006-01-02 15:04:05"))),
		g.If(meta.Timing != nil, timingLine(meta.Timing)),
	)
}

func timingLine(t *Timing) g.Node {
	if t == nil {
		return nil
	}
	return Div(Class("timing"), ID("timing"),
		g.Textf("Execution Time: %.2fs (Collection: %.2fs, Extraction: %.2fs) | %d issues, %d worklogs",
			t.Total.Seconds(), t.Collection.Seconds(), t.Extraction.Seconds(), t.Issues, t.Worklogs),
	)
}

func statCard(label, value string) g.Node {
	return Div(Class("stat-card"),
		Div(Class("number"), g.Text(value)),
		Div(Class("label"), g.Text(label)),
	)
}

func statCards(s *Stats) g.Node {
	return Div(Class("stats-grid"),
		statCard("Total Hours", fmt.Sprintf("%.1f", s.TotalHours())),
		statCard("Total Entries", fmt.Sprint(s.Entries)),
		statCard("Contributors", fmt.Sprint(s.Contributors)),
		statCard("Issues", fmt.Sprint(s.Issues)),
	)
}

func section(id, title string, children ...g.Node) g.Node {
	return Div(Class("section"), ID(id),
		H2(Class("section-title"), g.Text(title)),
		g.Group(children),
	)
}

func bar(percent float64) g.Node {
	return Div(Class("bar"), Div(Style(fmt.Sprintf("width: %.1f%%", percent))))
}

func headRow(cols ...string) g.Node {
	cells := make([]g.Node, 0, len(cols))
	for _, c := range cols {
		cells = append(cells, Th(g.Text(c)))
	}
	return THead(Tr(cells...))
}

func numCell(format string, args ...any) g.Node {
	return Td(Class("num"), g.Textf(format, args...))
}

func bucketSection(id, title, label string, s *Stats, buckets []Bucket, withIssues bool) g.Node {
	cols := []string{label, "Hours", "Entries"}
	if withIssues && label != "Author" {
		cols = append(cols, "Issues")
	}
	cols = append(cols, "% of Total", "Distribution")

	rows := make([]g.Node, 0, len(buckets))
	for _, b := range buckets {
		share := s.Share(b.Seconds)
		rows = append(rows, Tr(
			Td(g.Text(b.Name)),
			numCell("%.2f", b.Hours()),
			numCell("%d", b.Entries),
			g.If(withIssues && label != "Author", numCell("%d", b.Issues)),
			numCell("%.1f%%", share),
			Td(bar(share)),
		))
	}
	return section(id, title, Table(headRow(cols...), TBody(rows...)))
}

func issueLink(key string, meta PageInfo) g.Node {
	if u := meta.browseURL(key); u != "" {
		return A(Class("issue"), Href(u), Target("_blank"), g.Text(key))
	}
	return g.Text(key)
}

func joinOrNone(values []string) string {
	return strings.Join(orNone(values), ", ")
}

func issueSection(s *Stats, meta PageInfo) g.Node {
	rows := make([]g.Node, 0, len(s.ByIssue))
	for _, r := range s.ByIssue {
		share := s.Share(r.Seconds)
		epic := g.Node(g.Text(""))
		if r.EpicLink != "" {
			epic = issueLink(r.EpicLink, meta)
		}
		rows = append(rows, Tr(
			Td(issueLink(r.Key, meta)),
			Td(g.Text(r.Title)),
			Td(g.Text(r.Kind)),
			Td(epic),
			Td(g.Text(r.ProductItem)),
			Td(g.Text(joinOrNone(r.Components))),
			Td(g.Text(joinOrNone(r.Labels))),
			Td(g.Text(r.Team)),
			numCell("%.2f", r.Hours()),
			numCell("%d", r.Entries),
			numCell("%d", r.Contributors),
			numCell("%.1f%%", share),
			Td(bar(share)),
		))
	}
	return section("by-issue", "Hours by Issue",
		Table(
			headRow("Issue Key", "Summary", "Type", "Epic Link", "Product Item", "Component", "Label", "Team",
				"Hours", "Entries", "Contributors", "% of Total", "Distribution"),
			TBody(rows...),
		),
	)
}

func entriesSection(entries []worklog.TimeEntry, meta PageInfo) g.Node {
	rows := make([]g.Node, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, Tr(
			Td(issueLink(e.ItemKey, meta)),
			Td(g.Text(e.Title)),
			Td(g.Text(e.Author)),
			Td(g.Text(e.StartedAt)),
			Td(g.Text(e.DurationText)),
			numCell("%s", FormatHours(e.DurationSeconds)),
			Td(g.Text(e.Comment)),
		))
	}
	return section("entries", "All Worklog Entries",
		Table(
			headRow("Issue", "Summary", "Author", "Started", "Time Spent", "Hours", "Comment"),
			TBody(rows...),
		),
	)
}

func queriesSection(queries []string) g.Node {
	items := make([]g.Node, 0, len(queries))
	for _, q := range queries {
		items = append(items, Li(Code(g.Text(q))))
	}
	return section("queries", "JQL Queries", Ul(items...))
}

func failuresSection(keys []string) g.Node {
	items := make([]g.Node, 0, len(keys))
	for _, k := range keys {
		items = append(items, Li(g.Text(k)))
	}
	return Div(Class("section failures"), ID("failures"),
		H2(Class("section-title"), g.Textf("Issues Not Extracted (%d)", len(keys))),
		Ul(items...),
	)
}

func insight(id, caption string, body ...g.Node) g.Node {
	return Div(Class("insight"), ID(id),
		Div(Class("caption"), g.Text(caption)),
		g.Group(body),
	)
}

func insightValue(format string, args ...any) g.Node {
	return Div(Class("value"), g.Textf(format, args...))
}

func insightNote(format string, args ...any) g.Node {
	return Div(Class("note"), g.Textf(format, args...))
}

func notAvailable() g.Node { return Div(Class("value"), g.Text("N/A")) }

func insightIssue(id, caption string, r *IssueRow, meta PageInfo, value, note g.Node) g.Node {
	return insight(id, caption,
		Div(Strong(issueLink(r.Key, meta)), g.Text(" "+r.Title)),
		value,
		note,
	)
}

func insightsSection(in *Insights, meta PageInfo) g.Node {
	period := insight("insight-period", "Time Period", notAvailable())
	if in.Days > 0 {
		period = insight("insight-period", "Time Period",
			insightValue("%d days", in.Days),
			insightNote("%s to %s", in.FirstDate.Format("2006-01-02"), in.LastDate.Format("2006-01-02")),
		)
	}

	top := insight("insight-top", "Most Time-Consuming Issue", notAvailable())
	if r := in.TopIssue; r != nil {
		top = insightIssue("insight-top", "Most Time-Consuming Issue", r, meta,
			insightValue("%.1f hours", r.Hours()),
			insightNote("%d worklog entries, %d contributors", r.Entries, r.Contributors))
	}
	longest := insight("insight-longest", "Longest Active Issue", notAvailable())
	if r := in.LongestIssue; r != nil {
		longest = insightIssue("insight-longest", "Longest Active Issue", r, meta,
			insightValue("%d days", in.LongestDays),
			insightNote("%.1f hours logged, type %s", r.Hours(), r.Kind))
	}
	collab := insight("insight-collaborative", "Most Collaborative Issue", notAvailable())
	if r := in.MostCollaborative; r != nil {
		collab = insightIssue("insight-collaborative", "Most Collaborative Issue", r, meta,
			insightValue("%d contributors", r.Contributors),
			insightNote("%.1f hours, %d entries", r.Hours(), r.Entries))
	}
	common := insight("insight-type", "Most Common Issue Type", notAvailable())
	if b := in.MostCommonType; b != nil {
		common = insight("insight-type", "Most Common Issue Type",
			insightValue("%s", b.Name),
			insightNote("%d issues, %.1f hours", b.Issues, b.Hours()),
		)
	}

	typeRows := make([]g.Node, 0, len(in.ByType))
	for _, b := range in.ByType {
		typeRows = append(typeRows, Tr(
			Td(g.Text(b.Name)),
			numCell("%d", b.Issues),
			numCell("%.2f", b.Hours()),
		))
	}

	return section("insights", "Insights & Analytics",
		Div(Class("insight-grid"),
			period,
			insight("insight-per-day", "Avg. Hours/Day", insightValue("%.1fh", in.HoursPerDay)),
			insight("insight-per-contributor", "Avg. Hours/Contributor", insightValue("%.1fh", in.HoursPerContributor)),
		),
		Div(Class("insight-grid"), top, longest, collab, common),
		g.If(len(typeRows) > 0, Table(ID("by-type"), headRow("Issue Type", "Issues", "Hours"), TBody(typeRows...))),
	)
}

// authorDetailsSection lists every author's entries, newest first, in a
// collapsible block per author.
func authorDetailsSection(s *Stats, entries []worklog.TimeEntry, meta PageInfo) g.Node {
	byAuthor := make(map[string][]worklog.TimeEntry)
	for _, e := range entries {
		byAuthor[e.Author] = append(byAuthor[e.Author], e)
	}

	blocks := make([]g.Node, 0, len(s.ByAuthor))
	for _, b := range s.ByAuthor {
		list := byAuthor[b.Name]
		sort.SliceStable(list, func(i, j int) bool { return list[i].StartedAt > list[j].StartedAt })

		items := make([]g.Node, 0, len(list))
		for _, e := range list {
			comment := e.Comment
			if comment == "" {
				comment = "No comment"
			}
			epic := ""
			if e.EpicLink != "" {
				epic = ", epic " + e.EpicLink
			}
			day := e.StartedAt
			if len(day) > 10 {
				day = day[:10]
			}
			items = append(items, Div(Class("worklog-entry"),
				Div(Class("worklog-meta"),
					issueLink(e.ItemKey, meta),
					g.Textf(" (%s), %s, %s%s", e.ItemKind, e.DurationText, day, epic),
				),
				Div(Class("worklog-comment"), g.Text(comment)),
			))
		}
		blocks = append(blocks, Details(Class("author"),
			Summary(g.Textf("%s: %.2fh in %d entries", b.Name, b.Hours(), b.Entries)),
			g.Group(items),
		))
	}
	return section("author-details", "Worklogs by Author", g.Group(blocks))
}
