package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// WriteSummary prints totals and the per-author breakdown.
func WriteSummary(out io.Writer, s *Stats) error {
	if s.Entries == 0 {
		_, err := fmt.Fprintln(out, "No worklogs to summarize")
		return err
	}

	rule := strings.Repeat("=", 60)
	fmt.Fprintln(out)
	fmt.Fprintln(out, rule)
	fmt.Fprintln(out, "SUMMARY REPORT")
	fmt.Fprintln(out, rule)
	fmt.Fprintf(out, "Total hours logged: %.2f\n", s.TotalHours())
	fmt.Fprintf(out, "Total worklog entries: %d\n", s.Entries)
	fmt.Fprintf(out, "Issues: %d, contributors: %d\n\n", s.Issues, s.Contributors)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "AUTHOR\tHOURS\tENTRIES\t")
	for _, b := range s.ByAuthor {
		fmt.Fprintf(w, "%s\t%.2f\t%d\t\n", b.Name, b.Hours(), b.Entries)
	}
	fmt.Fprintln(w, " \t \t \t")
	fmt.Fprintf(w, "TOTAL\t%.2f\t%d\t\n", s.TotalHours(), s.Entries)
	return w.Flush()
}
