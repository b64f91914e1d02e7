package report

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/worklogs/worklogs/pkg/worklog"
)

var csvHeader = []string{
	"issue_key", "summary", "issue_type", "epic_link", "author", "author_email",
	"time_spent", "time_spent_hours", "started", "comment",
}

// FileName returns "<project>_worklogs_<YYYYMMDD_HHMMSS>.<ext>".
func FileName(project, ext string, at time.Time) string {
	return project + "_worklogs_" + at.Format("20060102_150405") + "." + strings.TrimPrefix(ext, ".")
}

// FormatHours rounds to two decimals without trailing zeros.
func FormatHours(seconds int64) string {
	h := math.Round(float64(seconds)/36) / 100
	return strconv.FormatFloat(h, 'f', -1, 64)
}

// WriteCSV writes one row per entry, in the order given.
func WriteCSV(out io.Writer, entries []worklog.TimeEntry) error {
	w := csv.NewWriter(out)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range entries {
		row := []string{
			e.ItemKey,
			e.Title,
			e.ItemKind,
			e.EpicLink,
			e.Author,
			e.AuthorContact,
			e.DurationText,
			FormatHours(e.DurationSeconds),
			e.StartedAt,
			e.Comment,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
