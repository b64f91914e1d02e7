package worklog

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Jira's default time-tracking settings.
const (
	HoursPerDay = 8
	DaysPerWeek = 5
)

var durationToken = regexp.MustCompile(`^(\d+(?:\.\d+)?)([wdhms])$`)

// ParseDuration converts Jira duration notation ("1w 2d 3h 30m") to seconds.
func ParseDuration(s string) (int64, error) {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty duration")
	}

	var total float64
	for _, f := range fields {
		m := durationToken.FindStringSubmatch(f)
		if m == nil {
			return 0, fmt.Errorf("invalid duration token %q in %q", f, s)
		}
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration token %q in %q: %w", f, s, err)
		}
		total += n * unitSeconds(m[2])
	}
	total = math.Round(total)
	if total >= math.MaxInt64 {
		return 0, fmt.Errorf("duration %q out of range", s)
	}
	return int64(total), nil
}

func unitSeconds(unit string) float64 {
	switch unit {
	case "w":
		return DaysPerWeek * HoursPerDay * 3600
	case "d":
		return HoursPerDay * 3600
	case "h":
		return 3600
	case "m":
		return 60
	default:
		return 1
	}
}
