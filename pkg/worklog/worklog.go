package worklog

// Metadata is the per-issue context attached to every time entry of that issue.
type Metadata struct {
	IssueType   string   `json:"issue_type"`
	EpicLink    string   `json:"epic_link"`
	Summary     string   `json:"summary"`
	Components  []string `json:"components"`
	Labels      []string `json:"labels"`
	ProductItem string   `json:"product_item"`
	Team        string   `json:"team"`
}

const (
	UnknownIssueType = "Unknown"
	NoneValue        = "None"
)

// WithDefaults fills the placeholders used for missing issue type, product
// item and team.
func (m Metadata) WithDefaults() Metadata {
	if m.IssueType == "" {
		m.IssueType = UnknownIssueType
	}
	if m.ProductItem == "" {
		m.ProductItem = NoneValue
	}
	if m.Team == "" {
		m.Team = NoneValue
	}
	return m
}

// Worklog is a single time-tracking entry as reported by the tracker.
type Worklog struct {
	ID               string  `json:"id"`
	Author           string  `json:"author"`
	AuthorEmail      string  `json:"author_email"`
	TimeSpent        string  `json:"time_spent"`
	TimeSpentSeconds int64   `json:"time_spent_seconds"`
	Started          string  `json:"started"`
	Comment          Comment `json:"comment"`
}

// TimeEntry is the flat record handed to report renderers.
type TimeEntry struct {
	ItemKey         string   `json:"item_key"`
	ItemKind        string   `json:"item_kind"`
	EpicLink        string   `json:"epic_link"`
	Title           string   `json:"title"`
	Components      []string `json:"components"`
	Labels          []string `json:"labels"`
	ProductItem     string   `json:"product_item"`
	Team            string   `json:"team"`
	EntryID         string   `json:"entry_id"`
	Author          string   `json:"author"`
	AuthorContact   string   `json:"author_contact"`
	DurationText    string   `json:"duration_text"`
	DurationSeconds int64    `json:"duration_seconds"`
	StartedAt       string   `json:"started_at"`
	Comment         string   `json:"comment"`
}

// Hours returns the logged duration in hours.
func (e TimeEntry) Hours() float64 {
	return float64(e.DurationSeconds) / 3600
}

// YearMonth returns the YYYY-MM prefix of StartedAt, or "" when unknown.
func (e TimeEntry) YearMonth() string {
	if len(e.StartedAt) < 7 {
		return ""
	}
	return e.StartedAt[:7]
}

// NewTimeEntry combines issue metadata and one worklog into a record.
// The duration comes from the reported seconds when positive, otherwise it
// is parsed from the textual duration. It is never negative.
func NewTimeEntry(key string, md Metadata, wl Worklog) TimeEntry {
	md = md.WithDefaults()

	seconds := wl.TimeSpentSeconds
	if seconds <= 0 && wl.TimeSpent != "" {
		if parsed, err := ParseDuration(wl.TimeSpent); err == nil {
			seconds = parsed
		}
	}
	if seconds < 0 {
		seconds = 0
	}

	author := wl.Author
	if author == "" {
		author = "Unknown"
	}

	return TimeEntry{
		ItemKey:         key,
		ItemKind:        md.IssueType,
		EpicLink:        md.EpicLink,
		Title:           md.Summary,
		Components:      md.Components,
		Labels:          md.Labels,
		ProductItem:     md.ProductItem,
		Team:            md.Team,
		EntryID:         wl.ID,
		Author:          author,
		AuthorContact:   wl.AuthorEmail,
		DurationText:    wl.TimeSpent,
		DurationSeconds: seconds,
		StartedAt:       wl.Started,
		Comment:         wl.Comment.Text(),
	}
}
