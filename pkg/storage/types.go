package storage

import "time"

// Run is one extraction stored in the history database.
type Run struct {
	ID           string        `json:"id"`
	Project      string        `json:"project"`
	JQL          string        `json:"jql"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Issues       int           `json:"issues"`
	Entries      int           `json:"entries"`
	Failures     int           `json:"failures"`
	TotalSeconds int64         `json:"total_seconds"`
	Collection   time.Duration `json:"collection_ns"`
	Extraction   time.Duration `json:"extraction_ns"`
}

func (r Run) TotalHours() float64 { return float64(r.TotalSeconds) / 3600 }

// ProjectStats aggregates every stored run of a project.
type ProjectStats struct {
	Project      string
	Runs         int
	Entries      int
	TotalSeconds int64
	LastRunAt    time.Time
}
