package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/worklogs/worklogs/pkg/worklog"
	_ "modernc.org/sqlite"
)

var ErrRunNotFound = errors.New("run not found")

// Fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS runs (
  id             TEXT PRIMARY KEY,
  project        TEXT NOT NULL,
  jql            TEXT NOT NULL,
  started_at     TEXT NOT NULL,
  finished_at    TEXT NOT NULL,
  issues         INTEGER NOT NULL DEFAULT 0,
  entries        INTEGER NOT NULL DEFAULT 0,
  failures       INTEGER NOT NULL DEFAULT 0,
  total_seconds  INTEGER NOT NULL DEFAULT 0,
  collection_ns  INTEGER NOT NULL DEFAULT 0,
  extraction_ns  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_project ON runs(project, started_at);
CREATE TABLE IF NOT EXISTS time_entries (
  id               INTEGER PRIMARY KEY,
  run_id           TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
  item_key         TEXT NOT NULL,
  item_kind        TEXT NOT NULL,
  epic_link        TEXT,
  title            TEXT,
  components       TEXT,
  labels           TEXT,
  product_item     TEXT,
  team             TEXT,
  entry_id         TEXT,
  author           TEXT NOT NULL,
  author_contact   TEXT,
  duration_text    TEXT,
  duration_seconds INTEGER NOT NULL CHECK (duration_seconds >= 0),
  started_at       TEXT,
  comment          TEXT
);
CREATE INDEX IF NOT EXISTS idx_entries_run ON time_entries(run_id);
CREATE INDEX IF NOT EXISTS idx_entries_item ON time_entries(run_id, item_key);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// SaveRun stores run and its entries in one transaction. An empty run ID
// is replaced with a fresh UUID; the stored run is returned.
func (d *DB) SaveRun(ctx context.Context, run Run, entries []worklog.TimeEntry) (saved Run, err error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.Entries = len(entries)
	run.TotalSeconds = 0
	for _, e := range entries {
		run.TotalSeconds += e.DurationSeconds
	}

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return Run{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs(id, project, jql, started_at, finished_at, issues, entries, failures, total_seconds, collection_ns, extraction_ns) VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.Project, run.JQL, formatTime(run.StartedAt), formatTime(run.FinishedAt), run.Issues, run.Entries, run.Failures, run.TotalSeconds, int64(run.Collection), int64(run.Extraction))
	if err != nil {
		return Run{}, err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO time_entries(run_id, item_key, item_kind, epic_link, title, components, labels, product_item, team, entry_id, author, author_contact, duration_text, duration_seconds, started_at, comment) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return Run{}, err
	}
	defer stmt.Close()

	for _, e := range entries {
		components, err := encodeList(e.Components)
		if err != nil {
			return Run{}, err
		}
		labels, err := encodeList(e.Labels)
		if err != nil {
			return Run{}, err
		}
		if _, err = stmt.ExecContext(ctx, run.ID, e.ItemKey, e.ItemKind, nullIfEmpty(e.EpicLink), e.Title, components, labels,
			e.ProductItem, e.Team, nullIfEmpty(e.EntryID), e.Author, nullIfEmpty(e.AuthorContact), e.DurationText, e.DurationSeconds,
			nullIfEmpty(e.StartedAt), e.Comment); err != nil {
			return Run{}, fmt.Errorf("storing entry %s/%s: %w", e.ItemKey, e.EntryID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return Run{}, err
	}
	return run, nil
}

const runColumns = `id, project, jql, started_at, finished_at, issues, entries, failures, total_seconds, collection_ns, extraction_ns`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r                 Run
		started, finished string
		collNS, extNS     int64
	)
	if err := s.Scan(&r.ID, &r.Project, &r.JQL, &started, &finished, &r.Issues, &r.Entries, &r.Failures, &r.TotalSeconds, &collNS, &extNS); err != nil {
		return Run{}, err
	}
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	r.Collection = time.Duration(collNS)
	r.Extraction = time.Duration(extNS)
	return r, nil
}

// ListRuns returns runs newest first. An empty project lists every project;
// limit <= 0 means no limit.
func (d *DB) ListRuns(ctx context.Context, project string, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []interface{}
	if project != "" {
		query += ` WHERE project = ?`
		args = append(args, project)
	}
	query += ` ORDER BY started_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

func (d *DB) GetRun(ctx context.Context, id string) (Run, error) {
	r, err := scanRun(d.sql.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return r, err
}

// LatestRun returns the most recent run of project.
func (d *DB) LatestRun(ctx context.Context, project string) (Run, error) {
	runs, err := d.ListRuns(ctx, project, 1)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, ErrRunNotFound
	}
	return runs[0], nil
}

// RunEntries returns the entries of a run in insertion order.
func (d *DB) RunEntries(ctx context.Context, runID string) ([]worklog.TimeEntry, error) {
	if _, err := d.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := d.sql.QueryContext(ctx, `
		SELECT item_key, item_kind, epic_link, title, components, labels, product_item, team,
		       entry_id, author, author_contact, duration_text, duration_seconds, started_at, comment
		FROM time_entries WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []worklog.TimeEntry{}
	for rows.Next() {
		var (
			e                                         worklog.TimeEntry
			epic, components, labels, entryID         sql.NullString
			contact, startedAt, title, comment, dtext sql.NullString
			product, team                             sql.NullString
		)
		if err := rows.Scan(&e.ItemKey, &e.ItemKind, &epic, &title, &components, &labels, &product, &team,
			&entryID, &e.Author, &contact, &dtext, &e.DurationSeconds, &startedAt, &comment); err != nil {
			return nil, err
		}
		e.EpicLink = epic.String
		e.Title = title.String
		e.ProductItem = product.String
		e.Team = team.String
		e.EntryID = entryID.String
		e.AuthorContact = contact.String
		e.DurationText = dtext.String
		e.StartedAt = startedAt.String
		e.Comment = comment.String
		if e.Components, err = decodeList(components.String); err != nil {
			return nil, err
		}
		if e.Labels, err = decodeList(labels.String); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteRun removes a run and its entries.
func (d *DB) DeleteRun(ctx context.Context, id string) error {
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM time_entries WHERE run_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return tx.Commit()
}

func (d *DB) GetStats(ctx context.Context) ([]ProjectStats, error) {
	query := `
		SELECT
			project,
			COUNT(*),
			COALESCE(SUM(entries), 0),
			COALESCE(SUM(total_seconds), 0),
			MAX(started_at)
		FROM
			runs
		GROUP BY
			project
		ORDER BY
			project;
	`
	rows, err := d.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []ProjectStats
	for rows.Next() {
		var (
			s    ProjectStats
			last string
		)
		if err := rows.Scan(&s.Project, &s.Runs, &s.Entries, &s.TotalSeconds, &last); err != nil {
			return nil, err
		}
		s.LastRunAt = parseTime(last)
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}

func encodeList(values []string) (interface{}, error) {
	if len(values) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeList(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decoding list %q: %w", s, err)
	}
	return out, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
