package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// StageRun represents a row in the stage_runs table.
type StageRun struct {
	ID          int    `json:"id"`
	RunID       string `json:"run_id"`
	Root        string `json:"root"`
	Stage       string `json:"stage"`
	Trigger     string `json:"trigger"`
	Args        string `json:"args,omitempty"`
	ExitCode    *int   `json:"exit_code,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
	Cancelled   bool   `json:"cancelled"`
	Error       string `json:"error,omitempty"`
	StderrBytes int    `json:"stderr_bytes"`
	Timestamp   string `json:"timestamp"`
}

// LogStageRun inserts one stage invocation. A nil exit code means the
// stage never produced one (spawn failure or cancellation).
func (d *DB) LogStageRun(r StageRun) error {
	var errText sql.NullString
	if r.Error != "" {
		errText = sql.NullString{String: r.Error, Valid: true}
	}
	_, err := d.conn.Exec(
		`INSERT INTO stage_runs (run_id, root, stage, trigger_kind, args, exit_code, duration_ms, cancelled, error, stderr_bytes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Root, r.Stage, r.Trigger, r.Args, r.ExitCode, r.DurationMs, r.Cancelled, errText, r.StderrBytes,
	)
	if err != nil {
		return fmt.Errorf("log stage run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit stage runs, newest first.
func (d *DB) RecentRuns(limit int) ([]StageRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.conn.Query(
		`SELECT id, run_id, root, stage, trigger_kind, args, exit_code, duration_ms, cancelled, error, stderr_bytes, timestamp
		 FROM stage_runs ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query stage runs: %w", err)
	}
	defer rows.Close()
	return scanStageRuns(rows)
}

// RunStages returns the stage runs of one pipeline run in execution order.
func (d *DB) RunStages(runID string) ([]StageRun, error) {
	rows, err := d.conn.Query(
		`SELECT id, run_id, root, stage, trigger_kind, args, exit_code, duration_ms, cancelled, error, stderr_bytes, timestamp
		 FROM stage_runs WHERE run_id = ? ORDER BY id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query run stages: %w", err)
	}
	defer rows.Close()
	return scanStageRuns(rows)
}

func scanStageRuns(rows *sql.Rows) ([]StageRun, error) {
	var runs []StageRun
	for rows.Next() {
		var r StageRun
		var args, errText sql.NullString
		var exitCode, duration sql.NullInt64
		if err := rows.Scan(&r.ID, &r.RunID, &r.Root, &r.Stage, &r.Trigger, &args, &exitCode, &duration,
			&r.Cancelled, &errText, &r.StderrBytes, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan stage run: %w", err)
		}
		r.Args = args.String
		r.Error = errText.String
		r.DurationMs = duration.Int64
		if exitCode.Valid {
			v := int(exitCode.Int64)
			r.ExitCode = &v
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// UpsertTests records discovered test names for a root, refreshing
// last_seen on names already known.
func (d *DB) UpsertTests(root string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO tests (root, name) VALUES (?, ?)
		 ON CONFLICT(root, name) DO UPDATE SET last_seen = datetime('now')`,
	)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		if _, err := stmt.Exec(root, name); err != nil {
			return fmt.Errorf("upsert test %q: %w", name, err)
		}
	}
	return tx.Commit()
}

// ListTests returns the test names known for a root in discovery order.
func (d *DB) ListTests(root string) ([]string, error) {
	rows, err := d.conn.Query(
		`SELECT name FROM tests WHERE root = ? ORDER BY first_seen ASC, rowid ASC`,
		root,
	)
	if err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan test: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
