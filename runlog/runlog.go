// Package runlog records batch runs and per-document events in a local
// SQLite database, giving operators a queryable history across runs.
//
// Writes are non-blocking in spirit: failures are logged via slog and never
// propagate, so a broken history store cannot fail a batch. All methods are
// nil-receiver safe: a nil *Log disables history recording entirely.
//
// Schema (created by Open):
//
//	CREATE TABLE IF NOT EXISTS batch_runs (
//	    run_id           TEXT PRIMARY KEY,
//	    input_dir        TEXT NOT NULL,
//	    output_dir       TEXT NOT NULL,
//	    workers          INTEGER NOT NULL,
//	    strategies       TEXT NOT NULL,
//	    started_at       INTEGER NOT NULL,   -- unix seconds
//	    finished_at      INTEGER,
//	    total_files      INTEGER,
//	    successful_files INTEGER,
//	    failed_files     INTEGER,
//	    total_tables     INTEGER
//	);
//	CREATE TABLE IF NOT EXISTS document_events (
//	    event_id   TEXT PRIMARY KEY,
//	    run_id     TEXT NOT NULL,
//	    filename   TEXT NOT NULL,
//	    status     TEXT NOT NULL,
//	    winner     TEXT NOT NULL,
//	    tables_n   INTEGER NOT NULL,
//	    elapsed_ms INTEGER NOT NULL,
//	    error      TEXT,
//	    created_at INTEGER NOT NULL
//	);
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/tabpipe/idgen"
	"github.com/hazyhaar/tabpipe/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS batch_runs (
    run_id           TEXT PRIMARY KEY,
    input_dir        TEXT NOT NULL,
    output_dir       TEXT NOT NULL,
    workers          INTEGER NOT NULL,
    strategies       TEXT NOT NULL,
    started_at       INTEGER NOT NULL,
    finished_at      INTEGER,
    total_files      INTEGER,
    successful_files INTEGER,
    failed_files     INTEGER,
    total_tables     INTEGER
);
CREATE TABLE IF NOT EXISTS document_events (
    event_id   TEXT PRIMARY KEY,
    run_id     TEXT NOT NULL,
    filename   TEXT NOT NULL,
    status     TEXT NOT NULL,
    winner     TEXT NOT NULL,
    tables_n   INTEGER NOT NULL,
    elapsed_ms INTEGER NOT NULL,
    error      TEXT,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_document_events_run ON document_events (run_id);
`

// Log is the run-history handle.
type Log struct {
	db    *sql.DB
	newID idgen.Generator
	runID idgen.Generator
	evtID idgen.Generator
}

// Option configures a Log.
type Option func(*Log)

// WithIDGenerator sets a custom ID generator for run and event IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(l *Log) { l.newID = gen }
}

// Open opens (creating if needed) the run-history database at path and
// ensures the schema. WAL mode and a busy timeout are applied so concurrent
// worker writes do not trip over each other.
func Open(path string, opts ...Option) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("runlog: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("runlog: open: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("runlog: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("runlog: schema: %w", err)
	}

	l := &Log{db: db, newID: idgen.Default}
	for _, o := range opts {
		o(l)
	}
	l.runID = idgen.Prefixed("run_", l.newID)
	l.evtID = idgen.Prefixed("evt_", l.newID)
	return l, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}

// StartRun inserts a new run row and returns its ID.
func (l *Log) StartRun(ctx context.Context, inputDir, outputDir string, workers int, strategies []string) string {
	if l == nil {
		return ""
	}
	runID := l.runID()
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO batch_runs (run_id, input_dir, output_dir, workers, strategies, started_at)
		VALUES (?,?,?,?,?,?)`,
		runID, inputDir, outputDir, workers, strings.Join(strategies, ","), time.Now().Unix())
	if err != nil {
		slog.Error("runlog: start run failed", "error", err)
	}
	return runID
}

// RecordDocument appends one per-document event to the run.
func (l *Log) RecordDocument(ctx context.Context, runID string, d store.DocSummary) {
	if l == nil || runID == "" {
		return
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO document_events (event_id, run_id, filename, status, winner, tables_n, elapsed_ms, error, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		l.evtID(), runID, d.Filename, d.Status, d.Winner, d.TotalTables,
		int64(d.ElapsedSeconds*1000), d.Error, time.Now().Unix())
	if err != nil {
		slog.Warn("runlog: document event failed", "error", err, "filename", d.Filename)
	}
}

// FinishRun closes the run row with final counters.
func (l *Log) FinishRun(ctx context.Context, runID string, total, succeeded, failed, totalTables int) {
	if l == nil || runID == "" {
		return
	}
	_, err := l.db.ExecContext(ctx, `
		UPDATE batch_runs
		SET finished_at = ?, total_files = ?, successful_files = ?, failed_files = ?, total_tables = ?
		WHERE run_id = ?`,
		time.Now().Unix(), total, succeeded, failed, totalTables, runID)
	if err != nil {
		slog.Error("runlog: finish run failed", "error", err, "run_id", runID)
	}
}

// RunCount returns the number of recorded runs. Used by tests and the CLI
// history listing.
func (l *Log) RunCount(ctx context.Context) (int, error) {
	if l == nil {
		return 0, nil
	}
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM batch_runs`).Scan(&n)
	return n, err
}

// RunInfo is one row of the run history listing.
type RunInfo struct {
	RunID      string
	InputDir   string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Succeeded  int
	Failed     int
	Tables     int
}

// RecentRuns returns up to limit most recent runs, newest first.
func (l *Log) RecentRuns(ctx context.Context, limit int) ([]RunInfo, error) {
	if l == nil {
		return nil, nil
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT run_id, input_dir, started_at,
		       COALESCE(finished_at, 0),
		       COALESCE(total_files, 0), COALESCE(successful_files, 0),
		       COALESCE(failed_files, 0), COALESCE(total_tables, 0)
		FROM batch_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var r RunInfo
		var started, finished int64
		if err := rows.Scan(&r.RunID, &r.InputDir, &started, &finished,
			&r.Total, &r.Succeeded, &r.Failed, &r.Tables); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(started, 0)
		if finished > 0 {
			r.FinishedAt = time.Unix(finished, 0)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
