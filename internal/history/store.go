// Package history persists run reports to a SQLite database and answers
// queries about past runs.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/overture/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// RunSummary is the per-run row of the history listing.
type RunSummary struct {
	RunID     string
	RootTask  string
	StartedAt time.Time
	EndedAt   time.Time
	Success   bool
	TaskCount int
}

// TaskRow is one task's stored outcome within a run. Tasks that never ran
// (skipped, pending at cancellation) have no outcome or timing data.
type TaskRow struct {
	TaskName    string
	State       models.NodeState
	Outcome     models.Outcome
	ExitCode    int
	StartedAt   time.Time
	EndedAt     time.Time
	Diagnostics []models.Diagnostic
}

// Store manages the SQLite database holding run history
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a new Store instance and initializes the database
func NewStore(dbPath string) (*Store, error) {
	// Handle in-memory database
	if dbPath == ":memory:" {
		return openAndInitStore(dbPath)
	}

	// Ensure parent directory exists for file-based databases
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	return openAndInitStore(dbPath)
}

func openAndInitStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Configure SQLite for concurrent access. busy_timeout goes first so
	// subsequent statements wait on locks instead of failing.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}

	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	store := &Store{db: db, dbPath: dbPath}
	if err := execWithRetry(db, schemaSQL, 5, 10*time.Millisecond); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

// execWithRetry executes a SQL statement with exponential backoff retry on
// lock errors.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}

		// Only retry on "database is locked" errors
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}

		lastErr = err
		delay := baseDelay * time.Duration(1<<attempt)
		time.Sleep(delay)
	}
	return lastErr
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveReport stores a completed run report: one runs row plus one
// run_tasks row per node, including nodes that never ran.
func (s *Store) SaveReport(ctx context.Context, report *models.RunReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, root_task, started_at, ended_at, success, task_count)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		report.RunID, report.RootTask, report.StartedAt, report.EndedAt,
		report.Success(), len(report.States),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	names := make([]string, 0, len(report.States))
	for name := range report.States {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		state := report.States[name]
		rec := report.Records[name]

		var outcome sql.NullString
		var exitCode sql.NullInt64
		var startedAt, endedAt sql.NullTime
		diagnosticsJSON := "[]"

		if rec != nil {
			outcome = sql.NullString{String: string(rec.Outcome), Valid: true}
			exitCode = sql.NullInt64{Int64: int64(rec.ExitCode), Valid: true}
			startedAt = sql.NullTime{Time: rec.StartedAt, Valid: true}
			endedAt = sql.NullTime{Time: rec.EndedAt, Valid: true}
			if len(rec.Diagnostics) > 0 {
				data, err := json.Marshal(rec.Diagnostics)
				if err != nil {
					return fmt.Errorf("marshal diagnostics for %s: %w", name, err)
				}
				diagnosticsJSON = string(data)
			}
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_tasks (run_id, task_name, state, outcome, exit_code, started_at, ended_at, diagnostics)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			report.RunID, name, string(state), outcome, exitCode, startedAt, endedAt, diagnosticsJSON,
		)
		if err != nil {
			return fmt.Errorf("insert task row for %s: %w", name, err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first. A non-empty
// rootTask restricts the list to runs of that task. A limit <= 0
// returns everything.
func (s *Store) ListRuns(ctx context.Context, rootTask string, limit int) ([]RunSummary, error) {
	query := `SELECT run_id, root_task, started_at, ended_at, success, task_count
		FROM runs`
	args := []any{}
	if rootTask != "" {
		query += " WHERE root_task = ?"
		args = append(args, rootTask)
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var sum RunSummary
		if err := rows.Scan(&sum.RunID, &sum.RootTask, &sum.StartedAt, &sum.EndedAt, &sum.Success, &sum.TaskCount); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// GetRun returns one run's summary and per-task rows.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunSummary, []TaskRow, error) {
	var sum RunSummary
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, root_task, started_at, ended_at, success, task_count
		 FROM runs WHERE run_id = ?`, runID,
	).Scan(&sum.RunID, &sum.RootTask, &sum.StartedAt, &sum.EndedAt, &sum.Success, &sum.TaskCount)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("query run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT task_name, state, outcome, exit_code, started_at, ended_at, diagnostics
		 FROM run_tasks WHERE run_id = ? ORDER BY task_name`, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("query task rows: %w", err)
	}
	defer rows.Close()

	var tasks []TaskRow
	for rows.Next() {
		var row TaskRow
		var state string
		var outcome sql.NullString
		var exitCode sql.NullInt64
		var startedAt, endedAt sql.NullTime
		var diagnosticsJSON string

		if err := rows.Scan(&row.TaskName, &state, &outcome, &exitCode, &startedAt, &endedAt, &diagnosticsJSON); err != nil {
			return nil, nil, fmt.Errorf("scan task row: %w", err)
		}

		row.State = models.NodeState(state)
		row.Outcome = models.Outcome(outcome.String)
		row.ExitCode = int(exitCode.Int64)
		row.StartedAt = startedAt.Time
		row.EndedAt = endedAt.Time
		if diagnosticsJSON != "" && diagnosticsJSON != "[]" {
			if err := json.Unmarshal([]byte(diagnosticsJSON), &row.Diagnostics); err != nil {
				return nil, nil, fmt.Errorf("unmarshal diagnostics for %s: %w", row.TaskName, err)
			}
		}
		tasks = append(tasks, row)
	}
	return &sum, tasks, rows.Err()
}

// Prune deletes runs older than keepDays and, beyond that, the oldest
// runs past maxRuns. Zero disables either limit. Returns the number of
// runs removed.
func (s *Store) Prune(ctx context.Context, keepDays, maxRuns int) (int64, error) {
	var removed int64

	if keepDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -keepDays)
		res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff)
		if err != nil {
			return removed, fmt.Errorf("prune by age: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}

	if maxRuns > 0 {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM runs WHERE run_id NOT IN (
				SELECT run_id FROM runs ORDER BY started_at DESC LIMIT ?
			)`, maxRuns)
		if err != nil {
			return removed, fmt.Errorf("prune by count: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}

	return removed, nil
}
