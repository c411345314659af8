package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fathomlab/fathom/domain"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection; a pooled second
	// connection would see a different empty database.
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			query TEXT NOT NULL,
			status TEXT NOT NULL,
			stage_index INTEGER NOT NULL DEFAULT 0,
			abort_requested INTEGER NOT NULL DEFAULT 0,
			abort_reason TEXT,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_conversation ON runs(conversation_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			conversation_id TEXT,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT,
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, ts)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			run_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			seq INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			payload TEXT,
			PRIMARY KEY (run_id, seq),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_run ON checkpoints(run_id, ts)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun creates a new run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, conversation_id, query, status, stage_index, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID, run.ConversationID, run.Query, run.Status, run.StageIndex, run.StartedAt)
	return err
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	return s.scanRun(s.db.QueryRowContext(ctx,
		`SELECT run_id, conversation_id, query, status, stage_index, abort_requested, abort_reason, started_at, ended_at, error
		 FROM runs WHERE run_id = ?`, runID))
}

// FindActiveRun returns the most recent non-terminal run for a conversation,
// or nil if none is in flight.
func (s *SQLiteStore) FindActiveRun(ctx context.Context, conversationID string) (*domain.Run, error) {
	return s.scanRun(s.db.QueryRowContext(ctx,
		`SELECT run_id, conversation_id, query, status, stage_index, abort_requested, abort_reason, started_at, ended_at, error
		 FROM runs WHERE conversation_id = ? AND status = ? ORDER BY started_at DESC LIMIT 1`,
		conversationID, domain.RunStatusRunning))
}

func (s *SQLiteStore) scanRun(row *sql.Row) (*domain.Run, error) {
	var run domain.Run
	var abortRequested int
	var abortReason, errData sql.NullString
	var endedAt sql.NullTime
	err := row.Scan(&run.RunID, &run.ConversationID, &run.Query, &run.Status, &run.StageIndex,
		&abortRequested, &abortReason, &run.StartedAt, &endedAt, &errData)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.AbortRequested = abortRequested != 0
	if abortReason.Valid {
		run.AbortReason = abortReason.String
	}
	if endedAt.Valid {
		run.EndedAt = &endedAt.Time
	}
	if errData.Valid {
		run.Error = json.RawMessage(errData.String)
	}
	return &run, nil
}

// UpdateRunStatus updates the status of a run.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status domain.RunStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ? WHERE run_id = ?`,
		status, runID)
	return err
}

// UpdateRunStage updates the current stage index of a run.
func (s *SQLiteStore) UpdateRunStage(ctx context.Context, runID string, stageIndex int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET stage_index = ? WHERE run_id = ?`,
		stageIndex, runID)
	return err
}

// UpdateRunAbort persists the abort flag and reason for a run.
func (s *SQLiteStore) UpdateRunAbort(ctx context.Context, runID string, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET abort_requested = 1, abort_reason = ? WHERE run_id = ?`,
		reason, runID)
	return err
}

// UpdateRunCompleted updates a run to a terminal state.
func (s *SQLiteStore) UpdateRunCompleted(ctx context.Context, runID string, status domain.RunStatus, errData []byte) error {
	now := time.Now()
	var errStr sql.NullString
	if errData != nil {
		errStr = sql.NullString{String: string(errData), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, ended_at = ?, error = ? WHERE run_id = ?`,
		status, now, errStr, runID)
	return err
}

// CreateEvent creates a new event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	payload := ""
	if event.Payload != nil {
		payload = string(event.Payload)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, run_id, conversation_id, ts, type, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		event.EventID, event.RunID, event.ConversationID, event.Ts, event.Type, payload)
	return err
}

// GetEvents retrieves events for a run.
func (s *SQLiteStore) GetEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	query := `SELECT event_id, run_id, conversation_id, ts, type, payload FROM events WHERE run_id = ?`
	args := []interface{}{runID}

	if afterTs > 0 {
		query += ` AND ts > ?`
		args = append(args, afterTs)
	}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		query += fmt.Sprintf(" AND type IN (%s)", strings.Join(placeholders, ","))
	}

	query += ` ORDER BY ts ASC, event_id ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var event domain.Event
		var conversationID, payload sql.NullString
		if err := rows.Scan(&event.EventID, &event.RunID, &conversationID, &event.Ts, &event.Type, &payload); err != nil {
			return nil, err
		}
		if conversationID.Valid {
			event.ConversationID = conversationID.String
		}
		if payload.Valid {
			event.Payload = json.RawMessage(payload.String)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// AppendCheckpoint appends a checkpoint to the run's log. Checkpoints are
// never updated or deleted.
func (s *SQLiteStore) AppendCheckpoint(ctx context.Context, cp *domain.Checkpoint) error {
	payload := ""
	if cp.Payload != nil {
		payload = string(cp.Payload)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (run_id, kind, seq, ts, payload) VALUES (?, ?, ?, ?, ?)`,
		cp.RunID, cp.Kind, cp.Seq, cp.Ts, payload)
	return err
}

// GetCheckpoints retrieves the checkpoint log for a run in append order,
// optionally filtered by kind.
func (s *SQLiteStore) GetCheckpoints(ctx context.Context, runID string, kind string) ([]domain.Checkpoint, error) {
	query := `SELECT run_id, kind, seq, ts, payload FROM checkpoints WHERE run_id = ?`
	args := []interface{}{runID}

	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}

	query += ` ORDER BY ts ASC, seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checkpoints []domain.Checkpoint
	for rows.Next() {
		var cp domain.Checkpoint
		var payload sql.NullString
		if err := rows.Scan(&cp.RunID, &cp.Kind, &cp.Seq, &cp.Ts, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			cp.Payload = json.RawMessage(payload.String)
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}
