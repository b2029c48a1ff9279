package hitl

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Status is the lifecycle state of an approval request. Transitions are
// monotonic: pending moves to exactly one terminal state, never back.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusModified Status = "modified"
	StatusTimedOut Status = "timed_out"
)

var (
	// ErrRequestNotFound is returned when no request has the given id.
	ErrRequestNotFound = errors.New("hitl: request not found")

	// ErrAlreadyDecided is returned when a request has already left the
	// pending state. Guarantees at-most-once resumption.
	ErrAlreadyDecided = errors.New("hitl: request already decided")
)

// Request is a persisted approval record. Records are never deleted;
// the table is the audit trail of every gated workflow.
type Request struct {
	ID             string          `json:"id"`
	WorkflowName   string          `json:"workflow_name"`
	ToolName       string          `json:"tool_name"`
	OriginalParams map[string]any  `json:"original_params"`
	Context        string          `json:"context,omitempty"`
	Status         Status          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
	DecidedBy      string          `json:"decided_by,omitempty"`
	DecidedAt      time.Time       `json:"decided_at,omitzero"`
	WorkflowResult json.RawMessage `json:"workflow_result,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS hitl_requests (
	id              TEXT PRIMARY KEY,
	workflow_name   TEXT NOT NULL,
	tool_name       TEXT NOT NULL,
	original_params TEXT NOT NULL,
	context         TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'pending',
	created_at      TEXT NOT NULL,
	expires_at      TEXT NOT NULL,
	decided_by      TEXT NOT NULL DEFAULT '',
	decided_at      TEXT NOT NULL DEFAULT '',
	workflow_result TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_hitl_requests_status ON hitl_requests(status);
`

// Store persists approval requests in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenStore opens (creating if needed) the request database at path.
func OpenStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("hitl: creating data dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("hitl: opening database: %w", err)
	}

	// modernc sqlite is single-writer; serialize access at the pool level.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("hitl: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("hitl: applying schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create persists a fresh pending request.
func (s *Store) Create(ctx context.Context, req Request) error {
	params, err := json.Marshal(req.OriginalParams)
	if err != nil {
		return fmt.Errorf("hitl: marshal params: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO hitl_requests (id, workflow_name, tool_name, original_params, context, status, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.WorkflowName, req.ToolName,
		string(params), req.Context, string(StatusPending),
		req.CreatedAt.UTC().Format(time.RFC3339Nano),
		req.ExpiresAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("hitl: insert request: %w", err)
	}
	return nil
}

// Get returns a request by id.
func (s *Store) Get(ctx context.Context, id string) (Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow_name, tool_name, original_params, context, status,
		       created_at, expires_at, decided_by, decided_at, workflow_result
		FROM hitl_requests WHERE id = ?`, id)
	return scanRequest(row)
}

// Transition moves a pending request to a terminal status. Returns
// ErrAlreadyDecided when the request exists but already left pending —
// this conditional update is what enforces at-most-once resumption.
func (s *Store) Transition(ctx context.Context, id string, to Status, decidedBy string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE hitl_requests
		SET status = ?, decided_by = ?, decided_at = ?
		WHERE id = ? AND status = ?`,
		string(to), decidedBy, time.Now().UTC().Format(time.RFC3339Nano),
		id, string(StatusPending),
	)
	if err != nil {
		return fmt.Errorf("hitl: transition request: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("hitl: rows affected: %w", err)
	}
	if n == 0 {
		if _, err := s.Get(ctx, id); errors.Is(err, ErrRequestNotFound) {
			return ErrRequestNotFound
		}
		return ErrAlreadyDecided
	}
	return nil
}

// SetResult stores the workflow output produced by a resumed request.
func (s *Store) SetResult(ctx context.Context, id string, result []byte) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE hitl_requests SET workflow_result = ? WHERE id = ?`,
		string(result), id,
	)
	if err != nil {
		return fmt.Errorf("hitl: set result: %w", err)
	}
	return nil
}

// SweepExpired marks every pending request past its expiry as timed out
// and returns how many were swept.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE hitl_requests
		SET status = ?, decided_at = ?
		WHERE status = ? AND expires_at < ?`,
		string(StatusTimedOut),
		now.UTC().Format(time.RFC3339Nano),
		string(StatusPending),
		now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("hitl: sweep expired: %w", err)
	}
	return res.RowsAffected()
}

// CountPending returns the number of requests still awaiting a decision.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM hitl_requests WHERE status = ?`,
		string(StatusPending),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("hitl: count pending: %w", err)
	}
	return count, nil
}

func scanRequest(row *sql.Row) (Request, error) {
	var (
		req                            Request
		params, status                 string
		createdAt, expiresAt, decided  string
		workflowResult                 string
	)

	err := row.Scan(&req.ID, &req.WorkflowName, &req.ToolName, &params, &req.Context, &status,
		&createdAt, &expiresAt, &req.DecidedBy, &decided, &workflowResult)
	if errors.Is(err, sql.ErrNoRows) {
		return Request{}, ErrRequestNotFound
	}
	if err != nil {
		return Request{}, fmt.Errorf("hitl: scan request: %w", err)
	}

	req.Status = Status(status)
	if params != "" {
		if err := json.Unmarshal([]byte(params), &req.OriginalParams); err != nil {
			return Request{}, fmt.Errorf("hitl: unmarshal params: %w", err)
		}
	}
	if workflowResult != "" {
		req.WorkflowResult = json.RawMessage(workflowResult)
	}

	if req.CreatedAt, err = parseTime(createdAt); err != nil {
		return Request{}, err
	}
	if req.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return Request{}, err
	}
	if decided != "" {
		if req.DecidedAt, err = parseTime(decided); err != nil {
			return Request{}, err
		}
	}

	return req, nil
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("hitl: parse timestamp %q: %w", raw, err)
	}
	return t, nil
}
