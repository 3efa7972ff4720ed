package actions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Receipt is the audit record of one dispatch.
type Receipt struct {
	ID          string    `json:"id"`
	Action      string    `json:"action"`
	WorkspaceID string    `json:"workspaceId"`
	UserID      string    `json:"userId,omitempty"`
	SessionID   string    `json:"sessionId,omitempty"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	DurationMs  int64     `json:"durationMs"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ReceiptStore persists dispatch receipts. Writes are best-effort from the
// router's perspective: a failed write is logged, never surfaced to the
// client.
type ReceiptStore interface {
	Record(ctx context.Context, r *Receipt) error
	List(ctx context.Context, limit int) ([]*Receipt, error)
}

// SQLiteReceiptStore keeps receipts in a local sqlite database.
type SQLiteReceiptStore struct {
	db *sql.DB
}

// NewSQLiteReceiptStore migrates the schema and wraps the handle.
func NewSQLiteReceiptStore(db *sql.DB) (*SQLiteReceiptStore, error) {
	s := &SQLiteReceiptStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate receipts: %w", err)
	}
	return s, nil
}

func (s *SQLiteReceiptStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS action_receipts (
		receipt_id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		workspace_id TEXT NOT NULL,
		user_id TEXT,
		session_id TEXT,
		success INTEGER NOT NULL,
		error TEXT,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteReceiptStore) Record(ctx context.Context, r *Receipt) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO action_receipts
		 (receipt_id, action, workspace_id, user_id, session_id, success, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Action, r.WorkspaceID, r.UserID, r.SessionID,
		boolToInt(r.Success), r.Error, r.DurationMs, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}

func (s *SQLiteReceiptStore) List(ctx context.Context, limit int) ([]*Receipt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT receipt_id, action, workspace_id, user_id, session_id, success, error, duration_ms, created_at
		 FROM action_receipts
		 ORDER BY created_at DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var receipts []*Receipt
	for rows.Next() {
		var r Receipt
		var userID, sessionID, errMsg sql.NullString
		var success int
		if err := rows.Scan(&r.ID, &r.Action, &r.WorkspaceID, &userID, &sessionID,
			&success, &errMsg, &r.DurationMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		r.UserID = userID.String
		r.SessionID = sessionID.String
		r.Error = errMsg.String
		r.Success = success != 0
		receipts = append(receipts, &r)
	}
	return receipts, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
