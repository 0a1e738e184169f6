package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_session_store.go -package=mocks ragbot/internal/storage SessionStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
)

// SessionStore defines the interface for chat session storage operations.
type SessionStore interface {
	// BeginTurn starts a new turn and makes it the session's current one.
	// A still-pending previous turn is marked superseded.
	BeginTurn(ctx context.Context, sessionID, question string) (*Turn, error)
	// CompleteTurn stores the answer only if the turn is still the session's current,
	// pending turn. It reports whether the answer was stored.
	CompleteTurn(ctx context.Context, sessionID, turnID, answer, status string) (bool, error)
	// ListTurns returns the session's latest turns, oldest first. limit <= 0 returns all.
	ListTurns(ctx context.Context, sessionID string, limit int) ([]Turn, error)
}

// SessionRepo provides methods for session operations.
// It implements the SessionStore interface.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a new SessionRepo.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// BeginTurn starts a new turn and makes it the session's current one.
func (r *SessionRepo) BeginTurn(ctx context.Context, sessionID, question string) (*Turn, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id) VALUES (?) ON CONFLICT (id) DO NOTHING`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE turns SET status = ? WHERE session_id = ? AND status = ?`,
		TurnSuperseded, sessionID, TurnPending,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to supersede pending turns: %w", err)
	}

	turn := &Turn{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Question:  question,
		Status:    TurnPending,
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO turns (id, session_id, question, status) VALUES (?, ?, ?, ?)`,
		turn.ID, turn.SessionID, turn.Question, turn.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert turn: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET current_turn_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		turn.ID, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	var createdAt string
	err = tx.QueryRowContext(ctx, `SELECT created_at FROM turns WHERE id = ?`, turn.ID).Scan(&createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to read turn: %w", err)
	}
	if turn.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at timestamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit turn: %w", err)
	}
	return turn, nil
}

// CompleteTurn stores the answer if turnID is still the session's current, pending turn.
func (r *SessionRepo) CompleteTurn(ctx context.Context, sessionID, turnID, answer, status string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE turns SET answer = ?, status = ?, completed_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND session_id = ? AND status = ?
		 AND id = (SELECT current_turn_id FROM sessions WHERE id = ?)`,
		answer, status, turnID, sessionID, TurnPending, sessionID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete turn: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check completed turn: %w", err)
	}
	return n == 1, nil
}

// ListTurns returns the session's latest turns, oldest first.
func (r *SessionRepo) ListTurns(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, question, answer, status, created_at, completed_at FROM (
			SELECT rowid AS seq, * FROM turns WHERE session_id = ? ORDER BY rowid DESC LIMIT ?
		) ORDER BY seq`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var turns []Turn
	for rows.Next() {
		var turn Turn
		var answer, completedAt sql.NullString
		var createdAt string
		if err := rows.Scan(&turn.ID, &turn.SessionID, &turn.Question, &answer, &turn.Status, &createdAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Answer = answer.String
		if turn.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at timestamp: %w", err)
		}
		if completedAt.Valid {
			t, err := parseTimestamp(completedAt.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse completed_at timestamp: %w", err)
			}
			turn.CompletedAt = &t
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turns: %w", err)
	}
	if len(turns) == 0 {
		return nil, ErrNotFound
	}
	return turns, nil
}
