package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/session"
)

// SessionStore implements session.Store and session.AttemptLog on PostgreSQL
type SessionStore struct {
	pool *pgxpool.Pool
}

var (
	_ session.Store      = (*SessionStore)(nil)
	_ session.AttemptLog = (*SessionStore)(nil)
)

// NewSessionStore creates a new PostgreSQL session store
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

const selectSession = `
	SELECT id, lesson_id, item_index, state, attempt, hints_revealed,
		max_attempts, tally, created_at, updated_at, finished_at
	FROM meteor_sessions`

// Save inserts or updates a session
func (r *SessionStore) Save(ctx context.Context, sess *session.Session) error {
	query := `
		INSERT INTO meteor_sessions (id, lesson_id, item_index, state, attempt,
			hints_revealed, max_attempts, tally, created_at, updated_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			item_index = EXCLUDED.item_index, state = EXCLUDED.state,
			attempt = EXCLUDED.attempt, hints_revealed = EXCLUDED.hints_revealed,
			max_attempts = EXCLUDED.max_attempts, tally = EXCLUDED.tally,
			updated_at = EXCLUDED.updated_at, finished_at = EXCLUDED.finished_at
	`
	_, err := r.pool.Exec(ctx, query,
		sess.ID, sess.LessonID, sess.ItemIndex, string(sess.State), sess.Attempt,
		sess.HintsRevealed, sess.MaxAttempts, sess.Tally,
		sess.CreatedAt, sess.UpdatedAt, sess.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID
func (r *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	sess, err := scanSession(r.pool.QueryRow(ctx, selectSession+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Delete removes a session and its attempts
func (r *SessionStore) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM meteor_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

// List returns every session, newest first
func (r *SessionStore) List(ctx context.Context) ([]*session.Session, error) {
	rows, err := r.pool.Query(ctx, selectSession+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// AppendAttempt records a graded submission
func (r *SessionStore) AppendAttempt(ctx context.Context, a *session.Attempt) error {
	query := `
		INSERT INTO meteor_attempts (session_id, lesson_id, item_index, number,
			kind, submission, passed, verdicts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		a.SessionID, a.LessonID, a.ItemIndex, a.Number, string(a.Kind),
		a.Submission, a.Passed, a.Verdicts, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// Attempts lists the attempts of a session in submission order
func (r *SessionStore) Attempts(ctx context.Context, sessionID string) ([]*session.Attempt, error) {
	query := `
		SELECT session_id, lesson_id, item_index, number, kind, submission,
			passed, verdicts, created_at
		FROM meteor_attempts WHERE session_id = $1 ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	attempts := []*session.Attempt{}
	for rows.Next() {
		a := &session.Attempt{}
		if err := rows.Scan(&a.SessionID, &a.LessonID, &a.ItemIndex, &a.Number, &a.Kind,
			&a.Submission, &a.Passed, &a.Verdicts, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func scanSession(row pgx.Row) (*session.Session, error) {
	sess := &session.Session{}
	err := row.Scan(
		&sess.ID, &sess.LessonID, &sess.ItemIndex, &sess.State, &sess.Attempt,
		&sess.HintsRevealed, &sess.MaxAttempts, &sess.Tally,
		&sess.CreatedAt, &sess.UpdatedAt, &sess.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return sess, nil
}
