package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/session"
)

// SessionStore persists quiz sessions and their attempt log in SQLite.
type SessionStore struct {
	db *DB
}

// NewSessionStore creates a SQLite-backed session store.
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

const sessionColumns = `id, lesson_id, item_index, state, attempt, hints_revealed, max_attempts,
	tally_passed, tally_failed, tally_attempts, tally_hints,
	created_at, updated_at, finished_at`

// Save inserts or updates a session.
func (s *SessionStore) Save(ctx context.Context, sess *session.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			item_index=excluded.item_index, state=excluded.state,
			attempt=excluded.attempt, hints_revealed=excluded.hints_revealed,
			max_attempts=excluded.max_attempts,
			tally_passed=excluded.tally_passed, tally_failed=excluded.tally_failed,
			tally_attempts=excluded.tally_attempts, tally_hints=excluded.tally_hints,
			updated_at=excluded.updated_at, finished_at=excluded.finished_at`,
		sess.ID, sess.LessonID, sess.ItemIndex, string(sess.State),
		sess.Attempt, sess.HintsRevealed, sess.MaxAttempts,
		sess.Tally.Passed, sess.Tally.Failed, sess.Tally.Attempts, sess.Tally.Hints,
		sess.CreatedAt.UTC(), sess.UpdatedAt.UTC(), nullTime(sess.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// Get loads a session by id.
func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrSessionNotFound
	}
	return sess, err
}

// Delete removes a session. Its attempts go with it.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

// List returns all sessions, newest first.
func (s *SessionStore) List(ctx context.Context) ([]*session.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC`)
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

// AppendAttempt records one graded submission.
func (s *SessionStore) AppendAttempt(ctx context.Context, a *session.Attempt) error {
	verdicts, err := json.Marshal(a.Verdicts)
	if err != nil {
		return fmt.Errorf("marshal verdicts: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO attempts (session_id, lesson_id, item_index, number, kind,
			submission, passed, verdicts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.SessionID, a.LessonID, a.ItemIndex, a.Number, string(a.Kind),
		a.Submission, boolToInt(a.Passed), string(verdicts), a.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// Attempts returns the attempts of a session in the order they were made.
func (s *SessionStore) Attempts(ctx context.Context, sessionID string) ([]*session.Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, lesson_id, item_index, number, kind, submission,
			passed, verdicts, created_at
		FROM attempts WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	attempts := []*session.Attempt{}
	for rows.Next() {
		var (
			a        session.Attempt
			kind     string
			passed   int
			verdicts string
		)
		if err := rows.Scan(&a.SessionID, &a.LessonID, &a.ItemIndex, &a.Number, &kind,
			&a.Submission, &passed, &verdicts, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Kind = domain.ItemKind(kind)
		a.Passed = passed != 0
		if err := json.Unmarshal([]byte(verdicts), &a.Verdicts); err != nil {
			return nil, fmt.Errorf("unmarshal verdicts: %w", err)
		}
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*session.Session, error) {
	var (
		sess     session.Session
		state    string
		finished sql.NullTime
	)
	err := row.Scan(
		&sess.ID, &sess.LessonID, &sess.ItemIndex, &state,
		&sess.Attempt, &sess.HintsRevealed, &sess.MaxAttempts,
		&sess.Tally.Passed, &sess.Tally.Failed, &sess.Tally.Attempts, &sess.Tally.Hints,
		&sess.CreatedAt, &sess.UpdatedAt, &finished,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.State = session.State(state)
	if finished.Valid {
		t := finished.Time
		sess.FinishedAt = &t
	}
	return &sess, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
