package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/session"
)

func TestSessionStore_Save_Get(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(openTestDB(t))

	sess := session.New("4", 3)
	sess.ItemIndex = 1
	sess.Attempt = 2
	sess.HintsRevealed = 1
	sess.Tally = session.Tally{Passed: 1, Failed: 2, Attempts: 3, Hints: 1}
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loaded.LessonID != "4" {
		t.Errorf("LessonID = %q; want 4", loaded.LessonID)
	}
	if loaded.State != session.StateAwaitingAnswer {
		t.Errorf("State = %q; want %q", loaded.State, session.StateAwaitingAnswer)
	}
	if loaded.ItemIndex != 1 || loaded.Attempt != 2 || loaded.HintsRevealed != 1 {
		t.Errorf("cursor = (%d, %d, %d); want (1, 2, 1)", loaded.ItemIndex, loaded.Attempt, loaded.HintsRevealed)
	}
	if loaded.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d; want 3", loaded.MaxAttempts)
	}
	if loaded.Tally != sess.Tally {
		t.Errorf("Tally = %+v; want %+v", loaded.Tally, sess.Tally)
	}
	if loaded.FinishedAt != nil {
		t.Errorf("FinishedAt = %v; want nil", loaded.FinishedAt)
	}
}

func TestSessionStore_Update(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(openTestDB(t))

	sess := session.New("1", 0)
	store.Save(ctx, sess)

	if err := sess.Transition(session.StateAbandoned); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save(update) error = %v", err)
	}

	loaded, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loaded.State != session.StateAbandoned {
		t.Errorf("State = %q; want %q", loaded.State, session.StateAbandoned)
	}
	if loaded.FinishedAt == nil {
		t.Error("FinishedAt = nil; want set")
	}
}

func TestSessionStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(openTestDB(t))

	if _, err := store.Get(ctx, "nonexistent"); err != session.ErrSessionNotFound {
		t.Errorf("Get() error = %v; want ErrSessionNotFound", err)
	}
	if err := store.Delete(ctx, "nonexistent"); err != session.ErrSessionNotFound {
		t.Errorf("Delete() error = %v; want ErrSessionNotFound", err)
	}
}

func TestSessionStore_List(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(openTestDB(t))

	older := session.New("1", 3)
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := session.New("2", 3)
	store.Save(ctx, older)
	store.Save(ctx, newer)

	sessions, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("List() returned %d; want 2", len(sessions))
	}
	if sessions[0].ID != newer.ID {
		t.Errorf("List()[0] = %s; want newest %s", sessions[0].ID, newer.ID)
	}
}

func TestSessionStore_Attempts(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(openTestDB(t))

	sess := session.New("4", 3)
	store.Save(ctx, sess)

	first := &session.Attempt{
		SessionID: sess.ID, LessonID: "4", ItemIndex: 1, Number: 1,
		Kind: domain.KindWriteCode, Submission: "def multiply(a, b): return a + b",
		Verdicts: []domain.Verdict{
			domain.Passed("multiply(2, 2)"),
			domain.Failed("multiply(2, 3)", "5", "6"),
		},
		CreatedAt: time.Now(),
	}
	second := &session.Attempt{
		SessionID: sess.ID, LessonID: "4", ItemIndex: 1, Number: 2,
		Kind: domain.KindWriteCode, Submission: "def multiply(a, b): return a * b",
		Passed: true, Verdicts: []domain.Verdict{domain.Passed("multiply(2, 3)")},
		CreatedAt: time.Now(),
	}
	for _, a := range []*session.Attempt{first, second} {
		if err := store.AppendAttempt(ctx, a); err != nil {
			t.Fatalf("AppendAttempt() error = %v", err)
		}
	}

	attempts, err := store.Attempts(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Attempts() error = %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("Attempts() returned %d; want 2", len(attempts))
	}
	if attempts[0].Number != 1 || attempts[0].Passed {
		t.Errorf("Attempts()[0] = %+v; want failing attempt 1", attempts[0])
	}
	if got := attempts[0].Verdicts[1]; got.Actual != "5" || got.Expected != "6" {
		t.Errorf("verdict = %+v; want actual 5, expected 6", got)
	}
	if attempts[1].Kind != domain.KindWriteCode || !attempts[1].Passed {
		t.Errorf("Attempts()[1] = %+v; want passing write_code attempt", attempts[1])
	}
}

func TestSessionStore_DeleteCascadesAttempts(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(openTestDB(t))

	sess := session.New("1", 3)
	store.Save(ctx, sess)
	store.AppendAttempt(ctx, &session.Attempt{
		SessionID: sess.ID, LessonID: "1", Number: 1,
		Kind: domain.KindMultipleChoice, Submission: "a", CreatedAt: time.Now(),
	})

	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	attempts, err := store.Attempts(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Attempts() error = %v", err)
	}
	if len(attempts) != 0 {
		t.Errorf("Attempts() after delete returned %d; want 0", len(attempts))
	}
}
