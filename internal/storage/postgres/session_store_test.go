package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/session"
)

// openTestStore connects to METEOR_TEST_DATABASE_URL or skips.
func openTestStore(t *testing.T) *SessionStore {
	t.Helper()
	url := os.Getenv("METEOR_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("METEOR_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, url)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(pool.Close)
	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSessionStore(pool)
}

func TestSessionStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	sess := session.New("4", 3)
	sess.Tally = session.Tally{Passed: 2, Attempts: 3}
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	t.Cleanup(func() { store.Delete(context.Background(), sess.ID) })

	loaded, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loaded.LessonID != "4" || loaded.State != session.StateAwaitingAnswer {
		t.Errorf("Get() = %+v; want lesson 4 awaiting answer", loaded)
	}
	if loaded.Tally != sess.Tally {
		t.Errorf("Tally = %+v; want %+v", loaded.Tally, sess.Tally)
	}

	if err := sess.Transition(session.StateAbandoned); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save(update) error = %v", err)
	}
	loaded, _ = store.Get(ctx, sess.ID)
	if loaded.FinishedAt == nil {
		t.Error("FinishedAt = nil; want set")
	}
}

func TestSessionStore_Attempts(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	sess := session.New("4", 3)
	store.Save(ctx, sess)
	t.Cleanup(func() { store.Delete(context.Background(), sess.ID) })

	err := store.AppendAttempt(ctx, &session.Attempt{
		SessionID: sess.ID, LessonID: "4", ItemIndex: 1, Number: 1,
		Kind: domain.KindWriteCode, Submission: "def multiply(a, b): return a * b",
		Passed: true, Verdicts: []domain.Verdict{domain.Passed("multiply(2, 3)")},
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("AppendAttempt() error = %v", err)
	}

	attempts, err := store.Attempts(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Attempts() error = %v", err)
	}
	if len(attempts) != 1 || !attempts[0].Passed {
		t.Fatalf("Attempts() = %+v; want one passing attempt", attempts)
	}
	if attempts[0].Verdicts[0].Probe != "multiply(2, 3)" {
		t.Errorf("Probe = %q; want multiply(2, 3)", attempts[0].Verdicts[0].Probe)
	}
}

func TestSessionStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if _, err := store.Get(ctx, "missing"); err != session.ErrSessionNotFound {
		t.Errorf("Get() error = %v; want ErrSessionNotFound", err)
	}
	if err := store.Delete(ctx, "missing"); err != session.ErrSessionNotFound {
		t.Errorf("Delete() error = %v; want ErrSessionNotFound", err)
	}
}
