package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
)

func storeImplementations(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fs,
	}
}

func TestStore_Roundtrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			sess := New("4", 3)
			sess.ItemIndex = 1
			sess.Tally = Tally{Passed: 1, Attempts: 2, Hints: 1}

			if err := store.Save(ctx, sess); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			got, err := store.Get(ctx, sess.ID)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.LessonID != "4" || got.ItemIndex != 1 || got.Tally != sess.Tally {
				t.Errorf("Get() = %+v; want %+v", got, sess)
			}

			got.ItemIndex = 9
			again, _ := store.Get(ctx, sess.ID)
			if again.ItemIndex != 1 {
				t.Error("mutating a returned session changed the stored copy")
			}

			if err := store.Delete(ctx, sess.ID); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, err := store.Get(ctx, sess.ID); !errors.Is(err, ErrSessionNotFound) {
				t.Errorf("Get() after Delete error = %v; want ErrSessionNotFound", err)
			}
			if err := store.Delete(ctx, sess.ID); !errors.Is(err, ErrSessionNotFound) {
				t.Errorf("Delete() twice error = %v; want ErrSessionNotFound", err)
			}
		})
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			older := New("1", 3)
			older.CreatedAt = time.Now().Add(-time.Hour)
			newer := New("2", 3)
			store.Save(ctx, older)
			store.Save(ctx, newer)

			list, err := store.List(ctx)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(list) != 2 || list[0].ID != newer.ID {
				t.Errorf("List() = %v; want newest first", list)
			}
		})
	}
}

func TestStore_Attempts(t *testing.T) {
	ctx := context.Background()
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			log := store.(AttemptLog)
			for i := 1; i <= 2; i++ {
				err := log.AppendAttempt(ctx, &Attempt{
					SessionID: "s1",
					LessonID:  "4",
					ItemIndex: 1,
					Number:    i,
					Kind:      domain.KindWriteCode,
					Passed:    i == 2,
					Verdicts:  []domain.Verdict{domain.Passed("multiply(2, 3)")},
				})
				if err != nil {
					t.Fatalf("AppendAttempt() error = %v", err)
				}
			}

			got, err := log.Attempts(ctx, "s1")
			if err != nil {
				t.Fatalf("Attempts() error = %v", err)
			}
			if len(got) != 2 || got[0].Number != 1 || !got[1].Passed {
				t.Errorf("Attempts() = %+v; want two in order", got)
			}
		})
	}
}
