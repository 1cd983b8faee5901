package session

import (
	"errors"
	"testing"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateAwaitingAnswer, StateGrading, true},
		{StateGrading, StateFeedback, true},
		{StateFeedback, StateAwaitingAnswer, true},
		{StateFeedback, StateAdvancing, true},
		{StateAdvancing, StateAwaitingAnswer, true},
		{StateAdvancing, StateCompleted, true},
		{StateAwaitingAnswer, StateAbandoned, true},
		{StateAwaitingAnswer, StateFeedback, false},
		{StateGrading, StateCompleted, false},
		{StateAdvancing, StateAbandoned, false},
		{StateCompleted, StateAwaitingAnswer, false},
		{StateAbandoned, StateAwaitingAnswer, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v; want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestSession_Transition(t *testing.T) {
	sess := New("4", 3)

	if sess.State != StateAwaitingAnswer || !sess.Active() {
		t.Fatalf("New() state = %s; want awaiting_answer", sess.State)
	}
	if err := sess.Transition(StateCompleted); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Transition(completed) error = %v; want ErrInvalidTransition", err)
	}
	if err := sess.Transition(StateAbandoned); err != nil {
		t.Fatalf("Transition(abandoned) error = %v", err)
	}
	if sess.Active() || sess.FinishedAt == nil {
		t.Errorf("abandoned session: Active() = %v, FinishedAt = %v", sess.Active(), sess.FinishedAt)
	}
}

func TestSession_AttemptsLeft(t *testing.T) {
	tests := []struct {
		max, used, want int
	}{
		{3, 0, 3},
		{3, 2, 1},
		{3, 3, 0},
		{3, 5, 0},
		{0, 10, domain.Unlimited},
	}
	for _, tt := range tests {
		sess := &Session{MaxAttempts: tt.max, Attempt: tt.used}
		if got := sess.AttemptsLeft(); got != tt.want {
			t.Errorf("AttemptsLeft() max=%d used=%d = %d; want %d", tt.max, tt.used, got, tt.want)
		}
	}
}

func TestSession_NextHint(t *testing.T) {
	item := &domain.MultipleChoice{ItemBase: domain.ItemBase{Hints: []string{"one", "two"}}}
	sess := New("1", 3)

	for _, want := range []string{"one", "two"} {
		got, ok := sess.nextHint(item)
		if !ok || got != want {
			t.Errorf("nextHint() = %q, %v; want %q, true", got, ok, want)
		}
	}
	if _, ok := sess.nextHint(item); ok {
		t.Error("nextHint() past the end = true; want false")
	}
	if sess.HintsRevealed != 2 || sess.Tally.Hints != 2 {
		t.Errorf("HintsRevealed = %d, Tally.Hints = %d; want 2, 2", sess.HintsRevealed, sess.Tally.Hints)
	}
}

func TestSession_Advance(t *testing.T) {
	lesson := &domain.Lesson{ID: "1", Items: []domain.Item{&domain.MultipleChoice{}, &domain.MultipleChoice{}}}
	sess := New("1", 3)
	sess.Attempt, sess.HintsRevealed = 2, 1

	sess.State = StateFeedback
	if err := sess.advance(lesson); err != nil {
		t.Fatalf("advance() error = %v", err)
	}
	if sess.ItemIndex != 1 || sess.State != StateAwaitingAnswer || sess.Attempt != 0 || sess.HintsRevealed != 0 {
		t.Errorf("after advance: %+v; want item 1 awaiting with counters reset", sess)
	}

	sess.State = StateFeedback
	if err := sess.advance(lesson); err != nil {
		t.Fatalf("advance() error = %v", err)
	}
	if sess.State != StateCompleted {
		t.Errorf("State = %s; want completed", sess.State)
	}
}
