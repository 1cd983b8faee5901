package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
)

// State is a node of the session state machine
type State string

const (
	StateAwaitingAnswer State = "awaiting_answer"
	StateGrading        State = "grading"
	StateFeedback       State = "feedback"
	StateAdvancing      State = "advancing"
	StateCompleted      State = "completed"
	StateAbandoned      State = "abandoned"
)

// ErrInvalidTransition is returned for a move the state machine does not allow
var ErrInvalidTransition = errors.New("invalid session state transition")

var transitions = map[State][]State{
	StateAwaitingAnswer: {StateGrading, StateAbandoned},
	StateGrading:        {StateFeedback, StateAwaitingAnswer, StateAbandoned},
	StateFeedback:       {StateAwaitingAnswer, StateAdvancing, StateAbandoned},
	StateAdvancing:      {StateAwaitingAnswer, StateCompleted},
}

// CanTransition reports whether from -> to is a legal move
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves the state
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAbandoned
}

// Tally accumulates progress over a lesson
type Tally struct {
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
	Attempts int `json:"attempts"`
	Hints    int `json:"hints"`
}

// Session is one learner walking through one lesson
type Session struct {
	ID        string `json:"id"`
	LessonID  string `json:"lesson_id"`
	ItemIndex int    `json:"item_index"`
	State     State  `json:"state"`

	// Attempt counts the charged attempts on the current item.
	Attempt int `json:"attempt"`
	// HintsRevealed is the hint cursor of the current item.
	HintsRevealed int `json:"hints_revealed"`
	// MaxAttempts caps attempts per item, 0 for unlimited.
	MaxAttempts int `json:"max_attempts"`

	Tally Tally `json:"tally"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// New creates a session waiting on the first item of a lesson
func New(lessonID string, maxAttempts int) *Session {
	now := time.Now()
	return &Session{
		ID:          uuid.New().String(),
		LessonID:    lessonID,
		State:       StateAwaitingAnswer,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Transition moves the session to another state
func (s *Session) Transition(to State) error {
	if !CanTransition(s.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, to)
	}
	now := time.Now()
	s.State = to
	s.UpdatedAt = now
	if to.Terminal() {
		s.FinishedAt = &now
	}
	return nil
}

// Active reports whether the session still accepts input
func (s *Session) Active() bool {
	return !s.State.Terminal()
}

// AttemptsLeft returns the attempts remaining on the current item or
// domain.Unlimited.
func (s *Session) AttemptsLeft() int {
	if s.MaxAttempts <= 0 {
		return domain.Unlimited
	}
	if left := s.MaxAttempts - s.Attempt; left > 0 {
		return left
	}
	return 0
}

// nextHint advances the hint cursor of the current item. It returns false
// once every hint has been disclosed.
func (s *Session) nextHint(item domain.Item) (string, bool) {
	hint, ok := item.Common().Hint(s.HintsRevealed)
	if !ok {
		return "", false
	}
	s.HintsRevealed++
	s.Tally.Hints++
	return hint, true
}

// advance moves to the next item, or completes the lesson
func (s *Session) advance(lesson *domain.Lesson) error {
	if err := s.Transition(StateAdvancing); err != nil {
		return err
	}
	s.Attempt = 0
	s.HintsRevealed = 0
	if s.ItemIndex+1 >= lesson.Len() {
		s.ItemIndex = lesson.Len()
		return s.Transition(StateCompleted)
	}
	s.ItemIndex++
	return s.Transition(StateAwaitingAnswer)
}

// Clone returns a copy safe to hand out of a store
func (s *Session) Clone() *Session {
	c := *s
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
