// Package session walks learners through lessons: it routes answers to the
// graders, applies the retry and hint policy and decides progression.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/grader"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/runner"
)

// DefaultMaxAttempts is the per item attempt allowance when none is configured
const DefaultMaxAttempts = 3

var (
	ErrSessionClosed     = errors.New("session is no longer active")
	ErrGradingInProgress = errors.New("an answer is already being graded")
	ErrNotAwaitingAnswer = errors.New("session is not waiting for an answer")
	ErrRunUnavailable    = errors.New("the grader cannot run playground code")
)

// unavailableMessage is shown when grading infrastructure fails
const unavailableMessage = "your answer could not be graded right now; it was not counted, please try again"

// Lessons resolves lessons by id
type Lessons interface {
	Lesson(id string) (*domain.Lesson, error)
}

// Config holds session policy
type Config struct {
	// MaxAttempts caps attempts per item. Zero means unlimited.
	MaxAttempts int
	// ChoiceMatch selects how multiple choice input is matched to keys.
	ChoiceMatch grader.Matching
}

// DefaultConfig returns the default session policy
func DefaultConfig() Config {
	return Config{MaxAttempts: DefaultMaxAttempts}
}

// Service runs the session state machine
type Service struct {
	config   Config
	store    Store
	lessons  Lessons
	grader   grader.CodeGrader
	releaser runner.Releaser // optional
	attempts AttemptLog      // optional

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	inflight map[string]context.CancelFunc
	quitting map[string]bool
}

// NewService creates a session service. If the store also implements
// AttemptLog, graded attempts are recorded there.
func NewService(cfg Config, store Store, lessons Lessons, g grader.CodeGrader) *Service {
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	s := &Service{
		config:   cfg,
		store:    store,
		lessons:  lessons,
		grader:   g,
		locks:    make(map[string]*sync.Mutex),
		inflight: make(map[string]context.CancelFunc),
		quitting: make(map[string]bool),
	}
	if log, ok := store.(AttemptLog); ok {
		s.attempts = log
	}
	return s
}

// SetReleaser sets what frees a session's execution resources on quit or completion
func (s *Service) SetReleaser(r runner.Releaser) {
	s.releaser = r
}

// SetAttemptLog overrides the attempt log
func (s *Service) SetAttemptLog(log AttemptLog) {
	s.attempts = log
}

// Start opens a session on the first item of a lesson
func (s *Service) Start(ctx context.Context, lessonID string) (*Session, error) {
	lesson, err := s.lessons.Lesson(lessonID)
	if err != nil {
		return nil, err
	}
	if lesson.Len() == 0 {
		return nil, fmt.Errorf("%w: lesson %s has no items", domain.ErrItemNotFound, lessonID)
	}

	sess := New(lesson.ID, s.config.MaxAttempts)
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	slog.Info("session started", "session_id", sess.ID, "lesson_id", lesson.ID, "items", lesson.Len())
	return sess, nil
}

// Get retrieves a session by id
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.store.Get(ctx, id)
}

// List returns every stored session, newest first
func (s *Service) List(ctx context.Context) ([]*Session, error) {
	return s.store.List(ctx)
}

// Attempts returns the graded attempts of a session
func (s *Service) Attempts(ctx context.Context, id string) ([]*Attempt, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.attempts == nil {
		return []*Attempt{}, nil
	}
	return s.attempts.Attempts(ctx, id)
}

// Current returns the prompt for the item the session is waiting on
func (s *Service) Current(ctx context.Context, id string) (*domain.Prompt, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.Active() {
		return nil, fmt.Errorf("%w: %s", ErrSessionClosed, sess.State)
	}
	lesson, err := s.lessons.Lesson(sess.LessonID)
	if err != nil {
		return nil, err
	}
	return s.prompt(sess, lesson)
}

func (s *Service) prompt(sess *Session, lesson *domain.Lesson) (*domain.Prompt, error) {
	p, ok := domain.NewPrompt(lesson, sess.ItemIndex, sess.HintsRevealed)
	if !ok {
		return nil, fmt.Errorf("%w: lesson %s has no item %d", domain.ErrItemNotFound, lesson.ID, sess.ItemIndex)
	}
	p.Attempt = sess.Attempt + 1
	p.AttemptsLeft = sess.AttemptsLeft()
	return p, nil
}

// SubmitAnswer grades raw input against the current item and advances the
// state machine. Learner mistakes, timeouts and grading outages all come
// back as Feedback; errors are reserved for unknown or closed sessions and
// for concurrent submissions.
func (s *Service) SubmitAnswer(ctx context.Context, id, raw string) (*domain.Feedback, error) {
	unlock, ok := s.tryLock(id)
	if !ok {
		return nil, ErrGradingInProgress
	}
	defer unlock()

	sess, err := s.loadActive(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State != StateAwaitingAnswer {
		return nil, fmt.Errorf("%w: %s", ErrNotAwaitingAnswer, sess.State)
	}

	lesson, err := s.lessons.Lesson(sess.LessonID)
	if err != nil {
		return nil, err
	}
	item, ok := lesson.Item(sess.ItemIndex)
	if !ok {
		return nil, fmt.Errorf("%w: lesson %s has no item %d", domain.ErrItemNotFound, lesson.ID, sess.ItemIndex)
	}

	if err := sess.Transition(StateGrading); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	start := time.Now()
	verdicts, counted, err := s.grade(ctx, sess, item, raw)
	if err != nil {
		return nil, s.abortGrading(sess, err)
	}

	fb := &domain.Feedback{PerCase: verdicts, Counted: counted}
	if err := sess.Transition(StateFeedback); err != nil {
		return nil, err
	}

	if counted {
		fb.Passed = allPassed(verdicts)
		sess.Attempt++
		sess.Tally.Attempts++
		fb.Attempt = sess.Attempt
		s.logAttempt(ctx, sess, item, raw, fb)
		if err := s.settle(sess, lesson, item, fb); err != nil {
			return nil, err
		}
	} else {
		fb.Attempt = sess.Attempt
		fb.Diagnostic = firstDiagnostic(verdicts)
		if err := sess.Transition(StateAwaitingAnswer); err != nil {
			return nil, err
		}
	}

	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	fb.State = string(sess.State)
	fb.AttemptsLeft = sess.AttemptsLeft()
	if sess.Active() {
		if fb.Next, err = s.prompt(sess, lesson); err != nil {
			return nil, err
		}
	} else {
		s.forget(sess.ID)
		s.release(sess.ID)
	}

	slog.Info("answer graded",
		"session_id", sess.ID,
		"lesson_id", sess.LessonID,
		"item", item.Kind(),
		"passed", fb.Passed,
		"counted", counted,
		"state", sess.State,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return fb, nil
}

// settle applies the retry policy after a charged attempt
func (s *Service) settle(sess *Session, lesson *domain.Lesson, item domain.Item, fb *domain.Feedback) error {
	if fb.Passed {
		sess.Tally.Passed++
		fb.Advanced = true
		if err := sess.advance(lesson); err != nil {
			return err
		}
		fb.Completed = sess.State == StateCompleted
		return nil
	}

	if sess.AttemptsLeft() != 0 {
		if hint, ok := sess.nextHint(item); ok {
			fb.Hint = hint
		}
		fb.Retry = true
		return sess.Transition(StateAwaitingAnswer)
	}

	sess.Tally.Failed++
	fb.Advanced = true
	if err := sess.advance(lesson); err != nil {
		return err
	}
	fb.Completed = sess.State == StateCompleted
	return nil
}

// grade dispatches to the grader for the item kind. counted is false when
// the attempt must not be charged.
func (s *Service) grade(ctx context.Context, sess *Session, item domain.Item, raw string) (verdicts []domain.Verdict, counted bool, err error) {
	switch it := item.(type) {
	case *domain.MultipleChoice:
		v := grader.GradeChoice(it, raw, s.config.ChoiceMatch)
		return []domain.Verdict{v}, v.Kind != domain.FailureInvalidOption, nil

	case *domain.WriteCode:
		gctx, cancel := context.WithCancel(ctx)
		defer cancel()
		s.track(sess.ID, cancel)
		defer s.untrack(sess.ID)

		result, err := s.grader.GradeCode(gctx, grader.CodeRequest{
			LessonID:     sess.LessonID,
			ItemIndex:    sess.ItemIndex,
			Item:         it,
			Submission:   raw,
			IsolationKey: sess.ID,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			if s.isQuitting(sess.ID) {
				return nil, false, ErrSessionClosed
			}
			slog.Error("grading unavailable", "session_id", sess.ID, "lesson_id", sess.LessonID, "error", err)
			return []domain.Verdict{domain.Errored("", domain.FailureUnavailable, unavailableMessage)}, false, nil
		}
		return result.Verdicts, true, nil

	default:
		return nil, false, fmt.Errorf("%w: unsupported item kind %s", domain.ErrInvalidInput, item.Kind())
	}
}

// abortGrading puts a session back to awaiting an answer after the caller
// went away mid-grading. A quit in progress owns the session instead.
func (s *Service) abortGrading(sess *Session, cause error) error {
	if errors.Is(cause, ErrSessionClosed) {
		return cause
	}
	if err := sess.Transition(StateAwaitingAnswer); err == nil {
		if err := s.store.Save(context.Background(), sess); err != nil {
			slog.Warn("failed to restore session after aborted grading", "session_id", sess.ID, "error", err)
		}
	}
	return cause
}

// HintResult is the answer to a hint request
type HintResult struct {
	// Hint is the newly disclosed hint, empty when none remain.
	Hint      string   `json:"hint,omitempty"`
	Hints     []string `json:"hints"`
	Remaining int      `json:"remaining"`
}

// RequestHint discloses the next hint of the current item. It shares the
// cursor with hints disclosed after failed attempts.
func (s *Service) RequestHint(ctx context.Context, id string) (*HintResult, error) {
	unlock, ok := s.tryLock(id)
	if !ok {
		return nil, ErrGradingInProgress
	}
	defer unlock()

	sess, err := s.loadActive(ctx, id)
	if err != nil {
		return nil, err
	}
	lesson, err := s.lessons.Lesson(sess.LessonID)
	if err != nil {
		return nil, err
	}
	item, ok := lesson.Item(sess.ItemIndex)
	if !ok {
		return nil, fmt.Errorf("%w: lesson %s has no item %d", domain.ErrItemNotFound, lesson.ID, sess.ItemIndex)
	}

	res := &HintResult{}
	if hint, ok := sess.nextHint(item); ok {
		res.Hint = hint
		sess.UpdatedAt = time.Now()
		if err := s.store.Save(ctx, sess); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
	}
	hints := item.Common().Hints
	res.Hints = append([]string{}, hints[:sess.HintsRevealed]...)
	res.Remaining = len(hints) - sess.HintsRevealed
	return res, nil
}

// Quit abandons a session. Grading in flight for it is cancelled and its
// execution resources are released.
func (s *Service) Quit(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	s.quitting[id] = true
	if cancel, ok := s.inflight[id]; ok {
		cancel()
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.quitting, id)
		s.mu.Unlock()
	}()

	unlock := s.lock(id)
	defer unlock()

	sess, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		s.forget(id)
	}
	if err != nil {
		return nil, err
	}
	if !sess.Active() {
		s.forget(id)
		return sess, nil
	}
	if err := sess.Transition(StateAbandoned); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.forget(id)
	s.release(id)

	slog.Info("session abandoned", "session_id", id, "lesson_id", sess.LessonID, "item_index", sess.ItemIndex)
	return sess, nil
}

// Run executes free-form source in the playground and returns what it
// printed. With a session id the run shares that session's isolation key
// and is refused while an answer is being graded; the session state is not
// touched. Without one the run gets a throwaway key.
func (s *Service) Run(ctx context.Context, id, source string) (*domain.RunResult, error) {
	playground, ok := s.grader.(grader.CodeRunner)
	if !ok {
		return nil, ErrRunUnavailable
	}

	key := id
	if id == "" {
		key = "run-" + uuid.NewString()
		defer s.release(key)
	} else {
		unlock, ok := s.tryLock(id)
		if !ok {
			return nil, ErrGradingInProgress
		}
		defer unlock()
		if _, err := s.loadActive(ctx, id); err != nil {
			return nil, err
		}

		rctx, cancel := context.WithCancel(ctx)
		defer cancel()
		s.track(id, cancel)
		defer s.untrack(id)
		ctx = rctx
	}

	res, err := playground.RunCode(ctx, grader.RunRequest{Source: source, IsolationKey: key})
	if err != nil {
		return nil, err
	}
	slog.Info("playground run",
		"session_id", id,
		"ok", res.OK,
		"truncated", res.Truncated,
		"duration_ms", res.DurationMS,
	)
	return res, nil
}

// Recover returns sessions left in grading by an unclean shutdown to
// awaiting an answer.
func (s *Service) Recover(ctx context.Context) (int, error) {
	sessions, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, sess := range sessions {
		if sess.State != StateGrading {
			continue
		}
		if err := sess.Transition(StateAwaitingAnswer); err != nil {
			continue
		}
		if err := s.store.Save(ctx, sess); err != nil {
			return n, fmt.Errorf("save session: %w", err)
		}
		n++
	}
	if n > 0 {
		slog.Info("recovered interrupted sessions", "count", n)
	}
	return n, nil
}

// Close cancels all grading in flight
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.inflight {
		cancel()
	}
}

func (s *Service) logAttempt(ctx context.Context, sess *Session, item domain.Item, raw string, fb *domain.Feedback) {
	if s.attempts == nil {
		return
	}
	err := s.attempts.AppendAttempt(ctx, &Attempt{
		SessionID:  sess.ID,
		LessonID:   sess.LessonID,
		ItemIndex:  sess.ItemIndex,
		Number:     sess.Attempt,
		Kind:       item.Kind(),
		Submission: raw,
		Passed:     fb.Passed,
		Verdicts:   fb.PerCase,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		slog.Warn("failed to record attempt", "session_id", sess.ID, "error", err)
	}
}

func (s *Service) release(id string) {
	if s.releaser == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.releaser.Release(ctx, id); err != nil {
		slog.Warn("failed to release session resources", "session_id", id, "error", err)
	}
}

func (s *Service) sessionLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// forget drops the lock entry of a session that is missing or closed. The
// caller holds that lock; later holders see the closed state and return.
func (s *Service) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, id)
}

// loadActive reads a session under its lock and rejects closed ones
func (s *Service) loadActive(ctx context.Context, id string) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		s.forget(id)
	}
	if err != nil {
		return nil, err
	}
	if !sess.Active() {
		s.forget(id)
		return nil, fmt.Errorf("%w: %s", ErrSessionClosed, sess.State)
	}
	return sess, nil
}

func (s *Service) lock(id string) func() {
	l := s.sessionLock(id)
	l.Lock()
	return l.Unlock
}

func (s *Service) tryLock(id string) (func(), bool) {
	l := s.sessionLock(id)
	if !l.TryLock() {
		return nil, false
	}
	return l.Unlock, true
}

func (s *Service) track(id string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight[id] = cancel
}

func (s *Service) untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)
}

func (s *Service) isQuitting(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quitting[id]
}

func allPassed(verdicts []domain.Verdict) bool {
	if len(verdicts) == 0 {
		return false
	}
	for _, v := range verdicts {
		if !v.IsPassed() {
			return false
		}
	}
	return true
}

func firstDiagnostic(verdicts []domain.Verdict) string {
	for _, v := range verdicts {
		if v.Diagnostic != "" {
			return v.Diagnostic
		}
	}
	return ""
}
