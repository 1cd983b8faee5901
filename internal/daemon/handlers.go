package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/grader"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/session"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":       "running",
		"version":      Version,
		"uptime":       time.Since(s.started).Round(time.Second).String(),
		"lessons":      s.registry.Count(),
		"executor":     s.cfg.Runner.Executor,
		"dispatch":     s.cfg.Grading.Dispatch,
		"store":        s.cfg.Session.Store,
		"max_attempts": s.cfg.Session.MaxAttempts,
		"time_budget":  s.cfg.Runner.TimeBudget.String(),
	}
	if s.runner != nil {
		status["running"] = s.runner.Running()
	}
	s.jsonResponse(w, http.StatusOK, status)
}

// Lesson handlers

func (s *Server) handleListLessons(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"lessons": s.registry.Summaries(),
	})
}

// lessonView lists a lesson's items the way a learner would see them
type lessonView struct {
	ID    string           `json:"id"`
	Title string           `json:"title,omitempty"`
	Items []*domain.Prompt `json:"items"`
}

func (s *Server) handleGetLesson(w http.ResponseWriter, r *http.Request) {
	lesson, err := s.registry.Lesson(r.PathValue("id"))
	if err != nil {
		s.jsonError(w, http.StatusNotFound, "lesson not found", err)
		return
	}

	view := lessonView{ID: lesson.ID, Title: lesson.Title, Items: make([]*domain.Prompt, 0, lesson.Len())}
	for i := range lesson.Len() {
		if p, ok := domain.NewPrompt(lesson, i, 0); ok {
			view.Items = append(view.Items, p)
		}
	}
	s.jsonResponse(w, http.StatusOK, view)
}

// Session handlers

// sessionView is a session with the prompt it is waiting on
type sessionView struct {
	Session *session.Session `json:"session"`
	Prompt  *domain.Prompt   `json:"prompt,omitempty"`
}

func (s *Server) view(ctx context.Context, sess *session.Session) (*sessionView, error) {
	v := &sessionView{Session: sess}
	if !sess.Active() {
		return v, nil
	}
	p, err := s.sessions.Current(ctx, sess.ID)
	if err != nil && !errors.Is(err, session.ErrSessionClosed) {
		return nil, err
	}
	v.Prompt = p
	return v, nil
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LessonID string `json:"lesson_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.LessonID == "" {
		s.jsonError(w, http.StatusBadRequest, "lesson_id is required", nil)
		return
	}

	sess, err := s.sessions.Start(r.Context(), req.LessonID)
	if err != nil {
		s.sessionError(w, err, "failed to create session")
		return
	}
	v, err := s.view(r.Context(), sess)
	if err != nil {
		s.sessionError(w, err, "failed to load prompt")
		return
	}
	s.jsonResponse(w, http.StatusCreated, v)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.List(r.Context())
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to list sessions", err)
		return
	}
	if sessions == nil {
		sessions = []*session.Session{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"sessions": sessions,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.sessionError(w, err, "failed to get session")
		return
	}
	v, err := s.view(r.Context(), sess)
	if err != nil {
		s.sessionError(w, err, "failed to load prompt")
		return
	}
	s.jsonResponse(w, http.StatusOK, v)
}

func (s *Server) handleQuitSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Quit(r.Context(), r.PathValue("id"))
	if err != nil {
		s.sessionError(w, err, "failed to quit session")
		return
	}
	s.jsonResponse(w, http.StatusOK, &sessionView{Session: sess})
}

func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := s.sessions.Attempts(r.Context(), r.PathValue("id"))
	if err != nil {
		s.sessionError(w, err, "failed to list attempts")
		return
	}
	if attempts == nil {
		attempts = []*session.Attempt{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"attempts": attempts,
	})
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		Answer *string `json:"answer"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Answer == nil {
		s.jsonError(w, http.StatusBadRequest, "answer is required", nil)
		return
	}

	if s.limiter != nil && !s.limiter.Allow(r.Context(), id) {
		s.jsonError(w, http.StatusTooManyRequests, "too many answers, slow down", nil)
		return
	}

	fb, err := s.sessions.SubmitAnswer(r.Context(), id, *req.Answer)
	if err != nil {
		s.sessionError(w, err, "failed to grade answer")
		return
	}
	s.jsonResponse(w, http.StatusOK, fb)
}

func (s *Server) handleHint(w http.ResponseWriter, r *http.Request) {
	res, err := s.sessions.RequestHint(r.Context(), r.PathValue("id"))
	if err != nil {
		s.sessionError(w, err, "failed to get hint")
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

// Playground

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source    *string `json:"source"`
		SessionID string  `json:"session_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Source == nil {
		s.jsonError(w, http.StatusBadRequest, "source is required", nil)
		return
	}

	key := req.SessionID
	if key == "" {
		key = "playground"
	}
	if s.limiter != nil && !s.limiter.Allow(r.Context(), key) {
		s.jsonError(w, http.StatusTooManyRequests, "too many runs, slow down", nil)
		return
	}

	res, err := s.sessions.Run(r.Context(), req.SessionID, *req.Source)
	switch {
	case err == nil:
		s.jsonResponse(w, http.StatusOK, res)
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrSessionClosed),
		errors.Is(err, session.ErrGradingInProgress):
		s.sessionError(w, err, "failed to run code")
	default:
		s.jsonError(w, http.StatusServiceUnavailable, "code runner unavailable", err)
	}
}

// Authoring

func (s *Server) handleGrade(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LessonID string `json:"lesson_id"`
		Item     int    `json:"item"`
		Answer   string `json:"answer"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	item, err := s.registry.Item(req.LessonID, req.Item)
	if err != nil {
		s.sessionError(w, err, "failed to load item")
		return
	}

	switch it := item.(type) {
	case *domain.MultipleChoice:
		v := grader.GradeChoice(it, req.Answer, grader.MatchingFor(s.cfg.Session.FoldChoiceCase()))
		s.jsonResponse(w, http.StatusOK, domain.NewExerciseResult([]domain.Verdict{v}))

	case *domain.WriteCode:
		key := "grade-" + uuid.NewString()
		result, err := s.grader.GradeCode(r.Context(), grader.CodeRequest{
			LessonID:     req.LessonID,
			ItemIndex:    req.Item,
			Item:         it,
			Submission:   req.Answer,
			IsolationKey: key,
		})
		if s.runner != nil {
			if rerr := s.runner.Release(context.WithoutCancel(r.Context()), key); rerr != nil {
				slog.Warn("failed to release grading resources", "key", key, "error", rerr)
			}
		}
		if err != nil {
			s.jsonError(w, http.StatusServiceUnavailable, "grading unavailable", err)
			return
		}
		s.jsonResponse(w, http.StatusOK, result)

	default:
		s.jsonError(w, http.StatusBadRequest, "unsupported item kind", nil)
	}
}
