package mcp

import (
	"context"
	"fmt"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/content"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/session"
)

// Server exposes quiz sessions as MCP tools
type Server struct {
	mcpServer *server.Server
	sessions  session.SessionService
	registry  *content.Registry
}

// Config contains configuration for the MCP server
type Config struct {
	Sessions session.SessionService
	Registry *content.Registry
	Version  string
}

// NewServer creates a new MCP server
func NewServer(cfg Config) *Server {
	s := &Server{
		sessions: cfg.Sessions,
		registry: cfg.Registry,
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s.mcpServer = server.New(server.Info{
		Name:    "meteor",
		Version: version,
	}, server.WithInstructions(`
Meteor runs Python quiz lessons. Each lesson is a sequence of items:
multiple_choice items are answered with an option key, write_code items
with Python source that is executed in a sandbox and checked by test cases.

Typical flow: meteor_lessons, meteor_start, then meteor_answer until the
lesson completes. meteor_hint reveals the next hint of the current item.
Failed attempts reveal hints automatically and attempts per item are capped.
meteor_run runs Python source outside the lesson and returns what it printed.
`))

	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcpServer.Tool("meteor_lessons").
		Description("List the available lessons.").
		Handler(s.handleLessons)

	s.mcpServer.Tool("meteor_start").
		Description("Start a session on a lesson and return its first question.").
		Handler(s.handleStart)

	s.mcpServer.Tool("meteor_question").
		Description("Show the question a session is waiting on.").
		Handler(s.handleQuestion)

	s.mcpServer.Tool("meteor_answer").
		Description("Submit an answer: an option key or Python source.").
		Handler(s.handleAnswer)

	s.mcpServer.Tool("meteor_hint").
		Description("Reveal the next hint for the current question.").
		Handler(s.handleHint)

	s.mcpServer.Tool("meteor_status").
		Description("Get a session's state and progress.").
		Handler(s.handleStatus)

	s.mcpServer.Tool("meteor_quit").
		Description("Abandon a session.").
		Handler(s.handleQuit)

	s.mcpServer.Tool("meteor_run").
		Description("Run Python source in the playground and return its printed output.").
		Handler(s.handleRun)
}

type LessonsInput struct{}

type LessonsOutput struct {
	Lessons []content.Summary `json:"lessons"`
}

type StartInput struct {
	LessonID string `json:"lesson_id" jsonschema:"description=Lesson ID from meteor_lessons"`
}

type SessionInput struct {
	SessionID string `json:"session_id" jsonschema:"description=Session ID from meteor_start"`
}

type AnswerInput struct {
	SessionID string `json:"session_id" jsonschema:"description=Session ID from meteor_start"`
	Answer    string `json:"answer" jsonschema:"description=Option key for multiple choice or Python source for write_code"`
}

type QuestionOutput struct {
	SessionID string         `json:"session_id"`
	Text      string         `json:"text"`
	Prompt    *domain.Prompt `json:"prompt"`
}

type AnswerOutput struct {
	Text     string           `json:"text"`
	Feedback *domain.Feedback `json:"feedback"`
}

type HintOutput struct {
	Hint      string   `json:"hint,omitempty"`
	Hints     []string `json:"hints"`
	Remaining int      `json:"remaining"`
	Message   string   `json:"message,omitempty"`
}

type StatusOutput struct {
	SessionID string        `json:"session_id"`
	LessonID  string        `json:"lesson_id"`
	State     string        `json:"state"`
	Item      int           `json:"item"`
	Attempt   int           `json:"attempt"`
	Tally     session.Tally `json:"tally"`
}

type RunInput struct {
	Source    string `json:"source" jsonschema:"description=Python source to run"`
	SessionID string `json:"session_id,omitempty" jsonschema:"description=Optional session ID to run alongside"`
}

type RunOutput struct {
	Text   string            `json:"text"`
	Result *domain.RunResult `json:"result"`
}

type QuitOutput struct {
	State   string `json:"state"`
	Message string `json:"message"`
}

func (s *Server) handleLessons(ctx context.Context, _ LessonsInput) (LessonsOutput, error) {
	return LessonsOutput{Lessons: s.registry.Summaries()}, nil
}

func (s *Server) handleStart(ctx context.Context, input StartInput) (QuestionOutput, error) {
	if input.LessonID == "" {
		return QuestionOutput{}, fmt.Errorf("lesson_id is required")
	}
	sess, err := s.sessions.Start(ctx, input.LessonID)
	if err != nil {
		return QuestionOutput{}, fmt.Errorf("start session: %w", err)
	}
	return s.handleQuestion(ctx, SessionInput{SessionID: sess.ID})
}

func (s *Server) handleQuestion(ctx context.Context, input SessionInput) (QuestionOutput, error) {
	p, err := s.sessions.Current(ctx, input.SessionID)
	if err != nil {
		return QuestionOutput{}, fmt.Errorf("current question: %w", err)
	}
	return QuestionOutput{SessionID: input.SessionID, Text: p.Text(), Prompt: p}, nil
}

func (s *Server) handleAnswer(ctx context.Context, input AnswerInput) (AnswerOutput, error) {
	fb, err := s.sessions.SubmitAnswer(ctx, input.SessionID, input.Answer)
	if err != nil {
		return AnswerOutput{}, fmt.Errorf("submit answer: %w", err)
	}
	text := fb.Text()
	if fb.Next != nil && fb.Advanced {
		text += "\n\n" + fb.Next.Text()
	}
	return AnswerOutput{Text: text, Feedback: fb}, nil
}

func (s *Server) handleHint(ctx context.Context, input SessionInput) (HintOutput, error) {
	res, err := s.sessions.RequestHint(ctx, input.SessionID)
	if err != nil {
		return HintOutput{}, fmt.Errorf("hint: %w", err)
	}
	out := HintOutput{Hint: res.Hint, Hints: res.Hints, Remaining: res.Remaining}
	if out.Hint == "" {
		out.Message = "No more hints for this question."
	}
	return out, nil
}

func (s *Server) handleStatus(ctx context.Context, input SessionInput) (StatusOutput, error) {
	sess, err := s.sessions.Get(ctx, input.SessionID)
	if err != nil {
		return StatusOutput{}, fmt.Errorf("session not found: %w", err)
	}
	return StatusOutput{
		SessionID: sess.ID,
		LessonID:  sess.LessonID,
		State:     string(sess.State),
		Item:      sess.ItemIndex,
		Attempt:   sess.Attempt,
		Tally:     sess.Tally,
	}, nil
}

func (s *Server) handleQuit(ctx context.Context, input SessionInput) (QuitOutput, error) {
	sess, err := s.sessions.Quit(ctx, input.SessionID)
	if err != nil {
		return QuitOutput{}, fmt.Errorf("quit session: %w", err)
	}
	return QuitOutput{
		State:   string(sess.State),
		Message: fmt.Sprintf("Session ended: %d passed, %d failed", sess.Tally.Passed, sess.Tally.Failed),
	}, nil
}

func (s *Server) handleRun(ctx context.Context, input RunInput) (RunOutput, error) {
	res, err := s.sessions.Run(ctx, input.SessionID, input.Source)
	if err != nil {
		return RunOutput{}, fmt.Errorf("run: %w", err)
	}
	return RunOutput{Text: res.Text(), Result: res}, nil
}

// ServeStdio serves the tools on stdin/stdout
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP serves the tools over HTTP
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
