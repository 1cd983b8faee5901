package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/content"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/grader"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/session"
)

const bank = `{
  "1": [
    {"type": "multiple_choice", "question": "2 + 2?", "options": {"a": "4", "b": "5"}, "answer": "a",
     "hints": ["count on your fingers"]},
    {"type": "write_code", "question": "Define x = 1", "test_cases": [["x", "1"]]}
  ]
}`

// passGrader passes submissions equal to "x = 1"
type passGrader struct{}

func (passGrader) GradeCode(_ context.Context, req grader.CodeRequest) (*domain.ExerciseResult, error) {
	v := domain.Failed("x", "None", "1")
	if req.Submission == "x = 1" {
		v = domain.Passed("x")
	}
	return domain.NewExerciseResult([]domain.Verdict{v}), nil
}

func (passGrader) RunCode(_ context.Context, req grader.RunRequest) (*domain.RunResult, error) {
	return &domain.RunResult{Output: "ran " + req.IsolationKey + "\n", OK: true}, nil
}

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	lessons, problems, err := content.Parse([]byte(bank))
	if err != nil || len(problems) > 0 {
		t.Fatalf("Parse() = %v, %v", problems, err)
	}
	reg := content.NewRegistry(lessons)
	svc := session.NewService(session.DefaultConfig(), session.NewMemoryStore(), reg, passGrader{})
	return NewServer(Config{Sessions: svc, Registry: reg})
}

func TestNewServer(t *testing.T) {
	server := setupTestServer(t)
	if server.GetMCPServer() == nil {
		t.Fatal("GetMCPServer() = nil")
	}
	if NewServer(Config{}) == nil {
		t.Fatal("NewServer(Config{}) = nil")
	}
}

func TestLessons(t *testing.T) {
	server := setupTestServer(t)

	out, err := server.handleLessons(context.Background(), LessonsInput{})
	if err != nil {
		t.Fatalf("handleLessons() error = %v", err)
	}
	if len(out.Lessons) != 1 || out.Lessons[0].ID != "1" {
		t.Errorf("Lessons = %+v; want lesson 1", out.Lessons)
	}
}

func TestSessionTools(t *testing.T) {
	server := setupTestServer(t)
	ctx := context.Background()

	start, err := server.handleStart(ctx, StartInput{LessonID: "1"})
	if err != nil {
		t.Fatalf("handleStart() error = %v", err)
	}
	if !strings.Contains(start.Text, "a) 4") {
		t.Errorf("Text = %q; want options listed", start.Text)
	}
	id := start.SessionID

	hint, err := server.handleHint(ctx, SessionInput{SessionID: id})
	if err != nil {
		t.Fatalf("handleHint() error = %v", err)
	}
	if hint.Hint != "count on your fingers" {
		t.Errorf("Hint = %q", hint.Hint)
	}
	if hint, _ = server.handleHint(ctx, SessionInput{SessionID: id}); hint.Message == "" {
		t.Error("second hint Message empty; want exhaustion message")
	}

	ans, err := server.handleAnswer(ctx, AnswerInput{SessionID: id, Answer: "a"})
	if err != nil {
		t.Fatalf("handleAnswer() error = %v", err)
	}
	if !ans.Feedback.Passed || !strings.Contains(ans.Text, "Define x = 1") {
		t.Errorf("answer = %+v; want pass and next question", ans)
	}

	q, err := server.handleQuestion(ctx, SessionInput{SessionID: id})
	if err != nil {
		t.Fatalf("handleQuestion() error = %v", err)
	}
	if q.Prompt.Kind != domain.KindWriteCode {
		t.Errorf("Kind = %v; want write_code", q.Prompt.Kind)
	}

	if ans, _ = server.handleAnswer(ctx, AnswerInput{SessionID: id, Answer: "x = 2"}); ans.Feedback.Passed {
		t.Error("wrong code passed")
	}

	status, err := server.handleStatus(ctx, SessionInput{SessionID: id})
	if err != nil {
		t.Fatalf("handleStatus() error = %v", err)
	}
	if status.Item != 1 || status.Tally.Passed != 1 || status.Tally.Attempts != 2 {
		t.Errorf("status = %+v", status)
	}

	quit, err := server.handleQuit(ctx, SessionInput{SessionID: id})
	if err != nil {
		t.Fatalf("handleQuit() error = %v", err)
	}
	if quit.State != string(session.StateAbandoned) {
		t.Errorf("State = %q; want abandoned", quit.State)
	}

	if _, err := server.handleAnswer(ctx, AnswerInput{SessionID: id, Answer: "x = 1"}); err == nil {
		t.Error("answer after quit error = nil; want error")
	}
}

func TestToolErrors(t *testing.T) {
	server := setupTestServer(t)
	ctx := context.Background()

	if _, err := server.handleStart(ctx, StartInput{}); err == nil {
		t.Error("handleStart(empty) error = nil")
	}
	if _, err := server.handleStart(ctx, StartInput{LessonID: "42"}); err == nil {
		t.Error("handleStart(unknown) error = nil")
	}
	if _, err := server.handleStatus(ctx, SessionInput{SessionID: "nope"}); err == nil {
		t.Error("handleStatus(unknown) error = nil")
	}
}

func TestRunTool(t *testing.T) {
	server := setupTestServer(t)
	ctx := context.Background()

	out, err := server.handleRun(ctx, RunInput{Source: "print(1)"})
	if err != nil {
		t.Fatalf("handleRun() error = %v", err)
	}
	if !out.Result.OK || !strings.HasPrefix(out.Text, "ran run-") {
		t.Errorf("handleRun() = %+v; want output under a throwaway key", out)
	}

	start, _ := server.handleStart(ctx, StartInput{LessonID: "1"})
	out, err = server.handleRun(ctx, RunInput{Source: "print(1)", SessionID: start.SessionID})
	if err != nil {
		t.Fatalf("handleRun(session) error = %v", err)
	}
	if out.Text != "ran "+start.SessionID {
		t.Errorf("Text = %q; want the session id as key", out.Text)
	}

	if _, err := server.handleRun(ctx, RunInput{Source: "x", SessionID: "missing"}); err == nil {
		t.Error("handleRun(missing session) error = nil; want error")
	}
}
