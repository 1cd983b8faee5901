package session

import (
	"context"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
)

// SessionService defines the session operations used by the daemon
// handlers and the MCP tools
type SessionService interface {
	Start(ctx context.Context, lessonID string) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	List(ctx context.Context) ([]*Session, error)
	Current(ctx context.Context, id string) (*domain.Prompt, error)
	SubmitAnswer(ctx context.Context, id, raw string) (*domain.Feedback, error)
	RequestHint(ctx context.Context, id string) (*HintResult, error)
	Quit(ctx context.Context, id string) (*Session, error)
	Attempts(ctx context.Context, id string) ([]*Attempt, error)
	Run(ctx context.Context, id, source string) (*domain.RunResult, error)
}

// Ensure Service implements SessionService
var _ SessionService = (*Service)(nil)
