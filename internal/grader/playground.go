package grader

import (
	"context"
	"fmt"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/runner"
)

// RunRequest is free-form source to run in the playground
type RunRequest struct {
	Source       string
	IsolationKey string
}

// CodeRunner runs source outside any lesson and reports what it printed.
// Errors are infrastructure failures only.
type CodeRunner interface {
	RunCode(ctx context.Context, req RunRequest) (*domain.RunResult, error)
}

var _ CodeRunner = (*Grader)(nil)

// RunCode executes the source once under the grading time budget, keeping
// up to runner.OutputLimit characters of what it prints.
func (g *Grader) RunCode(ctx context.Context, req RunRequest) (*domain.RunResult, error) {
	out, err := g.exec.Execute(ctx, runner.Program{
		Submission:   req.Source,
		TimeBudget:   g.budget,
		IsolationKey: req.IsolationKey,
		Capture:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	return RunResult(out), nil
}

// RunResult converts a capturing execution into a playground result
func RunResult(out *runner.Outcome) *domain.RunResult {
	res := &domain.RunResult{
		Output:     out.Output,
		Truncated:  out.OutputTruncated,
		OK:         out.Setup.OK(),
		DurationMS: out.Duration.Milliseconds(),
	}
	if !res.OK {
		v := stageVerdict("", out.Setup)
		res.Kind = v.Kind
		res.Diagnostic = v.Diagnostic
	}
	return res
}
