// Package grader turns execution outcomes and choice answers into verdicts.
package grader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/pyrepr"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/runner"
)

// ErrNotCodeItem is returned when a code request does not carry a write_code item
var ErrNotCodeItem = errors.New("item is not a write_code item")

// CodeRequest identifies one submission to grade against a write_code item
type CodeRequest struct {
	LessonID  string
	ItemIndex int
	Item      *domain.WriteCode
	// Submission is the learner's raw source text.
	Submission string
	// IsolationKey routes executions of one session to the same backend resources.
	IsolationKey string
}

// CodeGrader grades write_code submissions. Errors are infrastructure
// failures only; learner mistakes come back as verdicts.
type CodeGrader interface {
	GradeCode(ctx context.Context, req CodeRequest) (*domain.ExerciseResult, error)
}

// Grader grades write_code items on an Executor
type Grader struct {
	exec   runner.Executor
	budget time.Duration
}

var _ CodeGrader = (*Grader)(nil)

// New creates a grader. A zero budget uses runner.DefaultTimeBudget.
func New(exec runner.Executor, budget time.Duration) *Grader {
	if budget <= 0 {
		budget = runner.DefaultTimeBudget
	}
	return &Grader{exec: exec, budget: budget}
}

// GradeCode runs the preamble and submission once, then evaluates every test
// case in declared order in the same context. All cases are reported even
// after the first failure.
func (g *Grader) GradeCode(ctx context.Context, req CodeRequest) (*domain.ExerciseResult, error) {
	if req.Item == nil {
		return nil, ErrNotCodeItem
	}

	out, err := g.exec.Execute(ctx, runner.Program{
		Preamble:     req.Item.PreCode,
		Submission:   req.Submission,
		Probes:       req.Item.Probes(),
		TimeBudget:   g.budget,
		IsolationKey: req.IsolationKey,
	})
	if err != nil {
		return nil, fmt.Errorf("grade lesson %s item %d: %w", req.LessonID, req.ItemIndex, err)
	}
	return Evaluate(req.Item, out), nil
}

// Evaluate compares an execution outcome against the item's test cases.
func Evaluate(item *domain.WriteCode, out *runner.Outcome) *domain.ExerciseResult {
	verdicts := make([]domain.Verdict, len(item.TestCases))

	if !out.Setup.OK() {
		setup := stageVerdict("", out.Setup)
		for i, tc := range item.TestCases {
			v := setup
			v.Probe = tc.Probe
			verdicts[i] = v
		}
		result := domain.NewExerciseResult(verdicts)
		result.SetupFailure = &setup
		return result
	}

	for i, tc := range item.TestCases {
		if i >= len(out.Probes) {
			verdicts[i] = domain.Errored(tc.Probe, domain.FailureOther, "no result was produced")
			continue
		}
		stage := out.Probes[i]
		if !stage.OK() {
			verdicts[i] = stageVerdict(tc.Probe, stage)
			continue
		}
		actual, err := pyrepr.Canonicalize(stage.Value)
		if err != nil {
			verdicts[i] = domain.Errored(tc.Probe, domain.FailureOther, "could not render the result: "+err.Error())
			continue
		}
		if actual == tc.Expected {
			verdicts[i] = domain.Passed(tc.Probe)
			continue
		}
		// learners see dicts in the order their code built them
		if shown, err := pyrepr.Repr(stage.Value); err == nil {
			actual = shown
		}
		verdicts[i] = domain.Failed(tc.Probe, actual, tc.Expected)
	}
	return domain.NewExerciseResult(verdicts)
}

func stageVerdict(probe string, stage runner.StageResult) domain.Verdict {
	if stage.Status == runner.StatusTimeout {
		return domain.Errored(probe, domain.FailureTimeout, stage.Diagnostic())
	}
	kind := domain.FailureOther
	if stage.Failure != nil && stage.Failure.Kind != "" {
		kind = stage.Failure.Kind
	}
	return domain.Errored(probe, kind, stage.Diagnostic())
}
