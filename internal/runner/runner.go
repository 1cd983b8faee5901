// Package runner executes learner submissions and probe expressions in a
// fresh, time-bounded Python process.
package runner

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/pyrepr"
)

// DefaultTimeBudget bounds a whole grading attempt: preamble, submission and every probe.
const DefaultTimeBudget = 2 * time.Second

// OutputLimit is how many characters of printed output a capturing run keeps.
const OutputLimit = 1900

// ErrHarness reports that the execution harness itself failed, as opposed to learner code.
var ErrHarness = errors.New("execution harness failed")

// Executor runs one Program in a fresh execution context
type Executor interface {
	Execute(ctx context.Context, prog Program) (*Outcome, error)
}

// Releaser is implemented by executors that hold per-session resources
type Releaser interface {
	Release(ctx context.Context, isolationKey string) error
}

// Program is the unit of execution: the source runs once, then every probe
// is evaluated in order in the same namespace.
type Program struct {
	Preamble   string
	Submission string
	Probes     []string
	TimeBudget time.Duration
	// IsolationKey groups executions that may share backend resources (a session id).
	IsolationKey string
	// Capture runs the source alone and reports what it prints. Probes
	// are not evaluated.
	Capture bool
}

func (p Program) caseCount() int {
	if p.Capture {
		return 0
	}
	return len(p.Probes)
}

func (p Program) budget() time.Duration {
	if p.TimeBudget <= 0 {
		return DefaultTimeBudget
	}
	return p.TimeBudget
}

// Status tags an execution stage result
type Status string

const (
	StatusValue   Status = "value"
	StatusFailure Status = "runtime_failure"
	StatusTimeout Status = "timeout"
)

// Failure describes a stage that raised or could not complete
type Failure struct {
	Kind    domain.FailureKind `json:"kind"`
	Message string             `json:"message"`
}

// StageResult is the tagged result of the setup stage or of one probe
type StageResult struct {
	Status  Status       `json:"status"`
	Value   pyrepr.Value `json:"value"`
	Failure *Failure     `json:"failure,omitempty"`
}

// OK reports whether the stage produced a value
func (r StageResult) OK() bool {
	return r.Status == StatusValue
}

// Diagnostic returns learner-facing text for a failed stage
func (r StageResult) Diagnostic() string {
	if r.Failure == nil {
		return ""
	}
	return r.Failure.Message
}

func valueResult(v pyrepr.Value) StageResult {
	return StageResult{Status: StatusValue, Value: v}
}

func failureResult(kind domain.FailureKind, message string) StageResult {
	return StageResult{Status: StatusFailure, Failure: &Failure{Kind: kind, Message: message}}
}

func timeoutResult(budget time.Duration) StageResult {
	return StageResult{
		Status:  StatusTimeout,
		Failure: &Failure{Kind: domain.FailureTimeout, Message: "timed out after " + budget.String()},
	}
}

// Outcome holds the setup result and one result per probe, in probe order.
// When setup fails every probe carries the setup result. Output is only
// filled for capturing runs.
type Outcome struct {
	Setup           StageResult   `json:"setup"`
	Probes          []StageResult `json:"probes"`
	Output          string        `json:"output,omitempty"`
	OutputTruncated bool          `json:"output_truncated,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// Run executes a single probe against preamble and submission.
func Run(ctx context.Context, ex Executor, preamble, submission, probe string, budget time.Duration) (StageResult, error) {
	out, err := ex.Execute(ctx, Program{
		Preamble:   preamble,
		Submission: submission,
		Probes:     []string{probe},
		TimeBudget: budget,
	})
	if err != nil {
		return StageResult{}, err
	}
	if !out.Setup.OK() {
		return out.Setup, nil
	}
	return out.Probes[0], nil
}

// ExpandTabs replaces tabs with spaces up to the next two-column tab stop.
func ExpandTabs(src string) string {
	if !strings.Contains(src, "\t") {
		return src
	}
	const tabSize = 2
	var b strings.Builder
	col := 0
	for _, r := range src {
		switch r {
		case '\t':
			n := tabSize - col%tabSize
			b.WriteString(strings.Repeat(" ", n))
			col += n
		case '\n', '\r':
			b.WriteRune(r)
			col = 0
		default:
			b.WriteRune(r)
			col++
		}
	}
	return b.String()
}

// classify maps an exception's class hierarchy, most specific first, to a failure kind.
func classify(bases []string) domain.FailureKind {
	for _, name := range bases {
		switch name {
		case "SyntaxError":
			return domain.FailureSyntax
		case "NameError":
			return domain.FailureName
		case "TypeError":
			return domain.FailureType
		case "ValueError":
			return domain.FailureValue
		}
	}
	return domain.FailureOther
}
