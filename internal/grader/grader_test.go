package grader

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/pyrepr"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/runner"
)

type stubExecutor struct {
	out  *runner.Outcome
	err  error
	last runner.Program
}

func (s *stubExecutor) Execute(_ context.Context, prog runner.Program) (*runner.Outcome, error) {
	s.last = prog
	return s.out, s.err
}

func multiplyItem() *domain.WriteCode {
	return &domain.WriteCode{
		ItemBase: domain.ItemBase{Question: "Write multiply"},
		TestCases: []domain.TestCase{
			{Probe: "multiply(2, 3)", Expected: "6"},
			{Probe: "multiply(2, 3, 4)", Expected: "24"},
			{Probe: "multiply(-2, 5)", Expected: "-10"},
			{Probe: "multiply(-2, 5, 3)", Expected: "-30"},
		},
	}
}

func TestEvaluate(t *testing.T) {
	item := multiplyItem()
	value := func(i int64) runner.StageResult {
		return runner.StageResult{Status: runner.StatusValue, Value: pyrepr.Int(i)}
	}
	out := &runner.Outcome{
		Setup: runner.StageResult{Status: runner.StatusValue, Value: pyrepr.None()},
		Probes: []runner.StageResult{
			value(6),
			{Status: runner.StatusFailure, Failure: &runner.Failure{Kind: domain.FailureType, Message: "TypeError: too many arguments"}},
			value(10),
			{Status: runner.StatusTimeout, Failure: &runner.Failure{Kind: domain.FailureTimeout, Message: "timed out after 2s"}},
		},
	}

	result := Evaluate(item, out)

	if result.Passed {
		t.Error("Passed = true; want false")
	}
	if result.FirstFailure != 1 {
		t.Errorf("FirstFailure = %d; want 1", result.FirstFailure)
	}
	want := []struct {
		status domain.VerdictStatus
		kind   domain.FailureKind
	}{
		{domain.VerdictPassed, ""},
		{domain.VerdictErrored, domain.FailureType},
		{domain.VerdictFailed, ""},
		{domain.VerdictErrored, domain.FailureTimeout},
	}
	for i, w := range want {
		v := result.Verdicts[i]
		if v.Status != w.status || v.Kind != w.kind {
			t.Errorf("Verdicts[%d] = %+v; want status %v kind %v", i, v, w.status, w.kind)
		}
		if v.Probe != item.TestCases[i].Probe {
			t.Errorf("Verdicts[%d].Probe = %q; want %q", i, v.Probe, item.TestCases[i].Probe)
		}
	}
	if result.Verdicts[2].Actual != "10" || result.Verdicts[2].Expected != "-10" {
		t.Errorf("Verdicts[2] = %+v; want actual 10 expected -10", result.Verdicts[2])
	}
}

func TestEvaluate_DictOrder(t *testing.T) {
	item := &domain.WriteCode{TestCases: []domain.TestCase{
		{Probe: "counts()", Expected: "{0: 'b', 1: 'a'}"},
		{Probe: "counts(2)", Expected: "{0: 'b'}"},
	}}
	built := pyrepr.Dict(
		pyrepr.Pair{Key: pyrepr.Int(1), Value: pyrepr.Str("a")},
		pyrepr.Pair{Key: pyrepr.Int(0), Value: pyrepr.Str("b")},
	)
	out := &runner.Outcome{
		Setup: runner.StageResult{Status: runner.StatusValue, Value: pyrepr.None()},
		Probes: []runner.StageResult{
			{Status: runner.StatusValue, Value: built},
			{Status: runner.StatusValue, Value: built},
		},
	}

	result := Evaluate(item, out)

	if !result.Verdicts[0].IsPassed() {
		t.Errorf("Verdicts[0] = %+v; want passed regardless of insertion order", result.Verdicts[0])
	}
	if got := result.Verdicts[1].Actual; got != "{1: 'a', 0: 'b'}" {
		t.Errorf("Verdicts[1].Actual = %q; want insertion order {1: 'a', 0: 'b'}", got)
	}
}

func TestEvaluate_SetupFailure(t *testing.T) {
	item := multiplyItem()
	fail := runner.StageResult{Status: runner.StatusFailure, Failure: &runner.Failure{Kind: domain.FailureSyntax, Message: "SyntaxError: invalid syntax (line 1)"}}
	out := &runner.Outcome{Setup: fail, Probes: []runner.StageResult{fail, fail, fail, fail}}

	result := Evaluate(item, out)

	if result.Passed {
		t.Error("Passed = true; want false")
	}
	if result.SetupFailure == nil || result.SetupFailure.Kind != domain.FailureSyntax {
		t.Fatalf("SetupFailure = %+v; want SyntaxError", result.SetupFailure)
	}
	for i, v := range result.Verdicts {
		if v.Status != domain.VerdictErrored || v.Diagnostic != "SyntaxError: invalid syntax (line 1)" {
			t.Errorf("Verdicts[%d] = %+v; want the setup diagnostic", i, v)
		}
	}
}

func TestEvaluate_Unrenderable(t *testing.T) {
	item := &domain.WriteCode{TestCases: []domain.TestCase{{Probe: "x", Expected: "1"}}}
	out := &runner.Outcome{
		Setup:  runner.StageResult{Status: runner.StatusValue},
		Probes: []runner.StageResult{{Status: runner.StatusValue, Value: pyrepr.Value{Kind: pyrepr.KindInt}}},
	}

	result := Evaluate(item, out)

	if v := result.Verdicts[0]; v.Status != domain.VerdictErrored || v.Kind != domain.FailureOther {
		t.Errorf("Verdicts[0] = %+v; want OtherRuntimeError", v)
	}
}

func TestGrader_GradeCode(t *testing.T) {
	stub := &stubExecutor{out: &runner.Outcome{
		Setup:  runner.StageResult{Status: runner.StatusValue},
		Probes: []runner.StageResult{{Status: runner.StatusValue, Value: pyrepr.List(pyrepr.Int(0), pyrepr.Int(1))}},
	}}
	g := New(stub, 3*time.Second)
	item := &domain.WriteCode{
		PreCode:   "squares = ",
		TestCases: []domain.TestCase{{Probe: "squares", Expected: "[0, 1]"}},
	}

	result, err := g.GradeCode(context.Background(), CodeRequest{Item: item, Submission: "[x*x for x in range(2)]", IsolationKey: "s1"})
	if err != nil {
		t.Fatalf("GradeCode() error = %v", err)
	}
	if !result.Passed {
		t.Errorf("Passed = false; want true: %+v", result.Verdicts)
	}
	if stub.last.Preamble != "squares = " || stub.last.IsolationKey != "s1" || stub.last.TimeBudget != 3*time.Second {
		t.Errorf("program = %+v; want preamble, key and budget passed through", stub.last)
	}
}

func TestGrader_GradeCodeErrors(t *testing.T) {
	boom := errors.New("docker unreachable")
	g := New(&stubExecutor{err: boom}, 0)

	if _, err := g.GradeCode(context.Background(), CodeRequest{Item: multiplyItem()}); !errors.Is(err, boom) {
		t.Errorf("GradeCode() error = %v; want %v", err, boom)
	}
	if _, err := g.GradeCode(context.Background(), CodeRequest{}); !errors.Is(err, ErrNotCodeItem) {
		t.Errorf("GradeCode() error = %v; want ErrNotCodeItem", err)
	}
}

func TestGrader_Multiply(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	g := New(runner.NewLocalExecutor(runner.LocalConfig{}), 0)
	item := multiplyItem()

	tests := []struct {
		name       string
		submission string
		want       []domain.VerdictStatus
	}{
		{
			name:       "reference",
			submission: "def multiply(a, b, c=1):\n    return a * b * c",
			want:       []domain.VerdictStatus{domain.VerdictPassed, domain.VerdictPassed, domain.VerdictPassed, domain.VerdictPassed},
		},
		{
			name:       "missing argument",
			submission: "def multiply(a, b):\n    return a * b",
			want:       []domain.VerdictStatus{domain.VerdictPassed, domain.VerdictErrored, domain.VerdictPassed, domain.VerdictErrored},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := g.GradeCode(context.Background(), CodeRequest{Item: item, Submission: tt.submission})
			if err != nil {
				t.Fatalf("GradeCode() error = %v", err)
			}
			for i, want := range tt.want {
				if got := result.Verdicts[i].Status; got != want {
					t.Errorf("Verdicts[%d].Status = %v; want %v (%s)", i, got, want, result.Verdicts[i].Diagnostic)
				}
			}
			if tt.name == "missing argument" && result.Verdicts[1].Kind != domain.FailureType {
				t.Errorf("Verdicts[1].Kind = %v; want TypeError", result.Verdicts[1].Kind)
			}
		})
	}
}

func TestGrader_Countdown(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	g := New(runner.NewLocalExecutor(runner.LocalConfig{}), 0)
	item := &domain.WriteCode{TestCases: []domain.TestCase{
		{Probe: "list(Countdown(3))", Expected: "[3, 2, 1]"},
		{Probe: "list(Countdown(0))", Expected: "[]"},
		{Probe: "next(Countdown(5))", Expected: "5"},
	}}
	src := "class Countdown:\n\tdef __init__(self, start):\n\t\tself.current = start\n\tdef __iter__(self):\n\t\treturn self\n\tdef __next__(self):\n\t\tif self.current <= 0:\n\t\t\traise StopIteration\n\t\tself.current -= 1\n\t\treturn self.current + 1\n"

	result, err := g.GradeCode(context.Background(), CodeRequest{Item: item, Submission: src})
	if err != nil {
		t.Fatalf("GradeCode() error = %v", err)
	}
	if !result.Passed {
		t.Errorf("Passed = false; want true: %+v", result.Verdicts)
	}
}

func TestGrader_Timeout(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	g := New(runner.NewLocalExecutor(runner.LocalConfig{}), 500*time.Millisecond)
	item := &domain.WriteCode{TestCases: []domain.TestCase{{Probe: "1", Expected: "1"}, {Probe: "2", Expected: "2"}}}

	start := time.Now()
	result, err := g.GradeCode(context.Background(), CodeRequest{Item: item, Submission: "while True: pass"})
	if err != nil {
		t.Fatalf("GradeCode() error = %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("GradeCode() took %v; want bounded", time.Since(start))
	}
	for i, v := range result.Verdicts {
		if v.Kind != domain.FailureTimeout {
			t.Errorf("Verdicts[%d].Kind = %v; want Timeout", i, v.Kind)
		}
	}
}
