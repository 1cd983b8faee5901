package domain

// VerdictStatus is the outcome of one test case or one choice answer
type VerdictStatus string

const (
	VerdictPassed  VerdictStatus = "passed"
	VerdictFailed  VerdictStatus = "failed"
	VerdictErrored VerdictStatus = "errored"
)

// FailureKind classifies why a verdict errored
type FailureKind string

const (
	FailureSyntax        FailureKind = "SyntaxError"
	FailureName          FailureKind = "NameError"
	FailureType          FailureKind = "TypeError"
	FailureValue         FailureKind = "ValueError"
	FailureOther         FailureKind = "OtherRuntimeError"
	FailureTimeout       FailureKind = "Timeout"
	FailureInvalidOption FailureKind = "InvalidOption"
	// FailureUnavailable marks a grading attempt the infrastructure could not complete.
	FailureUnavailable FailureKind = "Unavailable"
)

// Verdict is the per test case outcome surfaced to the learner
type Verdict struct {
	Status     VerdictStatus `json:"status"`
	Probe      string        `json:"probe,omitempty"`
	Actual     string        `json:"actual,omitempty"`
	Expected   string        `json:"expected,omitempty"`
	Kind       FailureKind   `json:"kind,omitempty"`
	Diagnostic string        `json:"diagnostic,omitempty"`
}

func Passed(probe string) Verdict {
	return Verdict{Status: VerdictPassed, Probe: probe}
}

func Failed(probe, actual, expected string) Verdict {
	return Verdict{Status: VerdictFailed, Probe: probe, Actual: actual, Expected: expected}
}

func Errored(probe string, kind FailureKind, diagnostic string) Verdict {
	return Verdict{Status: VerdictErrored, Probe: probe, Kind: kind, Diagnostic: diagnostic}
}

// IsPassed reports whether the verdict passed
func (v Verdict) IsPassed() bool {
	return v.Status == VerdictPassed
}

// ExerciseResult aggregates the verdicts of one graded item
type ExerciseResult struct {
	Passed   bool      `json:"passed"`
	Verdicts []Verdict `json:"verdicts"`
	// FirstFailure is the index of the first non-passing verdict, -1 when all passed.
	FirstFailure int `json:"first_failure"`
	// SetupFailure is set when the preamble or submission itself did not run.
	SetupFailure *Verdict `json:"setup_failure,omitempty"`
}

// NewExerciseResult aggregates verdicts into a result
func NewExerciseResult(verdicts []Verdict) *ExerciseResult {
	r := &ExerciseResult{Passed: len(verdicts) > 0, Verdicts: verdicts, FirstFailure: -1}
	for i, v := range verdicts {
		if !v.IsPassed() {
			r.Passed = false
			if r.FirstFailure < 0 {
				r.FirstFailure = i
			}
		}
	}
	return r
}

// Unavailable reports whether any verdict records an infrastructure failure
func (r *ExerciseResult) Unavailable() bool {
	for _, v := range r.Verdicts {
		if v.Kind == FailureUnavailable {
			return true
		}
	}
	return false
}
