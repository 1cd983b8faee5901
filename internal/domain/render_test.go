package domain

import (
	"strings"
	"testing"
)

func TestPromptText(t *testing.T) {
	p := &Prompt{
		LessonID:     "4",
		LessonTitle:  "Functions",
		Index:        0,
		Total:        2,
		Question:     "Which keyword defines a function?",
		Options:      []Option{{Key: "a", Text: "func"}, {Key: "b", Text: "def"}},
		Hints:        []string{"Python spells it out"},
		AttemptsLeft: 2,
	}
	got := p.Text()
	for _, want := range []string{"[Functions 1/2]", "  a) func\n  b) def", "Hint 1: Python spells it out", "Attempts left: 2"} {
		if !strings.Contains(got, want) {
			t.Errorf("Text() = %q; missing %q", got, want)
		}
	}

	p = &Prompt{LessonID: "7", Index: 1, Total: 3, Question: "Fill in", PreCode: "squares = ", AttemptsLeft: Unlimited}
	got = p.Text()
	if !strings.HasPrefix(got, "[7 2/3] Fill in") || !strings.Contains(got, "squares = ") {
		t.Errorf("Text() = %q", got)
	}
	if strings.Contains(got, "Attempts left") {
		t.Errorf("Text() = %q; want no attempts line when unlimited", got)
	}
}

func TestVerdictText(t *testing.T) {
	tests := []struct {
		v    Verdict
		want string
	}{
		{Passed("f()"), "ok   f()"},
		{Passed(""), "ok"},
		{Failed("f()", "5", "6"), "FAIL f(): got 5, want 6"},
		{Failed("a", "a", ""), "FAIL a"},
		{Errored("f()", FailureTimeout, "exceeded 2s"), "ERR  f(): Timeout: exceeded 2s"},
		{Errored("", FailureSyntax, "invalid syntax"), "ERR  SyntaxError: invalid syntax"},
	}
	for _, tt := range tests {
		if got := tt.v.Text(); got != tt.want {
			t.Errorf("Text() = %q; want %q", got, tt.want)
		}
	}
}

func TestFeedbackText(t *testing.T) {
	tests := []struct {
		name string
		fb   Feedback
		want []string
		not  []string
	}{
		{
			name: "passed choice",
			fb:   Feedback{Passed: true, Counted: true, PerCase: []Verdict{Passed("b")}},
			want: []string{"Correct!"},
			not:  []string{"ok   b"},
		},
		{
			name: "retry with hint",
			fb: Feedback{Counted: true, Retry: true, Hint: "use *",
				PerCase: []Verdict{Passed("f(1)"), Failed("f(2)", "3", "4")}},
			want: []string{"Not quite, try again.", "ok   f(1)", "FAIL f(2): got 3, want 4", "Hint: use *"},
		},
		{
			name: "not counted",
			fb:   Feedback{Diagnostic: "grading unavailable"},
			want: []string{"Not graded. grading unavailable"},
		},
		{
			name: "completed",
			fb:   Feedback{Counted: true, Passed: true, Completed: true, PerCase: []Verdict{Passed("x")}},
			want: []string{"Correct!", "Lesson complete."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fb.Text()
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("Text() = %q; missing %q", got, w)
				}
			}
			for _, n := range tt.not {
				if strings.Contains(got, n) {
					t.Errorf("Text() = %q; unexpected %q", got, n)
				}
			}
		})
	}
}

func TestRunResultText(t *testing.T) {
	tests := []struct {
		name string
		res  RunResult
		want string
	}{
		{"printed", RunResult{Output: "hello\n", OK: true}, "hello"},
		{"silent", RunResult{OK: true}, "(no output)"},
		{"truncated", RunResult{Output: "xxxx", Truncated: true, OK: true}, "xxxx\n[output truncated]"},
		{
			"raised",
			RunResult{Output: "before\n", Kind: FailureName, Diagnostic: "NameError: name 'x' is not defined (line 2)"},
			"before\nNameError: name 'x' is not defined (line 2)",
		},
		{"timed out", RunResult{Kind: FailureTimeout, Diagnostic: "timed out after 2s"}, "(no output)\ntimed out after 2s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.res.Text(); got != tt.want {
				t.Errorf("Text() = %q; want %q", got, tt.want)
			}
		})
	}
}
