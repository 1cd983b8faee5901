package domain

import (
	"fmt"
	"strings"
)

// Text renders the prompt for a terminal or a chat client
func (p *Prompt) Text() string {
	var b strings.Builder
	title := p.LessonID
	if p.LessonTitle != "" {
		title = p.LessonTitle
	}
	fmt.Fprintf(&b, "[%s %d/%d] %s\n", title, p.Index+1, p.Total, p.Question)

	for _, o := range p.Options {
		fmt.Fprintf(&b, "  %s) %s\n", o.Key, o.Text)
	}
	if p.PreCode != "" {
		fmt.Fprintf(&b, "Your code continues after:\n  %s\n", p.PreCode)
	}
	for i, h := range p.Hints {
		fmt.Fprintf(&b, "Hint %d: %s\n", i+1, h)
	}
	if p.AttemptsLeft != Unlimited && p.AttemptsLeft > 0 {
		fmt.Fprintf(&b, "Attempts left: %d\n", p.AttemptsLeft)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Text renders one verdict on a single line
func (v Verdict) Text() string {
	switch v.Status {
	case VerdictPassed:
		if v.Probe == "" {
			return "ok"
		}
		return "ok   " + v.Probe
	case VerdictFailed:
		if v.Expected == "" {
			return "FAIL " + v.Probe
		}
		return fmt.Sprintf("FAIL %s: got %s, want %s", v.Probe, v.Actual, v.Expected)
	default:
		if v.Probe == "" {
			return fmt.Sprintf("ERR  %s: %s", v.Kind, v.Diagnostic)
		}
		return fmt.Sprintf("ERR  %s: %s: %s", v.Probe, v.Kind, v.Diagnostic)
	}
}

// Text renders the feedback summary followed by one line per verdict
func (f *Feedback) Text() string {
	var b strings.Builder
	switch {
	case !f.Counted:
		b.WriteString("Not graded.")
		if f.Diagnostic != "" {
			b.WriteString(" " + f.Diagnostic)
		}
	case f.Passed:
		b.WriteString("Correct!")
	case f.Retry:
		b.WriteString("Not quite, try again.")
	default:
		b.WriteString("Not quite. Moving on.")
	}
	b.WriteString("\n")

	if f.Counted && (len(f.PerCase) > 1 || !f.Passed) {
		for _, v := range f.PerCase {
			b.WriteString("  " + v.Text() + "\n")
		}
	}
	if f.Hint != "" {
		fmt.Fprintf(&b, "Hint: %s\n", f.Hint)
	}
	if f.Completed {
		b.WriteString("Lesson complete.\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Text renders a playground run for a terminal
func (r *RunResult) Text() string {
	var b strings.Builder
	if r.Output == "" {
		b.WriteString("(no output)\n")
	} else {
		b.WriteString(r.Output)
		if !strings.HasSuffix(r.Output, "\n") {
			b.WriteString("\n")
		}
	}
	if r.Truncated {
		b.WriteString("[output truncated]\n")
	}
	if !r.OK && r.Diagnostic != "" {
		b.WriteString(r.Diagnostic + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
