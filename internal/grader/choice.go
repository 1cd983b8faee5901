package grader

import (
	"strings"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
)

// Matching selects how choice input is compared with option keys
type Matching int

const (
	// MatchExact accepts only trimmed input equal to an option key.
	MatchExact Matching = iota
	// MatchFoldCase also accepts a unique case-insensitive match.
	MatchFoldCase
)

// MatchingFor returns MatchFoldCase when foldCase is set
func MatchingFor(foldCase bool) Matching {
	if foldCase {
		return MatchFoldCase
	}
	return MatchExact
}

// GradeChoice grades a multiple choice answer. The input is trimmed and
// matched against option keys; with MatchFoldCase a unique case-insensitive
// match is accepted too and the verdict says which key it was read as. An
// unknown key yields an InvalidOption verdict.
func GradeChoice(item *domain.MultipleChoice, raw string, m Matching) domain.Verdict {
	key, ok := ResolveOption(item, raw, m)
	if !ok {
		return domain.Errored(strings.TrimSpace(raw), domain.FailureInvalidOption, invalidOptionMessage(item, raw))
	}
	var v domain.Verdict
	if key == item.Answer {
		v = domain.Passed(key)
	} else {
		v = domain.Failed(key, key, "")
	}
	if in := strings.TrimSpace(raw); in != key {
		v.Diagnostic = "read '" + in + "' as option '" + key + "'"
	}
	return v
}

// ResolveOption maps learner input to an option key
func ResolveOption(item *domain.MultipleChoice, raw string, m Matching) (string, bool) {
	in := strings.TrimSpace(raw)
	if in == "" {
		return "", false
	}
	if _, ok := item.Option(in); ok {
		return in, true
	}
	if m != MatchFoldCase {
		return "", false
	}

	match := ""
	for _, o := range item.Options {
		if strings.EqualFold(o.Key, in) {
			if match != "" {
				return "", false
			}
			match = o.Key
		}
	}
	return match, match != ""
}

func invalidOptionMessage(item *domain.MultipleChoice, raw string) string {
	keys := make([]string, len(item.Options))
	for i, o := range item.Options {
		keys[i] = o.Key
	}
	in := strings.TrimSpace(raw)
	if in == "" {
		return "no option selected; choose one of " + strings.Join(keys, ", ")
	}
	return "'" + in + "' is not an option; choose one of " + strings.Join(keys, ", ")
}
