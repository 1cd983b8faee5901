package domain

// Unlimited marks an attempt allowance without a cap
const Unlimited = -1

// Prompt is the learner-facing view of the current item. It never carries
// answers, expected outputs or solutions.
type Prompt struct {
	LessonID    string   `json:"lesson_id"`
	LessonTitle string   `json:"lesson_title,omitempty"`
	Index       int      `json:"index"`
	Total       int      `json:"total"`
	Kind        ItemKind `json:"kind"`
	Question    string   `json:"question"`
	Options     []Option `json:"options,omitempty"`
	PreCode     string   `json:"pre_code,omitempty"`
	// Hints holds the hints revealed so far, in order.
	Hints        []string `json:"hints,omitempty"`
	HintsLeft    int      `json:"hints_left"`
	Attempt      int      `json:"attempt"`
	AttemptsLeft int      `json:"attempts_left"`
}

// NewPrompt builds the view of item index of a lesson with the first
// revealed hints disclosed.
func NewPrompt(lesson *Lesson, index, revealed int) (*Prompt, bool) {
	item, ok := lesson.Item(index)
	if !ok {
		return nil, false
	}
	base := item.Common()
	if revealed > len(base.Hints) {
		revealed = len(base.Hints)
	}

	p := &Prompt{
		LessonID:    lesson.ID,
		LessonTitle: lesson.Title,
		Index:       index,
		Total:       lesson.Len(),
		Kind:        item.Kind(),
		Question:    base.Question,
		HintsLeft:   len(base.Hints) - revealed,
	}
	if revealed > 0 {
		p.Hints = append([]string(nil), base.Hints[:revealed]...)
	}
	switch it := item.(type) {
	case *MultipleChoice:
		p.Options = append([]Option(nil), it.Options...)
	case *WriteCode:
		p.PreCode = it.PreCode
	}
	return p, true
}

// Feedback is the answer to one submission
type Feedback struct {
	Passed  bool      `json:"passed"`
	PerCase []Verdict `json:"per_case"`
	// Hint is the hint disclosed by this attempt, if any.
	Hint       string `json:"hint,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`

	Attempt      int  `json:"attempt"`
	AttemptsLeft int  `json:"attempts_left"`
	Counted      bool `json:"counted"` // false when the attempt was not charged
	Retry        bool `json:"retry"`
	Advanced     bool `json:"advanced"`
	Completed    bool `json:"completed"`

	State string  `json:"state"`
	Next  *Prompt `json:"next,omitempty"`
}

// RunResult is what a playground run printed and how it ended
type RunResult struct {
	Output string `json:"output"`
	// Truncated is set when the program printed more than was kept.
	Truncated  bool        `json:"truncated,omitempty"`
	OK         bool        `json:"ok"`
	Kind       FailureKind `json:"kind,omitempty"`
	Diagnostic string      `json:"diagnostic,omitempty"`
	DurationMS int64       `json:"duration_ms"`
}
