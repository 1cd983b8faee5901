package domain

// ItemKind discriminates the item variants of a lesson
type ItemKind string

const (
	KindMultipleChoice ItemKind = "multiple_choice"
	KindWriteCode      ItemKind = "write_code"
)

// Lesson is an ordered sequence of quiz items. Lessons are immutable once loaded.
type Lesson struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Items []Item `json:"-"`
}

// Item returns the item at index i
func (l *Lesson) Item(i int) (Item, bool) {
	if i < 0 || i >= len(l.Items) {
		return nil, false
	}
	return l.Items[i], true
}

// Len returns the number of items in the lesson
func (l *Lesson) Len() int {
	return len(l.Items)
}

// Item is one of *MultipleChoice or *WriteCode
type Item interface {
	Kind() ItemKind
	Common() *ItemBase
}

// ItemBase holds the fields shared by every item variant
type ItemBase struct {
	Question string   `json:"question"`
	Hints    []string `json:"hints,omitempty"` // disclosed in order
}

// Common returns the shared item fields
func (b *ItemBase) Common() *ItemBase { return b }

// Hint returns the i-th hint (0-based)
func (b *ItemBase) Hint(i int) (string, bool) {
	if i < 0 || i >= len(b.Hints) {
		return "", false
	}
	return b.Hints[i], true
}

// Option is one selectable answer of a multiple choice item
type Option struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// MultipleChoice is an item answered by picking an option key
type MultipleChoice struct {
	ItemBase
	Options []Option `json:"options"` // declared order
	Answer  string   `json:"-"`
}

func (*MultipleChoice) Kind() ItemKind { return KindMultipleChoice }

// Option looks up an option by key
func (m *MultipleChoice) Option(key string) (Option, bool) {
	for _, o := range m.Options {
		if o.Key == key {
			return o, true
		}
	}
	return Option{}, false
}

// TestCase pairs a probe expression with the canonical text of its expected value
type TestCase struct {
	Probe    string `json:"input"`
	Expected string `json:"output"`
}

// WriteCode is an item answered with source code and graded by probes
type WriteCode struct {
	ItemBase
	PreCode   string     `json:"pre_code,omitempty"`
	TestCases []TestCase `json:"-"`
	Solution  string     `json:"-"`
}

func (*WriteCode) Kind() ItemKind { return KindWriteCode }

// Probes returns the probe expressions in declared order
func (w *WriteCode) Probes() []string {
	probes := make([]string, len(w.TestCases))
	for i, tc := range w.TestCases {
		probes[i] = tc.Probe
	}
	return probes
}
