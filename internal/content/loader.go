// Package content loads the lesson bank and serves it read-only.
package content

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/pyrepr"
)

// rawItem is the on-disk shape of one item. Options and test cases are kept
// as nodes so their declared order survives decoding.
type rawItem struct {
	Type      string    `yaml:"type"`
	Question  string    `yaml:"question"`
	Hints     []string  `yaml:"hints"`
	Options   yaml.Node `yaml:"options"`
	Answer    string    `yaml:"answer"`
	PreCode   string    `yaml:"pre_code"`
	TestCases yaml.Node `yaml:"test_cases"`
	Solution  string    `yaml:"solution"`
}

type rawLesson struct {
	Title string    `yaml:"title"`
	Items yaml.Node `yaml:"items"`
}

// Parse decodes a lesson bank document, JSON or YAML. The returned error is
// set when the document itself is unreadable. Lessons with content problems
// are left out of the result and reported in problems as *domain.ContentError.
func Parse(data []byte) (lessons []*domain.Lesson, problems []error, err error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("parse lesson bank: %w", err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) == 1 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("parse lesson bank: top level must map lesson ids to items (line %d)", root.Line)
	}

	seen := make(map[string]bool)
	for i := 0; i+1 < len(root.Content); i += 2 {
		id := strings.TrimSpace(root.Content[i].Value)
		if id == "" {
			problems = append(problems, &domain.ContentError{Lesson: "?", Item: -1, Reason: fmt.Sprintf("empty lesson id (line %d)", root.Content[i].Line)})
			continue
		}
		if seen[id] {
			problems = append(problems, &domain.ContentError{Lesson: id, Item: -1, Reason: "duplicate lesson id"})
			continue
		}
		seen[id] = true

		lesson, errs := parseLesson(id, root.Content[i+1])
		if len(errs) > 0 {
			problems = append(problems, errs...)
			continue
		}
		lessons = append(lessons, lesson)
	}

	SortLessons(lessons)
	return lessons, problems, nil
}

func parseLesson(id string, node *yaml.Node) (*domain.Lesson, []error) {
	lesson := &domain.Lesson{ID: id}
	items := node

	if node.Kind == yaml.MappingNode {
		var raw rawLesson
		if err := node.Decode(&raw); err != nil {
			return nil, []error{&domain.ContentError{Lesson: id, Item: -1, Reason: err.Error()}}
		}
		lesson.Title = raw.Title
		items = &raw.Items
	}
	if items.Kind != yaml.SequenceNode {
		return nil, []error{&domain.ContentError{Lesson: id, Item: -1, Reason: "items must be a sequence"}}
	}
	if len(items.Content) == 0 {
		return nil, []error{&domain.ContentError{Lesson: id, Item: -1, Reason: "lesson has no items"}}
	}

	var problems []error
	for i, n := range items.Content {
		item, err := parseItem(id, i, n)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		lesson.Items = append(lesson.Items, item)
	}
	if len(problems) > 0 {
		return nil, problems
	}
	return lesson, nil
}

func parseItem(lessonID string, index int, node *yaml.Node) (domain.Item, error) {
	fail := func(field, format string, args ...any) error {
		return &domain.ContentError{Lesson: lessonID, Item: index, Field: field, Reason: fmt.Sprintf(format, args...)}
	}

	if node.Kind != yaml.MappingNode {
		return nil, fail("", "item must be a mapping")
	}
	var raw rawItem
	if err := node.Decode(&raw); err != nil {
		return nil, fail("", "%v", err)
	}
	if strings.TrimSpace(raw.Question) == "" {
		return nil, fail("question", "must not be empty")
	}
	base := domain.ItemBase{Question: raw.Question, Hints: raw.Hints}

	switch domain.ItemKind(raw.Type) {
	case domain.KindMultipleChoice:
		options, err := parseOptions(&raw.Options)
		if err != nil {
			return nil, fail("options", "%v", err)
		}
		item := &domain.MultipleChoice{ItemBase: base, Options: options, Answer: raw.Answer}
		if _, ok := item.Option(raw.Answer); !ok {
			return nil, fail("answer", "%q is not one of the options", raw.Answer)
		}
		return item, nil

	case domain.KindWriteCode:
		cases, err := parseTestCases(&raw.TestCases)
		if err != nil {
			return nil, fail("test_cases", "%v", err)
		}
		for i := range cases {
			if strings.TrimSpace(cases[i].Probe) == "" {
				return nil, fail(fmt.Sprintf("test_cases[%d].input", i), "must not be empty")
			}
			canon, err := canonicalExpected(cases[i].Expected)
			if err != nil {
				return nil, fail(fmt.Sprintf("test_cases[%d].output", i), "%v", err)
			}
			cases[i].Expected = canon
		}
		return &domain.WriteCode{ItemBase: base, PreCode: raw.PreCode, TestCases: cases, Solution: raw.Solution}, nil

	case "":
		return nil, fail("type", "missing")
	default:
		return nil, fail("type", "unknown item type %q", raw.Type)
	}
}

// parseOptions accepts a key to text mapping or a sequence of {key, text}.
func parseOptions(node *yaml.Node) ([]domain.Option, error) {
	var options []domain.Option
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			options = append(options, domain.Option{Key: node.Content[i].Value, Text: node.Content[i+1].Value})
		}
	case yaml.SequenceNode:
		if err := node.Decode(&options); err != nil {
			return nil, err
		}
	case 0:
		return nil, errors.New("missing")
	default:
		return nil, errors.New("must be a mapping of key to text")
	}
	if len(options) == 0 {
		return nil, errors.New("at least one option is required")
	}

	keys := make(map[string]bool, len(options))
	for _, o := range options {
		if strings.TrimSpace(o.Key) == "" {
			return nil, errors.New("option key must not be empty")
		}
		if keys[o.Key] {
			return nil, fmt.Errorf("duplicate option key %q", o.Key)
		}
		keys[o.Key] = true
	}
	return options, nil
}

// parseTestCases accepts {input, output} mappings or [input, output] pairs.
func parseTestCases(node *yaml.Node) ([]domain.TestCase, error) {
	if node.Kind == 0 {
		return nil, errors.New("missing")
	}
	if node.Kind != yaml.SequenceNode {
		return nil, errors.New("must be a sequence")
	}
	if len(node.Content) == 0 {
		return nil, errors.New("at least one test case is required")
	}

	cases := make([]domain.TestCase, 0, len(node.Content))
	for i, n := range node.Content {
		switch n.Kind {
		case yaml.MappingNode:
			var tc domain.TestCase
			for j := 0; j+1 < len(n.Content); j += 2 {
				switch n.Content[j].Value {
				case "input":
					tc.Probe = n.Content[j+1].Value
				case "output":
					tc.Expected = n.Content[j+1].Value
				default:
					return nil, fmt.Errorf("case %d: unknown field %q", i, n.Content[j].Value)
				}
			}
			cases = append(cases, tc)
		case yaml.SequenceNode:
			if len(n.Content) != 2 {
				return nil, fmt.Errorf("case %d: want [input, output], got %d elements", i, len(n.Content))
			}
			cases = append(cases, domain.TestCase{Probe: n.Content[0].Value, Expected: n.Content[1].Value})
		default:
			return nil, fmt.Errorf("case %d: must be {input, output} or [input, output]", i)
		}
	}
	return cases, nil
}

// canonicalExpected normalizes an expected output to the form live results
// render to, so equal values always compare equal.
func canonicalExpected(text string) (string, error) {
	v, err := pyrepr.Parse(text)
	if err != nil {
		return "", fmt.Errorf("not a literal value: %w", err)
	}
	canon, err := pyrepr.Canonicalize(v)
	if err != nil {
		return "", err
	}
	return canon, nil
}

// SortLessons orders lessons by id, numeric ids first and numerically.
func SortLessons(lessons []*domain.Lesson) {
	sort.SliceStable(lessons, func(i, j int) bool {
		return lessLessonID(lessons[i].ID, lessons[j].ID)
	})
}

func lessLessonID(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		if na != nb {
			return na < nb
		}
		return a < b
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}

// isBankFile reports whether a file name looks like a lesson bank document
func isBankFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// LoadPath reads a lesson bank from a file, or from every bank file in a
// directory. Lesson ids must be unique across files.
func LoadPath(path string) (lessons []*domain.Lesson, problems []error, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("stat lesson bank: %w", err)
	}

	files := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, nil, fmt.Errorf("read lesson directory: %w", err)
		}
		files = files[:0]
		for _, e := range entries {
			if !e.IsDir() && isBankFile(e.Name()) {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
		if len(files) == 0 {
			return nil, nil, fmt.Errorf("no lesson files in %s", path)
		}
	}

	seen := make(map[string]string)
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, nil, fmt.Errorf("read lesson file: %w", err)
		}
		ls, probs, err := Parse(data)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", file, err)
		}
		problems = append(problems, probs...)
		for _, l := range ls {
			if prev, dup := seen[l.ID]; dup {
				problems = append(problems, &domain.ContentError{Lesson: l.ID, Item: -1, Reason: "also defined in " + prev})
				continue
			}
			seen[l.ID] = file
			lessons = append(lessons, l)
		}
	}

	SortLessons(lessons)
	return lessons, problems, nil
}
