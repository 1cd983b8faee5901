package content

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	lessons, problems, err := Parse([]byte(sampleJSON))
	if err != nil || len(problems) > 0 {
		t.Fatalf("Parse() = %v, %v", problems, err)
	}
	return NewRegistry(lessons)
}

func TestRegistry_Lookup(t *testing.T) {
	reg := testRegistry(t)

	if reg.Count() != 3 {
		t.Errorf("Count() = %d; want 3", reg.Count())
	}
	if _, err := reg.Lesson("missing"); !errors.Is(err, domain.ErrLessonNotFound) {
		t.Errorf("Lesson(missing) error = %v; want ErrLessonNotFound", err)
	}
	if _, err := reg.Item("2", 5); !errors.Is(err, domain.ErrItemNotFound) {
		t.Errorf("Item(2, 5) error = %v; want ErrItemNotFound", err)
	}
	if _, err := reg.WriteCode("10", 0); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("WriteCode(10, 0) error = %v; want ErrInvalidInput", err)
	}
	item, err := reg.Item("10", 0)
	if err != nil {
		t.Fatalf("Item(10, 0) error = %v", err)
	}
	if item.Kind() != domain.KindMultipleChoice {
		t.Errorf("Kind() = %v; want multiple_choice", item.Kind())
	}
}

func TestRegistry_Summaries(t *testing.T) {
	reg := testRegistry(t)

	got := reg.Summaries()
	want := []Summary{
		{ID: "2", Title: "Functions", Items: 1, Code: 1},
		{ID: "10", Items: 1},
		{ID: "intro", Items: 1, Code: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("len(Summaries()) = %d; want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Summaries()[%d] = %+v; want %+v", i, got[i], want[i])
		}
	}
}

func TestLoad_Strict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.json")
	body := `{"ok": [{"type": "multiple_choice", "question": "q", "options": {"a": "x"}, "answer": "a"}],
	          "broken": [{"type": "multiple_choice", "question": "q", "options": {"a": "x"}, "answer": "b"}]}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path, true); !domain.IsContentError(err) {
		t.Errorf("Load(strict) error = %v; want ContentError", err)
	}

	reg, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load(lenient) error = %v", err)
	}
	if reg.Count() != 1 {
		t.Errorf("Count() = %d; want broken lesson skipped", reg.Count())
	}
}
