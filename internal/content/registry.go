package content

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
)

// Registry provides read-only access to loaded lessons. It is never mutated
// after construction and is safe for concurrent use without locking.
type Registry struct {
	order   []*domain.Lesson
	lessons map[string]*domain.Lesson
}

// NewRegistry creates a registry over already validated lessons
func NewRegistry(lessons []*domain.Lesson) *Registry {
	r := &Registry{
		order:   make([]*domain.Lesson, len(lessons)),
		lessons: make(map[string]*domain.Lesson, len(lessons)),
	}
	copy(r.order, lessons)
	SortLessons(r.order)
	for _, l := range r.order {
		r.lessons[l.ID] = l
	}
	return r
}

// Load reads the lesson bank at path. In strict mode any content problem
// fails the load; otherwise broken lessons are skipped with a warning.
func Load(path string, strict bool) (*Registry, error) {
	lessons, problems, err := LoadPath(path)
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		if strict {
			return nil, fmt.Errorf("load lesson bank: %w", errors.Join(problems...))
		}
		for _, p := range problems {
			slog.Warn("skipping lesson", "error", p)
		}
	}
	if len(lessons) == 0 {
		return nil, fmt.Errorf("load lesson bank: no usable lessons in %s", path)
	}

	slog.Info("lesson bank loaded", "path", path, "lessons", len(lessons), "skipped", len(problems))
	return NewRegistry(lessons), nil
}

// Lesson returns a lesson by id
func (r *Registry) Lesson(id string) (*domain.Lesson, error) {
	l, ok := r.lessons[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrLessonNotFound, id)
	}
	return l, nil
}

// Item returns the item at index of a lesson
func (r *Registry) Item(lessonID string, index int) (domain.Item, error) {
	l, err := r.Lesson(lessonID)
	if err != nil {
		return nil, err
	}
	item, ok := l.Item(index)
	if !ok {
		return nil, fmt.Errorf("%w: lesson %s has no item %d", domain.ErrItemNotFound, lessonID, index)
	}
	return item, nil
}

// WriteCode returns a write_code item, failing for any other kind
func (r *Registry) WriteCode(lessonID string, index int) (*domain.WriteCode, error) {
	item, err := r.Item(lessonID, index)
	if err != nil {
		return nil, err
	}
	wc, ok := item.(*domain.WriteCode)
	if !ok {
		return nil, fmt.Errorf("%w: lesson %s item %d is %s", domain.ErrInvalidInput, lessonID, index, item.Kind())
	}
	return wc, nil
}

// Lessons returns every lesson in id order
func (r *Registry) Lessons() []*domain.Lesson {
	out := make([]*domain.Lesson, len(r.order))
	copy(out, r.order)
	return out
}

// Count returns the number of lessons
func (r *Registry) Count() int {
	return len(r.order)
}

// Summary describes a lesson without exposing answers
type Summary struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Items int    `json:"items"`
	Code  int    `json:"write_code"`
}

// Summaries returns a summary per lesson in id order
func (r *Registry) Summaries() []Summary {
	out := make([]Summary, 0, len(r.order))
	for _, l := range r.order {
		s := Summary{ID: l.ID, Title: l.Title, Items: l.Len()}
		for _, item := range l.Items {
			if item.Kind() == domain.KindWriteCode {
				s.Code++
			}
		}
		out = append(out, s)
	}
	return out
}
