package domain

import (
	"errors"
	"fmt"
)

// Content errors
var (
	ErrLessonNotFound = errors.New("lesson not found")
	ErrItemNotFound   = errors.New("item not found")
)

// ErrInvalidInput marks a malformed request
var ErrInvalidInput = errors.New("invalid input")

// ContentError reports a malformed content bank entry. Item is -1 when the
// problem concerns the lesson as a whole.
type ContentError struct {
	Lesson string
	Item   int
	Field  string
	Reason string
}

func (e *ContentError) Error() string {
	switch {
	case e.Item < 0:
		return fmt.Sprintf("lesson %s: %s", e.Lesson, e.Reason)
	case e.Field == "":
		return fmt.Sprintf("lesson %s item %d: %s", e.Lesson, e.Item, e.Reason)
	default:
		return fmt.Sprintf("lesson %s item %d: %s: %s", e.Lesson, e.Item, e.Field, e.Reason)
	}
}

// IsContentError reports whether err wraps a ContentError
func IsContentError(err error) bool {
	var ce *ContentError
	return errors.As(err, &ce)
}
