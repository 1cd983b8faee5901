package content

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/grader"
)

// VerifyFailure is a reference solution that does not pass its own test cases
type VerifyFailure struct {
	LessonID  string                 `json:"lesson_id"`
	ItemIndex int                    `json:"item"`
	Result    *domain.ExerciseResult `json:"result"`
}

// VerifyReport summarizes a verification run
type VerifyReport struct {
	Checked  int             `json:"checked"`
	Skipped  int             `json:"skipped"` // write_code items without a solution
	Failures []VerifyFailure `json:"failures,omitempty"`
}

// OK reports whether every checked solution passed
func (r *VerifyReport) OK() bool {
	return len(r.Failures) == 0
}

// Verify grades every reference solution in the registry, at most limit at
// a time. A grading infrastructure error aborts the run.
func Verify(ctx context.Context, reg *Registry, g grader.CodeGrader, limit int) (*VerifyReport, error) {
	if limit <= 0 {
		limit = 1
	}

	var (
		mu     sync.Mutex
		report VerifyReport
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)

	for _, lesson := range reg.Lessons() {
		for i, item := range lesson.Items {
			wc, ok := item.(*domain.WriteCode)
			if !ok {
				continue
			}
			if wc.Solution == "" {
				report.Skipped++
				continue
			}

			lessonID, index := lesson.ID, i
			eg.Go(func() error {
				result, err := g.GradeCode(ctx, grader.CodeRequest{
					LessonID:   lessonID,
					ItemIndex:  index,
					Item:       wc,
					Submission: wc.Solution,
				})
				if err != nil {
					return err
				}

				mu.Lock()
				defer mu.Unlock()
				report.Checked++
				if !result.Passed {
					report.Failures = append(report.Failures, VerifyFailure{LessonID: lessonID, ItemIndex: index, Result: result})
				}
				return nil
			})
		}
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sortFailures(report.Failures)
	return &report, nil
}

func sortFailures(failures []VerifyFailure) {
	sort.Slice(failures, func(i, j int) bool {
		a, b := failures[i], failures[j]
		if a.LessonID != b.LessonID {
			return lessLessonID(a.LessonID, b.LessonID)
		}
		return a.ItemIndex < b.ItemIndex
	})
}
