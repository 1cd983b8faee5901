package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/jspmic/cj11-mesmerizing-meteors/internal/app"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/config"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/content"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/domain"
	"github.com/jspmic/cj11-mesmerizing-meteors/internal/grader"
)

// localGrader wires a grader on this machine without the daemon
func localGrader(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return app.BuildGrader(ctx, cfg)
}

// cmdGrade grades a file against one item of a lesson
func cmdGrade(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: meteor grade <lesson> <item> <file>")
	}
	index, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("item must be a number: %w", err)
	}
	src, err := os.ReadFile(args[2])
	if err != nil {
		return fmt.Errorf("read submission: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := localGrader(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	item, err := a.Content.Item(args[0], index)
	if err != nil {
		return err
	}

	var result *domain.ExerciseResult
	switch it := item.(type) {
	case *domain.MultipleChoice:
		m := grader.MatchingFor(a.Config.Session.FoldChoiceCase())
		result = domain.NewExerciseResult([]domain.Verdict{grader.GradeChoice(it, string(src), m)})
	case *domain.WriteCode:
		result, err = a.Grader.GradeCode(ctx, grader.CodeRequest{
			LessonID:     args[0],
			ItemIndex:    index,
			Item:         it,
			Submission:   string(src),
			IsolationKey: "cli-grade",
		})
		if err != nil {
			return err
		}
	}

	for _, v := range result.Verdicts {
		fmt.Println(v.Text())
	}
	if !result.Passed {
		return fmt.Errorf("lesson %s item %d: not passed", args[0], index)
	}
	fmt.Println("PASS")
	return nil
}

// cmdVerify grades every reference solution, optionally for some lessons only
func cmdVerify(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := localGrader(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	reg := a.Content
	if len(args) > 0 {
		var lessons []*domain.Lesson
		for _, id := range args {
			l, err := reg.Lesson(id)
			if err != nil {
				return err
			}
			lessons = append(lessons, l)
		}
		reg = content.NewRegistry(lessons)
	}

	report, err := content.Verify(ctx, reg, a.Grader, a.Config.Runner.MaxConcurrent)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	for _, f := range report.Failures {
		fmt.Printf("FAIL lesson %s item %d\n", f.LessonID, f.ItemIndex)
		for _, v := range f.Result.Verdicts {
			if !v.IsPassed() {
				fmt.Println("  " + v.Text())
			}
		}
	}
	fmt.Printf("%d solutions checked, %d failed, %d items without a solution\n",
		report.Checked, len(report.Failures), report.Skipped)
	if !report.OK() {
		return fmt.Errorf("%d reference solutions failed", len(report.Failures))
	}
	return nil
}
