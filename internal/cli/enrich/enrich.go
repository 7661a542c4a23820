// Package enrich decorates list entries with follow-up calls in parallel.
package enrich

import (
	"context"

	"ojassist/internal/cli/api"
	"ojassist/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers = 5
	MaxWorkers     = 10
)

// Workers clamps a configured worker count to 1..MaxWorkers and to n items.
func Workers(configured, n int) int {
	if configured <= 0 {
		configured = DefaultWorkers
	}
	if configured > MaxWorkers {
		configured = MaxWorkers
	}
	if n < configured {
		configured = n
	}
	if configured < 1 {
		configured = 1
	}
	return configured
}

// Item pairs an input with its enrichment. Err is set when fetch failed and
// Value holds the zero placeholder.
type Item[In, Out any] struct {
	Input In
	Value Out
	Err   error
}

// Run calls fetch for every input with at most workers in flight and
// returns the results in input order. A failing fetch only affects its own
// item. Run returns early only when ctx is cancelled.
func Run[In, Out any](ctx context.Context, workers int, inputs []In, fetch func(context.Context, In) (Out, error)) ([]Item[In, Out], error) {
	out := make([]Item[In, Out], len(inputs))
	if len(inputs) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(Workers(workers, len(inputs)))
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			out[i].Input = in
			if err := gctx.Err(); err != nil {
				out[i].Err = err
				return nil
			}
			v, err := fetch(gctx, in)
			if err != nil {
				var zero Out
				out[i].Value = zero
				out[i].Err = err
				logger.Warn(ctx, "enrichment failed, using placeholder", zap.Int("index", i), zap.Error(err))
				return nil
			}
			out[i].Value = v
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

// HomeworkSource fetches homework progress.
type HomeworkSource interface {
	HomeworkDetails(ctx context.Context, courseID, homeworkID api.ID) (api.HomeworkDetails, error)
}

// HomeworkRow is a homework with its progress, empty when the fetch failed.
type HomeworkRow struct {
	Homework api.Homework
	Details  api.HomeworkDetails
	Err      error
}

func Homeworks(ctx context.Context, src HomeworkSource, workers int, courseID api.ID, hws []api.Homework) ([]HomeworkRow, error) {
	items, err := Run(ctx, workers, hws, func(ctx context.Context, hw api.Homework) (api.HomeworkDetails, error) {
		return src.HomeworkDetails(ctx, courseID, hw.ID)
	})
	rows := make([]HomeworkRow, len(items))
	for i, it := range items {
		rows[i] = HomeworkRow{Homework: hws[i], Details: it.Value, Err: it.Err}
	}
	return rows, err
}

// ProblemSource fetches problem details and history.
type ProblemSource interface {
	ProblemDetails(ctx context.Context, t api.Target) (api.ProblemDetails, error)
	SubmissionRecords(ctx context.Context, t api.Target) ([]api.SubmissionRecord, error)
}

// ProblemRow is a problem with its details and recent records.
type ProblemRow struct {
	Problem api.Problem
	Details api.ProblemDetails
	Records []api.SubmissionRecord
	Err     error
}

type problemExtra struct {
	details api.ProblemDetails
	records []api.SubmissionRecord
}

// Problems fetches details and records per problem. A failed records call
// keeps the details; a failed details call yields the placeholder.
func Problems(ctx context.Context, src ProblemSource, workers int, courseID, homeworkID api.ID, problems []api.Problem) ([]ProblemRow, error) {
	items, err := Run(ctx, workers, problems, func(ctx context.Context, p api.Problem) (problemExtra, error) {
		t := api.Target{CourseID: courseID, HomeworkID: homeworkID, ProblemID: p.ID}
		details, err := src.ProblemDetails(ctx, t)
		if err != nil {
			return problemExtra{}, err
		}
		records, err := src.SubmissionRecords(ctx, t)
		if err != nil {
			logger.Warn(ctx, "submission records unavailable", zap.String("problem_id", p.ID.String()), zap.Error(err))
		}
		return problemExtra{details: details, records: records}, nil
	})
	rows := make([]ProblemRow, len(items))
	for i, it := range items {
		rows[i] = ProblemRow{Problem: problems[i], Details: it.Value.details, Records: it.Value.records, Err: it.Err}
	}
	return rows, err
}
