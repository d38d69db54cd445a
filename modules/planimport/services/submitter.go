package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seoplan/planner/modules/planimport/domain/outcome"
	"github.com/seoplan/planner/pkg/logging"
	"github.com/seoplan/planner/pkg/retry"
)

type SubmitterOptions struct {
	Policy retry.Policy
	// MaxErrors bounds Report.Errors; further messages are only counted.
	MaxErrors int
	Logger    *logrus.Entry
}

func (o *SubmitterOptions) setDefaults() {
	if o.MaxErrors == 0 {
		o.MaxErrors = 50
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
}

// Task is one backend write. Label names it in error messages, e.g. "line 4" or "record 17".
type Task struct {
	Label string
	Run   func(ctx context.Context) error
}

type Report struct {
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
	// Truncated counts error messages dropped past the bound.
	Truncated int `json:"errors_truncated,omitempty"`
}

func (r *Report) addError(limit int, msg string) {
	r.Failed++
	if len(r.Errors) < limit {
		r.Errors = append(r.Errors, msg)
		return
	}
	r.Truncated++
}

// Submitter runs writes one at a time with a pause between them. A failed write is retried
// under the policy, then recorded, and the next write proceeds.
type Submitter struct {
	opts SubmitterOptions
}

func NewSubmitter(opts SubmitterOptions) *Submitter {
	opts.setDefaults()
	return &Submitter{opts: opts}
}

// Run attempts every task once plus its retries. Backend rejections are not retried.
// If ctx ends, the remaining tasks are reported as failed without being attempted.
func (s *Submitter) Run(ctx context.Context, tasks []Task) Report {
	rep := Report{Errors: []string{}}
	for i, task := range tasks {
		if i > 0 {
			if err := s.opts.Policy.Pause(ctx); err != nil {
				s.abandon(&rep, tasks[i:], err)
				return rep
			}
		}
		log := s.opts.Logger.WithField("item", task.Label)
		started := time.Now()
		attempts, err := s.opts.Policy.Do(ctx, func(ctx context.Context, attempt int) error {
			err := task.Run(ctx)
			if err == nil {
				return nil
			}
			if errors.Is(err, outcome.ErrRejected) {
				return retry.Permanent(err)
			}
			log.WithError(err).WithField("attempt", attempt).Warn("item submission failed")
			return err
		})
		observeRequest("item", started)
		recordItemResult(err == nil)
		if err != nil {
			rep.addError(s.opts.MaxErrors, fmt.Sprintf("%s: %v", task.Label, err))
			log.WithError(err).WithField("attempts", attempts).Error("item abandoned")
			if ctx.Err() != nil {
				s.abandon(&rep, tasks[i+1:], ctx.Err())
				return rep
			}
			continue
		}
		rep.Succeeded++
	}
	return rep
}

func (s *Submitter) abandon(rep *Report, rest []Task, cause error) {
	for _, t := range rest {
		rep.addError(s.opts.MaxErrors, fmt.Sprintf("%s: not attempted: %v", t.Label, cause))
	}
}
