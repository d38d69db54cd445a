package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/seoplan/planner/modules/planimport/domain/outcome"
	"github.com/seoplan/planner/pkg/retry"
	"github.com/seoplan/planner/pkg/serrors"
)

// runWithClock runs fn in the background and advances clock until fn returns.
func runWithClock[T any](t *testing.T, clock *clockwork.FakeClock, step time.Duration, fn func() T) T {
	t.Helper()
	done := make(chan T, 1)
	go func() { done <- fn() }()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case v := <-done:
			return v
		case <-deadline:
			t.Fatal("timed out waiting for submission")
		default:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		if err := clock.BlockUntilContext(ctx, 1); err == nil {
			clock.Advance(step)
		}
		cancel()
	}
}

func TestSubmitter_ContinuesAfterFailures(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewSubmitter(SubmitterOptions{
		Policy: retry.Policy{MaxAttempts: 3, Delay: 150 * time.Millisecond, Backoff: time.Second, Clock: clock},
	})

	calls := map[string]int{}
	task := func(label string, failures int, err error) Task {
		return Task{Label: label, Run: func(context.Context) error {
			calls[label]++
			if calls[label] <= failures {
				return err
			}
			return nil
		}}
	}
	transport := serrors.Wrap(ErrTransport, "connection reset")
	rejected := outcome.Rejected{Status: 400, Reason: "bad item"}.Err()

	rep := runWithClock(t, clock, time.Second, func() Report {
		return s.Run(context.Background(), []Task{
			task("line 2", 0, nil),
			task("line 3", 2, transport),
			task("line 4", 5, transport),
			task("line 5", 5, rejected),
			task("line 6", 0, nil),
		})
	})

	require.Equal(t, 3, rep.Succeeded)
	require.Equal(t, 2, rep.Failed)
	require.Len(t, rep.Errors, 2)
	require.Contains(t, rep.Errors[0], "line 4")
	require.Contains(t, rep.Errors[1], "line 5")
	require.Equal(t, map[string]int{"line 2": 1, "line 3": 3, "line 4": 3, "line 5": 1, "line 6": 1}, calls)
}

func TestSubmitter_BoundsErrorList(t *testing.T) {
	s := NewSubmitter(SubmitterOptions{
		Policy:    retry.Policy{MaxAttempts: 1},
		MaxErrors: 2,
	})
	tasks := make([]Task, 5)
	for i := range tasks {
		tasks[i] = Task{Label: fmt.Sprintf("record %d", i), Run: func(context.Context) error {
			return errors.New("boom")
		}}
	}
	rep := s.Run(context.Background(), tasks)
	require.Equal(t, 5, rep.Failed)
	require.Len(t, rep.Errors, 2)
	require.Equal(t, 3, rep.Truncated)
}

func TestSubmitter_CancelledContextSkipsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSubmitter(SubmitterOptions{Policy: retry.Policy{MaxAttempts: 1}})

	attempted := 0
	tasks := []Task{
		{Label: "a", Run: func(context.Context) error { attempted++; cancel(); return nil }},
		{Label: "b", Run: func(context.Context) error { attempted++; return nil }},
		{Label: "c", Run: func(context.Context) error { attempted++; return nil }},
	}
	rep := s.Run(ctx, tasks)
	require.Equal(t, 1, attempted)
	require.Equal(t, 1, rep.Succeeded)
	require.Equal(t, 2, rep.Failed)
	require.Contains(t, rep.Errors[0], "not attempted")
}
