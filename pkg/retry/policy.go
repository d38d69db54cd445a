package retry

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	goretry "github.com/sethvargo/go-retry"
)

// Policy is a bounded retry schedule plus the pause kept between consecutive requests.
type Policy struct {
	// MaxAttempts counts the first try.
	MaxAttempts int
	// Delay is the pause between two consecutive operations of a batch.
	Delay time.Duration
	// Backoff is the wait before each retry; doubled per retry when Exponential is set.
	Backoff     time.Duration
	Exponential bool
	MaxBackoff  time.Duration

	Clock clockwork.Clock
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	return p
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func (p Policy) schedule() goretry.Backoff {
	if p.Backoff <= 0 {
		return goretry.WithMaxRetries(uint64(p.MaxAttempts-1), goretry.BackoffFunc(func() (time.Duration, bool) {
			return 0, false
		}))
	}
	var b goretry.Backoff
	if p.Exponential {
		b = goretry.NewExponential(p.Backoff)
	} else {
		b = goretry.NewConstant(p.Backoff)
	}
	if p.MaxBackoff > 0 {
		b = goretry.WithCappedDuration(p.MaxBackoff, b)
	}
	return goretry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}

// Do runs fn until it succeeds, returns a Permanent error, or the attempt budget is spent.
// It reports the number of attempts made and the last error (unwrapped from Permanent).
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	p = p.withDefaults()
	b := p.schedule()

	attempt := 0
	for {
		attempt++
		err := fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return attempt, perm.err
		}
		wait, stop := b.Next()
		if stop {
			return attempt, err
		}
		if werr := p.sleep(ctx, wait); werr != nil {
			return attempt, errors.Join(err, werr)
		}
	}
}

// Pause waits for the inter-request delay.
func (p Policy) Pause(ctx context.Context) error {
	p = p.withDefaults()
	return p.sleep(ctx, p.Delay)
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.Clock.After(d):
		return nil
	}
}
