package probe

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryChecker re-runs a failed probe up to Attempts times in total, waiting
// an exponentially growing delay starting at Backoff.
type RetryChecker struct {
	Inner    Checker
	Attempts int
	Backoff  time.Duration
}

func (r *RetryChecker) Check(ctx context.Context, req Request) Outcome {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if r.Backoff > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = r.Backoff
		eb.MaxElapsedTime = 0
		b = eb
	}
	b = backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)

	var last Outcome
	tries := 0
	_ = backoff.Retry(func() error {
		tries++
		last = r.Inner.Check(ctx, req)
		if last.Pass {
			return nil
		}
		return errProbeFailed
	}, b)

	if !last.Pass && tries > 1 {
		// annotate message so you can see it was a retry series
		last.Message = last.Message + " (after retries)"
	}
	return last
}

var errProbeFailed = errors.New("probe failed")
