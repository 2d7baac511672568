package video

import (
	"context"
	"time"

	"dreamframe/internal/domain"
	"dreamframe/internal/infra"
)

// RetryPolicy retries transport failures with exponential backoff. Other error kinds
// are returned immediately.
type RetryPolicy struct {
	Retries   int
	BaseDelay time.Duration
	Logger    *infra.Logger
	// Sleep waits for d or until ctx ends. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy allows two retries after 1s and 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Retries: 2, BaseDelay: time.Second}
}

// Do runs fn until it succeeds, fails with a non-transport error, or retries run out.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	delay := p.BaseDelay
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil || domain.KindOf(err) != domain.KindTransport || attempt >= p.Retries {
			return err
		}
		if p.Logger != nil {
			p.Logger.Warn().Err(err).Str("op", op).Int("attempt", attempt+1).Dur("backoff", delay).Msg("retrying after transport error")
		}
		if serr := sleep(ctx, delay); serr != nil {
			return err
		}
		delay *= 2
	}
}

// SleepContext blocks for d unless ctx is done first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
