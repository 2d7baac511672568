package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dreamframe/internal/domain"
	"dreamframe/internal/infra"
	"dreamframe/internal/providers/video"
)

const (
	DefaultPollInterval = 10 * time.Second
	DefaultPollBudget   = 5 * time.Minute
)

// Monitor drives a submitted job to a terminal state by polling at a fixed
// interval until the job finishes or the budget runs out.
type Monitor struct {
	Interval time.Duration
	Budget   time.Duration
	Logger   *infra.Logger

	// Now and Sleep default to the wall clock; tests replace them.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewMonitor returns a monitor with defaults for non-positive values.
func NewMonitor(interval, budget time.Duration, logger *infra.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if budget <= 0 {
		budget = DefaultPollBudget
	}
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Monitor{Interval: interval, Budget: budget, Logger: logger}
}

// Wait polls until the job is terminal. It never polls at or after the deadline,
// so it returns within Budget plus one Interval. A SUCCEEDED job returns a nil
// error; FAILED and TIMED_OUT jobs return a classified error alongside the job.
func (m *Monitor) Wait(ctx context.Context, p video.Provider, job domain.ProviderJob) (domain.ProviderJob, error) {
	now := m.Now
	if now == nil {
		now = time.Now
	}
	sleep := m.Sleep
	if sleep == nil {
		sleep = video.SleepContext
	}
	logger := m.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}

	deadline := now().Add(m.Budget)
	polls := 0
	for !job.Status.IsTerminal() {
		remaining := deadline.Sub(now())
		if remaining <= 0 {
			break
		}
		if err := sleep(ctx, min(m.Interval, remaining)); err != nil {
			return job, err
		}
		if !now().Before(deadline) {
			break
		}

		polls++
		polled, err := p.Poll(ctx, job)
		if err != nil {
			if ctx.Err() != nil {
				return job, ctx.Err()
			}
			if domain.KindOf(err) == domain.KindTransport {
				logger.Warn().Err(err).Str("provider", job.Provider).Str("handle", job.Handle).Msg("monitor: poll failed, will retry")
				continue
			}
			job.Detail = err.Error()
			_ = job.Advance(domain.JobStatusFailed)
			return job, err
		}
		if polled.Status != job.Status && !job.Status.CanTransition(polled.Status) {
			logger.Debug().
				Str("provider", job.Provider).
				Str("from", string(job.Status)).
				Str("to", string(polled.Status)).
				Msg("monitor: ignoring status regression")
			continue
		}
		if err := job.Advance(polled.Status); err != nil {
			continue
		}
		if polled.Detail != "" {
			job.Detail = polled.Detail
		}
	}

	switch job.Status {
	case domain.JobStatusSucceeded:
		logger.Debug().Str("provider", job.Provider).Int("polls", polls).Msg("monitor: job succeeded")
		return job, nil
	case domain.JobStatusFailed:
		detail := job.Detail
		if detail == "" {
			detail = "provider reported failure"
		}
		return job, domain.NewProviderError(domain.KindTerminal, job.Provider, "poll", errors.New(detail))
	default:
		job.Detail = fmt.Sprintf("no terminal status after %s (%d polls)", m.Budget, polls)
		_ = job.Advance(domain.JobStatusTimedOut)
		logger.Warn().Str("provider", job.Provider).Str("handle", job.Handle).Int("polls", polls).Msg("monitor: polling budget exhausted")
		return job, domain.NewProviderError(domain.KindTimeout, job.Provider, "poll", errors.New(job.Detail))
	}
}
