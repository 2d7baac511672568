// Package worker consumes queued generation ids and drives each through the
// orchestrator, recording the outcome and publishing a result event.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"dreamframe/internal/domain"
	"dreamframe/internal/events"
	"dreamframe/internal/infra"
	"dreamframe/internal/queue"
)

const (
	DefaultPopWait       = 5 * time.Second
	DefaultDepthInterval = 15 * time.Second

	errorBackoff   = 2 * time.Second
	publishTimeout = 10 * time.Second
)

// Queue is the consumer side of the request queue.
type Queue interface {
	Pop(ctx context.Context, wait time.Duration) (string, error)
	Push(ctx context.Context, id string) error
	Depth(ctx context.Context) (int64, error)
}

// Generator produces the video for a request.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResult, error)
}

// ImageReader loads uploaded source images.
type ImageReader interface {
	Read(ctx context.Context, key string) ([]byte, error)
}

// DepthRecorder receives queue depth samples.
type DepthRecorder interface {
	SetQueueDepth(n int64)
}

// Options configures a Pool.
type Options struct {
	Queue       Queue
	Repo        domain.GenerationRepository
	Generator   Generator
	Images      ImageReader
	Events      events.Publisher
	Metrics     DepthRecorder
	Logger      *infra.Logger
	Concurrency int

	PopWait       time.Duration
	DepthInterval time.Duration
}

// Pool runs Concurrency consumers, each handling one request at a time.
type Pool struct {
	opts   Options
	logger *infra.Logger
}

func NewPool(opts Options) (*Pool, error) {
	if opts.Queue == nil || opts.Repo == nil || opts.Generator == nil {
		return nil, errors.New("worker: queue, repository and generator are required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.PopWait <= 0 {
		opts.PopWait = DefaultPopWait
	}
	if opts.DepthInterval <= 0 {
		opts.DepthInterval = DefaultDepthInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	if opts.Events == nil {
		opts.Events = events.LogPublisher{Logger: logger}
	}
	return &Pool{opts: opts, logger: logger}, nil
}

// Run blocks until ctx ends. Requests in flight at shutdown are requeued.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info().Int("concurrency", p.opts.Concurrency).Msg("worker: started")
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.opts.Concurrency; i++ {
		slot := i
		g.Go(func() error { return p.consume(ctx, slot) })
	}
	if p.opts.Metrics != nil {
		g.Go(func() error { return p.sampleDepth(ctx) })
	}
	err := g.Wait()
	p.logger.Info().Msg("worker: stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *Pool) consume(ctx context.Context, slot int) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, err := p.opts.Queue.Pop(ctx, p.opts.PopWait)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Error().Err(err).Int("slot", slot).Msg("worker: pop failed")
			if serr := sleep(ctx, errorBackoff); serr != nil {
				return serr
			}
			continue
		}
		p.Handle(ctx, id)
	}
}

// Handle processes one request id end to end.
func (p *Pool) Handle(ctx context.Context, id string) {
	logger := p.logger.With().Str("generation_id", id).Logger()

	rec, err := p.opts.Repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn().Msg("worker: unknown id dropped")
			return
		}
		logger.Error().Err(err).Msg("worker: load record failed")
		p.requeue(ctx, id, logger)
		return
	}
	if rec.Status == domain.RecordSucceeded || rec.Status == domain.RecordFailed {
		logger.Info().Str("status", string(rec.Status)).Msg("worker: already finished, skipping")
		return
	}
	if err := p.opts.Repo.MarkRunning(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Info().Msg("worker: record no longer claimable, skipping")
			return
		}
		logger.Error().Err(err).Msg("worker: mark running failed")
		p.requeue(ctx, id, logger)
		return
	}

	req := domain.NewGenerationRequest(rec.ID, rec.OrderID, rec.Prompt, rec.Duration, string(rec.AspectRatio), p.sourceImage(ctx, rec, logger))
	logger.Info().Int("duration", req.Duration).Bool("has_image", req.HasImage()).Msg("worker: generating")

	result, err := p.opts.Generator.Generate(ctx, req)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		logger.Warn().Msg("worker: interrupted, requeueing")
		p.requeue(ctx, id, logger)
		return
	}
	if result == nil {
		result = &domain.GenerationResult{RequestID: id}
	}

	if err != nil {
		result.Success = false
		result.ErrorDetail = UserMessage(err)
		if ferr := p.opts.Repo.Fail(ctx, id, result.ErrorDetail, result.Attempts); ferr != nil {
			logger.Error().Err(ferr).Msg("worker: mark failed failed")
		}
		logger.Error().Err(err).Msg("worker: generation failed")
	} else if cerr := p.opts.Repo.Complete(ctx, result); cerr != nil {
		logger.Error().Err(cerr).Str("location", result.VideoLocation).Msg("worker: complete record failed")
	}

	p.publish(ctx, rec.OrderID, result, logger)
}

func (p *Pool) sourceImage(ctx context.Context, rec *domain.GenerationRecord, logger infra.Logger) *domain.SourceImage {
	if rec.ImageKey == "" || p.opts.Images == nil {
		return nil
	}
	data, err := p.opts.Images.Read(ctx, rec.ImageKey)
	if err != nil {
		logger.Warn().Err(err).Str("key", rec.ImageKey).Msg("worker: source image unavailable, continuing without it")
		return nil
	}
	return &domain.SourceImage{Data: data, MIME: rec.ImageMIME}
}

func (p *Pool) publish(ctx context.Context, orderID string, result *domain.GenerationResult, logger infra.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	ev := events.NewResultEvent(orderID, result)
	if err := p.opts.Events.Publish(ctx, ev); err != nil {
		logger.Error().Err(err).Str("type", ev.Type).Msg("worker: publish result failed")
	}
}

// requeue returns the request to the queue. It runs detached from ctx so that
// shutdown does not lose the request.
func (p *Pool) requeue(ctx context.Context, id string, logger infra.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.opts.Repo.Requeue(ctx, id); err != nil {
		logger.Error().Err(err).Msg("worker: reset record failed")
	}
	if err := p.opts.Queue.Push(ctx, id); err != nil {
		logger.Error().Err(err).Msg("worker: requeue failed")
	}
}

func (p *Pool) sampleDepth(ctx context.Context) error {
	ticker := time.NewTicker(p.opts.DepthInterval)
	defer ticker.Stop()
	for {
		if n, err := p.opts.Queue.Depth(ctx); err == nil {
			p.opts.Metrics.SetQueueDepth(n)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// UserMessage turns a hard generation failure into text safe to show customers.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrStorage):
		return "The video was generated but could not be saved. Please try again."
	case errors.Is(err, domain.ErrSynthesisFailed):
		return "The video could not be generated. Please try again."
	default:
		return fmt.Sprintf("Generation failed: %v", err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
