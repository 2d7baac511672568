// Package generation turns a GenerationRequest into exactly one stored video by
// trying remote providers in priority order and falling back to local synthesis.
package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dreamframe/internal/domain"
	"dreamframe/internal/infra"
	"dreamframe/internal/providers/video"
	"dreamframe/internal/storage"
)

// VideoStore persists finished videos.
type VideoStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	Location(key string) string
}

// Synthesizer renders the local placeholder video.
type Synthesizer interface {
	Synthesize(ctx context.Context, req domain.GenerationRequest) (*domain.VideoPayload, error)
}

// Recorder receives orchestration metrics.
type Recorder interface {
	ObserveAttempt(provider, outcome string)
	ObserveDisabled(provider string)
	ObserveGeneration(provider string, elapsed time.Duration, success bool)
}

// Options configures an Orchestrator. Providers are tried in slice order.
type Options struct {
	Providers   []video.Provider
	Monitor     *Monitor
	Retry       video.RetryPolicy
	Store       VideoStore
	Synthesizer Synthesizer
	Metrics     Recorder
	Logger      *infra.Logger
}

// Orchestrator runs the provider fallback chain. It is safe for concurrent use;
// the only state shared between requests is the set of disabled providers.
type Orchestrator struct {
	providers   []video.Provider
	monitor     *Monitor
	retry       video.RetryPolicy
	store       VideoStore
	synthesizer Synthesizer
	metrics     Recorder
	logger      *infra.Logger

	mu       sync.RWMutex
	disabled map[string]struct{}
}

// NewOrchestrator validates opts and applies defaults.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, errors.New("generation: video store is required")
	}
	if opts.Synthesizer == nil {
		return nil, errors.New("generation: synthesizer is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	monitor := opts.Monitor
	if monitor == nil {
		monitor = NewMonitor(0, 0, logger)
	}
	if opts.Retry.Logger == nil {
		opts.Retry.Logger = logger
	}
	seen := make(map[string]struct{}, len(opts.Providers))
	for _, p := range opts.Providers {
		if p == nil {
			return nil, errors.New("generation: nil provider")
		}
		if _, dup := seen[p.Name()]; dup {
			return nil, fmt.Errorf("generation: provider %q listed twice", p.Name())
		}
		seen[p.Name()] = struct{}{}
	}
	return &Orchestrator{
		providers:   append([]video.Provider(nil), opts.Providers...),
		monitor:     monitor,
		retry:       opts.Retry,
		store:       opts.Store,
		synthesizer: opts.Synthesizer,
		metrics:     opts.Metrics,
		logger:      logger,
		disabled:    make(map[string]struct{}),
	}, nil
}

// Providers lists provider names in priority order.
func (o *Orchestrator) Providers() []string {
	names := make([]string, 0, len(o.providers))
	for _, p := range o.providers {
		names = append(names, p.Name())
	}
	return names
}

// Disabled reports whether name was switched off after an unsupported-endpoint error.
func (o *Orchestrator) Disabled(name string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.disabled[name]
	return ok
}

func (o *Orchestrator) disable(name string) {
	o.mu.Lock()
	_, already := o.disabled[name]
	o.disabled[name] = struct{}{}
	o.mu.Unlock()
	if !already {
		o.logger.Warn().Str("provider", name).Msg("orchestrator: provider disabled for the rest of the process")
		if o.metrics != nil {
			o.metrics.ObserveDisabled(name)
		}
	}
}

// Generate produces the single result for req. Remote failures are absorbed; the
// only errors returned wrap domain.ErrStorage or domain.ErrSynthesisFailed, or
// the context's error if ctx ends first. On error the returned result still
// carries the attempt log.
func (o *Orchestrator) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResult, error) {
	start := time.Now()
	result := &domain.GenerationResult{RequestID: req.ID}
	reqLog := o.logger.With().Str("request_id", req.ID).Logger()

	for _, p := range o.providers {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		name := p.Name()
		if o.Disabled(name) {
			o.record(result, domain.Attempt{Provider: name, Outcome: domain.OutcomeSkipped, Error: "provider disabled"})
			continue
		}

		attemptStart := time.Now()
		payload, err := o.attempt(ctx, p, req)
		elapsed := time.Since(attemptStart)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			o.record(result, domain.Attempt{Provider: name, Outcome: domain.OutcomeFor(err), Error: err.Error(), Elapsed: elapsed})
			o.handleFailure(p, err)
			reqLog.Warn().Err(err).Str("provider", name).Dur("elapsed", elapsed).Msg("orchestrator: provider failed, trying next")
			continue
		}

		o.record(result, domain.Attempt{Provider: name, Outcome: domain.OutcomeSucceeded, Elapsed: elapsed})
		if err := o.persist(ctx, req, payload, result); err != nil {
			return o.fail(result, start, err)
		}
		return o.succeed(result, name, start, reqLog), nil
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	reqLog.Info().Int("attempts", len(result.Attempts)).Msg("orchestrator: remote providers exhausted, rendering locally")
	synthStart := time.Now()
	payload, err := o.synthesizer.Synthesize(ctx, req)
	if err == nil && !payload.Usable() {
		err = errors.New("renderer produced no bytes")
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		o.record(result, domain.Attempt{Provider: domain.ProviderLocalSynthesis, Outcome: domain.OutcomeFailed, Error: err.Error(), Elapsed: time.Since(synthStart)})
		return o.fail(result, start, fmt.Errorf("%w: %w", domain.ErrSynthesisFailed, err))
	}
	o.record(result, domain.Attempt{Provider: domain.ProviderLocalSynthesis, Outcome: domain.OutcomeSucceeded, Elapsed: time.Since(synthStart)})
	if err := o.persist(ctx, req, payload, result); err != nil {
		return o.fail(result, start, err)
	}
	return o.succeed(result, domain.ProviderLocalSynthesis, start, reqLog), nil
}

// attempt runs one provider end to end: submit, wait, fetch.
func (o *Orchestrator) attempt(ctx context.Context, p video.Provider, req domain.GenerationRequest) (*domain.VideoPayload, error) {
	var job domain.ProviderJob
	err := o.retry.Do(ctx, p.Name()+".submit", func(ctx context.Context) error {
		var err error
		job, err = p.Submit(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	job, err = o.monitor.Wait(ctx, p, job)
	if err != nil {
		return nil, err
	}

	var payload *domain.VideoPayload
	err = o.retry.Do(ctx, p.Name()+".fetch", func(ctx context.Context) error {
		var err error
		payload, err = p.FetchResult(ctx, job)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !payload.Usable() {
		return nil, domain.NewProviderError(domain.KindTerminal, p.Name(), "fetch", errors.New("empty video payload"))
	}
	return payload, nil
}

func (o *Orchestrator) handleFailure(p video.Provider, err error) {
	switch domain.KindOf(err) {
	case domain.KindAuth:
		if r, ok := p.(video.CredentialRefresher); ok {
			r.InvalidateCredentials()
		}
	case domain.KindNotSupported:
		o.disable(p.Name())
	}
}

func (o *Orchestrator) persist(ctx context.Context, req domain.GenerationRequest, payload *domain.VideoPayload, result *domain.GenerationResult) error {
	mime := payload.MIME
	if mime == "" {
		mime = "video/mp4"
	}
	key, err := o.store.Write(ctx, storage.VideoKey(req.ID, mime), payload.Data)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
	result.StorageKey = key
	result.MIME = mime
	result.VideoLocation = o.store.Location(key)
	return nil
}

func (o *Orchestrator) record(result *domain.GenerationResult, a domain.Attempt) {
	result.Attempts = append(result.Attempts, a)
	if o.metrics != nil {
		o.metrics.ObserveAttempt(a.Provider, string(a.Outcome))
	}
}

func (o *Orchestrator) succeed(result *domain.GenerationResult, provider string, start time.Time, reqLog infra.Logger) *domain.GenerationResult {
	result.Success = true
	result.ProviderUsed = provider
	result.Elapsed = time.Since(start)
	if o.metrics != nil {
		o.metrics.ObserveGeneration(provider, result.Elapsed, true)
	}
	reqLog.Info().
		Str("provider", provider).
		Str("location", result.VideoLocation).
		Dur("elapsed", result.Elapsed).
		Msg("orchestrator: video ready")
	return result
}

func (o *Orchestrator) fail(result *domain.GenerationResult, start time.Time, err error) (*domain.GenerationResult, error) {
	result.Success = false
	result.Elapsed = time.Since(start)
	result.ErrorDetail = err.Error()
	if o.metrics != nil {
		o.metrics.ObserveGeneration("", result.Elapsed, false)
	}
	o.logger.Error().Err(err).Str("request_id", result.RequestID).Msg("orchestrator: generation failed")
	return result, err
}
