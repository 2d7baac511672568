package video

import (
	"context"

	"dreamframe/internal/domain"
)

// Provider is a remote video generation backend driven by the orchestrator.
//
// Submit starts a generation and returns a PENDING or RUNNING job. Poll reports the
// job's current status without other side effects and is safe to call repeatedly.
// FetchResult is only valid once the job has SUCCEEDED. Every error returned is a
// *domain.ProviderError so callers can branch on its Kind.
type Provider interface {
	Name() string
	MaxDuration() int
	Submit(ctx context.Context, req domain.GenerationRequest) (domain.ProviderJob, error)
	Poll(ctx context.Context, job domain.ProviderJob) (domain.ProviderJob, error)
	FetchResult(ctx context.Context, job domain.ProviderJob) (*domain.VideoPayload, error)
}

// CredentialRefresher is implemented by providers holding cached credentials.
// InvalidateCredentials drops them so the next call re-authenticates.
type CredentialRefresher interface {
	InvalidateCredentials()
}

// ClampDuration fits requested seconds into (0, max]. Non-positive requests use the
// default duration, itself capped at max.
func ClampDuration(requested, max int) int {
	if requested <= 0 {
		requested = domain.DefaultDurationSeconds
	}
	if max > 0 && requested > max {
		return max
	}
	return requested
}
