package main

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"dreamframe/internal/domain"
	"dreamframe/internal/infra"
	"dreamframe/internal/providers/video"
)

type namedProvider string

func (n namedProvider) Name() string     { return string(n) }
func (n namedProvider) MaxDuration() int { return 8 }
func (n namedProvider) Submit(ctx context.Context, req domain.GenerationRequest) (domain.ProviderJob, error) {
	return domain.ProviderJob{}, nil
}
func (n namedProvider) Poll(ctx context.Context, job domain.ProviderJob) (domain.ProviderJob, error) {
	return job, nil
}
func (n namedProvider) FetchResult(ctx context.Context, job domain.ProviderJob) (*domain.VideoPayload, error) {
	return nil, nil
}

func TestOrderProviders(t *testing.T) {
	available := map[string]video.Provider{
		"runway":      namedProvider("runway"),
		"vertex-veo2": namedProvider("vertex-veo2"),
	}
	got := orderProviders([]string{"vertex-veo3", "runway", "vertex-veo2", "runway"}, available, zerolog.Nop())
	if len(got) != 2 || got[0].Name() != "runway" || got[1].Name() != "vertex-veo2" {
		names := make([]string, 0, len(got))
		for _, p := range got {
			names = append(names, p.Name())
		}
		t.Fatalf("order = %v", names)
	}
}

func TestProjectFromServiceAccount(t *testing.T) {
	if got := projectFromServiceAccount([]byte(`{"type":"service_account","project_id":" shop-videos "}`)); got != "shop-videos" {
		t.Fatalf("project = %q", got)
	}
	if got := projectFromServiceAccount([]byte(`nope`)); got != "" {
		t.Fatalf("garbage should yield empty project, got %q", got)
	}
}

func TestVertexServiceAccountPrefersInjected(t *testing.T) {
	cfg := &infra.Config{VertexCredentialsJSON: `{"project_id":"p"}`}
	raw, err := vertexServiceAccount(context.Background(), cfg, nil)
	if err != nil || string(raw) != `{"project_id":"p"}` {
		t.Fatalf("got %q, %v", raw, err)
	}
	raw, err = vertexServiceAccount(context.Background(), &infra.Config{}, nil)
	if err != nil || raw != nil {
		t.Fatalf("expected no credentials, got %q, %v", raw, err)
	}
}
