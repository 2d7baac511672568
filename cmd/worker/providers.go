package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"dreamframe/internal/infra"
	"dreamframe/internal/infra/credentials"
	"dreamframe/internal/providers/runway"
	"dreamframe/internal/providers/vertex"
	"dreamframe/internal/providers/video"
)

// initVideoProviders builds every provider that has credentials and returns them
// in the configured priority order.
func initVideoProviders(ctx context.Context, cfg *infra.Config, store *credentials.Store, logger infra.Logger) []video.Provider {
	httpClient := &http.Client{}
	available := make(map[string]video.Provider)

	for _, p := range initVertexProviders(ctx, cfg, store, httpClient, logger) {
		available[p.Name()] = p
	}

	rw, err := runway.NewClient(runway.Options{
		APIKey:         cfg.RunwayAPIKey,
		Keys:           store,
		BaseURL:        cfg.RunwayBaseURL,
		Model:          cfg.RunwayModel,
		HTTPClient:     httpClient,
		Logger:         &logger,
		RequestTimeout: cfg.ProviderRequestTimeout,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("worker: runway disabled")
	} else {
		available[rw.Name()] = rw
	}

	return orderProviders(cfg.ProviderOrder, available, logger)
}

func initVertexProviders(ctx context.Context, cfg *infra.Config, store *credentials.Store, httpClient *http.Client, logger infra.Logger) []video.Provider {
	saJSON, err := vertexServiceAccount(ctx, cfg, store)
	if err != nil {
		logger.Warn().Err(err).Msg("worker: vertex credentials unavailable")
		return nil
	}
	if len(saJSON) == 0 {
		logger.Warn().Msg("worker: vertex disabled, no service account configured")
		return nil
	}
	project := strings.TrimSpace(cfg.VertexProjectID)
	if project == "" {
		project = projectFromServiceAccount(saJSON)
	}

	fetch, err := credentials.ServiceAccountFetcher(saJSON, credentials.CloudPlatformScope)
	if err != nil {
		logger.Warn().Err(err).Msg("worker: vertex disabled, service account rejected")
		return nil
	}
	tokens := credentials.NewTokenCache(fetch, credentials.TokenCacheOptions{Skew: cfg.TokenRefreshSkew, Logger: &logger})

	opts := vertex.Options{
		ProjectID:      project,
		Location:       cfg.VertexLocation,
		BaseURL:        cfg.VertexBaseURL,
		StorageURI:     cfg.VertexStorageURI,
		Tokens:         tokens,
		HTTPClient:     httpClient,
		Logger:         &logger,
		RequestTimeout: cfg.ProviderRequestTimeout,
	}
	if gcs, err := vertex.NewGCSReader(ctx, tokens.TokenSource(ctx)); err != nil {
		logger.Warn().Err(err).Msg("worker: cloud storage reader unavailable, gs:// outputs will fail")
	} else {
		opts.Objects = gcs
	}

	var out []video.Provider
	veo3Opts := opts
	veo3Opts.Model = cfg.VEO3Model
	if veo3, err := vertex.NewVEO3(veo3Opts); err != nil {
		logger.Warn().Err(err).Msg("worker: vertex-veo3 disabled")
	} else {
		out = append(out, veo3)
	}
	veo2Opts := opts
	veo2Opts.Model = cfg.VEO2Model
	if veo2, err := vertex.NewVEO2(veo2Opts); err != nil {
		logger.Warn().Err(err).Msg("worker: vertex-veo2 disabled")
	} else {
		out = append(out, veo2)
	}
	return out
}

// vertexServiceAccount prefers injected credentials over the credentials table.
func vertexServiceAccount(ctx context.Context, cfg *infra.Config, store *credentials.Store) ([]byte, error) {
	if cfg.HasVertexCredentials() {
		return cfg.VertexCredentials()
	}
	if store == nil {
		return nil, nil
	}
	return store.VertexServiceAccount(ctx)
}

func projectFromServiceAccount(raw []byte) string {
	var sa struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(raw, &sa); err != nil {
		return ""
	}
	return strings.TrimSpace(sa.ProjectID)
}

func orderProviders(order []string, available map[string]video.Provider, logger infra.Logger) []video.Provider {
	out := make([]video.Provider, 0, len(order))
	seen := make(map[string]struct{}, len(order))
	for _, name := range order {
		name = strings.TrimSpace(name)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		p, ok := available[name]
		if !ok {
			logger.Warn().Str("provider", name).Msg("worker: provider in PROVIDER_ORDER is not available, skipping")
			continue
		}
		out = append(out, p)
	}
	return out
}
