package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// Probe checks one dependency. A nil error means healthy.
type Probe func(ctx context.Context) error

const probeTimeout = 2 * time.Second

type healthBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health runs every registered probe and answers 503 when any of them fails.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	body := healthBody{Status: "ok"}
	if len(a.Probes) == 0 {
		a.json(w, http.StatusOK, body)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	names := make([]string, 0, len(a.Probes))
	for name := range a.Probes {
		names = append(names, name)
	}
	sort.Strings(names)

	body.Checks = make(map[string]string, len(names))
	code := http.StatusOK
	for _, name := range names {
		if err := a.Probes[name](ctx); err != nil {
			a.Logger.Warn().Err(err).Str("dependency", name).Msg("health: probe failed")
			body.Checks[name] = "unavailable"
			body.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		body.Checks[name] = "ok"
	}
	a.json(w, code, body)
}
