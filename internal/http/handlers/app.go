package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"dreamframe/internal/domain"
	"dreamframe/internal/infra"
)

// DefaultMaxUploadBytes caps the optional source image.
const DefaultMaxUploadBytes = 10 << 20

// Enqueuer hands accepted request ids to the workers.
type Enqueuer interface {
	Push(ctx context.Context, id string) error
}

// ImageStore keeps uploaded source images.
type ImageStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// App carries the dependencies of the intake handlers.
type App struct {
	Repo           domain.GenerationRepository
	Queue          Enqueuer
	Store          ImageStore
	Logger         infra.Logger
	MaxUploadBytes int64
	// Probes are run by Health, keyed by dependency name.
	Probes         map[string]Probe
}

func NewApp(repo domain.GenerationRepository, queue Enqueuer, store ImageStore, logger infra.Logger) *App {
	return &App{Repo: repo, Queue: queue, Store: store, Logger: logger, MaxUploadBytes: DefaultMaxUploadBytes}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func (a *App) maxUpload() int64 {
	if a.MaxUploadBytes > 0 {
		return a.MaxUploadBytes
	}
	return DefaultMaxUploadBytes
}
