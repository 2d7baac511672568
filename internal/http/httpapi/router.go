package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"dreamframe/internal/http/handlers"
	"dreamframe/internal/middleware"
)

// Options configures the shared middleware stack.
type Options struct {
	Logger          zerolog.Logger
	Metrics         middleware.HTTPRecorder
	MetricsHandler  http.Handler
	RateLimitPerMin int
	CORSOrigins     []string
	// StaticDir, when set, is served under /static so StorageBaseURL links resolve.
	StaticDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger, opts.Metrics),
		middleware.CORS(opts.CORSOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	if opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}

	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static", staticFiles(opts.StaticDir)))
	}

	r.Route("/v1/generations", func(r chi.Router) {
		r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).Post("/", app.GenerationsCreate)
		r.Get("/{id}", app.GenerationsGet)
	})

	return r
}

// staticFiles serves stored videos and source images without directory listings.
func staticFiles(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	})
}
