package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

func TestRateLimitBlocksAfterLimit(t *testing.T) {
	h := RateLimit(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/generations", nil)
		req.RemoteAddr = "198.51.100.7:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests && rec.Header().Get("Retry-After") == "" {
			t.Fatal("missing Retry-After")
		}
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}

	other := httptest.NewRequest(http.MethodPost, "/v1/generations", nil)
	other.RemoteAddr = "198.51.100.8:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("other client limited: %d", rec.Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	h := RateLimit(0, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("unexpected %d", rec.Code)
		}
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "abc-123" || rec.Header().Get("X-Request-ID") != "abc-123" {
		t.Fatalf("request id not propagated: %q", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "has space")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "has space" || len(seen) != 36 {
		t.Fatalf("invalid id should be replaced, got %q", seen)
	}
}

type recordedHTTP struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordedHTTP) ObserveHTTP(route, code string) {
	r.mu.Lock()
	r.calls = append(r.calls, route+" "+code)
	r.mu.Unlock()
}

func TestLoggerRecordsRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	metrics := &recordedHTTP{}
	r := chi.NewRouter()
	r.Use(RequestID, Logger(zerolog.New(&buf), metrics))
	r.Get("/v1/generations/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("nope"))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/generations/123", nil))

	if len(metrics.calls) != 1 || metrics.calls[0] != "/v1/generations/{id} 404" {
		t.Fatalf("metrics calls = %v", metrics.calls)
	}
	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("log line not json: %v (%s)", err, buf.String())
	}
	if line["status"] != float64(404) || line["bytes"] != float64(4) || line["request_id"] == "" {
		t.Fatalf("unexpected log line %v", line)
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.dreamframe.test"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	pre := httptest.NewRequest(http.MethodOptions, "/v1/generations", nil)
	pre.Header.Set("Origin", "https://app.dreamframe.test")
	pre.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, pre)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://app.dreamframe.test" {
		t.Fatalf("preflight: %d %v", rec.Code, rec.Header())
	}

	other := httptest.NewRequest(http.MethodPost, "/v1/generations", strings.NewReader("{}"))
	other.Header.Set("Origin", "https://evil.test")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	if rec.Code != http.StatusAccepted || rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("foreign origin: %d %v", rec.Code, rec.Header())
	}
}
