package video

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"dreamframe/internal/domain"
)

func TestClampDuration(t *testing.T) {
	cases := []struct {
		requested, max, want int
	}{
		{20, 8, 8},
		{8, 8, 8},
		{4, 8, 4},
		{0, 8, 5},
		{-3, 4, 4},
		{12, 0, 12},
	}
	for _, tc := range cases {
		if got := ClampDuration(tc.requested, tc.max); got != tc.want {
			t.Fatalf("ClampDuration(%d, %d) = %d, want %d", tc.requested, tc.max, got, tc.want)
		}
	}
}

func TestKindForStatus(t *testing.T) {
	cases := map[int]domain.ErrorKind{
		http.StatusUnauthorized:        domain.KindAuth,
		http.StatusForbidden:           domain.KindAuth,
		http.StatusNotFound:            domain.KindNotSupported,
		http.StatusRequestTimeout:      domain.KindTransport,
		http.StatusTooManyRequests:     domain.KindTransport,
		http.StatusInternalServerError: domain.KindTransport,
		http.StatusServiceUnavailable:  domain.KindTransport,
		http.StatusBadRequest:          domain.KindTerminal,
		http.StatusUnprocessableEntity: domain.KindTerminal,
		http.StatusOK:                  domain.KindUnknown,
	}
	for code, want := range cases {
		if got := KindForStatus(code); got != want {
			t.Fatalf("KindForStatus(%d) = %s, want %s", code, got, want)
		}
	}
}

func TestStatusErrorCarriesBodyExcerpt(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusForbidden,
		Body:       io.NopCloser(strings.NewReader(`{"error":"permission denied"}`)),
	}
	err := StatusError("vertex-veo3", "submit", resp)
	if !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if err.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d", err.StatusCode)
	}
	if !strings.Contains(err.Error(), "permission denied") {
		t.Fatalf("expected body excerpt in %q", err.Error())
	}
}

func TestTransportErrorClassification(t *testing.T) {
	if err := TransportError("runway", "poll", context.DeadlineExceeded); !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("deadline should be transport, got %v", err)
	}
	if err := TransportError("runway", "poll", errors.New("connection reset")); !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("network error should be transport, got %v", err)
	}
	if err := TransportError("runway", "poll", context.Canceled); !errors.Is(err, domain.ErrTerminal) {
		t.Fatalf("cancellation should be terminal, got %v", err)
	}
}

func TestRetryPolicyRetriesTransportWithBackoff(t *testing.T) {
	var delays []time.Duration
	policy := RetryPolicy{
		Retries:   2,
		BaseDelay: time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	}
	calls := 0
	err := policy.Do(context.Background(), "submit", func(ctx context.Context) error {
		calls++
		return domain.NewProviderError(domain.KindTransport, "p", "submit", errors.New("503"))
	})
	if !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Fatalf("unexpected backoff %v", delays)
	}
}

func TestRetryPolicyStopsOnSuccess(t *testing.T) {
	policy := RetryPolicy{Retries: 2, Sleep: func(context.Context, time.Duration) error { return nil }}
	calls := 0
	err := policy.Do(context.Background(), "submit", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return domain.NewProviderError(domain.KindTransport, "p", "submit", errors.New("reset"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestRetryPolicyDoesNotRetryOtherKinds(t *testing.T) {
	for _, kind := range []domain.ErrorKind{domain.KindAuth, domain.KindNotSupported, domain.KindTerminal} {
		policy := RetryPolicy{Retries: 2, Sleep: func(context.Context, time.Duration) error {
			t.Fatal("sleep should not be called")
			return nil
		}}
		calls := 0
		_ = policy.Do(context.Background(), "submit", func(ctx context.Context) error {
			calls++
			return domain.NewProviderError(kind, "p", "submit", errors.New("nope"))
		})
		if calls != 1 {
			t.Fatalf("kind %s: expected 1 call, got %d", kind, calls)
		}
	}
}

func TestSleepContextHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := SleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestScopeToJobDemotesNotFound(t *testing.T) {
	notFound := domain.NewProviderError(domain.KindNotSupported, "runway", "poll", errors.New("Task not found"))
	if err := ScopeToJob(notFound); !errors.Is(err, domain.ErrTerminal) {
		t.Fatalf("expected terminal, got %v", err)
	}

	auth := domain.NewProviderError(domain.KindAuth, "runway", "poll", errors.New("bad key"))
	if err := ScopeToJob(auth); !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("auth errors must pass through, got %v", err)
	}
	if ScopeToJob(nil) != nil {
		t.Fatal("nil must stay nil")
	}
}
