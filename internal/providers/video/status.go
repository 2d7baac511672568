package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"dreamframe/internal/domain"
)

// maxErrorBody bounds how much of an error response is echoed into error messages.
const maxErrorBody = 512

// KindForStatus maps an HTTP status code returned by a provider onto the error taxonomy.
func KindForStatus(code int) domain.ErrorKind {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return domain.KindAuth
	case code == http.StatusNotFound:
		return domain.KindNotSupported
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return domain.KindTransport
	case code >= 500:
		return domain.KindTransport
	case code >= 400:
		return domain.KindTerminal
	default:
		return domain.KindUnknown
	}
}

// StatusError builds a classified error from a non-2xx response, reading a bounded
// excerpt of the body for context.
func StatusError(provider, op string, resp *http.Response) *domain.ProviderError {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(snippet))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	pe := domain.NewProviderError(KindForStatus(resp.StatusCode), provider, op, errors.New(msg))
	pe.StatusCode = resp.StatusCode
	return pe
}

// TransportError classifies a failed round trip. Network failures and per-request
// deadlines are retryable; cancellation by the caller is not.
func TransportError(provider, op string, err error) *domain.ProviderError {
	kind := domain.KindTransport
	if errors.Is(err, context.Canceled) {
		kind = domain.KindTerminal
	}
	return domain.NewProviderError(kind, provider, op, fmt.Errorf("request failed: %w", err))
}

// ScopeToJob demotes NotSupported to Terminal for calls on one job's own resource.
// A 404 there means the task or operation is gone, not that the endpoint is.
func ScopeToJob(err error) error {
	var pe *domain.ProviderError
	if errors.As(err, &pe) && pe.Kind == domain.KindNotSupported {
		pe.Kind = domain.KindTerminal
	}
	return err
}
