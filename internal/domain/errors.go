package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidArgs = errors.New("invalid arguments")

	ErrAuth         = errors.New("provider authentication failed")
	ErrNotSupported = errors.New("provider endpoint not supported")
	ErrTransport    = errors.New("provider transport failure")
	ErrTerminal     = errors.New("provider generation failed")
	ErrTimeout      = errors.New("provider polling timed out")

	// ErrSynthesisFailed and ErrStorage are the only failures a caller ever sees.
	ErrSynthesisFailed = errors.New("local synthesis failed")
	ErrStorage         = errors.New("video storage failed")
)

// ErrorKind classifies provider failures for the orchestrator.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAuth
	KindNotSupported
	KindTransport
	KindTerminal
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindNotSupported:
		return "not_supported"
	case KindTransport:
		return "transport"
	case KindTerminal:
		return "terminal"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindAuth:
		return ErrAuth
	case KindNotSupported:
		return ErrNotSupported
	case KindTransport:
		return ErrTransport
	case KindTerminal:
		return ErrTerminal
	case KindTimeout:
		return ErrTimeout
	default:
		return nil
	}
}

// ProviderError is returned by every provider client operation.
type ProviderError struct {
	Kind       ErrorKind
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

// NewProviderError wraps err with a classification.
func NewProviderError(kind ErrorKind, provider, op string, err error) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Op: op, Err: err}
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		if e.Op != "" {
			b.WriteString(".")
			b.WriteString(e.Op)
		}
		b.WriteString(": ")
	}
	b.WriteString("[")
	b.WriteString(e.Kind.String())
	b.WriteString("]")
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " status %d", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind, so errors.Is(err, ErrAuth) works.
func (e *ProviderError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf extracts the classification from err. Unclassified errors report KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	switch {
	case errors.Is(err, ErrAuth):
		return KindAuth
	case errors.Is(err, ErrNotSupported):
		return KindNotSupported
	case errors.Is(err, ErrTerminal):
		return KindTerminal
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrTransport):
		return KindTransport
	}
	return KindUnknown
}

// OutcomeFor maps a provider error onto the attempt log vocabulary.
func OutcomeFor(err error) AttemptOutcome {
	switch KindOf(err) {
	case KindAuth:
		return OutcomeAuth
	case KindNotSupported:
		return OutcomeNotSupported
	case KindTransport:
		return OutcomeTransport
	case KindTimeout:
		return OutcomeTimedOut
	default:
		return OutcomeFailed
	}
}
