package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/driftcode/agentcore/internal/retry"
)

// ErrorKind is the spec.md §7 error taxonomy: not specific exception
// types, but the categories recovery and reporting logic branches on.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindNotFound          ErrorKind = "not_found"
	KindAuth              ErrorKind = "auth"
	KindProviderTransient ErrorKind = "provider_transient"
	KindProviderFatal     ErrorKind = "provider_fatal"
	KindInterrupted       ErrorKind = "interrupted"
	KindInternal          ErrorKind = "internal"
)

// IsRetryable reports whether the provider layer should retry a request
// that failed with this kind.
func (k ErrorKind) IsRetryable() bool {
	return k == KindProviderTransient
}

// Recoverable reports whether a turn.failed event emitted for this kind
// should be marked recoverable.
func (k ErrorKind) Recoverable() bool {
	switch k {
	case KindProviderTransient, KindInterrupted:
		return true
	default:
		return false
	}
}

// ProviderError is a structured error from an LLM provider, carrying the
// context retry, failover, and reporting logic need.
type ProviderError struct {
	Kind      ErrorKind
	Provider  string
	Model     string
	Status    int
	Code      string
	Message   string
	RequestID string
	Cause     error

	// RetryAfterValue is the raw Retry-After header value, if the provider
	// sent one alongside a 429/503 response.
	RetryAfterValue string
}

func (e *ProviderError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Kind))
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// NewProviderError classifies cause and wraps it with provider/model
// context.
func NewProviderError(provider, model string, cause error) *ProviderError {
	err := &ProviderError{Provider: provider, Model: model, Cause: cause, Kind: KindInternal}
	if cause != nil {
		err.Message = cause.Error()
		err.Kind = ClassifyError(cause)
	}
	return err
}

// WithStatus attaches an HTTP status and reclassifies from it.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	e.Kind = classifyStatusCode(status)
	return e
}

// WithCode attaches a provider-specific error code and reclassifies if the
// code is recognised.
func (e *ProviderError) WithCode(code string) *ProviderError {
	e.Code = code
	if kind, ok := classifyErrorCode(code); ok {
		e.Kind = kind
	}
	return e
}

// WithRequestID attaches the provider's request ID for debugging.
func (e *ProviderError) WithRequestID(id string) *ProviderError {
	e.RequestID = id
	return e
}

// WithRetryAfter attaches a raw Retry-After header value.
func (e *ProviderError) WithRetryAfter(value string) *ProviderError {
	e.RetryAfterValue = value
	return e
}

// RetryAfter implements internal/retry.RetryAfterError so a server-specified
// delay overrides the computed exponential backoff for this attempt.
func (e *ProviderError) RetryAfter() (time.Duration, bool) {
	return retry.ParseRetryAfter(e.RetryAfterValue)
}

// ClassifyError inspects a raw error's text for known patterns (used when
// no structured HTTP status or error code is available).
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return KindInternal
	}
	s := strings.ToLower(err.Error())

	switch {
	case strings.Contains(s, "timeout"), strings.Contains(s, "deadline exceeded"),
		strings.Contains(s, "429"), strings.Contains(s, "rate limit"), strings.Contains(s, "too many requests"),
		strings.Contains(s, "500"), strings.Contains(s, "502"), strings.Contains(s, "503"), strings.Contains(s, "504"),
		strings.Contains(s, "connection reset"):
		return KindProviderTransient
	case strings.Contains(s, "unauthorized"), strings.Contains(s, "invalid api key"),
		strings.Contains(s, "authentication"), strings.Contains(s, "401"), strings.Contains(s, "403"):
		return KindAuth
	case strings.Contains(s, "not found"), strings.Contains(s, "404"):
		return KindNotFound
	case strings.Contains(s, "invalid_request"), strings.Contains(s, "bad request"), strings.Contains(s, "400"):
		return KindValidation
	case strings.Contains(s, "model not found"), strings.Contains(s, "content policy"), strings.Contains(s, "blocked"):
		return KindProviderFatal
	default:
		return KindInternal
	}
}

func classifyStatusCode(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindProviderTransient
	case status == http.StatusBadRequest:
		return KindValidation
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= 500:
		return KindProviderTransient
	case status >= 400:
		return KindProviderFatal
	default:
		return KindInternal
	}
}

func classifyErrorCode(code string) (ErrorKind, bool) {
	switch strings.ToLower(code) {
	case "rate_limit_error", "rate_limit_exceeded", "overloaded_error":
		return KindProviderTransient, true
	case "authentication_error", "invalid_api_key":
		return KindAuth, true
	case "not_found_error":
		return KindNotFound, true
	case "invalid_request_error":
		return KindValidation, true
	case "content_policy_violation", "model_not_found":
		return KindProviderFatal, true
	default:
		return "", false
	}
}

// IsProviderError reports whether err is (or wraps) a *ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// AsProviderError extracts a *ProviderError from err's chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRetryable reports whether err (structured or raw) should be retried by
// the provider layer's backoff policy.
func IsRetryable(err error) bool {
	if pe, ok := AsProviderError(err); ok {
		return pe.Kind.IsRetryable()
	}
	return ClassifyError(err).IsRetryable()
}
