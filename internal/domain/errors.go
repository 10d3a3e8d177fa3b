package domain

import "errors"

// Common domain errors
var (
	// Memory errors
	ErrMemoryNotFound     = errors.New("memory not found")
	ErrEmptyContent       = errors.New("content cannot be empty")
	ErrEmbeddingsFailed   = errors.New("failed to generate embeddings")
	ErrMemorySearchFailed = errors.New("memory search failed")

	// Thread errors
	ErrThreadNotFound  = errors.New("thread not found")
	ErrSummaryNotFound = errors.New("thread summary not found")

	// Validation errors
	ErrInvalidID    = errors.New("invalid ID format")
	ErrInvalidTier  = errors.New("invalid memory tier")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("cross-user access forbidden")

	// Quota errors
	ErrRateLimited = errors.New("rate limit exceeded")

	// Upstream errors
	ErrProviderUnavailable = errors.New("model provider unavailable")
	ErrProviderRejected    = errors.New("model provider rejected the request")
	ErrSearchUnavailable   = errors.New("search backend unavailable")

	// Queue errors
	ErrQueueFull = errors.New("work queue is full")
)

// Class buckets an error for propagation policy: user errors surface as 4xx,
// quota errors surface with Retry-After, transient upstream failures are
// retried then surfaced degraded, permanent upstream failures surface
// verbatim, everything else is internal.
type Class int

const (
	ClassInternal Class = iota
	ClassUser
	ClassQuota
	ClassUpstreamTransient
	ClassUpstreamPermanent
)

// Classify maps an error to its taxonomy class.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassInternal
	case errors.Is(err, ErrRateLimited):
		return ClassQuota
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidID),
		errors.Is(err, ErrInvalidTier),
		errors.Is(err, ErrEmptyContent),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrMemoryNotFound),
		errors.Is(err, ErrThreadNotFound):
		return ClassUser
	case errors.Is(err, ErrProviderUnavailable), errors.Is(err, ErrSearchUnavailable):
		return ClassUpstreamTransient
	case errors.Is(err, ErrProviderRejected):
		return ClassUpstreamPermanent
	default:
		return ClassInternal
	}
}

// DomainError wraps a domain error with additional context
type DomainError struct {
	Err     error
	Message string
	Code    string
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func NewDomainError(err error, message string) *DomainError {
	return &DomainError{
		Err:     err,
		Message: message,
	}
}

func NewDomainErrorWithCode(err error, message, code string) *DomainError {
	return &DomainError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}
