package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyExists indicates a record with the same natural key is already stored.
	ErrAlreadyExists = errors.New("already exists")

	// ErrUpstreamUnavailable indicates a network failure or timeout talking to a provider.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUpstreamRejected indicates the provider answered with a non-2xx status.
	ErrUpstreamRejected = errors.New("upstream rejected request")

	// ErrCredentialInvalid indicates the provider rejected our credential (HTTP 401).
	ErrCredentialInvalid = errors.New("upstream rejected credentials")

	// ErrRateLimited indicates the provider throttled us (HTTP 429).
	ErrRateLimited = errors.New("rate limited")

	// ErrMalformedPayload indicates the provider returned a body we could not decode.
	ErrMalformedPayload = errors.New("malformed upstream payload")

	// ErrMisconfigured indicates a required provider credential is absent.
	ErrMisconfigured = errors.New("provider misconfigured")

	// ErrStorageFailure indicates a persistence batch failed and was rolled back.
	ErrStorageFailure = errors.New("storage failure")
)

// UpstreamKind classifies an UpstreamError.
type UpstreamKind string

const (
	UpstreamUnavailable       UpstreamKind = "unavailable"
	UpstreamRejected          UpstreamKind = "rejected"
	UpstreamCredentialInvalid UpstreamKind = "credential_invalid"
	UpstreamRateLimited       UpstreamKind = "rate_limited"
	UpstreamMalformed         UpstreamKind = "malformed"
	UpstreamMisconfigured     UpstreamKind = "misconfigured"
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// AlreadyExistsError reports a natural-key collision on an explicit create.
type AlreadyExistsError struct {
	Entity string
	Key    string
}

// Error implements the error interface.
func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Entity, e.Key)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *AlreadyExistsError) Unwrap() error {
	return ErrAlreadyExists
}

// UpstreamError describes a failed call to an external provider.
type UpstreamError struct {
	Source     SourceType
	Kind       UpstreamKind
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Cause      error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s (status %d): %s", e.Source, e.Kind, e.StatusCode, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Source, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s: %s", e.Source, e.Kind, e.Message)
}

// Is reports whether target is the sentinel matching this error's kind.
// Every rejection subclass also matches ErrUpstreamRejected.
func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrUpstreamUnavailable:
		return e.Kind == UpstreamUnavailable
	case ErrUpstreamRejected:
		return e.Kind == UpstreamRejected || e.Kind == UpstreamCredentialInvalid || e.Kind == UpstreamRateLimited
	case ErrCredentialInvalid:
		return e.Kind == UpstreamCredentialInvalid
	case ErrRateLimited:
		return e.Kind == UpstreamRateLimited
	case ErrMalformedPayload:
		return e.Kind == UpstreamMalformed
	case ErrMisconfigured:
		return e.Kind == UpstreamMisconfigured
	}
	return false
}

// Unwrap returns the underlying cause error.
func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// StorageError wraps a failed persistence operation.
type StorageError struct {
	Op    string
	Cause error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Cause)
}

// Unwrap exposes both the sentinel and the cause.
func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageFailure, e.Cause}
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// NewAlreadyExistsError creates a new AlreadyExistsError.
func NewAlreadyExistsError(entity, key string) *AlreadyExistsError {
	return &AlreadyExistsError{
		Entity: entity,
		Key:    key,
	}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewUnavailableError reports a network-level failure reaching source.
func NewUnavailableError(source SourceType, cause error) *UpstreamError {
	return &UpstreamError{
		Source:  source,
		Kind:    UpstreamUnavailable,
		Message: "request failed",
		Cause:   cause,
	}
}

// NewMisconfiguredError reports a missing credential for source.
func NewMisconfiguredError(source SourceType, message string) *UpstreamError {
	return &UpstreamError{
		Source:  source,
		Kind:    UpstreamMisconfigured,
		Message: message,
	}
}

// NewMalformedError reports an undecodable provider payload.
func NewMalformedError(source SourceType, cause error) *UpstreamError {
	return &UpstreamError{
		Source:  source,
		Kind:    UpstreamMalformed,
		Message: "decode response",
		Cause:   cause,
	}
}

// NewStatusError classifies a non-2xx provider response. 401 becomes
// credential-invalid, 429 becomes rate-limited and everything else is a
// plain rejection carrying the status and a body excerpt.
func NewStatusError(source SourceType, statusCode int, bodyExcerpt string) *UpstreamError {
	e := &UpstreamError{
		Source:     source,
		Kind:       UpstreamRejected,
		StatusCode: statusCode,
		Message:    bodyExcerpt,
	}
	switch statusCode {
	case http.StatusUnauthorized:
		e.Kind = UpstreamCredentialInvalid
		e.Message = ErrCredentialInvalid.Error()
	case http.StatusTooManyRequests:
		e.Kind = UpstreamRateLimited
		e.Message = ErrRateLimited.Error()
	}
	return e
}

// NewStorageError creates a new StorageError.
func NewStorageError(op string, cause error) *StorageError {
	return &StorageError{
		Op:    op,
		Cause: cause,
	}
}
