// Package resilience decides which refresh failures Temporal retries and
// holds the retry settings of each workflow phase.
package resilience

import (
	"context"
	"errors"
	"strings"

	"go.temporal.io/sdk/temporal"

	"github.com/helixir/materials-aggregator/internal/domain"
)

// ErrorCategory says whether retrying an activity can help.
type ErrorCategory int

const (
	Transient ErrorCategory = iota
	Permanent
)

func (c ErrorCategory) String() string {
	switch c {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	}
	return "unknown"
}

// sentinels maps domain errors onto categories, checked in order.
var sentinels = []struct {
	err      error
	category ErrorCategory
}{
	{domain.ErrMisconfigured, Permanent},
	{domain.ErrCredentialInvalid, Permanent},
	{domain.ErrInvalidInput, Permanent},
	{domain.ErrNotFound, Permanent},
	{domain.ErrRateLimited, Transient},
	{domain.ErrUpstreamUnavailable, Transient},
	{domain.ErrMalformedPayload, Transient},
	{domain.ErrStorageFailure, Transient},
	{context.DeadlineExceeded, Transient},
}

// Message fragments used when an error carries no typed cause. Transient
// fragments are checked first.
var (
	transientHints = []string{"timeout", "connection refused", "connection reset", "rate limit", "service unavailable", "temporary", "deadline exceeded"}
	permanentHints = []string{"unauthorized", "forbidden", "bad request", "not found", "invalid input", "validation"}
)

// Classify categorizes err. A Temporal ApplicationError keeps its own
// retryability; then domain sentinels decide, then a rejected upstream
// status, then the message. Anything unrecognized is Transient. nil is
// Permanent.
func Classify(err error) ErrorCategory {
	if err == nil {
		return Permanent
	}

	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		if appErr.NonRetryable() {
			return Permanent
		}
		return Transient
	}

	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.category
		}
	}

	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) && upstream.Kind == domain.UpstreamRejected {
		if upstream.StatusCode >= 400 && upstream.StatusCode < 500 {
			return Permanent
		}
		return Transient
	}

	msg := strings.ToLower(err.Error())
	if containsAny(msg, transientHints) {
		return Transient
	}
	if containsAny(msg, permanentHints) {
		return Permanent
	}
	return Transient
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ErrorType is the ApplicationError type reported to Temporal, e.g.
// "upstream_rate_limited".
func ErrorType(err error) string {
	var upstream *domain.UpstreamError
	switch {
	case errors.As(err, &upstream):
		return "upstream_" + string(upstream.Kind)
	case errors.Is(err, domain.ErrStorageFailure):
		return "storage_failure"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	}
	return "internal"
}

// ToApplicationError converts an activity failure so that Permanent errors
// stop Temporal's retries. ApplicationErrors pass through and nil stays nil.
func ToApplicationError(msg string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return err
	}
	if Classify(err) == Permanent {
		return temporal.NewNonRetryableApplicationError(msg, ErrorType(err), err)
	}
	return temporal.NewApplicationErrorWithCause(msg, ErrorType(err), err)
}
