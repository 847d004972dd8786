package temporal

import (
	"context"
	"errors"
	"strings"

	"go.temporal.io/api/serviceerror"
)

// Error categories returned by RefreshClient. Match them with errors.Is.
var (
	ErrWorkflowNotFound       = errors.New("workflow not found")
	ErrWorkflowAlreadyStarted = errors.New("workflow already started")
	ErrClientClosed           = errors.New("client closed")
	ErrUnavailable            = errors.New("temporal unavailable")
	ErrRejected               = errors.New("request rejected")
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrDeadlineExceeded       = errors.New("deadline exceeded")
)

// OpError is a failed RefreshClient call. Kind is one of the Err* categories.
type OpError struct {
	Op     string
	Kind   error
	Target string
	Err    error
}

func (e *OpError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Target != "" {
		b.WriteString(" ")
		b.WriteString(e.Target)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// classifiers map service errors onto categories. The first match wins.
var classifiers = []struct {
	match func(error) bool
	kind  error
}{
	{isType[*serviceerror.WorkflowExecutionAlreadyStarted], ErrWorkflowAlreadyStarted},
	{isType[*serviceerror.NotFound], ErrWorkflowNotFound},
	{isType[*serviceerror.InvalidArgument], ErrInvalidArgument},
	{isType[*serviceerror.NamespaceNotFound], ErrRejected},
	{isType[*serviceerror.PermissionDenied], ErrRejected},
	{isType[*serviceerror.ResourceExhausted], ErrRejected},
	{isType[*serviceerror.DeadlineExceeded], ErrDeadlineExceeded},
	{func(err error) bool { return errors.Is(err, context.DeadlineExceeded) }, ErrDeadlineExceeded},
	{isType[*serviceerror.Unavailable], ErrUnavailable},
}

func isType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

// opError categorizes err. Errors that match no known service error are
// treated as the server being unreachable.
func opError(op, target string, err error) error {
	if err == nil {
		return nil
	}
	kind := ErrUnavailable
	for _, c := range classifiers {
		if c.match(err) {
			kind = c.kind
			break
		}
	}
	return &OpError{Op: op, Kind: kind, Target: target, Err: err}
}

// IsWorkflowAlreadyStarted reports whether a run with the same ID is in flight.
func IsWorkflowAlreadyStarted(err error) bool {
	return errors.Is(err, ErrWorkflowAlreadyStarted)
}

// IsUnavailable reports whether the Temporal server could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
