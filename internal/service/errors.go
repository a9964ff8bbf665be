package service

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrConfiguration marks a missing or invalid client setting (e.g. no API key).
	ErrConfiguration = errors.New("configuration error")

	// ErrTimeout, ErrHTTP and ErrNetwork classify TransportError values for errors.Is.
	ErrTimeout = errors.New("transport timeout")
	ErrHTTP    = errors.New("transport http error")
	ErrNetwork = errors.New("transport network error")

	// ErrDeadlineExceeded means the cumulative polling budget ran out.
	// It is distinct from ErrTimeout, which is a single call.
	ErrDeadlineExceeded = errors.New("research deadline exceeded")

	// ErrInvalidRequest is returned by Submit for requests that can't become a job.
	ErrInvalidRequest = errors.New("invalid research request")
)

// TransportErrorKind classifies a failed remote call.
type TransportErrorKind string

const (
	KindTimeout TransportErrorKind = "timeout"
	KindHTTP    TransportErrorKind = "http"
	KindNetwork TransportErrorKind = "network"
)

// TransportError is returned by every ResearchClient call that fails.
type TransportError struct {
	Kind       TransportErrorKind
	Op         string // create, status, cancel, generate
	StatusCode int    // set for KindHTTP
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	switch e.Kind {
	case KindHTTP:
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
	case KindTimeout:
		return fmt.Sprintf("%s: request timed out: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is lets callers match on the kind sentinels.
func (e *TransportError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrHTTP:
		return e.Kind == KindHTTP
	case ErrNetwork:
		return e.Kind == KindNetwork
	}
	return false
}

// classifyCallError turns a failed round trip into a TransportError.
// callCtx is the per-call context carrying the request timeout.
func classifyCallError(op string, callCtx context.Context, err error) *TransportError {
	kind := KindNetwork
	var netErr net.Error
	switch {
	case errors.Is(callCtx.Err(), context.DeadlineExceeded),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}
	return &TransportError{Kind: kind, Op: op, Err: err}
}

func httpError(op string, status int, message string) *TransportError {
	return &TransportError{Kind: KindHTTP, Op: op, StatusCode: status, Message: message}
}
