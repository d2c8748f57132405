// Package errors re-exports github.com/cockroachdb/errors and defines the
// error kinds produced while polling and diagnosing assets.
//
// Every failure that leaves an adapter is one of:
//   - *TransportError: the remote could not be reached (refused, timeout, DNS)
//   - *RemoteError:    the remote answered with a non-success status
//   - *ParseError:     the remote answered with a payload we could not decode
//   - *ProcessError:   the local inference process failed to run
//
// Use KindOf to classify and IsRetryable to decide whether the poll loop may
// try again on the next cycle.
package errors

import (
	"fmt"

	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint     = crdb.WithHint
	WithHintf    = crdb.WithHintf
	WithDetail   = crdb.WithDetail
	WithDetailf  = crdb.WithDetailf
	GetAllHints  = crdb.GetAllHints
	FlattenHints = crdb.FlattenHints
)

// Error inspection
var (
	Is        = crdb.Is
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

var (
	// ErrInvalidConfig indicates a configuration value was rejected
	ErrInvalidConfig = New("invalid configuration")

	// ErrServiceUnavailable indicates a required remote service did not answer successfully
	ErrServiceUnavailable = New("service unavailable")
)

// Kind classifies a failure.
type Kind string

const (
	KindNone      Kind = ""
	KindTransport Kind = "transport"
	KindRemote    Kind = "remote"
	KindParse     Kind = "parse"
	KindProcess   Kind = "process"
	KindUnknown   Kind = "unknown"
)

// TransportError reports a request that never produced a response.
// Timeouts are transport errors too.
type TransportError struct {
	Stage string
	URL   string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure calling %s: %v", e.Stage, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteError reports a non-success status from a reachable remote.
type RemoteError struct {
	Stage  string
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Stage, e.Status, e.Body)
}

// Unwrap lets errors.Is(err, ErrServiceUnavailable) match any remote failure.
func (e *RemoteError) Unwrap() error { return ErrServiceUnavailable }

// ParseError reports a payload that could not be decoded.
type ParseError struct {
	Stage string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: malformed payload: %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ProcessError reports a local inference process that could not run to completion.
type ProcessError struct {
	Command string
	Err     error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("process %q: %v", e.Command, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// NewParseError wraps err as a ParseError for the given stage.
func NewParseError(stage string, err error) error {
	return &ParseError{Stage: stage, Err: err}
}

// KindOf returns the kind of the first typed error found in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var te *TransportError
	if As(err, &te) {
		return KindTransport
	}
	var re *RemoteError
	if As(err, &re) {
		return KindRemote
	}
	var pe *ParseError
	if As(err, &pe) {
		return KindParse
	}
	var xe *ProcessError
	if As(err, &xe) {
		return KindProcess
	}
	return KindUnknown
}

// IsRetryable reports whether a failed cycle may be retried on the next
// scheduled cycle instead of stopping the poll loop.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransport, KindRemote, KindParse:
		return true
	}
	return false
}
