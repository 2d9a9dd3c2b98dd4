package riak

import (
	"errors"
	"fmt"
)

// ErrorCode is the uniform result code carried by every error this
// client returns, across every operation.
type ErrorCode int

const (
	// CodeValidation: caller-supplied input failed pre-flight checks.
	// Local, never touches the wire. Never retried.
	CodeValidation ErrorCode = iota + 1
	// CodeCommunication: socket I/O failure, frame decode failure, or
	// an unexpected response code. The connection that produced it is
	// discarded rather than reused. Retryable.
	CodeCommunication
	// CodeShuttingDown: the operation ran on a connection that had
	// already been closed. Client.Close does not interrupt in-flight
	// operations, and calls made after it get CodeNoConnections.
	CodeShuttingDown
	// CodeNoConnections: no eligible node remains (all cooling down,
	// drained, or pools exhausted without spare capacity).
	CodeNoConnections
	// CodeNotFound: the transport succeeded but the server reported no
	// such object, or a get/fetch response carried no causal vector.
	// Never retried.
	CodeNotFound
	// CodeInvalidResponse: a bucket-properties call over the legacy
	// HTTP interface failed (an unexpected status, or the request
	// itself), or no node has an HTTP address configured. An
	// unexpected binary-protocol response code is CodeCommunication.
	CodeInvalidResponse
	// CodeRemoteError: the server replied with an error-resp frame.
	// Never retried; the message is the server's own text.
	CodeRemoteError
	// CodeBatchException: a batch callback returned a non-nil error;
	// the dispatcher captured it instead of propagating it past the
	// borrowed connection.
	CodeBatchException
)

func (c ErrorCode) String() string {
	switch c {
	case CodeValidation:
		return "validation"
	case CodeCommunication:
		return "communication"
	case CodeShuttingDown:
		return "shutting-down"
	case CodeNoConnections:
		return "no-connections"
	case CodeNotFound:
		return "not-found"
	case CodeInvalidResponse:
		return "invalid-response"
	case CodeRemoteError:
		return "remote-error"
	case CodeBatchException:
		return "batch-exception"
	default:
		return "unknown"
	}
}

// Error is the uniform error envelope returned by every façade
// operation that fails. It always carries a Code; NodeOffline is set
// on communication-class failures, the kind for which the dispatcher
// puts the node that produced them into cooldown (operations inside a
// Batch do not trigger a cooldown).
type Error struct {
	Code        ErrorCode
	Message     string
	NodeOffline bool
	// cause, if set, is the underlying error this Error wraps; exposed
	// via Unwrap so callers can errors.As/errors.Is through to it.
	cause error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("riak: %s: %s", e.Code, e.Message)
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// NewError builds an *Error with no underlying cause.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError builds an *Error around cause, using cause.Error() as the
// message when message is empty.
func WrapError(code ErrorCode, cause error, message string) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Code: code, Message: message, cause: cause}
}

// validationError is a convenience constructor for façade input checks.
func validationError(format string, args ...interface{}) *Error {
	return NewError(CodeValidation, fmt.Sprintf(format, args...))
}

// IsNotFound reports whether err is a not-found *Error, the idiomatic
// Go spelling for what the spec calls "Result(error, code=not-found)".
func IsNotFound(err error) bool {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Code == CodeNotFound
	}
	return false
}

// Code extracts the ErrorCode from err, or 0 if err is not (or does
// not wrap) a *riak.Error.
func Code(err error) ErrorCode {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Code
	}
	return 0
}
