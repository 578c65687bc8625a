package client

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NotConnectedError is returned by call wrappers and connection accessors
// when the Client isn't connected to its server. It identifies the server
// and the operation that was attempted, and is distinct from transport-level
// failures of an established connection.
type NotConnectedError struct {
	Server    string
	Operation string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("%s: client is not connected to server %q", e.Operation, e.Server)
}

// CallError is a failed call against a connected server. It carries the
// server, the operation name, and the gRPC status of the failure, and wraps
// the underlying transport error.
type CallError struct {
	Server    string
	Operation string
	Code      codes.Code
	Detail    string

	cause error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: call to server %q failed with %s: %s",
		e.Operation, e.Server, e.Code, e.Detail)
}

// Unwrap returns the underlying transport error.
func (e *CallError) Unwrap() error { return e.cause }

// Temporary returns whether the failure is transient, and a retry of the
// operation could plausibly succeed.
func (e *CallError) Temporary() bool {
	switch e.Code {
	case codes.Unknown,
		codes.DeadlineExceeded,
		codes.ResourceExhausted,
		codes.Aborted,
		codes.Unavailable:
		return true
	default:
		return false
	}
}

func newCallError(server, operation string, err error) *CallError {
	var s = status.Convert(err)
	return &CallError{
		Server:    server,
		Operation: operation,
		Code:      s.Code(),
		Detail:    s.Message(),
		cause:     err,
	}
}
