package client

import (
	"context"
)

// Connection is the Client surface required by the call wrappers. *Client
// satisfies it, as do test fakes.
type Connection interface {
	ServerURL() string
	IsConnected() bool
}

// Call invokes a unary stub method against a connected server. If |c| isn't
// connected it fails fast with NotConnectedError, without invoking |fn|.
// A transport failure of the call is returned as a CallError carrying the
// server, the operation name, and the gRPC status.
func Call[Out any](
	ctx context.Context,
	c Connection,
	operation string,
	fn func(context.Context) (Out, error),
) (Out, error) {
	var zero Out

	if !c.IsConnected() {
		return zero, &NotConnectedError{Server: c.ServerURL(), Operation: operation}
	}
	var out, err = fn(ctx)
	if err != nil {
		return zero, newCallError(c.ServerURL(), operation, err)
	}
	return out, nil
}

// CallTransformed is Call, with |transform| applied to a successful response.
func CallTransformed[StubOut, Out any](
	ctx context.Context,
	c Connection,
	operation string,
	fn func(context.Context) (StubOut, error),
	transform func(StubOut) Out,
) (Out, error) {
	var out, err = Call(ctx, c, operation, fn)
	if err != nil {
		var zero Out
		return zero, err
	}
	return transform(out), nil
}
