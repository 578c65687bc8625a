// Package client provides the connection-management and unary-call plumbing
// which streambridge API clients are built on: parsing of grpc:// server
// URIs, an idempotent connection holder over *grpc.ClientConn, and call
// wrappers which translate transport failures into the client error
// taxonomy. Streaming consumption is layered separately; see package
// streaming.
package client

import (
	"sync"

	"go.streambridge.dev/core/keepalive"
	"google.golang.org/grpc"
)

// Client holds a gRPC connection to an API server. A Client is created
// disconnected; Connect establishes the connection and Close releases it,
// and both are idempotent. Specific API clients embed or wrap a Client and
// dispatch their stub calls through Call / CallTransformed.
type Client struct {
	serverURL string
	addr      Address
	opts      []grpc.DialOption

	mu   sync.Mutex
	conn *grpc.ClientConn
}

// NewClient returns a Client of the server at |serverURL|, which must be a
// URI accepted by ParseGRPCURI. Additional DialOptions are appended to the
// defaults derived from the URI. The Client is not yet connected.
func NewClient(serverURL string, extra ...grpc.DialOption) (*Client, error) {
	var addr, err = ParseGRPCURI(serverURL)
	if err != nil {
		return nil, err
	}
	var opts = append([]grpc.DialOption{
		addr.DialOption(),
		grpc.WithContextDialer(keepalive.DialerFunc),
	}, extra...)

	return &Client{
		serverURL: serverURL,
		addr:      addr,
		opts:      opts,
	}, nil
}

// ServerURL returns the URI the Client was built with.
func (c *Client) ServerURL() string { return c.serverURL }

// IsConnected returns whether the Client holds an established connection.
// Note gRPC connections are themselves lazy and self-healing: "connected"
// means Connect succeeded and Close hasn't been called, not that the
// transport is currently healthy.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect establishes the Client connection. If the Client is already
// connected, Connect is a no-op.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}
	var conn, err = grpc.NewClient(c.addr.Target, c.opts...)
	if err != nil {
		return err
	}
	c.conn = conn
	return nil
}

// Conn returns the established *grpc.ClientConn, against which API stubs are
// created. It returns NotConnectedError if the Client isn't connected.
func (c *Client) Conn() (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, &NotConnectedError{Server: c.serverURL, Operation: "conn"}
	}
	return c.conn, nil
}

// Close releases the Client connection. If the Client isn't connected, Close
// is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	var err = c.conn.Close()
	c.conn = nil
	return err
}
