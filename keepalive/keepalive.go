// Package keepalive provides a TCP keep-alive dialer for client connections,
// so dead server connections are eventually detected and torn down rather
// than blocking a stream consumer forever.
package keepalive

import (
	"context"
	"net"
	"time"
)

// Dialer applies the same timeouts as http.DefaultTransport.
var Dialer = &net.Dialer{
	Timeout:   30 * time.Second,
	KeepAlive: 30 * time.Second,
}

// DialerFunc dials |addr| with |ctx|. It's designed to be easily used
// as a grpc.DialOption, eg:
//
//	grpc.WithContextDialer(keepalive.DialerFunc)
func DialerFunc(ctx context.Context, addr string) (net.Conn, error) {
	return Dialer.DialContext(ctx, "tcp", addr)
}
