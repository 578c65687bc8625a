package client

import (
	"crypto/tls"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// DefaultPort is used when a gRPC URI doesn't name one.
const DefaultPort = "9090"

// Address is a parsed gRPC server URI.
type Address struct {
	// Target in host:port form, suitable for dialing.
	Target string
	// UseTLS selects transport-level TLS over a plaintext connection.
	UseTLS bool
}

// ParseGRPCURI parses a URI of the form:
//
//	grpc://hostname[:port][?ssl=<bool>]
//
// The scheme must be "grpc" and a hostname is required. The port defaults to
// DefaultPort. The only recognized query parameter is "ssl", a boolean
// (true/1/on vs false/0/off, case-insensitive; the last occurrence wins)
// which defaults to true. Any other URI component is an error.
func ParseGRPCURI(uri string) (Address, error) {
	var parsed, err = url.Parse(uri)
	if err != nil {
		return Address{}, errors.Wrapf(err, "parsing URI %q", uri)
	}
	if parsed.Scheme != "grpc" {
		return Address{}, errors.Errorf("invalid scheme %q in URI %q (expected \"grpc\")", parsed.Scheme, uri)
	}
	if parsed.Hostname() == "" {
		return Address{}, errors.Errorf("host name is missing in URI %q", uri)
	}
	if parsed.Path != "" || parsed.Fragment != "" || parsed.User != nil {
		return Address{}, errors.Errorf("unexpected path, fragment, or user info in URI %q", uri)
	}

	var addr = Address{UseTLS: true}

	var query url.Values
	if query, err = url.ParseQuery(parsed.RawQuery); err != nil {
		return Address{}, errors.Wrapf(err, "parsing query of URI %q", uri)
	}
	for key, values := range query {
		if key != "ssl" {
			return Address{}, errors.Errorf("unexpected query parameter %q in URI %q", key, uri)
		}
		if addr.UseTLS, err = parseBool(values[len(values)-1]); err != nil {
			return Address{}, errors.Wrapf(err, "parsing %q of URI %q", "ssl", uri)
		}
	}

	var port = parsed.Port()
	if port == "" {
		port = DefaultPort
	}
	addr.Target = parsed.Hostname() + ":" + port

	return addr, nil
}

// DialOption returns the transport credentials of the Address.
func (a Address) DialOption() grpc.DialOption {
	if a.UseTLS {
		return grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{}))
	}
	return grpc.WithTransportCredentials(insecure.NewCredentials())
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "true", "on", "1":
		return true, nil
	case "false", "off", "0":
		return false, nil
	default:
		return false, errors.Errorf("invalid boolean value %q", value)
	}
}
