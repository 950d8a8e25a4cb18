package upstream

import (
	"fmt"

	"toolgate/internal/config"
)

// NewClient creates the transport adapter matching a server spec. The choice
// of transport is made here, once, so nothing above this function ever
// branches on the transport kind.
//
// Supported transports:
//   - streamable-http: request/response over HTTP (StreamableHTTPClient)
//   - sse: Server-Sent Events stream (SSEClient)
//
// Returns an error if the spec has no URL or names an unknown transport.
func NewClient(spec config.ServerSpec) (Client, error) {
	if spec.URL == "" {
		return nil, fmt.Errorf("server %s: url is required", spec.Name)
	}

	switch spec.Transport {
	case config.TransportStreamableHTTP:
		return NewStreamableHTTPClient(spec.URL, spec.Headers), nil

	case config.TransportSSE:
		return NewSSEClient(spec.URL, spec.Headers), nil

	default:
		return nil, fmt.Errorf("server %s: unsupported transport %q (supported: %s, %s)",
			spec.Name, spec.Transport, config.TransportStreamableHTTP, config.TransportSSE)
	}
}

// Factory builds transport adapters from server specs. The aggregator takes
// a Factory so tests can substitute fake clients for real transports.
type Factory func(spec config.ServerSpec) (Client, error)
