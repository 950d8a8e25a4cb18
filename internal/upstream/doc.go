// Package upstream contains the transport adapters toolgate uses to reach
// remote MCP servers.
//
// Every adapter presents the same small contract — Initialize, Close,
// ListTools, CallTool, Ping — regardless of the wire protocol underneath.
// Two transports are supported:
//
//   - streamable-http: request/response over HTTP, connection reused between
//     calls (StreamableHTTPClient)
//   - sse: a long-lived Server-Sent Events channel where responses are
//     correlated with outstanding requests by the mcp-go transport
//     (SSEClient)
//
// Callers above this package (the aggregator, the dispatcher) never branch
// on transport kind; NewClient picks the variant from the server spec.
package upstream
