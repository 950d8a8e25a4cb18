package aggregator

import (
	"errors"
	"fmt"
	"time"
)

// ConnectError records that an upstream server could not be reached within
// its connect timeout. It is contained at the initializer boundary and never
// aborts an aggregation pass.
type ConnectError struct {
	Server string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("server %s: connect failed: %v", e.Server, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ListError records that an upstream server accepted the connection but its
// tool catalog could not be retrieved. Contained like ConnectError.
type ListError struct {
	Server string
	Err    error
}

func (e *ListError) Error() string {
	return fmt.Sprintf("server %s: tool listing failed: %v", e.Server, e.Err)
}

func (e *ListError) Unwrap() error { return e.Err }

// ToolNotFoundError is returned by Dispatch when the requested name is not
// in the published catalog. The request never reaches any transport.
type ToolNotFoundError struct {
	Tool string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Tool)
}

// CallTimeoutError is returned when a tool call exceeded the owning server's
// call timeout. Transient: the dispatcher may retry it.
type CallTimeoutError struct {
	Tool    string
	Server  string
	Timeout time.Duration
}

func (e *CallTimeoutError) Error() string {
	return fmt.Sprintf("tool %s on server %s timed out after %s", e.Tool, e.Server, e.Timeout)
}

// TransportError is returned when the call failed at the connection level,
// for example because the owning connection was lost after the catalog was
// built. Transient: the dispatcher may retry it.
type TransportError struct {
	Tool   string
	Server string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("tool %s on server %s: transport failure: %v", e.Tool, e.Server, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UpstreamError is returned when the remote server executed the call and
// reported an application-level failure. Deterministic: never retried.
// When the upstream returned content alongside the failure, Dispatch also
// returns the raw result so callers can forward it.
type UpstreamError struct {
	Tool    string
	Server  string
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("tool %s on server %s failed upstream: %s", e.Tool, e.Server, e.Message)
}

// isRetryable reports whether a dispatch error is a transient outcome worth
// another attempt. Unknown tools and upstream failures are deterministic and
// never retried.
func isRetryable(err error) bool {
	var timeout *CallTimeoutError
	var transport *TransportError
	return errors.As(err, &timeout) || errors.As(err, &transport)
}
