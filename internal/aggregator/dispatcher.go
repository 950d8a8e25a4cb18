package aggregator

import (
	"context"
	"errors"
	"sync"
	"time"

	"toolgate/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/time/rate"
)

const (
	// dispatchMaxAttempts bounds one dispatch: the initial attempt plus up
	// to two retries of transient failures.
	dispatchMaxAttempts = 3
	// dispatchRetryDelay is the pause between dispatch attempts.
	dispatchRetryDelay = 500 * time.Millisecond

	// dispatchRPS and dispatchBurst bound the per-server call rate.
	dispatchRPS   = 5
	dispatchBurst = 5
)

// Dispatcher resolves tool names against the published catalog snapshot and
// invokes the owning transport.
//
// One dispatch moves through pending -> {succeeded, timed out, failed};
// timed-out and transport-failed attempts re-enter pending under the attempt
// budget, after which the outcome is terminal. Unknown tools and upstream
// application failures are terminal immediately: they are deterministic
// outcomes of the call itself.
type Dispatcher struct {
	// snapshot returns the current catalog. Dispatches resolve against the
	// snapshot taken at entry, so a concurrent re-aggregation never changes
	// the target of an in-flight call.
	snapshot func() *Catalog

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewDispatcher creates a dispatcher reading catalog snapshots from the
// given source.
func NewDispatcher(snapshot func() *Catalog) *Dispatcher {
	return &Dispatcher{
		snapshot: snapshot,
		limiters: make(map[string]*rate.Limiter),
	}
}

// limiter returns the rate limiter for a server, creating it on first use.
func (d *Dispatcher) limiter(server string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.limiters[server]
	if !ok {
		l = rate.NewLimiter(rate.Limit(dispatchRPS), dispatchBurst)
		d.limiters[server] = l
	}
	return l
}

// Dispatch resolves a tool name and invokes it under the owning server's
// call timeout.
//
// Error outcomes:
//   - *ToolNotFoundError: the name is not in the filtered catalog; no
//     transport is touched
//   - *CallTimeoutError: the call exceeded the server's call timeout on
//     every attempt
//   - *TransportError: the connection failed on every attempt
//   - *UpstreamError: the server executed the call and reported an
//     application-level failure; the raw result is returned alongside the
//     error so callers can forward its content
//
// A dispatch never blocks indefinitely: every attempt is wrapped with the
// call timeout regardless of transport variant, and cancellation of ctx
// aborts the dispatch between and during attempts.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	catalog := d.snapshot()
	if catalog == nil {
		return nil, &ToolNotFoundError{Tool: name}
	}

	entry, ok := catalog.get(name)
	if !ok {
		return nil, &ToolNotFoundError{Tool: name}
	}

	var lastErr error
	for attempt := 1; attempt <= dispatchMaxAttempts; attempt++ {
		if attempt > 1 {
			logging.Debug("Dispatcher", "Retrying %s on %s (attempt %d/%d) after %v",
				name, entry.server, attempt, dispatchMaxAttempts, lastErr)
			select {
			case <-ctx.Done():
				return nil, &TransportError{Tool: name, Server: entry.server, Err: ctx.Err()}
			case <-time.After(dispatchRetryDelay):
			}
		}

		if err := d.limiter(entry.server).Wait(ctx); err != nil {
			return nil, &TransportError{Tool: name, Server: entry.server, Err: err}
		}

		result, err := d.callOnce(ctx, entry, name, args)
		if err == nil {
			if result != nil && result.IsError {
				return result, &UpstreamError{
					Tool:    name,
					Server:  entry.server,
					Message: firstTextContent(result),
				}
			}
			return result, nil
		}

		lastErr = err
		if !isRetryable(err) || ctx.Err() != nil {
			break
		}
	}

	logging.Error("Dispatcher", lastErr, "Dispatch of %s on %s failed terminally", name, entry.server)
	return nil, lastErr
}

// callOnce performs a single invocation attempt under the entry's call
// timeout and classifies the failure.
func (d *Dispatcher) callOnce(ctx context.Context, entry catalogEntry, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, entry.callTimeout)
	defer cancel()

	result, err := entry.client.CallTool(callCtx, name, args)
	if err == nil {
		return result, nil
	}

	// The attempt deadline fired while the caller's context is still live:
	// that is a call timeout, not a cancellation.
	if errors.Is(err, context.DeadlineExceeded) || (callCtx.Err() != nil && ctx.Err() == nil) {
		return nil, &CallTimeoutError{Tool: name, Server: entry.server, Timeout: entry.callTimeout}
	}

	return nil, &TransportError{Tool: name, Server: entry.server, Err: err}
}

// firstTextContent extracts the first text block of a tool result for error
// reporting.
func firstTextContent(result *mcp.CallToolResult) string {
	for _, content := range result.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			return text.Text
		}
	}
	return "upstream reported an error"
}
