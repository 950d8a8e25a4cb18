package aggregator

import (
	"context"
	"errors"
	"time"

	"toolgate/internal/config"
	"toolgate/internal/upstream"
	"toolgate/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"
)

const (
	// connectMaxAttempts is how many times one pass tries to connect to a
	// server before recording it as failed.
	connectMaxAttempts = 3
	// connectBaseDelay and connectMaxDelay bound the exponential backoff
	// between connect attempts.
	connectBaseDelay = 1 * time.Second
	connectMaxDelay  = 8 * time.Second
	// reusePingTimeout bounds the liveness probe on a connection kept from
	// the previous pass.
	reusePingTimeout = 2 * time.Second
)

// errBreakerOpen marks servers skipped because their circuit breaker is open.
var errBreakerOpen = errors.New("circuit breaker open")

// initializeServers runs one initializer per server concurrently and joins
// on the full fan-out. Results are indexed by registry position, so merge
// order never depends on which server answered first. A failed branch
// records its error in its own slot and never disturbs the others; the worst
// case duration of the fan-out is the slowest server's budget, not the sum.
func initializeServers(ctx context.Context, specs []config.ServerSpec, factory upstream.Factory, existing map[string]upstream.Client, breakers *breakerSet) []serverResult {
	results := make([]serverResult, len(specs))

	var g errgroup.Group
	for i, spec := range specs {
		g.Go(func() error {
			results[i] = initializeServer(ctx, spec, factory, existing[spec.Name], breakers)
			return nil
		})
	}
	// Branches contain their own failures, so Wait only joins.
	_ = g.Wait()

	return results
}

// initializeServer produces either a populated tool list or a recorded
// failure for exactly one server. Connect and list errors are converted into
// the result's err field; nothing propagates upward as a pass failure.
//
// A healthy connection from the previous pass is reused when it still
// responds to a ping, so periodic re-aggregation does not tear down
// connections that in-flight dispatches may be using.
func initializeServer(ctx context.Context, spec config.ServerSpec, factory upstream.Factory, existing upstream.Client, breakers *breakerSet) serverResult {
	res := serverResult{spec: spec}

	if breakers != nil && !breakers.allow(spec.Name) {
		logging.Debug("Initializer", "Skipping %s: circuit breaker open", spec.Name)
		res.skipped = true
		res.err = &ConnectError{Server: spec.Name, Err: errBreakerOpen}
		return res
	}

	if existing != nil {
		pingCtx, cancel := context.WithTimeout(ctx, reusePingTimeout)
		err := existing.Ping(pingCtx)
		cancel()

		if err == nil {
			tools, listErr := listToolsBounded(ctx, spec, existing)
			if listErr == nil {
				logging.Debug("Initializer", "Reusing connection to %s (%d tools)", spec.Name, len(tools))
				res.client = existing
				res.tools = tools
				res.reused = true
				if breakers != nil {
					breakers.recordSuccess(spec.Name)
				}
				return res
			}
			logging.Warn("Initializer", "Stale connection to %s, reconnecting: %v", spec.Name, listErr)
		} else {
			logging.Debug("Initializer", "Connection to %s no longer responds, reconnecting: %v", spec.Name, err)
		}
	}

	client, err := connectWithRetry(ctx, spec, factory)
	if err != nil {
		logging.Warn("Initializer", "Server %s failed to connect: %v", spec.Name, err)
		res.err = err
		if breakers != nil {
			breakers.recordFailure(spec.Name)
		}
		return res
	}

	tools, err := listToolsBounded(ctx, spec, client)
	if err != nil {
		logging.Warn("Initializer", "Server %s connected but listing tools failed: %v", spec.Name, err)
		client.Close()
		res.err = &ListError{Server: spec.Name, Err: err}
		if breakers != nil {
			breakers.recordFailure(spec.Name)
		}
		return res
	}

	logging.Info("Initializer", "Connected to %s, loaded %d tools", spec.Name, len(tools))
	res.client = client
	res.tools = tools
	if breakers != nil {
		breakers.recordSuccess(spec.Name)
	}
	return res
}

// connectWithRetry attempts to connect to one server with exponential
// backoff. Every attempt is individually bounded by the server's connect
// timeout so an unresponsive endpoint fails fast instead of hanging.
func connectWithRetry(ctx context.Context, spec config.ServerSpec, factory upstream.Factory) (upstream.Client, error) {
	var lastErr error

	for attempt := 1; attempt <= connectMaxAttempts; attempt++ {
		if attempt > 1 {
			delay := connectBaseDelay << (attempt - 2)
			if delay > connectMaxDelay {
				delay = connectMaxDelay
			}
			logging.Debug("Initializer", "Waiting %s before retrying %s (attempt %d/%d)",
				delay, spec.Name, attempt, connectMaxAttempts)
			select {
			case <-ctx.Done():
				return nil, &ConnectError{Server: spec.Name, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		client, err := factory(spec)
		if err != nil {
			// A factory error is a configuration problem; retrying cannot fix it.
			return nil, &ConnectError{Server: spec.Name, Err: err}
		}

		connectCtx, cancel := context.WithTimeout(ctx, spec.ConnectTimeout.Std())
		err = client.Initialize(connectCtx)
		cancel()

		if err == nil {
			return client, nil
		}

		client.Close()
		lastErr = err
		logging.Warn("Initializer", "Connect attempt %d/%d to %s failed: %v",
			attempt, connectMaxAttempts, spec.Name, err)

		if ctx.Err() != nil {
			return nil, &ConnectError{Server: spec.Name, Err: ctx.Err()}
		}
	}

	return nil, &ConnectError{Server: spec.Name, Err: lastErr}
}

// listToolsBounded retrieves a server's tool catalog under the same timeout
// budget as connection establishment.
func listToolsBounded(ctx context.Context, spec config.ServerSpec, client upstream.Client) ([]mcp.Tool, error) {
	listCtx, cancel := context.WithTimeout(ctx, spec.ConnectTimeout.Std())
	defer cancel()
	return client.ListTools(listCtx)
}
