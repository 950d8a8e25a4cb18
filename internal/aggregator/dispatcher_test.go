package aggregator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticDispatcher(entries map[string]catalogEntry) *Dispatcher {
	catalog := newCatalog("test", entries)
	return NewDispatcher(func() *Catalog { return catalog })
}

func TestDispatchUnknownToolNeverReachesTransport(t *testing.T) {
	client := &fakeClient{}
	d := staticDispatcher(map[string]catalogEntry{
		"known": testEntry("known", "srv", client, time.Second),
	})

	result, err := d.Dispatch(context.Background(), "does_not_exist", nil)

	require.Nil(t, result)
	var notFound *ToolNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "does_not_exist", notFound.Tool)
	assert.Zero(t, client.calls(), "an unknown name must fail before any transport call")
}

func TestDispatchNilCatalog(t *testing.T) {
	d := NewDispatcher(func() *Catalog { return nil })

	_, err := d.Dispatch(context.Background(), "anything", nil)

	var notFound *ToolNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestDispatchSuccess(t *testing.T) {
	client := &fakeClient{}
	d := staticDispatcher(map[string]catalogEntry{
		"post_tweet": testEntry("post_tweet", "twitter", client, time.Second),
	})

	result, err := d.Dispatch(context.Background(), "post_tweet", map[string]interface{}{"text": "hi"})

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 1, client.calls())
}

func TestDispatchTimeoutBounded(t *testing.T) {
	client := &fakeClient{
		callFn: func(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	callTimeout := 100 * time.Millisecond
	d := staticDispatcher(map[string]catalogEntry{
		"slow": testEntry("slow", "srv", client, callTimeout),
	})

	start := time.Now()
	_, err := d.Dispatch(context.Background(), "slow", nil)
	elapsed := time.Since(start)

	var timeout *CallTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, callTimeout, timeout.Timeout)
	assert.Equal(t, dispatchMaxAttempts, client.calls(), "timeouts are transient and retried up to the attempt budget")
	// Three bounded attempts plus two retry pauses, with slack for scheduling.
	assert.Less(t, elapsed, 3*time.Second, "a dispatch must never hang past its attempt budget")
}

func TestDispatchRetriesTransportFailureThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	client := &fakeClient{
		callFn: func(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
			if attempts.Add(1) == 1 {
				return nil, errors.New("connection reset")
			}
			return mcp.NewToolResultText("recovered"), nil
		},
	}
	d := staticDispatcher(map[string]catalogEntry{
		"flaky": testEntry("flaky", "srv", client, time.Second),
	})

	result, err := d.Dispatch(context.Background(), "flaky", nil)

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestDispatchUpstreamFailureNotRetried(t *testing.T) {
	client := &fakeClient{
		callFn: func(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError("rate limit exceeded"), nil
		},
	}
	d := staticDispatcher(map[string]catalogEntry{
		"post_tweet": testEntry("post_tweet", "twitter", client, time.Second),
	})

	result, err := d.Dispatch(context.Background(), "post_tweet", nil)

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "rate limit exceeded", upstream.Message)
	require.NotNil(t, result, "the raw upstream result is returned for forwarding")
	assert.True(t, result.IsError)
	assert.Equal(t, 1, client.calls(), "upstream failures are deterministic and never retried")
}

func TestDispatchTerminalAfterAttemptBudget(t *testing.T) {
	client := &fakeClient{
		callFn: func(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
			return nil, errors.New("connection reset")
		},
	}
	d := staticDispatcher(map[string]catalogEntry{
		"down": testEntry("down", "srv", client, time.Second),
	})

	_, err := d.Dispatch(context.Background(), "down", nil)

	var transport *TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, dispatchMaxAttempts, client.calls())
}

// An in-flight dispatch is pinned to the snapshot taken at entry: swapping
// the catalog mid-call neither aborts the call nor retargets it.
func TestDispatchPinnedToSnapshotDuringSwap(t *testing.T) {
	started := make(chan struct{})
	swapped := make(chan struct{})
	client := &fakeClient{
		callFn: func(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
			close(started)
			<-swapped
			return mcp.NewToolResultText("done"), nil
		},
	}

	var current atomic.Pointer[Catalog]
	current.Store(newCatalog("pass-1", map[string]catalogEntry{
		"tool": testEntry("tool", "srv", client, time.Second),
	}))
	d := NewDispatcher(current.Load)

	done := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(context.Background(), "tool", nil)
		done <- err
	}()

	// Publish a catalog that no longer contains the tool, then release the
	// blocked call.
	<-started
	current.Store(newCatalog("pass-2", nil))
	close(swapped)

	require.NoError(t, <-done, "in-flight dispatch must complete against its original snapshot")

	_, err := d.Dispatch(context.Background(), "tool", nil)
	var notFound *ToolNotFoundError
	assert.ErrorAs(t, err, &notFound, "new dispatches resolve against the new snapshot")
}
