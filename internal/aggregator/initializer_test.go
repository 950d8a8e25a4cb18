package aggregator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"toolgate/internal/config"
	"toolgate/internal/upstream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectWithRetryFactoryErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	factory := func(spec config.ServerSpec) (upstream.Client, error) {
		calls.Add(1)
		return nil, errors.New("unsupported transport")
	}

	_, err := connectWithRetry(context.Background(), testSpec("bad"), factory)

	var connectErr *ConnectError
	require.ErrorAs(t, err, &connectErr)
	assert.Equal(t, int32(1), calls.Load(), "a configuration problem must not be retried")
}

func TestConnectWithRetryRecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	healthy := &fakeClient{}
	factory := func(spec config.ServerSpec) (upstream.Client, error) {
		if calls.Add(1) == 1 {
			return &fakeClient{initErr: errors.New("connection refused")}, nil
		}
		return healthy, nil
	}

	client, err := connectWithRetry(context.Background(), testSpec("flaky"), factory)

	require.NoError(t, err)
	assert.Same(t, healthy, client)
	assert.Equal(t, int32(2), calls.Load())
}

func TestConnectWithRetryHonorsCancellation(t *testing.T) {
	factory := func(spec config.ServerSpec) (upstream.Client, error) {
		return &fakeClient{initErr: errors.New("connection refused")}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := connectWithRetry(ctx, testSpec("down"), factory)

	var connectErr *ConnectError
	require.ErrorAs(t, err, &connectErr)
	assert.Less(t, time.Since(start), time.Second, "cancellation must abort the backoff wait")
}

func TestInitializeServerListFailureClosesClient(t *testing.T) {
	broken := &fakeClient{listErr: errors.New("protocol error")}
	factory := fixedFactory(map[string]upstream.Client{"srv": broken})

	res := initializeServer(context.Background(), testSpec("srv"), factory, nil, nil)

	var listErr *ListError
	require.ErrorAs(t, res.err, &listErr)
	assert.True(t, broken.isClosed(), "a half-initialized connection must not leak")
}

func TestInitializeServerReusesHealthyConnection(t *testing.T) {
	existing := &fakeClient{tools: mkTools("post")}
	var factoryCalls atomic.Int32
	factory := func(spec config.ServerSpec) (upstream.Client, error) {
		factoryCalls.Add(1)
		return &fakeClient{}, nil
	}

	res := initializeServer(context.Background(), testSpec("srv"), factory, existing, nil)

	require.NoError(t, res.err)
	assert.True(t, res.reused)
	assert.Same(t, existing, res.client)
	assert.Zero(t, factoryCalls.Load(), "a pingable connection must be kept, not replaced")
}

func TestInitializeServerReplacesStaleConnection(t *testing.T) {
	stale := &fakeClient{pingErr: errors.New("connection lost")}
	fresh := &fakeClient{tools: mkTools("post")}
	factory := fixedFactory(map[string]upstream.Client{"srv": fresh})

	res := initializeServer(context.Background(), testSpec("srv"), factory, stale, nil)

	require.NoError(t, res.err)
	assert.False(t, res.reused)
	assert.Same(t, fresh, res.client)
}

func TestInitializeServerSkipsOpenBreaker(t *testing.T) {
	breakers := newBreakerSet()
	for i := 0; i < breakerThreshold; i++ {
		breakers.recordFailure("srv")
	}
	var factoryCalls atomic.Int32
	factory := func(spec config.ServerSpec) (upstream.Client, error) {
		factoryCalls.Add(1)
		return &fakeClient{}, nil
	}

	res := initializeServer(context.Background(), testSpec("srv"), factory, nil, breakers)

	assert.True(t, res.skipped)
	require.Error(t, res.err)
	assert.ErrorIs(t, res.err, errBreakerOpen)
	assert.Zero(t, factoryCalls.Load())
}

// The fan-out is bounded by the slowest server, not the sum, and results land
// in registry order regardless of completion order.
func TestInitializeServersRunsConcurrently(t *testing.T) {
	delay := 150 * time.Millisecond
	clients := map[string]upstream.Client{
		"alpha": &fakeClient{initDelay: delay, tools: mkTools("a")},
		"beta":  &fakeClient{initDelay: delay, tools: mkTools("b")},
		"gamma": &fakeClient{initDelay: delay, tools: mkTools("c")},
	}
	specs := []config.ServerSpec{testSpec("alpha"), testSpec("beta"), testSpec("gamma")}

	start := time.Now()
	results := initializeServers(context.Background(), specs, fixedFactory(clients), nil, nil)
	elapsed := time.Since(start)

	require.Len(t, results, 3)
	assert.Equal(t, "alpha", results[0].spec.Name)
	assert.Equal(t, "beta", results[1].spec.Name)
	assert.Equal(t, "gamma", results[2].spec.Name)
	for _, res := range results {
		require.NoError(t, res.err)
	}
	assert.Less(t, elapsed, 2*delay, "servers must be initialized in parallel")
}

func TestInitializeServersIsolatesFailures(t *testing.T) {
	clients := map[string]upstream.Client{
		"beta": &fakeClient{tools: mkTools("trend")},
	}
	specs := []config.ServerSpec{testSpec("alpha"), testSpec("beta")}

	// alpha has no fake registered, so its factory call fails.
	results := initializeServers(context.Background(), specs, fixedFactory(clients), nil, nil)

	require.Len(t, results, 2)
	assert.Error(t, results[0].err)
	require.NoError(t, results[1].err)
	assert.Len(t, results[1].tools, 1)
}
