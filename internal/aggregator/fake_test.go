package aggregator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"toolgate/internal/config"
	"toolgate/internal/upstream"

	"github.com/mark3labs/mcp-go/mcp"
)

// fakeClient is a scriptable upstream.Client. All fields are read under the
// mutex so tests can mutate behavior between passes.
type fakeClient struct {
	mu sync.Mutex

	tools     []mcp.Tool
	initErr   error
	initDelay time.Duration
	listErr   error
	pingErr   error
	callFn    func(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error)

	initCalls int
	callCalls int
	closed    bool
}

func (f *fakeClient) Initialize(ctx context.Context) error {
	f.mu.Lock()
	f.initCalls++
	delay, err := f.initDelay, f.initErr
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tools, nil
}

func (f *fakeClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	f.mu.Lock()
	f.callCalls++
	fn := f.callFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, name, args)
	}
	return mcp.NewToolResultText(name + " ok"), nil
}

func (f *fakeClient) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCalls
}

func (f *fakeClient) inits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initCalls
}

func (f *fakeClient) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fixedFactory returns the pre-built fake for each server name.
func fixedFactory(clients map[string]upstream.Client) upstream.Factory {
	return func(spec config.ServerSpec) (upstream.Client, error) {
		c, ok := clients[spec.Name]
		if !ok {
			return nil, fmt.Errorf("no fake client for %s", spec.Name)
		}
		return c, nil
	}
}

func testSpec(name string) config.ServerSpec {
	return config.ServerSpec{
		Name:           name,
		URL:            fmt.Sprintf("http://%s.example.com/mcp", name),
		Transport:      config.TransportStreamableHTTP,
		ConnectTimeout: config.Duration(2 * time.Second),
		CallTimeout:    config.Duration(2 * time.Second),
	}
}

func mkTools(names ...string) []mcp.Tool {
	tools := make([]mcp.Tool, 0, len(names))
	for _, name := range names {
		tools = append(tools, mcp.Tool{Name: name})
	}
	return tools
}

func testEntry(name, server string, client upstream.Client, callTimeout time.Duration) catalogEntry {
	return catalogEntry{
		tool:        mcp.Tool{Name: name},
		server:      server,
		client:      client,
		callTimeout: callTimeout,
	}
}
