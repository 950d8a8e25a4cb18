package aggregator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"toolgate/internal/config"
	"toolgate/internal/upstream"
	"toolgate/pkg/logging"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// Manager runs aggregation passes and owns the published catalog snapshot.
//
// Passes are serialized; dispatches run independently of passes and of each
// other against whatever snapshot was current when they started. A pass that
// fails for every server still publishes (an empty) catalog and a report —
// a degraded tool set with an explicit missing report is always preferred
// over hard failure.
type Manager struct {
	factory    upstream.Factory
	breakers   *breakerSet
	dispatcher *Dispatcher

	current    atomic.Pointer[Catalog]
	lastReport atomic.Pointer[Report]

	// mu serializes aggregation passes and guards cfg and clients.
	mu      sync.Mutex
	cfg     config.Config
	clients map[string]upstream.Client

	// updateChan notifies subscribers that a new catalog was published.
	updateChan chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewManager creates a manager for the given configuration. A nil factory
// uses the real transport adapters; tests substitute fakes.
func NewManager(cfg config.Config, factory upstream.Factory) *Manager {
	if factory == nil {
		factory = upstream.NewClient
	}

	m := &Manager{
		factory:    factory,
		breakers:   newBreakerSet(),
		cfg:        cfg,
		clients:    make(map[string]upstream.Client),
		updateChan: make(chan struct{}, 1),
	}
	m.dispatcher = NewDispatcher(m.Catalog)
	m.current.Store(newCatalog("initial", nil))

	return m
}

// Catalog returns the current published snapshot. Safe for unsynchronized
// concurrent use; never nil.
func (m *Manager) Catalog() *Catalog {
	return m.current.Load()
}

// LastReport returns the report of the most recent aggregation pass, or nil
// before the first pass.
func (m *Manager) LastReport() *Report {
	return m.lastReport.Load()
}

// ListAvailableTools returns the filtered tool descriptors the agent may
// use: names and input schemas only, no transport or server details.
func (m *Manager) ListAvailableTools() []mcp.Tool {
	return m.Catalog().Tools()
}

// Dispatch invokes a tool from the published catalog. See Dispatcher.Dispatch
// for the error taxonomy.
func (m *Manager) Dispatch(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return m.dispatcher.Dispatch(ctx, name, args)
}

// UpdateConfig replaces the configuration used by subsequent passes. The
// caller is expected to pass a validated config; the next Refresh picks up
// added, changed, and removed servers and the new allow-list.
func (m *Manager) UpdateConfig(cfg config.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

// GetUpdateChannel returns a channel receiving a notification whenever a new
// catalog is published. Buffered with capacity 1; notifications coalesce.
func (m *Manager) GetUpdateChannel() <-chan struct{} {
	return m.updateChan
}

func (m *Manager) notifyUpdate() {
	select {
	case m.updateChan <- struct{}{}:
	default:
		// A notification is already pending.
	}
}

// Refresh runs one aggregation pass: concurrent per-server initialization,
// deterministic merge, allow-list filtering, and an atomic swap of the
// published snapshot. It never returns an error: per-server failures are
// contained and reported.
func (m *Manager) Refresh(ctx context.Context) *Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	pass := uuid.NewString()[:8]
	cfg := m.cfg

	logging.Debug("Aggregator", "Pass %s: initializing %d servers", pass, len(cfg.Servers))

	results := initializeServers(ctx, cfg.Servers, m.factory, m.clients, m.breakers)
	entries, collisions := mergeResults(results, cfg.Aggregator.CollisionPolicy)
	filtered, missing := filterEntries(entries, cfg.AllowedTools)

	catalog := newCatalog(pass, filtered)
	m.current.Store(catalog)

	// Reconcile connection ownership: carry over the connections that
	// produced this catalog, close everything else (stale replacements,
	// failed servers, servers removed from the configuration).
	next := make(map[string]upstream.Client, len(results))
	var failed, skipped []string
	for _, res := range results {
		switch {
		case res.err == nil:
			next[res.spec.Name] = res.client
		case res.skipped:
			skipped = append(skipped, res.spec.Name)
		default:
			failed = append(failed, res.spec.Name)
		}
	}
	for name, old := range m.clients {
		if next[name] != old {
			if err := old.Close(); err != nil {
				logging.Warn("Aggregator", "Error closing connection to %s: %v", name, err)
			}
		}
	}
	m.clients = next

	report := &Report{
		Pass:           pass,
		Catalog:        catalog,
		Missing:        missing,
		FailedServers:  failed,
		SkippedServers: skipped,
		Collisions:     collisions,
		Duration:       time.Since(start),
	}
	m.lastReport.Store(report)
	m.notifyUpdate()

	logging.Info("Aggregator", "Pass %s: published %d tools in %s (merged %d, missing %d, failed servers %d, collisions %d)",
		pass, catalog.Len(), report.Duration.Round(time.Millisecond),
		len(entries), len(missing), len(failed), len(collisions))
	if len(missing) > 0 {
		logging.Warn("Aggregator", "Expected tools unavailable this pass: %v", missing)
	}

	return report
}

// Start runs the initial aggregation pass and begins periodic refreshes.
// The initial pass itself cannot fail the start: a fully-failed pass yields
// an empty catalog and a report describing what went wrong.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("aggregation manager already started")
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.Refresh(m.ctx)

	m.wg.Add(1)
	go m.refreshLoop()

	return nil
}

// refreshLoop rebuilds the catalog on the configured interval until the
// manager is stopped.
func (m *Manager) refreshLoop() {
	defer m.wg.Done()

	m.mu.Lock()
	interval := m.cfg.Aggregator.RefreshInterval.Std()
	m.mu.Unlock()
	if interval <= 0 {
		interval = config.DefaultRefreshInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.Refresh(m.ctx)
		}
	}
}

// Stop cancels in-flight work, waits for the refresh loop, and closes all
// upstream connections. The published catalog is replaced by an empty one so
// late dispatches fail with unknown-tool instead of reaching closed
// connections.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()

	for name, client := range m.clients {
		if err := client.Close(); err != nil {
			logging.Warn("Aggregator", "Error closing connection to %s: %v", name, err)
		}
	}
	m.clients = make(map[string]upstream.Client)
	m.current.Store(newCatalog("stopped", nil))
	m.started = false

	logging.Info("Aggregator", "Aggregation manager stopped")
}
