package aggregator

import (
	"time"

	"toolgate/internal/config"
	"toolgate/internal/upstream"

	"github.com/mark3labs/mcp-go/mcp"
)

// Collision records that two servers exposed a tool with the same name
// during one aggregation pass. Collisions are resolved silently by the
// configured policy but always recorded for observability.
type Collision struct {
	Tool   string // The contested tool name
	Winner string // Server whose tool ended up in the catalog
	Loser  string // Server whose tool was dropped
}

// Report is the outcome of one aggregation pass. It is consumed immediately
// by callers (logging, the check command) and not persisted.
type Report struct {
	// Pass is the short unique identifier of the aggregation pass.
	Pass string
	// Catalog is the published snapshot the pass produced.
	Catalog *Catalog
	// Missing lists allow-list names absent from the merged catalog, sorted.
	// Missing tools are reported, not fatal: a degraded tool set is
	// preferred over hard failure.
	Missing []string
	// FailedServers lists servers that could not be connected or listed
	// during this pass, in registry order.
	FailedServers []string
	// SkippedServers lists servers skipped because their circuit breaker
	// was open, in registry order.
	SkippedServers []string
	// Collisions lists duplicate tool names encountered during the merge.
	Collisions []Collision
	// Duration is the wall-clock time of the whole pass, bounded by the
	// slowest server rather than the sum of all servers.
	Duration time.Duration
}

// serverResult is the outcome of one per-server initializer branch: either a
// populated tool list with the connection that produced it, or a recorded
// failure. Errors never cross this boundary as pass failures.
type serverResult struct {
	spec   config.ServerSpec
	client upstream.Client
	tools  []mcp.Tool
	// err is a *ConnectError or *ListError when the branch failed, nil on
	// success.
	err error
	// reused is true when the branch kept an already-connected client from
	// the previous pass instead of opening a new connection.
	reused bool
	// skipped is true when the branch was short-circuited by an open
	// circuit breaker.
	skipped bool
}
