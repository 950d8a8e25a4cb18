package aggregator

import (
	"sort"
	"time"

	"toolgate/internal/upstream"

	"github.com/mark3labs/mcp-go/mcp"
)

// catalogEntry binds a tool to the connection that produced it. The catalog
// holds a reference to the client, not ownership: closing the underlying
// connection invalidates the entry.
type catalogEntry struct {
	tool        mcp.Tool
	server      string
	client      upstream.Client
	callTimeout time.Duration
}

// Catalog is the published mapping from tool name to its owning server and
// connection, built fresh on every aggregation pass. A Catalog is immutable
// once constructed and safe for unsynchronized concurrent reads; the Manager
// swaps a new one in atomically so readers never observe a partially-built
// catalog.
type Catalog struct {
	pass    string
	builtAt time.Time
	entries map[string]catalogEntry
}

// newCatalog builds a catalog snapshot from filtered entries.
func newCatalog(pass string, entries map[string]catalogEntry) *Catalog {
	if entries == nil {
		entries = make(map[string]catalogEntry)
	}
	return &Catalog{
		pass:    pass,
		builtAt: time.Now(),
		entries: entries,
	}
}

// Pass returns the identifier of the aggregation pass that built this catalog.
func (c *Catalog) Pass() string { return c.pass }

// BuiltAt returns when this catalog was constructed.
func (c *Catalog) BuiltAt() time.Time { return c.builtAt }

// Len returns the number of tools in the catalog.
func (c *Catalog) Len() int { return len(c.entries) }

// get resolves a tool name to its entry.
func (c *Catalog) get(name string) (catalogEntry, bool) {
	entry, ok := c.entries[name]
	return entry, ok
}

// Names returns the sorted tool names in the catalog.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tools returns the tool descriptors in the catalog, sorted by name. This is
// the action space handed to the agent loop: names and input schemas only,
// no transport or server details.
func (c *Catalog) Tools() []mcp.Tool {
	tools := make([]mcp.Tool, 0, len(c.entries))
	for _, name := range c.Names() {
		tools = append(tools, c.entries[name].tool)
	}
	return tools
}

// SourceServer returns the name of the server a tool came from, for report
// output. Empty when the tool is not in the catalog.
func (c *Catalog) SourceServer(name string) string {
	if entry, ok := c.entries[name]; ok {
		return entry.server
	}
	return ""
}
