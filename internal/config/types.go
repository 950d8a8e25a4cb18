package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// TransportKind identifies the wire protocol used to reach an upstream
// MCP server.
type TransportKind string

const (
	// TransportStreamableHTTP is the request/response streamable HTTP transport.
	TransportStreamableHTTP TransportKind = "streamable-http"
	// TransportSSE is the Server-Sent Events transport.
	TransportSSE TransportKind = "sse"
)

// CollisionPolicy selects which server wins when two upstream servers expose
// a tool with the same name. Resolution is always by the fixed order of the
// servers list, never by connection completion order.
type CollisionPolicy string

const (
	// CollisionFirstWins keeps the tool from the server listed first.
	CollisionFirstWins CollisionPolicy = "first"
	// CollisionLastWins keeps the tool from the server listed last.
	CollisionLastWins CollisionPolicy = "last"
)

// Duration wraps time.Duration so that config values can be written in the
// usual Go form ("20s", "5m") in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServerSpec describes one upstream MCP server. Specs are immutable once
// loaded; the position of a spec in Config.Servers is significant because it
// decides tool name collisions.
type ServerSpec struct {
	// Name is the unique identifier of the server, used in reports and logs.
	Name string `yaml:"name"`
	// URL is the endpoint of the server.
	URL string `yaml:"url"`
	// Transport selects the wire protocol (streamable-http or sse).
	Transport TransportKind `yaml:"transport"`
	// ConnectTimeout bounds connection establishment and the protocol
	// handshake (default: 20s).
	ConnectTimeout Duration `yaml:"connectTimeout,omitempty"`
	// CallTimeout bounds every tool invocation against this server
	// (default: 30s).
	CallTimeout Duration `yaml:"callTimeout,omitempty"`
	// Headers are optional HTTP headers sent with every request.
	Headers map[string]string `yaml:"headers,omitempty"`
}

// AggregatorConfig defines how the aggregated catalog is exposed and
// refreshed.
type AggregatorConfig struct {
	Port      int           `yaml:"port,omitempty"`      // Port for the aggregator endpoint (default: 8090)
	Host      string        `yaml:"host,omitempty"`      // Host to bind to (default: localhost)
	Transport TransportKind `yaml:"transport,omitempty"` // Downstream transport (default: streamable-http)
	// RefreshInterval is how often a new aggregation pass rebuilds the
	// catalog (default: 5m).
	RefreshInterval Duration `yaml:"refreshInterval,omitempty"`
	// CollisionPolicy selects the tie-break for duplicate tool names
	// (default: first).
	CollisionPolicy CollisionPolicy `yaml:"collisionPolicy,omitempty"`
}

// Config is the top-level configuration structure for toolgate.
type Config struct {
	Aggregator AggregatorConfig `yaml:"aggregator"`
	// Servers is the ordered upstream server registry. Order matters: it is
	// the collision tie-break order.
	Servers []ServerSpec `yaml:"servers"`
	// AllowedTools is the curated set of tool names exposed to the agent.
	// Tools outside this list are dropped from the published catalog.
	AllowedTools []string `yaml:"allowedTools"`
}
