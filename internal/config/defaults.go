package config

import "time"

const (
	// DefaultConnectTimeout bounds upstream connection establishment.
	DefaultConnectTimeout = 20 * time.Second
	// DefaultCallTimeout bounds a single tool invocation.
	DefaultCallTimeout = 30 * time.Second
	// DefaultRefreshInterval is how often the catalog is rebuilt.
	DefaultRefreshInterval = 5 * time.Minute

	// DefaultHost is the bind address of the aggregator endpoint.
	DefaultHost = "localhost"
	// DefaultPort is the port of the aggregator endpoint.
	DefaultPort = 8090
)

// DefaultAllowedTools is the curated tool set exposed to the agent when the
// configuration does not supply its own allow-list: the four write and six
// read operations of the twitter deployment this system was built for.
var DefaultAllowedTools = []string{
	// Write operations
	"post_tweet",
	"delete_tweet",
	"like_tweet",
	"retweet",
	// Read operations
	"advanced_search_twitter",
	"get_trends",
	"get_tweets_by_IDs",
	"get_tweet_replies",
	"get_tweet_quotations",
	"get_tweet_thread_context",
}

// GetDefaultConfig returns the default configuration for toolgate.
// No upstream servers are configured by default.
func GetDefaultConfig() Config {
	allowed := make([]string, len(DefaultAllowedTools))
	copy(allowed, DefaultAllowedTools)

	return Config{
		Aggregator: AggregatorConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			Transport:       TransportStreamableHTTP,
			RefreshInterval: Duration(DefaultRefreshInterval),
			CollisionPolicy: CollisionFirstWins,
		},
		AllowedTools: allowed,
	}
}

// ApplyDefaults fills in unset fields on a loaded configuration. Server specs
// get per-field defaults; aggregator settings fall back to the packaged
// defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Aggregator.Host == "" {
		cfg.Aggregator.Host = DefaultHost
	}
	if cfg.Aggregator.Port == 0 {
		cfg.Aggregator.Port = DefaultPort
	}
	if cfg.Aggregator.Transport == "" {
		cfg.Aggregator.Transport = TransportStreamableHTTP
	}
	if cfg.Aggregator.RefreshInterval == 0 {
		cfg.Aggregator.RefreshInterval = Duration(DefaultRefreshInterval)
	}
	if cfg.Aggregator.CollisionPolicy == "" {
		cfg.Aggregator.CollisionPolicy = CollisionFirstWins
	}

	for i := range cfg.Servers {
		if cfg.Servers[i].ConnectTimeout == 0 {
			cfg.Servers[i].ConnectTimeout = Duration(DefaultConnectTimeout)
		}
		if cfg.Servers[i].CallTimeout == 0 {
			cfg.Servers[i].CallTimeout = Duration(DefaultCallTimeout)
		}
	}

	if cfg.AllowedTools == nil {
		allowed := make([]string, len(DefaultAllowedTools))
		copy(allowed, DefaultAllowedTools)
		cfg.AllowedTools = allowed
	}
}
