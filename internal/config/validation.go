package config

import (
	"fmt"
	"net/url"
)

// Validate checks a configuration for mistakes that would only surface later
// as confusing runtime failures: duplicate server names, missing endpoints,
// unknown transports, and out-of-range ports.
func Validate(cfg Config) error {
	if cfg.Aggregator.Port < 1 || cfg.Aggregator.Port > 65535 {
		return fmt.Errorf("aggregator port %d out of range", cfg.Aggregator.Port)
	}

	switch cfg.Aggregator.Transport {
	case TransportStreamableHTTP, TransportSSE:
	default:
		return fmt.Errorf("unsupported aggregator transport %q (supported: %s, %s)",
			cfg.Aggregator.Transport, TransportStreamableHTTP, TransportSSE)
	}

	switch cfg.Aggregator.CollisionPolicy {
	case CollisionFirstWins, CollisionLastWins:
	default:
		return fmt.Errorf("unsupported collision policy %q (supported: %s, %s)",
			cfg.Aggregator.CollisionPolicy, CollisionFirstWins, CollisionLastWins)
	}

	seen := make(map[string]bool, len(cfg.Servers))
	for i, spec := range cfg.Servers {
		if spec.Name == "" {
			return fmt.Errorf("server at index %d has no name", i)
		}
		if seen[spec.Name] {
			return fmt.Errorf("duplicate server name %q", spec.Name)
		}
		seen[spec.Name] = true

		if spec.URL == "" {
			return fmt.Errorf("server %s has no url", spec.Name)
		}
		if _, err := url.ParseRequestURI(spec.URL); err != nil {
			return fmt.Errorf("server %s has invalid url: %w", spec.Name, err)
		}

		switch spec.Transport {
		case TransportStreamableHTTP, TransportSSE:
		default:
			return fmt.Errorf("server %s has unsupported transport %q (supported: %s, %s)",
				spec.Name, spec.Transport, TransportStreamableHTTP, TransportSSE)
		}

		if spec.ConnectTimeout <= 0 {
			return fmt.Errorf("server %s has non-positive connectTimeout", spec.Name)
		}
		if spec.CallTimeout <= 0 {
			return fmt.Errorf("server %s has non-positive callTimeout", spec.Name)
		}
	}

	return nil
}
