// Package config loads and validates the toolgate configuration.
//
// The configuration is a single YAML file (config.yaml) holding three
// things: the ordered registry of upstream MCP servers, the allow-list of
// tool names the agent may use, and the settings of the aggregator endpoint
// that exposes the merged catalog.
//
// The order of the servers list is load-bearing: when two servers expose a
// tool with the same name, the configured collision policy is applied in
// list order, so deployments get a reproducible catalog regardless of which
// server answered first.
package config
