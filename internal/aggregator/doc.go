// Package aggregator discovers, merges, filters, and dispatches tools from
// multiple upstream MCP servers.
//
// One aggregation pass runs the per-server initializers concurrently (each
// isolated from the failures of the others and bounded by its own connect
// timeout), merges the per-server tool lists into a single catalog with a
// deterministic collision policy, filters the catalog through the configured
// allow-list, and atomically publishes the result as an immutable snapshot.
//
// The Manager owns the pass lifecycle and the published snapshot; the
// Dispatcher resolves tool calls against the snapshot and invokes the owning
// transport under the per-server call timeout, retrying transient failures a
// bounded number of times. The Server exposes the filtered catalog as an MCP
// endpoint so an agent runtime can consume it without ever seeing upstream
// topology, transports, or collision resolution.
//
// Resilience properties maintained here:
//
//   - one unreachable or slow upstream never blocks or aborts aggregation
//     for the others (per-branch error containment, parallel fan-out)
//   - tool name collisions resolve by the fixed registry order, never by
//     the non-deterministic completion order of concurrent initializers
//   - a published catalog is immutable and safe for unsynchronized reads;
//     re-aggregation swaps in a new snapshot without disturbing in-flight
//     dispatches against the old one
//   - no dispatch blocks indefinitely: every call is wrapped with the
//     owning server's call timeout regardless of transport
package aggregator
