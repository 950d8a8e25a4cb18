// Package logging provides leveled, subsystem-tagged logging for toolgate.
//
// All log entries carry a subsystem name so that output from the aggregator,
// the upstream transports, and the CLI can be told apart when everything runs
// in one process. The package wraps log/slog with a printf-style call surface:
//
//	logging.Info("Aggregator", "Pass %s merged %d tools", passID, n)
//	logging.Error("Dispatcher", err, "Tool call failed for %s", name)
//
// Init must be called once at startup to set the minimum level and output
// writer. Messages logged before Init fall back to INFO on stderr.
package logging
