package aggregator

import (
	"toolgate/internal/config"
	"toolgate/pkg/logging"
)

// mergeResults combines per-server tool lists into a single name-keyed entry
// map. Results arrive indexed by registry position, so the merge walks them
// in the fixed order of the server configuration — arrival order of the
// concurrent initializers is never observable in the outcome.
//
// Collision policy: with CollisionFirstWins (the default) the server listed
// first in the registry keeps the name; with CollisionLastWins the last one
// does. Either way the loser is recorded so operators can see shadowed tools.
func mergeResults(results []serverResult, policy config.CollisionPolicy) (map[string]catalogEntry, []Collision) {
	entries := make(map[string]catalogEntry)
	var collisions []Collision

	for _, res := range results {
		if res.err != nil {
			continue
		}

		for _, tool := range res.tools {
			candidate := catalogEntry{
				tool:        tool,
				server:      res.spec.Name,
				client:      res.client,
				callTimeout: res.spec.CallTimeout.Std(),
			}

			current, exists := entries[tool.Name]
			if !exists {
				entries[tool.Name] = candidate
				continue
			}

			if policy == config.CollisionLastWins {
				collisions = append(collisions, Collision{
					Tool:   tool.Name,
					Winner: candidate.server,
					Loser:  current.server,
				})
				entries[tool.Name] = candidate
			} else {
				collisions = append(collisions, Collision{
					Tool:   tool.Name,
					Winner: current.server,
					Loser:  candidate.server,
				})
			}

			logging.Debug("Merger", "Tool name collision on %q between %s and %s (policy: %s)",
				tool.Name, current.server, candidate.server, policy)
		}
	}

	return entries, collisions
}
