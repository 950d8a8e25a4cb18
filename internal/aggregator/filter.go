package aggregator

import "sort"

// filterEntries reduces the merged entries to the allow-listed subset and
// reports which expected names the upstream servers did not provide.
//
// The missing set is informational, not an error: callers decide whether a
// degraded tool set is acceptable. An empty allow-list disables filtering
// entirely (the deployment has opted out of curation).
func filterEntries(entries map[string]catalogEntry, allowed []string) (map[string]catalogEntry, []string) {
	if len(allowed) == 0 {
		return entries, nil
	}

	filtered := make(map[string]catalogEntry, len(allowed))
	var missing []string

	for _, name := range allowed {
		if entry, ok := entries[name]; ok {
			filtered[name] = entry
		} else {
			missing = append(missing, name)
		}
	}

	sort.Strings(missing)
	return filtered, missing
}
