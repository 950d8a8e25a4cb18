package aggregator

import (
	"sync"
	"time"

	"toolgate/pkg/logging"
)

const (
	// breakerThreshold is the number of consecutive failed passes after
	// which connection attempts to a server are suspended.
	breakerThreshold = 3
	// breakerCooldown is how long a server is skipped once its breaker opens.
	breakerCooldown = 5 * time.Minute
)

// breakerState tracks the failure streak of one server.
type breakerState struct {
	failures int
	open     bool
	openedAt time.Time
}

// breakerSet is a per-server circuit breaker guarding connect attempts.
// A server that fails breakerThreshold passes in a row is skipped in
// subsequent passes until breakerCooldown elapses, so a dead endpoint does
// not cost every pass its full connect timeout.
type breakerSet struct {
	mu        sync.Mutex
	states    map[string]*breakerState
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

func newBreakerSet() *breakerSet {
	return &breakerSet{
		states:    make(map[string]*breakerState),
		threshold: breakerThreshold,
		cooldown:  breakerCooldown,
		now:       time.Now,
	}
}

// allow reports whether a connection attempt to the server may proceed.
// An open breaker whose cooldown has elapsed resets and allows one attempt.
func (b *breakerSet) allow(server string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.states[server]
	if !ok || !state.open {
		return true
	}

	if b.now().Sub(state.openedAt) > b.cooldown {
		state.open = false
		state.failures = 0
		logging.Info("Breaker", "Circuit breaker reset for %s", server)
		return true
	}

	return false
}

// recordSuccess closes the breaker for a server and clears its streak.
func (b *breakerSet) recordSuccess(server string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.states, server)
}

// recordFailure notes a failed pass for a server, opening the breaker when
// the streak reaches the threshold.
func (b *breakerSet) recordFailure(server string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.states[server]
	if !ok {
		state = &breakerState{}
		b.states[server] = state
	}

	state.failures++
	if state.failures >= b.threshold && !state.open {
		state.open = true
		state.openedAt = b.now()
		logging.Warn("Breaker", "Circuit breaker opened for %s after %d consecutive failures", server, state.failures)
	}
}
