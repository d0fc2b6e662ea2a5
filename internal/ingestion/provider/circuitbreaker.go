package provider

import (
	"sync"
	"time"

	"github.com/jbelanger/exitbook/internal/ingestion/domain"
)

// CircuitBreakerConfig sizes one breaker's thresholds.
type CircuitBreakerConfig struct {
	FailureThreshold int
	FailureWindow    time.Duration
	CooldownPeriod   time.Duration
}

// breakerEntry is the live state for one "domain/providerName" key.
type breakerEntry struct {
	state               domain.CircuitBreakerState
	openedAt            time.Time
	consecutiveFailures int
	windowStart         time.Time
}

// CircuitBreakerRegistry holds one breaker per "domain/providerName" key
// Recording is per-key atomic; breakers across different domains
// never interfere even when provider names collide.
type CircuitBreakerRegistry struct {
	mu      sync.Mutex
	cfg     CircuitBreakerConfig
	entries map[string]*breakerEntry
}

// NewCircuitBreakerRegistry returns an empty registry using cfg for every breaker it
// lazily creates.
func NewCircuitBreakerRegistry(cfg CircuitBreakerConfig) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{cfg: cfg, entries: make(map[string]*breakerEntry)}
}

// Key builds the "domain/providerName" breaker key.
func Key(domainName, providerName string) string {
	return domainName + "/" + providerName
}

// GetOrCreate lazily creates a closed breaker for key and returns its current state,
// transitioning open -> half-open first if the cooldown has elapsed.
func (r *CircuitBreakerRegistry) GetOrCreate(key string, now time.Time) domain.CircuitState {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.getOrCreateLocked(key)
	r.maybeHalfOpenLocked(e, now)
	return snapshot(e)
}

// RecordSuccess closes the breaker and resets its consecutive-failure counter. In
// half-open, a successful call fully closes the breaker.
func (r *CircuitBreakerRegistry) RecordSuccess(key string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.getOrCreateLocked(key)
	e.state = domain.CircuitClosed
	e.consecutiveFailures = 0
	e.openedAt = time.Time{}
}

// RecordFailure increments failure counters and opens the breaker if consecutive
// failures reach the configured threshold within the failure window. In half-open, any
// failure re-opens the breaker immediately.
func (r *CircuitBreakerRegistry) RecordFailure(key string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.getOrCreateLocked(key)

	if e.state == domain.CircuitHalfOpen {
		e.state = domain.CircuitOpen
		e.openedAt = now
		e.consecutiveFailures++
		return
	}

	if e.windowStart.IsZero() || now.Sub(e.windowStart) > r.cfg.FailureWindow {
		e.windowStart = now
		e.consecutiveFailures = 0
	}
	e.consecutiveFailures++

	if e.consecutiveFailures >= r.cfg.FailureThreshold {
		e.state = domain.CircuitOpen
		e.openedAt = now
	}
}

// IsOpen reports whether key currently blocks calls, resolving any elapsed cooldown to
// half-open first (a half-open breaker allows exactly one trial call, so it reports
// false here).
func (r *CircuitBreakerRegistry) IsOpen(key string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.getOrCreateLocked(key)
	r.maybeHalfOpenLocked(e, now)
	return e.state == domain.CircuitOpen
}

func (r *CircuitBreakerRegistry) getOrCreateLocked(key string) *breakerEntry {
	e, ok := r.entries[key]
	if !ok {
		e = &breakerEntry{state: domain.CircuitClosed}
		r.entries[key] = e
	}
	return e
}

func (r *CircuitBreakerRegistry) maybeHalfOpenLocked(e *breakerEntry, now time.Time) {
	if e.state == domain.CircuitOpen && !e.openedAt.IsZero() && !now.Before(e.openedAt.Add(r.cfg.CooldownPeriod)) {
		e.state = domain.CircuitHalfOpen
	}
}

func snapshot(e *breakerEntry) domain.CircuitState {
	var openedAt *time.Time
	if !e.openedAt.IsZero() {
		t := e.openedAt
		openedAt = &t
	}
	return domain.CircuitState{
		State:               e.state,
		OpenedAt:            openedAt,
		ConsecutiveFailures: e.consecutiveFailures,
	}
}

// Snapshot returns every breaker's current state, for persistence (ProviderStatsStore.Save).
func (r *CircuitBreakerRegistry) Snapshot() map[string]domain.CircuitState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]domain.CircuitState, len(r.entries))
	for k, e := range r.entries {
		out[k] = snapshot(e)
	}
	return out
}

// Restore seeds the registry from persisted state (e.g. on process start), without
// affecting the cooldown/threshold configuration.
func (r *CircuitBreakerRegistry) Restore(key string, state domain.CircuitState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.getOrCreateLocked(key)
	e.state = state.State
	e.consecutiveFailures = state.ConsecutiveFailures
	if state.OpenedAt != nil {
		e.openedAt = *state.OpenedAt
	}
}
