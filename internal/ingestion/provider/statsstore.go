package provider

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/rs/zerolog"
)

// StatsStore maintains an in-memory ProviderHealth snapshot per "domain/providerName"
// key, backed by provider_health/circuit_breaker_state in cache.db for reload across
// restarts. Persistence is best-effort: a failed Save is logged, not
// propagated, since losing a few minutes of health stats is never worth blocking
// shutdown or a hot path.
type StatsStore struct {
	mu     sync.Mutex
	health map[string]domain.ProviderHealth
	db     *sql.DB
	log    zerolog.Logger
}

// NewStatsStore returns a StatsStore backed by db (typically cache.db's connection).
func NewStatsStore(db *sql.DB, log zerolog.Logger) *StatsStore {
	return &StatsStore{
		health: make(map[string]domain.ProviderHealth),
		db:     db,
		log:    log.With().Str("component", "provider_stats_store").Logger(),
	}
}

// InitializeProvider ensures key has a zero-value health entry, without overwriting any
// stats already hydrated by Load.
func (s *StatsStore) InitializeProvider(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.health[key]; !ok {
		s.health[key] = domain.ProviderHealth{}
	}
}

// UpdateHealth records the outcome of one provider call.
func (s *StatsStore) UpdateHealth(key string, success bool, responseTimeMs int64, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.health[key]
	now := time.Now()
	h.LastCallAt = &now

	if success {
		h.SuccessCount++
		h.ConsecutiveFailures = 0
	} else {
		h.FailureCount++
		h.ConsecutiveFailures++
		h.LastError = errMsg
	}

	total := h.SuccessCount + h.FailureCount
	if total == 1 {
		h.AvgLatencyMs = float64(responseTimeMs)
	} else {
		h.AvgLatencyMs = h.AvgLatencyMs + (float64(responseTimeMs)-h.AvgLatencyMs)/float64(total)
	}

	s.health[key] = h
}

// GetHealthMapForProviders returns the current health snapshot for the given provider
// names under domainName, keying the result by bare provider name (not the composite
// "domain/providerName" key) for caller convenience.
func (s *StatsStore) GetHealthMapForProviders(domainName string, providerNames []string) map[string]domain.ProviderHealth {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.ProviderHealth, len(providerNames))
	for _, name := range providerNames {
		out[name] = s.health[Key(domainName, name)]
	}
	return out
}

// Load hydrates in-memory health and circuit breaker state from persistence. Must run
// before any provider registration, so registration never clobbers persisted counters.
func (s *StatsStore) Load(breakers *CircuitBreakerRegistry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT key, success_count, failure_count, consecutive_failures, avg_latency_ms, last_error, last_call_at
		FROM provider_health
	`)
	if err != nil {
		return fmt.Errorf("failed to load provider health: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var h domain.ProviderHealth
		var lastError sql.NullString
		var lastCallAt sql.NullString
		if err := rows.Scan(&key, &h.SuccessCount, &h.FailureCount, &h.ConsecutiveFailures, &h.AvgLatencyMs, &lastError, &lastCallAt); err != nil {
			return fmt.Errorf("failed to scan provider health row: %w", err)
		}
		if lastError.Valid {
			h.LastError = lastError.String
		}
		if lastCallAt.Valid {
			if t, err := time.Parse(time.RFC3339, lastCallAt.String); err == nil {
				h.LastCallAt = &t
			}
		}
		s.health[key] = h
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate provider health rows: %w", err)
	}

	if breakers == nil {
		return nil
	}
	cbRows, err := s.db.Query(`SELECT key, state, opened_at, consecutive_failures FROM circuit_breaker_state`)
	if err != nil {
		return fmt.Errorf("failed to load circuit breaker state: %w", err)
	}
	defer cbRows.Close()
	for cbRows.Next() {
		var key, state string
		var openedAt sql.NullString
		var consecutiveFailures int
		if err := cbRows.Scan(&key, &state, &openedAt, &consecutiveFailures); err != nil {
			return fmt.Errorf("failed to scan circuit breaker row: %w", err)
		}
		cs := domain.CircuitState{State: domain.CircuitBreakerState(state), ConsecutiveFailures: consecutiveFailures}
		if openedAt.Valid {
			if t, err := time.Parse(time.RFC3339, openedAt.String); err == nil {
				cs.OpenedAt = &t
			}
		}
		breakers.Restore(key, cs)
	}
	return cbRows.Err()
}

// Save persists the current health and circuit breaker snapshots. Failure is logged,
// never returned; losing a snapshot is never worth failing a shutdown.
func (s *StatsStore) Save(breakers *CircuitBreakerRegistry) {
	s.mu.Lock()
	snapshot := make(map[string]domain.ProviderHealth, len(s.health))
	for k, v := range s.health {
		snapshot[k] = v
	}
	s.mu.Unlock()

	for key, h := range snapshot {
		var lastCallAt any
		if h.LastCallAt != nil {
			lastCallAt = h.LastCallAt.Format(time.RFC3339)
		}
		_, err := s.db.Exec(`
			INSERT INTO provider_health (key, success_count, failure_count, consecutive_failures, avg_latency_ms, last_error, last_call_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				success_count = excluded.success_count,
				failure_count = excluded.failure_count,
				consecutive_failures = excluded.consecutive_failures,
				avg_latency_ms = excluded.avg_latency_ms,
				last_error = excluded.last_error,
				last_call_at = excluded.last_call_at
		`, key, h.SuccessCount, h.FailureCount, h.ConsecutiveFailures, h.AvgLatencyMs, nullableString(h.LastError), lastCallAt)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Failed to persist provider health")
		}
	}

	if breakers == nil {
		return
	}
	for key, cs := range breakers.Snapshot() {
		var openedAt any
		if cs.OpenedAt != nil {
			openedAt = cs.OpenedAt.Format(time.RFC3339)
		}
		_, err := s.db.Exec(`
			INSERT INTO circuit_breaker_state (key, state, opened_at, consecutive_failures)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				state = excluded.state,
				opened_at = excluded.opened_at,
				consecutive_failures = excluded.consecutive_failures
		`, key, string(cs.State), openedAt, cs.ConsecutiveFailures)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Failed to persist circuit breaker state")
		}
	}
}

// Clear resets the in-memory snapshot. Used by tests and by account-scoped resets; it
// does not touch persisted rows.
func (s *StatsStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health = make(map[string]domain.ProviderHealth)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
