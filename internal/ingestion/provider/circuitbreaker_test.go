package provider

import (
	"testing"
	"time"

	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 3,
		FailureWindow:    2 * time.Minute,
		CooldownPeriod:   30 * time.Second,
	}
}

func TestCircuitBreakerRegistry_OpensAfterThreshold(t *testing.T) {
	r := NewCircuitBreakerRegistry(testBreakerConfig())
	now := time.Now()
	key := Key("ethereum", "etherscan")

	r.RecordFailure(key, now)
	r.RecordFailure(key, now)
	require.False(t, r.IsOpen(key, now), "breaker should stay closed below threshold")

	r.RecordFailure(key, now)
	assert.True(t, r.IsOpen(key, now), "breaker should open at threshold")
}

func TestCircuitBreakerRegistry_HalfOpenAfterCooldown(t *testing.T) {
	cfg := testBreakerConfig()
	r := NewCircuitBreakerRegistry(cfg)
	now := time.Now()
	key := Key("ethereum", "etherscan")

	for i := 0; i < cfg.FailureThreshold; i++ {
		r.RecordFailure(key, now)
	}
	require.True(t, r.IsOpen(key, now))

	later := now.Add(cfg.CooldownPeriod + time.Second)
	assert.False(t, r.IsOpen(key, later), "breaker should transition to half-open after cooldown")

	state := r.GetOrCreate(key, later)
	assert.Equal(t, domain.CircuitHalfOpen, state.State)
}

func TestCircuitBreakerRegistry_HalfOpenFailureReopens(t *testing.T) {
	cfg := testBreakerConfig()
	r := NewCircuitBreakerRegistry(cfg)
	now := time.Now()
	key := Key("ethereum", "etherscan")

	for i := 0; i < cfg.FailureThreshold; i++ {
		r.RecordFailure(key, now)
	}
	later := now.Add(cfg.CooldownPeriod + time.Second)
	require.False(t, r.IsOpen(key, later))

	r.RecordFailure(key, later)
	assert.True(t, r.IsOpen(key, later), "a failure in half-open should re-open the breaker")
}

func TestCircuitBreakerRegistry_SuccessClosesBreaker(t *testing.T) {
	cfg := testBreakerConfig()
	r := NewCircuitBreakerRegistry(cfg)
	now := time.Now()
	key := Key("ethereum", "etherscan")

	for i := 0; i < cfg.FailureThreshold; i++ {
		r.RecordFailure(key, now)
	}
	later := now.Add(cfg.CooldownPeriod + time.Second)
	require.False(t, r.IsOpen(key, later))

	r.RecordSuccess(key, later)
	assert.False(t, r.IsOpen(key, later))
	state := r.GetOrCreate(key, later)
	assert.Equal(t, domain.CircuitClosed, state.State)
	assert.Equal(t, 0, state.ConsecutiveFailures)
}

func TestCircuitBreakerRegistry_DomainIsolation(t *testing.T) {
	cfg := testBreakerConfig()
	r := NewCircuitBreakerRegistry(cfg)
	now := time.Now()

	ethKey := Key("ethereum", "shared-name")
	bscKey := Key("bsc", "shared-name")

	for i := 0; i < cfg.FailureThreshold; i++ {
		r.RecordFailure(ethKey, now)
	}

	assert.True(t, r.IsOpen(ethKey, now))
	assert.False(t, r.IsOpen(bscKey, now), "breakers must not leak across domains even with the same provider name")
}
