package domain

import "time"

// ProviderHealth is the running statistics snapshot for one provider, keyed by
// "domain/providerName" by its owning ProviderStatsStore.
type ProviderHealth struct {
	SuccessCount        int
	FailureCount        int
	ConsecutiveFailures int
	AvgLatencyMs        float64
	LastError           string
	LastCallAt          *time.Time
}

// SuccessRate returns the fraction of calls that succeeded, or 1.0 if no calls have
// been recorded yet (an untested provider is not penalized during scoring).
func (h ProviderHealth) SuccessRate() float64 {
	total := h.SuccessCount + h.FailureCount
	if total == 0 {
		return 1.0
	}
	return float64(h.SuccessCount) / float64(total)
}

// CircuitBreakerState is the open/closed/half-open state machine for one provider key.
type CircuitBreakerState string

const (
	CircuitClosed   CircuitBreakerState = "closed"
	CircuitOpen     CircuitBreakerState = "open"
	CircuitHalfOpen CircuitBreakerState = "half-open"
)

// CircuitState is the persisted state for one provider's circuit breaker.
type CircuitState struct {
	State               CircuitBreakerState
	OpenedAt            *time.Time
	ConsecutiveFailures int
}
