package provider

import (
	"context"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/jbelanger/exitbook/internal/events"
	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/jbelanger/exitbook/internal/ingestion/ingesterr"
	"github.com/rs/zerolog"
)

// Manager orchestrates auto-registration, health-weighted selection, and failover
// across providers for one-shot and streaming operations. It owns
// the circuit breaker registry, stats store, and a one-shot response cache keyed only by
// Operation.CacheKey (shared across domains); providers
// never reach back into the manager, which keeps cleanup order deterministic.
type Manager struct {
	registry *Registry
	breakers *CircuitBreakerRegistry
	stats    *StatsStore
	events   *events.Manager
	log      zerolog.Logger

	dedupWindowSize int

	mu        sync.Mutex
	providers map[string][]Provider // domain -> instantiated providers, lazily created
	cache     map[string]OpOutput   // one-shot response cache, keyed by Operation.CacheKey
}

// NewManager builds a Manager. dedupWindowSize is the cross-provider failover window
// size, 500 by default.
func NewManager(registry *Registry, breakers *CircuitBreakerRegistry, stats *StatsStore, evt *events.Manager, dedupWindowSize int, log zerolog.Logger) *Manager {
	return &Manager{
		registry:        registry,
		breakers:        breakers,
		stats:           stats,
		events:          evt,
		dedupWindowSize: dedupWindowSize,
		providers:       make(map[string][]Provider),
		cache:           make(map[string]OpOutput),
		log:             log.With().Str("component", "provider_manager").Logger(),
	}
}

// ensureProviders auto-registers (instantiates) every provider for domainName on first
// use, honoring preferredProvider if set.
func (m *Manager) ensureProviders(domainName, preferredProvider string) ([]Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.providers[domainName]; ok && len(existing) > 0 {
		return existing, nil
	}

	created, err := m.registry.CreateProvidersForDomain(domainName, preferredProvider)
	if err != nil {
		return nil, err
	}
	for _, p := range created {
		m.stats.InitializeProvider(Key(domainName, p.Name()))
	}
	m.providers[domainName] = created
	return created, nil
}

// candidateScore is a provider plus its computed selection score; higher is better.
type candidateScore struct {
	provider Provider
	score    float64
	order    int
}

// scoreCandidates filters to capable providers and orders them by circuit state, recent
// success rate, inverse latency, and a consecutive-failure penalty. A pinned
// preferred provider, when capable, short-circuits scoring entirely.
func (m *Manager) scoreCandidates(domainName string, providers []Provider, op OperationKind, cursorType domain.CursorType, requireCursor bool, preferredProvider string, now time.Time) []Provider {
	capable := make([]Provider, 0, len(providers))
	for _, p := range providers {
		caps := p.Metadata().Capabilities
		if !caps.Supports(op) {
			continue
		}
		if requireCursor && cursorType != "" && !caps.SupportsCursor(cursorType) {
			continue
		}
		capable = append(capable, p)
	}

	if preferredProvider != "" {
		for _, p := range capable {
			if p.Name() == preferredProvider {
				return []Provider{p}
			}
		}
	}

	scored := make([]candidateScore, 0, len(capable))
	for i, p := range capable {
		key := Key(domainName, p.Name())
		if m.breakers.IsOpen(key, now) {
			continue
		}
		health := m.stats.GetHealthMapForProviders(domainName, []string{p.Name()})[p.Name()]
		score := health.SuccessRate()*10 - float64(health.ConsecutiveFailures)*2
		if health.AvgLatencyMs > 0 {
			score += 1000.0 / health.AvgLatencyMs
		}
		scored = append(scored, candidateScore{provider: p, score: score, order: i})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].order < scored[j].order
	})

	out := make([]Provider, len(scored))
	for i, c := range scored {
		out[i] = c.provider
	}
	return out
}

// ExecuteOnce runs a one-shot operation with failover.
func (m *Manager) ExecuteOnce(ctx context.Context, domainName string, op Operation, preferredProvider string) (OpOutput, error) {
	if op.CacheKey != "" {
		m.mu.Lock()
		cached, ok := m.cache[op.CacheKey]
		m.mu.Unlock()
		if ok {
			return cached, nil
		}
	}

	providers, err := m.ensureProviders(domainName, preferredProvider)
	if err != nil {
		return OpOutput{}, err
	}
	if len(providers) == 0 {
		return OpOutput{}, ingesterr.NoProviders(domainName)
	}

	ordered := m.scoreCandidates(domainName, providers, op.Kind, "", false, preferredProvider, time.Now())
	if len(ordered) == 0 {
		return OpOutput{}, ingesterr.NoProviders(domainName)
	}

	var lastErr error
	for _, p := range ordered {
		start := time.Now()
		out, err := p.Execute(ctx, op)
		latencyMs := time.Since(start).Milliseconds()
		key := Key(domainName, p.Name())

		if err != nil {
			lastErr = err
			m.stats.UpdateHealth(key, false, latencyMs, err.Error())
			m.breakers.RecordFailure(key, time.Now())
			if m.breakers.IsOpen(key, time.Now()) {
				m.emitCircuitOpen(domainName, p.Name())
			}
			m.events.EmitTyped(events.ProviderRequestFailed, "provider_manager", &events.ProviderRequestData{
				Domain: domainName, Provider: p.Name(), Operation: string(op.Kind), LatencyMs: latencyMs, Error: err.Error(),
			})
			continue
		}

		m.stats.UpdateHealth(key, true, latencyMs, "")
		m.breakers.RecordSuccess(key, time.Now())
		m.events.EmitTyped(events.ProviderRequestSucceeded, "provider_manager", &events.ProviderRequestData{
			Domain: domainName, Provider: p.Name(), Operation: string(op.Kind), LatencyMs: latencyMs,
		})

		if op.CacheKey != "" {
			m.mu.Lock()
			m.cache[op.CacheKey] = out
			m.mu.Unlock()
		}
		return out, nil
	}

	return OpOutput{}, ingesterr.AllProvidersFailed(domainName, lastErr)
}

func (m *Manager) emitCircuitOpen(domainName, providerName string) {
	m.events.EmitTyped(events.ProviderCircuitOpened, "provider_manager", &events.ProviderCircuitData{
		Domain: domainName, Provider: providerName, State: string(domain.CircuitOpen),
	})
}

// adjustedCursor strips a non-owning provider's opaque custom metadata and applies the
// owning provider's replay window, so the next candidate re-pulls a small overlap that
// the dedup window then removes.
func adjustedCursor(cur domain.CursorState, nextProvider Provider) domain.CursorState {
	if cur.Metadata.ProviderName == nextProvider.Name() || cur.IsZero() {
		return cur
	}

	adjusted := cur
	adjusted.Metadata.Custom = nil

	rw := nextProvider.Metadata().Capabilities.ReplayWindow
	if rw.Amount <= 0 {
		return adjusted
	}
	adjusted.ReplayWindow = &domain.ReplayWindow{Unit: rw.Unit, Amount: rw.Amount}
	return adjusted
}

// ExecuteStreaming yields a lazy sequence of deduplicated batches, failing over between
// providers compatible with the current cursor type. The
// caller breaking the range loop cancels in-flight work; no goroutine is spawned, so
// breaking simply stops pulling from the provider's own iterator.
func (m *Manager) ExecuteStreaming(ctx context.Context, domainName string, op Operation, resumeCursor *domain.CursorState, preferredProvider string) iter.Seq2[Batch, error] {
	return func(yield func(Batch, error) bool) {
		providers, err := m.ensureProviders(domainName, preferredProvider)
		if err != nil {
			yield(Batch{}, err)
			return
		}
		if len(providers) == 0 {
			yield(Batch{}, ingesterr.NoProviders(domainName))
			return
		}

		window := newDedupWindow(m.dedupWindowSize)
		var currentCursor *domain.CursorState
		if resumeCursor != nil {
			c := *resumeCursor
			currentCursor = &c
			window.Seed(resumeCursor.Metadata.LastTransactionID)
		}

		var cursorType domain.CursorType
		if currentCursor != nil {
			cursorType = currentCursor.Primary.Type
		}

		ordered := m.scoreCandidates(domainName, providers, op.Kind, cursorType, currentCursor != nil, preferredProvider, time.Now())
		if len(ordered) == 0 {
			if currentCursor != nil {
				yield(Batch{}, ingesterr.NoCompatibleProviders(domainName, string(cursorType)))
			} else {
				yield(Batch{}, ingesterr.NoProviders(domainName))
			}
			return
		}

		completionYielded := false
		var lastErr error
		var previousProvider string

		for _, p := range ordered {
			key := Key(domainName, p.Name())
			providerCursor := currentCursor
			if providerCursor != nil {
				adjusted := adjustedCursor(*providerCursor, p)
				providerCursor = &adjusted
			}

			if previousProvider == "" {
				m.events.EmitTyped(events.ProviderSelected, "provider_manager", &events.ProviderRequestData{
					Domain: domainName, Provider: p.Name(), Operation: string(op.Kind),
				})
			} else {
				reason := "provider exhausted without completing"
				if lastErr != nil {
					reason = lastErr.Error()
				}
				m.events.EmitTyped(events.ProviderFailedOver, "provider_manager", &events.ProviderFailoverData{
					Domain: domainName, FromProvider: previousProvider, ToProvider: p.Name(), Reason: reason,
				})
			}
			previousProvider = p.Name()

			for batch, err := range p.ExecuteStreaming(ctx, op, providerCursor) {
				if err != nil {
					lastErr = err
					m.stats.UpdateHealth(key, false, 0, err.Error())
					m.breakers.RecordFailure(key, time.Now())
					if m.breakers.IsOpen(key, time.Now()) {
						m.emitCircuitOpen(domainName, p.Name())
					}
					m.events.EmitTyped(events.ProviderRequestFailed, "provider_manager", &events.ProviderRequestData{
						Domain: domainName, Provider: p.Name(), Operation: string(op.Kind), Error: err.Error(),
					})
					break
				}

				survivors, _ := window.Filter(batch.Items)
				batch.Items = survivors
				currentCursor = &batch.Cursor

				if len(survivors) > 0 || batch.IsComplete {
					if batch.IsComplete {
						completionYielded = true
					}
					if !yield(batch, nil) {
						return
					}
				}

				m.stats.UpdateHealth(key, true, 0, "")
				m.breakers.RecordSuccess(key, time.Now())

				if batch.IsComplete {
					return
				}
			}

			// Provider's iterator ended (error or natural exhaustion without
			// IsComplete) without returning; fall through to the next candidate,
			// resuming from currentCursor.
		}

		if !completionYielded {
			yield(Batch{}, ingesterr.AllProvidersFailed(domainName, lastErr))
		}
	}
}

// Destroy is idempotent: it persists stats best-effort and releases every instantiated
// provider, reporting but not failing on per-provider cleanup errors.
func (m *Manager) Destroy() []error {
	m.mu.Lock()
	allProviders := make([]Provider, 0)
	for _, ps := range m.providers {
		allProviders = append(allProviders, ps...)
	}
	m.providers = make(map[string][]Provider)
	m.mu.Unlock()

	m.stats.Save(m.breakers)

	var errs []error
	for _, p := range allProviders {
		if err := p.Destroy(); err != nil {
			errs = append(errs, ingesterr.ResourceCleanupFailed(p.Name(), err))
		}
	}
	return errs
}
