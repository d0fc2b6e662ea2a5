// Package adapter is the source-adapter registry: a simple immutable map, built once
// at startup, from a lowercased source name (e.g. "ethereum", "kraken") to the bundle
// of factories that source contributes — an importer, a processor, and optionally a
// custom batch provider or a live-balance lookup.
package adapter

import (
	"context"
	"fmt"

	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/jbelanger/exitbook/internal/ingestion/importer"
	"github.com/jbelanger/exitbook/internal/ingestion/processor"
	"github.com/jbelanger/exitbook/internal/ingestion/provider"
	"github.com/jbelanger/exitbook/internal/ingestion/repository"
)

// Adapter is what every source (one per exchange or blockchain) provides at minimum.
// CreateImporter is handed the shared provider Manager so blockchain/exchange-API
// adapters can build provider-backed importers; CSV adapters ignore it.
type Adapter interface {
	// Name is the lowercased registry key, matching Account.SourceName.
	Name() string

	// CreateImporter builds this source's Importer. preferredProvider, when non-empty,
	// is the account's pinned provider name.
	CreateImporter(pm *provider.Manager, preferredProvider string) (importer.Importer, error)

	// CreateProcessor builds this source's Processor. Optional per-processor
	// dependencies (token metadata lookups, scam detection) are closed over by the
	// adapter's own constructor, not passed in here.
	CreateProcessor() (processor.Processor, error)

	// UnpackRows turns persisted raw rows into the untyped batch a Processor consumes.
	// Blockchain adapters unmarshal NormalizedData directly; exchange adapters build
	// the {raw, normalized, eventId} envelope the importer populated. The envelope is
	// typed once here, not threaded untyped through the core.
	UnpackRows(rows []domain.RawTransaction) ([]any, error)

	// BuildContext derives the per-account Context passed to Processor.Process: the
	// user address set and primary address for blockchains, empty for exchanges.
	BuildContext(account domain.Account) processor.Context
}

// BatchProviderFactory is implemented by adapters that need a batch-provider strategy
// other than the process service's two defaults (hash-grouped, all-at-once) — e.g. a
// multi-stream-correlated grouping for a chain that splits one transaction across
// several stream types.
type BatchProviderFactory interface {
	CreateBatchProvider(rawRepo *repository.RawTransactionRepository, accountID string) (processor.BatchSource, bool)
}

// LiveBalanceFetcher is implemented by adapters that can answer a live balance query
// outside the streaming import path.
type LiveBalanceFetcher interface {
	FetchLiveBalance(ctx context.Context, credentials string) (string, error)
}

// Registry is the boot-time, read-only source-adapter catalog.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds adp under its own Name(). Duplicate registration is a startup-time
// error.
func (r *Registry) Register(adp Adapter) error {
	name := adp.Name()
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("adapter %q already registered", name)
	}
	r.adapters[name] = adp
	return nil
}

// Get returns the adapter registered for sourceName.
func (r *Registry) Get(sourceName string) (Adapter, error) {
	adp, ok := r.adapters[sourceName]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for source %q", sourceName)
	}
	return adp, nil
}

// Names returns every registered source name, for diagnostics.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		out = append(out, name)
	}
	return out
}
