// Package provider defines the Provider contract, the registry
// that catalogs provider factories per domain, the circuit breaker and stats store that
// back failover decisions, and the Manager that turns "get me this operation for this
// domain" into a scored, failing-over sequence of concrete provider calls.
package provider

import (
	"context"
	"iter"
	"time"

	"github.com/jbelanger/exitbook/internal/ingestion/domain"
)

// OperationKind distinguishes one-shot calls (balance, metadata, existence) from
// streaming calls (transaction history).
type OperationKind string

const (
	OpBalance          OperationKind = "balance"
	OpTokenMetadata    OperationKind = "tokenMetadata"
	OpExistenceCheck   OperationKind = "existenceCheck"
	OpTransactionHistory OperationKind = "transactionHistory"
)

// Operation is the caller-declared request passed to a Provider. CacheKey, when
// non-empty, is the Manager's response cache key for one-shot calls; the Manager adds
// no namespace of its own (the ethereum adapter uses "chain:address").
type Operation struct {
	Kind      OperationKind
	Address   string // wallet address / account identifier, interpretation is provider-specific
	Params    map[string]string
	CacheKey  string
}

// OpOutput is the one-shot result payload; its Value shape depends on Operation.Kind.
type OpOutput struct {
	Value any
}

// RawNormalizedPair is one item inside a streamed Batch: the untouched provider payload
// plus its provider-neutral normalization.
type RawNormalizedPair struct {
	ExternalID                string
	BlockchainTransactionHash string
	StreamType                string
	Raw                       []byte
	Normalized                []byte
}

// BatchStats reports what a streaming adapter did while producing one Batch, for
// observability only.
type BatchStats struct {
	Fetched      int
	Deduplicated int
	Yielded      int
}

// Batch is one unit of streamed provider output.
type Batch struct {
	Items      []RawNormalizedPair
	Cursor     domain.CursorState
	IsComplete bool
	Stats      BatchStats
}

// Capabilities declares what a provider supports, checked before any network call.
type Capabilities struct {
	SupportedOperations    []OperationKind
	SupportedCursorTypes   []domain.CursorType
	PreferredCursorType    domain.CursorType
	ReplayWindow           domain.ReplayWindow
	SupportsPagination     bool
	MaxBatchSize           int
	RequiresAPIKey         bool
}

// Supports reports whether this capability set includes op.
func (c Capabilities) Supports(op OperationKind) bool {
	for _, supported := range c.SupportedOperations {
		if supported == op {
			return true
		}
	}
	return false
}

// SupportsCursor reports whether this capability set accepts cursorType on resume.
func (c Capabilities) SupportsCursor(cursorType domain.CursorType) bool {
	for _, supported := range c.SupportedCursorTypes {
		if supported == cursorType {
			return true
		}
	}
	return false
}

// RateLimit declares the HTTP client's throughput budget for a provider.
type RateLimit struct {
	RequestsPerSecond float64
	PerMinute         int
	PerHour           int
	BurstLimit        int
}

// Config is the per-provider runtime configuration, synthesized by the registry from
// Metadata.DefaultConfig, with BaseURL falling back to Metadata.BaseURL. No per-account
// override is applied; an account's pinned provider only selects which provider runs.
type Config struct {
	RateLimit RateLimit
	Retries   int
	Timeout   time.Duration
	APIKey    string
	BaseURL   string
}

// Metadata is what a provider declares at registration time.
type Metadata struct {
	Name          string
	DisplayName   string
	Domain        string // blockchain or exchange identifier, e.g. "ethereum", "kraken"
	BaseURL       string
	Capabilities  Capabilities
	DefaultConfig Config
}

// Provider is one concrete integration with an external data source API. Implementors
// must honor resumeCursor's type against SupportedCursorTypes, stamp
// cursor.Metadata.ProviderName with their own name, emit IsComplete=true exactly once,
// and persist any provider-specific pagination state inside cursor.Metadata.Custom.
type Provider interface {
	Name() string
	Metadata() Metadata

	// Execute runs a one-shot operation.
	Execute(ctx context.Context, op Operation) (OpOutput, error)

	// ExecuteStreaming returns a lazy sequence of batches. The caller breaking out of
	// the range loop is the cancellation signal; implementations must release
	// in-flight resources when that happens.
	ExecuteStreaming(ctx context.Context, op Operation, resumeCursor *domain.CursorState) iter.Seq2[Batch, error]

	// IsHealthy is a fast, dependency-free liveness probe (no network call).
	IsHealthy() bool

	// Destroy releases any resources (HTTP clients, timers). Idempotent.
	Destroy() error
}

// Factory constructs a Provider instance from its resolved Config.
type Factory func(cfg Config) (Provider, error)
