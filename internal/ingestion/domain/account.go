// Package domain holds the ingestion core's persistence-agnostic data model: Account,
// DataSource, RawTransaction, ProcessedTransaction, and the cursor/health/circuit types
// that tie the provider manager to the streaming pipeline.
package domain

import "time"

// AccountType distinguishes how an account's identifier is interpreted and which
// importer family applies to it.
type AccountType string

const (
	AccountTypeBlockchain  AccountType = "blockchain"
	AccountTypeExchangeAPI AccountType = "exchange-api"
	AccountTypeExchangeCSV AccountType = "exchange-csv"
)

// Account identifies a wallet or exchange account under which imports and processing
// are scoped. The core only reads and updates LastCursor; account creation belongs to
// an upstream account manager outside this module's scope.
type Account struct {
	ID           string
	AccountType  AccountType
	SourceName   string // lowercased key in the adapter registry, e.g. "ethereum", "kraken"
	Identifier   string // on-chain address, or comma-separated CSV directories
	ProviderName string // pinned preferred provider, empty if unset
	Credentials  string // opaque, adapter-interpreted (API key/secret, JSON-encoded)
	LastCursor   map[string]CursorState // keyed by operationType (stream name)
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CursorFor returns the persisted cursor for the given stream, or the zero CursorState
// with ok=false if the account has never completed a batch on that stream.
func (a *Account) CursorFor(operationType string) (CursorState, bool) {
	if a.LastCursor == nil {
		return CursorState{}, false
	}
	cur, ok := a.LastCursor[operationType]
	return cur, ok
}

// SetCursor records the latest cursor for a stream, creating the map on first use.
func (a *Account) SetCursor(operationType string, cur CursorState) {
	if a.LastCursor == nil {
		a.LastCursor = make(map[string]CursorState)
	}
	a.LastCursor[operationType] = cur
}
