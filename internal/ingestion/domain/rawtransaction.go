package domain

import (
	"encoding/json"
	"time"
)

// ProcessingStatus tracks whether a raw row has been transformed into a processed
// transaction yet. Raw rows are otherwise immutable.
type ProcessingStatus string

const (
	ProcessingPending   ProcessingStatus = "pending"
	ProcessingProcessed ProcessingStatus = "processed"
)

// RawTransaction is the immutable record of one external provider payload, plus its
// provider-neutral normalization. ProviderData and NormalizedData are never overwritten
// after insertion; only ProcessingStatus transitions pending -> processed.
type RawTransaction struct {
	ID                        string
	DataSourceID              string
	AccountID                 string
	ExternalID                string // provider-assigned event ID
	BlockchainTransactionHash string // empty if not applicable
	ProviderData              json.RawMessage
	NormalizedData            json.RawMessage
	ProcessingStatus          ProcessingStatus
	StreamType                string // e.g. "normal", "internal", "token"
	CreatedAt                 time.Time
}
