package events

// EventData is implemented by every typed event payload. It exists so Manager.EmitTyped
// callers get compile-time checked fields instead of building a map by hand.
type EventData interface {
	eventData()
}

// ProviderRequestData describes the outcome of a single provider call.
type ProviderRequestData struct {
	Domain      string `json:"domain"`
	Provider    string `json:"provider"`
	Operation   string `json:"operation"`
	LatencyMs   int64  `json:"latencyMs"`
	Error       string `json:"error,omitempty"`
}

func (*ProviderRequestData) eventData() {}

// ProviderFailoverData records a mid-stream failover from one provider to another.
type ProviderFailoverData struct {
	Domain       string `json:"domain"`
	FromProvider string `json:"fromProvider"`
	ToProvider   string `json:"toProvider"`
	Reason       string `json:"reason"`
}

func (*ProviderFailoverData) eventData() {}

// ProviderCircuitData reports a circuit breaker transition.
type ProviderCircuitData struct {
	Domain              string `json:"domain"`
	Provider            string `json:"provider"`
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutiveFailures"`
}

func (*ProviderCircuitData) eventData() {}

// ImportLifecycleData covers import start/resume/complete/fail.
type ImportLifecycleData struct {
	AccountID    string `json:"accountId"`
	DataSourceID string `json:"dataSourceId"`
	Status       string `json:"status"`
	Message      string `json:"message,omitempty"`
}

func (*ImportLifecycleData) eventData() {}

// ImportBatchSavedData reports a single persisted batch during a streaming import.
type ImportBatchSavedData struct {
	AccountID      string `json:"accountId"`
	DataSourceID   string `json:"dataSourceId"`
	BatchSize      int    `json:"batchSize"`
	SavedCount     int    `json:"savedCount"`
	DuplicateCount int    `json:"duplicateCount"`
}

func (*ImportBatchSavedData) eventData() {}

// DuplicateSkippedData reports a record skipped by one of the three dedup layers.
type DuplicateSkippedData struct {
	AccountID string `json:"accountId"`
	ExternalID string `json:"externalId"`
	Layer     string `json:"layer"` // "provider-window" | "manager-window" | "database"
}

func (*DuplicateSkippedData) eventData() {}

// ProcessBatchData reports the outcome of running the processor over a batch of raw
// transactions.
type ProcessBatchData struct {
	AccountID       string `json:"accountId"`
	ProcessedCount  int    `json:"processedCount"`
	FailedCount     int    `json:"failedCount"`
	ScamFlaggedCount int   `json:"scamFlaggedCount"`
}

func (*ProcessBatchData) eventData() {}

// ValidationFailedData reports a single record that failed schema validation.
type ValidationFailedData struct {
	AccountID    string `json:"accountId"`
	RawTxID      string `json:"rawTxId"`
	FieldPath    string `json:"fieldPath"`
	Reason       string `json:"reason"`
}

func (*ValidationFailedData) eventData() {}

// ScamDetectedData reports a transaction annotated as likely scam/spam.
type ScamDetectedData struct {
	AccountID     string `json:"accountId"`
	TransactionID string `json:"transactionId"`
	Reason        string `json:"reason"`
}

func (*ScamDetectedData) eventData() {}

// ErrorEventData wraps an arbitrary error with freeform context for the ErrorOccurred event.
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (*ErrorEventData) eventData() {}
