// Package events provides the in-process event bus used to observe provider health,
// import progress, and processing outcomes without coupling those subsystems together.
package events

// EventType identifies the kind of event flowing through the bus.
type EventType string

const (
	// Provider manager / circuit breaker events.
	ProviderRequestSucceeded EventType = "PROVIDER_REQUEST_SUCCEEDED"
	ProviderRequestFailed    EventType = "PROVIDER_REQUEST_FAILED"
	ProviderSelected         EventType = "PROVIDER_SELECTED"
	ProviderFailedOver       EventType = "PROVIDER_FAILED_OVER"
	ProviderCircuitOpened    EventType = "PROVIDER_CIRCUIT_OPENED"
	ProviderCircuitClosed    EventType = "PROVIDER_CIRCUIT_CLOSED"
	ProviderCircuitHalfOpen  EventType = "PROVIDER_CIRCUIT_HALF_OPEN"

	// Import pipeline events.
	ImportStarted     EventType = "IMPORT_STARTED"
	ImportBatchSaved  EventType = "IMPORT_BATCH_SAVED"
	ImportResumed     EventType = "IMPORT_RESUMED"
	ImportCompleted   EventType = "IMPORT_COMPLETED"
	ImportFailed      EventType = "IMPORT_FAILED"
	DuplicateSkipped  EventType = "DUPLICATE_SKIPPED"

	// Processing pipeline events.
	ProcessBatchCompleted EventType = "PROCESS_BATCH_COMPLETED"
	ValidationFailed      EventType = "VALIDATION_FAILED"
	ScamDetected          EventType = "SCAM_DETECTED"

	// Cross-cutting.
	ErrorOccurred EventType = "ERROR_OCCURRED"
)
