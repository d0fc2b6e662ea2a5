package domain

// CursorType identifies the kind of position a provider uses to resume a stream.
type CursorType string

const (
	CursorBlockNumber CursorType = "blockNumber"
	CursorTxHash      CursorType = "txHash"
	CursorTimestamp   CursorType = "timestamp"
	CursorPageToken   CursorType = "pageToken"
)

// PrimaryCursor is the provider-neutral position in a stream.
type PrimaryCursor struct {
	Type  CursorType
	Value string // stringified; callers compare under the type's natural order
}

// CursorMetadata carries the owning provider's name plus opaque per-provider pagination
// state. Custom is never interpreted by the manager; only the owning provider may read
// it back.
type CursorMetadata struct {
	ProviderName string
	Custom       map[string]any
	// LastTransactionID seeds a fresh dedup window when a stream resumes (e.g. after
	// process restart), so the window does not start empty right when overlap is most
	// likely (replay windows apply on every resume).
	LastTransactionID string
}

// ReplayUnit distinguishes what ReplayWindow.Amount counts.
type ReplayUnit string

const (
	ReplayBlocks  ReplayUnit = "blocks"
	ReplaySeconds ReplayUnit = "seconds"
	ReplayPages   ReplayUnit = "pages"
)

// ReplayWindow declares how far a provider rewinds its cursor on resume, to tolerate
// upstream eventual consistency.
type ReplayWindow struct {
	Unit   ReplayUnit
	Amount int
}

// CursorState is the full resumable position for one stream of one account.
type CursorState struct {
	Primary      PrimaryCursor
	Metadata     CursorMetadata
	ReplayWindow *ReplayWindow
}

// IsZero reports whether this is an unset cursor (fresh import, no prior progress).
func (c CursorState) IsZero() bool {
	return c.Primary.Type == "" && c.Primary.Value == ""
}
