package normalize

// ExchangeLedgerEntry is the normalized shape for one exchange ledger row (deposit,
// withdrawal, trade fill, fee), carrying the semantic fields downstream accounting
// needs for exchange sources.
type ExchangeLedgerEntry struct {
	ProviderID    string // provider-assigned event id, becomes RawTransaction.ExternalID
	Timestamp     int64  // unix seconds
	EntryType     string // "deposit" | "withdrawal" | "trade" | "fee", provider-native vocabulary
	AssetSymbol   string
	Amount        string // exact decimal string, signed: negative for outflow
	FeeAssetSymbol string
	FeeAmount     string // empty if this entry carries no fee
	Status        string // "success" | "failed" | "pending"
	Address       string // counterparty address for deposit/withdrawal, empty for trades
	RefID         string // exchange-side reference linking multi-row entries (e.g. a trade's two legs)
}

// Envelope is the {raw, normalized, eventId} bridge the importer builds for exchange
// rows before they are persisted: UnpackRows reconstructs this from
// RawTransaction.NormalizedData, so the processor always sees a statically typed batch.
type Envelope struct {
	Raw        []byte
	Normalized ExchangeLedgerEntry
	EventID    string
}
