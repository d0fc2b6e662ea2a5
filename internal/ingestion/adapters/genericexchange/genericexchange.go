// Package genericexchange wires the genericrest provider together with the exchange
// processor behind the adapter.Adapter contract, for exchange-api
// accounts. CSV-export accounts are served by the separate csvwallet adapter package,
// which shares this package's processor but never touches the provider manager.
package genericexchange

import (
	"encoding/json"
	"fmt"

	"github.com/jbelanger/exitbook/internal/ingestion/adapter"
	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/jbelanger/exitbook/internal/ingestion/importer"
	"github.com/jbelanger/exitbook/internal/ingestion/normalize"
	"github.com/jbelanger/exitbook/internal/ingestion/processor"
	"github.com/jbelanger/exitbook/internal/ingestion/processors/exchange"
	"github.com/jbelanger/exitbook/internal/ingestion/provider"
)

// Adapter is one named exchange's API-backed source adapter.
type Adapter struct {
	exchangeName string
	scam         processor.ScamDetector
}

// New builds the genericexchange adapter for one exchange name (the provider-registry
// domain that name's genericrest.New factory was registered under).
func New(exchangeName string, scam processor.ScamDetector) *Adapter {
	return &Adapter{exchangeName: exchangeName, scam: scam}
}

func (a *Adapter) Name() string { return a.exchangeName }

// CreateImporter builds a provider-manager-backed importer scoped to this exchange's
// provider domain.
func (a *Adapter) CreateImporter(pm *provider.Manager, preferredProvider string) (importer.Importer, error) {
	return importer.NewManagerImporter(pm, a.exchangeName, preferredProvider), nil
}

// CreateProcessor builds the shared exchange ledger-entry processor.
func (a *Adapter) CreateProcessor() (processor.Processor, error) {
	return exchange.New(a.scam), nil
}

// UnpackRows reconstructs the {raw, normalized, eventId} envelope from each persisted
// row, the shape the exchange processor's Transform expects.
func (a *Adapter) UnpackRows(rows []domain.RawTransaction) ([]any, error) {
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		var entry normalize.ExchangeLedgerEntry
		if err := json.Unmarshal(row.NormalizedData, &entry); err != nil {
			return nil, fmt.Errorf("genericexchange: failed to unpack row %s: %w", row.ID, err)
		}
		out = append(out, normalize.Envelope{Raw: row.ProviderData, Normalized: entry, EventID: row.ID})
	}
	return out, nil
}

// BuildContext carries only the account id and exchange name: ledger entries take their
// direction from the sign of their own amount, with no address set to compare against.
func (a *Adapter) BuildContext(account domain.Account) processor.Context {
	return processor.Context{AccountID: account.ID, SourceName: a.exchangeName}
}

var _ adapter.Adapter = (*Adapter)(nil)
