// Package csvwallet adapts the providers/csvwallet direct importer to the
// adapter.Adapter contract: one adapter serves every exchange-csv account regardless
// of which exchange's export format it reads, since the normalized ledger-entry shape
// is the same either way.
package csvwallet

import (
	"encoding/json"
	"fmt"

	"github.com/jbelanger/exitbook/internal/ingestion/adapter"
	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/jbelanger/exitbook/internal/ingestion/importer"
	"github.com/jbelanger/exitbook/internal/ingestion/normalize"
	"github.com/jbelanger/exitbook/internal/ingestion/processor"
	"github.com/jbelanger/exitbook/internal/ingestion/processors/exchange"
	csvprovider "github.com/jbelanger/exitbook/internal/ingestion/providers/csvwallet"
	"github.com/jbelanger/exitbook/internal/ingestion/provider"
)

// SourceName is the adapter registry key every exchange-csv account uses, independent of
// Account.ProviderName (CSV accounts pin no provider; there is only one CSV reader).
const SourceName = "csvwallet"

// Adapter is the CSV-export source adapter.
type Adapter struct {
	scam processor.ScamDetector
}

// New builds the csvwallet adapter.
func New(scam processor.ScamDetector) *Adapter {
	return &Adapter{scam: scam}
}

func (a *Adapter) Name() string { return SourceName }

// CreateImporter ignores pm/preferredProvider entirely: CSV ingestion never calls the
// provider manager.
func (a *Adapter) CreateImporter(pm *provider.Manager, preferredProvider string) (importer.Importer, error) {
	return csvprovider.New(), nil
}

// CreateProcessor reuses the exchange ledger-entry processor: a CSV row normalizes to
// the same ExchangeLedgerEntry shape a REST export would produce.
func (a *Adapter) CreateProcessor() (processor.Processor, error) {
	return exchange.New(a.scam), nil
}

// UnpackRows reconstructs the {raw, normalized, eventId} envelope from each persisted
// row.
func (a *Adapter) UnpackRows(rows []domain.RawTransaction) ([]any, error) {
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		var entry normalize.ExchangeLedgerEntry
		if err := json.Unmarshal(row.NormalizedData, &entry); err != nil {
			return nil, fmt.Errorf("csvwallet: failed to unpack row %s: %w", row.ID, err)
		}
		out = append(out, normalize.Envelope{Raw: row.ProviderData, Normalized: entry, EventID: row.ID})
	}
	return out, nil
}

// BuildContext carries only the account id and source name: CSV ledger rows carry no
// address set to compare against.
func (a *Adapter) BuildContext(account domain.Account) processor.Context {
	return processor.Context{AccountID: account.ID, SourceName: account.SourceName}
}

var _ adapter.Adapter = (*Adapter)(nil)
