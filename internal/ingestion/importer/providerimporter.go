package importer

import (
	"context"
	"iter"

	"github.com/google/uuid"
	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/jbelanger/exitbook/internal/ingestion/provider"
)

// OperationType is the single cursor slot name provider-backed importers use; every
// concrete blockchain/exchange-API source pulls one logical transaction-history stream
// regardless of how many StreamType values its rows carry.
const OperationType = "transactionHistory"

// ManagerImporter adapts a provider.Manager into the Importer contract: every
// blockchain and exchange-API source adapter builds one of these rather
// than re-implementing cursor bookkeeping against the manager itself.
type ManagerImporter struct {
	manager           *provider.Manager
	domain            string
	preferredProvider string
}

// NewManagerImporter builds a ManagerImporter scoped to one provider domain (e.g.
// "ethereum", "kraken"). preferredProvider, when non-empty, pins the account to one
// provider ahead of health-weighted scoring.
func NewManagerImporter(manager *provider.Manager, domainName, preferredProvider string) *ManagerImporter {
	return &ManagerImporter{manager: manager, domain: domainName, preferredProvider: preferredProvider}
}

// ImportStreaming implements Importer by delegating to the provider manager's failover
// stream and translating each provider.Batch into one ImportBatch.
func (m *ManagerImporter) ImportStreaming(ctx context.Context, params Params) iter.Seq2[ImportBatch, error] {
	return func(yield func(ImportBatch, error) bool) {
		var resumeCursor *domain.CursorState
		if cur, ok := params.Account.CursorFor(OperationType); ok {
			resumeCursor = &cur
		}

		op := provider.Operation{Kind: provider.OpTransactionHistory, Address: params.Account.Identifier}

		for batch, err := range m.manager.ExecuteStreaming(ctx, m.domain, op, resumeCursor, m.preferredProvider) {
			if err != nil {
				yield(ImportBatch{}, err)
				return
			}

			rows := make([]domain.RawTransaction, 0, len(batch.Items))
			for _, item := range batch.Items {
				rows = append(rows, domain.RawTransaction{
					ID:                        uuid.NewString(),
					AccountID:                 params.Account.ID,
					ExternalID:                item.ExternalID,
					BlockchainTransactionHash: item.BlockchainTransactionHash,
					ProviderData:              item.Raw,
					NormalizedData:            item.Normalized,
					ProcessingStatus:          domain.ProcessingPending,
					StreamType:                item.StreamType,
				})
			}

			out := ImportBatch{
				RawTransactions: rows,
				OperationType:   OperationType,
				Cursor:          batch.Cursor,
				IsComplete:      batch.IsComplete,
			}
			if !yield(out, nil) {
				return
			}
		}
	}
}
