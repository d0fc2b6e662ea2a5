package importer

import (
	"context"
	"iter"
	"testing"

	"github.com/jbelanger/exitbook/internal/events"
	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/jbelanger/exitbook/internal/ingestion/provider"
	"github.com/jbelanger/exitbook/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider yields a fixed batch script and records the resume cursor it was
// handed, so tests can assert cursor propagation through the manager.
type scriptedProvider struct {
	name        string
	batches     []provider.Batch
	gotResume   *domain.CursorState
}

func (p *scriptedProvider) Name() string { return p.name }
func (p *scriptedProvider) Metadata() provider.Metadata {
	return provider.Metadata{
		Name:   p.name,
		Domain: "ethereum",
		Capabilities: provider.Capabilities{
			SupportedOperations:  []provider.OperationKind{provider.OpTransactionHistory},
			SupportedCursorTypes: []domain.CursorType{domain.CursorBlockNumber},
		},
	}
}
func (p *scriptedProvider) Execute(ctx context.Context, op provider.Operation) (provider.OpOutput, error) {
	return provider.OpOutput{}, nil
}
func (p *scriptedProvider) ExecuteStreaming(ctx context.Context, op provider.Operation, resumeCursor *domain.CursorState) iter.Seq2[provider.Batch, error] {
	p.gotResume = resumeCursor
	return func(yield func(provider.Batch, error) bool) {
		for _, b := range p.batches {
			if !yield(b, nil) {
				return
			}
		}
	}
}
func (p *scriptedProvider) IsHealthy() bool { return true }
func (p *scriptedProvider) Destroy() error  { return nil }

func newManagerWith(t *testing.T, p provider.Provider) *provider.Manager {
	t.Helper()
	log := logger.New(logger.Config{Level: "error"})
	registry := provider.NewRegistry()
	require.NoError(t, registry.Register(p.Metadata(), func(cfg provider.Config) (provider.Provider, error) { return p, nil }))
	breakers := provider.NewCircuitBreakerRegistry(provider.CircuitBreakerConfig{FailureThreshold: 5})
	stats := provider.NewStatsStore(nil, log)
	evtMgr := events.NewManager(events.NewBus(), log)
	return provider.NewManager(registry, breakers, stats, evtMgr, 500, log)
}

func TestManagerImporter_TranslatesBatches(t *testing.T) {
	p := &scriptedProvider{
		name: "etherscan",
		batches: []provider.Batch{{
			Items: []provider.RawNormalizedPair{{
				ExternalID:                "0xh1",
				BlockchainTransactionHash: "0xh1",
				StreamType:                "normal",
				Raw:                       []byte(`{"hash":"0xh1"}`),
				Normalized:                []byte(`{"id":"0xh1"}`),
			}},
			Cursor: domain.CursorState{
				Primary:  domain.PrimaryCursor{Type: domain.CursorBlockNumber, Value: "100"},
				Metadata: domain.CursorMetadata{ProviderName: "etherscan"},
			},
			IsComplete: true,
		}},
	}

	imp := NewManagerImporter(newManagerWith(t, p), "ethereum", "")
	params := Params{Account: domain.Account{ID: "acct-1", AccountType: domain.AccountTypeBlockchain, SourceName: "ethereum", Identifier: "0xabc"}}

	var batches []ImportBatch
	for b, err := range imp.ImportStreaming(context.Background(), params) {
		require.NoError(t, err)
		batches = append(batches, b)
	}

	require.Len(t, batches, 1)
	b := batches[0]
	assert.Equal(t, OperationType, b.OperationType)
	assert.True(t, b.IsComplete)
	assert.Equal(t, "100", b.Cursor.Primary.Value)

	require.Len(t, b.RawTransactions, 1)
	row := b.RawTransactions[0]
	assert.NotEmpty(t, row.ID)
	assert.Equal(t, "acct-1", row.AccountID)
	assert.Equal(t, "0xh1", row.ExternalID)
	assert.Equal(t, "0xh1", row.BlockchainTransactionHash)
	assert.Equal(t, domain.ProcessingPending, row.ProcessingStatus)
	assert.Equal(t, "normal", row.StreamType)
	assert.JSONEq(t, `{"hash":"0xh1"}`, string(row.ProviderData))
}

func TestManagerImporter_PassesResumeCursor(t *testing.T) {
	p := &scriptedProvider{
		name:    "etherscan",
		batches: []provider.Batch{{IsComplete: true, Cursor: domain.CursorState{Primary: domain.PrimaryCursor{Type: domain.CursorBlockNumber, Value: "110"}}}},
	}

	imp := NewManagerImporter(newManagerWith(t, p), "ethereum", "")
	params := Params{Account: domain.Account{
		ID:          "acct-1",
		AccountType: domain.AccountTypeBlockchain,
		SourceName:  "ethereum",
		Identifier:  "0xabc",
		LastCursor: map[string]domain.CursorState{
			OperationType: {
				Primary:  domain.PrimaryCursor{Type: domain.CursorBlockNumber, Value: "100"},
				Metadata: domain.CursorMetadata{ProviderName: "etherscan"},
			},
		},
	}}

	for _, err := range imp.ImportStreaming(context.Background(), params) {
		require.NoError(t, err)
	}

	require.NotNil(t, p.gotResume, "a persisted cursor must reach the provider")
	assert.Equal(t, "100", p.gotResume.Primary.Value)
}
