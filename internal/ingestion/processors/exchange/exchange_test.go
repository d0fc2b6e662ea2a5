package exchange

import (
	"testing"

	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/jbelanger/exitbook/internal/ingestion/normalize"
	"github.com/jbelanger/exitbook/internal/ingestion/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exchangeContext() processor.Context {
	return processor.Context{AccountID: "acct-1", SourceName: "kraken"}
}

func envelope(entry normalize.ExchangeLedgerEntry) normalize.Envelope {
	return normalize.Envelope{Raw: []byte(`{}`), Normalized: entry, EventID: "row-" + entry.ProviderID}
}

func TestExchange_DepositInflow(t *testing.T) {
	p := New(nil)

	out, err := p.Process([]any{envelope(normalize.ExchangeLedgerEntry{
		ProviderID:  "L1",
		Timestamp:   1717200000,
		EntryType:   "deposit",
		AssetSymbol: "BTC",
		Amount:      "0.5",
		Status:      "success",
	})}, exchangeContext())
	require.NoError(t, err)
	require.Len(t, out, 1)

	tx := out[0]
	assert.Equal(t, domain.Operation{Category: "transfer", Type: "deposit"}, tx.Operation)
	require.Len(t, tx.Movements.Inflows, 1)
	assert.Equal(t, "exchange:kraken:BTC", tx.Movements.Inflows[0].AssetID)
	assert.Equal(t, "0.5", tx.Movements.Inflows[0].GrossAmount)
	assert.Empty(t, tx.Movements.Outflows)
}

func TestExchange_NegativeAmountIsOutflow(t *testing.T) {
	p := New(nil)

	out, err := p.Process([]any{envelope(normalize.ExchangeLedgerEntry{
		ProviderID:     "L2",
		Timestamp:      1717200000,
		EntryType:      "withdrawal",
		AssetSymbol:    "ETH",
		Amount:         "-2.25",
		FeeAssetSymbol: "ETH",
		FeeAmount:      "0.005",
		Status:         "success",
		Address:        "0xdest",
	})}, exchangeContext())
	require.NoError(t, err)
	require.Len(t, out, 1)

	tx := out[0]
	assert.Equal(t, domain.Operation{Category: "transfer", Type: "withdrawal"}, tx.Operation)
	require.Len(t, tx.Movements.Outflows, 1)
	assert.Equal(t, "2.25", tx.Movements.Outflows[0].GrossAmount, "the sign lives in Direction, not the amount string")
	assert.Empty(t, tx.Movements.Inflows)
	require.Len(t, tx.Fees, 1)
	assert.Equal(t, "0.005", tx.Fees[0].Amount)
	assert.Equal(t, domain.FeeScopePlatform, tx.Fees[0].Scope)
	assert.Equal(t, domain.SettlementBalance, tx.Fees[0].Settlement)
	assert.Equal(t, "0xdest", tx.To)
}

func TestExchange_TradeClassification(t *testing.T) {
	p := New(nil)

	out, err := p.Process([]any{envelope(normalize.ExchangeLedgerEntry{
		ProviderID:  "L3",
		Timestamp:   1717200000,
		EntryType:   "trade",
		AssetSymbol: "SOL",
		Amount:      "10",
		RefID:       "T-900",
	})}, exchangeContext())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, domain.Operation{Category: "trade", Type: "swap"}, out[0].Operation)
	assert.Equal(t, domain.TxSuccess, out[0].Status, "missing status defaults to success")
}

func TestExchange_PendingStatus(t *testing.T) {
	p := New(nil)

	out, err := p.Process([]any{envelope(normalize.ExchangeLedgerEntry{
		ProviderID:  "L4",
		Timestamp:   1717200000,
		EntryType:   "deposit",
		AssetSymbol: "BTC",
		Amount:      "1",
		Status:      "pending",
	})}, exchangeContext())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, domain.TxPending, out[0].Status)
}

func TestExchange_ValidationRejectsMissingFields(t *testing.T) {
	p := New(nil)

	_, err := p.Process([]any{envelope(normalize.ExchangeLedgerEntry{
		Timestamp:   1717200000,
		EntryType:   "deposit",
		AssetSymbol: "BTC",
		Amount:      "1",
	})}, exchangeContext())
	require.Error(t, err, "missing provider id must abort the batch")

	_, err = p.Process([]any{envelope(normalize.ExchangeLedgerEntry{
		ProviderID: "L5",
		Timestamp:  1717200000,
		EntryType:  "deposit",
		Amount:     "1",
	})}, exchangeContext())
	require.Error(t, err, "missing asset symbol must abort the batch")
}
