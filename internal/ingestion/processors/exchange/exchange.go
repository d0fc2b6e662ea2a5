// Package exchange implements the ledger-entry processor for exchange accounts: one
// normalize.Envelope in (the {raw, normalized, eventId} bundle an exchange adapter's
// UnpackRows builds), one domain.ProcessedTransaction out.
// Exchange accounts carry no address set, so direction follows the sign of the ledger
// entry's amount rather than Context.HasAddress; EntryType only picks the operation.
package exchange

import (
	"fmt"
	"time"

	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/jbelanger/exitbook/internal/ingestion/normalize"
	"github.com/jbelanger/exitbook/internal/ingestion/processor"
)

type exchangeProcessor struct {
	*processor.Base
}

// New builds a *processor.Base wired with this package's validator and transform.
func New(scam processor.ScamDetector) processor.Processor {
	ep := &exchangeProcessor{}
	ep.Base = &processor.Base{
		Name:         "exchange-ledger",
		ValidateItem: ep.validate,
		Transform:    ep.transform,
		Scam:         scam,
	}
	return ep
}

func (ep *exchangeProcessor) validate(item any) (string, error) {
	env, ok := item.(normalize.Envelope)
	if !ok {
		return "", fmt.Errorf("expected normalize.Envelope, got %T", item)
	}
	if env.Normalized.ProviderID == "" {
		return "providerId", fmt.Errorf("ledger entry missing provider id")
	}
	if env.Normalized.AssetSymbol == "" {
		return "assetSymbol", fmt.Errorf("ledger entry missing asset symbol")
	}
	return "", nil
}

func (ep *exchangeProcessor) transform(batch []any, ctx processor.Context) ([]domain.ProcessedTransaction, error) {
	out := make([]domain.ProcessedTransaction, 0, len(batch))

	for _, raw := range batch {
		env := raw.(normalize.Envelope)
		e := env.Normalized

		assetID := "exchange:" + ctx.SourceName + ":" + e.AssetSymbol
		status := parseStatus(e.Status)

		tx := domain.ProcessedTransaction{
			ID:         env.EventID,
			AccountID:  ctx.AccountID,
			ExternalID: e.ProviderID,
			Datetime:   time.Unix(e.Timestamp, 0).UTC().Format(time.RFC3339),
			Timestamp:  e.Timestamp,
			Source:     ctx.SourceName,
			SourceType: "exchange",
			Status:     status,
			To:         e.Address,
			Operation:  classify(e),
			Notes:      nil,
		}

		amount, negative := stripSign(e.Amount)
		direction := domain.DirectionInflow
		if negative {
			direction = domain.DirectionOutflow
		}
		if amount != "" && amount != "0" {
			movement := domain.Movement{
				Direction:   direction,
				AssetID:     assetID,
				AssetSymbol: e.AssetSymbol,
				GrossAmount: amount,
				NetAmount:   amount,
			}
			if direction == domain.DirectionInflow {
				tx.Movements.Inflows = append(tx.Movements.Inflows, movement)
			} else {
				tx.Movements.Outflows = append(tx.Movements.Outflows, movement)
			}
		}

		if e.FeeAmount != "" && e.FeeAmount != "0" {
			feeAmount, _ := stripSign(e.FeeAmount)
			tx.Fees = append(tx.Fees, domain.Fee{
				AssetID:     "exchange:" + ctx.SourceName + ":" + e.FeeAssetSymbol,
				AssetSymbol: e.FeeAssetSymbol,
				Amount:      feeAmount,
				Scope:       domain.FeeScopePlatform,
				Settlement:  domain.SettlementBalance,
			})
		}

		if !tx.HasContent() {
			continue
		}
		out = append(out, tx)
	}

	return out, nil
}

func classify(e normalize.ExchangeLedgerEntry) domain.Operation {
	switch e.EntryType {
	case "deposit":
		return domain.Operation{Category: "transfer", Type: "deposit"}
	case "withdrawal":
		return domain.Operation{Category: "transfer", Type: "withdrawal"}
	case "trade":
		return domain.Operation{Category: "trade", Type: "swap"}
	case "fee":
		return domain.Operation{Category: "fee", Type: "platform"}
	default:
		return domain.Operation{Category: "other", Type: e.EntryType}
	}
}

func parseStatus(s string) domain.TransactionStatus {
	switch s {
	case "failed":
		return domain.TxFailed
	case "pending":
		return domain.TxPending
	default:
		return domain.TxSuccess
	}
}

// stripSign splits a signed decimal amount string into its absolute value and sign, so
// the direction is carried by Movement.Direction rather than a sign embedded in the
// string; amounts are always non-negative magnitudes.
func stripSign(amount string) (string, bool) {
	if amount == "" {
		return "", false
	}
	if amount[0] == '-' {
		return amount[1:], true
	}
	return amount, false
}
