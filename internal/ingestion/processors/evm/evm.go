// Package evm implements the fund-flow processor for Ethereum-family normalized
// transfers: one normalize.EVMTransfer in, one
// domain.ProcessedTransaction out, inflow/outflow classified against the account's
// known address set, gas fee computed from gasUsed*gasPrice with math/big so no floating
// point ever touches an amount.
package evm

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/jbelanger/exitbook/internal/ingestion/normalize"
	"github.com/jbelanger/exitbook/internal/ingestion/processor"
)

// chainProcessor is scoped to one blockchain identifier (chain), used to build
// canonical asset ids via normalize.EVMTransfer.AssetID.
type chainProcessor struct {
	*processor.Base
	chain string
}

// New builds a *processor.Base wired with this package's validator and transform for the
// given chain (e.g. "ethereum").
func New(chain string, scam processor.ScamDetector) processor.Processor {
	cp := &chainProcessor{chain: chain}
	cp.Base = &processor.Base{
		Name:         "evm:" + chain,
		ValidateItem: cp.validate,
		Transform:    cp.transform,
		Scam:         scam,
	}
	return cp
}

func (cp *chainProcessor) validate(item any) (string, error) {
	t, ok := item.(normalize.EVMTransfer)
	if !ok {
		return "", fmt.Errorf("expected normalize.EVMTransfer, got %T", item)
	}
	if t.TxHash == "" {
		return "txHash", fmt.Errorf("missing transaction hash")
	}
	if t.From == "" && t.To == "" {
		return "from", fmt.Errorf("transfer has neither from nor to address")
	}
	return "", nil
}

func (cp *chainProcessor) transform(batch []any, ctx processor.Context) ([]domain.ProcessedTransaction, error) {
	out := make([]domain.ProcessedTransaction, 0, len(batch))

	for _, raw := range batch {
		t := raw.(normalize.EVMTransfer)

		assetID := t.AssetID(cp.chain)
		status := domain.TxSuccess
		if t.IsError || t.Status == "failed" {
			status = domain.TxFailed
		}

		tx := domain.ProcessedTransaction{
			ID:         t.TxHash + ":" + t.StreamType,
			AccountID:  ctx.AccountID,
			ExternalID: t.ProviderID,
			Datetime:   time.Unix(t.BlockTimestamp, 0).UTC().Format(time.RFC3339),
			Timestamp:  t.BlockTimestamp,
			Source:     ctx.SourceName,
			SourceType: "blockchain",
			Status:     status,
			From:       t.From,
			To:         t.To,
			Operation:  classify(ctx, t),
			Blockchain: &domain.BlockchainInfo{
				Name:            cp.chain,
				BlockHeight:     t.BlockNumber,
				TransactionHash: t.TxHash,
				IsConfirmed:     status == domain.TxSuccess,
			},
		}

		if ctx.HasAddress(t.To) && t.Value != "" && t.Value != "0" {
			tx.Movements.Inflows = append(tx.Movements.Inflows, domain.Movement{
				Direction:   domain.DirectionInflow,
				AssetID:     assetID,
				AssetSymbol: t.AssetSymbol,
				GrossAmount: t.Value,
				NetAmount:   t.Value,
			})
		}
		if ctx.HasAddress(t.From) && t.Value != "" && t.Value != "0" {
			tx.Movements.Outflows = append(tx.Movements.Outflows, domain.Movement{
				Direction:   domain.DirectionOutflow,
				AssetID:     assetID,
				AssetSymbol: t.AssetSymbol,
				GrossAmount: t.Value,
				NetAmount:   t.Value,
			})
		}

		if fee := computeGasFee(t); fee != "" && ctx.HasAddress(t.From) {
			tx.Fees = append(tx.Fees, domain.Fee{
				AssetID:     "blockchain:" + cp.chain + ":native",
				AssetSymbol: nativeSymbol(cp.chain),
				Amount:      fee,
				Scope:       domain.FeeScopeNetwork,
				Settlement:  domain.SettlementOnChain,
			})
		}

		if !tx.HasContent() {
			continue
		}
		out = append(out, tx)
	}

	return out, nil
}

// classify assigns the operation taxonomy for a simple transfer: "internal" when both
// from and to belong to the account, a deposit when only to does, a withdrawal when
// only from does, and "unrelated" when neither does.
func classify(ctx processor.Context, t normalize.EVMTransfer) domain.Operation {
	toOurs := ctx.HasAddress(t.To)
	fromOurs := ctx.HasAddress(t.From)
	switch {
	case toOurs && fromOurs:
		return domain.Operation{Category: "transfer", Type: "internal"}
	case toOurs:
		return domain.Operation{Category: "transfer", Type: "deposit"}
	case fromOurs:
		return domain.Operation{Category: "transfer", Type: "withdrawal"}
	default:
		return domain.Operation{Category: "transfer", Type: "unrelated"}
	}
}

// computeGasFee parses the "gasUsed*gasPrice" string the provider mapper stamped into
// GasFeeValue and multiplies with math/big, returning an empty string if the row carries
// no gas data (token/internal transfers don't pay their own gas).
func computeGasFee(t normalize.EVMTransfer) string {
	if t.GasFeeValue == "" {
		return ""
	}
	parts := strings.SplitN(t.GasFeeValue, "*", 2)
	if len(parts) != 2 {
		return ""
	}
	gasUsed, ok1 := new(big.Int).SetString(parts[0], 10)
	gasPrice, ok2 := new(big.Int).SetString(parts[1], 10)
	if !ok1 || !ok2 {
		return ""
	}
	return new(big.Int).Mul(gasUsed, gasPrice).String()
}

func nativeSymbol(chain string) string {
	switch chain {
	case "ethereum":
		return "ETH"
	case "polygon":
		return "MATIC"
	case "arbitrum", "optimism", "base":
		return "ETH"
	default:
		return strings.ToUpper(chain)
	}
}
