// Package ethereum wires the etherscan and alchemygo providers together with the evm
// processor behind the adapter.Adapter contract. Provider registration itself (etherscan.New/alchemygo.New against the
// shared provider.Registry) happens in the composition root; this adapter only needs the
// domain name that registration used.
package ethereum

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jbelanger/exitbook/internal/ingestion/adapter"
	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/jbelanger/exitbook/internal/ingestion/importer"
	"github.com/jbelanger/exitbook/internal/ingestion/normalize"
	"github.com/jbelanger/exitbook/internal/ingestion/processor"
	"github.com/jbelanger/exitbook/internal/ingestion/processors/evm"
	"github.com/jbelanger/exitbook/internal/ingestion/provider"
)

// Adapter is the "ethereum" source adapter. chain is the provider-registry domain name
// (normally "ethereum", but the same adapter code serves any EVM chain registered under
// a different domain name, e.g. "polygon").
type Adapter struct {
	chain string
	scam  processor.ScamDetector
	pm    *provider.Manager
}

// New builds the ethereum adapter. scam may be nil; a nil detector disables annotation.
func New(chain string, scam processor.ScamDetector) *Adapter {
	return &Adapter{chain: chain, scam: scam}
}

func (a *Adapter) Name() string { return a.chain }

// CreateImporter builds a provider-manager-backed importer scoped to this chain's
// provider domain.
func (a *Adapter) CreateImporter(pm *provider.Manager, preferredProvider string) (importer.Importer, error) {
	a.pm = pm
	return importer.NewManagerImporter(pm, a.chain, preferredProvider), nil
}

// CreateProcessor builds the evm fund-flow processor for this chain.
func (a *Adapter) CreateProcessor() (processor.Processor, error) {
	return evm.New(a.chain, a.scam), nil
}

// UnpackRows unmarshals each row's NormalizedData into a normalize.EVMTransfer, the
// shape the evm processor's Transform expects.
func (a *Adapter) UnpackRows(rows []domain.RawTransaction) ([]any, error) {
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		var t normalize.EVMTransfer
		if err := json.Unmarshal(row.NormalizedData, &t); err != nil {
			return nil, fmt.Errorf("ethereum: failed to unpack row %s: %w", row.ID, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// BuildContext derives the user address set from the account's on-chain identifier.
// Identifier may carry multiple comma-separated addresses for accounts tracking several
// wallets under one logical account.
func (a *Adapter) BuildContext(account domain.Account) processor.Context {
	addrs := make(map[string]struct{})
	var primary string
	for i, raw := range strings.Split(account.Identifier, ",") {
		addr := strings.ToLower(strings.TrimSpace(raw))
		if addr == "" {
			continue
		}
		addrs[addr] = struct{}{}
		if i == 0 {
			primary = addr
		}
	}
	return processor.Context{
		UserAddresses:  addrs,
		PrimaryAddress: primary,
		AccountID:      account.ID,
		SourceName:     a.chain,
	}
}

// FetchLiveBalance implements adapter.LiveBalanceFetcher by delegating to the provider
// manager's balance operation, bypassing the streaming history path entirely. It can
// only be called after CreateImporter has run once for this adapter instance (the
// orchestrator calls CreateImporter at the start of each account import); before that
// it returns an error. The one-shot cache key is "chain:address", with no account id.
func (a *Adapter) FetchLiveBalance(ctx context.Context, address string) (string, error) {
	if a.pm == nil {
		return "", fmt.Errorf("ethereum: FetchLiveBalance called before CreateImporter")
	}
	out, err := a.pm.ExecuteOnce(ctx, a.chain, provider.Operation{Kind: provider.OpBalance, Address: address, CacheKey: a.chain + ":" + address}, "")
	if err != nil {
		return "", err
	}
	val, _ := out.Value.(string)
	return val, nil
}

var _ adapter.Adapter = (*Adapter)(nil)
