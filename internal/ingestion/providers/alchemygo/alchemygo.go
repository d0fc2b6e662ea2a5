// Package alchemygo implements the Provider contract against an Alchemy-shaped
// JSON-RPC asset-transfers API: the second EVM provider for the "ethereum" domain,
// offering a native opaque pageKey cursor instead of etherscan's
// page-number scheme so the manager's failover can hand either provider a cursor of its
// own preferred type while still falling back via replay window on the other.
package alchemygo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/jbelanger/exitbook/internal/ingestion/httpclient"
	"github.com/jbelanger/exitbook/internal/ingestion/ingesterr"
	"github.com/jbelanger/exitbook/internal/ingestion/normalize"
	"github.com/jbelanger/exitbook/internal/ingestion/provider"
	"github.com/rs/zerolog"
)

const (
	// Name is this provider's registration key within the "ethereum" domain.
	Name           = "alchemygo"
	defaultBaseURL = "https://eth-mainnet.g.alchemy.com/v2"
	pageSize       = 100
)

// Metadata returns this provider's catalog entry for Registry.Register.
func Metadata(chain string) provider.Metadata {
	return provider.Metadata{
		Name:        Name,
		DisplayName: "Alchemy",
		Domain:      chain,
		BaseURL:     defaultBaseURL,
		Capabilities: provider.Capabilities{
			SupportedOperations:  []provider.OperationKind{provider.OpBalance, provider.OpTransactionHistory},
			SupportedCursorTypes: []domain.CursorType{domain.CursorBlockNumber, domain.CursorPageToken},
			PreferredCursorType:  domain.CursorBlockNumber,
			ReplayWindow:         domain.ReplayWindow{Unit: domain.ReplayBlocks, Amount: 3},
			SupportsPagination:   true,
			MaxBatchSize:         pageSize,
			RequiresAPIKey:       true,
		},
		DefaultConfig: provider.Config{
			RateLimit: provider.RateLimit{RequestsPerSecond: 10, BurstLimit: 10},
			Retries:   3,
		},
	}
}

// Provider is the concrete Alchemy integration.
type Provider struct {
	chain  string
	cfg    provider.Config
	client *httpclient.Client
	log    zerolog.Logger
}

// New is a provider.Factory for the "ethereum" domain.
func New(chain string, log zerolog.Logger) provider.Factory {
	return func(cfg provider.Config) (provider.Provider, error) {
		return &Provider{
			chain:  chain,
			cfg:    cfg,
			client: httpclient.New(cfg, log),
			log:    log.With().Str("provider", Name).Str("chain", chain).Logger(),
		}, nil
	}
}

func (p *Provider) Name() string               { return Name }
func (p *Provider) Metadata() provider.Metadata { return Metadata(p.chain) }
func (p *Provider) IsHealthy() bool             { return true }
func (p *Provider) Destroy() error              { return nil }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Execute implements the one-shot operations (balance lookup).
func (p *Provider) Execute(ctx context.Context, op provider.Operation) (provider.OpOutput, error) {
	switch op.Kind {
	case provider.OpBalance:
		return p.fetchBalance(ctx, op.Address)
	default:
		return provider.OpOutput{}, ingesterr.UnsupportedOperation(Name, string(op.Kind))
	}
}

func (p *Provider) fetchBalance(ctx context.Context, address string) (provider.OpOutput, error) {
	body, err := p.call(ctx, rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_getBalance",
		Params:  []any{address, "latest"},
	})
	if err != nil {
		return provider.OpOutput{}, err
	}

	var hexBalance string
	if err := json.Unmarshal(body.Result, &hexBalance); err != nil {
		return provider.OpOutput{}, fmt.Errorf("alchemygo: failed to decode balance: %w", err)
	}
	return provider.OpOutput{Value: hexBalance}, nil
}

func (p *Provider) call(ctx context.Context, rpc rpcRequest) (rpcResponse, error) {
	payload, err := json.Marshal(rpc)
	if err != nil {
		return rpcResponse{}, err
	}
	req, err := http.NewRequest(http.MethodPost, p.rpcURL(), strings.NewReader(string(payload)))
	if err != nil {
		return rpcResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return rpcResponse{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return rpcResponse{}, err
	}

	var out rpcResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return rpcResponse{}, fmt.Errorf("alchemygo: failed to decode rpc response: %w", err)
	}
	if out.Error != nil {
		return rpcResponse{}, fmt.Errorf("alchemygo: rpc error: %s", out.Error.Message)
	}
	return out, nil
}

// ExecuteStreaming implements the transaction-history streaming operation via
// alchemy_getAssetTransfers, paginated by its native pageKey.
func (p *Provider) ExecuteStreaming(ctx context.Context, op provider.Operation, resumeCursor *domain.CursorState) iter.Seq2[provider.Batch, error] {
	fetchPage := func(ctx context.Context, state map[string]any) (provider.Page, error) {
		fromBlock := "0x0"
		if fb, ok := state["fromBlock"].(string); ok && fb != "" {
			fromBlock = fb
		} else if n, ok := stateInt64(state, "blockNumber"); ok {
			// Resuming from a primary block cursor (fresh resume or a failover
			// handoff): the streaming adapter has already rewound it by the replay
			// window.
			fromBlock = fmt.Sprintf("0x%x", n)
		}

		params := map[string]any{
			"fromBlock":   fromBlock,
			"toBlock":     "latest",
			"category":    []string{"external", "internal", "erc20"},
			"withMetadata": true,
			"maxCount":    fmt.Sprintf("0x%x", pageSize),
		}
		if op.Address != "" {
			params["fromAddress"] = op.Address
		}
		if pk, ok := state["pageKey"].(string); ok && pk != "" {
			params["pageKey"] = pk
		}

		resp, err := p.call(ctx, rpcRequest{
			JSONRPC: "2.0",
			ID:      1,
			Method:  "alchemy_getAssetTransfers",
			Params:  []any{params},
		})
		if err != nil {
			return provider.Page{}, err
		}

		var result struct {
			Transfers []map[string]any `json:"transfers"`
			PageKey   string            `json:"pageKey"`
		}
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return provider.Page{}, fmt.Errorf("alchemygo: failed to decode transfers: %w", err)
		}

		items := make([]any, len(result.Transfers))
		for i, t := range result.Transfers {
			items[i] = t
		}

		isComplete := result.PageKey == ""
		custom := map[string]any{}
		if !isComplete {
			// pageKey continues the query it was issued under, so the fromBlock it
			// was paired with must travel with it.
			custom["pageKey"] = result.PageKey
			custom["fromBlock"] = fromBlock
		}

		return provider.Page{Items: items, NextPageToken: result.PageKey, IsComplete: isComplete, CustomMetadata: custom}, nil
	}

	mapItem := func(item any) ([]provider.RawNormalizedPair, error) {
		raw, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("alchemygo: unexpected item type %T", item)
		}

		hash, _ := raw["hash"].(string)
		from, _ := raw["from"].(string)
		to, _ := raw["to"].(string)
		category, _ := raw["category"].(string)

		blockNum := int64(0)
		if bn, ok := raw["blockNum"].(string); ok {
			blockNum = hexToInt(bn)
		}

		timestamp := int64(0)
		if meta, ok := raw["metadata"].(map[string]any); ok {
			if ts, ok := meta["blockTimestamp"].(string); ok {
				timestamp = parseISOUnix(ts)
			}
		}

		assetSymbol := "ETH"
		contractAddress := ""
		if asset, ok := raw["asset"].(string); ok && asset != "" {
			assetSymbol = asset
		}
		if rc, ok := raw["rawContract"].(map[string]any); ok {
			if addr, ok := rc["address"].(string); ok {
				contractAddress = strings.ToLower(addr)
			}
		}

		value := ""
		if v, ok := raw["value"].(float64); ok {
			value = strconv.FormatFloat(v, 'f', -1, 64)
		}

		transfer := normalize.EVMTransfer{
			ProviderID:      hash + ":" + category,
			TxHash:          hash,
			BlockNumber:     blockNum,
			BlockTimestamp:  timestamp,
			From:            strings.ToLower(from),
			To:              strings.ToLower(to),
			AssetSymbol:     assetSymbol,
			ContractAddress: contractAddress,
			Value:           value,
			Status:          "success",
			StreamType:      category,
		}

		normalizedJSON, err := json.Marshal(transfer)
		if err != nil {
			return nil, err
		}
		rawJSON, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}

		return []provider.RawNormalizedPair{{
			ExternalID:                transfer.ProviderID,
			BlockchainTransactionHash: hash,
			StreamType:                category,
			Raw:                       rawJSON,
			Normalized:                normalizedJSON,
		}}, nil
	}

	extractCursor := func(normalized []provider.RawNormalizedPair, page provider.Page) domain.PrimaryCursor {
		if len(normalized) == 0 {
			return domain.PrimaryCursor{Type: domain.CursorBlockNumber}
		}
		var last normalize.EVMTransfer
		_ = json.Unmarshal(normalized[len(normalized)-1].Normalized, &last)
		return domain.PrimaryCursor{Type: domain.CursorBlockNumber, Value: strconv.FormatInt(last.BlockNumber, 10)}
	}

	return provider.Stream(ctx, provider.StreamingAdapterConfig{
		ProviderName:    Name,
		FetchPage:       fetchPage,
		MapItem:         mapItem,
		ExtractCursor:   extractCursor,
		ReplayWindow:    Metadata(p.chain).Capabilities.ReplayWindow,
		DedupWindowSize: 500,
	}, resumeCursor)
}

func (p *Provider) rpcURL() string {
	if p.cfg.BaseURL != "" {
		return p.cfg.BaseURL + "/" + p.cfg.APIKey
	}
	return defaultBaseURL + "/" + p.cfg.APIKey
}

// stateInt64 reads a numeric pagination-state entry, tolerating the int/int64/float64
// variants a cursor picks up on its round trip through JSON persistence.
func stateInt64(state map[string]any, key string) (int64, bool) {
	switch v := state[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

func hexToInt(hex string) int64 {
	hex = strings.TrimPrefix(hex, "0x")
	v, _ := strconv.ParseInt(hex, 16, 64)
	return v
}

func parseISOUnix(iso string) int64 {
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return 0
	}
	return t.Unix()
}
