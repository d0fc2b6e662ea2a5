// Package etherscan implements the Provider contract against an Etherscan-shaped
// block explorer REST API: paginated by page number, cursor type blockNumber, a
// 5-block replay window to tolerate reorg/indexing lag on resume.
package etherscan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strconv"
	"strings"

	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/jbelanger/exitbook/internal/ingestion/httpclient"
	"github.com/jbelanger/exitbook/internal/ingestion/ingesterr"
	"github.com/jbelanger/exitbook/internal/ingestion/normalize"
	"github.com/jbelanger/exitbook/internal/ingestion/provider"
	"github.com/rs/zerolog"
)

const (
	// Name is this provider's registration key within the "ethereum" domain.
	Name           = "etherscan"
	defaultBaseURL = "https://api.etherscan.io/api"
	pageSize       = 100
)

// Metadata returns this provider's catalog entry for Registry.Register.
func Metadata(chain string) provider.Metadata {
	return provider.Metadata{
		Name:        Name,
		DisplayName: "Etherscan",
		Domain:      chain,
		BaseURL:     defaultBaseURL,
		Capabilities: provider.Capabilities{
			SupportedOperations:  []provider.OperationKind{provider.OpBalance, provider.OpTransactionHistory},
			SupportedCursorTypes: []domain.CursorType{domain.CursorBlockNumber, domain.CursorPageToken},
			PreferredCursorType:  domain.CursorBlockNumber,
			ReplayWindow:         domain.ReplayWindow{Unit: domain.ReplayBlocks, Amount: 5},
			SupportsPagination:   true,
			MaxBatchSize:         pageSize,
			RequiresAPIKey:       true,
		},
		DefaultConfig: provider.Config{
			RateLimit: provider.RateLimit{RequestsPerSecond: 5, BurstLimit: 5},
			Retries:   3,
		},
	}
}

// Provider is the concrete Etherscan integration.
type Provider struct {
	chain  string
	cfg    provider.Config
	client *httpclient.Client
	log    zerolog.Logger
}

// New is a provider.Factory for the "ethereum" domain. log should already be scoped by
// the caller; New adds its own component tag.
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

func (p *Provider) Name() string              { return Name }
func (p *Provider) Metadata() provider.Metadata { return Metadata(p.chain) }
func (p *Provider) IsHealthy() bool            { return true }
func (p *Provider) Destroy() error             { return nil }

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
	u := p.baseURL() + "?module=account&action=balance&address=" + address + "&tag=latest&apikey=" + p.cfg.APIKey
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return provider.OpOutput{}, err
	}
	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return provider.OpOutput{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Result  string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return provider.OpOutput{}, fmt.Errorf("etherscan: failed to decode balance response: %w", err)
	}
	return provider.OpOutput{Value: payload.Result}, nil
}

// ExecuteStreaming implements the transaction-history streaming operation via the
// shared pagination primitive.
func (p *Provider) ExecuteStreaming(ctx context.Context, op provider.Operation, resumeCursor *domain.CursorState) iter.Seq2[provider.Batch, error] {
	return providerStream(ctx, p, op, resumeCursor)
}

// providerStream is split out from the method so FetchPage/MapItem closures stay
// readable; it is the only place Stream() is invoked.
func providerStream(ctx context.Context, p *Provider, op provider.Operation, resumeCursor *domain.CursorState) iter.Seq2[provider.Batch, error] {
	fetchPage := func(ctx context.Context, state map[string]any) (provider.Page, error) {
		page := stateInt(state, "page", 1)
		startBlock := stateInt(state, "startBlock", 0)
		if _, ok := state["startBlock"]; !ok {
			// Resuming from a primary block cursor (fresh resume or a failover
			// handoff): the streaming adapter has already rewound it by the replay
			// window, so pagination restarts there rather than at block 0.
			startBlock = stateInt(state, "blockNumber", 0)
		}

		u := fmt.Sprintf("%s?module=account&action=txlist&address=%s&startblock=%d&endblock=99999999&page=%d&offset=%d&sort=asc&apikey=%s",
			p.baseURL(), op.Address, startBlock, page, pageSize, p.cfg.APIKey)
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return provider.Page{}, err
		}
		resp, err := p.client.Do(ctx, req)
		if err != nil {
			return provider.Page{}, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return provider.Page{}, err
		}

		var payload struct {
			Status  string           `json:"status"`
			Message string           `json:"message"`
			Result  []map[string]any `json:"result"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return provider.Page{}, fmt.Errorf("etherscan: failed to decode txlist response: %w", err)
		}

		items := make([]any, len(payload.Result))
		for i, r := range payload.Result {
			items[i] = r
		}

		isComplete := len(payload.Result) < pageSize
		return provider.Page{
			Items:          items,
			IsComplete:     isComplete,
			CustomMetadata: map[string]any{"page": page + 1, "startBlock": startBlock},
		}, nil
	}

	mapItem := func(item any) ([]provider.RawNormalizedPair, error) {
		raw, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("etherscan: unexpected item type %T", item)
		}

		hash, _ := raw["hash"].(string)
		blockNumStr, _ := raw["blockNumber"].(string)
		blockNum, _ := strconv.ParseInt(blockNumStr, 10, 64)
		timestampStr, _ := raw["timeStamp"].(string)
		timestamp, _ := strconv.ParseInt(timestampStr, 10, 64)
		isErrorStr, _ := raw["isError"].(string)

		from, _ := raw["from"].(string)
		to, _ := raw["to"].(string)
		value, _ := raw["value"].(string)
		gasUsed, _ := raw["gasUsed"].(string)
		gasPrice, _ := raw["gasPrice"].(string)
		contractAddress, _ := raw["contractAddress"].(string)
		tokenSymbol, _ := raw["tokenSymbol"].(string)

		status := "success"
		if isErrorStr == "1" {
			status = "failed"
		}

		streamType := "normal"
		if tokenSymbol != "" {
			streamType = "token"
		}

		transfer := normalize.EVMTransfer{
			ProviderID:      hash,
			TxHash:          hash,
			BlockNumber:     blockNum,
			BlockTimestamp:  timestamp,
			From:            strings.ToLower(from),
			To:              strings.ToLower(to),
			AssetSymbol:     defaultString(tokenSymbol, "ETH"),
			ContractAddress: strings.ToLower(contractAddress),
			Value:           value,
			GasFeeValue:     gasFee(gasUsed, gasPrice),
			Status:          status,
			StreamType:      streamType,
			IsError:         isErrorStr == "1",
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
			ExternalID:                hash,
			BlockchainTransactionHash: hash,
			StreamType:                streamType,
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

func (p *Provider) baseURL() string {
	if p.cfg.BaseURL != "" {
		return p.cfg.BaseURL
	}
	return defaultBaseURL
}

// stateInt reads a numeric pagination-state entry, tolerating the int/int64/float64
// variants a cursor picks up on its round trip through JSON persistence.
func stateInt(state map[string]any, key string, fallback int) int {
	switch v := state[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func gasFee(gasUsed, gasPrice string) string {
	if gasUsed == "" || gasPrice == "" {
		return ""
	}
	// Left as provider-native strings; the EVM processor computes the exact decimal
	// product using math/big, keeping no floating point anywhere near money.
	return gasUsed + "*" + gasPrice
}
