package provider

import (
	"context"
	"iter"
	"strconv"

	"github.com/jbelanger/exitbook/internal/ingestion/domain"
)

// Page is one fetched page of provider-native items, as returned by a FetchPage
// function. CustomMetadata is opaque pagination state the provider needs to resume.
type Page struct {
	Items          []any
	NextPageToken  string
	IsComplete     bool
	CustomMetadata map[string]any
}

// SkipSignal is returned by an ItemMapper to discard a non-relevant item (e.g. an
// unrelated message in a multi-message chain transaction) without failing the stream.
var SkipSignal = &skipSignal{}

type skipSignal struct{}

func (*skipSignal) Error() string { return "skip: item not relevant" }

// FetchPage retrieves the next page of provider-native items, given the current opaque
// pagination state.
type FetchPage func(ctx context.Context, state map[string]any) (Page, error)

// ItemMapper turns one provider-native item into zero or more RawNormalizedPair
// entries. Returning SkipSignal discards the item without failing the stream; any
// other error aborts the stream.
type ItemMapper func(item any) ([]RawNormalizedPair, error)

// ExtractCursor derives the new primary cursor value from the last normalized item
// processed in a page (e.g. the item's block number or timestamp).
type ExtractCursor func(normalized []RawNormalizedPair, page Page) domain.PrimaryCursor

// StreamingAdapterConfig bundles the per-provider pieces needed to drive Stream.
type StreamingAdapterConfig struct {
	ProviderName  string
	FetchPage     FetchPage
	MapItem       ItemMapper
	ExtractCursor ExtractCursor
	ReplayWindow  domain.ReplayWindow
	DedupWindowSize int
}

// Stream is the reusable provider-side pagination primitive. It restores pagination
// tokens from resumeCursor.Metadata.Custom on the first call, seeds the generic
// resume hints FetchPage reads ("blockNumber", "timestamp", "pageToken") from the
// primary cursor rewound by the replay window, seeds its own in-provider dedup window
// from resumeCursor's LastTransactionID, and on each iteration fetches a page, maps
// items, extracts the new cursor, and yields a Batch.
func Stream(ctx context.Context, cfg StreamingAdapterConfig, resumeCursor *domain.CursorState) iter.Seq2[Batch, error] {
	return func(yield func(Batch, error) bool) {
		window := newDedupWindow(cfg.DedupWindowSize)

		state := make(map[string]any)
		if resumeCursor != nil {
			window.Seed(resumeCursor.Metadata.LastTransactionID)
			for k, v := range resumeCursor.Metadata.Custom {
				state[k] = v
			}
			rw := resumeCursor.ReplayWindow
			if rw == nil && cfg.ReplayWindow.Amount > 0 {
				rw = &cfg.ReplayWindow
			}
			seedResumeState(state, resumeCursor.Primary, rw)
		}

		for {
			page, err := cfg.FetchPage(ctx, state)
			if err != nil {
				yield(Batch{}, err)
				return
			}

			normalized := make([]RawNormalizedPair, 0, len(page.Items))
			fetched := len(page.Items)
			for _, item := range page.Items {
				mapped, mapErr := cfg.MapItem(item)
				if mapErr == SkipSignal {
					continue
				}
				if mapErr != nil {
					yield(Batch{}, mapErr)
					return
				}
				normalized = append(normalized, mapped...)
			}

			survivors, deduped := window.Filter(normalized)

			primary := domain.PrimaryCursor{Type: domain.CursorPageToken, Value: page.NextPageToken}
			if cfg.ExtractCursor != nil {
				primary = cfg.ExtractCursor(survivors, page)
			}

			custom := page.CustomMetadata
			if custom == nil && page.NextPageToken != "" {
				custom = map[string]any{"pageToken": page.NextPageToken}
			}

			var lastID string
			if len(survivors) > 0 {
				lastID = survivors[len(survivors)-1].ExternalID
			}

			batch := Batch{
				Items: survivors,
				Cursor: domain.CursorState{
					Primary:  primary,
					Metadata: domain.CursorMetadata{ProviderName: cfg.ProviderName, Custom: custom, LastTransactionID: lastID},
				},
				IsComplete: page.IsComplete,
				Stats:      BatchStats{Fetched: fetched, Deduplicated: deduped, Yielded: len(survivors)},
			}

			if !yield(batch, nil) {
				return
			}
			if page.IsComplete {
				return
			}

			state = custom
			if state == nil {
				state = make(map[string]any)
			}
		}
	}
}

// seedResumeState exposes the primary cursor to FetchPage under generic keys —
// "blockNumber", "timestamp", or "pageToken" — rewound by the replay window so the
// first fetch re-pulls a small deliberate overlap that the dedup window then removes.
// Keys already restored from Custom win: the owning provider's own pagination state is
// a more precise position than the primary cursor. Opaque (non-numeric) page tokens
// cannot be rewound and are passed through as-is.
func seedResumeState(state map[string]any, primary domain.PrimaryCursor, rw *domain.ReplayWindow) {
	rewind := func(unit domain.ReplayUnit) int64 {
		if rw != nil && rw.Unit == unit && rw.Amount > 0 {
			return int64(rw.Amount)
		}
		return 0
	}

	switch primary.Type {
	case domain.CursorBlockNumber:
		if _, taken := state["blockNumber"]; taken {
			return
		}
		if n, err := strconv.ParseInt(primary.Value, 10, 64); err == nil {
			if n -= rewind(domain.ReplayBlocks); n < 0 {
				n = 0
			}
			state["blockNumber"] = n
		}
	case domain.CursorTimestamp:
		if _, taken := state["timestamp"]; taken {
			return
		}
		if n, err := strconv.ParseInt(primary.Value, 10, 64); err == nil {
			if n -= rewind(domain.ReplaySeconds); n < 0 {
				n = 0
			}
			state["timestamp"] = n
		}
	case domain.CursorPageToken:
		if _, taken := state["pageToken"]; taken || primary.Value == "" {
			return
		}
		if n, err := strconv.ParseInt(primary.Value, 10, 64); err == nil {
			if n -= rewind(domain.ReplayPages); n < 1 {
				n = 1
			}
			state["pageToken"] = strconv.FormatInt(n, 10)
		} else {
			state["pageToken"] = primary.Value
		}
	}
}
