// Package importer defines the per-source lazy producer contract: each source adapter
// supplies an Importer that turns provider batches (or, for CSV sources, files on
// disk) into ImportBatch values the orchestrator persists atomically.
package importer

import (
	"context"
	"iter"

	"github.com/jbelanger/exitbook/internal/ingestion/domain"
)

// Params is what the orchestrator hands to an Importer for one account's import run.
type Params struct {
	Account domain.Account
	// StreamTypes restricts which operationType streams to pull this run, e.g.
	// {"normal", "internal", "token"}. Empty means "the importer's own default set".
	StreamTypes []string
}

// ImportBatch is one persistence boundary: the orchestrator writes and commits the
// whole batch atomically, then advances Account.LastCursor[OperationType] to Cursor.
type ImportBatch struct {
	RawTransactions []domain.RawTransaction
	OperationType   string
	Cursor          domain.CursorState
	IsComplete      bool
}

// Importer is implemented once per source (one per blockchain, one per exchange, one
// for CSV directories). ImportStreaming keeps cursors monotonic per
// operationType/provider, gives each stream a dedicated cursor slot, and, for CSV
// sources, yields one batch per file with symlink-cycle detection during directory
// traversal.
type Importer interface {
	ImportStreaming(ctx context.Context, params Params) iter.Seq2[ImportBatch, error]
}
