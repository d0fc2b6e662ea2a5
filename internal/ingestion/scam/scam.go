// Package scam provides a pluggable, non-destructive spam/scam annotator for
// ProcessedTransaction movements. The core only depends on the processor.ScamDetector
// interface; this package supplies one concrete, minimal
// implementation — a static contract-address blocklist — that a deployment can swap
// for a real heuristics engine without touching the processor base.
package scam

import (
	"fmt"

	"github.com/jbelanger/exitbook/internal/ingestion/domain"
)

// BlocklistDetector flags any movement whose AssetID names a contract address present
// in Blocked. It never removes a movement or a transaction; it only sets IsSpam and
// appends a note, per the "annotation only" invariant.
type BlocklistDetector struct {
	Blocked map[string]struct{}
}

// NewBlocklistDetector builds a detector from a list of canonical asset ids
// (e.g. "blockchain:ethereum:0xdead...").
func NewBlocklistDetector(blocked []string) *BlocklistDetector {
	set := make(map[string]struct{}, len(blocked))
	for _, id := range blocked {
		set[id] = struct{}{}
	}
	return &BlocklistDetector{Blocked: set}
}

// Annotate implements processor.ScamDetector. It groups each transaction's movements by
// asset id and flags the
// transaction if any movement's asset is blocked.
func (d *BlocklistDetector) Annotate(txs []domain.ProcessedTransaction) []domain.ProcessedTransaction {
	if len(d.Blocked) == 0 {
		return txs
	}
	for i := range txs {
		flagged := d.flagged(txs[i])
		if flagged == "" {
			continue
		}
		txs[i].IsSpam = true
		txs[i].Notes = append(txs[i].Notes, fmt.Sprintf("flagged spam: asset %s is on the blocklist", flagged))
	}
	return txs
}

func (d *BlocklistDetector) flagged(tx domain.ProcessedTransaction) string {
	for _, m := range tx.Movements.Inflows {
		if _, ok := d.Blocked[m.AssetID]; ok {
			return m.AssetID
		}
	}
	for _, m := range tx.Movements.Outflows {
		if _, ok := d.Blocked[m.AssetID]; ok {
			return m.AssetID
		}
	}
	return ""
}
