// Package processor implements the shared processing pipeline: input validation, a
// pure transform step supplied by each concrete source processor, output validation,
// and optional scam annotation.
package processor

import (
	"fmt"
	"iter"

	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/jbelanger/exitbook/internal/ingestion/ingesterr"
)

// BatchSource is the lazy sequence of raw-row groups a batch provider hands to the
// process service: one group per hash for the blockchain
// default, one bounded chunk for the exchange default, or whatever grouping a source
// adapter's custom batch provider declares.
type BatchSource iter.Seq2[[]domain.RawTransaction, error]

// Context carries the account-scoped information a concrete transform needs.
// UserAddresses/PrimaryAddress are populated for blockchain accounts; both are empty
// for exchange accounts.
type Context struct {
	UserAddresses  map[string]struct{}
	PrimaryAddress string
	AccountID      string
	SourceName     string
}

// HasAddress reports whether addr (case-sensitivity is the caller's concern; callers
// normalize before inserting into UserAddresses) belongs to the account being processed.
func (c Context) HasAddress(addr string) bool {
	_, ok := c.UserAddresses[addr]
	return ok
}

// Processor is the narrow public contract every concrete source processor satisfies by
// embedding *Base and supplying ValidateItem + Transform (optional dependencies
// like token metadata or scam detection are injected into the concrete adapter's
// constructor, never into this interface).
type Processor interface {
	Process(batch []any, ctx Context) ([]domain.ProcessedTransaction, error)
}

// Validator checks one already-type-asserted batch entry against the processor's
// declared input schema. It returns a field path (dotted, e.g. "movements.inflows[0].assetId")
// on failure so the wrapping error carries the failing field path and record index.
type Validator func(item any) (fieldPath string, err error)

// Transform is the concrete, pure per-source transformation: normalized batch entries in,
// ProcessedTransaction rows out. It must be deterministic: identical
// input + context yields identical output modulo clock-independent fields.
type Transform func(batch []any, ctx Context) ([]domain.ProcessedTransaction, error)

// ScamDetector annotates movements grouped by contract address with IsSpam/notes. It
// never drops a transaction; annotation only.
type ScamDetector interface {
	Annotate(txs []domain.ProcessedTransaction) []domain.ProcessedTransaction
}

// Base wraps a concrete source's Transform with the shared input/output validation and
// optional scam annotation pipeline. Concrete processors embed *Base and expose their
// own constructor; they never override Process.
type Base struct {
	Name         string
	ValidateItem Validator
	Transform    Transform
	Scam         ScamDetector // nil if the adapter didn't wire a detector
}

// Process implements the public Processor contract.
func (b *Base) Process(batch []any, ctx Context) ([]domain.ProcessedTransaction, error) {
	for i, item := range batch {
		if b.ValidateItem == nil {
			continue
		}
		if fieldPath, err := b.ValidateItem(item); err != nil {
			return nil, ingesterr.ValidationFailed(fieldPath, i, fmt.Errorf("%s: %w", b.Name, err))
		}
	}

	out, err := b.Transform(batch, ctx)
	if err != nil {
		return nil, err
	}

	if len(batch) > 0 && len(out) == 0 {
		return nil, ingesterr.ValidationFailed("", 0, fmt.Errorf("%s: transform produced zero outputs for %d input rows", b.Name, len(batch)))
	}

	for i, tx := range out {
		if err := validateOutput(tx); err != nil {
			return nil, ingesterr.ValidationFailed("", i, fmt.Errorf("%s: %w", b.Name, err))
		}
	}

	if b.Scam != nil {
		out = b.Scam.Annotate(out)
	}

	return out, nil
}

// validateOutput is the shared ProcessedTransactionSchema check every concrete
// processor's output passes through, independent of source.
func validateOutput(tx domain.ProcessedTransaction) error {
	if tx.ExternalID == "" {
		return fmt.Errorf("processed transaction missing externalId")
	}
	if tx.Datetime == "" {
		return fmt.Errorf("processed transaction %q missing datetime", tx.ExternalID)
	}
	if tx.Source == "" {
		return fmt.Errorf("processed transaction %q missing source", tx.ExternalID)
	}
	switch tx.Status {
	case domain.TxSuccess, domain.TxFailed, domain.TxPending:
	default:
		return fmt.Errorf("processed transaction %q has invalid status %q", tx.ExternalID, tx.Status)
	}
	if tx.Operation.Category == "" || tx.Operation.Type == "" {
		return fmt.Errorf("processed transaction %q missing operation category/type", tx.ExternalID)
	}
	return nil
}
