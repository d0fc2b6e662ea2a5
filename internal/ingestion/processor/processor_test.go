package processor

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/jbelanger/exitbook/internal/ingestion/ingesterr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testInput struct {
	ID     string
	Amount string
}

func validTx(externalID string) domain.ProcessedTransaction {
	return domain.ProcessedTransaction{
		ExternalID: externalID,
		Datetime:   "2024-06-01T00:00:00Z",
		Timestamp:  1717200000,
		Source:     "testsource",
		SourceType: "exchange",
		Status:     domain.TxSuccess,
		Operation:  domain.Operation{Category: "transfer", Type: "deposit"},
		Movements: domain.Movements{
			Inflows: []domain.Movement{{
				Direction: domain.DirectionInflow, AssetID: "exchange:testsource:BTC",
				AssetSymbol: "BTC", GrossAmount: "1", NetAmount: "1",
			}},
		},
	}
}

func newTestBase(transform Transform) *Base {
	return &Base{
		Name: "test",
		ValidateItem: func(item any) (string, error) {
			in, ok := item.(testInput)
			if !ok {
				return "", fmt.Errorf("expected testInput, got %T", item)
			}
			if in.ID == "" {
				return "id", fmt.Errorf("missing id")
			}
			return "", nil
		},
		Transform: transform,
	}
}

func TestBase_Process_HappyPath(t *testing.T) {
	b := newTestBase(func(batch []any, ctx Context) ([]domain.ProcessedTransaction, error) {
		out := make([]domain.ProcessedTransaction, 0, len(batch))
		for _, item := range batch {
			out = append(out, validTx(item.(testInput).ID))
		}
		return out, nil
	})

	out, err := b.Process([]any{testInput{ID: "a"}, testInput{ID: "b"}}, Context{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ExternalID)
}

func TestBase_Process_InputValidationCarriesFieldAndIndex(t *testing.T) {
	b := newTestBase(func(batch []any, ctx Context) ([]domain.ProcessedTransaction, error) {
		t.Fatal("transform must not run when validation fails")
		return nil, nil
	})

	_, err := b.Process([]any{testInput{ID: "ok"}, testInput{}}, Context{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ingesterr.ErrValidationFailed))

	var tagged *ingesterr.Error
	require.True(t, errors.As(err, &tagged))
	assert.Equal(t, "id", tagged.FieldPath)
	assert.Equal(t, 1, tagged.RecordIndex)
}

func TestBase_Process_ZeroOutputsForNonEmptyInputFails(t *testing.T) {
	b := newTestBase(func(batch []any, ctx Context) ([]domain.ProcessedTransaction, error) {
		return nil, nil
	})

	_, err := b.Process([]any{testInput{ID: "a"}}, Context{})
	require.Error(t, err, "silently dropping every row must abort the batch")
	assert.True(t, errors.Is(err, ingesterr.ErrValidationFailed))
}

func TestBase_Process_OutputValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.ProcessedTransaction)
	}{
		{"missing external id", func(tx *domain.ProcessedTransaction) { tx.ExternalID = "" }},
		{"missing datetime", func(tx *domain.ProcessedTransaction) { tx.Datetime = "" }},
		{"missing source", func(tx *domain.ProcessedTransaction) { tx.Source = "" }},
		{"invalid status", func(tx *domain.ProcessedTransaction) { tx.Status = "maybe" }},
		{"missing operation", func(tx *domain.ProcessedTransaction) { tx.Operation = domain.Operation{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBase(func(batch []any, ctx Context) ([]domain.ProcessedTransaction, error) {
				tx := validTx("a")
				tt.mutate(&tx)
				return []domain.ProcessedTransaction{tx}, nil
			})

			_, err := b.Process([]any{testInput{ID: "a"}}, Context{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ingesterr.ErrValidationFailed))
		})
	}
}

type annotateAll struct{}

func (annotateAll) Annotate(txs []domain.ProcessedTransaction) []domain.ProcessedTransaction {
	for i := range txs {
		txs[i].IsSpam = true
		txs[i].Notes = append(txs[i].Notes, "flagged by test detector")
	}
	return txs
}

func TestBase_Process_ScamAnnotationNeverDrops(t *testing.T) {
	b := newTestBase(func(batch []any, ctx Context) ([]domain.ProcessedTransaction, error) {
		return []domain.ProcessedTransaction{validTx("a"), validTx("b")}, nil
	})
	b.Scam = annotateAll{}

	out, err := b.Process([]any{testInput{ID: "a"}, testInput{ID: "b"}}, Context{})
	require.NoError(t, err)
	require.Len(t, out, 2, "annotation must never drop a transaction")
	for _, tx := range out {
		assert.True(t, tx.IsSpam)
		assert.NotEmpty(t, tx.Notes)
	}
}

func TestContext_HasAddress(t *testing.T) {
	ctx := Context{UserAddresses: map[string]struct{}{"0xabc": {}}}
	assert.True(t, ctx.HasAddress("0xabc"))
	assert.False(t, ctx.HasAddress("0xdef"))
	assert.False(t, Context{}.HasAddress("0xabc"))
}
