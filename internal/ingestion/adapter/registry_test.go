package adapter

import (
	"testing"

	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/jbelanger/exitbook/internal/ingestion/importer"
	"github.com/jbelanger/exitbook/internal/ingestion/processor"
	"github.com/jbelanger/exitbook/internal/ingestion/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct{ name string }

func (a *stubAdapter) Name() string { return a.name }
func (a *stubAdapter) CreateImporter(pm *provider.Manager, preferredProvider string) (importer.Importer, error) {
	return nil, nil
}
func (a *stubAdapter) CreateProcessor() (processor.Processor, error)          { return nil, nil }
func (a *stubAdapter) UnpackRows(rows []domain.RawTransaction) ([]any, error) { return nil, nil }
func (a *stubAdapter) BuildContext(account domain.Account) processor.Context  { return processor.Context{} }

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubAdapter{name: "ethereum"}))

	adp, err := r.Get("ethereum")
	require.NoError(t, err)
	assert.Equal(t, "ethereum", adp.Name())

	_, err = r.Get("solana")
	require.Error(t, err)
}

func TestRegistry_DuplicateRegistrationFails(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubAdapter{name: "ethereum"}))

	err := r.Register(&stubAdapter{name: "ethereum"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubAdapter{name: "ethereum"}))
	require.NoError(t, r.Register(&stubAdapter{name: "kraken"}))

	assert.ElementsMatch(t, []string{"ethereum", "kraken"}, r.Names())
}
