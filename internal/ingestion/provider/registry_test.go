package provider

import (
	"testing"

	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMetadata(domainName, name string) Metadata {
	return Metadata{
		Name:    name,
		Domain:  domainName,
		BaseURL: "https://example.test/" + name,
		Capabilities: Capabilities{
			SupportedOperations:  []OperationKind{OpTransactionHistory},
			SupportedCursorTypes: []domain.CursorType{domain.CursorBlockNumber},
		},
		DefaultConfig: Config{Retries: 3},
	}
}

func noopFactory(name string) Factory {
	return func(cfg Config) (Provider, error) {
		return &fakeProvider{name: name}, nil
	}
}

func TestRegistry_DuplicateRegistrationFails(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testMetadata("ethereum", "etherscan"), noopFactory("etherscan")))

	err := r.Register(testMetadata("ethereum", "etherscan"), noopFactory("etherscan"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	// Same name under a different domain is fine.
	require.NoError(t, r.Register(testMetadata("polygon", "etherscan"), noopFactory("etherscan")))
}

func TestRegistry_CreateProvidersForDomain_RegistrationOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testMetadata("ethereum", "etherscan"), noopFactory("etherscan")))
	require.NoError(t, r.Register(testMetadata("ethereum", "alchemygo"), noopFactory("alchemygo")))

	providers, err := r.CreateProvidersForDomain("ethereum", "")
	require.NoError(t, err)
	require.Len(t, providers, 2)
	assert.Equal(t, "etherscan", providers[0].Name())
	assert.Equal(t, "alchemygo", providers[1].Name())
}

func TestRegistry_CreateProvidersForDomain_PreferredOnly(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testMetadata("ethereum", "etherscan"), noopFactory("etherscan")))
	require.NoError(t, r.Register(testMetadata("ethereum", "alchemygo"), noopFactory("alchemygo")))

	providers, err := r.CreateProvidersForDomain("ethereum", "alchemygo")
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, "alchemygo", providers[0].Name())
}

func TestRegistry_CreateProvidersForDomain_UnknownDomainIsEmpty(t *testing.T) {
	r := NewRegistry()
	providers, err := r.CreateProvidersForDomain("solana", "")
	require.NoError(t, err)
	assert.Empty(t, providers)
}

func TestRegistry_CreateDefaultConfig_FallsBackToMetadataBaseURL(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testMetadata("ethereum", "etherscan"), noopFactory("etherscan")))

	cfg, err := r.CreateDefaultConfig("ethereum", "etherscan")
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/etherscan", cfg.BaseURL)
	assert.Equal(t, 3, cfg.Retries)

	_, err = r.CreateDefaultConfig("ethereum", "missing")
	require.Error(t, err)
}
