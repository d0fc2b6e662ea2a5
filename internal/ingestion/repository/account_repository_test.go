package repository

import (
	"path/filepath"
	"testing"

	"github.com/jbelanger/exitbook/internal/database"
	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/jbelanger/exitbook/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAccountRepository_CreateAndGet(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	db := newTestDB(t)
	repo := NewAccountRepository(db.Conn(), log)

	acc := &domain.Account{
		AccountType:  domain.AccountTypeBlockchain,
		SourceName:   "ethereum",
		Identifier:   "0xabc",
		ProviderName: "etherscan",
		LastCursor:   map[string]domain.CursorState{},
	}
	require.NoError(t, repo.Create(acc))
	assert.NotEmpty(t, acc.ID)

	fetched, err := repo.GetByID(acc.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, "ethereum", fetched.SourceName)
	assert.Equal(t, "etherscan", fetched.ProviderName)
}

func TestAccountRepository_GetByID_NotFound(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	db := newTestDB(t)
	repo := NewAccountRepository(db.Conn(), log)

	fetched, err := repo.GetByID("missing")
	require.NoError(t, err)
	assert.Nil(t, fetched)
}

func TestAccountRepository_UpdateCursor(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	db := newTestDB(t)
	repo := NewAccountRepository(db.Conn(), log)

	acc := &domain.Account{AccountType: domain.AccountTypeBlockchain, SourceName: "ethereum", Identifier: "0xabc"}
	require.NoError(t, repo.Create(acc))

	cursor := domain.CursorState{
		Primary:  domain.PrimaryCursor{Type: domain.CursorBlockNumber, Value: "100"},
		Metadata: domain.CursorMetadata{ProviderName: "etherscan"},
	}
	require.NoError(t, repo.UpdateCursor(acc.ID, "normal", cursor))

	fetched, err := repo.GetByID(acc.ID)
	require.NoError(t, err)
	got, ok := fetched.LastCursor["normal"]
	require.True(t, ok)
	assert.Equal(t, "100", got.Primary.Value)
	assert.Equal(t, "etherscan", got.Metadata.ProviderName)
}

func TestAccountRepository_ListBySource(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	db := newTestDB(t)
	repo := NewAccountRepository(db.Conn(), log)

	require.NoError(t, repo.Create(&domain.Account{AccountType: domain.AccountTypeBlockchain, SourceName: "ethereum", Identifier: "0x1"}))
	require.NoError(t, repo.Create(&domain.Account{AccountType: domain.AccountTypeBlockchain, SourceName: "ethereum", Identifier: "0x2"}))
	require.NoError(t, repo.Create(&domain.Account{AccountType: domain.AccountTypeExchangeAPI, SourceName: "binance", Identifier: "acct-1"}))

	accs, err := repo.ListBySource("ethereum")
	require.NoError(t, err)
	assert.Len(t, accs, 2)
}
