package repository

import (
	"testing"

	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/jbelanger/exitbook/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDataSourceFixture(t *testing.T) (*DataSourceRepository, *domain.Account) {
	t.Helper()
	log := logger.New(logger.Config{Level: "error"})
	db := newTestDB(t)

	accounts := NewAccountRepository(db.Conn(), log)
	acc := &domain.Account{AccountType: domain.AccountTypeBlockchain, SourceName: "ethereum", Identifier: "0xabc"}
	require.NoError(t, accounts.Create(acc))

	return NewDataSourceRepository(db.Conn(), log), acc
}

func TestDataSourceRepository_FindLatestIncomplete(t *testing.T) {
	sources, acc := newDataSourceFixture(t)

	found, err := sources.FindLatestIncomplete(acc.ID)
	require.NoError(t, err)
	assert.Nil(t, found, "a fresh account has no incomplete runs")

	ds := &domain.DataSource{AccountID: acc.ID}
	require.NoError(t, sources.Create(ds))

	found, err = sources.FindLatestIncomplete(acc.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, ds.ID, found.ID)
	assert.Equal(t, domain.DataSourceStarted, found.Status)

	require.NoError(t, sources.Finalize(ds.ID, domain.DataSourceCompleted, "", domain.ImportResultMetadata{TransactionsImported: 7}))

	found, err = sources.FindLatestIncomplete(acc.ID)
	require.NoError(t, err)
	assert.Nil(t, found, "a completed run is not incomplete")
}

func TestDataSourceRepository_FindLatestIncomplete_FailedRunResumes(t *testing.T) {
	sources, acc := newDataSourceFixture(t)

	ds := &domain.DataSource{AccountID: acc.ID}
	require.NoError(t, sources.Create(ds))
	require.NoError(t, sources.Finalize(ds.ID, domain.DataSourceFailed, "stream exploded", domain.ImportResultMetadata{TransactionsImported: 3}))

	found, err := sources.FindLatestIncomplete(acc.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, domain.DataSourceFailed, found.Status)
	assert.Equal(t, 3, found.ImportResultMetadata.TransactionsImported,
		"the running total must survive a failure so the resumed run continues counting")
}

func TestDataSourceRepository_HasBlockingImport(t *testing.T) {
	tests := []struct {
		name   string
		status domain.DataSourceStatus
		blocks bool
	}{
		{"started blocks", domain.DataSourceStarted, true},
		{"failed blocks", domain.DataSourceFailed, true},
		{"completed does not block", domain.DataSourceCompleted, false},
		{"completed_with_warnings does not block", domain.DataSourceCompletedWithWarnings, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sources, acc := newDataSourceFixture(t)

			ds := &domain.DataSource{AccountID: acc.ID}
			require.NoError(t, sources.Create(ds))
			if tt.status != domain.DataSourceStarted {
				require.NoError(t, sources.Finalize(ds.ID, tt.status, "", domain.ImportResultMetadata{}))
			}

			blocked, err := sources.HasBlockingImport(acc.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.blocks, blocked)
		})
	}
}

func TestDataSourceRepository_Finalize_CompletedAtOnlyOnSuccess(t *testing.T) {
	sources, acc := newDataSourceFixture(t)

	ds := &domain.DataSource{AccountID: acc.ID}
	require.NoError(t, sources.Create(ds))
	require.NoError(t, sources.Finalize(ds.ID, domain.DataSourceFailed, "boom", domain.ImportResultMetadata{}))

	found, err := sources.FindLatestIncomplete(acc.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Empty(t, found.CompletedAt, "a failed run has no completion time")
	assert.Equal(t, "boom", found.ErrorMessage)

	require.NoError(t, sources.MarkStarted(ds.ID))
	found, err = sources.FindLatestIncomplete(acc.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, domain.DataSourceStarted, found.Status)
	assert.Empty(t, found.ErrorMessage, "resuming clears the prior failure message")
}
