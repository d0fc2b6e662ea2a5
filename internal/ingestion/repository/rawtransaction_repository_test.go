package repository

import (
	"encoding/json"
	"testing"

	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/jbelanger/exitbook/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newImportFixture creates an account plus one started data source, the minimum the
// raw_transactions foreign keys require.
func newImportFixture(t *testing.T) (*RawTransactionRepository, *domain.Account, *domain.DataSource) {
	t.Helper()
	log := logger.New(logger.Config{Level: "error"})
	db := newTestDB(t)

	accounts := NewAccountRepository(db.Conn(), log)
	sources := NewDataSourceRepository(db.Conn(), log)
	raw := NewRawTransactionRepository(db.Conn(), log)

	acc := &domain.Account{AccountType: domain.AccountTypeBlockchain, SourceName: "ethereum", Identifier: "0xabc"}
	require.NoError(t, accounts.Create(acc))
	ds := &domain.DataSource{AccountID: acc.ID}
	require.NoError(t, sources.Create(ds))

	return raw, acc, ds
}

func rawRow(accountID, externalID, hash string) domain.RawTransaction {
	payload, _ := json.Marshal(map[string]string{"id": externalID})
	return domain.RawTransaction{
		AccountID:                 accountID,
		ExternalID:                externalID,
		BlockchainTransactionHash: hash,
		ProviderData:              payload,
		NormalizedData:            payload,
		StreamType:                "normal",
	}
}

func TestRawTransactionRepository_SaveBatch_IdempotentReimport(t *testing.T) {
	raw, acc, ds := newImportFixture(t)

	rows := []domain.RawTransaction{
		rawRow(acc.ID, "x1", "0xh1"),
		rawRow(acc.ID, "x2", "0xh2"),
	}

	first, err := raw.SaveBatch(ds.ID, rows)
	require.NoError(t, err)
	assert.Equal(t, SaveBatchResult{Inserted: 2, Skipped: 0}, first)

	second, err := raw.SaveBatch(ds.ID, rows)
	require.NoError(t, err)
	assert.Equal(t, SaveBatchResult{Inserted: 0, Skipped: 2}, second,
		"re-importing the same provider data must skip, not fail or duplicate")

	pending, err := raw.FetchPendingAll(acc.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

// The same on-chain transaction returned by a second provider under a different
// external id hits the partial unique index on the hash.
func TestRawTransactionRepository_SaveBatch_DuplicateHashAcrossProviders(t *testing.T) {
	raw, acc, ds := newImportFixture(t)

	first, err := raw.SaveBatch(ds.ID, []domain.RawTransaction{rawRow(acc.ID, "x1", "0xsame")})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Inserted)

	second, err := raw.SaveBatch(ds.ID, []domain.RawTransaction{rawRow(acc.ID, "x2", "0xsame")})
	require.NoError(t, err)
	assert.Equal(t, SaveBatchResult{Inserted: 0, Skipped: 1}, second)
}

func TestRawTransactionRepository_SaveBatch_NoHashRowsDoNotCollide(t *testing.T) {
	raw, acc, ds := newImportFixture(t)

	// Exchange rows carry no hash; the partial unique index must not treat two
	// hashless rows as duplicates of each other.
	result, err := raw.SaveBatch(ds.ID, []domain.RawTransaction{
		rawRow(acc.ID, "e1", ""),
		rawRow(acc.ID, "e2", ""),
	})
	require.NoError(t, err)
	assert.Equal(t, SaveBatchResult{Inserted: 2, Skipped: 0}, result)
}

func TestRawTransactionRepository_MarkProcessed(t *testing.T) {
	raw, acc, ds := newImportFixture(t)

	_, err := raw.SaveBatch(ds.ID, []domain.RawTransaction{
		rawRow(acc.ID, "x1", "0xh1"),
		rawRow(acc.ID, "x2", "0xh2"),
	})
	require.NoError(t, err)

	pending, err := raw.FetchPendingAll(acc.ID)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	require.NoError(t, raw.MarkProcessed([]string{pending[0].ID}))

	remaining, err := raw.FetchPendingAll(acc.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, pending[1].ExternalID, remaining[0].ExternalID)
}

func TestRawTransactionRepository_StreamPendingByHash_GroupsByHash(t *testing.T) {
	raw, acc, ds := newImportFixture(t)

	_, err := raw.SaveBatch(ds.ID, []domain.RawTransaction{
		rawRow(acc.ID, "a1", "0xaaa"),
		rawRow(acc.ID, "b1", "0xbbb"),
		rawRow(acc.ID, "a2", ""),
	})
	require.NoError(t, err)

	groups, err := raw.StreamPendingByHash(acc.ID)
	require.NoError(t, err)
	require.Len(t, groups, 3)
	for _, group := range groups {
		require.Len(t, group, 1)
	}

	seen := map[string]bool{}
	for _, group := range groups {
		seen[group[0].ExternalID] = true
	}
	assert.True(t, seen["a1"] && seen["b1"] && seen["a2"], "every pending row must appear in exactly one group")
}
