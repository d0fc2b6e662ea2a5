package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/rs/zerolog"
)

const rawTransactionColumns = `id, data_source_id, account_id, external_id, blockchain_transaction_hash, provider_data, normalized_data, processing_status, stream_type, created_at`

// SaveBatchResult is the {inserted, skipped} split the orchestrator needs to log
// meaningful progress without treating duplicates as failures.
type SaveBatchResult struct {
	Inserted int
	Skipped  int
}

// RawTransactionRepository owns the raw_transactions table: the immutable, append-only
// store of exactly what each provider returned.
type RawTransactionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewRawTransactionRepository(db *sql.DB, log zerolog.Logger) *RawTransactionRepository {
	return &RawTransactionRepository{db: db, log: log.With().Str("repo", "raw_transaction").Logger()}
}

// SaveBatch inserts rows inside a single transaction so a crash mid-batch never leaves
// partial rows. A row whose (account_id, external_id) or
// (account_id, blockchain_transaction_hash) already exists is counted as skipped, not
// failed — raw data is immutable, so an existing row is never updated.
func (r *RawTransactionRepository) SaveBatch(dataSourceID string, rows []domain.RawTransaction) (SaveBatchResult, error) {
	var result SaveBatchResult
	if len(rows) == 0 {
		return result, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return result, fmt.Errorf("failed to begin raw transaction batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO raw_transactions (` + rawTransactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return result, fmt.Errorf("failed to prepare raw transaction insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, row := range rows {
		if row.ID == "" {
			row.ID = uuid.New().String()
		}
		if row.ProcessingStatus == "" {
			row.ProcessingStatus = domain.ProcessingPending
		}

		_, err := stmt.Exec(
			row.ID, dataSourceID, row.AccountID, row.ExternalID,
			nullString(row.BlockchainTransactionHash),
			string(row.ProviderData), string(row.NormalizedData),
			string(row.ProcessingStatus), row.StreamType, now,
		)
		if err != nil {
			if isUniqueConstraintErr(err) {
				result.Skipped++
				continue
			}
			return result, fmt.Errorf("failed to insert raw transaction %s: %w", row.ExternalID, err)
		}
		result.Inserted++
	}

	if err := tx.Commit(); err != nil {
		return SaveBatchResult{}, fmt.Errorf("failed to commit raw transaction batch: %w", err)
	}

	r.log.Debug().Str("data_source_id", dataSourceID).Int("inserted", result.Inserted).Int("skipped", result.Skipped).Msg("raw transaction batch saved")
	return result, nil
}

// StreamPendingByHash yields raw rows for accountID whose processing_status is "pending",
// grouped so every row sharing a non-null blockchain_transaction_hash is yielded together
// (the default blockchain batch-provider strategy). Rows with no hash are
// each their own group, in created_at order.
func (r *RawTransactionRepository) StreamPendingByHash(accountID string) ([][]domain.RawTransaction, error) {
	rows, err := r.db.Query(`
		SELECT `+rawTransactionColumns+`
		FROM raw_transactions
		WHERE account_id = ? AND processing_status = 'pending'
		ORDER BY blockchain_transaction_hash IS NULL, blockchain_transaction_hash, created_at
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to stream pending raw transactions for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var groups [][]domain.RawTransaction
	var currentHash string
	var currentGroup []domain.RawTransaction

	for rows.Next() {
		rt, err := scanRawTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan raw transaction: %w", err)
		}

		hash := rt.BlockchainTransactionHash
		if hash == "" {
			if len(currentGroup) > 0 {
				groups = append(groups, currentGroup)
				currentGroup = nil
			}
			groups = append(groups, []domain.RawTransaction{*rt})
			continue
		}
		if hash != currentHash || currentGroup == nil {
			if len(currentGroup) > 0 {
				groups = append(groups, currentGroup)
			}
			currentHash = hash
			currentGroup = nil
		}
		currentGroup = append(currentGroup, *rt)
	}
	if len(currentGroup) > 0 {
		groups = append(groups, currentGroup)
	}
	return groups, rows.Err()
}

// FetchPendingAll returns every pending raw row for accountID, unordered by hash — the
// all-at-once batch-provider strategy exchanges use.
func (r *RawTransactionRepository) FetchPendingAll(accountID string) ([]domain.RawTransaction, error) {
	rows, err := r.db.Query(`
		SELECT `+rawTransactionColumns+`
		FROM raw_transactions
		WHERE account_id = ? AND processing_status = 'pending'
		ORDER BY created_at
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending raw transactions for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var out []domain.RawTransaction
	for rows.Next() {
		rt, err := scanRawTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan raw transaction: %w", err)
		}
		out = append(out, *rt)
	}
	return out, rows.Err()
}

// MarkProcessed flips processing_status to "processed" for every id, inside one
// transaction. Call this in the same logical unit as persisting the derived rows so a
// crash between the two leaves the raw rows "pending" (safe to reprocess) rather than
// silently skipped.
func (r *RawTransactionRepository) MarkProcessed(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin mark-processed transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE raw_transactions SET processing_status = 'processed' WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare mark-processed update: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.Exec(id); err != nil {
			return fmt.Errorf("failed to mark raw transaction %s processed: %w", id, err)
		}
	}
	return tx.Commit()
}

func scanRawTransaction(rows *sql.Rows) (*domain.RawTransaction, error) {
	var rt domain.RawTransaction
	var hash sql.NullString
	var status string
	var providerData, normalizedData string

	err := rows.Scan(&rt.ID, &rt.DataSourceID, &rt.AccountID, &rt.ExternalID, &hash,
		&providerData, &normalizedData, &status, &rt.StreamType, &rt.CreatedAt)
	if err != nil {
		return nil, err
	}

	rt.BlockchainTransactionHash = hash.String
	rt.ProviderData = []byte(providerData)
	rt.NormalizedData = []byte(normalizedData)
	rt.ProcessingStatus = domain.ProcessingStatus(status)
	return &rt, nil
}

// isUniqueConstraintErr string-matches because neither the stdlib database/sql nor
// modernc.org/sqlite exposes a portable error type for constraint violations.
func isUniqueConstraintErr(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint")
}
