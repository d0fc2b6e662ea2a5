package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/rs/zerolog"
)

const transactionColumns = `id, account_id, external_id, datetime, timestamp, source, source_type, status, from_address, to_address, operation_category, operation_type, notes, blockchain_name, blockchain_height, blockchain_tx_hash, blockchain_confirmed, is_spam, created_at`

// TransactionRepository owns the derived-phase tables: transactions,
// transaction_movements, and transaction_fees.
type TransactionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewTransactionRepository(db *sql.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{db: db, log: log.With().Str("repo", "transaction").Logger()}
}

// SaveBatch persists txs (and their movements/fees) in one transaction. Each
// ProcessedTransaction must already satisfy HasContent(); the processor base is
// responsible for that invariant, not this repository.
func (r *TransactionRepository) SaveBatch(txs []domain.ProcessedTransaction) error {
	if len(txs) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction batch: %w", err)
	}
	defer tx.Rollback()

	txStmt, err := tx.Prepare(`INSERT INTO transactions (` + transactionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare transaction insert: %w", err)
	}
	defer txStmt.Close()

	movementStmt, err := tx.Prepare(`INSERT INTO transaction_movements (id, transaction_id, direction, asset_id, asset_symbol, gross_amount, net_amount) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare movement insert: %w", err)
	}
	defer movementStmt.Close()

	feeStmt, err := tx.Prepare(`INSERT INTO transaction_fees (id, transaction_id, asset_id, asset_symbol, amount, scope, settlement) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare fee insert: %w", err)
	}
	defer feeStmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, t := range txs {
		if t.ID == "" {
			t.ID = uuid.New().String()
		}

		notesJSON, err := json.Marshal(t.Notes)
		if err != nil {
			return fmt.Errorf("failed to marshal notes for %s: %w", t.ExternalID, err)
		}

		var blockchainName, blockchainHash sql.NullString
		var blockchainHeight sql.NullInt64
		var blockchainConfirmed sql.NullInt64
		if t.Blockchain != nil {
			blockchainName = nullString(t.Blockchain.Name)
			blockchainHash = nullString(t.Blockchain.TransactionHash)
			blockchainHeight = sql.NullInt64{Int64: t.Blockchain.BlockHeight, Valid: true}
			confirmed := int64(0)
			if t.Blockchain.IsConfirmed {
				confirmed = 1
			}
			blockchainConfirmed = sql.NullInt64{Int64: confirmed, Valid: true}
		}

		isSpam := 0
		if t.IsSpam {
			isSpam = 1
		}

		_, err = txStmt.Exec(
			t.ID, t.AccountID, t.ExternalID, t.Datetime, t.Timestamp, t.Source, t.SourceType,
			string(t.Status), nullString(t.From), nullString(t.To),
			t.Operation.Category, t.Operation.Type, string(notesJSON),
			blockchainName, blockchainHeight, blockchainHash, blockchainConfirmed,
			isSpam, now,
		)
		if err != nil {
			if isUniqueConstraintErr(err) {
				continue
			}
			return fmt.Errorf("failed to insert transaction %s: %w", t.ExternalID, err)
		}

		for _, m := range append(append([]domain.Movement{}, t.Movements.Inflows...), t.Movements.Outflows...) {
			if _, err := movementStmt.Exec(uuid.New().String(), t.ID, string(m.Direction), m.AssetID, m.AssetSymbol, m.GrossAmount, m.NetAmount); err != nil {
				return fmt.Errorf("failed to insert movement for transaction %s: %w", t.ExternalID, err)
			}
		}
		for _, f := range t.Fees {
			if _, err := feeStmt.Exec(uuid.New().String(), t.ID, f.AssetID, f.AssetSymbol, f.Amount, string(f.Scope), string(f.Settlement)); err != nil {
				return fmt.Errorf("failed to insert fee for transaction %s: %w", t.ExternalID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction batch: %w", err)
	}
	r.log.Debug().Int("count", len(txs)).Msg("processed transaction batch saved")
	return nil
}
