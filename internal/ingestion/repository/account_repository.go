// Package repository holds the sqlite-backed persistence layer for the ingestion core's
// four logical tables: accounts, data_sources, raw_transactions, and
// transactions/transaction_movements/transaction_fees.
package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/rs/zerolog"
)

const accountColumns = `id, account_type, source_name, identifier, provider_name, credentials, last_cursor, created_at, updated_at`

// AccountRepository owns the accounts table in the ledger database.
type AccountRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewAccountRepository returns a repository backed by db (the ledger database).
func NewAccountRepository(db *sql.DB, log zerolog.Logger) *AccountRepository {
	return &AccountRepository{db: db, log: log.With().Str("repo", "account").Logger()}
}

// Create inserts a new account, generating its ID if one isn't already set.
func (r *AccountRepository) Create(acc *domain.Account) error {
	if acc.ID == "" {
		acc.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	acc.CreatedAt = now
	acc.UpdatedAt = now

	cursorJSON, err := json.Marshal(acc.LastCursor)
	if err != nil {
		return fmt.Errorf("failed to marshal last_cursor: %w", err)
	}

	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query,
		acc.ID, string(acc.AccountType), acc.SourceName, acc.Identifier,
		nullString(acc.ProviderName), nullString(acc.Credentials), string(cursorJSON),
		acc.CreatedAt.Format(time.RFC3339), acc.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetByID fetches one account, or (nil, nil) if it doesn't exist.
func (r *AccountRepository) GetByID(id string) (*domain.Account, error) {
	row := r.db.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", id, err)
	}
	return acc, nil
}

// UpdateCursor persists acc.LastCursor[operationType] and bumps updated_at. A failure here
// is treated as a warning by the orchestrator, not a fatal import error, so
// callers should log rather than abort on a non-nil return.
func (r *AccountRepository) UpdateCursor(accountID, operationType string, cursor domain.CursorState) error {
	acc, err := r.GetByID(accountID)
	if err != nil {
		return err
	}
	if acc == nil {
		return fmt.Errorf("account %s not found", accountID)
	}
	if acc.LastCursor == nil {
		acc.LastCursor = make(map[string]domain.CursorState)
	}
	acc.LastCursor[operationType] = cursor

	cursorJSON, err := json.Marshal(acc.LastCursor)
	if err != nil {
		return fmt.Errorf("failed to marshal last_cursor: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.db.Exec(`UPDATE accounts SET last_cursor = ?, updated_at = ? WHERE id = ?`, string(cursorJSON), now, accountID)
	if err != nil {
		return fmt.Errorf("failed to update cursor for account %s: %w", accountID, err)
	}
	return nil
}

// ListBySource returns every account registered under sourceName, in insertion order.
func (r *AccountRepository) ListBySource(sourceName string) ([]*domain.Account, error) {
	rows, err := r.db.Query(`SELECT `+accountColumns+` FROM accounts WHERE source_name = ? ORDER BY created_at`, sourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts for source %s: %w", sourceName, err)
	}
	defer rows.Close()

	var out []*domain.Account
	for rows.Next() {
		acc, err := scanAccountFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	return scanAccountRow(row)
}

func scanAccountFromRows(rows *sql.Rows) (*domain.Account, error) {
	return scanAccountRow(rows)
}

func scanAccountRow(s rowScanner) (*domain.Account, error) {
	var acc domain.Account
	var accountType string
	var providerName, credentials sql.NullString
	var cursorJSON string

	err := s.Scan(&acc.ID, &accountType, &acc.SourceName, &acc.Identifier,
		&providerName, &credentials, &cursorJSON, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return nil, err
	}

	acc.AccountType = domain.AccountType(accountType)
	acc.ProviderName = providerName.String
	acc.Credentials = credentials.String

	acc.LastCursor = make(map[string]domain.CursorState)
	if cursorJSON != "" {
		if err := json.Unmarshal([]byte(cursorJSON), &acc.LastCursor); err != nil {
			return nil, fmt.Errorf("failed to unmarshal last_cursor: %w", err)
		}
	}
	return &acc, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
