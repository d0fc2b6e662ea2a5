package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// IntegrityValidator runs consistency checks across the ingestion schema that the
// unique indexes and foreign keys alone cannot express (e.g. cross-table orphans).
type IntegrityValidator struct {
	db *sql.DB
}

// ValidationResult contains the results of all validation checks.
type ValidationResult struct {
	IsValid              bool
	OrphanedRawTx        []string // raw_transactions.id with no matching data_sources row
	OrphanedMovements    []string // transaction_movements.id with no matching transactions row
	MultipleIncomplete   []string // account_id with more than one non-terminal data_source
	EmptyProcessedTx      []string // transactions.id with neither movements nor fees
}

// NewIntegrityValidator creates a new integrity validator.
func NewIntegrityValidator(db *sql.DB) *IntegrityValidator {
	return &IntegrityValidator{db: db}
}

// ValidateRawTransactionParentage finds raw_transactions rows whose data_source_id does
// not reference an existing data_sources row.
func (v *IntegrityValidator) ValidateRawTransactionParentage() ([]string, error) {
	rows, err := v.db.Query(`
		SELECT rt.id FROM raw_transactions rt
		LEFT JOIN data_sources ds ON rt.data_source_id = ds.id
		WHERE ds.id IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query orphaned raw transactions: %w", err)
	}
	defer rows.Close()

	var orphaned []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan orphaned raw transaction: %w", err)
		}
		orphaned = append(orphaned, id)
	}
	return orphaned, rows.Err()
}

// ValidateMovementParentage finds transaction_movements rows whose transaction_id does
// not reference an existing transactions row.
func (v *IntegrityValidator) ValidateMovementParentage() ([]string, error) {
	rows, err := v.db.Query(`
		SELECT tm.id FROM transaction_movements tm
		LEFT JOIN transactions t ON tm.transaction_id = t.id
		WHERE t.id IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query orphaned movements: %w", err)
	}
	defer rows.Close()

	var orphaned []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan orphaned movement: %w", err)
		}
		orphaned = append(orphaned, id)
	}
	return orphaned, rows.Err()
}

// ValidateAtMostOneIncompleteDataSource checks that at most one
// non-terminal (started/failed) data_sources row per account.
func (v *IntegrityValidator) ValidateAtMostOneIncompleteDataSource() ([]string, error) {
	rows, err := v.db.Query(`
		SELECT account_id FROM data_sources
		WHERE status IN ('started', 'failed')
		GROUP BY account_id
		HAVING COUNT(*) > 1
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts with multiple incomplete imports: %w", err)
	}
	defer rows.Close()

	var accounts []string
	for rows.Next() {
		var accountID string
		if err := rows.Scan(&accountID); err != nil {
			return nil, fmt.Errorf("failed to scan account id: %w", err)
		}
		accounts = append(accounts, accountID)
	}
	return accounts, rows.Err()
}

// ValidateProcessedTransactionsNonEmpty checks the ProcessedTransaction invariant:
// every row has at least one movement or fee.
func (v *IntegrityValidator) ValidateProcessedTransactionsNonEmpty() ([]string, error) {
	rows, err := v.db.Query(`
		SELECT t.id FROM transactions t
		LEFT JOIN transaction_movements tm ON tm.transaction_id = t.id
		LEFT JOIN transaction_fees tf ON tf.transaction_id = t.id
		WHERE tm.id IS NULL AND tf.id IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query empty processed transactions: %w", err)
	}
	defer rows.Close()

	var empty []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan transaction id: %w", err)
		}
		empty = append(empty, id)
	}
	return empty, rows.Err()
}

// ValidateAll runs every check and returns a comprehensive result.
func (v *IntegrityValidator) ValidateAll() (*ValidationResult, error) {
	result := &ValidationResult{IsValid: true}

	orphanedRaw, err := v.ValidateRawTransactionParentage()
	if err != nil {
		return nil, err
	}
	result.OrphanedRawTx = orphanedRaw
	if len(orphanedRaw) > 0 {
		result.IsValid = false
	}

	orphanedMovements, err := v.ValidateMovementParentage()
	if err != nil {
		return nil, err
	}
	result.OrphanedMovements = orphanedMovements
	if len(orphanedMovements) > 0 {
		result.IsValid = false
	}

	multiIncomplete, err := v.ValidateAtMostOneIncompleteDataSource()
	if err != nil {
		return nil, err
	}
	result.MultipleIncomplete = multiIncomplete
	if len(multiIncomplete) > 0 {
		result.IsValid = false
	}

	emptyTx, err := v.ValidateProcessedTransactionsNonEmpty()
	if err != nil {
		return nil, err
	}
	result.EmptyProcessedTx = emptyTx
	if len(emptyTx) > 0 {
		result.IsValid = false
	}

	return result, nil
}

// FormatErrors formats validation errors for display/logging.
func (r *ValidationResult) FormatErrors() string {
	if r.IsValid {
		return "All validations passed"
	}

	var parts []string
	if len(r.OrphanedRawTx) > 0 {
		parts = append(parts, fmt.Sprintf("Orphaned raw transactions (%d): %s", len(r.OrphanedRawTx), strings.Join(r.OrphanedRawTx, ", ")))
	}
	if len(r.OrphanedMovements) > 0 {
		parts = append(parts, fmt.Sprintf("Orphaned movements (%d): %s", len(r.OrphanedMovements), strings.Join(r.OrphanedMovements, ", ")))
	}
	if len(r.MultipleIncomplete) > 0 {
		parts = append(parts, fmt.Sprintf("Accounts with multiple incomplete imports (%d): %s", len(r.MultipleIncomplete), strings.Join(r.MultipleIncomplete, ", ")))
	}
	if len(r.EmptyProcessedTx) > 0 {
		parts = append(parts, fmt.Sprintf("Empty processed transactions (%d): %s", len(r.EmptyProcessedTx), strings.Join(r.EmptyProcessedTx, ", ")))
	}

	return strings.Join(parts, "\n")
}
