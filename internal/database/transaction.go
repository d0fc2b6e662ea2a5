package database

import (
	"database/sql"
	"errors"
	"fmt"
)

// WithTransaction runs fn inside a transaction on conn, committing on a nil return and
// rolling back otherwise. A panic inside fn is recovered, turned into an error, and also
// triggers a rollback, so callers never need their own recover().
func WithTransaction(conn *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	if conn == nil {
		return errors.New("database/transaction: nil database connection")
	}

	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("database/transaction: failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("database/transaction: recovered from panic: %v", p)
		}
	}()

	if fnErr := fn(tx); fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("database/transaction: failed after rollback error %v for: %w", rbErr, fnErr)
		}
		return fmt.Errorf("database/transaction: %w", fnErr)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("database/transaction: failed to commit transaction: %w", commitErr)
	}

	return nil
}
