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

const dataSourceColumns = `id, account_id, status, started_at, completed_at, error_message, import_result_metadata`

// DataSourceRepository owns the data_sources table, the per-import run ledger that the
// orchestrator's resume logic and the process service's incomplete-import guard both
// read.
type DataSourceRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewDataSourceRepository(db *sql.DB, log zerolog.Logger) *DataSourceRepository {
	return &DataSourceRepository{db: db, log: log.With().Str("repo", "data_source").Logger()}
}

// Create starts a new data source in status "started".
func (r *DataSourceRepository) Create(ds *domain.DataSource) error {
	if ds.ID == "" {
		ds.ID = uuid.New().String()
	}
	if ds.Status == "" {
		ds.Status = domain.DataSourceStarted
	}
	if ds.StartedAt == "" {
		ds.StartedAt = time.Now().UTC().Format(time.RFC3339)
	}

	metaJSON, err := json.Marshal(ds.ImportResultMetadata)
	if err != nil {
		return fmt.Errorf("failed to marshal import_result_metadata: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO data_sources (`+dataSourceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ds.ID, ds.AccountID, string(ds.Status), ds.StartedAt, nullString(ds.CompletedAt), nullString(ds.ErrorMessage), string(metaJSON))
	if err != nil {
		return fmt.Errorf("failed to create data source: %w", err)
	}
	return nil
}

// FindLatestIncomplete returns the most recently started data source for accountID whose
// status is "started" or "failed" (the orchestrator resumes it instead of starting a fresh
// run), or (nil, nil) if every prior run for this account finished cleanly.
func (r *DataSourceRepository) FindLatestIncomplete(accountID string) (*domain.DataSource, error) {
	row := r.db.QueryRow(`
		SELECT `+dataSourceColumns+`
		FROM data_sources
		WHERE account_id = ? AND status IN ('started', 'failed')
		ORDER BY started_at DESC
		LIMIT 1
	`, accountID)

	ds, err := scanDataSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest incomplete data source for account %s: %w", accountID, err)
	}
	return ds, nil
}

// HasBlockingImport reports whether accountID has any data source in a status that must
// block processing ("started" or "failed"; "completed_with_warnings" does
// not block).
func (r *DataSourceRepository) HasBlockingImport(accountID string) (bool, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM data_sources
		WHERE account_id = ? AND status IN ('started', 'failed')
	`, accountID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check blocking imports for account %s: %w", accountID, err)
	}
	return count > 0, nil
}

// MarkStarted resets ds back to "started" (used when resuming an incomplete run).
func (r *DataSourceRepository) MarkStarted(id string) error {
	_, err := r.db.Exec(`UPDATE data_sources SET status = ?, error_message = NULL WHERE id = ?`, string(domain.DataSourceStarted), id)
	if err != nil {
		return fmt.Errorf("failed to mark data source %s started: %w", id, err)
	}
	return nil
}

// Finalize transitions ds to a terminal (or warning) status, recording errMsg and the
// import result metadata. completedAt is left empty for "failed".
func (r *DataSourceRepository) Finalize(id string, status domain.DataSourceStatus, errMsg string, meta domain.ImportResultMetadata) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal import_result_metadata: %w", err)
	}

	var completedAt sql.NullString
	if status == domain.DataSourceCompleted || status == domain.DataSourceCompletedWithWarnings {
		completedAt = nullString(time.Now().UTC().Format(time.RFC3339))
	}

	_, err = r.db.Exec(`
		UPDATE data_sources
		SET status = ?, completed_at = ?, error_message = ?, import_result_metadata = ?
		WHERE id = ?
	`, string(status), completedAt, nullString(errMsg), string(metaJSON), id)
	if err != nil {
		return fmt.Errorf("failed to finalize data source %s: %w", id, err)
	}
	r.log.Info().Str("data_source_id", id).Str("status", string(status)).Msg("data source finalized")
	return nil
}

func scanDataSource(row rowScanner) (*domain.DataSource, error) {
	var ds domain.DataSource
	var status string
	var completedAt, errorMessage sql.NullString
	var metaJSON string

	err := row.Scan(&ds.ID, &ds.AccountID, &status, &ds.StartedAt, &completedAt, &errorMessage, &metaJSON)
	if err != nil {
		return nil, err
	}

	ds.Status = domain.DataSourceStatus(status)
	ds.CompletedAt = completedAt.String
	ds.ErrorMessage = errorMessage.String

	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &ds.ImportResultMetadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal import_result_metadata: %w", err)
		}
	}
	return &ds, nil
}
