// Package orchestrator drives one account's streaming import from start to finalize:
// resume an incomplete run if one exists, pull batches from the source's Importer,
// persist raw rows and cursor per batch, and finalize the DataSource as completed,
// completed_with_warnings, or failed.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/jbelanger/exitbook/internal/events"
	"github.com/jbelanger/exitbook/internal/ingestion/adapter"
	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/jbelanger/exitbook/internal/ingestion/importer"
	"github.com/jbelanger/exitbook/internal/ingestion/provider"
	"github.com/jbelanger/exitbook/internal/ingestion/repository"
	"github.com/rs/zerolog"
)

// Orchestrator is built once and reused across accounts; all of its dependencies are
// safe for sequential reuse (the whole pipeline runs on one logical task tree, with no
// cross-account parallelism).
type Orchestrator struct {
	accounts *repository.AccountRepository
	sources  *repository.DataSourceRepository
	raw      *repository.RawTransactionRepository
	adapters *adapter.Registry
	manager  *provider.Manager
	events   *events.Manager
	log      zerolog.Logger
}

// New builds an Orchestrator.
func New(
	accounts *repository.AccountRepository,
	sources *repository.DataSourceRepository,
	raw *repository.RawTransactionRepository,
	adapters *adapter.Registry,
	manager *provider.Manager,
	evt *events.Manager,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		accounts: accounts,
		sources:  sources,
		raw:      raw,
		adapters: adapters,
		manager:  manager,
		events:   evt,
		log:      log.With().Str("component", "import_orchestrator").Logger(),
	}
}

// ImportAccount runs one streaming import to completion, resuming an incomplete prior
// run if one exists. It recovers from any panic thrown by importer or
// adapter code, converting it into a terminal error and finalizing the DataSource as
// failed. The orchestrator's outermost shell is the only place an unexpected fault is
// caught rather than propagated as a typed error.
func (o *Orchestrator) ImportAccount(ctx context.Context, account *domain.Account) (err error) {
	log := o.log.With().Str("account_id", account.ID).Str("source", account.SourceName).Logger()

	ds, total, resumed, err := o.resumeOrCreate(account.ID)
	if err != nil {
		return fmt.Errorf("failed to resolve data source for account %s: %w", account.ID, err)
	}

	defer func() {
		if r := recover(); r != nil {
			finalizeErr := fmt.Sprintf("panic during import: %v", r)
			_ = o.sources.Finalize(ds.ID, domain.DataSourceFailed, finalizeErr, domain.ImportResultMetadata{TransactionsImported: total})
			o.events.EmitTyped(events.ImportFailed, "import_orchestrator", &events.ImportLifecycleData{
				AccountID: account.ID, DataSourceID: ds.ID, Status: string(domain.DataSourceFailed), Message: finalizeErr,
			})
			err = fmt.Errorf("import panicked for account %s: %v", account.ID, r)
		}
	}()

	if resumed {
		o.events.EmitTyped(events.ImportResumed, "import_orchestrator", &events.ImportLifecycleData{
			AccountID: account.ID, DataSourceID: ds.ID, Status: string(domain.DataSourceStarted),
		})
	} else {
		o.events.EmitTyped(events.ImportStarted, "import_orchestrator", &events.ImportLifecycleData{
			AccountID: account.ID, DataSourceID: ds.ID, Status: string(domain.DataSourceStarted),
		})
	}

	adp, adpErr := o.adapters.Get(account.SourceName)
	if adpErr != nil {
		failMsg := adpErr.Error()
		_ = o.sources.Finalize(ds.ID, domain.DataSourceFailed, failMsg, domain.ImportResultMetadata{TransactionsImported: total})
		return adpErr
	}

	imp, impErr := adp.CreateImporter(o.manager, account.ProviderName)
	if impErr != nil {
		failMsg := impErr.Error()
		_ = o.sources.Finalize(ds.ID, domain.DataSourceFailed, failMsg, domain.ImportResultMetadata{TransactionsImported: total})
		return impErr
	}

	var warnings []string
	params := importer.Params{Account: *account}

	for batch, streamErr := range imp.ImportStreaming(ctx, params) {
		if streamErr != nil {
			_ = o.sources.Finalize(ds.ID, domain.DataSourceFailed, streamErr.Error(), domain.ImportResultMetadata{TransactionsImported: total})
			o.events.EmitTyped(events.ImportFailed, "import_orchestrator", &events.ImportLifecycleData{
				AccountID: account.ID, DataSourceID: ds.ID, Status: string(domain.DataSourceFailed), Message: streamErr.Error(),
			})
			return streamErr
		}

		result, saveErr := o.raw.SaveBatch(ds.ID, batch.RawTransactions)
		if saveErr != nil {
			_ = o.sources.Finalize(ds.ID, domain.DataSourceFailed, saveErr.Error(), domain.ImportResultMetadata{TransactionsImported: total})
			o.events.EmitTyped(events.ImportFailed, "import_orchestrator", &events.ImportLifecycleData{
				AccountID: account.ID, DataSourceID: ds.ID, Status: string(domain.DataSourceFailed), Message: saveErr.Error(),
			})
			return saveErr
		}
		total += result.Inserted

		if cursorErr := o.accounts.UpdateCursor(account.ID, batch.OperationType, batch.Cursor); cursorErr != nil {
			// Cursor persistence failures never abort the import:
			// the next run's dedup layers catch whatever gets re-fetched.
			log.Warn().Err(cursorErr).Str("operation_type", batch.OperationType).Msg("failed to persist cursor, continuing")
			warnings = append(warnings, fmt.Sprintf("cursor update failed for stream %q: %v", batch.OperationType, cursorErr))
		} else {
			account.SetCursor(batch.OperationType, batch.Cursor)
		}

		o.events.EmitTyped(events.ImportBatchSaved, "import_orchestrator", &events.ImportBatchSavedData{
			AccountID: account.ID, DataSourceID: ds.ID,
			BatchSize: len(batch.RawTransactions), SavedCount: result.Inserted, DuplicateCount: result.Skipped,
		})
		log.Debug().Int("inserted", result.Inserted).Int("skipped", result.Skipped).Int("total", total).Msg("batch saved")
	}

	status := domain.DataSourceCompleted
	errMsg := ""
	if len(warnings) > 0 {
		status = domain.DataSourceCompletedWithWarnings
		errMsg = strings.Join(warnings, "; ")
	}

	if err := o.sources.Finalize(ds.ID, status, errMsg, domain.ImportResultMetadata{TransactionsImported: total}); err != nil {
		return fmt.Errorf("failed to finalize data source %s: %w", ds.ID, err)
	}

	o.events.EmitTyped(events.ImportCompleted, "import_orchestrator", &events.ImportLifecycleData{
		AccountID: account.ID, DataSourceID: ds.ID, Status: string(status), Message: errMsg,
	})
	return nil
}

// resumeOrCreate reuses an incomplete DataSource if one exists (restoring its
// running total) or start a fresh one.
func (o *Orchestrator) resumeOrCreate(accountID string) (*domain.DataSource, int, bool, error) {
	existing, err := o.sources.FindLatestIncomplete(accountID)
	if err != nil {
		return nil, 0, false, err
	}
	if existing != nil {
		if err := o.sources.MarkStarted(existing.ID); err != nil {
			return nil, 0, false, err
		}
		existing.Status = domain.DataSourceStarted
		return existing, existing.ImportResultMetadata.TransactionsImported, true, nil
	}

	ds := &domain.DataSource{AccountID: accountID}
	if err := o.sources.Create(ds); err != nil {
		return nil, 0, false, err
	}
	return ds, 0, false, nil
}
