// Package processservice drives the derived phase: for one account, it guards
// against processing over a half-imported raw set, fetches pending
// raw rows in adapter-chosen batches, runs them through the source's Processor, and
// persists the result while marking the source rows processed.
package processservice

import (
	"github.com/jbelanger/exitbook/internal/events"
	"github.com/jbelanger/exitbook/internal/ingestion/adapter"
	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/jbelanger/exitbook/internal/ingestion/ingesterr"
	"github.com/jbelanger/exitbook/internal/ingestion/processor"
	"github.com/jbelanger/exitbook/internal/ingestion/repository"
	"github.com/rs/zerolog"
)

// DefaultExchangeBatchSize bounds the all-at-once exchange strategy.
const DefaultExchangeBatchSize = 500

// Service is built once and reused across accounts.
type Service struct {
	sources  *repository.DataSourceRepository
	raw      *repository.RawTransactionRepository
	tx       *repository.TransactionRepository
	adapters *adapter.Registry
	events   *events.Manager
	log      zerolog.Logger

	exchangeBatchSize int
}

// New builds a Service. exchangeBatchSize <= 0 falls back to DefaultExchangeBatchSize.
func New(
	sources *repository.DataSourceRepository,
	raw *repository.RawTransactionRepository,
	tx *repository.TransactionRepository,
	adapters *adapter.Registry,
	evt *events.Manager,
	exchangeBatchSize int,
	log zerolog.Logger,
) *Service {
	if exchangeBatchSize <= 0 {
		exchangeBatchSize = DefaultExchangeBatchSize
	}
	return &Service{
		sources:           sources,
		raw:               raw,
		tx:                tx,
		adapters:          adapters,
		events:            evt,
		exchangeBatchSize: exchangeBatchSize,
		log:               log.With().Str("component", "process_service").Logger(),
	}
}

// ProcessAccount derives ProcessedTransaction rows for every pending raw row belonging
// to account. Any processor error aborts the account's processing with that
// error; rows already marked processed before the failing batch stay marked ("no
// partial mark" applies within a batch, not across batches).
func (s *Service) ProcessAccount(account domain.Account) error {
	blocked, err := s.sources.HasBlockingImport(account.ID)
	if err != nil {
		return err
	}
	if blocked {
		return ingesterr.IncompleteImportBlocksProcessing(account.ID)
	}

	adp, err := s.adapters.Get(account.SourceName)
	if err != nil {
		return err
	}

	proc, err := adp.CreateProcessor()
	if err != nil {
		return err
	}

	batches := s.batchSource(adp, account)
	procCtx := adp.BuildContext(account)

	var processedCount, scamCount int
	for groupRows, groupErr := range batches {
		if groupErr != nil {
			return groupErr
		}
		if len(groupRows) == 0 {
			continue
		}

		unpacked, unpackErr := adp.UnpackRows(groupRows)
		if unpackErr != nil {
			return unpackErr
		}

		outputs, procErr := proc.Process(unpacked, procCtx)
		if procErr != nil {
			s.events.EmitTyped(events.ValidationFailed, "process_service", &events.ValidationFailedData{
				AccountID: account.ID, Reason: procErr.Error(),
			})
			return procErr
		}

		persisted := make([]domain.ProcessedTransaction, 0, len(outputs))
		for _, tx := range outputs {
			if !tx.HasContent() {
				// A transaction with no movement or fee legs carries
				// no accounting impact and is not persisted. This is not "dropping
				// a raw row" — the raw row is still marked processed below.
				continue
			}
			tx.AccountID = account.ID
			if tx.IsSpam {
				scamCount++
			}
			persisted = append(persisted, tx)
		}

		if err := s.tx.SaveBatch(persisted); err != nil {
			return err
		}

		ids := make([]string, 0, len(groupRows))
		for _, row := range groupRows {
			ids = append(ids, row.ID)
		}
		if err := s.raw.MarkProcessed(ids); err != nil {
			return err
		}

		processedCount += len(persisted)
	}

	s.events.EmitTyped(events.ProcessBatchCompleted, "process_service", &events.ProcessBatchData{
		AccountID: account.ID, ProcessedCount: processedCount, ScamFlaggedCount: scamCount,
	})
	return nil
}

// batchSource resolves the batch-provider strategy for account: the adapter's custom
// one if it declares it, else hash-grouped for blockchains or all-at-once for
// exchanges. The service never knows per-source batch-provider names.
func (s *Service) batchSource(adp adapter.Adapter, account domain.Account) processor.BatchSource {
	if factory, ok := adp.(adapter.BatchProviderFactory); ok {
		if custom, ok := factory.CreateBatchProvider(s.raw, account.ID); ok {
			return custom
		}
	}

	if account.AccountType == domain.AccountTypeBlockchain {
		return s.hashGroupedBatches(account.ID)
	}
	return s.allAtOnceBatches(account.ID)
}

// hashGroupedBatches is the default blockchain strategy: every row sharing a
// blockchain_transaction_hash stays in one batch, preserving correlation across
// multi-row transactions (one row per input/output or inner message).
func (s *Service) hashGroupedBatches(accountID string) processor.BatchSource {
	return func(yield func([]domain.RawTransaction, error) bool) {
		groups, err := s.raw.StreamPendingByHash(accountID)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, group := range groups {
			if !yield(group, nil) {
				return
			}
		}
	}
}

// allAtOnceBatches is the default exchange strategy: fetch every pending row and chunk
// it into bounded batches, since exchange ledger rows have no cross-row correlation to
// preserve.
func (s *Service) allAtOnceBatches(accountID string) processor.BatchSource {
	return func(yield func([]domain.RawTransaction, error) bool) {
		rows, err := s.raw.FetchPendingAll(accountID)
		if err != nil {
			yield(nil, err)
			return
		}
		for start := 0; start < len(rows); start += s.exchangeBatchSize {
			end := start + s.exchangeBatchSize
			if end > len(rows) {
				end = len(rows)
			}
			if !yield(rows[start:end], nil) {
				return
			}
		}
	}
}
