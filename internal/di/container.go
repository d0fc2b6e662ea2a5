// Package di wires every concrete component the ingestion core needs into one
// Container, built once at startup by cmd/importer.
package di

import (
	"fmt"

	"github.com/jbelanger/exitbook/internal/config"
	"github.com/jbelanger/exitbook/internal/database"
	"github.com/jbelanger/exitbook/internal/events"
	"github.com/jbelanger/exitbook/internal/ingestion/adapter"
	"github.com/jbelanger/exitbook/internal/ingestion/adapters/csvwallet"
	"github.com/jbelanger/exitbook/internal/ingestion/adapters/ethereum"
	"github.com/jbelanger/exitbook/internal/ingestion/adapters/genericexchange"
	"github.com/jbelanger/exitbook/internal/ingestion/orchestrator"
	"github.com/jbelanger/exitbook/internal/ingestion/processservice"
	"github.com/jbelanger/exitbook/internal/ingestion/processor"
	"github.com/jbelanger/exitbook/internal/ingestion/provider"
	"github.com/jbelanger/exitbook/internal/ingestion/providers/alchemygo"
	"github.com/jbelanger/exitbook/internal/ingestion/providers/etherscan"
	"github.com/jbelanger/exitbook/internal/ingestion/providers/genericrest"
	"github.com/jbelanger/exitbook/internal/ingestion/repository"
	"github.com/jbelanger/exitbook/internal/ingestion/scam"
	"github.com/jbelanger/exitbook/internal/scheduler"
	"github.com/rs/zerolog"
)

// Container holds every wired dependency, grouped by layer so the construction order
// below reads top to bottom.
type Container struct {
	Config *config.Config
	Log    zerolog.Logger

	// Databases
	LedgerDB *database.DB // raw/processed transactions, accounts, data sources
	CacheDB  *database.DB // provider health, circuit breaker state

	// Repositories
	Accounts     *repository.AccountRepository
	DataSources  *repository.DataSourceRepository
	RawTxns      *repository.RawTransactionRepository
	Transactions *repository.TransactionRepository

	// Provider layer
	ProviderRegistry *provider.Registry
	Breakers         *provider.CircuitBreakerRegistry
	Stats            *provider.StatsStore
	Manager          *provider.Manager

	// Source adapters
	Adapters *adapter.Registry

	// Services
	Events     *events.Manager
	Bus        *events.Bus
	Orchestrator *orchestrator.Orchestrator
	Process      *processservice.Service

	// Jobs
	Scheduler *scheduler.Scheduler

	// Reliability
	Reliability *Reliability
}

// Build constructs and wires every dependency. It migrates both databases, registers
// every known provider and source adapter, and loads persisted provider health/circuit
// state before returning. Callers own calling Close when done.
func Build(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	c := &Container{Config: cfg, Log: log}

	if err := c.buildDatabases(); err != nil {
		return nil, err
	}
	c.buildEvents()
	c.buildRepositories()
	if err := c.buildProviders(); err != nil {
		return nil, err
	}
	if err := c.buildAdapters(); err != nil {
		return nil, err
	}
	c.buildServices()
	c.buildScheduler()
	c.buildReliability()

	return c, nil
}

func (c *Container) buildDatabases() error {
	ledgerDB, err := database.New(database.Config{Path: c.Config.LedgerPath(), Profile: database.ProfileLedger, Name: "ledger"})
	if err != nil {
		return fmt.Errorf("di: failed to open ledger database: %w", err)
	}
	if err := ledgerDB.Migrate(); err != nil {
		return fmt.Errorf("di: failed to migrate ledger database: %w", err)
	}
	c.LedgerDB = ledgerDB

	cacheDB, err := database.New(database.Config{Path: c.Config.CachePath(), Profile: database.ProfileCache, Name: "cache"})
	if err != nil {
		return fmt.Errorf("di: failed to open cache database: %w", err)
	}
	if err := cacheDB.Migrate(); err != nil {
		return fmt.Errorf("di: failed to migrate cache database: %w", err)
	}
	c.CacheDB = cacheDB

	return nil
}

func (c *Container) buildEvents() {
	c.Bus = events.NewBus()
	c.Events = events.NewManager(c.Bus, c.Log)
}

func (c *Container) buildRepositories() {
	c.Accounts = repository.NewAccountRepository(c.LedgerDB.Conn(), c.Log)
	c.DataSources = repository.NewDataSourceRepository(c.LedgerDB.Conn(), c.Log)
	c.RawTxns = repository.NewRawTransactionRepository(c.LedgerDB.Conn(), c.Log)
	c.Transactions = repository.NewTransactionRepository(c.LedgerDB.Conn(), c.Log)
}

func (c *Container) buildProviders() error {
	c.ProviderRegistry = provider.NewRegistry()
	c.Breakers = provider.NewCircuitBreakerRegistry(provider.CircuitBreakerConfig{
		FailureThreshold: c.Config.Circuit.FailureThreshold,
		FailureWindow:    c.Config.Circuit.FailureWindow,
		CooldownPeriod:   c.Config.Circuit.CooldownPeriod,
	})
	c.Stats = provider.NewStatsStore(c.CacheDB.Conn(), c.Log)
	if err := c.Stats.Load(c.Breakers); err != nil {
		c.Log.Warn().Err(err).Msg("failed to load persisted provider health, starting fresh")
	}
	c.Manager = provider.NewManager(c.ProviderRegistry, c.Breakers, c.Stats, c.Events, c.Config.Dedup.ManagerWindowSize, c.Log)

	registrations := []struct {
		metadata provider.Metadata
		factory  provider.Factory
	}{
		{etherscan.Metadata("ethereum"), etherscan.New("ethereum", c.Log)},
		{alchemygo.Metadata("ethereum"), alchemygo.New("ethereum", c.Log)},
		{genericrest.Metadata("kraken"), genericrest.New("kraken", c.Log)},
	}
	for _, r := range registrations {
		if err := c.ProviderRegistry.Register(r.metadata, r.factory); err != nil {
			return fmt.Errorf("di: failed to register provider %q: %w", r.metadata.Name, err)
		}
	}
	return nil
}

func (c *Container) buildAdapters() error {
	c.Adapters = adapter.NewRegistry()

	var detector processor.ScamDetector = scam.NewBlocklistDetector(nil)

	adapters := []adapter.Adapter{
		ethereum.New("ethereum", detector),
		genericexchange.New("kraken", detector),
		csvwallet.New(detector),
	}
	for _, a := range adapters {
		if err := c.Adapters.Register(a); err != nil {
			return fmt.Errorf("di: failed to register adapter %q: %w", a.Name(), err)
		}
	}
	return nil
}

func (c *Container) buildServices() {
	c.Orchestrator = orchestrator.New(c.Accounts, c.DataSources, c.RawTxns, c.Adapters, c.Manager, c.Events, c.Log)
	c.Process = processservice.New(c.DataSources, c.RawTxns, c.Transactions, c.Adapters, c.Events, processservice.DefaultExchangeBatchSize, c.Log)
}

func (c *Container) buildScheduler() {
	c.Scheduler = scheduler.New(c.Log)
}

// Close releases every resource the container opened, best-effort: it collects and
// returns every close error rather than stopping at the first one, since every
// underlying resource should still get a chance to release cleanly.
func (c *Container) Close() []error {
	var errs []error
	if errs2 := c.Manager.Destroy(); len(errs2) > 0 {
		errs = append(errs, errs2...)
	}
	if err := c.LedgerDB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("di: failed to close ledger database: %w", err))
	}
	if err := c.CacheDB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("di: failed to close cache database: %w", err))
	}
	return errs
}
