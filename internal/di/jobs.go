package di

import (
	"context"
	"fmt"
	"time"

	"github.com/jbelanger/exitbook/internal/scheduler"
)

// importAllJob runs one import pass across every account registered under every known
// source adapter.
type importAllJob struct {
	c *Container
}

func (j *importAllJob) Name() string { return "import-all-accounts" }

func (j *importAllJob) Run() error {
	ctx := context.Background()
	var firstErr error
	for _, sourceName := range j.c.Adapters.Names() {
		accounts, err := j.c.Accounts.ListBySource(sourceName)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to list accounts for source %q: %w", sourceName, err)
			}
			continue
		}
		for _, acct := range accounts {
			if err := j.c.Orchestrator.ImportAccount(ctx, acct); err != nil {
				j.c.Log.Error().Err(err).Str("account_id", acct.ID).Msg("scheduled import failed")
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}

// processAllJob runs one process pass across every account registered under every known
// source adapter, turning any newly imported raw rows into processed transactions.
type processAllJob struct {
	c *Container
}

func (j *processAllJob) Name() string { return "process-all-accounts" }

func (j *processAllJob) Run() error {
	var firstErr error
	for _, sourceName := range j.c.Adapters.Names() {
		accounts, err := j.c.Accounts.ListBySource(sourceName)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to list accounts for source %q: %w", sourceName, err)
			}
			continue
		}
		for _, acct := range accounts {
			if err := j.c.Process.ProcessAccount(*acct); err != nil {
				j.c.Log.Error().Err(err).Str("account_id", acct.ID).Msg("scheduled processing failed")
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}

// persistHealthJob snapshots provider health and circuit breaker state to the cache
// database, so a restart resumes with warm failover scoring instead of starting blind.
type persistHealthJob struct {
	c *Container
}

func (j *persistHealthJob) Name() string { return "persist-provider-health" }

func (j *persistHealthJob) Run() error {
	j.c.Stats.Save(j.c.Breakers)
	return nil
}

// sweepCircuitsJob re-evaluates every known breaker's cooldown so an open breaker with
// an elapsed cooldown transitions to half-open even for a provider with no traffic,
// instead of waiting for the next real request to notice.
type sweepCircuitsJob struct {
	c *Container
}

func (j *sweepCircuitsJob) Name() string { return "sweep-stale-circuit-breakers" }

func (j *sweepCircuitsJob) Run() error {
	now := time.Now()
	for key := range j.c.Breakers.Snapshot() {
		j.c.Breakers.GetOrCreate(key, now)
	}
	return nil
}

// RegisterJobs wires every scheduled job onto c.Scheduler with its cron spec
// Callers must call c.Scheduler.Start() afterward.
func RegisterJobs(c *Container) error {
	jobs := []struct {
		spec string
		job  scheduler.Job
	}{
		{"0 */15 * * * *", &importAllJob{c: c}},
		{"0 */5 * * * *", &processAllJob{c: c}},
		{"0 */10 * * * *", &persistHealthJob{c: c}},
		{"0 * * * * *", &sweepCircuitsJob{c: c}},
	}
	for _, j := range jobs {
		if err := c.Scheduler.AddJob(j.spec, j.job); err != nil {
			return fmt.Errorf("di: failed to register job %q: %w", j.job.Name(), err)
		}
	}
	return nil
}
