// Package scheduler wraps robfig/cron to run periodic ingestion jobs (health snapshots,
// scheduled re-imports) with structured logging around every run.
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is anything the scheduler can run on a cron schedule. Run should not panic; any
// failure should be returned so the scheduler can log it and keep the cron running.
type Job interface {
	Name() string
	Run() error
}

// Scheduler runs registered Jobs on cron schedules, logging start/success/failure for
// every invocation. Cron specs are the 6-field robfig format (seconds first).
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates a Scheduler. It does not start running jobs until Start is called.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("service", "scheduler").Logger(),
	}
}

// AddJob registers job to run on the given 6-field cron spec.
func (s *Scheduler) AddJob(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		log := s.log.With().Str("job", job.Name()).Logger()
		log.Info().Msg("job starting")

		if err := job.Run(); err != nil {
			log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("job failed")
			return
		}

		log.Info().Dur("elapsed", time.Since(start)).Msg("job completed")
	})
	return err
}

// Start begins running registered jobs on their schedules. Non-blocking.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// FuncJob adapts a plain function into a Job, for jobs too small to warrant their own type.
type FuncJob struct {
	JobName string
	Fn      func() error
}

// Name returns the job's display name.
func (f FuncJob) Name() string { return f.JobName }

// Run invokes the wrapped function.
func (f FuncJob) Run() error { return f.Fn() }
