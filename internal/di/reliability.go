package di

import (
	"path/filepath"

	"github.com/jbelanger/exitbook/internal/database"
	"github.com/jbelanger/exitbook/internal/reliability"
	"github.com/jbelanger/exitbook/internal/scheduler"
)

// Reliability groups the internal/reliability backup/health/monitoring services for
// the module's two databases (ledger, cache).
type Reliability struct {
	HealthServices map[string]*reliability.DatabaseHealthService
	Backup         *reliability.BackupService
	Monitoring     *reliability.MonitoringService
}

func (c *Container) buildReliability() {
	databases := map[string]*database.DB{
		"ledger": c.LedgerDB,
		"cache":  c.CacheDB,
	}
	backupDir := filepath.Join(c.Config.DataDir, "backups")

	healthServices := map[string]*reliability.DatabaseHealthService{
		"ledger": reliability.NewDatabaseHealthService(c.LedgerDB, "ledger", c.Config.LedgerPath(), c.Log),
		"cache":  reliability.NewDatabaseHealthService(c.CacheDB, "cache", c.Config.CachePath(), c.Log),
	}

	c.Reliability = &Reliability{
		HealthServices: healthServices,
		Backup:         reliability.NewBackupService(databases, c.Config.DataDir, backupDir, c.Log),
		Monitoring:     reliability.NewMonitoringService(databases, healthServices, c.Config.DataDir, backupDir, c.Log),
	}
}

// RegisterReliabilityJobs wires the tiered backup and maintenance jobs onto the
// scheduler.
func RegisterReliabilityJobs(c *Container) error {
	backupDir := filepath.Join(c.Config.DataDir, "backups")
	databases := map[string]*database.DB{"ledger": c.LedgerDB, "cache": c.CacheDB}

	jobs := []struct {
		spec string
		job  scheduler.Job
	}{
		{"0 0 * * * *", reliability.NewHourlyBackupJob(c.Reliability.Backup)},
		{"0 0 2 * * *", reliability.NewDailyBackupJob(c.Reliability.Backup)},
		{"0 0 3 * * 0", reliability.NewWeeklyBackupJob(c.Reliability.Backup)},
		{"0 0 4 1 * *", reliability.NewMonthlyBackupJob(c.Reliability.Backup)},
		{"0 0 2 * * *", reliability.NewDailyMaintenanceJob(databases, c.Reliability.HealthServices, backupDir, c.Log)},
		{"0 0 3 * * 0", reliability.NewWeeklyMaintenanceJob(databases, c.Reliability.HealthServices, c.Log)},
		{"0 0 4 1 * *", reliability.NewMonthlyMaintenanceJob(databases, c.Reliability.HealthServices, backupDir, c.Log)},
	}
	for _, j := range jobs {
		if err := c.Scheduler.AddJob(j.spec, j.job); err != nil {
			return err
		}
	}
	return nil
}
