// Package metrics provides Prometheus metrics for the backend API
package metrics

import (
	"database/sql"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DBStatsCollector collects connection statistics from the primary pgx pool
// and the sqlx connection used by the attempt archiver.
type DBStatsCollector struct {
	pgxPool   *pgxpool.Pool
	archiveDB *sql.DB
	stopCh    chan struct{}
}

// NewDBStatsCollector creates a new database stats collector
func NewDBStatsCollector(pgxPool *pgxpool.Pool, archiveDB *sql.DB) *DBStatsCollector {
	return &DBStatsCollector{
		pgxPool:   pgxPool,
		archiveDB: archiveDB,
		stopCh:    make(chan struct{}),
	}
}

// Start begins collecting database statistics at regular intervals
func (c *DBStatsCollector) Start(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		// Collect initial stats
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				return
			}
		}
	}()

	log.Printf("Database stats collector started with interval: %v", interval)
}

// Stop stops the database stats collector
func (c *DBStatsCollector) Stop() {
	close(c.stopCh)
	log.Println("Database stats collector stopped")
}

// collect gathers database statistics and updates Prometheus metrics.
// The two pools are separate connections to the same database, so their
// counts are summed.
func (c *DBStatsCollector) collect() {
	var open, inUse, idle, maxOpen int

	if c.pgxPool != nil {
		stat := c.pgxPool.Stat()
		open += int(stat.TotalConns())
		inUse += int(stat.AcquiredConns())
		idle += int(stat.IdleConns())
		maxOpen += int(stat.MaxConns())
	}

	if c.archiveDB != nil {
		stats := c.archiveDB.Stats()
		open += stats.OpenConnections
		inUse += stats.InUse
		idle += stats.Idle
		maxOpen += stats.MaxOpenConnections
	}

	DBConnectionsOpen.Set(float64(open))
	DBConnectionsInUse.Set(float64(inUse))
	DBConnectionsIdle.Set(float64(idle))
	DBConnectionsMaxOpen.Set(float64(maxOpen))
}

// RecordQueryDuration records the duration of a database query
func RecordQueryDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// TimeQuery times a repository query into DBQueryDuration.
// Usage: defer metrics.TimeQuery("user_by_email")()
func TimeQuery(operation string) func() {
	start := time.Now()
	return func() {
		RecordQueryDuration(operation, time.Since(start))
	}
}
