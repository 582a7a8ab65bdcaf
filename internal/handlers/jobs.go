package handlers

import (
	"context"
	"database/sql"
	"time"

	"github.com/DSTX70/gigster-switchboard/pkg/config"
	"github.com/DSTX70/gigster-switchboard/pkg/logging"
)

// JobManager runs the background sweeps for the integrations control plane:
// the periodic alert evaluation and the rate-window rollover. Rollover is not
// part of the store itself; windows only move when this scheduler (or an
// operator) invokes the reset operation.
type JobManager struct {
	db        *sql.DB
	logger    logging.Logger
	evaluator *AlertEvaluator
	stopCh    chan struct{}

	alertInterval    time.Duration
	rolloverInterval time.Duration
}

// NewJobManager creates a job manager with intervals from the environment
func NewJobManager(database *sql.DB, log logging.Logger, c Config) *JobManager {
	return &JobManager{
		db:               database,
		logger:           log,
		evaluator:        NewAlertEvaluator(database, log, c),
		stopCh:           make(chan struct{}),
		alertInterval:    config.GetEnvMillis("ALERT_SWEEP_INTERVAL_MS", 60_000),
		rolloverInterval: config.GetEnvMillis("RATE_WINDOW_ROLLOVER_INTERVAL_MS", 30_000),
	}
}

// Start begins all background jobs
func (jm *JobManager) Start(ctx context.Context) {
	jm.logger.Info("Starting switchboard job manager")

	go jm.runAlertSweep(ctx)
	go jm.runWindowRollover(ctx)
}

// Stop stops all background jobs
func (jm *JobManager) Stop() {
	jm.logger.Info("Stopping switchboard job manager")
	close(jm.stopCh)
}

func (jm *JobManager) runAlertSweep(ctx context.Context) {
	ticker := time.NewTicker(jm.alertInterval)
	defer ticker.Stop()

	jm.logger.Info("Starting queue alert sweep job")

	for {
		select {
		case <-ctx.Done():
			return
		case <-jm.stopCh:
			return
		case <-ticker.C:
			jm.evaluator.Run(ctx)
		}
	}
}

func (jm *JobManager) runWindowRollover(ctx context.Context) {
	ticker := time.NewTicker(jm.rolloverInterval)
	defer ticker.Stop()

	jm.logger.Info("Starting rate window rollover job")

	for {
		select {
		case <-ctx.Done():
			return
		case <-jm.stopCh:
			return
		case <-ticker.C:
			jm.rolloverExpiredWindows(ctx)
		}
	}
}

// rolloverExpiredWindows resets every window whose configured length has
// elapsed since it started
func (jm *JobManager) rolloverExpiredWindows(ctx context.Context) {
	rows, err := jm.db.QueryContext(ctx, `
		SELECT platform
		FROM switchboard.social_rate_limits
		WHERE NOW() - window_started_at >= window_seconds * INTERVAL '1 second'
	`)
	if err != nil {
		jm.logger.WithError(err).Warn("Failed to find expired rate windows")
		return
	}
	defer rows.Close()

	var expired []string
	for rows.Next() {
		var platform string
		if err := rows.Scan(&platform); err != nil {
			jm.logger.WithError(err).Warn("Error scanning expired rate window")
			continue
		}
		expired = append(expired, platform)
	}

	for _, platform := range expired {
		if err := resetWindow(ctx, platform); err != nil {
			jm.logger.WithError(err).WithField("platform", platform).Warn("Failed to roll over rate window")
			continue
		}
		auditEmit(ctx, "social.rl.rollover", map[string]interface{}{"platform": platform})
	}
}
