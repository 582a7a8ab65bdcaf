package handlers

import (
	"context"
	"database/sql"

	"github.com/DSTX70/gigster-switchboard/pkg/logging"
)

// AlertEvaluator compares the derived queue signals against fixed thresholds
// and emits one warning per breach. Breaches are independent; a failure to
// compute one signal never prevents evaluating the others.
type AlertEvaluator struct {
	db     *sql.DB
	logger logging.Logger

	errorRatePct    float64
	queueAgeMinutes float64
	saturationPct   float64
}

// NewAlertEvaluator creates an evaluator with the configured thresholds
func NewAlertEvaluator(database *sql.DB, log logging.Logger, c Config) *AlertEvaluator {
	return &AlertEvaluator{
		db:              database,
		logger:          log,
		errorRatePct:    c.ErrorRateAlertPct,
		queueAgeMinutes: c.QueueAgeAlertMinutes,
		saturationPct:   c.SaturationAlertPct,
	}
}

// Run evaluates all signals once. Called on a fixed cadence by the job manager.
func (ae *AlertEvaluator) Run(ctx context.Context) {
	if errorRate, err := hourlyErrorRate(ctx); err != nil {
		ae.logger.WithError(err).Warn("Failed to compute hourly error rate for alerting")
	} else {
		if metrics != nil && metrics.QueueErrorRate != nil {
			metrics.QueueErrorRate.WithLabelValues().Set(errorRate)
		}
		if errorRate > ae.errorRatePct {
			ae.fire("error_rate", logging.Fields{
				"error_rate_pct": errorRate,
				"threshold_pct":  ae.errorRatePct,
			})
		}
	}

	if queueAge, err := maxQueueAgeMinutes(ctx); err != nil {
		ae.logger.WithError(err).Warn("Failed to compute max queue age for alerting")
	} else {
		if metrics != nil && metrics.QueueMaxAgeMinutes != nil {
			metrics.QueueMaxAgeMinutes.WithLabelValues().Set(queueAge)
		}
		if queueAge > ae.queueAgeMinutes {
			ae.fire("queue_age", logging.Fields{
				"queue_age_minutes": queueAge,
				"threshold_minutes": ae.queueAgeMinutes,
			})
		}
	}

	saturation, err := rateLimitSaturation(ctx)
	if err != nil {
		ae.logger.WithError(err).Warn("Failed to compute rate limit saturation for alerting")
		return
	}
	for _, s := range saturation {
		if metrics != nil && metrics.RateLimitSaturation != nil {
			metrics.RateLimitSaturation.WithLabelValues(s.Platform).Set(s.Pct)
		}
		if s.Pct > ae.saturationPct {
			ae.fire("rate_limit_saturation", logging.Fields{
				"platform":       s.Platform,
				"saturation_pct": s.Pct,
				"threshold_pct":  ae.saturationPct,
			})
		}
	}
}

func (ae *AlertEvaluator) fire(signal string, fields logging.Fields) {
	ae.logger.WithFields(fields).WithField("signal", signal).Warn("Queue alert threshold breached")
	if metrics != nil && metrics.AlertsFired != nil {
		metrics.AlertsFired.WithLabelValues(signal).Inc()
	}
}
