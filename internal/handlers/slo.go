package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Derived operational signals, each a pure read over persisted state.

// hourlyErrorRate returns the percentage of queue entries touched in the
// trailing hour that sit in failed status
func hourlyErrorRate(ctx context.Context) (float64, error) {
	var pct float64
	err := db.QueryRowContext(ctx, `
		SELECT COALESCE(
			100.0 * SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) / NULLIF(COUNT(*), 0),
			0
		)
		FROM switchboard.social_queue
		WHERE updated_at >= NOW() - INTERVAL '1 hour'
	`).Scan(&pct)
	if err != nil {
		return 0, fmt.Errorf("failed to compute hourly error rate: %w", err)
	}
	return pct, nil
}

// maxQueueAgeMinutes returns the age of the oldest entry still queued,
// measured against its scheduled time. Positive values mean overdue work.
func maxQueueAgeMinutes(ctx context.Context) (float64, error) {
	var age float64
	err := db.QueryRowContext(ctx, `
		SELECT COALESCE(
			EXTRACT(EPOCH FROM (NOW() - MIN(scheduled_at))) / 60.0,
			0
		)
		FROM switchboard.social_queue
		WHERE status = 'queued'
	`).Scan(&age)
	if err != nil {
		return 0, fmt.Errorf("failed to compute max queue age: %w", err)
	}
	return age, nil
}

// PlatformSaturation is the consumed fraction of one platform's rate window
type PlatformSaturation struct {
	Platform string  `json:"platform"`
	Pct      float64 `json:"pct"`
}

// rateLimitSaturation returns used/max capacity per platform, in percent
func rateLimitSaturation(ctx context.Context) ([]PlatformSaturation, error) {
	windows, err := listRateLimits(ctx)
	if err != nil {
		return nil, err
	}

	saturation := make([]PlatformSaturation, 0, len(windows))
	for _, w := range windows {
		saturation = append(saturation, PlatformSaturation{Platform: w.Platform, Pct: w.Saturation()})
	}
	return saturation, nil
}

// GetSLOMetrics returns the three derived signals in one response
func GetSLOMetrics(c *gin.Context) {
	ctx := c.Request.Context()

	errorRate, err := hourlyErrorRate(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to fetch SLO metrics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch metrics"})
		return
	}
	queueAge, err := maxQueueAgeMinutes(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to fetch SLO metrics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch metrics"})
		return
	}
	saturation, err := rateLimitSaturation(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to fetch SLO metrics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"errorRate":           errorRate,
		"queueAge":            queueAge,
		"rateLimitSaturation": saturation,
	})
}

// GetQueueHealth reports a coarse healthy/degraded/critical verdict from the
// error-rate and queue-age signals
func GetQueueHealth(c *gin.Context) {
	ctx := c.Request.Context()

	errorRate, err := hourlyErrorRate(ctx)
	if err != nil {
		logger.WithError(err).Error("Queue health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "critical", "error": "Health check failed"})
		return
	}
	queueAge, err := maxQueueAgeMinutes(ctx)
	if err != nil {
		logger.WithError(err).Error("Queue health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "critical", "error": "Health check failed"})
		return
	}

	status := "healthy"
	switch {
	case errorRate > cfg.ErrorRateAlertPct || queueAge > cfg.QueueAgeAlertMinutes:
		status = "critical"
	case errorRate > cfg.ErrorRateAlertPct/2.5 || queueAge > cfg.QueueAgeAlertMinutes/2:
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"lastCheck": time.Now().UTC().Format(time.RFC3339),
		"metrics": gin.H{
			"errorRate": errorRate,
			"queueAge":  queueAge,
		},
	})
}
