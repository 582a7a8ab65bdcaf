package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/DSTX70/gigster-switchboard/pkg/models"
)

// The rate limiter store owns window configuration and manual resets only.
// Usage accounting (incrementing used_actions) belongs to the posting worker
// downstream; this core reads the window state for saturation metrics and
// exposes administrative operations.

func listRateLimits(ctx context.Context) ([]models.RateLimitWindow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT platform, window_seconds, max_actions, used_actions, window_started_at, updated_at
		FROM switchboard.social_rate_limits
		ORDER BY platform ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rate limits: %w", err)
	}
	defer rows.Close()

	windows := []models.RateLimitWindow{}
	for rows.Next() {
		var w models.RateLimitWindow
		if err := rows.Scan(&w.Platform, &w.WindowSeconds, &w.MaxActions,
			&w.UsedActions, &w.WindowStartedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rate limit window: %w", err)
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

// upsertRateLimit creates or replaces a platform's window configuration,
// zeroing usage and restarting the window clock. This is a configuration
// operation, not usage tracking.
func upsertRateLimit(ctx context.Context, platform string, windowSeconds, maxActions int) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO switchboard.social_rate_limits (platform, window_seconds, max_actions, used_actions, window_started_at)
		VALUES ($1, $2, $3, 0, NOW())
		ON CONFLICT (platform) DO UPDATE
		SET window_seconds = $2, max_actions = $3, used_actions = 0, window_started_at = NOW(), updated_at = NOW()
	`, platform, windowSeconds, maxActions)
	if err != nil {
		return fmt.Errorf("failed to upsert rate limit for %s: %w", platform, err)
	}
	return nil
}

// resetWindow zeroes usage and restarts the window clock for one platform.
// Windows never roll over on their own; the scheduler job (or an operator)
// must invoke this once the window has elapsed.
func resetWindow(ctx context.Context, platform string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE switchboard.social_rate_limits
		SET used_actions = 0, window_started_at = NOW(), updated_at = NOW()
		WHERE platform = $1
	`, platform)
	if err != nil {
		return fmt.Errorf("failed to reset rate limit window for %s: %w", platform, err)
	}
	return nil
}

// GetRateLimits returns all configured windows ordered by platform
func GetRateLimits(c *gin.Context) {
	items, err := listRateLimits(c.Request.Context())
	if err != nil {
		logger.WithError(err).Error("Failed to fetch rate limits")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rate limits"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// UpsertRateLimitRequest is the body of POST /ops/rate-limits
type UpsertRateLimitRequest struct {
	Platform      string `json:"platform"`
	WindowSeconds int    `json:"window_seconds"`
	MaxActions    int    `json:"max_actions"`
}

// UpsertRateLimit creates or replaces a platform window configuration
func UpsertRateLimit(c *gin.Context) {
	var req UpsertRateLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_fields"})
		return
	}
	if req.Platform == "" || req.WindowSeconds <= 0 || req.MaxActions <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_fields"})
		return
	}

	if err := upsertRateLimit(c.Request.Context(), req.Platform, req.WindowSeconds, req.MaxActions); err != nil {
		logger.WithError(err).WithField("platform", req.Platform).Error("Failed to upsert rate limit")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update rate limit"})
		return
	}

	auditEmit(c.Request.Context(), "social.rl.updated", map[string]interface{}{
		"platform":       req.Platform,
		"window_seconds": req.WindowSeconds,
		"max_actions":    req.MaxActions,
	})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ResetRateLimit restarts one platform's window on operator demand
func ResetRateLimit(c *gin.Context) {
	platform := c.Param("platform")
	if err := resetWindow(c.Request.Context(), platform); err != nil {
		logger.WithError(err).WithField("platform", platform).Error("Failed to reset rate limit window")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset rate limit window"})
		return
	}

	auditEmit(c.Request.Context(), "social.rl.reset", map[string]interface{}{"platform": platform})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type usageWindow struct {
	interval string
	bucket   string
	points   int
	step     time.Duration
}

func usageWindowFor(name string) usageWindow {
	switch name {
	case "7d":
		return usageWindow{interval: "7 days", bucket: "day", points: 7, step: 24 * time.Hour}
	case "6h":
		return usageWindow{interval: "6 hours", bucket: "hour", points: 6, step: time.Hour}
	default:
		return usageWindow{interval: "24 hours", bucket: "hour", points: 24, step: time.Hour}
	}
}

// GetRateLimitUsage returns a zero-filled bucketed usage series for one
// platform over a 6h, 24h or 7d window
func GetRateLimitUsage(c *gin.Context) {
	platform := c.Param("platform")
	window := c.DefaultQuery("window", "24h")
	conf := usageWindowFor(window)

	rows, err := db.QueryContext(c.Request.Context(), `
		SELECT date_trunc($2, used_at) AS bucket, SUM(amount)::int AS total
		FROM switchboard.social_rl_usage
		WHERE platform = $1 AND used_at >= NOW() - ($3)::interval
		GROUP BY 1
		ORDER BY 1 ASC
	`, platform, conf.bucket, conf.interval)
	if err != nil {
		logger.WithError(err).WithField("platform", platform).Error("Failed to fetch rate limit usage")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch usage"})
		return
	}
	defer rows.Close()

	totals := map[time.Time]int{}
	for rows.Next() {
		var (
			bucket time.Time
			total  int
		)
		if err := rows.Scan(&bucket, &total); err != nil {
			logger.WithError(err).Error("Error scanning usage bucket")
			continue
		}
		totals[bucket.UTC()] = total
	}

	// Fill missing buckets with zeros so charts render a continuous series
	items := make([]models.UsageBucket, 0, conf.points+1)
	start := time.Now().Add(-time.Duration(conf.points) * conf.step)
	for i := 0; i <= conf.points; i++ {
		at := start.Add(time.Duration(i) * conf.step).UTC().Truncate(conf.step)
		items = append(items, models.UsageBucket{Bucket: at, Total: totals[at]})
	}

	c.JSON(http.StatusOK, gin.H{"items": items, "window": window})
}
