package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/DSTX70/gigster-switchboard/pkg/models"
)

// enqueueSocialPost inserts one queued row for an approved "post now" event.
// Media must already have passed validation. No dedup key is enforced here:
// idempotency, if required, is the webhook sender's responsibility via the
// envelope identifier.
func enqueueSocialPost(ctx context.Context, payload *ICadenceSchedulePayload) error {
	content, err := json.Marshal(payload.Content)
	if err != nil {
		return fmt.Errorf("failed to encode post content: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO switchboard.social_queue (profile_id, platform, content, scheduled_at, status)
		VALUES ($1, $2, $3, $4, 'queued')
	`, payload.ProfileID, payload.Platform, content, payload.ScheduledAt)
	if err != nil {
		countQueueOperation("enqueue", "error")
		return fmt.Errorf("failed to enqueue social post: %w", err)
	}
	countQueueOperation("enqueue", "ok")

	auditEmit(ctx, "social.queue.enqueued", map[string]interface{}{
		"platform":     payload.Platform,
		"profile_id":   payload.ProfileID,
		"scheduled_at": payload.ScheduledAt.Format(time.RFC3339),
	})
	return nil
}

// cancelScheduledPost retracts previously queued work by exact profile and
// scheduled-time match. Only entries in queued, failed or paused transition to
// cancelled; anything else is untouched, which makes the operation idempotent.
func cancelScheduledPost(ctx context.Context, payload *ICadenceDeletePayload) (int64, error) {
	result, err := db.ExecContext(ctx, `
		UPDATE switchboard.social_queue
		SET status = 'cancelled', updated_at = NOW()
		WHERE profile_id = $1 AND scheduled_at = $2 AND status IN ('queued', 'failed', 'paused')
	`, payload.ProfileID, payload.ScheduledAt)
	if err != nil {
		countQueueOperation("cancel", "error")
		return 0, fmt.Errorf("failed to cancel scheduled post: %w", err)
	}
	countQueueOperation("cancel", "ok")

	affected, _ := result.RowsAffected()

	auditEmit(ctx, "social.queue.deleted", map[string]interface{}{
		"profile_id":    payload.ProfileID,
		"scheduled_at":  payload.ScheduledAt.Format(time.RFC3339),
		"rows_affected": affected,
	})
	return affected, nil
}

func countQueueOperation(operation, status string) {
	if metrics != nil && metrics.QueueOperations != nil {
		metrics.QueueOperations.WithLabelValues(operation, status).Inc()
	}
}

// Operator endpoints for the social queue

// ListSocialQueue returns queue entries with optional status/platform filters
func ListSocialQueue(c *gin.Context) {
	query := `
		SELECT id, profile_id, platform, content, scheduled_at, status,
		       attempts, next_attempt_at, last_error, created_at, updated_at
		FROM switchboard.social_queue
	`
	args := []interface{}{}

	if status := c.Query("status"); status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" WHERE status = $%d", len(args))
	}
	if platform := c.Query("platform"); platform != "" {
		args = append(args, platform)
		if len(args) == 1 {
			query += fmt.Sprintf(" WHERE platform = $%d", len(args))
		} else {
			query += fmt.Sprintf(" AND platform = $%d", len(args))
		}
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 || limit > 1000 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY scheduled_at DESC LIMIT $%d", len(args))

	rows, err := db.QueryContext(c.Request.Context(), query, args...)
	if err != nil {
		logger.WithError(err).Error("Failed to fetch social queue")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch social queue"})
		return
	}
	defer rows.Close()

	items := []models.SocialQueueEntry{}
	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			logger.WithError(err).Error("Error scanning queue entry")
			continue
		}
		items = append(items, entry)
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQueueEntry(row rowScanner) (models.SocialQueueEntry, error) {
	var (
		entry         models.SocialQueueEntry
		content       []byte
		nextAttemptAt sql.NullTime
		lastError     sql.NullString
	)
	err := row.Scan(&entry.ID, &entry.ProfileID, &entry.Platform, &content,
		&entry.ScheduledAt, &entry.Status, &entry.Attempts,
		&nextAttemptAt, &lastError, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return models.SocialQueueEntry{}, err
	}

	if err := json.Unmarshal(content, &entry.Content); err != nil {
		return models.SocialQueueEntry{}, fmt.Errorf("invalid content payload: %w", err)
	}
	if nextAttemptAt.Valid {
		entry.NextAttemptAt = &nextAttemptAt.Time
	}
	if lastError.Valid {
		entry.LastError = &lastError.String
	}
	return entry, nil
}

// GetQueueStats returns per-status counts for the social queue
func GetQueueStats(c *gin.Context) {
	var stats models.QueueStats
	err := db.QueryRowContext(c.Request.Context(), `
		SELECT
			COALESCE(COUNT(*) FILTER (WHERE status = 'queued'), 0)::int,
			COALESCE(COUNT(*) FILTER (WHERE status = 'posting'), 0)::int,
			COALESCE(COUNT(*) FILTER (WHERE status = 'posted'), 0)::int,
			COALESCE(COUNT(*) FILTER (WHERE status = 'failed'), 0)::int,
			COALESCE(COUNT(*) FILTER (WHERE status = 'paused'), 0)::int,
			COALESCE(COUNT(*), 0)::int
		FROM switchboard.social_queue
	`).Scan(&stats.Queued, &stats.Posting, &stats.Posted, &stats.Failed, &stats.Paused, &stats.Total)
	if err != nil {
		logger.WithError(err).Error("Failed to fetch queue stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch queue stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// PauseQueueEntry moves a queued or failed entry to paused
func PauseQueueEntry(c *gin.Context) {
	id := c.Param("id")
	_, err := db.ExecContext(c.Request.Context(), `
		UPDATE switchboard.social_queue
		SET status = 'paused', updated_at = NOW()
		WHERE id = $1 AND status IN ('queued', 'failed')
	`, id)
	if err != nil {
		logger.WithError(err).WithField("entry_id", id).Error("Failed to pause queue entry")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to pause queue entry"})
		return
	}

	auditEmit(c.Request.Context(), "social.queue.paused", map[string]interface{}{"id": id})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ResumeQueueEntry moves a paused entry back to queued
func ResumeQueueEntry(c *gin.Context) {
	id := c.Param("id")
	_, err := db.ExecContext(c.Request.Context(), `
		UPDATE switchboard.social_queue
		SET status = 'queued', next_attempt_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'paused'
	`, id)
	if err != nil {
		logger.WithError(err).WithField("entry_id", id).Error("Failed to resume queue entry")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resume queue entry"})
		return
	}

	auditEmit(c.Request.Context(), "social.queue.resumed", map[string]interface{}{"id": id})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// RetryQueueEntry requeues an entry for immediate pickup, clamping its attempts
func RetryQueueEntry(c *gin.Context) {
	id := c.Param("id")
	_, err := db.ExecContext(c.Request.Context(), `
		UPDATE switchboard.social_queue
		SET status = 'queued', next_attempt_at = NOW(), attempts = LEAST(attempts, 5), updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		logger.WithError(err).WithField("entry_id", id).Error("Failed to retry queue entry")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retry queue entry"})
		return
	}

	auditEmit(c.Request.Context(), "social.queue.retry", map[string]interface{}{"id": id})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// CancelQueueEntry cancels a single entry by id
func CancelQueueEntry(c *gin.Context) {
	id := c.Param("id")
	_, err := db.ExecContext(c.Request.Context(), `
		UPDATE switchboard.social_queue
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status IN ('queued', 'failed', 'paused')
	`, id)
	if err != nil {
		logger.WithError(err).WithField("entry_id", id).Error("Failed to cancel queue entry")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel queue entry"})
		return
	}

	auditEmit(c.Request.Context(), "social.queue.cancelled", map[string]interface{}{"id": id})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
