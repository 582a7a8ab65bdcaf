package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/DSTX70/gigster-switchboard/pkg/logging"
	"github.com/DSTX70/gigster-switchboard/pkg/models"
)

// auditEmit records one operational state transition. Audit is advisory: it is
// written to the log stream and, best effort, to the audit table. It never
// returns an error and never blocks or reverses the primary operation.
func auditEmit(ctx context.Context, event string, payload map[string]interface{}) {
	logger.WithFields(logging.Fields{
		"audit_event": event,
		"payload":     payload,
	}).Info("Audit event")

	encoded, err := json.Marshal(payload)
	if err != nil {
		logger.WithError(err).WithField("audit_event", event).Warn("Failed to encode audit payload")
		return
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO switchboard.audit_log (event, payload)
		VALUES ($1, $2)
	`, event, encoded); err != nil {
		logger.WithError(err).WithField("audit_event", event).Warn("Failed to persist audit record")
	}
}

// GetAuditLog returns recent audit records, newest first
func GetAuditLog(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 || limit > 1000 {
		limit = 100
	}

	rows, err := db.QueryContext(c.Request.Context(), `
		SELECT event, payload, created_at
		FROM switchboard.audit_log
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		logger.WithError(err).Error("Failed to fetch audit log")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch audit log"})
		return
	}
	defer rows.Close()

	items := []models.AuditRecord{}
	for rows.Next() {
		var (
			record  models.AuditRecord
			payload []byte
			created time.Time
		)
		if err := rows.Scan(&record.Event, &payload, &created); err != nil {
			logger.WithError(err).Error("Error scanning audit record")
			continue
		}
		record.Timestamp = created
		if err := json.Unmarshal(payload, &record.Payload); err != nil {
			record.Payload = map[string]interface{}{}
		}
		items = append(items, record)
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}
