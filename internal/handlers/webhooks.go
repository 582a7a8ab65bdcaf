package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DSTX70/gigster-switchboard/pkg/logging"
	"github.com/DSTX70/gigster-switchboard/pkg/middleware"
	"github.com/DSTX70/gigster-switchboard/pkg/models"
)

// HandleIntegrationWebhook is the single entry point for partner events.
// Sequencing is fixed: signature verification, then schema validation, then
// media policy, then persistence. If any stage fails the request is rejected
// and no side effect occurs.
func HandleIntegrationWebhook(c *gin.Context) {
	partner := c.Param("partner")

	enabled, known := integrationEnabled(partner)
	if !known {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_partner"})
		return
	}
	if !enabled {
		c.JSON(http.StatusNotFound, gin.H{"error": "integration_disabled"})
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_envelope"})
		return
	}

	var envelope models.EventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.ID == "" || envelope.Source == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_envelope"})
		return
	}
	if envelope.Source != partner {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_envelope", "message": "envelope source does not match webhook path"})
		return
	}

	signature := envelope.Signature
	if signature == "" {
		signature = c.GetHeader("X-Webhook-Signature")
	}
	if err := verifyWebhookSignature(body, signature, webhookSecretFor(partner)); err != nil {
		logger.WithFields(logging.Fields{
			"partner":  partner,
			"event_id": envelope.ID,
			"reason":   err.Error(),
		}).Warn("Rejected webhook with bad signature")
		countWebhookEvent(partner, envelope.Type, "rejected_signature")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "bad_signature"})
		return
	}

	middleware.GetContextLogger(c, logger).WithFields(logging.Fields{
		"partner":    partner,
		"event_id":   envelope.ID,
		"event_type": envelope.Type,
	}).Info("Received integration webhook")

	result, err := dispatchEvent(c.Request.Context(), partner, envelope.Type, envelope.Payload)
	if err != nil {
		var schemaErr *SchemaViolationError
		var mediaErr *MediaPolicyError
		switch {
		case errors.As(err, &schemaErr):
			countWebhookEvent(partner, envelope.Type, "rejected_schema")
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload", "message": schemaErr.Error()})
		case errors.As(err, &mediaErr):
			countWebhookEvent(partner, envelope.Type, "rejected_media")
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload", "message": mediaErr.Error()})
		default:
			logger.WithError(err).WithFields(logging.Fields{
				"partner":    partner,
				"event_type": envelope.Type,
			}).Error("Failed to process integration webhook")
			countWebhookEvent(partner, envelope.Type, "error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "processing_failed"})
		}
		return
	}

	countWebhookEvent(partner, envelope.Type, result.Outcome)
	c.JSON(http.StatusOK, result)
}

func integrationEnabled(partner string) (enabled, known bool) {
	switch partner {
	case models.SourceICadence:
		return cfg.ICadenceEnabled, true
	case models.SourceRFP:
		return cfg.RFPEnabled, true
	case models.SourceLoyalty:
		return cfg.LoyaltyEnabled, true
	default:
		return false, false
	}
}

func webhookSecretFor(partner string) string {
	switch partner {
	case models.SourceICadence:
		return cfg.ICadenceWebhookSecret
	case models.SourceRFP:
		return cfg.RFPWebhookSecret
	case models.SourceLoyalty:
		return cfg.LoyaltyWebhookSecret
	default:
		return ""
	}
}

func dispatchEvent(ctx context.Context, partner, eventType string, payload json.RawMessage) (WebhookResult, error) {
	switch partner {
	case models.SourceICadence:
		return handleICadenceEvent(ctx, eventType, payload)
	case models.SourceRFP:
		return handleRFPEvent(eventType, payload)
	case models.SourceLoyalty:
		return handleLoyaltyEvent(eventType, payload)
	}
	// Unreachable: partner is checked before dispatch
	return WebhookResult{}, errors.New("unknown partner")
}

// handleICadenceEvent queues or retracts scheduled social posts
func handleICadenceEvent(ctx context.Context, eventType string, payload json.RawMessage) (WebhookResult, error) {
	switch eventType {
	case ICadenceSchedulePosted:
		event, err := parseICadenceSchedule(payload)
		if err != nil {
			return WebhookResult{}, err
		}
		if err := validateMediaURLs(ctx, event.Content.MediaURLs, cfg.MaxMediaBytes); err != nil {
			return WebhookResult{}, err
		}
		if err := enqueueSocialPost(ctx, event); err != nil {
			return WebhookResult{}, err
		}
		return WebhookResult{OK: true, Outcome: OutcomeQueued, Queued: true}, nil

	case ICadenceScheduleDeleted:
		event, err := parseICadenceDelete(payload)
		if err != nil {
			return WebhookResult{}, err
		}
		affected, err := cancelScheduledPost(ctx, event)
		if err != nil {
			return WebhookResult{}, err
		}
		return WebhookResult{OK: true, Outcome: OutcomeCancelled, Cancelled: true, RowsAffected: affected}, nil

	default:
		logger.WithField("event_type", eventType).Debug("Ignoring unhandled iCadence event type")
		return WebhookResult{OK: true, Outcome: OutcomeIgnored}, nil
	}
}

// handleRFPEvent acknowledges request-for-proposal events; drafting happens in
// the proposals service downstream
func handleRFPEvent(eventType string, payload json.RawMessage) (WebhookResult, error) {
	switch eventType {
	case RFPRequested, RFPUpdated:
		if _, err := parseRFPPayload(payload); err != nil {
			return WebhookResult{}, err
		}
		outcome := OutcomeProcessed
		if eventType == RFPRequested {
			outcome = OutcomeDraftCreated
		}
		return WebhookResult{
			OK:                   true,
			Outcome:              outcome,
			ProposalDraftCreated: eventType == RFPRequested,
		}, nil

	default:
		logger.WithField("event_type", eventType).Debug("Ignoring unhandled RFP event type")
		return WebhookResult{OK: true, Outcome: OutcomeIgnored}, nil
	}
}

// handleLoyaltyEvent acknowledges loyalty point mutations; the ledger itself is
// maintained by the loyalty service downstream
func handleLoyaltyEvent(eventType string, payload json.RawMessage) (WebhookResult, error) {
	switch eventType {
	case LoyaltyPointsAdded, LoyaltyPointsRedeemed, LoyaltyAdjustment:
		event, err := parseLoyaltyPayload(payload)
		if err != nil {
			return WebhookResult{}, err
		}
		return WebhookResult{OK: true, Outcome: OutcomePointsApplied, AppliedPoints: event.DeltaPoint}, nil

	default:
		logger.WithField("event_type", eventType).Debug("Ignoring unhandled loyalty event type")
		return WebhookResult{OK: true, Outcome: OutcomeIgnored}, nil
	}
}

// GetIntegrationsStatus reports which partner integrations are enabled
func GetIntegrationsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"integrations": gin.H{
			models.SourceICadence: cfg.ICadenceEnabled,
			models.SourceRFP:      cfg.RFPEnabled,
			models.SourceLoyalty:  cfg.LoyaltyEnabled,
		},
	})
}

func countWebhookEvent(source, eventType, status string) {
	if metrics != nil && metrics.WebhookEvents != nil {
		metrics.WebhookEvents.WithLabelValues(source, eventType, status).Inc()
	}
}
