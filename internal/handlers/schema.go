package handlers

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/DSTX70/gigster-switchboard/pkg/models"
)

// maxPostTextChars caps the text body of a scheduled social post
const maxPostTextChars = 2800

// Schema validation is pure: it turns an untyped webhook payload into a typed
// event or fails with a SchemaViolationError naming the offending field. It
// runs before any network or storage call.

func parseICadenceSchedule(raw json.RawMessage) (*ICadenceSchedulePayload, error) {
	var wire struct {
		ProfileID   string              `json:"profileId"`
		Platform    string              `json:"platform"`
		ScheduledAt string              `json:"scheduledAt"`
		Content     *models.PostContent `json:"content"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, schemaViolation(models.SourceICadence, "payload", "is not a JSON object")
	}

	if wire.ProfileID == "" {
		return nil, schemaViolation(models.SourceICadence, "profileId", "is required")
	}
	if !models.IsSocialPlatform(wire.Platform) {
		return nil, schemaViolation(models.SourceICadence, "platform", fmt.Sprintf("must be one of %v", models.SocialPlatforms))
	}
	scheduledAt, err := time.Parse(time.RFC3339, wire.ScheduledAt)
	if err != nil {
		return nil, schemaViolation(models.SourceICadence, "scheduledAt", "must be an ISO timestamp")
	}
	if wire.Content == nil {
		return nil, schemaViolation(models.SourceICadence, "content", "is required")
	}
	if utf8.RuneCountInString(wire.Content.Text) > maxPostTextChars {
		return nil, schemaViolation(models.SourceICadence, "content.text", fmt.Sprintf("exceeds %d characters", maxPostTextChars))
	}
	for _, u := range wire.Content.MediaURLs {
		if !isWellFormedURL(u) {
			return nil, schemaViolation(models.SourceICadence, "content.mediaUrls", fmt.Sprintf("contains malformed URL %q", u))
		}
	}

	return &ICadenceSchedulePayload{
		ProfileID:   wire.ProfileID,
		Platform:    wire.Platform,
		ScheduledAt: scheduledAt,
		Content:     *wire.Content,
	}, nil
}

func parseICadenceDelete(raw json.RawMessage) (*ICadenceDeletePayload, error) {
	var wire struct {
		ProfileID   string `json:"profileId"`
		ScheduledAt string `json:"scheduledAt"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, schemaViolation(models.SourceICadence, "payload", "is not a JSON object")
	}

	if wire.ProfileID == "" {
		return nil, schemaViolation(models.SourceICadence, "profileId", "is required")
	}
	scheduledAt, err := time.Parse(time.RFC3339, wire.ScheduledAt)
	if err != nil {
		return nil, schemaViolation(models.SourceICadence, "scheduledAt", "must be an ISO timestamp")
	}

	return &ICadenceDeletePayload{ProfileID: wire.ProfileID, ScheduledAt: scheduledAt}, nil
}

func parseRFPPayload(raw json.RawMessage) (*RFPPayload, error) {
	var payload RFPPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, schemaViolation(models.SourceRFP, "payload", "is not a JSON object")
	}

	switch {
	case payload.RFPID == "":
		return nil, schemaViolation(models.SourceRFP, "rfpId", "is required")
	case payload.Client == "":
		return nil, schemaViolation(models.SourceRFP, "client", "is required")
	case payload.DueDate == "":
		return nil, schemaViolation(models.SourceRFP, "dueDate", "is required")
	case payload.Scope == "":
		return nil, schemaViolation(models.SourceRFP, "scope", "is required")
	}
	for _, u := range payload.Attachments {
		if !isWellFormedURL(u) {
			return nil, schemaViolation(models.SourceRFP, "attachments", fmt.Sprintf("contains malformed URL %q", u))
		}
	}

	return &payload, nil
}

func parseLoyaltyPayload(raw json.RawMessage) (*LoyaltyPayload, error) {
	var wire struct {
		UserID     string                 `json:"userId"`
		DeltaPoint *float64               `json:"deltaPoints"`
		Reason     string                 `json:"reason"`
		Metadata   map[string]interface{} `json:"metadata"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, schemaViolation(models.SourceLoyalty, "payload", "is not a JSON object")
	}

	if wire.UserID == "" {
		return nil, schemaViolation(models.SourceLoyalty, "userId", "is required")
	}
	if wire.DeltaPoint == nil {
		return nil, schemaViolation(models.SourceLoyalty, "deltaPoints", "is required")
	}
	if !loyaltyReasons[wire.Reason] {
		return nil, schemaViolation(models.SourceLoyalty, "reason", "must be one of payment, referral, milestone, adjustment")
	}

	return &LoyaltyPayload{
		UserID:     wire.UserID,
		DeltaPoint: *wire.DeltaPoint,
		Reason:     wire.Reason,
		Metadata:   wire.Metadata,
	}, nil
}

func isWellFormedURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
