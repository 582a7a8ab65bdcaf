package handlers

import (
	"time"

	"github.com/DSTX70/gigster-switchboard/pkg/models"
)

// iCadence event types
const (
	ICadenceSchedulePosted  = "schedule.posted"
	ICadenceScheduleDeleted = "schedule.deleted"
)

// RFP responder event types
const (
	RFPRequested = "rfp.requested"
	RFPUpdated   = "rfp.updated"
)

// Loyalty rewards event types
const (
	LoyaltyPointsAdded    = "loyalty.points.added"
	LoyaltyPointsRedeemed = "loyalty.points.redeemed"
	LoyaltyAdjustment     = "loyalty.adjustment"
)

// ICadenceSchedulePayload carries a "post now" instruction from iCadence
type ICadenceSchedulePayload struct {
	ProfileID   string             `json:"profileId"`
	Platform    string             `json:"platform"`
	ScheduledAt time.Time          `json:"scheduledAt"`
	Content     models.PostContent `json:"content"`
}

// ICadenceDeletePayload retracts a previously scheduled post
type ICadenceDeletePayload struct {
	ProfileID   string    `json:"profileId"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// RFPPayload describes an inbound request-for-proposal
type RFPPayload struct {
	RFPID       string   `json:"rfpId"`
	Client      string   `json:"client"`
	DueDate     string   `json:"dueDate"`
	Scope       string   `json:"scope"`
	BudgetRange string   `json:"budgetRange,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

// LoyaltyPayload describes a loyalty points mutation
type LoyaltyPayload struct {
	UserID     string                 `json:"userId"`
	DeltaPoint float64                `json:"deltaPoints"`
	Reason     string                 `json:"reason"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

var loyaltyReasons = map[string]bool{
	"payment":    true,
	"referral":   true,
	"milestone":  true,
	"adjustment": true,
}

// Webhook processing outcomes. "ignored" marks an event type the source adapter
// recognizes no handler for, so callers can tell processed from skipped.
const (
	OutcomeProcessed     = "processed"
	OutcomeQueued        = "queued"
	OutcomeCancelled     = "cancelled"
	OutcomeDraftCreated  = "proposal_drafted"
	OutcomePointsApplied = "points_applied"
	OutcomeIgnored       = "ignored"
)

// WebhookResult is the uniform adapter response returned to the webhook sender
type WebhookResult struct {
	OK                   bool    `json:"ok"`
	Outcome              string  `json:"outcome"`
	Queued               bool    `json:"queued,omitempty"`
	Cancelled            bool    `json:"cancelled,omitempty"`
	RowsAffected         int64   `json:"rowsAffected,omitempty"`
	ProposalDraftCreated bool    `json:"proposalDraftCreated,omitempty"`
	AppliedPoints        float64 `json:"applied,omitempty"`
}
