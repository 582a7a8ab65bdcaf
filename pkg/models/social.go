package models

import (
	"encoding/json"
	"time"
)

// Event sources accepted by the integrations webhook
const (
	SourceICadence = "icadence"
	SourceRFP      = "rfp"
	SourceLoyalty  = "loyalty"
)

// EventEnvelope wraps any inbound third-party event prior to source-specific typing
type EventEnvelope struct {
	ID        string          `json:"id"`
	Source    string          `json:"source"`
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature,omitempty"`
}

// Social queue entry statuses
const (
	QueueStatusQueued    = "queued"
	QueueStatusPosting   = "posting"
	QueueStatusPosted    = "posted"
	QueueStatusFailed    = "failed"
	QueueStatusCancelled = "cancelled"
	QueueStatusPaused    = "paused"
)

// SocialPlatforms is the closed set of supported networks
var SocialPlatforms = []string{"x", "instagram", "tiktok", "linkedin", "facebook", "youtube"}

// IsSocialPlatform reports whether p is a supported network
func IsSocialPlatform(p string) bool {
	for _, known := range SocialPlatforms {
		if p == known {
			return true
		}
	}
	return false
}

// PostContent is the body of a scheduled social post
type PostContent struct {
	Text      string   `json:"text"`
	MediaURLs []string `json:"mediaUrls,omitempty"`
}

// SocialQueueEntry is one unit of scheduled posting work
type SocialQueueEntry struct {
	ID            string      `json:"id"`
	ProfileID     string      `json:"profile_id"`
	Platform      string      `json:"platform"`
	Content       PostContent `json:"content"`
	ScheduledAt   time.Time   `json:"scheduled_at"`
	Status        string      `json:"status"`
	Attempts      int         `json:"attempts"`
	NextAttemptAt *time.Time  `json:"next_attempt_at,omitempty"`
	LastError     *string     `json:"last_error,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// QueueStats holds per-status counts for the social queue
type QueueStats struct {
	Queued  int `json:"queued"`
	Posting int `json:"posting"`
	Posted  int `json:"posted"`
	Failed  int `json:"failed"`
	Paused  int `json:"paused"`
	Total   int `json:"total"`
}

// MediaProbe is one cached HEAD-style check of an externally referenced media URL
type MediaProbe struct {
	URL           string    `json:"url"`
	ContentLength *int64    `json:"content_length"`
	ContentType   *string   `json:"content_type"`
	OK            bool      `json:"ok"`
	CheckedAt     time.Time `json:"checked_at"`
}

// RateLimitWindow is the sliding usage window tracked per platform
type RateLimitWindow struct {
	Platform        string    `json:"platform"`
	WindowSeconds   int       `json:"window_seconds"`
	MaxActions      int       `json:"max_actions"`
	UsedActions     int       `json:"used_actions"`
	WindowStartedAt time.Time `json:"window_started_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Saturation returns the fraction of the window's capacity already consumed, in percent
func (w RateLimitWindow) Saturation() float64 {
	max := w.MaxActions
	if max < 1 {
		max = 1
	}
	return 100 * float64(w.UsedActions) / float64(max)
}

// UsageBucket is one point of a windowed rate-limit usage series
type UsageBucket struct {
	Bucket time.Time `json:"bucket"`
	Total  int       `json:"total"`
}

// AuditRecord is one append-only operational audit entry
type AuditRecord struct {
	Event     string                 `json:"event"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}
