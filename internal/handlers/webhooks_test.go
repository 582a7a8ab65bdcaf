package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
)

const testWebhookSecret = "test-secret"

func installWebhookConfig(t *testing.T, c Config) {
	t.Helper()
	prevCfg := cfg
	cfg = c
	t.Cleanup(func() { cfg = prevCfg })
}

func enabledTestConfig() Config {
	return Config{
		ICadenceWebhookSecret: testWebhookSecret,
		RFPWebhookSecret:      testWebhookSecret,
		LoyaltyWebhookSecret:  testWebhookSecret,
		ICadenceEnabled:       true,
		RFPEnabled:            true,
		LoyaltyEnabled:        true,
		MaxMediaBytes:         10 * 1024 * 1024,
		ErrorRateAlertPct:     5,
		QueueAgeAlertMinutes:  30,
		SaturationAlertPct:    90,
	}
}

func webhookRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/integrations/:partner/webhook", HandleIntegrationWebhook)
	router.GET("/integrations/status", GetIntegrationsStatus)
	return router
}

func envelopeBody(t *testing.T, source, eventType string, payload interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to encode payload: %v", err)
	}
	body, err := json.Marshal(map[string]interface{}{
		"id":        "evt_1",
		"source":    source,
		"type":      eventType,
		"timestamp": "2026-08-30T12:00:00Z",
		"payload":   json.RawMessage(raw),
	})
	if err != nil {
		t.Fatalf("failed to encode envelope: %v", err)
	}
	return body
}

func postWebhook(router *gin.Engine, partner string, body []byte, signature string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/integrations/"+partner+"/webhook", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Webhook-Signature", signature)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestWebhookUnknownPartner(t *testing.T) {
	installTestDB(t)
	installWebhookConfig(t, enabledTestConfig())
	router := webhookRouter()

	w := postWebhook(router, "stripe", []byte(`{}`), "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "unknown_partner") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestWebhookDisabledIntegration(t *testing.T) {
	installTestDB(t)
	c := enabledTestConfig()
	c.RFPEnabled = false
	installWebhookConfig(t, c)
	router := webhookRouter()

	body := envelopeBody(t, "rfp", RFPRequested, map[string]string{"rfpId": "r1"})
	w := postWebhook(router, "rfp", body, signBody(body, testWebhookSecret))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for disabled integration, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "integration_disabled") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestWebhookBadEnvelope(t *testing.T) {
	installTestDB(t)
	installWebhookConfig(t, enabledTestConfig())
	router := webhookRouter()

	bodies := [][]byte{
		[]byte(`not json`),
		[]byte(`{"source":"icadence","type":"schedule.posted"}`),
		[]byte(`{"id":"evt_1","type":"schedule.posted"}`),
	}
	for _, body := range bodies {
		w := postWebhook(router, "icadence", body, signBody(body, testWebhookSecret))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, w.Code)
		}
		if !strings.Contains(w.Body.String(), "bad_envelope") {
			t.Fatalf("body %s: unexpected response %s", body, w.Body.String())
		}
	}
}

func TestWebhookSourcePathMismatch(t *testing.T) {
	installTestDB(t)
	installWebhookConfig(t, enabledTestConfig())
	router := webhookRouter()

	body := envelopeBody(t, "loyalty", LoyaltyPointsAdded, map[string]interface{}{"userId": "u1", "deltaPoints": 5, "reason": "payment"})
	w := postWebhook(router, "icadence", body, signBody(body, testWebhookSecret))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for mismatched source, got %d", w.Code)
	}
}

func TestWebhookBadSignature(t *testing.T) {
	mock := installTestDB(t)
	installWebhookConfig(t, enabledTestConfig())
	router := webhookRouter()

	body := envelopeBody(t, "icadence", ICadenceSchedulePosted, map[string]interface{}{
		"profileId": "p1", "platform": "instagram", "scheduledAt": "2026-09-01T10:00:00Z",
		"content": map[string]interface{}{"text": "hello"},
	})

	for _, sig := range []string{"", "deadbeef", signBody(body, "wrong-secret")} {
		w := postWebhook(router, "icadence", body, sig)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("signature %q: expected 401, got %d", sig, w.Code)
		}
	}
	// Rejection happens before any side effect
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no storage work expected for rejected requests: %v", err)
	}
}

func TestWebhookRejectsWhenSecretUnset(t *testing.T) {
	installTestDB(t)
	c := enabledTestConfig()
	c.ICadenceWebhookSecret = ""
	installWebhookConfig(t, c)
	router := webhookRouter()

	body := envelopeBody(t, "icadence", ICadenceSchedulePosted, map[string]interface{}{
		"profileId": "p1", "platform": "instagram", "scheduledAt": "2026-09-01T10:00:00Z",
		"content": map[string]interface{}{"text": "hello"},
	})
	// An unset secret fails closed even when the sender signs with an empty key
	w := postWebhook(router, "icadence", body, signBody(body, ""))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with unset secret, got %d", w.Code)
	}
}

func TestWebhookSchedulePostedFullFlow(t *testing.T) {
	mock := installTestDB(t)
	installWebhookConfig(t, enabledTestConfig())
	router := webhookRouter()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO switchboard.social_queue")).
		WithArgs("p1", "instagram", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO switchboard.audit_log")).
		WithArgs("social.queue.enqueued", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	body := envelopeBody(t, "icadence", ICadenceSchedulePosted, map[string]interface{}{
		"profileId": "p1", "platform": "instagram", "scheduledAt": "2026-09-01T10:00:00Z",
		"content": map[string]interface{}{"text": "launch day"},
	})
	w := postWebhook(router, "icadence", body, signBody(body, testWebhookSecret))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var result WebhookResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if !result.OK || result.Outcome != OutcomeQueued || !result.Queued {
		t.Fatalf("unexpected result: %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWebhookSchedulePostedSchemaRejection(t *testing.T) {
	mock := installTestDB(t)
	installWebhookConfig(t, enabledTestConfig())
	router := webhookRouter()

	body := envelopeBody(t, "icadence", ICadenceSchedulePosted, map[string]interface{}{
		"platform": "instagram", "scheduledAt": "2026-09-01T10:00:00Z",
		"content": map[string]interface{}{"text": "hello"},
	})
	w := postWebhook(router, "icadence", body, signBody(body, testWebhookSecret))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "bad_payload") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("schema rejection must precede storage: %v", err)
	}
}

func TestWebhookScheduleDeleted(t *testing.T) {
	mock := installTestDB(t)
	installWebhookConfig(t, enabledTestConfig())
	router := webhookRouter()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE switchboard.social_queue")).
		WithArgs("p1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO switchboard.audit_log")).
		WithArgs("social.queue.deleted", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	body := envelopeBody(t, "icadence", ICadenceScheduleDeleted, map[string]interface{}{
		"profileId": "p1", "scheduledAt": "2026-09-01T10:00:00Z",
	})
	w := postWebhook(router, "icadence", body, signBody(body, testWebhookSecret))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var result WebhookResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.Outcome != OutcomeCancelled || !result.Cancelled || result.RowsAffected != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestWebhookUnhandledEventTypeIsIgnored(t *testing.T) {
	mock := installTestDB(t)
	installWebhookConfig(t, enabledTestConfig())
	router := webhookRouter()

	for _, tc := range []struct {
		partner   string
		eventType string
	}{
		{"icadence", "schedule.rescheduled"},
		{"rfp", "rfp.withdrawn"},
		{"loyalty", "loyalty.tier.changed"},
	} {
		body := envelopeBody(t, tc.partner, tc.eventType, map[string]interface{}{})
		w := postWebhook(router, tc.partner, body, signBody(body, testWebhookSecret))
		if w.Code != http.StatusOK {
			t.Fatalf("%s/%s: expected 200, got %d", tc.partner, tc.eventType, w.Code)
		}

		var result WebhookResult
		if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
			t.Fatalf("failed to decode result: %v", err)
		}
		if !result.OK || result.Outcome != OutcomeIgnored {
			t.Fatalf("%s/%s: expected ignored outcome, got %+v", tc.partner, tc.eventType, result)
		}
	}
	// Unhandled events acknowledge without touching storage
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected storage work: %v", err)
	}
}

func TestWebhookRFPRequested(t *testing.T) {
	installTestDB(t)
	installWebhookConfig(t, enabledTestConfig())
	router := webhookRouter()

	body := envelopeBody(t, "rfp", RFPRequested, map[string]interface{}{
		"rfpId": "rfp_9", "client": "Acme", "dueDate": "2026-10-01", "scope": "full rebrand",
	})
	w := postWebhook(router, "rfp", body, signBody(body, testWebhookSecret))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var result WebhookResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.Outcome != OutcomeDraftCreated || !result.ProposalDraftCreated {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestWebhookRFPUpdated(t *testing.T) {
	installTestDB(t)
	installWebhookConfig(t, enabledTestConfig())
	router := webhookRouter()

	body := envelopeBody(t, "rfp", RFPUpdated, map[string]interface{}{
		"rfpId": "rfp_9", "client": "Acme", "dueDate": "2026-10-01", "scope": "full rebrand",
	})
	w := postWebhook(router, "rfp", body, signBody(body, testWebhookSecret))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var result WebhookResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.Outcome != OutcomeProcessed || result.ProposalDraftCreated {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestWebhookLoyaltyPointsApplied(t *testing.T) {
	installTestDB(t)
	installWebhookConfig(t, enabledTestConfig())
	router := webhookRouter()

	body := envelopeBody(t, "loyalty", LoyaltyAdjustment, map[string]interface{}{
		"userId": "u1", "deltaPoints": -25, "reason": "adjustment",
	})
	w := postWebhook(router, "loyalty", body, signBody(body, testWebhookSecret))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var result WebhookResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.Outcome != OutcomePointsApplied || result.AppliedPoints != -25 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestGetIntegrationsStatus(t *testing.T) {
	installTestDB(t)
	c := enabledTestConfig()
	c.LoyaltyEnabled = false
	installWebhookConfig(t, c)
	router := webhookRouter()

	w := performRequest(router, http.MethodGet, "/integrations/status")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"icadence":true`) || !strings.Contains(body, `"loyalty":false`) {
		t.Fatalf("unexpected status body: %s", body)
	}
}
