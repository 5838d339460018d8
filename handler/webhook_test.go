package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ankitkr9911/vendor-processing/config"
	"github.com/ankitkr9911/vendor-processing/model"
	"github.com/ankitkr9911/vendor-processing/service"
	"github.com/gin-gonic/gin"
)

const webhookTestSecret = "test-webhook-secret"

func newWebhookMailServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v3/grants/grant1/messages/", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"request_id": "req-1",
			"data": service.Message{
				ID:      "msg-1",
				GrantID: "grant1",
				Subject: "Vendor Registration - Acme Traders",
				Body: "<p>Name: Rajesh Sharma</p><p>Age: 35</p><p>Mobile: 9876543210</p>" +
					"<p>Email: rajesh@acme.com</p>",
				Attachments: []service.Attachment{
					{ID: "att-1", Filename: "aadhar.png"},
					{ID: "att-2", Filename: "pan.jpg"},
					{ID: "att-3", Filename: "gst.png"},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("GET /v3/grants/grant1/attachments/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "attachment bytes")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func setupWebhookRouter(t *testing.T, secret string) (*gin.Engine, *service.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := service.NewMemoryStore()
	root := t.TempDir()
	workspace, err := service.NewWorkspaceManager(&config.StorageConfig{
		VendorsRoot: filepath.Join(root, "vendors"),
		TempRoot:    filepath.Join(root, "temp_uploads"),
	})
	if err != nil {
		t.Fatalf("NewWorkspaceManager failed: %v", err)
	}
	mailCfg := &config.MailConfig{
		APIURL:          newWebhookMailServer(t).URL,
		APIKey:          "test-key",
		GrantID:         "grant1",
		WebhookSecret:   secret,
		DownloadWorkers: 3,
		DownloadTimeout: 5,
	}
	mail := service.NewMailService(mailCfg)
	normalizer := service.NewNormalizer(&config.PDFConfig{DPI: 300})
	webhook := service.NewWebhookService(store, mail, workspace, normalizer, mailCfg)

	h := NewWebhookHandler(webhook, mail)
	router := gin.New()
	router.GET("/webhooks/mail/message-created", h.Challenge)
	router.POST("/webhooks/mail/message-created", h.Receive)
	router.GET("/api/webhooks/stats", h.Stats)
	return router, store
}

func signedBody(secret string, payload any) ([]byte, string) {
	body, _ := json.Marshal(payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return body, hex.EncodeToString(mac.Sum(nil))
}

func webhookPayload(eventID string) map[string]any {
	return map[string]any{
		"id":   eventID,
		"type": "message.created",
		"data": map[string]any{
			"object": map[string]any{
				"id":       "msg-1",
				"grant_id": "grant1",
				"subject":  "Vendor Registration - Acme Traders",
			},
		},
	}
}

func waitForEvent(t *testing.T, store *service.MemoryStore, eventID string) *model.ProcessedEvent {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		event, err := store.GetProcessedEvent(context.Background(), eventID)
		if err == nil && event.Status != model.EventProcessing {
			return event
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for event %s to finish", eventID)
	return nil
}

func TestWebhookChallenge(t *testing.T) {
	router, _ := setupWebhookRouter(t, webhookTestSecret)

	req := httptest.NewRequest("GET", "/webhooks/mail/message-created?challenge=echo-me-back", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if w.Body.String() != "echo-me-back" {
		t.Errorf("Expected challenge echoed verbatim, got %q", w.Body.String())
	}
}

func TestWebhookReceive(t *testing.T) {
	router, store := setupWebhookRouter(t, webhookTestSecret)

	body, signature := signedBody(webhookTestSecret, webhookPayload("evt-1"))
	req := httptest.NewRequest("POST", "/webhooks/mail/message-created", bytes.NewBuffer(body))
	req.Header.Set("X-Nylas-Signature", signature)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "accepted" || resp["event_id"] != "evt-1" {
		t.Errorf("Unexpected acceptance response %v", resp)
	}

	// Processing continues after the response
	event := waitForEvent(t, store, "evt-1")
	if event.Status != model.EventCompleted {
		t.Fatalf("Expected completed event, got %+v", event)
	}
	if _, err := store.GetVendor(context.Background(), event.VendorID); err != nil {
		t.Errorf("Expected vendor record %s: %v", event.VendorID, err)
	}
}

func TestWebhookReceiveInvalidSignature(t *testing.T) {
	router, store := setupWebhookRouter(t, webhookTestSecret)

	body, _ := signedBody(webhookTestSecret, webhookPayload("evt-1"))
	req := httptest.NewRequest("POST", "/webhooks/mail/message-created", bytes.NewBuffer(body))
	req.Header.Set("X-Nylas-Signature", "deadbeef")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", w.Code)
	}

	// Nothing may have been processed
	if _, err := store.GetProcessedEvent(context.Background(), "evt-1"); err == nil {
		t.Error("Expected no processing for rejected delivery")
	}
}

func TestWebhookReceiveWithoutSecret(t *testing.T) {
	router, store := setupWebhookRouter(t, "")

	body, _ := json.Marshal(webhookPayload("evt-2"))
	req := httptest.NewRequest("POST", "/webhooks/mail/message-created", bytes.NewBuffer(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 when unsecured, got %d", w.Code)
	}
	event := waitForEvent(t, store, "evt-2")
	if event.Status != model.EventCompleted {
		t.Errorf("Expected completed event, got %+v", event)
	}
}

func TestWebhookReceiveBadPayload(t *testing.T) {
	router, _ := setupWebhookRouter(t, webhookTestSecret)

	t.Run("invalid json", func(t *testing.T) {
		body := []byte("{not json")
		mac := hmac.New(sha256.New, []byte(webhookTestSecret))
		mac.Write(body)
		req := httptest.NewRequest("POST", "/webhooks/mail/message-created", bytes.NewBuffer(body))
		req.Header.Set("X-Nylas-Signature", hex.EncodeToString(mac.Sum(nil)))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})

	t.Run("missing event id", func(t *testing.T) {
		payload := webhookPayload("evt-3")
		payload["id"] = ""
		body, signature := signedBody(webhookTestSecret, payload)
		req := httptest.NewRequest("POST", "/webhooks/mail/message-created", bytes.NewBuffer(body))
		req.Header.Set("X-Nylas-Signature", signature)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})
}

func TestWebhookStats(t *testing.T) {
	router, store := setupWebhookRouter(t, webhookTestSecret)
	ctx := context.Background()

	for _, outcome := range []string{model.OutcomeSuccess, model.OutcomeRejected, model.OutcomeSuccess} {
		err := store.AppendWebhookLog(ctx, &model.WebhookLogEntry{
			EventID:   "evt-x",
			Outcome:   outcome,
			Timestamp: time.Now(),
		})
		if err != nil {
			t.Fatalf("AppendWebhookLog failed: %v", err)
		}
	}

	req := httptest.NewRequest("GET", "/api/webhooks/stats?recent=2", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var stats service.WebhookStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Failed to parse stats: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("Expected total 3, got %d", stats.Total)
	}
	if stats.ByOutcome[model.OutcomeSuccess] != 2 {
		t.Errorf("Expected 2 successes, got %+v", stats.ByOutcome)
	}
	if len(stats.Recent) != 2 {
		t.Errorf("Expected 2 recent entries, got %d", len(stats.Recent))
	}
}
