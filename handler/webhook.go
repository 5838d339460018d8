package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/ankitkr9911/vendor-processing/pkg/logger"
	"github.com/ankitkr9911/vendor-processing/service"
	"github.com/gin-gonic/gin"
)

const signatureHeader = "X-Nylas-Signature"

type WebhookHandler struct {
	webhook *service.WebhookService
	mail    *service.MailService
}

func NewWebhookHandler(webhook *service.WebhookService, mail *service.MailService) *WebhookHandler {
	return &WebhookHandler{webhook: webhook, mail: mail}
}

// Challenge echoes the provider's ownership-verification token
func (h *WebhookHandler) Challenge(c *gin.Context) {
	c.String(http.StatusOK, c.Query("challenge"))
}

// Receive accepts a message-created event and processes it in the
// background. The response never waits on (or reveals) pipeline work.
func (h *WebhookHandler) Receive(c *gin.Context) {
	ctx := c.Request.Context()

	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	if h.mail.HasWebhookSecret() {
		if !h.mail.VerifySignature(rawBody, c.GetHeader(signatureHeader)) {
			logger.Warn(ctx, "webhook signature verification failed")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			return
		}
	} else {
		logger.Warn(ctx, "no webhook secret configured, accepting unsigned event")
	}

	var payload service.WebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}
	if payload.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing event id"})
		return
	}

	// Processing survives the request; only the request id carries over
	bgCtx := context.WithValue(context.Background(), logger.RequestIDKey,
		c.GetString("request_id"))
	go h.webhook.ProcessEvent(bgCtx, &payload, string(rawBody))

	c.JSON(http.StatusOK, gin.H{
		"status":   "accepted",
		"event_id": payload.ID,
	})
}

// Stats returns the audit-log summary
func (h *WebhookHandler) Stats(c *gin.Context) {
	limit, _ := strconv.ParseInt(c.DefaultQuery("recent", "10"), 10, 64)

	stats, err := h.webhook.Stats(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load statistics"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
