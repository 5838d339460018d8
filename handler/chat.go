package handler

import (
	"errors"
	"net/http"

	"github.com/ankitkr9911/vendor-processing/service"
	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chat *service.ChatService
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type MessageRequest struct {
	Message string `json:"message" binding:"required"`
}

type ConfirmRequest struct {
	Confirmed bool `json:"confirmed"`
}

// StartSession creates a new registration session
func (h *ChatHandler) StartSession(c *gin.Context) {
	sessionID, greeting, err := h.chat.StartSession(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"message":    greeting,
	})
}

// SendMessage handles one chat turn
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	reply, err := h.chat.HandleMessage(c.Request.Context(), c.Param("session_id"), req.Message)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process message"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": reply})
}

// Upload receives a document for the session
func (h *ChatHandler) Upload(c *gin.Context) {
	kindTag := c.PostForm("document_type")
	if kindTag == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document_type is required"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	defer file.Close()

	result, err := h.chat.UploadDocument(c.Request.Context(), c.Param("session_id"), kindTag, header.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		case errors.Is(err, service.ErrInvalidKind), errors.Is(err, service.ErrInvalidExtension):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrUploadNotExpected):
			c.JSON(http.StatusConflict, gin.H{"error": "Not expecting a document upload at this stage"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process upload"})
		}
		return
	}
	c.JSON(http.StatusOK, result)
}

// Summary returns the pre-submit confirmation view
func (h *ChatHandler) Summary(c *gin.Context) {
	summary, err := h.chat.Summary(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		case errors.Is(err, service.ErrNotReady):
			c.JSON(http.StatusConflict, gin.H{"error": "Registration is not awaiting confirmation yet"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build summary"})
		}
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Confirm triggers the one-shot submission
func (h *ChatHandler) Confirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	record, err := h.chat.ConfirmAndSubmit(c.Request.Context(), c.Param("session_id"), req.Confirmed)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		case errors.Is(err, service.ErrNotReady):
			c.JSON(http.StatusConflict, gin.H{"error": "Registration is not awaiting confirmation yet"})
		case errors.Is(err, service.ErrDuplicateVendor):
			c.JSON(http.StatusConflict, gin.H{"error": "A vendor with this email is already registered"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit registration"})
		}
		return
	}

	if record == nil {
		c.JSON(http.StatusOK, gin.H{"message": "Submission cancelled, you can keep editing"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"vendor_id": record.VendorID,
		"status":    record.Status,
		"message":   "Registration complete",
	})
}

// History returns the session transcript
func (h *ChatHandler) History(c *gin.Context) {
	history, err := h.chat.History(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": history})
}
