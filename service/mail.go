package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ankitkr9911/vendor-processing/config"
)

// MailService is the client for the external mail provider's HTTP API
type MailService struct {
	config     *config.MailConfig
	httpClient *http.Client
}

// Attachment describes one attachment on a message
type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// EmailAddress is one sender/recipient entry
type EmailAddress struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Message is the provider's message object
type Message struct {
	ID          string         `json:"id"`
	GrantID     string         `json:"grant_id"`
	Subject     string         `json:"subject"`
	Body        string         `json:"body"`
	From        []EmailAddress `json:"from"`
	Attachments []Attachment   `json:"attachments"`
	Date        int64          `json:"date"`
}

type messageResponse struct {
	RequestID string  `json:"request_id"`
	Data      Message `json:"data"`
}

type messageListResponse struct {
	RequestID string    `json:"request_id"`
	Data      []Message `json:"data"`
}

// NewMailService creates a mail provider client
func NewMailService(cfg *config.MailConfig) *MailService {
	return &MailService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// FetchMessages lists messages matching a subject filter
func (s *MailService) FetchMessages(ctx context.Context, limit int, subjectFilter string) ([]Message, error) {
	endpoint := fmt.Sprintf("%s/v3/grants/%s/messages", s.config.APIURL, s.config.GrantID)

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if subjectFilter != "" {
		q.Set("search_query_native", subjectFilter)
	}
	req.URL.RawQuery = q.Encode()
	s.setHeaders(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mail API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var result messageListResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return result.Data, nil
}

// GetMessage fetches the full message including body and attachments
func (s *MailService) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	endpoint := fmt.Sprintf("%s/v3/grants/%s/messages/%s", s.config.APIURL, s.config.GrantID, messageID)

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mail API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var result messageResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result.Data, nil
}

// DownloadAttachment streams an attachment into destDir and returns
// the saved path. The filename comes from the attachment record, or is
// recovered from the base64 segment of the attachment id
// (v0:base64_filename:base64_content_type:size) when absent.
func (s *MailService) DownloadAttachment(ctx context.Context, messageID string, att Attachment, destDir string) (string, error) {
	filename := att.Filename
	if filename == "" {
		filename = filenameFromAttachmentID(att.ID)
	}

	endpoint := fmt.Sprintf("%s/v3/grants/%s/attachments/%s/download",
		s.config.APIURL, s.config.GrantID, url.PathEscape(att.ID))

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	q := url.Values{}
	q.Set("message_id", messageID)
	req.URL.RawQuery = q.Encode()
	s.setHeaders(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mail API error: status %d downloading %s", resp.StatusCode, filename)
	}

	savePath := filepath.Join(destDir, filepath.Base(filename))
	out, err := os.Create(savePath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(savePath)
		return "", fmt.Errorf("failed to write attachment: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	return savePath, nil
}

// VerifySignature checks the webhook signature header: HMAC-SHA256 of
// the raw body with the shared secret, hex-encoded. Comparison is
// timing-safe.
func (s *MailService) VerifySignature(rawBody []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(s.config.WebhookSecret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}

// HasWebhookSecret reports whether signature verification is configured
func (s *MailService) HasWebhookSecret() bool {
	return s.config.WebhookSecret != ""
}

func (s *MailService) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	req.Header.Set("Accept", "application/json")
}

func filenameFromAttachmentID(id string) string {
	parts := strings.Split(id, ":")
	if len(parts) >= 2 {
		if decoded, err := base64.StdEncoding.DecodeString(parts[1]); err == nil {
			return string(decoded)
		}
	}
	if len(id) > 20 {
		id = id[:20]
	}
	return "attachment_" + id
}
