package service

import (
	"context"
	"errors"

	"github.com/ankitkr9911/vendor-processing/model"
)

var (
	// ErrSessionNotFound is returned when a chat session id is unknown
	ErrSessionNotFound = errors.New("session not found")
	// ErrVendorNotFound is returned when a vendor id or email has no record
	ErrVendorNotFound = errors.New("vendor not found")
	// ErrEventNotFound is returned when an event id has no processing marker
	ErrEventNotFound = errors.New("event not found")
	// ErrNotReady is returned when confirm-and-submit runs outside awaiting_confirmation
	ErrNotReady = errors.New("draft is not awaiting confirmation")
	// ErrEventAlreadyClaimed is returned when a second delivery races the claim insert
	ErrEventAlreadyClaimed = errors.New("event already claimed")
	// ErrDuplicateVendor is returned when a vendor record already exists for the email
	ErrDuplicateVendor = errors.New("vendor already exists")
)

// WebhookStats summarizes the audit log for the operator endpoint
type WebhookStats struct {
	Total     int64                   `json:"total"`
	ByOutcome map[string]int64        `json:"by_outcome"`
	Recent    []model.WebhookLogEntry `json:"recent"`
}

// Store is the persistence boundary shared by both ingestion paths.
// Two implementations exist: a Mongo-backed store and an in-memory
// store used by tests and no-database dev runs.
type Store interface {
	// Drafts and chat transcript
	SaveDraft(ctx context.Context, draft *model.VendorDraft) error
	GetDraft(ctx context.Context, sessionID string) (*model.VendorDraft, error)
	AppendChatMessage(ctx context.Context, msg *model.ChatMessage) error
	GetChatHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error)

	// Vendor records and identity ledger
	InsertVendor(ctx context.Context, rec *model.VendorRecord) error
	GetVendor(ctx context.Context, vendorID string) (*model.VendorRecord, error)
	FindVendorByEmail(ctx context.Context, email string) (*model.VendorRecord, error)
	ListVendors(ctx context.Context, status string, limit, skip int64) ([]model.VendorRecord, error)
	NextVendorSequence(ctx context.Context) (int64, error)

	// Event idempotency markers
	GetProcessedEvent(ctx context.Context, eventID string) (*model.ProcessedEvent, error)
	ClaimEvent(ctx context.Context, event *model.ProcessedEvent) error
	UpdateProcessedEvent(ctx context.Context, event *model.ProcessedEvent) error

	// Audit trail
	InsertRejectedEvent(ctx context.Context, rej *model.RejectedEvent) error
	AppendWebhookLog(ctx context.Context, entry *model.WebhookLogEntry) error
	GetWebhookStats(ctx context.Context, recentLimit int64) (*WebhookStats, error)
}
