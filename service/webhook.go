package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/ankitkr9911/vendor-processing/config"
	"github.com/ankitkr9911/vendor-processing/model"
	"github.com/ankitkr9911/vendor-processing/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// WebhookPayload is the inbound message-created event envelope
type WebhookPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID      string `json:"id"` // message id
			GrantID string `json:"grant_id"`
			Subject string `json:"subject"`
		} `json:"object"`
	} `json:"data"`
}

// WebhookService runs the email ingestion pipeline for one event at a
// time. Terminal outcomes are success, already_processed, rejected,
// duplicate and error; each one is appended to the audit log.
type WebhookService struct {
	store           Store
	mail            *MailService
	workspace       *WorkspaceManager
	normalizer      *Normalizer
	downloadWorkers int
	downloadTimeout time.Duration
}

// NewWebhookService wires the pipeline's collaborators
func NewWebhookService(store Store, mail *MailService, workspace *WorkspaceManager, normalizer *Normalizer, cfg *config.MailConfig) *WebhookService {
	workers := cfg.DownloadWorkers
	if workers <= 0 {
		workers = 3
	}
	timeout := time.Duration(cfg.DownloadTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookService{
		store:           store,
		mail:            mail,
		workspace:       workspace,
		normalizer:      normalizer,
		downloadWorkers: workers,
		downloadTimeout: timeout,
	}
}

// ProcessEvent runs the full pipeline for one delivery and returns the
// terminal outcome. It never panics through to the caller; errors end
// as the error outcome with the event marked failed.
func (s *WebhookService) ProcessEvent(ctx context.Context, payload *WebhookPayload, rawPayload string) string {
	eventID := payload.ID
	ctx = context.WithValue(ctx, logger.EventIDKey, eventID)
	start := time.Now()

	// Event-level idempotency: a marker means a previous delivery got here first
	if _, err := s.store.GetProcessedEvent(ctx, eventID); err == nil {
		logger.Info(ctx, "event already processed")
		s.audit(ctx, eventID, model.OutcomeAlreadyProcessed, "", rawPayload)
		return model.OutcomeAlreadyProcessed
	}

	subject := payload.Data.Object.Subject
	valid, companyName := ValidateSubject(subject)
	if !valid {
		s.reject(ctx, eventID, subject, "invalid_subject", nil, rawPayload)
		return model.OutcomeRejected
	}

	messageID := payload.Data.Object.ID
	message, err := s.mail.GetMessage(ctx, messageID)
	if err != nil {
		logger.Error(ctx, "failed to fetch message details", "message_id", messageID, "error", err)
		s.audit(ctx, eventID, model.OutcomeError, err.Error(), rawPayload)
		return model.OutcomeError
	}

	filenames := make([]string, 0, len(message.Attachments))
	for _, att := range message.Attachments {
		filenames = append(filenames, att.Filename)
	}
	if issues := ValidateAttachments(filenames); len(issues) > 0 {
		s.reject(ctx, eventID, subject, "missing_or_invalid_attachments", issues, rawPayload)
		return model.OutcomeRejected
	}

	extraction := ExtractBasicInfo(HTMLToPlainText(message.Body))
	if extraction.Info.CompanyName == "" {
		extraction.Info.CompanyName = companyName
	}

	// Identity-level idempotency before any side effects
	vendorEmail := extraction.Info.EmailID
	if vendorEmail != "" {
		if _, err := s.store.FindVendorByEmail(ctx, vendorEmail); err == nil {
			logger.Info(ctx, "vendor email already registered", "email", vendorEmail)
			s.audit(ctx, eventID, model.OutcomeDuplicate, "vendor email already registered", rawPayload)
			return model.OutcomeDuplicate
		}
	}

	// Atomic claim: the unique marker insert makes a concurrent
	// redelivery short-circuit instead of racing the workspace writes
	claim := &model.ProcessedEvent{
		EventID:   eventID,
		Status:    model.EventProcessing,
		StartedAt: start,
	}
	if err := s.store.ClaimEvent(ctx, claim); err != nil {
		if errors.Is(err, ErrEventAlreadyClaimed) {
			logger.Info(ctx, "event claimed by concurrent delivery")
			s.audit(ctx, eventID, model.OutcomeAlreadyProcessed, "claimed by concurrent delivery", rawPayload)
			return model.OutcomeAlreadyProcessed
		}
		logger.Error(ctx, "failed to claim event", "error", err)
		s.audit(ctx, eventID, model.OutcomeError, err.Error(), rawPayload)
		return model.OutcomeError
	}

	vendorID, err := s.materialize(ctx, eventID, message, extraction, companyName, start)
	if err != nil {
		logger.Error(ctx, "pipeline failed", "error", err)
		claim.Status = model.EventFailed
		claim.Error = err.Error()
		if uerr := s.store.UpdateProcessedEvent(ctx, claim); uerr != nil {
			logger.Error(ctx, "failed to mark event failed", "error", uerr)
		}
		s.audit(ctx, eventID, model.OutcomeError, err.Error(), rawPayload)
		return model.OutcomeError
	}

	elapsed := time.Since(start).Seconds()
	claim.Status = model.EventCompleted
	claim.VendorID = vendorID
	claim.ElapsedSeconds = elapsed
	if err := s.store.UpdateProcessedEvent(ctx, claim); err != nil {
		logger.Error(ctx, "failed to mark event completed", "error", err)
	}

	logger.Info(ctx, "event processed", "vendor_id", vendorID, "elapsed_seconds", elapsed)
	s.audit(ctx, eventID, model.OutcomeSuccess, "vendor_id="+vendorID, rawPayload)
	return model.OutcomeSuccess
}

// materialize downloads the attachments in parallel, normalizes them
// and creates the workspace plus the vendor record
func (s *WebhookService) materialize(ctx context.Context, eventID string, message *Message, extraction *ExtractionOutcome, companyName string, start time.Time) (string, error) {
	seq, err := s.store.NextVendorSequence(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to allocate vendor sequence: %w", err)
	}
	email := extraction.Info.EmailID
	if email == "" {
		email = fmt.Sprintf("unknown_%d", seq)
	}
	vendorID := GenerateVendorID(email, seq)
	ctx = context.WithValue(ctx, logger.VendorIDKey, vendorID)

	workspacePath, err := s.workspace.CreateVendorWorkspace(vendorID)
	if err != nil {
		return "", fmt.Errorf("failed to create workspace: %w", err)
	}
	docsDir := filepath.Join(workspacePath, "documents")

	docs := s.downloadAll(ctx, message, docsDir)

	now := time.Now()
	record := &model.VendorRecord{
		VendorID:          vendorID,
		CompanyName:       companyName,
		BasicInfo:         extraction.Info,
		EventID:           eventID,
		MessageID:         message.ID,
		Subject:           message.Subject,
		Documents:         docs,
		WorkspacePath:     workspacePath,
		Status:            model.StatusReadyForExtraction,
		Source:            model.SourceWebhook,
		NeedsManualReview: extraction.NeedsManualReview,
		ValidationIssues:  extraction.Issues,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	metadata := map[string]any{
		"vendor_id":    vendorID,
		"company_name": companyName,
		"basic_info":   extraction.Info,
		"documents":    docs,
		"source":       model.SourceWebhook,
		"event_id":     eventID,
		"created_at":   now,
	}
	if err := s.workspace.WriteMetadata(workspacePath, metadata); err != nil {
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}

	snapshot := map[string]any{
		"event_id":   eventID,
		"message_id": message.ID,
		"subject":    message.Subject,
		"from":       message.From,
		"body":       message.Body,
		"started_at": start,
	}
	if err := s.workspace.WriteSnapshot(workspacePath, "email_raw.json", snapshot); err != nil {
		return "", fmt.Errorf("failed to write email snapshot: %w", err)
	}

	if err := s.store.InsertVendor(ctx, record); err != nil {
		return "", fmt.Errorf("failed to insert vendor record: %w", err)
	}
	return vendorID, nil
}

// downloadAll fetches every classifiable attachment on a bounded
// worker pool with a per-download timeout. A failed attachment only
// degrades that one document; siblings keep going.
func (s *WebhookService) downloadAll(ctx context.Context, message *Message, destDir string) []model.Document {
	var (
		mu   sync.Mutex
		docs []model.Document
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.downloadWorkers)

	for _, att := range message.Attachments {
		kind := Classify(att.Filename)
		if kind == "" {
			logger.Debug(ctx, "skipping unclassified attachment", "filename", att.Filename)
			continue
		}

		g.Go(func() error {
			dctx, cancel := context.WithTimeout(gctx, s.downloadTimeout)
			defer cancel()

			path, err := s.mail.DownloadAttachment(dctx, message.ID, att, destDir)
			if err != nil {
				logger.Warn(ctx, "attachment download failed", "filename", att.Filename, "error", err)
				return nil
			}

			result := s.normalizer.Normalize(ctx, path)
			now := time.Now()

			mu.Lock()
			for _, page := range result.Pages {
				docs = append(docs, model.Document{
					Kind:       kind,
					Filename:   page.Filename,
					Path:       page.Path,
					Size:       page.Size,
					Converted:  page.Converted,
					PageNumber: page.PageNumber,
					UploadedAt: now,
				})
			}
			mu.Unlock()
			return nil
		})
	}

	// Workers never return errors; Wait only orders the collection
	g.Wait()
	return docs
}

func (s *WebhookService) reject(ctx context.Context, eventID, subject, reason string, issues []string, rawPayload string) {
	logger.Warn(ctx, "event rejected", "reason", reason, "issues", issues)
	err := s.store.InsertRejectedEvent(ctx, &model.RejectedEvent{
		EventID:   eventID,
		Subject:   subject,
		Reason:    reason,
		Issues:    issues,
		Timestamp: time.Now(),
	})
	if err != nil {
		logger.Error(ctx, "failed to record rejection", "error", err)
	}
	s.audit(ctx, eventID, model.OutcomeRejected, reason, rawPayload)
}

func (s *WebhookService) audit(ctx context.Context, eventID, outcome, detail, rawPayload string) {
	err := s.store.AppendWebhookLog(ctx, &model.WebhookLogEntry{
		EventID:    eventID,
		Outcome:    outcome,
		Detail:     detail,
		RawPayload: rawPayload,
		Timestamp:  time.Now(),
	})
	if err != nil {
		logger.Error(ctx, "failed to append webhook audit log", "error", err)
	}
}

// Stats exposes the audit-log summary for the operator endpoint
func (s *WebhookService) Stats(ctx context.Context, recentLimit int64) (*WebhookStats, error) {
	return s.store.GetWebhookStats(ctx, recentLimit)
}
