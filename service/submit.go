package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ankitkr9911/vendor-processing/model"
	"github.com/ankitkr9911/vendor-processing/pkg/logger"
)

// SubmitService performs the confirm-and-submit hand-off: it turns a
// fully-collected draft into a permanent vendor record exactly once.
type SubmitService struct {
	store     Store
	workspace *WorkspaceManager
}

// NewSubmitService creates the hand-off service
func NewSubmitService(store Store, workspace *WorkspaceManager) *SubmitService {
	return &SubmitService{store: store, workspace: workspace}
}

// GenerateVendorID builds the stable vendor identifier from the
// atomic sequence value and the sanitized email
func GenerateVendorID(email string, seq int64) string {
	sanitized := strings.NewReplacer("@", "_", ".", "_").Replace(email)
	return fmt.Sprintf("VENDOR_%04d_%s", seq, sanitized)
}

// Submit runs the one-shot hand-off. A failure after the workspace is
// created leaves it in place for operator review; re-submission is
// blocked by the stage guard, not by cleanup.
func (s *SubmitService) Submit(ctx context.Context, draft *model.VendorDraft, history []model.ChatMessage) (*model.VendorRecord, error) {
	if draft.Stage != model.StageAwaitingConfirmation {
		return nil, ErrNotReady
	}

	email := draft.BasicInfo.EmailID
	if _, err := s.store.FindVendorByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateVendor
	} else if !errors.Is(err, ErrVendorNotFound) {
		return nil, fmt.Errorf("failed to check vendor email: %w", err)
	}

	seq, err := s.store.NextVendorSequence(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate vendor sequence: %w", err)
	}
	vendorID := GenerateVendorID(email, seq)

	workspacePath, err := s.workspace.CreateVendorWorkspace(vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	docs, err := s.workspace.MoveIntoWorkspace(workspacePath, draft.TempFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to move documents: %w", err)
	}

	now := time.Now()
	record := &model.VendorRecord{
		VendorID:      vendorID,
		CompanyName:   draft.BasicInfo.CompanyName,
		BasicInfo:     draft.BasicInfo,
		Documents:     docs,
		WorkspacePath: workspacePath,
		Status:        model.StatusReadyForExtraction,
		Source:        model.SourceChatbot,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	metadata := map[string]any{
		"vendor_id":    vendorID,
		"company_name": record.CompanyName,
		"basic_info":   record.BasicInfo,
		"documents":    docs,
		"source":       model.SourceChatbot,
		"created_at":   now,
	}
	if err := s.workspace.WriteMetadata(workspacePath, metadata); err != nil {
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}

	snapshot := map[string]any{
		"session_id": draft.SessionID,
		"basic_info": draft.BasicInfo,
		"transcript": history,
	}
	if err := s.workspace.WriteSnapshot(workspacePath, "session_raw.json", snapshot); err != nil {
		return nil, fmt.Errorf("failed to write session snapshot: %w", err)
	}

	if err := s.store.InsertVendor(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to insert vendor record: %w", err)
	}

	if err := s.workspace.RemoveTempSession(draft.SessionID); err != nil {
		logger.Warn(ctx, "failed to remove temp session dir", "session_id", draft.SessionID, "error", err)
	}

	draft.Stage = model.StageConfirmed
	draft.Completed = true
	draft.VendorID = vendorID
	if err := s.store.SaveDraft(ctx, draft); err != nil {
		return nil, fmt.Errorf("failed to confirm draft: %w", err)
	}

	logger.Info(ctx, "vendor registered",
		"vendor_id", vendorID, "session_id", draft.SessionID, "documents", len(docs))
	return record, nil
}
