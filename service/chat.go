package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ankitkr9911/vendor-processing/model"
	"github.com/ankitkr9911/vendor-processing/pkg/logger"
	"github.com/google/uuid"
)

var (
	// ErrInvalidKind is returned for an unrecognized upload kind tag
	ErrInvalidKind = errors.New("invalid document kind")
	// ErrInvalidExtension is returned when a file extension is not allowed for the kind
	ErrInvalidExtension = errors.New("invalid file extension for document kind")
	// ErrUploadNotExpected is returned when an upload arrives outside a document-request stage
	ErrUploadNotExpected = errors.New("upload not expected in current stage")
)

var affirmatives = map[string]bool{
	"yes": true, "y": true, "ok": true, "okay": true,
	"sure": true, "start": true, "ready": true, "begin": true,
}

var editKeywords = []string{"edit", "change", "modify", "update"}

var fieldPrompts = map[string]string{
	"full_name":     "May I have your full name?",
	"company_name":  "What is your company's name?",
	"designation":   "What is your designation (owner, manager, director, ...)?",
	"age":           "How old are you?",
	"gender":        "What is your gender?",
	"mobile_number": "Please share your 10-digit mobile number.",
	"email_id":      "What email address should we register for you?",
}

var kindPrompts = map[string]string{
	model.KindAadhaar:   "Please upload your Aadhaar card (PDF or image).",
	model.KindPAN:       "Please upload your PAN card (PDF or image).",
	model.KindGST:       "Please upload your GST certificate (PDF or image).",
	model.KindCatalogue: "You can upload a product catalogue (.csv), or say 'skip' to continue.",
}

// ChatService drives the registration state machine for the chat path
type ChatService struct {
	store      Store
	extractor  Extractor
	normalizer *Normalizer
	workspace  *WorkspaceManager
	submitter  *SubmitService
}

// NewChatService wires the state machine's collaborators
func NewChatService(store Store, extractor Extractor, normalizer *Normalizer, workspace *WorkspaceManager, submitter *SubmitService) *ChatService {
	return &ChatService{
		store:      store,
		extractor:  extractor,
		normalizer: normalizer,
		workspace:  workspace,
		submitter:  submitter,
	}
}

// UploadResult reports what an upload did to the draft
type UploadResult struct {
	Kind      string          `json:"kind"`
	Pages     int             `json:"pages"`
	Fallback  bool            `json:"fallback,omitempty"`
	Stage     string          `json:"stage"`
	Checklist map[string]bool `json:"checklist"`
	Message   string          `json:"message"`
}

// SummaryResult is the confirmation summary shown before submit
type SummaryResult struct {
	SessionID string          `json:"session_id"`
	Stage     string          `json:"stage"`
	BasicInfo model.BasicInfo `json:"basic_info"`
	Documents map[string]int  `json:"documents"`
}

// StartSession creates a fresh draft in the welcome stage
func (s *ChatService) StartSession(ctx context.Context) (string, string, error) {
	sessionID := uuid.New().String()
	draft := &model.VendorDraft{
		SessionID: sessionID,
		Stage:     model.StageWelcome,
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveDraft(ctx, draft); err != nil {
		return "", "", fmt.Errorf("failed to create draft: %w", err)
	}

	greeting := "Welcome to vendor registration! Say 'yes' when you are ready to begin."
	s.recordMessage(ctx, sessionID, "assistant", greeting)
	logger.Info(ctx, "chat session started", "session_id", sessionID)
	return sessionID, greeting, nil
}

// HandleMessage processes one user turn and returns the reply. It
// never returns an error for extraction failures; those degrade to a
// re-prompt.
func (s *ChatService) HandleMessage(ctx context.Context, sessionID, text string) (string, error) {
	draft, err := s.store.GetDraft(ctx, sessionID)
	if err != nil {
		return "", err
	}
	s.recordMessage(ctx, sessionID, "user", text)

	var reply string
	switch draft.Stage {
	case model.StageWelcome:
		reply = s.handleWelcome(ctx, draft, text)
	case model.StageCollectingBasics:
		reply = s.handleBasics(ctx, draft, text)
	case model.StageAadhaarRequest, model.StagePANRequest, model.StageGSTRequest:
		reply = "I'm waiting for your document upload. " + kindPrompts[kindForStage(draft.Stage)]
	case model.StageCatalogueRequest:
		reply = s.handleCatalogue(ctx, draft, text)
	case model.StageAwaitingConfirmation:
		reply = s.handleConfirmation(ctx, draft, text)
	case model.StageConfirmed:
		reply = "Your registration is already submitted. Vendor ID: " + draft.VendorID
	default:
		reply = "I'm having trouble processing that, please try again."
	}

	s.recordMessage(ctx, sessionID, "assistant", reply)
	return reply, nil
}

func (s *ChatService) handleWelcome(ctx context.Context, draft *model.VendorDraft, text string) string {
	if !affirmatives[strings.ToLower(strings.TrimSpace(text))] {
		return "Whenever you're ready, say 'yes' to start your vendor registration."
	}
	draft.Stage = model.StageCollectingBasics
	if err := s.store.SaveDraft(ctx, draft); err != nil {
		logger.Error(ctx, "failed to save draft", "session_id", draft.SessionID, "error", err)
		return "I'm having trouble processing that, please try again."
	}
	return "Great, let's get started. " + fieldPrompts["full_name"]
}

func (s *ChatService) handleBasics(ctx context.Context, draft *model.VendorDraft, text string) string {
	missing := draft.BasicInfo.MissingFields()
	missingField := ""
	if len(missing) > 0 {
		missingField = missing[0]
	}

	result := s.extractor.ExtractDetails(ctx, text, &draft.BasicInfo, missingField)

	var rejectedGender bool
	for field, value := range result.Updates.Fields() {
		switch field {
		case "gender":
			normalized := NormalizeGender(value)
			if normalized == "" {
				rejectedGender = true
				continue
			}
			draft.BasicInfo.Gender = normalized
		case "designation":
			draft.BasicInfo.Designation = NormalizeDesignation(value)
		default:
			draft.BasicInfo.SetField(field, value)
		}
	}

	missing = draft.BasicInfo.MissingFields()
	if len(missing) == 0 {
		draft.Stage = model.StageAadhaarRequest
	}
	if err := s.store.SaveDraft(ctx, draft); err != nil {
		logger.Error(ctx, "failed to save draft", "session_id", draft.SessionID, "error", err)
		return "I'm having trouble processing that, please try again."
	}

	if rejectedGender {
		return "I didn't recognize that gender. Please answer male or female."
	}
	if len(missing) == 0 {
		return "Thanks, I have all your details. " + kindPrompts[model.KindAadhaar]
	}
	return fieldPrompts[missing[0]]
}

func (s *ChatService) handleCatalogue(ctx context.Context, draft *model.VendorDraft, text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "skip" || lower == "no" {
		draft.Stage = model.StageAwaitingConfirmation
		if err := s.store.SaveDraft(ctx, draft); err != nil {
			logger.Error(ctx, "failed to save draft", "session_id", draft.SessionID, "error", err)
			return "I'm having trouble processing that, please try again."
		}
		return "No problem. Please review your details and say 'confirm' to submit, or 'edit <field>' to change something."
	}
	return "I'm waiting for your catalogue upload. " + kindPrompts[model.KindCatalogue]
}

// handleConfirmation recognizes edit and confirm intents. Edit keywords
// win when both appear: "confirm, but change mobile first" must not
// submit.
func (s *ChatService) handleConfirmation(ctx context.Context, draft *model.VendorDraft, text string) string {
	lower := strings.ToLower(text)

	for _, kw := range editKeywords {
		if strings.Contains(lower, kw) {
			return s.applyEdit(ctx, draft, text)
		}
	}

	if strings.Contains(lower, "confirm") {
		record, err := s.submitter.Submit(ctx, draft, s.history(ctx, draft.SessionID))
		if err != nil {
			logger.Error(ctx, "submission failed", "session_id", draft.SessionID, "error", err)
			return "I'm having trouble submitting your registration, please try again."
		}
		return "Registration complete! Your vendor ID is " + record.VendorID + "."
	}

	return "Please say 'confirm' to submit your registration, or 'edit <field> to <value>' to change a detail."
}

func (s *ChatService) applyEdit(ctx context.Context, draft *model.VendorDraft, text string) string {
	cmd := s.extractor.ClassifyEdit(ctx, text, &draft.BasicInfo)
	if !cmd.Understood || cmd.Field == "" {
		return "I couldn't work out what to change. Try: 'change mobile to 9876543210'."
	}

	value := cmd.NewValue
	switch cmd.Field {
	case "gender":
		value = NormalizeGender(value)
		if value == "" {
			return "I didn't recognize that gender. Please answer male or female."
		}
	case "designation":
		value = NormalizeDesignation(value)
	}
	if !draft.BasicInfo.SetField(cmd.Field, value) {
		return "I can't edit '" + cmd.Field + "'. Editable fields: " + strings.Join(model.BasicFieldOrder, ", ") + "."
	}

	if err := s.store.SaveDraft(ctx, draft); err != nil {
		logger.Error(ctx, "failed to save draft", "session_id", draft.SessionID, "error", err)
		return "I'm having trouble processing that, please try again."
	}
	return "Updated " + cmd.Field + " to '" + value + "'. Say 'confirm' to submit, or keep editing."
}

// UploadDocument validates, stores and normalizes one uploaded file,
// then advances the stage to the next missing kind
func (s *ChatService) UploadDocument(ctx context.Context, sessionID, kindTag, filename string, src io.Reader) (*UploadResult, error) {
	draft, err := s.store.GetDraft(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	switch draft.Stage {
	case model.StageAadhaarRequest, model.StagePANRequest, model.StageGSTRequest, model.StageCatalogueRequest:
	default:
		return nil, ErrUploadNotExpected
	}

	kind := NormalizeKindTag(kindTag)
	if kind == "" {
		return nil, fmt.Errorf("%w: %q (use aadhar/aadhaar, pan, gst, or catalogue)", ErrInvalidKind, kindTag)
	}
	if !AllowedExtension(kind, filename) {
		return nil, fmt.Errorf("%w: %q for kind %s", ErrInvalidExtension, filepath.Ext(filename), kind)
	}

	tempDir, err := s.workspace.TempSessionDir(sessionID)
	if err != nil {
		return nil, err
	}
	savedPath := filepath.Join(tempDir, filepath.Base(filename))
	out, err := os.Create(savedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(savedPath)
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	result := s.normalizer.Normalize(ctx, savedPath)
	now := time.Now()
	for _, page := range result.Pages {
		draft.TempFiles = append(draft.TempFiles, model.TempFile{
			Kind:       kind,
			Filename:   page.Filename,
			Path:       page.Path,
			PageNumber: page.PageNumber,
			Converted:  page.Converted,
			UploadedAt: now,
		})
	}

	s.advanceAfterUpload(draft)
	if err := s.store.SaveDraft(ctx, draft); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}

	checklist := make(map[string]bool)
	present := draft.PresentKinds()
	for _, k := range model.RequiredKinds {
		checklist[k] = present[k]
	}
	checklist[model.KindCatalogue] = present[model.KindCatalogue]

	message := "Received your " + kind + " document. "
	switch draft.Stage {
	case model.StageAwaitingConfirmation:
		message += "All documents are in. Say 'confirm' to submit, or 'edit <field>' to change a detail."
	default:
		message += kindPrompts[kindForStage(draft.Stage)]
	}

	logger.Info(ctx, "document uploaded",
		"session_id", sessionID, "kind", kind,
		"pages", len(result.Pages), "fallback", result.Fallback)

	return &UploadResult{
		Kind:      kind,
		Pages:     len(result.Pages),
		Fallback:  result.Fallback,
		Stage:     draft.Stage,
		Checklist: checklist,
		Message:   message,
	}, nil
}

// advanceAfterUpload moves to the first still-missing required kind,
// then offers the optional catalogue once, then awaiting_confirmation.
// Kinds only accumulate, so the stage never moves backwards.
func (s *ChatService) advanceAfterUpload(draft *model.VendorDraft) {
	missing := draft.MissingKinds()
	if len(missing) > 0 {
		draft.Stage = stageForKind(missing[0])
		return
	}
	if !draft.PresentKinds()[model.KindCatalogue] && draft.Stage != model.StageCatalogueRequest {
		draft.Stage = model.StageCatalogueRequest
		return
	}
	draft.Stage = model.StageAwaitingConfirmation
}

// Summary returns the confirmation view; only valid in
// awaiting_confirmation
func (s *ChatService) Summary(ctx context.Context, sessionID string) (*SummaryResult, error) {
	draft, err := s.store.GetDraft(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if draft.Stage != model.StageAwaitingConfirmation {
		return nil, ErrNotReady
	}

	docs := make(map[string]int)
	for _, f := range draft.TempFiles {
		docs[f.Kind]++
	}
	return &SummaryResult{
		SessionID: sessionID,
		Stage:     draft.Stage,
		BasicInfo: draft.BasicInfo,
		Documents: docs,
	}, nil
}

// ConfirmAndSubmit performs the one-shot hand-off when confirmed is
// true; otherwise it is a no-op returning the draft to editing
func (s *ChatService) ConfirmAndSubmit(ctx context.Context, sessionID string, confirmed bool) (*model.VendorRecord, error) {
	draft, err := s.store.GetDraft(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !confirmed {
		return nil, nil
	}
	return s.submitter.Submit(ctx, draft, s.history(ctx, sessionID))
}

// History returns the session transcript
func (s *ChatService) History(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	if _, err := s.store.GetDraft(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.GetChatHistory(ctx, sessionID)
}

func (s *ChatService) history(ctx context.Context, sessionID string) []model.ChatMessage {
	history, err := s.store.GetChatHistory(ctx, sessionID)
	if err != nil {
		logger.Warn(ctx, "failed to load chat history for snapshot", "session_id", sessionID, "error", err)
		return nil
	}
	return history
}

func (s *ChatService) recordMessage(ctx context.Context, sessionID, role, content string) {
	err := s.store.AppendChatMessage(ctx, &model.ChatMessage{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	if err != nil {
		logger.Warn(ctx, "failed to persist chat message", "session_id", sessionID, "error", err)
	}
}

func stageForKind(kind string) string {
	switch kind {
	case model.KindAadhaar:
		return model.StageAadhaarRequest
	case model.KindPAN:
		return model.StagePANRequest
	case model.KindGST:
		return model.StageGSTRequest
	}
	return model.StageCatalogueRequest
}

func kindForStage(stage string) string {
	switch stage {
	case model.StageAadhaarRequest:
		return model.KindAadhaar
	case model.StagePANRequest:
		return model.KindPAN
	case model.StageGSTRequest:
		return model.KindGST
	}
	return model.KindCatalogue
}
