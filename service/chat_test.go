package service

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/ankitkr9911/vendor-processing/config"
	"github.com/ankitkr9911/vendor-processing/model"
)

// scriptedExtractor parses "field: value, field: value" messages and
// "change <field> to <value>" edit requests deterministically
type scriptedExtractor struct{}

func (scriptedExtractor) ExtractDetails(_ context.Context, message string, _ *model.BasicInfo, _ string) *DetailUpdates {
	out := &DetailUpdates{}
	for _, part := range strings.Split(message, ",") {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		value := strings.TrimSpace(kv[1])
		switch strings.TrimSpace(kv[0]) {
		case "full_name":
			out.Updates.FullName = value
		case "company_name":
			out.Updates.CompanyName = value
		case "designation":
			out.Updates.Designation = value
		case "age":
			out.Updates.Age = value
		case "gender":
			out.Updates.Gender = value
		case "mobile_number":
			out.Updates.MobileNumber = value
		case "email_id":
			out.Updates.EmailID = value
		}
	}
	return out
}

var editPattern = regexp.MustCompile(`(?i)(?:edit|change|modify|update)\s+(\w+)\s+to\s+(\S+)`)

func (scriptedExtractor) ClassifyEdit(_ context.Context, message string, _ *model.BasicInfo) *EditCommand {
	m := editPattern.FindStringSubmatch(message)
	if m == nil {
		return &EditCommand{}
	}
	return &EditCommand{Field: m[1], NewValue: m[2], Understood: true}
}

func newTestChatService(t *testing.T) (*ChatService, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	root := t.TempDir()
	workspace, err := NewWorkspaceManager(&config.StorageConfig{
		VendorsRoot: filepath.Join(root, "vendors"),
		TempRoot:    filepath.Join(root, "temp_uploads"),
	})
	if err != nil {
		t.Fatalf("NewWorkspaceManager failed: %v", err)
	}
	normalizer := NewNormalizerWithRenderer(fakeRenderer{pages: 2}, 300)
	submitter := NewSubmitService(store, workspace)
	return NewChatService(store, scriptedExtractor{}, normalizer, workspace, submitter), store
}

func uploadPNG(t *testing.T, chat *ChatService, sessionID, kindTag, filename string) *UploadResult {
	t.Helper()
	result, err := chat.UploadDocument(context.Background(), sessionID, kindTag, filename,
		strings.NewReader("image bytes"))
	if err != nil {
		t.Fatalf("UploadDocument(%s) failed: %v", filename, err)
	}
	return result
}

func TestChatRegistrationRoundTrip(t *testing.T) {
	chat, store := newTestChatService(t)
	ctx := context.Background()

	sessionID, greeting, err := chat.StartSession(ctx)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if greeting == "" || sessionID == "" {
		t.Fatal("Expected session id and greeting")
	}

	// An unrelated message keeps the session in welcome
	reply, err := chat.HandleMessage(ctx, sessionID, "what is this?")
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if !strings.Contains(reply, "yes") {
		t.Errorf("Expected welcome re-prompt, got %q", reply)
	}

	if _, err := chat.HandleMessage(ctx, sessionID, "yes"); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	draft, _ := store.GetDraft(ctx, sessionID)
	if draft.Stage != model.StageCollectingBasics {
		t.Fatalf("Expected stage %s, got %s", model.StageCollectingBasics, draft.Stage)
	}

	// Partial details: the bot asks for the first still-missing field
	reply, _ = chat.HandleMessage(ctx, sessionID,
		"full_name: Ankit Kumar, company_name: Kumar Traders")
	if !strings.Contains(strings.ToLower(reply), "designation") {
		t.Errorf("Expected designation prompt, got %q", reply)
	}

	reply, _ = chat.HandleMessage(ctx, sessionID,
		"designation: owner, age: 28, gender: m, mobile_number: 9876543210, email_id: ankit@example.com")
	if !strings.Contains(strings.ToLower(reply), "aadhaar") {
		t.Errorf("Expected aadhaar request after all details, got %q", reply)
	}

	draft, _ = store.GetDraft(ctx, sessionID)
	if draft.Stage != model.StageAadhaarRequest {
		t.Fatalf("Expected stage %s, got %s", model.StageAadhaarRequest, draft.Stage)
	}
	if draft.BasicInfo.Gender != "Male" {
		t.Errorf("Expected normalized gender Male, got %q", draft.BasicInfo.Gender)
	}
	if draft.BasicInfo.Designation != "Owner" {
		t.Errorf("Expected normalized designation Owner, got %q", draft.BasicInfo.Designation)
	}

	// Summary is gated until awaiting_confirmation
	if _, err := chat.Summary(ctx, sessionID); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady before documents, got %v", err)
	}

	result := uploadPNG(t, chat, sessionID, "aadhaar", "my_aadhar.png")
	if result.Kind != model.KindAadhaar || result.Stage != model.StagePANRequest {
		t.Errorf("Unexpected upload result: %+v", result)
	}
	if !result.Checklist[model.KindAadhaar] || result.Checklist[model.KindPAN] {
		t.Errorf("Unexpected checklist: %v", result.Checklist)
	}

	uploadPNG(t, chat, sessionID, "pan", "pan_card.jpg")
	result = uploadPNG(t, chat, sessionID, "gst", "gst_cert.png")
	if result.Stage != model.StageCatalogueRequest {
		t.Errorf("Expected catalogue offer after gst, got stage %s", result.Stage)
	}

	reply, _ = chat.HandleMessage(ctx, sessionID, "skip")
	if !strings.Contains(strings.ToLower(reply), "confirm") {
		t.Errorf("Expected confirmation prompt, got %q", reply)
	}

	summary, err := chat.Summary(ctx, sessionID)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	for _, kind := range model.RequiredKinds {
		if summary.Documents[kind] != 1 {
			t.Errorf("Expected 1 %s document, got %d", kind, summary.Documents[kind])
		}
	}

	// Edit keywords beat confirm when both appear
	reply, _ = chat.HandleMessage(ctx, sessionID, "confirm, but change mobile_number to 9999999999 first")
	if !strings.Contains(reply, "9999999999") {
		t.Errorf("Expected edit acknowledgement, got %q", reply)
	}
	draft, _ = store.GetDraft(ctx, sessionID)
	if draft.Stage != model.StageAwaitingConfirmation {
		t.Errorf("Edit must not change stage, got %s", draft.Stage)
	}
	if draft.BasicInfo.MobileNumber != "9999999999" {
		t.Errorf("Expected mobile updated, got %s", draft.BasicInfo.MobileNumber)
	}
	if _, err := store.FindVendorByEmail(ctx, "ankit@example.com"); !errors.Is(err, ErrVendorNotFound) {
		t.Error("Edit turn must not create a vendor")
	}

	reply, _ = chat.HandleMessage(ctx, sessionID, "confirm")
	if !strings.Contains(reply, "VENDOR_0001_ankit_example_com") {
		t.Errorf("Expected vendor id in reply, got %q", reply)
	}

	vendor, err := store.GetVendor(ctx, "VENDOR_0001_ankit_example_com")
	if err != nil {
		t.Fatalf("Expected vendor record: %v", err)
	}
	if vendor.Status != model.StatusReadyForExtraction {
		t.Errorf("Expected status %s, got %s", model.StatusReadyForExtraction, vendor.Status)
	}
	if vendor.Source != model.SourceChatbot {
		t.Errorf("Expected source %s, got %s", model.SourceChatbot, vendor.Source)
	}
	if len(vendor.Documents) != 3 {
		t.Errorf("Expected 3 documents, got %d", len(vendor.Documents))
	}

	draft, _ = store.GetDraft(ctx, sessionID)
	if draft.Stage != model.StageConfirmed || !draft.Completed {
		t.Errorf("Expected confirmed draft, got stage %s completed %v", draft.Stage, draft.Completed)
	}

	reply, _ = chat.HandleMessage(ctx, sessionID, "hello again")
	if !strings.Contains(reply, "VENDOR_0001_ankit_example_com") {
		t.Errorf("Expected already-submitted reply with vendor id, got %q", reply)
	}

	history, err := chat.History(ctx, sessionID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) < 10 {
		t.Errorf("Expected both sides of the transcript, got %d messages", len(history))
	}
}

func TestChatGenderRejection(t *testing.T) {
	chat, store := newTestChatService(t)
	ctx := context.Background()

	sessionID, _, _ := chat.StartSession(ctx)
	chat.HandleMessage(ctx, sessionID, "yes")

	reply, _ := chat.HandleMessage(ctx, sessionID, "gender: helicopter")
	if !strings.Contains(reply, "male or female") {
		t.Errorf("Expected gender re-prompt, got %q", reply)
	}
	draft, _ := store.GetDraft(ctx, sessionID)
	if draft.BasicInfo.Gender != "" {
		t.Errorf("Expected gender left empty, got %q", draft.BasicInfo.Gender)
	}
}

func TestChatUploadValidation(t *testing.T) {
	chat, _ := newTestChatService(t)
	ctx := context.Background()

	sessionID, _, _ := chat.StartSession(ctx)

	// Uploads are rejected outside document-request stages
	_, err := chat.UploadDocument(ctx, sessionID, "aadhar", "aadhar.png", strings.NewReader("x"))
	if !errors.Is(err, ErrUploadNotExpected) {
		t.Errorf("Expected ErrUploadNotExpected in welcome, got %v", err)
	}

	chat.HandleMessage(ctx, sessionID, "yes")
	chat.HandleMessage(ctx, sessionID,
		"full_name: A B, company_name: C, designation: owner, age: 30, gender: f, mobile_number: 9876543210, email_id: a@b.com")

	_, err = chat.UploadDocument(ctx, sessionID, "passport", "passport.png", strings.NewReader("x"))
	if !errors.Is(err, ErrInvalidKind) {
		t.Errorf("Expected ErrInvalidKind, got %v", err)
	}

	_, err = chat.UploadDocument(ctx, sessionID, "aadhar", "aadhar.txt", strings.NewReader("x"))
	if !errors.Is(err, ErrInvalidExtension) {
		t.Errorf("Expected ErrInvalidExtension, got %v", err)
	}

	_, err = chat.UploadDocument(ctx, "no-such-session", "aadhar", "aadhar.png", strings.NewReader("x"))
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestChatPDFUploadFansOutPages(t *testing.T) {
	chat, store := newTestChatService(t)
	ctx := context.Background()

	sessionID, _, _ := chat.StartSession(ctx)
	chat.HandleMessage(ctx, sessionID, "yes")
	chat.HandleMessage(ctx, sessionID,
		"full_name: A B, company_name: C, designation: owner, age: 30, gender: f, mobile_number: 9876543210, email_id: a@b.com")

	// The two-page fake renderer splits the pdf into page images
	result, err := chat.UploadDocument(ctx, sessionID, "aadhar", "aadhar.pdf", strings.NewReader("%PDF"))
	if err != nil {
		t.Fatalf("UploadDocument failed: %v", err)
	}
	if result.Pages != 2 {
		t.Errorf("Expected 2 pages, got %d", result.Pages)
	}

	draft, _ := store.GetDraft(ctx, sessionID)
	if len(draft.TempFiles) != 2 {
		t.Fatalf("Expected 2 temp files, got %d", len(draft.TempFiles))
	}
	for i, f := range draft.TempFiles {
		if !f.Converted || f.PageNumber != i+1 {
			t.Errorf("Unexpected temp file %+v", f)
		}
	}
}

func TestChatConfirmAndSubmitDeclined(t *testing.T) {
	chat, _ := newTestChatService(t)
	ctx := context.Background()

	sessionID, _, _ := chat.StartSession(ctx)
	record, err := chat.ConfirmAndSubmit(ctx, sessionID, false)
	if err != nil {
		t.Fatalf("ConfirmAndSubmit failed: %v", err)
	}
	if record != nil {
		t.Error("Expected no record when declined")
	}
}
