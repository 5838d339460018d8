package model

import (
	"time"
)

// Registration stages, in order
const (
	StageWelcome              = "welcome"
	StageCollectingBasics     = "collecting_basic_details"
	StageAadhaarRequest       = "aadhaar_request"
	StagePANRequest           = "pan_request"
	StageGSTRequest           = "gst_request"
	StageCatalogueRequest     = "catalogue_request"
	StageAwaitingConfirmation = "awaiting_confirmation"
	StageConfirmed            = "confirmed"
)

// Document kinds
const (
	KindAadhaar   = "aadhar"
	KindPAN       = "pan"
	KindGST       = "gst"
	KindCatalogue = "catalogue"
)

// RequiredKinds are the document kinds every vendor must provide.
// The catalogue is optional.
var RequiredKinds = []string{KindAadhaar, KindPAN, KindGST}

// VendorRecord lifecycle status
const (
	StatusReadyForExtraction = "ready_for_extraction"
)

// Registration sources
const (
	SourceChatbot = "chatbot"
	SourceWebhook = "webhook"
)

// Webhook event processing statuses
const (
	EventProcessing = "processing"
	EventCompleted  = "completed"
	EventFailed     = "failed"
)

// Webhook pipeline outcomes
const (
	OutcomeSuccess          = "success"
	OutcomeAlreadyProcessed = "already_processed"
	OutcomeRejected         = "rejected"
	OutcomeDuplicate        = "duplicate"
	OutcomeError            = "error"
)

// Basic-detail field names, in prompting priority order
var BasicFieldOrder = []string{
	"full_name",
	"company_name",
	"designation",
	"age",
	"gender",
	"mobile_number",
	"email_id",
}

// BasicInfo holds the vendor's collected basic details. Fields stay
// empty until filled; age is kept as text since it arrives in free-form
// chat or email bodies.
type BasicInfo struct {
	FullName     string `json:"full_name,omitempty" bson:"full_name,omitempty"`
	CompanyName  string `json:"company_name,omitempty" bson:"company_name,omitempty"`
	Designation  string `json:"designation,omitempty" bson:"designation,omitempty"`
	Age          string `json:"age,omitempty" bson:"age,omitempty"`
	Gender       string `json:"gender,omitempty" bson:"gender,omitempty"`
	MobileNumber string `json:"mobile_number,omitempty" bson:"mobile_number,omitempty"`
	EmailID      string `json:"email_id,omitempty" bson:"email_id,omitempty"`
	Address      string `json:"address,omitempty" bson:"address,omitempty"`
}

// Field returns the value of a basic-detail field by name
func (b *BasicInfo) Field(name string) string {
	switch name {
	case "full_name":
		return b.FullName
	case "company_name":
		return b.CompanyName
	case "designation":
		return b.Designation
	case "age":
		return b.Age
	case "gender":
		return b.Gender
	case "mobile_number":
		return b.MobileNumber
	case "email_id":
		return b.EmailID
	case "address":
		return b.Address
	}
	return ""
}

// SetField sets a basic-detail field by name; unknown names are ignored
func (b *BasicInfo) SetField(name, value string) bool {
	switch name {
	case "full_name":
		b.FullName = value
	case "company_name":
		b.CompanyName = value
	case "designation":
		b.Designation = value
	case "age":
		b.Age = value
	case "gender":
		b.Gender = value
	case "mobile_number":
		b.MobileNumber = value
	case "email_id":
		b.EmailID = value
	case "address":
		b.Address = value
	default:
		return false
	}
	return true
}

// MissingFields returns the required basic-detail fields that are still
// empty, in prompting priority order
func (b *BasicInfo) MissingFields() []string {
	var missing []string
	for _, name := range BasicFieldOrder {
		if b.Field(name) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// TempFile describes a file parked in the session's temporary area
// before confirm-and-submit moves it into the vendor workspace
type TempFile struct {
	Kind       string    `json:"kind" bson:"kind"`
	Filename   string    `json:"filename" bson:"filename"`
	Path       string    `json:"path" bson:"path"`
	PageNumber int       `json:"page_number,omitempty" bson:"page_number,omitempty"`
	Converted  bool      `json:"converted" bson:"converted"`
	UploadedAt time.Time `json:"uploaded_at" bson:"uploaded_at"`
}

// VendorDraft is the mutable state of one chat registration session
type VendorDraft struct {
	SessionID string     `json:"session_id" bson:"_id"`
	Stage     string     `json:"stage" bson:"stage"`
	BasicInfo BasicInfo  `json:"basic_info" bson:"basic_info"`
	TempFiles []TempFile `json:"temp_files,omitempty" bson:"temp_files,omitempty"`
	Completed bool       `json:"completed" bson:"completed"`
	VendorID  string     `json:"vendor_id,omitempty" bson:"vendor_id,omitempty"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" bson:"updated_at"`
}

// PresentKinds returns the set of document kinds that have at least one
// uploaded file in the draft
func (d *VendorDraft) PresentKinds() map[string]bool {
	present := make(map[string]bool)
	for _, f := range d.TempFiles {
		present[f.Kind] = true
	}
	return present
}

// MissingKinds returns the required document kinds not yet uploaded,
// in request order
func (d *VendorDraft) MissingKinds() []string {
	present := d.PresentKinds()
	var missing []string
	for _, kind := range RequiredKinds {
		if !present[kind] {
			missing = append(missing, kind)
		}
	}
	return missing
}

// ChatMessage is one turn of a registration session transcript
type ChatMessage struct {
	SessionID string    `json:"session_id" bson:"session_id"`
	Role      string    `json:"role" bson:"role"` // user, assistant
	Content   string    `json:"content" bson:"content"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Document is one stored file descriptor embedded in a VendorRecord
type Document struct {
	Kind       string    `json:"kind" bson:"kind"`
	Filename   string    `json:"filename" bson:"filename"`
	Path       string    `json:"path" bson:"path"`
	Size       int64     `json:"size" bson:"size"`
	Converted  bool      `json:"converted" bson:"converted"`
	PageNumber int       `json:"page_number,omitempty" bson:"page_number,omitempty"`
	UploadedAt time.Time `json:"uploaded_at" bson:"uploaded_at"`
}

// VendorRecord is the permanent vendor entity produced by either path.
// ExtractedData is reserved for the downstream extraction consumer.
type VendorRecord struct {
	VendorID          string     `json:"vendor_id" bson:"_id"`
	CompanyName       string     `json:"company_name" bson:"company_name"`
	BasicInfo         BasicInfo  `json:"basic_info" bson:"basic_info"`
	EventID           string     `json:"event_id,omitempty" bson:"event_id,omitempty"`
	MessageID         string     `json:"message_id,omitempty" bson:"message_id,omitempty"`
	Subject           string     `json:"subject,omitempty" bson:"subject,omitempty"`
	Documents         []Document `json:"documents" bson:"documents"`
	WorkspacePath     string     `json:"workspace_path" bson:"workspace_path"`
	Status            string     `json:"status" bson:"status"`
	Source            string     `json:"source" bson:"source"`
	NeedsManualReview bool       `json:"needs_manual_review,omitempty" bson:"needs_manual_review,omitempty"`
	ValidationIssues  []string   `json:"validation_issues,omitempty" bson:"validation_issues,omitempty"`
	ExtractedData     any        `json:"extracted_data,omitempty" bson:"extracted_data,omitempty"`
	CreatedAt         time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" bson:"updated_at"`
}

// ProcessedEvent is the durable idempotency marker and processing
// status for one inbound webhook event id
type ProcessedEvent struct {
	EventID        string    `json:"event_id" bson:"_id"`
	Status         string    `json:"status" bson:"status"` // processing, completed, failed
	VendorID       string    `json:"vendor_id,omitempty" bson:"vendor_id,omitempty"`
	Error          string    `json:"error,omitempty" bson:"error,omitempty"`
	ElapsedSeconds float64   `json:"elapsed_seconds,omitempty" bson:"elapsed_seconds,omitempty"`
	StartedAt      time.Time `json:"started_at" bson:"started_at"`
	UpdatedAt      time.Time `json:"updated_at" bson:"updated_at"`
}

// RejectedEvent records one terminal rejection with its reason
type RejectedEvent struct {
	EventID   string    `json:"event_id" bson:"event_id"`
	Subject   string    `json:"subject,omitempty" bson:"subject,omitempty"`
	Reason    string    `json:"reason" bson:"reason"`
	Issues    []string  `json:"issues,omitempty" bson:"issues,omitempty"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// WebhookLogEntry is one append-only audit line keyed by event id,
// written for every terminal outcome
type WebhookLogEntry struct {
	EventID    string    `json:"event_id" bson:"event_id"`
	Outcome    string    `json:"outcome" bson:"outcome"`
	Detail     string    `json:"detail,omitempty" bson:"detail,omitempty"`
	RawPayload string    `json:"raw_payload,omitempty" bson:"raw_payload,omitempty"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
}
