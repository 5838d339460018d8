package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ankitkr9911/vendor-processing/config"
	"github.com/ankitkr9911/vendor-processing/model"
	"github.com/ankitkr9911/vendor-processing/service"
	"github.com/gin-gonic/gin"
)

// fieldPairExtractor parses "field: value, field: value" messages so
// handler tests run without an extraction API
type fieldPairExtractor struct{}

func (fieldPairExtractor) ExtractDetails(_ context.Context, message string, _ *model.BasicInfo, _ string) *service.DetailUpdates {
	out := &service.DetailUpdates{}
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

func (fieldPairExtractor) ClassifyEdit(_ context.Context, _ string, _ *model.BasicInfo) *service.EditCommand {
	return &service.EditCommand{}
}

func setupChatRouter(t *testing.T) (*gin.Engine, *service.MemoryStore) {
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
	// Tests upload images only, so the MuPDF renderer is never invoked
	normalizer := service.NewNormalizer(&config.PDFConfig{DPI: 300})
	submitter := service.NewSubmitService(store, workspace)
	chat := service.NewChatService(store, fieldPairExtractor{}, normalizer, workspace, submitter)

	h := NewChatHandler(chat)
	router := gin.New()
	api := router.Group("/api")
	api.POST("/chat/sessions", h.StartSession)
	api.POST("/chat/sessions/:session_id/message", h.SendMessage)
	api.POST("/chat/sessions/:session_id/upload", h.Upload)
	api.GET("/chat/sessions/:session_id/summary", h.Summary)
	api.POST("/chat/sessions/:session_id/confirm", h.Confirm)
	api.GET("/chat/sessions/:session_id/history", h.History)
	return router, store
}

func startSession(t *testing.T, router *gin.Engine) string {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/api/chat/sessions", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse start response: %v", err)
	}
	if resp["session_id"] == "" {
		t.Fatal("Expected a session id")
	}
	return resp["session_id"]
}

func sendMessage(t *testing.T, router *gin.Engine, sessionID, message string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(MessageRequest{Message: message})
	req := httptest.NewRequest("POST", "/api/chat/sessions/"+sessionID+"/message", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func uploadFile(t *testing.T, router *gin.Engine, sessionID, kind, filename string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("document_type", kind); err != nil {
		t.Fatalf("WriteField failed: %v", err)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	fw.Write([]byte("image bytes"))
	mw.Close()

	req := httptest.NewRequest("POST", "/api/chat/sessions/"+sessionID+"/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestChatEndpointsRoundTrip(t *testing.T) {
	router, store := setupChatRouter(t)
	sessionID := startSession(t, router)

	if w := sendMessage(t, router, sessionID, "yes"); w.Code != http.StatusOK {
		t.Fatalf("message: expected 200, got %d", w.Code)
	}
	w := sendMessage(t, router, sessionID,
		"full_name: Ankit Kumar, company_name: Kumar Traders, designation: owner, age: 28, gender: m, mobile_number: 9876543210, email_id: ankit@example.com")
	if w.Code != http.StatusOK {
		t.Fatalf("message: expected 200, got %d", w.Code)
	}

	// Summary is gated until all documents are in
	req := httptest.NewRequest("GET", "/api/chat/sessions/"+sessionID+"/summary", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("summary: expected 409 before documents, got %d", w.Code)
	}

	w = uploadFile(t, router, sessionID, "aadhaar", "aadhar.png")
	if w.Code != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var upload service.UploadResult
	if err := json.Unmarshal(w.Body.Bytes(), &upload); err != nil {
		t.Fatalf("Failed to parse upload response: %v", err)
	}
	if upload.Kind != model.KindAadhaar || !upload.Checklist[model.KindAadhaar] {
		t.Errorf("Unexpected upload result %+v", upload)
	}

	uploadFile(t, router, sessionID, "pan", "pan.jpg")
	uploadFile(t, router, sessionID, "gst", "gst.png")
	sendMessage(t, router, sessionID, "skip")

	req = httptest.NewRequest("GET", "/api/chat/sessions/"+sessionID+"/summary", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("summary: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Declined confirmation leaves the draft editable
	body, _ := json.Marshal(ConfirmRequest{Confirmed: false})
	req = httptest.NewRequest("POST", "/api/chat/sessions/"+sessionID+"/confirm", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "cancelled") {
		t.Errorf("confirm declined: expected cancellation, got %d: %s", w.Code, w.Body.String())
	}

	body, _ = json.Marshal(ConfirmRequest{Confirmed: true})
	req = httptest.NewRequest("POST", "/api/chat/sessions/"+sessionID+"/confirm", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var confirm map[string]string
	json.Unmarshal(w.Body.Bytes(), &confirm)
	if confirm["vendor_id"] != "VENDOR_0001_ankit_example_com" {
		t.Errorf("Unexpected vendor id %q", confirm["vendor_id"])
	}

	if _, err := store.GetVendor(context.Background(), confirm["vendor_id"]); err != nil {
		t.Errorf("Expected vendor record: %v", err)
	}

	req = httptest.NewRequest("GET", "/api/chat/sessions/"+sessionID+"/history", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("history: expected 200, got %d", w.Code)
	}
	var history struct {
		Messages []model.ChatMessage `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &history); err != nil {
		t.Fatalf("Failed to parse history: %v", err)
	}
	if len(history.Messages) == 0 {
		t.Error("Expected transcript messages")
	}
}

func TestChatEndpointErrors(t *testing.T) {
	router, _ := setupChatRouter(t)

	t.Run("message unknown session", func(t *testing.T) {
		if w := sendMessage(t, router, "no-such-session", "hello"); w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", w.Code)
		}
	})

	t.Run("message invalid body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/chat/sessions/x/message", bytes.NewBufferString(`{}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})

	t.Run("upload in welcome stage", func(t *testing.T) {
		sessionID := startSession(t, router)
		if w := uploadFile(t, router, sessionID, "aadhar", "aadhar.png"); w.Code != http.StatusConflict {
			t.Errorf("Expected 409, got %d", w.Code)
		}
	})

	t.Run("upload invalid kind", func(t *testing.T) {
		sessionID := startSession(t, router)
		sendMessage(t, router, sessionID, "yes")
		sendMessage(t, router, sessionID,
			"full_name: A B, company_name: C, designation: owner, age: 30, gender: f, mobile_number: 9876543210, email_id: kinds@b.com")
		if w := uploadFile(t, router, sessionID, "passport", "passport.png"); w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
		if w := uploadFile(t, router, sessionID, "aadhar", "aadhar.txt"); w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for bad extension, got %d", w.Code)
		}
	})

	t.Run("upload without file", func(t *testing.T) {
		sessionID := startSession(t, router)
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		mw.WriteField("document_type", "aadhar")
		mw.Close()
		req := httptest.NewRequest("POST", "/api/chat/sessions/"+sessionID+"/upload", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})

	t.Run("summary unknown session", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/chat/sessions/nope/summary", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", w.Code)
		}
	})
}
