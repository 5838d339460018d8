package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ankitkr9911/vendor-processing/config"
	"github.com/ankitkr9911/vendor-processing/model"
	"github.com/ankitkr9911/vendor-processing/pkg/logger"
)

// FieldUpdates is the closed set of basic-detail fields the extraction
// capability may fill. Values arrive as raw text; normalization happens
// in the state machine.
type FieldUpdates struct {
	FullName     string `json:"full_name,omitempty"`
	CompanyName  string `json:"company_name,omitempty"`
	Designation  string `json:"designation,omitempty"`
	Age          string `json:"age,omitempty"`
	Gender       string `json:"gender,omitempty"`
	MobileNumber string `json:"mobile_number,omitempty"`
	EmailID      string `json:"email_id,omitempty"`
}

// Fields returns the non-empty updates as name/value pairs in priority order
func (u *FieldUpdates) Fields() map[string]string {
	out := make(map[string]string)
	pairs := [][2]string{
		{"full_name", u.FullName},
		{"company_name", u.CompanyName},
		{"designation", u.Designation},
		{"age", u.Age},
		{"gender", u.Gender},
		{"mobile_number", u.MobileNumber},
		{"email_id", u.EmailID},
	}
	for _, p := range pairs {
		if p[1] != "" {
			out[p[0]] = p[1]
		}
	}
	return out
}

// DetailUpdates is the extraction result for one chat message
type DetailUpdates struct {
	Updates      FieldUpdates `json:"updates"`
	IsCorrection bool         `json:"is_correction"`
}

// EditCommand is the parsed intent of an edit request in
// awaiting_confirmation
type EditCommand struct {
	Field      string `json:"field"`
	NewValue   string `json:"new_value"`
	Understood bool   `json:"understood"`
}

// Extractor is the extraction capability consumed by the state
// machine. Implementations must degrade to empty results instead of
// failing a chat turn.
type Extractor interface {
	ExtractDetails(ctx context.Context, message string, current *model.BasicInfo, missingField string) *DetailUpdates
	ClassifyEdit(ctx context.Context, message string, current *model.BasicInfo) *EditCommand
}

// LLMService calls a chat-completions HTTP API for field extraction
type LLMService struct {
	config     *config.LLMConfig
	httpClient *http.Client
}

// NewLLMService creates an extraction client
func NewLLMService(cfg *config.LLMConfig) *LLMService {
	return &LLMService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type chatCompletionRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const extractSystemPrompt = `You extract vendor registration details from chat messages.
Fields: full_name, company_name, designation, age, gender, mobile_number, email_id.
Extract values AS-IS without converting them; all values must be JSON strings.
For gender keep exactly what the user said ("m" stays "m", not "Male").
Respond with a single JSON object: {"updates": {"field_name": "value"}, "is_correction": false}.
Only include fields the message actually provides.`

const editSystemPrompt = `You parse edit requests for vendor registration details.
Fields: full_name, company_name, designation, age, gender, mobile_number, email_id.
Respond with a single JSON object: {"field": "...", "new_value": "...", "understood": true}.
Set understood to false when the request does not clearly name a field and value.`

// ExtractDetails pulls candidate field updates from a free-text chat
// message. Any transport or decode failure yields an empty update set,
// never an error.
func (s *LLMService) ExtractDetails(ctx context.Context, message string, current *model.BasicInfo, missingField string) *DetailUpdates {
	prompt := fmt.Sprintf("Current details: %s\nNext missing field: %s\nUser message: %s",
		describeFields(current), missingField, message)

	var result DetailUpdates
	if err := s.completeJSON(ctx, extractSystemPrompt, prompt, &result); err != nil {
		logger.Warn(ctx, "detail extraction degraded to empty result", "error", err)
		return &DetailUpdates{}
	}
	return &result
}

// ClassifyEdit parses which field an edit request targets and its new
// value. Failures return an un-understood command.
func (s *LLMService) ClassifyEdit(ctx context.Context, message string, current *model.BasicInfo) *EditCommand {
	prompt := fmt.Sprintf("Current details: %s\nEdit request: %s", describeFields(current), message)

	var result EditCommand
	if err := s.completeJSON(ctx, editSystemPrompt, prompt, &result); err != nil {
		logger.Warn(ctx, "edit classification degraded", "error", err)
		return &EditCommand{}
	}
	return &result
}

func (s *LLMService) completeJSON(ctx context.Context, system, user string, out any) error {
	reqBody := chatCompletionRequest{
		Model: s.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: &respFormat{Type: "json_object"},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.config.APIURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.config.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("LLM API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return fmt.Errorf("LLM API returned no choices")
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("failed to parse extraction content: %w, content: %s", err, content)
	}
	return nil
}

func describeFields(info *model.BasicInfo) string {
	if info == nil {
		return "{}"
	}
	data, err := json.Marshal(info)
	if err != nil {
		return "{}"
	}
	return string(data)
}
