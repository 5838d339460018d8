package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ankitkr9911/vendor-processing/model"
)

// MemoryStore is an in-memory Store used by tests and dev runs without
// a database. All methods are safe for concurrent use.
type MemoryStore struct {
	mu         sync.RWMutex
	drafts     map[string]*model.VendorDraft
	messages   map[string][]model.ChatMessage
	vendors    map[string]*model.VendorRecord
	events     map[string]*model.ProcessedEvent
	rejected   []model.RejectedEvent
	webhookLog []model.WebhookLogEntry
	sequence   int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		drafts:   make(map[string]*model.VendorDraft),
		messages: make(map[string][]model.ChatMessage),
		vendors:  make(map[string]*model.VendorRecord),
		events:   make(map[string]*model.ProcessedEvent),
	}
}

func (s *MemoryStore) SaveDraft(_ context.Context, draft *model.VendorDraft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft.UpdatedAt = time.Now()
	cp := *draft
	s.drafts[draft.SessionID] = &cp
	return nil
}

func (s *MemoryStore) GetDraft(_ context.Context, sessionID string) (*model.VendorDraft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	draft, ok := s.drafts[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *draft
	return &cp, nil
}

func (s *MemoryStore) AppendChatMessage(_ context.Context, msg *model.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], *msg)
	return nil
}

func (s *MemoryStore) GetChatHistory(_ context.Context, sessionID string) ([]model.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.messages[sessionID]
	out := make([]model.ChatMessage, len(history))
	copy(out, history)
	return out, nil
}

func (s *MemoryStore) InsertVendor(_ context.Context, rec *model.VendorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.vendors[rec.VendorID]; exists {
		return ErrDuplicateVendor
	}
	for _, v := range s.vendors {
		if rec.BasicInfo.EmailID != "" && v.BasicInfo.EmailID == rec.BasicInfo.EmailID {
			return ErrDuplicateVendor
		}
	}

	rec.UpdatedAt = time.Now()
	cp := *rec
	s.vendors[rec.VendorID] = &cp
	return nil
}

func (s *MemoryStore) GetVendor(_ context.Context, vendorID string) (*model.VendorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.vendors[vendorID]
	if !ok {
		return nil, ErrVendorNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) FindVendorByEmail(_ context.Context, email string) (*model.VendorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.vendors {
		if rec.BasicInfo.EmailID == email {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrVendorNotFound
}

func (s *MemoryStore) ListVendors(_ context.Context, status string, limit, skip int64) ([]model.VendorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]model.VendorRecord, 0, len(s.vendors))
	for _, rec := range s.vendors {
		if status != "" && rec.Status != status {
			continue
		}
		all = append(all, *rec)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	if skip > 0 {
		if skip >= int64(len(all)) {
			return []model.VendorRecord{}, nil
		}
		all = all[skip:]
	}
	if limit > 0 && limit < int64(len(all)) {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryStore) NextVendorSequence(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sequence++
	return s.sequence, nil
}

func (s *MemoryStore) GetProcessedEvent(_ context.Context, eventID string) (*model.ProcessedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.events[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	cp := *event
	return &cp, nil
}

func (s *MemoryStore) ClaimEvent(_ context.Context, event *model.ProcessedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[event.EventID]; exists {
		return ErrEventAlreadyClaimed
	}
	event.UpdatedAt = time.Now()
	cp := *event
	s.events[event.EventID] = &cp
	return nil
}

func (s *MemoryStore) UpdateProcessedEvent(_ context.Context, event *model.ProcessedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[event.EventID]; !ok {
		return ErrEventNotFound
	}
	event.UpdatedAt = time.Now()
	cp := *event
	s.events[event.EventID] = &cp
	return nil
}

func (s *MemoryStore) InsertRejectedEvent(_ context.Context, rej *model.RejectedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rejected = append(s.rejected, *rej)
	return nil
}

func (s *MemoryStore) AppendWebhookLog(_ context.Context, entry *model.WebhookLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.webhookLog = append(s.webhookLog, *entry)
	return nil
}

func (s *MemoryStore) GetWebhookStats(_ context.Context, recentLimit int64) (*WebhookStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &WebhookStats{
		Total:     int64(len(s.webhookLog)),
		ByOutcome: make(map[string]int64),
	}
	for _, entry := range s.webhookLog {
		stats.ByOutcome[entry.Outcome]++
	}

	n := int64(len(s.webhookLog))
	if recentLimit > 0 && recentLimit < n {
		n = recentLimit
	}
	stats.Recent = make([]model.WebhookLogEntry, 0, n)
	for i := len(s.webhookLog) - 1; i >= 0 && int64(len(stats.Recent)) < n; i-- {
		stats.Recent = append(stats.Recent, s.webhookLog[i])
	}
	return stats, nil
}
