package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ankitkr9911/vendor-processing/config"
	"github.com/ankitkr9911/vendor-processing/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names
const (
	collDrafts    = "vendor_drafts"
	collMessages  = "chat_messages"
	collVendors   = "vendors"
	collEvents    = "processed_events"
	collRejected  = "rejected_events"
	collLogs      = "webhook_logs"
	collCounters  = "counters"
	vendorCounter = "vendor_sequence"
)

// MongoStore is the MongoDB-backed Store implementation
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects to MongoDB and ensures the indexes the
// idempotency checks rely on
func NewMongoStore(ctx context.Context, cfg *config.MongoConfig) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	s := &MongoStore{
		client: client,
		db:     client.Database(cfg.Database),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return s, nil
}

// Close disconnects the underlying client
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	// Vendor email uniqueness backs the identity ledger; the sparse
	// flag skips records without an extracted email.
	_, err := s.db.Collection(collVendors).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "basic_info.email_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetSparse(true),
	})
	if err != nil {
		return err
	}

	_, err = s.db.Collection(collMessages).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "timestamp", Value: 1}},
	})
	if err != nil {
		return err
	}

	_, err = s.db.Collection(collLogs).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "event_id", Value: 1}},
	})
	return err
}

func (s *MongoStore) SaveDraft(ctx context.Context, draft *model.VendorDraft) error {
	draft.UpdatedAt = time.Now()
	opts := options.Replace().SetUpsert(true)
	_, err := s.db.Collection(collDrafts).ReplaceOne(ctx, bson.M{"_id": draft.SessionID}, draft, opts)
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

func (s *MongoStore) GetDraft(ctx context.Context, sessionID string) (*model.VendorDraft, error) {
	var draft model.VendorDraft
	err := s.db.Collection(collDrafts).FindOne(ctx, bson.M{"_id": sessionID}).Decode(&draft)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	return &draft, nil
}

func (s *MongoStore) AppendChatMessage(ctx context.Context, msg *model.ChatMessage) error {
	_, err := s.db.Collection(collMessages).InsertOne(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to append chat message: %w", err)
	}
	return nil
}

func (s *MongoStore) GetChatHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cursor, err := s.db.Collection(collMessages).Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat history: %w", err)
	}
	defer cursor.Close(ctx)

	var history []model.ChatMessage
	if err := cursor.All(ctx, &history); err != nil {
		return nil, fmt.Errorf("failed to decode chat history: %w", err)
	}
	return history, nil
}

func (s *MongoStore) InsertVendor(ctx context.Context, rec *model.VendorRecord) error {
	rec.UpdatedAt = time.Now()
	_, err := s.db.Collection(collVendors).InsertOne(ctx, rec)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateVendor
	}
	if err != nil {
		return fmt.Errorf("failed to insert vendor: %w", err)
	}
	return nil
}

func (s *MongoStore) GetVendor(ctx context.Context, vendorID string) (*model.VendorRecord, error) {
	var rec model.VendorRecord
	err := s.db.Collection(collVendors).FindOne(ctx, bson.M{"_id": vendorID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrVendorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vendor: %w", err)
	}
	return &rec, nil
}

func (s *MongoStore) FindVendorByEmail(ctx context.Context, email string) (*model.VendorRecord, error) {
	var rec model.VendorRecord
	err := s.db.Collection(collVendors).FindOne(ctx, bson.M{"basic_info.email_id": email}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrVendorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find vendor by email: %w", err)
	}
	return &rec, nil
}

func (s *MongoStore) ListVendors(ctx context.Context, status string, limit, skip int64) ([]model.VendorRecord, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if skip > 0 {
		opts.SetSkip(skip)
	}
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := s.db.Collection(collVendors).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list vendors: %w", err)
	}
	defer cursor.Close(ctx)

	var vendors []model.VendorRecord
	if err := cursor.All(ctx, &vendors); err != nil {
		return nil, fmt.Errorf("failed to decode vendors: %w", err)
	}
	return vendors, nil
}

// NextVendorSequence atomically increments the vendor counter document.
// The upsert creates it on first use; values are never reused.
func (s *MongoStore) NextVendorSequence(ctx context.Context) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter struct {
		Value int64 `bson:"value"`
	}
	err := s.db.Collection(collCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": vendorCounter},
		bson.M{"$inc": bson.M{"value": 1}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to increment vendor counter: %w", err)
	}
	return counter.Value, nil
}

func (s *MongoStore) GetProcessedEvent(ctx context.Context, eventID string) (*model.ProcessedEvent, error) {
	var event model.ProcessedEvent
	err := s.db.Collection(collEvents).FindOne(ctx, bson.M{"_id": eventID}).Decode(&event)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get processed event: %w", err)
	}
	return &event, nil
}

// ClaimEvent inserts the processing marker keyed by event id. The _id
// uniqueness makes the claim atomic: a concurrent redelivery gets
// ErrEventAlreadyClaimed instead of a second marker.
func (s *MongoStore) ClaimEvent(ctx context.Context, event *model.ProcessedEvent) error {
	event.UpdatedAt = time.Now()
	_, err := s.db.Collection(collEvents).InsertOne(ctx, event)
	if mongo.IsDuplicateKeyError(err) {
		return ErrEventAlreadyClaimed
	}
	if err != nil {
		return fmt.Errorf("failed to claim event: %w", err)
	}
	return nil
}

func (s *MongoStore) UpdateProcessedEvent(ctx context.Context, event *model.ProcessedEvent) error {
	event.UpdatedAt = time.Now()
	res, err := s.db.Collection(collEvents).ReplaceOne(ctx, bson.M{"_id": event.EventID}, event)
	if err != nil {
		return fmt.Errorf("failed to update processed event: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (s *MongoStore) InsertRejectedEvent(ctx context.Context, rej *model.RejectedEvent) error {
	_, err := s.db.Collection(collRejected).InsertOne(ctx, rej)
	if err != nil {
		return fmt.Errorf("failed to insert rejected event: %w", err)
	}
	return nil
}

func (s *MongoStore) AppendWebhookLog(ctx context.Context, entry *model.WebhookLogEntry) error {
	_, err := s.db.Collection(collLogs).InsertOne(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to append webhook log: %w", err)
	}
	return nil
}

func (s *MongoStore) GetWebhookStats(ctx context.Context, recentLimit int64) (*WebhookStats, error) {
	coll := s.db.Collection(collLogs)

	total, err := coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to count webhook logs: %w", err)
	}

	cursor, err := coll.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$outcome", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate webhook outcomes: %w", err)
	}
	defer cursor.Close(ctx)

	byOutcome := make(map[string]int64)
	for cursor.Next(ctx) {
		var row struct {
			Outcome string `bson:"_id"`
			Count   int64  `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode outcome row: %w", err)
		}
		byOutcome[row.Outcome] = row.Count
	}

	if recentLimit <= 0 {
		recentLimit = 10
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(recentLimit)
	recentCursor, err := coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent webhook logs: %w", err)
	}
	defer recentCursor.Close(ctx)

	var recent []model.WebhookLogEntry
	if err := recentCursor.All(ctx, &recent); err != nil {
		return nil, fmt.Errorf("failed to decode recent webhook logs: %w", err)
	}

	return &WebhookStats{Total: total, ByOutcome: byOutcome, Recent: recent}, nil
}
