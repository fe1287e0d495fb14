package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/apperr"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// UserContextCollection is the collection holding one document per user.
const UserContextCollection = "user_contexts"

// MongoDocumentStore stores user contexts in MongoDB.
type MongoDocumentStore struct {
	col    *mongo.Collection
	logger *zap.Logger
}

func NewMongoDocumentStore(db *mongo.Database, logger *zap.Logger) *MongoDocumentStore {
	return &MongoDocumentStore{col: db.Collection(UserContextCollection), logger: logger}
}

// EnsureIndexes configures indexes for the user_contexts collection.
// Called on startup from main after Mongo has connected.
func (s *MongoDocumentStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetName("uniq_user_id").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("idx_updated_at"),
		},
	}
	for _, m := range indexes {
		if _, err := s.col.Indexes().CreateOne(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *MongoDocumentStore) FindOne(ctx context.Context, userID string) (*models.UserContext, error) {
	var doc models.UserContext
	err := s.col.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, apperr.Transient("failed to load user context", err)
	}
	normalizeChats(&doc)
	return &doc, nil
}

func (s *MongoDocumentStore) UpsertMerge(ctx context.Context, userID string, patch ContextPatch, now time.Time) (*models.UserContext, error) {
	return s.upsert(ctx, userID, mergeUpdate(patch, now))
}

func (s *MongoDocumentStore) AtomicAppendCapped(ctx context.Context, userID string, items []models.ChatEntry, limit int, now time.Time) (*models.UserContext, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("append limit must be positive, got %d", limit)
	}
	return s.upsert(ctx, userID, appendUpdate(items, limit, now))
}

func (s *MongoDocumentStore) Delete(ctx context.Context, userID string) error {
	res, err := s.col.DeleteOne(ctx, bson.M{"user_id": userID})
	if err != nil {
		return apperr.Transient("failed to delete user context", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// upsert runs a single FindOneAndUpdate with upsert. Two first writers for the same
// user can both miss the filter; the loser hits the unique index and is retried once.
func (s *MongoDocumentStore) upsert(ctx context.Context, userID string, update bson.M) (*models.UserContext, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		var doc models.UserContext
		err := s.col.FindOneAndUpdate(ctx, bson.M{"user_id": userID}, update, opts).Decode(&doc)
		if err == nil {
			normalizeChats(&doc)
			return &doc, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return nil, apperr.Transient("failed to update user context", err)
		}
		lastErr = err
		s.logger.Warn("Duplicate key on context upsert, retrying",
			zap.String("user_id", userID), zap.Int("attempt", attempt+1))
	}
	return nil, apperr.Concurrency("concurrent update of user context", lastErr)
}

// mergeUpdate builds the update document for UpsertMerge. $set and $setOnInsert
// never name the same path.
func mergeUpdate(patch ContextPatch, now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	onInsert := bson.M{"created_at": now, "chats": bson.A{}}

	for _, f := range profileFields(patch.Profile) {
		path := "profile." + f.name
		switch {
		case f.value != nil:
			set[path] = *f.value
		case patch.ReplaceProfile:
			set[path] = nil
		default:
			onInsert[path] = nil
		}
	}

	if patch.Location != nil {
		set["location"] = patch.Location
	} else {
		onInsert["location"] = nil
	}
	if patch.Weather != nil {
		set["weather"] = patch.Weather
	} else {
		onInsert["weather"] = nil
	}

	return bson.M{"$set": set, "$setOnInsert": onInsert}
}

// appendUpdate builds the update document for AtomicAppendCapped.
func appendUpdate(items []models.ChatEntry, limit int, now time.Time) bson.M {
	onInsert := bson.M{
		"created_at": now,
		"location":   nil,
		"weather":    nil,
	}
	for _, f := range profileFields(models.Profile{}) {
		onInsert["profile."+f.name] = nil
	}
	return bson.M{
		"$push": bson.M{
			"chats": bson.M{
				"$each":  items,
				"$slice": -limit,
			},
		},
		"$set":         bson.M{"updated_at": now},
		"$setOnInsert": onInsert,
	}
}

func normalizeChats(doc *models.UserContext) {
	if doc.Chats == nil {
		doc.Chats = []models.ChatEntry{}
	}
}
