package feedback

import (
	"context"
	"time"

	"github.com/kart-io/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kart-io/bdlaw/internal/rag/biz"
	"github.com/kart-io/bdlaw/pkg/utils/errors"
)

// Collection names in the bdLaw database.
const (
	CollectionFeedback      = "feedback"
	CollectionConversations = "conversations"
)

// inserter is the part of *mongo.Collection the store writes through.
type inserter interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// MongoStore 基于 MongoDB 的反馈与会话历史存储。
type MongoStore struct {
	db            *mongo.Database
	feedback      inserter
	conversations inserter
}

var (
	_ Sink              = (*MongoStore)(nil)
	_ biz.HistoryWriter = (*MongoStore)(nil)
)

// NewMongoStore creates a store writing to the feedback and conversations
// collections of db.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		db:            db,
		feedback:      db.Collection(CollectionFeedback),
		conversations: db.Collection(CollectionConversations),
	}
}

// EnsureIndexes 为 message_id 和 created_on 建立索引。
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "message_id", Value: 1}}},
		{Keys: bson.D{{Key: "created_on", Value: -1}}},
	}
	for _, name := range []string{CollectionFeedback, CollectionConversations} {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return err
		}
	}
	return nil
}

// RecordFeedback validates and inserts fb.
func (s *MongoStore) RecordFeedback(ctx context.Context, fb *Feedback) (bool, error) {
	if err := validate(fb); err != nil {
		return false, err
	}
	if fb.CreatedOn.IsZero() {
		fb.CreatedOn = time.Now().UTC()
	}

	if _, err := s.feedback.InsertOne(ctx, fb); err != nil {
		logger.Errorw("failed to store feedback", "message_id", fb.MessageID, "error", err.Error())
		return false, errors.ErrFeedbackStore.WithCause(err)
	}

	logger.Infow("feedback stored", "message_id", fb.MessageID, "rating", fb.Rating)
	return true, nil
}

// SaveExchange inserts one answered conversation.
func (s *MongoStore) SaveExchange(ctx context.Context, ex *biz.Exchange) error {
	if ex.CreatedOn.IsZero() {
		ex.CreatedOn = time.Now().UTC()
	}
	_, err := s.conversations.InsertOne(ctx, ex)
	return err
}
