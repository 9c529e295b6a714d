package feedback

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kart-io/bdlaw/internal/rag/biz"
	"github.com/kart-io/bdlaw/pkg/llm"
	"github.com/kart-io/bdlaw/pkg/utils/errors"
)

type fakeCollection struct {
	docs []interface{}
	err  error
}

func (c *fakeCollection) InsertOne(_ context.Context, doc interface{}, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.docs = append(c.docs, doc)
	return &mongo.InsertOneResult{InsertedID: len(c.docs)}, nil
}

func newTestStore() (*MongoStore, *fakeCollection, *fakeCollection) {
	fb, conv := &fakeCollection{}, &fakeCollection{}
	return &MongoStore{feedback: fb, conversations: conv}, fb, conv
}

func TestRecordFeedback(t *testing.T) {
	s, coll, _ := newTestStore()

	ok, err := s.RecordFeedback(context.Background(), &Feedback{
		MessageID:       "01J9ZQ4K7X",
		Rating:          RatingBad,
		SuggestedAnswer: "Section 9 allows 20 working days.",
	})
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, coll.docs, 1)

	stored := coll.docs[0].(*Feedback)
	assert.Equal(t, "01J9ZQ4K7X", stored.MessageID)
	assert.False(t, stored.CreatedOn.IsZero())
}

func TestRecordFeedbackInvalid(t *testing.T) {
	s, coll, _ := newTestStore()

	tests := []struct {
		name string
		fb   *Feedback
	}{
		{"nil", nil},
		{"missing message id", &Feedback{Rating: RatingGood}},
		{"unknown rating", &Feedback{MessageID: "m1", Rating: "excellent"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := s.RecordFeedback(context.Background(), tt.fb)
			assert.False(t, ok)
			assert.True(t, stderrors.Is(err, errors.ErrFeedbackInvalid))
		})
	}
	assert.Empty(t, coll.docs)
}

func TestRecordFeedbackStoreFailure(t *testing.T) {
	s, coll, _ := newTestStore()
	coll.err = stderrors.New("server selection timeout")

	ok, err := s.RecordFeedback(context.Background(), &Feedback{MessageID: "m1", Rating: RatingGood})
	assert.False(t, ok)
	assert.True(t, stderrors.Is(err, errors.ErrFeedbackStore))
}

func TestSaveExchange(t *testing.T) {
	s, _, conv := newTestStore()

	ex := &biz.Exchange{
		MessageID: "m1",
		Messages:  []biz.ConversationMessage{{Role: llm.RoleUser, Content: "What is article 27?"}},
		Answer:    "All citizens are equal before law.",
		Language:  biz.LanguageEnglish,
	}
	require.NoError(t, s.SaveExchange(context.Background(), ex))
	require.Len(t, conv.docs, 1)
	assert.False(t, ex.CreatedOn.IsZero())
}

func TestLogSink(t *testing.T) {
	sink := NewLogSink()

	ok, err := sink.RecordFeedback(context.Background(), &Feedback{MessageID: "m1", Rating: RatingGood})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = sink.RecordFeedback(context.Background(), &Feedback{MessageID: "m1", Rating: "meh"})
	assert.False(t, ok)
	assert.True(t, stderrors.Is(err, errors.ErrFeedbackInvalid))
}
