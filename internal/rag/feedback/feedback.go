// Package feedback stores user ratings of answers and the answered
// conversations.
package feedback

import (
	"context"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/bdlaw/pkg/utils/errors"
)

// Rating values.
const (
	RatingGood = "good"
	RatingBad  = "bad"
)

// Feedback 用户对一条回答的评价。
type Feedback struct {
	MessageID       string    `json:"message_id" bson:"message_id" binding:"required"`
	Rating          string    `json:"rating" bson:"rating" binding:"required,rating"`
	SuggestedAnswer string    `json:"suggested_answer,omitempty" bson:"suggested_answer,omitempty"`
	Feedback        string    `json:"feedback,omitempty" bson:"feedback,omitempty"`
	CreatedOn       time.Time `json:"-" bson:"created_on"`
}

// Sink 记录用户反馈。
type Sink interface {
	// RecordFeedback 保存反馈，成功时返回 true。
	RecordFeedback(ctx context.Context, fb *Feedback) (bool, error)
}

// ValidRating reports whether r is an accepted rating.
func ValidRating(r string) bool {
	return r == RatingGood || r == RatingBad
}

func validate(fb *Feedback) error {
	if fb == nil {
		return errors.ErrFeedbackInvalid.WithMessage("feedback is empty")
	}
	if strings.TrimSpace(fb.MessageID) == "" {
		return errors.ErrFeedbackInvalid.WithMessage("message_id is required")
	}
	if !ValidRating(fb.Rating) {
		return errors.ErrFeedbackInvalid.WithMessagef("rating must be %q or %q", RatingGood, RatingBad)
	}
	return nil
}

// LogSink 仅记录日志的反馈实现，MongoDB 关闭时使用。
type LogSink struct{}

// NewLogSink creates a LogSink.
func NewLogSink() *LogSink {
	return &LogSink{}
}

// RecordFeedback validates fb and logs it.
func (LogSink) RecordFeedback(_ context.Context, fb *Feedback) (bool, error) {
	if err := validate(fb); err != nil {
		return false, err
	}
	logger.Infow("feedback received",
		"message_id", fb.MessageID,
		"rating", fb.Rating,
		"has_suggestion", fb.SuggestedAnswer != "",
	)
	return true, nil
}
