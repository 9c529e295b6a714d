package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/bdlaw/pkg/llm"
)

func fastPolicy(attempts int) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  attempts,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
		Retryable:    func(error) bool { return true },
	}
}

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker("test", &BreakerConfig{MaxFailures: 3, OpenTimeout: time.Second, HalfOpenMaxCalls: 1})
	assert.Equal(t, StateClosed, b.State())

	testErr := errors.New("boom")
	for i := 0; i < 3; i++ {
		assert.Error(t, b.Execute(func() error { return testErr }))
	}
	assert.Equal(t, StateOpen, b.State())

	err := b.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := NewBreaker("test", &BreakerConfig{MaxFailures: 2, OpenTimeout: 50 * time.Millisecond, HalfOpenMaxCalls: 1})
	testErr := errors.New("boom")
	for i := 0; i < 2; i++ {
		_ = b.Execute(func() error { return testErr })
	}
	require.Equal(t, StateOpen, b.State())

	time.Sleep(80 * time.Millisecond)

	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker("test", &BreakerConfig{MaxFailures: 2, OpenTimeout: 50 * time.Millisecond, HalfOpenMaxCalls: 1})
	testErr := errors.New("boom")
	for i := 0; i < 2; i++ {
		_ = b.Execute(func() error { return testErr })
	}

	time.Sleep(80 * time.Millisecond)

	assert.Error(t, b.Execute(func() error { return testErr }))
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerStatsAndReset(t *testing.T) {
	b := NewBreaker("chat", nil)
	_ = b.Execute(func() error { return errors.New("boom") })

	stats := b.Stats()
	assert.Equal(t, "chat", stats.Name)
	assert.Equal(t, "closed", stats.State)
	assert.Equal(t, 1, stats.Failures)
	assert.False(t, stats.LastFailure.IsZero())

	b.Reset()
	assert.Equal(t, 0, b.Stats().Failures)
}

func TestRetryEventualSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryMaxAttempts(t *testing.T) {
	calls := 0
	testErr := errors.New("persistent")
	err := Retry(context.Background(), fastPolicy(3), func() error {
		calls++
		return testErr
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, testErr)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "max retry attempts")
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	policy := fastPolicy(5)
	policy.Retryable = func(err error) bool { return err.Error() != "fatal" }

	calls := 0
	fatal := errors.New("fatal")
	err := Retry(context.Background(), policy, func() error {
		calls++
		return fatal
	})
	assert.Equal(t, fatal, err)
	assert.Equal(t, 1, calls)
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := fastPolicy(5)
	policy.InitialDelay = 200 * time.Millisecond

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, policy, func() error { return errors.New("boom") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithBreakerStopsWhenOpen(t *testing.T) {
	policy := fastPolicy(3)
	policy.Retryable = IsRetryableError
	b := NewBreaker("test", &BreakerConfig{MaxFailures: 2, OpenTimeout: time.Second, HalfOpenMaxCalls: 1})

	calls := 0
	err := RetryWithBreaker(context.Background(), policy, b, func() error {
		calls++
		return fmt.Errorf("request failed with status code 503")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, 2, calls)
	assert.Equal(t, StateOpen, b.State())
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"breaker open", ErrBreakerOpen, false},
		{"api 500", &goopenai.APIError{HTTPStatusCode: http.StatusInternalServerError}, true},
		{"api 429", &goopenai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, true},
		{"api 401", &goopenai.APIError{HTTPStatusCode: http.StatusUnauthorized}, false},
		{"wrapped api 502", fmt.Errorf("openrouter: %w", &goopenai.APIError{HTTPStatusCode: http.StatusBadGateway}), true},
		{"http client 5xx", errors.New("request failed with status code 502: bad gateway"), true},
		{"eof", io.ErrUnexpectedEOF, true},
		{"plain", errors.New("invalid json"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}

type flakyChat struct {
	failures int
	calls    int
}

func (f *flakyChat) Name() string { return "flaky" }

func (f *flakyChat) Chat(_ context.Context, _ []llm.Message, _ *llm.ChatOptions) (*llm.ChatResponse, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, &goopenai.APIError{HTTPStatusCode: http.StatusServiceUnavailable}
	}
	return &llm.ChatResponse{Choices: []llm.Choice{{Content: "ok"}}}, nil
}

func (f *flakyChat) ChatStream(_ context.Context, _ []llm.Message, _ *llm.ChatOptions) (llm.ChatStream, error) {
	f.calls++
	return nil, &goopenai.APIError{HTTPStatusCode: http.StatusUnauthorized}
}

func TestWrapChatRetriesTransientFailures(t *testing.T) {
	inner := &flakyChat{failures: 2}
	policy := fastPolicy(3)
	policy.Retryable = IsRetryableError
	p := WrapChat(inner, policy, nil)

	resp, err := p.Chat(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content())
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, "flaky", p.Name())
}

func TestWrapChatStreamDoesNotRetryClientErrors(t *testing.T) {
	inner := &flakyChat{}
	policy := fastPolicy(3)
	policy.Retryable = IsRetryableError
	p := WrapChat(inner, policy, nil)

	_, err := p.ChatStream(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 1, p.Breaker().Stats().Failures)
}
