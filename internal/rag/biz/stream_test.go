package biz

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingStream(started *atomic.Bool, chunks ...string) *AnswerStream {
	return newAnswerStream(context.Background(), func(_ context.Context, emit func(string) bool) bool {
		started.Store(true)
		for _, c := range chunks {
			if !emit(c) {
				return false
			}
		}
		return false
	})
}

func TestAnswerStreamIsLazy(t *testing.T) {
	var started atomic.Bool
	s := countingStream(&started, "a", "b")
	assert.False(t, started.Load(), "producer must not start before the first Next")

	chunk, ok := s.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, "a", chunk)
	assert.True(t, started.Load())
	s.Close()
}

func TestAnswerStreamCloseBeforeStart(t *testing.T) {
	var started atomic.Bool
	s := countingStream(&started, "a")
	s.Close()
	s.Close()

	_, ok := s.Next(context.Background())
	assert.False(t, ok)
	assert.False(t, started.Load())
}

func TestAnswerStreamAllBreakCloses(t *testing.T) {
	var started atomic.Bool
	s := countingStream(&started, "a", "b", "c")

	var got []string
	for chunk := range s.All() {
		got = append(got, chunk)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, got)

	_, ok := s.Next(context.Background())
	assert.False(t, ok, "stream is single-pass")
}

func TestAnswerStreamOnComplete(t *testing.T) {
	var started atomic.Bool
	s := countingStream(&started, "Section ", "9")

	var completed string
	calls := 0
	s.OnComplete(func(text string) {
		completed = text
		calls++
	})

	text, err := s.Text(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Section 9", text)
	assert.Equal(t, "Section 9", completed)

	_, _ = s.Next(context.Background())
	assert.Equal(t, 1, calls)
}

func TestAnswerStreamOnCompleteSkippedOnFailure(t *testing.T) {
	s := newAnswerStream(context.Background(), func(_ context.Context, emit func(string) bool) bool {
		emit("Error processing your request: boom\n\n")
		return true
	})
	called := false
	s.OnComplete(func(string) { called = true })

	_, err := s.Text(context.Background())
	require.NoError(t, err)
	assert.False(t, called)
	assert.True(t, s.Failed())
}

func TestAnswerStreamConsumerCancel(t *testing.T) {
	s := newAnswerStream(context.Background(), func(ctx context.Context, emit func(string) bool) bool {
		for emit("tick") {
		}
		return false
	})
	called := false
	s.OnComplete(func(string) { called = true })

	ctx, cancel := context.WithCancel(context.Background())
	_, ok := s.Next(ctx)
	require.True(t, ok)

	cancel()
	text, err := s.Text(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "tick", text[:4])
	assert.False(t, called)
}

func TestNewTextStream(t *testing.T) {
	s := NewTextStream(context.Background(), "cached answer")
	text, err := s.Text(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached answer", text)

	empty := NewTextStream(context.Background(), "")
	_, ok := empty.Next(context.Background())
	assert.False(t, ok)
}
