package biz

import (
	"context"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
)

// produceFunc writes chunks through emit until it is done. emit reports false
// once the consumer has gone away. The return value marks a stream that ended
// with an error chunk.
type produceFunc func(ctx context.Context, emit func(string) bool) (failed bool)

// AnswerStream 是单次遍历、惰性求值的回答流。
// 生产者在第一次 Next 时启动，每个块通过无缓冲 channel 立即交给消费者。
type AnswerStream struct {
	ctx     context.Context
	cancel  context.CancelFunc
	produce produceFunc

	ch   chan string
	done chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
	started   atomic.Bool
	closed    atomic.Bool

	failed    atomic.Bool
	cancelled atomic.Bool

	// 以下字段只由消费者访问
	text       strings.Builder
	finished   bool
	onComplete func(text string)
}

func newAnswerStream(parent context.Context, produce produceFunc) *AnswerStream {
	ctx, cancel := context.WithCancel(parent)
	return &AnswerStream{
		ctx:     ctx,
		cancel:  cancel,
		produce: produce,
		ch:      make(chan string),
		done:    make(chan struct{}),
	}
}

// NewTextStream returns a stream that yields text as a single chunk.
func NewTextStream(ctx context.Context, text string) *AnswerStream {
	return newAnswerStream(ctx, func(_ context.Context, emit func(string) bool) bool {
		if text != "" {
			emit(text)
		}
		return false
	})
}

// OnComplete registers fn to run with the full text once the stream has ended
// normally. It does not run after cancellation or an error chunk. It must be
// called before the first Next.
func (s *AnswerStream) OnComplete(fn func(text string)) {
	s.onComplete = fn
}

func (s *AnswerStream) start() {
	s.startOnce.Do(func() {
		s.started.Store(true)
		go func() {
			defer close(s.done)
			defer close(s.ch)

			emit := func(chunk string) bool {
				select {
				case s.ch <- chunk:
					return true
				case <-s.ctx.Done():
					return false
				}
			}
			if s.produce(s.ctx, emit) {
				s.failed.Store(true)
			}
			if s.ctx.Err() != nil {
				s.cancelled.Store(true)
			}
		}()
	})
}

// Next returns the next chunk. It reports false when the stream has ended or
// ctx is done; in the latter case the stream is closed.
func (s *AnswerStream) Next(ctx context.Context) (string, bool) {
	if s.finished || s.closed.Load() {
		return "", false
	}
	s.start()

	select {
	case chunk, ok := <-s.ch:
		if !ok {
			s.finish()
			return "", false
		}
		s.text.WriteString(chunk)
		return chunk, true
	case <-ctx.Done():
		s.finished = true
		s.Close()
		return "", false
	}
}

func (s *AnswerStream) finish() {
	s.finished = true
	<-s.done
	if s.onComplete != nil && !s.failed.Load() && !s.cancelled.Load() {
		s.onComplete(s.text.String())
	}
	s.cancel()
}

// All returns the remaining chunks as an iterator. Breaking out of the loop
// closes the stream.
func (s *AnswerStream) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			chunk, ok := s.Next(s.ctx)
			if !ok {
				return
			}
			if !yield(chunk) {
				s.Close()
				return
			}
		}
	}
}

// Text drains the stream and returns the concatenated chunks, including an
// error chunk if the backend failed.
func (s *AnswerStream) Text(ctx context.Context) (string, error) {
	for {
		if _, ok := s.Next(ctx); !ok {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return s.text.String(), err
	}
	return s.text.String(), nil
}

// Failed reports whether the stream ended with an error chunk. Only
// meaningful after the stream has ended.
func (s *AnswerStream) Failed() bool {
	return s.failed.Load()
}

// Close stops the producer and waits for it to exit. Safe to call more than
// once and before the stream was started.
func (s *AnswerStream) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()
		if s.started.Load() {
			<-s.done
		}
	})
}
