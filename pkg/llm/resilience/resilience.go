// Package resilience 为上游 LLM 调用提供重试与熔断。
//
// 只有建立连接之前的失败会被重试；流式输出一旦开始，错误直接交给调用方处理。
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kart-io/logger"
)

// RetryPolicy 重试策略。
type RetryPolicy struct {
	// MaxAttempts 最大尝试次数（包括首次调用）。
	MaxAttempts int
	// InitialDelay 首次重试前的等待时间。
	InitialDelay time.Duration
	// MaxDelay 单次等待的上限。
	MaxDelay time.Duration
	// Multiplier 指数退避因子。
	Multiplier float64
	// Retryable 判断错误是否可重试，为 nil 时使用 IsRetryableError。
	Retryable func(error) bool
}

// DefaultRetryPolicy 返回默认重试策略。
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Retryable:    IsRetryableError,
	}
}

// BreakerConfig 熔断器配置。
type BreakerConfig struct {
	// MaxFailures 连续失败多少次后打开熔断器。
	MaxFailures int
	// OpenTimeout 打开状态持续多久后进入半开。
	OpenTimeout time.Duration
	// HalfOpenMaxCalls 半开状态允许的探测调用数。
	HalfOpenMaxCalls int
}

// DefaultBreakerConfig 返回默认熔断器配置。
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		MaxFailures:      5,
		OpenTimeout:      60 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// State 熔断器状态。
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen 熔断器打开时返回。
var ErrBreakerOpen = errors.New("circuit breaker is open")

// Breaker 熔断器。
type Breaker struct {
	name   string
	config *BreakerConfig

	mu                sync.Mutex
	state             State
	failures          int
	lastFailure       time.Time
	halfOpenCalls     int
	halfOpenSuccesses int
}

// NewBreaker 创建熔断器，name 仅用于日志。
func NewBreaker(name string, config *BreakerConfig) *Breaker {
	if config == nil {
		config = DefaultBreakerConfig()
	}
	return &Breaker{name: name, config: config, state: StateClosed}
}

// Execute 通过熔断器执行 fn。
func (b *Breaker) Execute(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	b.Record(err)
	return err
}

// Allow 判断当前是否允许发起调用。允许时调用方必须随后调用 Record。
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(b.lastFailure) <= b.config.OpenTimeout {
			return ErrBreakerOpen
		}
		logger.Infow("circuit breaker half-open", "breaker", b.name)
		b.state = StateHalfOpen
		b.halfOpenCalls = 1
		b.halfOpenSuccesses = 0
		return nil
	case StateHalfOpen:
		if b.halfOpenCalls >= b.config.HalfOpenMaxCalls {
			return ErrBreakerOpen
		}
		b.halfOpenCalls++
		return nil
	}
	return ErrBreakerOpen
}

// Record 记录一次调用结果。
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		switch b.state {
		case StateClosed:
			b.failures = 0
		case StateHalfOpen:
			b.halfOpenSuccesses++
			if b.halfOpenSuccesses >= b.halfOpenCalls {
				logger.Infow("circuit breaker closed", "breaker", b.name)
				b.state = StateClosed
				b.failures = 0
			}
		}
		return
	}

	b.failures++
	b.lastFailure = time.Now()

	switch b.state {
	case StateClosed:
		if b.failures >= b.config.MaxFailures {
			logger.Warnw("circuit breaker opened",
				"breaker", b.name,
				"failures", b.failures,
				"error", err.Error(),
			)
			b.state = StateOpen
		}
	case StateHalfOpen:
		logger.Warnw("circuit breaker re-opened after probe failure", "breaker", b.name, "error", err.Error())
		b.state = StateOpen
	}
}

// State 返回当前状态。
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BreakerStats 熔断器快照。
type BreakerStats struct {
	Name        string    `json:"name"`
	State       string    `json:"state"`
	Failures    int       `json:"failures"`
	LastFailure time.Time `json:"last_failure"`
}

// Stats 返回熔断器快照。
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		Name:        b.name,
		State:       b.state.String(),
		Failures:    b.failures,
		LastFailure: b.lastFailure,
	}
}

// Reset 将熔断器恢复为关闭状态。
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.halfOpenCalls = 0
	b.halfOpenSuccesses = 0
}

// Retry 按策略重试 fn，等待期间响应 ctx 取消。
func Retry(ctx context.Context, policy *RetryPolicy, fn func() error) error {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	retryable := policy.Retryable
	if retryable == nil {
		retryable = IsRetryableError
	}

	delay := policy.InitialDelay
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if attempt >= policy.MaxAttempts {
			return fmt.Errorf("max retry attempts (%d) reached: %w", policy.MaxAttempts, err)
		}

		logger.Debugw("retrying upstream call",
			"attempt", attempt,
			"delay", delay.String(),
			"error", err.Error(),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * policy.Multiplier)
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
}

// RetryWithBreaker 每次尝试都经过熔断器。熔断器打开时不再重试。
func RetryWithBreaker(ctx context.Context, policy *RetryPolicy, b *Breaker, fn func() error) error {
	return Retry(ctx, policy, func() error {
		return b.Execute(fn)
	})
}
