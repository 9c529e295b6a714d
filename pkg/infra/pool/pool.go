// Package pool runs background work (history writes, document indexing) on
// bounded ants goroutine pools.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
)

// Type defines the type of worker pool.
type Type string

const (
	// HistoryPool 问答记录与反馈异步写入
	HistoryPool Type = "history"
	// IndexPool 批量向量化与入库
	IndexPool Type = "index"
)

// Config defines the configuration for the worker pool.
type Config struct {
	// Capacity 最大并发 goroutine 数
	Capacity int
	// ExpiryDuration goroutine 空闲过期时间
	ExpiryDuration time.Duration
	// Nonblocking 池满时提交直接返回 ErrPoolOverload
	Nonblocking bool
	// MaxBlockingTasks Nonblocking=false 时允许排队的任务数，0 表示不限
	MaxBlockingTasks int
}

// HistoryPoolConfig 返回问答记录池配置。写入失败只影响审计，池满时直接丢弃。
func HistoryPoolConfig() *Config {
	return &Config{
		Capacity:       64,
		ExpiryDuration: 30 * time.Second,
		Nonblocking:    true,
	}
}

// IndexPoolConfig 返回索引池配置。
func IndexPoolConfig() *Config {
	return &Config{
		Capacity:         4,
		ExpiryDuration:   60 * time.Second,
		Nonblocking:      false,
		MaxBlockingTasks: 64,
	}
}

// Pool represents a worker pool.
type Pool struct {
	name   string
	pool   *ants.Pool
	stats  statsCounter
	closed atomic.Bool
	mu     sync.Mutex
}

type statsCounter struct {
	submitted atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
	panics    atomic.Int64
}

// Stats contains statistics about the worker pool.
type Stats struct {
	Capacity  int   `json:"capacity"`
	Running   int   `json:"running"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Rejected  int64 `json:"rejected"`
	Panics    int64 `json:"panics"`
}

// NewPool creates a new worker pool with the given configuration.
func NewPool(name string, config *Config) (*Pool, error) {
	if config == nil || config.Capacity <= 0 {
		return nil, ErrInvalidPoolConfig
	}

	p := &Pool{name: name}
	pool, err := ants.NewPool(config.Capacity,
		ants.WithExpiryDuration(config.ExpiryDuration),
		ants.WithNonblocking(config.Nonblocking),
		ants.WithMaxBlockingTasks(config.MaxBlockingTasks),
		ants.WithPanicHandler(func(r any) {
			p.stats.panics.Add(1)
			logger.Errorw("worker panic recovered", "pool", name, "panic", r)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("创建 ants 池失败: %w", err)
	}
	p.pool = pool

	logger.Infow("worker pool created", "name", name, "capacity", config.Capacity)
	return p, nil
}

// Name 返回池名称
func (p *Pool) Name() string {
	return p.name
}

// Submit 提交任务到池中执行
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	err := p.pool.Submit(func() {
		task()
		p.stats.completed.Add(1)
	})
	if err != nil {
		if errors.Is(err, ants.ErrPoolOverload) {
			p.stats.rejected.Add(1)
			return ErrPoolOverload
		}
		if errors.Is(err, ants.ErrPoolClosed) {
			return ErrPoolClosed
		}
		return err
	}
	p.stats.submitted.Add(1)
	return nil
}

// SubmitWithContext 提交任务，任务开始前 ctx 已取消则跳过执行。
func (p *Pool) SubmitWithContext(ctx context.Context, task func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.Submit(func() {
		if ctx.Err() != nil {
			return
		}
		task()
	})
}

// ReleaseTimeout 关闭池并等待运行中的任务结束，直到超时。
func (p *Pool) ReleaseTimeout(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Swap(true) {
		return nil
	}
	err := p.pool.ReleaseTimeout(timeout)
	logger.Infow("worker pool released", "name", p.name)
	return err
}

// Stats 返回池统计信息快照
func (p *Pool) Stats() Stats {
	return Stats{
		Capacity:  p.pool.Cap(),
		Running:   p.pool.Running(),
		Submitted: p.stats.submitted.Load(),
		Completed: p.stats.completed.Load(),
		Rejected:  p.stats.rejected.Load(),
		Panics:    p.stats.panics.Load(),
	}
}
