// Package id provides unique ID generation for answers, documents and requests.
package id

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ULIDGenerator 使用 ULID 算法生成时间可排序的唯一 ID。
//
// 格式: 01AN4Z07BY79KA1307SR9X4MV3
//   - 前 10 字符: 时间戳 (毫秒)
//   - 后 16 字符: 随机熵
type ULIDGenerator struct {
	entropy io.Reader
	mu      sync.Mutex
}

// NewULIDGenerator 创建新的 ULID 生成器。
func NewULIDGenerator() *ULIDGenerator {
	// 单调熵源保证同一毫秒内的 ID 依然有序
	return &ULIDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Generate 生成一个新的 ULID。
func (g *ULIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

var (
	defaultULID *ULIDGenerator
	initOnce    sync.Once
)

// NewULID generates a ULID with the package-level generator.
func NewULID() string {
	initOnce.Do(func() {
		defaultULID = NewULIDGenerator()
	})
	return defaultULID.Generate()
}

// IsULID reports whether s parses as a ULID.
func IsULID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
