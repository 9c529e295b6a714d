package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/bdlaw/pkg/utils/json"
)

// AnswerCacheConfig 回答缓存配置。
type AnswerCacheConfig struct {
	// Enabled 是否启用缓存。
	Enabled bool
	// TTL 缓存过期时间。
	TTL time.Duration
	// KeyPrefix 缓存键前缀。
	KeyPrefix string
}

// CachedAnswer 缓存中的一条回答。
type CachedAnswer struct {
	Content  string        `json:"content"`
	Rewrite  RewriteResult `json:"rewrite"`
	CachedAt time.Time     `json:"cached_at"`
}

// AnswerCache 单轮问题的回答缓存。
type AnswerCache struct {
	redis  *goredis.Client
	config *AnswerCacheConfig
}

// NewAnswerCache 创建回答缓存实例。
func NewAnswerCache(redis *goredis.Client, config *AnswerCacheConfig) *AnswerCache {
	if config == nil {
		config = &AnswerCacheConfig{
			Enabled:   false,
			TTL:       time.Hour,
			KeyPrefix: "bdlaw:answer:",
		}
	}
	return &AnswerCache{
		redis:  redis,
		config: config,
	}
}

// Enabled reports whether lookups can hit.
func (c *AnswerCache) Enabled() bool {
	return c != nil && c.config.Enabled && c.redis != nil
}

// cacheKey 基于规范化问题和温度生成 SHA256 键。
func (c *AnswerCache) cacheKey(question string, temperature float32) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	hash := sha256.Sum256([]byte(normalized + "|" + strconv.FormatFloat(float64(temperature), 'f', 2, 32)))
	return c.config.KeyPrefix + hex.EncodeToString(hash[:])
}

// Get returns the cached answer, or nil on a miss.
func (c *AnswerCache) Get(ctx context.Context, question string, temperature float32) (*CachedAnswer, error) {
	if !c.Enabled() {
		return nil, nil
	}

	key := c.cacheKey(question, temperature)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if stderrors.Is(err, goredis.Nil) {
			logger.Debugw("answer cache miss", "key", key)
			return nil, nil
		}
		logger.Warnw("failed to get from answer cache", "error", err.Error(), "key", key)
		return nil, err
	}

	var cached CachedAnswer
	if err := json.Unmarshal(data, &cached); err != nil {
		logger.Warnw("failed to unmarshal cached answer", "error", err.Error(), "key", key)
		// 删除损坏的缓存
		_ = c.redis.Del(ctx, key).Err()
		return nil, err
	}

	logger.Infow("answer cache hit", "key", key, "answer_length", len(cached.Content))
	return &cached, nil
}

// Set stores an answer.
func (c *AnswerCache) Set(ctx context.Context, question string, temperature float32, answer *CachedAnswer) error {
	if !c.Enabled() {
		return nil
	}

	key := c.cacheKey(question, temperature)
	if answer.CachedAt.IsZero() {
		answer.CachedAt = time.Now().UTC()
	}
	data, err := json.Marshal(answer)
	if err != nil {
		logger.Warnw("failed to marshal answer for caching", "error", err.Error())
		return err
	}

	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("failed to set answer cache", "error", err.Error(), "key", key)
		return err
	}

	logger.Debugw("cached answer", "key", key, "ttl", c.config.TTL.String())
	return nil
}
