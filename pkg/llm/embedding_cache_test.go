package llm

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
	texts []string
}

func (c *countingEmbedder) Name() string { return "counting" }

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	c.texts = append(c.texts, texts...)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (c *countingEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	out, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func newCachedEmbedder(t *testing.T) (*CachedEmbeddingProvider, *countingEmbedder) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	inner := &countingEmbedder{}
	return NewCachedEmbeddingProvider(inner, client, nil), inner
}

func TestCachedEmbeddingProviderHitsCache(t *testing.T) {
	ctx := context.Background()
	c, inner := newCachedEmbedder(t)

	first, err := c.Embed(ctx, []string{"rent", "tenant law"})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)

	second, err := c.Embed(ctx, []string{"rent", "tenant law"})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, first, second)
}

func TestCachedEmbeddingProviderOnlyEmbedsMisses(t *testing.T) {
	ctx := context.Background()
	c, inner := newCachedEmbedder(t)

	_, err := c.EmbedSingle(ctx, "rent")
	require.NoError(t, err)

	out, err := c.Embed(ctx, []string{"rent", "divorce"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []float32{4, 1}, out[0])
	assert.Equal(t, []float32{7, 1}, out[1])
	assert.Equal(t, []string{"rent", "divorce"}, inner.texts)
}

func TestCachedEmbeddingProviderClearCache(t *testing.T) {
	ctx := context.Background()
	c, inner := newCachedEmbedder(t)

	_, err := c.Embed(ctx, []string{"a", "b"})
	require.NoError(t, err)

	n, err := c.ClearCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = c.Embed(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedEmbeddingProviderWithoutRedis(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbeddingProvider(inner, nil, nil)

	_, err := c.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, "counting", c.Name())
}
