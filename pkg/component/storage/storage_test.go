package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	name     string
	pingErr  error
	closed   *[]string
	closeErr error
}

func (m *mockClient) Name() string                   { return m.name }
func (m *mockClient) Ping(ctx context.Context) error { return m.pingErr }
func (m *mockClient) Close() error {
	if m.closed != nil {
		*m.closed = append(*m.closed, m.name)
	}
	return m.closeErr
}

func TestManagerRegister(t *testing.T) {
	mgr := NewManager()
	require.NoError(t, mgr.Register("redis", &mockClient{name: "redis"}))

	err := mgr.Register("redis", &mockClient{name: "redis"})
	assert.ErrorIs(t, err, ErrClientAlreadyExists)
	assert.ErrorIs(t, mgr.Register("", &mockClient{}), ErrInvalidClient)
	assert.ErrorIs(t, mgr.Register("nil", nil), ErrInvalidClient)

	_, err = mgr.Get("mongodb")
	assert.ErrorIs(t, err, ErrClientNotFound)

	c, err := mgr.Get("redis")
	require.NoError(t, err)
	assert.Equal(t, "redis", c.Name())
}

func TestManagerHealthCheckAll(t *testing.T) {
	mgr := NewManager()
	require.NoError(t, mgr.Register("redis", &mockClient{name: "redis"}))
	require.NoError(t, mgr.Register("mongodb", &mockClient{name: "mongodb", pingErr: errors.New("no reachable servers")}))

	statuses := mgr.HealthCheckAll(context.Background())
	require.Len(t, statuses, 2)
	assert.True(t, statuses["redis"].Healthy)
	assert.False(t, statuses["mongodb"].Healthy)
	assert.Equal(t, "no reachable servers", statuses["mongodb"].Error)
	assert.False(t, mgr.AllHealthy(context.Background()))
}

func TestManagerCloseAllReverseOrder(t *testing.T) {
	var closed []string
	mgr := NewManager()
	require.NoError(t, mgr.Register("redis", &mockClient{name: "redis", closed: &closed}))
	require.NoError(t, mgr.Register("milvus", &mockClient{name: "milvus", closed: &closed, closeErr: errors.New("boom")}))

	err := mgr.CloseAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "milvus")
	assert.Equal(t, []string{"milvus", "redis"}, closed)
	assert.Empty(t, mgr.List())
}

func TestPingClientInHealthCheck(t *testing.T) {
	down := errors.New("connection refused")
	mgr := NewManager()
	require.NoError(t, mgr.Register("llm.embedding", NewPingClient("llm.embedding", func(context.Context) error {
		return down
	})))

	statuses := mgr.HealthCheckAll(context.Background())
	assert.False(t, statuses["llm.embedding"].Healthy)
	assert.Equal(t, "connection refused", statuses["llm.embedding"].Error)
	assert.NoError(t, mgr.CloseAll())
}
