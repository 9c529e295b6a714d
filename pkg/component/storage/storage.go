// Package storage defines the contract shared by backing-store clients
// (Redis, MongoDB, Milvus) and a registry used for readiness checks and
// ordered shutdown.
package storage

import (
	"context"
	"errors"
	"time"
)

// Client is implemented by every backing-store client.
type Client interface {
	// Name returns the storage type identifier, e.g. "redis".
	Name() string
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close releases the underlying connections.
	Close() error
}

// HealthStatus is the result of a single health probe.
type HealthStatus struct {
	Name    string        `json:"name"`
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

var (
	// ErrClientNotFound 客户端未注册
	ErrClientNotFound = errors.New("storage client not found")
	// ErrClientAlreadyExists 客户端名称重复
	ErrClientAlreadyExists = errors.New("storage client already exists")
	// ErrInvalidClient 名称为空或客户端为 nil
	ErrInvalidClient = errors.New("invalid storage client")
)
