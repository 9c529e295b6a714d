package storage

import "context"

// pingClient exposes an external dependency that only supports a liveness
// check, such as a local model server, as a Client.
type pingClient struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingClient returns a Client whose Ping calls ping. Close is a no-op, the
// owner of the dependency releases it.
func NewPingClient(name string, ping func(ctx context.Context) error) Client {
	return &pingClient{name: name, ping: ping}
}

func (c *pingClient) Name() string { return c.name }

func (c *pingClient) Ping(ctx context.Context) error { return c.ping(ctx) }

func (c *pingClient) Close() error { return nil }
