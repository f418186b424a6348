package storage

import (
	"context"
	"log/slog"

	"github.com/hal2001/kubeface/internal/naming"
)

// Client is the retrying storage facade and the only I/O surface the
// orchestrator uses. Every method wraps a single driver call (Move wraps a
// copy-then-delete pair) in the Retrier's bounded-retry policy.
//
// Move is not atomic end-to-end: a crash between the copy and the delete
// leaves both objects present. That is safe under the at-least-once model
// because puts are overwrite-idempotent, but callers should not rely on
// the source disappearing exactly once.
type Client struct {
	driver  Driver
	retrier *Retrier
	logger  *slog.Logger
}

// NewClient wraps driver with the retry policy. A nil retrier uses the
// defaults (12 retries, base 2.0, real time).
func NewClient(driver Driver, retrier *Retrier) *Client {
	if retrier == nil {
		retrier = &Retrier{}
	}
	return &Client{
		driver:  driver,
		retrier: retrier,
		logger:  slog.With("component", "storage"),
	}
}

// List returns all object keys under prefix, following pagination.
func (c *Client) List(ctx context.Context, prefix naming.Path) ([]string, error) {
	var keys []string
	err := c.retrier.Do(ctx, "storage.list", func() error {
		var listErr error
		keys, listErr = c.driver.List(ctx, prefix)
		return listErr
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Put creates or overwrites the object at path.
func (c *Client) Put(ctx context.Context, path naming.Path, data []byte, opts PutOptions) error {
	return c.retrier.Do(ctx, "storage.put", func() error {
		return c.driver.Put(ctx, path, data, opts)
	})
}

// Get reads the full object bytes at path.
func (c *Client) Get(ctx context.Context, path naming.Path) ([]byte, error) {
	var data []byte
	err := c.retrier.Do(ctx, "storage.get", func() error {
		var getErr error
		data, getErr = c.driver.Get(ctx, path)
		return getErr
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Delete removes the object at path.
func (c *Client) Delete(ctx context.Context, path naming.Path) error {
	return c.retrier.Do(ctx, "storage.delete", func() error {
		return c.driver.Delete(ctx, path)
	})
}

// Move copies src to dst server-side, then deletes src. On retry the whole
// pair is rerun from scratch; the copy is overwrite-idempotent so reruns
// are safe.
func (c *Client) Move(ctx context.Context, src, dst naming.Path) error {
	return c.retrier.Do(ctx, "storage.move", func() error {
		if err := c.driver.Copy(ctx, src, dst); err != nil {
			return err
		}
		return c.driver.Delete(ctx, src)
	})
}
