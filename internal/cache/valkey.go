package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/valkey-io/valkey-go"
)

const scanCount = 100

// ValkeyCache implements a shared cache on Valkey
type ValkeyCache struct {
	client valkey.Client
	prefix string // Namespace for every key: "taskhub:cache:"
}

// NewValkeyCache connects to Valkey and verifies the connection
func NewValkeyCache(addr string) (*ValkeyCache, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:  []string{addr},
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Valkey: %w", err)
	}

	slog.Info("Initialized Valkey cache", "address", addr)
	return NewValkeyCacheWithClient(client), nil
}

// NewValkeyCacheWithClient wraps an existing client
func NewValkeyCacheWithClient(client valkey.Client) *ValkeyCache {
	return &ValkeyCache{client: client, prefix: "taskhub:cache:"}
}

// Get returns the stored bytes
func (c *ValkeyCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	cmd := c.client.B().Get().Key(c.prefix + key).Build()
	value, err := c.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value and applies the expiry in the same round trip
func (c *ValkeyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	full := c.prefix + key
	cmds := valkey.Commands{c.client.B().Set().Key(full).Value(string(value)).Build()}
	if seconds := int64(ttl / time.Second); seconds > 0 {
		cmds = append(cmds, c.client.B().Expire().Key(full).Seconds(seconds).Build())
	}
	for _, resp := range c.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

// Delete removes the given keys
func (c *ValkeyCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	if err := c.client.Do(ctx, c.client.B().Del().Key(full...).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// DeletePrefix scans for keys under prefix and deletes them in batches
func (c *ValkeyCache) DeletePrefix(ctx context.Context, prefix string) error {
	pattern := c.prefix + prefix + "*"
	var cursor uint64
	for {
		cmd := c.client.B().Scan().Cursor(cursor).Match(pattern).Count(scanCount).Build()
		entry, err := c.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", pattern, err)
		}
		if len(entry.Elements) > 0 {
			if err := c.client.Do(ctx, c.client.B().Del().Key(entry.Elements...).Build()).Error(); err != nil {
				return fmt.Errorf("failed to delete keys: %w", err)
			}
		}
		cursor = entry.Cursor
		if cursor == 0 {
			return nil
		}
	}
}

// Close closes the Valkey connection
func (c *ValkeyCache) Close() error {
	c.client.Close()
	slog.Info("Valkey cache closed")
	return nil
}
