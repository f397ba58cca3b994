package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lamassu-labs/sentinel/internal/core/domain"
)

// Client persists last-known-good snapshots so a restart starts from the
// previous state instead of an empty dashboard.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func snapshotKey(id domain.ProgramID) string {
	return fmt.Sprintf("sentinel:snapshot:%s", id)
}

// SaveSnapshot stores the snapshot for its program, replacing any
// previous value. Snapshots carry no TTL: stale-but-present beats empty.
func (c *Client) SaveSnapshot(ctx context.Context, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := c.rdb.Set(ctx, snapshotKey(snap.ProgramID), data, 0).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

// LoadSnapshot fetches the persisted snapshot for a program. The second
// return value is false when none is stored.
func (c *Client) LoadSnapshot(ctx context.Context, id domain.ProgramID) (domain.Snapshot, bool, error) {
	val, err := c.rdb.Get(ctx, snapshotKey(id)).Bytes()
	if err == redis.Nil {
		return domain.Snapshot{}, false, nil
	}
	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("get failed: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, true, nil
}

// Health checks if the Redis connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
