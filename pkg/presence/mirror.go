// Package presence mirrors the relay's online set into Redis so other
// processes can read it. The relay itself never reads the mirror back.
package presence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const DefaultKey = "relay:online"

type Mirror interface {
	Online(ctx context.Context, identity string) error
	Offline(ctx context.Context, identity string) error
	Reset(ctx context.Context) error
	Close() error
}

// Reader lists the mirrored online set.
type Reader interface {
	Members(ctx context.Context) ([]string, error)
}

type RedisMirror struct {
	rdb *redis.Client
	key string
}

func NewRedisMirror(addr, key string) *RedisMirror {
	if key == "" {
		key = DefaultKey
	}
	return &RedisMirror{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
		key: key,
	}
}

// Ping checks the Redis connection.
func (m *RedisMirror) Ping(ctx context.Context) error {
	return m.rdb.Ping(ctx).Err()
}

func (m *RedisMirror) Online(ctx context.Context, identity string) error {
	if err := m.rdb.SAdd(ctx, m.key, identity).Err(); err != nil {
		return fmt.Errorf("set presence for %s: %w", identity, err)
	}
	return nil
}

func (m *RedisMirror) Offline(ctx context.Context, identity string) error {
	if err := m.rdb.SRem(ctx, m.key, identity).Err(); err != nil {
		return fmt.Errorf("delete presence for %s: %w", identity, err)
	}
	return nil
}

// Reset clears the set. The relay starts with nobody online.
func (m *RedisMirror) Reset(ctx context.Context) error {
	return m.rdb.Del(ctx, m.key).Err()
}

func (m *RedisMirror) Members(ctx context.Context) ([]string, error) {
	return m.rdb.SMembers(ctx, m.key).Result()
}

func (m *RedisMirror) Close() error {
	return m.rdb.Close()
}

// Noop is used when no Redis address is configured.
type Noop struct{}

func (Noop) Online(context.Context, string) error  { return nil }
func (Noop) Offline(context.Context, string) error { return nil }
func (Noop) Reset(context.Context) error           { return nil }
func (Noop) Close() error                          { return nil }
