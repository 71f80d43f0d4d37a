// Package cooldown enforces a minimum interval between repeated actions on the
// same key, e.g. re-sending a verification code to one address.
package cooldown

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
)

// Cooldown grants at most one Acquire per key per window.
type Cooldown interface {
	// Acquire returns true when the caller may proceed, starting a new window.
	Acquire(ctx context.Context, key string, window time.Duration) (bool, error)
	// Release ends the window early so the next Acquire succeeds.
	Release(ctx context.Context, key string) error
}

// Redis keeps one key per window with SET NX PX.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: "cooldown:"}
}

func (r *Redis) Acquire(ctx context.Context, key string, window time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.prefix+key, "1", window).Result()
}

func (r *Redis) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

// Memory is a single-process Cooldown.
type Memory struct {
	clock clock.Clocker

	mu    sync.Mutex
	until map[string]time.Time
}

func NewMemory(clk clock.Clocker) *Memory {
	return &Memory{clock: clk, until: make(map[string]time.Time)}
}

func (m *Memory) Acquire(_ context.Context, key string, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if until, ok := m.until[key]; ok && now.Before(until) {
		return false, nil
	}

	m.until[key] = now.Add(window)
	for k, until := range m.until {
		if !now.Before(until) && k != key {
			delete(m.until, k)
		}
	}

	return true, nil
}

func (m *Memory) Release(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.until, key)
	m.mu.Unlock()
	return nil
}
