package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrNoStore is returned by Ping when the client has no backing store
var ErrNoStore = errors.New("cache: no backing store configured")

// Store is the backing key/value cache (Redis in production). Get reports
// a clean miss via ok=false with a nil error; any non-nil error is a
// store failure.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// Client is a resilient cache client. Every operation except Ping
// degrades to a miss/no-op on failure: errors are bounded by a per-call
// timeout, counted against the circuit breaker, logged and swallowed.
// The cache is a performance layer only and must never fail a request.
type Client struct {
	store   Store
	breaker *Breaker
	timeout time.Duration
}

// ClientConfig tunes the resilient cache client
type ClientConfig struct {
	// CallTimeout bounds each store call; exceeding it counts as a
	// breaker failure
	CallTimeout time.Duration
	Breaker     BreakerConfig
}

// NewClient wraps a store. A nil store yields a client that is a
// permanent miss/no-op, so the service keeps running when the cache
// tier could not even be dialed at startup.
func NewClient(store Store, cfg ClientConfig) *Client {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 3 * time.Second
	}
	return &Client{
		store:   store,
		breaker: NewBreaker(cfg.Breaker),
		timeout: cfg.CallTimeout,
	}
}

// BreakerState exposes the breaker state for metrics
func (c *Client) BreakerState() State {
	return c.breaker.State()
}

// Get returns the cached value, or ok=false on miss, open circuit, or
// any store failure
func (c *Client) Get(ctx context.Context, key string) (string, bool) {
	if c.store == nil || !c.breaker.Allow() {
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	value, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.breaker.Record(false)
		slog.Warn("cache get failed", "key", key, "error", err)
		return "", false
	}
	c.breaker.Record(true)
	return value, ok
}

// Set stores a value best-effort; failures are logged and swallowed
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if c.store == nil || !c.breaker.Allow() {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.store.Set(ctx, key, value, ttl); err != nil {
		c.breaker.Record(false)
		slog.Warn("cache set failed", "key", key, "error", err)
		return
	}
	c.breaker.Record(true)
}

// Delete removes a key best-effort; failures are logged and swallowed
func (c *Client) Delete(ctx context.Context, key string) {
	if c.store == nil || !c.breaker.Allow() {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.store.Del(ctx, key); err != nil {
		c.breaker.Record(false)
		slog.Warn("cache delete failed", "key", key, "error", err)
		return
	}
	c.breaker.Record(true)
}

// Ping checks the backing store directly. This is the one operation that
// surfaces failure; it is used by the health check and bypasses the
// breaker so a recovered cache is reported as up even mid-cooldown.
func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return ErrNoStore
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.store.Ping(ctx)
}
