// Package cache is the best-effort cache in front of the durable store.
//
// Every operation is fail-open: when Redis is not configured, unreachable at
// startup, or failing at call time, reads report a miss and writes/deletes are
// dropped. Errors never reach the caller; they are logged and the client backs
// off for RetryAfter before talking to Redis again.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Options struct {
	// OpTimeout bounds every Redis round trip.
	OpTimeout time.Duration
	// RetryAfter is how long the client stays in the unavailable state after a failure.
	RetryAfter time.Duration
}

func (o Options) withDefaults() Options {
	if o.OpTimeout <= 0 {
		o.OpTimeout = 250 * time.Millisecond
	}
	if o.RetryAfter <= 0 {
		o.RetryAfter = 10 * time.Second
	}
	return o
}

// Client is the explicit cache handle. A nil *Client behaves as a disabled cache.
type Client struct {
	rdb  *redis.Client
	log  *slog.Logger
	opts Options

	mu        sync.Mutex
	downUntil time.Time
	lastErr   error
}

// New parses url and pings Redis. An empty url yields a disabled client; a
// failed ping yields a client in the unavailable state. Neither is an error.
func New(ctx context.Context, url string, log *slog.Logger, opts Options) *Client {
	if url == "" {
		log.Info("[cache] REDIS_URL not set, cache disabled")
		return &Client{log: log, opts: opts.withDefaults()}
	}
	ro, err := redis.ParseURL(url)
	if err != nil {
		log.Warn("[cache] invalid REDIS_URL, cache disabled", "err", err)
		return &Client{log: log, opts: opts.withDefaults()}
	}
	c := NewFromRedis(redis.NewClient(ro), log, opts)
	pctx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout*4)
	defer cancel()
	if err := c.rdb.Ping(pctx).Err(); err != nil {
		c.markDown(err)
	} else {
		log.Info("[cache] connected", "addr", ro.Addr)
	}
	return c
}

func NewFromRedis(rdb *redis.Client, log *slog.Logger, opts Options) *Client {
	return &Client{rdb: rdb, log: log, opts: opts.withDefaults()}
}

func (c *Client) Enabled() bool { return c != nil && c.rdb != nil }

// Available reports whether the next operation will reach Redis.
func (c *Client) Available() bool {
	if !c.Enabled() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().After(c.downUntil)
}

// Status is exposed on the health endpoint.
func (c *Client) Status() string {
	switch {
	case !c.Enabled():
		return "disabled"
	case c.Available():
		return "up"
	default:
		return "unavailable"
	}
}

func (c *Client) markDown(err error) {
	c.mu.Lock()
	wasUp := time.Now().After(c.downUntil)
	c.downUntil = time.Now().Add(c.opts.RetryAfter)
	c.lastErr = err
	c.mu.Unlock()
	if wasUp {
		c.log.Warn("[cache] unavailable, falling back to store", "err", err, "retry_after", c.opts.RetryAfter)
	}
}

func (c *Client) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.opts.OpTimeout)
}

// Get decodes the cached JSON value into dst and reports a hit.
func (c *Client) Get(ctx context.Context, key string, dst any) bool {
	if !c.Available() {
		return false
	}
	octx, cancel := c.opCtx(ctx)
	defer cancel()
	b, err := c.rdb.Get(octx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.markDown(err)
		return false
	}
	if err := json.Unmarshal(b, dst); err != nil {
		c.log.Warn("[cache] dropping undecodable entry", "key", key, "err", err)
		c.Delete(ctx, key)
		return false
	}
	return true
}

// Set stores v as JSON. Failures are logged and dropped.
func (c *Client) Set(ctx context.Context, key string, v any, ttl time.Duration) {
	if !c.Available() {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("[cache] encode failed", "key", key, "err", err)
		return
	}
	octx, cancel := c.opCtx(ctx)
	defer cancel()
	if err := c.rdb.Set(octx, key, b, ttl).Err(); err != nil {
		c.markDown(err)
	}
}

func (c *Client) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 || !c.Available() {
		return
	}
	octx, cancel := c.opCtx(ctx)
	defer cancel()
	if err := c.rdb.Del(octx, keys...).Err(); err != nil {
		c.markDown(err)
	}
}

// DeletePrefix removes every key starting with one of the prefixes.
func (c *Client) DeletePrefix(ctx context.Context, prefixes ...string) {
	for _, p := range prefixes {
		if !c.Available() {
			return
		}
		octx, cancel := c.opCtx(ctx)
		var batch []string
		iter := c.rdb.Scan(octx, 0, p+"*", 200).Iterator()
		for iter.Next(octx) {
			batch = append(batch, iter.Val())
		}
		err := iter.Err()
		cancel()
		if err != nil {
			c.markDown(err)
			return
		}
		c.Delete(ctx, batch...)
	}
}

// Invalidate applies a mutation's fan-out.
func (c *Client) Invalidate(ctx context.Context, inv Invalidation) {
	c.Delete(ctx, inv.Keys...)
	c.DeletePrefix(ctx, inv.Prefixes...)
}

func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Close()
}

// GetOrLoad is the cache-aside read: hit returns the cached value, miss calls
// load against the store and populates the cache from its result.
func GetOrLoad[T any](ctx context.Context, c *Client, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var v T
	if c.Get(ctx, key, &v) {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	c.Set(ctx, key, v, ttl)
	return v, nil
}
