package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/salon-booking/pkg/logger"
)

type entry struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewFromRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), logger.Discard(), Options{RetryAfter: time.Hour})
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestClient(t *testing.T) {
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		c, mr := newTestClient(t)
		c.Set(ctx, "k", entry{ID: "a", Count: 2}, time.Minute)

		var got entry
		require.True(t, c.Get(ctx, "k", &got))
		assert.Equal(t, entry{ID: "a", Count: 2}, got)
		assert.Equal(t, time.Minute, mr.TTL("k"))
	})

	t.Run("miss", func(t *testing.T) {
		c, _ := newTestClient(t)
		var got entry
		assert.False(t, c.Get(ctx, "absent", &got))
		assert.True(t, c.Available())
	})

	t.Run("undecodable entry is dropped", func(t *testing.T) {
		c, mr := newTestClient(t)
		require.NoError(t, mr.Set("k", "not-json"))
		var got entry
		assert.False(t, c.Get(ctx, "k", &got))
		assert.False(t, mr.Exists("k"))
	})

	t.Run("delete and prefix delete", func(t *testing.T) {
		c, mr := newTestClient(t)
		c.Set(ctx, "schedule:1", 1, time.Minute)
		c.Set(ctx, "availability:staff:s1:slots:2025-03-01", 1, time.Minute)
		c.Set(ctx, "availability:staff:s1:stats:a:b", 1, time.Minute)
		c.Set(ctx, "availability:staff:s2:slots:2025-03-01", 1, time.Minute)

		c.Invalidate(ctx, ScheduleInvalidation("1", "s1"))

		assert.False(t, mr.Exists("schedule:1"))
		assert.False(t, mr.Exists("availability:staff:s1:slots:2025-03-01"))
		assert.False(t, mr.Exists("availability:staff:s1:stats:a:b"))
		assert.True(t, mr.Exists("availability:staff:s2:slots:2025-03-01"))
	})

	t.Run("status", func(t *testing.T) {
		c, _ := newTestClient(t)
		assert.Equal(t, "up", c.Status())
		assert.Equal(t, "disabled", (*Client)(nil).Status())
	})
}

func TestFailOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("nil and disabled clients", func(t *testing.T) {
		for _, c := range []*Client{nil, New(ctx, "", logger.Discard(), Options{})} {
			var got entry
			assert.False(t, c.Get(ctx, "k", &got))
			c.Set(ctx, "k", entry{}, time.Minute)
			c.Delete(ctx, "k")
			c.Invalidate(ctx, BookingInvalidation("b", "c", "s"))
			assert.False(t, c.Available())
			assert.NoError(t, c.Close())
		}
	})

	t.Run("unreachable at startup", func(t *testing.T) {
		c := New(ctx, "redis://127.0.0.1:1/0", logger.Discard(), Options{OpTimeout: 50 * time.Millisecond, RetryAfter: time.Hour})
		assert.True(t, c.Enabled())
		assert.False(t, c.Available())
		assert.Equal(t, "unavailable", c.Status())
	})

	t.Run("server dies mid-flight", func(t *testing.T) {
		c, mr := newTestClient(t)
		c.Set(ctx, "k", entry{ID: "a"}, time.Minute)
		mr.Close()

		var got entry
		assert.False(t, c.Get(ctx, "k", &got))
		assert.False(t, c.Available())

		// subsequent calls short-circuit without touching redis
		c.Set(ctx, "k", entry{ID: "b"}, time.Minute)
		c.Invalidate(ctx, PaymentInvalidation("p", "c", "s"))
	})

	t.Run("recovers after retry window", func(t *testing.T) {
		mr := miniredis.RunT(t)
		c := NewFromRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), logger.Discard(), Options{RetryAfter: time.Millisecond})
		c.markDown(errors.New("boom"))
		time.Sleep(5 * time.Millisecond)
		assert.True(t, c.Available())
		c.Set(ctx, "k", 1, time.Minute)
		assert.True(t, mr.Exists("k"))
	})
}

func TestGetOrLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("loads once then serves from cache", func(t *testing.T) {
		c, _ := newTestClient(t)
		calls := 0
		load := func(context.Context) (entry, error) {
			calls++
			return entry{ID: "x", Count: calls}, nil
		}
		v1, err := GetOrLoad(ctx, c, "k", time.Minute, load)
		require.NoError(t, err)
		v2, err := GetOrLoad(ctx, c, "k", time.Minute, load)
		require.NoError(t, err)
		assert.Equal(t, v1, v2)
		assert.Equal(t, 1, calls)
	})

	t.Run("load errors are not cached", func(t *testing.T) {
		c, mr := newTestClient(t)
		_, err := GetOrLoad(ctx, c, "k", time.Minute, func(context.Context) (entry, error) {
			return entry{}, errors.New("store down")
		})
		assert.Error(t, err)
		assert.False(t, mr.Exists("k"))
	})

	t.Run("identical result without cache", func(t *testing.T) {
		c, _ := newTestClient(t)
		load := func(context.Context) ([]entry, error) { return []entry{{ID: "a", Count: 1}}, nil }
		withCache, err := GetOrLoad(ctx, c, "k", time.Minute, load)
		require.NoError(t, err)
		without, err := GetOrLoad(ctx, nil, "k", time.Minute, load)
		require.NoError(t, err)
		assert.Equal(t, withCache, without)
	})
}

func TestBookingInvalidationCoversEveryFilter(t *testing.T) {
	inv := BookingInvalidation("BK1", "c1", "s1")
	for _, f := range BookingStatusFilters {
		assert.Contains(t, inv.Keys, SalonBookingsKey("s1", f))
	}
	assert.Contains(t, inv.Keys, SalonBookingsKey("s1", ""))
	assert.Contains(t, inv.Keys, CustomerBookingsKey("c1"))
	assert.Contains(t, inv.Keys, BookingDetailsKey("BK1"))
	assert.Contains(t, inv.Keys, CustomerKey("c1"))
}
