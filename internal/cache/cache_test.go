package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/tandem/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
	mu  sync.Mutex
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache[V any](ttl time.Duration) (*TTLCache[V], *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := NewTTLCache[V](ttl)
	c.now = clock.Now
	return c, clock
}

func TestTTLCache(t *testing.T) {
	t.Run("basic operations", func(t *testing.T) {
		c, _ := newTestCache[string](time.Minute)

		_, found := c.Get("missing")
		assert.False(t, found)

		c.Set("a", "alpha")
		got, found := c.Get("a")
		assert.True(t, found)
		assert.Equal(t, "alpha", got)

		c.Set("a", "again")
		got, _ = c.Get("a")
		assert.Equal(t, "again", got)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("expiration evicts on read", func(t *testing.T) {
		c, clock := newTestCache[int](time.Minute)
		c.Set("k", 7)

		clock.Advance(59 * time.Second)
		_, found := c.Get("k")
		assert.True(t, found)

		clock.Advance(time.Second)
		_, found = c.Get("k")
		assert.False(t, found)
		assert.Equal(t, 0, c.Len())
	})

	t.Run("clean expired counts removals", func(t *testing.T) {
		c, clock := newTestCache[int](time.Minute)
		c.Set("old1", 1)
		c.Set("old2", 2)
		clock.Advance(2 * time.Minute)
		c.Set("fresh", 3)

		assert.Equal(t, 2, c.CleanExpired())
		assert.Equal(t, 0, c.CleanExpired())
		assert.Equal(t, 1, c.Len())
	})

	t.Run("clear returns prior size", func(t *testing.T) {
		c, _ := newTestCache[int](time.Minute)
		c.Set("a", 1)
		c.Set("b", 2)

		assert.Equal(t, 2, c.Clear())
		assert.Equal(t, 0, c.Clear())
	})

	t.Run("zero ttl uses default", func(t *testing.T) {
		c := NewTTLCache[int](0)
		assert.Equal(t, DefaultTTL, c.ttl)
	})

	t.Run("concurrent access", func(t *testing.T) {
		c := NewTTLCache[int](time.Minute)
		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				key := string(rune('a' + n%5))
				c.Set(key, n)
				c.Get(key)
				c.CleanExpired()
			}(i)
		}
		wg.Wait()
		assert.LessOrEqual(t, c.Len(), 5)
	})
}

func TestTTLCache_Janitor(t *testing.T) {
	c := NewTTLCache[int](time.Millisecond)
	c.Set("gone", 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	swept := make(chan int, 10)
	c.StartJanitor(ctx, 5*time.Millisecond, func(removed int) {
		select {
		case swept <- removed:
		default:
		}
	})

	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, <-swept)
}

func TestResultCache(t *testing.T) {
	txn := model.Transaction{
		Date:        time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Description: "  Starbucks Coffee ",
		Amount:      decimal.RequireFromString("5.50"),
		Type:        model.TypeDebit,
	}
	sameFingerprint := txn
	sameFingerprint.Description = "starbucks coffee"
	sameFingerprint.Amount = decimal.RequireFromString("5.5")

	t.Run("duplicate results round trip within ttl", func(t *testing.T) {
		rc := NewResultCache(30*time.Minute, nil)
		clock := &fakeClock{now: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)}
		rc.store.now = clock.Now

		status := model.DuplicateStatus{DuplicateCount: 2, HighestConfidence: 0.93, HasDuplicates: true, AutoSkip: true}
		rc.CacheDuplicateResult("couple-1", txn, status)

		got, ok := rc.GetCachedDuplicateResult("couple-1", sameFingerprint)
		require.True(t, ok)
		assert.Equal(t, status, got)

		clock.Advance(30 * time.Minute)
		_, ok = rc.GetCachedDuplicateResult("couple-1", txn)
		assert.False(t, ok)
	})

	t.Run("namespaces do not collide", func(t *testing.T) {
		rc := NewResultCache(time.Minute, nil)
		suggestion := model.CategorySuggestion{CategoryKey: "dining", Confidence: 0.8}
		rc.CacheCategoryResult(txn, suggestion)

		_, ok := rc.GetCachedDuplicateResult("couple-1", txn)
		assert.False(t, ok)

		got, ok := rc.GetCachedCategoryResult(txn)
		require.True(t, ok)
		assert.Equal(t, suggestion, got)
		assert.Equal(t, 1, rc.Len())
	})

	t.Run("duplicate results are scoped by couple and direction", func(t *testing.T) {
		rc := NewResultCache(time.Minute, nil)
		status := model.DuplicateStatus{DuplicateCount: 1, HighestConfidence: 1, HasDuplicates: true, AutoSkip: true}
		rc.CacheDuplicateResult("couple-1", txn, status)

		_, ok := rc.GetCachedDuplicateResult("couple-2", txn)
		assert.False(t, ok, "another couple's history never answers")

		refund := txn
		refund.Type = model.TypeCredit
		_, ok = rc.GetCachedDuplicateResult("couple-1", refund)
		assert.False(t, ok, "a credit is not the debit it mirrors")

		got, ok := rc.GetCachedDuplicateResult("couple-1", txn)
		require.True(t, ok)
		assert.Equal(t, status, got)
	})

	t.Run("different amount misses", func(t *testing.T) {
		rc := NewResultCache(time.Minute, nil)
		rc.CacheCategoryResult(txn, model.CategorySuggestion{CategoryKey: "dining", Confidence: 0.8})

		other := txn
		other.Amount = decimal.RequireFromString("5.51")
		_, ok := rc.GetCachedCategoryResult(other)
		assert.False(t, ok)
	})

	t.Run("clean and clear", func(t *testing.T) {
		rc := NewResultCache(time.Minute, nil)
		clock := &fakeClock{now: time.Now()}
		rc.store.now = clock.Now

		rc.CacheCategoryResult(txn, model.CategorySuggestion{CategoryKey: "dining", Confidence: 0.8})
		rc.CacheDuplicateResult("couple-1", txn, model.DuplicateStatus{})
		clock.Advance(2 * time.Minute)

		assert.Equal(t, 2, rc.CleanExpired())

		rc.CacheCategoryResult(txn, model.CategorySuggestion{CategoryKey: "dining", Confidence: 0.8})
		assert.Equal(t, 1, rc.Clear())
	})
}
