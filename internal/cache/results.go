package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/Veraticus/tandem/internal/model"
)

const (
	duplicateNamespace = "dup:"
	categoryNamespace  = "cat:"
)

type cachedResult struct {
	timestamp time.Time
	duplicate model.DuplicateStatus
	category  model.CategorySuggestion
}

// ResultCache memoizes per-transaction duplicate and category results, keyed by
// the transaction fingerprint. Duplicate results are also scoped by couple and
// direction. A miss is never an error.
type ResultCache struct {
	store  *TTLCache[cachedResult]
	logger *slog.Logger
}

// NewResultCache creates a result cache with the given TTL.
func NewResultCache(ttl time.Duration, logger *slog.Logger) *ResultCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultCache{store: NewTTLCache[cachedResult](ttl), logger: logger}
}

// duplicateKey scopes a duplicate result to the couple whose history produced
// it. The fingerprint ignores direction, so Type is part of the key too.
func duplicateKey(coupleID string, txn model.Transaction) string {
	return duplicateNamespace + coupleID + "|" + string(txn.Type) + "|" + txn.Fingerprint()
}

// CacheDuplicateResult remembers the duplicate status computed for txn against
// coupleID's history.
func (c *ResultCache) CacheDuplicateResult(coupleID string, txn model.Transaction, status model.DuplicateStatus) {
	c.store.Set(duplicateKey(coupleID, txn), cachedResult{
		duplicate: status,
		timestamp: c.store.now(),
	})
}

// GetCachedDuplicateResult returns the cached duplicate status for txn within
// coupleID, if fresh.
func (c *ResultCache) GetCachedDuplicateResult(coupleID string, txn model.Transaction) (model.DuplicateStatus, bool) {
	r, ok := c.store.Get(duplicateKey(coupleID, txn))
	if !ok {
		return model.DuplicateStatus{}, false
	}
	return r.duplicate, true
}

// CacheCategoryResult remembers the category suggestion computed for txn.
func (c *ResultCache) CacheCategoryResult(txn model.Transaction, suggestion model.CategorySuggestion) {
	c.store.Set(categoryNamespace+txn.Fingerprint(), cachedResult{
		category:  suggestion,
		timestamp: c.store.now(),
	})
}

// GetCachedCategoryResult returns the cached category suggestion for txn, if fresh.
func (c *ResultCache) GetCachedCategoryResult(txn model.Transaction) (model.CategorySuggestion, bool) {
	r, ok := c.store.Get(categoryNamespace + txn.Fingerprint())
	if !ok {
		return model.CategorySuggestion{}, false
	}
	return r.category, true
}

// CleanExpired sweeps stale results.
func (c *ResultCache) CleanExpired() int {
	removed := c.store.CleanExpired()
	if removed > 0 {
		c.logger.Debug("Swept expired cache entries", "removed", removed)
	}
	return removed
}

// Clear drops every cached result and returns how many there were.
func (c *ResultCache) Clear() int {
	return c.store.Clear()
}

// StartJanitor sweeps stale results every interval until ctx is done.
func (c *ResultCache) StartJanitor(ctx context.Context, interval time.Duration) {
	c.store.StartJanitor(ctx, interval, func(removed int) {
		if removed > 0 {
			c.logger.Debug("Swept expired cache entries", "removed", removed)
		}
	})
}

// Len counts cached results.
func (c *ResultCache) Len() int {
	return c.store.Len()
}
