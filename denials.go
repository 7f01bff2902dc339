package hitledger

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// denialCache remembers which clients are currently blocked so that a blocking
// episode is reported once rather than on every rejected hit. Entries expire
// with the block. The cache is best effort: an entry the cache declines to
// admit only means a repeated report.
type denialCache struct {
	cache *ristretto.Cache
}

// newDenialCache returns a cache remembering up to size clients. A size of
// zero or less disables deduplication.
func newDenialCache(size int64) (*denialCache, error) {
	if size <= 0 {
		return &denialCache{}, nil
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: size * 10,
		MaxCost:     size,
		BufferItems: 64,
		// Every entry costs 1, so MaxCost counts clients.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create denial cache: %w", err)
	}
	return &denialCache{cache: cache}, nil
}

// first records a denial for key lasting blockFor and reports whether key was
// not already known to be blocked.
func (d *denialCache) first(key string, blockFor time.Duration) bool {
	if d.cache == nil {
		return true
	}

	_, seen := d.cache.Get(key)
	d.cache.SetWithTTL(key, struct{}{}, 1, blockFor)
	return !seen
}

// forget drops key, e.g. once the client is no longer tracked.
func (d *denialCache) forget(key string) {
	if d.cache == nil {
		return
	}
	d.cache.Del(key)
}

func (d *denialCache) close() {
	if d.cache == nil {
		return
	}
	d.cache.Close()
}
