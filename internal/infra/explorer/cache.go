package explorer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lamassu-labs/sentinel/internal/core/domain"
)

// sampleCache keeps successful samples for a short TTL to avoid
// redundant round-trips within one poll window. In-memory only,
// process-lifetime scoped.
type sampleCache struct {
	ttl   time.Duration
	clock clockwork.Clock

	mu      sync.RWMutex
	entries map[domain.ProgramID]cacheEntry
}

type cacheEntry struct {
	sample   domain.RawSample
	cachedAt time.Time
}

func newSampleCache(ttl time.Duration, clock clockwork.Clock) *sampleCache {
	return &sampleCache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[domain.ProgramID]cacheEntry),
	}
}

func (c *sampleCache) get(id domain.ProgramID) (domain.RawSample, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[id]
	if !ok || c.clock.Now().Sub(entry.cachedAt) >= c.ttl {
		return domain.RawSample{}, false
	}
	return entry.sample, true
}

func (c *sampleCache) put(sample domain.RawSample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[sample.ProgramID] = cacheEntry{sample: sample, cachedAt: c.clock.Now()}
}

// invalidate clears the cache, forcing the next fetch to hit the network.
func (c *sampleCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[domain.ProgramID]cacheEntry)
}
