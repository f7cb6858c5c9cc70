package listing

import (
	"slices"
	"sync"
	"time"

	"github.com/mbd888/agentdex/internal/agent"
	"github.com/mbd888/agentdex/internal/chain"
	"github.com/mbd888/agentdex/internal/metrics"
)

// DefaultTTL is how long a cached listing is served without a live fetch.
const DefaultTTL = 5 * time.Minute

// Entry is one cached listing. It is replaced as a whole and never
// mutated after Put.
type Entry struct {
	Data      []agent.Record
	Timestamp time.Time
}

// Cache holds the most recent listing per chain.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[chain.ID]Entry
	now     func() time.Time
}

// NewCache returns an empty cache. A non-positive ttl selects DefaultTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[chain.ID]Entry),
		now:     time.Now,
	}
}

// TTL reports the freshness window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the entry for id if it is still fresh.
func (c *Cache) Get(id chain.ID) (Entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok || c.now().Sub(e.Timestamp) >= c.ttl {
		return Entry{}, false
	}
	return Entry{Data: slices.Clone(e.Data), Timestamp: e.Timestamp}, true
}

// Put replaces the entry for id and returns what was stored.
func (c *Cache) Put(id chain.ID, data []agent.Record) Entry {
	e := Entry{Data: slices.Clone(data), Timestamp: c.now()}
	if e.Data == nil {
		e.Data = []agent.Record{}
	}
	c.mu.Lock()
	c.entries[id] = e
	c.mu.Unlock()
	metrics.ListedAgents.WithLabelValues(id.String()).Set(float64(len(e.Data)))
	return Entry{Data: slices.Clone(e.Data), Timestamp: e.Timestamp}
}

// Invalidate drops the entry for id.
func (c *Cache) Invalidate(id chain.ID) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}
