package metacache

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/mbd888/agentdex/internal/metrics"
	"github.com/mbd888/agentdex/internal/resolver"
)

// MemoryStore is an in-process Store. It is the default when no database
// is configured and starts empty on every process start.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Key]Entry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[Key]Entry),
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key Key) (resolver.Metadata, bool, error) {
	if err := key.validate(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	return maps.Clone(e.Data), true, nil
}

func (m *MemoryStore) Put(_ context.Context, key Key, data resolver.Metadata) error {
	if err := key.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = Entry{Key: key, Data: maps.Clone(data), ResolvedAt: m.now()}
	metrics.MetadataCacheEntries.Set(float64(len(m.entries)))
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, agentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	if agentID == "" {
		removed = len(m.entries)
		m.entries = make(map[Key]Entry)
	} else {
		for k := range m.entries {
			if k.AgentID == agentID {
				delete(m.entries, k)
				removed++
			}
		}
	}
	metrics.MetadataCacheEntries.Set(float64(len(m.entries)))
	return removed, nil
}

func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agents := make([]string, 0, len(m.entries))
	for k := range m.entries {
		agents = append(agents, k.String())
	}
	sort.Strings(agents)
	return Stats{Size: len(agents), Agents: agents}, nil
}

// Entry returns the full cached entry, including its resolution time.
func (m *MemoryStore) Entry(key Key) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	e.Data = maps.Clone(e.Data)
	return e, ok
}
