// Package metacache memoizes resolved agent metadata documents.
//
// Entries never expire. A document is written once its token URI resolves
// and is served from then on without touching the network, until it is
// cleared explicitly. Read-through is the caller's job: look up first,
// resolve on a miss, Put on success.
package metacache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mbd888/agentdex/internal/chain"
	"github.com/mbd888/agentdex/internal/resolver"
)

// ErrInvalidKey is returned for keys with an unknown chain or empty agent id.
var ErrInvalidKey = errors.New("metacache: invalid key")

// Key identifies one agent's metadata. Agent ids are only unique per chain.
type Key struct {
	Chain   chain.ID
	AgentID string
}

func (k Key) String() string {
	return k.Chain.String() + ":" + k.AgentID
}

func (k Key) validate() error {
	if !k.Chain.Valid() || strings.TrimSpace(k.AgentID) == "" {
		return fmt.Errorf("%w: %q", ErrInvalidKey, k.String())
	}
	return nil
}

// Entry is a cached document with the time it was resolved.
type Entry struct {
	Key        Key
	Data       resolver.Metadata
	ResolvedAt time.Time
}

// Stats summarizes the cache contents.
type Stats struct {
	Size   int      `json:"size"`
	Agents []string `json:"agents"`
}

// Store is the metadata cache. Implementations are safe for concurrent use.
type Store interface {
	// Get returns the cached document, or false on a miss.
	Get(ctx context.Context, key Key) (resolver.Metadata, bool, error)
	// Put stores data for key, replacing any previous document.
	Put(ctx context.Context, key Key, data resolver.Metadata) error
	// Clear removes agentID on every chain, or everything when agentID is
	// empty. It returns the number of entries removed.
	Clear(ctx context.Context, agentID string) (int, error)
	// Stats lists cached keys as "chain:agentId", sorted.
	Stats(ctx context.Context) (Stats, error)
}
