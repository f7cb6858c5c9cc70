package listing

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbd888/agentdex/internal/chain"
	"github.com/mbd888/agentdex/internal/registry"
	"github.com/mbd888/agentdex/internal/resolver"
)

var errUpstream = errors.New("upstream down")

type fakeRegistry struct {
	mu      sync.Mutex
	listing registry.Listing
	listErr error
	panics  bool
	delay   time.Duration
	agents  map[string]registry.Candidate
	readErr error

	listCalls atomic.Int32
	readCalls atomic.Int32
}

func newFakeRegistry(candidates ...registry.Candidate) *fakeRegistry {
	f := &fakeRegistry{agents: make(map[string]registry.Candidate)}
	f.setCandidates(candidates...)
	return f
}

func (f *fakeRegistry) setCandidates(candidates ...registry.Candidate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listing = registry.Listing{Supply: uint64(len(candidates)), Candidates: candidates}
	for _, c := range candidates {
		f.agents[c.AgentID] = c
	}
}

func (f *fakeRegistry) ListAgents(ctx context.Context, id chain.ID, max int) (*registry.Listing, error) {
	f.listCalls.Add(1)
	if f.delay > 0 {
		// Like the real reader, a cancelled identity-count read surfaces
		// as an unreadable supply.
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return &registry.Listing{
				Chain:     id,
				SupplyErr: fmt.Errorf("%w: %w", registry.ErrSupplyUnavailable, ctx.Err()),
			}, nil
		}
	}
	if f.panics {
		panic("index out of range")
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.listing
	l.Chain = id
	l.Candidates = append([]registry.Candidate(nil), f.listing.Candidates...)
	return &l, nil
}

func (f *fakeRegistry) ReadAgent(ctx context.Context, id chain.ID, agentID string) (*registry.Candidate, error) {
	f.readCalls.Add(1)
	if f.readErr != nil {
		return nil, f.readErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: agent %s", registry.ErrNotMinted, agentID)
	}
	return &c, nil
}

type fakeResolver struct {
	mu    sync.Mutex
	docs  map[string]resolver.Metadata
	errs  map[string]error
	calls atomic.Int32
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{docs: make(map[string]resolver.Metadata), errs: make(map[string]error)}
}

func (f *fakeResolver) Resolve(ctx context.Context, uri string) (resolver.Metadata, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[uri]; err != nil {
		return nil, err
	}
	return f.docs[uri], nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Refresh
}

func (n *recordingNotifier) ListingRefreshed(r Refresh) {
	n.mu.Lock()
	n.events = append(n.events, r)
	n.mu.Unlock()
}

func (n *recordingNotifier) Events() []Refresh {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Refresh(nil), n.events...)
}

func uriFor(id string) string { return "https://meta.example/agents/" + id + ".json" }

func candidate(id string, score int64, feedback uint64) registry.Candidate {
	return registry.Candidate{
		AgentID:  id,
		TokenURI: uriFor(id),
		Reputation: registry.Summary{
			Available: true,
			Count:     feedback,
			Value:     big.NewInt(score),
		},
	}
}

func unreadable(id string) registry.Candidate {
	return registry.Candidate{
		AgentID:    id,
		TokenURI:   uriFor(id),
		Reputation: registry.Summary{Value: new(big.Int)},
	}
}
