package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbd888/agentdex/internal/agent"
	"github.com/mbd888/agentdex/internal/chain"
	"github.com/mbd888/agentdex/internal/logging"
	"github.com/mbd888/agentdex/internal/metacache"
	"github.com/mbd888/agentdex/internal/metrics"
	"github.com/mbd888/agentdex/internal/pagination"
	"github.com/mbd888/agentdex/internal/registry"
	"github.com/mbd888/agentdex/internal/reputation"
	"github.com/mbd888/agentdex/internal/resolver"
	"github.com/mbd888/agentdex/internal/retry"
	"github.com/mbd888/agentdex/internal/syncutil"
	"github.com/mbd888/agentdex/internal/traces"
)

// Registry is the part of registry.Reader the controller uses.
type Registry interface {
	ListAgents(ctx context.Context, id chain.ID, max int) (*registry.Listing, error)
	ReadAgent(ctx context.Context, id chain.ID, agentID string) (*registry.Candidate, error)
}

// Resolver fetches a metadata document for a token URI.
type Resolver interface {
	Resolve(ctx context.Context, uri string) (resolver.Metadata, error)
}

// Request selects a listing.
type Request struct {
	Chain        chain.ID
	ForceRefresh bool
}

// Controller answers listing requests for every chain.
type Controller struct {
	registry  Registry
	resolver  Resolver
	metadata  metacache.Store
	cache     *Cache
	passes    syncutil.KeyedMutex[chain.ID]
	notifier  Notifier
	logger    *slog.Logger
	maxAgents int
	lowSupply int
	workers   int
	now       func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithMaxAgents caps how many identities a live fetch reads.
func WithMaxAgents(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxAgents = n
		}
	}
}

// WithLowSupplyThreshold sets the identity count below which the sample
// agents are served. Zero disables the check.
func WithLowSupplyThreshold(n int) Option {
	return func(c *Controller) {
		if n >= 0 {
			c.lowSupply = n
		}
	}
}

// WithWorkers bounds concurrent metadata resolutions within one pass.
func WithWorkers(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithNotifier registers n for refresh notifications.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController wires the pipeline. store and cache are owned by the
// caller, so tests can start from fresh instances.
func NewController(reg Registry, res Resolver, store metacache.Store, cache *Cache, opts ...Option) *Controller {
	c := &Controller{
		registry:  reg,
		resolver:  res,
		metadata:  store,
		cache:     cache,
		maxAgents: registry.DefaultMaxAgents,
		lowSupply: DefaultLowSupplyThreshold,
		workers:   registry.DefaultWorkers,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.Component(c.logger, "listing")
	return c
}

// Cache returns the listing cache.
func (c *Controller) Cache() *Cache { return c.cache }

// List answers a listing request. The only error is for an unknown chain;
// upstream failures are reported through Result.Source and Result.Error.
func (c *Controller) List(ctx context.Context, req Request) (res Result, err error) {
	if !req.Chain.Valid() {
		return Result{}, chain.ErrUnknownChain
	}
	slug := req.Chain.String()
	ctx, span := traces.StartSpan(ctx, "listing.list", traces.Chain(slug))
	defer func() {
		span.SetAttributes(traces.Source(string(res.Source)))
		span.End()
		metrics.ListingResponsesTotal.WithLabelValues(slug, string(res.Source)).Inc()
	}()

	if !req.ForceRefresh {
		if e, ok := c.cache.Get(req.Chain); ok {
			return newResult(e.Data, SourceCache, ""), nil
		}
	}

	// One pass per chain at a time; requests that queued behind it reuse
	// its cached outcome.
	unlock, err := c.passes.LockContext(ctx, req.Chain)
	if err != nil {
		return c.fallback(req.Chain, err), nil
	}
	defer unlock()

	if !req.ForceRefresh {
		if e, ok := c.cache.Get(req.Chain); ok {
			return newResult(e.Data, SourceCache, ""), nil
		}
	}
	return c.refresh(ctx, req.Chain), nil
}

// refresh runs a live fetch and stores its outcome. It recovers from any
// panic in the pass and degrades to the fallback result.
//
// The pass is detached from the caller's cancellation: only the per-call
// timeouts bound it, so a client that goes away cannot leave a truncated
// listing in the cache for everyone else.
func (c *Controller) refresh(ctx context.Context, id chain.ID) (res Result) {
	ctx = context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("listing pass panicked", "chain", id.String(), "panic", r, "stack", string(debug.Stack()))
			res = c.fallback(id, fmt.Errorf("listing pass panicked: %v", r))
		}
	}()

	start := c.now()
	records, reason, err := c.liveFetch(ctx, id)
	metrics.LiveFetchDuration.WithLabelValues(id.String()).Observe(c.now().Sub(start).Seconds())
	if err != nil {
		return c.fallback(id, err)
	}

	src := SourceOnChain
	if reason != "" {
		c.logger.Warn("serving sample agents", "chain", id.String(), "reason", reason)
		records, src = SortedSeeds(id), SourceSample
	} else {
		agent.SortByTrust(records)
	}

	entry := c.cache.Put(id, records)
	c.notify(id, src, len(entry.Data))
	return newResult(entry.Data, src, "")
}

// fallback is the outcome of a failed pass. It is not cached.
func (c *Controller) fallback(id chain.ID, err error) Result {
	c.logger.Error("listing pass failed, serving fallback agents", "chain", id.String(), "error", err)
	return newResult(SortedSeeds(id), SourceFallback, err.Error())
}

// liveFetch reads and assembles the chain's agents. A non-empty reason
// means the sample agents should be served instead.
func (c *Controller) liveFetch(ctx context.Context, id chain.ID) (records []agent.Record, reason string, err error) {
	listing, err := c.registry.ListAgents(ctx, id, c.maxAgents)
	if err != nil {
		return nil, "", fmt.Errorf("registry: %w", err)
	}
	if listing == nil {
		return nil, "", errors.New("registry returned no listing")
	}
	if listing.SupplyErr != nil {
		return nil, "identity count unreadable", nil
	}
	if listing.Supply < uint64(c.lowSupply) {
		return nil, fmt.Sprintf("identity count %d below threshold %d", listing.Supply, c.lowSupply), nil
	}

	records, err = c.assembleAll(ctx, id, listing.Candidates)
	if err != nil {
		return nil, "", err
	}
	if len(records) == 0 {
		return nil, "no agents assembled", nil
	}
	return records, "", nil
}

// assembleAll resolves metadata for every candidate with bounded
// concurrency and returns the records in candidate order.
func (c *Controller) assembleAll(ctx context.Context, id chain.ID, candidates []registry.Candidate) ([]agent.Record, error) {
	records := make([]agent.Record, len(candidates))
	var g errgroup.Group
	g.SetLimit(c.workers)
	for i := range candidates {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("assembling agent %s: panic: %v", candidates[i].AgentID, r)
				}
			}()
			records[i] = c.assemble(ctx, id, candidates[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Controller) assemble(ctx context.Context, id chain.ID, cand registry.Candidate) agent.Record {
	doc := c.resolveMetadata(ctx, id, cand)
	rep := reputation.Reading{
		Available: cand.Reputation.Available,
		Count:     cand.Reputation.Count,
		Value:     cand.Reputation.Value,
		Decimals:  cand.Reputation.Decimals,
	}
	return agent.Assemble(agent.Identity{AgentID: cand.AgentID, Wallet: cand.Wallet}, rep, doc, id)
}

// resolveMetadata reads through the metadata cache. A nil document means
// the record is built from defaults.
func (c *Controller) resolveMetadata(ctx context.Context, id chain.ID, cand registry.Candidate) resolver.Metadata {
	key := metacache.Key{Chain: id, AgentID: cand.AgentID}
	doc, err := retry.WithDefault(ctx, 0, resolver.Metadata(nil), func(ctx context.Context) (resolver.Metadata, error) {
		doc, ok, err := c.metadata.Get(ctx, key)
		switch {
		case err != nil:
			c.logger.Warn("metadata cache read failed", "key", key.String(), "error", err)
		case ok:
			metrics.MetadataCacheLookupsTotal.WithLabelValues("hit").Inc()
			return doc, nil
		}
		metrics.MetadataCacheLookupsTotal.WithLabelValues("miss").Inc()

		doc, err = c.resolver.Resolve(ctx, cand.TokenURI)
		if err != nil || doc == nil {
			return nil, err
		}
		if err := c.metadata.Put(ctx, key, doc); err != nil {
			c.logger.Warn("metadata cache write failed", "key", key.String(), "error", err)
		}
		return doc, nil
	})
	if err != nil {
		c.logger.Warn("metadata unresolved, using defaults", "key", key.String(), "error", err)
	}
	return doc
}

func (c *Controller) notify(id chain.ID, src Source, n int) {
	if c.notifier == nil {
		return
	}
	c.notifier.ListingRefreshed(Refresh{Chain: id.String(), Source: src, Count: n, At: c.now().UTC()})
}

// Get returns one agent. The fresh cached listing is consulted first, then
// the registry. Sample agents stay reachable while the registry is down.
func (c *Controller) Get(ctx context.Context, id chain.ID, agentID string) (rec agent.Record, err error) {
	if !id.Valid() {
		return agent.Record{}, chain.ErrUnknownChain
	}
	agentID = strings.TrimSpace(agentID)
	ctx, span := traces.StartSpan(ctx, "listing.get", traces.Chain(id.String()), traces.AgentID(agentID))
	defer func() { traces.End(span, err) }()

	if e, ok := c.cache.Get(id); ok {
		for _, r := range e.Data {
			if r.AgentID == agentID {
				return r, nil
			}
		}
	}

	cand, err := c.registry.ReadAgent(ctx, id, agentID)
	if err != nil {
		if seed, ok := seedByID(id, agentID); ok {
			return seed, nil
		}
		if notFound(err) {
			return agent.Record{}, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
		}
		return agent.Record{}, err
	}
	return c.assemble(ctx, id, *cand), nil
}

// notFound reports whether a registry error means the id has no usable
// identity, as opposed to the registry being unreachable.
func notFound(err error) bool {
	return errors.Is(err, registry.ErrInvalidAgentID) ||
		errors.Is(err, registry.ErrUnsupportedTokenURI) ||
		errors.Is(err, registry.ErrNotMinted)
}

// Search filters and sorts the chain's listing.
func (c *Controller) Search(ctx context.Context, q Query) (SearchResult, error) {
	res, err := c.List(ctx, Request{Chain: q.Chain, ForceRefresh: q.ForceRefresh})
	if err != nil {
		return SearchResult{}, err
	}
	agents := Filter(res.Agents, q)
	agent.Sort(agents, q.Sort)
	page, next, more := pagination.Page(agents, q.After, q.Limit, func(r agent.Record) string { return r.AgentID })
	return SearchResult{
		Query:      q.Text,
		Count:      len(page),
		Total:      len(agents),
		Agents:     page,
		Source:     res.Source,
		Error:      res.Error,
		NextCursor: next,
		HasMore:    more,
	}, nil
}

// Compare looks up to MaxCompare agents side by side.
func (c *Controller) Compare(ctx context.Context, id chain.ID, agentIDs []string) (CompareResult, error) {
	if len(agentIDs) == 0 {
		return CompareResult{}, ErrNoAgentIDs
	}
	if len(agentIDs) > MaxCompare {
		return CompareResult{}, fmt.Errorf("%w: %d given, at most %d", ErrTooManyAgents, len(agentIDs), MaxCompare)
	}
	out := CompareResult{Agents: []agent.Record{}, Missing: []string{}}
	for _, agentID := range agentIDs {
		rec, err := c.Get(ctx, id, agentID)
		if err != nil {
			if errors.Is(err, chain.ErrUnknownChain) {
				return CompareResult{}, err
			}
			if !errors.Is(err, ErrAgentNotFound) {
				c.logger.Warn("compare lookup failed", "chain", id.String(), "agent_id", agentID, "error", err)
			}
			out.Missing = append(out.Missing, agentID)
			continue
		}
		out.Agents = append(out.Agents, rec)
	}
	return out, nil
}
