// Package registry reads ERC-8004 identity and reputation registries.
//
// A listing pass makes one identity-count read and then up to three
// independent reads per agent id: token URI, reputation summary and wallet.
// Only the token URI is required; a failure there drops the id. The other
// two fall back to neutral defaults so an identity is never excluded for
// lack of reputation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/sync/errgroup"

	"github.com/mbd888/agentdex/internal/chain"
	"github.com/mbd888/agentdex/internal/logging"
	"github.com/mbd888/agentdex/internal/metrics"
	"github.com/mbd888/agentdex/internal/resolver"
	"github.com/mbd888/agentdex/internal/retry"
	"github.com/mbd888/agentdex/internal/traces"
)

var (
	ErrSupplyUnavailable   = errors.New("registry: identity count unavailable")
	ErrInvalidAgentID      = errors.New("registry: invalid agent id")
	ErrUnsupportedTokenURI = errors.New("registry: unsupported token URI")
	ErrEmptyResult         = errors.New("registry: empty call result")
	ErrNotMinted           = errors.New("registry: agent not minted")
)

const (
	DefaultWorkers     = 8
	DefaultMaxAgents   = 100
	DefaultCallTimeout = 10 * time.Second
	// DefaultSampleCount stands in for the identity count when it cannot be read.
	DefaultSampleCount = 3

	supplyAttempts  = 2
	supplyBaseDelay = 250 * time.Millisecond
)

// CallError reports a failed contract read.
type CallError struct {
	Method  string
	AgentID string
	Err     error
}

func (e *CallError) Error() string {
	if e.AgentID != "" {
		return fmt.Sprintf("registry: %s(%s) failed: %v", e.Method, e.AgentID, e.Err)
	}
	return fmt.Sprintf("registry: %s failed: %v", e.Method, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Caller is the slice of ethclient.Client the reader needs.
type Caller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Dialer opens a Caller for an RPC endpoint.
type Dialer func(ctx context.Context, rpcURL string) (Caller, error)

func dialEthClient(ctx context.Context, rpcURL string) (Caller, error) {
	return ethclient.DialContext(ctx, rpcURL)
}

// Summary is an agent's raw reputation summary. Available is false when the
// reputation registry could not be read; Value is then zero.
type Summary struct {
	Count     uint64
	Value     *big.Int
	Decimals  uint8
	Available bool
}

// Candidate is one identity that survived the token URI read.
type Candidate struct {
	AgentID    string
	TokenURI   string
	Wallet     *string
	Reputation Summary
}

// Listing is the outcome of one registry pass.
type Listing struct {
	Chain chain.ID
	// Supply is the on-chain identity count, or the sample count when
	// SupplyErr is set.
	Supply     uint64
	SupplyErr  error
	Candidates []Candidate
}

// Reader reads agents from the registries of every supported chain.
type Reader struct {
	rpcURL        func(chain.ID) string
	dial          Dialer
	identityABI   abi.ABI
	reputationABI abi.ABI
	workers       int
	callTimeout   time.Duration
	sampleCount   int
	logger        *slog.Logger

	mu      sync.Mutex
	clients map[chain.ID]Caller
}

// Option configures a Reader.
type Option func(*Reader)

// WithDialer replaces ethclient.DialContext.
func WithDialer(d Dialer) Option {
	return func(r *Reader) { r.dial = d }
}

// WithCaller pins the client used for one chain.
func WithCaller(id chain.ID, c Caller) Option {
	return func(r *Reader) { r.clients[id] = c }
}

// WithWorkers bounds the number of agent ids read concurrently.
func WithWorkers(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithCallTimeout bounds every contract call.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Reader) {
		if d > 0 {
			r.callTimeout = d
		}
	}
}

// WithSampleCount sets the id count iterated when the identity count is unreadable.
func WithSampleCount(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.sampleCount = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reader) { r.logger = logging.Component(l, "registry") }
}

// New creates a Reader. rpcURL maps a chain to its RPC endpoint; nil uses
// each chain's public default.
func New(rpcURL func(chain.ID) string, opts ...Option) (*Reader, error) {
	idABI, err := abi.JSON(strings.NewReader(identityABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse identity registry ABI: %w", err)
	}
	repABI, err := abi.JSON(strings.NewReader(reputationABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse reputation registry ABI: %w", err)
	}
	if rpcURL == nil {
		rpcURL = func(id chain.ID) string { return id.Spec().DefaultRPC }
	}

	r := &Reader{
		rpcURL:        rpcURL,
		dial:          dialEthClient,
		identityABI:   idABI,
		reputationABI: repABI,
		workers:       DefaultWorkers,
		callTimeout:   DefaultCallTimeout,
		sampleCount:   DefaultSampleCount,
		logger:        logging.Component(nil, "registry"),
		clients:       make(map[chain.ID]Caller),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Close releases dialed RPC clients.
func (r *Reader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		if closer, ok := c.(interface{ Close() }); ok {
			closer.Close()
		}
		delete(r.clients, id)
	}
}

func (r *Reader) client(ctx context.Context, id chain.ID) (Caller, error) {
	if !id.Valid() {
		return nil, chain.ErrUnknownChain
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[id]; ok {
		return c, nil
	}
	c, err := r.dial(ctx, r.rpcURL(id))
	if err != nil {
		return nil, fmt.Errorf("dial %s rpc: %w", id, err)
	}
	r.clients[id] = c
	return c, nil
}

// ListAgents reads up to max agents, ids 1..min(identity count, max). A
// non-positive max selects DefaultMaxAgents.
//
// If the identity count cannot be read the pass still runs over the sample
// count, and Listing.SupplyErr carries the failure. The only error returned
// directly is for an unknown chain.
func (r *Reader) ListAgents(ctx context.Context, id chain.ID, max int) (*Listing, error) {
	if !id.Valid() {
		return nil, chain.ErrUnknownChain
	}
	ctx, span := traces.StartSpan(ctx, "registry.list_agents", traces.Chain(id.String()))
	defer span.End()

	listing := &Listing{Chain: id}

	client, err := r.client(ctx, id)
	if err != nil {
		listing.Supply = uint64(r.sampleCount)
		listing.SupplyErr = fmt.Errorf("%w: %w", ErrSupplyUnavailable, err)
		r.logger.Warn("rpc unavailable", "chain", id.String(), "error", err)
		return listing, nil
	}

	supply, err := r.totalSupply(ctx, client, id)
	if err != nil {
		listing.Supply = uint64(r.sampleCount)
		listing.SupplyErr = fmt.Errorf("%w: %w", ErrSupplyUnavailable, err)
		r.logger.Warn("identity count unreadable, iterating sample count",
			"chain", id.String(), "sample_count", r.sampleCount, "error", err)
	} else {
		listing.Supply = clampUint64(supply)
	}

	if max <= 0 {
		max = DefaultMaxAgents
	}
	bound := listing.Supply
	if bound > uint64(max) {
		bound = uint64(max)
	}

	results := make([]*Candidate, bound)
	var g errgroup.Group
	g.SetLimit(r.workers)
	for i := uint64(0); i < bound; i++ {
		g.Go(func() error {
			agentID := new(big.Int).SetUint64(i + 1)
			if c, err := r.readCandidate(ctx, client, id, agentID); err == nil {
				results[i] = c
			}
			return nil
		})
	}
	_ = g.Wait()

	listing.Candidates = make([]Candidate, 0, len(results))
	for _, c := range results {
		if c != nil {
			listing.Candidates = append(listing.Candidates, *c)
		}
	}
	r.logger.Debug("registry pass complete",
		"chain", id.String(), "supply", listing.Supply, "read", bound, "candidates", len(listing.Candidates))
	return listing, nil
}

// ReadAgent reads a single identity by decimal id.
func (r *Reader) ReadAgent(ctx context.Context, id chain.ID, agentID string) (*Candidate, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(agentID), 10)
	if !ok || n.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAgentID, agentID)
	}
	ctx, span := traces.StartSpan(ctx, "registry.read_agent", traces.Chain(id.String()), traces.AgentID(n.String()))
	defer span.End()

	client, err := r.client(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.readCandidate(ctx, client, id, n)
}

// Ping reads the identity count once.
func (r *Reader) Ping(ctx context.Context, id chain.ID) error {
	client, err := r.client(ctx, id)
	if err != nil {
		return err
	}
	_, err = r.call(ctx, client, id, id.Spec().IdentityRegistry, r.identityABI, methodTotalSupply, "")
	return err
}

func (r *Reader) totalSupply(ctx context.Context, client Caller, id chain.ID) (*big.Int, error) {
	var supply *big.Int
	err := retry.Do(ctx, supplyAttempts, supplyBaseDelay, func() error {
		out, err := r.call(ctx, client, id, id.Spec().IdentityRegistry, r.identityABI, methodTotalSupply, "")
		if err != nil {
			return err
		}
		v, ok := out[0].(*big.Int)
		if !ok {
			return retry.Permanent(&CallError{Method: methodTotalSupply, Err: fmt.Errorf("unexpected type %T", out[0])})
		}
		supply = v
		return nil
	})
	return supply, err
}

// readCandidate performs the per-id reads. An error means the id is skipped.
func (r *Reader) readCandidate(ctx context.Context, client Caller, id chain.ID, agentID *big.Int) (*Candidate, error) {
	spec := id.Spec()
	idStr := agentID.String()

	out, err := r.call(ctx, client, id, spec.IdentityRegistry, r.identityABI, methodTokenURI, idStr, agentID)
	if err != nil {
		metrics.SkippedAgentsTotal.WithLabelValues("token_uri_error").Inc()
		r.logger.Debug("skipping agent: token URI unreadable", "chain", id.String(), "agent_id", idStr, "error", err)
		if isRevert(err) {
			return nil, fmt.Errorf("%w: agent %s: %w", ErrNotMinted, idStr, err)
		}
		return nil, err
	}
	uri, _ := out[0].(string)
	uri = strings.TrimSpace(uri)
	if resolver.Classify(uri) == resolver.SchemeUnsupported {
		metrics.SkippedAgentsTotal.WithLabelValues("unsupported_uri").Inc()
		r.logger.Debug("skipping agent: unsupported token URI", "chain", id.String(), "agent_id", idStr)
		return nil, fmt.Errorf("%w: agent %s", ErrUnsupportedTokenURI, idStr)
	}

	c := &Candidate{AgentID: idStr, TokenURI: uri}

	neutral := Summary{Value: new(big.Int)}
	c.Reputation, err = retry.WithDefault(ctx, 0, neutral, func(ctx context.Context) (Summary, error) {
		return r.summary(ctx, client, id, agentID)
	})
	if err != nil {
		r.logger.Debug("reputation unavailable, using neutral default", "chain", id.String(), "agent_id", idStr, "error", err)
	}

	c.Wallet, err = retry.WithDefault(ctx, 0, (*string)(nil), func(ctx context.Context) (*string, error) {
		return r.wallet(ctx, client, id, agentID)
	})
	if err != nil {
		r.logger.Debug("wallet unavailable", "chain", id.String(), "agent_id", idStr, "error", err)
	}
	return c, nil
}

func (r *Reader) summary(ctx context.Context, client Caller, id chain.ID, agentID *big.Int) (Summary, error) {
	idStr := agentID.String()
	out, err := r.call(ctx, client, id, id.Spec().ReputationRegistry, r.reputationABI, methodSummary, idStr,
		agentID, []common.Address{}, "", "")
	if err != nil {
		return Summary{}, err
	}
	count, ok1 := out[0].(uint64)
	value, ok2 := out[1].(*big.Int)
	decimals, ok3 := out[2].(uint8)
	if !ok1 || !ok2 || !ok3 || value == nil {
		return Summary{}, &CallError{Method: methodSummary, AgentID: idStr, Err: errors.New("unexpected result types")}
	}
	return Summary{Count: count, Value: value, Decimals: decimals, Available: true}, nil
}

func (r *Reader) wallet(ctx context.Context, client Caller, id chain.ID, agentID *big.Int) (*string, error) {
	out, err := r.call(ctx, client, id, id.Spec().IdentityRegistry, r.identityABI, methodWallet, agentID.String(), agentID)
	if err != nil {
		return nil, err
	}
	addr, ok := out[0].(common.Address)
	if !ok || addr == (common.Address{}) {
		return nil, nil
	}
	hex := addr.Hex()
	return &hex, nil
}

// call packs, executes and unpacks one view call under the call timeout.
func (r *Reader) call(ctx context.Context, client Caller, id chain.ID, to common.Address, contract abi.ABI, method, agentID string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, &CallError{Method: method, AgentID: agentID, Err: fmt.Errorf("pack: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err == nil && len(res) == 0 {
		err = ErrEmptyResult
	}
	var out []any
	if err == nil {
		out, err = contract.Unpack(method, res)
		if err == nil && len(out) == 0 {
			err = ErrEmptyResult
		}
	}
	metrics.RPCCallsTotal.WithLabelValues(id.String(), method, metrics.Result(err)).Inc()
	if err != nil {
		return nil, &CallError{Method: method, AgentID: agentID, Err: err}
	}
	return out, nil
}

// revertCode is the JSON-RPC error code nodes use for a reverted eth_call.
const revertCode = 3

// isRevert reports whether err is the contract rejecting the call, as
// opposed to the node or the transport failing.
func isRevert(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode() == revertCode || strings.HasPrefix(rpcErr.Error(), "execution reverted")
	}
	return false
}

func clampUint64(v *big.Int) uint64 {
	if v == nil || v.Sign() <= 0 {
		return 0
	}
	if !v.IsUint64() {
		return ^uint64(0)
	}
	return v.Uint64()
}
