// Package circuitbreaker keeps a small per-gateway circuit so a metadata
// gateway that keeps timing out is skipped instead of costing every agent
// in a listing pass its full timeout.
package circuitbreaker

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // requests flow through
	StateOpen                  // gateway is skipped
	StateHalfOpen              // one probe allowed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "agentdex",
	Subsystem: "gateway_breaker",
	Name:      "state_transitions_total",
	Help:      "Gateway circuit transitions by gateway, from-state, and to-state.",
}, []string{"gateway", "from_state", "to_state"})

func init() {
	prometheus.MustRegister(transitions)
}

const (
	DefaultThreshold = 5
	DefaultCooldown  = 30 * time.Second
)

type entry struct {
	state       State
	failures    int
	lastFailure time.Time
}

// Breaker tracks consecutive failures per gateway and opens the circuit
// once they reach the threshold. After the cooldown one probe is let
// through; its outcome closes or reopens the circuit.
type Breaker struct {
	mu           sync.Mutex
	entries      map[string]*entry
	threshold    int
	cooldown     time.Duration
	now          func() time.Time
	onTransition func(gateway string, from, to State)
}

// New creates a breaker. Non-positive arguments select the defaults.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Breaker{
		entries:   make(map[string]*entry),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// OnTransition sets a callback invoked asynchronously on state changes.
func (b *Breaker) OnTransition(fn func(gateway string, from, to State)) {
	b.mu.Lock()
	b.onTransition = fn
	b.mu.Unlock()
}

// Allow reports whether a request to gateway may be attempted.
func (b *Breaker) Allow(gateway string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[gateway]
	if !ok {
		return true
	}

	switch e.state {
	case StateOpen:
		if b.now().Sub(e.lastFailure) >= b.cooldown {
			b.transition(e, gateway, StateHalfOpen)
			return true
		}
		return false
	case StateHalfOpen:
		return false
	default:
		return true
	}
}

// Record feeds the outcome of an attempt back into the circuit.
func (b *Breaker) Record(gateway string, err error) {
	if err != nil {
		b.RecordFailure(gateway)
		return
	}
	b.RecordSuccess(gateway)
}

// RecordSuccess resets the failure count and closes a half-open circuit.
func (b *Breaker) RecordSuccess(gateway string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[gateway]
	if !ok {
		return
	}
	if e.state == StateHalfOpen {
		b.transition(e, gateway, StateClosed)
	}
	e.failures = 0
}

// RecordFailure counts a failure; a failed probe reopens the circuit.
func (b *Breaker) RecordFailure(gateway string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[gateway]
	if !ok {
		e = &entry{state: StateClosed}
		b.entries[gateway] = e
	}

	e.failures++
	e.lastFailure = b.now()

	switch {
	case e.state == StateHalfOpen:
		b.transition(e, gateway, StateOpen)
	case e.state == StateClosed && e.failures >= b.threshold:
		b.transition(e, gateway, StateOpen)
	}
}

// State returns the current state. Unknown gateways are closed.
func (b *Breaker) State(gateway string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.entries[gateway]; ok {
		return e.state
	}
	return StateClosed
}

// GatewayState is one row of a Snapshot.
type GatewayState struct {
	Gateway  string `json:"gateway"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

// Snapshot lists every gateway that has recorded a failure, sorted by name.
func (b *Breaker) Snapshot() []GatewayState {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]GatewayState, 0, len(b.entries))
	for gw, e := range b.entries {
		out = append(out, GatewayState{Gateway: gw, State: e.state.String(), Failures: e.failures})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Gateway < out[j].Gateway })
	return out
}

// caller must hold b.mu
func (b *Breaker) transition(e *entry, gateway string, to State) {
	from := e.state
	if from == to {
		return
	}
	e.state = to
	transitions.WithLabelValues(gateway, from.String(), to.String()).Inc()
	if b.onTransition != nil {
		fn := b.onTransition
		go fn(gateway, from, to)
	}
}
