// Package listing serves the agent directory for a chain.
//
// A listing request runs a small state machine: a fresh cached listing is
// returned as is; otherwise the registries are read live and every
// candidate is assembled into a record. An unreadable identity count or an
// effectively empty registry yields the built-in sample agents instead, and
// any unexpected failure during the live pass yields the same sample agents
// together with an error string. A request never fails for upstream reasons.
package listing

import (
	"errors"
	"time"

	"github.com/mbd888/agentdex/internal/agent"
)

var (
	ErrAgentNotFound = errors.New("listing: agent not found")
	ErrTooManyAgents = errors.New("listing: too many agents to compare")
	ErrNoAgentIDs    = errors.New("listing: no agent ids given")
)

// Source tells where the agents of a result came from.
type Source string

const (
	SourceOnChain  Source = "on-chain"
	SourceCache    Source = "cache"
	SourceSample   Source = "sample"
	SourceFallback Source = "fallback"
)

// DefaultLowSupplyThreshold is the identity count below which a registry
// is treated as empty.
const DefaultLowSupplyThreshold = 3

// MaxCompare is the number of agents Compare accepts.
const MaxCompare = 3

// Result is the response to a listing request.
type Result struct {
	Agents []agent.Record `json:"agents"`
	Count  int            `json:"count"`
	Source Source         `json:"source"`
	Error  string         `json:"error,omitempty"`
}

func newResult(agents []agent.Record, src Source, errMsg string) Result {
	if agents == nil {
		agents = []agent.Record{}
	}
	return Result{Agents: agents, Count: len(agents), Source: src, Error: errMsg}
}

// SearchResult is one page of a filtered and sorted listing. Count is the
// page size and Total the number of matches.
type SearchResult struct {
	Query      string         `json:"query"`
	Count      int            `json:"count"`
	Total      int            `json:"total"`
	Agents     []agent.Record `json:"agents"`
	Source     Source         `json:"source"`
	Error      string         `json:"error,omitempty"`
	NextCursor string         `json:"nextCursor,omitempty"`
	HasMore    bool           `json:"hasMore"`
}

// CompareResult holds the agents found for a comparison, in request order,
// and the ids that could not be found.
type CompareResult struct {
	Agents  []agent.Record `json:"agents"`
	Missing []string       `json:"missing"`
}

// Refresh describes a completed live fetch.
type Refresh struct {
	Chain  string    `json:"chain"`
	Source Source    `json:"source"`
	Count  int       `json:"count"`
	At     time.Time `json:"at"`
}

// Notifier is told about every completed live fetch.
type Notifier interface {
	ListingRefreshed(r Refresh)
}
