package listing

import (
	"strings"

	"github.com/mbd888/agentdex/internal/agent"
	"github.com/mbd888/agentdex/internal/chain"
	"github.com/mbd888/agentdex/internal/pagination"
	"github.com/mbd888/agentdex/internal/reputation"
)

// Query is a validated search over one chain's listing. Text, Capabilities
// and Network are matched case-insensitively as substrings.
type Query struct {
	Chain        chain.ID
	ForceRefresh bool

	Text         string
	Capabilities []string
	MinTrust     int
	MaxTrust     int
	EliteOnly    bool
	FeaturedOnly bool
	X402Only     bool
	Network      string
	Sort         agent.SortKey

	// Limit caps the page size; zero returns every match.
	Limit int
	After *pagination.Cursor
}

// DefaultQuery matches every agent on id.
func DefaultQuery(id chain.ID) Query {
	return Query{
		Chain:    id,
		MinTrust: reputation.MinScore,
		MaxTrust: reputation.MaxScore,
		Sort:     agent.SortTrustDesc,
	}
}

// Matches reports whether r satisfies every filter of q.
func (q Query) Matches(r agent.Record) bool {
	if q.Text != "" && !matchesText(r, strings.ToLower(q.Text)) {
		return false
	}
	if len(q.Capabilities) > 0 {
		found := false
		for _, c := range q.Capabilities {
			if r.HasCapability(c) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if r.TrustScore < q.MinTrust || r.TrustScore > q.MaxTrust {
		return false
	}
	if q.EliteOnly && r.TrustLevel() != reputation.LevelElite {
		return false
	}
	if q.FeaturedOnly && !r.Featured {
		return false
	}
	if q.X402Only && !r.X402Support {
		return false
	}
	if q.Network != "" && !r.OnNetwork(q.Network) {
		return false
	}
	return true
}

func matchesText(r agent.Record, text string) bool {
	if strings.Contains(strings.ToLower(r.Name), text) || strings.Contains(strings.ToLower(r.Description), text) {
		return true
	}
	return r.HasCapability(text)
}

// Filter returns the records matching q, in their original order.
func Filter(records []agent.Record, q Query) []agent.Record {
	out := make([]agent.Record, 0, len(records))
	for _, r := range records {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}
