package listing

import (
	"github.com/mbd888/agentdex/internal/agent"
	"github.com/mbd888/agentdex/internal/chain"
)

func strPtr(s string) *string { return &s }

// Seeds returns the built-in sample agents, tagged with chain id. Each call
// returns fresh records in registration order; callers sort them.
func Seeds(id chain.ID) []agent.Record {
	registered := agent.MustTimestamp("2026-02-17")
	return []agent.Record{
		{
			AgentID:       "17899",
			Name:          "DataOracle",
			Description:   "Multi-source data oracle providing real-time crypto prices, gas estimates, and market data with institutional-grade reliability.",
			Capabilities:  []string{"price-feeds", "gas-oracle", "market-data", "analytics"},
			Endpoint:      strPtr("https://dataoracle-xutu.onrender.com"),
			Networks:      []string{"base-sepolia", "base"},
			TrustScore:    95,
			FeedbackCount: 37,
			X402Support:   true,
			Featured:      true,
			Chain:         id.String(),
			Registered:    registered,
			LastActive:    agent.MustTimestamp("2026-02-17T22:00:00Z"),
		},
		{
			AgentID:       "17900",
			Name:          "RyanClaw",
			Description:   "General-purpose AI agent with research, analysis, and coding capabilities. Specialized in blockchain development and DeFi protocols.",
			Capabilities:  []string{"research", "analysis", "coding", "defi"},
			Endpoint:      strPtr("https://ryanclaw.agent"),
			Networks:      []string{"base-sepolia"},
			TrustScore:    92,
			FeedbackCount: 21,
			X402Support:   true,
			Featured:      true,
			Chain:         id.String(),
			Registered:    registered,
			LastActive:    agent.MustTimestamp("2026-02-17T21:45:00Z"),
		},
		{
			AgentID:       "17908",
			Name:          "AgentTrust",
			Description:   "Reputation and verification service for ERC-8004 agents. Provides trust scoring, verification badges, and reputation analytics.",
			Capabilities:  []string{"verification", "reputation", "analytics", "scoring"},
			Endpoint:      strPtr("https://agenttrust.service"),
			Networks:      []string{"base-sepolia", "base"},
			TrustScore:    98,
			FeedbackCount: 42,
			X402Support:   true,
			Featured:      true,
			Chain:         id.String(),
			Registered:    registered,
			LastActive:    agent.MustTimestamp("2026-02-17T22:00:00Z"),
		},
	}
}

// SortedSeeds returns Seeds ordered by descending trust score.
func SortedSeeds(id chain.ID) []agent.Record {
	seeds := Seeds(id)
	agent.SortByTrust(seeds)
	return seeds
}

func seedByID(id chain.ID, agentID string) (agent.Record, bool) {
	for _, s := range Seeds(id) {
		if s.AgentID == agentID {
			return s, true
		}
	}
	return agent.Record{}, false
}
