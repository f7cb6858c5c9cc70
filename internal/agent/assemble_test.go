package agent

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/agentdex/internal/chain"
	"github.com/mbd888/agentdex/internal/reputation"
	"github.com/mbd888/agentdex/internal/resolver"
)

func strPtr(s string) *string { return &s }

func decode(t *testing.T, s string) resolver.Metadata {
	t.Helper()
	var doc resolver.Metadata
	require.NoError(t, json.Unmarshal([]byte(s), &doc))
	return doc
}

func TestAssemble_EmptyMetadataUsesDefaults(t *testing.T) {
	for _, doc := range []resolver.Metadata{nil, {}} {
		rec := Assemble(Identity{AgentID: "42"}, reputation.Reading{}, doc, chain.BaseSepolia)

		assert.Equal(t, "42", rec.AgentID)
		assert.Equal(t, "Agent 42", rec.Name)
		assert.Equal(t, DefaultDescription, rec.Description)
		assert.NotNil(t, rec.Capabilities)
		assert.Empty(t, rec.Capabilities)
		assert.Nil(t, rec.Endpoint)
		assert.Nil(t, rec.Wallet)
		assert.Equal(t, []string{"base-sepolia"}, rec.Networks)
		assert.Equal(t, reputation.Neutral, rec.TrustScore)
		assert.Equal(t, uint64(0), rec.FeedbackCount)
		assert.Equal(t, reputation.LevelStandard, rec.TrustLevel())
		assert.False(t, rec.X402Support)
		assert.Nil(t, rec.Registered)
		assert.Nil(t, rec.LastActive)
		assert.Equal(t, "base-sepolia", rec.Chain)

		b, err := json.Marshal(rec)
		require.NoError(t, err)
		assert.NotContains(t, string(b), "undefined")
		assert.Contains(t, string(b), `"capabilities":[]`)
	}
}

func TestAssemble_CompleteDocumentRoundTrips(t *testing.T) {
	doc := decode(t, `{
		"name": "DataOracle",
		"description": "Multi-source data oracle providing real-time crypto prices.",
		"capabilities": ["price-feeds", "gas-oracle", "market-data", "analytics"],
		"endpoint": "https://dataoracle-xutu.onrender.com",
		"wallet": "0x8004A169FB4a3325136EB29fA0ceB6D2e539a432",
		"networks": ["base-sepolia", "base"],
		"x402Support": true,
		"featured": true,
		"image": "ipfs://QmImage",
		"registered": "2026-02-17",
		"lastActive": "2026-02-17T22:00:00Z"
	}`)
	rep := reputation.Reading{Available: true, Count: 37, Value: big.NewInt(9500), Decimals: 2}

	rec := Assemble(Identity{AgentID: "17899"}, rep, doc, chain.BaseSepolia)

	assert.Equal(t, "DataOracle", rec.Name)
	assert.Equal(t, doc["description"], rec.Description)
	assert.Equal(t, []string{"price-feeds", "gas-oracle", "market-data", "analytics"}, rec.Capabilities)
	assert.Equal(t, "https://dataoracle-xutu.onrender.com", *rec.Endpoint)
	assert.Equal(t, common.HexToAddress("0x8004A169FB4a3325136EB29fA0ceB6D2e539a432").Hex(), *rec.Wallet)
	assert.Equal(t, []string{"base-sepolia", "base"}, rec.Networks)
	assert.True(t, rec.X402Support)
	assert.True(t, rec.Featured)
	assert.Equal(t, "ipfs://QmImage", *rec.Image)
	assert.Equal(t, 95, rec.TrustScore)
	assert.Equal(t, uint64(37), rec.FeedbackCount)
	assert.Equal(t, reputation.LevelElite, rec.TrustLevel())

	b, err := json.Marshal(rec)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	for _, key := range []string{"name", "description", "capabilities", "endpoint", "networks",
		"x402Support", "featured", "image", "registered", "lastActive"} {
		assert.Equal(t, doc[key], out[key], key)
	}
}

func TestAssemble_StructuredEndpointWins(t *testing.T) {
	doc := decode(t, `{"endpoint":"https://generic.example","endpoints":{"https":"https://structured.example","a2a":"https://a2a.example"}}`)
	rec := Assemble(Identity{AgentID: "1"}, reputation.Reading{}, doc, chain.Base)
	require.NotNil(t, rec.Endpoint)
	assert.Equal(t, "https://structured.example", *rec.Endpoint)

	// an invalid structured value falls through to the generic key
	doc = decode(t, `{"endpoint":"https://generic.example","endpoints":{"https":"javascript:alert(1)"}}`)
	rec = Assemble(Identity{AgentID: "1"}, reputation.Reading{}, doc, chain.Base)
	assert.Equal(t, "https://generic.example", *rec.Endpoint)

	doc = decode(t, `{"endpoints":{"mcp":"https://mcp.example/sse"}}`)
	rec = Assemble(Identity{AgentID: "1"}, reputation.Reading{}, doc, chain.Base)
	assert.Equal(t, "https://mcp.example/sse", *rec.Endpoint)
}

func TestAssemble_RejectsMistypedFields(t *testing.T) {
	doc := decode(t, `{
		"name": 12,
		"description": "   ",
		"capabilities": "coding",
		"endpoint": "ftp://files.example",
		"wallet": "not-an-address",
		"networks": [],
		"x402Support": "yes",
		"featured": 1,
		"image": ["https://img.example"],
		"registered": "last tuesday",
		"lastActive": 1739829600
	}`)
	rec := Assemble(Identity{AgentID: "9"}, reputation.Reading{}, doc, chain.Sepolia)

	assert.Equal(t, "Agent 9", rec.Name)
	assert.Equal(t, DefaultDescription, rec.Description)
	assert.Empty(t, rec.Capabilities)
	assert.Nil(t, rec.Endpoint)
	assert.Nil(t, rec.Wallet)
	assert.Equal(t, []string{"sepolia"}, rec.Networks)
	assert.False(t, rec.X402Support)
	assert.False(t, rec.Featured)
	assert.Nil(t, rec.Image)
	assert.Nil(t, rec.Registered)
	assert.Nil(t, rec.LastActive)
}

func TestAssemble_Normalization(t *testing.T) {
	long := strings.Repeat("n", 300)
	doc := resolver.Metadata{
		"name":         "  Oracle\x00Bot  ",
		"description":  long,
		"capabilities": []any{"coding", " coding ", 7, "", "research"},
		"network":      "base",
	}
	rec := Assemble(Identity{AgentID: "5"}, reputation.Reading{}, doc, chain.Base)

	assert.Equal(t, "OracleBot", rec.Name)
	assert.Equal(t, long, rec.Description)
	assert.Equal(t, []string{"coding", "research"}, rec.Capabilities)
	assert.Equal(t, []string{"base"}, rec.Networks)

	doc["name"] = long
	rec = Assemble(Identity{AgentID: "5"}, reputation.Reading{}, doc, chain.Base)
	assert.Len(t, rec.Name, maxNameLen)
}

func TestAssemble_WalletPrecedence(t *testing.T) {
	onChain := "0x8004b663056a597dffe9eccc1965a193b7388713"
	doc := resolver.Metadata{"wallet": "0x8004A818BFB912233c491871b3d84c89A494BD9e"}

	rec := Assemble(Identity{AgentID: "1", Wallet: strPtr(onChain)}, reputation.Reading{}, doc, chain.Base)
	require.NotNil(t, rec.Wallet)
	assert.Equal(t, common.HexToAddress(onChain).Hex(), *rec.Wallet, "on-chain wallet, checksummed")

	rec = Assemble(Identity{AgentID: "1"}, reputation.Reading{}, doc, chain.Base)
	assert.Equal(t, common.HexToAddress("0x8004A818BFB912233c491871b3d84c89A494BD9e").Hex(), *rec.Wallet)

	rec = Assemble(Identity{AgentID: "1", Wallet: strPtr("garbage")}, reputation.Reading{}, nil, chain.Base)
	assert.Nil(t, rec.Wallet)
}

func TestAssemble_UnreadableReputationIsNeutral(t *testing.T) {
	rec := Assemble(Identity{AgentID: "2"}, reputation.Reading{Available: false, Value: big.NewInt(0)}, resolver.Metadata{"name": "Two"}, chain.BaseSepolia)
	assert.Equal(t, 50, rec.TrustScore)
	assert.Equal(t, uint64(0), rec.FeedbackCount)
	assert.Equal(t, reputation.LevelStandard, rec.TrustLevel())
}

func TestAssemble_Deterministic(t *testing.T) {
	doc := decode(t, `{"name":"Same","capabilities":["a","b"],"registered":"2026-02-17"}`)
	rep := reputation.Reading{Available: true, Count: 3, Value: big.NewInt(71)}

	first, err := json.Marshal(Assemble(Identity{AgentID: "3"}, rep, doc, chain.Base))
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := json.Marshal(Assemble(Identity{AgentID: "3"}, rep, doc, chain.Base))
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestLookup(t *testing.T) {
	doc := map[string]any{"a": map[string]any{"b": "c", "n": nil}, "s": "x"}
	v, ok := lookup(doc, "a.b")
	assert.True(t, ok)
	assert.Equal(t, "c", v)

	_, ok = lookup(doc, "a.n")
	assert.False(t, ok)
	_, ok = lookup(doc, "s.t")
	assert.False(t, ok)
	_, ok = lookup(doc, "missing")
	assert.False(t, ok)
}
