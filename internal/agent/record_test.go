package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/agentdex/internal/reputation"
)

func TestRecord_MarshalDerivesTrustLevel(t *testing.T) {
	for _, tt := range []struct {
		score int
		want  string
	}{
		{98, "elite"},
		{90, "elite"},
		{75, "verified"},
		{50, "standard"},
	} {
		b, err := json.Marshal(Record{AgentID: "1", TrustScore: tt.score})
		require.NoError(t, err)

		var m map[string]any
		require.NoError(t, json.Unmarshal(b, &m))
		assert.Equal(t, tt.want, m["trustLevel"])
		assert.Equal(t, float64(tt.score), m["trustScore"])
	}
}

func TestRecord_AllKeysPresent(t *testing.T) {
	b, err := json.Marshal(Record{AgentID: "7"})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	for _, key := range []string{
		"agentId", "name", "description", "capabilities", "endpoint", "wallet",
		"networks", "trustScore", "trustLevel", "feedbackCount", "x402Support",
		"featured", "image", "chain", "registered", "lastActive",
	} {
		assert.Contains(t, m, key)
	}
}

func TestRecord_UnmarshalIgnoresTrustLevel(t *testing.T) {
	var r Record
	require.NoError(t, json.Unmarshal([]byte(`{"agentId":"3","trustScore":42,"trustLevel":"elite","registered":"2026-02-17"}`), &r))
	assert.Equal(t, 42, r.TrustScore)
	assert.Equal(t, reputation.LevelStandard, r.TrustLevel())
	require.NotNil(t, r.Registered)
	assert.Equal(t, "2026-02-17", r.Registered.String())
}

func TestTimestamp(t *testing.T) {
	ts, ok := ParseTimestamp("2026-02-17T22:00:00Z")
	require.True(t, ok)
	assert.Equal(t, 22, ts.Time().Hour())

	ts, ok = ParseTimestamp(" 2026-02-17 ")
	require.True(t, ok)
	b, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2026-02-17"`, string(b))

	for _, bad := range []string{"", "yesterday", "17/02/2026", "2026-02-30"} {
		_, ok := ParseTimestamp(bad)
		assert.False(t, ok, bad)
	}

	var out Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &out))
	assert.Panics(t, func() { MustTimestamp("nope") })
}

func TestRecord_Matchers(t *testing.T) {
	r := Record{Capabilities: []string{"Price-Feeds", "analytics"}, Networks: []string{"base-sepolia"}}
	assert.True(t, r.HasCapability("price"))
	assert.False(t, r.HasCapability("coding"))
	assert.True(t, r.OnNetwork("SEPOLIA"))
	assert.False(t, r.OnNetwork("ethereum"))
}

func names(rs []Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Name
	}
	return out
}

func TestSort(t *testing.T) {
	base := func() []Record {
		return []Record{
			{AgentID: "17900", Name: "RyanClaw", TrustScore: 92, FeedbackCount: 21},
			{AgentID: "17908", Name: "AgentTrust", TrustScore: 98, FeedbackCount: 42},
			{AgentID: "17899", Name: "DataOracle", TrustScore: 95, FeedbackCount: 37},
		}
	}
	tests := []struct {
		key  SortKey
		want []string
	}{
		{SortNameAsc, []string{"AgentTrust", "DataOracle", "RyanClaw"}},
		{SortNameDesc, []string{"RyanClaw", "DataOracle", "AgentTrust"}},
		{SortTrustDesc, []string{"AgentTrust", "DataOracle", "RyanClaw"}},
		{SortTrustAsc, []string{"RyanClaw", "DataOracle", "AgentTrust"}},
		{SortFeedbackDesc, []string{"AgentTrust", "DataOracle", "RyanClaw"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			rs := base()
			Sort(rs, tt.key)
			assert.Equal(t, tt.want, names(rs))
		})
	}
}

func TestSortByTrust_StableTies(t *testing.T) {
	rs := []Record{
		{AgentID: "1", TrustScore: 50},
		{AgentID: "2", TrustScore: 80},
		{AgentID: "3", TrustScore: 50},
		{AgentID: "4", TrustScore: 80},
		{AgentID: "5", TrustScore: 50},
	}
	SortByTrust(rs)
	var got []string
	for _, r := range rs {
		got = append(got, r.AgentID)
	}
	assert.Equal(t, []string{"2", "4", "1", "3", "5"}, got)
}

func TestParseSortKey(t *testing.T) {
	k, err := ParseSortKey("")
	require.NoError(t, err)
	assert.Equal(t, SortTrustDesc, k)

	for _, key := range SortKeys {
		got, err := ParseSortKey(string(key))
		require.NoError(t, err)
		assert.Equal(t, key, got)
	}

	_, err = ParseSortKey("newest")
	assert.Error(t, err)
}
