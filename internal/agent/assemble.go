package agent

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mbd888/agentdex/internal/chain"
	"github.com/mbd888/agentdex/internal/reputation"
	"github.com/mbd888/agentdex/internal/resolver"
)

const (
	DefaultDescription = "No description available"

	maxNameLen        = 100
	maxDescriptionLen = 1000
	maxCapabilityLen  = 64
	maxCapabilities   = 20
	maxNetworks       = 10
	maxURLLen         = 2048
)

// DefaultName is the name of an agent whose metadata has none.
func DefaultName(agentID string) string {
	return "Agent " + agentID
}

// Identity is what the identity registry says about an agent.
type Identity struct {
	AgentID string
	Wallet  *string
}

// field is one row of the metadata schema. keys are tried in order, each a
// dotted path into the document; the first value apply accepts wins. A
// field whose keys are all missing or rejected keeps its default.
type field struct {
	name  string
	keys  []string
	apply func(r *Record, v any) bool
}

var fields = []field{
	{"name", []string{"name"}, func(r *Record, v any) bool {
		return setText(&r.Name, v, maxNameLen)
	}},
	{"description", []string{"description"}, func(r *Record, v any) bool {
		return setText(&r.Description, v, maxDescriptionLen)
	}},
	{"capabilities", []string{"capabilities"}, func(r *Record, v any) bool {
		caps, ok := stringList(v, maxCapabilityLen, maxCapabilities)
		if !ok {
			return false
		}
		r.Capabilities = caps
		return true
	}},
	// The structured HTTPS endpoint wins over the generic key.
	{"endpoint", []string{"endpoints.https", "endpoint", "endpoints.a2a", "endpoints.mcp"}, func(r *Record, v any) bool {
		return setURL(&r.Endpoint, v, "https", "http")
	}},
	{"wallet", []string{"wallet", "walletAddress"}, func(r *Record, v any) bool {
		if r.Wallet != nil {
			return true // on-chain wallet already set
		}
		s, ok := v.(string)
		if !ok || !common.IsHexAddress(strings.TrimSpace(s)) {
			return false
		}
		addr := common.HexToAddress(strings.TrimSpace(s)).Hex()
		r.Wallet = &addr
		return true
	}},
	{"networks", []string{"networks", "network"}, func(r *Record, v any) bool {
		if s, ok := v.(string); ok {
			v = []any{s}
		}
		nets, ok := stringList(v, maxCapabilityLen, maxNetworks)
		if !ok || len(nets) == 0 {
			return false
		}
		r.Networks = nets
		return true
	}},
	{"x402Support", []string{"x402Support", "x402support"}, func(r *Record, v any) bool {
		b, ok := v.(bool)
		r.X402Support = b
		return ok
	}},
	{"featured", []string{"featured"}, func(r *Record, v any) bool {
		b, ok := v.(bool)
		r.Featured = b
		return ok
	}},
	{"image", []string{"image"}, func(r *Record, v any) bool {
		return setURL(&r.Image, v, "https", "http", "ipfs")
	}},
	{"registered", []string{"registered", "registeredAt", "createdAt"}, func(r *Record, v any) bool {
		return setTimestamp(&r.Registered, v)
	}},
	{"lastActive", []string{"lastActive", "updatedAt"}, func(r *Record, v any) bool {
		return setTimestamp(&r.LastActive, v)
	}},
}

// Assemble builds the canonical record. doc may be nil; every field then
// takes its documented default. The result depends only on the inputs.
func Assemble(id Identity, rep reputation.Reading, doc resolver.Metadata, ch chain.ID) Record {
	score, feedback := reputation.Score(rep)
	rec := Record{
		AgentID:       id.AgentID,
		Name:          DefaultName(id.AgentID),
		Description:   DefaultDescription,
		Capabilities:  []string{},
		Networks:      []string{ch.String()},
		TrustScore:    score,
		FeedbackCount: feedback,
		Chain:         ch.String(),
	}
	if id.Wallet != nil && common.IsHexAddress(*id.Wallet) {
		w := common.HexToAddress(*id.Wallet).Hex()
		rec.Wallet = &w
	}

	if doc == nil {
		return rec
	}
	for _, f := range fields {
		for _, key := range f.keys {
			v, ok := lookup(doc, key)
			if ok && f.apply(&rec, v) {
				break
			}
		}
	}
	return rec
}

// lookup follows a dotted path through nested objects.
func lookup(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func setText(dst *string, v any, maxLen int) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	s = cleanText(s, maxLen)
	if s == "" {
		return false
	}
	*dst = s
	return true
}

// cleanText drops control characters, trims and caps to maxLen runes.
func cleanText(s string, maxLen int) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxLen {
		s = strings.TrimSpace(string([]rune(s)[:maxLen]))
	}
	return s
}

// stringList accepts a JSON array, keeps its string elements in order,
// cleans them and drops empties and duplicates.
func stringList(v any, maxLen, maxItems int) ([]string, bool) {
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(arr))
	seen := make(map[string]bool, len(arr))
	for _, item := range arr {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = cleanText(s, maxLen)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if len(out) == maxItems {
			break
		}
	}
	return out, true
}

func setURL(dst **string, v any, schemes ...string) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxURLLen {
		return false
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	for _, scheme := range schemes {
		if strings.EqualFold(u.Scheme, scheme) {
			*dst = &s
			return true
		}
	}
	return false
}

func setTimestamp(dst **Timestamp, v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	ts, ok := ParseTimestamp(s)
	if !ok {
		return false
	}
	*dst = ts
	return true
}
