// Package agent defines the canonical agent record served by the directory
// and the assembler that builds it from registry reads and metadata.
package agent

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/mbd888/agentdex/internal/reputation"
)

// Record is the canonical agent shape. Every field is always present in
// JSON; optional surfaces are null rather than missing.
type Record struct {
	AgentID       string     `json:"agentId"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Capabilities  []string   `json:"capabilities"`
	Endpoint      *string    `json:"endpoint"`
	Wallet        *string    `json:"wallet"`
	Networks      []string   `json:"networks"`
	TrustScore    int        `json:"trustScore"`
	FeedbackCount uint64     `json:"feedbackCount"`
	X402Support   bool       `json:"x402Support"`
	Featured      bool       `json:"featured"`
	Image         *string    `json:"image"`
	Chain         string     `json:"chain"`
	Registered    *Timestamp `json:"registered"`
	LastActive    *Timestamp `json:"lastActive"`
}

// TrustLevel is derived from TrustScore on every call; it is never stored.
func (r Record) TrustLevel() reputation.Level {
	return reputation.LevelFor(r.TrustScore)
}

// MarshalJSON adds the derived trustLevel.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	return json.Marshal(struct {
		plain
		TrustLevel reputation.Level `json:"trustLevel"`
	}{plain(r), r.TrustLevel()})
}

// HasCapability reports whether any capability contains sub, case-insensitively.
func (r Record) HasCapability(sub string) bool {
	sub = strings.ToLower(sub)
	for _, c := range r.Capabilities {
		if strings.Contains(strings.ToLower(c), sub) {
			return true
		}
	}
	return false
}

// OnNetwork reports whether any network contains sub, case-insensitively.
func (r Record) OnNetwork(sub string) bool {
	sub = strings.ToLower(sub)
	for _, n := range r.Networks {
		if strings.Contains(strings.ToLower(n), sub) {
			return true
		}
	}
	return false
}

// Timestamp is a validated time that re-encodes exactly as it was written.
type Timestamp struct {
	t   time.Time
	raw string
}

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02"}

// ParseTimestamp accepts RFC 3339 timestamps and YYYY-MM-DD dates.
func ParseTimestamp(s string) (*Timestamp, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &Timestamp{t: t, raw: s}, true
		}
	}
	return nil, false
}

// MustTimestamp is ParseTimestamp for literals. It panics on invalid input.
func MustTimestamp(s string) *Timestamp {
	ts, ok := ParseTimestamp(s)
	if !ok {
		panic("agent: invalid timestamp " + s)
	}
	return ts
}

func (ts Timestamp) Time() time.Time { return ts.t }
func (ts Timestamp) String() string  { return ts.raw }

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.raw)
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, ok := ParseTimestamp(s)
	if !ok {
		return &time.ParseError{Layout: time.RFC3339, Value: s, Message: ": not an RFC 3339 time or date"}
	}
	*ts = *parsed
	return nil
}
