// Package reputation turns raw on-chain reputation summaries into a bounded
// trust score and its tier.
package reputation

import "math/big"

// Neutral is the score given to agents whose reputation could not be read
// or has no feedback yet.
const Neutral = 50

const (
	MinScore = 0
	MaxScore = 100
)

// Level is a trust tier. It is always derived from a score.
type Level string

const (
	LevelStandard Level = "standard" // below 70
	LevelVerified Level = "verified" // 70-89
	LevelElite    Level = "elite"    // 90 and above
)

// Thresholds are the minimum scores for each tier above standard.
const (
	VerifiedThreshold = 70
	EliteThreshold    = 90
)

// LevelFor maps a score to its tier.
func LevelFor(score int) Level {
	switch {
	case score >= EliteThreshold:
		return LevelElite
	case score >= VerifiedThreshold:
		return LevelVerified
	default:
		return LevelStandard
	}
}

// Normalize computes round(raw / 10^decimals) clamped to [0, 100].
// Halves round up. A nil or negative raw value scores 0.
func Normalize(raw *big.Int, decimals uint8) int {
	if raw == nil || raw.Sign() <= 0 {
		return MinScore
	}

	q := new(big.Int).Set(raw)
	if decimals > 0 {
		div := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
		rem := new(big.Int)
		q.QuoRem(q, div, rem)
		if rem.Lsh(rem, 1).Cmp(div) >= 0 {
			q.Add(q, big.NewInt(1))
		}
	}

	if q.Cmp(big.NewInt(MaxScore)) > 0 {
		return MaxScore
	}
	return int(q.Int64())
}

// Clamp bounds an already-scaled score, for scores that do not come from
// a raw summary (seed data, metadata hints).
func Clamp(score int) int {
	switch {
	case score < MinScore:
		return MinScore
	case score > MaxScore:
		return MaxScore
	default:
		return score
	}
}

// Reading is one agent's reputation as read from the registry.
type Reading struct {
	Available bool
	Count     uint64
	Value     *big.Int
	Decimals  uint8
}

// Score returns the trust score and feedback count for a reading. An
// unavailable reading or one with no feedback is neutral with zero feedback.
func Score(r Reading) (score int, feedback uint64) {
	if !r.Available || r.Count == 0 {
		return Neutral, 0
	}
	return Normalize(r.Value, r.Decimals), r.Count
}
