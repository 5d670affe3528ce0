package intent

import (
	"math"
	"math/big"
	"sort"
)

// Score is the scorer output on the 0..100 scale multiplied by ScoreScale.
// Storing the scaled integer keeps ranking comparisons exact; the float form
// exists only for display.
type Score int64

// ScoreScale is the fixed-point factor between the 0..100 scoring domain and
// the stored integer representation.
const ScoreScale = 10_000

// Float returns the human-readable 0..100 value.
func (s Score) Float() float64 { return float64(s) / ScoreScale }

// ScoreWeights weights the normalized scoring dimensions. The production
// weighting sums to 1.
type ScoreWeights struct {
	Price      float64
	Time       float64
	Reputation float64
	Confidence float64
	TEE        float64
}

// DefaultWeights returns the production weighting: price and reputation
// dominate; time is capped so a provider cannot win on claimed speed alone;
// confidence is self-reported and therefore discounted; TEE attestation is a
// small edge rather than a gate (gating happens in the requirements check).
func DefaultWeights() ScoreWeights {
	return ScoreWeights{
		Price:      0.35,
		Time:       0.20,
		Reputation: 0.25,
		Confidence: 0.15,
		TEE:        0.05,
	}
}

// ScorerConfig tunes the pure scoring function.
type ScorerConfig struct {
	Weights ScoreWeights
	// DefaultMaxLatencyMs normalizes the time dimension when the intent
	// declares no latency requirement.
	DefaultMaxLatencyMs int64
	// TEEBonus is the 0..1 value awarded to attested bids.
	TEEBonus float64
}

func (c ScorerConfig) normalized() ScorerConfig {
	if c.Weights == (ScoreWeights{}) {
		c.Weights = DefaultWeights()
	}
	if c.DefaultMaxLatencyMs <= 0 {
		c.DefaultMaxLatencyMs = 30_000
	}
	if c.TEEBonus <= 0 {
		c.TEEBonus = 1
	}
	if c.TEEBonus > 1 {
		c.TEEBonus = 1
	}
	return c
}

// ScoreBid folds a bid's dimensions into a single totally ordered scalar. It
// is a pure function: no clock, no I/O, no engine state, so identical inputs
// always produce identical scores.
func ScoreBid(it *Intent, bid *Bid, cfg ScorerConfig) Score {
	if it == nil || bid == nil {
		return 0
	}
	cfg = cfg.normalized()
	price := priceScore(bid.Amount, it.MaxBudget)
	timing := latencyScore(bid.EstimatedTimeMs, it.Requirements.MaxLatencyMs, cfg.DefaultMaxLatencyMs)
	reputation := clamp01(bid.Reputation)
	confidence := clamp01(bid.Confidence)
	tee := 0.0
	if bid.TEEAttested {
		tee = cfg.TEEBonus
	}
	w := cfg.Weights
	raw := 100 * (w.Price*price + w.Time*timing + w.Reputation*reputation + w.Confidence*confidence + w.TEE*tee)
	return Score(math.Round(raw * ScoreScale))
}

func priceScore(amount, budget *big.Int) float64 {
	if amount == nil || budget == nil || budget.Sign() <= 0 {
		return 0
	}
	ratio, _ := new(big.Rat).SetFrac(amount, budget).Float64()
	return clamp01(1 - ratio)
}

func latencyScore(estimatedMs, maxLatencyMs, defaultMaxMs int64) float64 {
	limit := maxLatencyMs
	if limit <= 0 {
		limit = defaultMaxMs
	}
	if limit <= 0 {
		return 0
	}
	ratio := float64(estimatedMs) / float64(limit)
	if ratio > 1 {
		ratio = 1
	}
	if ratio < 0 {
		ratio = 0
	}
	return 1 - ratio
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// NormalizeReputation converts reputation claims to the canonical 0..1
// domain. Values above 1 are treated as the legacy 0..5 convention and scaled
// down before clamping.
func NormalizeReputation(v float64) float64 {
	if v > 1 {
		v = v / 5
	}
	return clamp01(v)
}

// rankBids sorts the book by score descending and rewrites Rank to the
// contiguous 1..n permutation. Ties break deterministically by reputation
// descending, submission time ascending, then bid id, with reputation
// compared on a fixed-point scale so ordering never depends on float
// formatting.
func rankBids(bids []*Bid) {
	sort.Slice(bids, func(i, j int) bool { return lessBid(bids[i], bids[j]) })
	for idx, bid := range bids {
		bid.Rank = idx + 1
	}
}

func lessBid(a, b *Bid) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	ra, rb := scaledReputation(a.Reputation), scaledReputation(b.Reputation)
	if ra != rb {
		return ra > rb
	}
	if a.SubmittedAt != b.SubmittedAt {
		return a.SubmittedAt < b.SubmittedAt
	}
	return a.ID < b.ID
}

func scaledReputation(v float64) int64 {
	return int64(math.Round(clamp01(v) * 1_000_000))
}
