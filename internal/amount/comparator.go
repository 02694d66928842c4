// Package amount scores how closely two monetary amounts agree.
// Everything here is pure arithmetic; no I/O.
package amount

import (
	"fmt"
	"math"
	"strings"
)

// Tier is one row of the scoring table.
type Tier struct {
	Name    string
	Score   int
	MaxDiff float64
}

// Score tiers, best first. MaxDiff is the inclusive upper bound on percent difference.
var (
	TierExact      = Tier{Name: "EXACT", Score: 40, MaxDiff: 0}
	TierVeryClose  = Tier{Name: "VERY_CLOSE", Score: 35, MaxDiff: 2}
	TierClose      = Tier{Name: "CLOSE", Score: 25, MaxDiff: 5}
	TierAcceptable = Tier{Name: "ACCEPTABLE", Score: 15, MaxDiff: 10}
	TierFar        = Tier{Name: "FAR", Score: 0, MaxDiff: math.Inf(1)}
)

// ScoreThresholds lists the tiers in classification order.
var ScoreThresholds = []Tier{TierExact, TierVeryClose, TierClose, TierAcceptable, TierFar}

const (
	// MaxScore is the score of an exact match.
	MaxScore = 40

	// FarConfidenceCap bounds overall confidence when amounts are too far apart.
	FarConfidenceCap = 60

	// ExchangeRateTolerance is the percent band for cross-currency agreement.
	ExchangeRateTolerance = 2.0

	defaultMaxPercentDiff = 10.0
)

// MatchScore is the outcome of comparing two amounts.
// ConfidenceCap is zero when no cap applies.
type MatchScore struct {
	Score         int     `json:"score"`
	PercentDiff   float64 `json:"percent_diff"`
	IsMatch       bool    `json:"is_match"`
	Reason        string  `json:"reason"`
	ConfidenceCap int     `json:"confidence_cap,omitempty"`
}

// IsExact reports whether the comparison landed in the exact tier.
func (m MatchScore) IsExact() bool {
	return m.Score == TierExact.Score
}

type options struct {
	exactMatchTolerance float64
	maxPercentDiff      float64
	compareAbsolute     bool
}

// Option adjusts CompareAmounts.
type Option func(*options)

// WithExactMatchTolerance treats any difference up to pct percent as exact.
func WithExactMatchTolerance(pct float64) Option {
	return func(o *options) { o.exactMatchTolerance = pct }
}

// WithMaxPercentDiff sets the difference beyond which amounts are rejected outright.
func WithMaxPercentDiff(pct float64) Option {
	return func(o *options) { o.maxPercentDiff = pct }
}

// WithCompareAbsolute toggles comparing magnitudes instead of signed values.
func WithCompareAbsolute(abs bool) Option {
	return func(o *options) { o.compareAbsolute = abs }
}

// CalculatePercentDiff returns the distance between a and b as a percentage of their mean.
// The result is symmetric in its arguments. Zero against non-zero is 100.
func CalculatePercentDiff(a, b float64, compareAbsolute bool) float64 {
	if compareAbsolute {
		a, b = math.Abs(a), math.Abs(b)
	}

	if a == 0 && b == 0 {
		return 0
	}
	if a == 0 || b == 0 {
		return 100
	}

	avg := (a + b) / 2
	if avg == 0 {
		return 100
	}
	return math.Abs(a-b) / math.Abs(avg) * 100
}

// CompareAmounts classifies the difference between expected and actual into a score tier.
func CompareAmounts(expected, actual float64, opts ...Option) MatchScore {
	o := options{
		maxPercentDiff:  defaultMaxPercentDiff,
		compareAbsolute: true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	diff := CalculatePercentDiff(expected, actual, o.compareAbsolute)

	switch {
	case diff == 0:
		return MatchScore{Score: TierExact.Score, PercentDiff: diff, IsMatch: true, Reason: "Amounts match exactly"}
	case diff <= o.exactMatchTolerance:
		return MatchScore{
			Score:       TierExact.Score,
			PercentDiff: diff,
			IsMatch:     true,
			Reason:      fmt.Sprintf("Amounts match within %.1f%% tolerance", o.exactMatchTolerance),
		}
	case diff <= TierVeryClose.MaxDiff:
		return MatchScore{
			Score:       TierVeryClose.Score,
			PercentDiff: diff,
			IsMatch:     true,
			Reason:      fmt.Sprintf("Amounts within %.1f%% (excellent match)", diff),
		}
	case diff <= TierClose.MaxDiff:
		return MatchScore{
			Score:       TierClose.Score,
			PercentDiff: diff,
			IsMatch:     true,
			Reason:      fmt.Sprintf("Amounts within %.1f%% (good match)", diff),
		}
	case diff <= TierAcceptable.MaxDiff:
		return MatchScore{
			Score:       TierAcceptable.Score,
			PercentDiff: diff,
			IsMatch:     true,
			Reason:      fmt.Sprintf("Amounts within %.1f%% (acceptable match)", diff),
		}
	case diff <= o.maxPercentDiff:
		return MatchScore{
			Score:       0,
			PercentDiff: diff,
			IsMatch:     false,
			Reason:      fmt.Sprintf("Amounts differ by %.1f%% (weak match)", diff),
		}
	}

	return MatchScore{
		Score:         0,
		PercentDiff:   diff,
		IsMatch:       false,
		ConfidenceCap: FarConfidenceCap,
		Reason:        fmt.Sprintf("Amounts differ by %.1f%% (exceeds %g%% threshold)", diff, o.maxPercentDiff),
	}
}

// IsWithinExchangeRateTolerance reports whether a and b agree within the fixed 2% band.
func IsWithinExchangeRateTolerance(a, b float64) bool {
	return CalculatePercentDiff(a, b, true) <= ExchangeRateTolerance
}

// CompareCurrencyAmounts compares amounts that may be in different currencies.
// For a cross-currency pair, converted must hold amount1 expressed in currency2;
// without it no score is given.
func CompareCurrencyAmounts(amount1 float64, currency1 string, amount2 float64, currency2 string, converted *float64) MatchScore {
	from, to := strings.ToUpper(currency1), strings.ToUpper(currency2)
	if from == to {
		return CompareAmounts(amount1, amount2)
	}

	if converted == nil {
		return MatchScore{
			Score:       0,
			PercentDiff: 100,
			IsMatch:     false,
			Reason:      "Different currencies - conversion required for comparison",
		}
	}

	result := CompareAmounts(*converted, amount2, WithExactMatchTolerance(ExchangeRateTolerance))
	if result.IsMatch {
		result.Reason = fmt.Sprintf("Cross-currency match: %s → %s, %s", from, to, result.Reason)
	} else {
		result.Reason = fmt.Sprintf("Cross-currency comparison: %s → %s, %s", from, to, result.Reason)
	}
	return result
}

// Match pairs a candidate index with its score.
type Match struct {
	Index  int        `json:"index"`
	Result MatchScore `json:"result"`
}

// FindBestAmountMatch returns the candidate closest to target, or nil when there are none.
// The first exact match wins immediately; otherwise ties keep the earliest candidate.
func FindBestAmountMatch(target float64, candidates []float64) *Match {
	if len(candidates) == 0 {
		return nil
	}

	var best *Match
	for i, c := range candidates {
		result := CompareAmounts(target, c)
		if result.IsExact() {
			return &Match{Index: i, Result: result}
		}
		if best == nil || result.Score > best.Result.Score {
			best = &Match{Index: i, Result: result}
		}
	}
	return best
}
