package matching

import (
	"context"
	"fmt"
	"math"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-reconciler/internal/amount"
	"github.com/dvloznov/statement-reconciler/internal/currency"
	"github.com/dvloznov/statement-reconciler/internal/domain"
)

// ConfidenceLevel buckets a composite score.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "HIGH"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceLow    ConfidenceLevel = "LOW"
)

// Confidence thresholds on the 0..100 composite score.
const (
	HighConfidenceThreshold   = 90
	MediumConfidenceThreshold = 55

	noRateConfidenceCap = 50
)

// Weights are the maximum contribution of each signal to the composite score.
type Weights struct {
	Amount int
	Date   int
	Vendor int
}

// DefaultWeights sums to 100.
var DefaultWeights = Weights{Amount: 40, Date: 30, Vendor: 30}

// Converter converts an amount at the rate in force on date. A nil result means no rate.
// *currency.RateCache implements it.
type Converter interface {
	Convert(ctx context.Context, amount float64, from, to string, date civil.Date) (*currency.ConversionResult, error)
}

// MatchCandidate is one ledger transaction scored against one extracted transaction.
type MatchCandidate struct {
	Target          domain.LedgerTransaction   `json:"target"`
	Score           int                        `json:"score"`
	Confidence      ConfidenceLevel            `json:"confidence"`
	IsMatch         bool                       `json:"is_match"`
	Amount          amount.MatchScore          `json:"amount"`
	Date            DateMatch                  `json:"date"`
	Vendor          VendorMatch                `json:"vendor"`
	Conversion      *currency.ConversionResult `json:"conversion,omitempty"`
	Reasons         []string                   `json:"reasons"`
	AppliedCaps     []int                      `json:"applied_caps,omitempty"`
	IsCrossCurrency bool                       `json:"is_cross_currency"`
}

// ConfidenceFor maps a composite score to its level.
func ConfidenceFor(score int) ConfidenceLevel {
	switch {
	case score >= HighConfidenceThreshold:
		return ConfidenceHigh
	case score >= MediumConfidenceThreshold:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Scorer computes composite match scores from the amount, date and vendor signals.
type Scorer struct {
	cfg       Config
	converter Converter
}

// NewScorer returns a Scorer. converter may be nil, in which case cross-currency
// candidates cannot be compared on amount.
func NewScorer(cfg Config, converter Converter) *Scorer {
	return &Scorer{cfg: cfg.withDefaults(), converter: converter}
}

// Score compares source against target.
func (s *Scorer) Score(ctx context.Context, source domain.ExtractedTransaction, target domain.LedgerTransaction) (MatchCandidate, error) {
	result := MatchCandidate{
		Target:          target,
		IsCrossCurrency: !strings.EqualFold(source.Currency, target.Currency),
	}

	amt, conv, err := s.scoreAmount(ctx, source, target, result.IsCrossCurrency)
	if err != nil {
		return MatchCandidate{}, err
	}
	result.Amount = amt
	result.Conversion = conv
	result.Reasons = append(result.Reasons, "Amount: "+amt.Reason)
	if amt.ConfidenceCap > 0 {
		result.AppliedCaps = append(result.AppliedCaps, amt.ConfidenceCap)
	}

	dt := CompareDates(source.TransactionDate, target.TransactionDate, DateOptions{MaxDaysDiff: s.cfg.DateToleranceDays})
	result.Date = dt
	result.Reasons = append(result.Reasons, "Date: "+dt.Reason)
	if dt.ConfidenceCap > 0 {
		result.AppliedCaps = append(result.AppliedCaps, dt.ConfidenceCap)
	}

	vd := CompareVendors(ExtractVendorFromDescription(source.Description), target.VendorOrDescription(), VendorOptions{
		MinSimilarity: s.cfg.MinVendorSimilarity,
		Aliases:       s.cfg.VendorAliases,
	})
	result.Vendor = vd
	result.Reasons = append(result.Reasons, "Vendor: "+vd.Reason)

	raw := weighted(amt.Score, amount.MaxScore, s.cfg.Weights.Amount) +
		weighted(dt.Score, DateMaxScore, s.cfg.Weights.Date) +
		weighted(vd.Score, VendorMaxScore, s.cfg.Weights.Vendor)

	score := int(math.Round(raw))
	for _, limit := range result.AppliedCaps {
		if score > limit {
			score = limit
		}
	}

	result.Score = score
	result.Confidence = ConfidenceFor(score)
	result.IsMatch = score >= s.cfg.MinMatchScore

	if s.cfg.RequireVendorMatch && !vd.IsMatch {
		result.IsMatch = false
		result.Reasons = append(result.Reasons, "Vendor match required but not found")
	}
	if s.cfg.RequireDateMatch && !dt.IsMatch {
		result.IsMatch = false
		result.Reasons = append(result.Reasons, "Date match required but not found")
	}

	return result, nil
}

func (s *Scorer) scoreAmount(ctx context.Context, source domain.ExtractedTransaction, target domain.LedgerTransaction, cross bool) (amount.MatchScore, *currency.ConversionResult, error) {
	if !cross {
		return amount.CompareAmounts(source.Amount, target.Amount), nil, nil
	}

	if s.converter == nil {
		return amount.MatchScore{
			PercentDiff:   100,
			ConfidenceCap: noRateConfidenceCap,
			Reason:        "Cross-currency comparison requires exchange rate lookup",
		}, nil, nil
	}

	conv, err := s.converter.Convert(ctx, source.Amount, source.Currency, target.Currency, source.TransactionDate)
	if err != nil {
		return amount.MatchScore{}, nil, fmt.Errorf("scoreAmount: converting %s to %s: %w", source.Currency, target.Currency, err)
	}
	if conv == nil {
		return amount.MatchScore{
			PercentDiff:   100,
			ConfidenceCap: noRateConfidenceCap,
			Reason:        fmt.Sprintf("Cannot convert %s to %s - no exchange rate found", strings.ToUpper(source.Currency), strings.ToUpper(target.Currency)),
		}, nil, nil
	}

	converted := conv.ConvertedAmount
	result := amount.CompareCurrencyAmounts(source.Amount, source.Currency, target.Amount, target.Currency, &converted)

	if !conv.IsExactRate {
		if quality := currency.GetRateQualityScore(conv.RateDaysDiff); quality < 100 {
			result.Score = int(math.Round(float64(result.Score) * float64(quality) / 100))
			result.Reason = fmt.Sprintf("%s (rate quality: %d%%)", result.Reason, quality)
		}
	}

	return result, conv, nil
}

func weighted(score, maxScore, weight int) float64 {
	if maxScore == 0 {
		return 0
	}
	return float64(score) / float64(maxScore) * float64(weight)
}
