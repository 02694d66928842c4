package currency

import (
	"fmt"

	"github.com/dvloznov/statement-reconciler/internal/amount"
)

// DefaultConversionTolerance is the percent band within which a converted amount
// is considered to agree with its target.
const DefaultConversionTolerance = 2.0

// IsWithinConversionTolerance reports whether converted agrees with target within
// tolerancePercent, using the mean-relative percent difference. original does not
// take part in the comparison.
func IsWithinConversionTolerance(original, converted, target, tolerancePercent float64) bool {
	return amount.CalculatePercentDiff(converted, target, true) <= tolerancePercent
}

// GetRateQualityScore maps rate staleness in days to a 10..100 quality score.
func GetRateQualityScore(daysDiff int) int {
	daysDiff = abs(daysDiff)
	switch {
	case daysDiff == 0:
		return 100
	case daysDiff == 1:
		return 95
	case daysDiff <= 3:
		return 85
	case daysDiff <= 7:
		return 70
	case daysDiff <= 14:
		return 50
	case daysDiff <= 30:
		return 30
	default:
		return 10
	}
}

// FormatConversionLog renders a conversion as a single audit line, e.g.
//
//	USD 100.00 → THB 3550.00 (rate: 35.500000 from 2024-01-15, exact rate)
func FormatConversionLog(r *ConversionResult) string {
	if r == nil {
		return ""
	}

	exactness := "exact rate"
	if !r.IsExactRate {
		exactness = fmt.Sprintf("approximate rate (%d days diff)", r.RateDaysDiff)
	}

	return fmt.Sprintf("%s %.2f → %s %.2f (rate: %.6f from %s, %s)",
		r.FromCurrency, r.OriginalAmount,
		r.ToCurrency, r.ConvertedAmount,
		r.Rate, r.RateDate, exactness)
}
