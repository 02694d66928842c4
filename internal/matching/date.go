package matching

import (
	"fmt"

	"cloud.google.com/go/civil"
)

// Date score table, keyed by maximum day distance.
const (
	DateScoreSameDay   = 30
	DateScoreOneDay    = 25
	DateScoreTwoDays   = 20
	DateScoreThreeDays = 15

	// DateMaxScore is the best possible date score.
	DateMaxScore = DateScoreSameDay

	defaultMaxDaysDiff  = 3
	farDateCapReduction = 5
	farDateCapFloor     = 50
	strictDayPenalty    = 5
)

// DateMatch is the outcome of comparing two transaction dates.
// ConfidenceCap is zero when no cap applies.
type DateMatch struct {
	Score         int    `json:"score"`
	DaysDiff      int    `json:"days_diff"`
	IsMatch       bool   `json:"is_match"`
	ConfidenceCap int    `json:"confidence_cap,omitempty"`
	Reason        string `json:"reason"`
}

// DateOptions adjusts CompareDates.
type DateOptions struct {
	MaxDaysDiff int
	StrictMode  bool
}

// CalculateDaysDiff returns the absolute number of calendar days between a and b.
func CalculateDaysDiff(a, b civil.Date) int {
	d := a.DaysSince(b)
	if d < 0 {
		return -d
	}
	return d
}

// CompareDates scores how close target is to source.
func CompareDates(source, target civil.Date, opts DateOptions) DateMatch {
	maxDays := opts.MaxDaysDiff
	if maxDays <= 0 {
		maxDays = defaultMaxDaysDiff
	}

	days := CalculateDaysDiff(source, target)

	if days == 0 {
		return DateMatch{Score: DateScoreSameDay, DaysDiff: 0, IsMatch: true, Reason: "Dates match exactly (same day)"}
	}

	if opts.StrictMode {
		score := DateScoreSameDay - days*strictDayPenalty
		if score < 0 {
			score = 0
		}
		return DateMatch{
			Score:    score,
			DaysDiff: days,
			IsMatch:  days <= maxDays,
			Reason:   fmt.Sprintf("Dates differ by %d %s (strict mode)", days, plural(days, "day", "days")),
		}
	}

	switch {
	case days <= 1:
		return DateMatch{Score: DateScoreOneDay, DaysDiff: days, IsMatch: true, Reason: "Dates within 1 day (excellent match)"}
	case days <= 2:
		return DateMatch{Score: DateScoreTwoDays, DaysDiff: days, IsMatch: true, Reason: "Dates within 2 days (good match)"}
	case days <= 3:
		return DateMatch{Score: DateScoreThreeDays, DaysDiff: days, IsMatch: true, Reason: "Dates within 3 days (acceptable match)"}
	case days <= maxDays:
		limit := 100 - (days-3)*farDateCapReduction
		if limit < farDateCapFloor {
			limit = farDateCapFloor
		}
		return DateMatch{
			Score:         0,
			DaysDiff:      days,
			IsMatch:       true,
			ConfidenceCap: limit,
			Reason:        fmt.Sprintf("Dates differ by %d days (weak match)", days),
		}
	}

	return DateMatch{
		Score:    0,
		DaysDiff: days,
		IsMatch:  false,
		Reason:   fmt.Sprintf("Dates differ by %d days (exceeds %d-day threshold)", days, maxDays),
	}
}

// IsDateInPeriod reports whether d falls inside [start, end].
func IsDateInPeriod(d, start, end civil.Date) bool {
	return !d.Before(start) && !d.After(end)
}

// DateSearchWindow returns the inclusive window of toleranceDays around d.
func DateSearchWindow(d civil.Date, toleranceDays int) (civil.Date, civil.Date) {
	return d.AddDays(-toleranceDays), d.AddDays(toleranceDays)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
