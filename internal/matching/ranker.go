package matching

import (
	"fmt"
	"sort"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

// MatchStatus summarises how an extracted transaction relates to the ledger.
type MatchStatus string

const (
	StatusMatched         MatchStatus = "matched"
	StatusMultipleMatches MatchStatus = "multiple_matches"
	StatusNoMatch         MatchStatus = "no_match"
	StatusLowConfidence   MatchStatus = "low_confidence"
)

// Suggestion is the reconciliation outcome for one extracted transaction.
// BestMatch is set only when Status is StatusMatched.
type Suggestion struct {
	Transaction    domain.ExtractedTransaction `json:"statement_transaction"`
	Status         MatchStatus                 `json:"status"`
	BestMatch      *MatchCandidate             `json:"best_match,omitempty"`
	Candidates     []MatchCandidate            `json:"candidates,omitempty"`
	Confidence     int                         `json:"confidence"`
	Reason         string                      `json:"reason"`
	RequiresReview bool                        `json:"requires_review"`
	IsNew          bool                        `json:"is_new"`
}

// MatchedTransactionID returns the ledger ID of the best match, or "".
func (s Suggestion) MatchedTransactionID() string {
	if s.BestMatch == nil {
		return ""
	}
	return s.BestMatch.Target.ID
}

// CanAutoApprove reports whether the suggestion can be applied without review.
func (s Suggestion) CanAutoApprove() bool {
	return s.Status == StatusMatched &&
		s.BestMatch != nil &&
		s.BestMatch.Confidence == ConfidenceHigh &&
		!s.RequiresReview
}

// NewSuggestion is the outcome for a transaction that was never matched.
func NewSuggestion(tx domain.ExtractedTransaction, reason string) Suggestion {
	return Suggestion{
		Transaction: tx,
		Status:      StatusNoMatch,
		Reason:      reason,
		IsNew:       true,
	}
}

// Rank orders scored candidates and decides the status for tx.
func Rank(tx domain.ExtractedTransaction, scored []MatchCandidate, cfg Config) Suggestion {
	cfg = cfg.withDefaults()

	if len(scored) == 0 {
		return NewSuggestion(tx, "No candidate transactions provided")
	}

	ranked := make([]MatchCandidate, len(scored))
	copy(ranked, scored)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	var valid []MatchCandidate
	for _, c := range ranked {
		if c.IsMatch {
			valid = append(valid, c)
		}
	}

	status, reason := determineStatus(valid, cfg)

	s := Suggestion{
		Transaction: tx,
		Status:      status,
		Reason:      reason,
	}
	if len(valid) > cfg.MaxSuggestions {
		s.Candidates = valid[:cfg.MaxSuggestions]
	} else {
		s.Candidates = valid
	}
	if len(s.Candidates) > 0 {
		s.Confidence = s.Candidates[0].Score
	}
	if status == StatusMatched {
		best := s.Candidates[0]
		s.BestMatch = &best
	}
	s.IsNew = s.BestMatch == nil
	s.RequiresReview = status == StatusMultipleMatches ||
		status == StatusLowConfidence ||
		(status == StatusMatched && s.BestMatch.Confidence != ConfidenceHigh)

	return s
}

func determineStatus(valid []MatchCandidate, cfg Config) (MatchStatus, string) {
	if len(valid) == 0 {
		return StatusNoMatch, "No candidates met minimum matching threshold"
	}

	top := valid[0].Score
	if top < cfg.LowConfidenceThreshold {
		return StatusLowConfidence, fmt.Sprintf("Best match score (%d) below confidence threshold (%d)", top, cfg.LowConfidenceThreshold)
	}

	if top >= cfg.AutoMatchThreshold {
		if len(valid) == 1 {
			return StatusMatched, fmt.Sprintf("Single high-confidence match found (score: %d)", top)
		}
		second := valid[1].Score
		if gap := top - second; gap >= cfg.ClearWinnerGap {
			return StatusMatched, fmt.Sprintf("Clear winner with %d-point gap (%d vs %d)", gap, top, second)
		}
		return StatusMultipleMatches, fmt.Sprintf("Multiple high-confidence matches (top: %d, second: %d)", top, second)
	}

	if len(valid) > 1 {
		return StatusMultipleMatches, fmt.Sprintf("Multiple candidates found (top score: %d)", top)
	}
	return StatusMatched, fmt.Sprintf("Single match found (score: %d)", top)
}

// Summary counts suggestions by status.
type Summary struct {
	Total           int `json:"total"`
	Matched         int `json:"matched"`
	MultipleMatches int `json:"multiple_matches"`
	NoMatch         int `json:"no_match"`
	LowConfidence   int `json:"low_confidence"`
	RequiresReview  int `json:"requires_review"`
}

// Summarize tallies a batch of suggestions.
func Summarize(suggestions []Suggestion) Summary {
	sum := Summary{Total: len(suggestions)}
	for _, s := range suggestions {
		switch s.Status {
		case StatusMatched:
			sum.Matched++
		case StatusMultipleMatches:
			sum.MultipleMatches++
		case StatusNoMatch:
			sum.NoMatch++
		case StatusLowConfidence:
			sum.LowConfidence++
		}
		if s.RequiresReview {
			sum.RequiresReview++
		}
	}
	return sum
}
