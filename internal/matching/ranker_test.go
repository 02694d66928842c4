package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(id string, score int) MatchCandidate {
	return MatchCandidate{
		Target:     ledgerTx(id, "2024-01-15", "Vendor", 10, "USD"),
		Score:      score,
		Confidence: ConfidenceFor(score),
		IsMatch:    score >= MediumConfidenceThreshold,
	}
}

func TestRank(t *testing.T) {
	tx := extracted("2024-01-15", "Vendor", 10, "USD")

	tests := []struct {
		name       string
		scored     []MatchCandidate
		cfg        Config
		wantStatus MatchStatus
		wantBest   string
		wantReview bool
	}{
		{name: "no candidates", wantStatus: StatusNoMatch},
		{name: "none valid", scored: []MatchCandidate{candidate("a", 40), candidate("b", 20)}, wantStatus: StatusNoMatch},
		{name: "single high", scored: []MatchCandidate{candidate("a", 95)}, wantStatus: StatusMatched, wantBest: "a"},
		{name: "clear winner", scored: []MatchCandidate{candidate("b", 80), candidate("a", 95)}, wantStatus: StatusMatched, wantBest: "a"},
		{name: "close high scores", scored: []MatchCandidate{candidate("a", 95), candidate("b", 92)}, wantStatus: StatusMultipleMatches, wantReview: true},
		{name: "single medium", scored: []MatchCandidate{candidate("a", 70)}, wantStatus: StatusMatched, wantBest: "a", wantReview: true},
		{name: "multiple medium", scored: []MatchCandidate{candidate("a", 70), candidate("b", 65)}, wantStatus: StatusMultipleMatches, wantReview: true},
		{
			name:       "below custom confidence threshold",
			scored:     []MatchCandidate{candidate("a", 70)},
			cfg:        Config{LowConfidenceThreshold: 80},
			wantStatus: StatusLowConfidence,
			wantReview: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Rank(tx, tt.scored, tt.cfg)

			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantBest, got.MatchedTransactionID())
			assert.Equal(t, tt.wantReview, got.RequiresReview)
			assert.Equal(t, tt.wantBest == "", got.IsNew)
			assert.NotEmpty(t, got.Reason)
			assert.Equal(t, tx, got.Transaction)
		})
	}
}

func TestRank_TrimsSuggestions(t *testing.T) {
	tx := extracted("2024-01-15", "Vendor", 10, "USD")
	scored := []MatchCandidate{
		candidate("a", 60), candidate("b", 70), candidate("c", 65), candidate("d", 58), candidate("e", 75),
	}

	got := Rank(tx, scored, DefaultConfig())

	require.Len(t, got.Candidates, 3)
	assert.Equal(t, "e", got.Candidates[0].Target.ID)
	assert.Equal(t, "b", got.Candidates[1].Target.ID)
	assert.Equal(t, "c", got.Candidates[2].Target.ID)
	assert.Equal(t, 75, got.Confidence)
}

func TestSuggestion_CanAutoApprove(t *testing.T) {
	tx := extracted("2024-01-15", "Vendor", 10, "USD")

	assert.True(t, Rank(tx, []MatchCandidate{candidate("a", 95)}, DefaultConfig()).CanAutoApprove())
	assert.False(t, Rank(tx, []MatchCandidate{candidate("a", 70)}, DefaultConfig()).CanAutoApprove())
	assert.False(t, NewSuggestion(tx, "skipped").CanAutoApprove())
}

func TestSummarize(t *testing.T) {
	tx := extracted("2024-01-15", "Vendor", 10, "USD")
	suggestions := []Suggestion{
		Rank(tx, []MatchCandidate{candidate("a", 95)}, DefaultConfig()),
		Rank(tx, []MatchCandidate{candidate("a", 95), candidate("b", 93)}, DefaultConfig()),
		NewSuggestion(tx, "skipped"),
	}

	got := Summarize(suggestions)
	assert.Equal(t, Summary{Total: 3, Matched: 1, MultipleMatches: 1, NoMatch: 1, RequiresReview: 1}, got)
}
