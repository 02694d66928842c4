package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeVendorName(t *testing.T) {
	tests := map[string]string{
		"Starbucks Coffee Inc.": "starbucks coffee",
		"SHELL #4521":           "shell",
		"AMAZON*MKTP":           "amazonmktp",
		"  Tesco   Stores - 12": "tesco stores",
		"...Netflix!":           "netflix",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeVendorName(in), "input %q", in)
	}
}

func TestExtractVendorFromDescription(t *testing.T) {
	assert.Equal(t, "starbucks", ExtractVendorFromDescription("POS PURCHASE STARBUCKS 01/15 1234567890 CA"))
	assert.Equal(t, "tesco", ExtractVendorFromDescription("DEBIT TESCO 2024-01-15"))
}

func TestCalculateSimilarity(t *testing.T) {
	assert.Equal(t, 100, CalculateSimilarity("grab", "grab"))
	assert.Equal(t, 0, CalculateSimilarity("", "grab"))
	assert.Equal(t, 89, CalculateSimilarity("starbuck", "starbucks"))
}

func TestCompareVendors(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		target   string
		opts     VendorOptions
		wantType VendorMatchType
		wantScr  int
	}{
		{name: "exact", source: "Starbucks", target: "Starbucks", wantType: VendorMatchExact, wantScr: 30},
		{name: "normalized", source: "STARBUCKS #12", target: "starbucks", wantType: VendorMatchNormalized, wantScr: 28},
		{name: "alias both sides", source: "AMZN", target: "Amazon", wantType: VendorMatchAlias, wantScr: 25},
		{name: "alias of canonical", source: "Uber Eats", target: "Uber", wantType: VendorMatchAlias, wantScr: 25},
		{name: "high similarity", source: "Walmart Supercentr", target: "Walmart Supercenter", wantType: VendorMatchFuzzy, wantScr: 25},
		{name: "good similarity", source: "starbuck", target: "starbucks", wantType: VendorMatchFuzzy, wantScr: 20},
		{name: "no match", source: "Apple", target: "Netflix", wantType: VendorMatchNone, wantScr: 0},
		{name: "strict skips fuzzy", source: "starbuck", target: "starbucks", opts: VendorOptions{StrictMode: true}, wantType: VendorMatchNone, wantScr: 0},
		{
			name:     "custom aliases",
			source:   "KFC",
			target:   "Kentucky Fried Chicken",
			opts:     VendorOptions{Aliases: map[string][]string{"kentucky fried chicken": {"kfc"}}},
			wantType: VendorMatchAlias,
			wantScr:  25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompareVendors(tt.source, tt.target, tt.opts)
			assert.Equal(t, tt.wantType, got.MatchType)
			assert.Equal(t, tt.wantScr, got.Score)
			assert.Equal(t, tt.wantScr > 0, got.IsMatch)
		})
	}
}
