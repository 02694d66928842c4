package matching

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// VendorMatchType says how two vendor names were found to agree.
type VendorMatchType string

const (
	VendorMatchExact      VendorMatchType = "exact"
	VendorMatchNormalized VendorMatchType = "normalized"
	VendorMatchFuzzy      VendorMatchType = "fuzzy"
	VendorMatchAlias      VendorMatchType = "alias"
	VendorMatchNone       VendorMatchType = "none"
)

// Vendor score table.
const (
	VendorScoreExact      = 30
	VendorScoreNormalized = 28
	VendorScoreAlias      = 25
	VendorScoreHigh       = 25
	VendorScoreGood       = 20
	VendorScoreModerate   = 15
	VendorScoreLow        = 10

	// VendorMaxScore is the best possible vendor score.
	VendorMaxScore = VendorScoreExact

	defaultMinSimilarity = 60
)

// VendorMatch is the outcome of comparing two vendor names.
type VendorMatch struct {
	Score      int             `json:"score"`
	Similarity int             `json:"similarity"`
	IsMatch    bool            `json:"is_match"`
	MatchType  VendorMatchType `json:"match_type"`
	Reason     string          `json:"reason"`
}

// VendorOptions adjusts CompareVendors. A nil Aliases map uses DefaultAliases.
type VendorOptions struct {
	MinSimilarity int
	Aliases       map[string][]string
	StrictMode    bool
}

// DefaultAliases maps canonical vendor names to spellings seen on statements.
var DefaultAliases = map[string][]string{
	"starbucks": {"starbucks coffee", "sbux", "starbux"},
	"amazon":    {"amzn", "amz", "amazon.com", "amazon marketplace", "amazon prime"},
	"uber":      {"uber technologies", "uber trip", "uber eats"},
	"lyft":      {"lyft ride"},
	"mcdonalds": {"mcdonald's", "mcd", "mcds"},
	"7-eleven":  {"7-11", "7 eleven", "seven eleven"},
	"grab":      {"grab*", "grabpay", "grabfood"},
	"line":      {"line pay", "linepay", "line man"},
	"lazada":    {"lazada.co.th", "lazada thailand"},
	"shopee":    {"shopee.co.th", "shopeepay"},
	"foodpanda": {"food panda", "pandamart"},
}

type replacement struct {
	re   *regexp.Regexp
	with string
}

var normalizePatterns = []replacement{
	{regexp.MustCompile(`(?i)\s+(inc|llc|ltd|corp|co|company|corporation)\.?$`), ""},
	{regexp.MustCompile(`(?i)\s*#\d+$`), ""},
	{regexp.MustCompile(`\s*-\s*\d+$`), ""},
	{regexp.MustCompile(`\*`), ""},
	{regexp.MustCompile(`\s+`), " "},
	{regexp.MustCompile(`^[^\w]+|[^\w]+$`), ""},
}

var descriptionNoise = []replacement{
	{regexp.MustCompile(`(?i)^(POS\s+)?(ATM\s+)?(DEBIT\s+)?(CREDIT\s+)?(PURCHASE\s+)?(PAYMENT\s+)?`), ""},
	{regexp.MustCompile(`\s*\d{2}/\d{2}(/\d{2,4})?`), ""},
	{regexp.MustCompile(`\s*\d{4}-\d{2}-\d{2}`), ""},
	{regexp.MustCompile(`(?i)\s+[A-Z]*\d{4,}[A-Z0-9]*`), ""},
	{regexp.MustCompile(`(?i)\s+[A-Z]{2}\s*$`), ""},
}

// NormalizeVendorName lower-cases a vendor name and strips corporate suffixes,
// store numbers and punctuation.
func NormalizeVendorName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, p := range normalizePatterns {
		n = p.re.ReplaceAllString(n, p.with)
	}
	return strings.TrimSpace(n)
}

// ExtractVendorFromDescription pulls a vendor name out of a raw statement line
// such as "POS PURCHASE STARBUCKS #1234 01/15 1234567890 CA".
func ExtractVendorFromDescription(description string) string {
	v := description
	for _, p := range descriptionNoise {
		v = p.re.ReplaceAllString(v, p.with)
	}
	return NormalizeVendorName(v)
}

// CalculateSimilarity returns the Levenshtein similarity of a and b as a 0..100 percentage.
func CalculateSimilarity(a, b string) int {
	if a == b {
		return 100
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	dist := levenshtein.DistanceForStrings(ra, rb, levenshtein.DefaultOptionsWithSub)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	return int(math.Round((1 - float64(dist)/float64(maxLen)) * 100))
}

func canonicalName(name string, aliases map[string][]string) string {
	if _, ok := aliases[name]; ok {
		return name
	}
	for canonical, list := range aliases {
		for _, alias := range list {
			if NormalizeVendorName(alias) == name {
				return canonical
			}
		}
	}
	return ""
}

// CompareVendors scores how likely source and target name the same merchant.
func CompareVendors(source, target string, opts VendorOptions) VendorMatch {
	minSimilarity := opts.MinSimilarity
	if minSimilarity <= 0 {
		minSimilarity = defaultMinSimilarity
	}
	aliases := opts.Aliases
	if aliases == nil {
		aliases = DefaultAliases
	}

	if source == target {
		return VendorMatch{Score: VendorScoreExact, Similarity: 100, IsMatch: true, MatchType: VendorMatchExact, Reason: "Vendor names match exactly"}
	}

	ns, nt := NormalizeVendorName(source), NormalizeVendorName(target)
	if ns == nt {
		return VendorMatch{Score: VendorScoreNormalized, Similarity: 100, IsMatch: true, MatchType: VendorMatchNormalized, Reason: "Vendor names match after normalization"}
	}

	cs, ct := canonicalName(ns, aliases), canonicalName(nt, aliases)
	switch {
	case cs != "" && cs == ct:
		return VendorMatch{Score: VendorScoreAlias, Similarity: 100, IsMatch: true, MatchType: VendorMatchAlias, Reason: fmt.Sprintf("Both map to canonical name: %s", cs)}
	case cs != "" && nt == cs:
		return VendorMatch{Score: VendorScoreAlias, Similarity: 100, IsMatch: true, MatchType: VendorMatchAlias, Reason: fmt.Sprintf("%q is an alias for %q", source, target)}
	case ct != "" && ns == ct:
		return VendorMatch{Score: VendorScoreAlias, Similarity: 100, IsMatch: true, MatchType: VendorMatchAlias, Reason: fmt.Sprintf("%q is an alias for %q", target, source)}
	}

	similarity := CalculateSimilarity(ns, nt)

	if opts.StrictMode {
		return VendorMatch{Similarity: similarity, MatchType: VendorMatchNone, Reason: "No exact or alias match found (strict mode)"}
	}

	switch {
	case similarity >= 90:
		return VendorMatch{Score: VendorScoreHigh, Similarity: similarity, IsMatch: true, MatchType: VendorMatchFuzzy, Reason: fmt.Sprintf("High similarity match (%d%%)", similarity)}
	case similarity >= 80:
		return VendorMatch{Score: VendorScoreGood, Similarity: similarity, IsMatch: true, MatchType: VendorMatchFuzzy, Reason: fmt.Sprintf("Good similarity match (%d%%)", similarity)}
	case similarity >= 70:
		return VendorMatch{Score: VendorScoreModerate, Similarity: similarity, IsMatch: true, MatchType: VendorMatchFuzzy, Reason: fmt.Sprintf("Moderate similarity match (%d%%)", similarity)}
	case similarity >= minSimilarity:
		return VendorMatch{Score: VendorScoreLow, Similarity: similarity, IsMatch: true, MatchType: VendorMatchFuzzy, Reason: fmt.Sprintf("Low similarity match (%d%%)", similarity)}
	}

	return VendorMatch{
		Similarity: similarity,
		MatchType:  VendorMatchNone,
		Reason:     fmt.Sprintf("Similarity too low (%d%% < %d%% threshold)", similarity, minSimilarity),
	}
}
