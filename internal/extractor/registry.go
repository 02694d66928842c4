package extractor

import (
	"sort"
	"strings"
)

// GenericParserKey is used when the statement's bank is not recognised.
const GenericParserKey = "generic"

// ParserInfo describes one supported statement format.
type ParserInfo struct {
	Key             string `json:"key"`
	Name            string `json:"name"`
	DefaultCurrency string `json:"default_currency"`

	// Hints are extra prompt instructions for this bank's layout.
	Hints []string `json:"-"`
}

var parsers = map[string]ParserInfo{
	GenericParserKey: {
		Key:             GenericParserKey,
		Name:            "Generic Bank Statement",
		DefaultCurrency: "USD",
		Hints: []string{
			"Use the currency printed on the statement; if none is printed, use the account currency.",
		},
	},
	"chase": {
		Key:             "chase",
		Name:            "Chase Credit Card Statement",
		DefaultCurrency: "USD",
		Hints: []string{
			"Transactions are listed under \"ACCOUNT ACTIVITY\" with a MM/DD date; take the year from the statement closing date.",
			"Purchases are debits; \"Payment Thank You\" lines and returns are credits.",
		},
	},
	"amex": {
		Key:             "amex",
		Name:            "American Express Statement",
		DefaultCurrency: "USD",
		Hints: []string{
			"Foreign spend lines show the original amount and currency followed by the USD amount; report the USD amount.",
			"Payments and credits are listed in their own section and are credits.",
		},
	},
	"pnc": {
		Key:             "pnc",
		Name:            "PNC Bank Statement",
		DefaultCurrency: "USD",
		Hints: []string{
			"Deposits and Other Additions are credits; Checks, Debit Card Purchases and Other Deductions are debits.",
		},
	},
	"kasikorn": {
		Key:             "kasikorn",
		Name:            "Kasikorn Bank (KBank) Statement",
		DefaultCurrency: "THB",
		Hints: []string{
			"Dates may use the Buddhist calendar (year + 543); convert them to the Gregorian calendar.",
			"Withdrawal columns are debits and deposit columns are credits.",
		},
	},
	"bangkok-bank": {
		Key:             "bangkok-bank",
		Name:            "Bangkok Bank Statement",
		DefaultCurrency: "THB",
		Hints: []string{
			"Dates are DD/MM/YY and may use the Buddhist calendar; convert them to the Gregorian calendar.",
			"Thai descriptions should be kept as printed.",
		},
	},
}

// LookupParser returns the parser registered under key.
func LookupParser(key string) (ParserInfo, bool) {
	p, ok := parsers[strings.ToLower(strings.TrimSpace(key))]
	return p, ok
}

// AvailableParsers returns every registered parser key in sorted order.
func AvailableParsers() []string {
	keys := make([]string, 0, len(parsers))
	for k := range parsers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
