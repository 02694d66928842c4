package domain

import (
	"cloud.google.com/go/civil"
)

// TransactionType is the direction of money movement as printed on a statement.
type TransactionType string

const (
	TransactionTypeDebit  TransactionType = "debit"
	TransactionTypeCredit TransactionType = "credit"
)

// ExtractedTransaction is one row pulled out of a statement by the extractor.
// Amounts keep the sign the statement uses; matching compares magnitudes.
type ExtractedTransaction struct {
	TransactionDate civil.Date      `json:"transaction_date"`
	Description     string          `json:"description"`
	Amount          float64         `json:"amount"`
	Currency        string          `json:"currency"`
	Type            TransactionType `json:"type"`
}

// LedgerTransaction is a transaction already recorded in the user's ledger.
type LedgerTransaction struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	TransactionDate civil.Date `json:"transaction_date"`
	Amount          float64    `json:"amount"`
	Currency        string     `json:"currency"`
	Vendor          string     `json:"vendor"`
	Description     string     `json:"description,omitempty"`
}

// VendorOrDescription returns the vendor name, falling back to the description
// for ledger rows that were never enriched.
func (t LedgerTransaction) VendorOrDescription() string {
	if t.Vendor != "" {
		return t.Vendor
	}
	return t.Description
}
