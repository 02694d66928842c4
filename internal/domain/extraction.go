package domain

import "encoding/json"

// ExtractionResult is what a statement extractor reports for one document.
type ExtractionResult struct {
	Success      bool                   `json:"success"`
	ParserKey    string                 `json:"parser_key"`
	Transactions []ExtractedTransaction `json:"transactions"`
	Errors       []string               `json:"errors,omitempty"`
	Warnings     []string               `json:"warnings,omitempty"`
	Confidence   float64                `json:"confidence"`
	PageCount    int                    `json:"page_count"`
	Period       *StatementPeriod       `json:"period,omitempty"`
}

// ExtractionRecord is the full extraction payload saved next to an upload once
// processing completes. Suggestions are stored as opaque JSON to keep this
// package free of matching types.
type ExtractionRecord struct {
	UploadID     string                 `json:"upload_id"`
	ParserUsed   string                 `json:"parser_used"`
	PageCount    int                    `json:"page_count"`
	Confidence   float64                `json:"confidence"`
	Period       *StatementPeriod       `json:"period,omitempty"`
	Warnings     []string               `json:"warnings,omitempty"`
	Transactions []ExtractedTransaction `json:"transactions"`
	Suggestions  json.RawMessage         `json:"suggestions"`
	Log          []ProcessingProgress   `json:"log"`
}

// ExtractOptions tunes a single extraction.
type ExtractOptions struct {
	// Parser forces a parser key. Empty lets the extractor detect the bank.
	Parser string
}
