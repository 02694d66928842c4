package pipeline

import (
	"bytes"
	"sort"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

// IsValidPDF reports whether data starts with the PDF file signature.
func IsValidPDF(data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic)
}

// statementPeriod prefers the period the extractor read off the statement and
// falls back to the span of transaction dates. It returns nil for an empty statement.
func statementPeriod(result *domain.ExtractionResult) *domain.StatementPeriod {
	if result.Period != nil {
		p := *result.Period
		if p.End.Before(p.Start) {
			p.Start, p.End = p.End, p.Start
		}
		return &p
	}
	if len(result.Transactions) == 0 {
		return nil
	}

	dates := make([]domain.ExtractedTransaction, len(result.Transactions))
	copy(dates, result.Transactions)
	sort.Slice(dates, func(i, j int) bool {
		return dates[i].TransactionDate.Before(dates[j].TransactionDate)
	})
	return &domain.StatementPeriod{
		Start: dates[0].TransactionDate,
		End:   dates[len(dates)-1].TransactionDate,
	}
}
