package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

// SaveExtraction appends the extraction payload for an upload.
func (s *Store) SaveExtraction(ctx context.Context, rec domain.ExtractionRecord) error {
	warnings, err := json.Marshal(nonNil(rec.Warnings))
	if err != nil {
		return fmt.Errorf("SaveExtraction: encoding warnings: %w", err)
	}
	txs, err := json.Marshal(rec.Transactions)
	if err != nil {
		return fmt.Errorf("SaveExtraction: encoding transactions: %w", err)
	}
	log, err := json.Marshal(rec.Log)
	if err != nil {
		return fmt.Errorf("SaveExtraction: encoding log: %w", err)
	}
	suggestions := string(rec.Suggestions)
	if suggestions == "" {
		suggestions = "[]"
	}

	var start, end sql.NullString
	if rec.Period != nil {
		start = nullString(rec.Period.Start.String())
		end = nullString(rec.Period.End.String())
	}

	_, err = s.db.ExecContext(ctx, `
	INSERT INTO statement_extractions
	(upload_id, parser_used, page_count, confidence, statement_period_start, statement_period_end,
	 warnings_json, transactions_json, suggestions_json, log_json, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.UploadID, rec.ParserUsed, rec.PageCount, rec.Confidence, start, end,
		string(warnings), string(txs), suggestions, string(log), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("SaveExtraction: %w", err)
	}
	return nil
}

// LatestExtraction returns the most recent extraction for an upload, or nil.
func (s *Store) LatestExtraction(ctx context.Context, uploadID string) (*domain.ExtractionRecord, error) {
	var (
		rec                              domain.ExtractionRecord
		parser                           sql.NullString
		start, end                       sql.NullString
		warnings, txs, suggestions, logs string
	)
	err := s.db.QueryRowContext(ctx, `
	SELECT upload_id, parser_used, page_count, confidence, statement_period_start, statement_period_end,
	       warnings_json, transactions_json, suggestions_json, log_json
	FROM statement_extractions
	WHERE upload_id = ?
	ORDER BY id DESC
	LIMIT 1
	`, uploadID).Scan(&rec.UploadID, &parser, &rec.PageCount, &rec.Confidence, &start, &end,
		&warnings, &txs, &suggestions, &logs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LatestExtraction: %w", err)
	}

	rec.ParserUsed = parser.String
	rec.Suggestions = json.RawMessage(suggestions)
	if err := json.Unmarshal([]byte(warnings), &rec.Warnings); err != nil {
		return nil, fmt.Errorf("LatestExtraction: warnings: %w", err)
	}
	if err := json.Unmarshal([]byte(txs), &rec.Transactions); err != nil {
		return nil, fmt.Errorf("LatestExtraction: transactions: %w", err)
	}
	if err := json.Unmarshal([]byte(logs), &rec.Log); err != nil {
		return nil, fmt.Errorf("LatestExtraction: log: %w", err)
	}

	startDate, err := parseNullDate(start)
	if err != nil {
		return nil, fmt.Errorf("LatestExtraction: period start: %w", err)
	}
	endDate, err := parseNullDate(end)
	if err != nil {
		return nil, fmt.Errorf("LatestExtraction: period end: %w", err)
	}
	if startDate != nil && endDate != nil {
		rec.Period = &domain.StatementPeriod{Start: *startDate, End: *endDate}
	}
	return &rec, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
