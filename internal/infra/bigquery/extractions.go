package bigquery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

// ExtractionRow is one row of statement_extractions.
type ExtractionRow struct {
	UploadID   string  `bigquery:"upload_id"`   // REQUIRED
	ParserUsed string  `bigquery:"parser_used"` // NULLABLE
	PageCount  int64   `bigquery:"page_count"`  // NULLABLE
	Confidence float64 `bigquery:"confidence"`  // NULLABLE

	StatementPeriodStart bigquery.NullDate `bigquery:"statement_period_start"` // NULLABLE
	StatementPeriodEnd   bigquery.NullDate `bigquery:"statement_period_end"`   // NULLABLE

	Warnings     []string          `bigquery:"warnings"`     // REPEATED STRING
	Transactions bigquery.NullJSON `bigquery:"transactions"` // JSON
	Suggestions  bigquery.NullJSON `bigquery:"suggestions"`  // JSON
	Log          bigquery.NullJSON `bigquery:"log"`          // JSON

	CreatedAt time.Time `bigquery:"created_at"` // REQUIRED
}

// newExtractionRow encodes a record for insertion.
func newExtractionRow(rec domain.ExtractionRecord, now time.Time) (*ExtractionRow, error) {
	txs, err := json.Marshal(rec.Transactions)
	if err != nil {
		return nil, fmt.Errorf("newExtractionRow: encoding transactions: %w", err)
	}
	log, err := json.Marshal(rec.Log)
	if err != nil {
		return nil, fmt.Errorf("newExtractionRow: encoding log: %w", err)
	}

	row := &ExtractionRow{
		UploadID:     rec.UploadID,
		ParserUsed:   rec.ParserUsed,
		PageCount:    int64(rec.PageCount),
		Confidence:   rec.Confidence,
		Warnings:     rec.Warnings,
		Transactions: bigquery.NullJSON{JSONVal: string(txs), Valid: true},
		Log:          bigquery.NullJSON{JSONVal: string(log), Valid: true},
		CreatedAt:    now,
	}
	if len(rec.Suggestions) > 0 {
		row.Suggestions = bigquery.NullJSON{JSONVal: string(rec.Suggestions), Valid: true}
	}
	if rec.Period != nil {
		row.StatementPeriodStart = bigquery.NullDate{Date: rec.Period.Start, Valid: true}
		row.StatementPeriodEnd = bigquery.NullDate{Date: rec.Period.End, Valid: true}
	}
	return row, nil
}

// SaveExtraction stores the full extraction payload for an upload.
func (s *Store) SaveExtraction(ctx context.Context, rec domain.ExtractionRecord) error {
	return SaveExtractionWithClient(ctx, s.client, s.datasetID, rec)
}

// SaveExtractionWithClient inserts the extraction payload using the provided BigQuery client.
// Extractions are append-only, so a streaming insert is enough.
func SaveExtractionWithClient(ctx context.Context, client *bigquery.Client, datasetID string, rec domain.ExtractionRecord) error {
	row, err := newExtractionRow(rec, time.Now().UTC())
	if err != nil {
		return err
	}

	inserter := client.Dataset(datasetID).Table(ExtractionsTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("SaveExtraction: inserting row: %w", err)
	}
	return nil
}

// ToDomain decodes the row's JSON columns.
func (r *ExtractionRow) ToDomain() (*domain.ExtractionRecord, error) {
	rec := &domain.ExtractionRecord{
		UploadID:   r.UploadID,
		ParserUsed: r.ParserUsed,
		PageCount:  int(r.PageCount),
		Confidence: r.Confidence,
		Warnings:   r.Warnings,
	}
	if r.StatementPeriodStart.Valid && r.StatementPeriodEnd.Valid {
		rec.Period = &domain.StatementPeriod{Start: r.StatementPeriodStart.Date, End: r.StatementPeriodEnd.Date}
	}
	if r.Transactions.Valid {
		if err := json.Unmarshal([]byte(r.Transactions.JSONVal), &rec.Transactions); err != nil {
			return nil, fmt.Errorf("decoding transactions: %w", err)
		}
	}
	if r.Log.Valid {
		if err := json.Unmarshal([]byte(r.Log.JSONVal), &rec.Log); err != nil {
			return nil, fmt.Errorf("decoding log: %w", err)
		}
	}
	rec.Suggestions = json.RawMessage("[]")
	if r.Suggestions.Valid {
		rec.Suggestions = json.RawMessage(r.Suggestions.JSONVal)
	}
	return rec, nil
}

// LatestExtraction returns the most recent extraction for an upload, or nil.
func (s *Store) LatestExtraction(ctx context.Context, uploadID string) (*domain.ExtractionRecord, error) {
	return LatestExtractionWithClient(ctx, s.client, s.tables(), uploadID)
}

// LatestExtractionWithClient returns the most recent extraction using the provided BigQuery client.
func LatestExtractionWithClient(ctx context.Context, client *bigquery.Client, t Tables, uploadID string) (*domain.ExtractionRecord, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT upload_id, parser_used, page_count, confidence,
		       statement_period_start, statement_period_end,
		       warnings, transactions, suggestions, log, created_at
		FROM %s
		WHERE upload_id = @upload_id
		ORDER BY created_at DESC
		LIMIT 1
	`, t.Name(ExtractionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "upload_id", Value: uploadID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("LatestExtraction: reading query: %w", err)
	}

	var row ExtractionRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LatestExtraction: reading row: %w", err)
	}

	rec, err := row.ToDomain()
	if err != nil {
		return nil, fmt.Errorf("LatestExtraction: %w", err)
	}
	return rec, nil
}
