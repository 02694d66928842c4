package bigquery

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

// UploadRow mirrors one row of statement_uploads.
type UploadRow struct {
	UploadID string `bigquery:"upload_id"` // REQUIRED
	UserID   string `bigquery:"user_id"`   // REQUIRED
	Filename string `bigquery:"filename"`  // REQUIRED
	FilePath string `bigquery:"file_path"` // REQUIRED
	Status   string `bigquery:"status"`    // REQUIRED

	TransactionsExtracted bigquery.NullInt64 `bigquery:"transactions_extracted"` // NULLABLE
	TransactionsMatched   bigquery.NullInt64 `bigquery:"transactions_matched"`   // NULLABLE
	TransactionsNew       bigquery.NullInt64 `bigquery:"transactions_new"`       // NULLABLE

	ExtractionStartedAt   bigquery.NullTimestamp `bigquery:"extraction_started_at"`   // NULLABLE
	ExtractionCompletedAt bigquery.NullTimestamp `bigquery:"extraction_completed_at"` // NULLABLE
	ExtractionError       bigquery.NullString    `bigquery:"extraction_error"`        // NULLABLE
	ExtractionLog         bigquery.NullJSON      `bigquery:"extraction_log"`          // NULLABLE JSON

	StatementPeriodStart bigquery.NullDate `bigquery:"statement_period_start"` // NULLABLE
	StatementPeriodEnd   bigquery.NullDate `bigquery:"statement_period_end"`   // NULLABLE

	CreatedAt time.Time `bigquery:"created_at"` // REQUIRED
}

// ToDomain converts the row into a StatementUpload.
func (r *UploadRow) ToDomain() (*domain.StatementUpload, error) {
	u := &domain.StatementUpload{
		ID:                    r.UploadID,
		UserID:                r.UserID,
		Filename:              r.Filename,
		FilePath:              r.FilePath,
		Status:                domain.UploadStatus(r.Status),
		TransactionsExtracted: int(r.TransactionsExtracted.Int64),
		TransactionsMatched:   int(r.TransactionsMatched.Int64),
		TransactionsNew:       int(r.TransactionsNew.Int64),
		ExtractionError:       r.ExtractionError.StringVal,
		CreatedAt:             r.CreatedAt,
	}
	if r.ExtractionStartedAt.Valid {
		t := r.ExtractionStartedAt.Timestamp
		u.ExtractionStartedAt = &t
	}
	if r.ExtractionCompletedAt.Valid {
		t := r.ExtractionCompletedAt.Timestamp
		u.ExtractionCompletedAt = &t
	}
	if r.StatementPeriodStart.Valid {
		d := r.StatementPeriodStart.Date
		u.PeriodStart = &d
	}
	if r.StatementPeriodEnd.Valid {
		d := r.StatementPeriodEnd.Date
		u.PeriodEnd = &d
	}
	if r.ExtractionLog.Valid && r.ExtractionLog.JSONVal != "" {
		if err := json.Unmarshal([]byte(r.ExtractionLog.JSONVal), &u.ExtractionLog); err != nil {
			return nil, fmt.Errorf("UploadRow.ToDomain: decoding extraction_log for %s: %w", r.UploadID, err)
		}
	}
	return u, nil
}

// buildUploadUpdate renders the SET clause and parameters for a patch.
// It returns an empty clause when the patch changes nothing.
func buildUploadUpdate(patch domain.UploadPatch) (string, []bigquery.QueryParameter, error) {
	var (
		sets   []string
		params []bigquery.QueryParameter
	)
	set := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = @%s", column, column))
		params = append(params, bigquery.QueryParameter{Name: column, Value: value})
	}

	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	if patch.TransactionsExtracted != nil {
		set("transactions_extracted", int64(*patch.TransactionsExtracted))
	}
	if patch.TransactionsMatched != nil {
		set("transactions_matched", int64(*patch.TransactionsMatched))
	}
	if patch.TransactionsNew != nil {
		set("transactions_new", int64(*patch.TransactionsNew))
	}
	if patch.ExtractionStartedAt != nil {
		set("extraction_started_at", *patch.ExtractionStartedAt)
	}
	if patch.ExtractionCompletedAt != nil {
		set("extraction_completed_at", *patch.ExtractionCompletedAt)
	}
	if patch.ExtractionError != nil {
		if *patch.ExtractionError == "" {
			sets = append(sets, "extraction_error = NULL")
		} else {
			set("extraction_error", *patch.ExtractionError)
		}
	}
	if patch.ExtractionLog != nil {
		encoded, err := json.Marshal(patch.ExtractionLog)
		if err != nil {
			return "", nil, fmt.Errorf("buildUploadUpdate: encoding extraction_log: %w", err)
		}
		sets = append(sets, "extraction_log = PARSE_JSON(@extraction_log)")
		params = append(params, bigquery.QueryParameter{Name: "extraction_log", Value: string(encoded)})
	}
	if patch.PeriodStart != nil {
		set("statement_period_start", *patch.PeriodStart)
	}
	if patch.PeriodEnd != nil {
		set("statement_period_end", *patch.PeriodEnd)
	}

	return strings.Join(sets, ",\n\t\t    "), params, nil
}
