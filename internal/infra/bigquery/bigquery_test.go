package bigquery

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

func TestTablesName(t *testing.T) {
	tables := Tables{ProjectID: "proj", DatasetID: "reconciler"}
	if got := tables.Name(UploadsTable); got != "`proj.reconciler.statement_uploads`" {
		t.Errorf("Name() = %s", got)
	}
	if got := (Tables{DatasetID: "reconciler"}).Name(ExchangeRatesTable); got != "`reconciler.exchange_rates`" {
		t.Errorf("Name() without project = %s", got)
	}
}

func TestAffectedRows(t *testing.T) {
	tests := []struct {
		name   string
		status *bigquery.JobStatus
		want   int64
	}{
		{"nil status", nil, 0},
		{"no statistics", &bigquery.JobStatus{}, 0},
		{"not a query job", &bigquery.JobStatus{Statistics: &bigquery.JobStatistics{Details: &bigquery.LoadStatistics{}}}, 0},
		{"one row", &bigquery.JobStatus{Statistics: &bigquery.JobStatistics{Details: &bigquery.QueryStatistics{NumDMLAffectedRows: 1}}}, 1},
		{"no rows", &bigquery.JobStatus{Statistics: &bigquery.JobStatistics{Details: &bigquery.QueryStatistics{}}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := affectedRows(tt.status); got != tt.want {
				t.Errorf("affectedRows() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBuildUploadUpdate(t *testing.T) {
	t.Run("empty patch", func(t *testing.T) {
		clause, params, err := buildUploadUpdate(domain.UploadPatch{})
		if err != nil {
			t.Fatal(err)
		}
		if clause != "" || len(params) != 0 {
			t.Errorf("expected no-op, got %q %v", clause, params)
		}
	})

	t.Run("completed patch", func(t *testing.T) {
		status := domain.UploadStatusCompleted
		extracted, matched, created := 5, 2, 3
		empty := ""
		start := civil.Date{Year: 2024, Month: 1, Day: 1}
		log := []domain.ProcessingProgress{{Step: domain.StageCompleted, Percent: 100, Message: "done"}}

		clause, params, err := buildUploadUpdate(domain.UploadPatch{
			Status:                &status,
			TransactionsExtracted: &extracted,
			TransactionsMatched:   &matched,
			TransactionsNew:       &created,
			ExtractionError:       &empty,
			ExtractionLog:         log,
			PeriodStart:           &start,
		})
		if err != nil {
			t.Fatal(err)
		}

		for _, want := range []string{
			"status = @status",
			"transactions_extracted = @transactions_extracted",
			"transactions_new = @transactions_new",
			"extraction_error = NULL",
			"extraction_log = PARSE_JSON(@extraction_log)",
			"statement_period_start = @statement_period_start",
		} {
			if !strings.Contains(clause, want) {
				t.Errorf("clause missing %q:\n%s", want, clause)
			}
		}
		if strings.Contains(clause, "statement_period_end") {
			t.Errorf("unset field leaked into clause:\n%s", clause)
		}

		byName := map[string]interface{}{}
		for _, p := range params {
			byName[p.Name] = p.Value
		}
		if byName["status"] != "completed" {
			t.Errorf("status param = %v", byName["status"])
		}
		if byName["transactions_matched"] != int64(2) {
			t.Errorf("transactions_matched param = %v", byName["transactions_matched"])
		}
		if _, ok := byName["extraction_error"]; ok {
			t.Error("cleared error must not be passed as a parameter")
		}
		var decoded []domain.ProcessingProgress
		if err := json.Unmarshal([]byte(byName["extraction_log"].(string)), &decoded); err != nil {
			t.Fatalf("extraction_log param is not JSON: %v", err)
		}
		if len(decoded) != 1 || decoded[0].Step != domain.StageCompleted {
			t.Errorf("unexpected decoded log %+v", decoded)
		}
	})

	t.Run("failure message", func(t *testing.T) {
		msg := "Failed to download statement: boom"
		clause, params, err := buildUploadUpdate(domain.UploadPatch{ExtractionError: &msg})
		if err != nil {
			t.Fatal(err)
		}
		if clause != "extraction_error = @extraction_error" {
			t.Errorf("clause = %q", clause)
		}
		if len(params) != 1 || params[0].Value != msg {
			t.Errorf("params = %v", params)
		}
	})
}

func TestUploadRowToDomain(t *testing.T) {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	row := UploadRow{
		UploadID:              "u1",
		UserID:                "user-1",
		Filename:              "march.pdf",
		FilePath:              "gs://bucket/march.pdf",
		Status:                "failed",
		TransactionsExtracted: bigquery.NullInt64{Int64: 4, Valid: true},
		ExtractionStartedAt:   bigquery.NullTimestamp{Timestamp: started, Valid: true},
		ExtractionError:       bigquery.NullString{StringVal: "boom", Valid: true},
		ExtractionLog:         bigquery.NullJSON{JSONVal: `[{"step":"downloading","percent":10,"message":"Downloading"}]`, Valid: true},
		StatementPeriodEnd:    bigquery.NullDate{Date: civil.Date{Year: 2024, Month: 3, Day: 31}, Valid: true},
	}

	u, err := row.ToDomain()
	if err != nil {
		t.Fatal(err)
	}
	if u.Status != domain.UploadStatusFailed || u.TransactionsExtracted != 4 || u.ExtractionError != "boom" {
		t.Errorf("unexpected upload %+v", u)
	}
	if u.ExtractionStartedAt == nil || !u.ExtractionStartedAt.Equal(started) {
		t.Errorf("started at = %v", u.ExtractionStartedAt)
	}
	if u.ExtractionCompletedAt != nil || u.PeriodStart != nil {
		t.Error("null columns must stay nil")
	}
	if u.PeriodEnd == nil || u.PeriodEnd.Day != 31 {
		t.Errorf("period end = %v", u.PeriodEnd)
	}
	if len(u.ExtractionLog) != 1 || u.ExtractionLog[0].Percent != 10 {
		t.Errorf("log = %+v", u.ExtractionLog)
	}

	row.ExtractionLog = bigquery.NullJSON{JSONVal: "{not json", Valid: true}
	if _, err := row.ToDomain(); err == nil {
		t.Error("expected error for corrupt log")
	}
}

func TestLedgerRowToDomain(t *testing.T) {
	row := LedgerRow{
		TransactionID:   "t1",
		UserID:          "user-1",
		TransactionDate: civil.Date{Year: 2024, Month: 3, Day: 5},
		Amount:          big.NewRat(-4250, 100),
		Currency:        "GBP",
		RawDescription:  bigquery.NullString{StringVal: "TESCO STORES 1234", Valid: true},
	}

	tx := row.ToDomain()
	if tx.Amount != -42.5 {
		t.Errorf("amount = %v", tx.Amount)
	}
	if tx.VendorOrDescription() != "TESCO STORES 1234" {
		t.Errorf("vendor fallback = %q", tx.VendorOrDescription())
	}
}

func TestNewExtractionRow(t *testing.T) {
	now := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	rec := domain.ExtractionRecord{
		UploadID:    "u1",
		ParserUsed:  "chase",
		PageCount:   3,
		Confidence:  0.9,
		Period:      &domain.StatementPeriod{Start: civil.Date{Year: 2024, Month: 3, Day: 1}, End: civil.Date{Year: 2024, Month: 3, Day: 31}},
		Suggestions: json.RawMessage(`[]`),
	}

	row, err := newExtractionRow(rec, now)
	if err != nil {
		t.Fatal(err)
	}
	if row.PageCount != 3 || row.ParserUsed != "chase" || !row.CreatedAt.Equal(now) {
		t.Errorf("unexpected row %+v", row)
	}
	if !row.StatementPeriodStart.Valid || !row.Suggestions.Valid || row.Suggestions.JSONVal != "[]" {
		t.Errorf("unexpected nullable columns %+v", row)
	}
	if row.Transactions.JSONVal != "null" {
		t.Errorf("transactions = %s", row.Transactions.JSONVal)
	}
}

func TestExtractionRowToDomain(t *testing.T) {
	rec := domain.ExtractionRecord{
		UploadID:   "u1",
		ParserUsed: "kasikorn",
		PageCount:  2,
		Confidence: 0.8,
		Period:     &domain.StatementPeriod{Start: civil.Date{Year: 2024, Month: 3, Day: 1}, End: civil.Date{Year: 2024, Month: 3, Day: 31}},
		Transactions: []domain.ExtractedTransaction{
			{TransactionDate: civil.Date{Year: 2024, Month: 3, Day: 5}, Description: "7-ELEVEN", Amount: 120, Currency: "THB", Type: domain.TransactionTypeDebit},
		},
		Log: []domain.ProcessingProgress{{Step: domain.StageSaving, Percent: 90, Message: "Saving results"}},
	}

	row, err := newExtractionRow(rec, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	got, err := row.ToDomain()
	if err != nil {
		t.Fatal(err)
	}
	if got.ParserUsed != "kasikorn" || got.PageCount != 2 || got.Period == nil || got.Period.End.Day != 31 {
		t.Errorf("unexpected record %+v", got)
	}
	if len(got.Transactions) != 1 || got.Transactions[0].Amount != 120 {
		t.Errorf("transactions = %+v", got.Transactions)
	}
	if string(got.Suggestions) != "[]" {
		t.Errorf("suggestions = %s", got.Suggestions)
	}
	if len(got.Log) != 1 || got.Log[0].Percent != 90 {
		t.Errorf("log = %+v", got.Log)
	}
}
