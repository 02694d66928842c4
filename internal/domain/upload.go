package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// UploadStatus is the lifecycle state of a statement upload.
type UploadStatus string

const (
	UploadStatusPending    UploadStatus = "pending"
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusCompleted  UploadStatus = "completed"
	UploadStatusFailed     UploadStatus = "failed"
)

// StatementUpload is the persisted record of one uploaded statement file.
// It is created at upload time and afterwards mutated only by the processing pipeline.
type StatementUpload struct {
	ID       string       `json:"id"`
	UserID   string       `json:"user_id"`
	Filename string       `json:"filename"`
	FilePath string       `json:"file_path"`
	Status   UploadStatus `json:"status"`

	TransactionsExtracted int `json:"transactions_extracted"`
	TransactionsMatched   int `json:"transactions_matched"`
	TransactionsNew       int `json:"transactions_new"`

	ExtractionStartedAt   *time.Time           `json:"extraction_started_at,omitempty"`
	ExtractionCompletedAt *time.Time           `json:"extraction_completed_at,omitempty"`
	ExtractionError       string               `json:"extraction_error,omitempty"`
	ExtractionLog         []ProcessingProgress `json:"extraction_log,omitempty"`

	PeriodStart *civil.Date `json:"statement_period_start,omitempty"`
	PeriodEnd   *civil.Date `json:"statement_period_end,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// UploadPatch is a partial update of a StatementUpload. Nil fields are left untouched.
// A non-nil ExtractionError pointing at "" clears the stored error.
type UploadPatch struct {
	Status *UploadStatus

	TransactionsExtracted *int
	TransactionsMatched   *int
	TransactionsNew       *int

	ExtractionStartedAt   *time.Time
	ExtractionCompletedAt *time.Time
	ExtractionError       *string
	ExtractionLog         []ProcessingProgress

	PeriodStart *civil.Date
	PeriodEnd   *civil.Date
}

// StatementPeriod is the date range a statement covers.
type StatementPeriod struct {
	Start civil.Date `json:"start"`
	End   civil.Date `json:"end"`
}
