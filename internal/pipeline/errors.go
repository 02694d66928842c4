package pipeline

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

// Error kinds. Every error returned by Process matches exactly one of them with errors.Is.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrTransport   = errors.New("transport failure")
	ErrValidation  = errors.New("validation failed")
	ErrExtraction  = errors.New("extraction failed")
	ErrPersistence = errors.New("persistence failure")
)

// StageError is a failure attributed to one pipeline stage.
// Error returns Msg as is; it is the text shown to users and persisted on the upload.
type StageError struct {
	Stage domain.Stage
	Kind  error
	Msg   string
	Err   error
}

func (e *StageError) Error() string {
	return e.Msg
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func stageErr(stage domain.Stage, kind, cause error, format string, args ...any) *StageError {
	return &StageError{Stage: stage, Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// asStageError classifies an arbitrary error; unknown errors become persistence
// failures of the given stage.
func asStageError(stage domain.Stage, err error) *StageError {
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	return &StageError{Stage: stage, Kind: ErrPersistence, Msg: err.Error(), Err: err}
}

// truncateError bounds a message to maxErrorLength bytes before it is stored,
// cutting on a rune boundary so the result stays valid UTF-8.
func truncateError(msg string) string {
	if len(msg) <= maxErrorLength {
		return msg
	}
	cut := maxErrorLength
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
