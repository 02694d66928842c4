package handlers

import (
	"errors"
	"net/http"

	"github.com/dvloznov/statement-reconciler/internal/pipeline"
)

// statusForError maps a pipeline error kind to an HTTP status.
func statusForError(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrValidation), errors.Is(err, pipeline.ErrExtraction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
