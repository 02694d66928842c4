package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/dvloznov/statement-reconciler/internal/api/middleware"
	"github.com/dvloznov/statement-reconciler/internal/domain"
	"github.com/dvloznov/statement-reconciler/internal/jobs"
	"github.com/dvloznov/statement-reconciler/internal/logger"
	"github.com/dvloznov/statement-reconciler/internal/pipeline"
)

// Processor is the part of *pipeline.Processor the upload endpoints use.
type Processor interface {
	jobs.StatementProcessor
	GetStatus(ctx context.Context, uploadID string) (*pipeline.UploadStatusView, error)
}

// UploadsHandler handles statement upload endpoints.
type UploadsHandler struct {
	processor Processor
	publisher jobs.Publisher
}

// NewUploadsHandler creates a new uploads handler.
func NewUploadsHandler(processor Processor, publisher jobs.Publisher) *UploadsHandler {
	return &UploadsHandler{processor: processor, publisher: publisher}
}

type processRequest struct {
	SkipMatching bool   `json:"skip_matching"`
	Parser       string `json:"parser"`
}

// Process handles POST /api/v1/uploads/{id}/process.
// With ?stream=true the pipeline runs in the request and progress is streamed
// as Server-Sent Events; otherwise a job is enqueued and 202 returned.
func (h *UploadsHandler) Process(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "id")

	req, err := decodeProcessRequest(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if stream, _ := strconv.ParseBool(r.URL.Query().Get("stream")); stream {
		h.stream(w, r, uploadID, req, h.processor.Process)
		return
	}

	view, ok := h.lookup(w, r, uploadID)
	if !ok {
		return
	}
	switch view.Status {
	case domain.UploadStatusProcessing:
		middleware.WriteError(w, http.StatusConflict, "Statement is already being processed")
		return
	case domain.UploadStatusCompleted:
		middleware.WriteError(w, http.StatusConflict, "Statement has already been processed")
		return
	}

	h.enqueue(w, r, &jobs.ProcessStatementJob{
		UploadID:     uploadID,
		SkipMatching: req.SkipMatching,
		Parser:       req.Parser,
	})
}

// Retry handles POST /api/v1/uploads/{id}/retry. Only failed uploads are accepted.
func (h *UploadsHandler) Retry(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "id")

	req, err := decodeProcessRequest(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if stream, _ := strconv.ParseBool(r.URL.Query().Get("stream")); stream {
		h.stream(w, r, uploadID, req, h.processor.Retry)
		return
	}

	view, ok := h.lookup(w, r, uploadID)
	if !ok {
		return
	}
	if view.Status != domain.UploadStatusFailed {
		middleware.WriteError(w, http.StatusConflict,
			fmt.Sprintf("Cannot retry: status is '%s', expected 'failed'", view.Status))
		return
	}

	h.enqueue(w, r, &jobs.ProcessStatementJob{
		UploadID:     uploadID,
		Retry:        true,
		SkipMatching: req.SkipMatching,
		Parser:       req.Parser,
	})
}

// Status handles GET /api/v1/uploads/{id}/status.
func (h *UploadsHandler) Status(w http.ResponseWriter, r *http.Request) {
	view, ok := h.lookup(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, view)
}

func (h *UploadsHandler) lookup(w http.ResponseWriter, r *http.Request, uploadID string) (*pipeline.UploadStatusView, bool) {
	view, err := h.processor.GetStatus(r.Context(), uploadID)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("upload_id", uploadID).Msg("Failed to load upload status")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load upload status")
		return nil, false
	}
	if view == nil {
		middleware.WriteError(w, http.StatusNotFound, "Statement upload not found: "+uploadID)
		return nil, false
	}
	return view, true
}

func (h *UploadsHandler) enqueue(w http.ResponseWriter, r *http.Request, job *jobs.ProcessStatementJob) {
	log := logger.FromContext(r.Context())

	if err := h.publisher.PublishProcessStatement(r.Context(), job); err != nil {
		log.Error().Err(err).Str("upload_id", job.UploadID).Msg("Failed to enqueue processing job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue processing job")
		return
	}

	log.Info().Str("job_id", job.JobID).Str("upload_id", job.UploadID).Bool("retry", job.Retry).Msg("Processing job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":    job.JobID,
		"upload_id": job.UploadID,
		"status":    string(jobs.JobStatusPending),
	})
}

type runFunc func(ctx context.Context, uploadID string, opts pipeline.ProcessOptions) (*pipeline.ProcessingResult, error)

func (h *UploadsHandler) stream(w http.ResponseWriter, r *http.Request, uploadID string, req processRequest, run runFunc) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		middleware.WriteError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sse := &sseWriter{w: w, flusher: flusher}
	opts := pipeline.ProcessOptions{
		SkipMatching: req.SkipMatching,
		Parser:       req.Parser,
		OnProgress: func(p domain.ProcessingProgress) {
			sse.send("progress", p)
		},
	}

	result, err := run(r.Context(), uploadID, opts)
	if err != nil {
		sse.finish("error", map[string]interface{}{
			"error":  err.Error(),
			"status": statusForError(err),
			"result": result,
		})
		return
	}
	sse.finish("result", result)
}

// sseWriter serialises events from the progress goroutine and the handler.
// Events after finish are dropped.
type sseWriter struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	done    bool
}

func (s *sseWriter) send(event string, data interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write(event, data)
}

func (s *sseWriter) finish(event string, data interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write(event, data)
	s.done = true
}

func (s *sseWriter) write(event string, data interface{}) {
	if s.done {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload)
	s.flusher.Flush()
}

func decodeProcessRequest(r *http.Request) (processRequest, error) {
	var req processRequest
	if r.Body == nil {
		return req, nil
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	if errors.Is(err, io.EOF) {
		return req, nil
	}
	return req, err
}
