package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-reconciler/internal/api/middleware"
	"github.com/dvloznov/statement-reconciler/internal/currency"
	"github.com/dvloznov/statement-reconciler/internal/jobs"
)

// Deps are the collaborators the API serves.
type Deps struct {
	Processor Processor
	Publisher jobs.Publisher
	Jobs      jobs.JobStore
	Rates     currency.RateRepository
	APIKey    string
	Log       zerolog.Logger
}

// NewRouter creates the chi router with all API routes mounted.
func NewRouter(d Deps) http.Handler {
	uploads := NewUploadsHandler(d.Processor, d.Publisher)
	jobsHandler := NewJobsHandler(d.Jobs)
	rates := NewRatesHandler(d.Rates)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.Log))
	r.Use(middleware.Recovery(d.Log))
	r.Use(middleware.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(d.APIKey))

		// Uploads.
		r.Post("/uploads/{id}/process", uploads.Process)
		r.Post("/uploads/{id}/retry", uploads.Retry)
		r.Get("/uploads/{id}/status", uploads.Status)

		// Jobs.
		r.Get("/jobs", jobsHandler.ListJobs)
		r.Get("/jobs/{id}", jobsHandler.GetJob)

		// Rates.
		r.Get("/rates/convert", rates.Convert)
	})

	return r
}
