package handlers

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/statement-reconciler/internal/api/middleware"
	"github.com/dvloznov/statement-reconciler/internal/currency"
	"github.com/dvloznov/statement-reconciler/internal/logger"
)

// RatesHandler serves currency conversions from stored exchange rates.
type RatesHandler struct {
	repo currency.RateRepository
}

// NewRatesHandler creates a new rates handler.
func NewRatesHandler(repo currency.RateRepository) *RatesHandler {
	return &RatesHandler{repo: repo}
}

// Convert handles GET /api/v1/rates/convert?amount=&from=&to=&date=YYYY-MM-DD
func (h *RatesHandler) Convert(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	amount, err := strconv.ParseFloat(query.Get("amount"), 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
		middleware.WriteError(w, http.StatusBadRequest, "amount must be a number")
		return
	}
	from, to := query.Get("from"), query.Get("to")
	if from == "" || to == "" {
		middleware.WriteError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	date, err := civil.ParseDate(query.Get("date"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid date format, expected YYYY-MM-DD")
		return
	}

	result, err := currency.ConvertAmount(r.Context(), h.repo, amount, from, to, date)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("from", from).Str("to", to).Msg("Failed to convert amount")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to convert amount")
		return
	}
	if result == nil {
		middleware.WriteError(w, http.StatusNotFound,
			fmt.Sprintf("No exchange rate available for %s/%s around %s", from, to, date))
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}
