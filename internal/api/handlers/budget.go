package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-bridge/internal/api/middleware"
	"github.com/dvloznov/finance-bridge/internal/budget"
)

// Evaluator runs budget alerts and summaries.
type Evaluator interface {
	Evaluate(ctx context.Context, month string) (budget.Report, error)
	MonthlySummary(ctx context.Context, month string) (budget.Summary, error)
}

// BudgetHandler serves the manual alert and summary triggers.
type BudgetHandler struct {
	engine   Evaluator
	location *time.Location
	log      zerolog.Logger
	now      func() time.Time
}

// NewBudgetHandler creates a budget handler. Months are computed in loc.
func NewBudgetHandler(engine Evaluator, loc *time.Location, log zerolog.Logger) *BudgetHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &BudgetHandler{engine: engine, location: loc, log: log, now: time.Now}
}

// RunAlerts handles POST /alerts/run. An optional ?month=YYYY-MM overrides
// the current month.
func (h *BudgetHandler) RunAlerts(w http.ResponseWriter, r *http.Request) {
	month, ok := h.month(w, r)
	if !ok {
		return
	}
	if _, err := h.engine.Evaluate(r.Context(), month); err != nil {
		h.log.Error().Err(err).Str("month", month).Msg("Manual budget alert failed")
		middleware.WriteText(w, http.StatusInternalServerError, "error")
		return
	}
	middleware.WriteText(w, http.StatusOK, "ok")
}

// RunSummary handles POST /summary/run. It does not check the calendar.
func (h *BudgetHandler) RunSummary(w http.ResponseWriter, r *http.Request) {
	month, ok := h.month(w, r)
	if !ok {
		return
	}
	if _, err := h.engine.MonthlySummary(r.Context(), month); err != nil {
		h.log.Error().Err(err).Str("month", month).Msg("Manual monthly summary failed")
		middleware.WriteText(w, http.StatusInternalServerError, "error")
		return
	}
	middleware.WriteText(w, http.StatusOK, "ok")
}

func (h *BudgetHandler) month(w http.ResponseWriter, r *http.Request) (string, bool) {
	month := r.URL.Query().Get("month")
	if month == "" {
		return budget.CurrentMonth(h.now(), h.location), true
	}
	if _, err := time.Parse("2006-01", month); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return "", false
	}
	return month, true
}
