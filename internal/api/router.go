// Package api assembles the bridge's HTTP surface.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-bridge/internal/api/handlers"
	"github.com/dvloznov/finance-bridge/internal/api/middleware"
)

// Handlers groups the endpoint handlers.
type Handlers struct {
	Webhook    *handlers.WebhookHandler
	Budget     *handlers.BudgetHandler
	Deliveries *handlers.DeliveriesHandler
}

// NewRouter registers every route and wraps the router in the standard
// middleware chain.
func NewRouter(h Handlers, log zerolog.Logger) http.Handler {
	router := mux.NewRouter().StrictSlash(true)

	router.HandleFunc("/webhook", h.Webhook.Receive).Methods(http.MethodPost)
	router.HandleFunc("/alerts/run", h.Budget.RunAlerts).Methods(http.MethodPost)
	router.HandleFunc("/summary/run", h.Budget.RunSummary).Methods(http.MethodPost)
	router.HandleFunc("/deliveries", h.Deliveries.ListDeliveries).Methods(http.MethodGet)
	router.HandleFunc("/deliveries/{id}", h.Deliveries.GetDelivery).Methods(http.MethodGet)

	// Health does not look at the ledger session.
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteText(w, http.StatusOK, "ok")
	}).Methods(http.MethodGet)

	return middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(router),
		),
	)
}
