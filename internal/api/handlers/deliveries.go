package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-bridge/internal/api/middleware"
	"github.com/dvloznov/finance-bridge/internal/jobs"
)

// DeliveriesHandler exposes webhook delivery status.
type DeliveriesHandler struct {
	store jobs.Store
	log   zerolog.Logger
}

// NewDeliveriesHandler creates a new deliveries handler.
func NewDeliveriesHandler(store jobs.Store, log zerolog.Logger) *DeliveriesHandler {
	return &DeliveriesHandler{store: store, log: log}
}

// GetDelivery handles GET /deliveries/{id}.
func (h *DeliveriesHandler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	d, err := h.store.Get(r.Context(), id)
	if errors.Is(err, jobs.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Delivery not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("delivery_id", id).Msg("Failed to get delivery")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get delivery")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, d)
}

// ListDeliveries handles GET /deliveries?status=&limit=.
func (h *DeliveriesHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	filter := jobs.Filter{
		Status: jobs.Status(r.URL.Query().Get("status")),
		Limit:  50,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			middleware.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	deliveries, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list deliveries")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list deliveries")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"deliveries": deliveries,
		"count":      len(deliveries),
	})
}
