package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-bridge/internal/api/middleware"
	"github.com/dvloznov/finance-bridge/internal/jobs"
	"github.com/dvloznov/finance-bridge/internal/logger"
	"github.com/dvloznov/finance-bridge/internal/webhook"
)

const (
	// MaxBodyBytes caps a webhook body.
	MaxBodyBytes = 1 << 20

	// DeliveryIDHeader returns the queued delivery's id to the sender.
	DeliveryIDHeader = "X-Delivery-ID"

	archiveTimeout = 5 * time.Second
)

// PayloadArchiver stores raw bodies before processing.
type PayloadArchiver interface {
	Put(ctx context.Context, deliveryID string, receivedAt time.Time, body []byte) (string, error)
}

// WebhookHandler acknowledges bank-feed deliveries and queues them.
type WebhookHandler struct {
	verifier  *webhook.Verifier
	publisher jobs.Publisher
	archiver  PayloadArchiver
	log       zerolog.Logger
	now       func() time.Time
}

// NewWebhookHandler creates a webhook handler. archiver may be nil.
func NewWebhookHandler(verifier *webhook.Verifier, publisher jobs.Publisher, archiver PayloadArchiver, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier:  verifier,
		publisher: publisher,
		archiver:  archiver,
		log:       log,
		now:       time.Now,
	}
}

// Receive handles POST /webhook.
//
// Only a bad signature gets 401. Once verified, every delivery is answered
// 200 "ok"; processing errors never reach the sender. A verified body that is
// not JSON is logged and dropped without being queued.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteText(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		log.Warn().Err(err).Msg("Failed to read webhook body")
		middleware.WriteText(w, http.StatusBadRequest, "bad request")
		return
	}

	if err := h.verifier.Verify(body, r.Header.Get(webhook.SignatureHeader)); err != nil {
		log.Warn().Err(err).Int("bytes", len(body)).Msg("Rejected webhook delivery")
		middleware.WriteText(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if !json.Valid(body) {
		log.Warn().Int("bytes", len(body)).Msg("Dropping webhook body that is not JSON")
		middleware.WriteText(w, http.StatusOK, "ok")
		return
	}

	d := &jobs.Delivery{
		ID:         uuid.New().String(),
		Status:     jobs.StatusPending,
		ReceivedAt: h.now(),
		Payload:    body,
	}
	log = log.With().Str("delivery_id", d.ID).Logger()

	if h.archiver != nil {
		ctx, cancel := context.WithTimeout(r.Context(), archiveTimeout)
		uri, err := h.archiver.Put(ctx, d.ID, d.ReceivedAt, body)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to archive webhook body")
		} else {
			d.PayloadURI = uri
		}
	}

	if err := h.publisher.Publish(r.Context(), d); err != nil {
		log.Error().Err(err).Msg("Failed to queue webhook delivery")
	} else {
		log.Debug().Msg("Webhook delivery queued")
	}

	w.Header().Set(DeliveryIDHeader, d.ID)
	middleware.WriteText(w, http.StatusOK, "ok")
}
