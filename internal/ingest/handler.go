// Package ingest turns one webhook delivery into at most one ledger import.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-bridge/internal/accounts"
	"github.com/dvloznov/finance-bridge/internal/archive"
	"github.com/dvloznov/finance-bridge/internal/feed"
	"github.com/dvloznov/finance-bridge/internal/jobs"
	"github.com/dvloznov/finance-bridge/internal/ledger"
	"github.com/dvloznov/finance-bridge/internal/logger"
	"github.com/dvloznov/finance-bridge/internal/money"
	"github.com/dvloznov/finance-bridge/internal/notify"
)

// NotificationTitle is the title of the per-transaction notification.
const NotificationTitle = "New transaction"

// Status is the outcome of handling one delivery.
type Status string

const (
	StatusImported               Status = "imported"
	StatusUnchanged              Status = "unchanged"
	StatusSkippedPayloadShape    Status = "skipped_payload_shape"
	StatusSkippedUnmappedAccount Status = "skipped_unmapped_account"
	StatusSkippedSessionNotReady Status = "skipped_session_not_ready"
	StatusFailed                 Status = "failed"
)

// Skipped reports whether the delivery was dropped as an expected condition.
func (s Status) Skipped() bool {
	switch s {
	case StatusSkippedPayloadShape, StatusSkippedUnmappedAccount, StatusSkippedSessionNotReady:
		return true
	}
	return false
}

// Result describes what Handle did. Err is set for skips and failures; it is
// informational, never something the caller must act on.
type Result struct {
	Status      Status
	AccountUID  string
	FeedItemUID string
	Transaction *ledger.Transaction
	Import      ledger.ImportResult
	Notified    bool
	NotifyErr   error
	Err         error
}

// Session is the part of ledger.Session the handler needs.
type Session interface {
	EnsureReady(ctx context.Context) error
	Client() ledger.Client
	Invalidate(reason error)
}

// ImportRecorder receives an audit record for every import that changed the
// ledger.
type ImportRecorder interface {
	Record(ctx context.Context, rec archive.ImportRecord) error
}

// Handler is the webhook event handler.
type Handler struct {
	session    Session
	resolver   *accounts.Resolver
	normalizer *feed.Normalizer
	sink       notify.Sink
	recorder   ImportRecorder
	log        zerolog.Logger
	now        func() time.Time
}

// NewHandler wires a handler. sink may be nil, which disables notifications.
func NewHandler(session Session, resolver *accounts.Resolver, normalizer *feed.Normalizer, sink notify.Sink, log zerolog.Logger) *Handler {
	if sink == nil {
		sink = notify.Noop{}
	}
	if normalizer == nil {
		normalizer = feed.NewNormalizer()
	}
	return &Handler{
		session:    session,
		resolver:   resolver,
		normalizer: normalizer,
		sink:       sink,
		log:        logger.Component(log, "ingest"),
		now:        time.Now,
	}
}

// WithRecorder sets the audit recorder and returns h.
func (h *Handler) WithRecorder(r ImportRecorder) *Handler {
	h.recorder = r
	return h
}

// Handle processes one raw webhook payload.
func (h *Handler) Handle(ctx context.Context, payload []byte) Result {
	return h.HandleDelivery(ctx, "", payload)
}

// HandleDelivery processes one payload, tagging logs and audit rows with
// deliveryID. Extraction and account lookup happen before the session is
// touched, so payloads that will be skipped cost no remote calls.
func (h *Handler) HandleDelivery(ctx context.Context, deliveryID string, payload []byte) Result {
	log := h.log
	if deliveryID != "" {
		log = log.With().Str("delivery_id", deliveryID).Logger()
	}

	ev, err := feed.Extract(payload)
	if err != nil {
		log.Info().Err(err).Msg("Skipping delivery with unusable payload")
		return Result{Status: StatusSkippedPayloadShape, Err: err}
	}

	log = log.With().
		Str("account_uid", ev.AccountUID).
		Str("feed_item_uid", ev.Item.FeedItemUID).
		Logger()
	res := Result{AccountUID: ev.AccountUID, FeedItemUID: ev.Item.FeedItemUID}

	mapping, ok := h.resolver.Resolve(ev.AccountUID)
	if !ok {
		log.Info().Msg("Skipping delivery for unmapped account")
		res.Status = StatusSkippedUnmappedAccount
		res.Err = fmt.Errorf("account %s has no mapping", ev.AccountUID)
		return res
	}

	if err := h.session.EnsureReady(ctx); err != nil {
		log.Warn().Err(err).Msg("Skipping delivery, ledger session not ready")
		res.Status = StatusSkippedSessionNotReady
		res.Err = err
		return res
	}

	tx := h.normalizer.Normalize(ev.Item, mapping.LedgerAccountID)
	res.Transaction = &tx
	client := h.session.Client()

	imported, err := client.ImportTransactions(ctx, mapping.LedgerAccountID, []ledger.Transaction{tx})
	if err != nil {
		return h.failed(log, res, fmt.Errorf("import: %w", err))
	}
	res.Import = imported

	// Import is not durable until synced.
	if err := client.Sync(ctx); err != nil {
		return h.failed(log, res, fmt.Errorf("sync: %w", err))
	}

	if !imported.Changed() {
		log.Info().Msg("Transaction already in ledger")
		res.Status = StatusUnchanged
		return res
	}

	res.Status = StatusImported
	log.Info().
		Str("ledger_account_id", mapping.LedgerAccountID).
		Int64("amount", tx.Amount).
		Int("added", len(imported.Added)).
		Int("updated", len(imported.Updated)).
		Msg("Transaction imported")

	res.NotifyErr = h.sink.Notify(ctx, transactionNotification(ev.Item, tx))
	res.Notified = res.NotifyErr == nil
	if res.NotifyErr != nil {
		log.Warn().Err(res.NotifyErr).Msg("Notification failed")
	}

	if h.recorder != nil {
		rec := archive.ImportRecord{
			DeliveryID:         deliveryID,
			ProviderAccountUID: ev.AccountUID,
			LedgerAccountID:    mapping.LedgerAccountID,
			Currency:           mapping.Currency,
			ImportedID:         tx.ImportedID,
			Date:               tx.Date,
			AmountMinor:        tx.Amount,
			Payee:              tx.PayeeName,
			Added:              imported.Added,
			Updated:            imported.Updated,
			ImportedAt:         h.now(),
		}
		if err := h.recorder.Record(ctx, rec); err != nil {
			log.Warn().Err(err).Msg("Failed to record import")
		}
	}

	return res
}

// ProcessDelivery runs a queued delivery. Expected skips complete the
// delivery; only remote failures mark it failed.
func (h *Handler) ProcessDelivery(ctx context.Context, d *jobs.Delivery) (string, error) {
	res := h.HandleDelivery(ctx, d.ID, d.Payload)
	if res.Status == StatusFailed {
		return string(res.Status), res.Err
	}
	return string(res.Status), nil
}

var _ jobs.Handler = (*Handler)(nil).ProcessDelivery

func (h *Handler) failed(log zerolog.Logger, res Result, err error) Result {
	if errors.Is(err, ledger.ErrUnauthorized) {
		h.session.Invalidate(err)
	}
	log.Error().Err(err).Msg("Ledger operation failed")
	res.Status = StatusFailed
	res.Err = err
	return res
}

func transactionNotification(item feed.Item, tx ledger.Transaction) notify.Notification {
	return notify.Notification{
		Title:   NotificationTitle,
		Message: fmt.Sprintf("%s %s %s", tx.Date, tx.PayeeName, money.FormatAbs(tx.Amount)),
		Data: map[string]string{
			"feed_item_uid": tx.ImportedID,
			"account":       tx.Account,
			"direction":     string(item.Direction),
		},
	}
}
