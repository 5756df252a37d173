package jobs

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by a Store for an unknown delivery id.
	ErrNotFound = errors.New("delivery not found")

	// ErrQueueClosed is returned when publishing to a stopped queue.
	ErrQueueClosed = errors.New("queue is closed")
)

// Status represents the current status of a delivery.
type Status string

const (
	// StatusPending indicates the delivery is waiting to be processed.
	StatusPending Status = "pending"
	// StatusRunning indicates the delivery is currently being processed.
	StatusRunning Status = "running"
	// StatusCompleted indicates processing finished, including expected skips.
	StatusCompleted Status = "completed"
	// StatusFailed indicates a remote operation failed. Deliveries are not retried.
	StatusFailed Status = "failed"
	// StatusDropped indicates the queue stopped before the delivery ran.
	StatusDropped Status = "dropped"
)

// Delivery is one acknowledged webhook delivery awaiting processing.
type Delivery struct {
	// ID is the unique identifier for this delivery.
	ID string `json:"id"`

	// Status is the current status of the delivery.
	Status Status `json:"status"`

	// Outcome summarizes what processing did, e.g. "imported".
	Outcome string `json:"outcome,omitempty"`

	// PayloadURI is where the raw body was archived, if it was.
	PayloadURI string `json:"payload_uri,omitempty"`

	// ReceivedAt is when the webhook was acknowledged.
	ReceivedAt time.Time `json:"received_at"`

	// StartedAt is when processing started.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when processing finished.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if processing failed. Skipped deliveries
	// complete without one; Outcome names the skip.
	Error string `json:"error,omitempty"`

	// Payload is the raw request body. It is released once processing ends.
	Payload []byte `json:"-"`
}

// Done reports whether the delivery reached a final status.
func (d *Delivery) Done() bool {
	switch d.Status {
	case StatusCompleted, StatusFailed, StatusDropped:
		return true
	}
	return false
}

// Publisher enqueues deliveries for asynchronous processing.
type Publisher interface {
	// Publish enqueues a delivery, assigning an id if it has none.
	Publish(ctx context.Context, d *Delivery) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer runs deliveries through a handler.
type Consumer interface {
	// Start begins consuming deliveries from the queue.
	Start(ctx context.Context, handler Handler) error

	// Stop stops consuming and waits for in-flight deliveries to complete.
	Stop(ctx context.Context) error
}

// Handler processes one delivery and returns a short outcome. A non-nil
// error marks the delivery failed; it is never retried.
type Handler func(ctx context.Context, d *Delivery) (outcome string, err error)

// Store records delivery status so it can be queried after the webhook
// response has been sent.
type Store interface {
	// Save saves or updates a delivery.
	Save(ctx context.Context, d *Delivery) error

	// Get retrieves a delivery by id.
	Get(ctx context.Context, id string) (*Delivery, error)

	// List retrieves deliveries, newest first.
	List(ctx context.Context, filter Filter) ([]*Delivery, error)
}

// Filter defines filtering criteria for listing deliveries.
type Filter struct {
	// Status filters deliveries by status.
	Status Status

	// Limit limits the number of results.
	Limit int
}
