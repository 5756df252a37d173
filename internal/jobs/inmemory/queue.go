package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-bridge/internal/jobs"
)

// Queue is an in-memory implementation of Publisher and Consumer.
// It uses a buffered channel for distribution and is safe for concurrent use.
// Deliveries still queued when Stop is called are marked dropped.
type Queue struct {
	deliveries chan *jobs.Delivery
	closeChan  chan struct{}
	wg         sync.WaitGroup
	mu         sync.RWMutex
	store      jobs.Store
	workers    int
	closed     bool
	log        zerolog.Logger
}

// NewQueue creates a new in-memory delivery queue.
// bufferSize determines how many deliveries can wait before Publish blocks.
func NewQueue(bufferSize, workers int, store jobs.Store, log zerolog.Logger) *Queue {
	if workers <= 0 {
		workers = 1
	}
	return &Queue{
		deliveries: make(chan *jobs.Delivery, bufferSize),
		closeChan:  make(chan struct{}),
		store:      store,
		workers:    workers,
		log:        log.With().Str("component", "queue").Logger(),
	}
}

// Publish implements the Publisher interface.
func (q *Queue) Publish(ctx context.Context, d *jobs.Delivery) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return jobs.ErrQueueClosed
	}

	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Status == "" {
		d.Status = jobs.StatusPending
	}
	if d.ReceivedAt.IsZero() {
		d.ReceivedAt = time.Now()
	}

	if q.store != nil {
		if err := q.store.Save(ctx, d); err != nil {
			return fmt.Errorf("Publish: save delivery: %w", err)
		}
	}

	select {
	case q.deliveries <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return jobs.ErrQueueClosed
	}
}

// Start implements the Consumer interface. Handlers run on a context that
// is not cancelled by Stop, so an in-flight delivery always finishes.
func (q *Queue) Start(ctx context.Context, handler jobs.Handler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return jobs.ErrQueueClosed
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.Handler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case d := <-q.deliveries:
			if d == nil {
				return
			}
			q.process(context.WithoutCancel(ctx), d, handler)
		}
	}
}

// process runs one delivery. There are no retries.
func (q *Queue) process(ctx context.Context, d *jobs.Delivery, handler jobs.Handler) {
	d.Status = jobs.StatusRunning
	now := time.Now()
	d.StartedAt = &now
	q.save(ctx, d)

	outcome, err := q.run(ctx, d, handler)

	completedAt := time.Now()
	d.CompletedAt = &completedAt
	d.Outcome = outcome
	d.Payload = nil
	if err != nil {
		d.Status = jobs.StatusFailed
		d.Error = err.Error()
	} else {
		d.Status = jobs.StatusCompleted
	}
	q.save(ctx, d)
}

// run calls handler, turning a panic into a failed delivery so one bad
// payload cannot take a worker down.
func (q *Queue) run(ctx context.Context, d *jobs.Delivery, handler jobs.Handler) (outcome string, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error().Interface("panic", r).Str("delivery_id", d.ID).Msg("Delivery handler panicked")
			outcome, err = "panic", fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, d)
}

func (q *Queue) save(ctx context.Context, d *jobs.Delivery) {
	if q.store == nil {
		return
	}
	if err := q.store.Save(ctx, d); err != nil {
		q.log.Warn().Err(err).Str("delivery_id", d.ID).Msg("Failed to save delivery status")
	}
}

// Stop implements the Consumer interface.
// It stops the queue and waits for in-flight deliveries to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	q.drop(ctx)
	return nil
}

// drop marks deliveries that never started.
func (q *Queue) drop(ctx context.Context) {
	for {
		select {
		case d := <-q.deliveries:
			d.Status = jobs.StatusDropped
			d.Payload = nil
			q.save(ctx, d)
			q.log.Warn().Str("delivery_id", d.ID).Msg("Delivery dropped at shutdown")
		default:
			return
		}
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
