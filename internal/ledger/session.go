package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrSessionNotReady is returned when the session could not be initialized.
var ErrSessionNotReady = errors.New("ledger session not ready")

// State is the lifecycle state of a Session.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const initKey = "ensure-ready"

// Session owns the connection to the remote ledger: connect once, load the
// budget once, reuse for every later call. Concurrent EnsureReady calls
// during an initialization share its outcome.
type Session struct {
	client   Client
	budgetID string
	timeout  time.Duration
	log      zerolog.Logger

	group singleflight.Group

	mu       sync.Mutex
	state    State
	lastErr  error
	initDone chan struct{} // closed when the running initialization ends
}

// NewSession creates an uninitialized session. timeout bounds one full
// initialization (connect + load).
func NewSession(client Client, budgetID string, timeout time.Duration, log zerolog.Logger) *Session {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Session{
		client:   client,
		budgetID: budgetID,
		timeout:  timeout,
		log:      log.With().Str("component", "ledger_session").Logger(),
	}
}

// Client returns the underlying ledger client. Callers must EnsureReady first.
func (s *Session) Client() Client {
	return s.client
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the error of the most recent failed initialization.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// EnsureReady initializes the session if needed. A caller whose ctx ends
// early stops waiting, but the shared initialization keeps running for the
// other callers.
func (s *Session) EnsureReady(ctx context.Context) error {
	if s.State() == StateReady {
		return nil
	}

	ch := s.group.DoChan(initKey, func() (interface{}, error) {
		return nil, s.initialize(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return fmt.Errorf("%w: %w", ErrSessionNotReady, res.Err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateReady {
		s.mu.Unlock()
		return nil
	}
	s.state = StateInitializing
	done := make(chan struct{})
	s.initDone = done
	s.mu.Unlock()
	defer close(done)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	s.log.Info().Str("budget_id", s.budgetID).Msg("Connecting to ledger")

	if err := s.client.Connect(ctx); err != nil {
		return s.fail(fmt.Errorf("connect: %w", err))
	}
	if err := s.client.LoadBudget(ctx, s.budgetID); err != nil {
		return s.fail(fmt.Errorf("load budget %s: %w", s.budgetID, err))
	}

	s.mu.Lock()
	s.state = StateReady
	s.lastErr = nil
	s.mu.Unlock()

	s.log.Info().
		Str("budget_id", s.budgetID).
		Dur("duration", time.Since(start)).
		Msg("Ledger session ready")
	return nil
}

// fail resets the whole session so the next call starts from connect again.
func (s *Session) fail(err error) error {
	s.mu.Lock()
	s.state = StateFailed
	s.lastErr = err
	s.mu.Unlock()

	s.log.Error().Err(err).Msg("Ledger session initialization failed")
	return err
}

// Invalidate drops a Ready session, forcing the next EnsureReady to
// reconnect. Used when the server rejects a previously valid token.
func (s *Session) Invalidate(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return
	}
	s.state = StateFailed
	s.lastErr = reason
	s.log.Warn().Err(reason).Msg("Ledger session invalidated")
}

// Shutdown closes the remote session if one is open. An initialization in
// progress is waited for first, so a session that becomes ready is still
// closed.
func (s *Session) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	done := s.initDone
	initializing := s.state == StateInitializing
	s.mu.Unlock()

	if initializing {
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("Shutdown: waiting for initialization: %w", ctx.Err())
		}
	}

	s.mu.Lock()
	ready := s.state == StateReady
	s.state = StateUninitialized
	s.mu.Unlock()

	if !ready {
		return nil
	}
	if err := s.client.Shutdown(ctx); err != nil {
		return fmt.Errorf("Shutdown: %w", err)
	}
	s.log.Info().Msg("Ledger session closed")
	return nil
}
