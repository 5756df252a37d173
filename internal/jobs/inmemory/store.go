package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/finance-bridge/internal/jobs"
)

// DefaultCapacity is how many deliveries a Store remembers.
const DefaultCapacity = 1000

// Store is an in-memory implementation of jobs.Store.
// It keeps the most recent deliveries only and is safe for concurrent use.
// Data is lost on restart.
type Store struct {
	mu       sync.RWMutex
	capacity int
	items    map[string]*jobs.Delivery
	order    []string // oldest first
}

// NewStore creates a store holding at most capacity deliveries.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		items:    make(map[string]*jobs.Delivery),
	}
}

// Save implements the jobs.Store interface.
func (s *Store) Save(ctx context.Context, d *jobs.Delivery) error {
	if d.ID == "" {
		return fmt.Errorf("Save: delivery id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[d.ID]; !exists {
		s.order = append(s.order, d.ID)
		if len(s.order) > s.capacity {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.items, oldest)
		}
	}

	cp := *d
	cp.Payload = nil
	s.items[d.ID] = &cp
	return nil
}

// Get implements the jobs.Store interface.
func (s *Store) Get(ctx context.Context, id string) (*jobs.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, exists := s.items[id]
	if !exists {
		return nil, fmt.Errorf("Get: %s: %w", id, jobs.ErrNotFound)
	}

	cp := *d
	return &cp, nil
}

// List implements the jobs.Store interface.
func (s *Store) List(ctx context.Context, filter jobs.Filter) ([]*jobs.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*jobs.Delivery
	for i := len(s.order) - 1; i >= 0; i-- {
		d := s.items[s.order[i]]
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		cp := *d
		result = append(result, &cp)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}

// Ensure Store implements jobs.Store.
var _ jobs.Store = (*Store)(nil)
