// Package queue provides the durable, ordered store of pending mutations
// buffered while the client is offline.
package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petfolio/shelterq/internal/logger"
)

// Store is the durable, ordered list of pending operations. The in-memory
// and persisted views are consistent after every public call returns, and
// observers are notified after every mutation.
type Store struct {
	mu        sync.Mutex
	repo      Repository
	ops       []Operation
	observers notifier
}

// NewStore creates a store backed by repo and loads the persisted queue.
// A load failure degrades to an empty queue so that corrupted local state
// never blocks the client.
func NewStore(repo Repository) *Store {
	s := &Store{repo: repo}

	ops, err := repo.Load()
	if err != nil {
		logger.Warn("queue: failed to load persisted queue, starting empty: %v", err)
		ops = nil
	}
	s.ops = ops

	return s
}

// Enqueue assigns an ID and timestamp to op, appends it, persists the queue
// and notifies observers. The stored operation is returned. A persistence
// failure leaves the in-memory queue unchanged and is returned to the caller.
func (s *Store) Enqueue(op Operation) (Operation, error) {
	s.mu.Lock()

	op.ID = uuid.NewString()
	op.EnqueuedAt = time.Now().UTC()

	next := make([]Operation, 0, len(s.ops)+1)
	next = append(next, s.ops...)
	next = append(next, op)

	if err := s.repo.Save(next); err != nil {
		s.mu.Unlock()
		return Operation{}, fmt.Errorf("failed to persist queue: %w", err)
	}
	s.ops = next
	s.mu.Unlock()

	logger.Debug("queue: enqueued %s operation %s (%d pending)", op.Kind, op.ID, len(next))
	s.observers.publish()
	return op, nil
}

// List returns a snapshot of the full queue in enqueue order.
func (s *Store) List() []Operation {
	s.mu.Lock()
	defer s.mu.Unlock()

	ops := make([]Operation, len(s.ops))
	copy(ops, s.ops)
	return ops
}

// Count returns the number of pending operations.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ops)
}

// Replace overwrites the queue with ops, persists it and notifies observers.
// The sync engine uses this to commit the post-pass remainder.
func (s *Store) Replace(ops []Operation) error {
	next := make([]Operation, len(ops))
	copy(next, ops)

	s.mu.Lock()
	if err := s.repo.Save(next); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to persist queue: %w", err)
	}
	s.ops = next
	s.mu.Unlock()

	s.observers.publish()
	return nil
}

// Subscribe registers a zero-payload change listener invoked after every
// store mutation. The returned function removes the listener.
func (s *Store) Subscribe(fn func()) func() {
	return s.observers.subscribe(fn)
}
