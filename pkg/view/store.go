package view

import (
	"sync"

	"github.com/edgeflare/valuelog/pkg/domain"
	"github.com/google/uuid"
)

// Store is the read model. Lookups are safe from any goroutine; writes are
// made only by the Builder that owns it.
type Store struct {
	mu     sync.RWMutex
	values map[uuid.UUID]float64
}

func newStore() *Store {
	return &Store{values: map[uuid.UUID]float64{}}
}

// Lookup returns the current value for id.
func (s *Store) Lookup(id uuid.UUID) (domain.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[id]
	if !ok {
		return domain.Value{}, false
	}
	return domain.Value{ValueID: id, Value: v}, true
}

// Len returns the number of values in the read model.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

func (s *Store) set(v domain.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[v.ValueID] = v.Value
}

// update applies op under the write lock so the read and write are one step.
func (s *Store) update(op domain.UpdateOperation) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.values[op.ValueID]
	if !ok {
		return 0, ErrUnknownValue
	}
	next, err := op.Operation.Apply(current, op.Operand)
	if err != nil {
		return 0, err
	}
	s.values[op.ValueID] = next
	return next, nil
}
