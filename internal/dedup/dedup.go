// Package dedup guards against double emission of the same logical event:
// once per event type within a request, and once per order for Purchase
// across repeated lifecycle triggers.
package dedup

import (
	"sync"

	"meta-pixel-relay/internal/model"
)

// RequestScope is a one-shot latch per event type, scoped to a single
// storefront request. It is an explicit object passed through the call chain
// so concurrent requests never interfere; a new scope is created per request.
type RequestScope struct {
	fired map[model.EventName]bool
}

// NewRequestScope returns an empty per-request scope.
func NewRequestScope() *RequestScope {
	return &RequestScope{fired: make(map[model.EventName]bool)}
}

// FirstFire reports whether this is the first firing of the event type within
// the request, latching it for subsequent calls.
func (s *RequestScope) FirstFire(name model.EventName) bool {
	if s.fired[name] {
		return false
	}
	s.fired[name] = true
	return true
}

// MarkerStore records the durable "purchase already forwarded" flag per
// order. The flag is set only after a confirmed delivery, so a failed send
// leaves a later trigger free to retry. Concurrent triggers racing before the
// flag persists may both attempt delivery; the remote event_id dedup is the
// backstop.
type MarkerStore interface {
	Tracked(orderID int64) (bool, error)
	MarkTracked(orderID int64) error
}

// MemoryMarkerStore keeps markers in process memory. Hosts that own order
// storage should implement MarkerStore against it instead.
type MemoryMarkerStore struct {
	mu      sync.Mutex
	tracked map[int64]struct{}
}

// NewMemoryMarkerStore returns an empty in-memory marker store.
func NewMemoryMarkerStore() *MemoryMarkerStore {
	return &MemoryMarkerStore{tracked: make(map[int64]struct{})}
}

func (m *MemoryMarkerStore) Tracked(orderID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tracked[orderID]
	return ok, nil
}

func (m *MemoryMarkerStore) MarkTracked(orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracked[orderID] = struct{}{}
	return nil
}
