// Package store holds the authoritative in-memory shape state for one
// project. The store is a deterministic fold over the mutation events
// applied to it: Put is insert-or-replace by id (whole-record last writer
// wins), Delete is idempotent.
package store

import (
	"sort"
	"sync"

	"whiteboard-backend/internal/protocol"
)

// ShapeStore is the shape collection for a single project. One instance is
// owned by each room; only the room's actor goroutine mutates it, but reads
// may come from other goroutines, so access is still guarded.
type ShapeStore struct {
	mu     sync.RWMutex
	shapes map[string]protocol.Shape
}

// New creates an empty ShapeStore.
func New() *ShapeStore {
	return &ShapeStore{
		shapes: make(map[string]protocol.Shape),
	}
}

// Replace seeds the store from persisted state, discarding prior contents.
func (s *ShapeStore) Replace(shapes []protocol.Shape) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shapes = make(map[string]protocol.Shape, len(shapes))
	for _, shape := range shapes {
		s.shapes[shape.ID] = shape
	}
}

// Put inserts or wholly replaces the shape with the same id.
func (s *ShapeStore) Put(shape protocol.Shape) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shapes[shape.ID] = shape
}

// Delete removes a shape. Deleting an absent id is a no-op; delete-delete
// races between sessions are expected.
func (s *ShapeStore) Delete(shapeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.shapes[shapeID]; !ok {
		return false
	}
	delete(s.shapes, shapeID)
	return true
}

// Get returns a shape by id.
func (s *ShapeStore) Get(shapeID string) (protocol.Shape, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shape, ok := s.shapes[shapeID]
	return shape, ok
}

// Len returns the number of shapes.
func (s *ShapeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.shapes)
}

// LoadAll returns every shape ordered by ascending z-index, ties broken by
// id so the result is deterministic for identical state.
func (s *ShapeStore) LoadAll() []protocol.Shape {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shapes := make([]protocol.Shape, 0, len(s.shapes))
	for _, shape := range s.shapes {
		shapes = append(shapes, shape)
	}

	sort.Slice(shapes, func(i, j int) bool {
		if shapes[i].ZIndex != shapes[j].ZIndex {
			return shapes[i].ZIndex < shapes[j].ZIndex
		}
		return shapes[i].ID < shapes[j].ID
	})

	return shapes
}
