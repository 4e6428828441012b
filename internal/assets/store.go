package assets

import (
	"context"
	"fmt"
	"sync"

	"github.com/antoniostano/brandstudio/internal/observability"
)

// Store owns the current document. Actions are applied one at a time in
// dispatch order.
type Store struct {
	mu      sync.Mutex
	doc     *Document
	metrics *observability.Metrics

	subMu       sync.Mutex
	subscribers map[int]chan *Document
	nextSubID   int
}

func NewStore(initial *Document, metrics *observability.Metrics) *Store {
	if initial == nil {
		initial = &Document{}
	}
	return &Store{
		doc:         initial,
		metrics:     metrics,
		subscribers: make(map[int]chan *Document),
	}
}

// Dispatch applies a and returns the resulting document. A failed action
// leaves the current document in place.
func (s *Store) Dispatch(a Action) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(a)
}

func (s *Store) applyLocked(a Action) (*Document, error) {
	next, err := Reduce(s.doc, a)
	if a != nil {
		s.metrics.ObserveAssetAction(string(a.Kind()), err)
	}
	if err != nil {
		return s.doc, err
	}
	if next != s.doc {
		s.doc = next
		s.publish(next)
	}
	return next, nil
}

// Snapshot returns the current document. Callers must not modify it.
func (s *Store) Snapshot() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Subscribe delivers the latest document after each change. Slow readers
// skip intermediate documents and only see the newest one.
func (s *Store) Subscribe() (<-chan *Document, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	ch := make(chan *Document, 1)
	s.subscribers[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if sub, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(sub)
			}
		})
	}
}

func (s *Store) publish(doc *Document) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- doc:
		default:
		}
	}
}

// Optimistic applies a immediately, then runs persist. If persist fails the
// compensating action for a is dispatched, restoring only the fields a
// touched; edits made by other actions in the meantime are kept.
func (s *Store) Optimistic(ctx context.Context, a Action, persist func(context.Context, *Document) error) (*Document, error) {
	s.mu.Lock()
	undo, err := Compensate(s.doc, a)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	next, err := s.applyLocked(a)
	s.mu.Unlock()
	if err != nil {
		return next, err
	}

	if persist == nil {
		return next, nil
	}
	if err := persist(ctx, next); err != nil {
		restored, undoErr := s.Dispatch(undo)
		if undoErr != nil {
			return restored, fmt.Errorf("persist %s: %w (rollback failed: %v)", a.Kind(), err, undoErr)
		}
		return restored, fmt.Errorf("persist %s: %w", a.Kind(), err)
	}
	return next, nil
}
