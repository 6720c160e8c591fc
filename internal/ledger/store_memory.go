package ledger

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps the ledger as an ordered slice. It favors clarity over
// performance and backs unit tests and single-node deployments.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, events ...Event) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appended := make([]Event, 0, len(events))
	next := uint64(len(s.events))
	for _, event := range events {
		next++
		event.Sequence = next
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}
		s.events = append(s.events, event)
		appended = append(appended, event)
	}
	return appended, nil
}

func (s *InMemoryStore) ListFrom(_ context.Context, afterSequence uint64, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if afterSequence >= uint64(len(s.events)) {
		return nil, nil
	}
	events := s.events[afterSequence:]
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return append([]Event{}, events...), nil
}

func (s *InMemoryStore) LastSequence(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.events)), nil
}
