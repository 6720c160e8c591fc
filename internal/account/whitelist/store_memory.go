package whitelist

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// InMemoryStore keeps whitelist edges in nested maps guarded by a RWMutex.
type InMemoryStore struct {
	mu    sync.RWMutex
	edges map[uuid.UUID]map[uuid.UUID]bool
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{edges: make(map[uuid.UUID]map[uuid.UUID]bool)}
}

func (s *InMemoryStore) Set(_ context.Context, recipientID, senderID uuid.UUID, allow bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	senders := s.edges[recipientID]
	if allow {
		if senders == nil {
			senders = make(map[uuid.UUID]bool)
			s.edges[recipientID] = senders
		}
		if senders[senderID] {
			return false, nil
		}
		senders[senderID] = true
		return true, nil
	}
	if !senders[senderID] {
		return false, nil
	}
	delete(senders, senderID)
	return true, nil
}

func (s *InMemoryStore) IsAllowed(_ context.Context, recipientID, senderID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edges[recipientID][senderID], nil
}

func (s *InMemoryStore) ListSenders(_ context.Context, recipientID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	senders := make([]uuid.UUID, 0, len(s.edges[recipientID]))
	for sender := range s.edges[recipientID] {
		senders = append(senders, sender)
	}
	sort.Slice(senders, func(i, j int) bool { return senders[i].String() < senders[j].String() })
	return senders, nil
}
