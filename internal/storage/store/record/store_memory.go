package record

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/storage"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/platform/sentinel"
)

// InMemoryStore keeps records in process memory. It pairs with the mutex
// transaction runner for tests and single-node development.
type InMemoryStore struct {
	mu         sync.RWMutex
	charges    map[uuid.UUID]*storage.ChargeRecord
	discharges map[uuid.UUID]*storage.DischargeRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		charges:    make(map[uuid.UUID]*storage.ChargeRecord),
		discharges: make(map[uuid.UUID]*storage.DischargeRecord),
	}
}

func (s *InMemoryStore) InsertCharge(_ context.Context, c *storage.ChargeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.charges[c.ID]; ok {
		return sentinel.ErrConflict
	}
	s.charges[c.ID] = cloneCharge(c)
	return nil
}

func (s *InMemoryStore) GetCharge(_ context.Context, id uuid.UUID) (*storage.ChargeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.charges[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneCharge(c), nil
}

func (s *InMemoryStore) ListAllocatable(_ context.Context, deviceID uuid.UUID) ([]*storage.ChargeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*storage.ChargeRecord
	for _, c := range s.charges {
		if c.DeviceID == deviceID && c.RemainingWh > 0 {
			out = append(out, cloneCharge(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ChargeStart.Equal(out[j].ChargeStart) {
			return out[i].ChargeStart.Before(out[j].ChargeStart)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) DebitCharge(_ context.Context, id uuid.UUID, wh uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.charges[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if c.RemainingWh < wh {
		return sentinel.ErrConflict
	}
	c.RemainingWh -= wh
	return nil
}

func (s *InMemoryStore) InsertDischarge(_ context.Context, d *storage.DischargeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.discharges[d.ID]; ok {
		return sentinel.ErrConflict
	}
	s.discharges[d.ID] = cloneDischarge(d)
	return nil
}

func (s *InMemoryStore) GetDischarge(_ context.Context, id uuid.UUID) (*storage.DischargeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.discharges[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneDischarge(d), nil
}

func (s *InMemoryStore) ListDischarges(_ context.Context, deviceID uuid.UUID) ([]*storage.DischargeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*storage.DischargeRecord
	for _, d := range s.discharges {
		if d.DeviceID == deviceID {
			out = append(out, cloneDischarge(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func cloneCharge(c *storage.ChargeRecord) *storage.ChargeRecord {
	cp := *c
	return &cp
}

func cloneDischarge(d *storage.DischargeRecord) *storage.DischargeRecord {
	cp := *d
	cp.Allocations = append([]storage.Allocation(nil), d.Allocations...)
	return &cp
}
