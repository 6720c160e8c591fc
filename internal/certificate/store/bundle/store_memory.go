package bundle

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/certificate/models"
	dErrors "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/domain-errors"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/platform/sentinel"
)

// InMemoryStore keeps bundles in a map guarded by a RWMutex. It intentionally
// favors clarity over performance and backs unit tests and single-node runs;
// for production use PostgresStore instead.
type InMemoryStore struct {
	mu      sync.RWMutex
	bundles map[uuid.UUID]*models.Bundle
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{bundles: make(map[uuid.UUID]*models.Bundle)}
}

func clone(b *models.Bundle) *models.Bundle {
	c := *b
	return &c
}

func (s *InMemoryStore) Get(_ context.Context, id uuid.UUID) (*models.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bundles[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(b), nil
}

func (s *InMemoryStore) GetMany(_ context.Context, ids []uuid.UUID) ([]*models.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bundles := make([]*models.Bundle, 0, len(ids))
	for _, id := range ids {
		b, ok := s.bundles[id]
		if !ok {
			return nil, sentinel.ErrNotFound
		}
		bundles = append(bundles, clone(b))
	}
	sortCanonical(bundles)
	return bundles, nil
}

// sortCanonical orders bundles by issuance ID then range start, the fixed
// order every multi-bundle operation walks in.
func sortCanonical(bundles []*models.Bundle) {
	sort.Slice(bundles, func(i, j int) bool {
		if bundles[i].IssuanceID != bundles[j].IssuanceID {
			return bundles[i].IssuanceID < bundles[j].IssuanceID
		}
		return bundles[i].RangeStart < bundles[j].RangeStart
	})
}

func (s *InMemoryStore) Insert(_ context.Context, b *models.Bundle) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bundles[b.ID]; exists {
		return sentinel.ErrConflict
	}
	if err := s.checkOverlapLocked(b); err != nil {
		return err
	}
	stored := clone(b)
	if stored.Version == 0 {
		stored.Version = 1
	}
	s.bundles[b.ID] = stored
	b.Version = stored.Version
	return nil
}

// checkOverlapLocked rejects a bundle whose range overlaps a live bundle of
// the same issuance. Retired and withdrawn bundles do not block re-use.
func (s *InMemoryStore) checkOverlapLocked(b *models.Bundle) error {
	for _, existing := range s.bundles {
		if existing.ID == b.ID || existing.IssuanceID != b.IssuanceID {
			continue
		}
		if existing.Status == models.StatusSplit || existing.Status == models.StatusWithdrawn {
			continue
		}
		if b.RangeStart <= existing.RangeEnd && existing.RangeStart <= b.RangeEnd {
			return dErrors.Newf(dErrors.CodeInvariantViolation,
				"bundle %s: range [%d, %d] overlaps bundle %s of issuance %s",
				b.ID, b.RangeStart, b.RangeEnd, existing.ID, b.IssuanceID)
		}
	}
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, b *models.Bundle) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(b)
}

func (s *InMemoryStore) updateLocked(b *models.Bundle) error {
	current, ok := s.bundles[b.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != b.Version {
		return sentinel.ErrConflict
	}
	stored := clone(b)
	stored.Version++
	s.bundles[b.ID] = stored
	b.Version = stored.Version
	return nil
}

func (s *InMemoryStore) SplitAndMutate(_ context.Context, id uuid.UUID, expectedVersion uint64, cut uint64, m models.Mutation) (*models.Bundle, *models.Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.bundles[id]
	if !ok {
		return nil, nil, sentinel.ErrNotFound
	}
	if parent.Version != expectedVersion {
		return nil, nil, sentinel.ErrConflict
	}

	retired, kept, moved, err := buildSplit(parent, cut, m, time.Now().UTC())
	if err != nil {
		return nil, nil, err
	}

	if retired == nil {
		// Whole bundle consumed: mutate in place.
		moved.Version = expectedVersion
		if err := s.updateLocked(moved); err != nil {
			return nil, nil, err
		}
		return nil, clone(moved), nil
	}

	retired.Version = parent.Version + 1
	s.bundles[retired.ID] = clone(retired)
	s.bundles[kept.ID] = clone(kept)
	s.bundles[moved.ID] = clone(moved)
	return clone(kept), clone(moved), nil
}

func (s *InMemoryStore) ListByOwner(_ context.Context, ownerAccountID uuid.UUID) ([]*models.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bundles []*models.Bundle
	for _, b := range s.bundles {
		if b.OwnerAccountID == ownerAccountID && b.Status != models.StatusSplit {
			bundles = append(bundles, clone(b))
		}
	}
	sort.Slice(bundles, func(i, j int) bool {
		return bundles[i].ProductionStart.After(bundles[j].ProductionStart)
	})
	return bundles, nil
}

func (s *InMemoryStore) ListExpirable(_ context.Context, cutoff time.Time) ([]*models.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bundles []*models.Bundle
	for _, b := range s.bundles {
		switch b.Status {
		case models.StatusActive, models.StatusReserved:
			if !b.ProductionEnd.After(cutoff) {
				bundles = append(bundles, clone(b))
			}
		}
	}
	sortCanonical(bundles)
	return bundles, nil
}

func (s *InMemoryStore) MaxUnitID(_ context.Context, deviceID uuid.UUID) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var max uint64
	for _, b := range s.bundles {
		if b.DeviceID != deviceID || b.Status == models.StatusWithdrawn {
			continue
		}
		if b.RangeEnd > max {
			max = b.RangeEnd
		}
	}
	return max, nil
}
