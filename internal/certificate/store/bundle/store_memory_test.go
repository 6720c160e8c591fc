package bundle

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/certificate/models"
	dErrors "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/domain-errors"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite

	ctx   context.Context
	store *InMemoryStore
	owner uuid.UUID
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemoryStore()
	s.owner = uuid.New()
}

func (s *MemoryStoreSuite) newBundle(start, end uint64) *models.Bundle {
	return &models.Bundle{
		ID:              uuid.New(),
		IssuanceID:      "dev-a/2026-01-01T00:00:00Z",
		DeviceID:        uuid.New(),
		OwnerAccountID:  s.owner,
		RangeStart:      start,
		RangeEnd:        end,
		Status:          models.StatusActive,
		EnergySource:    models.SourceWind,
		ProductionStart: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ProductionEnd:   time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC),
		LineageHash:     "root",
	}
}

func (s *MemoryStoreSuite) insert(b *models.Bundle) *models.Bundle {
	s.Require().NoError(s.store.Insert(s.ctx, b))
	return b
}

func (s *MemoryStoreSuite) TestInsert() {
	s.Run("insert assigns version 1", func() {
		b := s.insert(s.newBundle(1, 1000))
		got, err := s.store.Get(s.ctx, b.ID)
		s.Require().NoError(err)
		s.Equal(uint64(1), got.Version)
	})

	s.Run("duplicate id conflicts", func() {
		b := s.insert(s.newBundle(1001, 2000))
		err := s.store.Insert(s.ctx, b)
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("overlapping live range of same issuance rejected", func() {
		s.insert(s.newBundle(3000, 4000))
		err := s.store.Insert(s.ctx, s.newBundle(3500, 4500))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("withdrawn range can be re-covered", func() {
		b := s.newBundle(5000, 6000)
		b.Status = models.StatusWithdrawn
		s.insert(b)
		s.NoError(s.store.Insert(s.ctx, s.newBundle(5000, 6000)))
	})
}

func (s *MemoryStoreSuite) TestGetMany() {
	b2 := s.insert(s.newBundle(501, 1000))
	b1 := s.insert(s.newBundle(1, 500))

	s.Run("returns canonical order", func() {
		got, err := s.store.GetMany(s.ctx, []uuid.UUID{b2.ID, b1.ID})
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Equal(b1.ID, got[0].ID)
		s.Equal(b2.ID, got[1].ID)
	})

	s.Run("any missing id fails the whole call", func() {
		_, err := s.store.GetMany(s.ctx, []uuid.UUID{b1.ID, uuid.New()})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestSplitAndMutate() {
	target := uuid.New()

	s.Run("partial split partitions the range", func() {
		parent := s.insert(s.newBundle(1, 1000))
		kept, moved, err := s.store.SplitAndMutate(s.ctx, parent.ID, 1, 250,
			models.Mutation{NewOwner: &target})
		s.Require().NoError(err)

		s.Equal(uint64(1), kept.RangeStart)
		s.Equal(uint64(750), kept.RangeEnd)
		s.Equal(s.owner, kept.OwnerAccountID)
		s.Equal(models.StatusActive, kept.Status)

		s.Equal(uint64(751), moved.RangeStart)
		s.Equal(uint64(1000), moved.RangeEnd)
		s.Equal(target, moved.OwnerAccountID)

		s.Equal(kept.Quantity()+moved.Quantity(), uint64(1000))
		s.Require().NotNil(kept.ParentID)
		s.Equal(parent.ID, *kept.ParentID)

		retired, err := s.store.Get(s.ctx, parent.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusSplit, retired.Status)
	})

	s.Run("children get fresh lineage hashes chained on the parent", func() {
		parent := s.insert(s.newBundle(2001, 3000))
		kept, moved, err := s.store.SplitAndMutate(s.ctx, parent.ID, 1, 100,
			models.Mutation{NewOwner: &target})
		s.Require().NoError(err)
		s.NotEqual(parent.LineageHash, kept.LineageHash)
		s.NotEqual(parent.LineageHash, moved.LineageHash)
		s.NotEqual(kept.LineageHash, moved.LineageHash)
	})

	s.Run("whole bundle cut mutates in place", func() {
		parent := s.insert(s.newBundle(4001, 4100))
		kept, moved, err := s.store.SplitAndMutate(s.ctx, parent.ID, 1, 100,
			models.Mutation{NewOwner: &target})
		s.Require().NoError(err)
		s.Nil(kept)
		s.Equal(parent.ID, moved.ID)
		s.Equal(target, moved.OwnerAccountID)
		s.Equal(uint64(2), moved.Version)
	})

	s.Run("stale version conflicts", func() {
		parent := s.insert(s.newBundle(5001, 5100))
		_, _, err := s.store.SplitAndMutate(s.ctx, parent.ID, 99, 10,
			models.Mutation{NewOwner: &target})
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("cut above quantity is insufficient", func() {
		parent := s.insert(s.newBundle(6001, 6250))
		_, _, err := s.store.SplitAndMutate(s.ctx, parent.ID, 1, 300,
			models.Mutation{NewOwner: &target})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientQuantity))
	})

	s.Run("zero cut is invalid", func() {
		parent := s.insert(s.newBundle(7001, 7100))
		_, _, err := s.store.SplitAndMutate(s.ctx, parent.ID, 1, 0,
			models.Mutation{NewOwner: &target})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidQuantity))
	})

	s.Run("cancelled bundle cannot split", func() {
		parent := s.newBundle(8001, 8100)
		parent.Status = models.StatusCancelled
		s.insert(parent)
		_, _, err := s.store.SplitAndMutate(s.ctx, parent.ID, 1, 10,
			models.Mutation{NewOwner: &target})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBundleNotActive))
	})

	s.Run("owner change requires active status", func() {
		parent := s.newBundle(9001, 9100)
		parent.Status = models.StatusReserved
		s.insert(parent)
		_, _, err := s.store.SplitAndMutate(s.ctx, parent.ID, 1, 100,
			models.Mutation{NewOwner: &target})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBundleNotActive))
	})
}

func (s *MemoryStoreSuite) TestListExpirable() {
	old := s.insert(s.newBundle(1, 100))
	fresh := s.newBundle(101, 200)
	fresh.ProductionEnd = time.Now().Add(time.Hour)
	s.insert(fresh)
	retired := s.newBundle(201, 300)
	retired.Status = models.StatusCancelled
	s.insert(retired)

	got, err := s.store.ListExpirable(s.ctx, time.Now())
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(old.ID, got[0].ID)
}

func (s *MemoryStoreSuite) TestMaxUnitID() {
	device := uuid.New()
	b := s.newBundle(1, 1000)
	b.DeviceID = device
	s.insert(b)

	withdrawn := s.newBundle(1001, 2000)
	withdrawn.DeviceID = device
	withdrawn.Status = models.StatusWithdrawn
	s.insert(withdrawn)

	s.Run("highest live unit id wins", func() {
		max, err := s.store.MaxUnitID(s.ctx, device)
		s.Require().NoError(err)
		s.Equal(uint64(1000), max)
	})

	s.Run("unknown device starts at zero", func() {
		max, err := s.store.MaxUnitID(s.ctx, uuid.New())
		s.Require().NoError(err)
		s.Zero(max)
	})
}
