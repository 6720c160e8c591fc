package projector

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/ledger"
)

type ProjectorSuite struct {
	suite.Suite

	ctx    context.Context
	events *ledger.InMemoryStore
	view   *InMemoryView
	proj   *Projector
}

func TestProjectorSuite(t *testing.T) {
	suite.Run(t, new(ProjectorSuite))
}

func (s *ProjectorSuite) SetupTest() {
	s.ctx = context.Background()
	s.events = ledger.NewInMemoryStore()
	s.view = NewInMemoryView()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	proj, err := New(s.events, s.view, logger, time.Millisecond)
	s.Require().NoError(err)
	s.proj = proj
}

func (s *ProjectorSuite) append(eventType ledger.EventType, payload ledger.BundlePayload) {
	event, err := ledger.NewEvent(eventType, payload)
	s.Require().NoError(err)
	_, err = s.events.Append(s.ctx, event)
	s.Require().NoError(err)
}

func (s *ProjectorSuite) issuedPayload(owner uuid.UUID, start, end uint64) ledger.BundlePayload {
	return ledger.BundlePayload{
		BundleID:        uuid.New(),
		IssuanceID:      "dev/2026-01-01T00:00:00Z",
		DeviceID:        uuid.New(),
		OwnerAccountID:  owner,
		RangeStart:      start,
		RangeEnd:        end,
		Status:          "active",
		EnergySource:    "wind",
		ProductionStart: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ProductionEnd:   time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC),
		LineageHash:     "root",
	}
}

func (s *ProjectorSuite) TestCatchUp() {
	owner := uuid.New()
	p := s.issuedPayload(owner, 1, 1000)
	s.append(ledger.EventBundleIssued, p)

	s.Run("materializes issued bundles", func() {
		s.Require().NoError(s.proj.CatchUp(s.ctx))

		views, err := s.view.Query(s.ctx, Query{OwnerAccountID: &owner})
		s.Require().NoError(err)
		s.Require().Len(views, 1)
		s.Equal(p.BundleID, views[0].BundleID)
		s.Equal(uint64(1000), views[0].Quantity)
		s.Equal("active", views[0].Status)
	})

	s.Run("later events update existing bundles", func() {
		p.Status = "cancelled"
		s.append(ledger.EventBundleCancelled, p)
		s.Require().NoError(s.proj.CatchUp(s.ctx))

		views, err := s.view.Query(s.ctx, Query{OwnerAccountID: &owner})
		s.Require().NoError(err)
		s.Require().Len(views, 1)
		s.Equal("cancelled", views[0].Status)
	})

	s.Run("non-bundle events advance the cursor only", func() {
		event, err := ledger.NewEvent(ledger.EventWhitelistUpdated, ledger.WhitelistPayload{
			RecipientAccountID: uuid.New(),
			SenderAccountID:    uuid.New(),
			Allow:              true,
		})
		s.Require().NoError(err)
		_, err = s.events.Append(s.ctx, event)
		s.Require().NoError(err)

		s.Require().NoError(s.proj.CatchUp(s.ctx))
		last, err := s.view.LastApplied(s.ctx)
		s.Require().NoError(err)
		s.Equal(uint64(3), last)
	})
}

func (s *ProjectorSuite) TestIdempotentReplay() {
	owner := uuid.New()
	first := s.issuedPayload(owner, 1, 500)
	second := s.issuedPayload(owner, 501, 1000)
	s.append(ledger.EventBundleIssued, first)
	s.append(ledger.EventBundleIssued, second)
	second.Status = "reserved"
	s.append(ledger.EventBundleReserved, second)

	s.Require().NoError(s.proj.CatchUp(s.ctx))
	once, err := s.view.Query(s.ctx, Query{})
	s.Require().NoError(err)

	// Replay the full ledger through the same view; Apply must skip
	// everything it has already seen.
	events, err := s.events.ListFrom(s.ctx, 0, 0)
	s.Require().NoError(err)
	for _, event := range events {
		s.Require().NoError(s.view.Apply(s.ctx, event))
	}

	twice, err := s.view.Query(s.ctx, Query{})
	s.Require().NoError(err)
	s.Equal(once, twice)

	// And a fresh view replayed from zero converges to the same state.
	fresh := NewInMemoryView()
	for _, event := range events {
		s.Require().NoError(fresh.Apply(s.ctx, event))
	}
	rebuilt, err := fresh.Query(s.ctx, Query{})
	s.Require().NoError(err)
	s.Equal(once, rebuilt)
}

func (s *ProjectorSuite) TestQueryFilters() {
	ownerA := uuid.New()
	ownerB := uuid.New()
	a := s.issuedPayload(ownerA, 1, 100)
	b := s.issuedPayload(ownerB, 101, 200)
	b.Status = "cancelled"
	s.append(ledger.EventBundleIssued, a)
	s.append(ledger.EventBundleCancelled, b)
	s.Require().NoError(s.proj.CatchUp(s.ctx))

	s.Run("by owner", func() {
		views, err := s.view.Query(s.ctx, Query{OwnerAccountID: &ownerA})
		s.Require().NoError(err)
		s.Require().Len(views, 1)
		s.Equal(a.BundleID, views[0].BundleID)
	})

	s.Run("by status", func() {
		views, err := s.view.Query(s.ctx, Query{Status: "cancelled"})
		s.Require().NoError(err)
		s.Require().Len(views, 1)
		s.Equal(b.BundleID, views[0].BundleID)
	})

	s.Run("by device", func() {
		views, err := s.view.Query(s.ctx, Query{DeviceID: &a.DeviceID})
		s.Require().NoError(err)
		s.Require().Len(views, 1)
		s.Equal(a.BundleID, views[0].BundleID)
	})

	s.Run("by production window", func() {
		after := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
		views, err := s.view.Query(s.ctx, Query{ProducedAfter: &after})
		s.Require().NoError(err)
		s.Empty(views)
	})

	s.Run("no filter returns everything in canonical order", func() {
		views, err := s.view.Query(s.ctx, Query{})
		s.Require().NoError(err)
		s.Require().Len(views, 2)
		s.Equal(uint64(1), views[0].RangeStart)
		s.Equal(uint64(101), views[1].RangeStart)
	})
}
