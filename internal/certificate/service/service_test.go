package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/certificate/models"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/certificate/store/bundle"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/ledger"
	dErrors "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/domain-errors"
	platformtx "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/platform/tx"
)

// fakeGate is an in-test whitelist: edges are (recipient, sender) pairs.
type fakeGate struct {
	allowed map[[2]uuid.UUID]bool
}

func (g *fakeGate) IsAllowed(_ context.Context, recipientID, senderID uuid.UUID) (bool, error) {
	return g.allowed[[2]uuid.UUID{recipientID, senderID}], nil
}

func (g *fakeGate) allow(recipientID, senderID uuid.UUID) {
	g.allowed[[2]uuid.UUID{recipientID, senderID}] = true
}

type ServiceSuite struct {
	suite.Suite

	ctx     context.Context
	bundles *bundle.InMemoryStore
	events  *ledger.InMemoryStore
	gate    *fakeGate
	svc     *Service

	accountA uuid.UUID
	accountB uuid.UUID
	device   uuid.UUID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.bundles = bundle.NewInMemoryStore()
	s.events = ledger.NewInMemoryStore()
	s.gate = &fakeGate{allowed: make(map[[2]uuid.UUID]bool)}
	s.accountA = uuid.New()
	s.accountB = uuid.New()
	s.device = uuid.New()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := New(s.bundles, s.gate, s.events, platformtx.NewMutexRunner(), nil, logger, 365*24*time.Hour)
	s.Require().NoError(err)
	s.svc = svc
}

func (s *ServiceSuite) issue(quantity uint64, start time.Time) *models.Bundle {
	b, err := s.svc.Issue(s.ctx, IssueRequest{
		DeviceID:        s.device,
		OwnerAccountID:  s.accountA,
		Quantity:        quantity,
		EnergySource:    models.SourceWind,
		ProductionStart: start,
		ProductionEnd:   start.Add(time.Hour),
	})
	s.Require().NoError(err)
	return b
}

func (s *ServiceSuite) eventTypes() []ledger.EventType {
	events, err := s.events.ListFrom(s.ctx, 0, 0)
	s.Require().NoError(err)
	types := make([]ledger.EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

// activeQuantity sums the owner's Active units.
func (s *ServiceSuite) activeQuantity(owner uuid.UUID) uint64 {
	bundles, err := s.bundles.ListByOwner(s.ctx, owner)
	s.Require().NoError(err)
	var total uint64
	for _, b := range bundles {
		if b.Status == models.StatusActive {
			total += b.Quantity()
		}
	}
	return total
}

func (s *ServiceSuite) TestIssue() {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s.Run("first issuance starts at unit one", func() {
		b := s.issue(1000, start)
		s.Equal(uint64(1), b.RangeStart)
		s.Equal(uint64(1000), b.RangeEnd)
		s.Equal(models.StatusActive, b.Status)
		s.NotEmpty(b.LineageHash)
		s.Equal([]ledger.EventType{ledger.EventBundleIssued}, s.eventTypes())
	})

	s.Run("next issuance continues the device range", func() {
		b := s.issue(500, start.Add(time.Hour))
		s.Equal(uint64(1001), b.RangeStart)
		s.Equal(uint64(1500), b.RangeEnd)
	})

	s.Run("zero quantity rejected", func() {
		_, err := s.svc.Issue(s.ctx, IssueRequest{
			DeviceID:        s.device,
			OwnerAccountID:  s.accountA,
			EnergySource:    models.SourceWind,
			ProductionStart: start,
			ProductionEnd:   start.Add(time.Hour),
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidQuantity))
	})

	s.Run("inverted production interval rejected", func() {
		_, err := s.svc.Issue(s.ctx, IssueRequest{
			DeviceID:        s.device,
			OwnerAccountID:  s.accountA,
			Quantity:        10,
			EnergySource:    models.SourceWind,
			ProductionStart: start.Add(time.Hour),
			ProductionEnd:   start,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestTransfer() {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pct := func(v float64) *float64 { return &v }

	s.Run("quarter of a thousand-unit bundle moves the top slice", func() {
		b := s.issue(1000, start)
		s.gate.allow(s.accountB, s.accountA)

		moved, err := s.svc.Transfer(s.ctx, TransferRequest{
			BundleIDs:       []uuid.UUID{b.ID},
			SourceAccountID: s.accountA,
			TargetAccountID: s.accountB,
			Amount:          models.Amount{Percentage: pct(25)},
		})
		s.Require().NoError(err)
		s.Require().Len(moved, 1)
		s.Equal(uint64(751), moved[0].RangeStart)
		s.Equal(uint64(1000), moved[0].RangeEnd)
		s.Equal(s.accountB, moved[0].OwnerAccountID)
		s.Equal(models.StatusActive, moved[0].Status)

		s.Equal(uint64(750), s.activeQuantity(s.accountA))
		s.Equal(uint64(250), s.activeQuantity(s.accountB))

		types := s.eventTypes()
		s.Equal([]ledger.EventType{
			ledger.EventBundleIssued,
			ledger.EventBundleSplit,
			ledger.EventBundleSplit,
			ledger.EventTransferExecuted,
			ledger.EventTransferCompleted,
		}, types)
	})

	s.Run("missing whitelist edge blocks the transfer untouched", func() {
		b := s.issue(100, start.Add(2*time.Hour))
		accountC := uuid.New()
		before, err := s.events.LastSequence(s.ctx)
		s.Require().NoError(err)

		_, err = s.svc.Transfer(s.ctx, TransferRequest{
			BundleIDs:       []uuid.UUID{b.ID},
			SourceAccountID: s.accountA,
			TargetAccountID: accountC,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotWhitelisted))

		unchanged, err := s.bundles.Get(s.ctx, b.ID)
		s.Require().NoError(err)
		s.Equal(s.accountA, unchanged.OwnerAccountID)
		s.Equal(models.StatusActive, unchanged.Status)

		after, err := s.events.LastSequence(s.ctx)
		s.Require().NoError(err)
		s.Equal(before, after)
	})

	s.Run("self transfer rejected", func() {
		_, err := s.svc.Transfer(s.ctx, TransferRequest{
			BundleIDs:       []uuid.UUID{uuid.New()},
			SourceAccountID: s.accountA,
			TargetAccountID: s.accountA,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("transfer from a foreign account is forbidden", func() {
		b := s.issue(100, start.Add(4*time.Hour))
		other := uuid.New()
		s.gate.allow(s.accountB, other)

		_, err := s.svc.Transfer(s.ctx, TransferRequest{
			BundleIDs:       []uuid.UUID{b.ID},
			SourceAccountID: other,
			TargetAccountID: s.accountB,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestDuplicateSelectionRejected() {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := s.issue(1000, start)
	s.gate.allow(s.accountB, s.accountA)
	before, err := s.events.LastSequence(s.ctx)
	s.Require().NoError(err)

	s.Run("transfer listing one bundle twice leaves it untouched", func() {
		// Listing the bundle twice would make the combined quantity look
		// like 2000 units, enough to cover the 1500 requested here.
		q := uint64(1500)
		_, err := s.svc.Transfer(s.ctx, TransferRequest{
			BundleIDs:       []uuid.UUID{b.ID, b.ID},
			SourceAccountID: s.accountA,
			TargetAccountID: s.accountB,
			Amount:          models.Amount{Quantity: &q},
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

		unchanged, err := s.bundles.Get(s.ctx, b.ID)
		s.Require().NoError(err)
		s.Equal(s.accountA, unchanged.OwnerAccountID)
		s.Equal(models.StatusActive, unchanged.Status)
		s.Equal(uint64(1000), unchanged.Quantity())

		after, err := s.events.LastSequence(s.ctx)
		s.Require().NoError(err)
		s.Equal(before, after)
	})

	s.Run("lock rejects a duplicated selection", func() {
		_, err := s.svc.Lock(s.ctx, []uuid.UUID{b.ID, b.ID})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestTransferConservation() {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := s.issue(1000, start)
	s.gate.allow(s.accountB, s.accountA)

	q := uint64(600)
	moved, err := s.svc.Transfer(s.ctx, TransferRequest{
		BundleIDs:       []uuid.UUID{b.ID},
		SourceAccountID: s.accountA,
		TargetAccountID: s.accountB,
		Amount:          models.Amount{Quantity: &q},
	})
	s.Require().NoError(err)
	s.Require().Len(moved, 1)
	s.Equal(uint64(600), moved[0].Quantity())

	s.Run("a second spend of the retired bundle fails", func() {
		_, err := s.svc.Transfer(s.ctx, TransferRequest{
			BundleIDs:       []uuid.UUID{b.ID},
			SourceAccountID: s.accountA,
			TargetAccountID: s.accountB,
			Amount:          models.Amount{Quantity: &q},
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBundleNotActive))
	})

	s.Run("requesting more than the remainder fails without over-allocation", func() {
		remainder, err := s.bundles.ListByOwner(s.ctx, s.accountA)
		s.Require().NoError(err)
		s.Require().Len(remainder, 1)
		s.Equal(uint64(400), remainder[0].Quantity())

		_, err = s.svc.Transfer(s.ctx, TransferRequest{
			BundleIDs:       []uuid.UUID{remainder[0].ID},
			SourceAccountID: s.accountA,
			TargetAccountID: s.accountB,
			Amount:          models.Amount{Quantity: &q},
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidQuantity))
	})

	s.Run("total derived quantity equals the issued quantity", func() {
		s.Equal(uint64(1000), s.activeQuantity(s.accountA)+s.activeQuantity(s.accountB))
	})
}

func (s *ServiceSuite) TestCancel() {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s.Run("over-quantity cancel leaves state untouched", func() {
		b := s.issue(250, start)
		q := uint64(300)
		_, err := s.svc.Cancel(s.ctx, CancelRequest{
			BundleIDs:      []uuid.UUID{b.ID},
			OwnerAccountID: s.accountA,
			Beneficiary:    "Acme Offsets",
			Amount:         models.Amount{Quantity: &q},
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidQuantity))

		unchanged, err := s.bundles.Get(s.ctx, b.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusActive, unchanged.Status)
	})

	s.Run("cancel records the beneficiary on the consumed slice", func() {
		b := s.issue(500, start.Add(2*time.Hour))
		q := uint64(200)
		cancelled, err := s.svc.Cancel(s.ctx, CancelRequest{
			BundleIDs:      []uuid.UUID{b.ID},
			OwnerAccountID: s.accountA,
			Beneficiary:    "Acme Offsets",
			Amount:         models.Amount{Quantity: &q},
		})
		s.Require().NoError(err)
		s.Require().Len(cancelled, 1)
		s.Equal(models.StatusCancelled, cancelled[0].Status)
		s.Require().NotNil(cancelled[0].Beneficiary)
		s.Equal("Acme Offsets", *cancelled[0].Beneficiary)
		s.Equal(uint64(200), cancelled[0].Quantity())
	})

	s.Run("cancelling a cancelled bundle fails", func() {
		b := s.issue(100, start.Add(4*time.Hour))
		_, err := s.svc.Cancel(s.ctx, CancelRequest{
			BundleIDs:      []uuid.UUID{b.ID},
			OwnerAccountID: s.accountA,
			Beneficiary:    "Acme Offsets",
		})
		s.Require().NoError(err)

		_, err = s.svc.Cancel(s.ctx, CancelRequest{
			BundleIDs:      []uuid.UUID{b.ID},
			OwnerAccountID: s.accountA,
			Beneficiary:    "Acme Offsets",
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBundleNotActive))
	})

	s.Run("beneficiary is mandatory", func() {
		_, err := s.svc.Cancel(s.ctx, CancelRequest{
			BundleIDs:      []uuid.UUID{uuid.New()},
			OwnerAccountID: s.accountA,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestLifecycleActions() {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s.Run("reserve and release round trip", func() {
		b := s.issue(1000, start)
		q := uint64(400)
		reserved, err := s.svc.Reserve(s.ctx, []uuid.UUID{b.ID}, s.accountA, models.Amount{Quantity: &q})
		s.Require().NoError(err)
		s.Require().Len(reserved, 1)
		s.Equal(models.StatusReserved, reserved[0].Status)
		s.Equal(uint64(400), reserved[0].Quantity())
		s.Equal(uint64(600), s.activeQuantity(s.accountA))

		released, err := s.svc.Release(s.ctx, []uuid.UUID{reserved[0].ID}, s.accountA)
		s.Require().NoError(err)
		s.Require().Len(released, 1)
		s.Equal(models.StatusActive, released[0].Status)
		s.Equal(uint64(1000), s.activeQuantity(s.accountA))
	})

	s.Run("reserved bundles can be cancelled but not transferred", func() {
		b := s.issue(100, start.Add(2*time.Hour))
		reserved, err := s.svc.Reserve(s.ctx, []uuid.UUID{b.ID}, s.accountA, models.Amount{})
		s.Require().NoError(err)

		s.gate.allow(s.accountB, s.accountA)
		_, err = s.svc.Transfer(s.ctx, TransferRequest{
			BundleIDs:       []uuid.UUID{reserved[0].ID},
			SourceAccountID: s.accountA,
			TargetAccountID: s.accountB,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBundleNotActive))

		cancelled, err := s.svc.Cancel(s.ctx, CancelRequest{
			BundleIDs:      []uuid.UUID{reserved[0].ID},
			OwnerAccountID: s.accountA,
			Beneficiary:    "Acme Offsets",
		})
		s.Require().NoError(err)
		s.Equal(models.StatusCancelled, cancelled[0].Status)
	})

	s.Run("claim retires a cancelled bundle", func() {
		b := s.issue(100, start.Add(4*time.Hour))
		cancelled, err := s.svc.Cancel(s.ctx, CancelRequest{
			BundleIDs:      []uuid.UUID{b.ID},
			OwnerAccountID: s.accountA,
			Beneficiary:    "Acme Offsets",
		})
		s.Require().NoError(err)

		claimed, err := s.svc.Claim(s.ctx, []uuid.UUID{cancelled[0].ID}, s.accountA)
		s.Require().NoError(err)
		s.Equal(models.StatusClaimed, claimed[0].Status)
	})

	s.Run("claim requires a cancelled bundle", func() {
		b := s.issue(100, start.Add(6*time.Hour))
		_, err := s.svc.Claim(s.ctx, []uuid.UUID{b.ID}, s.accountA)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBundleNotActive))
	})

	s.Run("withdraw removes units from circulation", func() {
		b := s.issue(100, start.Add(8*time.Hour))
		withdrawn, err := s.svc.Withdraw(s.ctx, []uuid.UUID{b.ID}, s.accountA, models.Amount{})
		s.Require().NoError(err)
		s.Equal(models.StatusWithdrawn, withdrawn[0].Status)
	})

	s.Run("lock holds a bundle in any state", func() {
		b := s.issue(100, start.Add(10*time.Hour))
		locked, err := s.svc.Lock(s.ctx, []uuid.UUID{b.ID})
		s.Require().NoError(err)
		s.Equal(models.StatusLocked, locked[0].Status)

		_, err = s.svc.Lock(s.ctx, []uuid.UUID{b.ID})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBundleNotActive))
	})
}

func (s *ServiceSuite) TestExpireDue() {
	old := s.issue(100, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	fresh := s.issue(100, time.Now().Add(-2*time.Hour))

	count, err := s.svc.ExpireDue(s.ctx, time.Now())
	s.Require().NoError(err)
	s.Equal(1, count)

	expired, err := s.bundles.Get(s.ctx, old.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, expired.Status)

	kept, err := s.bundles.Get(s.ctx, fresh.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusActive, kept.Status)

	s.Run("second sweep finds nothing", func() {
		count, err := s.svc.ExpireDue(s.ctx, time.Now())
		s.Require().NoError(err)
		s.Zero(count)
	})
}
