package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	dErrors "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/domain-errors"
)

type ModelsSuite struct {
	suite.Suite
}

func TestModelsSuite(t *testing.T) {
	suite.Run(t, new(ModelsSuite))
}

func (s *ModelsSuite) TestAmountResolve() {
	q := func(v uint64) *uint64 { return &v }
	p := func(v float64) *float64 { return &v }

	s.Run("absolute quantity within total", func() {
		got, err := Amount{Quantity: q(250)}.Resolve(1000)
		s.NoError(err)
		s.Equal(uint64(250), got)
	})

	s.Run("quantity above total is invalid", func() {
		_, err := Amount{Quantity: q(300)}.Resolve(250)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidQuantity))
	})

	s.Run("zero quantity is invalid", func() {
		_, err := Amount{Quantity: q(0)}.Resolve(1000)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidQuantity))
	})

	s.Run("percentage resolves against combined quantity", func() {
		got, err := Amount{Percentage: p(25)}.Resolve(1000)
		s.NoError(err)
		s.Equal(uint64(250), got)
	})

	s.Run("fractional percentage floors", func() {
		got, err := Amount{Percentage: p(33.3)}.Resolve(100)
		s.NoError(err)
		s.Equal(uint64(33), got)
	})

	s.Run("percentage above 100 is invalid", func() {
		_, err := Amount{Percentage: p(100.5)}.Resolve(1000)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidQuantity))
	})

	s.Run("percentage resolving to zero is invalid", func() {
		_, err := Amount{Percentage: p(0.1)}.Resolve(10)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidQuantity))
	})

	s.Run("both quantity and percentage rejected", func() {
		_, err := Amount{Quantity: q(10), Percentage: p(10)}.Resolve(1000)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("neither selects the full total", func() {
		got, err := Amount{}.Resolve(1000)
		s.NoError(err)
		s.Equal(uint64(1000), got)
	})
}

func (s *ModelsSuite) TestStatusTransitions() {
	s.Run("active can be reserved and released back", func() {
		s.True(CanTransition(StatusActive, StatusReserved))
		s.True(CanTransition(StatusReserved, StatusActive))
	})

	s.Run("cancelled never returns to active", func() {
		s.False(CanTransition(StatusCancelled, StatusActive))
		s.False(CanTransition(StatusWithdrawn, StatusActive))
		s.False(CanTransition(StatusExpired, StatusActive))
	})

	s.Run("cancelled can be claimed", func() {
		s.True(CanTransition(StatusCancelled, StatusClaimed))
	})

	s.Run("locked is a dead end", func() {
		for _, to := range []Status{StatusActive, StatusReserved, StatusCancelled, StatusClaimed} {
			s.False(CanTransition(StatusLocked, to))
		}
	})

	s.Run("lock reachable from every live state", func() {
		for _, from := range []Status{StatusActive, StatusReserved, StatusCancelled, StatusClaimed, StatusWithdrawn, StatusExpired} {
			s.True(CanTransition(from, StatusLocked), "from %s", from)
		}
	})

	s.Run("terminal states identified", func() {
		s.False(StatusActive.Terminal())
		s.False(StatusReserved.Terminal())
		s.True(StatusCancelled.Terminal())
		s.True(StatusSplit.Terminal())
	})
}

func (s *ModelsSuite) TestBundleValidate() {
	valid := func() *Bundle {
		return &Bundle{
			ID:              uuid.New(),
			IssuanceID:      "dev/2026-01-01T00:00:00Z",
			DeviceID:        uuid.New(),
			OwnerAccountID:  uuid.New(),
			RangeStart:      1,
			RangeEnd:        1000,
			Status:          StatusActive,
			EnergySource:    SourceWind,
			ProductionStart: time.Now().Add(-2 * time.Hour),
			ProductionEnd:   time.Now().Add(-1 * time.Hour),
		}
	}

	s.Run("valid bundle passes", func() {
		s.NoError(valid().Validate())
	})

	s.Run("inverted range rejected", func() {
		b := valid()
		b.RangeStart, b.RangeEnd = b.RangeEnd, b.RangeStart
		err := b.Validate()
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("unknown status rejected", func() {
		b := valid()
		b.Status = Status("pending")
		s.Error(b.Validate())
	})

	s.Run("efficiency factor outside unit interval rejected", func() {
		b := valid()
		f := 1.2
		b.EfficiencyFactor = &f
		s.Error(b.Validate())
	})

	s.Run("single unit range is valid", func() {
		b := valid()
		b.RangeStart, b.RangeEnd = 42, 42
		s.NoError(b.Validate())
		s.Equal(uint64(1), b.Quantity())
	})
}

func (s *ModelsSuite) TestLineageHash() {
	base := &Bundle{
		ID:              uuid.New(),
		IssuanceID:      "dev/2026-01-01T00:00:00Z",
		DeviceID:        uuid.New(),
		RangeStart:      1,
		RangeEnd:        1000,
		EnergySource:    SourceSolarPV,
		ProductionStart: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ProductionEnd:   time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC),
	}

	s.Run("deterministic for identical lineage fields", func() {
		s.Equal(ComputeLineageHash(base, ""), ComputeLineageHash(base, ""))
	})

	s.Run("range change alters the hash", func() {
		child := *base
		child.RangeEnd = 750
		s.NotEqual(ComputeLineageHash(base, ""), ComputeLineageHash(&child, ""))
	})

	s.Run("parent hash chains into the child hash", func() {
		root := ComputeLineageHash(base, "")
		s.NotEqual(ComputeLineageHash(base, root), root)
	})

	s.Run("owner is not a lineage field", func() {
		moved := *base
		moved.OwnerAccountID = uuid.New()
		s.Equal(ComputeLineageHash(base, ""), ComputeLineageHash(&moved, ""))
	})
}
