//go:build integration

package projector_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/ledger"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/ledger/projector"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/testutil/containers"
)

type RedisViewSuite struct {
	suite.Suite

	ctx   context.Context
	redis *containers.RedisContainer
	view  *projector.RedisView
}

func TestRedisViewSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisViewSuite))
}

func (s *RedisViewSuite) SetupSuite() {
	s.ctx = context.Background()
	s.redis = containers.NewRedisContainer(s.T())
	s.view = projector.NewRedisView(s.redis.Client)
}

func (s *RedisViewSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisViewSuite) issuedEvent(seq uint64, owner uuid.UUID) ledger.Event {
	event, err := ledger.NewEvent(ledger.EventBundleIssued, ledger.BundlePayload{
		BundleID:        uuid.New(),
		IssuanceID:      uuid.NewString() + "/2026-01-01T00:00:00Z",
		DeviceID:        uuid.New(),
		OwnerAccountID:  owner,
		RangeStart:      1,
		RangeEnd:        100,
		Status:          "active",
		EnergySource:    "wind",
		ProductionStart: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ProductionEnd:   time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC),
		LineageHash:     "deadbeef",
	})
	s.Require().NoError(err)
	event.Sequence = seq
	return event
}

func (s *RedisViewSuite) TestApplyAdvancesCursor() {
	owner := uuid.New()
	s.Require().NoError(s.view.Apply(s.ctx, s.issuedEvent(1, owner)))
	s.Require().NoError(s.view.Apply(s.ctx, s.issuedEvent(2, owner)))

	last, err := s.view.LastApplied(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(2), last)

	views, err := s.view.Query(s.ctx, projector.Query{OwnerAccountID: &owner})
	s.Require().NoError(err)
	s.Len(views, 2)
	s.Equal(uint64(100), views[0].Quantity)
}

func (s *RedisViewSuite) TestReplayIsIdempotent() {
	owner := uuid.New()
	event := s.issuedEvent(1, owner)
	s.Require().NoError(s.view.Apply(s.ctx, event))
	s.Require().NoError(s.view.Apply(s.ctx, event))

	last, err := s.view.LastApplied(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(1), last)

	views, err := s.view.Query(s.ctx, projector.Query{OwnerAccountID: &owner})
	s.Require().NoError(err)
	s.Len(views, 1)
}

func (s *RedisViewSuite) TestQueryFiltersByStatus() {
	owner := uuid.New()
	s.Require().NoError(s.view.Apply(s.ctx, s.issuedEvent(1, owner)))

	views, err := s.view.Query(s.ctx, projector.Query{Status: "cancelled"})
	s.Require().NoError(err)
	s.Empty(views)

	views, err = s.view.Query(s.ctx, projector.Query{Status: "active"})
	s.Require().NoError(err)
	s.Len(views, 1)
	s.Equal(owner, views[0].OwnerAccountID)
}
