package whitelist

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/ledger"
	dErrors "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/domain-errors"
	platformtx "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/platform/tx"
)

type GateSuite struct {
	suite.Suite

	ctx    context.Context
	events *ledger.InMemoryStore
	gate   *Gate

	recipient uuid.UUID
	sender    uuid.UUID
}

func TestGateSuite(t *testing.T) {
	suite.Run(t, new(GateSuite))
}

func (s *GateSuite) SetupTest() {
	s.ctx = context.Background()
	s.events = ledger.NewInMemoryStore()
	s.recipient = uuid.New()
	s.sender = uuid.New()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate, err := NewGate(NewInMemoryStore(), s.events, platformtx.NewMutexRunner(), logger)
	s.Require().NoError(err)
	s.gate = gate
}

func (s *GateSuite) TestUpdate() {
	s.Run("adding an edge allows the sender", func() {
		s.Require().NoError(s.gate.Update(s.ctx, s.recipient, s.sender, true))

		allowed, err := s.gate.IsAllowed(s.ctx, s.recipient, s.sender)
		s.Require().NoError(err)
		s.True(allowed)

		last, err := s.events.LastSequence(s.ctx)
		s.Require().NoError(err)
		s.Equal(uint64(1), last)
	})

	s.Run("the relation is directional", func() {
		allowed, err := s.gate.IsAllowed(s.ctx, s.sender, s.recipient)
		s.Require().NoError(err)
		s.False(allowed)
	})

	s.Run("no-op edit appends nothing", func() {
		before, err := s.events.LastSequence(s.ctx)
		s.Require().NoError(err)

		s.Require().NoError(s.gate.Update(s.ctx, s.recipient, s.sender, true))

		after, err := s.events.LastSequence(s.ctx)
		s.Require().NoError(err)
		s.Equal(before, after)
	})

	s.Run("removing the edge revokes the sender", func() {
		s.Require().NoError(s.gate.Update(s.ctx, s.recipient, s.sender, false))

		allowed, err := s.gate.IsAllowed(s.ctx, s.recipient, s.sender)
		s.Require().NoError(err)
		s.False(allowed)
	})

	s.Run("self whitelisting rejected", func() {
		err := s.gate.Update(s.ctx, s.recipient, s.recipient, true)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *GateSuite) TestListSenders() {
	senderB := uuid.New()
	s.Require().NoError(s.gate.Update(s.ctx, s.recipient, s.sender, true))
	s.Require().NoError(s.gate.Update(s.ctx, s.recipient, senderB, true))

	senders, err := s.gate.ListSenders(s.ctx, s.recipient)
	s.Require().NoError(err)
	s.Len(senders, 2)
	s.Contains(senders, s.sender)
	s.Contains(senders, senderB)
}
