package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type MemoryStoreSuite struct {
	suite.Suite

	ctx   context.Context
	store *InMemoryStore
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemoryStore()
}

func (s *MemoryStoreSuite) appendIssued() Event {
	event, err := NewEvent(EventBundleIssued, BundlePayload{BundleID: uuid.New()})
	s.Require().NoError(err)
	appended, err := s.store.Append(s.ctx, event)
	s.Require().NoError(err)
	s.Require().Len(appended, 1)
	return appended[0]
}

func (s *MemoryStoreSuite) TestAppend() {
	s.Run("sequences are strictly increasing without gaps", func() {
		first := s.appendIssued()
		second := s.appendIssued()
		s.Equal(uint64(1), first.Sequence)
		s.Equal(uint64(2), second.Sequence)
	})

	s.Run("batch append sequences every event", func() {
		e1, err := NewEvent(EventTransferExecuted, BundlePayload{BundleID: uuid.New()})
		s.Require().NoError(err)
		e2, err := NewEvent(EventTransferCompleted, BatchPayload{SourceAccountID: uuid.New()})
		s.Require().NoError(err)

		appended, err := s.store.Append(s.ctx, e1, e2)
		s.Require().NoError(err)
		s.Require().Len(appended, 2)
		s.Equal(appended[0].Sequence+1, appended[1].Sequence)
	})
}

func (s *MemoryStoreSuite) TestListFrom() {
	for i := 0; i < 5; i++ {
		s.appendIssued()
	}

	s.Run("reads everything after the cursor in order", func() {
		events, err := s.store.ListFrom(s.ctx, 2, 0)
		s.Require().NoError(err)
		s.Require().Len(events, 3)
		s.Equal(uint64(3), events[0].Sequence)
		s.Equal(uint64(5), events[2].Sequence)
	})

	s.Run("limit caps the batch", func() {
		events, err := s.store.ListFrom(s.ctx, 0, 2)
		s.Require().NoError(err)
		s.Len(events, 2)
	})

	s.Run("cursor at the tip reads nothing", func() {
		events, err := s.store.ListFrom(s.ctx, 5, 0)
		s.Require().NoError(err)
		s.Empty(events)
	})
}

func (s *MemoryStoreSuite) TestLastSequence() {
	last, err := s.store.LastSequence(s.ctx)
	s.Require().NoError(err)
	s.Zero(last)

	s.appendIssued()
	s.appendIssued()

	last, err = s.store.LastSequence(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(2), last)
}
