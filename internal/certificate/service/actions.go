package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/certificate/models"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/ledger"
	dErrors "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/domain-errors"
)

// Reserve places a hold on the requested quantity (Active -> Reserved),
// splitting bundles where needed. A reservation can later be released or
// cancelled but never transferred while held.
func (s *Service) Reserve(ctx context.Context, bundleIDs []uuid.UUID, ownerAccountID uuid.UUID, amount models.Amount) (reserved []*models.Bundle, err error) {
	started := time.Now()
	var units uint64
	defer func() { s.observe("reserve", err, units, started) }()

	err = s.txr.RunInTx(ctx, func(ctx context.Context) error {
		bundles, err := s.loadOwned(ctx, bundleIDs, ownerAccountID, models.StatusActive)
		if err != nil {
			return err
		}
		quantity, err := amount.Resolve(totalQuantity(bundles))
		if err != nil {
			return err
		}
		status := models.StatusReserved
		reserved, err = s.consume(ctx, bundles, quantity, models.Mutation{NewStatus: &status})
		if err != nil {
			return err
		}
		units = quantity
		return s.appendBundleEvents(ctx, ledger.EventBundleReserved, reserved)
	})
	if err != nil {
		return nil, err
	}
	return reserved, nil
}

// Release returns reserved bundles to Active in full; partial releases are
// expressed by reserving less in the first place.
func (s *Service) Release(ctx context.Context, bundleIDs []uuid.UUID, ownerAccountID uuid.UUID) (released []*models.Bundle, err error) {
	started := time.Now()
	defer func() { s.observe("release", err, 0, started) }()

	err = s.txr.RunInTx(ctx, func(ctx context.Context) error {
		bundles, err := s.loadOwned(ctx, bundleIDs, ownerAccountID, models.StatusReserved)
		if err != nil {
			return err
		}
		status := models.StatusActive
		released, err = s.mutateWhole(ctx, bundles, models.Mutation{NewStatus: &status})
		if err != nil {
			return err
		}
		return s.appendBundleEvents(ctx, ledger.EventBundleReleased, released)
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

// Withdraw removes bundles from circulation, a registry-operator correction
// for mis-issued certificates. Withdrawn ranges free their unit IDs for
// re-issuance.
func (s *Service) Withdraw(ctx context.Context, bundleIDs []uuid.UUID, ownerAccountID uuid.UUID, amount models.Amount) (withdrawn []*models.Bundle, err error) {
	started := time.Now()
	var units uint64
	defer func() { s.observe("withdraw", err, units, started) }()

	err = s.txr.RunInTx(ctx, func(ctx context.Context) error {
		bundles, err := s.loadOwned(ctx, bundleIDs, ownerAccountID,
			models.StatusActive, models.StatusReserved)
		if err != nil {
			return err
		}
		quantity, err := amount.Resolve(totalQuantity(bundles))
		if err != nil {
			return err
		}
		status := models.StatusWithdrawn
		withdrawn, err = s.consume(ctx, bundles, quantity, models.Mutation{NewStatus: &status})
		if err != nil {
			return err
		}
		units = quantity
		return s.appendBundleEvents(ctx, ledger.EventBundleWithdrawn, withdrawn)
	})
	if err != nil {
		return nil, err
	}
	return withdrawn, nil
}

// Claim records the retirement claim on already cancelled bundles
// (Cancelled -> Claimed). Claims apply to whole bundles; the cancellation
// step decides the granularity.
func (s *Service) Claim(ctx context.Context, bundleIDs []uuid.UUID, ownerAccountID uuid.UUID) (claimed []*models.Bundle, err error) {
	started := time.Now()
	defer func() { s.observe("claim", err, 0, started) }()

	err = s.txr.RunInTx(ctx, func(ctx context.Context) error {
		bundles, err := s.loadOwned(ctx, bundleIDs, ownerAccountID, models.StatusCancelled)
		if err != nil {
			return err
		}
		status := models.StatusClaimed
		claimed, err = s.mutateWhole(ctx, bundles, models.Mutation{NewStatus: &status})
		if err != nil {
			return err
		}
		return s.appendBundleEvents(ctx, ledger.EventBundleClaimed, claimed)
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Lock force-moves whole bundles into the Locked compliance hold. Locks are
// reachable from any state, are never auto-released, and ignore ownership:
// the invoking compliance collaborator has already authorized the hold.
func (s *Service) Lock(ctx context.Context, bundleIDs []uuid.UUID) (locked []*models.Bundle, err error) {
	started := time.Now()
	defer func() { s.observe("lock", err, 0, started) }()

	err = s.txr.RunInTx(ctx, func(ctx context.Context) error {
		if err := validateSelection(bundleIDs); err != nil {
			return err
		}
		bundles, err := s.bundles.GetMany(ctx, bundleIDs)
		if err != nil {
			return s.storeError(err, "load bundles")
		}
		for _, b := range bundles {
			if b.Status == models.StatusLocked {
				return dErrors.Newf(dErrors.CodeBundleNotActive, "bundle %s is already locked", b.ID)
			}
			if b.Status == models.StatusSplit {
				return dErrors.Newf(dErrors.CodeBundleNotActive, "bundle %s was split", b.ID)
			}
		}
		status := models.StatusLocked
		locked, err = s.mutateWhole(ctx, bundles, models.Mutation{NewStatus: &status})
		if err != nil {
			return err
		}
		return s.appendBundleEvents(ctx, ledger.EventBundleLocked, locked)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WarnContext(ctx, "compliance lock applied", "bundles", len(locked))
	return locked, nil
}

// ExpireDue moves every Active or Reserved bundle whose validity window has
// elapsed to Expired and returns how many bundles it collected. Driven by a
// periodic sweep; a bundle expires when productionEnd + validity has passed.
func (s *Service) ExpireDue(ctx context.Context, now time.Time) (count int, err error) {
	started := time.Now()
	defer func() { s.observe("expire", err, 0, started) }()

	err = s.txr.RunInTx(ctx, func(ctx context.Context) error {
		bundles, err := s.bundles.ListExpirable(ctx, now.Add(-s.validity))
		if err != nil {
			return s.storeError(err, "list expirable bundles")
		}
		if len(bundles) == 0 {
			return nil
		}
		status := models.StatusExpired
		expired, err := s.mutateWhole(ctx, bundles, models.Mutation{NewStatus: &status})
		if err != nil {
			return err
		}
		count = len(expired)
		return s.appendBundleEvents(ctx, ledger.EventBundleExpired, expired)
	})
	if err != nil {
		return 0, err
	}

	if count > 0 {
		s.logger.InfoContext(ctx, "expiry sweep completed", "expired", count)
	}
	return count, nil
}

// mutateWhole applies the mutation to each bundle in full, without splitting.
func (s *Service) mutateWhole(ctx context.Context, bundles []*models.Bundle, m models.Mutation) ([]*models.Bundle, error) {
	mutated := make([]*models.Bundle, 0, len(bundles))
	for _, b := range bundles {
		_, mv, err := s.bundles.SplitAndMutate(ctx, b.ID, b.Version, b.Quantity(), m)
		if err != nil {
			return nil, s.storeError(err, "mutate bundle")
		}
		mutated = append(mutated, mv)
	}
	return mutated, nil
}
