package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/certificate/models"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/ledger"
	dErrors "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/domain-errors"
)

// CancelRequest retires certificate units against a named beneficiary.
type CancelRequest struct {
	BundleIDs      []uuid.UUID
	OwnerAccountID uuid.UUID
	Beneficiary    string
	Amount         models.Amount
}

// Cancel irreversibly retires the requested quantity, recording the
// beneficiary for retirement-claim attribution. Active and Reserved bundles
// qualify; cancelling an already cancelled bundle fails with
// CodeBundleNotActive. No whitelist check applies.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (cancelled []*models.Bundle, err error) {
	started := time.Now()
	var units uint64
	defer func() { s.observe("cancel", err, units, started) }()

	if req.Beneficiary == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "beneficiary is required")
	}

	err = s.txr.RunInTx(ctx, func(ctx context.Context) error {
		bundles, err := s.loadOwned(ctx, req.BundleIDs, req.OwnerAccountID,
			models.StatusActive, models.StatusReserved)
		if err != nil {
			return err
		}

		quantity, err := req.Amount.Resolve(totalQuantity(bundles))
		if err != nil {
			return err
		}

		status := models.StatusCancelled
		beneficiary := req.Beneficiary
		cancelled, err = s.consume(ctx, bundles, quantity, models.Mutation{
			NewStatus:   &status,
			Beneficiary: &beneficiary,
		})
		if err != nil {
			return err
		}

		if err := s.appendBundleEvents(ctx, ledger.EventBundleCancelled, cancelled); err != nil {
			return err
		}
		completed, err := ledger.NewEvent(ledger.EventCancellationCompleted, ledger.BatchPayload{
			SourceAccountID: req.OwnerAccountID,
			Beneficiary:     &beneficiary,
			BundleIDs:       bundleIDs(cancelled),
			Quantity:        quantity,
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "encode ledger event")
		}
		if _, err := s.ledger.Append(ctx, completed); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "ledger append failed")
		}

		units = quantity
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "cancellation completed",
		"owner_account_id", req.OwnerAccountID,
		"beneficiary", req.Beneficiary,
		"quantity", units,
		"bundles", len(cancelled),
	)
	return cancelled, nil
}
