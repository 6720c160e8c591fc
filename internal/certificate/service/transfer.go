package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/certificate/models"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/ledger"
	dErrors "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/domain-errors"
)

// TransferRequest moves certificate units between accounts. Amount selects an
// absolute quantity or a percentage of the selected bundles' combined
// quantity; the engine re-resolves it against freshly loaded bundles, never
// trusting client-computed totals.
type TransferRequest struct {
	BundleIDs       []uuid.UUID
	SourceAccountID uuid.UUID
	TargetAccountID uuid.UUID
	Amount          models.Amount
}

// Transfer moves the requested quantity from the source account to the
// target account. The whole operation is atomic: any validation failure, a
// missing whitelist edge, or a concurrent modification leaves every bundle
// untouched and appends nothing.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (moved []*models.Bundle, err error) {
	started := time.Now()
	var units uint64
	defer func() { s.observe("transfer", err, units, started) }()

	if req.SourceAccountID == req.TargetAccountID {
		return nil, dErrors.New(dErrors.CodeBadRequest, "source and target accounts must differ")
	}

	err = s.txr.RunInTx(ctx, func(ctx context.Context) error {
		bundles, err := s.loadOwned(ctx, req.BundleIDs, req.SourceAccountID, models.StatusActive)
		if err != nil {
			return err
		}

		// The recipient must have pre-approved the sender. Checked inside the
		// transaction so a concurrent whitelist removal cannot race the
		// mutation.
		allowed, err := s.gate.IsAllowed(ctx, req.TargetAccountID, req.SourceAccountID)
		if err != nil {
			return err
		}
		if !allowed {
			return dErrors.Newf(dErrors.CodeNotWhitelisted,
				"account %s has not whitelisted account %s", req.TargetAccountID, req.SourceAccountID)
		}

		quantity, err := req.Amount.Resolve(totalQuantity(bundles))
		if err != nil {
			return err
		}

		target := req.TargetAccountID
		moved, err = s.consume(ctx, bundles, quantity, models.Mutation{NewOwner: &target})
		if err != nil {
			return err
		}

		if err := s.appendBundleEvents(ctx, ledger.EventTransferExecuted, moved); err != nil {
			return err
		}
		completed, err := ledger.NewEvent(ledger.EventTransferCompleted, ledger.BatchPayload{
			SourceAccountID: req.SourceAccountID,
			TargetAccountID: &target,
			BundleIDs:       bundleIDs(moved),
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

	s.logger.InfoContext(ctx, "transfer completed",
		"source_account_id", req.SourceAccountID,
		"target_account_id", req.TargetAccountID,
		"quantity", units,
		"bundles", len(moved),
	)
	return moved, nil
}

func bundleIDs(bundles []*models.Bundle) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(bundles))
	for _, b := range bundles {
		ids = append(ids, b.ID)
	}
	return ids
}
