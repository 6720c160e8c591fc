package whitelist

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/ledger"
	dErrors "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/domain-errors"
	platformtx "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/platform/tx"
)

// Gate answers "may account A receive from account B" and applies whitelist
// edits. Edits are ledgered; lookups are pure reads.
type Gate struct {
	store  Store
	ledger ledger.Appender
	txr    platformtx.Runner
	logger *slog.Logger
}

func NewGate(store Store, appender ledger.Appender, txr platformtx.Runner, logger *slog.Logger) (*Gate, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "whitelist store is required")
	}
	if appender == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "ledger appender is required")
	}
	if txr == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "transaction runner is required")
	}
	return &Gate{store: store, ledger: appender, txr: txr, logger: logger}, nil
}

// Update adds or removes the edge allowing senderID to transfer into
// recipientID's account. A no-op edit (edge already in the requested state)
// appends nothing.
func (g *Gate) Update(ctx context.Context, recipientID, senderID uuid.UUID, allow bool) error {
	if recipientID == senderID {
		return dErrors.New(dErrors.CodeBadRequest, "an account cannot whitelist itself")
	}

	return g.txr.RunInTx(ctx, func(ctx context.Context) error {
		changed, err := g.store.Set(ctx, recipientID, senderID, allow)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update whitelist")
		}
		if !changed {
			return nil
		}

		event, err := ledger.NewEvent(ledger.EventWhitelistUpdated, ledger.WhitelistPayload{
			RecipientAccountID: recipientID,
			SenderAccountID:    senderID,
			Allow:              allow,
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode whitelist event")
		}
		if _, err := g.ledger.Append(ctx, event); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append whitelist event")
		}

		g.logger.InfoContext(ctx, "whitelist updated",
			"recipient_account_id", recipientID,
			"sender_account_id", senderID,
			"allow", allow,
		)
		return nil
	})
}

// IsAllowed reports whether recipientID has whitelisted senderID. Callers
// performing transfers must invoke this inside the transfer transaction.
func (g *Gate) IsAllowed(ctx context.Context, recipientID, senderID uuid.UUID) (bool, error) {
	allowed, err := g.store.IsAllowed(ctx, recipientID, senderID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check whitelist")
	}
	return allowed, nil
}

// ListSenders returns the senders recipientID has whitelisted.
func (g *Gate) ListSenders(ctx context.Context, recipientID uuid.UUID) ([]uuid.UUID, error) {
	senders, err := g.store.ListSenders(ctx, recipientID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list whitelist")
	}
	return senders, nil
}
