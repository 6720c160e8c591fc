// Package whitelist maintains the directed permission relation between
// accounts: a recipient must whitelist a sender before the sender can
// transfer certificates to it.
package whitelist

import (
	"context"

	"github.com/google/uuid"
)

// Store persists whitelist edges. IsAllowed must be consulted at transfer
// time inside the transfer's transaction, never cached across it, because
// edges can change concurrently with pending transfers.
type Store interface {
	// Set adds (allow) or removes (deny) the edge recipient<-sender and
	// reports whether the relation actually changed.
	Set(ctx context.Context, recipientID, senderID uuid.UUID, allow bool) (changed bool, err error)

	// IsAllowed reports whether recipient has whitelisted sender.
	IsAllowed(ctx context.Context, recipientID, senderID uuid.UUID) (bool, error)

	// ListSenders returns every sender the recipient has whitelisted.
	ListSenders(ctx context.Context, recipientID uuid.UUID) ([]uuid.UUID, error)
}
