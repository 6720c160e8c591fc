// Package bundle provides durable storage of certificate bundles keyed by
// contiguous unit-ID ranges. The store owns all bundle state; engines only
// touch bundles through it, inside a single transactional operation.
package bundle

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/certificate/models"
)

// Store is the bundle storage contract. Implementations must be safe for
// concurrent use; writes are serialized per bundle via the version field and
// lost races surface as sentinel.ErrConflict.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Bundle, error)

	// GetMany returns the requested bundles ordered by ascending issuance ID,
	// then ascending range start. The deterministic order is what keeps
	// multi-bundle operations deadlock-free. Any missing ID fails the whole
	// call with sentinel.ErrNotFound.
	GetMany(ctx context.Context, ids []uuid.UUID) ([]*models.Bundle, error)

	// Insert persists a freshly issued or split-created bundle at version 1.
	Insert(ctx context.Context, b *models.Bundle) error

	// Update persists b if the stored version matches b.Version, then
	// increments it. A stale version returns sentinel.ErrConflict.
	Update(ctx context.Context, b *models.Bundle) error

	// SplitAndMutate deterministically splits the bundle at cut units counted
	// from the top of the range: the lower sub-range stays on the kept child,
	// the upper sub-range becomes the moved child with the mutation applied.
	// When cut equals the bundle quantity no split occurs, the mutation
	// applies directly, and kept is nil. The parent is retired with
	// StatusSplit and preserved for audit.
	//
	// expectedVersion is the version the caller loaded; a mismatch returns
	// sentinel.ErrConflict. A cut above the bundle quantity returns a
	// CodeInsufficientQuantity error, and a mutation the state machine
	// forbids returns a CodeBundleNotActive error.
	SplitAndMutate(ctx context.Context, id uuid.UUID, expectedVersion uint64, cut uint64, m models.Mutation) (kept, moved *models.Bundle, err error)

	// ListByOwner returns the owner's non-retired bundles ordered by
	// production start descending.
	ListByOwner(ctx context.Context, ownerAccountID uuid.UUID) ([]*models.Bundle, error)

	// ListExpirable returns Active and Reserved bundles whose production end
	// is at or before the cutoff, for the expiry sweep.
	ListExpirable(ctx context.Context, cutoff time.Time) ([]*models.Bundle, error)

	// MaxUnitID returns the highest unit ID ever assigned for the device, 0
	// when none; issuance continues ranges from here. Withdrawn bundles are
	// excluded so their ranges can be re-issued after correction.
	MaxUnitID(ctx context.Context, deviceID uuid.UUID) (uint64, error)
}
