package bundle

import (
	"time"

	"github.com/google/uuid"

	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/certificate/models"
	dErrors "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/domain-errors"
)

// applyMutation validates m against the state machine and applies it to b.
// Ownership changes without a status change require an Active bundle; status
// changes require a permitted transition from the bundle's current status.
func applyMutation(b *models.Bundle, m models.Mutation) error {
	if m.NewStatus != nil {
		if !models.CanTransition(b.Status, *m.NewStatus) {
			return dErrors.Newf(dErrors.CodeBundleNotActive,
				"bundle %s: cannot move from %s to %s", b.ID, b.Status, *m.NewStatus)
		}
		b.Status = *m.NewStatus
	} else if m.NewOwner != nil && b.Status != models.StatusActive {
		return dErrors.Newf(dErrors.CodeBundleNotActive,
			"bundle %s: cannot change owner while %s", b.ID, b.Status)
	}
	if m.NewOwner != nil {
		b.OwnerAccountID = *m.NewOwner
	}
	if m.Beneficiary != nil {
		b.Beneficiary = m.Beneficiary
	}
	return nil
}

// buildSplit computes the record changes for SplitAndMutate without touching
// storage, so memory and Postgres implementations share one set of split
// rules. It returns the retired parent plus the kept and moved children, or,
// for a whole-bundle cut, only the mutated parent as moved.
func buildSplit(parent *models.Bundle, cut uint64, m models.Mutation, now time.Time) (retired, kept, moved *models.Bundle, err error) {
	quantity := parent.Quantity()
	if cut == 0 {
		return nil, nil, nil, dErrors.Newf(dErrors.CodeInvalidQuantity,
			"bundle %s: cut quantity must be greater than zero", parent.ID)
	}
	if cut > quantity {
		return nil, nil, nil, dErrors.Newf(dErrors.CodeInsufficientQuantity,
			"bundle %s: cut %d exceeds bundle quantity %d", parent.ID, cut, quantity)
	}

	if cut == quantity {
		whole := *parent
		if err := applyMutation(&whole, m); err != nil {
			return nil, nil, nil, err
		}
		return nil, nil, &whole, nil
	}

	// Partial cuts retire the parent, so the parent must be splittable and in
	// a state the moved child could leave. Checked before any record changes
	// so terminal bundles fail cleanly.
	if !models.CanTransition(parent.Status, models.StatusSplit) {
		return nil, nil, nil, dErrors.Newf(dErrors.CodeBundleNotActive,
			"bundle %s: cannot split while %s", parent.ID, parent.Status)
	}
	probe := *parent
	if err := applyMutation(&probe, m); err != nil {
		return nil, nil, nil, err
	}

	retiredCopy := *parent
	retiredCopy.Status = models.StatusSplit
	retired = &retiredCopy

	parentID := parent.ID
	keptChild := *parent
	keptChild.ID = uuid.New()
	keptChild.ParentID = &parentID
	keptChild.RangeEnd = parent.RangeEnd - cut
	keptChild.Version = 1
	keptChild.CreatedAt = now
	keptChild.LineageHash = models.ComputeLineageHash(&keptChild, parent.LineageHash)

	movedChild := *parent
	movedChild.ID = uuid.New()
	movedChild.ParentID = &parentID
	movedChild.RangeStart = parent.RangeEnd - cut + 1
	movedChild.Version = 1
	movedChild.CreatedAt = now
	if err := applyMutation(&movedChild, m); err != nil {
		return nil, nil, nil, err
	}
	movedChild.LineageHash = models.ComputeLineageHash(&movedChild, parent.LineageHash)

	return retired, &keptChild, &movedChild, nil
}
