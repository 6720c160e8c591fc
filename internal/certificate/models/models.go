package models

import (
	"time"

	"github.com/google/uuid"

	dErrors "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/domain-errors"
)

// Status is the lifecycle state of a certificate bundle. Modeled as a closed
// enumeration so invalid states are unrepresentable in domain logic.
type Status string

const (
	StatusActive    Status = "active"
	StatusReserved  Status = "reserved"
	StatusCancelled Status = "cancelled"
	StatusClaimed   Status = "claimed"
	StatusWithdrawn Status = "withdrawn"
	StatusExpired   Status = "expired"
	StatusLocked    Status = "locked"

	// StatusSplit marks a parent bundle retired by a split. Such bundles are
	// preserved for audit and lineage but excluded from every query and
	// operation; only the store assigns this status.
	StatusSplit Status = "split"
)

// transitions is the bundle state machine. Active and Reserved are the only
// states a bundle can leave on its own; Locked is a compliance hold reachable
// from anywhere and never auto-released.
var transitions = map[Status]map[Status]bool{
	StatusActive: {
		StatusReserved:  true,
		StatusCancelled: true,
		StatusWithdrawn: true,
		StatusExpired:   true,
		StatusLocked:    true,
		StatusSplit:     true,
	},
	StatusReserved: {
		StatusActive:    true,
		StatusCancelled: true,
		StatusWithdrawn: true,
		StatusExpired:   true,
		StatusLocked:    true,
		StatusSplit:     true,
	},
	StatusCancelled: {
		StatusClaimed: true,
		StatusLocked:  true,
	},
	StatusClaimed:   {StatusLocked: true},
	StatusWithdrawn: {StatusLocked: true},
	StatusExpired:   {StatusLocked: true},
	StatusLocked:    {},
	StatusSplit:     {},
}

// CanTransition reports whether the state machine permits from -> to.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// Terminal reports whether a bundle in this status can never return to Active.
func (s Status) Terminal() bool {
	switch s {
	case StatusCancelled, StatusClaimed, StatusWithdrawn, StatusExpired, StatusLocked, StatusSplit:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// EnergySource identifies the primary energy carrier of the producing device.
type EnergySource string

const (
	SourceSolarPV EnergySource = "solar_pv"
	SourceWind    EnergySource = "wind"
	SourceHydro   EnergySource = "hydro"
	SourceBiomass EnergySource = "biomass"
	SourceNuclear EnergySource = "nuclear"
	SourceStorage EnergySource = "storage"
)

func (e EnergySource) Valid() bool {
	switch e {
	case SourceSolarPV, SourceWind, SourceHydro, SourceBiomass, SourceNuclear, SourceStorage:
		return true
	}
	return false
}

// IssuanceMetadata is registry-level provenance attached at issuance time and
// immutable afterwards.
type IssuanceMetadata struct {
	IssuingBody       string `json:"issuing_body"`
	CountryOfIssuance string `json:"country_of_issuance"`
	SchemeReference   string `json:"scheme_reference,omitempty"`
}

// Bundle is a contiguous range of certificate unit IDs sharing one issuance,
// status, and owner. Bundles are never deleted; splits retire the parent and
// create children whose ranges partition the parent's range exactly.
type Bundle struct {
	ID             uuid.UUID
	IssuanceID     string
	DeviceID       uuid.UUID
	OwnerAccountID uuid.UUID

	// RangeStart and RangeEnd are inclusive unit-ID bounds.
	RangeStart uint64
	RangeEnd   uint64

	Status          Status
	EnergySource    EnergySource
	ProductionStart time.Time
	ProductionEnd   time.Time
	PostConversion  bool
	Metadata        IssuanceMetadata

	// Storage provenance, set only on bundles emitted by discharge allocation.
	IsStorageUnit     bool
	DischargeRecordID *uuid.UUID
	DischargeStart    *time.Time
	DischargeEnd      *time.Time
	EfficiencyFactor  *float64

	// Beneficiary is recorded when the bundle is cancelled for retirement
	// claim attribution.
	Beneficiary *string

	// ParentID and LineageHash chain the bundle to the bundle it was split
	// from, or to the issuance event when it has no parent.
	ParentID    *uuid.UUID
	LineageHash string

	// Version supports optimistic concurrency; every committed write
	// increments it.
	Version   uint64
	CreatedAt time.Time
}

// Quantity is the number of certificate units the bundle covers.
func (b *Bundle) Quantity() uint64 {
	return b.RangeEnd - b.RangeStart + 1
}

// Validate enforces the structural invariants every committed bundle must hold.
func (b *Bundle) Validate() error {
	if b.RangeEnd < b.RangeStart {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"bundle %s: range end %d before range start %d", b.ID, b.RangeEnd, b.RangeStart)
	}
	if !b.Status.Valid() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "bundle %s: unknown status %q", b.ID, b.Status)
	}
	if !b.EnergySource.Valid() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "bundle %s: unknown energy source %q", b.ID, b.EnergySource)
	}
	if b.EfficiencyFactor != nil && (*b.EfficiencyFactor <= 0 || *b.EfficiencyFactor > 1) {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"bundle %s: efficiency factor %v outside (0, 1]", b.ID, *b.EfficiencyFactor)
	}
	return nil
}

// Amount selects how much of a bundle set an operation consumes: an absolute
// unit quantity or a percentage of the combined quantity. The two are mutually
// exclusive; supplying neither selects the full combined quantity.
type Amount struct {
	Quantity   *uint64
	Percentage *float64
}

// Resolve normalizes the amount to absolute units against the combined
// quantity of the selected bundles. Resolution happens at the engine boundary
// so invariant logic only ever sees absolute quantities.
func (a Amount) Resolve(total uint64) (uint64, error) {
	if a.Quantity != nil && a.Percentage != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, "quantity and percentage are mutually exclusive")
	}
	switch {
	case a.Quantity != nil:
		q := *a.Quantity
		if q == 0 {
			return 0, dErrors.New(dErrors.CodeInvalidQuantity, "quantity must be greater than zero")
		}
		if q > total {
			return 0, dErrors.Newf(dErrors.CodeInvalidQuantity,
				"requested %d units but selected bundles hold %d", q, total)
		}
		return q, nil
	case a.Percentage != nil:
		p := *a.Percentage
		if p <= 0 || p > 100 {
			return 0, dErrors.Newf(dErrors.CodeInvalidQuantity, "percentage %v outside (0, 100]", p)
		}
		q := uint64(float64(total) * p / 100)
		if q == 0 {
			return 0, dErrors.Newf(dErrors.CodeInvalidQuantity,
				"percentage %v of %d units resolves to zero", p, total)
		}
		return q, nil
	default:
		if total == 0 {
			return 0, dErrors.New(dErrors.CodeInvalidQuantity, "selected bundles hold zero units")
		}
		return total, nil
	}
}

// Mutation describes the change applied to the moved portion of a split.
// Exactly the fields set are applied; status changes are validated against the
// state machine by the store.
type Mutation struct {
	NewOwner    *uuid.UUID
	NewStatus   *Status
	Beneficiary *string
}
