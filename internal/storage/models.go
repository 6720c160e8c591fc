// Package storage matches storage-device discharge events against prior
// charge events, enforcing round-trip efficiency conservation. Every accepted
// discharge is backed by debited charge balances and materializes as a
// storage-tagged certificate bundle.
package storage

import (
	"time"

	"github.com/google/uuid"

	dErrors "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/domain-errors"
)

// ChargeRecord (SCR) is one charging interval of a storage device.
// RemainingWh is the discharge-side balance still available for allocation:
// it starts at floor(EnergyChargedWh * EfficiencyFactor) and only ever
// decreases, so the conservation invariant
// sum(allocated) <= charged * efficiencyFactor holds by construction.
type ChargeRecord struct {
	ID               uuid.UUID
	DeviceID         uuid.UUID
	EnergyChargedWh  uint64
	EfficiencyFactor float64
	RemainingWh      uint64
	ChargeStart      time.Time
	ChargeEnd        time.Time
	CreatedAt        time.Time
}

func (c *ChargeRecord) Validate() error {
	if c.EnergyChargedWh == 0 {
		return dErrors.New(dErrors.CodeInvalidQuantity, "charged energy must be greater than zero")
	}
	if c.EfficiencyFactor <= 0 || c.EfficiencyFactor > 1 {
		return dErrors.Newf(dErrors.CodeBadRequest, "efficiency factor %v outside (0, 1]", c.EfficiencyFactor)
	}
	if !c.ChargeEnd.After(c.ChargeStart) {
		return dErrors.New(dErrors.CodeBadRequest, "charge interval end must follow start")
	}
	return nil
}

// DischargeableWh is the discharge-side ceiling a fresh charge record backs.
func (c *ChargeRecord) DischargeableWh() uint64 {
	return uint64(float64(c.EnergyChargedWh) * c.EfficiencyFactor)
}

// Allocation binds part of a discharge to one consumed charge record.
// AllocatedWh is discharge-side Wh debited from that record's balance.
type Allocation struct {
	ChargeRecordID uuid.UUID
	AllocatedWh    uint64
}

// DischargeRecord (SDR) is one accepted discharge with its per-charge-record
// allocations and the certificate bundle it produced.
type DischargeRecord struct {
	ID             uuid.UUID
	DeviceID       uuid.UUID
	DischargedWh   uint64
	DischargeStart time.Time
	DischargeEnd   time.Time
	Allocations    []Allocation
	BundleID       uuid.UUID
	CreatedAt      time.Time
}
