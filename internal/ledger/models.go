// Package ledger is the append-only, strictly ordered log of every accepted
// registry mutation. It is the source of truth for audit replay and feeds the
// read-model projector; nothing is ever appended for a failed transaction.
package ledger

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventBundleIssued          EventType = "certificate.issued"
	EventBundleSplit           EventType = "certificate.split"
	EventTransferExecuted      EventType = "certificate.transfer_executed"
	EventTransferCompleted     EventType = "certificate.transfer_completed"
	EventBundleCancelled       EventType = "certificate.cancelled"
	EventCancellationCompleted EventType = "certificate.cancellation_completed"
	EventBundleClaimed         EventType = "certificate.claimed"
	EventBundleReserved        EventType = "certificate.reserved"
	EventBundleReleased        EventType = "certificate.released"
	EventBundleWithdrawn       EventType = "certificate.withdrawn"
	EventBundleLocked          EventType = "certificate.locked"
	EventBundleExpired         EventType = "certificate.expired"
	EventChargeRecorded        EventType = "storage.charge_recorded"
	EventDischargeAllocated    EventType = "storage.discharge_allocated"
	EventWhitelistUpdated      EventType = "account.whitelist_updated"
)

// Event is one immutable ledger record. Sequence is assigned by the store at
// append time and is strictly increasing with no gaps within a store.
type Event struct {
	Sequence  uint64          `json:"sequence"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent marshals a typed payload into an unsequenced event. The store
// stamps Sequence on append.
func NewEvent(eventType EventType, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Payload: raw, Timestamp: time.Now().UTC()}, nil
}

// BundlePayload is the common per-bundle payload: enough for the projector to
// materialize the read view and for auditors to follow lineage.
type BundlePayload struct {
	BundleID        uuid.UUID  `json:"bundle_id"`
	ParentID        *uuid.UUID `json:"parent_id,omitempty"`
	IssuanceID      string     `json:"issuance_id"`
	DeviceID        uuid.UUID  `json:"device_id"`
	OwnerAccountID  uuid.UUID  `json:"owner_account_id"`
	RangeStart      uint64     `json:"range_start"`
	RangeEnd        uint64     `json:"range_end"`
	Status          string     `json:"status"`
	EnergySource    string     `json:"energy_source"`
	ProductionStart time.Time  `json:"production_start"`
	ProductionEnd   time.Time  `json:"production_end"`
	IsStorageUnit   bool       `json:"is_storage_unit,omitempty"`
	Beneficiary     *string    `json:"beneficiary,omitempty"`
	LineageHash     string     `json:"lineage_hash"`
}

// BatchPayload summarizes a multi-bundle operation (transfer_completed,
// cancellation_completed).
type BatchPayload struct {
	SourceAccountID uuid.UUID   `json:"source_account_id"`
	TargetAccountID *uuid.UUID  `json:"target_account_id,omitempty"`
	Beneficiary     *string     `json:"beneficiary,omitempty"`
	BundleIDs       []uuid.UUID `json:"bundle_ids"`
	Quantity        uint64      `json:"quantity"`
}

// ChargePayload records energy stored by a storage device.
type ChargePayload struct {
	ChargeRecordID   uuid.UUID `json:"charge_record_id"`
	DeviceID         uuid.UUID `json:"device_id"`
	EnergyChargedWh  uint64    `json:"energy_charged_wh"`
	EfficiencyFactor float64   `json:"efficiency_factor"`
}

// DischargePayload records a storage discharge allocation.
type DischargePayload struct {
	DischargeRecordID uuid.UUID   `json:"discharge_record_id"`
	DeviceID          uuid.UUID   `json:"device_id"`
	ChargeRecordIDs   []uuid.UUID `json:"charge_record_ids"`
	DischargedWh      uint64      `json:"discharged_wh"`
	BundleID          uuid.UUID   `json:"bundle_id"`
}

// WhitelistPayload records a whitelist edge change.
type WhitelistPayload struct {
	RecipientAccountID uuid.UUID `json:"recipient_account_id"`
	SenderAccountID    uuid.UUID `json:"sender_account_id"`
	Allow              bool      `json:"allow"`
}
