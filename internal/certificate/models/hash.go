package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// lineageFields is the canonical content a bundle hash commits to. Only
// immutable fields participate so lineage can be traced no matter which
// lifecycle stage the bundle is in; mutable fields (owner, status, version)
// are excluded.
type lineageFields struct {
	IssuanceID      string       `json:"issuance_id"`
	DeviceID        uuid.UUID    `json:"device_id"`
	RangeStart      uint64       `json:"range_start"`
	RangeEnd        uint64       `json:"range_end"`
	EnergySource    EnergySource `json:"energy_source"`
	ProductionStart time.Time    `json:"production_start"`
	ProductionEnd   time.Time    `json:"production_end"`
	IsStorageUnit   bool         `json:"is_storage_unit"`
}

// ComputeLineageHash chains a bundle to its parent. The parent hash acts as a
// nonce: an issuance-created bundle passes the empty string, a split child
// passes the parent bundle's hash. Tampering with any committed field or with
// the chain itself changes every downstream hash.
func ComputeLineageHash(b *Bundle, parentHash string) string {
	payload, err := json.Marshal(lineageFields{
		IssuanceID:      b.IssuanceID,
		DeviceID:        b.DeviceID,
		RangeStart:      b.RangeStart,
		RangeEnd:        b.RangeEnd,
		EnergySource:    b.EnergySource,
		ProductionStart: b.ProductionStart.UTC(),
		ProductionEnd:   b.ProductionEnd.UTC(),
		IsStorageUnit:   b.IsStorageUnit,
	})
	if err != nil {
		// Marshalling a struct of plain values cannot fail.
		panic(err)
	}
	sum := sha256.Sum256(append(payload, parentHash...))
	return hex.EncodeToString(sum[:])
}
