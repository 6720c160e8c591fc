package handler

import (
	"time"

	"github.com/google/uuid"

	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/certificate/models"
)

// amountFields is the quantity-or-percentage selector shared by mutating
// requests. Mutual exclusivity is validated where the amount is resolved, not
// here.
type amountFields struct {
	Quantity   *uint64  `json:"quantity,omitempty"`
	Percentage *float64 `json:"percentage,omitempty"`
}

func (a amountFields) amount() models.Amount {
	return models.Amount{Quantity: a.Quantity, Percentage: a.Percentage}
}

type issueRequest struct {
	DeviceID        uuid.UUID               `json:"device_id"`
	OwnerAccountID  uuid.UUID               `json:"owner_account_id"`
	Quantity        uint64                  `json:"quantity"`
	EnergySource    string                  `json:"energy_source"`
	ProductionStart time.Time               `json:"production_start"`
	ProductionEnd   time.Time               `json:"production_end"`
	PostConversion  bool                    `json:"post_conversion"`
	Metadata        models.IssuanceMetadata `json:"metadata"`
}

type transferRequest struct {
	BundleIDs       []uuid.UUID `json:"bundle_ids"`
	SourceAccountID uuid.UUID   `json:"source_account_id"`
	TargetAccountID uuid.UUID   `json:"target_account_id"`
	amountFields
}

type cancelRequest struct {
	BundleIDs      []uuid.UUID `json:"bundle_ids"`
	OwnerAccountID uuid.UUID   `json:"owner_account_id"`
	Beneficiary    string      `json:"beneficiary"`
	amountFields
}

type reserveRequest struct {
	BundleIDs      []uuid.UUID `json:"bundle_ids"`
	OwnerAccountID uuid.UUID   `json:"owner_account_id"`
	amountFields
}

type releaseRequest struct {
	BundleIDs      []uuid.UUID `json:"bundle_ids"`
	OwnerAccountID uuid.UUID   `json:"owner_account_id"`
}

type withdrawRequest struct {
	BundleIDs      []uuid.UUID `json:"bundle_ids"`
	OwnerAccountID uuid.UUID   `json:"owner_account_id"`
	amountFields
}

type claimRequest struct {
	BundleIDs      []uuid.UUID `json:"bundle_ids"`
	OwnerAccountID uuid.UUID   `json:"owner_account_id"`
}

type lockRequest struct {
	BundleIDs []uuid.UUID `json:"bundle_ids"`
}

// bundleResponse is the transport shape of one bundle.
type bundleResponse struct {
	ID              uuid.UUID  `json:"id"`
	ParentID        *uuid.UUID `json:"parent_id,omitempty"`
	IssuanceID      string     `json:"issuance_id"`
	DeviceID        uuid.UUID  `json:"device_id"`
	OwnerAccountID  uuid.UUID  `json:"owner_account_id"`
	RangeStart      uint64     `json:"range_start"`
	RangeEnd        uint64     `json:"range_end"`
	Quantity        uint64     `json:"quantity"`
	Status          string     `json:"status"`
	EnergySource    string     `json:"energy_source"`
	ProductionStart time.Time  `json:"production_start"`
	ProductionEnd   time.Time  `json:"production_end"`
	IsStorageUnit   bool       `json:"is_storage_unit,omitempty"`
	Beneficiary     *string    `json:"beneficiary,omitempty"`
	LineageHash     string     `json:"lineage_hash"`
	Version         uint64     `json:"version"`
}

func fromBundle(b *models.Bundle) bundleResponse {
	return bundleResponse{
		ID:              b.ID,
		ParentID:        b.ParentID,
		IssuanceID:      b.IssuanceID,
		DeviceID:        b.DeviceID,
		OwnerAccountID:  b.OwnerAccountID,
		RangeStart:      b.RangeStart,
		RangeEnd:        b.RangeEnd,
		Quantity:        b.Quantity(),
		Status:          string(b.Status),
		EnergySource:    string(b.EnergySource),
		ProductionStart: b.ProductionStart,
		ProductionEnd:   b.ProductionEnd,
		IsStorageUnit:   b.IsStorageUnit,
		Beneficiary:     b.Beneficiary,
		LineageHash:     b.LineageHash,
		Version:         b.Version,
	}
}

func fromBundles(bundles []*models.Bundle) []bundleResponse {
	out := make([]bundleResponse, 0, len(bundles))
	for _, b := range bundles {
		out = append(out, fromBundle(b))
	}
	return out
}
