// Package projector consumes the ledger and maintains a read-optimized view
// of bundle state for queries. The view is eventually consistent: it lags the
// write path by at most one poll interval and replaying the ledger from zero
// reproduces it exactly.
package projector

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/ledger"
)

// BundleView is the flattened, query-shaped projection of one bundle.
type BundleView struct {
	BundleID        uuid.UUID  `json:"bundle_id"`
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
}

// Query filters the read view. Zero-value fields match everything.
type Query struct {
	OwnerAccountID *uuid.UUID
	DeviceID       *uuid.UUID
	Status         string
	ProducedAfter  *time.Time
	ProducedBefore *time.Time
}

func (q Query) matches(v BundleView) bool {
	if q.OwnerAccountID != nil && v.OwnerAccountID != *q.OwnerAccountID {
		return false
	}
	if q.DeviceID != nil && v.DeviceID != *q.DeviceID {
		return false
	}
	if q.Status != "" && v.Status != q.Status {
		return false
	}
	if q.ProducedAfter != nil && v.ProductionEnd.Before(*q.ProducedAfter) {
		return false
	}
	if q.ProducedBefore != nil && v.ProductionStart.After(*q.ProducedBefore) {
		return false
	}
	return true
}

// ReadView is the projection target. Apply must be idempotent: an event whose
// sequence is at or below LastApplied is a no-op, which is what makes ledger
// replay safe.
type ReadView interface {
	Apply(ctx context.Context, event ledger.Event) error
	LastApplied(ctx context.Context) (uint64, error)
	Query(ctx context.Context, q Query) ([]BundleView, error)
}

// viewFromEvent extracts a bundle projection from any event carrying a bundle
// payload. Batch, storage-charge and whitelist events carry none and only
// advance the cursor.
func viewFromEvent(event ledger.Event) (BundleView, bool) {
	switch event.Type {
	case ledger.EventBundleIssued, ledger.EventBundleSplit,
		ledger.EventTransferExecuted, ledger.EventBundleCancelled,
		ledger.EventBundleClaimed, ledger.EventBundleReserved, ledger.EventBundleReleased,
		ledger.EventBundleWithdrawn, ledger.EventBundleLocked, ledger.EventBundleExpired:
	default:
		return BundleView{}, false
	}

	var p ledger.BundlePayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return BundleView{}, false
	}
	return BundleView{
		BundleID:        p.BundleID,
		ParentID:        p.ParentID,
		IssuanceID:      p.IssuanceID,
		DeviceID:        p.DeviceID,
		OwnerAccountID:  p.OwnerAccountID,
		RangeStart:      p.RangeStart,
		RangeEnd:        p.RangeEnd,
		Quantity:        p.RangeEnd - p.RangeStart + 1,
		Status:          p.Status,
		EnergySource:    p.EnergySource,
		ProductionStart: p.ProductionStart,
		ProductionEnd:   p.ProductionEnd,
		IsStorageUnit:   p.IsStorageUnit,
		Beneficiary:     p.Beneficiary,
		LineageHash:     p.LineageHash,
	}, true
}

// InMemoryView keeps the projection in process memory, for tests and
// single-node development.
type InMemoryView struct {
	mu      sync.RWMutex
	bundles map[uuid.UUID]BundleView
	lastSeq uint64
}

func NewInMemoryView() *InMemoryView {
	return &InMemoryView{bundles: make(map[uuid.UUID]BundleView)}
}

func (v *InMemoryView) Apply(_ context.Context, event ledger.Event) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if event.Sequence <= v.lastSeq {
		return nil
	}
	if bv, ok := viewFromEvent(event); ok {
		v.bundles[bv.BundleID] = bv
	}
	v.lastSeq = event.Sequence
	return nil
}

func (v *InMemoryView) LastApplied(_ context.Context) (uint64, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastSeq, nil
}

func (v *InMemoryView) Query(_ context.Context, q Query) ([]BundleView, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var out []BundleView
	for _, bv := range v.bundles {
		if q.matches(bv) {
			out = append(out, bv)
		}
	}
	sortViews(out)
	return out, nil
}

func sortViews(views []BundleView) {
	sort.Slice(views, func(i, j int) bool {
		if views[i].IssuanceID != views[j].IssuanceID {
			return views[i].IssuanceID < views[j].IssuanceID
		}
		return views[i].RangeStart < views[j].RangeStart
	})
}
