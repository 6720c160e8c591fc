// Package service is the storage allocation engine. It records charge events
// and matches discharge events against them, issuing storage-tagged
// certificate bundles for accepted discharges. Every mutation runs as one
// transaction spanning balance debits, record writes, bundle insert and the
// ledger append.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/certificate/models"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/certificate/store/bundle"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/ledger"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/storage"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/storage/metrics"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/storage/store/record"
	dErrors "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/domain-errors"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/platform/sentinel"
	platformtx "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/platform/tx"
)

// Engine matches discharges against prior charges under the conservation
// invariant: allocations against a charge record never exceed its charged
// energy scaled by the round-trip efficiency factor.
type Engine struct {
	records record.Store
	bundles bundle.Store
	ledger  ledger.Appender
	txr     platformtx.Runner
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(
	records record.Store,
	bundles bundle.Store,
	appender ledger.Appender,
	txr platformtx.Runner,
	m *metrics.Metrics,
	logger *slog.Logger,
) (*Engine, error) {
	if records == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "record store is required")
	}
	if bundles == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "bundle store is required")
	}
	if appender == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "ledger appender is required")
	}
	if txr == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "transaction runner is required")
	}
	return &Engine{
		records: records,
		bundles: bundles,
		ledger:  appender,
		txr:     txr,
		metrics: m,
		logger:  logger,
	}, nil
}

// ChargeRequest registers energy stored by a storage device.
type ChargeRequest struct {
	DeviceID         uuid.UUID
	EnergyChargedWh  uint64
	EfficiencyFactor float64
	ChargeStart      time.Time
	ChargeEnd        time.Time
}

// RecordCharge creates a charge record whose allocatable balance is the
// charged energy scaled down by the efficiency factor.
func (e *Engine) RecordCharge(ctx context.Context, req ChargeRequest) (charge *storage.ChargeRecord, err error) {
	started := time.Now()
	defer func() { e.observe("charge", err, req.EnergyChargedWh, started) }()

	c := &storage.ChargeRecord{
		ID:               uuid.New(),
		DeviceID:         req.DeviceID,
		EnergyChargedWh:  req.EnergyChargedWh,
		EfficiencyFactor: req.EfficiencyFactor,
		ChargeStart:      req.ChargeStart.UTC(),
		ChargeEnd:        req.ChargeEnd.UTC(),
		CreatedAt:        time.Now().UTC(),
	}
	if err = c.Validate(); err != nil {
		return nil, err
	}
	c.RemainingWh = c.DischargeableWh()

	err = e.txr.RunInTx(ctx, func(ctx context.Context) error {
		if err := e.records.InsertCharge(ctx, c); err != nil {
			return e.storeError(err, "persist charge record")
		}
		event, err := ledger.NewEvent(ledger.EventChargeRecorded, ledger.ChargePayload{
			ChargeRecordID:   c.ID,
			DeviceID:         c.DeviceID,
			EnergyChargedWh:  c.EnergyChargedWh,
			EfficiencyFactor: c.EfficiencyFactor,
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "encode ledger event")
		}
		if _, err := e.ledger.Append(ctx, event); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "ledger append failed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "charge recorded",
		"charge_record_id", c.ID,
		"device_id", c.DeviceID,
		"charged_wh", c.EnergyChargedWh,
	)
	return c, nil
}

// DischargeRequest asks for certificates covering a metered discharge.
type DischargeRequest struct {
	DeviceID       uuid.UUID
	OwnerAccountID uuid.UUID
	DischargedWh   uint64
	DischargeStart time.Time
	DischargeEnd   time.Time
}

// AllocateDischarge consumes charge balances oldest-first until the discharged
// energy is covered, then records the discharge and issues an Active
// storage-tagged bundle of that quantity. Exhausting eligible balance fails
// the whole operation with CodeInsufficientStorageBalance; nothing is debited,
// stored or appended.
func (e *Engine) AllocateDischarge(ctx context.Context, req DischargeRequest) (discharge *storage.DischargeRecord, issued *models.Bundle, err error) {
	started := time.Now()
	defer func() { e.observe("discharge", err, req.DischargedWh, started) }()

	if req.DischargedWh == 0 {
		return nil, nil, dErrors.New(dErrors.CodeInvalidQuantity, "discharged energy must be greater than zero")
	}
	if !req.DischargeEnd.After(req.DischargeStart) {
		return nil, nil, dErrors.New(dErrors.CodeBadRequest, "discharge interval end must follow start")
	}

	err = e.txr.RunInTx(ctx, func(ctx context.Context) error {
		allocations, factor, err := e.consumeCharges(ctx, req.DeviceID, req.DischargedWh)
		if err != nil {
			return err
		}

		discharge = &storage.DischargeRecord{
			ID:             uuid.New(),
			DeviceID:       req.DeviceID,
			DischargedWh:   req.DischargedWh,
			DischargeStart: req.DischargeStart.UTC(),
			DischargeEnd:   req.DischargeEnd.UTC(),
			Allocations:    allocations,
			CreatedAt:      time.Now().UTC(),
		}

		issued, err = e.issueStorageBundle(ctx, req, discharge.ID, factor)
		if err != nil {
			return err
		}
		discharge.BundleID = issued.ID

		if err := e.records.InsertDischarge(ctx, discharge); err != nil {
			return e.storeError(err, "persist discharge record")
		}
		return e.appendDischargeEvents(ctx, discharge, issued)
	})
	if err != nil {
		return nil, nil, err
	}

	e.logger.InfoContext(ctx, "discharge allocated",
		"discharge_record_id", discharge.ID,
		"device_id", req.DeviceID,
		"discharged_wh", req.DischargedWh,
		"bundle_id", issued.ID,
		"charge_records", len(discharge.Allocations),
	)
	return discharge, issued, nil
}

// consumeCharges debits charge balances FIFO until needed is covered. It also
// derives the effective round-trip factor of this discharge: discharged
// energy over the charged energy the allocations consumed.
func (e *Engine) consumeCharges(ctx context.Context, deviceID uuid.UUID, needed uint64) ([]storage.Allocation, float64, error) {
	charges, err := e.records.ListAllocatable(ctx, deviceID)
	if err != nil {
		return nil, 0, e.storeError(err, "list allocatable charges")
	}

	// Sufficiency is decided before the first debit: a shortfall must leave
	// every balance untouched. The conditional UPDATE in the store still
	// guards concurrent debits of the same charge.
	var available uint64
	for _, c := range charges {
		available += c.RemainingWh
	}
	if available < needed {
		return nil, 0, dErrors.Newf(dErrors.CodeInsufficientStorageBalance,
			"device %s has %d Wh allocatable, %d Wh requested", deviceID, available, needed)
	}

	var allocations []storage.Allocation
	var chargedConsumed float64
	remaining := needed
	for _, c := range charges {
		if remaining == 0 {
			break
		}
		take := min(remaining, c.RemainingWh)
		if err := e.records.DebitCharge(ctx, c.ID, take); err != nil {
			return nil, 0, e.storeError(err, "debit charge balance")
		}
		allocations = append(allocations, storage.Allocation{ChargeRecordID: c.ID, AllocatedWh: take})
		chargedConsumed += float64(take) / c.EfficiencyFactor
		remaining -= take
	}
	return allocations, float64(needed) / chargedConsumed, nil
}

func (e *Engine) issueStorageBundle(ctx context.Context, req DischargeRequest, dischargeID uuid.UUID, factor float64) (*models.Bundle, error) {
	maxUnit, err := e.bundles.MaxUnitID(ctx, req.DeviceID)
	if err != nil {
		return nil, e.storeError(err, "resolve device unit range")
	}

	start := req.DischargeStart.UTC()
	end := req.DischargeEnd.UTC()
	b := &models.Bundle{
		ID:                uuid.New(),
		IssuanceID:        fmt.Sprintf("%s/%s", req.DeviceID, start.Format(time.RFC3339)),
		DeviceID:          req.DeviceID,
		OwnerAccountID:    req.OwnerAccountID,
		RangeStart:        maxUnit + 1,
		RangeEnd:          maxUnit + req.DischargedWh,
		Status:            models.StatusActive,
		EnergySource:      models.SourceStorage,
		ProductionStart:   start,
		ProductionEnd:     end,
		PostConversion:    true,
		IsStorageUnit:     true,
		DischargeRecordID: &dischargeID,
		DischargeStart:    &start,
		DischargeEnd:      &end,
		EfficiencyFactor:  &factor,
		CreatedAt:         time.Now().UTC(),
	}
	b.LineageHash = models.ComputeLineageHash(b, "")

	if err := e.bundles.Insert(ctx, b); err != nil {
		return nil, e.storeError(err, "persist storage bundle")
	}
	return b, nil
}

func (e *Engine) appendDischargeEvents(ctx context.Context, d *storage.DischargeRecord, b *models.Bundle) error {
	chargeIDs := make([]uuid.UUID, 0, len(d.Allocations))
	for _, a := range d.Allocations {
		chargeIDs = append(chargeIDs, a.ChargeRecordID)
	}
	allocated, err := ledger.NewEvent(ledger.EventDischargeAllocated, ledger.DischargePayload{
		DischargeRecordID: d.ID,
		DeviceID:          d.DeviceID,
		ChargeRecordIDs:   chargeIDs,
		DischargedWh:      d.DischargedWh,
		BundleID:          b.ID,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode ledger event")
	}
	issued, err := ledger.NewEvent(ledger.EventBundleIssued, ledger.BundlePayload{
		BundleID:        b.ID,
		IssuanceID:      b.IssuanceID,
		DeviceID:        b.DeviceID,
		OwnerAccountID:  b.OwnerAccountID,
		RangeStart:      b.RangeStart,
		RangeEnd:        b.RangeEnd,
		Status:          string(b.Status),
		EnergySource:    string(b.EnergySource),
		ProductionStart: b.ProductionStart,
		ProductionEnd:   b.ProductionEnd,
		IsStorageUnit:   true,
		LineageHash:     b.LineageHash,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode ledger event")
	}
	if _, err := e.ledger.Append(ctx, allocated, issued); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "ledger append failed")
	}
	return nil
}

// ChargeBalance reports a device's remaining allocatable discharge-side
// balance, summed over its open charge records.
func (e *Engine) ChargeBalance(ctx context.Context, deviceID uuid.UUID) (uint64, error) {
	charges, err := e.records.ListAllocatable(ctx, deviceID)
	if err != nil {
		return 0, e.storeError(err, "list allocatable charges")
	}
	var total uint64
	for _, c := range charges {
		total += c.RemainingWh
	}
	return total, nil
}

func (e *Engine) storeError(err error, action string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, action+": record not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConcurrentModification,
			action+": balance changed concurrently, reload and retry")
	}
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, action)
}

func (e *Engine) observe(operation string, err error, wh uint64, started time.Time) {
	if e.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
	}
	e.metrics.Observe(operation, outcome, wh, time.Since(started).Seconds())
}
