// Package service orchestrates certificate bundle operations: issuance,
// transfer, cancellation and the remaining lifecycle actions. Every mutation
// runs as one transaction spanning bundle reads, version checks, bundle
// writes and the ledger append.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/certificate/metrics"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/certificate/models"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/certificate/store/bundle"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/ledger"
	dErrors "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/domain-errors"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/platform/sentinel"
	platformtx "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/platform/tx"
)

// WhitelistGate answers whether a recipient account has pre-approved a
// sender. It must be consulted inside the transfer transaction.
type WhitelistGate interface {
	IsAllowed(ctx context.Context, recipientID, senderID uuid.UUID) (bool, error)
}

// Service is the certificate engine. It owns no bundle state; all state
// lives behind the bundle store and the ledger.
type Service struct {
	bundles bundle.Store
	gate    WhitelistGate
	ledger  ledger.Appender
	txr     platformtx.Runner
	metrics *metrics.Metrics
	logger  *slog.Logger

	// validity is how long after production end a bundle stays redeemable
	// before the expiry sweep collects it.
	validity time.Duration
}

func New(
	bundles bundle.Store,
	gate WhitelistGate,
	appender ledger.Appender,
	txr platformtx.Runner,
	m *metrics.Metrics,
	logger *slog.Logger,
	validity time.Duration,
) (*Service, error) {
	if bundles == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "bundle store is required")
	}
	if gate == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "whitelist gate is required")
	}
	if appender == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "ledger appender is required")
	}
	if txr == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "transaction runner is required")
	}
	if validity <= 0 {
		return nil, dErrors.New(dErrors.CodeInternal, "validity period must be positive")
	}
	return &Service{
		bundles:  bundles,
		gate:     gate,
		ledger:   appender,
		txr:      txr,
		metrics:  m,
		logger:   logger,
		validity: validity,
	}, nil
}

// IssueRequest creates the initial Active bundle for a verified production
// interval. The caller (issuance workflow) supplies validated meter-derived
// quantities; this core does not re-validate meter data.
type IssueRequest struct {
	DeviceID        uuid.UUID
	OwnerAccountID  uuid.UUID
	Quantity        uint64
	EnergySource    models.EnergySource
	ProductionStart time.Time
	ProductionEnd   time.Time
	PostConversion  bool
	Metadata        models.IssuanceMetadata
}

// Issue creates a fresh Active bundle whose unit-ID range continues from the
// device's highest issued unit ID.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*models.Bundle, error) {
	if req.Quantity == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidQuantity, "issuance quantity must be greater than zero")
	}
	if !req.EnergySource.Valid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown energy source %q", req.EnergySource)
	}
	if !req.ProductionEnd.After(req.ProductionStart) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "production interval end must follow start")
	}

	var issued *models.Bundle
	err := s.txr.RunInTx(ctx, func(ctx context.Context) error {
		maxUnit, err := s.bundles.MaxUnitID(ctx, req.DeviceID)
		if err != nil {
			return s.storeError(err, "resolve device unit range")
		}

		b := &models.Bundle{
			ID:              uuid.New(),
			IssuanceID:      issuanceID(req.DeviceID, req.ProductionStart),
			DeviceID:        req.DeviceID,
			OwnerAccountID:  req.OwnerAccountID,
			RangeStart:      maxUnit + 1,
			RangeEnd:        maxUnit + req.Quantity,
			Status:          models.StatusActive,
			EnergySource:    req.EnergySource,
			ProductionStart: req.ProductionStart.UTC(),
			ProductionEnd:   req.ProductionEnd.UTC(),
			PostConversion:  req.PostConversion,
			Metadata:        req.Metadata,
			CreatedAt:       time.Now().UTC(),
		}
		b.LineageHash = models.ComputeLineageHash(b, "")

		if err := s.bundles.Insert(ctx, b); err != nil {
			return s.storeError(err, "persist issued bundle")
		}
		if err := s.appendBundleEvents(ctx, ledger.EventBundleIssued, []*models.Bundle{b}); err != nil {
			return err
		}
		issued = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "bundle issued",
		"bundle_id", issued.ID,
		"device_id", req.DeviceID,
		"quantity", req.Quantity,
	)
	return issued, nil
}

// issuanceID identifies the originating issuance event: one device plus one
// production interval start.
func issuanceID(deviceID uuid.UUID, productionStart time.Time) string {
	return fmt.Sprintf("%s/%s", deviceID, productionStart.UTC().Format(time.RFC3339))
}

// loadOwned fetches the selected bundles in canonical order and verifies
// ownership plus an allowed starting status. Any mismatch aborts the whole
// operation.
func (s *Service) loadOwned(ctx context.Context, ids []uuid.UUID, ownerID uuid.UUID, allowed ...models.Status) ([]*models.Bundle, error) {
	if err := validateSelection(ids); err != nil {
		return nil, err
	}
	bundles, err := s.bundles.GetMany(ctx, ids)
	if err != nil {
		return nil, s.storeError(err, "load bundles")
	}
	for _, b := range bundles {
		if b.OwnerAccountID != ownerID {
			return nil, dErrors.Newf(dErrors.CodeForbidden,
				"bundle %s is not held by account %s", b.ID, ownerID)
		}
		if !statusIn(b.Status, allowed) {
			return nil, dErrors.Newf(dErrors.CodeBundleNotActive,
				"bundle %s is %s", b.ID, b.Status)
		}
	}
	return bundles, nil
}

// validateSelection rejects empty and duplicate bundle selections up front.
// A duplicate would double-count the combined quantity and walk the same
// bundle twice, mutating it on the first pass before the second pass fails.
func validateSelection(ids []uuid.UUID) error {
	if len(ids) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "at least one bundle must be selected")
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return dErrors.Newf(dErrors.CodeBadRequest, "bundle %s selected more than once", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func statusIn(s models.Status, allowed []models.Status) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

func totalQuantity(bundles []*models.Bundle) uint64 {
	var total uint64
	for _, b := range bundles {
		total += b.Quantity()
	}
	return total
}

// consume walks the bundles in their canonical order taking quantity units,
// splitting where a bundle holds more than the remainder. It returns the
// moved slices. Callers resolve the quantity against the same loaded bundles
// first, so every cut fits and failures cannot strand partial mutations.
//
// Each partial split also appends certificate.split events for the retired
// parent and the kept child, so the projection tracks the full lineage, not
// just the slices the operation touched.
func (s *Service) consume(ctx context.Context, bundles []*models.Bundle, quantity uint64, m models.Mutation) ([]*models.Bundle, error) {
	remaining := quantity
	moved := make([]*models.Bundle, 0, len(bundles))
	var splitEvents []ledger.Event
	for _, b := range bundles {
		if remaining == 0 {
			break
		}
		cut := min(remaining, b.Quantity())
		kept, mv, err := s.bundles.SplitAndMutate(ctx, b.ID, b.Version, cut, m)
		if err != nil {
			return nil, s.storeError(err, "split bundle")
		}
		if kept != nil {
			retired := *b
			retired.Status = models.StatusSplit
			for _, sb := range []*models.Bundle{&retired, kept} {
				event, err := ledger.NewEvent(ledger.EventBundleSplit, bundlePayload(sb))
				if err != nil {
					return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode ledger event")
				}
				splitEvents = append(splitEvents, event)
			}
		}
		moved = append(moved, mv)
		remaining -= cut
	}
	if len(splitEvents) > 0 {
		if _, err := s.ledger.Append(ctx, splitEvents...); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "ledger append failed")
		}
	}
	return moved, nil
}

// appendBundleEvents appends one event of the given type per bundle.
func (s *Service) appendBundleEvents(ctx context.Context, eventType ledger.EventType, bundles []*models.Bundle) error {
	events := make([]ledger.Event, 0, len(bundles))
	for _, b := range bundles {
		event, err := ledger.NewEvent(eventType, bundlePayload(b))
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "encode ledger event")
		}
		events = append(events, event)
	}
	if _, err := s.ledger.Append(ctx, events...); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "ledger append failed")
	}
	return nil
}

func bundlePayload(b *models.Bundle) ledger.BundlePayload {
	return ledger.BundlePayload{
		BundleID:        b.ID,
		ParentID:        b.ParentID,
		IssuanceID:      b.IssuanceID,
		DeviceID:        b.DeviceID,
		OwnerAccountID:  b.OwnerAccountID,
		RangeStart:      b.RangeStart,
		RangeEnd:        b.RangeEnd,
		Status:          string(b.Status),
		EnergySource:    string(b.EnergySource),
		ProductionStart: b.ProductionStart,
		ProductionEnd:   b.ProductionEnd,
		IsStorageUnit:   b.IsStorageUnit,
		Beneficiary:     b.Beneficiary,
		LineageHash:     b.LineageHash,
	}
}

// storeError translates infrastructure sentinels into the domain taxonomy.
func (s *Service) storeError(err error, action string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, action+": bundle not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConcurrentModification,
			action+": bundle changed concurrently, reload and retry")
	}
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, action)
}

// observe records metrics for one completed operation when metrics are wired.
func (s *Service) observe(operation string, err error, units uint64, started time.Time) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
	}
	s.metrics.Observe(operation, outcome, units, time.Since(started).Seconds())
}
