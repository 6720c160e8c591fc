package projector

import (
	"context"
	"log/slog"
	"time"

	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/ledger"
	dErrors "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/domain-errors"
)

const defaultBatchSize = 500

// Projector pumps ledger events into a read view. It resumes from the view's
// own cursor, so restarts and redeliveries are harmless: the view skips
// anything it has already applied.
type Projector struct {
	events    ledger.Store
	view      ReadView
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

func New(events ledger.Store, view ReadView, logger *slog.Logger, interval time.Duration) (*Projector, error) {
	if events == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "ledger store is required")
	}
	if view == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "read view is required")
	}
	if interval <= 0 {
		return nil, dErrors.New(dErrors.CodeInternal, "poll interval must be positive")
	}
	return &Projector{
		events:    events,
		view:      view,
		logger:    logger,
		interval:  interval,
		batchSize: defaultBatchSize,
	}, nil
}

// Run polls the ledger until the context is cancelled. Errors are logged and
// retried on the next tick; the cursor only advances past applied events, so
// a transient failure never skips anything.
func (p *Projector) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.CatchUp(ctx); err != nil && ctx.Err() == nil {
			p.logger.ErrorContext(ctx, "projection pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// CatchUp drains everything appended since the view's cursor. It is the unit
// of work Run repeats; tests call it directly for deterministic projection.
func (p *Projector) CatchUp(ctx context.Context) error {
	for {
		last, err := p.view.LastApplied(ctx)
		if err != nil {
			return err
		}
		events, err := p.events.ListFrom(ctx, last, p.batchSize)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			p.recordLag(ctx, last)
			return nil
		}
		for _, event := range events {
			if err := p.view.Apply(ctx, event); err != nil {
				return err
			}
			last = event.Sequence
		}
		if len(events) < p.batchSize {
			p.recordLag(ctx, last)
			return nil
		}
	}
}

func (p *Projector) recordLag(ctx context.Context, applied uint64) {
	tip, err := p.events.LastSequence(ctx)
	if err != nil || tip < applied {
		return
	}
	projectionLag.Set(float64(tip - applied))
}
