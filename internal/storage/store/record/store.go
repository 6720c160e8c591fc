// Package record stores storage charge and discharge records. Charge balances
// are debited in the same transaction that consumes them; implementations must
// make the debit fail rather than go negative under concurrency.
package record

import (
	"context"

	"github.com/google/uuid"

	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/storage"
)

// Store is the SCR/SDR storage contract.
type Store interface {
	InsertCharge(ctx context.Context, c *storage.ChargeRecord) error
	GetCharge(ctx context.Context, id uuid.UUID) (*storage.ChargeRecord, error)

	// ListAllocatable returns the device's charge records with remaining
	// balance, ordered oldest charge first. The FIFO order is the allocation
	// policy, not a presentation detail.
	ListAllocatable(ctx context.Context, deviceID uuid.UUID) ([]*storage.ChargeRecord, error)

	// DebitCharge subtracts wh from the record's remaining balance. A balance
	// below wh returns sentinel.ErrConflict so a racing allocation aborts
	// instead of overdrawing.
	DebitCharge(ctx context.Context, id uuid.UUID, wh uint64) error

	InsertDischarge(ctx context.Context, d *storage.DischargeRecord) error
	GetDischarge(ctx context.Context, id uuid.UUID) (*storage.DischargeRecord, error)
	ListDischarges(ctx context.Context, deviceID uuid.UUID) ([]*storage.DischargeRecord, error)
}
