package record

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/storage"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/platform/sentinel"
	platformtx "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/platform/tx"
)

// PostgresStore persists charge and discharge records in PostgreSQL. Debits
// are conditional UPDATEs against the live balance, so the conservation check
// happens on the same row the allocation consumes. Methods join the ambient
// SQL transaction when one is carried in context.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if tx, ok := platformtx.From(ctx); ok {
		return tx
	}
	return s.db
}

const chargeColumns = `
	id, device_id, energy_charged_wh, efficiency_factor, remaining_wh,
	charge_start, charge_end, created_at`

func scanCharge(row interface{ Scan(dest ...any) error }) (*storage.ChargeRecord, error) {
	var c storage.ChargeRecord
	err := row.Scan(
		&c.ID, &c.DeviceID, &c.EnergyChargedWh, &c.EfficiencyFactor, &c.RemainingWh,
		&c.ChargeStart, &c.ChargeEnd, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) InsertCharge(ctx context.Context, c *storage.ChargeRecord) error {
	if err := c.Validate(); err != nil {
		return err
	}
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO storage_charge_records (`+chargeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.DeviceID, c.EnergyChargedWh, c.EfficiencyFactor, c.RemainingWh,
		c.ChargeStart, c.ChargeEnd, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert charge record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCharge(ctx context.Context, id uuid.UUID) (*storage.ChargeRecord, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT `+chargeColumns+` FROM storage_charge_records WHERE id = $1`, id)
	c, err := scanCharge(row)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get charge record: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListAllocatable(ctx context.Context, deviceID uuid.UUID) ([]*storage.ChargeRecord, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+chargeColumns+` FROM storage_charge_records
		 WHERE device_id = $1 AND remaining_wh > 0
		 ORDER BY charge_start, created_at`,
		deviceID)
	if err != nil {
		return nil, fmt.Errorf("list allocatable charges: %w", err)
	}
	defer rows.Close()

	var charges []*storage.ChargeRecord
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan charge record: %w", err)
		}
		charges = append(charges, c)
	}
	return charges, rows.Err()
}

func (s *PostgresStore) DebitCharge(ctx context.Context, id uuid.UUID, wh uint64) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE storage_charge_records
		SET remaining_wh = remaining_wh - $1
		WHERE id = $2 AND remaining_wh >= $1`,
		wh, id,
	)
	if err != nil {
		return fmt.Errorf("debit charge record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit charge record: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := s.q(ctx).QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM storage_charge_records WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("debit charge record: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) InsertDischarge(ctx context.Context, d *storage.DischargeRecord) error {
	chargeIDs := make([]uuid.UUID, 0, len(d.Allocations))
	amounts := make([]int64, 0, len(d.Allocations))
	for _, a := range d.Allocations {
		chargeIDs = append(chargeIDs, a.ChargeRecordID)
		amounts = append(amounts, int64(a.AllocatedWh))
	}
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO storage_discharge_records
			(id, device_id, discharged_wh, discharge_start, discharge_end,
			 charge_record_ids, allocated_wh, bundle_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.DeviceID, d.DischargedWh, d.DischargeStart, d.DischargeEnd,
		pq.Array(chargeIDs), pq.Array(amounts), d.BundleID, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert discharge record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDischarge(ctx context.Context, id uuid.UUID) (*storage.DischargeRecord, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, device_id, discharged_wh, discharge_start, discharge_end,
		       charge_record_ids, allocated_wh, bundle_id, created_at
		FROM storage_discharge_records WHERE id = $1`, id)
	d, err := scanDischarge(row)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get discharge record: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) ListDischarges(ctx context.Context, deviceID uuid.UUID) ([]*storage.DischargeRecord, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, device_id, discharged_wh, discharge_start, discharge_end,
		       charge_record_ids, allocated_wh, bundle_id, created_at
		FROM storage_discharge_records
		WHERE device_id = $1
		ORDER BY created_at`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list discharge records: %w", err)
	}
	defer rows.Close()

	var discharges []*storage.DischargeRecord
	for rows.Next() {
		d, err := scanDischarge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan discharge record: %w", err)
		}
		discharges = append(discharges, d)
	}
	return discharges, rows.Err()
}

func scanDischarge(row interface{ Scan(dest ...any) error }) (*storage.DischargeRecord, error) {
	var d storage.DischargeRecord
	var chargeIDs []uuid.UUID
	var amounts []int64
	err := row.Scan(
		&d.ID, &d.DeviceID, &d.DischargedWh, &d.DischargeStart, &d.DischargeEnd,
		pq.Array(&chargeIDs), pq.Array(&amounts), &d.BundleID, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Allocations = make([]storage.Allocation, 0, len(chargeIDs))
	for i, id := range chargeIDs {
		d.Allocations = append(d.Allocations, storage.Allocation{
			ChargeRecordID: id,
			AllocatedWh:    uint64(amounts[i]),
		})
	}
	return &d, nil
}
