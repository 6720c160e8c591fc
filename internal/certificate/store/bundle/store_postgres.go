package bundle

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/certificate/models"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/platform/sentinel"
	platformtx "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/platform/tx"
)

// PostgresStore persists certificate bundles in PostgreSQL. All writes are
// version-checked UPDATEs; a write that matches zero rows lost the optimistic
// concurrency race and returns sentinel.ErrConflict. Methods join the ambient
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

const bundleColumns = `
	id, issuance_id, device_id, owner_account_id,
	range_start, range_end, status, energy_source,
	production_start, production_end, post_conversion,
	issuing_body, country_of_issuance, scheme_reference,
	is_storage_unit, discharge_record_id, discharge_start, discharge_end, efficiency_factor,
	beneficiary, parent_id, lineage_hash, version, created_at`

func scanBundle(row interface{ Scan(dest ...any) error }) (*models.Bundle, error) {
	var b models.Bundle
	var status, source string
	err := row.Scan(
		&b.ID, &b.IssuanceID, &b.DeviceID, &b.OwnerAccountID,
		&b.RangeStart, &b.RangeEnd, &status, &source,
		&b.ProductionStart, &b.ProductionEnd, &b.PostConversion,
		&b.Metadata.IssuingBody, &b.Metadata.CountryOfIssuance, &b.Metadata.SchemeReference,
		&b.IsStorageUnit, &b.DischargeRecordID, &b.DischargeStart, &b.DischargeEnd, &b.EfficiencyFactor,
		&b.Beneficiary, &b.ParentID, &b.LineageHash, &b.Version, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Status = models.Status(status)
	b.EnergySource = models.EnergySource(source)
	return &b, nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.Bundle, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT `+bundleColumns+` FROM certificate_bundles WHERE id = $1`, id)
	b, err := scanBundle(row)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bundle: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) GetMany(ctx context.Context, ids []uuid.UUID) ([]*models.Bundle, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+bundleColumns+` FROM certificate_bundles
		 WHERE id = ANY($1)
		 ORDER BY issuance_id, range_start`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get bundles: %w", err)
	}
	defer rows.Close()

	bundles := make([]*models.Bundle, 0, len(ids))
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bundle: %w", err)
		}
		bundles = append(bundles, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(bundles) != len(ids) {
		return nil, sentinel.ErrNotFound
	}
	return bundles, nil
}

func (s *PostgresStore) Insert(ctx context.Context, b *models.Bundle) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if b.Version == 0 {
		b.Version = 1
	}
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO certificate_bundles (`+bundleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
		b.ID, b.IssuanceID, b.DeviceID, b.OwnerAccountID,
		b.RangeStart, b.RangeEnd, string(b.Status), string(b.EnergySource),
		b.ProductionStart, b.ProductionEnd, b.PostConversion,
		b.Metadata.IssuingBody, b.Metadata.CountryOfIssuance, b.Metadata.SchemeReference,
		b.IsStorageUnit, b.DischargeRecordID, b.DischargeStart, b.DischargeEnd, b.EfficiencyFactor,
		b.Beneficiary, b.ParentID, b.LineageHash, b.Version, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert bundle: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, b *models.Bundle) error {
	if err := b.Validate(); err != nil {
		return err
	}
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE certificate_bundles
		SET owner_account_id = $1, status = $2, beneficiary = $3, version = version + 1
		WHERE id = $4 AND version = $5`,
		b.OwnerAccountID, string(b.Status), b.Beneficiary, b.ID, b.Version,
	)
	if err != nil {
		return fmt.Errorf("update bundle: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update bundle: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing row from a lost version race.
		var exists bool
		if err := s.q(ctx).QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM certificate_bundles WHERE id = $1)`, b.ID).Scan(&exists); err != nil {
			return fmt.Errorf("update bundle: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	b.Version++
	return nil
}

func (s *PostgresStore) SplitAndMutate(ctx context.Context, id uuid.UUID, expectedVersion uint64, cut uint64, m models.Mutation) (*models.Bundle, *models.Bundle, error) {
	parent, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if parent.Version != expectedVersion {
		return nil, nil, sentinel.ErrConflict
	}

	retired, kept, moved, err := buildSplit(parent, cut, m, time.Now().UTC())
	if err != nil {
		return nil, nil, err
	}

	if retired == nil {
		moved.Version = expectedVersion
		if err := s.Update(ctx, moved); err != nil {
			return nil, nil, err
		}
		return nil, moved, nil
	}

	if err := s.Update(ctx, retired); err != nil {
		return nil, nil, err
	}
	if err := s.Insert(ctx, kept); err != nil {
		return nil, nil, err
	}
	if err := s.Insert(ctx, moved); err != nil {
		return nil, nil, err
	}
	return kept, moved, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerAccountID uuid.UUID) ([]*models.Bundle, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+bundleColumns+` FROM certificate_bundles
		 WHERE owner_account_id = $1 AND status <> $2
		 ORDER BY production_start DESC`,
		ownerAccountID, string(models.StatusSplit))
	if err != nil {
		return nil, fmt.Errorf("list bundles by owner: %w", err)
	}
	defer rows.Close()
	return collectBundles(rows)
}

func (s *PostgresStore) ListExpirable(ctx context.Context, cutoff time.Time) ([]*models.Bundle, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+bundleColumns+` FROM certificate_bundles
		 WHERE status = ANY($1) AND production_end <= $2
		 ORDER BY issuance_id, range_start`,
		pq.Array([]string{string(models.StatusActive), string(models.StatusReserved)}), cutoff)
	if err != nil {
		return nil, fmt.Errorf("list expirable bundles: %w", err)
	}
	defer rows.Close()
	return collectBundles(rows)
}

func (s *PostgresStore) MaxUnitID(ctx context.Context, deviceID uuid.UUID) (uint64, error) {
	var max sql.NullInt64
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT MAX(range_end) FROM certificate_bundles
		WHERE device_id = $1 AND status <> $2`,
		deviceID, string(models.StatusWithdrawn)).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max unit id: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return uint64(max.Int64), nil
}

func collectBundles(rows *sql.Rows) ([]*models.Bundle, error) {
	var bundles []*models.Bundle
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bundle: %w", err)
		}
		bundles = append(bundles, b)
	}
	return bundles, rows.Err()
}
