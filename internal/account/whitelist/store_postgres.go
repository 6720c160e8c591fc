package whitelist

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	platformtx "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/platform/tx"
)

// PostgresStore persists whitelist edges in PostgreSQL.
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

func (s *PostgresStore) Set(ctx context.Context, recipientID, senderID uuid.UUID, allow bool) (bool, error) {
	if allow {
		res, err := s.q(ctx).ExecContext(ctx, `
			INSERT INTO account_whitelist (recipient_account_id, sender_account_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`,
			recipientID, senderID)
		if err != nil {
			return false, fmt.Errorf("add whitelist edge: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("add whitelist edge: %w", err)
		}
		return affected > 0, nil
	}

	res, err := s.q(ctx).ExecContext(ctx, `
		DELETE FROM account_whitelist
		WHERE recipient_account_id = $1 AND sender_account_id = $2`,
		recipientID, senderID)
	if err != nil {
		return false, fmt.Errorf("remove whitelist edge: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove whitelist edge: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) IsAllowed(ctx context.Context, recipientID, senderID uuid.UUID) (bool, error) {
	var exists bool
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM account_whitelist
			WHERE recipient_account_id = $1 AND sender_account_id = $2
		)`,
		recipientID, senderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check whitelist: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListSenders(ctx context.Context, recipientID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT sender_account_id FROM account_whitelist
		WHERE recipient_account_id = $1
		ORDER BY sender_account_id`,
		recipientID)
	if err != nil {
		return nil, fmt.Errorf("list whitelist senders: %w", err)
	}
	defer rows.Close()

	var senders []uuid.UUID
	for rows.Next() {
		var sender uuid.UUID
		if err := rows.Scan(&sender); err != nil {
			return nil, fmt.Errorf("scan whitelist sender: %w", err)
		}
		senders = append(senders, sender)
	}
	return senders, rows.Err()
}
