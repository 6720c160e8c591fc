package ledger

import (
	"context"
	"database/sql"
	"fmt"

	platformtx "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/platform/tx"
)

// PostgresStore persists the ledger in PostgreSQL. Sequences come from a
// bigserial column so ordering is assigned by the database, and appends join
// the ambient transaction when one is carried in context so the ledger entry
// commits atomically with the store mutation that produced it.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// querier is satisfied by both *sql.DB and *sql.Tx.
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

func (s *PostgresStore) Append(ctx context.Context, events ...Event) ([]Event, error) {
	q := s.q(ctx)
	appended := make([]Event, 0, len(events))
	for _, event := range events {
		row := q.QueryRowContext(ctx, `
			INSERT INTO ledger_events (event_type, payload, created_at)
			VALUES ($1, $2, $3)
			RETURNING sequence`,
			string(event.Type), []byte(event.Payload), event.Timestamp,
		)
		if err := row.Scan(&event.Sequence); err != nil {
			return nil, fmt.Errorf("append ledger event: %w", err)
		}
		appended = append(appended, event)
	}
	return appended, nil
}

func (s *PostgresStore) ListFrom(ctx context.Context, afterSequence uint64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT sequence, event_type, payload, created_at
		FROM ledger_events
		WHERE sequence > $1
		ORDER BY sequence
		LIMIT $2`,
		afterSequence, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list ledger events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var eventType string
		if err := rows.Scan(&event.Sequence, &eventType, (*[]byte)(&event.Payload), &event.Timestamp); err != nil {
			return nil, fmt.Errorf("scan ledger event: %w", err)
		}
		event.Type = EventType(eventType)
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *PostgresStore) LastSequence(ctx context.Context) (uint64, error) {
	var last sql.NullInt64
	err := s.q(ctx).QueryRowContext(ctx, `SELECT MAX(sequence) FROM ledger_events`).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("last ledger sequence: %w", err)
	}
	if !last.Valid {
		return 0, nil
	}
	return uint64(last.Int64), nil
}
