package ledger

import "context"

// Appender is the write half handed to engines inside a transaction. The
// append must commit or roll back together with the triggering store
// mutation; implementations join the ambient SQL transaction when present.
type Appender interface {
	Append(ctx context.Context, events ...Event) ([]Event, error)
}

// Store is the full ledger contract: ordered appends plus sequential reads
// for the projector and event subscribers.
type Store interface {
	Appender

	// ListFrom returns up to limit events with Sequence > afterSequence, in
	// sequence order.
	ListFrom(ctx context.Context, afterSequence uint64, limit int) ([]Event, error)

	// LastSequence returns the highest assigned sequence, 0 when empty.
	LastSequence(ctx context.Context) (uint64, error)
}
