package tx

import (
	"context"
	"sync"
)

// Runner provides a transactional boundary for store mutations.
// Implementations may wrap a database transaction or, in-memory, a coarse
// lock. Stores find the transaction through the context (see WithTx/From).
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// MutexRunner serializes transactions with a single mutex. It pairs with the
// in-memory stores, which cannot roll back: callers are expected to validate
// before mutating, so a failed fn has not touched any store.
type MutexRunner struct {
	mu sync.Mutex
}

func NewMutexRunner() *MutexRunner {
	return &MutexRunner{}
}

func (r *MutexRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx)
}
