// Package pending tracks in-flight lifecycle operations per key so that
// start/stop/install calls against the same environment or venv are
// serialized and coalesced instead of racing.
package pending

import (
	"context"
	"sync"
)

// Operation kinds. Waiters use the kind to decide whether a completed
// operation's result can be shared or their own work still has to run.
const (
	KindStart   = "start"
	KindStop    = "stop"
	KindInstall = "install"
	KindExtra   = "install-extra"
)

// Store holds at most one Operation per key at any instant.
type Store struct {
	mu  sync.Mutex
	ops map[string]*Operation
}

// Operation is one in-flight lifecycle operation. The owner completes it
// exactly once; any number of waiters may await it.
type Operation struct {
	kind  string
	store *Store
	key   string

	done  chan struct{}
	value any
	err   error
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{ops: make(map[string]*Operation)}
}

// Begin registers an operation under key, unless one is already in flight.
// The boolean reports ownership: true means the caller must do the work and
// call Complete; false means the returned operation belongs to someone else
// and should be awaited.
func (s *Store) Begin(key string, kind string) (*Operation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if op, ok := s.ops[key]; ok {
		return op, false
	}

	op := &Operation{
		kind:  kind,
		store: s,
		key:   key,
		done:  make(chan struct{}),
	}
	s.ops[key] = op
	return op, true
}

// Snapshot returns the operations currently in flight.
func (s *Store) Snapshot() []*Operation {
	s.mu.Lock()
	defer s.mu.Unlock()

	ops := make([]*Operation, 0, len(s.ops))
	for _, op := range s.ops {
		ops = append(ops, op)
	}
	return ops
}

// AwaitAll waits for every operation in flight at call time. Bounded by ctx
// so shutdown never hangs on a stuck operation.
func (s *Store) AwaitAll(ctx context.Context) error {
	for _, op := range s.Snapshot() {
		if _, err := op.Await(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// Kind returns the operation's kind.
func (op *Operation) Kind() string { return op.kind }

// Complete records the result, removes the operation from its store and
// releases all waiters. Only the owner may call it, exactly once.
func (op *Operation) Complete(value any, err error) {
	op.store.mu.Lock()
	// A newer operation may already occupy the key; only remove our own.
	if op.store.ops[op.key] == op {
		delete(op.store.ops, op.key)
	}
	op.store.mu.Unlock()

	op.value = value
	op.err = err
	close(op.done)
}

// Await blocks until the operation completes or ctx is done.
func (op *Operation) Await(ctx context.Context) (any, error) {
	select {
	case <-op.done:
		return op.value, op.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
