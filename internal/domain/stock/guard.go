// internal/domain/stock/guard.go
package stock

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrLockTimeout is returned when per-item locks could not be acquired within
// the configured timeout. The operation is safe to retry.
var ErrLockTimeout = errors.New("timed out waiting for stock locks")

// Guard serializes ledger mutations per item. Multi-item operations acquire
// their locks in ascending item-ID order, so two concurrent multi-line
// dispatches can never deadlock against each other.
type Guard struct {
	mu sync.Mutex
	// locks holds one channel per item ID for the life of the process;
	// entries are never pruned. Item cardinality tracks the catalog, which
	// stays in the hundreds.
	locks   map[uint]chan struct{}
	timeout time.Duration
}

// NewGuard creates a guard with the given acquisition timeout.
func NewGuard(timeout time.Duration) *Guard {
	return &Guard{
		locks:   make(map[uint]chan struct{}),
		timeout: timeout,
	}
}

func (g *Guard) lockFor(itemID uint) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	lock, ok := g.locks[itemID]
	if !ok {
		lock = make(chan struct{}, 1)
		g.locks[itemID] = lock
	}
	return lock
}

// Acquire takes the locks for every given item and returns a release
// function. Duplicate IDs are collapsed. The whole acquisition shares one
// deadline; on timeout or context cancellation every lock taken so far is
// released and ErrLockTimeout (or the context error) is returned.
func (g *Guard) Acquire(ctx context.Context, itemIDs []uint) (func(), error) {
	ids := dedupeSorted(itemIDs)

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	acquired := make([]chan struct{}, 0, len(ids))
	release := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			<-acquired[i]
		}
	}

	for _, id := range ids {
		lock := g.lockFor(id)
		select {
		case lock <- struct{}{}:
			acquired = append(acquired, lock)
		case <-timer.C:
			release()
			return nil, ErrLockTimeout
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}

	return release, nil
}

func dedupeSorted(itemIDs []uint) []uint {
	seen := make(map[uint]struct{}, len(itemIDs))
	ids := make([]uint, 0, len(itemIDs))
	for _, id := range itemIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
