package striped

import (
	"sync"

	"github.com/chainkv/chainkv/chain"
)

// DefaultStriping is the process-wide lock-striping constant LOCK_STRIPING
// (spec.md §6). It must be a power of two so StripeFor can use a mask
// instead of a modulo.
const DefaultStriping = 1024

// Locks is a fixed-width array of mutexes. The stripe for a given
// (region, key) is hash64(key, region-seed) mod len(locks).
type Locks struct {
	mus  []sync.Mutex
	mask uint64
}

// NewLocks creates a striped lock table with n stripes. n is rounded up to
// the next power of two if it isn't one already.
func NewLocks(n int) *Locks {
	if n <= 0 {
		n = DefaultStriping
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return &Locks{mus: make([]sync.Mutex, p), mask: uint64(p - 1)}
}

// StripeFor returns the stripe index for a (region, key) pair.
func (l *Locks) StripeFor(region chain.RegionId, key chain.Key) int {
	return int(chain.Hash64(key, chain.RegionSeed(region)) & l.mask)
}

// Hold acquires the stripe lock for (region, key) and returns a handle
// whose Unlock releases it. Callers are expected to `defer h.Unlock()`
// immediately, RAII-style, matching the original's HOLD_LOCK_FOR_KEY macro.
func (l *Locks) Hold(region chain.RegionId, key chain.Key) *Hold {
	idx := l.StripeFor(region, key)
	l.mus[idx].Lock()
	return &Hold{mu: &l.mus[idx]}
}

// Hold represents a held stripe lock.
type Hold struct {
	mu   *sync.Mutex
	done bool
}

// Unlock releases the stripe lock. Safe to call more than once.
func (h *Hold) Unlock() {
	if h.done {
		return
	}
	h.done = true
	h.mu.Unlock()
}
