// Package vectorclock implements the vector clocks that back the FastTrack
// happens-before engine.
//
// A VectorClock is a mapping from thread id to logical clock. Entries that
// were never written read as 0, so a freshly allocated clock already
// behaves as the all-zero clock without pre-populating every known thread
// id. Thread ids are assigned by the host and are not bounded to a small
// range, so the map representation is preferred over a fixed-size array:
// long-running hosts can create far more threads over a run than would fit
// comfortably in a flat table, and most clocks only ever hold a handful of
// live entries.
//
// Every operation here is safe for concurrent use: each VectorClock owns a
// single mutex, held for the duration of one operation. The owning thread's
// clock is essentially uncontended; lock clocks see brief contention around
// acquire/release.
package vectorclock

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// VectorClock is a concurrency-safe map from thread id to logical clock.
type VectorClock struct {
	mu     sync.Mutex
	clocks map[uint32]uint64
}

// New returns an empty vector clock (every thread reads as clock 0).
func New() *VectorClock {
	return &VectorClock{clocks: make(map[uint32]uint64)}
}

// Get returns the logical clock for tid, or 0 if tid has no entry.
func (vc *VectorClock) Get(tid uint32) uint64 {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.clocks[tid]
}

// Set writes the clock value for tid, growing the underlying map if needed.
func (vc *VectorClock) Set(tid uint32, clock uint64) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.clocks[tid] = clock
}

// Inc advances vc[tid] by one. The caller must already own an entry for
// tid — incrementing a thread-id that was never seeded is an invariant
// violation (the owning thread always seeds its own entry at creation) and
// panics rather than silently fabricating a clock.
func (vc *VectorClock) Inc(tid uint32) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	if _, ok := vc.clocks[tid]; !ok {
		panic(fmt.Sprintf("vectorclock: Inc on unseeded tid %d", tid))
	}
	vc.clocks[tid]++
}

// Copy makes vc value-equal to src, overwriting vc's contents in place.
//
// This resizes/rewrites the receiver's own map rather than swapping in a
// fresh one and leaving callers holding a stale pointer — earlier
// implementations of this idea freed and reallocated the destination,
// which left any caller that had cached the old pointer observing a
// detached copy forever after. Copy must never do that: dst is mutated,
// never replaced.
func (vc *VectorClock) Copy(src *VectorClock) {
	if vc == src {
		return
	}
	src.mu.Lock()
	snapshot := make(map[uint32]uint64, len(src.clocks))
	for tid, clock := range src.clocks {
		snapshot[tid] = clock
	}
	src.mu.Unlock()

	vc.mu.Lock()
	defer vc.mu.Unlock()
	clear(vc.clocks)
	for tid, clock := range snapshot {
		vc.clocks[tid] = clock
	}
}

// Join merges src into vc: for every thread id, vc[tid] = max(vc[tid], src[tid]).
//
// This is the synchronization primitive behind lock acquire/release and
// thread-create/join: it folds another clock's knowledge into the
// receiver's without discarding anything the receiver already knew.
func (vc *VectorClock) Join(src *VectorClock) {
	if vc == src {
		return
	}
	src.mu.Lock()
	snapshot := make(map[uint32]uint64, len(src.clocks))
	for tid, clock := range src.clocks {
		snapshot[tid] = clock
	}
	src.mu.Unlock()

	vc.mu.Lock()
	defer vc.mu.Unlock()
	for tid, clock := range snapshot {
		if clock > vc.clocks[tid] {
			vc.clocks[tid] = clock
		}
	}
}

// LeqTo reports whether vc ⊑ other: every entry of vc is at most the
// corresponding entry of other. This is the happens-before test.
func (vc *VectorClock) LeqTo(other *VectorClock) bool {
	if vc == other {
		return true
	}
	vc.mu.Lock()
	snapshot := make(map[uint32]uint64, len(vc.clocks))
	for tid, clock := range vc.clocks {
		snapshot[tid] = clock
	}
	vc.mu.Unlock()

	for tid, clock := range snapshot {
		if clock > other.Get(tid) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of vc.
func (vc *VectorClock) Clone() *VectorClock {
	out := New()
	out.Copy(vc)
	return out
}

// String renders the non-zero entries for debugging and race reports, e.g.
// "{1:4, 3:1}". Entries are sorted by tid for deterministic output.
func (vc *VectorClock) String() string {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	tids := make([]uint32, 0, len(vc.clocks))
	for tid, clock := range vc.clocks {
		if clock != 0 {
			tids = append(tids, tid)
		}
	}
	sort.Slice(tids, func(i, j int) bool { return tids[i] < tids[j] })

	parts := make([]string, 0, len(tids))
	for _, tid := range tids {
		parts = append(parts, fmt.Sprintf("%d:%d", tid, vc.clocks[tid]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
