// Package epoch implements the compact (thread-id, clock) pairs used
// wherever the FastTrack algorithm only needs to remember one thread's
// contribution to an access — the common case for writes, and for reads
// until a second concurrent reader shows up.
//
// The teacher implementation this package is adapted from packs TID and
// clock into a single 32-bit word (8 bits of thread id, 24 bits of clock)
// for cache-line density. That encoding caps the thread-id space at 256 and
// the clock space at 16M, both of which the host's event model in this
// detector violates outright (thread ids are an arbitrary nonzero 32-bit
// value assigned by the host, and a long-running thread can advance its
// clock past 16M through lock releases and thread creations). Epoch is therefore a plain struct
// here; see DESIGN.md for the full rationale.
package epoch

import (
	"fmt"

	"github.com/harlowryder/drace/internal/race/vectorclock"
)

// Epoch identifies a point in a single thread's history.
type Epoch struct {
	TID   uint32
	Clock uint64
}

// Zero is the epoch of a location that has never been written (or never
// been read, depending on context).
var Zero = Epoch{}

// Shared is the sentinel "all-ones" epoch marking a read_epoch as
// "multiple concurrent readers; consult shared_reads instead of treating
// this as a single-reader epoch". It can never collide with a real epoch
// because no host-assigned thread id is ^uint32(0).
var Shared = Epoch{TID: ^uint32(0), Clock: ^uint64(0)}

// IsShared reports whether e is the SHARED sentinel.
func (e Epoch) IsShared() bool {
	return e == Shared
}

// New builds an epoch from a thread id and clock value.
func New(tid uint32, clock uint64) Epoch {
	return Epoch{TID: tid, Clock: clock}
}

// IsZero reports whether e is the zero epoch (never written / never read).
func (e Epoch) IsZero() bool {
	return e == Zero
}

// HappensBefore reports whether e happened-before vc: e ⊑ vc iff
// vc[e.TID] >= e.Clock. This is the O(1) check that makes FastTrack fast —
// it never needs to inspect any other entry of vc.
func (e Epoch) HappensBefore(vc *vectorclock.VectorClock) bool {
	return e.Clock <= vc.Get(e.TID)
}

// Same reports whether e and other name the same thread at the same clock.
func (e Epoch) Same(other Epoch) bool {
	return e == other
}

// String renders an epoch as "clock@tid" for race reports and debugging.
func (e Epoch) String() string {
	return fmt.Sprintf("%d@%d", e.Clock, e.TID)
}
