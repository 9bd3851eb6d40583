// Package shadowmem implements the memory access table and the FastTrack
// race decision procedure that operates on it.
package shadowmem

import (
	"sync"

	"github.com/harlowryder/drace/internal/race/epoch"
	"github.com/harlowryder/drace/internal/race/vectorclock"
)

// Record is the per-address access metadata the FastTrack algorithm keeps:
// the last writer's epoch, the last reader's epoch (or readers', once
// promoted), and the vector clock backing that promotion.
//
// readEpoch is either the zero epoch (never read), a single reader's
// epoch, or epoch.Shared — the sentinel meaning "consult sharedReads
// instead, multiple concurrent readers have touched this location".
//
// lock guards every mutation after the record is published into the
// table, around the read-modify-write of this record's own fields. While
// it is held, the decision procedure also briefly takes the mutex of the
// acting thread's vector clock and of sharedReads, one at a time; no code
// path takes a record lock while holding a vector-clock mutex.
type Record struct {
	lock sync.Mutex

	writeEpoch epoch.Epoch
	readEpoch  epoch.Epoch
	// sharedReads is populated only while readEpoch == epoch.Shared; it
	// maps each concurrent reader's tid to the clock of its most recent
	// read, and whenever it is in use it holds at least two distinct tids.
	sharedReads *vectorclock.VectorClock
}

// NewRecord returns a record for a location that has never been accessed:
// writeEpoch and readEpoch are both the zero epoch.
func NewRecord() *Record {
	return &Record{}
}
