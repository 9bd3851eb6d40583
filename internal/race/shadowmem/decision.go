package shadowmem

import (
	"github.com/harlowryder/drace/internal/race/epoch"
	"github.com/harlowryder/drace/internal/race/thread"
	"github.com/harlowryder/drace/internal/race/vectorclock"
)

// RaceKind classifies a detected race by which pair of accesses conflicted.
type RaceKind int

const (
	// NoRace means the access was classified as race-free.
	NoRace RaceKind = iota
	WriteWrite
	ReadWrite
	WriteRead
	SharedWrite
)

// String renders a RaceKind as one of Write-Write, Read-Write, Write-Read,
// or Shared-Write.
func (k RaceKind) String() string {
	switch k {
	case WriteWrite:
		return "Write-Write"
	case ReadWrite:
		return "Read-Write"
	case WriteRead:
		return "Write-Read"
	case SharedWrite:
		return "Shared-Write"
	default:
		return "NoRace"
	}
}

// OnWrite runs the FastTrack write check. th must not be in a
// synchronization callback — callers check th.InSyncOp() themselves (the
// dispatcher short-circuits before ever calling here), so OnWrite always
// performs the full check.
func (t *Table) OnWrite(addr uintptr, th *thread.State) RaceKind {
	tid, clock := th.Epoch()
	current := epoch.New(tid, clock)
	rec := t.GetOrCreate(addr)

	rec.lock.Lock()
	defer rec.lock.Unlock()

	// First write ever to this location: whether it follows only reads or
	// nothing at all, it is accepted unconditionally and becomes the new
	// write_epoch. Only once a write_epoch exists do later writes get
	// checked against the read history below.
	if rec.writeEpoch.IsZero() {
		rec.writeEpoch = current
		return NoRace
	}

	// Same-epoch shortcut: this thread already owns the last write at this
	// exact clock (re-entrant instrumentation, or a second write in the
	// same epoch window).
	if rec.writeEpoch == current {
		return NoRace
	}

	// Write-Write check dominates Read-Write when both would fire.
	if !rec.writeEpoch.HappensBefore(th.VC) {
		// Do not update: leave the record so a subsequent racy write
		// against the same prior writer is still reportable.
		return WriteWrite
	}

	switch {
	case rec.readEpoch.IsShared():
		if !rec.sharedReads.LeqTo(th.VC) {
			rec.writeEpoch = current
			return SharedWrite
		}
	case !rec.readEpoch.IsZero():
		if !rec.readEpoch.HappensBefore(th.VC) {
			rec.writeEpoch = current
			return ReadWrite
		}
	}

	rec.writeEpoch = current
	return NoRace
}

// OnRead runs the FastTrack read check, symmetric with OnWrite.
func (t *Table) OnRead(addr uintptr, th *thread.State) RaceKind {
	tid, clock := th.Epoch()
	current := epoch.New(tid, clock)
	rec := t.GetOrCreate(addr)

	rec.lock.Lock()
	defer rec.lock.Unlock()

	// First read ever to this location: accepted unconditionally,
	// regardless of write history. Only once a read_epoch exists do later
	// reads get checked against the write history below.
	if rec.readEpoch.IsZero() {
		rec.readEpoch = current
		return NoRace
	}

	if rec.readEpoch == current {
		return NoRace
	}
	if rec.readEpoch.IsShared() && rec.sharedReads.Get(tid) == clock {
		return NoRace
	}

	if !rec.writeEpoch.IsZero() && !rec.writeEpoch.HappensBefore(th.VC) {
		return WriteRead
	}

	// readEpoch is neither zero nor equal to current at this point, so
	// exactly one of the three cases below applies.
	switch {
	case rec.readEpoch.IsShared():
		// Read the existing entry (defaulting to 0) before writing —
		// never clobber it first and then "check" against the value you
		// just wrote, which would always observe a same-epoch match.
		rec.sharedReads.Set(tid, clock)
	case rec.readEpoch.HappensBefore(th.VC):
		// Previous reader happens-before current: still single-reader,
		// just advance the epoch.
		rec.readEpoch = current
	default:
		// Concurrent reader: promote to SHARED.
		prevTID, prevClock := rec.readEpoch.TID, rec.readEpoch.Clock
		shared := vectorclock.New()
		shared.Set(prevTID, prevClock)
		shared.Set(tid, clock)
		rec.sharedReads = shared
		rec.readEpoch = epoch.Shared
	}

	return NoRace
}
