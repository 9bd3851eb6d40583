// Package thread implements per-thread state: each host thread gets a State
// tracking its vector clock and whether it is currently inside an
// intercepted synchronization callback.
package thread

import (
	"sync"
	"sync/atomic"

	"github.com/harlowryder/drace/internal/race/vectorclock"
)

// State is the detector's view of a single host thread.
//
// State is single-owner: only the thread it describes mutates VC through
// its own events (Inc when it releases a lock, Join when it acquires one)
// or reads/writes syncDepth. Other threads touch VC only through
// internally synchronized VectorClock calls — a child joining its parent's
// clock at start and then advancing the parent with Inc, or a lock release
// copying this clock into a lock's clock. Each such call holds only one
// vector clock's mutex at a time.
type State struct {
	TID uint32
	VC  *vectorclock.VectorClock

	// syncDepth counts nested entries into intercepted lock/unlock
	// callbacks, rather than a boolean flag: nested locking while already
	// inside one sync callback (lock B taken from within A's interception)
	// must not have the inner exit clear the marker while the outer
	// callback is still running.
	syncDepth int32

	// accessCount counts this thread's on_load/on_store callbacks,
	// 1-indexed, feeding the dispatcher's optional sampling
	// (config.Config.ShouldSample). Reset is implicit: each thread starts
	// at 0.
	accessCount uint64
}

// NextAccess increments and returns this thread's access counter. Called
// once per on_load/on_store callback, before sampling decides whether to
// run the full FastTrack check.
func (s *State) NextAccess() uint64 {
	return atomic.AddUint64(&s.accessCount, 1)
}

// InSyncOp reports whether this thread is currently inside any
// intercepted synchronization callback, at any nesting depth.
func (s *State) InSyncOp() bool {
	return atomic.LoadInt32(&s.syncDepth) > 0
}

// EnterSyncOp increments the nesting counter. Called on OnLockEnter and
// OnUnlockEnter.
func (s *State) EnterSyncOp() {
	atomic.AddInt32(&s.syncDepth, 1)
}

// ExitSyncOp decrements the nesting counter. Both OnLockExit and
// OnUnlockExit are wired to this same decrement, not just one of the two —
// either hook can close out a nesting level.
func (s *State) ExitSyncOp() {
	atomic.AddInt32(&s.syncDepth, -1)
}

// Epoch returns this thread's current (tid, clock) pair.
func (s *State) Epoch() (tid uint32, clock uint64) {
	return s.TID, s.VC.Get(s.TID)
}

// Registry maps tid to State across the whole process. Created on
// thread-start, reclaimed on thread-exit; tids are never recycled within a
// run, so a stale pointer held by another thread's VC join remains valid
// to read even after the originating thread has exited.
type Registry struct {
	mu      sync.RWMutex
	threads map[uint32]*State
}

// NewRegistry returns an empty thread registry.
func NewRegistry() *Registry {
	return &Registry{threads: make(map[uint32]*State)}
}

// Start allocates a new State for tid, seeds vc[tid] = 1, and — if
// parentTID is non-nil — joins the parent's clock into the child and
// advances the parent's own epoch so later parent work is not conflated
// with the child's past.
//
// parentTID is a pointer so "no parent" (the first thread of a run) can be
// expressed without a sentinel tid value.
func (r *Registry) Start(tid uint32, parentTID *uint32) *State {
	st := &State{TID: tid, VC: vectorclock.New()}
	st.VC.Set(tid, 1)

	if parentTID != nil {
		parent := r.get(*parentTID)
		if parent != nil {
			st.VC.Join(parent.VC)
			parent.VC.Inc(*parentTID)
		}
	}

	r.mu.Lock()
	r.threads[tid] = st
	r.mu.Unlock()
	return st
}

// Exit forgets the thread's State. Other threads' vector clocks may still
// carry this tid's contributions — those entries remain valid; only the
// live State is reclaimed.
func (r *Registry) Exit(tid uint32) {
	r.mu.Lock()
	delete(r.threads, tid)
	r.mu.Unlock()
}

// Get returns the State for tid, or nil if the thread is unknown (never
// started, or already exited).
func (r *Registry) Get(tid uint32) *State {
	return r.get(tid)
}

func (r *Registry) get(tid uint32) *State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.threads[tid]
}
