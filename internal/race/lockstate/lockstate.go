// Package lockstate implements the lock state registry: one vector clock
// per lock, created lazily on first acquire and updated on every
// acquire/release to propagate happens-before knowledge between the
// thread that released a lock and the thread that next acquires it.
package lockstate

import (
	"fmt"
	"sync"

	"github.com/harlowryder/drace/internal/race/thread"
	"github.com/harlowryder/drace/internal/race/vectorclock"
)

// Key identifies a lock (or other synchronization object) by the opaque
// pointer value the host hands us. Using uintptr rather than the real
// pointer keeps this package independent of what the host actually
// synchronizes — a *sync.Mutex, a *sync.RWMutex, a channel header, all
// reduce to "some address", which is all the registry needs.
type Key uintptr

// State is the happens-before knowledge released by the most recent
// unlocker of a single lock. The zero value is a valid, never-released
// lock's state (all-zero VC).
type State struct {
	vc *vectorclock.VectorClock
}

// Registry maps Key to State, created lazily on first acquire and never
// freed until process exit.
type Registry struct {
	mu    sync.Mutex
	locks map[Key]*State
}

// NewRegistry returns an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{locks: make(map[Key]*State)}
}

// getOrCreate returns the State for key, allocating a fresh all-zero one on
// first use. Insertion is idempotent: concurrent first-acquires of the same
// key all observe the same State.
func (r *Registry) getOrCreate(key Key) *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.locks[key]
	if !ok {
		st = &State{vc: vectorclock.New()}
		r.locks[key] = st
	}
	return st
}

func (r *Registry) get(key Key) *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locks[key]
}

// Acquire joins the acquiring thread's clock with the lock's release-side
// clock, so it inherits everything the last unlocker knew. The caller is
// responsible for having already called t.EnterSyncOp() — Acquire only
// performs the VC algebra.
//
// VectorClock.Join snapshots the lock's clock under the lock clock's mutex,
// releases it, and only then merges under the thread clock's mutex. The two
// mutexes are never held together, so there is no lock-order between them
// and no detector-internal deadlock; the join is not atomic with respect to
// a concurrent Release of the same key.
func (r *Registry) Acquire(key Key, t *thread.State) {
	st := r.getOrCreate(key)
	t.VC.Join(st.vc)
}

// Release publishes the releasing thread's current knowledge into the
// lock, then advances the thread's own epoch so that work after the
// release is distinguishable from what was just published.
//
// Release of a lock nobody ever acquired is a symptom of a missed
// OnLockEnter upstream and is treated as an invariant violation.
func (r *Registry) Release(key Key, t *thread.State) {
	st := r.get(key)
	if st == nil {
		panic(fmt.Sprintf("lockstate: release of never-acquired lock %v", key))
	}
	st.vc.Copy(t.VC)
	t.VC.Inc(t.TID)
}

// --- Supplemented synchronization primitives -------------------------------
//
// Go programs synchronize through more than just mutexes. The happens-before
// algebra above — "release publishes a clock, acquire joins it" — is exactly
// the shape of sync.WaitGroup's Done/Wait and of channel send/receive, so the
// same Registry backs those too: a WaitGroup or channel is just another Key
// whose "release" is Done/Send and whose "acquire" is the Wait that observes
// all Dones, or the Receive that observes a Send.

// Done implements the release side of a sync.WaitGroup: the calling
// thread's clock is merged into (not overwritten onto) the group's clock,
// since multiple goroutines can call Done concurrently and a waiter must
// observe the union of all of them.
func (r *Registry) Done(key Key, t *thread.State) {
	st := r.getOrCreate(key)
	st.vc.Join(t.VC)
}

// Wait implements the acquire side of a sync.WaitGroup: the waiting
// thread's clock joins the accumulated Done clock.
func (r *Registry) Wait(key Key, t *thread.State) {
	st := r.get(key)
	if st == nil {
		return
	}
	t.VC.Join(st.vc)
}

// Send implements the release side of a channel send: the sender's clock
// is published into the channel's clock.
func (r *Registry) Send(key Key, t *thread.State) {
	st := r.getOrCreate(key)
	st.vc.Copy(t.VC)
}

// Receive implements the acquire side of a channel receive: the receiver
// joins the last send's clock.
func (r *Registry) Receive(key Key, t *thread.State) {
	st := r.get(key)
	if st == nil {
		return
	}
	t.VC.Join(st.vc)
}
