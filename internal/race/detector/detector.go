// Package detector implements the event dispatcher: the state machine that
// turns host callbacks (thread start/exit, lock/unlock enter/exit,
// load/store) into calls on the thread registry, lock registry, and memory
// access table, and routes any detected race to the report sink.
package detector

import (
	"context"
	"sync"

	"github.com/harlowryder/drace/internal/race/config"
	"github.com/harlowryder/drace/internal/race/faults"
	"github.com/harlowryder/drace/internal/race/lockstate"
	"github.com/harlowryder/drace/internal/race/memguard"
	"github.com/harlowryder/drace/internal/race/report"
	"github.com/harlowryder/drace/internal/race/shadowmem"
	"github.com/harlowryder/drace/internal/race/thread"
)

// Detector owns every piece of process-wide state: the thread registry,
// lock registry, memory access table, report sink, and resource guard.
type Detector struct {
	cfg *config.Config

	guard     *memguard.Guard
	guardStop context.CancelFunc

	// teardownMu guards every field below, including through Fini. Every
	// callback reads threads/locks/table/sink through the locked accessor
	// below rather than touching these fields directly, so a callback can
	// never observe a live snapshot and then race a concurrent Fini
	// nil-ing them out from under it.
	teardownMu sync.Mutex
	tornDown   bool
	threads    *thread.Registry
	locks      *lockstate.Registry
	table      *shadowmem.Table
	sink       *report.Sink
}

// New allocates the detector's process-wide state and starts the resource
// guard. The guard runs for every Detector, including one whose config has
// Enabled set to false.
func New(cfg *config.Config) *Detector {
	if cfg == nil {
		cfg = config.New()
	}

	d := &Detector{
		cfg:     cfg,
		threads: thread.NewRegistry(),
		locks:   lockstate.NewRegistry(),
		table:   shadowmem.NewTable(),
		sink:    report.NewSink(cfg.ReportWriter),
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.guardStop = cancel
	d.guard = memguard.New(faults.Fatal,
		memguard.WithInterval(cfg.MemGuardInterval),
		memguard.WithThreshold(cfg.MemGuardThreshold))
	go d.guard.Run(ctx)

	return d
}

// Fini tears the detector down: stops the resource guard, closes the sink,
// and drops every registry so their memory can be reclaimed. Afterwards
// every callback is a silent no-op rather than a nil-pointer crash — see
// acquire below.
func (d *Detector) Fini() {
	d.teardownMu.Lock()
	defer d.teardownMu.Unlock()
	if d.tornDown {
		return
	}
	d.tornDown = true

	d.guardStop()
	d.sink.Close()
	// Left to the garbage collector: there is no explicit free in Go, only
	// dropping the last reference.
	d.threads = nil
	d.locks = nil
	d.table = nil
}

// acquire returns the live registries/table/sink in one atomic step, or
// ok == false once Fini has run. Checking liveness and reading these
// fields must happen under the same lock acquisition: a callback that
// checked liveness separately from its use of d.threads could be preempted
// between the two, let Fini run to completion, and then dereference a nil
// registry.
func (d *Detector) acquire() (threads *thread.Registry, locks *lockstate.Registry, table *shadowmem.Table, sink *report.Sink, ok bool) {
	d.teardownMu.Lock()
	defer d.teardownMu.Unlock()
	if d.tornDown {
		return nil, nil, nil, nil, false
	}
	return d.threads, d.locks, d.table, d.sink, true
}

// OnThreadStart allocates thread state for tid and, for a non-root thread,
// joins the parent's clock into it.
func (d *Detector) OnThreadStart(tid uint32, parentTID *uint32) {
	if !d.cfg.Enabled {
		return
	}
	threads, _, _, _, ok := d.acquire()
	if !ok {
		return
	}
	threads.Start(tid, parentTID)
}

// OnThreadExit forgets tid's state. Other threads' vector clocks may still
// carry its contributions; only the live lookup entry is reclaimed.
func (d *Detector) OnThreadExit(tid uint32) {
	if !d.cfg.Enabled {
		return
	}
	threads, _, _, _, ok := d.acquire()
	if !ok {
		return
	}
	threads.Exit(tid)
}

// OnLockEnter marks the thread as inside a synchronization callback before
// the happens-before join, so the mutex's own word is never itself
// instrumented as a racing access.
func (d *Detector) OnLockEnter(lockPtr uintptr, tid uint32) {
	if !d.cfg.Enabled {
		return
	}
	threads, locks, _, _, ok := d.acquire()
	if !ok {
		return
	}
	t := threads.Get(tid)
	if t == nil {
		return
	}
	t.EnterSyncOp()
	locks.Acquire(lockstate.Key(lockPtr), t)
}

// OnLockExit clears the sync-op marker on the lock side. Both this and
// OnUnlockExit decrement the same counter, since a thread can be inside a
// lock's interception and an unlock's interception at once (nested locks).
func (d *Detector) OnLockExit(tid uint32) {
	if !d.cfg.Enabled {
		return
	}
	threads, _, _, _, ok := d.acquire()
	if !ok {
		return
	}
	if t := threads.Get(tid); t != nil {
		t.ExitSyncOp()
	}
}

// OnUnlockEnter marks the thread as inside a synchronization callback
// before publishing its clock into the lock, symmetric with OnLockEnter.
func (d *Detector) OnUnlockEnter(lockPtr uintptr, tid uint32) {
	if !d.cfg.Enabled {
		return
	}
	threads, locks, _, _, ok := d.acquire()
	if !ok {
		return
	}
	t := threads.Get(tid)
	if t == nil {
		return
	}
	t.EnterSyncOp()
	locks.Release(lockstate.Key(lockPtr), t)
}

// OnUnlockExit clears the sync-op marker on the unlock side, symmetric with
// OnLockExit.
func (d *Detector) OnUnlockExit(tid uint32) {
	if !d.cfg.Enabled {
		return
	}
	threads, _, _, _, ok := d.acquire()
	if !ok {
		return
	}
	if t := threads.Get(tid); t != nil {
		t.ExitSyncOp()
	}
}

// OnLoad is the read-side entry point: a thread inside a synchronization
// callback is skipped outright, sampling may further thin out the check,
// and any detected race is routed to the sink tagged with sourceAddr.
func (d *Detector) OnLoad(addr uintptr, tid uint32, sourceAddr uintptr) {
	if !d.cfg.Enabled {
		return
	}
	threads, _, table, sink, ok := d.acquire()
	if !ok {
		return
	}
	t := threads.Get(tid)
	if t == nil || t.InSyncOp() {
		return
	}
	if !d.cfg.ShouldSample(t.NextAccess()) {
		return
	}
	if kind := table.OnRead(addr, t); kind != shadowmem.NoRace {
		sink.Report(kind, sourceAddr)
	}
}

// OnStore is the write-side entry point, symmetric with OnLoad.
func (d *Detector) OnStore(addr uintptr, tid uint32, sourceAddr uintptr) {
	if !d.cfg.Enabled {
		return
	}
	threads, _, table, sink, ok := d.acquire()
	if !ok {
		return
	}
	t := threads.Get(tid)
	if t == nil || t.InSyncOp() {
		return
	}
	if !d.cfg.ShouldSample(t.NextAccess()) {
		return
	}
	if kind := table.OnWrite(addr, t); kind != shadowmem.NoRace {
		sink.Report(kind, sourceAddr)
	}
}

// OnWaitGroupDone and OnWaitGroupWait wire sync.WaitGroup's happens-before
// edges through the same lock registry a mutex uses: Done publishes, Wait
// joins.
func (d *Detector) OnWaitGroupDone(wgPtr uintptr, tid uint32) {
	if !d.cfg.Enabled {
		return
	}
	threads, locks, _, _, ok := d.acquire()
	if !ok {
		return
	}
	if t := threads.Get(tid); t != nil {
		locks.Done(lockstate.Key(wgPtr), t)
	}
}

func (d *Detector) OnWaitGroupWait(wgPtr uintptr, tid uint32) {
	if !d.cfg.Enabled {
		return
	}
	threads, locks, _, _, ok := d.acquire()
	if !ok {
		return
	}
	if t := threads.Get(tid); t != nil {
		locks.Wait(lockstate.Key(wgPtr), t)
	}
}

// OnChannelSend and OnChannelReceive wire channel happens-before edges
// through the same lock registry: a send publishes, a receive joins.
func (d *Detector) OnChannelSend(chPtr uintptr, tid uint32) {
	if !d.cfg.Enabled {
		return
	}
	threads, locks, _, _, ok := d.acquire()
	if !ok {
		return
	}
	if t := threads.Get(tid); t != nil {
		locks.Send(lockstate.Key(chPtr), t)
	}
}

func (d *Detector) OnChannelReceive(chPtr uintptr, tid uint32) {
	if !d.cfg.Enabled {
		return
	}
	threads, locks, _, _, ok := d.acquire()
	if !ok {
		return
	}
	if t := threads.Get(tid); t != nil {
		locks.Receive(lockstate.Key(chPtr), t)
	}
}
