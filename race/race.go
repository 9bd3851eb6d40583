package race

import (
	"sync"

	"github.com/harlowryder/drace/internal/race/config"
	"github.com/harlowryder/drace/internal/race/detector"
	"github.com/harlowryder/drace/internal/race/faults"
)

var (
	mu  sync.Mutex
	det *detector.Detector
)

// Init allocates the global detector instance. It must be called before any
// other function in this package; calling it again replaces the previous
// instance with a fresh one (its prior state is discarded).
//
// Init is not safe for concurrent use with itself or with the other
// exported functions — call it once, during startup, before the host
// begins delivering events.
func Init(opts ...config.Option) {
	mu.Lock()
	defer mu.Unlock()
	det = detector.New(config.New(opts...))
}

// Fini tears down the detector. Every callback made after Fini returns is
// dropped silently rather than touching freed state.
func Fini() {
	mu.Lock()
	d := det
	mu.Unlock()
	if d != nil {
		d.Fini()
	}
}

func current() *detector.Detector {
	mu.Lock()
	defer mu.Unlock()
	return det
}

// OnThreadStart notifies the detector that tid has started, optionally as a
// child of parentTID (nil for the first thread of a run).
func OnThreadStart(tid uint32, parentTID *uint32) {
	defer faults.Recover()
	if d := current(); d != nil {
		d.OnThreadStart(tid, parentTID)
	}
}

// OnThreadExit notifies the detector that tid has finished.
func OnThreadExit(tid uint32) {
	defer faults.Recover()
	if d := current(); d != nil {
		d.OnThreadExit(tid)
	}
}

// OnLockEnter must be called just before tid enters a lock primitive on
// lockPtr.
func OnLockEnter(lockPtr uintptr, tid uint32) {
	defer faults.Recover()
	if d := current(); d != nil {
		d.OnLockEnter(lockPtr, tid)
	}
}

// OnLockExit must be called just after tid's lock primitive returns.
func OnLockExit(tid uint32) {
	defer faults.Recover()
	if d := current(); d != nil {
		d.OnLockExit(tid)
	}
}

// OnUnlockEnter must be called just before tid enters an unlock primitive
// on lockPtr.
func OnUnlockEnter(lockPtr uintptr, tid uint32) {
	defer faults.Recover()
	if d := current(); d != nil {
		d.OnUnlockEnter(lockPtr, tid)
	}
}

// OnUnlockExit must be called just after tid's unlock primitive returns.
func OnUnlockExit(tid uint32) {
	defer faults.Recover()
	if d := current(); d != nil {
		d.OnUnlockExit(tid)
	}
}

// OnLoad must be called before each monitored load of addr by tid.
// sourceAddr identifies the instrumented instruction for reporting.
func OnLoad(addr uintptr, tid uint32, sourceAddr uintptr) {
	defer faults.Recover()
	if d := current(); d != nil {
		d.OnLoad(addr, tid, sourceAddr)
	}
}

// OnStore must be called before each monitored store of addr by tid.
func OnStore(addr uintptr, tid uint32, sourceAddr uintptr) {
	defer faults.Recover()
	if d := current(); d != nil {
		d.OnStore(addr, tid, sourceAddr)
	}
}

// OnWaitGroupDone must be called on a sync.WaitGroup's Done().
func OnWaitGroupDone(wgPtr uintptr, tid uint32) {
	defer faults.Recover()
	if d := current(); d != nil {
		d.OnWaitGroupDone(wgPtr, tid)
	}
}

// OnWaitGroupWait must be called after a sync.WaitGroup's Wait() returns.
func OnWaitGroupWait(wgPtr uintptr, tid uint32) {
	defer faults.Recover()
	if d := current(); d != nil {
		d.OnWaitGroupWait(wgPtr, tid)
	}
}

// OnChannelSend must be called on a channel send.
func OnChannelSend(chPtr uintptr, tid uint32) {
	defer faults.Recover()
	if d := current(); d != nil {
		d.OnChannelSend(chPtr, tid)
	}
}

// OnChannelReceive must be called after a channel receive completes.
func OnChannelReceive(chPtr uintptr, tid uint32) {
	defer faults.Recover()
	if d := current(); d != nil {
		d.OnChannelReceive(chPtr, tid)
	}
}
