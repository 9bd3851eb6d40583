// Package race is the public entry point for the FastTrack data-race
// detector. A host runtime (an instrumentation tool, a VM, a custom
// interpreter — anything that can observe a program's thread lifecycle,
// lock operations, and memory accesses) drives detection purely through
// this package's exported callbacks; everything else lives under
// internal/race.
//
// Typical use:
//
//	race.Init()
//	defer race.Fini()
//
//	race.OnThreadStart(1, nil)
//	race.OnStore(addr, 1, sourceAddr)
//	race.OnThreadExit(1)
//
// This package takes thread ids as explicit arguments rather than sniffing
// goroutine ids out of the Go runtime: the host is whatever system is being
// observed, not necessarily this process's own goroutines.
package race
