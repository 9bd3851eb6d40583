// Package memguard implements a background watchdog that aborts the
// detector when the host machine is close to running out of RAM, rather
// than let a shadow-memory table allocation fail with no graceful way to
// recover.
package memguard

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
)

// FatalFunc is called once, from the guard's own goroutine, the first time
// available RAM drops below the configured threshold. Detector wiring passes
// faults.Fatal here; tests pass a closure that records the call instead of
// exiting the test binary.
type FatalFunc func(msg string, kv ...any)

// Guard periodically samples system-wide memory and invokes a fatal
// callback on the first sample whose available memory is below the
// threshold.
type Guard struct {
	interval  time.Duration
	threshold float64 // fraction of total RAM; available below this triggers the guard
	onFatal   FatalFunc
	sample    func() (total, available uint64, err error)
}

// Option configures a Guard.
type Option func(*Guard)

// WithInterval overrides the default 1s polling interval.
func WithInterval(d time.Duration) Option {
	return func(g *Guard) { g.interval = d }
}

// WithThreshold overrides the default 0.02 (2%) available-RAM fraction.
func WithThreshold(fraction float64) Option {
	return func(g *Guard) { g.threshold = fraction }
}

// New returns a Guard that calls onFatal the first time available RAM falls
// below threshold * total RAM.
func New(onFatal FatalFunc, opts ...Option) *Guard {
	g := &Guard{
		interval:  time.Second,
		threshold: 0.02,
		onFatal:   onFatal,
		sample:    sampleVirtualMemory,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func sampleVirtualMemory() (total, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, err
	}
	return v.Total, v.Available, nil
}

// Run polls until ctx is canceled or the fatal threshold is crossed, in
// which case onFatal is invoked and Run returns. Intended to be launched as
// `go guard.Run(ctx)` from Init.
func (g *Guard) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if g.poll() {
				return
			}
		}
	}
}

// poll samples memory once and returns true if the fatal callback fired.
func (g *Guard) poll() bool {
	total, available, err := g.sample()
	if err != nil {
		// A failed sample is not itself fatal — gopsutil can transiently
		// fail to read /proc on some platforms. Just try again next tick.
		return false
	}
	threshold := uint64(float64(total) * g.threshold)
	if available < threshold {
		g.onFatal("available memory below threshold",
			"available", available, "threshold", threshold, "total", total)
		return true
	}
	return false
}
