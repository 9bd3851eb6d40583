// Package config holds the detector's tunable knobs: sampling rate, report
// destination, and resource-guard thresholds, assembled via functional
// options so new knobs can be added without breaking existing call sites.
package config

import (
	"io"
	"os"
	"time"
)

// Config is the fully resolved set of detector options. The zero value is
// never used directly — construct one with New, which applies defaults
// before any Option runs.
type Config struct {
	// Enabled gates whether the dispatcher does any work at all; false
	// turns every exported race callback into a no-op, for production
	// builds that link the package but don't want the overhead.
	Enabled bool

	// SampleEvery, when > 1, only runs the full check on every Nth
	// OnLoad/OnStore callback per thread; 1 (the default) checks every
	// access. Sampling trades soundness for overhead — a sampled race can
	// be missed entirely — so turning it on is an informed opt-in, never
	// the default.
	SampleEvery uint32

	// ReportWriter receives formatted race verdicts. Defaults to os.Stderr.
	ReportWriter io.Writer

	// MemGuardInterval is how often the resource guard polls system
	// memory.
	MemGuardInterval time.Duration

	// MemGuardThreshold is the fraction of total RAM that, once available
	// memory drops below it, triggers the fatal path.
	MemGuardThreshold float64
}

// Option mutates a Config during construction.
type Option func(*Config)

// WithDisabled turns the detector off entirely.
func WithDisabled() Option {
	return func(c *Config) { c.Enabled = false }
}

// WithSampling checks only every nth access per thread. n <= 1 means "check
// every access" (the default).
func WithSampling(n uint32) Option {
	return func(c *Config) { c.SampleEvery = n }
}

// WithReportWriter directs race verdicts to w instead of os.Stderr.
func WithReportWriter(w io.Writer) Option {
	return func(c *Config) { c.ReportWriter = w }
}

// WithMemGuardInterval overrides the Resource Guard's polling interval.
func WithMemGuardInterval(d time.Duration) Option {
	return func(c *Config) { c.MemGuardInterval = d }
}

// WithMemGuardThreshold overrides the Resource Guard's available-RAM
// fraction.
func WithMemGuardThreshold(fraction float64) Option {
	return func(c *Config) { c.MemGuardThreshold = fraction }
}

// New returns a Config with defaults applied, then overridden by opts in
// order.
func New(opts ...Option) *Config {
	c := &Config{
		Enabled:           true,
		SampleEvery:       1,
		ReportWriter:      os.Stderr,
		MemGuardInterval:  time.Second,
		MemGuardThreshold: 0.02,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ShouldSample reports whether the nth access for a thread (1-indexed; the
// counter resets at thread-start) should run the full FastTrack check.
func (c *Config) ShouldSample(n uint64) bool {
	if c.SampleEvery <= 1 {
		return true
	}
	return n%uint64(c.SampleEvery) == 0
}
