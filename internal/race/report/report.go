// Package report formats and writes race verdicts to a configurable
// io.Writer-backed log stream.
package report

import (
	"fmt"
	"io"
	"sync"

	"github.com/harlowryder/drace/internal/race/shadowmem"
)

// Sink serializes race verdicts to an underlying io.Writer. Any dispatcher
// goroutine that detects a race can call in concurrently, so writes are
// serialized by mu to keep lines from interleaving.
type Sink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewSink wraps w. w is typically opened once at startup and closed via
// Close at shutdown; tests commonly pass a *bytes.Buffer instead.
func NewSink(w io.Writer) *Sink {
	return &Sink{w: w}
}

// Report writes one race verdict line in the form
// "<kind> race detected @ <hex source_addr>".
func (s *Sink) Report(kind shadowmem.RaceKind, sourceAddr uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "%s race detected @ 0x%x\n", kind, sourceAddr)
}

// Close closes the underlying writer if it implements io.Closer; it is a
// no-op otherwise (e.g. a *bytes.Buffer in tests). An *os.File, including
// the default os.Stderr, is an io.Closer and is closed.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
