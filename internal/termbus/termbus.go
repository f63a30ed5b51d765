// Package termbus is the process-wide termination flag and its companion
// error-report channel. TERMINATE is deliberately a bare atomic, not bundled
// into a struct: its identity is process-wide, and every long-running loop
// in the pipeline polls it directly.
package termbus

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

var terminate atomic.Bool

// Set flips the process-wide termination flag. Safe to call from any
// goroutine; idempotent.
func Set() {
	terminate.Store(true)
}

// IsSet reports whether termination has been requested.
func IsSet() bool {
	return terminate.Load()
}

// Bus is the error-report channel a component writes to when it hits a
// fatal condition; the Coordinator is the single reader, translating the
// first error it sees into the process exit status. A requested shutdown
// (operator signal) is reported separately on Done, never on Errors, since
// it ends the run cleanly rather than with a fatal error.
type Bus struct {
	errc     chan error
	done     chan struct{}
	doneOnce sync.Once
}

// New creates an error bus with reasonable buffering so that a reporting
// goroutine never blocks on the Coordinator being busy.
func New() *Bus {
	return &Bus{errc: make(chan error, 8), done: make(chan struct{})}
}

// Errors returns the channel the Coordinator selects on for genuine fatal
// errors (category 3: per-file IO failures fatal to a worker, and similar).
func (b *Bus) Errors() <-chan error {
	return b.errc
}

// Done returns the channel the Coordinator selects on for a requested
// shutdown; it closes exactly once, the first time RequestShutdown runs.
func (b *Bus) Done() <-chan struct{} {
	return b.done
}

// TermErr sets TERMINATE and reports err as the run's fatal error. Safe to
// call from multiple goroutines and never blocks; only the first error is
// ever observed as significant by the Coordinator. Errors sent while the
// bus's buffer (8 entries) is full are dropped.
func (b *Bus) TermErr(err error) {
	Set()
	select {
	case b.errc <- err:
	default:
		// Buffer full: a termination is already well underway.
	}
}

// RequestShutdown sets TERMINATE and closes Done, for a clean (non-error)
// termination such as an operator signal. Idempotent and safe to call from
// multiple goroutines.
func (b *Bus) RequestShutdown() {
	Set()
	b.doneOnce.Do(func() {
		close(b.done)
	})
}

// WatchSignals installs handlers for SIGINT/SIGTERM once. The first signal
// requests a clean shutdown; a second forces an immediate process exit
// without running cleanup, per the termination contract.
func WatchSignals(b *Bus) {
	sigc := make(chan os.Signal, 2)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		b.RequestShutdown()
		<-sigc
		os.Exit(1)
	}()
}
