// Package hashpool is the adaptive multi-worker hashing pipeline. A dynamic
// set of workers share one path-input channel and one hash-output channel;
// a controller grows or shrinks the worker set based on measured throughput
// and the FdSemaphore's remaining budget, never exceeding it.
package hashpool

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"discdiff/internal/fdsem"
	"discdiff/internal/hashlog"
)

const chunkSize = 64 * 1024

// Per-worker throughput sentinels, released-store / acquire-load on a
// dedicated atomic per worker.
const (
	speedUnknown int64 = -1 // not yet measured
	speedPaused  int64 = -2 // blocked waiting on an FdSemaphore token
)

type msgKind int

const (
	msgHash msgKind = iota
	msgHalted
	msgErr
)

type controlMsg struct {
	kind     msgKind
	entry    hashlog.Entry
	err      error
	workerID int
}

// worker is the shared, read-only view a hashing goroutine needs. It never
// refers back to the controller: the controller reaches into worker state
// (speed) from its own goroutine instead, breaking any cyclic ownership.
type worker struct {
	id     int
	anchor bool
	speed  atomic.Int64
}

func newWorker(id int, anchor bool) *worker {
	w := &worker{id: id, anchor: anchor}
	w.speed.Store(speedUnknown)
	return w
}

// run is the per-worker loop (§4.7). It exits when: a halt request is
// consumed (non-anchor only), no path is immediately available (non-anchor)
// or the input channel is closed (anchor), stop is closed while waiting for
// a path (anchor) or while sending a result, or an IO error occurs while
// hashing.
func (w *worker) run(paths <-chan string, msgs chan<- controlMsg, sem *fdsem.Semaphore, halt *atomic.Int32, stop <-chan struct{}) {
	for {
		if !w.anchor && consumeHalt(halt) {
			msgs <- controlMsg{kind: msgHalted, workerID: w.id}
			return
		}

		path, ok := w.nextPath(paths, stop)
		if !ok {
			msgs <- controlMsg{kind: msgHalted, workerID: w.id}
			return
		}

		entry, err := w.hashOne(path, sem)
		if err != nil {
			msgs <- controlMsg{kind: msgErr, err: err, workerID: w.id}
			return
		}

		select {
		case msgs <- controlMsg{kind: msgHash, entry: entry, workerID: w.id}:
		case <-stop:
			msgs <- controlMsg{kind: msgHalted, workerID: w.id}
			return
		}
	}
}

// nextPath pulls a path from the channel. The anchor blocks until one
// arrives or the pool is stopped; any other worker terminates immediately
// if none is available right now.
func (w *worker) nextPath(paths <-chan string, stop <-chan struct{}) (string, bool) {
	if w.anchor {
		select {
		case p, ok := <-paths:
			return p, ok
		case <-stop:
			return "", false
		}
	}
	select {
	case p, ok := <-paths:
		return p, ok
	default:
		return "", false
	}
}

// consumeHalt atomically decrements halt if it is positive, reporting
// whether it succeeded.
func consumeHalt(halt *atomic.Int32) bool {
	for {
		v := halt.Load()
		if v <= 0 {
			return false
		}
		if halt.CompareAndSwap(v, v-1) {
			return true
		}
	}
}

// hashOne acquires an FdSemaphore token (scoped to this file only),
// streams the file through XXH64 in fixed-size chunks, and publishes this
// worker's instantaneous throughput.
func (w *worker) hashOne(path string, sem *fdsem.Semaphore) (hashlog.Entry, error) {
	tok, got := sem.TryAccess()
	if !got {
		w.speed.Store(speedPaused)
		tok = sem.Access()
	}
	defer tok.Release()

	f, err := os.Open(path)
	if err != nil {
		return hashlog.Entry{}, fmt.Errorf("hashpool: open %s: %w", path, err)
	}
	defer f.Close()

	start := time.Now()
	h := xxhash.New()
	buf := make([]byte, chunkSize)
	var total int64
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			total += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return hashlog.Entry{}, fmt.Errorf("hashpool: read %s: %w", path, err)
		}
	}
	elapsed := time.Since(start)

	if elapsed > 0 {
		w.speed.Store(int64(float64(total) / elapsed.Seconds()))
	} else {
		w.speed.Store(speedUnknown)
	}

	return hashlog.Entry{Path: path, Hash: h.Sum64()}, nil
}
