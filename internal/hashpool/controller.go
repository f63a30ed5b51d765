package hashpool

import (
	"log/slog"
	"sync/atomic"
	"time"

	"discdiff/internal/fdsem"
	"discdiff/internal/hashlog"
	"discdiff/internal/termbus"
)

// tickInterval bounds how long the controller waits for a batch of worker
// messages before computing throughput for that tick.
const tickInterval = 200 * time.Millisecond

// Options configures a Run invocation.
type Options struct {
	// Label identifies the partition in log lines.
	Label string
}

// Run drives one partition's hashing pipeline to completion: it spawns the
// anchor worker, reads controlMsg batches, forwards hash results to out,
// and adapts the live worker count each tick until every worker has halted
// or TERMINATE is set. A worker's open/read error is reported on errBus
// (category 3, §7: fatal-to-worker, sets TERMINATE) and retires that
// worker; it does not stop the other partitions directly, since whoever
// drains errBus (cmd/discdiff forwards it to termbus.Bus.TermErr) is what
// sets TERMINATE process-wide.
func Run(paths <-chan string, out chan<- hashlog.Entry, errBus chan<- error, sem *fdsem.Semaphore, log *slog.Logger, stop <-chan struct{}, opts Options) {
	msgs := make(chan controlMsg, 64)
	var halt atomic.Int32
	var nextID int

	live := make(map[int]*worker)

	spawn := func(anchor bool) {
		w := newWorker(nextID, anchor)
		nextID++
		live[w.id] = w
		go w.run(paths, msgs, sem, &halt, stop)
	}

	spawn(true) // the anchor is never eligible for retirement.

	lastTotalSpeed := -1.0 // sentinel: no prior sample yet
	lastNumPerSec := -1.0
	lastTick := time.Now()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for len(live) > 0 {
		if termbus.IsSet() {
			return
		}

		batch := drainBatch(msgs, ticker.C)

		for _, m := range batch {
			switch m.kind {
			case msgHash:
				select {
				case out <- m.entry:
				case <-stop:
					return
				}
			case msgHalted:
				delete(live, m.workerID)
			case msgErr:
				delete(live, m.workerID)
				log.Error("hashpool: worker hit fatal error", "partition", opts.Label, "worker", m.workerID, "error", m.err)
				select {
				case errBus <- m.err:
				default:
				}
			}
		}

		now := time.Now()
		wall := now.Sub(lastTick).Seconds()
		lastTick = now
		if wall <= 0 {
			continue
		}

		numPerSec := float64(len(batch)) / wall
		totalSpeed := aggregateSpeed(live)

		if lastTotalSpeed >= 0 && totalSpeed <= lastTotalSpeed {
			switch {
			case numPerSec < lastNumPerSec && len(live) > 1:
				halt.Add(1)
				log.Debug("hashpool: throughput plateaued, requesting halt", "partition", opts.Label, "workers", len(live))
			case sem.Count() > 0:
				spawn(false)
				log.Debug("hashpool: spare fd budget, spawning worker", "partition", opts.Label, "workers", len(live))
			}
		}

		lastTotalSpeed = totalSpeed
		lastNumPerSec = numPerSec
	}
}

// drainBatch waits for at least one message (or the tick deadline) and then
// opportunistically drains whatever else is already queued without blocking
// further. TERMINATE is checked by Run between batches, not here.
func drainBatch(msgs <-chan controlMsg, tick <-chan time.Time) []controlMsg {
	var batch []controlMsg
	select {
	case m := <-msgs:
		batch = append(batch, m)
	case <-tick:
		return batch
	}
	for {
		select {
		case m := <-msgs:
			batch = append(batch, m)
		default:
			return batch
		}
	}
}

// aggregateSpeed sums live workers' published throughput, excluding paused
// workers entirely and scaling up to compensate for workers whose first
// measurement has not landed yet (speedUnknown).
func aggregateSpeed(live map[int]*worker) float64 {
	var sumKnown float64
	var unknownCount, consideredCount int

	for _, w := range live {
		s := w.speed.Load()
		switch s {
		case speedPaused:
			// excluded entirely: neither numerator nor denominator.
		case speedUnknown:
			unknownCount++
			consideredCount++
		default:
			sumKnown += float64(s)
			consideredCount++
		}
	}

	if consideredCount == 0 || unknownCount == 0 {
		return sumKnown
	}
	unknownFraction := float64(unknownCount) / float64(consideredCount)
	if unknownFraction >= 1 {
		return sumKnown
	}
	return sumKnown / (1 - unknownFraction)
}
