// Package coordinator implements the Coordinator (C8): it lazily reads the
// prior-run hash database, merges it against freshly hashed entries from
// every partition's HashPool, decides what to print, writes the resumable
// output log, and recovers from a corrupt output log exactly once per run.
package coordinator

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"discdiff/internal/hashlog"
	"discdiff/internal/history"
	"discdiff/internal/priormap"
	"discdiff/internal/termbus"
)

// Coordinator owns the two HashLogs and the PriorHashMap, and is the single
// funnel translating pipeline events into stdout lines, output-log writes,
// and the process exit error.
type Coordinator struct {
	dataLog   *hashlog.Log // optional, read-only input database
	outputLog *hashlog.Log // optional, read+append resumable output database
	prior     *priormap.Map
	stdout    io.Writer
	log       *slog.Logger
	history   *history.Store // optional, best-effort forensic ledger
	runID     string

	dataCache     map[string]uint64
	dataExhausted bool
	written       map[string]uint64 // every (path,hash) observed this run, for recovery
	recoveryDone  bool
}

// Config selects which logs and auxiliary stores a Coordinator opens.
type Config struct {
	DataPath    string // --data, may be empty
	OutputPath  string // --output-data, may be empty
	Stdout      io.Writer
	Log         *slog.Logger
	History     *history.Store // may be nil
	RunID       string
}

// New opens the configured logs (boot step 1 of §4.8) and returns a
// Coordinator along with the shared PriorHashMap every Walker should be
// given. New does not read the output log itself: the caller runs LoadPrior
// (typically in its own goroutine) to stream it into the PriorHashMap.
func New(cfg Config) (*Coordinator, *priormap.Map, error) {
	c := &Coordinator{
		prior:     priormap.New(),
		stdout:    cfg.Stdout,
		log:       cfg.Log,
		history:   cfg.History,
		runID:     cfg.RunID,
		dataCache: make(map[string]uint64),
		written:   make(map[string]uint64),
	}

	if cfg.DataPath != "" {
		dl, err := hashlog.Open(cfg.DataPath, true)
		if err != nil {
			return nil, nil, fmt.Errorf("coordinator: open data log: %w", err)
		}
		c.dataLog = dl
	} else {
		c.dataExhausted = true
	}

	if cfg.OutputPath != "" {
		// -d D -o D is an explicit, spec'd usage (warm rerun in place): the
		// same path is read as input and then appended as output through two
		// independent cursors, so Open must allow a second same-process
		// handle on a path it already holds the lock for (see log.go's
		// lockRegistry) rather than treating it as a competing process.
		ol, err := hashlog.Open(cfg.OutputPath, true)
		if err != nil {
			if c.dataLog != nil {
				c.dataLog.Close()
			}
			return nil, nil, fmt.Errorf("coordinator: open output log: %w", err)
		}
		c.outputLog = ol
	}

	return c, c.prior, nil
}

// LoadPrior streams the output log into the PriorHashMap, unparking every
// Walker on each insert and one final time when done. It is meant to run in
// its own goroutine. LoadPrior closes doneCh when it returns, which signals
// the Coordinator's main loop that read_done is set; callers must not close
// it themselves.
func (c *Coordinator) LoadPrior(doneCh chan<- struct{}) {
	defer close(doneCh)
	defer c.prior.SetDone()

	if c.outputLog == nil {
		return
	}
	for {
		e, err := c.outputLog.Read()
		if err == hashlog.ErrEmpty {
			if e != (hashlog.Entry{}) {
				c.prior.Insert(e.Path, e.Hash)
			}
			return
		}
		if err != nil {
			c.log.Warn("coordinator: output log read failed, will attempt recovery", "error", err)
			return
		}
		c.prior.Insert(e.Path, e.Hash)
	}
}

// Run drains in the Coordinator's hash entries until hashc is closed,
// selecting over errBus for genuine fatal errors, shutdown for a requested
// (clean) termination, and readDone for the one-shot recovery check. It
// returns the process exit error: nil on clean completion or a requested
// termination, non-nil only for a genuine category-3 error.
func (c *Coordinator) Run(hashc <-chan hashlog.Entry, errBus <-chan error, shutdown <-chan struct{}, readDone <-chan struct{}) error {
	for hashc != nil || readDone != nil {
		select {
		case e, ok := <-hashc:
			if !ok {
				hashc = nil
				continue
			}
			batch := drainBatch(e, hashc)
			c.handleBatch(batch)

		case err := <-errBus:
			return err

		case <-shutdown:
			return nil

		case <-readDone:
			readDone = nil
			c.maybeRecover()
		}

		if termbus.IsSet() {
			return nil
		}
	}
	return nil
}

// drainBatch opportunistically collects whatever else is already queued
// behind first, without blocking further.
func drainBatch(first hashlog.Entry, hashc <-chan hashlog.Entry) []hashlog.Entry {
	batch := []hashlog.Entry{first}
	for {
		select {
		case e, ok := <-hashc:
			if !ok {
				return batch
			}
			batch = append(batch, e)
		default:
			return batch
		}
	}
}

func (c *Coordinator) handleBatch(batch []hashlog.Entry) {
	for _, e := range batch {
		c.written[e.Path] = e.Hash

		prior, hasPrior := c.lookupData(e.Path)
		if !hasPrior || prior != e.Hash {
			if _, err := c.stdout.Write(append([]byte(e.Path), '\n')); err != nil {
				c.log.Error("coordinator: stdout write failed", "error", err)
			}
		}

		if c.history != nil {
			c.history.Record(c.runID, e.Path, e.Hash, time.Now())
		}
	}

	if f, ok := c.stdout.(interface{ Flush() error }); ok {
		_ = f.Flush()
	}

	if c.outputLog != nil {
		if err := c.outputLog.Write(batch); err != nil {
			c.log.Error("coordinator: output log write failed", "error", err)
		}
	}
}

// lookupData consults the --data input log for path's prior hash, caching
// every record read along the way so repeated lookups never re-scan from
// the start.
func (c *Coordinator) lookupData(path string) (uint64, bool) {
	if h, ok := c.dataCache[path]; ok {
		return h, true
	}
	if c.dataExhausted {
		return 0, false
	}
	for {
		e, err := c.dataLog.Read()
		if err == hashlog.ErrEmpty {
			c.dataExhausted = true
			if e != (hashlog.Entry{}) {
				c.dataCache[e.Path] = e.Hash
				if e.Path == path {
					return e.Hash, true
				}
			}
			return 0, false
		}
		if err != nil {
			c.log.Warn("coordinator: data log read failed, treating remainder as absent", "error", err)
			c.dataExhausted = true
			return 0, false
		}
		c.dataCache[e.Path] = e.Hash
		if e.Path == path {
			return e.Hash, true
		}
	}
}

// maybeRecover performs the corruption-fallback recovery (§4.8 step 3) at
// most once per run: if the output log's reader ended in StatusError, the
// combined set of everything the PriorHashMap ever learned plus everything
// hashed this run is rewritten from scratch.
func (c *Coordinator) maybeRecover() {
	if c.recoveryDone || c.outputLog == nil {
		return
	}
	if c.outputLog.Status() != hashlog.StatusError {
		return
	}
	c.recoveryDone = true

	combined := make(map[string]uint64)
	c.prior.Range(func(path string, hash uint64) {
		combined[path] = hash
	})
	for path, hash := range c.written {
		combined[path] = hash
	}

	entries := make([]hashlog.Entry, 0, len(combined))
	for path, hash := range combined {
		entries = append(entries, hashlog.Entry{Path: path, Hash: hash})
	}

	c.log.Warn("coordinator: output log corrupt, rewriting", "entries", len(entries))
	if err := c.outputLog.Reset(); err != nil {
		c.log.Error("coordinator: reset output log failed", "error", err)
		return
	}
	if err := c.outputLog.Write(entries); err != nil {
		c.log.Error("coordinator: rewrite output log failed", "error", err)
	}
}

// Close releases the Coordinator's open log handles.
func (c *Coordinator) Close() {
	if c.dataLog != nil {
		c.dataLog.Close()
	}
	if c.outputLog != nil {
		c.outputLog.Close()
	}
}
