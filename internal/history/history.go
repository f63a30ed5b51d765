// Package history implements the optional forensic ledger (C10): a SQLite
// table of every (path, hash, observed_at) triple the Coordinator emits.
// It is strictly additive and best-effort — losing it never interrupts
// stdout emission or the authoritative binary HashLog (§4.10, §7).
package history

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS hash_events (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	path         TEXT NOT NULL,
	hash         INTEGER NOT NULL,
	observed_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_hash_events_path ON hash_events(path, observed_at);
`

// queueCapacity bounds how far the writer goroutine can fall behind the
// Coordinator before new records are dropped rather than blocking it.
const queueCapacity = 1024

// Record is one row of observed path/hash history.
type Record struct {
	RunID      string
	Path       string
	Hash       uint64
	ObservedAt time.Time
}

// Store is the SQLite-backed forensic ledger.
type Store struct {
	db    *sql.DB
	log   *slog.Logger
	queue chan Record
	done  chan struct{}
}

// Open creates or opens the ledger at path and starts its background
// writer goroutine.
func Open(path string, log *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}

	s := &Store{
		db:    db,
		log:   log,
		queue: make(chan Record, queueCapacity),
		done:  make(chan struct{}),
	}
	go s.writeLoop()
	return s, nil
}

// Record enqueues a hash observation without blocking the caller. If the
// queue is saturated the record is dropped and logged — the ledger is
// diagnostic, never authoritative.
func (s *Store) Record(runID, path string, hash uint64, observedAt time.Time) {
	select {
	case s.queue <- Record{RunID: runID, Path: path, Hash: hash, ObservedAt: observedAt}:
	default:
		s.log.Warn("history: queue saturated, dropping record", "path", path)
	}
}

// writeLoop batches whatever is queued into one transaction at a time,
// so the ledger never serialises one INSERT per hash against the
// Coordinator's hot path.
func (s *Store) writeLoop() {
	defer close(s.done)
	for batch := range drainer(s.queue) {
		s.writeBatch(batch)
	}
}

func (s *Store) writeBatch(batch []Record) {
	tx, err := s.db.Begin()
	if err != nil {
		s.log.Warn("history: begin transaction failed", "error", err)
		return
	}
	stmt, err := tx.Prepare(`INSERT INTO hash_events (run_id, path, hash, observed_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		s.log.Warn("history: prepare failed", "error", err)
		tx.Rollback()
		return
	}
	for _, r := range batch {
		if _, err := stmt.Exec(r.RunID, r.Path, int64(r.Hash), r.ObservedAt.UnixNano()); err != nil {
			s.log.Warn("history: insert failed", "path", r.Path, "error", err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		s.log.Warn("history: commit failed", "error", err)
	}
}

// drainer turns a stream of individual records into a stream of batches,
// one batch per queue-drain cycle, closing its output when in is closed
// and drained.
func drainer(in <-chan Record) <-chan []Record {
	out := make(chan []Record)
	go func() {
		defer close(out)
		for first := range in {
			batch := []Record{first}
		drain:
			for {
				select {
				case r, ok := <-in:
					if !ok {
						break drain
					}
					batch = append(batch, r)
				default:
					break drain
				}
			}
			out <- batch
		}
	}()
	return out
}

// History returns path's recorded hash observations, oldest first.
func (s *Store) History(path string) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT run_id, path, hash, observed_at FROM hash_events WHERE path = ? ORDER BY observed_at ASC`, path)
	if err != nil {
		return nil, fmt.Errorf("history: query %s: %w", path, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var hash int64
		var observedAtNs int64
		if err := rows.Scan(&r.RunID, &r.Path, &hash, &observedAtNs); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		r.Hash = uint64(hash)
		r.ObservedAt = time.Unix(0, observedAtNs)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close stops the writer goroutine and closes the database.
func (s *Store) Close() error {
	close(s.queue)
	<-s.done
	return s.db.Close()
}
