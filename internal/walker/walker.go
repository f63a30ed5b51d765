// Package walker implements the per-partition recursive directory walk that
// streams candidate file paths into the HashPool, gated against paths
// already known in the PriorHashMap so that a warm run opens almost no new
// file handles.
package walker

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"discdiff/internal/priormap"
	"discdiff/internal/termbus"
)

// Walk performs a single-threaded recursive walk of roots, gated by prior,
// sending every path worth hashing to out. It returns once every root has
// been fully walked or TERMINATE is observed. stop, if non-nil, is checked
// between blocking sends so a walk parked on a full channel still notices
// termination promptly.
func Walk(roots []string, prior *priormap.Map, out chan<- string, log *slog.Logger, stop <-chan struct{}) {
	var stack []string

	for _, root := range roots {
		if termbus.IsSet() {
			return
		}
		fi, err := os.Lstat(root)
		if err != nil {
			log.Warn("walker: cannot stat root", "path", root, "error", err)
			continue
		}
		if fi.Mode()&fs.ModeSymlink != 0 {
			continue
		}
		if fi.Mode().IsRegular() {
			emit(root, prior, out, stop)
			continue
		}
		if fi.IsDir() {
			stack = append(stack, root)
		}
	}

	for len(stack) > 0 {
		if termbus.IsSet() {
			return
		}
		n := len(stack) - 1
		dir := stack[n]
		stack = stack[:n]

		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, syscall.EINVAL) {
				log.Warn("walker: aborting enumeration", "dir", dir, "error", err)
				continue
			}
			log.Warn("walker: enumeration error", "dir", dir, "error", err)
			continue
		}

		for _, ent := range entries {
			if termbus.IsSet() {
				return
			}
			child := filepath.Join(dir, ent.Name())
			info, err := os.Lstat(child)
			if err != nil {
				log.Warn("walker: cannot stat entry", "path", child, "error", err)
				continue
			}
			switch {
			case info.Mode()&fs.ModeSymlink != 0:
				// Symlinks are never followed or emitted.
			case info.IsDir():
				stack = append(stack, child)
			case info.Mode().IsRegular():
				emit(child, prior, out, stop)
			}
		}
	}
}

// emit applies the gating predicate to path, blocking on the PriorHashMap
// until either the path is known or the prior load has signalled done, then
// sends to out if the path is still worth hashing.
func emit(path string, prior *priormap.Map, out chan<- string, stop <-chan struct{}) {
	if !prior.Resolve(path) {
		return
	}
	if termbus.IsSet() {
		return
	}

	select {
	case out <- path:
	case <-stop:
	}
}
