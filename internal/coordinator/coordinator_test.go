package coordinator

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"discdiff/internal/hashlog"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runOnce feeds entries through a fresh Coordinator wired to outputPath as
// both the --data input and the --output-data log (a `-d D -o D` run) and
// returns what was printed to stdout.
func runOnce(t *testing.T, outputPath string, entries []hashlog.Entry) string {
	t.Helper()

	var stdout bytes.Buffer
	c, prior, err := New(Config{
		DataPath:   outputPath,
		OutputPath: outputPath,
		Stdout:     &stdout,
		Log:        discardLogger(),
		RunID:      "run",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	readDone := make(chan struct{})
	go c.LoadPrior(readDone)
	<-readDone
	_ = prior

	hashc := make(chan hashlog.Entry, len(entries))
	for _, e := range entries {
		hashc <- e
	}
	close(hashc)

	errBus := make(chan error)
	shutdown := make(chan struct{})
	if err := c.Run(hashc, errBus, shutdown, closedChan()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return stdout.String()
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func TestColdRunEmitsEveryPath(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "output.hashlog")

	out := runOnce(t, outputPath, []hashlog.Entry{
		{Path: "a", Hash: 1},
		{Path: "b", Hash: 2},
		{Path: "c", Hash: 3},
	})

	for _, p := range []string{"a", "b", "c"} {
		if !bytes.Contains([]byte(out), []byte(p+"\n")) {
			t.Errorf("expected %q in cold-run output, got %q", p, out)
		}
	}
}

func TestWarmRunUnchangedEmitsNothing(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "output.hashlog")

	entries := []hashlog.Entry{{Path: "a", Hash: 1}, {Path: "b", Hash: 2}}
	runOnce(t, outputPath, entries)

	out := runOnce(t, outputPath, entries)
	if out != "" {
		t.Errorf("expected empty output on unchanged warm run, got %q", out)
	}
}

func TestWarmRunOneChangeEmitsOnlyThatPath(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "output.hashlog")

	runOnce(t, outputPath, []hashlog.Entry{{Path: "a", Hash: 1}, {Path: "b", Hash: 2}})

	out := runOnce(t, outputPath, []hashlog.Entry{{Path: "a", Hash: 99}, {Path: "b", Hash: 2}})
	if out != "a\n" {
		t.Errorf("expected only \"a\\n\", got %q", out)
	}
}

func TestShutdownReturnsNilWithoutConsumingErrBus(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "output.hashlog")

	var stdout bytes.Buffer
	c, _, err := New(Config{
		OutputPath: outputPath,
		Stdout:     &stdout,
		Log:        discardLogger(),
		RunID:      "run",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	readDone := make(chan struct{})
	go c.LoadPrior(readDone)
	<-readDone

	hashc := make(chan hashlog.Entry)
	errBus := make(chan error)
	shutdown := make(chan struct{})
	close(shutdown)

	if err := c.Run(hashc, errBus, shutdown, closedChan()); err != nil {
		t.Fatalf("expected nil error on requested shutdown, got %v", err)
	}
}

func TestCorruptOutputLogTriggersRecovery(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "output.hashlog")

	runOnce(t, outputPath, []hashlog.Entry{{Path: "a", Hash: 1}, {Path: "b", Hash: 2}})

	fi, err := os.Stat(outputPath)
	if err != nil {
		t.Fatalf("stat output log: %v", err)
	}
	if err := os.Truncate(outputPath, fi.Size()-1); err != nil {
		t.Fatalf("truncate output log: %v", err)
	}

	// Rerunning with the same entries should converge: the coordinator
	// detects the corrupt tail, rewrites the log, and a subsequent run
	// emits nothing further.
	runOnce(t, outputPath, []hashlog.Entry{{Path: "a", Hash: 1}, {Path: "b", Hash: 2}})
	out := runOnce(t, outputPath, []hashlog.Entry{{Path: "a", Hash: 1}, {Path: "b", Hash: 2}})
	if out != "" {
		t.Errorf("expected convergence to empty output after recovery, got %q", out)
	}
}
