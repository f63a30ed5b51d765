package hashpool

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/cespare/xxhash/v2"

	"discdiff/internal/fdsem"
	"discdiff/internal/hashlog"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunHashesAllFiles(t *testing.T) {
	dir := t.TempDir()
	contents := map[string]string{"a": "hello", "b": "world", "c": "!"}
	want := make(map[string]uint64, len(contents))
	for name, content := range contents {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		want[p] = xxhash.Sum64([]byte(content))
	}

	paths := make(chan string, len(contents))
	for p := range want {
		paths <- p
	}
	close(paths)

	out := make(chan hashlog.Entry, len(contents))
	errBus := make(chan error, 1)
	sem := fdsem.New(4)
	stop := make(chan struct{})

	Run(paths, out, errBus, sem, discardLogger(), stop, Options{Label: "test"})
	close(out)

	select {
	case err := <-errBus:
		t.Fatalf("unexpected worker error: %v", err)
	default:
	}

	got := make(map[string]uint64, len(contents))
	for e := range out {
		got[e.Path] = e.Hash
	}

	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	for p, h := range want {
		if got[p] != h {
			t.Errorf("hash(%s) = %d, want %d", p, got[p], h)
		}
	}
}

func TestRunReportsOpenErrorOnErrBus(t *testing.T) {
	paths := make(chan string, 1)
	paths <- filepath.Join(t.TempDir(), "does-not-exist")
	close(paths)

	out := make(chan hashlog.Entry, 1)
	errBus := make(chan error, 1)
	sem := fdsem.New(4)
	stop := make(chan struct{})

	Run(paths, out, errBus, sem, discardLogger(), stop, Options{Label: "test"})
	close(out)

	select {
	case err := <-errBus:
		if err == nil {
			t.Error("expected non-nil error")
		}
	default:
		t.Fatal("expected an error on errBus")
	}
}
