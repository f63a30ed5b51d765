package hashlog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.log")

	l, err := Open(path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	entries := []Entry{
		{Path: "/a", Hash: 1},
		{Path: "/b/c", Hash: 0xdeadbeef},
		{Path: "", Hash: 0},
	}
	if err := l.Write(entries); err != nil {
		t.Fatalf("Write: %v", err)
	}
	l.Close()

	l2, err := Open(path, true)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()

	var got []Entry
	for {
		e, err := l2.Read()
		if err == ErrEmpty {
			if e != (Entry{}) {
				got = append(got, e)
			}
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		got = append(got, e)
	}

	if len(got) != len(entries) {
		t.Fatalf("got %d entries, want %d: %+v", len(got), len(entries), got)
	}
	for i, e := range entries {
		if got[i] != e {
			t.Errorf("entry %d: got %+v, want %+v", i, got[i], e)
		}
	}
}

func TestTruncatedTailIsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.log")

	l, err := Open(path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.Write([]Entry{{Path: "/a/b", Hash: 42}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	l.Close()

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Truncate(path, fi.Size()-3); err != nil {
		t.Fatal(err)
	}

	l2, err := Open(path, true)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()

	_, err = l2.Read()
	if !errors.Is(err, ErrParse) && err == nil {
		t.Fatalf("expected a terminal read error on truncated tail, got nil")
	}
	if l2.Status() != StatusError {
		t.Fatalf("status = %v, want StatusError", l2.Status())
	}
}

func TestOpenReentrantWithinProcessSharesLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.log")

	// -d PATH -o PATH (warm rerun in place) opens two independent handles
	// on the same path within one process; the second must not be refused
	// as if it were a competing process.
	l1, err := Open(path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l1.Close()

	l2, err := Open(path, true)
	if err != nil {
		t.Fatalf("expected a second same-process handle on path to succeed, got %v", err)
	}
	l2.Close()
}

func TestOpenFailsWhenLockedByAnotherProcess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.log")

	l, err := Open(path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	// Forget this process's own registration so the next Open falls
	// through to the real OS-level lock attempt, standing in for a second,
	// unrelated discdiff process that never shared our in-process registry
	// but contends for the same underlying file lock.
	lockRegistryMu.Lock()
	delete(lockRegistry, path)
	lockRegistryMu.Unlock()

	if _, err := Open(path, true); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked when the OS lock is already held, got %v", err)
	}

	lockRegistryMu.Lock()
	lockRegistry[path] = 1
	lockRegistryMu.Unlock()
}

func TestOpenSucceedsAfterClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.log")

	l, err := Open(path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	l2, err := Open(path, true)
	if err != nil {
		t.Fatalf("expected reopen to succeed once the first handle released its lock, got %v", err)
	}
	l2.Close()
}

func TestResetTruncatesAndRewrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.log")

	l, err := Open(path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.Write([]Entry{{Path: "/a", Hash: 1}, {Path: "/b", Hash: 2}}); err != nil {
		t.Fatal(err)
	}
	if err := l.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := l.Write([]Entry{{Path: "/c", Hash: 3}}); err != nil {
		t.Fatal(err)
	}
	l.Close()

	l2, err := Open(path, true)
	if err != nil {
		t.Fatal(err)
	}
	defer l2.Close()
	e, err := l2.Read()
	if err != nil && err != ErrEmpty {
		t.Fatalf("Read: %v", err)
	}
	if e.Path != "/c" || e.Hash != 3 {
		t.Fatalf("got %+v, want {/c 3}", e)
	}
}
