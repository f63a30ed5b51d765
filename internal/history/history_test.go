package history

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecordAndHistoryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path, discardLogger())
	require.NoError(t, err)

	now := time.Now()
	s.Record("run-1", "a", 111, now)
	s.Record("run-1", "a", 222, now.Add(time.Second))
	s.Record("run-1", "b", 333, now)

	require.NoError(t, s.Close())

	// Reopen to confirm durability across process boundaries.
	s2, err := Open(path, discardLogger())
	require.NoError(t, err)
	defer s2.Close()

	records, err := s2.History("a")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, uint64(111), records[0].Hash)
	require.Equal(t, uint64(222), records[1].Hash)
}

func TestHistoryForUnknownPathIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path, discardLogger())
	require.NoError(t, err)
	defer s.Close()

	records, err := s.History("never-recorded")
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestRecordDoesNotBlockWhenQueueSaturated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path, discardLogger())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < queueCapacity*2; i++ {
			s.Record("run", "x", uint64(i), time.Now())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Record blocked despite drop-on-saturation policy")
	}
}
