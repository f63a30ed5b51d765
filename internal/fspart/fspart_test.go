package fspart

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPartitionGroupsSameDeviceTogether(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	for _, p := range []string{a, b} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	groups, err := Partition([]string{a, b})
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1 (same tmp device): %+v", len(groups), groups)
	}
	if len(groups[0].Roots) != 2 {
		t.Fatalf("got %d roots in group, want 2", len(groups[0].Roots))
	}
}
