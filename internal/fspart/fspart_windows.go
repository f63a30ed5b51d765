//go:build windows

package fspart

import (
	"hash/fnv"
	"path/filepath"
)

// deviceOf derives a partition key from the path's drive/prefix component
// (e.g. "C:", or a UNC share root), per spec for Windows.
func deviceOf(root string) (uint64, error) {
	vol := filepath.VolumeName(filepath.Clean(root))
	h := fnv.New64a()
	_, _ = h.Write([]byte(vol))
	return h.Sum64(), nil
}
