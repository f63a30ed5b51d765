//go:build unix

package fspart

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// deviceOf returns the backing device ID for root, the Unix equivalent of
// a mount-table longest-prefix lookup: two paths share a device iff they
// are on the same filesystem/volume, which is exactly the locality the
// partitioner needs, without depending on any single platform's mount
// table format (/proc/mounts on Linux, getfsstat on BSD/Darwin, etc. all
// disagree on layout; st_dev is portable across every unix target).
func deviceOf(root string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(root, &st); err != nil {
		return 0, fmt.Errorf("fspart: stat %s: %w", root, err)
	}
	return uint64(st.Dev), nil
}
