//go:build unix

package hashlog

import "golang.org/x/sys/unix"

// TryLockExclusive attempts a non-blocking advisory exclusive lock on the
// log's underlying file descriptor, guarding against a second discdiff
// process concurrently writing the same output database. It returns false
// (not an error) if some other process already holds the lock.
func (l *Log) TryLockExclusive() (bool, error) {
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == unix.EWOULDBLOCK {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Unlock releases a lock acquired by TryLockExclusive.
func (l *Log) Unlock() error {
	return unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
}
