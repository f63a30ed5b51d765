//go:build windows

package hashlog

import "syscall"

// TryLockExclusive attempts a non-blocking advisory exclusive lock on the
// log's underlying file, guarding against a second discdiff process
// concurrently writing the same output database.
func (l *Log) TryLockExclusive() (bool, error) {
	handle := syscall.Handle(l.file.Fd())
	var overlapped syscall.Overlapped
	const lockfileFailImmediately = 0x1
	const lockfileExclusiveLock = 0x2
	err := syscall.LockFileEx(handle, lockfileFailImmediately|lockfileExclusiveLock, 0, 1, 0, &overlapped)
	if err == syscall.ERROR_LOCK_VIOLATION {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Unlock releases a lock acquired by TryLockExclusive.
func (l *Log) Unlock() error {
	handle := syscall.Handle(l.file.Fd())
	var overlapped syscall.Overlapped
	return syscall.UnlockFileEx(handle, 0, 1, 0, &overlapped)
}
