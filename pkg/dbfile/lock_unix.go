//go:build !windows

package dbfile

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// ErrDatabaseLocked indicates another process holds the database file.
var ErrDatabaseLocked = errors.New("dbfile: database is locked")

// LockFile acquires an exclusive lock on the database file.
// Returns ErrDatabaseLocked if the file is already locked.
func LockFile(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		if err == unix.EWOULDBLOCK {
			return ErrDatabaseLocked
		}
		return err
	}
	return nil
}

// UnlockFile releases the lock on the database file.
func UnlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
