package store

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrLocked reports that another process holds the instance directory.
var ErrLocked = errors.New("store: instance directory is locked")

// Lock is an exclusive flock on an instance directory. It is taken
// before launch so pruning never removes a directory with a live VM,
// and it dies with the process even on a crash.
type Lock struct {
	fd   int
	path string
}

// AcquireLock takes a non-blocking exclusive lock on dir. A directory
// already locked by someone else yields ErrLocked.
func AcquireLock(dir string) (*Lock, error) {
	fd, err := unix.Open(dir, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dir, err)
	}
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
		}
		return nil, fmt.Errorf("flock %s: %w", dir, err)
	}
	return &Lock{fd: fd, path: dir}, nil
}

// Path returns the locked directory.
func (l *Lock) Path() string { return l.path }

// Release unlocks and closes the directory. Calling it twice is safe.
func (l *Lock) Release() error {
	if l.fd < 0 {
		return nil
	}
	err := unix.Flock(l.fd, unix.LOCK_UN)
	closeErr := unix.Close(l.fd)
	l.fd = -1
	if err != nil {
		return fmt.Errorf("unlock %s: %w", l.path, err)
	}
	return closeErr
}
