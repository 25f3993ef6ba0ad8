//go:build unix

package lock

import (
	"os"

	"golang.org/x/sys/unix"
)

// probe takes and releases a non-blocking exclusive flock.
func probe(f *os.File) error {
	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return err
	}
	return unix.Flock(fd, unix.LOCK_UN)
}
