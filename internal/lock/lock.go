// Package lock decides whether a workbook can be written right now.
//
// The check is a heuristic with an unavoidable window between check and
// write; a write that still fails is handled by the caller's restore path.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrLocked is returned by Check when the file is held by another process.
var ErrLocked = errors.New("file is locked")

// IsWritable reports whether path can be opened for writing and is not
// held by a spreadsheet application.
func IsWritable(path string) bool {
	return Check(path) == nil
}

// Check explains why path is not writable. It returns nil when it is.
func Check(path string) error {
	if owner := ownerFile(path); owner != "" {
		return fmt.Errorf("%w: owner file %s present", ErrLocked, filepath.Base(owner))
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrLocked, err)
	}
	defer f.Close()

	if err := probe(f); err != nil {
		return fmt.Errorf("%w: %v", ErrLocked, err)
	}
	return nil
}

// ownerFile returns the lock file Excel (~$name) or LibreOffice
// (.~lock.name#) keeps next to an open workbook, or "".
func ownerFile(path string) string {
	dir, name := filepath.Split(path)
	for _, candidate := range []string{"~$" + name, ".~lock." + name + "#"} {
		p := filepath.Join(dir, candidate)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
