//go:build unix

package lock

import (
	"errors"
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

// TestFlockHeldElsewhere verifies that an exclusive flock held through
// another descriptor makes the file not writable.
func TestFlockHeldElsewhere(t *testing.T) {
	path := newFile(t, "Sales.xlsx")

	holder, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("Failed to open holder: %v", err)
	}
	defer holder.Close()
	if err := unix.Flock(int(holder.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		t.Fatalf("Failed to take lock: %v", err)
	}

	if err := Check(path); !errors.Is(err, ErrLocked) {
		t.Fatalf("Check() error = %v, want ErrLocked", err)
	}

	if err := unix.Flock(int(holder.Fd()), unix.LOCK_UN); err != nil {
		t.Fatalf("Failed to release lock: %v", err)
	}
	if !IsWritable(path) {
		t.Fatalf("IsWritable() = false after release: %v", Check(path))
	}
}

func TestReadOnlyFileIsNotWritable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	path := newFile(t, "Sales.xlsx")
	if err := os.Chmod(path, 0o444); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	if IsWritable(path) {
		t.Fatal("IsWritable() = true for a read-only file")
	}
}
