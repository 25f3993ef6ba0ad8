package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pqsync/pqsync/internal/clock"
)

// receive waits for the next event on ch.
func receive(t *testing.T, ch <-chan FileChangeEvent) FileChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return FileChangeEvent{}
	}
}

// TestFileWatcher_DetectsWrites verifies that writes to a registered file
// are reported and writes to its neighbours are not.
func TestFileWatcher_DetectsWrites(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "Sales.xlsx_PowerQuery.m")
	other := filepath.Join(dir, "Other.m")
	writeFile(t, watched)

	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	defer fw.Close()

	if err := fw.Add(watched); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	writeFile(t, other)
	if err := os.WriteFile(watched, []byte("section Section1;"), 0o644); err != nil {
		t.Fatalf("failed to write: %v", err)
	}

	ev := receive(t, fw.Events())
	if ev.Path != watched {
		t.Errorf("event path = %q, want %q", ev.Path, watched)
	}
	if ev.Op != OpModify && ev.Op != OpCreate {
		t.Errorf("event op = %s, want modify", ev.Op)
	}
	if ev.Source != "fsnotify" {
		t.Errorf("event source = %q", ev.Source)
	}
}

// TestFileWatcher_DetectsDelete verifies removal is reported as a delete.
func TestFileWatcher_DetectsDelete(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "Sales.xlsx_PowerQuery.m")
	writeFile(t, watched)

	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	defer fw.Close()

	if err := fw.Add(watched); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := os.Remove(watched); err != nil {
		t.Fatalf("failed to remove: %v", err)
	}

	if ev := receive(t, fw.Events()); ev.Op != OpDelete {
		t.Errorf("event op = %s, want delete", ev.Op)
	}
}

// TestFileWatcher_RemoveSharedDirectory verifies that removing one file
// keeps its sibling watched.
func TestFileWatcher_RemoveSharedDirectory(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "A.xlsx_PowerQuery.m")
	b := filepath.Join(dir, "B.xlsx_PowerQuery.m")
	writeFile(t, a)
	writeFile(t, b)

	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	defer fw.Close()

	for _, p := range []string{a, b} {
		if err := fw.Add(p); err != nil {
			t.Fatalf("Add(%s) failed: %v", p, err)
		}
	}
	if err := fw.Remove(a); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}

	if err := os.WriteFile(b, []byte("changed"), 0o644); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	if ev := receive(t, fw.Events()); ev.Path != b {
		t.Errorf("event path = %q, want %q", ev.Path, b)
	}
}

// TestFileWatcher_CloseTwice verifies Close is idempotent.
func TestFileWatcher_CloseTwice(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
	if err := fw.Add(filepath.Join(t.TempDir(), "x.m")); err == nil {
		t.Error("Add() after Close() succeeded")
	}
}

func TestPoller(t *testing.T) {
	clk := clock.Fake(time.Date(2025, 7, 11, 10, 0, 0, 0, time.UTC))
	files := newFakeFS()
	path := filepath.Join(t.TempDir(), "Sales.xlsx_PowerQuery.m")
	files.set(path, 10)

	p := NewPoller(clk, time.Second, files.stat)
	defer p.Close()
	if err := p.Add(path); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	steps := []struct {
		name   string
		change func()
		want   EventOp
	}{
		{"modify", func() { files.set(path, 20) }, OpModify},
		{"delete", func() { files.remove(path) }, OpDelete},
		{"create", func() { files.set(path, 5) }, OpCreate},
	}
	for _, step := range steps {
		step.change()
		clk.Advance(time.Second)
		ev := receive(t, p.Events())
		if ev.Op != step.want || ev.Path != path || ev.Source != "poll" {
			t.Errorf("%s: event = %+v, want %s", step.name, ev, step.want)
		}
	}
}
