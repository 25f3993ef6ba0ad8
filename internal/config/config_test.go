package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pqsync/pqsync/internal/backup"
	"github.com/pqsync/pqsync/internal/logging"
)

func load(t *testing.T, content string) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pqsync.yaml")
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}
	}
	s, err := Load(path, logging.Discard())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return s
}

// TestDefaults verifies the settings used when nothing is configured.
func TestDefaults(t *testing.T) {
	st := load(t, "").Settings()

	if !st.Backup.Enable || st.Backup.Policy.Location != backup.SameFolder || st.Backup.MaxFiles != 5 {
		t.Errorf("backup defaults = %+v", st.Backup)
	}
	if st.Sync.Debounce != 500*time.Millisecond {
		t.Errorf("Debounce = %v, want 500ms", st.Sync.Debounce)
	}
	if st.Sync.MediumThresholdBytes != 10<<20 || st.Sync.LargeThresholdBytes != 50<<20 {
		t.Errorf("thresholds = %d/%d", st.Sync.MediumThresholdBytes, st.Sync.LargeThresholdBytes)
	}
	if st.Sync.MediumDebounce != 2*time.Second || st.Sync.LargeDebounce != 5*time.Second {
		t.Errorf("floors = %v/%v", st.Sync.MediumDebounce, st.Sync.LargeDebounce)
	}
	if !st.Watch.CheckWriteable || st.Watch.AutoWatch || !st.Watch.OffOnDelete {
		t.Errorf("watch defaults = %+v", st.Watch)
	}
	if st.Watch.ExtractGuard != 2*time.Second {
		t.Errorf("ExtractGuard = %v", st.Watch.ExtractGuard)
	}
	if !st.SyncDelete.AlwaysConfirm || !st.SyncDelete.TurnsWatchOff {
		t.Errorf("syncDelete defaults = %+v", st.SyncDelete)
	}
	if st.LocatorPrefix != "customXml/" {
		t.Errorf("LocatorPrefix = %q", st.LocatorPrefix)
	}
}

func TestFileValues(t *testing.T) {
	st := load(t, `
backup:
  location: custom
  customPath: bak
  maxFiles: 12
sync:
  debounceMs: 0
watch:
  autoWatch: true
`).Settings()

	if st.Backup.Policy.Location != backup.Custom || st.Backup.Policy.CustomPath != "bak" {
		t.Errorf("Policy = %+v", st.Backup.Policy)
	}
	if st.Backup.MaxFiles != 12 {
		t.Errorf("MaxFiles = %d, want 12", st.Backup.MaxFiles)
	}
	if st.Sync.Debounce != 0 {
		t.Errorf("Debounce = %v, want 0 (immediate)", st.Sync.Debounce)
	}
	if !st.Watch.AutoWatch {
		t.Error("AutoWatch = false")
	}
}

// TestOutOfRangeFallsBack verifies that invalid values use the defaults.
func TestOutOfRangeFallsBack(t *testing.T) {
	st := load(t, `
backup:
  location: cloud
  maxFiles: 99
sync:
  debounceMs: -5
  largeFileThresholdMB: 2
`).Settings()

	if st.Backup.Policy.Location != backup.SameFolder {
		t.Errorf("Location = %q, want sameFolder", st.Backup.Policy.Location)
	}
	if st.Backup.MaxFiles != 5 {
		t.Errorf("MaxFiles = %d, want 5", st.Backup.MaxFiles)
	}
	if st.Sync.Debounce != 500*time.Millisecond {
		t.Errorf("Debounce = %v, want 500ms", st.Sync.Debounce)
	}
	if st.Sync.LargeThresholdBytes != st.Sync.MediumThresholdBytes {
		t.Errorf("large threshold %d not raised to medium %d", st.Sync.LargeThresholdBytes, st.Sync.MediumThresholdBytes)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("PQSYNC_SYNC_DEBOUNCEMS", "1500")
	st := load(t, "sync:\n  debounceMs: 100\n").Settings()
	if st.Sync.Debounce != 1500*time.Millisecond {
		t.Errorf("Debounce = %v, want 1.5s from env", st.Sync.Debounce)
	}
}

// TestSetStringAndSave verifies that typed values persist and reload.
func TestSetStringAndSave(t *testing.T) {
	s := load(t, "")

	if err := s.SetString("backup.maxFiles", "7"); err != nil {
		t.Fatalf("SetString failed: %v", err)
	}
	if err := s.SetString("watch.autoWatch", "true"); err != nil {
		t.Fatalf("SetString failed: %v", err)
	}
	if err := s.SetString("backup.maxFiles", "seven"); err == nil {
		t.Error("SetString accepted a non-integer")
	}
	if err := s.SetString("nope.key", "1"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("SetString(unknown) error = %v", err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	again, err := Load(s.Path(), logging.Discard())
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	st := again.Settings()
	if st.Backup.MaxFiles != 7 || !st.Watch.AutoWatch {
		t.Errorf("reloaded settings = %+v / %+v", st.Backup, st.Watch)
	}
}

func TestRender(t *testing.T) {
	s := load(t, "")
	for _, format := range []string{"yaml", "toml"} {
		out, err := s.Render(format)
		if err != nil {
			t.Fatalf("Render(%s) failed: %v", format, err)
		}
		if !strings.Contains(strings.ToLower(string(out)), "debouncems") {
			t.Errorf("Render(%s) missing sync.debounceMs:\n%s", format, out)
		}
	}
	if _, err := s.Render("xml"); err == nil {
		t.Error("Render(xml) succeeded")
	}
}
