package backup

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var base = time.Date(2025, 7, 11, 10, 30, 0, 123_000_000, time.UTC)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

// TestStamp verifies the filesystem-safe timestamp format and its inverse.
func TestStamp(t *testing.T) {
	got := Stamp(base)
	if got != "2025-07-11T10-30-00-123Z" {
		t.Fatalf("Stamp() = %q", got)
	}
	back, err := ParseStamp(got)
	if err != nil {
		t.Fatalf("ParseStamp failed: %v", err)
	}
	if !back.Equal(base) {
		t.Errorf("ParseStamp() = %v, want %v", back, base)
	}
	if _, err := ParseStamp("yesterday"); err == nil {
		t.Error("ParseStamp accepted garbage")
	}
}

// TestPolicyDir verifies directory resolution for every location.
func TestPolicyDir(t *testing.T) {
	wb := filepath.Join(string(filepath.Separator)+"data", "reports", "Sales.xlsx")
	wbDir := filepath.Dir(wb)
	abs := filepath.Join(string(filepath.Separator)+"var", "bak")

	tests := []struct {
		name   string
		policy Policy
		want   string
	}{
		{"same folder", Policy{Location: SameFolder}, wbDir},
		{"zero policy", Policy{}, wbDir},
		{"temp folder", Policy{Location: TempFolder}, filepath.Join(os.TempDir(), TempDirName)},
		{"custom absolute", Policy{Location: Custom, CustomPath: abs}, abs},
		{"custom relative", Policy{Location: Custom, CustomPath: "backups"}, filepath.Join(wbDir, "backups")},
		{"custom empty", Policy{Location: Custom}, wbDir},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Dir(wb); got != tt.want {
				t.Errorf("Dir() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseLocation(t *testing.T) {
	for _, s := range []string{"sameFolder", "tempFolder", "custom"} {
		if _, err := ParseLocation(s); err != nil {
			t.Errorf("ParseLocation(%q) failed: %v", s, err)
		}
	}
	if _, err := ParseLocation("cloud"); !errors.Is(err, ErrInvalidLocation) {
		t.Errorf("ParseLocation(cloud) error = %v", err)
	}
}

// TestCreateAndRestore verifies that a backup is a byte copy and that
// restoring it brings the workbook back.
func TestCreateAndRestore(t *testing.T) {
	dir := t.TempDir()
	wb := filepath.Join(dir, "Sales.xlsx")
	original := []byte("PK original workbook bytes")
	writeFile(t, wb, original)

	policy := Policy{Location: Custom, CustomPath: "bak"}
	rec, err := Create(wb, policy, base)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	want := filepath.Join(dir, "bak", "Sales.xlsx.backup.2025-07-11T10-30-00-123Z")
	if rec.Path != want {
		t.Errorf("Path = %q, want %q", rec.Path, want)
	}

	writeFile(t, wb, []byte("corrupted"))
	if err := Restore(rec.Path, wb); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	got, err := os.ReadFile(wb)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(got, original) {
		t.Errorf("restored content = %q, want %q", got, original)
	}
}

func TestCreateSameMillisecond(t *testing.T) {
	dir := t.TempDir()
	wb := filepath.Join(dir, "Sales.xlsx")
	writeFile(t, wb, []byte("first"))

	first, err := Create(wb, Policy{}, base)
	if err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	writeFile(t, wb, []byte("second"))
	second, err := Create(wb, Policy{}, base)
	if err != nil {
		t.Fatalf("second Create failed: %v", err)
	}

	if second.Path != first.Path+"-1" {
		t.Errorf("second Path = %q, want %q", second.Path, first.Path+"-1")
	}
	if got, _ := os.ReadFile(first.Path); string(got) != "first" {
		t.Errorf("first backup = %q, want it untouched", got)
	}
	if got, _ := os.ReadFile(second.Path); string(got) != "second" {
		t.Errorf("second backup = %q", got)
	}

	records, err := List(wb, Policy{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 2 || records[0].Path != second.Path {
		t.Fatalf("List = %+v, want the suffixed backup first", records)
	}
	for _, r := range records {
		if !r.Time.Equal(base) {
			t.Errorf("%s Time = %v, want %v", r.Stamp, r.Time, base)
		}
	}
}

func TestCreateMissingWorkbook(t *testing.T) {
	dir := t.TempDir()
	if _, err := Create(filepath.Join(dir, "missing.xlsx"), Policy{}, base); err == nil {
		t.Fatal("Create succeeded for a missing workbook")
	}
}

// TestPruneKeepsNewest verifies that after pruning with retention N exactly
// min(N, total) backups remain and they are the newest ones.
func TestPruneKeepsNewest(t *testing.T) {
	tests := []struct {
		total int
		keep  int
	}{
		{total: 7, keep: 5},
		{total: 3, keep: 5},
		{total: 5, keep: 5},
		{total: 4, keep: 1},
	}

	for _, tt := range tests {
		dir := t.TempDir()
		wb := filepath.Join(dir, "Sales.xlsx")
		writeFile(t, wb, []byte("wb"))

		// Create out of order so sorting matters.
		var stamps []string
		for i := tt.total - 1; i >= 0; i-- {
			rec, err := Create(wb, Policy{}, base.Add(time.Duration(i)*time.Minute))
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			stamps = append(stamps, rec.Stamp)
		}
		// Unrelated files must survive.
		writeFile(t, filepath.Join(dir, "Other.xlsx.backup."+Stamp(base)), []byte("x"))

		removed, err := Prune(wb, Policy{}, tt.keep, nil)
		if err != nil {
			t.Fatalf("Prune failed: %v", err)
		}

		wantKept := min(tt.keep, tt.total)
		if removed != tt.total-wantKept {
			t.Errorf("total=%d keep=%d: removed %d, want %d", tt.total, tt.keep, removed, tt.total-wantKept)
		}

		left, err := List(wb, Policy{})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(left) != wantKept {
			t.Fatalf("total=%d keep=%d: %d backups left, want %d", tt.total, tt.keep, len(left), wantKept)
		}
		for i, r := range left {
			want := Stamp(base.Add(time.Duration(tt.total-1-i) * time.Minute))
			if r.Stamp != want {
				t.Errorf("backup %d = %s, want %s", i, r.Stamp, want)
			}
		}
		if _, err := os.Stat(filepath.Join(dir, "Other.xlsx.backup."+Stamp(base))); err != nil {
			t.Errorf("unrelated backup removed: %v", err)
		}
	}
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	wb := filepath.Join(dir, "Book.xlsm")
	writeFile(t, wb, []byte("wb"))

	if _, err := Latest(wb, Policy{}); !errors.Is(err, ErrNoBackups) {
		t.Fatalf("Latest() error = %v, want ErrNoBackups", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := Create(wb, Policy{}, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	rec, err := Latest(wb, Policy{})
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if !rec.Time.Equal(base.Add(2 * time.Second)) {
		t.Errorf("Latest().Time = %v", rec.Time)
	}
}
