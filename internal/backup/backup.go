// Package backup creates and prunes timestamped copies of a workbook taken
// before each destructive write.
//
// A backup of Sales.xlsx is named Sales.xlsx.backup.<stamp>, where stamp is
// the UTC ISO-8601 time with ':' and '.' replaced by '-', for example
// Sales.xlsx.backup.2025-07-11T10-30-00-123Z. Stamps sort lexicographically
// in time order.
package backup

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Location selects the directory backups are written to.
type Location string

const (
	// SameFolder writes backups next to the workbook.
	SameFolder Location = "sameFolder"
	// TempFolder writes backups to a fixed directory under the system
	// temp root.
	TempFolder Location = "tempFolder"
	// Custom writes backups to Policy.CustomPath.
	Custom Location = "custom"
)

// TempDirName is the subdirectory of os.TempDir used by TempFolder.
const TempDirName = "pqsync-backups"

const (
	marker        = ".backup."
	stampLayout   = "2006-01-02T15:04:05.000Z"
	maxCollisions = 99
)

var (
	// ErrNoBackups is returned when a workbook has no backups to restore.
	ErrNoBackups = errors.New("no backups found")

	// ErrInvalidLocation is returned for an unknown Location.
	ErrInvalidLocation = errors.New("invalid backup location")
)

// Policy describes where backups go.
type Policy struct {
	Location Location
	// CustomPath is used with Custom. A relative path is resolved against
	// the workbook's directory. An empty path behaves like SameFolder.
	CustomPath string
}

// ParseLocation converts a configuration value to a Location.
func ParseLocation(s string) (Location, error) {
	switch l := Location(s); l {
	case SameFolder, TempFolder, Custom:
		return l, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidLocation, s)
	}
}

// Dir returns the directory p selects for workbook.
func (p Policy) Dir(workbook string) string {
	wbDir := filepath.Dir(workbook)
	switch p.Location {
	case TempFolder:
		return filepath.Join(os.TempDir(), TempDirName)
	case Custom:
		if p.CustomPath == "" {
			return wbDir
		}
		if filepath.IsAbs(p.CustomPath) {
			return filepath.Clean(p.CustomPath)
		}
		return filepath.Join(wbDir, p.CustomPath)
	default:
		return wbDir
	}
}

// Stamp formats t the way backup names carry it.
func Stamp(t time.Time) string {
	return strings.NewReplacer(":", "-", ".", "-").Replace(t.UTC().Format(stampLayout))
}

// ParseStamp is the inverse of Stamp. A collision suffix (-N after the Z)
// is ignored.
func ParseStamp(s string) (time.Time, error) {
	// 2025-07-11T10-30-00-123Z
	if i := strings.IndexByte(s, 'Z'); i >= 0 && i+1 < len(s) && s[i+1] == '-' {
		s = s[:i+1]
	}
	if len(s) != len("2006-01-02T15-04-05-000Z") {
		return time.Time{}, fmt.Errorf("invalid backup stamp %q", s)
	}
	iso := s[:13] + ":" + s[14:16] + ":" + s[17:19] + "." + s[20:]
	return time.Parse(stampLayout, iso)
}

// PathFor returns the backup path for workbook taken at ts.
func PathFor(workbook string, p Policy, ts time.Time) string {
	return filepath.Join(p.Dir(workbook), filepath.Base(workbook)+marker+Stamp(ts))
}

// Record describes one backup file.
type Record struct {
	// Workbook is the original workbook path.
	Workbook string
	// Path is the backup file path.
	Path string
	// Stamp is the raw timestamp suffix.
	Stamp string
	// Time is Stamp parsed; zero if the suffix is not a valid stamp.
	Time time.Time
	// Location is the policy that selected the directory.
	Location Location
}

// Create copies workbook to its backup path for time now.
func Create(workbook string, p Policy, now time.Time) (*Record, error) {
	dir := p.Dir(workbook)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory %s: %w", dir, err)
	}

	// Backups taken within the same millisecond get a -N suffix instead of
	// overwriting each other.
	stamp := Stamp(now)
	path := PathFor(workbook, p, now)
	for n := 1; ; n++ {
		err := copyFile(workbook, path, os.O_EXCL)
		if err == nil {
			break
		}
		if !errors.Is(err, os.ErrExist) || n > maxCollisions {
			return nil, fmt.Errorf("failed to back up %s: %w", workbook, err)
		}
		stamp = fmt.Sprintf("%s-%d", Stamp(now), n)
		path = PathFor(workbook, p, now) + fmt.Sprintf("-%d", n)
	}

	return &Record{
		Workbook: workbook,
		Path:     path,
		Stamp:    stamp,
		Time:     now.UTC().Truncate(time.Millisecond),
		Location: p.Location,
	}, nil
}

// List returns the backups of workbook, newest first.
func List(workbook string, p Policy) ([]Record, error) {
	dir := p.Dir(workbook)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list backups in %s: %w", dir, err)
	}

	prefix := filepath.Base(workbook) + marker
	var records []Record
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		stamp := strings.TrimPrefix(name, prefix)
		if stamp == "" {
			continue
		}
		r := Record{
			Workbook: workbook,
			Path:     filepath.Join(dir, name),
			Stamp:    stamp,
			Location: p.Location,
		}
		if t, err := ParseStamp(stamp); err == nil {
			r.Time = t
		}
		records = append(records, r)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Stamp > records[j].Stamp })
	return records, nil
}

// Latest returns the newest backup of workbook.
func Latest(workbook string, p Policy) (*Record, error) {
	records, err := List(workbook, p)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoBackups, filepath.Base(workbook))
	}
	return &records[0], nil
}

// Prune keeps the keep newest backups of workbook and deletes the rest. A
// failed deletion is logged and does not stop the remaining ones; the
// failures are returned joined. It returns the number of files removed.
func Prune(workbook string, p Policy, keep int, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if keep < 0 {
		keep = 0
	}

	records, err := List(workbook, p)
	if err != nil {
		return 0, err
	}
	if len(records) <= keep {
		return 0, nil
	}

	var (
		removed int
		errs    []error
	)
	for _, r := range records[keep:] {
		if err := os.Remove(r.Path); err != nil {
			logger.Warn("failed to remove old backup", "component", "backup", "path", r.Path, "error", err)
			errs = append(errs, err)
			continue
		}
		removed++
		logger.Debug("removed old backup", "component", "backup", "path", r.Path)
	}
	return removed, errors.Join(errs...)
}

// Restore copies a backup over workbook byte for byte.
func Restore(backupPath, workbook string) error {
	if err := copyFile(backupPath, workbook, os.O_TRUNC); err != nil {
		return fmt.Errorf("failed to restore %s from %s: %w", workbook, backupPath, err)
	}
	return nil
}

// copyFile copies src to dst, opening dst with O_WRONLY|O_CREATE|mode.
func copyFile(src, dst string, mode int) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|mode, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
