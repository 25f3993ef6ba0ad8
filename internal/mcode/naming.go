package mcode

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Suffix is appended to a workbook's full file name to name its sidecar:
// Sales.xlsx -> Sales.xlsx_PowerQuery.m.
const Suffix = "_PowerQuery.m"

// WorkbookExtensions are the OOXML workbook types that carry DataMashup
// parts.
var WorkbookExtensions = []string{".xlsx", ".xlsm", ".xlsb"}

// ErrNotSidecar is returned when a file name does not follow the sidecar
// naming convention, so no workbook can be associated with it.
var ErrNotSidecar = errors.New("not a Power Query sidecar file")

// SidecarPath returns the .m path that belongs to workbook. The sidecar
// lives in the workbook's directory.
func SidecarPath(workbook string) string {
	return workbook + Suffix
}

// IsSidecar reports whether path follows the sidecar naming convention.
func IsSidecar(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, Suffix) && len(base) > len(Suffix)
}

// WorkbookCandidate derives the workbook path a sidecar belongs to. It does
// not check that the workbook exists.
func WorkbookCandidate(mPath string) (string, error) {
	if !IsSidecar(mPath) {
		return "", fmt.Errorf("%w: %s", ErrNotSidecar, filepath.Base(mPath))
	}
	return strings.TrimSuffix(mPath, Suffix), nil
}

// IsWorkbook reports whether path has a supported workbook extension.
func IsWorkbook(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range WorkbookExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// NamingHint explains the naming convention for a sidecar, for use in
// association failure messages.
func NamingHint(mPath string) string {
	return fmt.Sprintf("the .m file must be named <workbook file name>%s and sit in the same folder as the workbook "+
		"(for example Sales.xlsx -> Sales.xlsx%s); %s does not resolve to an existing workbook",
		Suffix, Suffix, filepath.Base(mPath))
}
