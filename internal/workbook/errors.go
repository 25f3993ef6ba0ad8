package workbook

import (
	"errors"
	"fmt"
)

var (
	// ErrNotPackage is returned when the bytes are not a ZIP package.
	ErrNotPackage = errors.New("not an OOXML package")

	// ErrPartNotFound is returned when a named part does not exist.
	ErrPartNotFound = errors.New("part not found")

	// ErrNotFound is returned by Locate when no part carries a DataMashup
	// payload. It is informational: the workbook simply has no Power Query.
	ErrNotFound = errors.New("no DataMashup part found")

	// ErrMalformed is matched by every *MalformedError.
	ErrMalformed = errors.New("malformed DataMashup part")
)

// MalformedError reports a part that opens a DataMashup element but fails
// structural validation. It indicates a damaged or hand-crafted part and
// takes precedence over ErrNotFound.
type MalformedError struct {
	Part   string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed DataMashup in %s: %s", e.Part, e.Reason)
}

// Is lets errors.Is(err, ErrMalformed) match.
func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformed
}

// NotFoundError lists the parts that were examined when no DataMashup
// payload was found.
type NotFoundError struct {
	Candidates []string
}

func (e *NotFoundError) Error() string {
	if len(e.Candidates) == 0 {
		return "no DataMashup part found (no custom XML parts)"
	}
	return fmt.Sprintf("no DataMashup part found among %d custom XML parts", len(e.Candidates))
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
