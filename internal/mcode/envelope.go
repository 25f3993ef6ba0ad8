// Package mcode splits and builds the text of .m sidecar files.
//
// A sidecar holds an informational comment header followed by the M
// section document. Only the section document is synced back into the
// workbook; the header is regenerated on every extraction and discarded on
// every sync, so its content never affects a round trip.
package mcode

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// sectionPattern matches a line-anchored `section <identifier>;`
// declaration. Identifiers may be plain or quoted (#"name").
var sectionPattern = regexp.MustCompile(`(?m)^[ \t]*section[ \t\r\n]+(?:[A-Za-z_][A-Za-z0-9_.]*|#"(?:[^"]|"")*")[ \t\r\n]*;`)

// Strip splits raw sidecar text into its header and M body.
//
// The header is everything before the first section declaration; the body
// is the declaration onward, trimmed. When there is no declaration the
// header is the leading run of // comment and blank lines, and the body is
// the rest trimmed: single-expression files without a section wrapper are
// still synced, and a file holding only comments has an empty body.
//
// header + untrimmed body == raw in both cases.
func Strip(raw string) (header, body string) {
	loc := sectionPattern.FindStringIndex(raw)
	if loc == nil {
		n := leadingComments(raw)
		return raw[:n], strings.TrimSpace(raw[n:])
	}
	return raw[:loc[0]], strings.TrimSpace(raw[loc[0]:])
}

// leadingComments returns the length of the prefix of raw made of whole
// lines that are blank or start with //.
func leadingComments(raw string) int {
	n := 0
	for n < len(raw) {
		end := strings.IndexByte(raw[n:], '\n')
		line := raw[n:]
		if end >= 0 {
			line = raw[n : n+end+1]
		}
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(trimmed, "//") {
			break
		}
		n += len(line)
	}
	return n
}

// HasSection reports whether raw contains a section declaration.
func HasSection(raw string) bool {
	return sectionPattern.MatchString(raw)
}

// Metadata describes where an extracted formula came from.
type Metadata struct {
	// Workbook is the source workbook path; only its base name is written.
	Workbook string
	// Part is the container part the formula was read from.
	Part string
	// ExtractedAt is the extraction time.
	ExtractedAt time.Time
}

// Wrap prepends the informational header to an extracted formula.
func Wrap(formula string, meta Metadata) string {
	var b strings.Builder
	fmt.Fprintf(&b, "// Power Query extracted from: %s\n", baseName(meta.Workbook))
	if meta.Part != "" {
		fmt.Fprintf(&b, "// Location: %s (DataMashup format)\n", meta.Part)
	}
	fmt.Fprintf(&b, "// Extracted on: %s\n\n", meta.ExtractedAt.UTC().Format("2006-01-02T15:04:05.000Z"))
	b.WriteString(formula)
	if !strings.HasSuffix(formula, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

// baseName strips directories using either separator so headers look the
// same regardless of the platform that produced them.
func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
