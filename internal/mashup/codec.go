// Package mashup defines the boundary to the DataMashup binary codec and
// provides a default implementation of it.
//
// The sync pipeline treats the codec as a black box: it hands over the
// DataMashup XML text, reads or replaces the M formula, and receives a new
// base64 payload. Anything implementing Codec can be plugged in.
package mashup

import "errors"

// Codec parses DataMashup XML into an editable handle.
type Codec interface {
	// Parse decodes the payload of a DataMashup element. The xml argument
	// is the full decoded part text.
	Parse(xml string) (Handle, error)
}

// Handle is a parsed DataMashup payload.
type Handle interface {
	// Formula returns the M section document, e.g.
	// "section Section1;\nshared Query1 = ...;".
	Formula() string
	// SetFormula replaces the M section document.
	SetFormula(code string)
	// Save re-encodes the payload and returns it as base64 text.
	Save() (string, error)
}

var (
	// ErrInvalidPayload is returned when the payload is not valid base64
	// or its binary layout is truncated.
	ErrInvalidPayload = errors.New("invalid DataMashup payload")

	// ErrUnsupportedVersion is returned for a binary layout version other
	// than zero.
	ErrUnsupportedVersion = errors.New("unsupported DataMashup version")

	// ErrNoFormula is returned when the embedded package has no
	// Formulas/Section1.m part.
	ErrNoFormula = errors.New("DataMashup package has no formula part")
)
