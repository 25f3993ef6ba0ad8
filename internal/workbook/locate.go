package workbook

import (
	"strings"

	"github.com/pqsync/pqsync/internal/textenc"
)

// DefaultPrefix is the custom XML area where Excel stores the DataMashup.
const DefaultPrefix = "customXml/"

// Namespace is the XML namespace a DataMashup element must declare.
const Namespace = "http://schemas.microsoft.com/DataMashup"

const (
	openToken  = "<DataMashup"
	closeToken = "</DataMashup>"
)

// State classifies a candidate part.
type State int

const (
	// StateAbsent means the part has no DataMashup element at all.
	StateAbsent State = iota
	// StateMalformed means the part opens a DataMashup element but is
	// structurally invalid.
	StateMalformed
	// StateNoContent means a well-formed DataMashup element whose
	// content is only a schema reference, not a payload.
	StateNoContent
	// StateFormula means a well-formed DataMashup element with a payload.
	StateFormula
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateMalformed:
		return "malformed"
	case StateNoContent:
		return "no-content"
	case StateFormula:
		return "formula"
	default:
		return "unknown"
	}
}

// Part is one decoded container part and its DataMashup classification.
type Part struct {
	// Name is the part path, e.g. customXml/item1.xml.
	Name string
	// Raw is the part exactly as stored.
	Raw []byte
	// Encoding is the BOM layout Raw was stored with.
	Encoding textenc.Encoding
	// Text is Raw decoded.
	Text string
	// State is the classification of Text.
	State State
	// Reason explains StateMalformed.
	Reason string

	payloadStart int
	payloadEnd   int
}

// Payload returns the base64 text between the DataMashup tags.
func (p *Part) Payload() string {
	if p.State != StateFormula {
		return ""
	}
	return p.Text[p.payloadStart:p.payloadEnd]
}

// WithPayload returns Text with the element content replaced by payload.
// The opening tag, its attributes and everything outside the element are
// kept as they were.
func (p *Part) WithPayload(payload string) string {
	var b strings.Builder
	b.Grow(len(p.Text) - (p.payloadEnd - p.payloadStart) + len(payload))
	b.WriteString(p.Text[:p.payloadStart])
	b.WriteString(payload)
	b.WriteString(p.Text[p.payloadEnd:])
	return b.String()
}

// Encode returns the stored bytes for a new payload, using the same
// encoding and BOM the part was read with.
func (p *Part) Encode(payload string) []byte {
	return textenc.Encode(p.WithPayload(payload), p.Encoding)
}

// Candidates returns the parts under prefix, relationship parts excluded,
// in lexicographic order.
func Candidates(c *Container, prefix string) []string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	var out []string
	for _, name := range c.PartsWithPrefix(prefix) {
		if isRelationshipPart(name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Scan decodes and classifies every candidate part. A part that cannot be
// read is reported as malformed rather than aborting the scan.
func Scan(c *Container, prefix string) []*Part {
	var parts []*Part
	for _, name := range Candidates(c, prefix) {
		raw, err := c.Read(name)
		if err != nil {
			parts = append(parts, &Part{Name: name, State: StateMalformed, Reason: err.Error()})
			continue
		}
		parts = append(parts, Classify(name, raw))
	}
	return parts
}

// Locate returns the single part that carries a DataMashup payload.
//
// Every candidate is examined. A malformed part anywhere under prefix
// yields a *MalformedError even when another part has a valid payload:
// writing into a workbook that also carries a damaged DataMashup would
// hide the damage. Otherwise the first part with a payload wins. When no
// part qualifies the error is a *NotFoundError listing the candidates.
func Locate(c *Container, prefix string) (*Part, error) {
	var (
		found      *Part
		candidates []string
	)
	for _, part := range Scan(c, prefix) {
		candidates = append(candidates, part.Name)
		switch part.State {
		case StateMalformed:
			return nil, &MalformedError{Part: part.Name, Reason: part.Reason}
		case StateFormula:
			if found == nil {
				found = part
			}
		}
	}
	if found == nil {
		return nil, &NotFoundError{Candidates: candidates}
	}
	return found, nil
}

// Classify decodes raw and determines its DataMashup state.
func Classify(name string, raw []byte) *Part {
	text, enc := textenc.Decode(raw)
	part := &Part{Name: name, Raw: raw, Encoding: enc, Text: text}

	open := indexOpenTag(text)
	if open < 0 {
		part.State = StateAbsent
		return part
	}

	tagEnd := strings.IndexByte(text[open:], '>')
	if tagEnd < 0 {
		return malformed(part, "unterminated opening tag")
	}
	tagEnd += open
	tag := text[open : tagEnd+1]

	if !declaresNamespace(tag) {
		return malformed(part, "missing namespace declaration "+Namespace)
	}
	if strings.HasSuffix(tag, "/>") {
		part.State = StateNoContent
		return part
	}

	closeIdx := strings.Index(text[tagEnd+1:], closeToken)
	if closeIdx < 0 {
		return malformed(part, "missing closing tag")
	}
	closeIdx += tagEnd + 1

	inner := text[tagEnd+1 : closeIdx]
	payload := strings.TrimSpace(inner)
	if payload == "" || strings.HasPrefix(payload, "<") {
		part.State = StateNoContent
		return part
	}

	// Surrounding whitespace stays outside the payload bounds.
	part.payloadStart = tagEnd + 1 + strings.Index(inner, payload)
	part.payloadEnd = part.payloadStart + len(payload)
	part.State = StateFormula
	return part
}

func malformed(part *Part, reason string) *Part {
	part.State = StateMalformed
	part.Reason = reason
	return part
}

// indexOpenTag finds "<DataMashup" followed by a tag delimiter, so that
// longer element names do not match.
func indexOpenTag(text string) int {
	offset := 0
	for {
		i := strings.Index(text[offset:], openToken)
		if i < 0 {
			return -1
		}
		i += offset
		next := i + len(openToken)
		if next >= len(text) {
			return i
		}
		switch text[next] {
		case ' ', '\t', '\r', '\n', '>', '/':
			return i
		}
		offset = next
	}
}

func declaresNamespace(tag string) bool {
	return strings.Contains(tag, `xmlns="`+Namespace+`"`) ||
		strings.Contains(tag, `xmlns='`+Namespace+`'`)
}

func isRelationshipPart(name string) bool {
	return strings.Contains(name, "/_rels/") || strings.HasSuffix(name, ".rels")
}
