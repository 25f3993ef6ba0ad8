// Package textenc sniffs and restores the byte-order marks Excel uses on
// custom XML parts.
//
// Decode and Encode are exact inverses for every supported Encoding: the
// bytes Encode produces start with the same BOM that Decode stripped. A
// part re-encoded with a different BOM than it was read with is rejected
// by Excel's XML parser, so callers must carry the Encoding returned by
// Decode through to Encode.
package textenc

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// Encoding identifies the byte layout a part was stored with.
type Encoding int

const (
	// UTF8 is UTF-8 without a byte-order mark. Also the fallback for
	// any prefix that is not a recognised BOM.
	UTF8 Encoding = iota
	// UTF8BOM is UTF-8 prefixed with EF BB BF.
	UTF8BOM
	// UTF16LE is UTF-16 little-endian prefixed with FF FE.
	UTF16LE
)

var (
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
)

// String returns a human-readable name for the encoding.
func (e Encoding) String() string {
	switch e {
	case UTF8:
		return "utf-8"
	case UTF8BOM:
		return "utf-8-bom"
	case UTF16LE:
		return "utf-16le"
	default:
		return "unknown"
	}
}

// BOM returns the byte-order mark written for e, or nil.
func (e Encoding) BOM() []byte {
	switch e {
	case UTF8BOM:
		return bomUTF8
	case UTF16LE:
		return bomUTF16LE
	default:
		return nil
	}
}

// Detect reports the encoding implied by the prefix of data.
func Detect(data []byte) Encoding {
	switch {
	case bytes.HasPrefix(data, bomUTF16LE):
		return UTF16LE
	case bytes.HasPrefix(data, bomUTF8):
		return UTF8BOM
	default:
		return UTF8
	}
}

// Decode strips a recognised BOM and returns the text with the detected
// encoding. It never fails: bytes that are not valid in the detected
// encoding are replaced with U+FFFD so a single damaged part cannot abort
// a scan over the whole container.
func Decode(data []byte) (string, Encoding) {
	enc := Detect(data)
	body := data[len(enc.BOM()):]

	switch enc {
	case UTF16LE:
		// An odd trailing byte cannot form a code unit; drop it rather
		// than fail.
		if len(body)%2 == 1 {
			body = body[:len(body)-1]
		}
		out, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(body)
		if err != nil {
			return string(bytes.ToValidUTF8(body, []byte("�"))), enc
		}
		return string(out), enc
	default:
		if utf8.Valid(body) {
			return string(body), enc
		}
		return string(bytes.ToValidUTF8(body, []byte("�"))), enc
	}
}

// Encode converts text to bytes in the given encoding, prefixing the BOM
// that Decode would have stripped.
func Encode(text string, enc Encoding) []byte {
	switch enc {
	case UTF16LE:
		out, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(text))
		if err != nil {
			// The encoder only fails on invalid UTF-8 input; sanitise and
			// retry so the caller always gets a well-formed part.
			out, _ = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes(
				bytes.ToValidUTF8([]byte(text), []byte("�")))
		}
		return append(append([]byte{}, bomUTF16LE...), out...)
	case UTF8BOM:
		return append(append([]byte{}, bomUTF8...), text...)
	default:
		return []byte(text)
	}
}
