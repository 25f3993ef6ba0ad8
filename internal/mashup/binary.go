package mashup

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"regexp"
	"strings"

	"github.com/pqsync/pqsync/internal/textenc"
	"github.com/pqsync/pqsync/internal/workbook"
)

// FormulaPart is the package part holding the M section document.
const FormulaPart = "Formulas/Section1.m"

var payloadPattern = regexp.MustCompile(`(?s)<DataMashup\b[^>]*>\s*(.*?)\s*</DataMashup>`)

// Binary is the default Codec. It understands the version-0 layout:
//
//	uint32 version
//	uint32 length + package parts (OPC ZIP holding Formulas/Section1.m)
//	uint32 length + permissions XML
//	uint32 length + metadata
//	uint32 length + permission bindings
//
// Sections after the package parts are kept byte for byte, except that a
// changed formula drops the permission bindings. The bindings are a
// signature over the other sections; Excel treats an empty binding as
// "permissions not verified" and falls back to safe defaults, whereas a
// stale binding marks the workbook as tampered.
type Binary struct{}

// Parse implements Codec.
func (Binary) Parse(xml string) (Handle, error) {
	m := payloadPattern.FindStringSubmatch(xml)
	if m == nil {
		return nil, fmt.Errorf("%w: no DataMashup element", ErrInvalidPayload)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(m[1]), ""))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	h, err := decodeLayout(raw)
	if err != nil {
		return nil, err
	}
	return h, nil
}

type handle struct {
	version     uint32
	packageData []byte
	permissions []byte
	metadata    []byte
	bindings    []byte
	trailer     []byte

	formula    string
	formulaEnc textenc.Encoding
	changed    bool
}

func decodeLayout(raw []byte) (*handle, error) {
	r := &sectionReader{data: raw}

	version, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if version != 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	h := &handle{version: version}
	if h.packageData, err = r.section("package parts"); err != nil {
		return nil, err
	}
	if h.permissions, err = r.section("permissions"); err != nil {
		return nil, err
	}
	if h.metadata, err = r.section("metadata"); err != nil {
		return nil, err
	}
	if h.bindings, err = r.section("permission bindings"); err != nil {
		return nil, err
	}
	h.trailer = r.rest()

	pkg, err := workbook.Open(h.packageData)
	if err != nil {
		return nil, fmt.Errorf("%w: package parts: %v", ErrInvalidPayload, err)
	}
	data, err := pkg.Read(FormulaPart)
	if err != nil {
		return nil, ErrNoFormula
	}
	h.formula, h.formulaEnc = textenc.Decode(data)
	return h, nil
}

func (h *handle) Formula() string { return h.formula }

func (h *handle) SetFormula(code string) {
	if code == h.formula {
		return
	}
	h.formula = code
	h.changed = true
}

func (h *handle) Save() (string, error) {
	packageData := h.packageData
	bindings := h.bindings

	if h.changed {
		pkg, err := workbook.Open(h.packageData)
		if err != nil {
			return "", fmt.Errorf("%w: package parts: %v", ErrInvalidPayload, err)
		}
		if err := pkg.Replace(FormulaPart, textenc.Encode(h.formula, h.formulaEnc)); err != nil {
			return "", err
		}
		if packageData, err = pkg.Bytes(); err != nil {
			return "", fmt.Errorf("failed to rebuild package parts: %w", err)
		}
		bindings = nil
	}

	var buf bytes.Buffer
	writeUint32(&buf, h.version)
	writeSection(&buf, packageData)
	writeSection(&buf, h.permissions)
	writeSection(&buf, h.metadata)
	writeSection(&buf, bindings)
	buf.Write(h.trailer)

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

type sectionReader struct {
	data []byte
	pos  int
}

func (r *sectionReader) uint32() (uint32, error) {
	if len(r.data)-r.pos < 4 {
		return 0, fmt.Errorf("%w: truncated header at offset %d", ErrInvalidPayload, r.pos)
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *sectionReader) section(name string) ([]byte, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if uint64(n) > uint64(len(r.data)-r.pos) {
		return nil, fmt.Errorf("%w: %s length %d exceeds remaining %d bytes", ErrInvalidPayload, name, n, len(r.data)-r.pos)
	}
	out := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return out, nil
}

func (r *sectionReader) rest() []byte {
	return r.data[r.pos:]
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeSection(buf *bytes.Buffer, data []byte) {
	writeUint32(buf, uint32(len(data)))
	buf.Write(data)
}
