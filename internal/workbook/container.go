// Package workbook opens OOXML workbook packages and finds the DataMashup
// part that carries a workbook's Power Query formulas.
package workbook

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Container is an in-memory view of a workbook's ZIP package. It is opened
// for a single extract or sync and then discarded.
//
// Parts that are never replaced are written back with their original
// compressed bytes and headers, so everything except the replaced part is
// byte-identical after Bytes.
type Container struct {
	reader   *zip.Reader
	files    map[string]*zip.File
	order    []string
	replaced map[string][]byte
	added    []string
}

// Open parses a workbook package from memory.
func Open(data []byte) (*Container, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPackage, err)
	}

	c := &Container{
		reader:   reader,
		files:    make(map[string]*zip.File, len(reader.File)),
		replaced: make(map[string][]byte),
	}
	for _, f := range reader.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		c.files[f.Name] = f
		c.order = append(c.order, f.Name)
	}
	return c, nil
}

// OpenFile reads and parses the workbook at path.
func OpenFile(path string) (*Container, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook: %w", err)
	}
	return Open(data)
}

// Parts returns the part names in archive order.
func (c *Container) Parts() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// PartsWithPrefix returns the part names under prefix in lexicographic
// order.
func (c *Container) PartsWithPrefix(prefix string) []string {
	var out []string
	for _, name := range c.order {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Has reports whether the package contains the named part.
func (c *Container) Has(name string) bool {
	_, ok := c.files[name]
	if !ok {
		_, ok = c.replaced[name]
	}
	return ok
}

// Read returns the uncompressed bytes of a part.
func (c *Container) Read(name string) ([]byte, error) {
	if data, ok := c.replaced[name]; ok {
		return data, nil
	}
	f, ok := c.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPartNotFound, name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open part %s: %w", name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read part %s: %w", name, err)
	}
	return data, nil
}

// Replace sets new contents for an existing part.
func (c *Container) Replace(name string, data []byte) error {
	if !c.Has(name) {
		return fmt.Errorf("%w: %s", ErrPartNotFound, name)
	}
	c.replaced[name] = data
	return nil
}

// Put sets the contents of a part, adding it at the end of the archive if
// it does not exist yet.
func (c *Container) Put(name string, data []byte) {
	if !c.Has(name) {
		c.added = append(c.added, name)
		c.order = append(c.order, name)
	}
	c.replaced[name] = data
}

// Bytes serializes the package. Unmodified parts are copied raw.
func (c *Container) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	for _, name := range c.order {
		data, changed := c.replaced[name]
		f, existed := c.files[name]

		switch {
		case existed && !changed:
			if err := w.Copy(f); err != nil {
				return nil, fmt.Errorf("failed to copy part %s: %w", name, err)
			}
		case existed:
			// Fresh header: stale sizes, CRC and zip64 extras from the
			// original entry must not leak into the rewritten one.
			header := &zip.FileHeader{
				Name:          name,
				Method:        zip.Deflate,
				Modified:      f.Modified,
				ExternalAttrs: f.ExternalAttrs,
			}
			if err := writePart(w, header, data); err != nil {
				return nil, err
			}
		default:
			header := &zip.FileHeader{Name: name, Method: zip.Deflate}
			if err := writePart(w, header, data); err != nil {
				return nil, err
			}
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize workbook package: %w", err)
	}
	return buf.Bytes(), nil
}

func writePart(w *zip.Writer, header *zip.FileHeader, data []byte) error {
	pw, err := w.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create part %s: %w", header.Name, err)
	}
	if _, err := pw.Write(data); err != nil {
		return fmt.Errorf("failed to write part %s: %w", header.Name, err)
	}
	return nil
}
