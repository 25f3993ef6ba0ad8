package mashup

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/klauspost/compress/zip"
)

const (
	contentTypes = `<?xml version="1.0" encoding="utf-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="xml" ContentType="text/xml" /><Default Extension="m" ContentType="application/x-ms-m" /></Types>`
	packageConfig = `<?xml version="1.0" encoding="utf-8"?><Package xmlns:xsd="http://www.w3.org/2001/XMLSchema" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"><Version>1.0.0.0</Version><MinimumVersion>1.0.0.0</MinimumVersion><Culture>en-US</Culture></Package>`
	defaultPermissions = `<?xml version="1.0" encoding="utf-8"?><PermissionList xmlns:xsd="http://www.w3.org/2001/XMLSchema" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"><CanEvaluateFuturePackages>false</CanEvaluateFuturePackages><FirewallEnabled>true</FirewallEnabled></PermissionList>`
)

// Build creates a version-0 payload holding formula, encoded as base64. It
// produces the minimal package Excel writes for a new query.
func Build(formula string) (string, error) {
	var pkg bytes.Buffer
	w := zip.NewWriter(&pkg)
	for _, part := range []struct {
		name string
		data string
	}{
		{"[Content_Types].xml", contentTypes},
		{"Config/Package.xml", packageConfig},
		{FormulaPart, formula},
	} {
		pw, err := w.Create(part.name)
		if err != nil {
			return "", fmt.Errorf("failed to create %s: %w", part.name, err)
		}
		if _, err := pw.Write([]byte(part.data)); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", part.name, err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize package parts: %w", err)
	}

	var buf bytes.Buffer
	writeUint32(&buf, 0)
	writeSection(&buf, pkg.Bytes())
	writeSection(&buf, []byte(defaultPermissions))
	writeSection(&buf, nil)
	writeSection(&buf, nil)

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Document wraps a payload in a DataMashup element as Excel stores it.
func Document(payload string) string {
	return `<?xml version="1.0" encoding="utf-16"?><DataMashup xmlns="http://schemas.microsoft.com/DataMashup">` + payload + `</DataMashup>`
}
