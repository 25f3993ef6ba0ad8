package mashup

import (
	"encoding/base64"
	"errors"
	"testing"
)

const sample = "section Section1;\n\nshared Query1 = let\n    Source = Excel.CurrentWorkbook(){[Name=\"Table1\"]}[Content]\nin\n    Source;"

func TestBinaryRoundTrip(t *testing.T) {
	payload, err := Build(sample)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	h, err := Binary{}.Parse(Document(payload))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if h.Formula() != sample {
		t.Fatalf("Formula() = %q, want %q", h.Formula(), sample)
	}

	updated := "section Section1;\nshared Query1 = 42;"
	h.SetFormula(updated)
	out, err := h.Save()
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if out == "" {
		t.Fatal("Save returned empty payload")
	}

	again, err := Binary{}.Parse(Document(out))
	if err != nil {
		t.Fatalf("re-Parse failed: %v", err)
	}
	if again.Formula() != updated {
		t.Errorf("Formula() after save = %q, want %q", again.Formula(), updated)
	}
}

func TestBinarySaveUnchangedIsIdentical(t *testing.T) {
	payload, err := Build(sample)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	h, err := Binary{}.Parse(Document(payload))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	h.SetFormula(sample)
	out, err := h.Save()
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if out != payload {
		t.Error("saving an unchanged formula altered the payload")
	}
}

func TestBinaryParseErrors(t *testing.T) {
	versionOne := base64.StdEncoding.EncodeToString([]byte{1, 0, 0, 0, 0, 0, 0, 0})
	truncated := base64.StdEncoding.EncodeToString([]byte{0, 0, 0, 0, 0xFF, 0, 0, 0, 1})

	tests := []struct {
		name string
		xml  string
		want error
	}{
		{"no element", "<root/>", ErrInvalidPayload},
		{"not base64", Document("!!!"), ErrInvalidPayload},
		{"bad version", Document(versionOne), ErrUnsupportedVersion},
		{"truncated section", Document(truncated), ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := Binary{}.Parse(tt.xml)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Parse() error = %v, want %v", err, tt.want)
			}
			if h != nil {
				t.Error("Parse() returned a handle alongside an error")
			}
		})
	}
}
