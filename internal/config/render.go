package config

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Render encodes the effective settings as yaml or toml.
func (s *Store) Render(format string) ([]byte, error) {
	all := s.All()
	switch format {
	case "", "yaml", "yml":
		return yaml.Marshal(all)
	case "toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(all); err != nil {
			return nil, fmt.Errorf("failed to encode toml: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported format %q (want yaml or toml)", format)
	}
}
