package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ReadYAML decodes the given YAML config file into v. Unknown fields
// are rejected so config typos surface immediately.
func ReadYAML(file string, v interface{}) error {
	b, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("error reading yaml config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("error decoding config from yaml: %w", err)
	}
	return nil
}
