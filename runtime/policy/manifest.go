package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is a policy pack's YAML descriptor: its identity, the Rego module
// that implements it, and how long a loaded engine may serve a stale read
// before checking the file for changes again.
type Manifest struct {
	ID            string `yaml:"id"`
	Version       string `yaml:"version"`
	RegoPath      string `yaml:"regoPath"`
	ReloadSeconds int    `yaml:"reloadSeconds"`
}

// Ref returns the PackRef a loaded engine's decisions should be stamped
// with.
func (m Manifest) Ref() PackRef {
	return PackRef{ID: m.ID, Version: m.Version}
}

// LoadManifest reads and validates a policy pack manifest from path.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read policy manifest %q: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse policy manifest %q: %w", path, err)
	}
	if m.ID == "" {
		return Manifest{}, fmt.Errorf("policy manifest %q: id is required", path)
	}
	if m.Version == "" {
		return Manifest{}, fmt.Errorf("policy manifest %q: version is required", path)
	}
	if m.RegoPath == "" {
		return Manifest{}, fmt.Errorf("policy manifest %q: regoPath is required", path)
	}
	if m.ReloadSeconds <= 0 {
		m.ReloadSeconds = 30
	}
	return m, nil
}
