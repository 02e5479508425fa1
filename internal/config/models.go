package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Model is one chat model the backend accepts.
type Model struct {
	Name      string `yaml:"name"`
	Label     string `yaml:"label,omitempty"`
	IsDefault bool   `yaml:"default,omitempty"`
}

// ModelCatalog is the set of models offered in settings and on the chat
// command line.
type ModelCatalog struct {
	Models []Model `yaml:"models"`
}

// DefaultModelCatalog mirrors the models the backend ships with.
func DefaultModelCatalog() *ModelCatalog {
	return &ModelCatalog{Models: []Model{
		{Name: "gemini-2.5-flash-lite", Label: "Gemini 2.5 Flash Lite", IsDefault: true},
		{Name: "gemini-2.5-flash", Label: "Gemini 2.5 Flash"},
	}}
}

// LoadModelCatalog reads a YAML catalog from path. A missing file is not an
// error; the built-in catalog is returned instead.
func LoadModelCatalog(path string) (*ModelCatalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultModelCatalog(), nil
		}
		return nil, err
	}

	var cat ModelCatalog
	if err := yaml.Unmarshal(b, &cat); err != nil {
		return nil, fmt.Errorf("parse model catalog: %w", err)
	}
	if err := cat.validate(); err != nil {
		return nil, fmt.Errorf("invalid model catalog: %w", err)
	}
	return &cat, nil
}

func (c *ModelCatalog) validate() error {
	if c == nil || len(c.Models) == 0 {
		return errors.New("no models defined")
	}
	seen := make(map[string]struct{}, len(c.Models))
	defaults := 0
	for i, m := range c.Models {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			return fmt.Errorf("model %d: missing name", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate model %q", name)
		}
		seen[name] = struct{}{}
		if m.IsDefault {
			defaults++
		}
	}
	if defaults > 1 {
		return errors.New("more than one default model")
	}
	return nil
}

// Default returns the catalog's default model name, falling back to the first
// entry when none is flagged.
func (c *ModelCatalog) Default() string {
	if c == nil || len(c.Models) == 0 {
		return ""
	}
	for _, m := range c.Models {
		if m.IsDefault {
			return m.Name
		}
	}
	return c.Models[0].Name
}

// Contains reports whether name is in the catalog.
func (c *ModelCatalog) Contains(name string) bool {
	if c == nil {
		return false
	}
	name = strings.TrimSpace(name)
	for _, m := range c.Models {
		if m.Name == name {
			return true
		}
	}
	return false
}
