package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a CreateInput from a YAML or JSON plan file and validates it.
func LoadFile(path string) (*CreateInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}

	var in CreateInput
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, fmt.Errorf("unmarshal plan: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &in); err != nil {
			return nil, fmt.Errorf("unmarshal plan: %w", err)
		}
	}

	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("validate plan: %w", err)
	}

	return &in, nil
}

// SaveFile writes a Plan to a JSON file
func SaveFile(p *Plan, path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write plan file: %w", err)
	}

	return nil
}
