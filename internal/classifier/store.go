package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrModelNotFound is returned by Load when no model file exists.
var ErrModelNotFound = errors.New("classifier model not found")

// Load reads a model from a JSON file.
func Load(filePath string) (*Model, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrModelNotFound, filePath)
		}
		return nil, err
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	d := len(FeatureNames)
	if len(m.Weights) != d || len(m.Mean) != d || len(m.Std) != d {
		return nil, fmt.Errorf("model %s has %d weights, want %d", filePath, len(m.Weights), d)
	}
	return &m, nil
}

// Save writes the model to a JSON file, creating its directory.
func Save(filePath string, m *Model) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0644)
}
