package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/atomicfile"
	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/model"
)

// Load reads a mapping file and validates it.
func Load(path string) (model.Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Mapping{}, fmt.Errorf("read mapping file: %w", err)
	}

	var m model.Mapping
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return model.Mapping{}, fmt.Errorf("parse mapping json: %w", err)
	}
	if err := m.Validate(); err != nil {
		return model.Mapping{}, fmt.Errorf("validate mapping: %w", err)
	}
	return m, nil
}

// Save writes m as indented JSON, replacing path atomically.
func Save(path string, m model.Mapping) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode mapping: %w", err)
	}
	return atomicfile.WriteFile(path, append(data, '\n'))
}
