package params

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Save writes the resolved store to path as typed JSON. Each entry is
// serialized together with its cty type, so Resume reconstructs exactly the
// values validation produced. The write goes through a temporary file and a
// rename, so a reader never observes a partially written snapshot.
func (s *Store) Save(path string) error {
	if !s.validated {
		return fmt.Errorf("params: cannot snapshot an unvalidated store")
	}

	entries := make(map[string]json.RawMessage, len(s.values))
	for name, val := range s.values {
		encoded, err := ctyjson.Marshal(val, cty.DynamicPseudoType)
		if err != nil {
			return fmt.Errorf("failed to encode parameter %q: %w", name, err)
		}
		entries[name] = encoded
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode parameter snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".parameters-*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

// Resume reconstructs a validated store from a snapshot written by Save.
// No validation runs: the snapshot is the already-resolved configuration,
// which is exactly what a freshly started worker needs.
func Resume(path string, schema *Schema) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameter snapshot %s: %w", path, err)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parameter snapshot %s is not valid JSON: %w", path, err)
	}

	store := NewStore(schema, nil)
	for name, encoded := range entries {
		val, err := ctyjson.Unmarshal(encoded, cty.DynamicPseudoType)
		if err != nil {
			return nil, fmt.Errorf("failed to decode parameter %q from snapshot: %w", name, err)
		}
		store.values[name] = val
	}
	store.validated = true
	return store, nil
}
