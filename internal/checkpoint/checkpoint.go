// Package checkpoint serializes deferred calls to durable storage. A call
// records the target component, method, and arguments; writing it before any
// worker spawns lets a freshly started process reconstruct and replay the
// invocation instead of receiving it through process arguments, which would
// not survive a restart on most cluster schedulers.
//
// One file exists per (component, method) pair within a run; writing the
// same pair again replaces the previous call with no history.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// ErrNotFound is returned when no checkpoint exists for a pair. It is always
// fatal for a worker: without the checkpoint there is no work to do.
var ErrNotFound = errors.New("checkpoint not found")

// CorruptError reports a checkpoint file that exists but cannot be decoded.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("checkpoint %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Call is a deferred invocation: the component and method to run, plus
// positional and keyword arguments. Values are cty values so that nested
// lists, booleans, strings and numbers round-trip exactly.
type Call struct {
	Component string
	Method    string
	Args      []cty.Value
	Kwargs    map[string]cty.Value
}

// fileCall is the on-disk JSON form. Each value is encoded together with its
// cty type so the file stays human-inspectable while round-tripping types.
type fileCall struct {
	Component string                     `json:"component"`
	Method    string                     `json:"method"`
	Args      []json.RawMessage          `json:"args"`
	Kwargs    map[string]json.RawMessage `json:"kwargs"`
}

// Path returns the checkpoint file location for a pair under dir.
func Path(dir, component, method string) string {
	return filepath.Join(dir, "kwargs", fmt.Sprintf("%s_%s.json", component, method))
}

// Write serializes call under dir, creating dir/kwargs if absent. The file
// is written to a temporary name and renamed into place, so a worker can
// never observe a partially written checkpoint; callers additionally order
// Write strictly before spawning any worker that references it.
func Write(dir string, call *Call) error {
	encoded := fileCall{
		Component: call.Component,
		Method:    call.Method,
		Args:      make([]json.RawMessage, 0, len(call.Args)),
		Kwargs:    make(map[string]json.RawMessage, len(call.Kwargs)),
	}
	for i, v := range call.Args {
		raw, err := ctyjson.Marshal(v, cty.DynamicPseudoType)
		if err != nil {
			return fmt.Errorf("failed to encode argument %d of %s.%s: %w", i, call.Component, call.Method, err)
		}
		encoded.Args = append(encoded.Args, raw)
	}
	for name, v := range call.Kwargs {
		raw, err := ctyjson.Marshal(v, cty.DynamicPseudoType)
		if err != nil {
			return fmt.Errorf("failed to encode keyword %q of %s.%s: %w", name, call.Component, call.Method, err)
		}
		encoded.Kwargs[name] = raw
	}

	data, err := json.MarshalIndent(&encoded, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint for %s.%s: %w", call.Component, call.Method, err)
	}

	path := Path(dir, call.Component, call.Method)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to publish checkpoint: %w", err)
	}
	return nil
}

// Read reconstructs the deferred call for a pair from dir. A missing file
// yields ErrNotFound; an undecodable file yields a CorruptError. Both are
// fatal to the worker, with distinguishable exit statuses mapped by the CLI.
func Read(dir, component, method string) (*Call, error) {
	path := Path(dir, component, method)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s.%s at %s: %w", component, method, path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", path, err)
	}

	var encoded fileCall
	if err := json.Unmarshal(data, &encoded); err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}

	call := &Call{
		Component: encoded.Component,
		Method:    encoded.Method,
		Kwargs:    make(map[string]cty.Value, len(encoded.Kwargs)),
	}
	for i, raw := range encoded.Args {
		v, err := ctyjson.Unmarshal(raw, cty.DynamicPseudoType)
		if err != nil {
			return nil, &CorruptError{Path: path, Err: fmt.Errorf("argument %d: %w", i, err)}
		}
		call.Args = append(call.Args, v)
	}
	for name, raw := range encoded.Kwargs {
		v, err := ctyjson.Unmarshal(raw, cty.DynamicPseudoType)
		if err != nil {
			return nil, &CorruptError{Path: path, Err: fmt.Errorf("keyword %q: %w", name, err)}
		}
		call.Kwargs[name] = v
	}
	return call, nil
}
