package params

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Store holds the resolved configuration for one run. It is created with raw
// values (from the parameters file or a snapshot), validated exactly once,
// and read-only afterwards except for entries declared Derived.
type Store struct {
	schema    *Schema
	raw       map[string]cty.Value
	values    map[string]cty.Value
	validated bool
}

// NewStore creates an unvalidated store over the given schema and raw values.
func NewStore(schema *Schema, raw map[string]cty.Value) *Store {
	if raw == nil {
		raw = make(map[string]cty.Value)
	}
	return &Store{
		schema: schema,
		raw:    raw,
		values: make(map[string]cty.Value),
	}
}

// Schema returns the schema this store was validated against.
func (s *Store) Schema() *Schema { return s.schema }

// Validate walks every declared entry: supplied values are coerced to their
// declared type, defaults are materialized, and missing required entries are
// rejected. Supplied entries that were never declared are also rejected.
// Validate may only run once per store.
func (s *Store) Validate() error {
	if s.validated {
		return fmt.Errorf("params: store already validated")
	}

	for name := range s.raw {
		if _, ok := s.schema.Lookup(name); !ok {
			return &UnknownError{Name: name}
		}
	}

	for _, d := range s.schema.Decls() {
		rawVal, supplied := s.raw[d.Name]
		switch {
		case supplied:
			val, err := convert.Convert(rawVal, d.Type)
			if err != nil {
				return &TypeError{Name: d.Name, Want: d.Type, Err: err}
			}
			if d.Integer && d.Type == cty.Number && !val.IsNull() && !val.AsBigFloat().IsInt() {
				return &TypeError{Name: d.Name, Want: d.Type, Err: fmt.Errorf("value %s is not a whole number", val.AsBigFloat().Text('g', -1))}
			}
			s.values[d.Name] = val
		case d.Default != cty.NilVal:
			s.values[d.Name] = d.Default
		case d.Required:
			return &MissingError{Name: d.Name}
		default:
			// Optional with no default: absent, probed via Has.
		}
	}

	s.validated = true
	return nil
}

// Has reports whether an entry holds a value after validation. It is the
// membership probe other components use to enable optional behavior.
func (s *Store) Has(name string) bool {
	_, ok := s.values[name]
	return ok
}

// SetDerived replaces the value of an entry declared Derived. Every other
// entry is immutable once Validate has run.
func (s *Store) SetDerived(name string, val cty.Value) error {
	d, ok := s.schema.Lookup(name)
	if !ok {
		return &UnknownError{Name: name}
	}
	if !d.Derived {
		return fmt.Errorf("params: entry %q is not derived and cannot be set after validation", name)
	}
	converted, err := convert.Convert(val, d.Type)
	if err != nil {
		return &TypeError{Name: name, Want: d.Type, Err: err}
	}
	s.values[name] = converted
	return nil
}

// Value returns the resolved cty value for an entry. Looking up an absent or
// undeclared entry is a programmer error; probe with Has first.
func (s *Store) Value(name string) cty.Value {
	if !s.validated {
		panic("params: store accessed before validation")
	}
	v, ok := s.values[name]
	if !ok {
		panic(fmt.Sprintf("params: entry %q has no value (probe with Has)", name))
	}
	return v
}

// Int returns an integer-typed entry.
func (s *Store) Int(name string) int {
	var out int
	s.decode(name, &out)
	return out
}

// Float returns a float-typed entry.
func (s *Store) Float(name string) float64 {
	var out float64
	s.decode(name, &out)
	return out
}

// Str returns a string-typed entry.
func (s *Store) Str(name string) string {
	var out string
	s.decode(name, &out)
	return out
}

// Bool returns a bool-typed entry.
func (s *Store) Bool(name string) bool {
	var out bool
	s.decode(name, &out)
	return out
}

// Strings returns a list-of-strings entry.
func (s *Store) Strings(name string) []string {
	v := s.Value(name)
	if v.LengthInt() == 0 {
		return nil
	}
	var out []string
	s.decodeValue(name, v, &out)
	return out
}

func (s *Store) decode(name string, target any) {
	s.decodeValue(name, s.Value(name), target)
}

func (s *Store) decodeValue(name string, val cty.Value, target any) {
	if err := gocty.FromCtyValue(val, target); err != nil {
		// Validation coerced the value to its declared type already, so a
		// decode failure means the accessor and declaration disagree.
		panic(fmt.Sprintf("params: entry %q read with mismatched accessor: %v", name, err))
	}
}
