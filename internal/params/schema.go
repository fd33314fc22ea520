package params

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// Decl declares a single expected configuration entry.
type Decl struct {
	Name     string
	Type     cty.Type
	Required bool
	// Default is materialized at validation when the entry is not supplied.
	// cty.NilVal means no default.
	Default cty.Value
	// Integer restricts a cty.Number entry to whole values. Validation
	// rejects fractional input up front, so integer accessors can never trip
	// over a value like 2.5 mid-run.
	Integer bool
	// Derived marks an entry that may be recomputed after validation through
	// Store.SetDerived (e.g. a frequency derived from a declared period).
	Derived bool
	Doc     string
}

// Schema is the ordered collection of declared parameters and paths. Every
// entry referenced at runtime must appear here exactly once; re-declaring a
// name is a programmer error and panics, matching the registry's behavior
// for duplicate handlers.
type Schema struct {
	decls map[string]*Decl
	order []string
}

// NewSchema creates an empty schema.
func NewSchema() *Schema {
	return &Schema{decls: make(map[string]*Decl)}
}

// Par declares a parameter entry.
func (s *Schema) Par(d Decl) {
	s.declare(d)
}

// Path declares a path entry. Paths are always strings; the declaration only
// differs from Par in intent and in the declared type being fixed.
func (s *Schema) Path(d Decl) {
	d.Type = cty.String
	s.declare(d)
}

func (s *Schema) declare(d Decl) {
	if d.Name == "" {
		panic("params: declaration with empty name")
	}
	if _, exists := s.decls[d.Name]; exists {
		panic(fmt.Sprintf("params: entry %q already declared", d.Name))
	}
	decl := d
	s.decls[d.Name] = &decl
	s.order = append(s.order, d.Name)
}

// Lookup returns the declaration for a name, if present.
func (s *Schema) Lookup(name string) (*Decl, bool) {
	d, ok := s.decls[name]
	return d, ok
}

// Decls returns all declarations in declaration order.
func (s *Schema) Decls() []*Decl {
	out := make([]*Decl, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.decls[name])
	}
	return out
}
