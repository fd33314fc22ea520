package params

import (
	"fmt"
	"io"

	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

// WriteYAML renders the resolved store as YAML in schema declaration order.
// This is the human-facing form used for the per-run audit archive; the
// machine snapshot stays JSON (see Save).
func (s *Store) WriteYAML(w io.Writer) error {
	if !s.validated {
		return fmt.Errorf("params: cannot render an unvalidated store")
	}

	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, d := range s.schema.Decls() {
		val, ok := s.values[d.Name]
		if !ok {
			continue
		}
		native, err := ctyToGo(val)
		if err != nil {
			return fmt.Errorf("failed to render parameter %q: %w", d.Name, err)
		}
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: d.Name}
		valNode := &yaml.Node{}
		if err := valNode.Encode(native); err != nil {
			return fmt.Errorf("failed to encode parameter %q: %w", d.Name, err)
		}
		doc.Content = append(doc.Content, keyNode, valNode)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to write YAML parameters: %w", err)
	}
	return enc.Close()
}

// ctyToGo converts a cty value into plain Go values suitable for YAML
// encoding. Numbers become int64 when they are whole, float64 otherwise.
func ctyToGo(val cty.Value) (any, error) {
	if val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Bool:
		return val.True(), nil
	case ty == cty.Number:
		bf := val.AsBigFloat()
		if bf.IsInt() {
			i, _ := bf.Int64()
			return i, nil
		}
		f, _ := bf.Float64()
		return f, nil
	case ty.IsListType() || ty.IsSetType() || ty.IsTupleType():
		out := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			converted, err := ctyToGo(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	case ty.IsMapType() || ty.IsObjectType():
		out := make(map[string]any, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			ek, ev := it.Element()
			converted, err := ctyToGo(ev)
			if err != nil {
				return nil, err
			}
			out[ek.AsString()] = converted
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}
