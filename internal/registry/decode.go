package registry

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/vk/wavegrid/internal/checkpoint"
)

// DecodeKwargs populates a handler's input struct from a checkpointed call's
// keyword arguments. Fields bind by `wg:"name"` tag (falling back to the
// field name); kwargs with no matching field are rejected so stale
// checkpoints fail loudly instead of silently dropping arguments. Absent
// kwargs leave the field at its zero value; optionality belongs to the
// handler's input struct.
func DecodeKwargs(call *checkpoint.Call, input any) error {
	structVal := reflect.ValueOf(input)
	if structVal.Kind() != reflect.Ptr || structVal.IsNil() {
		return fmt.Errorf("input must be a non-nil pointer")
	}
	structVal = structVal.Elem()
	structType := structVal.Type()

	fields := make(map[string]reflect.Value, structType.NumField())
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		fieldVal := structVal.Field(i)
		if !fieldVal.CanSet() {
			continue
		}
		lookupName := field.Name
		if tag := field.Tag.Get("wg"); tag != "" {
			lookupName = strings.Split(tag, ",")[0]
		}
		if lookupName == "-" {
			continue
		}
		fields[lookupName] = fieldVal
	}

	for name, val := range call.Kwargs {
		fieldVal, ok := fields[name]
		if !ok {
			return fmt.Errorf("%s.%s: checkpoint keyword %q has no matching input field", call.Component, call.Method, name)
		}
		if err := decodeValue(val, fieldVal.Addr().Interface()); err != nil {
			return fmt.Errorf("%s.%s: failed to decode keyword %q: %w", call.Component, call.Method, name, err)
		}
	}
	return nil
}

// decodeValue converts a cty value to the target's implied type, then
// decodes it into the target pointer.
func decodeValue(val cty.Value, target any) error {
	impliedType, err := gocty.ImpliedType(reflect.ValueOf(target).Elem().Interface())
	if err != nil {
		return gocty.FromCtyValue(val, target)
	}
	converted, err := convert.Convert(val, impliedType)
	if err != nil {
		return err
	}
	return gocty.FromCtyValue(converted, target)
}
