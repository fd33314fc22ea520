package params

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// MissingError reports a required entry that was neither supplied nor given
// a default. It is fatal at startup, before any dispatch.
type MissingError struct {
	Name string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("required parameter %q is not set and has no default", e.Name)
}

// TypeError reports a supplied value that cannot be coerced to its declared
// type.
type TypeError struct {
	Name string
	Want cty.Type
	Err  error
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("parameter %q cannot be converted to %s: %v", e.Name, e.Want.FriendlyName(), e.Err)
}

func (e *TypeError) Unwrap() error { return e.Err }

// UnknownError reports a supplied entry that no component declared. Catching
// these at validation keeps typos from silently becoming no-ops.
type UnknownError struct {
	Name string
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("parameter %q was supplied but never declared", e.Name)
}
