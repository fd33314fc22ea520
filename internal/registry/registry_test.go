package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/wavegrid/internal/checkpoint"
)

func noopHandler() *Handler {
	return &Handler{
		NewInput: func() any { return new(struct{}) },
		Fn:       func(ctx context.Context, env *Env, input any) error { return nil },
	}
}

func TestRegisterAndResolve(t *testing.T) {
	r := New()
	r.Register("solver", "forward", noopHandler())

	h, err := r.Resolve("solver", "forward")
	require.NoError(t, err)
	assert.NotNil(t, h)

	_, err = r.Resolve("solver", "adjoint")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "solver.adjoint")
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	r := New()
	r.Register("solver", "forward", noopHandler())
	assert.Panics(t, func() {
		r.Register("solver", "forward", noopHandler())
	})
}

func TestEnvLead(t *testing.T) {
	assert.True(t, (&Env{TaskID: 0}).Lead())
	assert.False(t, (&Env{TaskID: 1}).Lead())
}

type decodeInput struct {
	Model   string   `wg:"model"`
	Count   int      `wg:"count"`
	Span    float64  `wg:"span"`
	Save    bool     `wg:"save"`
	Sources []string `wg:"sources"`
	Skipped string   `wg:"-"`
	ByName  string
}

func TestDecodeKwargs(t *testing.T) {
	t.Run("binds tags, names, and converts types", func(t *testing.T) {
		call := &checkpoint.Call{
			Component: "solver",
			Method:    "forward",
			Kwargs: map[string]cty.Value{
				"model":   cty.StringVal("m00"),
				"count":   cty.NumberIntVal(4),
				"span":    cty.NumberFloatVal(2.5),
				"save":    cty.True,
				"sources": cty.TupleVal([]cty.Value{cty.StringVal("a"), cty.StringVal("b")}),
				"ByName":  cty.StringVal("direct"),
			},
		}

		var in decodeInput
		require.NoError(t, DecodeKwargs(call, &in))
		assert.Equal(t, "m00", in.Model)
		assert.Equal(t, 4, in.Count)
		assert.InDelta(t, 2.5, in.Span, 1e-12)
		assert.True(t, in.Save)
		assert.Equal(t, []string{"a", "b"}, in.Sources)
		assert.Equal(t, "direct", in.ByName)
	})

	t.Run("absent kwargs leave zero values", func(t *testing.T) {
		call := &checkpoint.Call{Component: "solver", Method: "forward", Kwargs: map[string]cty.Value{
			"model": cty.StringVal("m00"),
		}}
		var in decodeInput
		require.NoError(t, DecodeKwargs(call, &in))
		assert.Zero(t, in.Count)
		assert.Nil(t, in.Sources)
	})

	t.Run("unknown kwargs fail loudly", func(t *testing.T) {
		call := &checkpoint.Call{Component: "solver", Method: "forward", Kwargs: map[string]cty.Value{
			"mdoel": cty.StringVal("typo"),
		}}
		var in decodeInput
		err := DecodeKwargs(call, &in)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mdoel")
	})

	t.Run("rejects non-pointer input", func(t *testing.T) {
		call := &checkpoint.Call{Component: "solver", Method: "forward"}
		assert.Error(t, DecodeKwargs(call, decodeInput{}))
	})

	t.Run("type mismatch surfaces the keyword", func(t *testing.T) {
		call := &checkpoint.Call{Component: "solver", Method: "forward", Kwargs: map[string]cty.Value{
			"count": cty.StringVal("many"),
		}}
		var in decodeInput
		err := DecodeKwargs(call, &in)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "count")
	})
}
