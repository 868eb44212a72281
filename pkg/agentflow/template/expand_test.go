package template

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	vars := map[string]any{
		"name": "World",
		"port": 8080,
		"user": map[string]any{"id": "u-1"},
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "hello", "hello"},
		{"single var", "Hello ${name}", "Hello World"},
		{"number var", "localhost:${port}", "localhost:8080"},
		{"nested field", "user=${user.id}", "user=u-1"},
		{"missing kept", "x=${missing}", "x=${missing}"},
		{"dollar without brace untouched", "$name", "$name"},
		{"adjacent", "${name}${port}", "World8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Expand(tt.in, vars))
		})
	}
}

func TestExpander_MissingActions(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		out, err := NewExpander(WithMissing(MissingEmpty)).Expand("a${x}b", nil)
		require.NoError(t, err)
		assert.Equal(t, "ab", out)
	})

	t.Run("error", func(t *testing.T) {
		_, err := NewExpander(WithMissing(MissingError)).Expand("${x} ${y}", Map{})
		var undef *UndefinedVariableError
		require.True(t, errors.As(err, &undef))
		assert.Equal(t, []string{"x", "y"}, undef.Names)
		assert.Contains(t, err.Error(), "x, y")
	})
}

func TestExpander_ExpandValue(t *testing.T) {
	exp := NewExpander()
	src := Map{"dir": "/tmp", "limit": 10, "tags": []any{"a", "b"}}

	in := map[string]any{
		"path":   "${dir}/out.json",
		"limit":  "${limit}",
		"tags":   "${tags}",
		"nested": map[string]any{"dir": "${dir}"},
		"list":   []any{"${dir}", 3},
		"names":  []string{"${dir}"},
		"static": true,
	}

	out, err := exp.ExpandMap(in, src)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/out.json", out["path"])
	assert.Equal(t, 10, out["limit"], "lone placeholder keeps its type")
	assert.Equal(t, []any{"a", "b"}, out["tags"])
	assert.Equal(t, map[string]any{"dir": "/tmp"}, out["nested"])
	assert.Equal(t, []any{"/tmp", 3}, out["list"])
	assert.Equal(t, []string{"/tmp"}, out["names"])
	assert.Equal(t, true, out["static"])

	assert.Equal(t, "${dir}/out.json", in["path"], "input must not be modified")
}

func TestExpander_ExpandValueErrorPath(t *testing.T) {
	exp := NewExpander(WithMissing(MissingError))
	_, err := exp.ExpandMap(map[string]any{"outer": map[string]any{"inner": "${nope}"}}, Map{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outer: inner: undefined variable: nope")
}

func TestExpandMap_Nil(t *testing.T) {
	out, err := NewExpander().ExpandMap(nil, Map{})
	require.NoError(t, err)
	assert.Nil(t, out)
}
