package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fgerrors "github.com/randalmurphal/agentflow/pkg/agentflow/errors"
	"github.com/randalmurphal/agentflow/pkg/agentflow/registry"
)

func TestValidate_Kinds(t *testing.T) {
	tests := []struct {
		name  string
		kind  Kind
		value any
		ok    bool
	}{
		{"null", Null, nil, true},
		{"null rejects zero", Null, 0, false},
		{"boolean", Boolean, true, true},
		{"boolean rejects string", Boolean, "true", false},
		{"integer int", Integer, 42, true},
		{"integer uint8", Integer, uint8(7), true},
		{"integer whole float", Integer, 3.0, true},
		{"integer json number", Integer, json.Number("12"), true},
		{"integer fraction", Integer, 3.5, false},
		{"number float", Number, 0.25, true},
		{"number int", Number, 2, true},
		{"number rejects string", Number, "2", false},
		{"string", String, "hi", true},
		{"string rejects bytes", String, []byte("hi"), false},
		{"array", Array, []string{"a"}, true},
		{"array rejects map", Array, map[string]any{}, false},
		{"object", Object, map[string]int{"a": 1}, true},
		{"object rejects slice", Object, []any{}, false},
		{"any", Any, struct{}{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Of(tt.kind).Validate(tt.value)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_ReportsPath(t *testing.T) {
	s := ObjectOf(map[string]*Schema{
		"title": Of(String),
		"steps": ArrayOf(ObjectOf(map[string]*Schema{
			"name": Of(String),
			"cost": Of(Number),
		})),
	})

	payload := map[string]any{
		"title": "plan",
		"steps": []any{
			map[string]any{"name": "a", "cost": 1},
			map[string]any{"name": 2, "cost": 1.5},
		},
	}
	err := s.Validate(payload)
	require.Error(t, err)

	var ve *fgerrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "$.steps[1].name", ve.Field)
	assert.Equal(t, "expected string", ve.Message)
}

func TestValidate_ObjectProperties(t *testing.T) {
	closed := ObjectOf(map[string]*Schema{"a": Of(Integer)})

	err := closed.Validate(map[string]any{})
	var ve *fgerrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, `missing required property "a"`, ve.Message)

	err = closed.Validate(map[string]any{"a": 1, "b": 2})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, `unexpected property "b"`, ve.Message)

	open := &Schema{Type: Object, Properties: map[string]*Schema{"a": Of(Integer)}}
	assert.NoError(t, open.Validate(map[string]any{"b": "anything"}))
	assert.Error(t, open.Validate(map[string]any{"a": "one"}))
}

func TestValidate_StructPayload(t *testing.T) {
	type step struct {
		Name string `json:"name"`
		Cost int    `json:"cost"`
	}
	s := ObjectOf(map[string]*Schema{
		"name": Of(String),
		"cost": Of(Integer),
	})

	assert.NoError(t, s.Validate(step{Name: "fetch", Cost: 3}))
	assert.NoError(t, s.Validate(&step{Name: "fetch"}))
	assert.NoError(t, ArrayOf(s).Validate([]step{{Name: "x"}, {}}))
	assert.Error(t, Of(Object).Validate((*step)(nil)))
}

func TestValidate_UnknownKind(t *testing.T) {
	err := Of("tuple").Validate(1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown schema type")
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("answer", ObjectOf(map[string]*Schema{"text": Of(String)})))
	require.NoError(t, r.Register("count", Of(Integer)))

	err := r.Register("count", Of(Number))
	assert.ErrorIs(t, err, registry.ErrDuplicate)
	assert.Error(t, r.Register("", Of(Any)))
	assert.Error(t, r.Register("nil", nil))
	assert.ErrorContains(t, r.Register("tuple", ArrayOf(Of("tuple"))), "$[]")
	assert.False(t, r.Has("tuple"))

	assert.Equal(t, []string{"answer", "count"}, r.Names())
	assert.True(t, r.Has("answer"))

	s, err := r.Get("count")
	require.NoError(t, err)
	assert.Equal(t, Integer, s.Type)

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, ErrNotRegistered)
	assert.ErrorIs(t, r.Validate("missing", 1), ErrNotRegistered)

	assert.NoError(t, r.Validate("answer", map[string]any{"text": "yes"}))
	err = r.Validate("answer", map[string]any{"text": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema answer")
	assert.Contains(t, err.Error(), "$.text")
}
