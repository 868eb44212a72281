package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"

	fgerrors "github.com/randalmurphal/agentflow/pkg/agentflow/errors"
	"github.com/randalmurphal/agentflow/pkg/agentflow/registry"
)

// Kind is the JSON type a Schema accepts.
type Kind string

const (
	Null    Kind = "null"
	Boolean Kind = "boolean"
	Integer Kind = "integer"
	Number  Kind = "number"
	String  Kind = "string"
	Array   Kind = "array"
	Object  Kind = "object"
	Any     Kind = "any"
)

// ErrNotRegistered is returned for schema names missing from a Registry.
var ErrNotRegistered = errors.New("schema not registered")

// Schema describes the shape of a message payload.
type Schema struct {
	Type        Kind   `mapstructure:"type" yaml:"type" json:"type"`
	Description string `mapstructure:"description" yaml:"description,omitempty" json:"description,omitempty"`

	// Items applies to every element of an Array. Nil accepts anything.
	Items *Schema `mapstructure:"items" yaml:"items,omitempty" json:"items,omitempty"`

	Properties map[string]*Schema `mapstructure:"properties" yaml:"properties,omitempty" json:"properties,omitempty"`
	Required   []string           `mapstructure:"required" yaml:"required,omitempty" json:"required,omitempty"`

	// AdditionalProperties defaults to true when nil.
	AdditionalProperties *bool `mapstructure:"additional_properties" yaml:"additional_properties,omitempty" json:"additional_properties,omitempty"`
}

// ArrayOf returns an Array schema whose elements match items.
func ArrayOf(items *Schema) *Schema {
	return &Schema{Type: Array, Items: items}
}

// ObjectOf returns a closed Object schema with the given properties, all
// of them required.
func ObjectOf(props map[string]*Schema) *Schema {
	closed := false
	s := &Schema{Type: Object, Properties: props, AdditionalProperties: &closed}
	for k := range props {
		s.Required = append(s.Required, k)
	}
	slices.Sort(s.Required)
	return s
}

// Of returns a schema accepting kind with no further constraints.
func Of(kind Kind) *Schema {
	return &Schema{Type: kind}
}

func (s *Schema) additional() bool {
	return s.AdditionalProperties == nil || *s.AdditionalProperties
}

// Validate checks value against s. The returned *errors.ValidationError
// names the offending path, rooted at "$".
func (s *Schema) Validate(value any) error {
	return s.validate("$", normalize(value))
}

func (s *Schema) validate(path string, v any) error {
	fail := func(format string, args ...any) error {
		return &fgerrors.ValidationError{Field: path, Message: fmt.Sprintf(format, args...)}
	}

	switch s.Type {
	case Any, "":
		return nil
	case Null:
		if v != nil {
			return fail("expected null")
		}
	case Boolean:
		if _, ok := v.(bool); !ok {
			return fail("expected boolean")
		}
	case Integer:
		if !isInteger(v) {
			return fail("expected integer")
		}
	case Number:
		if _, ok := asFloat(v); !ok {
			return fail("expected number")
		}
	case String:
		if _, ok := v.(string); !ok {
			return fail("expected string")
		}
	case Array:
		items, ok := v.([]any)
		if !ok {
			return fail("expected array")
		}
		if s.Items == nil {
			return nil
		}
		for i, item := range items {
			if err := s.Items.validate(fmt.Sprintf("%s[%d]", path, i), item); err != nil {
				return err
			}
		}
	case Object:
		obj, ok := v.(map[string]any)
		if !ok {
			return fail("expected object")
		}
		for _, k := range s.Required {
			if _, ok := obj[k]; !ok {
				return fail("missing required property %q", k)
			}
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			prop, ok := s.Properties[k]
			if !ok {
				if !s.additional() {
					return fail("unexpected property %q", k)
				}
				continue
			}
			if err := prop.validate(path+"."+k, obj[k]); err != nil {
				return err
			}
		}
	default:
		return fail("unknown schema type %q", s.Type)
	}
	return nil
}

// check rejects unknown kinds anywhere in s.
func (s *Schema) check(path string) error {
	switch s.Type {
	case Null, Boolean, Integer, Number, String, Any, "":
	case Array:
		if s.Items != nil {
			return s.Items.check(path + "[]")
		}
	case Object:
		for k, p := range s.Properties {
			if p == nil {
				return &fgerrors.ValidationError{Field: path + "." + k, Message: "nil schema"}
			}
			if err := p.check(path + "." + k); err != nil {
				return err
			}
		}
	default:
		return &fgerrors.ValidationError{Field: path, Message: fmt.Sprintf("unknown schema type %q", s.Type)}
	}
	return nil
}

// Registry holds named schemas. It is safe for concurrent use.
type Registry struct {
	schemas *registry.Registry[string, *Schema]
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{schemas: registry.New[string, *Schema]()}
}

// Register adds s under name.
func (r *Registry) Register(name string, s *Schema) error {
	if name == "" {
		return errors.New("register schema: empty name")
	}
	if s == nil {
		return fmt.Errorf("register schema %s: nil schema", name)
	}
	if err := s.check("$"); err != nil {
		return fmt.Errorf("register schema %s: %w", name, err)
	}
	if err := r.schemas.Add(name, s); err != nil {
		return fmt.Errorf("register schema %s: %w", name, err)
	}
	return nil
}

// Get returns the schema called name.
func (r *Registry) Get(name string) (*Schema, error) {
	s, ok := r.schemas.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return s, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	return r.schemas.Has(name)
}

// Names returns the registered names in order.
func (r *Registry) Names() []string {
	return r.schemas.Keys()
}

// Validate checks value against the schema called name.
func (r *Registry) Validate(name string, value any) error {
	s, err := r.Get(name)
	if err != nil {
		return err
	}
	if err := s.Validate(value); err != nil {
		return fmt.Errorf("schema %s: %w", name, err)
	}
	return nil
}

// normalize maps Go values onto the JSON data model: map[string]any,
// []any, bool, string, float64 or integer kinds, and nil. Structs and
// other types go through their JSON encoding.
func normalize(v any) any {
	switch t := v.(type) {
	case nil, bool, string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			out := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				out[iter.Key().String()] = normalize(iter.Value().Interface())
			}
			return out
		}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

func isInteger(v any) bool {
	switch t := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case json.Number:
		_, err := strconv.ParseInt(string(t), 10, 64)
		return err == nil
	}
	f, ok := asFloat(v)
	return ok && !math.IsInf(f, 0) && f == math.Trunc(f)
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return reflect.ValueOf(t).Convert(reflect.TypeOf(float64(0))).Float(), true
	}
	return 0, false
}
