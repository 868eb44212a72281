package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// FromFile loads a workflow, detecting the format by extension.
// Supported extensions: .yaml, .yml, .json
func FromFile(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return nil, fmt.Errorf("unsupported workflow file extension: %s", ext)
	}
}

// FromYAML parses a YAML workflow.
func FromYAML(data []byte) (*Workflow, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return Decode(m)
}

// FromJSON parses a JSON workflow.
func FromJSON(data []byte) (*Workflow, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return Decode(m)
}

// Decode converts a generic document into a Workflow. Unknown keys are
// rejected so typos surface at load time instead of as silent defaults.
func Decode(raw map[string]any) (*Workflow, error) {
	var w Workflow
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			conditionShorthandHook,
			mapstructure.StringToTimeDurationHookFunc(),
		),
		ErrorUnused: true,
		Result:      &w,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode workflow: %w", err)
	}
	return &w, nil
}

var conditionType = reflect.TypeOf(ConditionDef{})

// conditionShorthandHook accepts a bare string wherever a condition is
// expected and treats it as an expression: `when: "count < 3"`.
func conditionShorthandHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	if to != conditionType && to != reflect.PointerTo(conditionType) {
		return data, nil
	}
	return map[string]any{"kind": "expr", "expr": data}, nil
}
