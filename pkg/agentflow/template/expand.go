package template

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)*)\}`)

// Source resolves variable names.
type Source interface {
	Lookup(key string) (any, bool)
}

// Map is a Source backed by a map.
type Map map[string]any

// Lookup implements Source.
func (m Map) Lookup(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

// MissingAction controls what happens to unresolved placeholders.
type MissingAction int

const (
	// MissingKeep leaves the placeholder text in place.
	MissingKeep MissingAction = iota

	// MissingEmpty replaces the placeholder with an empty string.
	MissingEmpty

	// MissingError fails expansion with an *UndefinedVariableError.
	MissingError
)

// UndefinedVariableError lists placeholders that did not resolve.
type UndefinedVariableError struct {
	Names []string
}

func (e *UndefinedVariableError) Error() string {
	return "undefined variable: " + strings.Join(e.Names, ", ")
}

// Option configures an Expander.
type Option func(*Expander)

// WithMissing sets the MissingAction.
func WithMissing(action MissingAction) Option {
	return func(e *Expander) { e.missing = action }
}

// Expander expands placeholders.
type Expander struct {
	missing MissingAction
}

// NewExpander creates an Expander. The default MissingAction is MissingKeep.
func NewExpander(opts ...Option) *Expander {
	e := &Expander{missing: MissingKeep}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand expands every placeholder in s.
func (e *Expander) Expand(s string, src Source) (string, error) {
	v, err := e.expandString(s, src, false)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// ExpandValue walks strings, maps and slices and expands every string it finds.
// The input is not modified.
func (e *Expander) ExpandValue(v any, src Source) (any, error) {
	switch val := v.(type) {
	case string:
		return e.expandString(val, src, true)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			expanded, err := e.ExpandValue(item, src)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = expanded
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			expanded, err := e.ExpandValue(item, src)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = expanded
		}
		return out, nil
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			expanded, err := e.Expand(item, src)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = expanded
		}
		return out, nil
	default:
		return v, nil
	}
}

// ExpandMap is ExpandValue for the common map case.
func (e *Expander) ExpandMap(m map[string]any, src Source) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	v, err := e.ExpandValue(m, src)
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

func (e *Expander) expandString(s string, src Source, raw bool) (any, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}

	if raw {
		if loc := placeholder.FindStringSubmatchIndex(s); loc != nil && loc[0] == 0 && loc[1] == len(s) {
			if v, ok := lookup(src, s[loc[2]:loc[3]]); ok {
				return v, nil
			}
		}
	}

	var missing []string
	out := placeholder.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if v, ok := lookup(src, name); ok {
			return fmt.Sprint(v)
		}
		switch e.missing {
		case MissingEmpty:
			return ""
		case MissingError:
			missing = append(missing, name)
		}
		return match
	})
	if len(missing) > 0 {
		return nil, &UndefinedVariableError{Names: missing}
	}
	return out, nil
}

func lookup(src Source, name string) (any, bool) {
	if src == nil {
		return nil, false
	}
	parts := strings.Split(name, ".")
	cur, ok := src.Lookup(parts[0])
	if !ok {
		return nil, false
	}
	for _, field := range parts[1:] {
		m, isMap := cur.(map[string]any)
		if !isMap {
			return nil, false
		}
		if cur, ok = m[field]; !ok {
			return nil, false
		}
	}
	return cur, true
}

var defaultExpander = NewExpander()

// Expand expands s with the default expander, keeping unresolved placeholders.
func Expand(s string, vars map[string]any) string {
	out, _ := defaultExpander.Expand(s, Map(vars))
	return out
}
