package tools

import (
	"context"
	"fmt"

	fgerrors "github.com/randalmurphal/agentflow/pkg/agentflow/errors"
	"github.com/randalmurphal/agentflow/pkg/agentflow/flowctx"
	"github.com/randalmurphal/agentflow/pkg/agentflow/message"
)

// Port describes one tool input or output.
type Port struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type,omitempty" json:"type,omitempty"`
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Manifest describes a tool.
type Manifest struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Inputs      []Port         `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs     []Port         `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Defaults    map[string]any `yaml:"defaults,omitempty" json:"defaults,omitempty"`

	// Resources are checked out, in order, around every attempt.
	Resources []string `yaml:"resources,omitempty" json:"resources,omitempty"`
}

// CheckInput returns a *errors.ValidationError for the first required
// input missing from in.
func (m Manifest) CheckInput(in map[string]any) error {
	for _, p := range m.Inputs {
		if !p.Required {
			continue
		}
		if v, ok := in[p.Name]; !ok || v == nil {
			return &fgerrors.ValidationError{
				Field:   p.Name,
				Message: fmt.Sprintf("required by tool %s", m.Name),
			}
		}
	}
	return nil
}

// Invocation is a single call to a tool.
type Invocation struct {
	Tool     string
	Pipeline string
	Step     string
	Attempt  int
	Input    map[string]any
}

// Tool is an external capability. Call must honor ctx cancellation.
// Returning a nil message yields an empty tool message.
type Tool interface {
	Manifest() Manifest
	Call(ctx context.Context, inv Invocation, view *flowctx.View) (*message.Message, error)
}

// CallFunc is the signature of Func's call.
type CallFunc func(ctx context.Context, inv Invocation, view *flowctx.View) (*message.Message, error)

// Func adapts a function to Tool.
type Func struct {
	Spec Manifest
	Fn   CallFunc
}

var _ Tool = (*Func)(nil)

// NewFunc wraps fn as a tool named name.
func NewFunc(name string, fn CallFunc) *Func {
	return &Func{Spec: Manifest{Name: name}, Fn: fn}
}

// Manifest implements Tool.
func (f *Func) Manifest() Manifest { return f.Spec }

// Call implements Tool.
func (f *Func) Call(ctx context.Context, inv Invocation, view *flowctx.View) (*message.Message, error) {
	return f.Fn(ctx, inv, view)
}
