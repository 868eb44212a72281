package tools

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/randalmurphal/agentflow/pkg/agentflow/message"
)

// Strategy combines a pipeline's steps.
type Strategy int

const (
	// Sequential runs steps in order and stops at the first failure.
	Sequential Strategy = iota

	// Parallel runs steps concurrently. All must succeed unless the
	// pipeline has an Aggregator.
	Parallel

	// Fallback tries steps in order and returns the first success.
	Fallback
)

func (s Strategy) String() string {
	switch s {
	case Sequential:
		return "sequential"
	case Parallel:
		return "parallel"
	case Fallback:
		return "fallback"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy converts a strategy name. The empty string is Sequential.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(s) {
	case "", "sequential":
		return Sequential, nil
	case "parallel":
		return Parallel, nil
	case "fallback":
		return Fallback, nil
	}
	return 0, fmt.Errorf("unknown strategy %q", s)
}

// Step is one node of the strategy tree: either a tool call or a nested pipeline.
type Step struct {
	Name  string
	Tool  string
	Input map[string]any

	// Timeout bounds each attempt. Zero falls back to the default timeout of
	// the tool's first resource that declares one, else no timeout.
	Timeout time.Duration

	// Retries is the number of extra attempts on transient failure.
	Retries int

	// Pipeline, when set, replaces Tool.
	Pipeline *Pipeline
}

func (s Step) label() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Tool != "":
		return s.Tool
	case s.Pipeline != nil:
		return s.Pipeline.Name
	}
	return "<unnamed>"
}

// StepOutput is one parallel step's outcome, in step order.
type StepOutput struct {
	Step    string
	Message *message.Message
	Err     error
}

// Aggregator combines parallel step outcomes. Its presence allows partial
// success: failed steps arrive with Err set instead of failing the pipeline.
type Aggregator func(outputs []StepOutput) (*message.Message, error)

// Pipeline is a named composition of steps.
type Pipeline struct {
	Name       string
	Strategy   Strategy
	Steps      []Step
	Aggregator Aggregator
}

// ErrInvalidPipeline is wrapped by structural pipeline errors.
var ErrInvalidPipeline = errors.New("invalid pipeline")

// Validate checks the pipeline's structure, recursing into nested pipelines.
func (p *Pipeline) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidPipeline)
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("%w: %s has no steps", ErrInvalidPipeline, p.Name)
	}
	var errs []error
	for i, s := range p.Steps {
		switch {
		case s.Tool == "" && s.Pipeline == nil:
			errs = append(errs, fmt.Errorf("%w: %s step %d names no tool", ErrInvalidPipeline, p.Name, i))
		case s.Tool != "" && s.Pipeline != nil:
			errs = append(errs, fmt.Errorf("%w: %s step %s has both tool and pipeline", ErrInvalidPipeline, p.Name, s.label()))
		case s.Retries < 0:
			errs = append(errs, fmt.Errorf("%w: %s step %s has negative retries", ErrInvalidPipeline, p.Name, s.label()))
		case s.Pipeline != nil:
			if err := s.Pipeline.Validate(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// toolNames lists every tool referenced in the tree.
func (p *Pipeline) toolNames() []string {
	var out []string
	for _, s := range p.Steps {
		if s.Pipeline != nil {
			out = append(out, s.Pipeline.toolNames()...)
			continue
		}
		out = append(out, s.Tool)
	}
	return out
}
