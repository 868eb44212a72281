package tools

import (
	"errors"
	"fmt"

	fgerrors "github.com/randalmurphal/agentflow/pkg/agentflow/errors"
)

var (
	// ErrToolExecutionFailed matches every *ToolError via errors.Is.
	ErrToolExecutionFailed = errors.New("tool execution failed")

	// ErrUnknownTool is returned for names that match no tool or pipeline.
	ErrUnknownTool = errors.New("unknown tool")
)

// ErrorKind classifies a tool failure.
type ErrorKind string

const (
	KindTimeout   ErrorKind = "timeout"
	KindTransient ErrorKind = "transient"
	KindPermanent ErrorKind = "permanent"
)

func kindOf(err error) ErrorKind {
	var te *fgerrors.TimeoutError
	switch {
	case errors.As(err, &te):
		return KindTimeout
	case fgerrors.IsRetryable(err):
		return KindTransient
	default:
		return KindPermanent
	}
}

// ToolError reports a step that failed after its retries.
type ToolError struct {
	Pipeline string
	Step     string
	Tool     string
	Kind     ErrorKind
	Attempts int
	Err      error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s (pipeline %s, step %s) failed after %d attempt(s) [%s]: %v",
		e.Tool, e.Pipeline, e.Step, e.Attempts, e.Kind, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Is matches ErrToolExecutionFailed.
func (e *ToolError) Is(target error) bool { return target == ErrToolExecutionFailed }

// StepFailure records a step that failed, including ones a Fallback or
// Aggregator recovered from.
type StepFailure struct {
	Pipeline string
	Step     string
	Tool     string
	Attempts int
	Err      error
}
