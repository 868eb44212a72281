package expr

import (
	"errors"
	"fmt"
)

var (
	// ErrSyntax is returned when an expression cannot be parsed.
	ErrSyntax = errors.New("expr: syntax error")

	// ErrUnknownOperator is returned for operators with no implementation.
	ErrUnknownOperator = errors.New("expr: unknown operator")
)

// BinaryOp is a custom comparison operator.
type BinaryOp func(left, right any) bool

// Evaluator compiles and evaluates expressions, optionally with custom operators.
type Evaluator struct {
	customOps map[string]BinaryOp
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCustomOperator registers a word operator such as "matches".
func WithCustomOperator(name string, fn BinaryOp) Option {
	return func(e *Evaluator) {
		if e.customOps == nil {
			e.customOps = make(map[string]BinaryOp)
		}
		e.customOps[name] = fn
	}
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Program is a parsed expression. It is immutable and safe for concurrent use.
type Program struct {
	src  string
	root node
	ev   *Evaluator
}

// Compile parses src.
func (e *Evaluator) Compile(src string) (*Program, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	if len(toks) == 1 {
		return nil, fmt.Errorf("%w: empty expression", ErrSyntax)
	}
	p := &parser{toks: toks, custom: e.customOps}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, t.text, t.pos)
	}
	return &Program{src: src, root: root, ev: e}, nil
}

// Evaluate compiles and runs src in one step.
func (e *Evaluator) Evaluate(src string, vars map[string]any) (bool, error) {
	prog, err := e.Compile(src)
	if err != nil {
		return false, err
	}
	return prog.Eval(Map(vars))
}

// Eval evaluates the program and reports its truthiness.
func (p *Program) Eval(vars Vars) (bool, error) {
	v, err := p.root.eval(p.ev, vars)
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", p.src, err)
	}
	return IsTruthy(v), nil
}

// String returns the source text.
func (p *Program) String() string { return p.src }

// Compile parses src with the default evaluator.
func Compile(src string) (*Program, error) {
	return New().Compile(src)
}

// Eval evaluates src against vars with the default evaluator.
func Eval(src string, vars map[string]any) (bool, error) {
	return New().Evaluate(src, vars)
}
