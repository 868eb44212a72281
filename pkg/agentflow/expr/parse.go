package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// node is an evaluable piece of a compiled expression.
type node interface {
	eval(e *Evaluator, vars Vars) (any, error)
}

type literal struct{ value any }

type pathRef struct{ path []string }

type notExpr struct{ operand node }

type logicalExpr struct {
	and         bool
	left, right node
}

type compareExpr struct {
	op          string
	left, right node
}

type parser struct {
	toks   []token
	pos    int
	custom map[string]BinaryOp
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("or", "||") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &logicalExpr{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("and", "&&") {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &logicalExpr{and: true, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.isKeyword("not", "!") {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notExpr{operand: operand}, nil
	}
	return p.parseCompare()
}

func (p *parser) parseCompare() (node, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	var op string
	switch {
	case t.kind == tokOp && t.text != "&&" && t.text != "||" && t.text != "!":
		op = t.text
	case t.kind == tokIdent && t.text == "contains":
		op = t.text
	case t.kind == tokIdent && p.custom[t.text] != nil:
		op = t.text
	default:
		return left, nil
	}
	p.next()
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return &compareExpr{op: op, left: left, right: right}, nil
}

func (p *parser) parseOperand() (node, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return &literal{value: t.text}, nil
	case tokNumber:
		if i, err := strconv.ParseInt(t.text, 10, 64); err == nil {
			return &literal{value: i}, nil
		}
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad number %q at %d", ErrSyntax, t.text, t.pos)
		}
		return &literal{value: f}, nil
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, fmt.Errorf("%w: missing ')' for '(' at %d", ErrSyntax, t.pos)
		}
		return inner, nil
	case tokIdent:
		switch strings.ToLower(t.text) {
		case "true":
			return &literal{value: true}, nil
		case "false":
			return &literal{value: false}, nil
		case "null", "nil":
			return &literal{value: nil}, nil
		case "and", "or", "not", "contains":
			return nil, fmt.Errorf("%w: unexpected keyword %q at %d", ErrSyntax, t.text, t.pos)
		}
		return &pathRef{path: strings.Split(t.text, ".")}, nil
	case tokEOF:
		return nil, fmt.Errorf("%w: unexpected end of expression", ErrSyntax)
	default:
		return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, t.text, t.pos)
	}
}

func (p *parser) isKeyword(words ...string) bool {
	t := p.peek()
	if t.kind != tokIdent && t.kind != tokOp {
		return false
	}
	for _, w := range words {
		if t.text == w {
			return true
		}
	}
	return false
}

func (l *literal) eval(_ *Evaluator, _ Vars) (any, error) { return l.value, nil }

func (r *pathRef) eval(_ *Evaluator, vars Vars) (any, error) {
	return resolvePath(vars, r.path), nil
}

func (n *notExpr) eval(e *Evaluator, vars Vars) (any, error) {
	v, err := n.operand.eval(e, vars)
	if err != nil {
		return nil, err
	}
	return !IsTruthy(v), nil
}

func (l *logicalExpr) eval(e *Evaluator, vars Vars) (any, error) {
	left, err := l.left.eval(e, vars)
	if err != nil {
		return nil, err
	}
	if l.and && !IsTruthy(left) {
		return false, nil
	}
	if !l.and && IsTruthy(left) {
		return true, nil
	}
	right, err := l.right.eval(e, vars)
	if err != nil {
		return nil, err
	}
	return IsTruthy(right), nil
}

func (c *compareExpr) eval(e *Evaluator, vars Vars) (any, error) {
	left, err := c.left.eval(e, vars)
	if err != nil {
		return nil, err
	}
	right, err := c.right.eval(e, vars)
	if err != nil {
		return nil, err
	}
	if fn, ok := e.customOps[c.op]; ok {
		return fn(left, right), nil
	}
	return Compare(left, right, c.op)
}
