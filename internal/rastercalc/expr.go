// Package rastercalc evaluates band arithmetic such as "(B08-B04)/(B08+B04)"
// pixel by pixel. Expressions are parsed with go/parser and restricted to
// numbers, band names, arithmetic, comparisons and a few functions; nothing
// else is accepted.
package rastercalc

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"sort"
	"strconv"
)

// Expr is a parsed expression, safe to evaluate concurrently.
type Expr struct {
	src  string
	root node
	vars []string
}

type node interface {
	at(i int, vars map[string][]float64) float64
}

type (
	number float64
	ident  string
	unary  struct {
		op token.Token
		x  node
	}
	binary struct {
		op   token.Token
		x, y node
	}
	call struct {
		fn   string
		args []node
	}
)

// functions maps the callable names to their accepted argument counts; -2
// means two or more.
var functions = map[string]int{
	"abs":   1,
	"sqrt":  1,
	"min":   -2,
	"max":   -2,
	"where": 3,
}

func Parse(src string) (*Expr, error) {
	tree, err := parser.ParseExpr(src)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", src, err)
	}
	c := &compiler{src: src, seen: map[string]bool{}}
	root, err := c.compile(tree)
	if err != nil {
		return nil, err
	}
	vars := make([]string, 0, len(c.seen))
	for v := range c.seen {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return &Expr{src: src, root: root, vars: vars}, nil
}

func (e *Expr) String() string {
	return e.src
}

// Variables lists the band names the expression refers to, sorted.
func (e *Expr) Variables() []string {
	return append([]string(nil), e.vars...)
}

// Eval computes the expression for every pixel. All referenced variables
// must be present and of equal length. Division by zero yields 0.
func (e *Expr) Eval(vars map[string][]float64) ([]float64, error) {
	n := -1
	for _, name := range e.vars {
		values, ok := vars[name]
		if !ok {
			return nil, fmt.Errorf("%q: no band named %s", e.src, name)
		}
		if n >= 0 && len(values) != n {
			return nil, fmt.Errorf("%q: band %s has %d pixels, expected %d", e.src, name, len(values), n)
		}
		n = len(values)
	}
	if n < 0 {
		n = 1 // constant expression
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = e.root.at(i, vars)
	}
	return out, nil
}

type compiler struct {
	src  string
	seen map[string]bool
}

func (c *compiler) errorf(pos token.Pos, format string, args ...any) error {
	return fmt.Errorf("%q at offset %d: %s", c.src, int(pos)-1, fmt.Sprintf(format, args...))
}

func (c *compiler) compile(e ast.Expr) (node, error) {
	switch e := e.(type) {
	case *ast.BasicLit:
		if e.Kind != token.INT && e.Kind != token.FLOAT {
			return nil, c.errorf(e.Pos(), "unsupported literal %s", e.Value)
		}
		v, err := strconv.ParseFloat(e.Value, 64)
		if err != nil {
			return nil, c.errorf(e.Pos(), "bad number %s", e.Value)
		}
		return number(v), nil

	case *ast.Ident:
		if _, ok := functions[e.Name]; ok {
			return nil, c.errorf(e.Pos(), "%s used as a band name", e.Name)
		}
		c.seen[e.Name] = true
		return ident(e.Name), nil

	case *ast.ParenExpr:
		return c.compile(e.X)

	case *ast.UnaryExpr:
		switch e.Op {
		case token.SUB, token.ADD, token.NOT:
		default:
			return nil, c.errorf(e.Pos(), "unsupported operator %s", e.Op)
		}
		x, err := c.compile(e.X)
		if err != nil {
			return nil, err
		}
		return unary{op: e.Op, x: x}, nil

	case *ast.BinaryExpr:
		switch e.Op {
		case token.ADD, token.SUB, token.MUL, token.QUO,
			token.LSS, token.LEQ, token.GTR, token.GEQ, token.EQL, token.NEQ,
			token.LAND, token.LOR:
		default:
			return nil, c.errorf(e.OpPos, "unsupported operator %s", e.Op)
		}
		x, err := c.compile(e.X)
		if err != nil {
			return nil, err
		}
		y, err := c.compile(e.Y)
		if err != nil {
			return nil, err
		}
		return binary{op: e.Op, x: x, y: y}, nil

	case *ast.CallExpr:
		fn, ok := e.Fun.(*ast.Ident)
		if !ok {
			return nil, c.errorf(e.Pos(), "unsupported call")
		}
		arity, ok := functions[fn.Name]
		if !ok {
			return nil, c.errorf(fn.Pos(), "unknown function %s", fn.Name)
		}
		if (arity > 0 && len(e.Args) != arity) || (arity == -2 && len(e.Args) < 2) || e.Ellipsis.IsValid() {
			return nil, c.errorf(fn.Pos(), "wrong number of arguments to %s", fn.Name)
		}
		args := make([]node, len(e.Args))
		for i, a := range e.Args {
			n, err := c.compile(a)
			if err != nil {
				return nil, err
			}
			args[i] = n
		}
		return call{fn: fn.Name, args: args}, nil
	}
	return nil, c.errorf(e.Pos(), "unsupported expression")
}

func truth(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (n number) at(int, map[string][]float64) float64 { return float64(n) }

func (n ident) at(i int, vars map[string][]float64) float64 { return vars[string(n)][i] }

func (n unary) at(i int, vars map[string][]float64) float64 {
	x := n.x.at(i, vars)
	switch n.op {
	case token.SUB:
		return -x
	case token.NOT:
		return truth(x == 0)
	}
	return x
}

func (n binary) at(i int, vars map[string][]float64) float64 {
	x, y := n.x.at(i, vars), n.y.at(i, vars)
	switch n.op {
	case token.ADD:
		return x + y
	case token.SUB:
		return x - y
	case token.MUL:
		return x * y
	case token.QUO:
		if y == 0 {
			return 0
		}
		return x / y
	case token.LSS:
		return truth(x < y)
	case token.LEQ:
		return truth(x <= y)
	case token.GTR:
		return truth(x > y)
	case token.GEQ:
		return truth(x >= y)
	case token.EQL:
		return truth(x == y)
	case token.NEQ:
		return truth(x != y)
	case token.LAND:
		return truth(x != 0 && y != 0)
	case token.LOR:
		return truth(x != 0 || y != 0)
	}
	panic("rastercalc: unhandled operator " + n.op.String())
}

func (n call) at(i int, vars map[string][]float64) float64 {
	switch n.fn {
	case "abs":
		return math.Abs(n.args[0].at(i, vars))
	case "sqrt":
		return math.Sqrt(n.args[0].at(i, vars))
	case "min", "max":
		v := n.args[0].at(i, vars)
		for _, a := range n.args[1:] {
			if n.fn == "min" {
				v = math.Min(v, a.at(i, vars))
			} else {
				v = math.Max(v, a.at(i, vars))
			}
		}
		return v
	case "where":
		if n.args[0].at(i, vars) != 0 {
			return n.args[1].at(i, vars)
		}
		return n.args[2].at(i, vars)
	}
	panic("rastercalc: unhandled function " + n.fn)
}
