// Package semantic implements the name-resolution and arity pass (C1): the
// gate that runs before any lowering or typestate work. It is modeled on
// original_source/src/analysis/semantic.rs's scope-cloning walk and on the
// teacher's "collect everything, report once" error style.
package semantic

import (
	"fmt"

	"peritc/internal/frontend"
)

// ErrorKind discriminates the four C1 error varieties named in spec.md §4.1.
type ErrorKind int

const (
	UndefinedVariable ErrorKind = iota
	UndefinedFunction
	ArityMismatch
	DuplicateFunction
)

// Error is a single semantic-check finding. One-line rendering matches
// spec.md's wording ("Duplicate function definition 'g'" etc).
type Error struct {
	Kind     ErrorKind
	Function string
	Name     string
	Expected int
	Actual   int
}

func (e *Error) Error() string {
	switch e.Kind {
	case UndefinedVariable:
		return fmt.Sprintf("Undefined variable '%s' in function '%s'", e.Name, e.Function)
	case UndefinedFunction:
		return fmt.Sprintf("Undefined function '%s' called from '%s'", e.Name, e.Function)
	case ArityMismatch:
		return fmt.Sprintf("Arity mismatch calling '%s' from '%s': expected %d argument(s), got %d", e.Name, e.Function, e.Expected, e.Actual)
	case DuplicateFunction:
		return fmt.Sprintf("Duplicate function definition '%s'", e.Name)
	default:
		return "unknown semantic error"
	}
}

// scope is a set of names visible at a point in the program. If/While
// bodies check against a clone so bindings introduced inside don't escape.
type scope map[string]bool

func (s scope) clone() scope {
	c := make(scope, len(s))
	for k := range s {
		c[k] = true
	}
	return c
}

// Check runs C1 over the whole program, accumulating every error found
// before returning (spec.md §4.1 Completeness) rather than stopping at the
// first failure.
func Check(prog *frontend.Program) []error {
	var errs []error

	arities := map[string]int{}
	for _, fn := range prog.Functions {
		arities[fn.Name] = len(fn.Params)
	}

	seen := map[string]bool{}
	for _, fn := range prog.Functions {
		if seen[fn.Name] {
			errs = append(errs, &Error{Kind: DuplicateFunction, Name: fn.Name})
		}
		seen[fn.Name] = true

		c := &checker{prog: prog, arities: arities, fnName: fn.Name}
		s := scope{}
		for _, param := range fn.Params {
			s[param.Name] = true
		}
		c.checkBlock(fn.Body, s)
		errs = append(errs, c.errs...)
	}

	return errs
}

type checker struct {
	prog    *frontend.Program
	arities map[string]int
	fnName  string
	errs    []error
}

func (c *checker) checkBlock(stmts []frontend.Statement, s scope) {
	for _, stmt := range stmts {
		c.checkStatement(stmt, s)
	}
}

func (c *checker) checkStatement(stmt frontend.Statement, s scope) {
	switch st := stmt.(type) {
	case *frontend.LetStmt:
		c.checkExpr(st.Value, s)
		s[st.VarName] = true
	case *frontend.AssignStmt:
		c.checkExpr(st.Value, s)
		if !s[st.VarName] {
			c.errs = append(c.errs, &Error{Kind: UndefinedVariable, Function: c.fnName, Name: st.VarName})
		}
	case *frontend.ExprStmt:
		c.checkExpr(st.Value, s)
	case *frontend.IfStmt:
		c.checkExpr(st.Cond, s)
		c.checkBlock(st.ThenBlock, s.clone())
		if st.ElseBlock != nil {
			c.checkBlock(st.ElseBlock, s.clone())
		}
	case *frontend.WhileStmt:
		c.checkExpr(st.Cond, s)
		c.checkBlock(st.Body, s.clone())
	case *frontend.ReturnStmt:
		if st.Value != nil {
			c.checkExpr(st.Value, s)
		}
	case *frontend.PeripheralWriteStmt:
		c.checkExpr(st.Value, s)
	}
}

func (c *checker) checkExpr(expr frontend.Expr, s scope) {
	switch e := expr.(type) {
	case *frontend.IntLit:
		// no names
	case *frontend.Variable:
		if !s[e.Name] {
			c.errs = append(c.errs, &Error{Kind: UndefinedVariable, Function: c.fnName, Name: e.Name})
		}
	case *frontend.FnCall:
		for _, arg := range e.Args {
			c.checkExpr(arg, s)
		}
		expected, ok := c.arities[e.Name]
		if !ok {
			c.errs = append(c.errs, &Error{Kind: UndefinedFunction, Function: c.fnName, Name: e.Name})
			return
		}
		if expected != len(e.Args) {
			c.errs = append(c.errs, &Error{Kind: ArityMismatch, Function: c.fnName, Name: e.Name, Expected: expected, Actual: len(e.Args)})
		}
	case *frontend.PeripheralRead:
		// peripheral/register resolution is not C1's concern (spec.md §4.1
		// only lists variable/function/arity/duplicate checks); unknown
		// peripherals surface later as lowering or typestate errors.
	case *frontend.Unary:
		c.checkExpr(e.Operand, s)
	case *frontend.Binary:
		c.checkExpr(e.Left, s)
		c.checkExpr(e.Right, s)
	}
}
