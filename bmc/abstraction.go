// Package bmc implements the path-based bounded model checking engine:
// a CEGAR loop enumerating boolean models of an over-approximating
// abstraction of the verification condition, refining each candidate
// path against the precise theory, and blocking refuted paths through
// minimal unsat cores projected onto control predicates.
package bmc

import (
	"github.com/pkg/errors"

	"github.com/fshaked/seahorn/expr"
)

// preNNF removes all boolean operators except AND/OR/NEG, bottom-up:
// implications, boolean if-then-else and iff are rewritten; xor is
// unsupported and fatal.
func preNNF(f *expr.Factory, e *expr.Expr) (*expr.Expr, error) {
	args := e.Args()
	var nargs []*expr.Expr
	if len(args) > 0 {
		nargs = make([]*expr.Expr, len(args))
		changed := false
		for i, a := range args {
			na, err := preNNF(f, a)
			if err != nil {
				return nil, err
			}
			nargs[i] = na
			if na != a {
				changed = true
			}
		}
		if changed {
			e = f.Remake(e, nargs)
		}
	}

	switch e.Kind() {
	case expr.Xor:
		return nil, errors.Errorf("unsupported expression in verification condition: %s", e)
	case expr.Implies:
		return f.OrN(f.Not(e.Arg(0)), e.Arg(1)), nil
	case expr.Iff:
		a, b := e.Arg(0), e.Arg(1)
		return f.AndN(f.OrN(f.Not(a), b), f.OrN(f.Not(b), a)), nil
	case expr.Ite:
		if e.Sort() != expr.SortBool {
			return e, nil
		}
		c, t, el := e.Arg(0), e.Arg(1), e.Arg(2)
		return f.OrN(f.AndN(c, t), f.AndN(f.Not(c), el)), nil
	}
	return e, nil
}

// skeleton extracts the boolean skeleton of an NNF formula: boolean
// literals and equalities between them survive, everything else is
// abstracted to true.
func skeleton(f *expr.Factory, e *expr.Expr) *expr.Expr {
	if e.IsPosBoolLit() {
		return e
	}
	switch e.Kind() {
	case expr.Not:
		if e.Arg(0).IsPosBoolLit() {
			return e
		}
		return f.True()
	case expr.And:
		args := make([]*expr.Expr, len(e.Args()))
		for i, a := range e.Args() {
			args[i] = skeleton(f, a)
		}
		return f.AndN(args...)
	case expr.Or:
		args := make([]*expr.Expr, len(e.Args()))
		for i, a := range e.Args() {
			args[i] = skeleton(f, a)
		}
		return f.OrN(args...)
	case expr.Eq, expr.Iff:
		if e.Arg(0).IsBoolLit() && e.Arg(1).IsBoolLit() {
			return e
		}
	}
	return f.True()
}

// boolAbstract abstracts a single formula: pre-NNF, NNF, skeleton.
func boolAbstract(f *expr.Factory, e *expr.Expr) (*expr.Expr, error) {
	pre, err := preNNF(f, e)
	if err != nil {
		return nil, err
	}
	return skeleton(f, f.NNF(pre)), nil
}

// BoolAbstraction abstracts each clause of side, dropping the clauses
// that abstract to true. Order is preserved, and every model of side
// induces a model of the result.
func BoolAbstraction(f *expr.Factory, side []*expr.Expr) ([]*expr.Expr, error) {
	abs := make([]*expr.Expr, 0, len(side))
	for _, e := range side {
		b, err := boolAbstract(f, e)
		if err != nil {
			return nil, err
		}
		if b.Kind() != expr.True {
			abs = append(abs, b)
		}
	}
	return abs, nil
}
