// Package smt defines the solver surface the engine drives and provides
// two backends: a propositional one over the gini SAT solver (used for
// the abstract context) and a precise one over Z3 (used for the path
// context).
package smt

import (
	"github.com/fshaked/seahorn/expr"
)

// Result is the tri-valued solver outcome, following gini's convention:
// 1 is SAT, -1 is UNSAT, 0 is unknown.
type Result int

const (
	Unsat   Result = -1
	Unknown Result = 0
	Sat     Result = 1
)

func (r Result) String() string {
	switch r {
	case Sat:
		return "sat"
	case Unsat:
		return "unsat"
	}
	return "unknown"
}

// Model maps expressions to values (true, false or an integer literal)
// under a satisfying assignment. Eval reports false when the model does
// not determine the expression.
type Model interface {
	Eval(e *expr.Expr) (*expr.Expr, bool)
}

// Solver is the engine-facing solver contract. Assertions accumulate
// until Reset. Solve never panics on unknown; it reports it.
type Solver interface {
	Reset()
	Assert(e *expr.Expr) error
	Solve() Result
	Model() (Model, error)

	// UnsatCore computes an unsat core of f alone, as if the context
	// had been reset and f assumed. The second result is false when
	// the backend has no native core facility.
	UnsatCore(f []*expr.Expr) ([]*expr.Expr, bool)
}

// evalBool structurally evaluates the boolean skeleton of e, reading
// atoms through atom. Used by both backend models: abstract models only
// assign atoms, but the engine also evaluates edge conjunctions and
// clause antecedents.
func evalBool(e *expr.Expr, atom func(*expr.Expr) (bool, bool)) (bool, bool) {
	switch e.Kind() {
	case expr.True:
		return true, true
	case expr.False:
		return false, true
	case expr.Sym:
		if e.Sort() == expr.SortBool {
			return atom(e)
		}
		return false, false
	case expr.Tuple:
		return atom(e)
	case expr.Not:
		v, ok := evalBool(e.Arg(0), atom)
		return !v, ok
	case expr.And:
		for _, a := range e.Args() {
			v, ok := evalBool(a, atom)
			if !ok {
				return false, false
			}
			if !v {
				return false, true
			}
		}
		return true, true
	case expr.Or:
		for _, a := range e.Args() {
			v, ok := evalBool(a, atom)
			if !ok {
				return false, false
			}
			if v {
				return true, true
			}
		}
		return false, true
	case expr.Implies:
		av, ok := evalBool(e.Arg(0), atom)
		if !ok {
			return false, false
		}
		if !av {
			return true, true
		}
		return evalBool(e.Arg(1), atom)
	case expr.Iff, expr.Eq:
		if e.Arg(0).Sort() != expr.SortBool {
			return false, false
		}
		av, aok := evalBool(e.Arg(0), atom)
		bv, bok := evalBool(e.Arg(1), atom)
		return av == bv, aok && bok
	case expr.Xor:
		av, aok := evalBool(e.Arg(0), atom)
		bv, bok := evalBool(e.Arg(1), atom)
		return av != bv, aok && bok
	}
	return false, false
}
