package bmc

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fshaked/seahorn/expr"
	"github.com/fshaked/seahorn/smt"
)

// MUCMethod selects the minimal-unsat-core strategy. The set is
// closed, so the strategies are a tagged variant rather than open
// polymorphism.
type MUCMethod int

const (
	MUCAssumptions MUCMethod = iota
	MUCNaive
	MUCBinarySearch
)

// binarySearchThreshold is the formula size at or below which the
// binary search strategy hands over to the naive one.
const binarySearchThreshold = 10

func (m MUCMethod) String() string {
	switch m {
	case MUCAssumptions:
		return "assumptions"
	case MUCNaive:
		return "naive"
	case MUCBinarySearch:
		return "binary-search"
	}
	return "unknown"
}

// ParseMUCMethod parses the flag/config spelling of a strategy.
func ParseMUCMethod(s string) (MUCMethod, error) {
	switch s {
	case "assumptions", "":
		return MUCAssumptions, nil
	case "naive":
		return MUCNaive, nil
	case "binary-search":
		return MUCBinarySearch, nil
	}
	return 0, errors.Errorf("unknown MUC method %q", s)
}

// muc computes minimal unsatisfiable cores over an SMT context. The
// context is reset on every check; previous assertions do not persist.
type muc struct {
	method MUCMethod
	solver smt.Solver
	log    *logrus.Entry
	calls  int
}

func newMUC(method MUCMethod, solver smt.Solver, log *logrus.Entry) *muc {
	return &muc{method: method, solver: solver, log: log}
}

// Run returns a core C ⊆ f with ⋀C unsat and every proper subset sat.
// f must already be unsat in conjunction. The relative order of
// surviving clauses is preserved. Under MUCAssumptions, a backend with
// native cores supplies the core as is: it is unsat but not checked
// for minimality.
func (m *muc) Run(f []*expr.Expr) ([]*expr.Expr, error) {
	var core []*expr.Expr
	var err error
	switch m.method {
	case MUCAssumptions:
		if c, ok := m.solver.UnsatCore(f); ok {
			m.calls++
			core = c
			break
		}
		m.log.Debug("solver has no native unsat cores, falling back to naive MUC")
		core, err = m.naive(f, nil)
	case MUCNaive:
		core, err = m.naive(f, nil)
	case MUCBinarySearch:
		core, err = m.binarySearch(f, nil)
	default:
		return nil, errors.Errorf("unknown MUC method %d", m.method)
	}
	if err != nil {
		return nil, err
	}
	m.log.WithFields(logrus.Fields{
		"method":       m.method,
		"solver_calls": m.calls,
		"core":         len(core),
	}).Debug("unsat core computed")
	return core, nil
}

func (m *muc) check(f, assumptions []*expr.Expr) (smt.Result, error) {
	m.solver.Reset()
	for _, e := range assumptions {
		if err := m.solver.Assert(e); err != nil {
			return smt.Unknown, err
		}
	}
	for _, e := range f {
		if err := m.solver.Assert(e); err != nil {
			return smt.Unknown, err
		}
	}
	m.calls++
	return m.solver.Solve(), nil
}

// naive is the quadratic deletion strategy: each clause is dropped in
// turn and restored only when the remainder turns satisfiable.
func (m *muc) naive(f, assumptions []*expr.Expr) ([]*expr.Expr, error) {
	out := make([]*expr.Expr, len(f))
	copy(out, f)
	for i := 0; i < len(out); {
		cand := make([]*expr.Expr, 0, len(out)-1)
		cand = append(cand, out[:i]...)
		cand = append(cand, out[i+1:]...)
		res, err := m.check(cand, assumptions)
		if err != nil {
			return nil, err
		}
		switch res {
		case smt.Sat:
			i++
		case smt.Unsat:
			out = cand
		default:
			return nil, errors.New("muc: solver returned unknown")
		}
	}
	return out, nil
}

// binarySearch splits the clause list in half: an unsat half is
// recursed into alone; when both halves are individually sat, each is
// minimized under the other.
func (m *muc) binarySearch(f, assumptions []*expr.Expr) ([]*expr.Expr, error) {
	if len(f) <= binarySearchThreshold {
		switch len(f) {
		case 0:
			return nil, nil
		case 1:
			return []*expr.Expr{f[0]}, nil
		}
		return m.naive(f, assumptions)
	}

	a, b := f[:len(f)/2], f[len(f)/2:]

	resA, err := m.check(a, assumptions)
	if err != nil {
		return nil, err
	}
	switch resA {
	case smt.Unsat:
		return m.binarySearch(a, assumptions)
	case smt.Unknown:
		return nil, errors.New("muc: solver returned unknown")
	}

	resB, err := m.check(b, assumptions)
	if err != nil {
		return nil, err
	}
	switch resB {
	case smt.Unsat:
		return m.binarySearch(b, assumptions)
	case smt.Unknown:
		return nil, errors.New("muc: solver returned unknown")
	}

	// both halves individually sat: minimize a under b, then b under
	// the a-core
	withB := append(append([]*expr.Expr{}, assumptions...), b...)
	coreA, err := m.binarySearch(a, withB)
	if err != nil {
		return nil, err
	}
	withCoreA := append(append([]*expr.Expr{}, assumptions...), coreA...)
	coreB, err := m.binarySearch(b, withCoreA)
	if err != nil {
		return nil, err
	}
	return append(coreA, coreB...), nil
}
