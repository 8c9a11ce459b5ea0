package smt

import (
	"github.com/go-air/gini"
	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"
	"github.com/pkg/errors"

	"github.com/fshaked/seahorn/expr"
)

// SatSolver decides purely propositional formulas with gini. The
// abstract context of the engine is propositional by construction, so
// this backend carries it without any theory machinery. Formulas are
// lowered into a shared strashed circuit; each Solve call Tseitinizes
// the asserted roots into a fresh gini instance.
type SatSolver struct {
	f     *expr.Factory
	c     *logic.C
	atoms map[*expr.Expr]z.Lit
	roots []z.Lit

	last    *gini.Gini
	lastRes Result
}

func NewSatSolver(f *expr.Factory) *SatSolver {
	return &SatSolver{
		f:     f,
		c:     logic.NewC(),
		atoms: make(map[*expr.Expr]z.Lit),
	}
}

func (s *SatSolver) Reset() {
	s.roots = nil
	s.last = nil
	s.lastRes = Unknown
}

func (s *SatSolver) Assert(e *expr.Expr) error {
	m, err := s.lower(e)
	if err != nil {
		return err
	}
	s.roots = append(s.roots, m)
	return nil
}

func (s *SatSolver) atom(e *expr.Expr) z.Lit {
	if m, ok := s.atoms[e]; ok {
		return m
	}
	m := s.c.Lit()
	s.atoms[e] = m
	return m
}

func (s *SatSolver) lower(e *expr.Expr) (z.Lit, error) {
	switch e.Kind() {
	case expr.True:
		return s.c.T, nil
	case expr.False:
		return s.c.F, nil
	case expr.Sym:
		if e.Sort() != expr.SortBool {
			return 0, errors.Errorf("sat: non-propositional atom %s", e)
		}
		return s.atom(e), nil
	case expr.Tuple:
		return s.atom(e), nil
	case expr.Not:
		m, err := s.lower(e.Arg(0))
		if err != nil {
			return 0, err
		}
		return m.Not(), nil
	case expr.And, expr.Or:
		ms := make([]z.Lit, len(e.Args()))
		for i, a := range e.Args() {
			m, err := s.lower(a)
			if err != nil {
				return 0, err
			}
			ms[i] = m
		}
		if e.Kind() == expr.And {
			return s.c.Ands(ms...), nil
		}
		return s.c.Ors(ms...), nil
	case expr.Implies:
		a, err := s.lower(e.Arg(0))
		if err != nil {
			return 0, err
		}
		b, err := s.lower(e.Arg(1))
		if err != nil {
			return 0, err
		}
		return s.c.Implies(a, b), nil
	case expr.Eq, expr.Iff:
		if e.Arg(0).Sort() != expr.SortBool {
			return 0, errors.Errorf("sat: non-propositional equality %s", e)
		}
		a, err := s.lower(e.Arg(0))
		if err != nil {
			return 0, err
		}
		b, err := s.lower(e.Arg(1))
		if err != nil {
			return 0, err
		}
		return s.c.Xor(a, b).Not(), nil
	case expr.Xor:
		a, err := s.lower(e.Arg(0))
		if err != nil {
			return 0, err
		}
		b, err := s.lower(e.Arg(1))
		if err != nil {
			return 0, err
		}
		return s.c.Xor(a, b), nil
	case expr.Ite:
		if e.Sort() != expr.SortBool {
			return 0, errors.Errorf("sat: non-propositional ite %s", e)
		}
		i, err := s.lower(e.Arg(0))
		if err != nil {
			return 0, err
		}
		t, err := s.lower(e.Arg(1))
		if err != nil {
			return 0, err
		}
		el, err := s.lower(e.Arg(2))
		if err != nil {
			return 0, err
		}
		return s.c.Choice(i, t, el), nil
	}
	return 0, errors.Errorf("sat: non-propositional expression %s", e)
}

func (s *SatSolver) Solve() Result {
	g := gini.New()
	units := make([]z.Lit, 0, len(s.roots))
	for _, m := range s.roots {
		if m == s.c.T {
			continue
		}
		if m == s.c.F {
			s.last = nil
			s.lastRes = Unsat
			return Unsat
		}
		units = append(units, m)
	}
	s.c.ToCnfFrom(g, units...)
	for _, m := range units {
		g.Add(m)
		g.Add(0)
	}
	switch g.Solve() {
	case 1:
		s.last = g
		s.lastRes = Sat
	case -1:
		s.last = nil
		s.lastRes = Unsat
	default:
		s.last = nil
		s.lastRes = Unknown
	}
	return s.lastRes
}

func (s *SatSolver) Model() (Model, error) {
	if s.lastRes != Sat || s.last == nil {
		return nil, errors.New("sat: no model available")
	}
	return &satModel{s: s, g: s.last}, nil
}

// UnsatCore uses gini's failed-assumption facility: the clauses are
// assumed in a fresh instance and Why reports the subset the refutation
// used. Per the solver contract, the current assertion set is ignored.
func (s *SatSolver) UnsatCore(f []*expr.Expr) ([]*expr.Expr, bool) {
	lits := make([]z.Lit, len(f))
	for i, e := range f {
		m, err := s.lower(e)
		if err != nil {
			return nil, false
		}
		if m == s.c.F {
			return []*expr.Expr{e}, true
		}
		lits[i] = m
	}
	g := gini.New()
	s.c.ToCnfFrom(g, lits...)
	assumed := make([]z.Lit, 0, len(lits))
	for _, m := range lits {
		if m != s.c.T {
			assumed = append(assumed, m)
		}
	}
	g.Assume(assumed...)
	if g.Solve() != -1 {
		return nil, false
	}
	why := g.Why(nil)
	inWhy := make(map[z.Lit]bool, len(why))
	for _, m := range why {
		inWhy[m] = true
	}
	var core []*expr.Expr
	taken := make(map[z.Lit]bool)
	for i, e := range f {
		m := lits[i]
		if m != s.c.T && inWhy[m] && !taken[m] {
			taken[m] = true
			core = append(core, e)
		}
	}
	return core, true
}

type satModel struct {
	s *SatSolver
	g *gini.Gini
}

func (m *satModel) Eval(e *expr.Expr) (*expr.Expr, bool) {
	v, ok := evalBool(e, func(a *expr.Expr) (bool, bool) {
		lit, defined := m.s.atoms[a]
		if !defined || lit.Var() > m.g.MaxVar() {
			return false, false
		}
		return m.g.Value(lit), true
	})
	if !ok {
		return nil, false
	}
	return m.s.f.Bool(v), true
}
