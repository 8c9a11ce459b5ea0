package smt

import (
	"strconv"
	"strings"

	"github.com/aclements/go-z3/z3"
	"github.com/pkg/errors"

	"github.com/fshaked/seahorn/expr"
)

// Z3Solver decides formulas over booleans and integer arithmetic. The
// engine uses it as the auxiliary context holding path formulas.
type Z3Solver struct {
	f      *expr.Factory
	ctx    *z3.Context
	solver *z3.Solver

	bools map[*expr.Expr]z3.Bool
	ints  map[*expr.Expr]z3.Int

	model *z3.Model
}

func NewZ3Solver(f *expr.Factory) *Z3Solver {
	ctx := z3.NewContext(nil)
	return &Z3Solver{
		f:      f,
		ctx:    ctx,
		solver: z3.NewSolver(ctx),
		bools:  make(map[*expr.Expr]z3.Bool),
		ints:   make(map[*expr.Expr]z3.Int),
	}
}

func (s *Z3Solver) Reset() {
	s.solver.Reset()
	s.model = nil
}

func (s *Z3Solver) Assert(e *expr.Expr) error {
	b, err := s.lowerBool(e)
	if err != nil {
		return err
	}
	s.solver.Assert(b)
	return nil
}

func (s *Z3Solver) Solve() Result {
	sat, err := s.solver.Check()
	if err != nil {
		return Unknown
	}
	if sat {
		s.model = s.solver.Model()
		return Sat
	}
	s.model = nil
	return Unsat
}

func (s *Z3Solver) Model() (Model, error) {
	if s.model == nil {
		return nil, errors.New("z3: no model available")
	}
	return &z3Model{s: s, vars: parseModelVars(s.model)}, nil
}

// UnsatCore reports unsupported: the binding exposes no
// check-with-assumptions or core extraction, so the assumptions MUC
// strategy falls back to the naive one on this backend.
func (s *Z3Solver) UnsatCore(f []*expr.Expr) ([]*expr.Expr, bool) {
	return nil, false
}

func (s *Z3Solver) boolConst(e *expr.Expr, name string) z3.Bool {
	if b, ok := s.bools[e]; ok {
		return b
	}
	b := s.ctx.BoolConst(name)
	s.bools[e] = b
	return b
}

func (s *Z3Solver) lowerBool(e *expr.Expr) (z3.Bool, error) {
	switch e.Kind() {
	case expr.True:
		return s.ctx.FromBool(true), nil
	case expr.False:
		return s.ctx.FromBool(false), nil
	case expr.Sym:
		if e.Sort() != expr.SortBool {
			return z3.Bool{}, errors.Errorf("z3: %s is not boolean", e)
		}
		return s.boolConst(e, e.Name()), nil
	case expr.Tuple:
		return s.boolConst(e, e.String()), nil
	case expr.Not:
		a, err := s.lowerBool(e.Arg(0))
		if err != nil {
			return z3.Bool{}, err
		}
		return a.Not(), nil
	case expr.And, expr.Or:
		acc, err := s.lowerBool(e.Arg(0))
		if err != nil {
			return z3.Bool{}, err
		}
		for _, a := range e.Args()[1:] {
			b, err := s.lowerBool(a)
			if err != nil {
				return z3.Bool{}, err
			}
			if e.Kind() == expr.And {
				acc = acc.And(b)
			} else {
				acc = acc.Or(b)
			}
		}
		return acc, nil
	case expr.Implies:
		a, err := s.lowerBool(e.Arg(0))
		if err != nil {
			return z3.Bool{}, err
		}
		b, err := s.lowerBool(e.Arg(1))
		if err != nil {
			return z3.Bool{}, err
		}
		return a.Not().Or(b), nil
	case expr.Iff:
		a, err := s.lowerBool(e.Arg(0))
		if err != nil {
			return z3.Bool{}, err
		}
		b, err := s.lowerBool(e.Arg(1))
		if err != nil {
			return z3.Bool{}, err
		}
		return a.Eq(b), nil
	case expr.Xor:
		a, err := s.lowerBool(e.Arg(0))
		if err != nil {
			return z3.Bool{}, err
		}
		b, err := s.lowerBool(e.Arg(1))
		if err != nil {
			return z3.Bool{}, err
		}
		return a.Or(b).And(a.And(b).Not()), nil
	case expr.Ite:
		if e.Sort() != expr.SortBool {
			break
		}
		c, err := s.lowerBool(e.Arg(0))
		if err != nil {
			return z3.Bool{}, err
		}
		t, err := s.lowerBool(e.Arg(1))
		if err != nil {
			return z3.Bool{}, err
		}
		el, err := s.lowerBool(e.Arg(2))
		if err != nil {
			return z3.Bool{}, err
		}
		return c.And(t).Or(c.Not().And(el)), nil
	case expr.Eq:
		if e.Arg(0).Sort() == expr.SortBool {
			a, err := s.lowerBool(e.Arg(0))
			if err != nil {
				return z3.Bool{}, err
			}
			b, err := s.lowerBool(e.Arg(1))
			if err != nil {
				return z3.Bool{}, err
			}
			return a.Eq(b), nil
		}
		a, err := s.lowerInt(e.Arg(0))
		if err != nil {
			return z3.Bool{}, err
		}
		b, err := s.lowerInt(e.Arg(1))
		if err != nil {
			return z3.Bool{}, err
		}
		return a.Eq(b), nil
	case expr.Lt, expr.Le, expr.Gt, expr.Ge:
		a, err := s.lowerInt(e.Arg(0))
		if err != nil {
			return z3.Bool{}, err
		}
		b, err := s.lowerInt(e.Arg(1))
		if err != nil {
			return z3.Bool{}, err
		}
		switch e.Kind() {
		case expr.Lt:
			return a.LT(b), nil
		case expr.Le:
			return a.LE(b), nil
		case expr.Gt:
			return a.GT(b), nil
		default:
			return a.GE(b), nil
		}
	}
	return z3.Bool{}, errors.Errorf("z3: cannot lower %s as boolean", e)
}

func (s *Z3Solver) lowerInt(e *expr.Expr) (z3.Int, error) {
	switch e.Kind() {
	case expr.Sym:
		if e.Sort() != expr.SortInt {
			return z3.Int{}, errors.Errorf("z3: %s is not integer", e)
		}
		if v, ok := s.ints[e]; ok {
			return v, nil
		}
		v := s.ctx.IntConst(e.Name())
		s.ints[e] = v
		return v, nil
	case expr.IntLit:
		return s.ctx.FromInt(e.Int64(), s.ctx.IntSort()).(z3.Int), nil
	case expr.Add, expr.Sub, expr.Mul, expr.Div, expr.Mod:
		a, err := s.lowerInt(e.Arg(0))
		if err != nil {
			return z3.Int{}, err
		}
		b, err := s.lowerInt(e.Arg(1))
		if err != nil {
			return z3.Int{}, err
		}
		switch e.Kind() {
		case expr.Add:
			return a.Add(b), nil
		case expr.Sub:
			return a.Sub(b), nil
		case expr.Mul:
			return a.Mul(b), nil
		case expr.Div:
			return a.Div(b), nil
		default:
			return a.Mod(b), nil
		}
	}
	return z3.Int{}, errors.Errorf("z3: cannot lower %s as integer", e)
}

// parseModelVars reads the textual model back into a name/value map,
// one "name -> value" pair per line.
func parseModelVars(model *z3.Model) map[string]string {
	vars := make(map[string]string)
	for _, line := range strings.Split(model.String(), "\n") {
		segments := strings.Split(line, " -> ")
		if len(segments) == 2 {
			// z3 quotes symbols containing special characters
			name := strings.Trim(strings.TrimSpace(segments[0]), "|")
			vars[name] = segments[1]
		}
	}
	return vars
}

type z3Model struct {
	s    *Z3Solver
	vars map[string]string
}

func (m *z3Model) atomName(e *expr.Expr) string {
	if e.IsTuple() {
		return e.String()
	}
	return e.Name()
}

func (m *z3Model) Eval(e *expr.Expr) (*expr.Expr, bool) {
	if e.Kind() == expr.Sym && e.Sort() == expr.SortInt {
		raw, ok := m.vars[e.Name()]
		if !ok {
			return nil, false
		}
		v, err := parseIntValue(raw)
		if err != nil {
			return nil, false
		}
		return m.s.f.Int(v), true
	}
	v, ok := evalBool(e, func(a *expr.Expr) (bool, bool) {
		raw, defined := m.vars[m.atomName(a)]
		if !defined {
			// unconstrained in the model: complete with false
			return false, true
		}
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return false, false
		}
		return b, true
	})
	if !ok {
		return nil, false
	}
	return m.s.f.Bool(v), true
}

// parseIntValue strips the s-expression decoration z3 puts around
// negative numerals before parsing.
func parseIntValue(value string) (int64, error) {
	var trimmed []rune
	for _, c := range value {
		switch c {
		case '(', ')', '\n', '\t', ' ':
			continue
		default:
			trimmed = append(trimmed, c)
		}
	}
	return strconv.ParseInt(string(trimmed), 10, 64)
}
