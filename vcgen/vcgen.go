// Package vcgen produces the verification condition of a CFG: an
// ordered clause list over control predicates, edge predicates and the
// program's SSA registers, together with the symbolic stores and the
// model-implicant extraction the path-based engine needs.
//
// The encoding assumes the graph is loop-free. Critical edges are
// never conflated with their endpoints: each one gets a fresh
// tuple-named predicate, so blocking a path through a critical edge
// does not block sibling paths through the same blocks.
package vcgen

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fshaked/seahorn/cfg"
	"github.com/fshaked/seahorn/expr"
	"github.com/fshaked/seahorn/smt"
)

// Gen encodes one cfg.Graph. Symb returns the canonical control
// predicate of a block; the clause list uses the primed (SSA-renamed)
// incarnations, and the store maps one vocabulary to the other.
type Gen struct {
	f   *expr.Factory
	g   *cfg.Graph
	log *logrus.Entry

	primed map[*cfg.Block]*expr.Expr
	regs   map[string]*expr.Expr
	store  *Store
}

func New(f *expr.Factory, g *cfg.Graph, log *logrus.Entry) *Gen {
	return &Gen{
		f:      f,
		g:      g,
		log:    log,
		primed: make(map[*cfg.Block]*expr.Expr),
		regs:   make(map[string]*expr.Expr),
		store:  &Store{f: f, m: make(map[*expr.Expr]*expr.Expr)},
	}
}

func (v *Gen) Graph() *cfg.Graph { return v.g }

// Symb returns the canonical control predicate naming b's
// reachability.
func (v *Gen) Symb(b *cfg.Block) *expr.Expr {
	return v.f.BoolConst(b.Name)
}

// BlockPred returns the primed incarnation of b's control predicate,
// the form appearing in the encoded clauses.
func (v *Gen) BlockPred(b *cfg.Block) *expr.Expr {
	if p, ok := v.primed[b]; ok {
		return p
	}
	p := v.f.BoolConst(b.Name + "!0")
	v.primed[b] = p
	v.store.m[v.Symb(b)] = p
	return p
}

// EdgePred returns the primed edge predicate for (src, dst): the fresh
// tuple constant when the edge is critical, the endpoint conjunction
// otherwise.
func (v *Gen) EdgePred(src, dst *cfg.Block) *expr.Expr {
	s, d := v.BlockPred(src), v.BlockPred(dst)
	if cfg.IsCriticalEdge(src, dst) {
		return v.f.TupleConst(s, d)
	}
	return v.f.AndN(s, d)
}

func (v *Gen) reg(name string) *expr.Expr {
	if e, ok := v.regs[name]; ok {
		return e
	}
	var e *expr.Expr
	if v.g.Bools[name] {
		e = v.f.BoolConst(name)
	} else {
		e = v.f.IntConst(name)
	}
	v.regs[name] = e
	v.store.m[e] = e
	return e
}

func (v *Gen) operand(o cfg.Operand) *expr.Expr {
	if o.IsLit() {
		return v.f.Int(o.Lit)
	}
	return v.reg(o.Var)
}

// Encode builds m_side in insertion order: entry reachability, flow
// clauses, branch guards, the gated phi and statement semantics of
// every block, and error reachability last.
func (v *Gen) Encode() ([]*expr.Expr, error) {
	if v.g.Entry == nil {
		return nil, errors.New("vcgen: graph has no entry block")
	}
	if v.g.Err == nil {
		return nil, errors.Errorf("vcgen: graph %s has no error block", v.g.Name)
	}

	var side []*expr.Expr
	add := func(cl *expr.Expr) {
		if cl.Kind() != expr.True {
			side = append(side, cl)
		}
	}

	add(v.BlockPred(v.g.Entry))

	for _, d := range v.g.Blocks {
		if d == v.g.Entry {
			continue
		}
		in := make([]*expr.Expr, len(d.Preds))
		for i, p := range d.Preds {
			in[i] = v.EdgePred(p, d)
		}
		add(v.f.Implies(v.BlockPred(d), v.f.OrN(in...)))
	}

	for _, b := range v.g.Blocks {
		for _, d := range b.Succs {
			e := v.EdgePred(b, d)
			if e.IsTuple() {
				// tie the fresh constant to its endpoints
				add(v.f.Implies(e, v.f.AndN(v.BlockPred(b), v.BlockPred(d))))
			}
			if b.Cond != "" {
				guard := v.reg(b.Cond)
				if len(b.Succs) > 1 && b.Succs[1] == d {
					guard = v.f.Not(guard)
				}
				add(v.f.Implies(e, guard))
			}
		}
	}

	for _, b := range v.g.Blocks {
		bp := v.BlockPred(b)
		for _, p := range b.Phis {
			for _, in := range p.In {
				add(v.f.Implies(v.EdgePred(in.Pred, b), v.f.Eq(v.reg(p.Dst), v.operand(in.Val))))
			}
		}
		for _, s := range b.Stmts {
			enc, err := v.encodeStmt(s)
			if err != nil {
				return nil, err
			}
			add(v.f.Implies(bp, enc))
		}
	}

	add(v.BlockPred(v.g.Err))
	v.log.WithFields(logrus.Fields{"fn": v.g.Name, "clauses": len(side)}).Debug("encoded verification condition")
	return side, nil
}

func (v *Gen) encodeStmt(s cfg.Stmt) (*expr.Expr, error) {
	switch s := s.(type) {
	case cfg.BinOp:
		x, y := v.operand(s.X), v.operand(s.Y)
		if s.Op.IsCmp() {
			var cmp *expr.Expr
			switch s.Op {
			case cfg.OpEq:
				cmp = v.f.Eq(x, y)
			case cfg.OpNe:
				cmp = v.f.Not(v.f.Eq(x, y))
			case cfg.OpLt:
				cmp = v.f.Lt(x, y)
			case cfg.OpLe:
				cmp = v.f.Le(x, y)
			case cfg.OpGt:
				cmp = v.f.Gt(x, y)
			case cfg.OpGe:
				cmp = v.f.Ge(x, y)
			}
			return v.f.Eq(v.reg(s.Dst), cmp), nil
		}
		var rhs *expr.Expr
		switch s.Op {
		case cfg.OpAdd:
			rhs = v.f.Add(x, y)
		case cfg.OpSub:
			rhs = v.f.Sub(x, y)
		case cfg.OpMul:
			rhs = v.f.Mul(x, y)
		case cfg.OpDiv:
			rhs = v.f.Div(x, y)
		case cfg.OpMod:
			rhs = v.f.Mod(x, y)
		default:
			return nil, errors.Errorf("vcgen: unknown binary operation '%s'", s.Op)
		}
		return v.f.Eq(v.reg(s.Dst), rhs), nil
	case cfg.Assign:
		return v.f.Eq(v.reg(s.Dst), v.operand(s.Src)), nil
	case cfg.Assume:
		c := v.reg(s.Cond)
		if s.Negated {
			c = v.f.Not(c)
		}
		return c, nil
	case cfg.Call:
		// opaque effect: the callee result stays unconstrained
		return v.f.True(), nil
	}
	return nil, errors.Errorf("vcgen: unknown statement '%s'", s)
}

// CutPoints returns the cut-point blocks the symbolic stores align
// with. Loop-free graphs collapse to a single cut point at entry; the
// engine-facing interface stays a list.
func (v *Gen) CutPoints() []*cfg.Block {
	return []*cfg.Block{v.g.Entry}
}

func (v *Gen) Stores() []*Store {
	return []*Store{v.store}
}

// ModelImplicant extracts an ordered clause list whose conjunction the
// model entails and that implies side under the model, plus the map
// from implicant clauses to the control predicate gating them.
func (v *Gen) ModelImplicant(side []*expr.Expr, m smt.Model) ([]*expr.Expr, map[*expr.Expr]*expr.Expr) {
	return ModelImplicant(side, m)
}

// ModelImplicant walks the clause list under the model: clauses whose
// antecedent the model falsifies contribute nothing, the consequents
// of the rest form the implicant, and unit control-predicate clauses
// gate themselves.
func ModelImplicant(side []*expr.Expr, m smt.Model) ([]*expr.Expr, map[*expr.Expr]*expr.Expr) {
	var implicant []*expr.Expr
	mapLit := make(map[*expr.Expr]*expr.Expr)
	for _, cl := range side {
		if cl.Kind() == expr.Implies {
			ant, cons := cl.Arg(0), cl.Arg(1)
			av, ok := m.Eval(ant)
			if !ok || av.Kind() != expr.True {
				continue
			}
			implicant = append(implicant, cons)
			if _, seen := mapLit[cons]; !seen {
				mapLit[cons] = ant
			}
			continue
		}
		implicant = append(implicant, cl)
		if cl.IsPosBoolLit() && cl.Kind() == expr.Sym {
			if _, seen := mapLit[cl]; !seen {
				mapLit[cl] = cl
			}
		}
	}
	return implicant, mapLit
}

// Store maps canonical symbols to their incarnations at a cut point.
type Store struct {
	f *expr.Factory
	m map[*expr.Expr]*expr.Expr
}

// Eval substitutes through e, rebuilding composites. It does not
// descend into tuple constants; callers reconstruct those from the
// evaluated endpoints.
func (s *Store) Eval(e *expr.Expr) *expr.Expr {
	if v, ok := s.m[e]; ok {
		return v
	}
	if e.IsTuple() || len(e.Args()) == 0 {
		return e
	}
	changed := false
	args := make([]*expr.Expr, len(e.Args()))
	for i, a := range e.Args() {
		args[i] = s.Eval(a)
		if args[i] != a {
			changed = true
		}
	}
	if !changed {
		return e
	}
	return s.f.Remake(e, args)
}

func (s *Store) IsDefined(e *expr.Expr) bool {
	_, ok := s.m[e]
	return ok
}

// Define adds a canonical→incarnation binding. The encoder populates
// its own store; Define fills stores built by hand with NewStore.
func (s *Store) Define(canonical, incarnation *expr.Expr) {
	s.m[canonical] = incarnation
}

// NewStore returns an empty store over f.
func NewStore(f *expr.Factory) *Store {
	return &Store{f: f, m: make(map[*expr.Expr]*expr.Expr)}
}
