package bmc

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fshaked/seahorn/cfg"
	"github.com/fshaked/seahorn/expr"
	"github.com/fshaked/seahorn/smt"
	"github.com/fshaked/seahorn/vcgen"
)

// Config is the engine configuration, passed at construction.
type Config struct {
	// AIRefine runs the abstract-interpretation refiner on every
	// enumerated path before falling back to SMT.
	AIRefine bool `yaml:"ai-refine"`
	// MUCMethod selects the unsat-core strategy.
	MUCMethod MUCMethod `yaml:"-"`
}

// VCGen is the verification-condition generator the engine drives.
// vcgen.Gen is the production implementation.
type VCGen interface {
	Encode() ([]*expr.Expr, error)
	Symb(b *cfg.Block) *expr.Expr
	BlockPred(b *cfg.Block) *expr.Expr
	EdgePred(src, dst *cfg.Block) *expr.Expr
	CutPoints() []*cfg.Block
	Stores() []*vcgen.Store
	ModelImplicant(side []*expr.Expr, m smt.Model) ([]*expr.Expr, map[*expr.Expr]*expr.Expr)
	Graph() *cfg.Graph
}

// PathAnalyzer is the optional abstract-interpretation backend.
type PathAnalyzer interface {
	PathAnalyze(blocks []*cfg.Block) (feasible bool, relevant []cfg.Statement)
}

// Stats counts what the enumeration did.
type Stats struct {
	Iterations int
	PathsByAI  int
	PathsBySMT int
}

// Engine is the path-based BMC engine. It owns two solver contexts:
// the primary one holds the boolean abstraction plus the accumulated
// blocking clauses and is never reset after initialization; the
// auxiliary one is reset at the start of every refinement.
type Engine struct {
	f        *expr.Factory
	vc       VCGen
	primary  smt.Solver
	aux      smt.Solver
	analyzer PathAnalyzer
	conf     Config
	log      *logrus.Entry

	side       []*expr.Expr
	absSide    []*expr.Expr
	blocking   map[*expr.Expr]bool
	blockOrder []*expr.Expr
	activeLits []*expr.Expr
	model      smt.Model
	result     smt.Result
	stats      Stats
}

func New(f *expr.Factory, vc VCGen, primary, aux smt.Solver, analyzer PathAnalyzer, conf Config, log *logrus.Entry) *Engine {
	return &Engine{
		f:        f,
		vc:       vc,
		primary:  primary,
		aux:      aux,
		analyzer: analyzer,
		conf:     conf,
		log:      log,
		blocking: make(map[*expr.Expr]bool),
	}
}

// Encode is a no-op: path-based engines encode lazily in Solve.
func (e *Engine) Encode() {}

func (e *Engine) Stats() Stats { return e.stats }

// Solve decides whether the error block is reachable: Sat means a real
// counterexample exists, Unsat that every path is infeasible, Unknown
// that a solver gave up or the refiner stopped making progress.
func (e *Engine) Solve() (smt.Result, error) {
	e.log.Debug("starting path-based BMC")

	side, err := e.vc.Encode()
	if err != nil {
		return smt.Unknown, err
	}
	e.side = side

	absSide, err := BoolAbstraction(e.f, side)
	if err != nil {
		return smt.Unknown, err
	}
	e.absSide = absSide
	for _, cl := range absSide {
		if err := e.primary.Assert(cl); err != nil {
			return smt.Unknown, errors.Wrap(err, "asserting boolean abstraction")
		}
	}
	e.aux.Reset()

	for {
		res := e.primary.Solve()
		if res == smt.Unsat {
			if e.stats.Iterations == 0 {
				e.log.Info("program is trivially unsat: initial boolean abstraction was enough")
			}
			e.result = smt.Unsat
			return e.result, nil
		}
		if res == smt.Unknown {
			e.result = smt.Unknown
			return e.result, nil
		}

		e.stats.Iterations++
		e.log.WithField("iteration", e.stats.Iterations).Debug("processing symbolic path")
		model, err := e.primary.Model()
		if err != nil {
			return smt.Unknown, err
		}

		if e.conf.AIRefine && e.analyzer != nil {
			refuted := e.refineWithAI(model)
			if refuted {
				if err := e.addBlockingClauses(); err != nil {
					e.log.WithError(err).Error("path-based BMC cannot make progress")
					e.result = smt.Unknown
					return e.result, err
				}
				e.stats.PathsByAI++
				continue
			}
		}

		res, err = e.refineWithSMT(model)
		if err != nil {
			e.result = smt.Unknown
			return e.result, err
		}
		if res == smt.Sat || res == smt.Unknown {
			e.result = res
			return e.result, nil
		}
		if err := e.addBlockingClauses(); err != nil {
			e.log.WithError(err).Error("path-based BMC cannot make progress")
			e.result = smt.Unknown
			return e.result, err
		}
		e.stats.PathsBySMT++
	}
}

// addBlockingClauses negates the conjunction of the active literals
// and asserts it into the primary context. An empty active set blocks
// everything; a repeated clause means the refiner failed to eliminate
// the current model, which violates the progress invariant.
func (e *Engine) addBlockingClauses() error {
	bc := e.f.False()
	if len(e.activeLits) == 0 {
		e.log.Warn("no active boolean literals found; trivially unsat")
	} else {
		bc = e.f.Not(e.f.AndN(e.activeLits...))
	}
	e.log.WithField("clause", bc.String()).Debug("added blocking clause")
	if err := e.primary.Assert(bc); err != nil {
		return errors.Wrap(err, "asserting blocking clause")
	}
	if e.blocking[bc] {
		return errors.New("same blocking clause again")
	}
	e.blocking[bc] = true
	e.blockOrder = append(e.blockOrder, bc)
	return nil
}

// Trace reconstructs the counterexample block sequence from the cached
// precise model. It requires a previous Sat result.
func (e *Engine) Trace() ([]*cfg.Block, error) {
	if e.result != smt.Sat || e.model == nil {
		return nil, errors.New("no counterexample model available")
	}
	return e.traceFromModel(e.model), nil
}

// UnsatCore returns the accumulated blocking clauses in insertion
// order. Debug only; after Unsat they witness the exhaustion of the
// abstract model space.
func (e *Engine) UnsatCore() []*expr.Expr {
	out := make([]*expr.Expr, len(e.blockOrder))
	copy(out, e.blockOrder)
	return out
}

// traceFromModel walks the CFG from the entry, following edges whose
// predicate the model satisfies.
func (e *Engine) traceFromModel(m smt.Model) []*cfg.Block {
	g := e.vc.Graph()
	cur := g.Entry
	trace := []*cfg.Block{cur}
	for steps := 0; cur != g.Err && steps < len(g.Blocks); steps++ {
		var next *cfg.Block
		for _, s := range cur.Succs {
			if v, ok := m.Eval(e.vc.EdgePred(cur, s)); ok && v.Kind() == expr.True {
				next = s
				break
			}
		}
		if next == nil {
			break
		}
		trace = append(trace, next)
		cur = next
	}
	return trace
}

// litSet is a deduplicating set of control/edge predicates, ordered
// with non-tuple expressions before tuple expressions, then by
// interning order.
type litSet struct {
	seen map[*expr.Expr]bool
	lits []*expr.Expr
}

func newLitSet() *litSet {
	return &litSet{seen: make(map[*expr.Expr]bool)}
}

func (s *litSet) add(e *expr.Expr) {
	if !s.seen[e] {
		s.seen[e] = true
		s.lits = append(s.lits, e)
	}
}

func (s *litSet) ordered() []*expr.Expr {
	sort.SliceStable(s.lits, func(i, j int) bool {
		ti, tj := s.lits[i].IsTuple(), s.lits[j].IsTuple()
		if ti != tj {
			return !ti
		}
		return s.lits[i].ID() < s.lits[j].ID()
	})
	return s.lits
}
