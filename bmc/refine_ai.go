package bmc

import (
	"github.com/fshaked/seahorn/cfg"
	"github.com/fshaked/seahorn/expr"
	"github.com/fshaked/seahorn/smt"
)

// refineWithAI runs the abstract interpreter on the path the abstract
// model identifies. It reports true when the path was refuted and the
// active set built; any failure to classify or project makes it report
// false so the SMT refiner takes over.
func (e *Engine) refineWithAI(model smt.Model) bool {
	trace := e.traceFromModel(model)
	feasible, relevant := e.analyzer.PathAnalyze(trace)
	if feasible {
		return false
	}

	set := newLitSet()
	for _, s := range relevant {
		switch s.S.(type) {
		case cfg.BinOp:
			set.add(e.vc.Symb(s.Block))
		case cfg.Assume:
			if s.OnEdge() {
				src := e.vc.Symb(s.Src)
				set.add(src)
				set.add(e.canonicalEdge(s.Src, s.Dst))
			} else {
				set.add(e.vc.Symb(s.Block))
			}
		case cfg.Assign:
			if s.Phi != nil {
				srcBB := s.Block
				if srcBB == nil {
					srcBB = s.Src
				}
				dstBB := s.Phi.Parent
				set.add(e.vc.Symb(srcBB))
				set.add(e.canonicalEdge(srcBB, dstBB))
			} else if s.Block != nil {
				set.add(e.vc.Symb(s.Block))
			} else {
				e.log.WithField("stmt", s.String()).Warn("cannot infer active literals for statement")
				return false
			}
		default:
			// unclassifiable statement: pretend the query was
			// feasible so the SMT solver runs next
			e.log.WithField("stmt", s.String()).Warn("cannot infer active literals for statement")
			return false
		}
	}

	// evaluate the canonical literals in their symbolic stores
	stores := e.vc.Stores()
	cps := e.vc.CutPoints()
	var active []*expr.Expr
	for _, lit := range set.ordered() {
		found := false
		for i := range cps {
			s := stores[i]
			if v := s.Eval(lit); v != lit {
				active = append(active, v)
				found = true
				break
			}
			if lit.IsTuple() {
				// Eval does not descend into declarations; rebuild
				// the tuple from the evaluated endpoints
				src, dst := lit.TupleArgs()
				if s.IsDefined(src) && s.IsDefined(dst) {
					active = append(active, e.f.TupleConst(s.Eval(src), s.Eval(dst)))
					found = true
					break
				}
			}
		}
		if !found {
			e.log.WithField("lit", lit.String()).Error("cannot produce an unsat core from the path analysis")
			return false
		}
	}
	e.activeLits = active
	return true
}

// canonicalEdge builds the edge predicate over canonical control
// predicates: the tuple constant for critical edges, the endpoint
// conjunction otherwise.
func (e *Engine) canonicalEdge(src, dst *cfg.Block) *expr.Expr {
	s, d := e.vc.Symb(src), e.vc.Symb(dst)
	if cfg.IsCriticalEdge(src, dst) {
		return e.f.TupleConst(s, d)
	}
	return e.f.AndN(s, d)
}
