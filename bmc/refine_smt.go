package bmc

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fshaked/seahorn/expr"
	"github.com/fshaked/seahorn/smt"
)

// refineWithSMT checks the path the abstract model identifies against
// the precise encoding. It extracts the path implicant, asserts it
// into the auxiliary context and solves. On Sat the precise model is
// cached; on Unsat the minimal core is projected through the
// literal→control-predicate map into the active set.
func (e *Engine) refineWithSMT(model smt.Model) (smt.Result, error) {
	implicant, mapLit := e.vc.ModelImplicant(e.side, model)

	// remove redundant literals
	sort.Slice(implicant, func(i, j int) bool { return implicant[i].ID() < implicant[j].ID() })
	implicant = uniq(implicant)

	if e.log.Logger.IsLevelEnabled(logrus.TraceLevel) {
		for _, cl := range implicant {
			e.log.WithField("clause", cl.String()).Trace("path formula")
		}
	}

	e.aux.Reset()
	for _, cl := range implicant {
		if err := e.aux.Assert(cl); err != nil {
			return smt.Unknown, errors.Wrap(err, "asserting path formula")
		}
	}
	res := e.aux.Solve()
	switch res {
	case smt.Sat:
		m, err := e.aux.Model()
		if err != nil {
			return smt.Unknown, err
		}
		e.model = m
		return smt.Sat, nil
	case smt.Unknown:
		return smt.Unknown, nil
	}

	core, err := newMUC(e.conf.MUCMethod, e.aux, e.log).Run(implicant)
	if err != nil {
		return smt.Unknown, err
	}

	// an implicant clause may carry no control predicate, e.g. when
	// the whole program is a single block
	set := newLitSet()
	for _, cl := range core {
		if gate, ok := mapLit[cl]; ok {
			set.add(gate)
		}
	}
	e.activeLits = set.ordered()
	return smt.Unsat, nil
}

func uniq(sorted []*expr.Expr) []*expr.Expr {
	out := sorted[:0]
	var prev *expr.Expr
	for _, e := range sorted {
		if e != prev {
			out = append(out, e)
		}
		prev = e
	}
	return out
}
