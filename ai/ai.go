// Package ai is the abstract-interpretation backend: a forward
// interval analysis over a single CFG path. When the abstract
// semantics of the path is bottom, it reports a minimal subset of
// statements that still implies bottom; the engine turns that subset
// into a blocking clause without consulting the SMT solver.
package ai

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/fshaked/seahorn/cfg"
)

// Analyzer analyzes path slices. It is stateless between calls.
type Analyzer struct {
	log *logrus.Entry
}

func New(log *logrus.Entry) *Analyzer {
	return &Analyzer{log: log}
}

// PathAnalyze slices the graph along blocks and runs the interval
// semantics. It returns feasible=true when it cannot refute the path;
// otherwise relevant is a minimal statement subset whose forward
// semantics is bottom.
func (a *Analyzer) PathAnalyze(blocks []*cfg.Block) (bool, []cfg.Statement) {
	stmts := cfg.Slice(blocks)
	if !refutes(stmts) {
		return true, nil
	}
	relevant := minimize(stmts)
	a.log.WithFields(logrus.Fields{
		"path":     len(stmts),
		"relevant": len(relevant),
	}).Debug("interval analysis proved path infeasible")
	return false, relevant
}

// minimize is the deletion loop: drop each statement in turn and keep
// it only when the rest stops being bottom. The survivors are a
// minimal refuting subset.
func minimize(stmts []cfg.Statement) []cfg.Statement {
	out := make([]cfg.Statement, len(stmts))
	copy(out, stmts)
	for i := 0; i < len(out); {
		trimmed := make([]cfg.Statement, 0, len(out)-1)
		trimmed = append(trimmed, out[:i]...)
		trimmed = append(trimmed, out[i+1:]...)
		if refutes(trimmed) {
			out = trimmed
		} else {
			i++
		}
	}
	return out
}

// interval is a (possibly unbounded) range of int64 values.
type interval struct {
	lo, hi       int64
	loInf, hiInf bool
}

func top() interval                { return interval{loInf: true, hiInf: true} }
func single(v int64) interval      { return interval{lo: v, hi: v} }
func (iv interval) empty() bool    { return !iv.loInf && !iv.hiInf && iv.lo > iv.hi }
func (iv interval) isSingle() bool { return !iv.loInf && !iv.hiInf && iv.lo == iv.hi }

type state struct {
	vals map[string]interval
	// defs remembers which comparison assigned each boolean register,
	// so assumes can refine the compared operands.
	defs map[string]cfg.BinOp
}

func newState() *state {
	return &state{vals: make(map[string]interval), defs: make(map[string]cfg.BinOp)}
}

func (st *state) get(o cfg.Operand) interval {
	if o.IsLit() {
		return single(o.Lit)
	}
	if iv, ok := st.vals[o.Var]; ok {
		return iv
	}
	return top()
}

// refutes runs the forward semantics and reports whether it hits
// bottom.
func refutes(stmts []cfg.Statement) bool {
	st := newState()
	for _, s := range stmts {
		if !transfer(st, s) {
			return true
		}
	}
	return false
}

// transfer applies one statement; false means bottom.
func transfer(st *state, s cfg.Statement) bool {
	switch stmt := s.S.(type) {
	case cfg.Assign:
		st.vals[stmt.Dst] = st.get(stmt.Src)
		if !stmt.Src.IsLit() {
			if d, ok := st.defs[stmt.Src.Var]; ok {
				st.defs[stmt.Dst] = d
			}
		}
	case cfg.BinOp:
		if stmt.Op.IsCmp() {
			st.defs[stmt.Dst] = stmt
			return true
		}
		st.vals[stmt.Dst] = arith(stmt.Op, st.get(stmt.X), st.get(stmt.Y))
	case cfg.Assume:
		def, ok := st.defs[stmt.Cond]
		if !ok {
			// condition not rooted in a comparison: cannot refine
			return true
		}
		op := def.Op
		if stmt.Negated {
			op = negateCmp(op)
		}
		x, y := st.get(def.X), st.get(def.Y)
		nx, ny := refine(op, x, y)
		if nx.empty() || ny.empty() {
			return false
		}
		if !def.X.IsLit() {
			st.vals[def.X.Var] = nx
		}
		if !def.Y.IsLit() {
			st.vals[def.Y.Var] = ny
		}
	case cfg.Call:
		// havoc: the result could be anything
		if stmt.Dst != "" {
			st.vals[stmt.Dst] = top()
			delete(st.defs, stmt.Dst)
		}
	}
	return true
}

func negateCmp(op cfg.Op) cfg.Op {
	switch op {
	case cfg.OpEq:
		return cfg.OpNe
	case cfg.OpNe:
		return cfg.OpEq
	case cfg.OpLt:
		return cfg.OpGe
	case cfg.OpLe:
		return cfg.OpGt
	case cfg.OpGt:
		return cfg.OpLe
	case cfg.OpGe:
		return cfg.OpLt
	}
	return op
}

func arith(op cfg.Op, x, y interval) interval {
	if op == cfg.OpDiv || op == cfg.OpMod {
		return top()
	}
	if x.loInf || x.hiInf || y.loInf || y.hiInf {
		// keep one-sided bounds for addition, give up otherwise
		if op == cfg.OpAdd {
			return interval{
				lo: satAdd(x.lo, y.lo), loInf: x.loInf || y.loInf,
				hi: satAdd(x.hi, y.hi), hiInf: x.hiInf || y.hiInf,
			}
		}
		return top()
	}
	switch op {
	case cfg.OpAdd:
		return interval{lo: satAdd(x.lo, y.lo), hi: satAdd(x.hi, y.hi)}
	case cfg.OpSub:
		return interval{lo: satSub(x.lo, y.hi), hi: satSub(x.hi, y.lo)}
	case cfg.OpMul:
		c := []int64{satMul(x.lo, y.lo), satMul(x.lo, y.hi), satMul(x.hi, y.lo), satMul(x.hi, y.hi)}
		lo, hi := c[0], c[0]
		for _, v := range c[1:] {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		return interval{lo: lo, hi: hi}
	}
	return top()
}

// refine narrows x and y under the assumption "x op y".
func refine(op cfg.Op, x, y interval) (interval, interval) {
	switch op {
	case cfg.OpEq:
		return meet(x, y), meet(x, y)
	case cfg.OpNe:
		if x.isSingle() && y.isSingle() && x.lo == y.lo {
			return interval{lo: 1, hi: 0}, y
		}
		return x, y
	case cfg.OpLt:
		return capHi(x, y.hi, y.hiInf, -1), capLo(y, x.lo, x.loInf, 1)
	case cfg.OpLe:
		return capHi(x, y.hi, y.hiInf, 0), capLo(y, x.lo, x.loInf, 0)
	case cfg.OpGt:
		ny, nx := refine(cfg.OpLt, y, x)
		return nx, ny
	case cfg.OpGe:
		ny, nx := refine(cfg.OpLe, y, x)
		return nx, ny
	}
	return x, y
}

func meet(x, y interval) interval {
	out := x
	if !y.loInf && (out.loInf || y.lo > out.lo) {
		out.lo, out.loInf = y.lo, false
	}
	if !y.hiInf && (out.hiInf || y.hi < out.hi) {
		out.hi, out.hiInf = y.hi, false
	}
	return out
}

func capHi(x interval, bound int64, boundInf bool, delta int64) interval {
	if boundInf {
		return x
	}
	b := satAdd(bound, delta)
	if x.hiInf || b < x.hi {
		x.hi, x.hiInf = b, false
	}
	return x
}

func capLo(x interval, bound int64, boundInf bool, delta int64) interval {
	if boundInf {
		return x
	}
	b := satAdd(bound, delta)
	if x.loInf || b > x.lo {
		x.lo, x.loInf = b, false
	}
	return x
}

func satAdd(a, b int64) int64 {
	if a > 0 && b > math.MaxInt64-a {
		return math.MaxInt64
	}
	if a < 0 && b < math.MinInt64-a {
		return math.MinInt64
	}
	return a + b
}

func satSub(a, b int64) int64 {
	if b == math.MinInt64 {
		if a >= 0 {
			return math.MaxInt64
		}
		return satAdd(a+1, math.MaxInt64)
	}
	return satAdd(a, -b)
}

func satMul(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	r := a * b
	if r/b != a {
		if (a > 0) == (b > 0) {
			return math.MaxInt64
		}
		return math.MinInt64
	}
	return r
}
