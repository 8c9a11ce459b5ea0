package vcgen

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fshaked/seahorn/cfg"
	"github.com/fshaked/seahorn/expr"
)

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

// branch CFG with a critical edge (bb0, err): bb0 -> {bb1, err},
// bb1 -> err.
func branchGraph() *cfg.Graph {
	g := cfg.NewGraph("branch")
	b0 := g.NewBlock("bb0")
	b1 := g.NewBlock("bb1")
	errB := g.NewBlock("err")
	g.Err = errB
	g.AddEdge(b0, b1)
	g.AddEdge(b0, errB)
	g.AddEdge(b1, errB)
	b0.Stmts = append(b0.Stmts,
		cfg.Assign{Dst: "x", Src: cfg.Lit(7)},
		cfg.BinOp{Dst: "t", X: cfg.Reg("x"), Op: cfg.OpEq, Y: cfg.Lit(7)},
	)
	g.MarkBool("t")
	b0.Cond = "t"
	return g
}

func TestEncodeShape(t *testing.T) {
	f := expr.NewFactory()
	g := branchGraph()
	v := New(f, g, testLog())

	side, err := v.Encode()
	require.NoError(t, err)
	require.NotEmpty(t, side)

	// entry reachability first, error reachability last
	assert.Same(t, v.BlockPred(g.Entry), side[0])
	assert.Same(t, v.BlockPred(g.Err), side[len(side)-1])

	// every clause is a unit control predicate or an implication
	for _, cl := range side[1 : len(side)-1] {
		assert.Equal(t, expr.Implies, cl.Kind(), "unexpected clause %s", cl)
	}
}

func TestEdgePredicates(t *testing.T) {
	f := expr.NewFactory()
	g := branchGraph()
	v := New(f, g, testLog())
	b0, b1, errB := g.Blocks[0], g.Blocks[1], g.Blocks[2]

	// the critical edge gets a tuple constant, interned once
	e1 := v.EdgePred(b0, errB)
	require.True(t, e1.IsTuple())
	assert.Same(t, e1, v.EdgePred(b0, errB))
	src, dst := e1.TupleArgs()
	assert.Same(t, v.BlockPred(b0), src)
	assert.Same(t, v.BlockPred(errB), dst)

	// non-critical edges are endpoint conjunctions
	e2 := v.EdgePred(b0, b1)
	assert.Same(t, f.AndN(v.BlockPred(b0), v.BlockPred(b1)), e2)
	e3 := v.EdgePred(b1, errB)
	assert.False(t, e3.IsTuple())
}

func TestEncodeBranchGuards(t *testing.T) {
	f := expr.NewFactory()
	g := branchGraph()
	v := New(f, g, testLog())
	b0, b1, errB := g.Blocks[0], g.Blocks[1], g.Blocks[2]

	side, err := v.Encode()
	require.NoError(t, err)

	tcond := f.BoolConst("t")
	thenGuard := f.Implies(v.EdgePred(b0, b1), tcond)
	elseGuard := f.Implies(v.EdgePred(b0, errB), f.Not(tcond))
	assert.Contains(t, side, thenGuard)
	assert.Contains(t, side, elseGuard)

	// the tuple constant is tied to its endpoints
	tie := f.Implies(v.EdgePred(b0, errB), f.AndN(v.BlockPred(b0), v.BlockPred(errB)))
	assert.Contains(t, side, tie)
}

func TestEncodePhi(t *testing.T) {
	f := expr.NewFactory()
	g := cfg.NewGraph("phi")
	b0 := g.NewBlock("bb0")
	b1 := g.NewBlock("bb1")
	b2 := g.NewBlock("bb2")
	b3 := g.NewBlock("bb3")
	g.Err = b3
	g.AddEdge(b0, b1)
	g.AddEdge(b0, b2)
	g.AddEdge(b1, b3)
	g.AddEdge(b2, b3)
	g.MarkBool("c")
	b0.Cond = "c"
	b3.AddPhi("x",
		cfg.Incoming{Pred: b1, Val: cfg.Lit(1)},
		cfg.Incoming{Pred: b2, Val: cfg.Lit(2)},
	)

	v := New(f, g, testLog())
	side, err := v.Encode()
	require.NoError(t, err)

	x := f.IntConst("x")
	assert.Contains(t, side, f.Implies(v.EdgePred(b1, b3), f.Eq(x, f.Int(1))))
	assert.Contains(t, side, f.Implies(v.EdgePred(b2, b3), f.Eq(x, f.Int(2))))
}

func TestEncodeErrors(t *testing.T) {
	f := expr.NewFactory()
	g := cfg.NewGraph("noerr")
	g.NewBlock("bb0")
	v := New(f, g, testLog())
	_, err := v.Encode()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no error block")
}

func TestStoreEval(t *testing.T) {
	f := expr.NewFactory()
	g := branchGraph()
	v := New(f, g, testLog())
	_, err := v.Encode()
	require.NoError(t, err)

	b0 := g.Blocks[0]
	canonical := v.Symb(b0)
	primed := v.BlockPred(b0)
	require.NotSame(t, canonical, primed)

	store := v.Stores()[0]
	assert.Same(t, primed, store.Eval(canonical))
	assert.True(t, store.IsDefined(canonical))
	assert.False(t, store.IsDefined(f.BoolConst("nowhere")))

	// composites are rebuilt through the store
	errB := g.Blocks[2]
	composite := f.AndN(canonical, v.Symb(errB))
	assert.Same(t, f.AndN(primed, v.BlockPred(errB)), store.Eval(composite))

	// tuples are opaque: Eval does not descend, but the endpoints are
	// defined so callers can rebuild
	tup := f.TupleConst(canonical, v.Symb(errB))
	assert.Same(t, tup, store.Eval(tup))
	assert.True(t, store.IsDefined(canonical) && store.IsDefined(v.Symb(errB)))
}

// fixed assignment standing in for a solver model
type mapModel struct {
	f *expr.Factory
	m map[*expr.Expr]bool
}

func (mm mapModel) Eval(e *expr.Expr) (*expr.Expr, bool) {
	var ev func(e *expr.Expr) (bool, bool)
	ev = func(e *expr.Expr) (bool, bool) {
		switch e.Kind() {
		case expr.True:
			return true, true
		case expr.False:
			return false, true
		case expr.Sym, expr.Tuple:
			v, ok := mm.m[e]
			return v, ok
		case expr.Not:
			v, ok := ev(e.Arg(0))
			return !v, ok
		case expr.And:
			for _, a := range e.Args() {
				v, ok := ev(a)
				if !ok || !v {
					return false, ok
				}
			}
			return true, true
		case expr.Or:
			for _, a := range e.Args() {
				v, ok := ev(a)
				if !ok {
					return false, false
				}
				if v {
					return true, true
				}
			}
			return false, true
		}
		return false, false
	}
	v, ok := ev(e)
	if !ok {
		return nil, false
	}
	return mm.f.Bool(v), true
}

func TestModelImplicant(t *testing.T) {
	f := expr.NewFactory()
	bp0, bp1 := f.BoolConst("bb0!0"), f.BoolConst("bb1!0")
	x := f.IntConst("x")
	theory := f.Eq(x, f.Int(1))

	side := []*expr.Expr{
		bp0,
		f.Implies(bp0, bp1),
		f.Implies(bp1, theory),
		f.Implies(f.BoolConst("dead!0"), f.Eq(x, f.Int(2))),
	}
	m := mapModel{f: f, m: map[*expr.Expr]bool{
		bp0: true, bp1: true, f.BoolConst("dead!0"): false,
	}}

	implicant, mapLit := ModelImplicant(side, m)
	assert.Equal(t, []*expr.Expr{bp0, bp1, theory}, implicant)
	assert.Same(t, bp0, mapLit[bp0], "unit control predicates gate themselves")
	assert.Same(t, bp0, mapLit[bp1])
	assert.Same(t, bp1, mapLit[theory])
	_, ok := mapLit[f.Eq(x, f.Int(2))]
	assert.False(t, ok, "falsified antecedents contribute nothing")
}

func TestModelImplicantFirstGateWins(t *testing.T) {
	f := expr.NewFactory()
	bp0, bp1 := f.BoolConst("bb0!0"), f.BoolConst("bb1!0")
	x := f.IntConst("x")
	theory := f.Eq(x, f.Int(1))

	side := []*expr.Expr{
		f.Implies(bp0, theory),
		f.Implies(bp1, theory),
	}
	m := mapModel{f: f, m: map[*expr.Expr]bool{bp0: true, bp1: true}}
	implicant, mapLit := ModelImplicant(side, m)
	assert.Len(t, implicant, 2, "duplicates are removed later, by the refiner")
	assert.Same(t, bp0, mapLit[theory])
}
