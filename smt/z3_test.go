package smt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fshaked/seahorn/expr"
)

func TestZ3SolverArithmetic(t *testing.T) {
	f := expr.NewFactory()
	s := NewZ3Solver(f)
	x := f.IntConst("x")

	require.NoError(t, s.Assert(f.Eq(x, f.Int(1))))
	require.NoError(t, s.Assert(f.Eq(x, f.Int(2))))
	assert.Equal(t, Unsat, s.Solve())

	s.Reset()
	require.NoError(t, s.Assert(f.Eq(x, f.Int(41))))
	y := f.IntConst("y")
	require.NoError(t, s.Assert(f.Eq(y, f.Add(x, f.Int(1)))))
	require.Equal(t, Sat, s.Solve())

	m, err := s.Model()
	require.NoError(t, err)
	v, ok := m.Eval(y)
	require.True(t, ok)
	assert.Equal(t, int64(42), v.Int64())
}

func TestZ3SolverBooleans(t *testing.T) {
	f := expr.NewFactory()
	s := NewZ3Solver(f)
	p, q := f.BoolConst("p"), f.BoolConst("q")
	x := f.IntConst("x")

	require.NoError(t, s.Assert(f.Implies(p, f.Eq(x, f.Int(3)))))
	require.NoError(t, s.Assert(p))
	require.NoError(t, s.Assert(f.Eq(q, f.Lt(x, f.Int(5)))))
	require.Equal(t, Sat, s.Solve())

	m, err := s.Model()
	require.NoError(t, err)
	v, ok := m.Eval(q)
	require.True(t, ok)
	assert.Same(t, f.True(), v)

	v, ok = m.Eval(f.AndN(p, q))
	require.True(t, ok)
	assert.Same(t, f.True(), v)
}

func TestZ3SolverTupleAtoms(t *testing.T) {
	f := expr.NewFactory()
	s := NewZ3Solver(f)
	edge := f.TupleConst(f.BoolConst("bb1"), f.BoolConst("bb3"))

	require.NoError(t, s.Assert(edge))
	require.NoError(t, s.Assert(f.Not(f.BoolConst("bb1"))))
	require.Equal(t, Sat, s.Solve(), "the tuple is a fresh constant, independent of its endpoints")

	m, err := s.Model()
	require.NoError(t, err)
	v, ok := m.Eval(edge)
	require.True(t, ok)
	assert.Same(t, f.True(), v)
}

func TestZ3SolverNoCores(t *testing.T) {
	f := expr.NewFactory()
	s := NewZ3Solver(f)
	_, ok := s.UnsatCore([]*expr.Expr{f.False()})
	assert.False(t, ok)
}

func TestParseIntValue(t *testing.T) {
	v, err := parseIntValue("5")
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)

	v, err = parseIntValue("(- 5)")
	require.NoError(t, err)
	assert.Equal(t, int64(-5), v)

	_, err = parseIntValue("not a number")
	assert.Error(t, err)
}
