// Package expr provides the hash-consed expression DAG the verification
// engine works over: boolean structure, integer arithmetic, named
// constants and tuple-named edge predicates. Expressions are immutable
// and interned, so structurally equal terms are pointer-equal.
package expr

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

type Sort uint8

const (
	SortBool Sort = iota
	SortInt
)

type Kind uint8

const (
	True Kind = iota
	False
	Sym
	Tuple
	IntLit
	Not
	And
	Or
	Implies
	Iff
	Xor
	Ite
	Eq
	Lt
	Le
	Gt
	Ge
	Add
	Sub
	Mul
	Div
	Mod
)

var kindNames = map[Kind]string{
	True: "true", False: "false", Sym: "sym", Tuple: "tuple", IntLit: "int",
	Not: "not", And: "and", Or: "or", Implies: "=>", Iff: "<=>", Xor: "xor",
	Ite: "ite", Eq: "=", Lt: "<", Le: "<=", Gt: ">", Ge: ">=",
	Add: "+", Sub: "-", Mul: "*", Div: "div", Mod: "mod",
}

// Expr is a node of the interned DAG. Never construct directly; use a
// Factory so that equal terms share one node.
type Expr struct {
	kind Kind
	sort Sort
	name string
	val  int64
	args []*Expr
	id   uint64
}

func (e *Expr) Kind() Kind    { return e.kind }
func (e *Expr) Sort() Sort    { return e.sort }
func (e *Expr) Name() string  { return e.name }
func (e *Expr) Int64() int64  { return e.val }
func (e *Expr) Args() []*Expr { return e.args }
func (e *Expr) Arg(i int) *Expr {
	return e.args[i]
}

// ID is the interning sequence number, usable as a total order.
func (e *Expr) ID() uint64 { return e.id }

func (e *Expr) String() string {
	switch e.kind {
	case True:
		return "true"
	case False:
		return "false"
	case Sym:
		return e.name
	case IntLit:
		return fmt.Sprint(e.val)
	case Tuple:
		return fmt.Sprintf("tuple(%s,%s)", e.args[0], e.args[1])
	}
	var sb strings.Builder
	sb.WriteByte('(')
	sb.WriteString(kindNames[e.kind])
	for _, a := range e.args {
		sb.WriteByte(' ')
		sb.WriteString(a.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// IsPosBoolLit reports whether e is true, false, a boolean constant or
// an edge-tuple predicate.
func (e *Expr) IsPosBoolLit() bool {
	switch e.kind {
	case True, False, Tuple:
		return true
	case Sym:
		return e.sort == SortBool
	}
	return false
}

func (e *Expr) IsNegBoolLit() bool {
	return e.kind == Not && e.args[0].IsPosBoolLit()
}

func (e *Expr) IsBoolLit() bool {
	return e.IsPosBoolLit() || e.IsNegBoolLit()
}

func (e *Expr) IsTuple() bool { return e.kind == Tuple }

// TupleArgs returns the endpoints of an edge-tuple predicate.
func (e *Expr) TupleArgs() (src, dst *Expr) {
	if !e.IsTuple() {
		panic("expr: not a tuple")
	}
	return e.args[0], e.args[1]
}

// Factory interns expressions. The bucket map follows the usual
// strashing scheme: hash of (kind, sort, name, value, child ids) into
// buckets resolved by structural comparison.
type Factory struct {
	buckets map[uint64][]*Expr
	nextID  uint64
	trueE   *Expr
	falseE  *Expr
}

func NewFactory() *Factory {
	f := &Factory{buckets: make(map[uint64][]*Expr)}
	f.trueE = f.intern(&Expr{kind: True, sort: SortBool})
	f.falseE = f.intern(&Expr{kind: False, sort: SortBool})
	return f
}

func hashExpr(e *Expr) uint64 {
	var d xxhash.Digest
	d.Reset()
	var buf [8]byte
	buf[0] = byte(e.kind)
	buf[1] = byte(e.sort)
	_, _ = d.Write(buf[:2])
	binary.LittleEndian.PutUint64(buf[:], uint64(e.val))
	_, _ = d.Write(buf[:])
	_, _ = d.WriteString(e.name)
	for _, a := range e.args {
		binary.LittleEndian.PutUint64(buf[:], a.id)
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

func sameExpr(a, b *Expr) bool {
	if a.kind != b.kind || a.sort != b.sort || a.name != b.name || a.val != b.val || len(a.args) != len(b.args) {
		return false
	}
	for i := range a.args {
		if a.args[i] != b.args[i] {
			return false
		}
	}
	return true
}

func (f *Factory) intern(e *Expr) *Expr {
	h := hashExpr(e)
	for _, old := range f.buckets[h] {
		if sameExpr(old, e) {
			return old
		}
	}
	f.nextID++
	e.id = f.nextID
	f.buckets[h] = append(f.buckets[h], e)
	return e
}

func (f *Factory) mk(kind Kind, sort Sort, args ...*Expr) *Expr {
	return f.intern(&Expr{kind: kind, sort: sort, args: args})
}

func (f *Factory) True() *Expr  { return f.trueE }
func (f *Factory) False() *Expr { return f.falseE }

func (f *Factory) Bool(b bool) *Expr {
	if b {
		return f.trueE
	}
	return f.falseE
}

// BoolConst returns the boolean constant named name. Control predicates
// are boolean constants named after their basic block.
func (f *Factory) BoolConst(name string) *Expr {
	return f.intern(&Expr{kind: Sym, sort: SortBool, name: name})
}

func (f *Factory) IntConst(name string) *Expr {
	return f.intern(&Expr{kind: Sym, sort: SortInt, name: name})
}

func (f *Factory) Int(v int64) *Expr {
	return f.intern(&Expr{kind: IntLit, sort: SortInt, val: v})
}

// TupleConst returns the fresh boolean constant named by the ordered
// pair (src, dst). Interning guarantees the same expression for every
// call on the same pair.
func (f *Factory) TupleConst(src, dst *Expr) *Expr {
	return f.mk(Tuple, SortBool, src, dst)
}

func (f *Factory) Not(a *Expr) *Expr {
	switch a.kind {
	case True:
		return f.falseE
	case False:
		return f.trueE
	case Not:
		return a.args[0]
	}
	return f.mk(Not, SortBool, a)
}

// AndN builds the conjunction of args with true/false absorption.
func (f *Factory) AndN(args ...*Expr) *Expr {
	kept := make([]*Expr, 0, len(args))
	for _, a := range args {
		switch a.kind {
		case True:
		case False:
			return f.falseE
		default:
			kept = append(kept, a)
		}
	}
	switch len(kept) {
	case 0:
		return f.trueE
	case 1:
		return kept[0]
	}
	return f.mk(And, SortBool, kept...)
}

// OrN builds the disjunction of args with true/false absorption.
func (f *Factory) OrN(args ...*Expr) *Expr {
	kept := make([]*Expr, 0, len(args))
	for _, a := range args {
		switch a.kind {
		case False:
		case True:
			return f.trueE
		default:
			kept = append(kept, a)
		}
	}
	switch len(kept) {
	case 0:
		return f.falseE
	case 1:
		return kept[0]
	}
	return f.mk(Or, SortBool, kept...)
}

func (f *Factory) Implies(a, b *Expr) *Expr {
	if a.kind == True {
		return b
	}
	if a.kind == False || b.kind == True {
		return f.trueE
	}
	return f.mk(Implies, SortBool, a, b)
}

func (f *Factory) Iff(a, b *Expr) *Expr {
	if a == b {
		return f.trueE
	}
	return f.mk(Iff, SortBool, a, b)
}

func (f *Factory) Xor(a, b *Expr) *Expr {
	return f.mk(Xor, SortBool, a, b)
}

func (f *Factory) Ite(c, t, e *Expr) *Expr {
	return f.mk(Ite, t.sort, c, t, e)
}

func (f *Factory) Eq(a, b *Expr) *Expr {
	if a == b {
		return f.trueE
	}
	return f.mk(Eq, SortBool, a, b)
}

func (f *Factory) Lt(a, b *Expr) *Expr { return f.mk(Lt, SortBool, a, b) }
func (f *Factory) Le(a, b *Expr) *Expr { return f.mk(Le, SortBool, a, b) }
func (f *Factory) Gt(a, b *Expr) *Expr { return f.mk(Gt, SortBool, a, b) }
func (f *Factory) Ge(a, b *Expr) *Expr { return f.mk(Ge, SortBool, a, b) }

func (f *Factory) Add(a, b *Expr) *Expr { return f.mk(Add, SortInt, a, b) }
func (f *Factory) Sub(a, b *Expr) *Expr { return f.mk(Sub, SortInt, a, b) }
func (f *Factory) Mul(a, b *Expr) *Expr { return f.mk(Mul, SortInt, a, b) }
func (f *Factory) Div(a, b *Expr) *Expr { return f.mk(Div, SortInt, a, b) }
func (f *Factory) Mod(a, b *Expr) *Expr { return f.mk(Mod, SortInt, a, b) }

// Remake interns a copy of e with args replaced. The substitution
// primitive: the DAG is never mutated, terms are rebuilt.
func (f *Factory) Remake(e *Expr, args []*Expr) *Expr {
	ne := &Expr{kind: e.kind, sort: e.sort, name: e.name, val: e.val, args: args}
	return f.intern(ne)
}
