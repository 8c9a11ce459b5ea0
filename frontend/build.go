// Package frontend turns Go source into the CFGs the engine verifies.
// A function's SSA form is translated block by block; a call to panic
// routes into a synthetic error block whose reachability becomes the
// verification query. Only loop-free functions over integers and
// booleans are supported.
package frontend

import (
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"runtime/debug"

	"github.com/sirupsen/logrus"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/fshaked/seahorn/cfg"
)

func buildPackage(filename string) (*ssa.Package, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filename, nil, 0)
	if err != nil {
		return nil, err
	}

	files := []*ast.File{f}
	pkg := types.NewPackage("main", "")

	main, _, err := ssautil.BuildPackage(&types.Config{Importer: importer.Default()}, fset, pkg, files, 0)
	if err != nil {
		return nil, err
	}
	return main, nil
}

// Build translates every function of filename. Functions outside the
// supported fragment are skipped with a log line.
func Build(filename string, log *logrus.Entry) (map[string]*cfg.Graph, error) {
	main, err := buildPackage(filename)
	if err != nil {
		return nil, err
	}
	graphs := make(map[string]*cfg.Graph)
	for _, v := range main.Members {
		fn, ok := v.(*ssa.Function)
		if !ok || fn.Name() == "init" {
			continue
		}
		g, err := translateFunction(fn)
		if err != nil {
			log.WithField("fn", fn.Name()).WithError(err).Warn("skipping function")
			continue
		}
		graphs[fn.Name()] = g
	}
	return graphs, nil
}

// translateFunction converts recovered panics of the instruction walk
// into errors.
func translateFunction(fn *ssa.Function) (g *cfg.Graph, err error) {
	defer func() {
		if r := recover(); r != nil {
			g = nil
			err = fmt.Errorf("%v\n%s", r, debug.Stack())
		}
	}()
	return Translate(fn), nil
}

// Translate builds the CFG of one SSA function. It panics on
// constructs outside the supported fragment.
func Translate(fn *ssa.Function) *cfg.Graph {
	if len(fn.Blocks) == 0 {
		panic("function has no blocks")
	}
	checkAcyclic(fn)

	g := cfg.NewGraph(fn.Name())
	blocks := make(map[*ssa.BasicBlock]*cfg.Block, len(fn.Blocks))
	for _, b := range fn.Blocks {
		blocks[b] = g.NewBlock(fmt.Sprintf("bb%d", b.Index))
	}
	for _, b := range fn.Blocks {
		for _, s := range b.Succs {
			g.AddEdge(blocks[b], blocks[s])
		}
	}

	for _, p := range fn.Params {
		markType(g, p.Name(), p.Type())
	}

	for _, b := range fn.Blocks {
		translateBlock(g, blocks, b)
	}
	return g
}

func checkAcyclic(fn *ssa.Function) {
	const (
		visiting = 1
		done     = 2
	)
	state := make([]int, len(fn.Blocks))
	var visit func(b *ssa.BasicBlock)
	visit = func(b *ssa.BasicBlock) {
		switch state[b.Index] {
		case visiting:
			panic("cycles are not supported!")
		case done:
			return
		}
		state[b.Index] = visiting
		for _, s := range b.Succs {
			visit(s)
		}
		state[b.Index] = done
	}
	visit(fn.Blocks[0])
}

func markType(g *cfg.Graph, name string, t types.Type) {
	basic, ok := t.Underlying().(*types.Basic)
	if !ok {
		panic(fmt.Sprintf("unknown type '%s'", t))
	}
	switch {
	case basic.Info()&types.IsBoolean != 0:
		g.MarkBool(name)
	case basic.Info()&types.IsInteger != 0:
	default:
		panic(fmt.Sprintf("unknown type '%s'", t))
	}
}

func operand(v ssa.Value) cfg.Operand {
	if c, ok := v.(*ssa.Const); ok {
		if c.Value == nil {
			panic(fmt.Sprintf("unknown constant '%s'", c))
		}
		basic, ok := c.Type().Underlying().(*types.Basic)
		if !ok || basic.Info()&types.IsInteger == 0 {
			panic(fmt.Sprintf("unknown constant '%s' of type '%s'", c.Name(), c.Type()))
		}
		return cfg.Lit(c.Int64())
	}
	return cfg.Reg(v.Name())
}

func binOp(tok token.Token) cfg.Op {
	switch tok {
	case token.ADD:
		return cfg.OpAdd
	case token.SUB:
		return cfg.OpSub
	case token.MUL:
		return cfg.OpMul
	case token.QUO:
		return cfg.OpDiv
	case token.REM:
		return cfg.OpMod
	case token.EQL:
		return cfg.OpEq
	case token.NEQ:
		return cfg.OpNe
	case token.LSS:
		return cfg.OpLt
	case token.LEQ:
		return cfg.OpLe
	case token.GTR:
		return cfg.OpGt
	case token.GEQ:
		return cfg.OpGe
	}
	panic(fmt.Sprintf("unknown binary operation '%s'", tok))
}

func translateBlock(g *cfg.Graph, blocks map[*ssa.BasicBlock]*cfg.Block, b *ssa.BasicBlock) {
	cb := blocks[b]
	for _, v := range b.Instrs {
		switch v := v.(type) {
		case *ssa.BinOp:
			op := binOp(v.Op)
			if op.IsCmp() {
				g.MarkBool(v.Name())
			} else {
				markType(g, v.Name(), v.Type())
			}
			cb.Stmts = append(cb.Stmts, cfg.BinOp{
				Dst: v.Name(),
				X:   operand(v.X),
				Op:  op,
				Y:   operand(v.Y),
			})
		case *ssa.UnOp:
			if v.Op != token.SUB {
				panic(fmt.Sprintf("unknown unary operation '%s'", v.Op))
			}
			markType(g, v.Name(), v.Type())
			cb.Stmts = append(cb.Stmts, cfg.BinOp{
				Dst: v.Name(),
				X:   cfg.Lit(0),
				Op:  cfg.OpSub,
				Y:   operand(v.X),
			})
		case *ssa.Phi:
			markType(g, v.Name(), v.Type())
			in := make([]cfg.Incoming, len(v.Edges))
			for i, edge := range v.Edges {
				in[i] = cfg.Incoming{Pred: blocks[b.Preds[i]], Val: operand(edge)}
			}
			cb.AddPhi(v.Name(), in...)
		case *ssa.Convert:
			markType(g, v.Name(), v.Type())
			cb.Stmts = append(cb.Stmts, cfg.Assign{Dst: v.Name(), Src: operand(v.X)})
		case *ssa.If:
			if _, isConst := v.Cond.(*ssa.Const); isConst {
				panic(fmt.Sprintf("unknown condition '%s'", v.Cond))
			}
			g.MarkBool(v.Cond.Name())
			cb.Cond = v.Cond.Name()
		case *ssa.Jump, *ssa.Return:
			// flow is captured by the block edges
		case *ssa.MakeInterface:
			// boxes the panic argument; its value is not tracked
		case *ssa.Panic:
			errBlock(g, cb)
		case *ssa.Call:
			cb.Stmts = append(cb.Stmts, cfg.Call{Dst: v.Name(), Func: v.Call.String()})
		default:
			panic(fmt.Sprint("unknown instruction: '", v.String(), "'"))
		}
	}
}

// errBlock routes a panicking block into the shared synthetic error
// block, creating it on first use.
func errBlock(g *cfg.Graph, from *cfg.Block) {
	if g.Err == nil {
		g.Err = g.NewBlock("error")
	}
	g.AddEdge(from, g.Err)
}
