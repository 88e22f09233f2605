// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.
package ir

import (
	"fmt"

	"github.com/mkuznets/cc1/ast"
)

// Build lowers every function definition and global variable in tu into a
// Program. Each translation unit is lowered independently; Programs are
// not linked together, each one goes to codegen on its own.
func Build(ctx *ast.Context, tu *ast.TranslationUnit) *Program {
	prog := &Program{}
	b := &progBuilder{ctx: ctx, prog: prog, strings: map[string]string{}}
	for _, d := range tu.Decls {
		b.lowerTopLevel(d)
	}
	return prog
}

type progBuilder struct {
	ctx     *ast.Context
	prog    *Program
	strings map[string]string // interned string value -> label, dedups string literals
}

func (b *progBuilder) lowerTopLevel(d ast.Decl) {
	switch n := d.(type) {
	case *ast.FuncDecl:
		if n.Body == nil {
			return
		}
		fb := newFuncBuilder(b, n)
		fb.build()
		b.prog.Functions = append(b.prog.Functions, fb.fn)
	case *ast.VarDecl:
		b.lowerGlobalVar(n.Info)
	}
}

func (b *progBuilder) lowerGlobalVar(v *ast.VarInfo) {
	if v.Storage.Has(ast.SCExtern) && (v.Global == nil || v.Global.Init == nil) {
		return
	}
	g := &Global{
		Name:     v.Name.String(),
		Size:     ast.SizeOf(v.Type),
		Align:    ast.AlignOf(v.Type),
		Exported: !v.Storage.Has(ast.SCStatic),
	}
	if v.Global != nil && v.Global.Init != nil {
		g.HasInit = true
		g.Bytes = make([]byte, g.Size)
		for _, e := range ast.FlattenInitializer(b.ctx, v.Type, v.Global.Init) {
			b.storeConstInto(g, e)
		}
	}
	b.prog.Globals = append(b.prog.Globals, g)
}

// storeConstInto writes one flattened initializer entry into g's byte
// image, recording a Reloc instead of raw bytes when the value is the
// address of another symbol (e.g. a string literal or another global).
func (b *progBuilder) storeConstInto(g *Global, e ast.FlatEntry) {
	switch v := e.Value.(type) {
	case *ast.IntLitExpr:
		putLE(g.Bytes, e.Offset, uint64(v.Value), ast.SizeOf(e.Type))
	case *ast.StringLitExpr:
		label := b.internString(v.Value)
		g.Relocs = append(g.Relocs, Reloc{Offset: e.Offset, Target: label})
	case *ast.UnaryExpr:
		if v.Op == ast.UnAddr {
			if ref, ok := v.Operand.(*ast.VarRefExpr); ok {
				g.Relocs = append(g.Relocs, Reloc{Offset: e.Offset, Target: ref.Name.String()})
			}
		}
	}
}

func putLE(buf []byte, offset int64, value uint64, size int64) {
	for i := int64(0); i < size && offset+i < int64(len(buf)); i++ {
		buf[offset+i] = byte(value >> (8 * uint(i)))
	}
}

func (b *progBuilder) internString(s string) string {
	if label, ok := b.strings[s]; ok {
		return label
	}
	label := b.ctx.NextStringLabel()
	b.strings[s] = label
	b.prog.Strings = append(b.prog.Strings, StringLit{Label: label, Value: s})
	return label
}

// -----------------------------------------------------------------------------
// Per-function lowering

type loopCtx struct {
	continueTarget *Block
	breakTarget    *Block
}

type funcBuilder struct {
	pb      *progBuilder
	fn      *Function
	cur     *Block
	declRef *ast.FuncDecl

	vregs map[*ast.VarInfo]VReg // scalar locals promoted directly to a VReg
	slots map[*ast.VarInfo]*Slot

	labels map[*ast.Name]*Block
	loops  []loopCtx
}

func newFuncBuilder(pb *progBuilder, decl *ast.FuncDecl) *funcBuilder {
	fn := NewFunction(decl.Name.String())
	fn.RetType = irType(decl.Type.Ret)
	fn.Variadic = decl.Type.Variadic
	fn.Exported = !decl.Storage.Has(ast.SCStatic)
	return &funcBuilder{
		pb: pb, fn: fn, declRef: decl,
		vregs:  map[*ast.VarInfo]VReg{},
		slots:  map[*ast.VarInfo]*Slot{},
		labels: map[*ast.Name]*Block{},
	}
}

func irType(t *ast.Type) Type {
	if t == nil {
		return I64
	}
	switch {
	case t.IsFlonum():
		if t.FloWidth == ast.WFloat {
			return F32
		}
		return F64
	case t.IsPtr(), t.IsArray(), t.IsFunc():
		return I64
	default:
		sz := ast.SizeOf(t)
		if sz <= 1 {
			return I8
		}
		if sz <= 2 {
			return I16
		}
		if sz <= 4 {
			return I32
		}
		return I64
	}
}

func (fb *funcBuilder) build() {
	decl := fb.decl()
	fb.fn.Entry = fb.fn.NewBlock("entry")
	fb.cur = fb.fn.Entry

	fb.scanAddressTaken(decl.Body)

	for i, pv := range decl.Params {
		t := irType(pv.Type)
		fb.fn.ParamType = append(fb.fn.ParamType, t)
		arg := fb.fn.NewVReg()
		fb.fn.Params = append(fb.fn.Params, arg)
		fb.bindParam(pv, arg, t, i)
	}

	// Pre-create blocks for every label so forward gotos can target them.
	fb.collectLabels(decl.Body)

	fb.lowerStmt(decl.Body)
	if !fb.cur.terminated() {
		fb.cur.emit(&Instr{Op: OpReturn, Type: fb.fn.RetType})
	}
}

func (fb *funcBuilder) decl() *ast.FuncDecl { return fb.declRef }

// scanAddressTaken walks body looking for `&local` so those locals get a
// stack Slot (Addr: true) instead of a bare VReg: an address-taken local
// must live in memory, never purely in a register.
func (fb *funcBuilder) scanAddressTaken(s ast.Stmt) {
	var walkExpr func(e ast.Expr)
	var walkStmt func(s ast.Stmt)

	walkExpr = func(e ast.Expr) {
		switch n := e.(type) {
		case nil:
		case *ast.UnaryExpr:
			if n.Op == ast.UnAddr {
				if ref, ok := n.Operand.(*ast.VarRefExpr); ok && ref.Var != nil {
					fb.markAddressTaken(ref.Var)
				}
			}
			walkExpr(n.Operand)
		case *ast.BinaryExpr:
			walkExpr(n.Left)
			walkExpr(n.Right)
		case *ast.AssignExpr:
			walkExpr(n.Left)
			walkExpr(n.Right)
		case *ast.CondExpr:
			walkExpr(n.Cond)
			walkExpr(n.Then)
			walkExpr(n.Else)
		case *ast.CommaExpr:
			walkExpr(n.Left)
			walkExpr(n.Right)
		case *ast.CallExpr:
			walkExpr(n.Callee)
			for _, a := range n.Args {
				walkExpr(a)
			}
		case *ast.MemberExpr:
			walkExpr(n.Base)
		case *ast.CastExpr:
			walkExpr(n.Operand)
		case *ast.SizeofExpr:
			walkExpr(n.OperandExpr)
		}
	}
	walkStmt = func(s ast.Stmt) {
		switch n := s.(type) {
		case nil:
		case *ast.BlockStmt:
			for _, st := range n.Stmts {
				walkStmt(st)
			}
		case *ast.ExprStmt:
			walkExpr(n.X)
		case *ast.DeclStmt:
			if vd, ok := n.D.(*ast.VarDecl); ok && vd.Info.Local != nil && vd.Info.Local.Init != nil {
				for _, e := range ast.FlattenInitializer(fb.pb.ctx, vd.Info.Type, vd.Info.Local.Init) {
					walkExpr(e.Value)
				}
			}
		case *ast.IfStmt:
			walkExpr(n.Cond)
			walkStmt(n.Then)
			walkStmt(n.Else)
		case *ast.WhileStmt:
			walkExpr(n.Cond)
			walkStmt(n.Body)
		case *ast.DoWhileStmt:
			walkExpr(n.Cond)
			walkStmt(n.Body)
		case *ast.ForStmt:
			walkStmt(n.Init)
			walkExpr(n.Cond)
			walkExpr(n.Post)
			walkStmt(n.Body)
		case *ast.SwitchStmt:
			walkExpr(n.Value)
			for _, c := range n.Cases {
				for _, st := range c.Body {
					walkStmt(st)
				}
			}
		case *ast.ReturnStmt:
			walkExpr(n.X)
		case *ast.LabelStmt:
			walkStmt(n.Body)
		}
	}
	walkStmt(s)
}

func (fb *funcBuilder) markAddressTaken(v *ast.VarInfo) {
	if v.Local == nil {
		return
	}
	slot := fb.slotFor(v)
	slot.Addr = true
}

func (fb *funcBuilder) slotFor(v *ast.VarInfo) *Slot {
	if s, ok := fb.slots[v]; ok {
		return s
	}
	s := fb.fn.NewSlot(v.Name.String(), ast.SizeOf(v.Type), ast.AlignOf(v.Type))
	fb.slots[v] = s
	return s
}

func (fb *funcBuilder) bindParam(v *ast.VarInfo, arg VReg, t Type, paramIndex int) {
	if v == nil {
		return
	}
	if isAggregate(v.Type) || fb.slots[v] != nil {
		slot := fb.slotFor(v)
		fb.cur.emit(&Instr{Op: OpStoreLocal, Type: t, Slot: slot, Arg1: arg})
		return
	}
	fb.vregs[v] = arg
}

func isAggregate(t *ast.Type) bool { return t.IsStruct() || t.IsArray() }

func (fb *funcBuilder) collectLabels(s ast.Stmt) {
	switch n := s.(type) {
	case *ast.BlockStmt:
		for _, st := range n.Stmts {
			fb.collectLabels(st)
		}
	case *ast.LabelStmt:
		fb.labels[n.Label] = fb.fn.NewBlock("label_" + n.Label.String())
		fb.collectLabels(n.Body)
	case *ast.IfStmt:
		fb.collectLabels(n.Then)
		fb.collectLabels(n.Else)
	case *ast.WhileStmt:
		fb.collectLabels(n.Body)
	case *ast.DoWhileStmt:
		fb.collectLabels(n.Body)
	case *ast.ForStmt:
		fb.collectLabels(n.Body)
	case *ast.SwitchStmt:
		for _, c := range n.Cases {
			for _, st := range c.Body {
				fb.collectLabels(st)
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Statements

func (fb *funcBuilder) lowerStmt(s ast.Stmt) {
	switch n := s.(type) {
	case nil:
	case *ast.BlockStmt:
		for _, st := range n.Stmts {
			fb.lowerStmt(st)
		}
	case *ast.ExprStmt:
		if n.X != nil {
			fb.lowerExpr(n.X)
		}
	case *ast.DeclStmt:
		fb.lowerLocalDecl(n.D)
	case *ast.IfStmt:
		fb.lowerIf(n)
	case *ast.WhileStmt:
		fb.lowerWhile(n)
	case *ast.DoWhileStmt:
		fb.lowerDoWhile(n)
	case *ast.ForStmt:
		fb.lowerFor(n)
	case *ast.SwitchStmt:
		fb.lowerSwitch(n)
	case *ast.BreakStmt:
		if len(fb.loops) > 0 {
			fb.jumpTo(fb.loops[len(fb.loops)-1].breakTarget)
		}
	case *ast.ContinueStmt:
		if len(fb.loops) > 0 {
			fb.jumpTo(fb.loops[len(fb.loops)-1].continueTarget)
		}
	case *ast.GotoStmt:
		if target, ok := fb.labels[n.Label]; ok {
			fb.jumpTo(target)
		}
	case *ast.LabelStmt:
		target := fb.labels[n.Label]
		fb.jumpTo(target)
		fb.cur = target
		fb.lowerStmt(n.Body)
	case *ast.ReturnStmt:
		if n.X != nil {
			v, t := fb.lowerExpr(n.X)
			fb.cur.emit(&Instr{Op: OpReturn, Type: t, Arg1: v})
		} else {
			fb.cur.emit(&Instr{Op: OpReturn, Type: fb.fn.RetType, Arg1: NoVReg})
		}
		fb.cur = fb.fn.NewBlock("unreachable")
	case *ast.AsmStmt:
		var out VReg = NoVReg
		if n.Output != nil {
			out, _ = fb.lowerExpr(n.Output)
		}
		fb.cur.emit(&Instr{Op: OpInlineAsm, AsmTemplate: n.Template, Arg1: out})
	}
}

func (fb *funcBuilder) lowerLocalDecl(d ast.Decl) {
	vd, ok := d.(*ast.VarDecl)
	if !ok || vd == nil {
		return
	}
	v := vd.Info
	if v.IsTypedef() || v.Local == nil {
		return
	}
	if v.Local.Init == nil {
		return
	}
	init := v.Local.Init
	if isAggregate(v.Type) || fb.slots[v] != nil {
		slot := fb.slotFor(v)
		for _, e := range ast.FlattenInitializer(fb.pb.ctx, v.Type, init) {
			val, t := fb.lowerExpr(e.Value)
			fb.cur.emit(&Instr{Op: OpStoreLocal, Type: t, Slot: slot, SlotOffset: e.Offset, Arg1: val})
		}
		return
	}
	val, t := fb.lowerExpr(init.Expr)
	fb.vregs[v] = val
	_ = t
}

func (fb *funcBuilder) jumpTo(target *Block) {
	if fb.cur.terminated() {
		return
	}
	fb.cur.emit(&Instr{Op: OpJump, Then: target})
	fb.cur.addSucc(target)
}

func (fb *funcBuilder) lowerIf(n *ast.IfStmt) {
	thenB := fb.fn.NewBlock("if.then")
	elseB := fb.fn.NewBlock("if.else")
	joinB := fb.fn.NewBlock("if.end")

	fb.lowerCond(n.Cond, thenB, elseB)

	fb.cur = thenB
	fb.lowerStmt(n.Then)
	fb.jumpTo(joinB)

	fb.cur = elseB
	if n.Else != nil {
		fb.lowerStmt(n.Else)
	}
	fb.jumpTo(joinB)

	fb.cur = joinB
}

func (fb *funcBuilder) lowerWhile(n *ast.WhileStmt) {
	headB := fb.fn.NewBlock("while.cond")
	bodyB := fb.fn.NewBlock("while.body")
	endB := fb.fn.NewBlock("while.end")

	fb.jumpTo(headB)
	fb.cur = headB
	fb.lowerCond(n.Cond, bodyB, endB)

	fb.loops = append(fb.loops, loopCtx{continueTarget: headB, breakTarget: endB})
	fb.cur = bodyB
	fb.lowerStmt(n.Body)
	fb.jumpTo(headB)
	fb.loops = fb.loops[:len(fb.loops)-1]

	fb.cur = endB
}

func (fb *funcBuilder) lowerDoWhile(n *ast.DoWhileStmt) {
	bodyB := fb.fn.NewBlock("do.body")
	condB := fb.fn.NewBlock("do.cond")
	endB := fb.fn.NewBlock("do.end")

	fb.jumpTo(bodyB)
	fb.loops = append(fb.loops, loopCtx{continueTarget: condB, breakTarget: endB})
	fb.cur = bodyB
	fb.lowerStmt(n.Body)
	fb.jumpTo(condB)
	fb.loops = fb.loops[:len(fb.loops)-1]

	fb.cur = condB
	fb.lowerCond(n.Cond, bodyB, endB)

	fb.cur = endB
}

func (fb *funcBuilder) lowerFor(n *ast.ForStmt) {
	if n.Init != nil {
		fb.lowerStmt(n.Init)
	}
	headB := fb.fn.NewBlock("for.cond")
	bodyB := fb.fn.NewBlock("for.body")
	postB := fb.fn.NewBlock("for.post")
	endB := fb.fn.NewBlock("for.end")

	fb.jumpTo(headB)
	fb.cur = headB
	if n.Cond != nil {
		fb.lowerCond(n.Cond, bodyB, endB)
	} else {
		fb.jumpTo(bodyB)
	}

	fb.loops = append(fb.loops, loopCtx{continueTarget: postB, breakTarget: endB})
	fb.cur = bodyB
	fb.lowerStmt(n.Body)
	fb.jumpTo(postB)
	fb.loops = fb.loops[:len(fb.loops)-1]

	fb.cur = postB
	if n.Post != nil {
		fb.lowerExpr(n.Post)
	}
	fb.jumpTo(headB)

	fb.cur = endB
}

func (fb *funcBuilder) lowerSwitch(n *ast.SwitchStmt) {
	val, t := fb.lowerExpr(n.Value)
	endB := fb.fn.NewBlock("switch.end")

	var caseBlocks []*Block
	var defaultB *Block
	for _, c := range n.Cases {
		b := fb.fn.NewBlock("case")
		caseBlocks = append(caseBlocks, b)
		if c.IsDefault {
			defaultB = b
		}
	}
	if defaultB == nil {
		defaultB = endB
	}

	tj := &Instr{Op: OpTableJump, Type: t, Arg1: val, Default: defaultB}
	for i, c := range n.Cases {
		if !c.IsDefault {
			tj.Cases = append(tj.Cases, c.Value)
			tj.Targets = append(tj.Targets, caseBlocks[i])
		}
	}
	fb.cur.emit(tj)
	fb.cur.addSucc(defaultB)
	for _, b := range tj.Targets {
		fb.cur.addSucc(b)
	}

	fb.loops = append(fb.loops, loopCtx{continueTarget: fb.loopContinueOrSelf(), breakTarget: endB})
	for i, c := range n.Cases {
		fb.cur = caseBlocks[i]
		for _, st := range c.Body {
			fb.lowerStmt(st)
		}
		// fallthrough: fall into the next case block unless already
		// terminated by break/return/goto.
		if i+1 < len(caseBlocks) {
			fb.jumpTo(caseBlocks[i+1])
		} else {
			fb.jumpTo(endB)
		}
	}
	fb.loops = fb.loops[:len(fb.loops)-1]

	fb.cur = endB
}

// loopContinueOrSelf lets `continue` inside a switch nested in a loop keep
// targeting the enclosing loop, per ordinary C scoping of continue vs.
// break.
func (fb *funcBuilder) loopContinueOrSelf() *Block {
	if len(fb.loops) > 0 {
		return fb.loops[len(fb.loops)-1].continueTarget
	}
	return nil
}

// -----------------------------------------------------------------------------
// Condition lowering (branches directly to two target blocks, used by
// control-flow statements so `&&`/`||` short-circuit without ever
// materializing an intermediate 0/1 value).

func (fb *funcBuilder) lowerCond(e ast.Expr, trueB, falseB *Block) {
	switch n := e.(type) {
	case *ast.BinaryExpr:
		if n.Op == ast.BinLogAnd {
			midB := fb.fn.NewBlock("and.rhs")
			fb.lowerCond(n.Left, midB, falseB)
			fb.cur = midB
			fb.lowerCond(n.Right, trueB, falseB)
			return
		}
		if n.Op == ast.BinLogOr {
			midB := fb.fn.NewBlock("or.rhs")
			fb.lowerCond(n.Left, trueB, midB)
			fb.cur = midB
			fb.lowerCond(n.Right, trueB, falseB)
			return
		}
	case *ast.UnaryExpr:
		if n.Op == ast.UnNot {
			fb.lowerCond(n.Operand, falseB, trueB)
			return
		}
	}
	v, t := fb.lowerExpr(e)
	fb.cur.emit(&Instr{Op: OpCondJump, Type: t, Arg1: v, Then: trueB, Else: falseB})
	fb.cur.addSucc(trueB)
	fb.cur.addSucc(falseB)
}

// -----------------------------------------------------------------------------
// Expressions

func (fb *funcBuilder) lowerExpr(e ast.Expr) (VReg, Type) {
	switch n := e.(type) {
	case nil:
		return NoVReg, I64
	case *ast.IntLitExpr:
		t := irType(n.GetType())
		dst := fb.fn.NewVReg()
		fb.cur.emit(&Instr{Op: OpImm, Type: t, Dst: dst, ImmValue: n.Value})
		return dst, t
	case *ast.FloatLitExpr:
		t := irType(n.GetType())
		dst := fb.fn.NewVReg()
		fb.cur.emit(&Instr{Op: OpImm, Type: t, Dst: dst, ImmFloat: n.Value})
		return dst, t
	case *ast.StringLitExpr:
		label := fb.pb.internString(n.Value)
		dst := fb.fn.NewVReg()
		fb.cur.emit(&Instr{Op: OpLoadGlobal, Type: I64, Dst: dst, Symbol: label})
		return dst, I64
	case *ast.VarRefExpr:
		return fb.lowerVarRef(n)
	case *ast.UnaryExpr:
		return fb.lowerUnary(n)
	case *ast.BinaryExpr:
		return fb.lowerBinary(n)
	case *ast.AssignExpr:
		return fb.lowerAssign(n)
	case *ast.CondExpr:
		return fb.lowerTernary(n)
	case *ast.CommaExpr:
		fb.lowerExpr(n.Left)
		return fb.lowerExpr(n.Right)
	case *ast.CallExpr:
		return fb.lowerCall(n)
	case *ast.CastExpr:
		return fb.lowerCast(n)
	case *ast.SizeofExpr:
		sz := fb.sizeofValue(n)
		dst := fb.fn.NewVReg()
		fb.cur.emit(&Instr{Op: OpImm, Type: I64, Dst: dst, ImmValue: sz})
		return dst, I64
	case *ast.MemberExpr:
		addr, _ := fb.lowerAddr(n)
		t := irType(n.GetType())
		dst := fb.fn.NewVReg()
		fb.cur.emit(&Instr{Op: OpLoad, Type: t, Dst: dst, Arg1: addr})
		return dst, t
	case *ast.CompoundLitExpr:
		return fb.lowerVarInfoRef(n.Hidden)
	}
	panic(fmt.Sprintf("ir: unhandled expr %T", e))
}

func (fb *funcBuilder) sizeofValue(n *ast.SizeofExpr) int64 {
	if n.OperandType != nil {
		return ast.SizeOf(n.OperandType)
	}
	return ast.SizeOf(n.OperandExpr.GetType())
}

func (fb *funcBuilder) lowerVarRef(n *ast.VarRefExpr) (VReg, Type) {
	return fb.lowerVarInfoRef(n.Var)
}

func (fb *funcBuilder) lowerVarInfoRef(v *ast.VarInfo) (VReg, Type) {
	if v == nil {
		dst := fb.fn.NewVReg()
		return dst, I64
	}
	t := irType(v.Type)
	if isAggregate(v.Type) {
		// An aggregate "value" is really its address.
		dst := fb.fn.NewVReg()
		if v.IsLocal() {
			fb.cur.emit(&Instr{Op: OpLoadAddr, Type: I64, Dst: dst, Slot: fb.slotFor(v)})
		} else {
			fb.cur.emit(&Instr{Op: OpLoadGlobal, Type: I64, Dst: dst, Symbol: v.Name.String()})
		}
		return dst, I64
	}
	if v.IsGlobal() {
		dst := fb.fn.NewVReg()
		fb.cur.emit(&Instr{Op: OpLoadGlobal, Type: t, Dst: dst, Symbol: v.Name.String()})
		return dst, t
	}
	if slot, ok := fb.slots[v]; ok {
		dst := fb.fn.NewVReg()
		fb.cur.emit(&Instr{Op: OpLoadLocal, Type: t, Dst: dst, Slot: slot})
		return dst, t
	}
	return fb.vregs[v], t
}

func (fb *funcBuilder) lowerUnary(n *ast.UnaryExpr) (VReg, Type) {
	switch n.Op {
	case ast.UnAddr:
		return fb.lowerAddr(n.Operand)
	case ast.UnDeref:
		addr, _ := fb.lowerExpr(n.Operand)
		t := irType(n.GetType())
		if isAggregate(n.GetType()) {
			return addr, I64
		}
		dst := fb.fn.NewVReg()
		fb.cur.emit(&Instr{Op: OpLoad, Type: t, Dst: dst, Arg1: addr})
		return dst, t
	case ast.UnNeg, ast.UnBitNot, ast.UnNot:
		v, t := fb.lowerExpr(n.Operand)
		dst := fb.fn.NewVReg()
		op := map[ast.UnaryOp]UnOp{ast.UnNeg: UNeg, ast.UnBitNot: UBitNot, ast.UnNot: UNot}[n.Op]
		fb.cur.emit(&Instr{Op: OpUnary, Type: t, Dst: dst, UnOp: op, Arg1: v})
		return dst, t
	case ast.UnPreInc, ast.UnPreDec, ast.UnPostInc, ast.UnPostDec:
		return fb.lowerIncDec(n)
	}
	panic("ir: unhandled unary op")
}

func (fb *funcBuilder) lowerIncDec(n *ast.UnaryExpr) (VReg, Type) {
	addr, t := fb.lowerAddr(n.Operand)
	old := fb.fn.NewVReg()
	fb.cur.emit(&Instr{Op: OpLoad, Type: t, Dst: old, Arg1: addr})

	step := fb.fn.NewVReg()
	stepVal := int64(1)
	if pt := n.Operand.GetType(); pt != nil && pt.IsPtr() {
		stepVal = ast.SizeOf(pt.ElemType)
	}
	fb.cur.emit(&Instr{Op: OpImm, Type: t, Dst: step, ImmValue: stepVal})

	bop := BAdd
	if n.Op == ast.UnPreDec || n.Op == ast.UnPostDec {
		bop = BSub
	}
	updated := fb.fn.NewVReg()
	fb.cur.emit(&Instr{Op: OpBin, Type: t, Dst: updated, BinOp: bop, Arg1: old, Arg2: step})
	fb.cur.emit(&Instr{Op: OpStore, Type: t, Arg1: updated, Arg2: addr})

	if n.Op == ast.UnPreInc || n.Op == ast.UnPreDec {
		return updated, t
	}
	return old, t
}

// lowerAddr computes e's address into a VReg -- used both for `&e` and as
// the internal lvalue helper for assignment/increment/member-access.
func (fb *funcBuilder) lowerAddr(e ast.Expr) (VReg, Type) {
	switch n := e.(type) {
	case *ast.VarRefExpr:
		v := n.Var
		dst := fb.fn.NewVReg()
		if v == nil {
			return dst, I64
		}
		if v.IsLocal() {
			fb.cur.emit(&Instr{Op: OpLoadAddr, Type: I64, Dst: dst, Slot: fb.slotFor(v)})
		} else {
			fb.cur.emit(&Instr{Op: OpLoadAddr, Type: I64, Dst: dst, Symbol: v.Name.String()})
		}
		return dst, I64
	case *ast.UnaryExpr:
		if n.Op == ast.UnDeref {
			return fb.lowerExpr(n.Operand)
		}
	case *ast.MemberExpr:
		var base VReg
		if n.Arrow {
			base, _ = fb.lowerExpr(n.Base)
		} else {
			base, _ = fb.lowerAddr(n.Base)
		}
		baseType := n.Base.GetType()
		if n.Arrow {
			baseType = baseType.ElemType
		}
		m, off, _ := ast.FindMember(baseType.Struct, n.Member)
		_ = m
		dst := fb.fn.NewVReg()
		fb.cur.emit(&Instr{Op: OpBin, Type: I64, Dst: dst, BinOp: BAdd, Arg1: base, Arg2: fb.constVReg(int64(off))})
		return dst, I64
	}
	panic(fmt.Sprintf("ir: not an lvalue: %T", e))
}

func (fb *funcBuilder) constVReg(v int64) VReg {
	dst := fb.fn.NewVReg()
	fb.cur.emit(&Instr{Op: OpImm, Type: I64, Dst: dst, ImmValue: v})
	return dst
}

func (fb *funcBuilder) lowerBinary(n *ast.BinaryExpr) (VReg, Type) {
	if n.Op == ast.BinLogAnd || n.Op == ast.BinLogOr {
		return fb.lowerLogical(n)
	}
	lv, lt := fb.lowerExpr(n.Left)
	rv, _ := fb.lowerExpr(n.Right)
	if n.PtrScale > 1 {
		scaled := fb.fn.NewVReg()
		scale := fb.constVReg(n.PtrScale)
		fb.cur.emit(&Instr{Op: OpBin, Type: I64, Dst: scaled, BinOp: BMul, Arg1: rv, Arg2: scale})
		rv = scaled
	}
	if cmp, ok := cmpOpOf[n.Op]; ok {
		dst := fb.fn.NewVReg()
		fb.cur.emit(&Instr{Op: OpCompare, Type: lt, Dst: dst, CmpOp: cmp, Arg1: lv, Arg2: rv})
		return dst, I32
	}
	op := binOpOf[n.Op]
	t := irType(n.GetType())
	dst := fb.fn.NewVReg()
	fb.cur.emit(&Instr{Op: OpBin, Type: t, Dst: dst, BinOp: op, Arg1: lv, Arg2: rv})
	return dst, t
}

var cmpOpOf = map[ast.BinOp]CmpOp{
	ast.BinLt: CLt, ast.BinLe: CLe, ast.BinGt: CGt, ast.BinGe: CGe,
	ast.BinEq: CEq, ast.BinNe: CNe,
}

var binOpOf = map[ast.BinOp]BinOp{
	ast.BinAdd: BAdd, ast.BinSub: BSub, ast.BinMul: BMul, ast.BinDiv: BDiv,
	ast.BinMod: BMod, ast.BinAnd: BAnd, ast.BinOr: BOr, ast.BinXor: BXor,
	ast.BinShl: BShl, ast.BinShr: BShr,
}

// lowerLogical implements `&&`/`||` by writing the result into one shared
// VReg from every arm rather than merging values with a phi -- this IR is
// deliberately not SSA-form.
func (fb *funcBuilder) lowerLogical(n *ast.BinaryExpr) (VReg, Type) {
	result := fb.fn.NewVReg()
	trueB := fb.fn.NewBlock("logic.true")
	falseB := fb.fn.NewBlock("logic.false")
	joinB := fb.fn.NewBlock("logic.join")

	fb.lowerCond(n, trueB, falseB)

	fb.cur = trueB
	fb.cur.emit(&Instr{Op: OpImm, Type: I32, Dst: result, ImmValue: 1})
	fb.jumpTo(joinB)

	fb.cur = falseB
	fb.cur.emit(&Instr{Op: OpImm, Type: I32, Dst: result, ImmValue: 0})
	fb.jumpTo(joinB)

	fb.cur = joinB
	return result, I32
}

func (fb *funcBuilder) lowerTernary(n *ast.CondExpr) (VReg, Type) {
	result := fb.fn.NewVReg()
	t := irType(n.GetType())
	thenB := fb.fn.NewBlock("cond.then")
	elseB := fb.fn.NewBlock("cond.else")
	joinB := fb.fn.NewBlock("cond.join")

	fb.lowerCond(n.Cond, thenB, elseB)

	fb.cur = thenB
	v, _ := fb.lowerExpr(n.Then)
	fb.cur.emit(&Instr{Op: OpMove, Type: t, Dst: result, Arg1: v})
	fb.jumpTo(joinB)

	fb.cur = elseB
	v, _ = fb.lowerExpr(n.Else)
	fb.cur.emit(&Instr{Op: OpMove, Type: t, Dst: result, Arg1: v})
	fb.jumpTo(joinB)

	fb.cur = joinB
	return result, t
}

func (fb *funcBuilder) lowerAssign(n *ast.AssignExpr) (VReg, Type) {
	rhs, rt := fb.lowerExpr(n.Right)
	if n.IsCompound {
		cur, ct := fb.lowerExpr(n.Left)
		combined := fb.fn.NewVReg()
		fb.cur.emit(&Instr{Op: OpBin, Type: ct, Dst: combined, BinOp: n.ModifyOp, Arg1: cur, Arg2: rhs})
		rhs, rt = combined, ct
	}
	fb.storeInto(n.Left, rhs, rt)
	return rhs, rt
}

func (fb *funcBuilder) storeInto(lhs ast.Expr, val VReg, t Type) {
	if ref, ok := lhs.(*ast.VarRefExpr); ok && ref.Var != nil && !isAggregate(ref.Var.Type) {
		v := ref.Var
		if v.IsGlobal() {
			fb.cur.emit(&Instr{Op: OpStoreGlobal, Type: t, Symbol: v.Name.String(), Arg1: val})
			return
		}
		if slot, ok := fb.slots[v]; ok {
			fb.cur.emit(&Instr{Op: OpStoreLocal, Type: t, Slot: slot, Arg1: val})
			return
		}
		fb.vregs[v] = val
		return
	}
	addr, _ := fb.lowerAddr(lhs)
	fb.cur.emit(&Instr{Op: OpStore, Type: t, Arg1: val, Arg2: addr})
}

func (fb *funcBuilder) lowerCall(n *ast.CallExpr) (VReg, Type) {
	var argVRegs []VReg
	var argTypes []Type
	for _, a := range n.Args {
		v, t := fb.lowerExpr(a)
		argVRegs = append(argVRegs, v)
		argTypes = append(argTypes, t)
	}
	fb.cur.emit(&Instr{Op: OpPreCall})
	for i, v := range argVRegs {
		fb.cur.emit(&Instr{Op: OpPushArg, Type: argTypes[i], Arg1: v})
	}
	callee := ""
	if ref, ok := n.Callee.(*ast.VarRefExpr); ok {
		callee = ref.Name.String()
	}
	retType := irType(n.GetType())
	fb.cur.emit(&Instr{Op: OpCall, Type: retType, Symbol: callee})
	if n.GetType() == nil || n.GetType().IsVoid() {
		return NoVReg, retType
	}
	dst := fb.fn.NewVReg()
	fb.cur.emit(&Instr{Op: OpResult, Type: retType, Dst: dst})
	return dst, retType
}

func (fb *funcBuilder) lowerCast(n *ast.CastExpr) (VReg, Type) {
	v, _ := fb.lowerExpr(n.Operand)
	dst := fb.fn.NewVReg()
	t := irType(n.GetType())
	fb.cur.emit(&Instr{Op: OpCast, Type: t, Dst: dst, Arg1: v})
	return dst, t
}
