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
package codegen

import (
	"fmt"
	"math"

	"github.com/mkuznets/cc1/compile/ir"
	"github.com/mkuznets/cc1/utils"
)

// ------------------------------------------------------------------------------
// Lowering Pass
//
// ir.Function already hands us a flat instruction stream per basic block, in
// program order, with no phi nodes to resolve -- lowering here is a
// one-to-few expansion of each ir.Instr into LIR instructions, not a
// value-graph walk.

func alignUp(n, align int64) int64 {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}

// layoutSlots assigns a frame offset (relative to rbp, growing toward
// negative addresses) to every named stack slot a function needs -- locals
// that escaped to memory, spill slots and compiler-materialized temporaries
// such as struct-return buffers. Returns the total bytes reserved, rounded
// up to a 16-byte boundary.
func layoutSlots(fn *ir.Function) int64 {
	var off int64
	for _, s := range fn.Slots {
		align := s.Align
		if align < 1 {
			align = 1
		}
		off = alignUp(off, align) + s.Size
		s.Offset = -off
	}
	return alignUp(off, 16)
}

func imm(t *LIRType, v int64) Imm {
	return Imm{Type: t, Value: v}
}

type pendingArg struct {
	v ir.VReg
	t ir.Type
}

func (lir *LIR) slotAddr(t *LIRType, slot *ir.Slot, extra int64) Addr {
	return lir.NewAddr(t, RBP, NoReg, lir.NewOffset(int(slot.Offset+extra)))
}

func (lir *LIR) lowerMove(blockID int, in *ir.Instr) {
	t := GetLIRType(in.Type)
	src := lir.operandOf(in.Arg1, t)
	dst := lir.operandOf(in.Dst, t)
	lir.NewInstr(blockID, LIR_Mov, dst, src, dst).comment("move")
}

func (lir *LIR) lowerImm(blockID int, in *ir.Instr) {
	t := GetLIRType(in.Type)
	dst := lir.operandOf(in.Dst, t)
	if in.Type.Float {
		var hexLit string
		if in.Type.Size == 4 {
			hexLit = fmt.Sprintf("0x%x", math.Float32bits(float32(in.ImmFloat)))
		} else {
			hexLit = utils.Float64ToHex(in.ImmFloat)
		}
		text := lir.NewText(hexLit, TextFloat)
		addr := lir.NewAddr(t, RIP, NoReg, text)
		lir.NewInstr(blockID, LIR_Mov, dst, addr, dst).comment("float literal")
		return
	}
	lir.NewInstr(blockID, LIR_Mov, dst, imm(t, in.ImmValue), dst).comment("imm")
}

func (lir *LIR) lowerLoadLocal(blockID int, in *ir.Instr) {
	t := GetLIRType(in.Type)
	addr := lir.slotAddr(t, in.Slot, in.SlotOffset)
	dst := lir.operandOf(in.Dst, t)
	lir.NewInstr(blockID, LIR_Mov, dst, addr, dst).comment(in.Slot.Name)
}

func (lir *LIR) lowerStoreLocal(blockID int, in *ir.Instr) {
	t := GetLIRType(in.Type)
	addr := lir.slotAddr(t, in.Slot, in.SlotOffset)
	src := lir.operandOf(in.Arg1, t)
	lir.NewInstr(blockID, LIR_Mov, addr, src, addr).comment(in.Slot.Name)
}

func (lir *LIR) lowerLoadAddr(blockID int, in *ir.Instr) {
	dst := lir.operandOf(in.Dst, LIRTypeQWord)
	if in.Slot != nil {
		addr := lir.slotAddr(LIRTypeQWord, in.Slot, in.SlotOffset)
		lir.NewInstr(blockID, LIR_Lea, dst, addr, dst).comment(in.Slot.Name)
		return
	}
	addr := lir.NewAddr(LIRTypeQWord, RIP, NoReg, Symbol{Name: in.Symbol})
	lir.NewInstr(blockID, LIR_Lea, dst, addr, dst).comment(in.Symbol)
}

func (lir *LIR) lowerLoadGlobal(blockID int, in *ir.Instr) {
	t := GetLIRType(in.Type)
	addr := lir.NewAddr(t, RIP, NoReg, Symbol{Name: in.Symbol})
	dst := lir.operandOf(in.Dst, t)
	lir.NewInstr(blockID, LIR_Mov, dst, addr, dst).comment(in.Symbol)
}

func (lir *LIR) lowerStoreGlobal(blockID int, in *ir.Instr) {
	t := GetLIRType(in.Type)
	addr := lir.NewAddr(t, RIP, NoReg, Symbol{Name: in.Symbol})
	src := lir.operandOf(in.Arg1, t)
	lir.NewInstr(blockID, LIR_Mov, addr, src, addr).comment(in.Symbol)
}

func (lir *LIR) lowerLoad(blockID int, in *ir.Instr) {
	t := GetLIRType(in.Type)
	base := lir.operandOf(in.Arg1, LIRTypeQWord)
	addr := lir.NewAddr(t, base, NoReg, lir.NewOffset(0))
	dst := lir.operandOf(in.Dst, t)
	lir.NewInstr(blockID, LIR_Mov, dst, addr, dst).comment("load")
}

func (lir *LIR) lowerStore(blockID int, in *ir.Instr) {
	t := GetLIRType(in.Type)
	base := lir.operandOf(in.Arg2, LIRTypeQWord)
	addr := lir.NewAddr(t, base, NoReg, lir.NewOffset(0))
	src := lir.operandOf(in.Arg1, t)
	lir.NewInstr(blockID, LIR_Mov, addr, src, addr).comment("store")
}

var binLirOps = map[ir.BinOp]LIROp{
	ir.BAdd: LIR_Add,
	ir.BSub: LIR_Sub,
	ir.BAnd: LIR_And,
	ir.BOr:  LIR_Or,
	ir.BXor: LIR_Xor,
}

func (lir *LIR) lowerBin(blockID int, in *ir.Instr) {
	t := GetLIRType(in.Type)
	left := lir.operandOf(in.Arg1, t)
	right := lir.operandOf(in.Arg2, t)
	result := lir.operandOf(in.Dst, t)

	switch in.BinOp {
	case ir.BAdd, ir.BSub, ir.BAnd, ir.BOr, ir.BXor:
		lirOp := binLirOps[in.BinOp]
		lir.NewInstr(blockID, LIR_Mov, result, left, result).comment("binop")
		lir.NewInstr(blockID, lirOp, result, right, result).comment("binop")
	case ir.BShl, ir.BShr:
		// Shift count must be in CL regardless of the operand width.
		var reg Register
		for _, r := range []Register{RCX, ECX, CX, CL} {
			if r.GetType() == t {
				reg = r
				break
			}
		}
		lir.NewInstr(blockID, LIR_Mov, result, left, result).comment("shift")
		lir.NewInstr(blockID, LIR_Mov, reg, right, reg).comment("shift count")
		lirOp := LIR_LShift
		if in.BinOp == ir.BShr {
			lirOp = LIR_RShift
		}
		lir.NewInstr(blockID, lirOp, result, CL, result).comment("shift")
	case ir.BMul:
		// The destination of mul must be a register, so load the left
		// operand into a scratch register first.
		freeRegs := CallerSaveRegs(t)
		tempReg := freeRegs[0]
		lir.NewInstr(blockID, LIR_Mov, tempReg, left, tempReg).comment("mul")
		lir.NewInstr(blockID, LIR_Mul, tempReg, right, tempReg).comment("mul")
		lir.NewInstr(blockID, LIR_Mov, result, tempReg, result).comment("mul")
	case ir.BDiv, ir.BMod:
		var dividendReg Register
		for _, r := range []Register{RAX, EAX, AX, AL} {
			if r.GetType() == t {
				dividendReg = r
				break
			}
		}
		lir.NewInstr(blockID, LIR_Mov, dividendReg, left, dividendReg).comment("div")
		lir.NewInstr(blockID, LIR_Div, right, right).comment("div")
		if in.BinOp == ir.BDiv {
			lir.NewInstr(blockID, LIR_Mov, result, dividendReg, result).comment("quotient")
		} else {
			var remReg Register
			for _, r := range []Register{RDX, EDX, DX, DL} {
				if r.GetType() == t {
					remReg = r
					break
				}
			}
			lir.NewInstr(blockID, LIR_Mov, result, remReg, result).comment("remainder")
		}
	default:
		utils.Unimplement()
	}
}

func (lir *LIR) lowerUnary(blockID int, in *ir.Instr) {
	t := GetLIRType(in.Type)
	src := lir.operandOf(in.Arg1, t)
	dst := lir.operandOf(in.Dst, t)
	switch in.UnOp {
	case ir.UBitNot:
		lir.NewInstr(blockID, LIR_Mov, dst, src, dst).comment("bitnot")
		lir.NewInstr(blockID, LIR_Not, dst, dst).comment("bitnot")
	case ir.UNeg:
		lir.NewInstr(blockID, LIR_Mov, dst, src, dst).comment("neg")
		lir.NewInstr(blockID, LIR_Neg, dst, dst).comment("neg")
	case ir.UNot:
		zero := imm(t, 0)
		lir.NewInstr(blockID, LIR_CmpEQ, dst, zero, src).comment("logical not")
	default:
		utils.Unimplement()
	}
}

func (lir *LIR) lowerCompare(blockID int, in *ir.Instr) {
	t := GetLIRType(in.Type)
	left := lir.operandOf(in.Arg1, t)
	right := lir.operandOf(in.Arg2, t)
	lirOp := getCondLirOp(in.CmpOp)
	result := lir.operandOf(in.Dst, LIRTypeDWord)
	lir.NewInstr(blockID, lirOp, result, right, left).comment("compare")
}

// lowerCast handles the integer-to-integer conversions the language needs
// (widen/truncate). Float conversions are not implemented yet.
func (lir *LIR) lowerCast(blockID int, in *ir.Instr) {
	if in.Type.Float {
		utils.Unimplement()
		return
	}
	t := GetLIRType(in.Type)
	src := lir.operandOf(in.Arg1, t)
	dst := lir.operandOf(in.Dst, t)
	lir.NewInstr(blockID, LIR_Mov, dst, src, dst).comment("cast")
}

func (lir *LIR) lowerCondJump(blockID int, in *ir.Instr) {
	t := GetLIRType(in.Type)
	cond := lir.operandOf(in.Arg1, t)
	lir.NewInstr(blockID, LIR_Test, NoReg, cond, cond).comment("cond")
	lir.NewJmp(blockID, LIR_Jne, in.Then.ID).comment(in.Then.Label)
	lir.NewJmp(blockID, LIR_Jmp, in.Else.ID).comment(in.Else.Label)
}

// lowerTableJump expands a switch into a chain of equality tests, since the
// assembler has no jump-table support.
func (lir *LIR) lowerTableJump(blockID int, in *ir.Instr) {
	t := GetLIRType(in.Type)
	val := lir.operandOf(in.Arg1, t)
	for i, c := range in.Cases {
		hit := lir.NewVReg(t)
		lir.NewInstr(blockID, LIR_CmpEQ, hit, imm(t, c), val).comment("case")
		lir.NewInstr(blockID, LIR_Test, NoReg, hit, hit).comment("case")
		lir.NewJmp(blockID, LIR_Jne, in.Targets[i].ID).comment(in.Targets[i].Label)
	}
	lir.NewJmp(blockID, LIR_Jmp, in.Default.ID).comment(in.Default.Label)
}

func (lir *LIR) lowerCall(blockID int, in *ir.Instr, args []pendingArg) {
	for i, pa := range args {
		t := GetLIRType(pa.t)
		src := lir.operandOf(pa.v, t)
		dst := ArgReg(i, t)
		lir.NewInstr(blockID, LIR_Mov, dst, src, dst).comment(fmt.Sprintf("arg %d", i))
	}
	retReg := ReturnReg(GetLIRType(in.Type))
	lir.NewInstr(blockID, LIR_Call, retReg, Symbol{Name: in.Symbol}).comment(in.Symbol)
}

func (lir *LIR) lowerResult(blockID int, in *ir.Instr) {
	t := GetLIRType(in.Type)
	retReg := ReturnReg(t)
	dst := lir.operandOf(in.Dst, t)
	lir.NewInstr(blockID, LIR_Mov, dst, retReg, dst).comment("call result")
}

func (lir *LIR) lowerReturn(blockID int, in *ir.Instr) {
	if in.Arg1 != ir.NoVReg {
		t := GetLIRType(in.Type)
		src := lir.operandOf(in.Arg1, t)
		retReg := ReturnReg(t)
		lir.NewInstr(blockID, LIR_Mov, retReg, src, retReg).comment("return value")
	}
	lir.NewInstr(blockID, LIR_Ret, NoReg).comment("ret")
}

func (lir *LIR) lowerInlineAsm(blockID int, in *ir.Instr) {
	lir.NewInstr(blockID, LIR_InlineAsm, NoReg, Text{Value: in.AsmTemplate}).comment("asm")
}

// lowerParams moves each incoming argument register into the VReg the
// builder assigned it.
func (lir *LIR) lowerParams(fn *ir.Function) {
	for i, p := range fn.Params {
		if p == ir.NoVReg {
			continue
		}
		t := GetLIRType(fn.ParamType[i])
		dst := lir.operandOf(p, t)
		lir.NewInstr(fn.Entry.ID, LIR_Mov, dst, ArgReg(i, t), dst).comment(fmt.Sprintf("param %d", i))
	}
}

func (lir *LIR) lowerInstr(blockID int, in *ir.Instr, pending *[]pendingArg) {
	switch in.Op {
	case ir.OpMove:
		lir.lowerMove(blockID, in)
	case ir.OpImm:
		lir.lowerImm(blockID, in)
	case ir.OpLoadLocal:
		lir.lowerLoadLocal(blockID, in)
	case ir.OpStoreLocal:
		lir.lowerStoreLocal(blockID, in)
	case ir.OpLoadAddr:
		lir.lowerLoadAddr(blockID, in)
	case ir.OpLoadGlobal:
		lir.lowerLoadGlobal(blockID, in)
	case ir.OpStoreGlobal:
		lir.lowerStoreGlobal(blockID, in)
	case ir.OpLoad:
		lir.lowerLoad(blockID, in)
	case ir.OpStore:
		lir.lowerStore(blockID, in)
	case ir.OpBin:
		lir.lowerBin(blockID, in)
	case ir.OpUnary:
		lir.lowerUnary(blockID, in)
	case ir.OpCompare:
		lir.lowerCompare(blockID, in)
	case ir.OpCast:
		lir.lowerCast(blockID, in)
	case ir.OpJump:
		lir.NewJmp(blockID, LIR_Jmp, in.Then.ID).comment(in.Then.Label)
	case ir.OpCondJump:
		lir.lowerCondJump(blockID, in)
	case ir.OpTableJump:
		lir.lowerTableJump(blockID, in)
	case ir.OpPreCall:
		*pending = (*pending)[:0]
	case ir.OpPushArg:
		*pending = append(*pending, pendingArg{v: in.Arg1, t: in.Type})
	case ir.OpCall:
		lir.lowerCall(blockID, in, *pending)
		*pending = (*pending)[:0]
	case ir.OpResult:
		lir.lowerResult(blockID, in)
	case ir.OpInlineAsm:
		lir.lowerInlineAsm(blockID, in)
	case ir.OpReturn:
		lir.lowerReturn(blockID, in)
	default:
		utils.Unimplement()
	}
}

// Lower translates one IR function into its LIR form, ready for the
// assembler. Every ir.Block is already a straight-line instruction list
// ending in exactly one control transfer, so this is a single linear pass
// over each block in turn rather than a predecessor-ordered graph walk.
func Lower(fn *ir.Function) *LIR {
	lir := NewLIR(fn)
	lir.SlotsSize = layoutSlots(fn)

	for _, block := range fn.Blocks {
		lir.NewLabel(block.ID)
	}

	var pending []pendingArg
	for _, block := range fn.Blocks {
		if block == fn.Entry {
			lir.lowerParams(fn)
		}
		for _, succ := range block.Succs {
			lir.Edges[block.ID] = append(lir.Edges[block.ID], succ.ID)
		}
		for _, in := range block.Instrs {
			lir.lowerInstr(block.ID, in, &pending)
		}
	}

	VerifyLIR(lir)
	return lir
}

// CodeGenProgram lowers every function in prog and assembles the whole
// translation unit: global/string data first, then one text section per
// function.
func CodeGenProgram(prog *ir.Program, debug bool) string {
	lirs := make([]*LIR, 0, len(prog.Functions))
	for _, fn := range prog.Functions {
		lir := Lower(fn)
		if debug {
			traceAllocation(lir)
		}
		lirs = append(lirs, lir)
	}
	return EmitData(prog) + CodeGen(lirs, debug)
}
