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

	"github.com/mkuznets/cc1/compile/ir"
)

// LIR is one function's worth of low-level IR: the Instruction lists LSRA
// and the assembler consume, indexed by source block id, plus the
// read-only-data literals that function needed. Building one from an
// ir.Function is a one-to-few expansion of each ir.Instr, not a value-graph
// walk -- ir.Function already gives us basic blocks in a flat instruction
// order, so lowering here never has to resolve phi nodes.
type LIR struct {
	Name     string
	Exported bool
	vid      int // number of virtual registers minted so far
	nextID   int // next Instruction.Id

	Instructions map[int][]*Instruction
	Labels       map[int]Label
	Edges        map[int][]int // successor block ids

	// SlotsSize is the total bytes layoutSlots reserved near rbp for this
	// function's named stack slots, so the assembler knows where virtual
	// register spill slots may safely start.
	SlotsSize int64

	Texts []Text

	vreg2operand map[ir.VReg]IOperand
	textID       int
}

func NewLIR(fn *ir.Function) *LIR {
	return &LIR{
		Name:         fn.Name,
		Exported:     fn.Exported,
		Instructions: map[int][]*Instruction{},
		Labels:       map[int]Label{},
		Edges:        map[int][]int{},
		vreg2operand: map[ir.VReg]IOperand{},
	}
}

func (lir *LIR) NewVReg(t *LIRType) Register {
	r := Register{Type: t, Index: lir.vid, Virtual: true}
	lir.vid++
	return r
}

// operandOf returns the Register previously bound to v, allocating a fresh
// one of type t if v has no binding yet -- this lets lowering reference a
// VReg before the instruction that defines it has been visited.
func (lir *LIR) operandOf(v ir.VReg, t *LIRType) Register {
	if v == ir.NoVReg {
		return NoReg
	}
	if op, ok := lir.vreg2operand[v]; ok {
		if r, ok := op.(Register); ok {
			return r
		}
	}
	r := lir.NewVReg(t)
	lir.vreg2operand[v] = r
	return r
}

func (lir *LIR) bind(v ir.VReg, op IOperand) {
	if v != ir.NoVReg {
		lir.vreg2operand[v] = op
	}
}

func (lir *LIR) NewInstr(blockID int, op LIROp, result IOperand, args ...IOperand) *Instruction {
	in := &Instruction{Op: op, Result: result, Args: args, Id: lir.nextID}
	lir.nextID++
	lir.Instructions[blockID] = append(lir.Instructions[blockID], in)
	return in
}

func (in *Instruction) comment(v interface{}) *Instruction {
	in.Comment = fmt.Sprintf("%v", v)
	return in
}

func (lir *LIR) NewJmp(blockID int, op LIROp, target int) *Instruction {
	return lir.NewInstr(blockID, op, lir.Labels[target])
}

func (lir *LIR) NewLabel(blockID int) Label {
	l := Label{Name: fmt.Sprintf("L%d", blockID)}
	lir.Labels[blockID] = l
	return l
}

func (lir *LIR) NewImm(v interface{}) Imm {
	t := LIRTypeDWord
	switch v.(type) {
	case int64:
		t = LIRTypeQWord
	case int16:
		t = LIRTypeWord
	case int8:
		t = LIRTypeByte
	}
	return Imm{Type: t, Value: v}
}

func (lir *LIR) NewOffset(v int) Offset {
	return Offset{Value: v}
}

func (lir *LIR) NewAddr(t *LIRType, base, index Register, disp IOperand) Addr {
	return Addr{Type: t, Base: base, Index: index, Disp: disp}
}

func (lir *LIR) NewText(value string, kind TextKind) Text {
	t := Text{Id: lir.textID, Kind: kind, Value: value}
	lir.textID++
	lir.Texts = append(lir.Texts, t)
	return t
}

// VerifyLIR runs a handful of cheap sanity checks over a freshly built LIR,
// catching lowering bugs (e.g. a block with no terminator) before they reach
// the register allocator.
func VerifyLIR(lir *LIR) {
	for id, is := range lir.Instructions {
		if len(is) == 0 {
			continue
		}
		last := is[len(is)-1].Op
		if !isBranchOp(last) && last != LIR_Ret {
			panic(fmt.Sprintf("codegen: block %d does not end in a control-transfer instruction", id))
		}
	}
}

func isBranchOp(op LIROp) bool {
	switch op {
	case LIR_Jmp, LIR_Jle, LIR_Jlt, LIR_Jge, LIR_Jgt, LIR_Jeq, LIR_Jne, LIR_Jz, LIR_Jnz, LIR_Ret:
		return true
	}
	return false
}
