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

	"github.com/samber/lo"

	"github.com/mkuznets/cc1/compile/ir"
)

// EmitData emits the .data/.bss image for every global variable and the
// .rodata image for every promoted string literal in prog. It is emitted
// once per Program, separately from the per-function .rodata blobs
// emitRoData writes for float immediates and inline-asm text.
func EmitData(prog *ir.Program) string {
	asm := &Assembler{}

	for _, g := range prog.Globals {
		asm.emitGlobal(g)
	}

	if len(prog.Strings) > 0 {
		asm.buf += "  .section .rodata\n"
		for _, s := range prog.Strings {
			asm.buf += fmt.Sprintf("%s:\n", s.Label)
			asm.buf += fmt.Sprintf("  .string %q\n", s.Value)
		}
	}

	return asm.buf
}

func (asm *Assembler) emitGlobal(g *ir.Global) {
	if !g.HasInit {
		asm.buf += "  .bss\n"
	} else {
		asm.buf += "  .data\n"
	}
	if g.Exported {
		asm.buf += fmt.Sprintf("  .globl %s\n", g.Name)
	} else {
		asm.buf += fmt.Sprintf("  .local %s\n", g.Name)
	}
	if g.Align > 1 {
		asm.buf += fmt.Sprintf("  .align %d\n", g.Align)
	}
	asm.buf += fmt.Sprintf("%s:\n", g.Name)
	if !g.HasInit {
		asm.buf += fmt.Sprintf("  .zero %d\n", g.Size)
		return
	}

	relocAt := lo.KeyBy(g.Relocs, func(r ir.Reloc) int64 { return r.Offset })

	var off int64
	for off < g.Size {
		if r, ok := relocAt[off]; ok {
			if r.Addend != 0 {
				asm.buf += fmt.Sprintf("  .quad %s+%d\n", r.Target, r.Addend)
			} else {
				asm.buf += fmt.Sprintf("  .quad %s\n", r.Target)
			}
			off += 8
			continue
		}
		asm.buf += fmt.Sprintf("  .byte %d\n", g.Bytes[off])
		off++
	}
}
