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
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mkuznets/cc1/ast"
	"github.com/mkuznets/cc1/compile/ir"
)

func buildProgram(t *testing.T, src string) *ir.Program {
	t.Helper()
	ctx := ast.NewContext()
	lx := ast.NewLexer(ctx)
	lx.SetSourceString(src, "<test>", 1)
	tu := ast.ParseFile(ctx, lx, "<test>")
	require.False(t, ctx.Errors.HasErrors())
	return ir.Build(ctx, tu)
}

func TestCodeGenProgramEmitsGlobalFunctionLabel(t *testing.T) {
	prog := buildProgram(t, `int main(void) { return 0; }`)
	asm := CodeGenProgram(prog, false)

	require.Contains(t, asm, ".globl main")
	require.Contains(t, asm, "main:")
	require.Contains(t, asm, "ret")
}

func TestCodeGenProgramKeepsStaticFunctionLocal(t *testing.T) {
	prog := buildProgram(t, `static int helper(void) { return 1; }`)
	asm := CodeGenProgram(prog, false)

	require.Contains(t, asm, ".local helper")
	require.NotContains(t, asm, ".globl helper")
}

func TestCodeGenProgramEmitsGlobalData(t *testing.T) {
	prog := buildProgram(t, `int counter = 42;`)
	asm := CodeGenProgram(prog, false)

	require.Contains(t, asm, ".data")
	require.Contains(t, asm, ".globl counter")
	require.Contains(t, asm, "counter:")
}

func TestCodeGenProgramEmitsUninitializedGlobalInBss(t *testing.T) {
	prog := buildProgram(t, `int counter;`)
	asm := CodeGenProgram(prog, false)

	require.Contains(t, asm, ".bss")
	require.Contains(t, asm, ".zero")
}

func TestCodeGenProgramEmitsStringLiteralInRodata(t *testing.T) {
	prog := buildProgram(t, `
	int puts(const char *s);
	int f(void) {
		return puts("hello");
	}`)
	asm := CodeGenProgram(prog, false)

	require.Contains(t, asm, ".section .rodata")
	require.Contains(t, asm, `.string "hello"`)
}

func TestLowerProducesOneLIRPerFunction(t *testing.T) {
	prog := buildProgram(t, `
	int f(void) { return 1; }
	int g(void) { return 2; }`)

	var lirs []*LIR
	for _, fn := range prog.Functions {
		lirs = append(lirs, Lower(fn))
	}
	require.Len(t, lirs, 2)

	names := map[string]bool{}
	for _, l := range lirs {
		names[l.Name] = true
	}
	require.True(t, names["f"])
	require.True(t, names["g"])
}

func TestCodeGenProgramMultipleFunctionsAreOrdered(t *testing.T) {
	prog := buildProgram(t, `
	int f(void) { return 1; }
	int g(void) { return 2; }`)
	asm := CodeGenProgram(prog, false)

	fIdx := strings.Index(asm, "f:")
	gIdx := strings.Index(asm, "g:")
	require.NotEqual(t, -1, fIdx)
	require.NotEqual(t, -1, gIdx)
	require.Less(t, fIdx, gIdx)
}
