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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mkuznets/cc1/ast"
)

func buildFrom(t *testing.T, src string) *Program {
	t.Helper()
	ctx := ast.NewContext()
	lx := ast.NewLexer(ctx)
	lx.SetSourceString(src, "<test>", 1)
	tu := ast.ParseFile(ctx, lx, "<test>")
	require.False(t, ctx.Errors.HasErrors(), "unexpected parse errors")
	return Build(ctx, tu)
}

func TestBuildSimpleFunction(t *testing.T) {
	prog := buildFrom(t, `int main(void) { return 0; }`)
	require.Len(t, prog.Functions, 1)

	fn := prog.Functions[0]
	require.Equal(t, "main", fn.Name)
	require.True(t, fn.Exported)
	require.NotEmpty(t, fn.Blocks)
	require.NotNil(t, fn.Entry)
	require.True(t, fn.Entry.terminated())
}

func TestBuildStaticFunctionIsNotExported(t *testing.T) {
	prog := buildFrom(t, `static int helper(void) { return 1; }`)
	fn := prog.Functions[0]
	require.False(t, fn.Exported)
}

func TestBuildArithmeticEmitsBinOp(t *testing.T) {
	prog := buildFrom(t, `
	int add(int a, int b) {
		return a + b;
	}`)
	fn := prog.Functions[0]
	require.Len(t, fn.Params, 2)

	found := false
	for _, blk := range fn.Blocks {
		for _, in := range blk.Instrs {
			if in.Op == OpBin {
				found = true
			}
		}
	}
	require.True(t, found, "expected an OpBin instruction for a+b")
}

func TestBuildIfStatementSplitsBlocks(t *testing.T) {
	prog := buildFrom(t, `
	int f(int v) {
		if (v) {
			return 1;
		}
		return 0;
	}`)
	fn := prog.Functions[0]
	require.Greater(t, len(fn.Blocks), 1, "an if statement should split the CFG into multiple blocks")

	var hasCondJump bool
	for _, blk := range fn.Blocks {
		for _, in := range blk.Instrs {
			if in.Op == OpCondJump {
				hasCondJump = true
			}
		}
	}
	require.True(t, hasCondJump)
}

func TestBuildGlobalVariable(t *testing.T) {
	prog := buildFrom(t, `int counter = 42;`)
	require.Len(t, prog.Globals, 1)
	g := prog.Globals[0]
	require.Equal(t, "counter", g.Name)
	require.True(t, g.HasInit)
	require.True(t, g.Exported)
}

func TestBuildStringLiteralIsPromoted(t *testing.T) {
	prog := buildFrom(t, `
	int puts(const char *s);
	int f(void) {
		return puts("hello");
	}`)
	require.NotEmpty(t, prog.Strings)
	require.Equal(t, "hello", prog.Strings[0].Value)
}
