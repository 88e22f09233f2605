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
package ast

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func parseSource(t *testing.T, src string) (*TranslationUnit, *Context) {
	t.Helper()
	ctx := NewContext()
	lx := NewLexer(ctx)
	lx.SetSourceString(src, "<test>", 1)
	tu := ParseFile(ctx, lx, "<test>")
	return tu, ctx
}

func TestParseEmptyFunction(t *testing.T) {
	tu, ctx := parseSource(t, `int main(void) { return 0; }`)
	require.False(t, ctx.Errors.HasErrors())
	require.Len(t, tu.Decls, 1)

	fn, ok := tu.Decls[0].(*FuncDecl)
	require.True(t, ok)
	require.Equal(t, "main", fn.Name.String())
	require.NotNil(t, fn.Body)
	require.Len(t, fn.Body.Stmts, 1)

	ret, ok := fn.Body.Stmts[0].(*ReturnStmt)
	require.True(t, ok)
	lit, ok := ret.X.(*IntLitExpr)
	require.True(t, ok)
	require.EqualValues(t, 0, lit.Value)
}

func TestParseStaticFunctionIsNotExported(t *testing.T) {
	tu, ctx := parseSource(t, `static int helper(void) { return 1; }`)
	require.False(t, ctx.Errors.HasErrors())
	fn := tu.Decls[0].(*FuncDecl)
	require.True(t, fn.Storage.Has(SCStatic))
}

func TestParseBinaryPrecedence(t *testing.T) {
	tu, ctx := parseSource(t, `int f(void) { return 1 + 2 * 3; }`)
	require.False(t, ctx.Errors.HasErrors())
	fn := tu.Decls[0].(*FuncDecl)
	ret := fn.Body.Stmts[0].(*ReturnStmt)

	top, ok := ret.X.(*BinaryExpr)
	require.True(t, ok)
	require.Equal(t, BinAdd, top.Op)

	left, ok := top.Left.(*IntLitExpr)
	require.True(t, ok)
	require.EqualValues(t, 1, left.Value)

	right, ok := top.Right.(*BinaryExpr)
	require.True(t, ok)
	require.Equal(t, BinMul, right.Op)
}

func TestParseIfElseChain(t *testing.T) {
	tu, ctx := parseSource(t, `
	int f(int v) {
		if (v == 1) {
			return 10;
		} else if (v == 2) {
			return 20;
		} else {
			return 30;
		}
	}`)
	require.False(t, ctx.Errors.HasErrors())
	fn := tu.Decls[0].(*FuncDecl)
	outer, ok := fn.Body.Stmts[0].(*IfStmt)
	require.True(t, ok)
	require.NotNil(t, outer.Else)

	_, ok = outer.Else.(*IfStmt)
	require.True(t, ok)
}

func TestParseForLoop(t *testing.T) {
	tu, ctx := parseSource(t, `
	int f(void) {
		int sum = 0;
		for (int i = 0; i < 10; i = i + 1) {
			sum = sum + i;
		}
		return sum;
	}`)
	require.False(t, ctx.Errors.HasErrors())
	fn := tu.Decls[0].(*FuncDecl)
	require.Len(t, fn.Body.Stmts, 2)

	_, ok := fn.Body.Stmts[1].(*ForStmt)
	require.True(t, ok)
}

func TestParseStructDeclAndMemberAccess(t *testing.T) {
	tu, ctx := parseSource(t, `
	struct point { int x; int y; };
	int f(void) {
		struct point p;
		p.x = 1;
		return p.x;
	}`)
	require.False(t, ctx.Errors.HasErrors())
	require.Len(t, tu.Decls, 2)

	fn := tu.Decls[1].(*FuncDecl)
	assignStmt := fn.Body.Stmts[1].(*ExprStmt)
	assign, ok := assignStmt.X.(*AssignExpr)
	require.True(t, ok)

	member, ok := assign.Left.(*MemberExpr)
	require.True(t, ok)
	require.Equal(t, "x", member.Member.String())
	require.False(t, member.Arrow)
}

func TestParseCallExpression(t *testing.T) {
	tu, ctx := parseSource(t, `
	int add(int a, int b);
	int f(void) { return add(1, 2); }`)
	require.False(t, ctx.Errors.HasErrors())

	fn := tu.Decls[1].(*FuncDecl)
	ret := fn.Body.Stmts[0].(*ReturnStmt)
	call, ok := ret.X.(*CallExpr)
	require.True(t, ok)
	require.Len(t, call.Args, 2)
}

func TestParseSyntaxErrorRecordsDiagnostic(t *testing.T) {
	_, ctx := parseSource(t, `int f(void) { return )); }`)
	require.True(t, ctx.Errors.HasErrors())
}

func TestParseSwitchDuplicateCaseRecordsDiagnostic(t *testing.T) {
	_, ctx := parseSource(t, `
int f(int x) {
	switch (x) {
	case 1: return 1;
	case 2: return 2;
	case 1: return 3;
	}
	return 0;
}`)
	require.True(t, ctx.Errors.HasErrors())
}

func TestParseSwitchDistinctCasesDoNotError(t *testing.T) {
	_, ctx := parseSource(t, `
int f(int x) {
	switch (x) {
	case 1: return 1;
	case 2: return 2;
	default: return 0;
	}
}`)
	require.False(t, ctx.Errors.HasErrors())
}

func TestParseGotoToUndefinedLabelRecordsDiagnostic(t *testing.T) {
	_, ctx := parseSource(t, `
int f(void) {
	goto nowhere;
	return 0;
}`)
	require.True(t, ctx.Errors.HasErrors())
}

func TestParseGotoToDefinedLabelDoesNotError(t *testing.T) {
	_, ctx := parseSource(t, `
int f(void) {
	goto done;
done:
	return 0;
}`)
	require.False(t, ctx.Errors.HasErrors())
}
