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

func lexAll(t *testing.T, src string) []Token {
	t.Helper()
	ctx := NewContext()
	lx := NewLexer(ctx)
	lx.SetSourceString(src, "<test>", 1)

	var toks []Token
	for {
		tok := lx.FetchToken()
		toks = append(toks, tok)
		if tok.Kind == TK_EOF {
			break
		}
	}
	return toks
}

func kinds(toks []Token) []TokenKind {
	ks := make([]TokenKind, len(toks))
	for i, t := range toks {
		ks[i] = t.Kind
	}
	return ks
}

func TestLexerKeywordsAndIdents(t *testing.T) {
	toks := lexAll(t, "int main void foo")
	require.Equal(t, []TokenKind{KW_INT, KW_VOID, TK_IDENT, TK_IDENT, TK_EOF},
		[]TokenKind{toks[0].Kind, kinds(toks)[2], toks[1].Kind, toks[3].Kind, toks[4].Kind})
	require.Equal(t, "foo", toks[3].Name.String())
}

func TestLexerIntegerSuffixes(t *testing.T) {
	toks := lexAll(t, "0 42 0x2A 017 100u 100UL 100ll")
	for _, tok := range toks[:7] {
		require.Equal(t, LIT_INT, tok.Kind)
	}
	require.Equal(t, uint64(42), toks[1].IntVal.Value)
	require.Equal(t, uint64(42), toks[2].IntVal.Value) // 0x2A
	require.Equal(t, uint64(15), toks[3].IntVal.Value) // 017 octal
	require.True(t, toks[4].IntVal.Unsigned)
	require.Equal(t, 1, toks[5].IntVal.LongCnt)
	require.Equal(t, 2, toks[6].IntVal.LongCnt)
}

func TestLexerStringConcatenation(t *testing.T) {
	toks := lexAll(t, `"abc" "def"`)
	require.Equal(t, LIT_STRING, toks[0].Kind)
	require.Equal(t, "abcdef", toks[0].Str)
	require.Equal(t, TK_EOF, toks[1].Kind)
}

func TestLexerCharLiteral(t *testing.T) {
	toks := lexAll(t, `'a' '\n' '\0'`)
	require.Equal(t, LIT_CHAR, toks[0].Kind)
	require.Equal(t, uint64('a'), toks[0].IntVal.Value)
	require.Equal(t, uint64('\n'), toks[1].IntVal.Value)
	require.Equal(t, uint64(0), toks[2].IntVal.Value)
}

func TestLexerPunctuatorsGreedyMatch(t *testing.T) {
	toks := lexAll(t, "a<<=b a<<b a<b")
	require.Equal(t, []TokenKind{TK_IDENT, TK_LSHIFT_ASSIGN, TK_IDENT}, kinds(toks)[:3])
}

func TestLexerUngetTokenRoundtrips(t *testing.T) {
	ctx := NewContext()
	lx := NewLexer(ctx)
	lx.SetSourceString("foo bar", "<test>", 1)

	first := lx.FetchToken()
	require.Equal(t, TK_IDENT, first.Kind)
	lx.UngetToken(first)
	again := lx.FetchToken()
	require.Equal(t, first.Name, again.Name)

	second := lx.FetchToken()
	require.Equal(t, "bar", second.Name.String())
}

func TestLexerLineContinuation(t *testing.T) {
	toks := lexAll(t, "int x\\\n= 1;")
	require.Equal(t, []TokenKind{KW_INT, TK_IDENT, TK_ASSIGN, LIT_INT, TK_SEMICOLON, TK_EOF}, kinds(toks))
}
