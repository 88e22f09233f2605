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

// TokenKind tags every lexical category the lexer produces: punctuators,
// keywords, literal kinds, identifier and EOF. There are no kinds for the
// preprocessor's # and ## operators; the preprocessor resolves them upstream.
type TokenKind int

const (
	INVALID TokenKind = iota
	TK_EOF
	TK_IDENT

	LIT_INT
	LIT_FLOAT
	LIT_CHAR
	LIT_STRING

	// Punctuators
	TK_LPAREN
	TK_RPAREN
	TK_LBRACE
	TK_RBRACE
	TK_LBRACKET
	TK_RBRACKET
	TK_SEMICOLON
	TK_COLON
	TK_COMMA
	TK_DOT
	TK_ARROW // ->
	TK_QUESTION
	TK_ELLIPSIS // ...

	TK_PLUS
	TK_MINUS
	TK_STAR
	TK_SLASH
	TK_PERCENT
	TK_AMP
	TK_PIPE
	TK_CARET
	TK_TILDE
	TK_BANG
	TK_LOGAND
	TK_LOGOR
	TK_LSHIFT
	TK_RSHIFT

	TK_ASSIGN
	TK_PLUS_ASSIGN
	TK_MINUS_ASSIGN
	TK_STAR_ASSIGN
	TK_SLASH_ASSIGN
	TK_PERCENT_ASSIGN
	TK_AMP_ASSIGN
	TK_PIPE_ASSIGN
	TK_CARET_ASSIGN
	TK_LSHIFT_ASSIGN
	TK_RSHIFT_ASSIGN

	TK_EQ
	TK_NE
	TK_LT
	TK_LE
	TK_GT
	TK_GE

	TK_INC
	TK_DEC

	// Keywords
	KW_VOID
	KW_CHAR
	KW_SHORT
	KW_INT
	KW_LONG
	KW_FLOAT
	KW_DOUBLE
	KW_SIGNED
	KW_UNSIGNED
	KW_STRUCT
	KW_UNION
	KW_ENUM
	KW_TYPEDEF
	KW_EXTERN
	KW_STATIC
	KW_CONST
	KW_VOLATILE
	KW_RESTRICT
	KW_INLINE
	KW_SIZEOF

	KW_IF
	KW_ELSE
	KW_SWITCH
	KW_CASE
	KW_DEFAULT
	KW_WHILE
	KW_DO
	KW_FOR
	KW_BREAK
	KW_CONTINUE
	KW_GOTO
	KW_RETURN
	KW_ASM
)

var keywords = map[string]TokenKind{
	"void": KW_VOID, "char": KW_CHAR, "short": KW_SHORT, "int": KW_INT,
	"long": KW_LONG, "float": KW_FLOAT, "double": KW_DOUBLE,
	"signed": KW_SIGNED, "unsigned": KW_UNSIGNED,
	"struct": KW_STRUCT, "union": KW_UNION, "enum": KW_ENUM,
	"typedef": KW_TYPEDEF, "extern": KW_EXTERN, "static": KW_STATIC,
	"const": KW_CONST, "volatile": KW_VOLATILE, "restrict": KW_RESTRICT,
	"inline": KW_INLINE, "sizeof": KW_SIZEOF,
	"if": KW_IF, "else": KW_ELSE, "switch": KW_SWITCH, "case": KW_CASE,
	"default": KW_DEFAULT, "while": KW_WHILE, "do": KW_DO, "for": KW_FOR,
	"break": KW_BREAK, "continue": KW_CONTINUE, "goto": KW_GOTO,
	"return": KW_RETURN, "asm": KW_ASM, "__asm__": KW_ASM,
}

func (t TokenKind) IsAssignOp() bool {
	switch t {
	case TK_ASSIGN, TK_PLUS_ASSIGN, TK_MINUS_ASSIGN, TK_STAR_ASSIGN,
		TK_SLASH_ASSIGN, TK_PERCENT_ASSIGN, TK_AMP_ASSIGN, TK_PIPE_ASSIGN,
		TK_CARET_ASSIGN, TK_LSHIFT_ASSIGN, TK_RSHIFT_ASSIGN:
		return true
	}
	return false
}

func (t TokenKind) IsCmpOp() bool {
	switch t {
	case TK_EQ, TK_NE, TK_LT, TK_LE, TK_GT, TK_GE:
		return true
	}
	return false
}

// IntLit carries the lexed integer value and what its suffix says
// (unsignedness and the count of 'l' letters); it holds no type.
type IntLit struct {
	Value    uint64
	Unsigned bool
	LongCnt  int // number of 'l'/'L' suffix letters: 0, 1 (long) or 2 (long long)
}

type FloatLit struct {
	Value  float64
	Single bool // 'f'/'F' suffix
}

// Token is one lexical unit: a tag, a source line back-reference, and at
// most one payload (identifier Name, string bytes, integer or float
// literal).
type Token struct {
	Kind TokenKind
	Line int
	Col  int

	Name   *Name
	Str    string
	IntVal IntLit
	FltVal FloatLit
}

func (t Token) String() string {
	switch t.Kind {
	case TK_IDENT:
		return t.Name.String()
	case LIT_INT:
		return "<int-literal>"
	case LIT_FLOAT:
		return "<float-literal>"
	case LIT_STRING:
		return "<string-literal>"
	case LIT_CHAR:
		return "<char-literal>"
	case TK_EOF:
		return "<eof>"
	default:
		if s, ok := punctNames[t.Kind]; ok {
			return s
		}
		if s, ok := keywordNames[t.Kind]; ok {
			return s
		}
		return "<invalid>"
	}
}

var punctNames = map[TokenKind]string{
	TK_LPAREN: "(", TK_RPAREN: ")", TK_LBRACE: "{", TK_RBRACE: "}",
	TK_LBRACKET: "[", TK_RBRACKET: "]", TK_SEMICOLON: ";", TK_COLON: ":",
	TK_COMMA: ",", TK_DOT: ".", TK_ARROW: "->", TK_QUESTION: "?",
	TK_ELLIPSIS: "...", TK_PLUS: "+", TK_MINUS: "-", TK_STAR: "*",
	TK_SLASH: "/", TK_PERCENT: "%", TK_AMP: "&", TK_PIPE: "|",
	TK_CARET: "^", TK_TILDE: "~", TK_BANG: "!", TK_LOGAND: "&&",
	TK_LOGOR: "||", TK_LSHIFT: "<<", TK_RSHIFT: ">>", TK_ASSIGN: "=",
	TK_PLUS_ASSIGN: "+=", TK_MINUS_ASSIGN: "-=", TK_STAR_ASSIGN: "*=",
	TK_SLASH_ASSIGN: "/=", TK_PERCENT_ASSIGN: "%=", TK_AMP_ASSIGN: "&=",
	TK_PIPE_ASSIGN: "|=", TK_CARET_ASSIGN: "^=", TK_LSHIFT_ASSIGN: "<<=",
	TK_RSHIFT_ASSIGN: ">>=", TK_EQ: "==", TK_NE: "!=", TK_LT: "<",
	TK_LE: "<=", TK_GT: ">", TK_GE: ">=", TK_INC: "++", TK_DEC: "--",
}

var keywordNames = func() map[TokenKind]string {
	m := make(map[TokenKind]string, len(keywords))
	for text, kind := range keywords {
		m[kind] = text
	}
	return m
}()
