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

import "fmt"

// Parser is a straightforward recursive-descent parser over a Lexer,
// carrying one token of lookahead. Error recovery is intentionally
// shallow: a syntax error is recorded on ctx.Errors and the parser does
// its best to resynchronize at the next statement/declaration boundary
// rather than aborting outright, so a single file can report more than one
// mistake.
type Parser struct {
	ctx *Context
	lx  *Lexer
	cur Token

	scope *Scope
	fn    *FuncDecl // non-nil while parsing a function body

	// lastParamNames is stashed by parseDeclaratorSuffix whenever it parses
	// a function parameter list, since a function Type only carries
	// parameter types -- parseFuncBody recovers the names from here right
	// after parsing the declarator.
	lastParamNames []*Name
}

func NewParser(ctx *Context, lx *Lexer) *Parser {
	p := &Parser{ctx: ctx, lx: lx, scope: ctx.Global}
	p.cur = lx.FetchToken()
	return p
}

func (p *Parser) next() Token {
	t := p.cur
	p.cur = p.lx.FetchToken()
	return t
}

func (p *Parser) at(k TokenKind) bool { return p.cur.Kind == k }

func (p *Parser) accept(k TokenKind) bool {
	if p.cur.Kind == k {
		p.next()
		return true
	}
	return false
}

func (p *Parser) expect(k TokenKind) Token {
	if p.cur.Kind != k {
		p.errorf("expected %v, got %v", Token{Kind: k}, p.cur)
		return p.cur
	}
	return p.next()
}

func (p *Parser) errorf(format string, args ...interface{}) {
	p.ctx.Errors.Add(Diagnostic{
		Line: p.cur.Line, Column: p.cur.Col,
		Message: fmt.Sprintf(format, args...),
	})
}

// resyncToStmtEnd skips tokens until the end of the broken statement/decl
// so one syntax error doesn't cascade into hundreds.
func (p *Parser) resyncToStmtEnd() {
	for !p.at(TK_SEMICOLON) && !p.at(TK_EOF) && !p.at(TK_RBRACE) {
		p.next()
	}
	p.accept(TK_SEMICOLON)
}

// -----------------------------------------------------------------------------
// Translation unit / top-level declarations

func ParseFile(ctx *Context, lx *Lexer, source string) *TranslationUnit {
	p := NewParser(ctx, lx)
	return p.parseTranslationUnit(source)
}

func (p *Parser) parseTranslationUnit(source string) *TranslationUnit {
	tu := &TranslationUnit{Source: source}
	for !p.at(TK_EOF) {
		d := p.parseTopLevel()
		if d != nil {
			tu.Decls = append(tu.Decls, d)
			p.ctx.Toplevel = append(p.ctx.Toplevel, d)
		}
	}
	return tu
}

func (p *Parser) parseTopLevel() Decl {
	baseType, storage, isTypedef := p.parseDeclSpecifiers()
	if baseType == nil {
		p.errorf("expected a declaration")
		p.resyncToStmtEnd()
		return nil
	}
	if p.accept(TK_SEMICOLON) {
		// `struct foo { ... };` with no declarator: the type definition
		// itself was the declaration.
		return nil
	}

	name, typ := p.parseDeclarator(baseType)

	if isTypedef {
		p.declareTypedef(name, typ)
		for p.accept(TK_COMMA) {
			name, typ = p.parseDeclarator(baseType)
			p.declareTypedef(name, typ)
		}
		p.expect(TK_SEMICOLON)
		return nil
	}

	if typ.IsFunc() && p.at(TK_LBRACE) {
		return p.parseFuncBody(name, typ, storage)
	}

	// One or more comma-separated declarators, optionally initialized.
	firstInfo := p.declareVar(name, typ, storage)
	var firstInit *Initializer
	if p.accept(TK_ASSIGN) {
		firstInit = p.parseInitializer()
	}
	p.finishGlobalVar(firstInfo, firstInit)
	group := &VarDecl{Info: firstInfo}

	for p.accept(TK_COMMA) {
		n2, t2 := p.parseDeclarator(baseType)
		info := p.declareVar(n2, t2, storage)
		var init *Initializer
		if p.accept(TK_ASSIGN) {
			init = p.parseInitializer()
		}
		p.finishGlobalVar(info, init)
	}
	p.expect(TK_SEMICOLON)
	return group
}

// finishGlobalVar attaches a parsed initializer to info, whether info is a
// global or a local -- despite the name, locals reach here too (a local
// declaration is just a VarDecl at block scope).
func (p *Parser) finishGlobalVar(info *VarInfo, init *Initializer) {
	if init == nil {
		return
	}
	if info.IsLocal() {
		info.Local.Init = init
		return
	}
	if info.Global == nil {
		info.Global = &GlobalVar{}
	}
	info.Global.Init = init
}

func (p *Parser) declareTypedef(name *Name, typ *Type) {
	v := &VarInfo{Name: name, Type: typ, Storage: SCTypedef}
	p.scope.Declare(v)
}

func (p *Parser) declareVar(name *Name, typ *Type, storage StorageClass) *VarInfo {
	v := &VarInfo{Name: name, Type: typ, Storage: storage}
	if p.scope == p.ctx.Global {
		v.Global = &GlobalVar{}
	} else {
		v.Local = &LocalVar{VRegID: -1}
	}
	p.scope.Declare(v)
	return v
}

func (p *Parser) parseFuncBody(name *Name, typ *Type, storage StorageClass) Decl {
	fn := &FuncDecl{Name: name, Type: typ, Storage: storage, Labels: map[*Name]*LabelStmt{}}
	p.fn = fn

	funcVar := &VarInfo{Name: name, Type: typ, Storage: storage, Global: &GlobalVar{HasBody: true}}
	p.ctx.Global.Declare(funcVar)

	paramScope := NewScope(p.ctx.Global)
	for i, pt := range typ.Params {
		pn := p.paramNameAt(i)
		pv := &VarInfo{Name: pn, Type: pt, Local: &LocalVar{VRegID: -1}}
		paramScope.Declare(pv)
		fn.Params = append(fn.Params, pv)
	}
	fn.Scopes = append(fn.Scopes, paramScope)

	prevScope := p.scope
	p.scope = paramScope
	fn.Body = p.parseBlock()
	p.scope = prevScope
	p.resolveGotos(fn)
	p.fn = nil
	return fn
}

// resolveGotos runs once a function body is fully parsed, since a goto may
// jump forward to a label that appears later in the same function.
func (p *Parser) resolveGotos(fn *FuncDecl) {
	for _, g := range fn.GotoRefs {
		if _, ok := fn.Labels[g.Label]; !ok {
			p.errorf("goto to undefined label: %s", g.Label)
		}
	}
}

func (p *Parser) paramNameAt(i int) *Name {
	if i < len(p.lastParamNames) {
		return p.lastParamNames[i]
	}
	return nil
}

// -----------------------------------------------------------------------------
// Declaration specifiers and declarators

// parseDeclSpecifiers parses the type-specifier/storage-class/qualifier
// sequence at the head of a declaration. Returns nil baseType if the
// current token doesn't start a declaration at all.
func (p *Parser) parseDeclSpecifiers() (*Type, StorageClass, bool) {
	var storage StorageClass
	isTypedef := false
	var quals Qualifiers

	signedSeen, unsignedSeen := false, false
	longCount := 0
	var kw TokenKind // last primitive type keyword seen (0 if none)
	var named *Type  // struct/union/enum/typedef-resolved type, if any

	sawAny := false
loop:
	for {
		switch p.cur.Kind {
		case KW_TYPEDEF:
			isTypedef = true
			p.next()
		case KW_EXTERN:
			storage |= SCExtern
			p.next()
		case KW_STATIC:
			storage |= SCStatic
			p.next()
		case KW_CONST:
			quals.Const = true
			p.next()
		case KW_VOLATILE:
			quals.Volatile = true
			p.next()
		case KW_RESTRICT:
			quals.Restrict = true
			p.next()
		case KW_INLINE:
			p.next()
		case KW_SIGNED:
			signedSeen = true
			p.next()
		case KW_UNSIGNED:
			unsignedSeen = true
			p.next()
		case KW_LONG:
			longCount++
			p.next()
		case KW_VOID, KW_CHAR, KW_SHORT, KW_INT, KW_FLOAT, KW_DOUBLE:
			kw = p.cur.Kind
			p.next()
		case KW_STRUCT, KW_UNION:
			named = p.parseStructOrUnion()
		case KW_ENUM:
			named = p.parseEnum()
		case TK_IDENT:
			if named == nil && kw == 0 && !signedSeen && !unsignedSeen && longCount == 0 {
				if v := p.scope.Lookup(p.cur.Name); v != nil && v.IsTypedef() {
					named = v.Type
					p.next()
					sawAny = true
					continue
				}
			}
			break loop
		default:
			break loop
		}
		sawAny = true
	}

	if !sawAny {
		return nil, storage, isTypedef
	}

	var base *Type
	switch {
	case named != nil:
		base = named
	case kw == KW_VOID:
		base = Void
	case kw == KW_FLOAT:
		base = Float
	case kw == KW_DOUBLE:
		base = Double
	case kw == KW_CHAR:
		if unsignedSeen {
			base = UChar
		} else {
			base = Char
		}
	case kw == KW_SHORT:
		if unsignedSeen {
			base = UShort
		} else {
			base = Short
		}
	case longCount >= 2:
		if unsignedSeen {
			base = &Type{Kind: TFixnum, FixWidth: WLongLong, FixSigned: false}
		} else {
			base = LongLong
		}
	case longCount == 1:
		if unsignedSeen {
			base = ULong
		} else {
			base = Long
		}
	case unsignedSeen:
		base = UInt
	default:
		base = Int
	}
	if quals != (Qualifiers{}) {
		cp := *base
		cp.Qualifiers = quals
		base = &cp
	}
	return base, storage, isTypedef
}

func (p *Parser) parseStructOrUnion() *Type {
	union := p.cur.Kind == KW_UNION
	p.next()
	var tag *Name
	if p.at(TK_IDENT) {
		tag = p.cur.Name
		p.next()
	}
	info := &StructInfo{Tag: tag, Union: union}
	if p.accept(TK_LBRACE) {
		for !p.at(TK_RBRACE) && !p.at(TK_EOF) {
			memBase, _, _ := p.parseDeclSpecifiers()
			if memBase == nil {
				p.errorf("expected member declaration")
				p.resyncToStmtEnd()
				continue
			}
			for {
				mname, mtype := p.parseDeclarator(memBase)
				m := Member{Name: mname, Type: mtype}
				if p.accept(TK_COLON) {
					w := p.parseConstExpr()
					m.BitWidth = int(w)
					p.errorf("bit-field members are not supported")
				}
				info.Members = append(info.Members, m)
				if !p.accept(TK_COMMA) {
					break
				}
			}
			p.expect(TK_SEMICOLON)
		}
		p.expect(TK_RBRACE)
		info.Complete = true
	}
	return &Type{Kind: TStruct, Struct: info}
}

func (p *Parser) parseEnum() *Type {
	p.next()
	if p.at(TK_IDENT) {
		p.next()
	}
	if p.accept(TK_LBRACE) {
		next := int64(0)
		for !p.at(TK_RBRACE) && !p.at(TK_EOF) {
			name := p.expect(TK_IDENT).Name
			val := next
			if p.accept(TK_ASSIGN) {
				val = p.parseConstExpr()
			}
			v := &VarInfo{Name: name, Type: Enum, Storage: SCNone, Global: &GlobalVar{
				Init: &Initializer{Kind: InitSingle, Expr: &IntLitExpr{Value: val}},
			}}
			p.scope.Declare(v)
			next = val + 1
			if !p.accept(TK_COMMA) {
				break
			}
		}
		p.expect(TK_RBRACE)
	}
	return Enum
}

// parseDeclarator parses pointers, then a direct-declarator (name, or
// parenthesized declarator), then any trailing array/function suffixes,
// building up the Type from the inside out the way C declarator grammar
// requires.
func (p *Parser) parseDeclarator(base *Type) (*Name, *Type) {
	t := base
	for p.accept(TK_STAR) {
		t = NewPtr(t)
		for p.at(KW_CONST) || p.at(KW_VOLATILE) || p.at(KW_RESTRICT) {
			p.next()
		}
	}

	var name *Name
	var nested func(*Type) *Type

	switch {
	case p.at(TK_IDENT):
		name = p.cur.Name
		p.next()
	case p.accept(TK_LPAREN):
		innerName, innerBuild := p.parseDeclaratorInner()
		name = innerName
		nested = innerBuild
		p.expect(TK_RPAREN)
	}

	t = p.parseDeclaratorSuffix(t)
	if nested != nil {
		t = nested(t)
	}
	return name, t
}

// parseDeclaratorInner handles a parenthesized sub-declarator, e.g. the
// `(*f)` in `void (*f)(int)`. It returns the name found inside and a
// function that, given the eventual element type, rebuilds the pointer
// wrapper that was parsed before the parens.
func (p *Parser) parseDeclaratorInner() (*Name, func(*Type) *Type) {
	var stars int
	for p.accept(TK_STAR) {
		stars++
	}
	var name *Name
	if p.at(TK_IDENT) {
		name = p.cur.Name
		p.next()
	}
	return name, func(elem *Type) *Type {
		for i := 0; i < stars; i++ {
			elem = NewPtr(elem)
		}
		return elem
	}
}

// parseDeclaratorSuffix parses the (possibly chained) array and
// function-parameter suffixes that follow a direct-declarator, building
// the element type from the innermost suffix outward so `int a[3][4]`
// becomes array[3] of array[4] of int.
func (p *Parser) parseDeclaratorSuffix(t *Type) *Type {
	switch {
	case p.accept(TK_LBRACKET):
		length := int64(-1)
		if !p.at(TK_RBRACKET) {
			length = p.parseConstExpr()
		}
		p.expect(TK_RBRACKET)
		elem := p.parseDeclaratorSuffix(t)
		return NewArray(elem, length)
	case p.accept(TK_LPAREN):
		var params []*Type
		var names []*Name
		variadic := false
		if !p.at(TK_RPAREN) {
			for {
				if p.accept(TK_ELLIPSIS) {
					variadic = true
					break
				}
				pt, _, _ := p.parseDeclSpecifiers()
				if pt == nil {
					break
				}
				pn, full := p.parseDeclarator(pt)
				params = append(params, full.Decay())
				names = append(names, pn)
				if !p.accept(TK_COMMA) {
					break
				}
			}
		}
		p.expect(TK_RPAREN)
		p.lastParamNames = names
		return NewFunc(t, params, variadic)
	}
	return t
}

// -----------------------------------------------------------------------------
// Statements

func (p *Parser) parseBlock() *BlockStmt {
	p.expect(TK_LBRACE)
	scope := NewScope(p.scope)
	prev := p.scope
	p.scope = scope
	if p.fn != nil {
		p.fn.Scopes = append(p.fn.Scopes, scope)
	}
	var stmts []Stmt
	for !p.at(TK_RBRACE) && !p.at(TK_EOF) {
		stmts = append(stmts, p.parseStmt())
	}
	p.expect(TK_RBRACE)
	p.scope = prev
	return &BlockStmt{Scope: scope, Stmts: stmts}
}

func (p *Parser) parseStmt() Stmt {
	switch p.cur.Kind {
	case TK_LBRACE:
		return p.parseBlock()
	case KW_IF:
		return p.parseIf()
	case KW_WHILE:
		return p.parseWhile()
	case KW_DO:
		return p.parseDoWhile()
	case KW_FOR:
		return p.parseFor()
	case KW_SWITCH:
		return p.parseSwitch()
	case KW_BREAK:
		p.next()
		p.expect(TK_SEMICOLON)
		return &BreakStmt{}
	case KW_CONTINUE:
		p.next()
		p.expect(TK_SEMICOLON)
		return &ContinueStmt{}
	case KW_GOTO:
		p.next()
		label := p.expect(TK_IDENT).Name
		p.expect(TK_SEMICOLON)
		g := &GotoStmt{Label: label}
		if p.fn != nil {
			p.fn.GotoRefs = append(p.fn.GotoRefs, g)
		}
		return g
	case KW_RETURN:
		p.next()
		var x Expr
		if !p.at(TK_SEMICOLON) {
			x = p.parseExpr()
		}
		p.expect(TK_SEMICOLON)
		return &ReturnStmt{X: x}
	case KW_ASM:
		return p.parseAsm()
	case TK_SEMICOLON:
		p.next()
		return &ExprStmt{}
	}

	if p.at(TK_IDENT) && p.peekIsLabel() {
		label := p.next().Name
		p.next() // colon
		ls := &LabelStmt{Label: label, Body: p.parseStmt()}
		if p.fn != nil {
			p.fn.Labels[label] = ls
		}
		return ls
	}

	if p.startsDeclaration() {
		d := p.parseTopLevel()
		return &DeclStmt{D: d}
	}

	x := p.parseExpr()
	p.expect(TK_SEMICOLON)
	return &ExprStmt{X: x}
}

// peekIsLabel reports whether the current identifier is immediately
// followed by ':', i.e. it's a goto-label rather than an expression.
func (p *Parser) peekIsLabel() bool {
	tok2 := p.lx.FetchToken()
	isLabel := tok2.Kind == TK_COLON
	p.lx.UngetToken(tok2)
	return isLabel
}

func (p *Parser) startsDeclaration() bool {
	switch p.cur.Kind {
	case KW_VOID, KW_CHAR, KW_SHORT, KW_INT, KW_LONG, KW_FLOAT, KW_DOUBLE,
		KW_SIGNED, KW_UNSIGNED, KW_STRUCT, KW_UNION, KW_ENUM, KW_TYPEDEF,
		KW_EXTERN, KW_STATIC, KW_CONST, KW_VOLATILE, KW_RESTRICT, KW_INLINE:
		return true
	case TK_IDENT:
		if v := p.scope.Lookup(p.cur.Name); v != nil && v.IsTypedef() {
			return true
		}
	}
	return false
}

func (p *Parser) parseIf() Stmt {
	p.next()
	p.expect(TK_LPAREN)
	cond := p.parseExpr()
	p.expect(TK_RPAREN)
	then := p.parseStmt()
	var els Stmt
	if p.accept(KW_ELSE) {
		els = p.parseStmt()
	}
	return &IfStmt{Cond: cond, Then: then, Else: els}
}

func (p *Parser) parseWhile() Stmt {
	p.next()
	p.expect(TK_LPAREN)
	cond := p.parseExpr()
	p.expect(TK_RPAREN)
	body := p.parseStmt()
	return &WhileStmt{Cond: cond, Body: body}
}

func (p *Parser) parseDoWhile() Stmt {
	p.next()
	body := p.parseStmt()
	p.expect(KW_WHILE)
	p.expect(TK_LPAREN)
	cond := p.parseExpr()
	p.expect(TK_RPAREN)
	p.expect(TK_SEMICOLON)
	return &DoWhileStmt{Cond: cond, Body: body}
}

func (p *Parser) parseFor() Stmt {
	p.next()
	p.expect(TK_LPAREN)
	scope := NewScope(p.scope)
	prev := p.scope
	p.scope = scope
	if p.fn != nil {
		p.fn.Scopes = append(p.fn.Scopes, scope)
	}

	var init Stmt
	if !p.at(TK_SEMICOLON) {
		init = p.parseStmt()
	} else {
		p.next()
	}
	var cond Expr
	if !p.at(TK_SEMICOLON) {
		cond = p.parseExpr()
	}
	p.expect(TK_SEMICOLON)
	var post Expr
	if !p.at(TK_RPAREN) {
		post = p.parseExpr()
	}
	p.expect(TK_RPAREN)
	body := p.parseStmt()
	p.scope = prev
	return &ForStmt{Init: init, Cond: cond, Post: post, Body: body}
}

func (p *Parser) parseSwitch() Stmt {
	p.next()
	p.expect(TK_LPAREN)
	val := p.parseExpr()
	p.expect(TK_RPAREN)
	p.expect(TK_LBRACE)

	sw := &SwitchStmt{Value: val}
	seen := make(map[int64]bool)
	for !p.at(TK_RBRACE) && !p.at(TK_EOF) {
		cl := &CaseLabel{}
		switch p.cur.Kind {
		case KW_CASE:
			p.next()
			cl.Value = p.parseConstExpr()
			if seen[cl.Value] {
				p.errorf("duplicate case value: %d", cl.Value)
			}
			seen[cl.Value] = true
			p.expect(TK_COLON)
		case KW_DEFAULT:
			p.next()
			cl.IsDefault = true
			p.expect(TK_COLON)
		default:
			p.errorf("expected 'case' or 'default'")
			p.resyncToStmtEnd()
			continue
		}
		for !p.at(KW_CASE) && !p.at(KW_DEFAULT) && !p.at(TK_RBRACE) && !p.at(TK_EOF) {
			cl.Body = append(cl.Body, p.parseStmt())
		}
		sw.Cases = append(sw.Cases, cl)
	}
	p.expect(TK_RBRACE)
	return sw
}

func (p *Parser) parseAsm() Stmt {
	p.next()
	p.accept(KW_VOLATILE)
	p.expect(TK_LPAREN)
	tmpl := p.expect(LIT_STRING).Str
	var out Expr
	if p.accept(TK_COLON) {
		if !p.at(TK_RPAREN) && !p.at(TK_COLON) {
			out = p.parseExpr()
		}
		for !p.at(TK_RPAREN) && !p.at(TK_EOF) {
			p.next()
		}
	}
	p.expect(TK_RPAREN)
	p.expect(TK_SEMICOLON)
	return &AsmStmt{Template: tmpl, Output: out}
}

// -----------------------------------------------------------------------------
// Initializers

func (p *Parser) parseInitializer() *Initializer {
	tok := p.cur
	if p.accept(TK_LBRACE) {
		m := &Initializer{Kind: InitMulti, Tok: tok}
		for !p.at(TK_RBRACE) && !p.at(TK_EOF) {
			m.Elems = append(m.Elems, p.parseDesignatedInitializer())
			if !p.accept(TK_COMMA) {
				break
			}
		}
		p.expect(TK_RBRACE)
		return m
	}
	return &Initializer{Kind: InitSingle, Tok: tok, Expr: p.parseAssignExpr()}
}

func (p *Parser) parseDesignatedInitializer() *Initializer {
	tok := p.cur
	if p.accept(TK_DOT) {
		member := p.expect(TK_IDENT).Name
		p.expect(TK_ASSIGN)
		return &Initializer{Kind: InitDot, Tok: tok, Member: member, Value: p.parseInitializer()}
	}
	if p.accept(TK_LBRACKET) {
		idx := p.parseConstExprNode()
		p.expect(TK_RBRACKET)
		p.expect(TK_ASSIGN)
		return &Initializer{Kind: InitArr, Tok: tok, Index: idx, Elem: p.parseInitializer()}
	}
	return p.parseInitializer()
}

// -----------------------------------------------------------------------------
// Expressions. Precedence climbs from assignment (lowest) to primary
// (highest).

var binPrec = map[TokenKind]int{
	TK_LOGOR:  1,
	TK_LOGAND: 2,
	TK_PIPE:   3,
	TK_CARET:  4,
	TK_AMP:    5,
	TK_EQ:     6, TK_NE: 6,
	TK_LT: 7, TK_LE: 7, TK_GT: 7, TK_GE: 7,
	TK_LSHIFT: 8, TK_RSHIFT: 8,
	TK_PLUS: 9, TK_MINUS: 9,
	TK_STAR: 10, TK_SLASH: 10, TK_PERCENT: 10,
}

var binOpOf = map[TokenKind]BinOp{
	TK_LOGOR: BinLogOr, TK_LOGAND: BinLogAnd,
	TK_PIPE: BinOr, TK_CARET: BinXor, TK_AMP: BinAnd,
	TK_EQ: BinEq, TK_NE: BinNe,
	TK_LT: BinLt, TK_LE: BinLe, TK_GT: BinGt, TK_GE: BinGe,
	TK_LSHIFT: BinShl, TK_RSHIFT: BinShr,
	TK_PLUS: BinAdd, TK_MINUS: BinSub,
	TK_STAR: BinMul, TK_SLASH: BinDiv, TK_PERCENT: BinMod,
}

var assignOpOf = map[TokenKind]BinOp{
	TK_PLUS_ASSIGN: BinAdd, TK_MINUS_ASSIGN: BinSub,
	TK_STAR_ASSIGN: BinMul, TK_SLASH_ASSIGN: BinDiv, TK_PERCENT_ASSIGN: BinMod,
	TK_AMP_ASSIGN: BinAnd, TK_PIPE_ASSIGN: BinOr, TK_CARET_ASSIGN: BinXor,
	TK_LSHIFT_ASSIGN: BinShl, TK_RSHIFT_ASSIGN: BinShr,
}

func (p *Parser) parseExpr() Expr {
	e := p.parseAssignExpr()
	for p.accept(TK_COMMA) {
		tok := p.cur
		rhs := p.parseAssignExpr()
		e = &CommaExpr{exprBase: exprBase{Token: tok}, Left: e, Right: rhs}
	}
	return e
}

func (p *Parser) parseConstExpr() int64 {
	e := p.parseConstExprNode()
	if lit, ok := e.(*IntLitExpr); ok {
		return lit.Value
	}
	p.errorf("expected a constant expression")
	return 0
}

func (p *Parser) parseConstExprNode() Expr {
	return p.parseCondExpr()
}

func (p *Parser) parseAssignExpr() Expr {
	lhs := p.parseCondExpr()
	tok := p.cur
	if p.at(TK_ASSIGN) {
		p.next()
		rhs := p.parseAssignExpr()
		return &AssignExpr{exprBase: exprBase{Token: tok}, Left: lhs, Right: rhs, ModifyOp: -1}
	}
	if op, ok := assignOpOf[p.cur.Kind]; ok {
		p.next()
		rhs := p.parseAssignExpr()
		return &AssignExpr{exprBase: exprBase{Token: tok}, Left: lhs, Right: rhs, ModifyOp: op, IsCompound: true}
	}
	return lhs
}

func (p *Parser) parseCondExpr() Expr {
	cond := p.parseBinExpr(1)
	if p.accept(TK_QUESTION) {
		tok := p.cur
		then := p.parseExpr()
		p.expect(TK_COLON)
		els := p.parseCondExpr()
		return &CondExpr{exprBase: exprBase{Token: tok}, Cond: cond, Then: then, Else: els}
	}
	return cond
}

func (p *Parser) parseBinExpr(minPrec int) Expr {
	lhs := p.parseCastExpr()
	for {
		prec, ok := binPrec[p.cur.Kind]
		if !ok || prec < minPrec {
			return lhs
		}
		op := binOpOf[p.cur.Kind]
		tok := p.cur
		p.next()
		rhs := p.parseBinExpr(prec + 1)
		lhs = &BinaryExpr{exprBase: exprBase{Token: tok}, Op: op, Left: lhs, Right: rhs}
	}
}

func (p *Parser) parseCastExpr() Expr {
	if p.at(TK_LPAREN) && p.nextIsTypeName() {
		tok := p.cur
		p.next()
		t := p.parseTypeName()
		p.expect(TK_RPAREN)
		if p.at(TK_LBRACE) {
			return p.parseCompoundLiteral(t, tok)
		}
		operand := p.parseCastExpr()
		return &CastExpr{exprBase: exprBase{Type: t, Token: tok}, Operand: operand, Explicit: true}
	}
	return p.parseUnaryExpr()
}

// nextIsTypeName peeks past the '(' to see whether a type-specifier
// follows, distinguishing a cast `(T)x` from a parenthesized expression.
func (p *Parser) nextIsTypeName() bool {
	tok := p.lx.FetchToken()
	defer p.lx.UngetToken(tok)
	switch tok.Kind {
	case KW_VOID, KW_CHAR, KW_SHORT, KW_INT, KW_LONG, KW_FLOAT, KW_DOUBLE,
		KW_SIGNED, KW_UNSIGNED, KW_STRUCT, KW_UNION, KW_ENUM, KW_CONST, KW_VOLATILE:
		return true
	case TK_IDENT:
		if v := p.scope.Lookup(tok.Name); v != nil && v.IsTypedef() {
			return true
		}
	}
	return false
}

func (p *Parser) parseTypeName() *Type {
	base, _, _ := p.parseDeclSpecifiers()
	_, t := p.parseDeclarator(base)
	return t
}

func (p *Parser) parseCompoundLiteral(t *Type, tok Token) Expr {
	init := p.parseInitializer()
	name := p.ctx.Intern(fmt.Sprintf(".compound%d", p.ctx.nextCompoundID()))
	v := &VarInfo{Name: name, Type: t}
	if p.scope == p.ctx.Global {
		v.Global = &GlobalVar{Init: init}
	} else {
		v.Local = &LocalVar{VRegID: -1}
	}
	p.scope.Declare(v)
	return &CompoundLitExpr{exprBase: exprBase{Type: t, Token: tok}, Hidden: v}
}

func (p *Parser) parseUnaryExpr() Expr {
	tok := p.cur
	switch p.cur.Kind {
	case TK_STAR:
		p.next()
		return &UnaryExpr{exprBase: exprBase{Token: tok}, Op: UnDeref, Operand: p.parseCastExpr()}
	case TK_AMP:
		p.next()
		return &UnaryExpr{exprBase: exprBase{Token: tok}, Op: UnAddr, Operand: p.parseCastExpr()}
	case TK_MINUS:
		p.next()
		return &UnaryExpr{exprBase: exprBase{Token: tok}, Op: UnNeg, Operand: p.parseCastExpr()}
	case TK_PLUS:
		p.next()
		return p.parseCastExpr()
	case TK_TILDE:
		p.next()
		return &UnaryExpr{exprBase: exprBase{Token: tok}, Op: UnBitNot, Operand: p.parseCastExpr()}
	case TK_BANG:
		p.next()
		return &UnaryExpr{exprBase: exprBase{Token: tok}, Op: UnNot, Operand: p.parseCastExpr()}
	case TK_INC:
		p.next()
		return &UnaryExpr{exprBase: exprBase{Token: tok}, Op: UnPreInc, Operand: p.parseUnaryExpr()}
	case TK_DEC:
		p.next()
		return &UnaryExpr{exprBase: exprBase{Token: tok}, Op: UnPreDec, Operand: p.parseUnaryExpr()}
	case KW_SIZEOF:
		p.next()
		if p.at(TK_LPAREN) && p.nextIsTypeName() {
			p.next()
			t := p.parseTypeName()
			p.expect(TK_RPAREN)
			return &SizeofExpr{exprBase: exprBase{Type: ULong, Token: tok}, OperandType: t}
		}
		operand := p.parseUnaryExpr()
		return &SizeofExpr{exprBase: exprBase{Type: ULong, Token: tok}, OperandExpr: operand}
	}
	return p.parsePostfixExpr()
}

func (p *Parser) parsePostfixExpr() Expr {
	e := p.parsePrimaryExpr()
	for {
		tok := p.cur
		switch p.cur.Kind {
		case TK_LBRACKET:
			p.next()
			idx := p.parseExpr()
			p.expect(TK_RBRACKET)
			// a[i] desugars to *(a+i).
			add := &BinaryExpr{exprBase: exprBase{Token: tok}, Op: BinAdd, Left: e, Right: idx}
			e = &UnaryExpr{exprBase: exprBase{Token: tok}, Op: UnDeref, Operand: add}
		case TK_LPAREN:
			p.next()
			var args []Expr
			if !p.at(TK_RPAREN) {
				for {
					args = append(args, p.parseAssignExpr())
					if !p.accept(TK_COMMA) {
						break
					}
				}
			}
			p.expect(TK_RPAREN)
			e = &CallExpr{exprBase: exprBase{Token: tok}, Callee: e, Args: args}
		case TK_DOT:
			p.next()
			member := p.expect(TK_IDENT).Name
			e = &MemberExpr{exprBase: exprBase{Token: tok}, Base: e, Member: member}
		case TK_ARROW:
			p.next()
			member := p.expect(TK_IDENT).Name
			e = &MemberExpr{exprBase: exprBase{Token: tok}, Base: e, Member: member, Arrow: true}
		case TK_INC:
			p.next()
			e = &UnaryExpr{exprBase: exprBase{Token: tok}, Op: UnPostInc, Operand: e}
		case TK_DEC:
			p.next()
			e = &UnaryExpr{exprBase: exprBase{Token: tok}, Op: UnPostDec, Operand: e}
		default:
			return e
		}
	}
}

func (p *Parser) parsePrimaryExpr() Expr {
	tok := p.cur
	switch p.cur.Kind {
	case LIT_INT:
		p.next()
		return &IntLitExpr{exprBase: exprBase{Token: tok}, Value: int64(tok.IntVal.Value), Unsigned: tok.IntVal.Unsigned}
	case LIT_CHAR:
		p.next()
		return &IntLitExpr{exprBase: exprBase{Type: Char, Token: tok}, Value: int64(tok.IntVal.Value)}
	case LIT_FLOAT:
		p.next()
		return &FloatLitExpr{exprBase: exprBase{Token: tok}, Value: tok.FltVal.Value}
	case LIT_STRING:
		p.next()
		return &StringLitExpr{exprBase: exprBase{Token: tok}, Value: tok.Str}
	case TK_IDENT:
		p.next()
		v := p.scope.Lookup(tok.Name)
		if v == nil {
			p.ctx.Errors.Add(Diagnostic{Line: tok.Line, Column: tok.Col, Message: "undeclared identifier: " + tok.Name.String()})
		}
		return &VarRefExpr{exprBase: exprBase{Token: tok}, Name: tok.Name, Var: v}
	case TK_LPAREN:
		p.next()
		e := p.parseExpr()
		p.expect(TK_RPAREN)
		return e
	}
	p.errorf("expected an expression, got %v", p.cur)
	p.next()
	return &IntLitExpr{exprBase: exprBase{Type: Int, Token: tok}}
}
