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

// -----------------------------------------------------------------------------
// Root interfaces. AST nodes are a heavily tagged sum type: the whole
// pipeline switches on the concrete Go type rather than using virtual
// dispatch.

type Node interface {
	String() string
}

// Expr is any expression node. Every Expr carries a Type field and its
// source Token. The parser fills Type in for a few nodes only (character
// literals, casts, sizeof, compound literals); for the others GetType
// returns nil.
type Expr interface {
	Node
	GetType() *Type
	SetType(*Type)
	Tok() Token
}

type Stmt interface{ Node }
type Decl interface{ Node }

// exprBase is embedded by every concrete Expr to provide the common
// Type/Token fields.
type exprBase struct {
	Type  *Type
	Token Token
}

func (e *exprBase) GetType() *Type  { return e.Type }
func (e *exprBase) SetType(t *Type) { e.Type = t }
func (e *exprBase) Tok() Token       { return e.Token }

// -----------------------------------------------------------------------------
// Expressions (~40 kinds)

type UnaryOp int

const (
	UnDeref UnaryOp = iota
	UnAddr
	UnNeg
	UnBitNot
	UnNot
	UnPreInc
	UnPreDec
	UnPostInc
	UnPostDec
)

type BinOp int

const (
	BinAdd BinOp = iota
	BinSub
	BinMul
	BinDiv
	BinMod
	BinAnd
	BinOr
	BinXor
	BinShl
	BinShr
	BinLt
	BinLe
	BinGt
	BinGe
	BinEq
	BinNe
	BinLogAnd
	BinLogOr
)

type IntLitExpr struct {
	exprBase
	Value    int64
	Unsigned bool
}

type FloatLitExpr struct {
	exprBase
	Value float64
}

// StringLitExpr is a string literal. The parser does NOT promote it to a
// hidden global itself -- that's an initializer/codegen-time concern -- it
// only records the raw bytes.
type StringLitExpr struct {
	exprBase
	Value string
}

// VarRefExpr names a variable reference.
type VarRefExpr struct {
	exprBase
	Name *Name
	Var  *VarInfo
}

// MemberExpr covers both `.` and `->` access; Arrow is true for `->`.
type MemberExpr struct {
	exprBase
	Base   Expr
	Member *Name
	Arrow  bool
}

type UnaryExpr struct {
	exprBase
	Op      UnaryOp
	Operand Expr
}

// CastExpr is an explicit `(T)e`. The parser creates it only for explicit
// casts; implicit conversions get no node of their own.
type CastExpr struct {
	exprBase
	Operand  Expr
	Explicit bool
}

type BinaryExpr struct {
	exprBase
	Op          BinOp
	Left, Right Expr
	// PtrScale is a slot for sizeof(*p) in pointer+int arithmetic. The
	// parser does not set it, so it is always 0.
	PtrScale int64
}

// AssignExpr covers `=` and all compound-assignment operators
// (ModifyOp == -1 means plain `=`).
type AssignExpr struct {
	exprBase
	Left, Right Expr
	ModifyOp    BinOp
	IsCompound  bool
}

type CondExpr struct {
	exprBase
	Cond, Then, Else Expr
}

type CommaExpr struct {
	exprBase
	Left, Right Expr
}

type CallExpr struct {
	exprBase
	Callee Expr
	Args   []Expr
}

// SizeofExpr covers both sizeof(expr) (OperandExpr set, not evaluated)
// and sizeof(type) (OperandType set).
type SizeofExpr struct {
	exprBase
	OperandExpr Expr
	OperandType *Type
}

// CompoundLitExpr is `(T){...}`: the parser materializes a hidden variable
// (Hidden) at the current scope and this node evaluates to a reference to
// it.
type CompoundLitExpr struct {
	exprBase
	Hidden *VarInfo
}

func (e *IntLitExpr) String() string      { return fmt.Sprintf("IntLit{%d}", e.Value) }
func (e *FloatLitExpr) String() string    { return fmt.Sprintf("FloatLit{%v}", e.Value) }
func (e *StringLitExpr) String() string   { return fmt.Sprintf("StringLit{%q}", e.Value) }
func (e *VarRefExpr) String() string      { return fmt.Sprintf("VarRef{%v}", e.Name) }
func (e *MemberExpr) String() string      { return fmt.Sprintf("Member{%v}", e.Member) }
func (e *UnaryExpr) String() string       { return "Unary" }
func (e *CastExpr) String() string        { return fmt.Sprintf("Cast{%v}", e.Type) }
func (e *BinaryExpr) String() string      { return "Binary" }
func (e *AssignExpr) String() string      { return "Assign" }
func (e *CondExpr) String() string        { return "Cond" }
func (e *CommaExpr) String() string       { return "Comma" }
func (e *CallExpr) String() string        { return "Call" }
func (e *SizeofExpr) String() string      { return "Sizeof" }
func (e *CompoundLitExpr) String() string { return "CompoundLit" }

// -----------------------------------------------------------------------------
// Statements

type ExprStmt struct{ X Expr }

// DeclStmt wraps a local declaration (variable or typedef) that appears in
// statement position -- C allows declarations anywhere a statement is
// allowed inside a block.
type DeclStmt struct{ D Decl }

func (s *DeclStmt) String() string { return "DeclStmt" }

type BlockStmt struct {
	Scope *Scope
	Stmts []Stmt
}

type IfStmt struct {
	Cond       Expr
	Then, Else Stmt
}

type CaseLabel struct {
	Value int64 // const-value; only meaningful when !IsDefault
	IsDefault bool
	Body  []Stmt
}

type SwitchStmt struct {
	Value Expr
	Cases []*CaseLabel
}

type WhileStmt struct {
	Cond Expr
	Body Stmt
}

type DoWhileStmt struct {
	Cond Expr
	Body Stmt
}

type ForStmt struct {
	Init       Stmt
	Cond, Post Expr
	Body       Stmt
}

type BreakStmt struct{}
type ContinueStmt struct{}

type GotoStmt struct{ Label *Name }

type LabelStmt struct {
	Label *Name
	Body  Stmt
}

type ReturnStmt struct{ X Expr } // X is nil for `return;`

// AsmStmt is the inline-asm passthrough supplemented from
// original_source/src/cc/parser.c: a raw template string plus an optional
// output operand expression, lowered to a single IR_INLINE_ASM op.
type AsmStmt struct {
	Template string
	Output   Expr
}

func (s *ExprStmt) String() string     { return "ExprStmt" }
func (s *BlockStmt) String() string    { return "Block" }
func (s *IfStmt) String() string       { return "If" }
func (s *SwitchStmt) String() string   { return "Switch" }
func (s *WhileStmt) String() string    { return "While" }
func (s *DoWhileStmt) String() string  { return "DoWhile" }
func (s *ForStmt) String() string      { return "For" }
func (s *BreakStmt) String() string    { return "Break" }
func (s *ContinueStmt) String() string { return "Continue" }
func (s *GotoStmt) String() string     { return fmt.Sprintf("Goto{%v}", s.Label) }
func (s *LabelStmt) String() string    { return fmt.Sprintf("Label{%v}", s.Label) }
func (s *ReturnStmt) String() string   { return "Return" }
func (s *AsmStmt) String() string      { return "Asm" }

// -----------------------------------------------------------------------------
// Declarations

// FuncDecl is a function declaration/definition. Body is nil for a
// declaration-only prototype. Scopes holds every block scope opened while
// parsing Body, in order, so later stages (lowering) can revisit them.
type FuncDecl struct {
	Name    *Name
	Type    *Type // TFunc
	Params  []*VarInfo
	Body    *BlockStmt
	Scopes  []*Scope

	Labels   map[*Name]*LabelStmt
	GotoRefs []*GotoStmt

	Storage StorageClass
}

func (f *FuncDecl) String() string { return fmt.Sprintf("FuncDecl{%v}", f.Name) }

// VarDecl is a top-level or local variable declaration.
type VarDecl struct {
	Info *VarInfo
}

func (v *VarDecl) String() string { return fmt.Sprintf("VarDecl{%v}", v.Info.Name) }

// TranslationUnit is the parser's output for one file: every top-level
// declaration in source order.
type TranslationUnit struct {
	Source string
	Decls  []Decl
}

func (u *TranslationUnit) String() string { return fmt.Sprintf("TranslationUnit{%s}", u.Source) }
