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
	"fmt"
	"strings"
)

// TypeKind tags the type variant.
type TypeKind int

const (
	TVoid TypeKind = iota
	TFixnum
	TFlonum
	TPtr
	TArray
	TFunc
	TStruct
)

// FixnumWidth orders integer widths from narrowest to widest so usual
// arithmetic conversions can pick "widest wins" by simple comparison.
// WEnum is listed last but has int's size; UsualArithConv treats it as int.
type FixnumWidth int

const (
	WChar FixnumWidth = iota
	WShort
	WInt
	WLong
	WLongLong
	WEnum
)

type FlonumWidth int

const (
	WFloat FlonumWidth = iota
	WDouble
)

// Member describes one field of a struct/union type: name, type, byte
// offset and an optional bit-field descriptor.
type Member struct {
	Name   *Name
	Type   *Type
	Offset int

	// Bitfield width in bits; 0 means this is not a bit-field member.
	// Bit-fields are only partially modeled upstream, so the parser
	// rejects any nonzero width instead of computing a (possibly wrong)
	// sub-byte layout -- see DESIGN.md.
	BitWidth int
}

// StructInfo holds the ordered member list and the union flag for a
// struct/union type.
type StructInfo struct {
	Tag     *Name
	Members []Member
	Union   bool
	// Complete is set by the parser once the member list has been parsed.
	// Nothing in the compiler reads it; variable declarations are not
	// checked against it.
	Complete bool

	layout *Layout
}

// Layout is the size/align pair computed on demand. Only struct layouts are
// cached (on StructInfo); other types are recomputed on each call.
type Layout struct {
	Size  int64
	Align int64
}

// Type is the tagged variant describing a C type. Equality is structural
// (SameType), not pointer identity -- two independently built
// `struct P { int x; }` values compare equal.
type Type struct {
	Kind TypeKind

	// TFixnum
	FixWidth  FixnumWidth
	FixSigned bool

	// TFlonum
	FloWidth FlonumWidth

	// TPtr, TArray (ElemType is also the pointee)
	ElemType *Type
	// TArray: -1 means unsized (an incomplete array, e.g. `int a[]`).
	ArrayLen int64

	// TFunc
	Ret      *Type
	Params   []*Type
	Variadic bool

	// TStruct
	Struct *StructInfo

	Qualifiers Qualifiers
}

type Qualifiers struct {
	Const    bool
	Volatile bool
	Restrict bool // parsed, never affects codegen.
}

// Predefined scalar type singletons for the common fixnum/flonum widths.
var (
	Void = &Type{Kind: TVoid}

	Char     = &Type{Kind: TFixnum, FixWidth: WChar, FixSigned: true}
	UChar    = &Type{Kind: TFixnum, FixWidth: WChar, FixSigned: false}
	Short    = &Type{Kind: TFixnum, FixWidth: WShort, FixSigned: true}
	UShort   = &Type{Kind: TFixnum, FixWidth: WShort, FixSigned: false}
	Int      = &Type{Kind: TFixnum, FixWidth: WInt, FixSigned: true}
	UInt     = &Type{Kind: TFixnum, FixWidth: WInt, FixSigned: false}
	Long     = &Type{Kind: TFixnum, FixWidth: WLong, FixSigned: true}
	ULong    = &Type{Kind: TFixnum, FixWidth: WLong, FixSigned: false}
	LongLong = &Type{Kind: TFixnum, FixWidth: WLongLong, FixSigned: true}
	Enum     = &Type{Kind: TFixnum, FixWidth: WEnum, FixSigned: true}

	Float  = &Type{Kind: TFlonum, FloWidth: WFloat}
	Double = &Type{Kind: TFlonum, FloWidth: WDouble}
)

func NewPtr(to *Type) *Type       { return &Type{Kind: TPtr, ElemType: to} }
func NewArray(elem *Type, n int64) *Type {
	return &Type{Kind: TArray, ElemType: elem, ArrayLen: n}
}
func NewFunc(ret *Type, params []*Type, variadic bool) *Type {
	return &Type{Kind: TFunc, Ret: ret, Params: params, Variadic: variadic}
}

func (t *Type) IsVoid() bool   { return t.Kind == TVoid }
func (t *Type) IsFixnum() bool { return t.Kind == TFixnum }
func (t *Type) IsFlonum() bool { return t.Kind == TFlonum }
func (t *Type) IsPtr() bool    { return t.Kind == TPtr }
func (t *Type) IsArray() bool  { return t.Kind == TArray }
func (t *Type) IsFunc() bool   { return t.Kind == TFunc }
func (t *Type) IsStruct() bool { return t.Kind == TStruct }

func (t *Type) IsArith() bool { return t.IsFixnum() || t.IsFlonum() }
func (t *Type) IsScalar() bool {
	return t.IsArith() || t.IsPtr()
}

// Decay converts an array or function type to its pointer/function-pointer
// form in value contexts.
func (t *Type) Decay() *Type {
	switch t.Kind {
	case TArray:
		return NewPtr(t.ElemType)
	case TFunc:
		return NewPtr(t)
	default:
		return t
	}
}

func (t *Type) String() string {
	switch t.Kind {
	case TVoid:
		return "void"
	case TFixnum:
		return t.fixnumName()
	case TFlonum:
		if t.FloWidth == WFloat {
			return "float"
		}
		return "double"
	case TPtr:
		return fmt.Sprintf("%s*", t.ElemType)
	case TArray:
		if t.ArrayLen < 0 {
			return fmt.Sprintf("%s[]", t.ElemType)
		}
		return fmt.Sprintf("%s[%d]", t.ElemType, t.ArrayLen)
	case TFunc:
		var params []string
		for _, p := range t.Params {
			params = append(params, p.String())
		}
		return fmt.Sprintf("%s(%s)", t.Ret, strings.Join(params, ", "))
	case TStruct:
		kw := "struct"
		if t.Struct.Union {
			kw = "union"
		}
		if t.Struct.Tag != nil {
			return fmt.Sprintf("%s %s", kw, t.Struct.Tag)
		}
		return fmt.Sprintf("%s <anon>", kw)
	}
	return "<invalid type>"
}

func (t *Type) fixnumName() string {
	name := map[FixnumWidth]string{
		WChar: "char", WShort: "short", WInt: "int",
		WLong: "long", WLongLong: "long long", WEnum: "enum",
	}[t.FixWidth]
	if !t.FixSigned && t.FixWidth != WEnum {
		return "unsigned " + name
	}
	return name
}

// SameType is structural equality.
func SameType(a, b *Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case TVoid:
		return true
	case TFixnum:
		return a.FixWidth == b.FixWidth && a.FixSigned == b.FixSigned
	case TFlonum:
		return a.FloWidth == b.FloWidth
	case TPtr:
		return SameType(a.ElemType, b.ElemType)
	case TArray:
		return a.ArrayLen == b.ArrayLen && SameType(a.ElemType, b.ElemType)
	case TFunc:
		if a.Variadic != b.Variadic || !SameType(a.Ret, b.Ret) || len(a.Params) != len(b.Params) {
			return false
		}
		for i := range a.Params {
			if !SameType(a.Params[i], b.Params[i]) {
				return false
			}
		}
		return true
	case TStruct:
		if a.Struct == b.Struct {
			return true
		}
		if a.Struct.Union != b.Struct.Union || len(a.Struct.Members) != len(b.Struct.Members) {
			return false
		}
		for i := range a.Struct.Members {
			ma, mb := a.Struct.Members[i], b.Struct.Members[i]
			if ma.Name != mb.Name || ma.BitWidth != mb.BitWidth || !SameType(ma.Type, mb.Type) {
				return false
			}
		}
		return true
	}
	return false
}

func align(off, a int64) int64 {
	if a <= 1 {
		return off
	}
	return (off + a - 1) &^ (a - 1)
}

// SizeOf and AlignOf compute layout by type tag:
// char 1/1, short 2/2, int/enum 4/4, long/long long/pointer 8/8,
// float 4/4, double 8/8; arrays elem-size*length with elem-align; structs
// laid out in member order with each offset rounded up to its align,
// struct align = max member align, struct size rounded up to that align;
// unions: size = max member size, align = max member align, all offsets 0.
func SizeOf(t *Type) int64 { return computeLayout(t).Size }
func AlignOf(t *Type) int64 { return computeLayout(t).Align }

func computeLayout(t *Type) *Layout {
	switch t.Kind {
	case TVoid:
		return &Layout{Size: 1, Align: 1}
	case TFixnum:
		sz := map[FixnumWidth]int64{
			WChar: 1, WShort: 2, WInt: 4, WLong: 8, WLongLong: 8, WEnum: 4,
		}[t.FixWidth]
		return &Layout{Size: sz, Align: sz}
	case TFlonum:
		if t.FloWidth == WFloat {
			return &Layout{Size: 4, Align: 4}
		}
		return &Layout{Size: 8, Align: 8}
	case TPtr:
		return &Layout{Size: 8, Align: 8}
	case TArray:
		elem := computeLayout(t.ElemType)
		n := t.ArrayLen
		if n < 0 {
			n = 0
		}
		return &Layout{Size: elem.Size * n, Align: elem.Align}
	case TFunc:
		return &Layout{Size: 8, Align: 8} // decays to a function pointer
	case TStruct:
		return computeStructLayout(t.Struct)
	}
	return &Layout{Size: 0, Align: 1}
}

func computeStructLayout(info *StructInfo) *Layout {
	if info.layout != nil {
		return info.layout
	}
	var size, maxAlign int64 = 0, 1
	for i := range info.Members {
		m := &info.Members[i]
		ml := computeLayout(m.Type)
		if ml.Align > maxAlign {
			maxAlign = ml.Align
		}
		if info.Union {
			m.Offset = 0
			if ml.Size > size {
				size = ml.Size
			}
		} else {
			off := align(size, ml.Align)
			m.Offset = int(off)
			size = off + ml.Size
		}
	}
	size = align(size, maxAlign)
	l := &Layout{Size: size, Align: maxAlign}
	info.layout = l
	return l
}

// FindMember looks up a (possibly anonymous-nested) member by name,
// traversing anonymous struct/union member chains the way
// search_from_anonymous does in the source (original_source/src/cc/var.c).
// It returns the member and the byte offset of that member within the
// outer struct (summing anonymous-chain offsets along the way).
func FindMember(info *StructInfo, name *Name) (*Member, int, bool) {
	for i := range info.Members {
		m := &info.Members[i]
		if m.Name == name {
			return m, m.Offset, true
		}
		if m.Name == nil && m.Type.IsStruct() {
			if nested, off, ok := FindMember(m.Type.Struct, name); ok {
				return nested, m.Offset + off, true
			}
		}
	}
	return nil, 0, false
}

// CanCast reports whether src can convert to dst:
// identical integer conversions are always allowed; pointer<->integer only
// when explicit or src is a constant zero; pointer<->pointer when explicit,
// or one side is void*, or the conversion only adds qualifiers; array- and
// function-to-pointer decay are always implicit.
func CanCast(dst, src *Type, srcIsConstZero, explicit bool) bool {
	src = src.Decay()
	dst = dst.Decay()
	if SameType(dst, src) {
		return true
	}
	if dst.IsArith() && src.IsArith() {
		return true
	}
	if dst.IsPtr() && src.IsPtr() {
		if explicit || dst.ElemType.IsVoid() || src.ElemType.IsVoid() {
			return true
		}
		return SameType(dst.ElemType, src.ElemType)
	}
	if dst.IsPtr() && src.IsArith() {
		return explicit || srcIsConstZero
	}
	if dst.IsArith() && src.IsPtr() {
		return explicit
	}
	return false
}

// Promote applies integer promotion: anything narrower than int becomes
// int.
func Promote(t *Type) *Type {
	if t.IsFixnum() && t.FixWidth < WInt {
		return Int
	}
	return t
}

// UsualArithConv implements the usual arithmetic conversions:
// widest wins; on a tie, unsigned wins unless the signed type can hold
// every value the unsigned one can, in which case convert to the signed type.
func UsualArithConv(a, b *Type) *Type {
	a, b = Promote(a), Promote(b)
	if a.IsFixnum() && a.FixWidth == WEnum {
		a = Int
	}
	if b.IsFixnum() && b.FixWidth == WEnum {
		b = Int
	}
	if a.IsFlonum() || b.IsFlonum() {
		if a.IsFlonum() && b.IsFlonum() {
			if a.FloWidth >= b.FloWidth {
				return a
			}
			return b
		}
		if a.IsFlonum() {
			return a
		}
		return b
	}
	if a.FixWidth == b.FixWidth {
		if a.FixSigned == b.FixSigned {
			return a
		}
		// same width, different signedness: unsigned wins.
		if a.FixSigned {
			return b
		}
		return a
	}
	if a.FixWidth > b.FixWidth {
		return a
	}
	return b
}
