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

// InitKind tags an Initializer's variant: Single(Expr) |
// Multi(list<Initializer>) | Dot(member-name, Initializer) |
// Arr(const-index-expr, Initializer).
type InitKind int

const (
	InitSingle InitKind = iota
	InitMulti
	InitDot
	InitArr
)

// Initializer is the parser's as-written form: brace-nested, possibly with
// designators. The parser builds this tree directly from source;
// FlattenInitializer then walks it against a Type to produce the canonical
// flattened form consumed by codegen.
type Initializer struct {
	Kind InitKind
	Tok  Token

	// InitSingle
	Expr Expr

	// InitMulti
	Elems []*Initializer

	// InitDot
	Member *Name
	Value  *Initializer

	// InitArr
	Index Expr
	Elem  *Initializer
}

// FlatEntry is one (byte-offset, value) pair in the flattened canonical
// form, for both structs (positional members) and arrays (designated
// indices): every entry names the absolute byte offset from the start of
// the object and the scalar Expr to store there, so codegen never has to
// re-derive layout from the Initializer tree.
type FlatEntry struct {
	Offset int64
	Type   *Type
	Value  Expr
}

// FlattenInitializer walks init against t, producing the ordered list of
// FlatEntry that fully describes the initial value of an object of type t.
// Gaps (implicitly zero-initialized bytes, e.g. tail struct members or
// array elements with no explicit initializer) are left out of the list;
// the codegen emitter zero-fills them, matching the original's behavior
// described informally in original_source/src/cc/decl.c.
func FlattenInitializer(ctx *Context, t *Type, init *Initializer) []FlatEntry {
	var out []FlatEntry
	flattenInto(ctx, t, init, 0, &out)
	return out
}

func flattenInto(ctx *Context, t *Type, init *Initializer, base int64, out *[]FlatEntry) {
	if init == nil {
		return
	}

	switch {
	case t.IsStruct():
		flattenStruct(ctx, t, init, base, out)
	case t.IsArray():
		flattenArray(ctx, t, init, base, out)
	default:
		// Scalar: a bare Multi with one element unwraps (brace-elision).
		e := init
		for e.Kind == InitMulti && len(e.Elems) == 1 {
			e = e.Elems[0]
		}
		if e.Kind != InitSingle {
			ctx.Errors.Add(Diagnostic{
				Line: e.Tok.Line, Column: e.Tok.Col,
				Message: "scalar initializer must not be a brace list",
			})
			return
		}
		*out = append(*out, FlatEntry{Offset: base, Type: t, Value: e.Expr})
	}
}

func flattenStruct(ctx *Context, t *Type, init *Initializer, base int64, out *[]FlatEntry) {
	if init.Kind != InitMulti {
		// A single expression initializing a struct is recorded as one
		// whole-value entry (copy-init); its type is not checked here. Any
		// other non-brace initializer is reported as an error.
		if init.Kind == InitSingle {
			*out = append(*out, FlatEntry{Offset: base, Type: t, Value: init.Expr})
			return
		}
		ctx.Errors.Add(Diagnostic{
			Line: init.Tok.Line, Column: init.Tok.Col,
			Message: "invalid initializer for struct type",
		})
		return
	}

	members := t.Struct.Members
	pos := 0
	for _, elem := range init.Elems {
		if elem.Kind == InitDot {
			// Designators resolve through anonymous members for placement
			// (FindMember), but subsequent undesignated initializers resume
			// from the following top-level member, per ordinary C
			// designated-initializer semantics.
			m, off, ok := FindMember(t.Struct, elem.Member)
			if !ok {
				ctx.Errors.Add(Diagnostic{
					Line: elem.Tok.Line, Column: elem.Tok.Col,
					Message: "no such member: " + elem.Member.String(),
				})
				continue
			}
			flattenInto(ctx, m.Type, elem.Value, base+int64(off), out)
			pos = topLevelIndex(members, elem.Member) + 1
			continue
		}
		if pos >= len(members) {
			ctx.Errors.Add(Diagnostic{
				Line: elem.Tok.Line, Column: elem.Tok.Col,
				Message: "excess elements in struct initializer",
			})
			break
		}
		m := members[pos]
		flattenInto(ctx, m.Type, elem, base+int64(m.Offset), out)
		pos++
	}
}

// topLevelIndex finds name's position directly within members (not
// descending into anonymous nested members), falling back to the
// anonymous member that contains it so pos still advances sensibly.
func topLevelIndex(members []Member, name *Name) int {
	for i, m := range members {
		if m.Name == name {
			return i
		}
	}
	for i, m := range members {
		if m.Name == nil && m.Type.IsStruct() {
			if _, _, ok := FindMember(m.Type.Struct, name); ok {
				return i
			}
		}
	}
	return len(members) - 1
}

func flattenArray(ctx *Context, t *Type, init *Initializer, base int64, out *[]FlatEntry) {
	if init.Kind != InitMulti {
		if init.Kind == InitSingle && t.ElemType == Char {
			// `char buf[N] = "literal"`: a single initializer for a char
			// array is recorded as one entry covering the whole array.
			// Any other non-brace array initializer is reported as an error.
			*out = append(*out, FlatEntry{Offset: base, Type: t, Value: init.Expr})
			return
		}
		ctx.Errors.Add(Diagnostic{
			Line: init.Tok.Line, Column: init.Tok.Col,
			Message: "invalid initializer for array type",
		})
		return
	}

	elemSize := SizeOf(t.ElemType)
	next := int64(0)
	maxIndex := int64(-1)
	for _, elem := range init.Elems {
		idx := next
		inner := elem
		if elem.Kind == InitArr {
			idx = constIndex(ctx, elem.Index)
			inner = elem.Elem
		}
		flattenInto(ctx, t.ElemType, inner, base+idx*elemSize, out)
		next = idx + 1
		if idx > maxIndex {
			maxIndex = idx
		}
	}

	// An incomplete array (`int a[] = {...}`) gets its length from the
	// initializer, per ordinary C semantics carried over unchanged.
	if t.ArrayLen < 0 {
		t.ArrayLen = maxIndex + 1
	}
}

// constIndex evaluates a designated-array-index expression. Only an
// integer literal is accepted; the parser neither folds nor checks
// designator expressions, so any other expression ends in Fatal.
func constIndex(ctx *Context, e Expr) int64 {
	if lit, ok := e.(*IntLitExpr); ok {
		return lit.Value
	}
	Fatal("non-constant array designator reached flattening")
	return 0
}
