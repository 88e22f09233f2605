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

	"github.com/dolthub/swiss"
)

// Name is an interned identifier. Equal names share storage, so comparison
// is always pointer-equal -- never compare the strings behind two Names.
type Name struct {
	text string
}

func (n *Name) String() string {
	if n == nil {
		return "<anon>"
	}
	return n.text
}

// Context owns every process-wide table the compiler needs for one
// translation unit: the interned-name table, the global scope, the global
// variable table and the running error counter. The original source keeps
// these as package-level globals (curscope, curfunc, the interned-name
// table...); collecting them here avoids hidden state and makes "one
// compilation per process" an explicit invariant instead of an assumption.
type Context struct {
	names *swiss.Map[string, *Name]

	Global *Scope
	Errors *ErrorBag

	// labelCounter mints .LC<n> labels for promoted string literals.
	labelCounter int

	// compoundCounter mints unique names for compound-literal hidden
	// variables, e.g. ".compound0", ".compound1", ...
	compoundCounter int

	// toplevel holds every top-level declaration in source order, spanning
	// every translation-unit file parsed into this Context.
	Toplevel []Decl
}

func NewContext() *Context {
	ctx := &Context{
		names:  swiss.NewMap[string, *Name](64),
		Errors: NewErrorBag(25),
	}
	ctx.Global = NewGlobalScope()
	return ctx
}

// Intern returns the unique Name for text, creating it on first use.
func (c *Context) Intern(text string) *Name {
	if n, ok := c.names.Get(text); ok {
		return n
	}
	n := &Name{text: text}
	c.names.Put(text, n)
	return n
}

// NextStringLabel mints the next hidden-global label for a promoted string
// literal, e.g. ".LC0", ".LC1", ...
func (c *Context) NextStringLabel() string {
	id := c.labelCounter
	c.labelCounter++
	return fmt.Sprintf(".LC%d", id)
}

// nextCompoundID mints the next hidden-variable suffix for a compound
// literal.
func (c *Context) nextCompoundID() int {
	id := c.compoundCounter
	c.compoundCounter++
	return id
}
