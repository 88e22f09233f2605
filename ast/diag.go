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
	"os"
)

// Diagnostic is one user-visible error: filename, line, a human message and
// the source line with a caret under the offending token.
type Diagnostic struct {
	File    string
	Line    int
	Column  int
	Message string
	Source  string // the offending source line, for the caret rendering
}

func (d Diagnostic) String() string {
	s := fmt.Sprintf("%s:%d: error: %s", d.File, d.Line, d.Message)
	if d.Source != "" {
		caret := ""
		for i := 0; i < d.Column && i < len(d.Source); i++ {
			if d.Source[i] == '\t' {
				caret += "\t"
			} else {
				caret += " "
			}
		}
		s += fmt.Sprintf("\n%s\n%s^", d.Source, caret)
	}
	return s
}

// ErrorBag accumulates non-fatal parse/type errors up to a cap, matching
// the source's compile_error_count mechanism: parse_error_nofatal keeps
// going, but the process aborts once the cap is exceeded so pathological
// input can't produce unbounded diagnostics.
type ErrorBag struct {
	cap   int
	diags []Diagnostic
}

func NewErrorBag(cap int) *ErrorBag {
	return &ErrorBag{cap: cap}
}

// Add records a non-fatal diagnostic. Once the cap is exceeded it aborts the
// process immediately -- mirrors the source's hard compile_error_count limit.
func (b *ErrorBag) Add(d Diagnostic) {
	b.diags = append(b.diags, d)
	if len(b.diags) > b.cap {
		fmt.Fprintln(os.Stderr, d.String())
		fmt.Fprintf(os.Stderr, "too many errors (%d), aborting\n", len(b.diags))
		os.Exit(1)
	}
}

func (b *ErrorBag) Count() int {
	return len(b.diags)
}

func (b *ErrorBag) HasErrors() bool {
	return len(b.diags) > 0
}

func (b *ErrorBag) Diagnostics() []Diagnostic {
	return b.diags
}

// PrintAll writes every accumulated diagnostic to stderr in order.
func (b *ErrorBag) PrintAll() {
	for _, d := range b.diags {
		fmt.Fprintln(os.Stderr, d.String())
	}
}

// Fatal reports an unrecoverable error (file not found, internal invariant
// violation) and terminates the process immediately.
func Fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "fatal: %s\n", fmt.Sprintf(format, args...))
	os.Exit(1)
}
