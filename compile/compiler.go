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
package compile

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/mkuznets/cc1/ast"
	"github.com/mkuznets/cc1/compile/codegen"
	"github.com/mkuznets/cc1/compile/ir"
)

// Config collects the driver options a cobra invocation populates, gathered
// into one struct so the driver has no hidden global state.
type Config struct {
	// MaxErrors caps how many non-fatal diagnostics accumulate before the
	// process aborts (mirrors ast.NewErrorBag's cap).
	MaxErrors int
	// Verbose turns on the register allocator's diagnostic trace, printed
	// to stderr. Per-stage debug lines go to the logger passed to Compile;
	// whether they show depends on that logger's level, not on this flag.
	Verbose bool
}

func DefaultConfig() Config {
	return Config{MaxErrors: 25}
}

// Compile runs the full pipeline -- lex, parse, lower, emit -- over
// one translation unit read from src and writes the resulting x86-64
// assembly text to out. fileName is used only for diagnostics. It returns
// the accumulated non-fatal diagnostics, if any; the caller decides whether
// diagnostics are fatal to the overall run.
func Compile(log *zap.SugaredLogger, cfg Config, fileName string, src io.Reader, out io.Writer) ([]ast.Diagnostic, error) {
	ctx := ast.NewContext()
	ctx.Errors = ast.NewErrorBag(cfg.MaxErrors)

	lx := ast.NewLexer(ctx)
	lx.SetSourceReader(src, fileName, 1)
	log.Debugw("lexing", "file", fileName)

	tu := ast.ParseFile(ctx, lx, fileName)
	if ctx.Errors.HasErrors() {
		return ctx.Errors.Diagnostics(), fmt.Errorf("%d parse error(s) in %s", ctx.Errors.Count(), fileName)
	}

	log.Debugw("lowering to IR", "file", fileName)
	prog := ir.Build(ctx, tu)

	log.Debugw("generating x86-64", "file", fileName, "functions", len(prog.Functions))
	asm := codegen.CodeGenProgram(prog, cfg.Verbose)

	if _, err := io.WriteString(out, asm); err != nil {
		return nil, fmt.Errorf("writing assembly output: %w", err)
	}
	return nil, nil
}
