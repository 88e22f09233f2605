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
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func TestCompileEmitsAssemblyForValidSource(t *testing.T) {
	src := `
	int add(int a, int b) {
		return a + b;
	}
	int main(void) {
		return add(1, 2);
	}`

	var out strings.Builder
	diags, err := Compile(testLogger(), DefaultConfig(), "add.c", strings.NewReader(src), &out)
	require.NoError(t, err)
	require.Empty(t, diags)
	require.Contains(t, out.String(), ".globl main")
	require.Contains(t, out.String(), ".globl add")
}

func TestCompileReportsParseErrors(t *testing.T) {
	src := `int f(void) { return }`

	var out strings.Builder
	diags, err := Compile(testLogger(), DefaultConfig(), "bad.c", strings.NewReader(src), &out)
	require.Error(t, err)
	require.NotEmpty(t, diags)
}

func TestCompileStopsAtAssemblyText(t *testing.T) {
	src := `int main(void) { return 0; }`

	var out strings.Builder
	_, err := Compile(testLogger(), DefaultConfig(), "main.c", strings.NewReader(src), &out)
	require.NoError(t, err)

	asm := out.String()
	require.Contains(t, asm, ".text")
	require.NotContains(t, asm, "ELF")
}

func TestDefaultConfigCapsErrors(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 25, cfg.MaxErrors)
	require.False(t, cfg.Verbose)
}
