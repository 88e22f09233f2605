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
package codegen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// buildLIR lowers a small C function straight to LIR, reusing the same
// front-end pipeline buildProgram (lower_x86_test.go) already exercises.
func buildLIR(t *testing.T, src string) *LIR {
	t.Helper()
	prog := buildProgram(t, src)
	require.Len(t, prog.Functions, 1)
	return Lower(prog.Functions[0])
}

func TestAllocateComputesAnIntervalPerVirtualRegister(t *testing.T) {
	lir := buildLIR(t, `int add(int a, int b) { int c = a + b; return c; }`)

	ra := &LSRA{lir: lir}
	ra.allocate()

	require.NotEmpty(t, ra.reg2Interval)
	for vreg, interval := range ra.reg2Interval {
		require.Equal(t, vreg, interval.index)
		require.NotEmpty(t, interval.ranges, "every live VReg should have at least one range")
		// allocateRegisters must leave every interval either holding a
		// physical register or spilled to a stack slot, never both unset.
		require.True(t, interval.phyRegIndex != -1 || interval.spilled,
			"interval %d left with neither a register nor a spill slot", vreg)
	}
}

func TestAllocateNeverMutatesLIR(t *testing.T) {
	lir := buildLIR(t, `int add(int a, int b) { int c = a + b; return c; }`)
	before := CodeGen([]*LIR{lir}, false)

	traceAllocation(lir)

	after := CodeGen([]*LIR{lir}, false)
	require.Equal(t, before, after, "traceAllocation must not change what CodeGen emits")
}

func TestTryAllocatePhyRegPicksAFreeRegisterWhenNoneAreActive(t *testing.T) {
	ra := &LSRA{}
	ra.current = newInterval(0)
	ra.current.addRange(0, 10)

	ra.tryAllocatePhyReg()

	require.NotEqual(t, -1, ra.current.phyRegIndex)
	require.False(t, ra.current.spilled)
}

func TestTryAllocatePhyRegEvictsAndSpillsWhenAllRegistersAreBusy(t *testing.T) {
	ra := &LSRA{}
	regs := CallerSaveRegs(LIRTypeQWord)

	// Occupy every caller-saved register with a long-lived active interval.
	allActives := make([]*Interval, len(regs))
	for i, r := range regs {
		in := newInterval(100 + i)
		in.addRange(0, 1000)
		in.phyRegIndex = r.Affinity
		allActives[i] = in
	}
	ra.actives = append(ra.actives, allActives...)

	ra.current = newInterval(0)
	ra.current.addRange(5, 10)
	ra.tryAllocatePhyReg()

	require.NotEqual(t, -1, ra.current.phyRegIndex, "current interval should take over an evicted register")
	require.Len(t, ra.actives, len(regs)-1, "evictFurthestActive removes the victim from actives")

	var victim *Interval
	for _, in := range allActives {
		if in.spilled {
			victim = in
		}
	}
	require.NotNil(t, victim, "exactly one active interval should have been spilled")
	require.Equal(t, -1, victim.phyRegIndex)
	require.NotEqual(t, -1, victim.spillSlot)
}

func TestEvictFurthestActiveSpillsTheIntervalEndingLatest(t *testing.T) {
	ra := &LSRA{}

	near := newInterval(1)
	near.addRange(0, 5)
	near.phyRegIndex = RAX.Affinity
	far := newInterval(2)
	far.addRange(0, 50)
	far.phyRegIndex = RAX.Affinity

	ra.actives = []*Interval{near, far}
	ra.evictFurthestActive(RAX.Affinity)

	require.True(t, far.spilled, "the interval ending furthest in the future should be evicted")
	require.False(t, near.spilled)
	require.Len(t, ra.actives, 1)
	require.Equal(t, near, ra.actives[0])
}

func TestSpillIntervalAssignsAStableSlot(t *testing.T) {
	ra := &LSRA{}
	in := newInterval(0)
	in.phyRegIndex = RAX.Affinity

	ra.spillInterval(in)
	first := in.spillSlot
	require.NotEqual(t, -1, first)
	require.Equal(t, -1, in.phyRegIndex)
	require.True(t, in.spilled)
	require.True(t, ra.spilled)

	// Spilling an already-spilled interval again must not hand out a second slot.
	ra.spillInterval(in)
	require.Equal(t, first, in.spillSlot)
}
