// Copyright (c) 2024 The Falcon Programming Language
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
	"fmt"
	"math"
	"os"
	"sort"

	"golang.org/x/exp/maps"

	"github.com/mkuznets/cc1/utils"
)

// -----------------------------------------------------------------------------
// Linear Scan Register Allocation
//
// After lowering the IR to LIR, we need to allocate registers to the virtual
// registers. We use the linear scan register allocation algorithm to do this.
// The algorithm is based on the paper "Linear Scan Register Allocation for the
// Java HotSpot™ Client Compiler" by Christian Wimmer, et al.

type LSRA struct {
	lir    *LIR
	blocks []int

	genKillMap   map[int]*GenKill
	liveInOutMap map[int]*LiveInOut

	reg2Interval map[int]*Interval // register index to interval

	// nonFixedIntervals []*Interval

	workList []*Interval
	current  *Interval

	actives  []*Interval
	inactive []*Interval
	handled  []*Interval

	spilled       bool
	nextStackSlot int // TODO: should we consider width?
}

// Interval represents a live interval, it contains a list of ranges and a list
// of use points. The ranges are sorted by the start position. The use points
// denote the instruction positions where the interval is used.
type Interval struct {
	index int

	// range is a keyword, use _range instead
	ranges []*Range
	uses   []*UsePoint

	phyRegIndex int

	spilled   bool
	spillSlot int
}

func (i *Interval) String() string {
	str := "@"
	for _, r := range i.ranges {
		str += fmt.Sprintf("[i%d,i%d)", r.from, r.to)
	}
	str += " @"
	for _, u := range i.uses {
		str += fmt.Sprintf("i%d ", u.id)
	}
	if i.spilled {
		str += fmt.Sprintf("spill#%d", i.spillSlot)
	} else if i.phyRegIndex != -1 {
		str += FindRegisterByIndex(i.phyRegIndex).String()
	}
	return str
}

type Range struct {
	// from instruction id, inclusive
	from int

	// to instruction id, inclusive
	to int

	next *Range
}

type UsePoint struct {
	id   int // instruction id
	kind UseKind
}

type UseKind int

const (
	UKRead UseKind = iota
	UKWrite
)

func newInterval(vri int) *Interval {
	return &Interval{
		index:       vri,
		phyRegIndex: -1,
		spillSlot:   -1,
	}
}

func (i *Interval) NumRanges() int {
	return len(i.ranges)
}

func (i *Interval) firstRange() *Range {
	return i.ranges[0]
}

func (i *Interval) lastRange() *Range {
	return i.ranges[len(i.ranges)-1]
}

func (i *Interval) cover(pos int) bool {
	for _, r := range i.ranges {
		if r.from <= pos && r.to >= pos {
			return true
		}
		r = r.next
	}
	return false
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (i *Interval) addRange(from, to int) {
	for _, r := range i.ranges {
		// Two ranges are overlapped
		if r.from <= from && r.to >= from {
			r.to = max(r.to, to)
			return
		} else if r.from <= to && r.to >= to {
			r.from = min(r.from, from)
			return
		}
	}
	// No overlapped range found, add a new range
	i.ranges = append(i.ranges, &Range{
		from: from,
		to:   to,
	})
}

func (i *Interval) addUsePoint(id int, kind UseKind) {
	i.uses = append(i.uses, &UsePoint{
		id:   id,
		kind: kind,
	})
}

func (i *Interval) intersect(k *Interval) int {
	for _, r1 := range i.ranges {
		for _, r2 := range k.ranges {
			if r1.from <= r2.to && r1.to >= r2.from {
				return min(r1.to, r2.to)
			}
		}
	}
	return -1
}

type GenKill struct {
	gen  *utils.BitMap
	kill *utils.BitMap
}

type LiveInOut struct {
	in  *utils.BitMap
	out *utils.BitMap
}

func (x *GenKill) String() string {
	return fmt.Sprintf("[gen:%s, kill:%s]", x.gen, x.kill)
}

func (x *LiveInOut) String() string {
	return fmt.Sprintf("[in:%s, out:%s]", x.in, x.out)
}

func (ra *LSRA) allocateStackSlot() int {
	v := ra.nextStackSlot
	ra.nextStackSlot++
	return v
}

// used when building intervals
func (ra *LSRA) getOrCreateInterval(i int, virtual bool) *Interval {
	if interval, ok := ra.reg2Interval[i]; interval != nil && ok {
		return interval
	}
	interval := newInterval(i)
	ra.reg2Interval[i] = interval
	return interval
}

// func (ra *LSRA) insertToWorkList(interval *Interval) {
// 	pos := &ra.workList

// 	for *pos != nil && (*pos).fistRange().from <= interval.fistRange().from {
// 		pos = &(*pos).next
// 	}

// 	interval.next = *pos
// 	*pos = interval
// }

func (ra *LSRA) initOrder() {
	// TODO: A more appropriate order should be used.
	//       Order does not break correctness, but it is important for performance.
	//       For simplicity, we use the original order.
	blocksOrder := maps.Keys(ra.lir.Instructions)
	sort.SliceStable(blocksOrder, func(i, j int) bool {
		return blocksOrder[i] <= blocksOrder[j]
	})
	ra.blocks = blocksOrder
}

func (ra *LSRA) computeGenKillMap(nofVR int) {
	// Per-block liveness analysis
	m := make(map[int]*GenKill)
	for _, b := range ra.blocks {
		gk := GenKill{
			gen:  utils.NewBitMap(nofVR),
			kill: utils.NewBitMap(nofVR),
		}
		m[b] = &gk
		is := ra.lir.Instructions[b]
		for _, i := range is {
			// Instruction operands are all used after defined(say, in some preds),
			// i.e., generated
			for _, a := range i.Args {
				if r, ok := a.(Register); ok {
					if r.Virtual && !gk.kill.IsSet(r.Index) {
						gk.gen.Set(r.Index)
					}
				}
			}
			// Instruction result is defined, i.e., killed
			if r, ok := i.Result.(Register); ok {
				if r.Virtual {
					gk.kill.Set(r.Index)
				}
			}
		}
	}
	ra.genKillMap = m
}

func (ra *LSRA) computeLiveInOutMap(nofVR int) {
	// Global liveness analysis
	m := make(map[int]*LiveInOut)
	for _, b := range ra.blocks {
		m[b] = &LiveInOut{
			in:  utils.NewBitMap(nofVR),
			out: utils.NewBitMap(nofVR),
		}
	}
	changed := true
	for changed {
		changed = false
		for i := len(ra.blocks) - 1; i >= 0; i-- {
			b := ra.blocks[i]
			lio := m[b]
			// This is a backward data flow analysis, the rules are:
			// 1. LiveIn{b} = Gen{b} U (LiveOut{b} - Kill{b})
			// 2. LiveOut{b} = LiveIn{succ1} U LiveIn{succ2} ...
			for _, s := range ra.lir.Edges[b] {
				lio2 := m[s]

				if lio.out.Unite(lio2.in) {
					changed = true
				}
			}

			in := lio.out.Copy()
			in.Remove(ra.genKillMap[b].kill)
			in.Unite(ra.genKillMap[b].gen)
			if lio.in.SetFrom(in) {
				changed = true
			}
		}
	}
	ra.liveInOutMap = m
}

func (ra *LSRA) buildIntervals() {
	ra.reg2Interval = make(map[int]*Interval)

	for i := len(ra.blocks) - 1; i >= 0; i-- {
		b := ra.blocks[i]
		inOut := ra.liveInOutMap[b]
		out := inOut.out
		// For all instructions in the block, we build the initial intervals
		// which equals to the entire block, then try to shorten them.
		for i := 0; i < out.Size(); i++ {
			if out.IsSet(i) {
				is := ra.lir.Instructions[b]
				i := ra.getOrCreateInterval(i, true)
				i.addRange(is[0].Id, is[len(is)-1].Id)
			}
		}

		is := ra.lir.Instructions[b]
		for i := len(is) - 1; i >= 0; i-- {
			instruction := is[i]

			output := instruction.Result
			// Def point there, we need to update start position of the interval
			if r, ok := output.(Register); ok {
				interval := ra.getOrCreateInterval(r.Index, r.Virtual)
				if interval.NumRanges() > 0 {
					interval.firstRange().from = instruction.Id
				}
				interval.addUsePoint(instruction.Id, UKWrite)
			}
			// Use point there, we need to update end position of the interval
			// def is unknown, conservativly assume it starts at the beginning of
			// the block
			for _, input := range instruction.Args {
				if r, ok := input.(Register); ok {
					blockFrom := is[0].Id
					interval := ra.getOrCreateInterval(r.Index, r.Virtual)
					interval.addRange(blockFrom, instruction.Id)
					interval.addUsePoint(instruction.Id, UKRead)
				}
			}
		}
	}

	// TODO:Verify ranges in interval do not overlap
}

func sortWorklist(intervals []*Interval) {
	sort.SliceStable(intervals, func(i, j int) bool {
		return intervals[i].firstRange().from <= intervals[j].firstRange().from
	})
}

func (ra *LSRA) allocateRegisters() {
	for _, i := range ra.reg2Interval {
		if i.ranges == nil {
			continue
		}
		ra.workList = append(ra.workList, i)
	}

	// cover pos and assigned a register
	actives := make([]*Interval, 0)
	// start before pos and end after pos, but do not cover pos
	inactives := make([]*Interval, 0)
	// end before pos or spilled to mem
	handled := make([]*Interval, 0)
	ra.actives = actives
	ra.inactive = inactives
	ra.handled = handled

	for len(ra.workList) > 0 {
		// Pick up lowest start position interval and process it
		sort.SliceStable(ra.workList, func(i, j int) bool {
			return ra.workList[i].firstRange().from <= ra.workList[j].firstRange().from
		})
		ra.current = ra.workList[0]
		ra.workList = ra.workList[1:]
		pos := ra.current.firstRange().from

		for i := len(actives) - 1; i >= 0; i-- {
			interval := actives[i]
			if interval.lastRange().to < pos {
				// Active interval does not overlap with pos, mark it as done
				// given that it is already processed
				actives = append(actives[:i], actives[i+1:]...)
				handled = append(handled, interval)
			} else if !interval.cover(pos) {
				// Active interval does not overlap with pos but not processed
				// yet, move it to inactive
				actives = append(actives[:i], actives[i+1:]...)
				inactives = append(inactives, interval)
			} else {
				// Any remaining intervals are really active
			}
		}

		for i := len(inactives) - 1; i >= 0; i-- {
			interval := inactives[i]
			if interval.lastRange().to < pos {
				// Inactive interval does not overlap with pos, move it to handled
				inactives = append(inactives[:i], inactives[i+1:]...)
				handled = append(handled, interval)
			} else if interval.cover(pos) {
				// Bad case, it becomes active again
				inactives = append(inactives[:i], inactives[i+1:]...)
				actives = append(actives, interval)
			} else {
				// Any remaining intervals are really inactive
			}
		}

		// Try to allocate a physical register for the current interval,
		// evicting and spilling another one if every register is busy for its
		// whole range.
		ra.tryAllocatePhyReg()
		if ra.current.phyRegIndex != -1 {
			ra.actives = append(ra.actives, ra.current)
		}
	}
}

// tryAllocatePhyReg picks a free caller-saved register for ra.current, or --
// if none is free for the interval's entire range -- evicts whichever active
// interval holding a register ends furthest in the future and spills it
// instead, handing its register to ra.current. This is the classic
// active-set-sorted-by-end eviction rule; it never splits an interval, so
// the interval that keeps the register may still conflict with a narrower
// use inside the evicted one -- accepted here since interval splitting and
// the move resolution it requires are out of scope (see allocate).
func (ra *LSRA) tryAllocatePhyReg() {
	regs := CallerSaveRegs(LIRTypeQWord)
	freePos := make([]int, len(regs))
	for i := range freePos {
		freePos[i] = math.MaxInt
	}

	regSlot := func(affinity int) int {
		for idx, r := range regs {
			if r.Affinity == affinity {
				return idx
			}
		}
		return -1
	}

	for _, in := range ra.actives {
		if slot := regSlot(in.phyRegIndex); slot != -1 {
			freePos[slot] = 0
		}
	}
	// Inactive set is guaranteed to not cover the start position of the
	// current interval but may cover its end.
	for _, in := range ra.inactive {
		if k := in.intersect(ra.current); k != -1 {
			if slot := regSlot(in.phyRegIndex); slot != -1 && k < freePos[slot] {
				freePos[slot] = k
			}
		}
	}

	best := 0
	for i := 1; i < len(freePos); i++ {
		if freePos[i] > freePos[best] {
			best = i
		}
	}

	if freePos[best] == 0 {
		ra.evictFurthestActive(regs[best].Affinity)
	}
	ra.current.phyRegIndex = regs[best].Affinity
}

// evictFurthestActive spills whichever active interval holds affinity and
// ends furthest from now, freeing the register for ra.current.
func (ra *LSRA) evictFurthestActive(affinity int) {
	furthest := -1
	furthestEnd := -1
	for i, in := range ra.actives {
		if in.phyRegIndex == affinity && in.lastRange().to > furthestEnd {
			furthest = i
			furthestEnd = in.lastRange().to
		}
	}
	if furthest == -1 {
		return
	}
	victim := ra.actives[furthest]
	ra.actives = append(ra.actives[:furthest], ra.actives[furthest+1:]...)
	ra.spillInterval(victim)
}

func (ra *LSRA) spillInterval(interval *Interval) {
	if interval.spillSlot == -1 {
		interval.spillSlot = ra.allocateStackSlot()
	}
	interval.phyRegIndex = -1
	interval.spilled = true
	ra.spilled = true
}

func (ra *LSRA) printGenKill() {
	fmt.Fprintf(os.Stderr, "===LiveGenKill==\n")
	for k, v := range ra.genKillMap {
		fmt.Fprintf(os.Stderr, "b%d: %s\n", k, v)
	}
}

func (ra *LSRA) printLiveInOut() {
	fmt.Fprintf(os.Stderr, "===LiveInOut==\n")
	for k, v := range ra.liveInOutMap {
		fmt.Fprintf(os.Stderr, "b%d: %s\n", k, v)
	}
}

func (ra *LSRA) printIntervals() {
	fmt.Fprintf(os.Stderr, "==Interval==\n")
	for k, i := range ra.reg2Interval {
		var reg string
		if k >= 0 {
			reg = fmt.Sprintf("v%d", k)
		} else {
			reg = fmt.Sprintf("%s", FindRegisterByIndex(k).String())
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", reg, i)
	}
}

func (ra *LSRA) allocate() {
	nofVR := ra.lir.vid

	ra.initOrder()
	ra.computeGenKillMap(nofVR)
	ra.computeLiveInOutMap(nofVR)
	ra.buildIntervals()
	ra.allocateRegisters()
	// allocateRegisters leaves every interval with either a phyRegIndex or a
	// spillSlot. Interval splitting and the cross-block move resolution it
	// requires are not implemented, so these decisions are traced for
	// inspection but not fed back into CodeGen, which still allocates every
	// VReg a dedicated stack slot.
}

// traceAllocation runs the linear-scan interval analysis over lir and writes
// a trace of the gen/kill sets, live-in/out sets and computed intervals to
// stderr. It never touches lir: CodeGen's own stack-slot assignment is
// independent of whatever this pass decides, so it's safe to run purely for
// diagnostics.
func traceAllocation(lir *LIR) {
	ra := &LSRA{lir: lir}
	ra.allocate()
	ra.printGenKill()
	ra.printLiveInOut()
	ra.printIntervals()
}
