package regalloc

import (
	"log/slog"
	"sort"

	"peritc/internal/ir"
)

// Pool is the fixed physical-register pool for the RISC-V target: seven
// caller-saved scratch registers (spec.md §4.4).
var Pool = []string{"t0", "t1", "t2", "t3", "t4", "t5", "t6"}

// Interval is a virtual register's live range. Program points are assigned
// in source block order (block id, then instruction order within the
// block, with the terminator counted as one more point); endpoints are
// inclusive.
type Interval struct {
	VReg  int
	Start int
	End   int
}

// Allocation is a total mapping from every virtual register touched by a
// function to a physical register name (spec.md §8 "Allocation totality").
type Allocation map[int]string

// ComputeIntervals derives live intervals from the machine instruction
// stream and the block-level liveness already computed, widening each
// register's range to the boundaries of any block it is live in/out of
// (spec.md §4.4 Live intervals).
func ComputeIntervals(cfg *ir.CFG, liveness map[ir.BlockID]*BlockLiveness) map[int]*Interval {
	intervals := map[int]*Interval{}
	touch := func(id, point int) {
		iv, ok := intervals[id]
		if !ok {
			intervals[id] = &Interval{VReg: id, Start: point, End: point}
			return
		}
		if point < iv.Start {
			iv.Start = point
		}
		if point > iv.End {
			iv.End = point
		}
	}

	point := 0
	for _, block := range cfg.Blocks {
		blockFirst := point
		for _, instr := range block.MachineInstrs {
			for _, arg := range instr.Args {
				touch(arg.ID, point)
			}
			if instr.Dest != nil {
				touch(instr.Dest.ID, point)
			}
			point++
		}

		termPoint := point
		switch block.Terminator.Kind {
		case ir.TermBranch:
			touch(block.Terminator.CondReg.ID, termPoint)
		case ir.TermReturn:
			if block.Terminator.RetReg != nil {
				touch(block.Terminator.RetReg.ID, termPoint)
			}
		}
		point++

		bl := liveness[block.ID]
		for id := range bl.LiveIn {
			touch(id, blockFirst)
		}
		for id := range bl.LiveOut {
			touch(id, termPoint)
		}
	}

	return intervals
}

// LinearScan assigns physical registers to the given intervals by sweeping
// start points and maintaining an active set sorted by end point (spec.md
// §4.4). Intervals that cannot be assigned a real register fall back to a
// deterministic modulo assignment — the documented spilling gap (spec.md
// §4.4 step 4, §9): this can alias two live registers onto the same
// physical name and is a known soundness gap in codegen, not a bug to fix
// here.
func LinearScan(intervals map[int]*Interval) Allocation {
	ordered := make([]*Interval, 0, len(intervals))
	for _, iv := range intervals {
		ordered = append(ordered, iv)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Start != ordered[j].Start {
			return ordered[i].Start < ordered[j].Start
		}
		return ordered[i].VReg < ordered[j].VReg
	})

	alloc := make(Allocation, len(ordered))
	var active []*Interval // sorted by End ascending
	free := append([]string(nil), Pool...)
	assigned := map[int]string{}
	var spilled []*Interval

	removeActive := func(target *Interval) {
		for i, iv := range active {
			if iv == target {
				active = append(active[:i], active[i+1:]...)
				return
			}
		}
	}

	insertActive := func(iv *Interval) {
		i := sort.Search(len(active), func(i int) bool { return active[i].End >= iv.End })
		active = append(active, nil)
		copy(active[i+1:], active[i:])
		active[i] = iv
	}

	for _, cur := range ordered {
		// Expire intervals that have ended before cur starts, returning
		// their registers to the free pool.
		var stillActive []*Interval
		for _, iv := range active {
			if iv.End < cur.Start {
				free = append(free, assigned[iv.VReg])
			} else {
				stillActive = append(stillActive, iv)
			}
		}
		active = stillActive

		if len(free) > 0 {
			reg := free[0]
			free = free[1:]
			assigned[cur.VReg] = reg
			insertActive(cur)
			continue
		}

		if len(active) > 0 {
			candidate := active[len(active)-1] // latest End
			if candidate.End > cur.End {
				reg := assigned[candidate.VReg]
				removeActive(candidate)
				spilled = append(spilled, candidate)
				assigned[cur.VReg] = reg
				insertActive(cur)
				continue
			}
		}

		spilled = append(spilled, cur)
	}

	for id, reg := range assigned {
		alloc[id] = reg
	}
	for _, iv := range spilled {
		reg := Pool[iv.VReg%len(Pool)]
		alloc[iv.VReg] = reg
		slog.Warn("register spilled; falling back to modulo assignment (known codegen gap)",
			"vreg", iv.VReg, "register", reg, "start", iv.Start, "end", iv.End)
	}

	return alloc
}
