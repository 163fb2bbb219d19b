// Package regalloc implements C4: block-level liveness analysis followed by
// linear-scan register allocation onto a fixed pool of RISC-V scratch
// registers. Grounded on original_source/src/backend/{liveness,regalloc}.rs
// for the dataflow equations and allocation heuristic.
package regalloc

import "peritc/internal/ir"

// RegSet is a small set of virtual-register ids.
type RegSet map[int]bool

func (s RegSet) add(id int)            { s[id] = true }
func (s RegSet) has(id int) bool       { return s[id] }
func (s RegSet) clone() RegSet {
	c := make(RegSet, len(s))
	for k := range s {
		c[k] = true
	}
	return c
}

func (s RegSet) equals(o RegSet) bool {
	if len(s) != len(o) {
		return false
	}
	for k := range s {
		if !o[k] {
			return false
		}
	}
	return true
}

// BlockLiveness holds the use/def/live-in/live-out sets for one block.
type BlockLiveness struct {
	Use, Def         RegSet
	LiveIn, LiveOut RegSet
}

// Analyze computes block-level liveness over the whole CFG via the
// classical use/def fixed-point (spec.md §4.4): live_out(B) = union of
// live_in(S) over successors; live_in(B) = use(B) ∪ (live_out(B) \ def(B)).
// Iterates in reverse block order until no set changes.
func Analyze(cfg *ir.CFG) map[ir.BlockID]*BlockLiveness {
	info := make(map[ir.BlockID]*BlockLiveness, len(cfg.Blocks))
	for _, block := range cfg.Blocks {
		info[block.ID] = computeUseDef(block)
	}

	changed := true
	for changed {
		changed = false
		for i := len(cfg.Blocks) - 1; i >= 0; i-- {
			block := cfg.Blocks[i]
			bl := info[block.ID]

			liveOut := RegSet{}
			for _, succ := range block.Terminator.Successors() {
				for id := range info[succ].LiveIn {
					liveOut.add(id)
				}
			}

			liveIn := bl.Use.clone()
			for id := range liveOut {
				if !bl.Def.has(id) {
					liveIn.add(id)
				}
			}

			if !liveIn.equals(bl.LiveIn) || !liveOut.equals(bl.LiveOut) {
				changed = true
			}
			bl.LiveIn = liveIn
			bl.LiveOut = liveOut
		}
	}

	return info
}

func computeUseDef(block *ir.BasicBlock) *BlockLiveness {
	use := RegSet{}
	def := RegSet{}

	readReg := func(r ir.VirtualRegister) {
		if !def.has(r.ID) {
			use.add(r.ID)
		}
	}

	for _, instr := range block.MachineInstrs {
		for _, arg := range instr.Args {
			readReg(arg)
		}
		if instr.Dest != nil {
			def.add(instr.Dest.ID)
		}
	}

	switch block.Terminator.Kind {
	case ir.TermBranch:
		readReg(block.Terminator.CondReg)
	case ir.TermReturn:
		if block.Terminator.RetReg != nil {
			readReg(*block.Terminator.RetReg)
		}
	}

	return &BlockLiveness{Use: use, Def: def, LiveIn: RegSet{}, LiveOut: RegSet{}}
}
