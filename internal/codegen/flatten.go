// Package codegen implements C5 (CFG flattening into a labeled linear
// instruction stream) and the mechanical RISC-V text emitter that consumes
// it. Grounded on original_source/src/backend/{flatten,generator}.rs.
package codegen

import (
	"fmt"

	"peritc/internal/ir"
)

// BlockLabel returns the synthetic label for a non-entry block.
func BlockLabel(id ir.BlockID) string {
	return fmt.Sprintf(".LBB%d", id)
}

// Flatten linearizes a CFG into a single instruction stream: a label
// before each non-entry block, that block's machine instructions, then the
// terminator lowered to its own instruction(s) (spec.md §4.5).
func Flatten(cfg *ir.CFG) []ir.Instruction {
	var out []ir.Instruction
	for _, block := range cfg.Blocks {
		if block.ID != cfg.EntryID {
			out = append(out, ir.Instruction{Op: ir.OpLabel, Label: BlockLabel(block.ID)})
		}
		out = append(out, block.MachineInstrs...)
		out = append(out, flattenTerminator(block)...)
	}
	return out
}

func flattenTerminator(block *ir.BasicBlock) []ir.Instruction {
	t := block.Terminator
	next := block.ID + 1

	switch t.Kind {
	case ir.TermJump:
		return []ir.Instruction{{Op: ir.OpJump, Label: BlockLabel(t.Target)}}

	case ir.TermBranch:
		instrs := []ir.Instruction{{Op: ir.OpBranchIfFalse, Label: BlockLabel(t.ElseID), Args: []ir.VirtualRegister{t.CondReg}}}
		if t.ThenID != next {
			instrs = append(instrs, ir.Instruction{Op: ir.OpJump, Label: BlockLabel(t.ThenID)})
		}
		return instrs

	case ir.TermFallthrough:
		if t.Target == next {
			return nil
		}
		return []ir.Instruction{{Op: ir.OpJump, Label: BlockLabel(t.Target)}}

	case ir.TermReturn:
		instr := ir.Instruction{Op: ir.OpRet}
		if t.RetReg != nil {
			instr.Args = []ir.VirtualRegister{*t.RetReg}
		}
		return []ir.Instruction{instr}

	default:
		return nil
	}
}
