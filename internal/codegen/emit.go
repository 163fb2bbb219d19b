package codegen

import (
	"fmt"
	"io"

	"peritc/internal/frontend"
	"peritc/internal/ir"
	"peritc/internal/regalloc"
)

// CodegenError wraps a formatting failure from the emitter. Spec.md §7
// notes this is "effectively unreachable" — fmt.Fprintf against a
// in-memory/file writer does not fail in practice — but the contract is
// carried through as a typed error like every other phase.
type CodegenError struct {
	Function string
	Cause    error
}

func (e *CodegenError) Error() string {
	return fmt.Sprintf("Codegen error in function '%s': %v", e.Function, e.Cause)
}

var binaryMnemonic = map[ir.Op]string{
	ir.OpAdd: "add",
	ir.OpSub: "sub",
	ir.OpMul: "mul",
	ir.OpDiv: "div",
	ir.OpRem: "rem",
	ir.OpAnd: "and",
	ir.OpOr:  "or",
	ir.OpXor: "xor",
	ir.OpSll: "sll",
	ir.OpSrl: "srl",
	ir.OpEq:  "seq",
	ir.OpNe:  "sne",
	ir.OpLt:  "slt",
	ir.OpLe:  "sle",
	ir.OpGt:  "sgt",
	ir.OpGe:  "sge",
}

var unaryMnemonic = map[ir.Op]string{
	ir.OpNeg: "neg",
	ir.OpNot: "not",
}

// Emit writes one function's flattened instruction stream as RISC-V text
// assembly: a `.global` directive, a fixed 16-byte prologue (frame adjust,
// save return address at offset 12), the body, and an epilogue inlined
// before each Ret (spec.md §4.5, §6).
func Emit(w io.Writer, fn *frontend.Function, flat []ir.Instruction, alloc regalloc.Allocation) error {
	if _, err := fmt.Fprintf(w, ".global %s\n%s:\n", fn.Name, fn.Name); err != nil {
		return &CodegenError{Function: fn.Name, Cause: err}
	}
	if _, err := fmt.Fprintf(w, "  addi sp, sp, -16\n  sw ra, 12(sp)\n"); err != nil {
		return &CodegenError{Function: fn.Name, Cause: err}
	}
	for _, instr := range flat {
		if err := emitInstr(w, instr, alloc); err != nil {
			return &CodegenError{Function: fn.Name, Cause: err}
		}
	}
	return nil
}

func emitInstr(w io.Writer, instr ir.Instruction, alloc regalloc.Allocation) error {
	reg := func(v ir.VirtualRegister) string { return alloc[v.ID] }

	switch instr.Op {
	case ir.OpLabel:
		_, err := fmt.Fprintf(w, "%s:\n", instr.Label)
		return err

	case ir.OpLoadImm:
		_, err := fmt.Fprintf(w, "  li %s, %d\n", reg(*instr.Dest), instr.Imm)
		return err

	case ir.OpLoadAddr:
		_, err := fmt.Fprintf(w, "  li %s, %d\n", reg(*instr.Dest), int32(instr.Addr))
		return err

	case ir.OpLoadWord:
		_, err := fmt.Fprintf(w, "  lw %s, 0(%s)\n", reg(*instr.Dest), reg(instr.Args[0]))
		return err

	case ir.OpStoreWord:
		_, err := fmt.Fprintf(w, "  sw %s, 0(%s)\n", reg(instr.Args[1]), reg(instr.Args[0]))
		return err

	case ir.OpMov:
		_, err := fmt.Fprintf(w, "  mv %s, %s\n", reg(*instr.Dest), reg(instr.Args[0]))
		return err

	case ir.OpMovArg:
		_, err := fmt.Fprintf(w, "  mv %s, a%d\n", reg(*instr.Dest), instr.ArgIndex)
		return err

	case ir.OpCall:
		for i, arg := range instr.Args {
			if _, err := fmt.Fprintf(w, "  mv a%d, %s\n", i, reg(arg)); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "  call %s\n", instr.Label); err != nil {
			return err
		}
		if instr.Dest != nil {
			_, err := fmt.Fprintf(w, "  mv %s, a0\n", reg(*instr.Dest))
			return err
		}
		return nil

	case ir.OpRet:
		if len(instr.Args) > 0 {
			if _, err := fmt.Fprintf(w, "  mv a0, %s\n", reg(instr.Args[0])); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w, "  lw ra, 12(sp)\n  addi sp, sp, 16\n  ret\n")
		return err

	case ir.OpJump:
		_, err := fmt.Fprintf(w, "  j %s\n", instr.Label)
		return err

	case ir.OpBranchIfFalse:
		_, err := fmt.Fprintf(w, "  beqz %s, %s\n", reg(instr.Args[0]), instr.Label)
		return err

	default:
		if mnemonic, ok := binaryMnemonic[instr.Op]; ok {
			_, err := fmt.Fprintf(w, "  %s %s, %s, %s\n", mnemonic, reg(*instr.Dest), reg(instr.Args[0]), reg(instr.Args[1]))
			return err
		}
		if mnemonic, ok := unaryMnemonic[instr.Op]; ok {
			_, err := fmt.Fprintf(w, "  %s %s, %s\n", mnemonic, reg(*instr.Dest), reg(instr.Args[0]))
			return err
		}
		return fmt.Errorf("unemittable opcode %s", instr.Op)
	}
}
