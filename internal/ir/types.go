// Package ir defines the block-structured intermediate representation
// shared by the typestate verifier (C3), the liveness/register allocator
// (C4), and the CFG flattening/codegen driver (C5): a control-flow graph of
// basic blocks, each carrying a semantic statement stream and a machine
// instruction stream over virtual registers.
package ir

// VirtualRegister is a compiler-generated, dense, opaque register identity.
// Each register is written at most once per instruction (its Dest); all
// other occurrences are read-only uses.
type VirtualRegister struct {
	ID int
}

// Op enumerates the machine-instruction opcodes emitted by lowering (C2)
// and consumed by liveness/regalloc (C4) and flattening/codegen (C5).
type Op int

const (
	OpLoadImm Op = iota
	OpLoadAddr
	OpLoadWord
	OpStoreWord
	OpMov
	OpMovArg
	OpCall
	OpRet
	OpLabel
	OpJump
	OpBranchIfFalse

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpRem
	OpAnd
	OpOr
	OpXor
	OpSll
	OpSrl
	OpNeg
	OpNot
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

// opNames names ops of Op for diagnostics/dumps.
var opNames = map[Op]string{
	OpLoadImm:       "LoadImm",
	OpLoadAddr:      "LoadAddr",
	OpLoadWord:      "LoadWord",
	OpStoreWord:     "StoreWord",
	OpMov:           "Mov",
	OpMovArg:        "MovArg",
	OpCall:          "Call",
	OpRet:           "Ret",
	OpLabel:         "Label",
	OpJump:          "Jump",
	OpBranchIfFalse: "BranchIfFalse",
	OpAdd:           "Add",
	OpSub:           "Sub",
	OpMul:           "Mul",
	OpDiv:           "Div",
	OpRem:           "Rem",
	OpAnd:           "And",
	OpOr:            "Or",
	OpXor:           "Xor",
	OpSll:           "Sll",
	OpSrl:           "Srl",
	OpNeg:           "Neg",
	OpNot:           "Not",
	OpEq:            "Eq",
	OpNe:            "Ne",
	OpLt:            "Lt",
	OpLe:            "Le",
	OpGt:            "Gt",
	OpGe:            "Ge",
}

func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "Unknown"
}

// Instruction is a single machine-level operation over virtual registers.
// Not every field is meaningful for every Op: Imm is LoadImm's literal,
// Addr is LoadAddr's resolved peripheral-register address, ArgIndex is
// MovArg's parameter index, and Label is the symbolic target/name carried
// by Call, Label, Jump and BranchIfFalse.
type Instruction struct {
	Op       Op
	Dest     *VirtualRegister
	Args     []VirtualRegister
	Imm      int32
	Addr     uint32
	ArgIndex int
	Label    string
}

// NewInstruction builds an Instruction with the given destination and args;
// Dest may be nil for instructions with no result (e.g. StoreWord, Ret).
func NewInstruction(op Op, dest *VirtualRegister, args ...VirtualRegister) Instruction {
	return Instruction{Op: op, Dest: dest, Args: args}
}
