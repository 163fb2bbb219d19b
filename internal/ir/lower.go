package ir

import (
	"fmt"

	"peritc/internal/frontend"
)

// LoweringError is a hard failure during AST→CFG lowering (C2): a reference
// to a peripheral or register that does not exist, or a read/write against
// a peripheral with no declared base address (spec.md §8 boundary
// behaviors: "Peripheral with no base_address ⇒ any PeripheralRead/
// PeripheralWrite on it is a hard lowering error").
type LoweringError struct {
	Function string
	Message  string
}

func (e *LoweringError) Error() string {
	return fmt.Sprintf("Lowering error in function '%s': %s", e.Function, e.Message)
}

// LowerProgram lowers every function independently, in program order
// (spec.md §5 permits but does not require per-function parallelism; this
// keeps the pipeline's diagnostics deterministic, per SPEC_FULL §5).
func LowerProgram(prog *frontend.Program) (map[string]*CFG, []error) {
	cfgs := make(map[string]*CFG, len(prog.Functions))
	var errs []error
	for i := range prog.Functions {
		fn := &prog.Functions[i]
		cfg, err := LowerFunction(prog, fn)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		cfgs[fn.Name] = cfg
	}
	return cfgs, errs
}

// LowerFunction lowers a single function's body to a CFG. Block 0 is always
// the entry block (spec.md §4.2).
func LowerFunction(prog *frontend.Program, fn *frontend.Function) (*CFG, error) {
	l := &lowerer{
		prog:    prog,
		fn:      fn,
		cfg:     NewCFG(),
		vars:    map[string]VirtualRegister{},
	}
	entry := l.cfg.AddBlock()
	l.cur = entry

	for i, param := range fn.Params {
		dest := l.freshReg()
		l.emitInstr(NewInstructionWithArgIndex(OpMovArg, &dest, i))
		l.vars[param.Name] = dest
	}

	if err := l.lowerStatements(fn.Body); err != nil {
		return nil, err
	}

	if l.cfg.Block(l.cur).Terminator.Kind == TermNone {
		l.cfg.Block(l.cur).SetTerminator(Terminator{Kind: TermReturn})
	}

	return l.cfg, nil
}

// NewInstructionWithArgIndex builds a MovArg-style instruction carrying a
// parameter index rather than virtual-register arguments.
func NewInstructionWithArgIndex(op Op, dest *VirtualRegister, argIndex int) Instruction {
	return Instruction{Op: op, Dest: dest, ArgIndex: argIndex}
}

type lowerer struct {
	prog    *frontend.Program
	fn      *frontend.Function
	cfg     *CFG
	vars    map[string]VirtualRegister
	nextReg int
	cur     BlockID
}

func (l *lowerer) freshReg() VirtualRegister {
	r := VirtualRegister{ID: l.nextReg}
	l.nextReg++
	return r
}

func (l *lowerer) block() *BasicBlock { return l.cfg.Block(l.cur) }

func (l *lowerer) emitInstr(i Instruction) { l.block().PushInstr(i) }

func (l *lowerer) emitStmt(s Statement) { l.block().PushStmt(s) }

func (l *lowerer) lowerStatements(stmts []frontend.Statement) error {
	for _, stmt := range stmts {
		if err := l.lowerStatement(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (l *lowerer) lowerStatement(stmt frontend.Statement) error {
	switch st := stmt.(type) {
	case *frontend.LetStmt:
		reg, err := l.lowerExpr(st.Value)
		if err != nil {
			return err
		}
		l.vars[st.VarName] = reg
		l.emitStmt(Statement{Kind: StmtLet, VarName: st.VarName})
		return nil

	case *frontend.AssignStmt:
		reg, err := l.lowerExpr(st.Value)
		if err != nil {
			return err
		}
		l.vars[st.VarName] = reg
		l.emitStmt(Statement{Kind: StmtAssign, VarName: st.VarName})
		return nil

	case *frontend.ExprStmt:
		return l.lowerExprStatement(st.Value)

	case *frontend.IfStmt:
		return l.lowerIf(st)

	case *frontend.WhileStmt:
		return l.lowerWhile(st)

	case *frontend.ReturnStmt:
		if st.Value == nil {
			l.block().SetTerminator(Terminator{Kind: TermReturn})
			return nil
		}
		reg, err := l.lowerExpr(st.Value)
		if err != nil {
			return err
		}
		l.block().SetTerminator(Terminator{Kind: TermReturn, RetReg: &reg})
		return nil

	case *frontend.PeripheralWriteStmt:
		per, reg, err := l.resolveRegister(st.Peripheral, st.Register)
		if err != nil {
			return err
		}
		addrReg := l.freshReg()
		addr := *per.BaseAddress + reg.Offset
		l.emitInstr(Instruction{Op: OpLoadAddr, Dest: &addrReg, Addr: addr})
		valReg, err := l.lowerExpr(st.Value)
		if err != nil {
			return err
		}
		l.emitInstr(NewInstruction(OpStoreWord, nil, addrReg, valReg))
		l.emitStmt(Statement{Kind: StmtPeripheralWrite, Peripheral: st.Peripheral, Register: st.Register})
		return nil

	default:
		return &LoweringError{Function: l.fn.Name, Message: "unsupported statement"}
	}
}

// lowerExprStatement implements the call-classification rule (spec.md
// §4.2): a top-level `Expr{FnCall}` whose callee has a typestate signature
// lowers to a PeripheralDriverCall semantic statement, the verifier's hook.
// Any other expression statement lowers to a plain Expr statement, whose
// CallName is populated only when it is itself a direct call (so the
// verifier's "Expr{FnCall(name,_)}" rule in spec.md §4.3 still applies to
// calls of unsigned functions).
func (l *lowerer) lowerExprStatement(expr frontend.Expr) error {
	if call, ok := expr.(*frontend.FnCall); ok {
		callee, exists := l.prog.FindFunction(call.Name)
		if exists && callee.Signature != nil {
			if _, err := l.lowerCallInstr(call); err != nil {
				return err
			}
			sig := callee.Signature
			l.emitStmt(Statement{
				Kind:       StmtDriverCall,
				CallName:   call.Name,
				Peripheral: sig.Peripheral,
				FromState:  sig.InputState,
				ToState:    sig.OutputState,
			})
			return nil
		}
		if _, err := l.lowerCallInstr(call); err != nil {
			return err
		}
		l.emitStmt(Statement{Kind: StmtExpr, CallName: call.Name})
		return nil
	}

	if _, err := l.lowerExpr(expr); err != nil {
		return err
	}
	l.emitStmt(Statement{Kind: StmtExpr})
	return nil
}

func (l *lowerer) lowerIf(st *frontend.IfStmt) error {
	condReg, err := l.lowerExpr(st.Cond)
	if err != nil {
		return err
	}
	thenBB := l.cfg.AddBlock()
	elseBB := l.cfg.AddBlock()
	mergeBB := l.cfg.AddBlock()
	l.block().SetTerminator(Terminator{Kind: TermBranch, CondReg: condReg, ThenID: thenBB, ElseID: elseBB})

	l.cur = thenBB
	if err := l.lowerStatements(st.ThenBlock); err != nil {
		return err
	}
	if l.block().Terminator.Kind == TermNone {
		l.block().SetTerminator(Terminator{Kind: TermJump, Target: mergeBB})
	}

	l.cur = elseBB
	if err := l.lowerStatements(st.ElseBlock); err != nil {
		return err
	}
	if l.block().Terminator.Kind == TermNone {
		l.block().SetTerminator(Terminator{Kind: TermJump, Target: mergeBB})
	}

	l.cur = mergeBB
	return nil
}

func (l *lowerer) lowerWhile(st *frontend.WhileStmt) error {
	headerBB := l.cfg.AddBlock()
	bodyBB := l.cfg.AddBlock()
	exitBB := l.cfg.AddBlock()

	l.block().SetTerminator(Terminator{Kind: TermJump, Target: headerBB})

	l.cur = headerBB
	condReg, err := l.lowerExpr(st.Cond)
	if err != nil {
		return err
	}
	l.block().SetTerminator(Terminator{Kind: TermBranch, CondReg: condReg, ThenID: bodyBB, ElseID: exitBB})

	l.cur = bodyBB
	if err := l.lowerStatements(st.Body); err != nil {
		return err
	}
	if l.block().Terminator.Kind == TermNone {
		l.block().SetTerminator(Terminator{Kind: TermJump, Target: headerBB})
	}

	l.cur = exitBB
	return nil
}

// lowerExpr performs a post-order walk, producing a fresh destination
// register per node (spec.md §4.2 Expression lowering). Bare variable
// references cost no instruction; they return the binding's register.
func (l *lowerer) lowerExpr(expr frontend.Expr) (VirtualRegister, error) {
	switch e := expr.(type) {
	case *frontend.IntLit:
		dest := l.freshReg()
		l.emitInstr(Instruction{Op: OpLoadImm, Dest: &dest, Imm: e.Value})
		return dest, nil

	case *frontend.Variable:
		reg, ok := l.vars[e.Name]
		if !ok {
			return VirtualRegister{}, &LoweringError{Function: l.fn.Name, Message: fmt.Sprintf("reference to unbound variable '%s'", e.Name)}
		}
		return reg, nil

	case *frontend.FnCall:
		return l.lowerCallInstr(e)

	case *frontend.PeripheralRead:
		per, reg, err := l.resolveRegister(e.Peripheral, e.Register)
		if err != nil {
			return VirtualRegister{}, err
		}
		addrReg := l.freshReg()
		addr := *per.BaseAddress + reg.Offset
		l.emitInstr(Instruction{Op: OpLoadAddr, Dest: &addrReg, Addr: addr})
		dest := l.freshReg()
		l.emitInstr(NewInstruction(OpLoadWord, &dest, addrReg))
		return dest, nil

	case *frontend.Unary:
		operand, err := l.lowerExpr(e.Operand)
		if err != nil {
			return VirtualRegister{}, err
		}
		dest := l.freshReg()
		op := unaryOp(e.Op)
		l.emitInstr(NewInstruction(op, &dest, operand))
		return dest, nil

	case *frontend.Binary:
		left, err := l.lowerExpr(e.Left)
		if err != nil {
			return VirtualRegister{}, err
		}
		right, err := l.lowerExpr(e.Right)
		if err != nil {
			return VirtualRegister{}, err
		}
		dest := l.freshReg()
		op := binaryOp(e.Op)
		l.emitInstr(NewInstruction(op, &dest, left, right))
		return dest, nil

	default:
		return VirtualRegister{}, &LoweringError{Function: l.fn.Name, Message: "unsupported expression"}
	}
}

func (l *lowerer) lowerCallInstr(call *frontend.FnCall) (VirtualRegister, error) {
	argRegs := make([]VirtualRegister, 0, len(call.Args))
	for _, arg := range call.Args {
		reg, err := l.lowerExpr(arg)
		if err != nil {
			return VirtualRegister{}, err
		}
		argRegs = append(argRegs, reg)
	}
	dest := l.freshReg()
	instr := NewInstruction(OpCall, &dest, argRegs...)
	instr.Label = call.Name
	l.emitInstr(instr)
	return dest, nil
}

func (l *lowerer) resolveRegister(peripheralName, registerName string) (*frontend.Peripheral, frontend.Register, error) {
	per, ok := l.prog.FindPeripheral(peripheralName)
	if !ok {
		return nil, frontend.Register{}, &LoweringError{Function: l.fn.Name, Message: fmt.Sprintf("reference to undeclared peripheral '%s'", peripheralName)}
	}
	_, reg, ok := per.FindRegister(registerName)
	if !ok {
		return nil, frontend.Register{}, &LoweringError{Function: l.fn.Name, Message: fmt.Sprintf("peripheral '%s' has no register '%s'", peripheralName, registerName)}
	}
	if per.BaseAddress == nil {
		return nil, frontend.Register{}, &LoweringError{Function: l.fn.Name, Message: fmt.Sprintf("peripheral '%s' has no base address; register access is not lowerable", peripheralName)}
	}
	return per, reg, nil
}

func unaryOp(op frontend.UnaryOp) Op {
	switch op {
	case frontend.UnaryNeg:
		return OpNeg
	case frontend.UnaryBitNot:
		return OpNot
	default: // UnaryNot (logical !) shares the bitwise-not op: no bool type to distinguish it.
		return OpNot
	}
}

func binaryOp(op frontend.BinaryOp) Op {
	switch op {
	case frontend.BinAdd:
		return OpAdd
	case frontend.BinSub:
		return OpSub
	case frontend.BinMul:
		return OpMul
	case frontend.BinDiv:
		return OpDiv
	case frontend.BinMod:
		return OpRem
	case frontend.BinShl:
		return OpSll
	case frontend.BinShr:
		return OpSrl
	case frontend.BinLt:
		return OpLt
	case frontend.BinLe:
		return OpLe
	case frontend.BinGt:
		return OpGt
	case frontend.BinGe:
		return OpGe
	case frontend.BinEq:
		return OpEq
	case frontend.BinNe:
		return OpNe
	case frontend.BinBitAnd:
		return OpAnd
	case frontend.BinBitXor:
		return OpXor
	case frontend.BinBitOr:
		return OpOr
	// Logical && and || are lowered to bitwise And/Or: short-circuit
	// evaluation is a documented gap (spec.md §4.2, §9).
	case frontend.BinAnd:
		return OpAnd
	case frontend.BinOr:
		return OpOr
	default:
		return OpAdd
	}
}
