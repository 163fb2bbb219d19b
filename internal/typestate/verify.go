// Package typestate implements the static verifier (C3): the soundness
// gate that checks every peripheral driver call against the state the
// peripheral is declared to be in at that point, along every path through a
// function's CFG.
//
// The CFG walk is expressed as a two-pass, block-id-ordered dataflow over
// Σ rather than the spec's literal per-path recursive descent (DESIGN.md
// records why). The dataflow form gives a well-defined place for two
// checks: branch-state agreement is checked at the actual
// merge block (before that block's own statements run, so a later
// dependent driver call doesn't mask a mismatch behind an InvalidTransition
// from whichever branch happens to be walked first), and loop-header
// agreement between the pre-loop and post-body environments is checked the
// same way, which is exactly the fixed-point form spec.md §9 recommends
// over the naive visited-set skip.
package typestate

import (
	"fmt"

	"peritc/internal/frontend"
	"peritc/internal/ir"
)

// ErrorKind discriminates the five typestate error varieties of spec.md §4.3/§7.
type ErrorKind int

const (
	InvalidTransition ErrorKind = iota
	BranchStateMismatch
	LoopChangesState
	WrongExitState
	UnknownPeripheral
)

// Error is a single typestate-verification failure.
type Error struct {
	Kind       ErrorKind
	Function   string
	Callee     string
	Peripheral string
	Expected   string
	Actual     string
}

func (e *Error) Error() string {
	switch e.Kind {
	case InvalidTransition:
		return fmt.Sprintf("InvalidTransition: call to '%s' in '%s' requires peripheral '%s' in state '%s', but it is in state '%s'",
			e.Callee, e.Function, e.Peripheral, e.Expected, e.Actual)
	case BranchStateMismatch:
		return fmt.Sprintf("BranchStateMismatch in '%s': peripheral '%s' is '%s' on one branch and '%s' on the other",
			e.Function, e.Peripheral, e.Expected, e.Actual)
	case LoopChangesState:
		return fmt.Sprintf("LoopChangesState in '%s': peripheral '%s' enters the loop in state '%s' but is '%s' after one iteration",
			e.Function, e.Peripheral, e.Expected, e.Actual)
	case WrongExitState:
		return fmt.Sprintf("WrongExitState: function '%s' declares peripheral '%s' exits in state '%s', but it is '%s'",
			e.Function, e.Peripheral, e.Expected, e.Actual)
	case UnknownPeripheral:
		return fmt.Sprintf("UnknownPeripheral: '%s' referenced by function '%s' is not declared", e.Peripheral, e.Function)
	default:
		return "unknown typestate error"
	}
}

// Class is the verifier's classification of a function (spec.md §4.3).
type Class int

const (
	LeafDriver Class = iota
	CompositeDriver
	Orchestration
)

// StateEnv is the abstract state environment Σ: peripheral name to current
// state name.
type StateEnv map[string]string

func (e StateEnv) clone() StateEnv {
	c := make(StateEnv, len(e))
	for k, v := range e {
		c[k] = v
	}
	return c
}

func initialEnv(prog *frontend.Program) StateEnv {
	env := make(StateEnv, len(prog.Peripherals))
	for _, per := range prog.Peripherals {
		env[per.Name] = per.InitialState
	}
	return env
}

// Classify determines whether fn is a LeafDriver (signed, trusted axiom),
// a CompositeDriver (signed, and transitively calls a signed function) or
// Orchestration (unsigned).
func Classify(prog *frontend.Program, cfgs map[string]*ir.CFG, fn *frontend.Function) Class {
	if fn.Signature == nil {
		return Orchestration
	}
	if callsSignedTransitively(prog, cfgs, fn.Name, map[string]bool{}) {
		return CompositeDriver
	}
	return LeafDriver
}

func callsSignedTransitively(prog *frontend.Program, cfgs map[string]*ir.CFG, fnName string, visited map[string]bool) bool {
	if visited[fnName] {
		return false
	}
	visited[fnName] = true
	cfg, ok := cfgs[fnName]
	if !ok {
		return false
	}
	for _, block := range cfg.Blocks {
		for _, stmt := range block.SemanticStmts {
			switch stmt.Kind {
			case ir.StmtDriverCall:
				return true
			case ir.StmtExpr:
				if stmt.CallName == "" {
					continue
				}
				callee, ok := prog.FindFunction(stmt.CallName)
				if !ok {
					continue
				}
				if callee.Signature != nil {
					return true
				}
				if callsSignedTransitively(prog, cfgs, stmt.CallName, visited) {
					return true
				}
			}
		}
	}
	return false
}

// Verify runs C3 over every function, reporting at most one error per
// function (the first encountered) while still verifying the rest of the
// program (spec.md §4.3 Failure semantics).
func Verify(prog *frontend.Program, cfgs map[string]*ir.CFG) []error {
	var errs []error
	for i := range prog.Functions {
		fn := &prog.Functions[i]
		if err := verifyFunction(prog, cfgs, fn); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func buildPredecessors(cfg *ir.CFG) map[ir.BlockID][]ir.BlockID {
	preds := map[ir.BlockID][]ir.BlockID{}
	for _, b := range cfg.Blocks {
		for _, succ := range b.Terminator.Successors() {
			preds[succ] = append(preds[succ], b.ID)
		}
	}
	return preds
}

func verifyFunction(prog *frontend.Program, cfgs map[string]*ir.CFG, fn *frontend.Function) error {
	class := Classify(prog, cfgs, fn)
	if class == LeafDriver {
		// Trusted axiom (spec.md §4.3, §9 "LeafDriver trust"): the body is
		// not verified to actually perform the declared transition.
		return nil
	}

	cfg := cfgs[fn.Name]
	if cfg == nil {
		return nil
	}

	_, outEnv, err := runDataflow(prog, fn, cfg)
	if err != nil {
		return err
	}

	if class == CompositeDriver {
		sig := fn.Signature
		for _, block := range cfg.Blocks {
			if block.Terminator.Kind != ir.TermReturn {
				continue
			}
			got := outEnv[block.ID][sig.Peripheral]
			if got != sig.OutputState {
				return &Error{Kind: WrongExitState, Function: fn.Name, Peripheral: sig.Peripheral, Expected: sig.OutputState, Actual: got}
			}
		}
	}

	return nil
}

// runDataflow runs the two-pass block-ordered Σ dataflow described in the
// package doc comment, returning the entry and exit environment of every
// block. Shared by verifyFunction and TraceFunction (the `-dump-state`
// debug aid in internal/codegen/dump.go).
func runDataflow(prog *frontend.Program, fn *frontend.Function, cfg *ir.CFG) (map[ir.BlockID]StateEnv, map[ir.BlockID]StateEnv, error) {
	initial := initialEnv(prog)
	if fn.Signature != nil {
		initial[fn.Signature.Peripheral] = fn.Signature.InputState
	}

	preds := buildPredecessors(cfg)
	inEnv := make(map[ir.BlockID]StateEnv, len(cfg.Blocks))
	outEnv := make(map[ir.BlockID]StateEnv, len(cfg.Blocks))

	runPass := func(checkMerges bool) error {
		for _, block := range cfg.Blocks {
			var in StateEnv
			isLoopHeader := false
			if block.ID == cfg.EntryID {
				in = initial.clone()
			} else {
				for _, p := range preds[block.ID] {
					if p >= block.ID {
						isLoopHeader = true
					}
					predOut, ready := outEnv[p]
					if !ready {
						continue
					}
					if in == nil {
						in = predOut.clone()
						continue
					}
					if !checkMerges {
						continue
					}
					for per, want := range in {
						if got, present := predOut[per]; present && got != want {
							kind := BranchStateMismatch
							if isLoopHeader {
								kind = LoopChangesState
							}
							return &Error{Kind: kind, Function: fn.Name, Peripheral: per, Expected: want, Actual: got}
						}
					}
				}
				if in == nil {
					// Unreachable block (e.g. the merge block of an if
					// whose arms both return): nothing
					// flows into it, so any Σ is vacuously sound. Seed from
					// the function's initial environment so traversal can
					// still proceed without panicking.
					in = initial.clone()
				}
			}

			inEnv[block.ID] = in
			out := in.clone()
			for _, stmt := range block.SemanticStmts {
				// Pass 1 only bootstraps Σ; statement errors are reported in
				// pass 2, after the merge checks of earlier blocks.
				if err := applyStmt(prog, fn.Name, out, stmt); err != nil && checkMerges {
					return err
				}
			}
			outEnv[block.ID] = out
		}
		return nil
	}

	if err := runPass(false); err != nil {
		return nil, nil, err
	}
	if err := runPass(true); err != nil {
		return nil, nil, err
	}
	return inEnv, outEnv, nil
}

// BlockState is one block's Σ trace, used by the `-dump-state` debug aid.
type BlockState struct {
	Block  ir.BlockID
	Before StateEnv
	After  StateEnv
}

// TraceFunction runs the same dataflow verifyFunction uses and returns a
// per-block Σ trace, regardless of the function's classification (even a
// LeafDriver's trusted body is traced for inspection, though its result is
// never used to reject a program).
func TraceFunction(prog *frontend.Program, cfgs map[string]*ir.CFG, fn *frontend.Function) ([]BlockState, error) {
	cfg := cfgs[fn.Name]
	if cfg == nil {
		return nil, nil
	}
	inEnv, outEnv, err := runDataflow(prog, fn, cfg)
	if err != nil {
		return nil, err
	}
	trace := make([]BlockState, 0, len(cfg.Blocks))
	for _, block := range cfg.Blocks {
		trace = append(trace, BlockState{Block: block.ID, Before: inEnv[block.ID], After: outEnv[block.ID]})
	}
	return trace, nil
}

func applyStmt(prog *frontend.Program, fnName string, env StateEnv, stmt ir.Statement) error {
	switch stmt.Kind {
	case ir.StmtDriverCall:
		if _, ok := prog.FindPeripheral(stmt.Peripheral); !ok {
			return &Error{Kind: UnknownPeripheral, Function: fnName, Peripheral: stmt.Peripheral}
		}
		cur := env[stmt.Peripheral]
		if cur != stmt.FromState {
			return &Error{Kind: InvalidTransition, Function: fnName, Callee: stmt.CallName, Peripheral: stmt.Peripheral, Expected: stmt.FromState, Actual: cur}
		}
		env[stmt.Peripheral] = stmt.ToState

	case ir.StmtExpr:
		if stmt.CallName == "" {
			return nil
		}
		callee, ok := prog.FindFunction(stmt.CallName)
		if !ok || callee.Signature == nil {
			return nil
		}
		sig := callee.Signature
		if _, ok := prog.FindPeripheral(sig.Peripheral); !ok {
			return &Error{Kind: UnknownPeripheral, Function: fnName, Peripheral: sig.Peripheral}
		}
		cur := env[sig.Peripheral]
		if cur != sig.InputState {
			return &Error{Kind: InvalidTransition, Function: fnName, Callee: stmt.CallName, Peripheral: sig.Peripheral, Expected: sig.InputState, Actual: cur}
		}
		env[sig.Peripheral] = sig.OutputState
	}
	return nil
}
