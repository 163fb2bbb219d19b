package codegen

import (
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"peritc/internal/frontend"
	"peritc/internal/ir"
	"peritc/internal/typestate"
)

// yamlInstruction and yamlBlock are dedicated serialization shapes for
// `-dump-ir`, kept separate from internal/ir's types so the wire format
// doesn't couple to internal field layout (pointers to VirtualRegister
// don't round-trip cleanly through yaml.v3 without this indirection).
type yamlInstruction struct {
	Op       string `yaml:"op"`
	Dest     *int   `yaml:"dest,omitempty"`
	Args     []int  `yaml:"args,omitempty"`
	Imm      int32  `yaml:"imm,omitempty"`
	Addr     uint32 `yaml:"addr,omitempty"`
	ArgIndex int    `yaml:"arg_index,omitempty"`
	Label    string `yaml:"label,omitempty"`
}

type yamlStatement struct {
	Kind       string `yaml:"kind"`
	VarName    string `yaml:"var_name,omitempty"`
	CallName   string `yaml:"call_name,omitempty"`
	Peripheral string `yaml:"peripheral,omitempty"`
	FromState  string `yaml:"from_state,omitempty"`
	ToState    string `yaml:"to_state,omitempty"`
	Register   string `yaml:"register,omitempty"`
}

type yamlTerminator struct {
	Kind    string `yaml:"kind"`
	Target  int    `yaml:"target,omitempty"`
	CondReg int    `yaml:"cond_reg,omitempty"`
	ThenID  int    `yaml:"then_id,omitempty"`
	ElseID  int    `yaml:"else_id,omitempty"`
	RetReg  *int   `yaml:"ret_reg,omitempty"`
}

type yamlBlock struct {
	ID            int               `yaml:"id"`
	SemanticStmts []yamlStatement   `yaml:"semantic_stmts"`
	MachineInstrs []yamlInstruction `yaml:"machine_instrs"`
	Terminator    yamlTerminator    `yaml:"terminator"`
}

type yamlFunction struct {
	Name    string      `yaml:"name"`
	EntryID int         `yaml:"entry_id"`
	Blocks  []yamlBlock `yaml:"blocks"`
}

var stmtKindNames = map[ir.StmtKind]string{
	ir.StmtLet:             "Let",
	ir.StmtAssign:          "Assign",
	ir.StmtExpr:            "Expr",
	ir.StmtDriverCall:      "PeripheralDriverCall",
	ir.StmtPeripheralWrite: "PeripheralWrite",
}

var termKindNames = map[ir.TerminatorKind]string{
	ir.TermNone:        "None",
	ir.TermJump:        "Jump",
	ir.TermBranch:      "Branch",
	ir.TermReturn:      "Return",
	ir.TermFallthrough: "Fallthrough",
}

func toYAMLFunction(name string, cfg *ir.CFG) yamlFunction {
	yf := yamlFunction{Name: name, EntryID: int(cfg.EntryID)}
	for _, block := range cfg.Blocks {
		yb := yamlBlock{ID: int(block.ID)}
		for _, s := range block.SemanticStmts {
			yb.SemanticStmts = append(yb.SemanticStmts, yamlStatement{
				Kind: stmtKindNames[s.Kind], VarName: s.VarName, CallName: s.CallName,
				Peripheral: s.Peripheral, FromState: s.FromState, ToState: s.ToState, Register: s.Register,
			})
		}
		for _, instr := range block.MachineInstrs {
			yi := yamlInstruction{Op: instr.Op.String(), Imm: instr.Imm, Addr: instr.Addr, ArgIndex: instr.ArgIndex, Label: instr.Label}
			if instr.Dest != nil {
				id := instr.Dest.ID
				yi.Dest = &id
			}
			for _, a := range instr.Args {
				yi.Args = append(yi.Args, a.ID)
			}
			yb.MachineInstrs = append(yb.MachineInstrs, yi)
		}
		yt := yamlTerminator{
			Kind: termKindNames[block.Terminator.Kind], Target: int(block.Terminator.Target),
			CondReg: block.Terminator.CondReg.ID, ThenID: int(block.Terminator.ThenID), ElseID: int(block.Terminator.ElseID),
		}
		if block.Terminator.RetReg != nil {
			id := block.Terminator.RetReg.ID
			yt.RetReg = &id
		}
		yb.Terminator = yt
		yf.Blocks = append(yf.Blocks, yb)
	}
	return yf
}

// DumpIR writes every function's CFG as a YAML document to w, for offline
// inspection via `-dump-ir`.
func DumpIR(w io.Writer, cfgs map[string]*ir.CFG) error {
	names := make([]string, 0, len(cfgs))
	for name := range cfgs {
		names = append(names, name)
	}
	sort.Strings(names)

	functions := make([]yamlFunction, 0, len(names))
	for _, name := range names {
		functions = append(functions, toYAMLFunction(name, cfgs[name]))
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(struct {
		Functions []yamlFunction `yaml:"functions"`
	}{Functions: functions})
}

// DumpState renders a per-function state-environment trace as an ASCII
// table (`-dump-state`): one row per basic block and peripheral, showing Σ
// before and after the block ran for every peripheral in the block's exit
// environment, whether or not the block touches it.
func DumpState(w io.Writer, prog *frontend.Program, cfgs map[string]*ir.CFG) error {
	for i := range prog.Functions {
		fn := &prog.Functions[i]
		trace, err := typestate.TraceFunction(prog, cfgs, fn)
		if err != nil {
			continue
		}
		if len(trace) == 0 {
			continue
		}
		fmt.Fprintf(w, "function %s\n", fn.Name)
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.AppendHeader(table.Row{"block", "peripheral", "before", "after"})
		for _, bs := range trace {
			peripherals := make([]string, 0, len(bs.After))
			for per := range bs.After {
				peripherals = append(peripherals, per)
			}
			sort.Strings(peripherals)
			for _, per := range peripherals {
				t.AppendRow(table.Row{bs.Block, per, bs.Before[per], bs.After[per]})
			}
		}
		t.Render()
	}
	return nil
}
