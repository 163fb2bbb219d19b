// Package compiler wires the five core components (C1–C5) and the
// surface parser/emitter together into the single driver entry point
// cmd/peritc calls. Grounded on the teacher's main.go, which performs the
// same kind of straight-line "parse, check, lower, emit" sequencing.
package compiler

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"peritc/internal/codegen"
	"peritc/internal/frontend"
	"peritc/internal/ir"
	"peritc/internal/regalloc"
	"peritc/internal/semantic"
	"peritc/internal/typestate"
)

// Result is everything a successful compilation produces: the final
// assembly text plus the intermediate CFGs (kept around for the
// `-dump-ir`/`-dump-state` debug aids).
type Result struct {
	Assembly string
	Program  *frontend.Program
	CFGs     map[string]*ir.CFG
}

// Compile runs the full pipeline: lex/parse → C1 (gate) → C2 → C3 (gate) →
// C4 → C5 → emit. It returns on the first phase that produces any errors;
// within C1, all errors from that phase are returned together (spec.md
// §4.1 Completeness). Within C3, one error per offending function is
// returned, but every function is still checked (spec.md §4.3).
func Compile(source string, logger *slog.Logger) (*Result, []error) {
	start := time.Now()

	prog, err := frontend.Parse(source)
	if err != nil {
		return nil, []error{err}
	}
	logger.Debug("parsed source", "peripherals", len(prog.Peripherals), "functions", len(prog.Functions))

	if errs := semantic.Check(prog); len(errs) > 0 {
		return nil, errs
	}
	logger.Debug("semantic check passed")

	cfgs, errs := ir.LowerProgram(prog)
	if len(errs) > 0 {
		return nil, errs
	}
	logger.Debug("lowered to CFG", "functions", len(cfgs))

	if errs := typestate.Verify(prog, cfgs); len(errs) > 0 {
		return nil, errs
	}
	logger.Debug("typestate verification passed")

	names := make([]string, 0, len(prog.Functions))
	for _, fn := range prog.Functions {
		names = append(names, fn.Name)
	}
	sort.Strings(names)

	var out strings.Builder
	out.WriteString(".text\n")
	for _, name := range names {
		fn, _ := prog.FindFunction(name)
		cfg := cfgs[name]

		liveness := regalloc.Analyze(cfg)
		intervals := regalloc.ComputeIntervals(cfg, liveness)
		alloc := regalloc.LinearScan(intervals)
		logger.Debug("register allocation", "function", name, "virtual_registers", len(intervals))

		flat := codegen.Flatten(cfg)
		if err := codegen.Emit(&out, fn, flat, alloc); err != nil {
			return nil, []error{err}
		}
	}

	logger.Debug("compilation finished", "elapsed", time.Since(start))
	return &Result{Assembly: out.String(), Program: prog, CFGs: cfgs}, nil
}

// FormatErrors renders a list of phase errors as one line each, matching
// spec.md §6's "one line per error" contract.
func FormatErrors(errs []error) string {
	lines := make([]string, len(errs))
	for i, err := range errs {
		lines[i] = err.Error()
	}
	return strings.Join(lines, "\n")
}
