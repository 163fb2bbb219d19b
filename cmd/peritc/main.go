// Command peritc compiles a peripheral typestate source file to RISC-V
// assembly. Usage: peritc [-debug] [-dump-ir path] [-dump-state path]
// <source.peri> <destination>.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/tebeka/atexit"

	"peritc/internal/codegen"
	"peritc/internal/compiler"
	"peritc/internal/diagnostics"
)

func main() {
	atexit.Exit(run())
}

func run() int {
	debug := flag.Bool("debug", false, "raise log verbosity and emit phase/typestate trace lines")
	dumpIRPath := flag.String("dump-ir", "", "write the compiled CFGs as YAML to this path")
	dumpStatePath := flag.String("dump-state", "", "write a per-function typestate trace table to this path")
	flag.Parse()

	logger := newLogger(*debug)

	if flag.NArg() != 2 {
		return fail(logger, &diagnostics.ArgumentError{Message: "usage: peritc [-debug] [-dump-ir path] [-dump-state path] <source.peri> <destination>"})
	}
	sourcePath := flag.Arg(0)
	destPath := flag.Arg(1)

	if !strings.HasSuffix(sourcePath, ".peri") {
		return fail(logger, &diagnostics.ArgumentError{Message: fmt.Sprintf("source file '%s' must have a .peri extension", sourcePath)})
	}

	sourceBytes, err := os.ReadFile(sourcePath)
	if err != nil {
		return fail(logger, &diagnostics.FileError{Path: sourcePath, Cause: err})
	}

	result, errs := compiler.Compile(string(sourceBytes), logger)
	if len(errs) > 0 {
		fmt.Println(compiler.FormatErrors(errs))
		return 1
	}

	if err := os.WriteFile(destPath, []byte(result.Assembly), 0o644); err != nil {
		return fail(logger, &diagnostics.FileError{Path: destPath, Cause: err})
	}

	if *dumpIRPath != "" {
		if err := writeDump(*dumpIRPath, func(f *os.File) error {
			return codegen.DumpIR(f, result.CFGs)
		}); err != nil {
			logger.Warn("failed to write -dump-ir output", "path", *dumpIRPath, "error", err)
		}
	}
	if *dumpStatePath != "" {
		if err := writeDump(*dumpStatePath, func(f *os.File) error {
			return codegen.DumpState(f, result.Program, result.CFGs)
		}); err != nil {
			logger.Warn("failed to write -dump-state output", "path", *dumpStatePath, "error", err)
		}
	}

	return 0
}

func writeDump(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return write(f)
}

func fail(logger *slog.Logger, err error) int {
	fmt.Println(err.Error())
	logger.Debug("compilation aborted", "error", err)
	return 1
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
