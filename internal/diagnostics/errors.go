// Package diagnostics carries the two error kinds spec.md §7 assigns to
// the driver itself (argument and file I/O failures); every other phase
// (parse, semantic, typestate, codegen) defines its own error type in its
// own package, one-for-one with original_source's per-phase Display impls.
package diagnostics

import "fmt"

// ArgumentError is a malformed or missing CLI argument.
type ArgumentError struct {
	Message string
}

func (e *ArgumentError) Error() string { return fmt.Sprintf("Argument error: %s", e.Message) }

// FileError is a source-read or artifact-write failure.
type FileError struct {
	Path  string
	Cause error
}

func (e *FileError) Error() string { return fmt.Sprintf("File error: %s: %v", e.Path, e.Cause) }
