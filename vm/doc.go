// Package vm implements the LS9 virtual machine.
//
// This package contains:
//   - The node and vector pools with tagged cells
//   - A mark/sweep collector with vector compaction
//   - The bytecode format, assembler and disassembler
//   - The bytecode interpreter with tail calls and closures
//   - Catch frames, error handlers and the trace ring
//   - Ports, primitives and heap images
//
// A Machine is not safe for concurrent use.
package vm
