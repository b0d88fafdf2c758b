// Package vm implements the stack-machine bytecode interpreter: the
// call-frame stack, value stack, globals and string-intern tables, the
// closure/upvalue machinery of spec.md §4.5, and the tracing mark-and-sweep
// collector of §4.6 (in gc.go). Interpret compiles source via
// internal/compiler and, on success, runs the resulting script function to
// completion; Compile and Run expose those two steps separately.
package vm

import (
	"fmt"
	"io"
	"os"

	"noxy-vm/internal/chunk"
	"noxy-vm/internal/compiler"
	"noxy-vm/internal/table"
	"noxy-vm/internal/value"
)

const (
	framesMax = 64
	stackMax  = framesMax * 256
)

// InterpretResult is the three-way outcome of Interpret, per spec.md §7.
type InterpretResult int

const (
	InterpretOK InterpretResult = iota
	InterpretCompileError
	InterpretRuntimeError
)

// callFrame is a single activation record: the closure being executed, its
// instruction pointer, a base slot into the value stack (slot 0 is the
// callee), and the default-parameter bookkeeping spec.md §4.4 describes.
type callFrame struct {
	closure  *value.Closure
	ip       int
	base     int
	argCount int // arguments actually supplied by the caller, excluding the callee slot
}

// VM is the process-wide interpreter state: stacks, globals, the string
// intern table, the GC's allocation list, and output streams. One VM is
// meant to live for the process lifetime (spec.md §5 "process-wide
// singletons"), but nothing here prevents constructing several for tests.
type VM struct {
	frames     [framesMax]callFrame
	frameCount int

	stack    [stackMax]value.Value
	stackTop int

	globals *table.Table
	strings *table.Table

	openUpvalues *value.Upvalue

	objects        value.Obj
	bytesAllocated int
	nextGC         int

	initString *value.ObjStringData

	// compilerRoots is the chain of ObjFunctions the active Compiler chain
	// is building (outermost first), per spec.md §4.6 phase 1. Compile
	// pushes/pops onto this via PushCompilerRoot/PopCompilerRoot so a
	// collection triggered mid-compile (e.g. by InternString) doesn't sweep
	// a not-yet-reachable function out from under the compiler.
	compilerRoots []*value.ObjFunction

	dynamoClientID string

	GCStress bool
	GCLog    bool

	Stdout io.Writer
	Stderr io.Writer
}

// New returns a ready-to-use VM with its native functions and intern table
// installed.
func New() *VM {
	vm := &VM{
		globals: table.New(),
		strings: table.New(),
		nextGC:  1 << 20,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
	vm.initString = vm.InternString("init")
	vm.defineNatives()
	vm.defineDynamoDBNatives()
	return vm
}

// InternString implements compiler.Interner: it guarantees that two calls
// with equal content return the identical *value.ObjStringData (spec.md §3
// "All strings are interned").
func (vm *VM) InternString(s string) *value.ObjStringData {
	hash := value.FNV1a(s)
	if existing := vm.strings.FindInterned(s, hash); existing != nil {
		return existing
	}
	str := &value.ObjStringData{Header: value.NewHeader(), Chars: s, Hash: hash}
	vm.push(value.ObjValue(str)) // keep reachable across the allocation below
	vm.allocate(str, 32+len(s))
	vm.strings.Set(str, value.BoolValue(true))
	vm.pop()
	return str
}

var _ compiler.Interner = (*VM)(nil)
var _ compiler.CompilerRootTracker = (*VM)(nil)

// PushCompilerRoot and PopCompilerRoot implement compiler.CompilerRootTracker:
// the compiler calls these as it enters/leaves each function body so
// collectGarbage can mark functions still under construction (spec.md §4.6
// phase 1), which aren't reachable from any VM stack/global during a compile.
func (vm *VM) PushCompilerRoot(fn *value.ObjFunction) {
	vm.compilerRoots = append(vm.compilerRoots, fn)
}

func (vm *VM) PopCompilerRoot() {
	vm.compilerRoots = vm.compilerRoots[:len(vm.compilerRoots)-1]
}

// Compile compiles source to a top-level script function without running
// it, so callers (e.g. the CLI's -disassemble flag) can inspect the
// bytecode first.
func (vm *VM) Compile(source string) (*value.ObjFunction, bool) {
	return compiler.Compile(source, vm)
}

// Run executes a function compiled by Compile as the top-level script.
func (vm *VM) Run(fn *value.ObjFunction) InterpretResult {
	vm.push(value.ObjValue(fn))
	cl := &value.Closure{Header: value.NewHeader(), Function: fn}
	vm.allocate(cl, 32)
	vm.pop()
	vm.push(value.ObjValue(cl))
	vm.callValue(value.ObjValue(cl), 0)

	return vm.run()
}

// Interpret compiles and runs source as a top-level script.
func (vm *VM) Interpret(source string) InterpretResult {
	fn, ok := vm.Compile(source)
	if !ok {
		return InterpretCompileError
	}
	return vm.Run(fn)
}

// ---- stack ----

func (vm *VM) push(v value.Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() value.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.stackTop-1-distance]
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

// runtimeError formats a message, prints the clox-style stack trace
// described in spec.md §4.4, and resets the stack.
func (vm *VM) runtimeError(format string, args ...interface{}) {
	fmt.Fprintf(vm.Stderr, format, args...)
	fmt.Fprintln(vm.Stderr)

	for i := vm.frameCount - 1; i >= 0; i-- {
		frame := &vm.frames[i]
		fn := frame.closure.Function
		c := fn.Chunk.(*chunk.Chunk)
		line := 0
		if frame.ip > 0 && frame.ip <= len(c.Lines) {
			line = c.Lines[frame.ip-1]
		}
		name := "script"
		if fn.Name != "" {
			name = fn.Name + "()"
		}
		fmt.Fprintf(vm.Stderr, "[line %d] in %s\n", line, name)
	}

	vm.resetStack()
}
