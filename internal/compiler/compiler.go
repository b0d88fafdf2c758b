// Package compiler implements the single-pass Pratt-parsed compiler: it
// scans tokens from the lexer and emits bytecode directly, with no
// intermediate AST, per spec.md §4.3. One Compiler exists per function
// being built (including the implicit top-level script), chained through
// `enclosing` so nested functions can resolve variables in lexically
// enclosing scopes as upvalues.
package compiler

import (
	"fmt"
	"os"

	"noxy-vm/internal/chunk"
	"noxy-vm/internal/lexer"
	"noxy-vm/internal/token"
	"noxy-vm/internal/value"
)

const maxLocals = 256
const maxUpvalues = 256

// precedence ordering, lowest to highest, per spec.md §4.3.
type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precTerm                  // + -
	precFactor                // * / %
	precUnary                 // ! -
	precCall                  // . ()
	precPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

// local records one stack-resident variable of the enclosing function.
// Depth -1 means "declared but not yet initialized" (forbids a variable's
// initializer from reading itself).
type local struct {
	name       string
	depth      int
	isCaptured bool
}

// upvalueRef records one upvalue slot: Index is either a local slot index
// in the immediately enclosing function (IsLocal true) or an upvalue index
// in that function (IsLocal false).
type upvalueRef struct {
	index   uint8
	isLocal bool
}

type funcType int

const (
	funcTypeFunction funcType = iota
	funcTypeScript
	funcTypeMethod
	funcTypeInitializer
)

// Compiler holds the state needed to compile one function body: the
// function object under construction, its local-variable stack, its
// upvalue list, and a link to the enclosing Compiler (nil at top level).
type Compiler struct {
	enclosing *Compiler
	function  *value.ObjFunction
	fnType    funcType

	locals     [maxLocals]local
	localCount int
	scopeDepth int

	upvalues [maxUpvalues]upvalueRef

	parser *parserState
}

// classCompiler only needs to track nesting so `this` can be validated
// inside methods; this language's Class has no superclass field (spec.md
// §3), so "super" is a reserved keyword with no parse rule — using it
// falls through to the generic "Expect expression." error.
type classCompiler struct {
	enclosing *classCompiler
}

// parserState is shared by every Compiler in a compile chain: the token
// cursor and error/panic-mode bookkeeping (spec.md §4.3 "Error recovery").
type parserState struct {
	lex *lexer.Lexer

	current  token.Token
	previous token.Token

	hadError  bool
	panicMode bool

	currentClass *classCompiler
	intern       Interner
}

// Interner is implemented by the VM: it guarantees every string constant
// the compiler embeds in a chunk is the one and only interned instance for
// its contents (spec.md §3 "All strings are interned").
type Interner interface {
	InternString(s string) *value.ObjStringData
}

// CompilerRootTracker is optionally implemented by an Interner so the
// compiler can register the ObjFunction it is currently building as a GC
// root (spec.md §4.6 phase 1, "every Function currently being built by the
// enclosing chain of active Compilers"). A collection triggered mid-compile
// — InternString itself allocates — would otherwise see these functions as
// unreachable, since nothing is on the VM's value stack yet.
type CompilerRootTracker interface {
	PushCompilerRoot(fn *value.ObjFunction)
	PopCompilerRoot()
}

// Compile compiles source into a top-level script function. On a compile
// error it returns (nil, false); the caller must not attempt to run a
// failed compile.
func Compile(source string, intern Interner) (*value.ObjFunction, bool) {
	ps := &parserState{lex: lexer.New(source), intern: intern}
	c := newCompiler(ps, nil, funcTypeScript, "")
	ps.advance()

	for !c.match(token.EOF) {
		c.declaration()
	}

	fn := c.end()
	if ps.hadError {
		return nil, false
	}
	return fn, true
}

func newCompiler(ps *parserState, enclosing *Compiler, ft funcType, name string) *Compiler {
	c := &Compiler{
		enclosing: enclosing,
		fnType:    ft,
		parser:    ps,
		function: &value.ObjFunction{
			Header: value.NewHeader(),
			Name:   name,
			Chunk:  chunk.New(),
		},
	}
	// Slot 0 is reserved for the callee itself (the receiver, for methods).
	slotName := ""
	if ft == funcTypeMethod || ft == funcTypeInitializer {
		slotName = "this"
	}
	c.locals[0] = local{name: slotName, depth: 0}
	c.localCount = 1
	if t, ok := ps.intern.(CompilerRootTracker); ok {
		t.PushCompilerRoot(c.function)
	}
	return c
}

func (c *Compiler) currentChunk() *chunk.Chunk {
	return c.function.Chunk.(*chunk.Chunk)
}

// ---- token stream helpers ----

func (ps *parserState) advance() {
	ps.previous = ps.current
	for {
		ps.current = ps.lex.NextToken()
		if ps.current.Kind != token.ERROR {
			break
		}
		ps.errorAtCurrent(ps.current.Lexeme)
	}
}

func (c *Compiler) check(k token.Kind) bool {
	return c.parser.current.Kind == k
}

func (c *Compiler) match(k token.Kind) bool {
	if !c.check(k) {
		return false
	}
	c.parser.advance()
	return true
}

func (c *Compiler) consume(k token.Kind, message string) {
	if c.parser.current.Kind == k {
		c.parser.advance()
		return
	}
	c.parser.errorAtCurrent(message)
}

func (ps *parserState) errorAtCurrent(message string) {
	ps.errorAt(ps.current, message)
}

func (ps *parserState) error(message string) {
	ps.errorAt(ps.previous, message)
}

func (ps *parserState) errorAt(tok token.Token, message string) {
	if ps.panicMode {
		return
	}
	ps.panicMode = true

	fmt.Fprintf(os.Stderr, "[Line %d] Error", tok.Line)
	switch tok.Kind {
	case token.EOF:
		fmt.Fprint(os.Stderr, " at end")
	case token.ERROR:
		// no location
	default:
		fmt.Fprintf(os.Stderr, " at '%s'", tok.Lexeme)
	}
	fmt.Fprintf(os.Stderr, ": %s\n", message)
	ps.hadError = true
}

// synchronize resyncs after a compile error by skipping tokens until a
// likely statement boundary, per spec.md §4.3 "Error recovery".
func (c *Compiler) synchronize() {
	c.parser.panicMode = false
	for c.parser.current.Kind != token.EOF {
		if c.parser.previous.Kind == token.SEMICOLON {
			return
		}
		switch c.parser.current.Kind {
		case token.CLASS, token.FUN, token.VAR, token.FOR, token.IF,
			token.WHILE, token.PRINT, token.RETURN:
			return
		}
		c.parser.advance()
	}
}

// ---- byte emission ----

func (c *Compiler) emitByte(b byte) {
	c.currentChunk().Write(b, c.parser.previous.Line)
}

func (c *Compiler) emitOp(op chunk.OpCode) {
	c.emitByte(byte(op))
}

func (c *Compiler) emitOpByte(op chunk.OpCode, b byte) {
	c.emitOp(op)
	c.emitByte(b)
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(chunk.OpLoop)
	offset := len(c.currentChunk().Code) - loopStart + 2
	if offset > 0xffff {
		c.parser.error("Loop body too large.")
	}
	c.emitByte(byte((offset >> 8) & 0xff))
	c.emitByte(byte(offset & 0xff))
}

// emitJump emits op followed by a two-byte placeholder, returning the
// placeholder's offset for later patching.
func (c *Compiler) emitJump(op chunk.OpCode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.currentChunk().Code) - 2
}

func (c *Compiler) patchJump(offset int) {
	jump := len(c.currentChunk().Code) - offset - 2
	if jump > 0xffff {
		c.parser.error("Too much code to jump over.")
	}
	c.currentChunk().Code[offset] = byte((jump >> 8) & 0xff)
	c.currentChunk().Code[offset+1] = byte(jump & 0xff)
}

func (c *Compiler) emitReturn() {
	if c.fnType == funcTypeInitializer {
		c.emitOpByte(chunk.OpGetLocal, 0)
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.emitOp(chunk.OpReturn)
}

func (c *Compiler) makeConstant(v value.Value) byte {
	idx := c.currentChunk().AddConstant(v)
	if idx > 255 {
		c.parser.error("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (c *Compiler) emitConstant(v value.Value) {
	c.emitOpByte(chunk.OpConstant, c.makeConstant(v))
}

// end finalizes the chunk being built (always appending the safety tail:
// NIL;RETURN, or GET_LOCAL 0;RETURN in an initializer so it returns the
// receiver) and returns the resulting function.
func (c *Compiler) end() *value.ObjFunction {
	c.emitReturn()
	if t, ok := c.parser.intern.(CompilerRootTracker); ok {
		t.PopCompilerRoot()
	}
	return c.function
}

// ---- scopes ----

func (c *Compiler) beginScope() {
	c.scopeDepth++
}

func (c *Compiler) endScope() {
	c.scopeDepth--
	for c.localCount > 0 && c.locals[c.localCount-1].depth > c.scopeDepth {
		if c.locals[c.localCount-1].isCaptured {
			c.emitOp(chunk.OpCloseUpvalue)
		} else {
			c.emitOp(chunk.OpPop)
		}
		c.localCount--
	}
}
