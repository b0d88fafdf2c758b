package compiler

import (
	"noxy-vm/internal/chunk"
	"noxy-vm/internal/token"
	"noxy-vm/internal/value"
)

func (c *Compiler) identifierConstant(name string) byte {
	return c.makeConstant(value.ObjValue(c.parser.intern.InternString(name)))
}

func identifiersEqual(a, b string) bool { return a == b }

// resolveLocal walks this compiler's own locals, top to bottom.
func (c *Compiler) resolveLocal(name string) (int, bool) {
	for i := c.localCount - 1; i >= 0; i-- {
		if identifiersEqual(c.locals[i].name, name) {
			if c.locals[i].depth == -1 {
				c.parser.error("Can't read local variable in its own initializer.")
			}
			return i, true
		}
	}
	return -1, false
}

// resolveUpvalue recursively resolves name in the enclosing compiler chain
// as a local, recording (and deduplicating) an upvalue in every
// intervening frame, per spec.md §4.3 step 2.
func (c *Compiler) resolveUpvalue(name string) (int, bool) {
	if c.enclosing == nil {
		return -1, false
	}
	if slot, ok := c.enclosing.resolveLocal(name); ok {
		c.enclosing.locals[slot].isCaptured = true
		return c.addUpvalue(byte(slot), true), true
	}
	if idx, ok := c.enclosing.resolveUpvalue(name); ok {
		return c.addUpvalue(byte(idx), false), true
	}
	return -1, false
}

func (c *Compiler) addUpvalue(index byte, isLocal bool) int {
	count := c.function.UpvalueCount
	for i := 0; i < count; i++ {
		uv := c.upvalues[i]
		if int(uv.index) == int(index) && uv.isLocal == isLocal {
			return i
		}
	}
	if count == maxUpvalues {
		c.parser.error("Too many closure variables in function.")
		return 0
	}
	c.upvalues[count] = upvalueRef{index: index, isLocal: isLocal}
	c.function.UpvalueCount++
	return count
}

func (c *Compiler) addLocal(name string) {
	if c.localCount == maxLocals {
		c.parser.error("Too many local variables in function.")
		return
	}
	c.locals[c.localCount] = local{name: name, depth: -1}
	c.localCount++
}

// declareVariable registers a local in the current scope (no-op at global
// scope, where variables live in the globals table instead).
func (c *Compiler) declareVariable(name string) {
	if c.scopeDepth == 0 {
		return
	}
	for i := c.localCount - 1; i >= 0; i-- {
		if c.locals[i].depth != -1 && c.locals[i].depth < c.scopeDepth {
			break
		}
		if identifiersEqual(c.locals[i].name, name) {
			c.parser.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) parseVariable(message string) byte {
	c.consume(token.IDENTIFIER, message)
	name := c.parser.previous.Lexeme
	c.declareVariable(name)
	if c.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(name)
}

func (c *Compiler) markInitialized() {
	if c.scopeDepth == 0 {
		return
	}
	c.locals[c.localCount-1].depth = c.scopeDepth
}

func (c *Compiler) defineVariable(global byte) {
	if c.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOpByte(chunk.OpDefineGlobal, global)
}
