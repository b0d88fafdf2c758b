package compiler

import (
	"noxy-vm/internal/chunk"
	"noxy-vm/internal/token"
	"noxy-vm/internal/value"
)

func (c *Compiler) declaration() {
	switch {
	case c.match(token.CLASS):
		c.classDeclaration()
	case c.match(token.FUN):
		c.funDeclaration()
	case c.match(token.VAR):
		c.varDeclaration()
	default:
		c.statement()
	}

	if c.parser.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")

	if c.match(token.EQUAL) {
		c.expression()
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.consume(token.SEMICOLON, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	c.markInitialized()
	c.function_(funcTypeFunction)
	c.defineVariable(global)
}

// function_ compiles the parameter list and body of a function (or method)
// as a child Compiler, then emits OP_CLOSURE and its upvalue-capture byte
// pairs in the enclosing chunk, per spec.md §4.3 "Functions".
func (c *Compiler) function_(ft funcType) {
	name := c.parser.previous.Lexeme
	child := newCompiler(c.parser, c, ft, name)
	child.beginScope()

	child.consume(token.LPAREN, "Expect '(' after function name.")
	var sawDefault bool
	if !child.check(token.RPAREN) {
		for {
			child.function.Arity++
			if child.function.Arity > 255 {
				child.parser.errorAtCurrent("Can't have more than 255 parameters.")
			}
			paramConst := child.parseVariable("Expect parameter name.")

			if child.match(token.EQUAL) {
				sawDefault = true
				child.function.DefaultCount++
				slot := child.localCount - 1
				child.expression()
				child.emitOpByte(chunk.OpSetDefault, byte(slot))
				child.markInitialized()
			} else {
				if sawDefault {
					child.parser.error("Parameter without a default follows a defaulted parameter.")
				}
				child.markInitialized()
			}
			_ = paramConst
			if !child.match(token.COMMA) {
				break
			}
		}
	}
	child.consume(token.RPAREN, "Expect ')' after parameters.")
	child.consume(token.LBRACE, "Expect '{' before function body.")
	child.block()

	fn := child.end()
	c.emitOpByte(chunk.OpClosure, c.makeConstant(value.ObjValue(fn)))
	for i := 0; i < fn.UpvalueCount; i++ {
		isLocal := byte(0)
		if child.upvalues[i].isLocal {
			isLocal = 1
		}
		c.emitByte(isLocal)
		c.emitByte(child.upvalues[i].index)
	}
}

func (c *Compiler) classDeclaration() {
	c.consume(token.IDENTIFIER, "Expect class name.")
	className := c.parser.previous.Lexeme
	nameConstant := c.identifierConstant(className)
	c.declareVariable(className)

	c.emitOpByte(chunk.OpClass, nameConstant)
	c.defineVariable(nameConstant)

	cc := &classCompiler{enclosing: c.parser.currentClass}
	c.parser.currentClass = cc

	variableNamed(c, className, false)
	c.consume(token.LBRACE, "Expect '{' before class body.")
	for !c.check(token.RBRACE) && !c.check(token.EOF) {
		c.method()
	}
	c.consume(token.RBRACE, "Expect '}' after class body.")
	c.emitOp(chunk.OpPop) // pop the class itself left by variableNamed above

	c.parser.currentClass = cc.enclosing
}

func (c *Compiler) method() {
	c.consume(token.IDENTIFIER, "Expect method name.")
	name := c.parser.previous.Lexeme
	constant := c.identifierConstant(name)

	ft := funcTypeMethod
	if name == "init" {
		ft = funcTypeInitializer
	}
	c.function_(ft)
	c.emitOpByte(chunk.OpMethod, constant)
}

func (c *Compiler) statement() {
	switch {
	case c.match(token.PRINT):
		c.printStatement()
	case c.match(token.IF):
		c.ifStatement()
	case c.match(token.RETURN):
		c.returnStatement()
	case c.match(token.WHILE):
		c.whileStatement()
	case c.match(token.FOR):
		c.forStatement()
	case c.match(token.LBRACE):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(token.RBRACE) && !c.check(token.EOF) {
		c.declaration()
	}
	c.consume(token.RBRACE, "Expect '}' after block.")
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(token.SEMICOLON, "Expect ';' after value.")
	c.emitOp(chunk.OpPrint)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(token.SEMICOLON, "Expect ';' after expression.")
	c.emitOp(chunk.OpPop)
}

func (c *Compiler) returnStatement() {
	if c.fnType == funcTypeScript {
		c.parser.error("Can't return from top-level code.")
	}
	if c.match(token.SEMICOLON) {
		c.emitReturn()
		return
	}
	if c.fnType == funcTypeInitializer {
		c.parser.error("Can't return a value from an initializer.")
	}
	c.expression()
	c.consume(token.SEMICOLON, "Expect ';' after return value.")
	c.emitOp(chunk.OpReturn)
}

func (c *Compiler) ifStatement() {
	c.consume(token.LPAREN, "Expect '(' after 'if'.")
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after condition.")

	thenJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.statement()

	elseJump := c.emitJump(chunk.OpJump)
	c.patchJump(thenJump)
	c.emitOp(chunk.OpPop)

	if c.match(token.ELSE) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.currentChunk().Code)
	c.consume(token.LPAREN, "Expect '(' after 'while'.")
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after condition.")

	exitJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(chunk.OpPop)
}

// forStatement desugars C-style for loops exactly as spec.md §4.3
// describes: initializer in a fresh scope, optional condition as a forward
// jump, optional step compiled after an unconditional jump over it so the
// body's back-edge lands on the step and the step's back-edge lands on the
// head.
func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(token.LPAREN, "Expect '(' after 'for'.")

	switch {
	case c.match(token.SEMICOLON):
		// no initializer
	case c.match(token.VAR):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.currentChunk().Code)
	exitJump := -1
	if !c.match(token.SEMICOLON) {
		c.expression()
		c.consume(token.SEMICOLON, "Expect ';' after loop condition.")
		exitJump = c.emitJump(chunk.OpJumpIfFalse)
		c.emitOp(chunk.OpPop)
	}

	if !c.check(token.RPAREN) {
		bodyJump := c.emitJump(chunk.OpJump)
		incrementStart := len(c.currentChunk().Code)
		c.expression()
		c.emitOp(chunk.OpPop)
		c.consume(token.RPAREN, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	} else {
		c.consume(token.RPAREN, "Expect ')' after for clauses.")
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(chunk.OpPop)
	}
	c.endScope()
}
