package compiler

import (
	"strconv"

	"noxy-vm/internal/chunk"
	"noxy-vm/internal/token"
	"noxy-vm/internal/value"
)

var rules map[token.Kind]parseRule

func init() {
	rules = map[token.Kind]parseRule{
		token.LPAREN:        {prefix: grouping, infix: call, precedence: precCall},
		token.DOT:           {infix: dot, precedence: precCall},
		token.MINUS:         {prefix: unary, infix: binary, precedence: precTerm},
		token.PLUS:          {infix: binary, precedence: precTerm},
		token.SLASH:         {infix: binary, precedence: precFactor},
		token.STAR:          {infix: binary, precedence: precFactor},
		token.PERCENT:       {infix: binary, precedence: precFactor},
		token.BANG:          {prefix: unary},
		token.BANG_EQUAL:    {infix: binary, precedence: precEquality},
		token.EQUAL_EQUAL:   {infix: binary, precedence: precEquality},
		token.GREATER:       {infix: binary, precedence: precComparison},
		token.GREATER_EQUAL: {infix: binary, precedence: precComparison},
		token.LESS:          {infix: binary, precedence: precComparison},
		token.LESS_EQUAL:    {infix: binary, precedence: precComparison},
		token.IDENTIFIER:    {prefix: variable},
		token.STRING:        {prefix: stringLiteral},
		token.NUMBER:        {prefix: number},
		token.AND:           {infix: and_, precedence: precAnd},
		token.OR:            {infix: or_, precedence: precOr},
		token.FALSE:         {prefix: literal},
		token.TRUE:          {prefix: literal},
		token.NIL:           {prefix: literal},
		token.THIS:          {prefix: this_},
	}
}

func getRule(k token.Kind) parseRule {
	if r, ok := rules[k]; ok {
		return r
	}
	return parseRule{}
}

func (c *Compiler) parsePrecedence(prec precedence) {
	c.parser.advance()
	rule := getRule(c.parser.previous.Kind)
	if rule.prefix == nil {
		c.parser.error("Expect expression.")
		return
	}
	canAssign := prec <= precAssignment
	rule.prefix(c, canAssign)

	for prec <= getRule(c.parser.current.Kind).precedence {
		c.parser.advance()
		infix := getRule(c.parser.previous.Kind).infix
		infix(c, canAssign)
	}

	if canAssign && c.match(token.EQUAL) {
		c.parser.error("Invalid assignment target.")
	}
}

func (c *Compiler) expression() {
	c.parsePrecedence(precAssignment)
}

// ---- prefix/infix parse functions ----

func number(c *Compiler, _ bool) {
	n, _ := strconv.ParseFloat(c.parser.previous.Lexeme, 64)
	c.emitConstant(value.NumberValue(n))
}

func stringLiteral(c *Compiler, _ bool) {
	lex := c.parser.previous.Lexeme
	s := lex[1 : len(lex)-1]
	c.emitConstant(value.ObjValue(c.parser.intern.InternString(s)))
}

func literal(c *Compiler, _ bool) {
	switch c.parser.previous.Kind {
	case token.FALSE:
		c.emitOp(chunk.OpFalse)
	case token.TRUE:
		c.emitOp(chunk.OpTrue)
	case token.NIL:
		c.emitOp(chunk.OpNil)
	}
}

func grouping(c *Compiler, _ bool) {
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after expression.")
}

func unary(c *Compiler, _ bool) {
	opKind := c.parser.previous.Kind
	c.parsePrecedence(precUnary)
	switch opKind {
	case token.BANG:
		c.emitOp(chunk.OpNot)
	case token.MINUS:
		c.emitOp(chunk.OpNegate)
	}
}

func binary(c *Compiler, _ bool) {
	opKind := c.parser.previous.Kind
	rule := getRule(opKind)
	c.parsePrecedence(rule.precedence + 1)

	switch opKind {
	case token.PLUS:
		c.emitOp(chunk.OpAdd)
	case token.MINUS:
		c.emitOp(chunk.OpSubtract)
	case token.STAR:
		c.emitOp(chunk.OpMultiply)
	case token.SLASH:
		c.emitOp(chunk.OpDivide)
	case token.PERCENT:
		c.emitOp(chunk.OpMod)
	case token.BANG_EQUAL:
		c.emitOp(chunk.OpEqual)
		c.emitOp(chunk.OpNot)
	case token.EQUAL_EQUAL:
		c.emitOp(chunk.OpEqual)
	case token.GREATER:
		c.emitOp(chunk.OpGreater)
	case token.GREATER_EQUAL:
		c.emitOp(chunk.OpLess)
		c.emitOp(chunk.OpNot)
	case token.LESS:
		c.emitOp(chunk.OpLess)
	case token.LESS_EQUAL:
		c.emitOp(chunk.OpGreater)
		c.emitOp(chunk.OpNot)
	}
}

func and_(c *Compiler, _ bool) {
	endJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func or_(c *Compiler, _ bool) {
	elseJump := c.emitJump(chunk.OpJumpIfFalse)
	endJump := c.emitJump(chunk.OpJump)
	c.patchJump(elseJump)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func call(c *Compiler, _ bool) {
	argCount := c.argumentList()
	c.emitOpByte(chunk.OpCall, argCount)
}

func (c *Compiler) argumentList() byte {
	var count int
	if !c.check(token.RPAREN) {
		for {
			c.expression()
			if count == 255 {
				c.parser.error("Can't have more than 255 arguments.")
			}
			count++
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RPAREN, "Expect ')' after arguments.")
	return byte(count)
}

func dot(c *Compiler, canAssign bool) {
	c.consume(token.IDENTIFIER, "Expect property name after '.'.")
	name := c.identifierConstant(c.parser.previous.Lexeme)

	if canAssign && c.match(token.EQUAL) {
		c.expression()
		c.emitOpByte(chunk.OpSetProperty, name)
	} else {
		c.emitOpByte(chunk.OpGetProperty, name)
	}
}

func this_(c *Compiler, _ bool) {
	if c.parser.currentClass == nil {
		c.parser.error("Can't use 'this' outside of a class.")
		return
	}
	variableNamed(c, "this", false)
}

func variable(c *Compiler, canAssign bool) {
	variableNamed(c, c.parser.previous.Lexeme, canAssign)
}

// variableNamed implements the three-step resolution in spec.md §4.3: local,
// then upvalue (recursively), then global. Compound (+= etc.) and
// increment/decrement forms are only emitted here, on bare identifiers
// (local, upvalue or global) — compound assignment to a property is a
// compile error (spec.md §9).
func variableNamed(c *Compiler, name string, canAssign bool) {
	var getOp, setOp chunk.OpCode
	var arg byte

	if slot, ok := c.resolveLocal(name); ok {
		getOp, setOp, arg = chunk.OpGetLocal, chunk.OpSetLocal, byte(slot)
	} else if idx, ok := c.resolveUpvalue(name); ok {
		getOp, setOp, arg = chunk.OpGetUpvalue, chunk.OpSetUpvalue, byte(idx)
	} else {
		arg = c.identifierConstant(name)
		getOp, setOp = chunk.OpGetGlobal, chunk.OpSetGlobal
	}

	if !canAssign {
		c.emitOpByte(getOp, arg)
		return
	}

	switch c.parser.current.Kind {
	case token.EQUAL:
		c.parser.advance()
		c.expression()
		c.emitOpByte(setOp, arg)
	case token.PLUS_EQUAL, token.MINUS_EQUAL, token.STAR_EQUAL, token.SLASH_EQUAL, token.PERCENT_EQUAL:
		opKind := c.parser.current.Kind
		c.parser.advance()
		c.emitOpByte(getOp, arg)
		c.expression()
		switch opKind {
		case token.PLUS_EQUAL:
			c.emitOp(chunk.OpAdd)
		case token.MINUS_EQUAL:
			c.emitOp(chunk.OpSubtract)
		case token.STAR_EQUAL:
			c.emitOp(chunk.OpMultiply)
		case token.SLASH_EQUAL:
			c.emitOp(chunk.OpDivide)
		case token.PERCENT_EQUAL:
			c.emitOp(chunk.OpMod)
		}
		c.emitOpByte(setOp, arg)
	case token.PLUS_PLUS, token.MINUS_MINUS:
		opKind := c.parser.current.Kind
		c.parser.advance()
		c.emitOpByte(getOp, arg)
		c.emitConstant(value.NumberValue(1))
		if opKind == token.PLUS_PLUS {
			c.emitOp(chunk.OpAdd)
		} else {
			c.emitOp(chunk.OpSubtract)
		}
		c.emitOpByte(setOp, arg)
	default:
		c.emitOpByte(getOp, arg)
	}
}
