package vm

import (
	"fmt"

	"noxy-vm/internal/chunk"
	"noxy-vm/internal/value"
)

// run is the bytecode dispatch loop: read a byte, switch. Mirrors the
// opcode table in spec.md §4.4 exactly.
func (vm *VM) run() InterpretResult {
	frame := &vm.frames[vm.frameCount-1]
	c := frame.closure.Function.Chunk.(*chunk.Chunk)

	readByte := func() byte {
		b := c.Code[frame.ip]
		frame.ip++
		return b
	}
	readShort := func() int {
		hi := c.Code[frame.ip]
		lo := c.Code[frame.ip+1]
		frame.ip += 2
		return int(hi)<<8 | int(lo)
	}
	readConstant := func() value.Value {
		return c.Constants[readByte()]
	}

	for {
		op := chunk.OpCode(readByte())
		switch op {
		case chunk.OpConstant:
			vm.push(readConstant())

		case chunk.OpNil:
			vm.push(value.NilValue())
		case chunk.OpTrue:
			vm.push(value.BoolValue(true))
		case chunk.OpFalse:
			vm.push(value.BoolValue(false))

		case chunk.OpPop:
			vm.pop()

		case chunk.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.BoolValue(value.Equal(a, b)))

		case chunk.OpGreater, chunk.OpLess:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				vm.runtimeError("Operands must be numbers.")
				return InterpretRuntimeError
			}
			b := vm.pop().Num
			a := vm.pop().Num
			if op == chunk.OpGreater {
				vm.push(value.BoolValue(a > b))
			} else {
				vm.push(value.BoolValue(a < b))
			}

		case chunk.OpAdd:
			if vm.peek(0).IsNumber() && vm.peek(1).IsNumber() {
				b := vm.pop().Num
				a := vm.pop().Num
				vm.push(value.NumberValue(a + b))
			} else if vm.isString(vm.peek(0)) && vm.isString(vm.peek(1)) {
				vm.concatenate()
			} else {
				vm.runtimeError("Operands must be two numbers or two strings.")
				return InterpretRuntimeError
			}

		case chunk.OpSubtract, chunk.OpMultiply, chunk.OpDivide, chunk.OpMod:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				vm.runtimeError("Operands must be numbers.")
				return InterpretRuntimeError
			}
			b := vm.pop().Num
			a := vm.pop().Num
			switch op {
			case chunk.OpSubtract:
				vm.push(value.NumberValue(a - b))
			case chunk.OpMultiply:
				vm.push(value.NumberValue(a * b))
			case chunk.OpDivide:
				vm.push(value.NumberValue(a / b))
			case chunk.OpMod:
				ai, bi := int(a), int(b)
				vm.push(value.NumberValue(float64(ai % bi)))
			}

		case chunk.OpNot:
			vm.push(value.BoolValue(vm.pop().IsFalsey()))

		case chunk.OpNegate:
			if !vm.peek(0).IsNumber() {
				vm.runtimeError("Operand must be a number.")
				return InterpretRuntimeError
			}
			vm.push(value.NumberValue(-vm.pop().Num))

		case chunk.OpPrint:
			fmt.Fprintln(vm.Stdout, vm.pop().String())

		case chunk.OpDefineGlobal:
			name := readConstant().Obj.(*value.ObjStringData)
			vm.globals.Set(name, vm.peek(0))
			vm.pop()

		case chunk.OpGetGlobal:
			name := readConstant().Obj.(*value.ObjStringData)
			v, ok := vm.globals.Get(name)
			if !ok {
				vm.runtimeError("Undefined variable '%s'.", name.Chars)
				return InterpretRuntimeError
			}
			vm.push(v)

		case chunk.OpSetGlobal:
			name := readConstant().Obj.(*value.ObjStringData)
			if vm.globals.Set(name, vm.peek(0)) {
				vm.globals.Delete(name)
				vm.runtimeError("Undefined variable '%s'.", name.Chars)
				return InterpretRuntimeError
			}

		case chunk.OpGetLocal:
			slot := readByte()
			vm.push(vm.stack[frame.base+int(slot)])

		case chunk.OpSetLocal:
			slot := readByte()
			vm.stack[frame.base+int(slot)] = vm.peek(0)

		case chunk.OpGetUpvalue:
			idx := readByte()
			vm.push(*frame.closure.Upvalues[idx].Location)

		case chunk.OpSetUpvalue:
			idx := readByte()
			*frame.closure.Upvalues[idx].Location = vm.peek(0)

		case chunk.OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()

		case chunk.OpJump:
			offset := readShort()
			frame.ip += offset

		case chunk.OpJumpIfFalse:
			offset := readShort()
			if vm.peek(0).IsFalsey() {
				frame.ip += offset
			}

		case chunk.OpLoop:
			offset := readShort()
			frame.ip -= offset

		case chunk.OpCall:
			argCount := int(readByte())
			if !vm.callValue(vm.peek(argCount), argCount) {
				return InterpretRuntimeError
			}
			frame = &vm.frames[vm.frameCount-1]
			c = frame.closure.Function.Chunk.(*chunk.Chunk)

		case chunk.OpClosure:
			fn := readConstant().Obj.(*value.ObjFunction)
			cl := &value.Closure{
				Header:   value.NewHeader(),
				Function: fn,
				Upvalues: make([]*value.Upvalue, fn.UpvalueCount),
			}
			vm.allocate(cl, 32+8*fn.UpvalueCount)
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := readByte()
				index := readByte()
				if isLocal != 0 {
					cl.Upvalues[i] = vm.captureUpvalue(frame.base + int(index))
				} else {
					cl.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}
			vm.push(value.ObjValue(cl))

		case chunk.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.base)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return InterpretOK
			}
			vm.stackTop = frame.base
			vm.push(result)
			frame = &vm.frames[vm.frameCount-1]
			c = frame.closure.Function.Chunk.(*chunk.Chunk)

		case chunk.OpClass:
			name := readConstant().Obj.(*value.ObjStringData)
			cls := &value.Class{Header: value.NewHeader(), Name: name.Chars, Methods: make(map[string]*value.Closure)}
			vm.allocate(cls, 48)
			vm.push(value.ObjValue(cls))

		case chunk.OpGetProperty:
			if !vm.peek(0).IsObj() {
				vm.runtimeError("Only instances have properties.")
				return InterpretRuntimeError
			}
			inst, ok := vm.peek(0).Obj.(*value.Instance)
			if !ok {
				vm.runtimeError("Only instances have properties.")
				return InterpretRuntimeError
			}
			name := readConstant().Obj.(*value.ObjStringData)
			if v, ok := inst.Fields[name.Chars]; ok {
				vm.pop()
				vm.push(v)
				break
			}
			method, ok := inst.Class.Methods[name.Chars]
			if !ok {
				vm.runtimeError("Undefined property '%s'.", name.Chars)
				return InterpretRuntimeError
			}
			bound := &value.BoundMethod{Header: value.NewHeader(), Receiver: vm.peek(0), Method: method}
			vm.allocate(bound, 40)
			vm.pop()
			vm.push(value.ObjValue(bound))

		case chunk.OpSetProperty:
			inst, ok := vm.peek(1).Obj.(*value.Instance)
			if !ok {
				vm.runtimeError("Only instances have fields.")
				return InterpretRuntimeError
			}
			name := readConstant().Obj.(*value.ObjStringData)
			inst.Fields[name.Chars] = vm.peek(0)
			v := vm.pop()
			vm.pop()
			vm.push(v)

		case chunk.OpMethod:
			name := readConstant().Obj.(*value.ObjStringData)
			method := vm.peek(0).Obj.(*value.Closure)
			cls := vm.peek(1).Obj.(*value.Class)
			cls.Methods[name.Chars] = method
			vm.pop()

		case chunk.OpSetDefault:
			// Parameter slots are numbered 1..arity; a slot beyond the
			// caller's supplied argCount was filled with a NIL placeholder
			// by call and needs this default written in. A slot the
			// caller did supply keeps its argument, so the default
			// expression's value (already evaluated, for its side effects)
			// is simply discarded.
			slot := readByte()
			v := vm.pop()
			if int(slot) > frame.argCount {
				vm.stack[frame.base+int(slot)] = v
			}

		default:
			vm.runtimeError("Unknown opcode %d.", byte(op))
			return InterpretRuntimeError
		}
	}
}

func (vm *VM) isString(v value.Value) bool {
	if !v.IsObj() {
		return false
	}
	_, ok := v.Obj.(*value.ObjStringData)
	return ok
}

func (vm *VM) concatenate() {
	b := vm.peek(0).Obj.(*value.ObjStringData)
	a := vm.peek(1).Obj.(*value.ObjStringData)
	result := vm.InternString(a.Chars + b.Chars)
	vm.pop()
	vm.pop()
	vm.push(value.ObjValue(result))
}
