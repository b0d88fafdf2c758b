package vm

import "noxy-vm/internal/value"

// callValue dispatches a CALL opcode on callee (peek(argCount) before this
// runs) per spec.md §4.4 "Call semantics". Returns false on a runtime error
// (already reported via runtimeError).
func (vm *VM) callValue(callee value.Value, argCount int) bool {
	if !callee.IsObj() {
		vm.runtimeError("Can only call functions and classes.")
		return false
	}

	switch obj := callee.Obj.(type) {
	case *value.Closure:
		return vm.call(obj, argCount)

	case *value.Class:
		inst := &value.Instance{Header: value.NewHeader(), Class: obj, Fields: make(map[string]value.Value)}
		vm.allocate(inst, 48)
		vm.stack[vm.stackTop-argCount-1] = value.ObjValue(inst)
		if initializer, ok := obj.Methods["init"]; ok {
			return vm.call(initializer, argCount)
		}
		if argCount != 0 {
			vm.runtimeError("Expected 0 arguments but got %d.", argCount)
			return false
		}
		return true

	case *value.BoundMethod:
		vm.stack[vm.stackTop-argCount-1] = obj.Receiver
		return vm.call(obj.Method, argCount)

	case *value.Native:
		args := vm.stack[vm.stackTop-argCount : vm.stackTop]
		result, err := obj.Fn(args)
		if err != nil {
			vm.runtimeError("%s", err.Error())
			return false
		}
		vm.stackTop -= argCount + 1
		vm.push(result)
		return true

	default:
		vm.runtimeError("Can only call functions and classes.")
		return false
	}
}

// call binds a new call frame for closure, enforcing the
// `arity - defaultCount <= argCount <= arity` window and padding any
// trailing unsupplied parameters with NIL placeholders for OP_SET_DEFAULT
// to fill in (spec.md §4.4).
func (vm *VM) call(closure *value.Closure, argCount int) bool {
	fn := closure.Function
	if argCount < fn.Arity-fn.DefaultCount || argCount > fn.Arity {
		vm.runtimeError("Expected %d arguments but got %d.", fn.Arity, argCount)
		return false
	}

	if vm.frameCount == framesMax {
		vm.runtimeError("Stack overflow.")
		return false
	}

	for i := argCount; i < fn.Arity; i++ {
		vm.push(value.NilValue())
	}

	frame := &vm.frames[vm.frameCount]
	vm.frameCount++
	frame.closure = closure
	frame.ip = 0
	frame.base = vm.stackTop - fn.Arity - 1
	frame.argCount = argCount
	return true
}
