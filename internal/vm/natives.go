package vm

import (
	"errors"
	"time"

	"noxy-vm/internal/value"
)

// defineNatives installs the small set of host functions every script can
// call as globals, mirroring the teacher's DefineNative convention.
func (vm *VM) defineNatives() {
	vm.defineNative("clock", func(args []value.Value) (value.Value, error) {
		if len(args) != 0 {
			return value.NilValue(), errors.New("clock() takes no arguments.")
		}
		return value.NumberValue(float64(time.Now().UnixNano()) / 1e9), nil
	})

	// native_object_id exposes the uuid.UUID every heap object carries in
	// its GC header (SPEC_FULL.md §3), useful for debugging aliasing and
	// interning without leaking pointer values to scripts.
	vm.defineNative("native_object_id", func(args []value.Value) (value.Value, error) {
		if len(args) != 1 || !args[0].IsObj() {
			return value.NilValue(), errors.New("native_object_id() takes one object argument.")
		}
		id := args[0].Obj.GCHeader().DebugID.String()
		return value.ObjValue(vm.InternString(id)), nil
	})
}

func (vm *VM) defineNative(name string, fn value.NativeFn) {
	native := &value.Native{Header: value.NewHeader(), Name: name, Fn: fn}
	vm.allocate(native, 24)
	key := vm.InternString(name)
	vm.globals.Set(key, value.ObjValue(native))
}
