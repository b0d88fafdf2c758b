package vm

import (
	"unsafe"

	"noxy-vm/internal/value"
)

// addr gives stack-slot pointers a numeric ordering; Go forbids <= / >= on
// raw pointers, and the open-upvalue list's "sorted by decreasing stack
// address" invariant (spec.md §3) needs one.
func addr(v *value.Value) uintptr { return uintptr(unsafe.Pointer(v)) }

// captureUpvalue returns the open upvalue pointing at stack slot index,
// reusing an existing one if some other closure already captured the same
// slot (spec.md §4.5), otherwise splicing a fresh one into the
// decreasing-address open list.
func (vm *VM) captureUpvalue(slot int) *value.Upvalue {
	target := &vm.stack[slot]

	var prev *value.Upvalue
	cur := vm.openUpvalues
	for cur != nil && addr(cur.Location) > addr(target) {
		prev = cur
		cur = cur.Next
	}
	if cur != nil && cur.Location == target {
		return cur
	}

	created := &value.Upvalue{Header: value.NewHeader(), Location: target}
	vm.allocate(created, 40)
	created.Next = cur
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues promotes every open upvalue at or above stackPosition from
// pointing into the stack to owning its own copy of the value, per
// spec.md §4.5.
func (vm *VM) closeUpvalues(stackPosition int) {
	threshold := addr(&vm.stack[stackPosition])
	for vm.openUpvalues != nil && addr(vm.openUpvalues.Location) >= threshold {
		uv := vm.openUpvalues
		uv.Closed = *uv.Location
		uv.Location = &uv.Closed
		vm.openUpvalues = uv.Next
	}
}
