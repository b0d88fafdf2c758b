package vm

import (
	"fmt"

	"github.com/dustin/go-humanize"
	xslices "golang.org/x/exp/slices"

	"noxy-vm/internal/chunk"
	"noxy-vm/internal/value"
)

const gcGrowFactor = 2
const gcMinThreshold = 1 << 20 // 1 MiB; avoids pathological collect-every-alloc on tiny heaps

// allocate links a freshly constructed heap object into the VM's
// allocation list, charges size against bytesAllocated, and may trigger a
// collection — the only place GC runs, per spec.md §4.6's "safe points"
// rule. size is a rough accounting figure (exact layout doesn't matter,
// only monotonic growth vs. nextGC does).
func (vm *VM) allocate(obj value.Obj, size int) {
	h := obj.GCHeader()
	h.Next = vm.objects
	h.Size = size
	vm.objects = obj
	vm.bytesAllocated += size

	if vm.GCStress || vm.bytesAllocated > vm.nextGC {
		vm.collectGarbage()
	}
}

// collectGarbage runs one tracing mark-and-sweep cycle: mark roots, trace
// to a fixed point, drop unmarked entries from the (weak) intern table,
// sweep the allocation list, then grow nextGC (spec.md §4.6).
func (vm *VM) collectGarbage() {
	before := vm.bytesAllocated

	var gray []value.Obj
	gray = vm.markRoots(gray)
	gray = vm.verifyOpenUpvalueOrder(gray)

	for len(gray) > 0 {
		obj := gray[len(gray)-1]
		gray = gray[:len(gray)-1]
		gray = vm.blacken(obj, gray)
	}

	vm.strings.DeleteUnmarked()
	freed := vm.sweep()

	vm.nextGC = vm.bytesAllocated * gcGrowFactor
	if vm.nextGC < gcMinThreshold {
		vm.nextGC = gcMinThreshold
	}

	if vm.GCLog {
		fmt.Fprintf(vm.Stderr, "GC: collected %d objects, heap %s -> %s, next at %s\n",
			freed,
			humanize.Bytes(uint64(before)),
			humanize.Bytes(uint64(vm.bytesAllocated)),
			humanize.Bytes(uint64(vm.nextGC)))
	}
}

// markRoots marks every value reachable directly from VM state: the value
// stack, each frame's closure, open upvalues, globals, the cached "init"
// string, and the enclosing chain of Compilers currently under construction
// (spec.md §4.6 phase 1). The last of these matters because InternString
// itself allocates and can trigger a collection mid-compile, when the VM's
// own stack is still empty and a just-interned literal is reachable only
// through a not-yet-finished function's chunk constants.
func (vm *VM) markRoots(gray []value.Obj) []value.Obj {
	for i := 0; i < vm.stackTop; i++ {
		gray = vm.markValue(vm.stack[i], gray)
	}
	for i := 0; i < vm.frameCount; i++ {
		gray = vm.markObject(vm.frames[i].closure, gray)
	}
	for uv := vm.openUpvalues; uv != nil; uv = uv.Next {
		gray = vm.markObject(uv, gray)
	}
	vm.globals.Each(func(k *value.ObjStringData, v value.Value) {
		gray = vm.markObject(k, gray)
		gray = vm.markValue(v, gray)
	})
	gray = vm.markObject(vm.initString, gray)
	for _, fn := range vm.compilerRoots {
		gray = vm.markObject(fn, gray)
	}
	return gray
}

func (vm *VM) markValue(v value.Value, gray []value.Obj) []value.Obj {
	if v.IsObj() {
		return vm.markObject(v.Obj, gray)
	}
	return gray
}

func (vm *VM) markObject(obj value.Obj, gray []value.Obj) []value.Obj {
	if obj == nil {
		return gray
	}
	h := obj.GCHeader()
	if h.Marked {
		return gray
	}
	h.Marked = true
	return append(gray, obj)
}

// blacken marks every child of obj, per the per-kind traversal table in
// spec.md §4.6 phase 2.
func (vm *VM) blacken(obj value.Obj, gray []value.Obj) []value.Obj {
	switch o := obj.(type) {
	case *value.ObjStringData:
		// no children

	case *value.Upvalue:
		gray = vm.markValue(o.Closed, gray)

	case *value.Closure:
		gray = vm.markObject(o.Function, gray)
		for _, uv := range o.Upvalues {
			gray = vm.markObject(uv, gray)
		}

	case *value.ObjFunction:
		if c, ok := o.Chunk.(*chunk.Chunk); ok {
			for _, cst := range c.Constants {
				gray = vm.markValue(cst, gray)
			}
		}

	case *value.Class:
		for _, m := range o.Methods {
			gray = vm.markObject(m, gray)
		}

	case *value.Instance:
		gray = vm.markObject(o.Class, gray)
		for _, f := range o.Fields {
			gray = vm.markValue(f, gray)
		}

	case *value.BoundMethod:
		gray = vm.markValue(o.Receiver, gray)
		gray = vm.markObject(o.Method, gray)

	case *value.Native:
		// no children
	}
	return gray
}

// sweep walks the intrusive allocation list, freeing unmarked objects and
// clearing the mark bit on survivors for the next cycle.
func (vm *VM) sweep() int {
	var prev value.Obj
	cur := vm.objects
	freed := 0

	for cur != nil {
		h := cur.GCHeader()
		if h.Marked {
			h.Marked = false
			prev = cur
			cur = h.Next
			continue
		}
		next := h.Next
		if prev == nil {
			vm.objects = next
		} else {
			prev.GCHeader().Next = next
		}
		vm.bytesAllocated -= h.Size
		cur = next
		freed++
	}
	return freed
}

// verifyOpenUpvalueOrder is a debug-only consistency check for the "open
// upvalue list is strictly decreasing in stack address" invariant
// (spec.md §3): under GC stress it re-sorts a snapshot and panics if the
// live list had drifted out of order, which would indicate a bug in
// captureUpvalue/closeUpvalues rather than anything a caller can recover
// from.
func (vm *VM) verifyOpenUpvalueOrder(gray []value.Obj) []value.Obj {
	if !vm.GCStress {
		return gray
	}
	var snapshot []*value.Upvalue
	for uv := vm.openUpvalues; uv != nil; uv = uv.Next {
		snapshot = append(snapshot, uv)
	}
	sorted := append([]*value.Upvalue(nil), snapshot...)
	xslices.SortFunc(sorted, func(a, b *value.Upvalue) int {
		switch {
		case addr(a.Location) > addr(b.Location):
			return -1
		case addr(a.Location) < addr(b.Location):
			return 1
		default:
			return 0
		}
	})
	for i := range snapshot {
		if snapshot[i] != sorted[i] {
			panic("open upvalue list invariant violated: not strictly decreasing by stack address")
		}
	}
	return gray
}
