package compiler

import (
	"testing"

	"noxy-vm/internal/chunk"
	"noxy-vm/internal/value"
)

// fakeInterner is a minimal Interner for compiler tests: it dedupes by
// content, same as the real VM, but carries none of the GC/table
// machinery — the compiler only needs identity-stable *ObjStringData.
type fakeInterner struct {
	strings map[string]*value.ObjStringData
}

func newFakeInterner() *fakeInterner {
	return &fakeInterner{strings: make(map[string]*value.ObjStringData)}
}

func (f *fakeInterner) InternString(s string) *value.ObjStringData {
	if existing, ok := f.strings[s]; ok {
		return existing
	}
	str := &value.ObjStringData{Header: value.NewHeader(), Chars: s, Hash: value.FNV1a(s)}
	f.strings[s] = str
	return str
}

func compileOK(t *testing.T, source string) *value.ObjFunction {
	t.Helper()
	fn, ok := Compile(source, newFakeInterner())
	if !ok {
		t.Fatalf("Compile(%q) reported a compile error", source)
	}
	return fn
}

func opcodes(fn *value.ObjFunction) []chunk.OpCode {
	c := fn.Chunk.(*chunk.Chunk)
	var ops []chunk.OpCode
	for i := 0; i < len(c.Code); {
		op := chunk.OpCode(c.Code[i])
		ops = append(ops, op)
		switch op {
		case chunk.OpConstant, chunk.OpDefineGlobal, chunk.OpGetGlobal, chunk.OpSetGlobal,
			chunk.OpGetLocal, chunk.OpSetLocal, chunk.OpGetUpvalue, chunk.OpSetUpvalue,
			chunk.OpCall, chunk.OpSetDefault, chunk.OpClass, chunk.OpGetProperty,
			chunk.OpSetProperty, chunk.OpMethod:
			i += 2
		case chunk.OpJump, chunk.OpJumpIfFalse, chunk.OpLoop:
			i += 3
		case chunk.OpClosure:
			fn := c.Constants[c.Code[i+1]].Obj.(*value.ObjFunction)
			i += 2 + 2*fn.UpvalueCount
		default:
			i++
		}
	}
	return ops
}

func TestCompilePrecedenceEmitsArithmeticOps(t *testing.T) {
	fn := compileOK(t, "print 1 + 2 * 3;")
	ops := opcodes(fn)
	wantSubsequence(t, ops, chunk.OpConstant, chunk.OpConstant, chunk.OpConstant, chunk.OpMultiply, chunk.OpAdd, chunk.OpPrint)
}

func TestCompileGlobalVarRoundTrip(t *testing.T) {
	fn := compileOK(t, "var a = 1; a = a + 1;")
	ops := opcodes(fn)
	wantSubsequence(t, ops, chunk.OpDefineGlobal, chunk.OpGetGlobal, chunk.OpAdd, chunk.OpSetGlobal)
}

func TestCompileLocalsUseSlotOpsNotGlobals(t *testing.T) {
	fn := compileOK(t, "{ var a = 1; a = a + 1; }")
	ops := opcodes(fn)
	for _, op := range ops {
		if op == chunk.OpDefineGlobal || op == chunk.OpGetGlobal || op == chunk.OpSetGlobal {
			t.Fatalf("block-scoped local compiled to a global opcode: %v", ops)
		}
	}
	wantSubsequence(t, ops, chunk.OpGetLocal, chunk.OpAdd, chunk.OpSetLocal)
}

func TestCompileClosureEmitsUpvalueCaptureBytes(t *testing.T) {
	fn := compileOK(t, `fun make(){var x=1; fun inc(){x=x+1; return x;} return inc;}`)
	ops := opcodes(fn)
	wantSubsequence(t, ops, chunk.OpClosure)

	var makeFn *value.ObjFunction
	for _, k := range fn.Chunk.(*chunk.Chunk).Constants {
		if f, ok := k.Obj.(*value.ObjFunction); ok && f.Name == "make" {
			makeFn = f
		}
	}
	if makeFn == nil {
		t.Fatalf("script chunk has no function constant named make")
	}
	// make's body opens with `var x=1;` (OP_CONSTANT, 2 bytes), so inc's
	// OP_CLOSURE is at offset 2, followed by its constant index and one
	// (isLocal=1, index=1) pair capturing make's local x in slot 1.
	code := makeFn.Chunk.(*chunk.Chunk).Code
	if len(code) < 6 || chunk.OpCode(code[2]) != chunk.OpClosure || code[4] != 1 || code[5] != 1 {
		t.Fatalf("make's code %v lacks OP_CLOSURE at offset 2 with capture pair (1, 1)", code)
	}
}

func TestReadingLocalInOwnInitializerIsCompileError(t *testing.T) {
	_, ok := Compile("{ var a = a; }", newFakeInterner())
	if ok {
		t.Fatalf("expected compile error for `var a = a;` reading itself")
	}
}

func TestTopLevelReturnIsCompileError(t *testing.T) {
	_, ok := Compile("return 1;", newFakeInterner())
	if ok {
		t.Fatalf("expected compile error for a top-level return")
	}
}

func TestInvalidAssignmentTargetIsCompileError(t *testing.T) {
	_, ok := Compile("1 + 2 = 3;", newFakeInterner())
	if ok {
		t.Fatalf("expected compile error for assigning to a non-lvalue")
	}
}

func TestNonDefaultParameterAfterDefaultIsCompileError(t *testing.T) {
	_, ok := Compile("fun f(a=1, b){ print a+b; }", newFakeInterner())
	if ok {
		t.Fatalf("expected compile error: non-default parameter following a defaulted one")
	}
}

func wantSubsequence(t *testing.T, ops []chunk.OpCode, want ...chunk.OpCode) {
	t.Helper()
	idx := 0
	for _, op := range ops {
		if idx < len(want) && op == want[idx] {
			idx++
		}
	}
	if idx != len(want) {
		t.Fatalf("opcodes %v did not contain subsequence %v (matched %d/%d)", ops, want, idx, len(want))
	}
}
