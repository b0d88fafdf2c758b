package table

import (
	"testing"

	"noxy-vm/internal/value"
)

func mustString(s string) *value.ObjStringData {
	return &value.ObjStringData{Header: value.NewHeader(), Chars: s, Hash: value.FNV1a(s)}
}

func TestSetGetDelete(t *testing.T) {
	tbl := New()
	key := mustString("x")

	if _, ok := tbl.Get(key); ok {
		t.Fatalf("Get on empty table returned ok=true")
	}

	if isNew := tbl.Set(key, value.NumberValue(1)); !isNew {
		t.Fatalf("Set of a fresh key reported isNew=false")
	}
	v, ok := tbl.Get(key)
	if !ok || v.Num != 1 {
		t.Fatalf("Get after Set = (%v, %v), want (1, true)", v, ok)
	}

	if isNew := tbl.Set(key, value.NumberValue(2)); isNew {
		t.Fatalf("Set overwriting an existing key reported isNew=true")
	}
	v, _ = tbl.Get(key)
	if v.Num != 2 {
		t.Fatalf("Get after overwrite = %v, want 2", v)
	}

	if !tbl.Delete(key) {
		t.Fatalf("Delete of a present key returned false")
	}
	if _, ok := tbl.Get(key); ok {
		t.Fatalf("Get after Delete returned ok=true")
	}
	if tbl.Delete(key) {
		t.Fatalf("second Delete of an already-deleted key returned true")
	}
}

func TestTombstoneDoesNotBreakProbeChain(t *testing.T) {
	tbl := New()
	a := mustString("a")
	b := mustString("b")
	tbl.Set(a, value.NumberValue(1))
	tbl.Set(b, value.NumberValue(2))

	tbl.Delete(a)

	v, ok := tbl.Get(b)
	if !ok || v.Num != 2 {
		t.Fatalf("Get(b) after deleting a = (%v, %v), want (2, true)", v, ok)
	}
}

func TestGrowPreservesAllEntries(t *testing.T) {
	tbl := New()
	keys := make([]*value.ObjStringData, 0, 64)
	for i := 0; i < 64; i++ {
		k := mustString(string(rune('a' + i%26)) + string(rune('A'+i/26)))
		keys = append(keys, k)
		tbl.Set(k, value.NumberValue(float64(i)))
	}
	for i, k := range keys {
		v, ok := tbl.Get(k)
		if !ok || v.Num != float64(i) {
			t.Fatalf("entry %d lost after growth: got (%v, %v)", i, v, ok)
		}
	}
}

func TestFindInterned(t *testing.T) {
	tbl := New()
	s := mustString("hello")
	tbl.Set(s, value.BoolValue(true))

	if got := tbl.FindInterned("hello", value.FNV1a("hello")); got != s {
		t.Fatalf("FindInterned returned %v, want the original instance", got)
	}
	if got := tbl.FindInterned("nope", value.FNV1a("nope")); got != nil {
		t.Fatalf("FindInterned found a non-existent string: %v", got)
	}
}

func TestDeleteUnmarkedRemovesOnlyUnmarked(t *testing.T) {
	tbl := New()
	marked := mustString("keep")
	marked.Marked = true
	unmarked := mustString("drop")

	tbl.Set(marked, value.BoolValue(true))
	tbl.Set(unmarked, value.BoolValue(true))

	tbl.DeleteUnmarked()

	if _, ok := tbl.Get(marked); !ok {
		t.Fatalf("DeleteUnmarked removed a marked entry")
	}
	if _, ok := tbl.Get(unmarked); ok {
		t.Fatalf("DeleteUnmarked kept an unmarked entry")
	}
}
