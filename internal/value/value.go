// Package value implements the runtime value representation: a tagged
// union (Value) over Nil/Bool/Number/Obj, and the heap object model shared
// by every collectible entity (strings, upvalues, functions, closures,
// classes, instances, bound methods).
package value

import (
	"fmt"

	"github.com/google/uuid"
)

// Type discriminates the tagged union.
type Type byte

const (
	Nil Type = iota
	Bool
	Number
	ObjType
)

// Value is the tagged union passed around the stack machine. Equality is
// structural for Nil/Bool/Number; Obj equality is by identity (string
// interning makes string equality identity too).
type Value struct {
	Type Type
	Bool bool
	Num  float64
	Obj  Obj
}

func NilValue() Value             { return Value{Type: Nil} }
func BoolValue(b bool) Value      { return Value{Type: Bool, Bool: b} }
func NumberValue(n float64) Value { return Value{Type: Number, Num: n} }
func ObjValue(o Obj) Value        { return Value{Type: ObjType, Obj: o} }

func (v Value) IsNil() bool    { return v.Type == Nil }
func (v Value) IsBool() bool   { return v.Type == Bool }
func (v Value) IsNumber() bool { return v.Type == Number }
func (v Value) IsObj() bool    { return v.Type == ObjType }

func (v Value) IsFalsey() bool {
	return v.Type == Nil || (v.Type == Bool && !v.Bool)
}

// Equal implements structural equality for Nil/Bool/Number and identity
// equality for Obj (interning makes two equal strings the same Obj).
func Equal(a, b Value) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case Nil:
		return true
	case Bool:
		return a.Bool == b.Bool
	case Number:
		return a.Num == b.Num
	case ObjType:
		return a.Obj == b.Obj
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.Type {
	case Nil:
		return "nil"
	case Bool:
		if v.Bool {
			return "true"
		}
		return "false"
	case Number:
		return formatNumber(v.Num)
	case ObjType:
		if v.Obj == nil {
			return "nil"
		}
		return v.Obj.String()
	default:
		return "<unknown>"
	}
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}

// ObjKind discriminates the heap object variants.
type ObjKind byte

const (
	ObjString ObjKind = iota
	ObjUpvalueKind
	ObjFunctionKind
	ObjClosureKind
	ObjClassKind
	ObjInstanceKind
	ObjBoundMethodKind
	ObjNativeKind
)

// Obj is the header shared by every heap entity: a kind discriminant, a GC
// mark bit (via GCHeader), a next-pointer threading every live object into
// the VM's allocation list, and a debug identity used only for
// diagnostics (SPEC_FULL.md §3).
type Obj interface {
	Kind() ObjKind
	String() string
	GCHeader() *Header
}

// Header is embedded by every concrete Obj implementation.
type Header struct {
	Marked  bool
	Next    Obj
	DebugID uuid.UUID
	Size    int // bytes charged against bytesAllocated by allocate, for sweep to release
}

func NewHeader() Header {
	return Header{DebugID: uuid.New()}
}

// ObjStringData is the heap representation of an interned string: an
// immutable byte sequence with its length and a precomputed FNV-1a hash.
type ObjStringData struct {
	Header
	Chars string
	Hash  uint32
}

func (s *ObjStringData) Kind() ObjKind    { return ObjString }
func (s *ObjStringData) String() string   { return s.Chars }
func (s *ObjStringData) GCHeader() *Header { return &s.Header }

// FNV1a computes the 32-bit FNV-1a hash used to key the intern table.
func FNV1a(s string) uint32 {
	var hash uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= 16777619
	}
	return hash
}

// Upvalue is either open (Location points into a live stack slot) or
// closed (Closed holds the owned captured value and Location points at
// Closed). Open upvalues are threaded by Next into the VM's
// decreasing-address open list.
type Upvalue struct {
	Header
	Location *Value
	Closed   Value
	Next     *Upvalue
}

func (u *Upvalue) Kind() ObjKind    { return ObjUpvalueKind }
func (u *Upvalue) String() string   { return "upvalue" }
func (u *Upvalue) GCHeader() *Header { return &u.Header }

// ObjFunction is a compiled function: arity, default-parameter count,
// upvalue count, optional name (empty for the top-level script), and its
// Chunk. Chunk is stored as interface{} (asserted to *chunk.Chunk by the
// compiler/vm) to avoid an import cycle between value and chunk, mirroring
// the teacher's own ObjFunction.Chunk field.
type ObjFunction struct {
	Header
	Name         string
	Arity        int
	DefaultCount int
	UpvalueCount int
	Chunk        interface{}
}

func (f *ObjFunction) Kind() ObjKind { return ObjFunctionKind }
func (f *ObjFunction) String() string {
	if f.Name == "" {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name)
}
func (f *ObjFunction) GCHeader() *Header { return &f.Header }

// Closure pairs a Function with its captured upvalues.
type Closure struct {
	Header
	Function *ObjFunction
	Upvalues []*Upvalue
}

func (c *Closure) Kind() ObjKind    { return ObjClosureKind }
func (c *Closure) String() string   { return c.Function.String() }
func (c *Closure) GCHeader() *Header { return &c.Header }

// Class is a named method table (interned-string -> Closure).
type Class struct {
	Header
	Name    string
	Methods map[string]*Closure
}

func (c *Class) Kind() ObjKind    { return ObjClassKind }
func (c *Class) String() string   { return c.Name }
func (c *Class) GCHeader() *Header { return &c.Header }

// Instance is a Class reference plus a field table.
type Instance struct {
	Header
	Class  *Class
	Fields map[string]Value
}

func (i *Instance) Kind() ObjKind    { return ObjInstanceKind }
func (i *Instance) String() string   { return fmt.Sprintf("<%s instance>", i.Class.Name) }
func (i *Instance) GCHeader() *Header { return &i.Header }

// BoundMethod pairs a receiver with the closure bound to it (produced by
// property access on a method name).
type BoundMethod struct {
	Header
	Receiver Value
	Method   *Closure
}

func (b *BoundMethod) Kind() ObjKind    { return ObjBoundMethodKind }
func (b *BoundMethod) String() string   { return b.Method.String() }
func (b *BoundMethod) GCHeader() *Header { return &b.Header }

// NativeFn is a host function exposed to scripts.
type NativeFn func(args []Value) (Value, error)

// Native wraps a host-implemented function (e.g. clock(),
// native_object_id(), the DynamoDB plugin bridge) as a callable Value.
type Native struct {
	Header
	Name string
	Fn   NativeFn
}

func (n *Native) Kind() ObjKind    { return ObjNativeKind }
func (n *Native) String() string   { return fmt.Sprintf("<native fn %s>", n.Name) }
func (n *Native) GCHeader() *Header { return &n.Header }
