package vm

import (
	"bytes"
	"strings"
	"testing"
)

// run interprets source against a fresh VM and returns everything printed
// to stdout (one line per `print` statement, as PRINT writes).
func run(t *testing.T, source string) string {
	t.Helper()
	var out, errOut bytes.Buffer
	machine := New()
	machine.Stdout = &out
	machine.Stderr = &errOut
	if res := machine.Interpret(source); res != InterpretOK {
		t.Fatalf("interpret failed (%v): stderr=%q", res, errOut.String())
	}
	return out.String()
}

func TestPrecedence(t *testing.T) {
	got := run(t, "print 1 + 2 * 3;")
	if got != "7\n" {
		t.Errorf("got %q, want %q", got, "7\n")
	}
}

func TestForLoopSum(t *testing.T) {
	got := run(t, "var a = 0; for(var i = 0; i < 5; i = i + 1) a = a + i; print a;")
	if got != "10\n" {
		t.Errorf("got %q, want %q", got, "10\n")
	}
}

func TestClosureOverMutableUpvalue(t *testing.T) {
	src := `fun make(){var x=1; fun inc(){x=x+1; return x;} return inc;} var f = make(); print f(); print f(); print f();`
	got := run(t, src)
	want := "2\n3\n4\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBoundMethodAndInit(t *testing.T) {
	src := `class P{init(n){this.n=n;} greet(){print this.n;}} P("hi").greet();`
	got := run(t, src)
	if got != "hi\n" {
		t.Errorf("got %q, want %q", got, "hi\n")
	}
}

func TestDefaultParameters(t *testing.T) {
	src := `fun f(a, b=10, c=20){print a+b+c;} f(1); f(1,2); f(1,2,3);`
	got := run(t, src)
	want := "31\n23\n6\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestGCStressConcatenation(t *testing.T) {
	var out, errOut bytes.Buffer
	machine := New()
	machine.Stdout = &out
	machine.Stderr = &errOut
	machine.GCStress = true

	src := `var s = ""; for(var i=0;i<1000;i=i+1) s = s + "x"; print s;`
	if res := machine.Interpret(src); res != InterpretOK {
		t.Fatalf("interpret failed (%v): stderr=%q", res, errOut.String())
	}
	got := strings.TrimSuffix(out.String(), "\n")
	if len(got) != 1000 {
		t.Errorf("got length %d, want 1000", len(got))
	}
	for _, c := range got {
		if c != 'x' {
			t.Fatalf("expected all 'x', got %q", got)
		}
	}
}

func TestUndefinedGlobalIsRuntimeError(t *testing.T) {
	var out, errOut bytes.Buffer
	machine := New()
	machine.Stdout = &out
	machine.Stderr = &errOut
	if res := machine.Interpret("print undefined_var;"); res != InterpretRuntimeError {
		t.Fatalf("got %v, want InterpretRuntimeError", res)
	}
	if !strings.Contains(errOut.String(), "Undefined variable") {
		t.Errorf("stderr = %q, want it to mention the undefined variable", errOut.String())
	}
}

func TestStringInterning(t *testing.T) {
	machine := New()
	a := machine.InternString("hello")
	b := machine.InternString("hello")
	if a != b {
		t.Errorf("two interned calls with equal content produced different objects")
	}
}

func TestUpvalueSharing(t *testing.T) {
	src := `var setter;
fun make(){
  var x = 0;
  fun get(){ return x; }
  fun set(v){ x = v; }
  setter = set;
  return get;
}
var getter = make();
setter(5);
print getter();`
	got := run(t, src)
	if got != "5\n" {
		t.Errorf("got %q, want %q", got, "5\n")
	}
}

func TestCompileErrorReturnsCompileError(t *testing.T) {
	var out, errOut bytes.Buffer
	machine := New()
	machine.Stdout = &out
	machine.Stderr = &errOut
	if res := machine.Interpret("var = 1;"); res != InterpretCompileError {
		t.Fatalf("got %v, want InterpretCompileError", res)
	}
}
