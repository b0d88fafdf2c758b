package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/mattn/go-isatty"

	"noxy-vm/internal/chunk"
	"noxy-vm/internal/pkgmanager"
	"noxy-vm/internal/value"
	"noxy-vm/internal/vm"
)

const Version = "v1.0.0"

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Println("Recovered from panic:", r)
			debug.PrintStack()
		}
	}()

	if len(os.Args) > 1 && os.Args[1] == "get" {
		runGet(os.Args[2:])
		return
	}

	showDisassemble := flag.Bool("disassemble", false, "Show bytecode disassembly before running")
	showVersion := flag.Bool("version", false, "Show version information")
	showHelp := flag.Bool("help", false, "Show help message")
	gcStress := flag.Bool("gc-stress", false, "Run the collector before every allocation")
	gcLog := flag.Bool("gc-log", false, "Log GC cycle summaries to stderr")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: noxy [options] [file]\n\nOptions:\n")
		flag.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(os.Stderr, "  --%s\n\t%s\n", f.Name, f.Usage)
		})
	}
	flag.Parse()

	if *showHelp {
		flag.Usage()
		return
	}
	if *showVersion {
		fmt.Printf("noxy %s\n", Version)
		return
	}

	machine := vm.New()
	machine.GCStress = *gcStress
	machine.GCLog = *gcLog

	args := flag.Args()
	if len(args) < 1 {
		runREPL(machine, *showDisassemble)
		return
	}

	content, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %s\n", err)
		os.Exit(1)
	}

	os.Exit(runSource(machine, args[0], string(content), *showDisassemble))
}

// runGet implements `noxy get <package>[@version]`, fetching a noxy_libs/
// package via internal/pkgmanager and recording it in the resolution cache.
func runGet(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: noxy get <package>[@version]")
		os.Exit(64) // EX_USAGE
	}
	if err := pkgmanager.Get(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// runSource compiles and runs one script, returning the process exit code
// spec.md §7 prescribes: 0 on InterpretOK, nonzero otherwise.
func runSource(machine *vm.VM, name, source string, disassemble bool) int {
	fn, ok := machine.Compile(source)
	if !ok {
		return 65 // EX_DATAERR: compile error, per the classic sysexits convention the teacher's CLI already followed for I/O failures
	}
	if disassemble {
		disassembleFunction(fn, name)
	}
	if machine.Run(fn) != vm.InterpretOK {
		return 70 // EX_SOFTWARE: runtime error
	}
	return 0
}

func disassembleFunction(fn *value.ObjFunction, name string) {
	c := fn.Chunk.(*chunk.Chunk)
	c.Disassemble(name)
}

// runREPL reads one line (or, when stdin is a pipe, a line at a time with
// no prompt noise) per interaction and interprets it against a single
// persistent VM, so globals defined on one line are visible on the next.
// Every `$` in a line, including one inside a string literal, is replaced
// by a newline before compiling, so several lines can be entered as one.
func runREPL(machine *vm.VM, disassemble bool) {
	interactive := isatty.IsTerminal(os.Stdin.Fd())

	if interactive {
		fmt.Printf("noxy %s\n", Version)
		fmt.Println("Type 'exit' to quit.")
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			fmt.Print(">>> ")
		}
		if !scanner.Scan() {
			return
		}
		line := strings.ReplaceAll(scanner.Text(), "$", "\n")
		if strings.TrimSpace(line) == "exit" {
			return
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		fn, ok := machine.Compile(line)
		if !ok {
			continue
		}
		if disassemble {
			disassembleFunction(fn, "REPL")
		}
		machine.Run(fn)
	}
}
