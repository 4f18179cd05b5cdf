// Command pintos boots a simulated machine, loads a single executable from
// the kernel command line, and runs it to completion. It is the
// command-line entry point described in §10.4: a one-shot boot-and-run,
// not an interactive shell (a REPL is a separate concern this port does
// not carry, per the Non-goals).
package main

import (
	"fmt"
	"os"

	"github.com/joeycumines/logiface"

	"github.com/kernelkit/pintos-go/kernel/loader"
	"github.com/kernelkit/pintos-go/kernel/machine"
	"github.com/kernelkit/pintos-go/kernel/sched"
	"github.com/kernelkit/pintos-go/kernel/syscall"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run parses the kernel command line, boots a Machine, loads and runs the
// named executable, and returns the process shell would use as its own
// exit code: the loaded program's exit status, or a small fixed set of
// boot-failure codes.
func run(args []string) int {
	mode := sched.ParseMLFQFlag(args)
	cmdline := commandLine(args)
	if cmdline == "" {
		fmt.Fprintln(os.Stderr, "pintos: usage: pintos [-o mlfqs] executable [args...]")
		return 2
	}

	m := machine.New(machine.Config{
		FrameCapacity: 64,
		SwapCapacity:  64,
		SchedMode:     mode,
		LogWriter:     os.Stderr,
		LogLevel:      logiface.LevelInformational,
	})

	argv := loader.TokenizeCommandLine(cmdline)
	image, err := os.ReadFile(argv[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "pintos: %s: %v\n", argv[0], err)
		return 1
	}
	m.FS.Create(argv[0], image)
	m.RegisterProgram(argv[0], haltProgram)

	proc, err := m.Spawn(cmdline)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pintos: %s: %v\n", cmdline, err)
		return 1
	}

	m.Run()

	status, exited := proc.ExitStatus()
	if !exited {
		fmt.Fprintf(os.Stderr, "pintos: %s: load failed\n", cmdline)
		return 1
	}
	return int(status)
}

// commandLine returns the non-flag arguments rejoined into the single
// command-line string Spawn expects, after ParseMLFQFlag has already
// consumed -o mlfqs from the same args slice.
func commandLine(args []string) string {
	var kept []string
	for i := 0; i < len(args); i++ {
		if args[i] == "-o" && i+1 < len(args) {
			i++
			continue
		}
		kept = append(kept, args[i])
	}
	if len(kept) == 0 {
		return ""
	}
	line := kept[0]
	for _, a := range kept[1:] {
		line += " " + a
	}
	return line
}

// haltProgram is the built-in instruction stream registered for whatever
// executable is loaded from the command line: it immediately shuts the
// machine down, since this port has no real instruction interpreter to
// run the loaded image's own code. A real deployment would instead
// register one ProgramFunc per test/demo executable name, each driving
// the syscalls that executable's native code would have issued.
func haltProgram(sm syscall.Machine) {
	sm.SysHalt()
}
