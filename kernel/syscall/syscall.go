// Package syscall implements the numbered system-call dispatch table of
// §6. It never touches scheduler or process internals directly: each
// number is routed to a method on the narrow Machine interface, which
// kernel/machine implements by wiring together kernel/process,
// kernel/vm, and kernel/fsys. Grounded on original_source's
// userprog/syscall.c switch-on-syscall-number dispatcher.
package syscall

import "github.com/kernelkit/pintos-go/kernel/kerrors"

// Num identifies one syscall, matching the ABI's numbered surface.
type Num uint32

const (
	Halt Num = iota
	Exit
	Exec
	Wait
	Create
	Remove
	Open
	Filesize
	Read
	Write
	Seek
	Tell
	Close
)

// Machine is the narrow view of the running kernel a syscall dispatches
// into. Every method already performs its own user-pointer validation
// (per §6, "the kernel validates each pointer"). An invalid pointer is
// reported as an ordinary error wrapping kerrors.ErrBadPointer, returned
// to the caller; it does not terminate the calling process.
type Machine interface {
	SysHalt()
	SysExit(status int32)
	SysExec(cmdline uint32) (pid int32, err error)
	SysWait(pid int32) (status int32, err error)
	SysCreate(path uint32, size uint32) (ok bool, err error)
	SysRemove(path uint32) (ok bool, err error)
	SysOpen(path uint32) (fd int32, err error)
	SysFilesize(fd int32) (size int32, err error)
	SysRead(fd int32, buf uint32, size uint32) (n int32, err error)
	SysWrite(fd int32, buf uint32, size uint32) (n int32, err error)
	SysSeek(fd int32, pos uint32) error
	SysTell(fd int32) (pos uint32, err error)
	SysClose(fd int32) error
}

// Args is the three-word argument vector read from [esp+4..esp+12], per
// §6's calling convention. Unused trailing words for a given syscall are
// simply ignored by that syscall's handler.
type Args struct {
	A0, A1, A2 uint32
}

// Dispatch routes num to the corresponding Machine method and returns the
// value destined for the eax register of the interrupt frame. halt and
// exit never return to the caller in the original kernel; here they are
// still modelled as returning, since the calling goroutine's own Exit
// suspension point is what actually stops it from running further code.
func Dispatch(m Machine, num Num, args Args) (int32, error) {
	switch num {
	case Halt:
		m.SysHalt()
		return 0, nil
	case Exit:
		m.SysExit(int32(args.A0))
		return 0, nil
	case Exec:
		pid, err := m.SysExec(args.A0)
		return pid, err
	case Wait:
		status, err := m.SysWait(int32(args.A0))
		return status, err
	case Create:
		ok, err := m.SysCreate(args.A0, args.A1)
		return boolToI32(ok), err
	case Remove:
		ok, err := m.SysRemove(args.A0)
		return boolToI32(ok), err
	case Open:
		fd, err := m.SysOpen(args.A0)
		return fd, err
	case Filesize:
		size, err := m.SysFilesize(int32(args.A0))
		return size, err
	case Read:
		n, err := m.SysRead(int32(args.A0), args.A1, args.A2)
		return n, err
	case Write:
		n, err := m.SysWrite(int32(args.A0), args.A1, args.A2)
		return n, err
	case Seek:
		err := m.SysSeek(int32(args.A0), args.A1)
		return 0, err
	case Tell:
		pos, err := m.SysTell(int32(args.A0))
		return int32(pos), err
	case Close:
		err := m.SysClose(int32(args.A0))
		return 0, err
	default:
		// Reaching here means a valid user program issued a syscall
		// number no libc can produce: a kernel bug, per §7.
		panic(kerrors.Wrap("syscall: unknown number", kerrors.ErrUnknownSyscall))
	}
}

func boolToI32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
