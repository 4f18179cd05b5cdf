// Package kerrors defines the sentinel errors and fault propagation
// conventions used across the kernel packages.
package kerrors

import (
	"errors"
	"fmt"

	"github.com/kernelkit/pintos-go/internal/klog"
)

var (
	// ErrOutOfThreads is returned by thread creation when no kernel page is
	// available for the new thread's stack.
	ErrOutOfThreads = errors.New("kernel: no free page for thread stack")
	// ErrOutOfFrames is returned internally when the physical frame pool is
	// exhausted and eviction also failed to free one.
	ErrOutOfFrames = errors.New("kernel: no free physical frame")
	// ErrSwapExhausted indicates the swap device has no free slots during an
	// eviction that requires one. This is always fatal.
	ErrSwapExhausted = errors.New("kernel: swap device exhausted")
	// ErrBadPointer indicates a user-supplied pointer is null, outside user
	// space, or unmapped.
	ErrBadPointer = errors.New("kernel: invalid user pointer")
	// ErrBadELF indicates the executable failed header or segment validation.
	ErrBadELF = errors.New("kernel: malformed ELF executable")
	// ErrNoSuchFile names a missing file. kernel/fsys reports a missing
	// file with its own error value, not this sentinel.
	ErrNoSuchFile = errors.New("kernel: no such file")
	// ErrNoSuchChild is returned by wait() when the tid does not name a live
	// or not-yet-reaped child of the caller.
	ErrNoSuchChild = errors.New("kernel: no such child process")
	// ErrUnknownSyscall indicates a syscall number outside the dispatch
	// table. Unreachable from a valid libc; treated as a kernel bug.
	ErrUnknownSyscall = errors.New("kernel: unknown syscall number")
	// ErrCorruptFrameTable indicates an invariant violation between the
	// frame table and a thread's page directory.
	ErrCorruptFrameTable = errors.New("kernel: corrupt frame table")
	// ErrStackOverflow indicates a thread's stack sentinel was clobbered.
	ErrStackOverflow = errors.New("kernel: thread stack overflow detected")
	// ErrLockHeldByDeadThread indicates a held_locks invariant was violated
	// by a thread tearing down while still recorded as a lock holder.
	ErrLockHeldByDeadThread = errors.New("kernel: lock held by dead thread")
	// ErrReentrantLock indicates a thread attempted to acquire a lock it
	// already holds; locks are not reentrant.
	ErrReentrantLock = errors.New("kernel: lock is not reentrant")
	// ErrNotLoopThread indicates a scheduler suspension point was invoked
	// from a goroutine other than the one currently holding the CPU baton.
	ErrNotLoopThread = errors.New("kernel: suspension point called off the scheduling thread")
)

// Wrap attaches message context to cause while preserving errors.Is/As
// compatibility with the wrapped sentinel.
func Wrap(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}

// Fault carries a sentinel error plus structured context for a single
// failure site: the thread and, where relevant, the address or syscall
// number involved.
type Fault struct {
	Err      error
	ThreadID uint64
	Addr     uintptr
	Syscall  int
	Context  string
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.Context != "" {
		return fmt.Sprintf("%s: %s", f.Context, f.Err)
	}
	return f.Err.Error()
}

// Unwrap exposes the underlying sentinel for errors.Is/As.
func (f *Fault) Unwrap() error {
	return f.Err
}

// NewFault builds a Fault around a sentinel error with optional context.
func NewFault(err error, context string) *Fault {
	return &Fault{Err: err, Context: context}
}

// Panic is the kernel's single panic choke point: every unrecoverable
// condition (an invariant violation, not an ordinary user-triggered
// error) should route through here rather than calling panic directly,
// so every kernel panic leaves the same emergency-level structured
// record before it unwinds. log may be nil in contexts with no logger
// wired up yet (e.g. very early boot).
func Panic(log *klog.Logger, context string, err error) {
	if log != nil {
		log.Emerg().Field("error", err.Error()).Log(context)
	}
	panic(Wrap(context, err))
}
