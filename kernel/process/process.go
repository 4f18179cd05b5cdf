// Package process implements the parent/child process record, the
// double-handshake load and exit rendezvous of §4.5/§4.6, and the
// per-process file-descriptor table. It sits above kernel/sync and
// kernel/thread and is driven entirely through a kernel/sched.Scheduler, so
// that a process's lifecycle transitions are exactly as deterministic and
// single-baton-ordered as thread scheduling itself, grounded on the
// settle-and-notify shape of the reference reactor's promise.go, but
// rebuilt on the kernel's own Lock/CondVar rather than Go channels, since
// every suspension in this kernel must go through the scheduler.
package process

import (
	"github.com/kernelkit/pintos-go/kernel/kerrors"
	"github.com/kernelkit/pintos-go/kernel/sync"
	"github.com/kernelkit/pintos-go/kernel/thread"
)

// LoadResult is reported by a child, exactly once, to end the creator's
// wait in Exec.
type LoadResult struct {
	OK  bool
	Err error
}

// Process is a user process's record: one TCB runs it, but the Process
// outlives transient thread state that must survive for a parent to
// observe (exit status) after the child thread itself has been reaped.
type Process struct {
	PID  uint64
	name string

	mu   *sync.Lock
	cond *sync.CondVar

	loadDone   bool
	loadResult LoadResult

	exited     bool
	exitStatus int32
	exitAcked  bool
	// abandoned is set once this process's parent has itself torn down
	// without ever calling Wait on it, so Exit knows no acknowledging
	// Wait can arrive and must stop waiting for one.
	abandoned bool

	parent   *Process
	children []*Process

	fdTable *FDTable

	// exec records the executable this process runs. Exit calls its Close,
	// which only decrements an open-count; no file handle is held here.
	exec *OpenExecutable
}

// Name implements thread.Process.
func (p *Process) Name() string { return p.name }

// OpenExecutable is a reference count of the processes running the
// executable at Path. It holds no file handle: it neither denies writes
// to the file nor closes the file or re-allows writes when the count
// reaches zero (kernel/machine denies writes on the file handle it opens
// at load time and does not re-allow them).
type OpenExecutable struct {
	Path      string
	openCount int
}

// NewOpenExecutable returns a record for path with an open-count of one. It
// does not open the file. The caller owns calling Close exactly once per
// process that references it.
func NewOpenExecutable(path string) *OpenExecutable {
	return &OpenExecutable{Path: path, openCount: 1}
}

// Retain records an additional process now holding this executable open
// (never happens in this kernel, since each process loads its own image,
// but kept for symmetry with Close and the refcounted executable file).
func (e *OpenExecutable) Retain() { e.openCount++ }

// Close releases one reference and reports whether the count has reached
// zero. It touches no file.
func (e *OpenExecutable) Close() bool {
	e.openCount--
	return e.openCount <= 0
}

// New creates a process record for a freshly created child, not yet
// load-acknowledged. The caller (kernel/machine) is responsible for
// eventually calling ReportLoad.
func New(pid uint64, name string, parent *Process) *Process {
	p := &Process{
		PID:     pid,
		name:    name,
		mu:      sync.NewLock(),
		cond:    sync.NewCondVar(),
		parent:  parent,
		fdTable: NewFDTable(),
	}
	if parent != nil {
		parent.children = append(parent.children, p)
	}
	return p
}

// ReportLoad is called once by the child thread itself after attempting to
// load its executable image; it wakes the creator blocked in
// WaitForLoad.
func (p *Process) ReportLoad(sched sync.Scheduler, ok bool, err error) {
	mustAcquire(sched, p.mu)
	defer p.mu.Release(sched)

	if p.loadDone {
		return
	}
	p.loadDone = true
	p.loadResult = LoadResult{OK: ok, Err: err}
	p.cond.Broadcast(sched)
}

// WaitForLoad blocks the calling (creator) thread until the child reports
// load success or failure, per §4.5.
func (p *Process) WaitForLoad(sched sync.Scheduler) LoadResult {
	mustAcquire(sched, p.mu)
	defer p.mu.Release(sched)

	for !p.loadDone {
		p.cond.Wait(sched, p.mu)
	}
	return p.loadResult
}

// Exit implements §4.6: sets exit_status, broadcasts waiters, then blocks
// until some parent acknowledges having read it (so the TCB backing this
// process is never torn down before its exit status has actually been
// observed), unless the process is abandoned first, either because it
// never had a parent or because its parent tore down (see abandonChildren)
// without ever calling Wait on it. Either way, no acknowledging Wait can
// ever arrive, so Exit stops waiting for one and tears down its own
// resources instead of blocking forever.
func (p *Process) Exit(sched sync.Scheduler, status int32) {
	mustAcquire(sched, p.mu)

	p.exitStatus = status
	p.exited = true
	p.cond.Broadcast(sched)

	if p.parent != nil {
		for !p.exitAcked && !p.abandoned {
			p.cond.Wait(sched, p.mu)
		}
	}

	p.mu.Release(sched)

	p.abandonChildren(sched)
	p.closeAllFDs()
	p.closeExecutable()
	p.parent = nil // removed from the parent's children list, see Wait
}

// abandonChildren marks every still-live child this process never waited
// on as abandoned, so each child's own Exit, which may currently be
// blocked waiting for an acknowledging Wait that can now never come since
// this process is tearing down, returns instead of leaking its goroutine
// forever. Matches process_exit's orphan-on-parent-death behaviour: an
// orphan simply runs to completion and its exit status is discarded.
func (p *Process) abandonChildren(sched sync.Scheduler) {
	for _, c := range p.children {
		mustAcquire(sched, c.mu)
		c.abandoned = true
		c.cond.Broadcast(sched)
		c.mu.Release(sched)
	}
	p.children = nil
}

// Wait implements wait(child_tid): scans the caller's live children for
// childPID; returns (-1, false) if not present or already waited on. On a
// present child it blocks until the child has called Exit, consumes the
// child from the children list, acknowledges the exit so the child's Exit
// can return, and reports the exit status.
func (p *Process) Wait(sched sync.Scheduler, childPID uint64) (int32, bool) {
	idx := -1
	for i, c := range p.children {
		if c.PID == childPID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return -1, false
	}
	child := p.children[idx]
	p.children = append(p.children[:idx], p.children[idx+1:]...)

	mustAcquire(sched, child.mu)
	for !child.exited {
		child.cond.Wait(sched, child.mu)
	}
	status := child.exitStatus
	child.exitAcked = true
	child.cond.Broadcast(sched)
	child.mu.Release(sched)

	return status, true
}

// ExitStatus reports the process's exit status and whether it has exited
// yet, without going through the parent/child Wait rendezvous. Intended
// for a caller with no parent relationship to the process (e.g. the
// machine that spawned an unparented root process); code with an actual
// parent-child relationship should use Wait instead, which also performs
// the handshake that lets the child's Exit return.
func (p *Process) ExitStatus() (status int32, exited bool) {
	return p.exitStatus, p.exited
}

// FDTable returns the process's file-descriptor table.
func (p *Process) FDTable() *FDTable { return p.fdTable }

func (p *Process) closeAllFDs() {
	p.fdTable.CloseAll()
}

func (p *Process) closeExecutable() {
	if p.exec != nil && p.exec.Close() {
		p.exec = nil
	}
}

// SetExecutable records the executable handle this process holds open for
// its own lifetime (write-denied per §4.5).
func (p *Process) SetExecutable(e *OpenExecutable) { p.exec = e }

func mustAcquire(sched sync.Scheduler, l *sync.Lock) {
	if err := l.Acquire(sched); err != nil {
		// Reentrant acquire by the lifecycle lock is a programming error:
		// it can only mean a thread is calling Exit/Wait/ReportLoad
		// recursively against itself.
		panic(kerrors.Wrap("process: lifecycle lock", err))
	}
}

// TCBProcess narrows Process down to the view kernel/thread.TCB stores.
var _ thread.Process = (*Process)(nil)
