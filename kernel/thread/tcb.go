// Package thread defines the thread control block and the ready/sleep
// queues and registry that the scheduler (kernel/sched) operates over. It
// deliberately knows nothing about locks, semaphores or processes beyond
// the narrow interfaces it needs to compute effective priority and carry an
// opaque process backreference; that keeps this package free of import
// cycles with kernel/sync and kernel/process.
package thread

import (
	"fmt"

	"github.com/kernelkit/pintos-go/internal/fixedpoint"
)

// Priority bounds, per the data model: base priority defaults to the
// midpoint of [PriMin, PriMax].
const (
	PriMin     int32 = 0
	PriMax     int32 = 63
	PriDefault int32 = 31

	// NiceMin and NiceMax bound the MLFQ nice value.
	NiceMin int32 = -20
	NiceMax int32 = 20
)

// LockHandle is the narrow view of a lock that a TCB needs in order to walk
// its held_locks list and compute effective priority. kernel/sync.Lock
// implements this.
type LockHandle interface {
	// EffectivePriority is the highest priority among threads currently
	// waiting to acquire this lock, or PriMin if none are waiting.
	EffectivePriority() int32
}

// Process is the narrow view of a process record a TCB carries for user
// threads; kernel/process.Process implements this. Kernel-only threads
// (idle, tests) leave this nil.
type Process interface {
	// Name is the short executable name, used in log lines and thread names.
	Name() string
}

// TCB is a thread control block. Exactly one TCB at a time may hold the CPU
// baton (see kernel/sched for the handoff protocol); all mutation of TCB
// fields other than the atomic status must happen only while the owning
// thread holds the baton, or before the thread has been enqueued at all.
type TCB struct {
	ID     uint64
	Name   string
	status *statusBox

	// BasePriority is set by thread_create/set_priority and never mutated
	// by donation; effective priority is computed on demand.
	BasePriority int32

	// HeldLocks is ordered by each lock's EffectivePriority descending, per
	// the data model. Donation cascades insert/remove here rather than
	// overwriting a cached priority field.
	HeldLocks []LockHandle

	// Blocker is the lock this thread is blocked acquiring, or nil.
	Blocker LockHandle

	// WakeupTick is the absolute tick at which a sleeping thread rejoins
	// the ready queue.
	WakeupTick uint64

	// Nice and RecentCPU are MLFQ-only fields.
	Nice      int32
	RecentCPU fixedpoint.Q

	// MLFQPriority is the last value computed for this thread by the MLFQ
	// recompute pass; ignored outside MLFQ mode.
	MLFQPriority int32

	// ThreadTicks counts ticks elapsed since this thread was last scheduled
	// to run; reset to 0 by the scheduler on each dispatch and compared
	// against TIME_SLICE.
	ThreadTicks uint64

	// Proc is non-nil for user-process threads.
	Proc Process

	// ExitStatus is set by Exit. A waiting parent reads the status from
	// its child's process record, not from here.
	ExitStatus int32

	// seq is the insertion sequence used to break priority ties FIFO; the
	// registry gives it an initial value at creation, and every
	// ReadyQueue.Push or SleepQueue.Push restamps it.
	seq uint64

	// queueIndex is maintained by container/heap for whichever queue (ready
	// or sleep) currently owns this TCB; -1 when not in a heap.
	queueIndex int

	// resume is sent on by the scheduler to hand this thread the baton;
	// the thread's goroutine blocks receiving on it.
	resume chan struct{}
	// yielded is sent on by the thread's goroutine when it gives the baton
	// back to the scheduler (via Yield, Block, Sleep, or exit).
	yielded chan struct{}

	exitOnce bool
}

// newTCB is unexported: only the registry may mint TCBs, so that id and seq
// allocation stays centralised (Open Question (b): duplicate ids are
// impossible because there is exactly one counter for the whole machine).
func newTCB(id, seq uint64, name string, priority int32) *TCB {
	if priority < PriMin || priority > PriMax {
		panic(fmt.Sprintf("thread: priority %d out of range [%d,%d]", priority, PriMin, PriMax))
	}
	return &TCB{
		ID:           id,
		Name:         name,
		status:       newStatusBox(StatusBlocked),
		BasePriority: priority,
		MLFQPriority: priority,
		seq:          seq,
		queueIndex:   -1,
		resume:       make(chan struct{}),
		yielded:      make(chan struct{}),
	}
}

// Status returns the thread's current lifecycle state.
func (t *TCB) Status() Status { return t.status.Load() }

// SetStatus atomically overwrites the status. Scheduler-internal; callers
// outside kernel/sched and kernel/thread should not call this directly.
func (t *TCB) SetStatus(s Status) { t.status.Store(s) }

// CompareAndSwapStatus is used by suspension points that must only
// transition from an expected prior status.
func (t *TCB) CompareAndSwapStatus(from, to Status) bool {
	return t.status.CompareAndSwap(from, to)
}

// EffectivePriority implements the invariant from the data model:
// max(base_priority, max over held_locks of L.EffectivePriority()).
func (t *TCB) EffectivePriority() int32 {
	p := t.BasePriority
	for _, l := range t.HeldLocks {
		if lp := l.EffectivePriority(); lp > p {
			p = lp
		}
	}
	return p
}

// Seq returns the sequence number stamped by the thread's most recent
// queue insertion, used only to break ties FIFO in the ready and sleep
// queues.
func (t *TCB) Seq() uint64 { return t.seq }

// AddHeldLock inserts l into HeldLocks keeping descending EffectivePriority
// order (insertion sort; held_locks per thread is small in practice).
func (t *TCB) AddHeldLock(l LockHandle) {
	p := l.EffectivePriority()
	i := 0
	for i < len(t.HeldLocks) && t.HeldLocks[i].EffectivePriority() >= p {
		i++
	}
	t.HeldLocks = append(t.HeldLocks, nil)
	copy(t.HeldLocks[i+1:], t.HeldLocks[i:])
	t.HeldLocks[i] = l
}

// RemoveHeldLock removes l from HeldLocks; no-op if absent.
func (t *TCB) RemoveHeldLock(l LockHandle) {
	for i, h := range t.HeldLocks {
		if h == l {
			t.HeldLocks = append(t.HeldLocks[:i], t.HeldLocks[i+1:]...)
			return
		}
	}
}

// GrantBaton hands the CPU baton to this thread and blocks the caller (the
// scheduler's dispatch loop) until the thread next suspends or exits.
func (t *TCB) GrantBaton() {
	t.resume <- struct{}{}
	<-t.yielded
}

// WaitForBaton is called once, from within the thread's own freshly
// started goroutine, before it runs any body code: it blocks until the
// scheduler first grants the baton via GrantBaton.
func (t *TCB) WaitForBaton() {
	<-t.resume
}

// Suspend is called from within the thread's own goroutine at every
// suspension point (block, yield, sleep, or any of the synchronisation
// primitives): it hands the baton back to the scheduler and then blocks
// until the scheduler grants it again via GrantBaton.
func (t *TCB) Suspend() {
	t.yielded <- struct{}{}
	<-t.resume
}
