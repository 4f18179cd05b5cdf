// Package sync implements the three synchronisation primitives of the data
// model: Semaphore, Lock (with priority donation), and CondVar, on top of
// a minimal Scheduler interface, so this package never imports kernel/sched
// directly and the two packages can be developed and tested independently.
package sync

import "github.com/kernelkit/pintos-go/kernel/thread"

// Scheduler is the narrow view of kernel/sched.Scheduler that the
// synchronisation primitives need: who is currently running, how to block
// and unblock a specific thread, how to voluntarily yield, whether
// donation is active in the current scheduling mode, and how to repair a
// ready thread's heap position after its effective priority changes out
// from under it.
type Scheduler interface {
	// CurrentThread returns the thread presently holding the CPU baton.
	CurrentThread() *thread.TCB

	// Block transitions t to StatusBlocked and yields the baton; it must
	// only be called with t == CurrentThread(). It returns once some other
	// thread calls Unblock(t).
	Block(t *thread.TCB)

	// Unblock transitions t (currently blocked) to ready and enqueues it.
	// May be called by any thread holding the baton, not just t itself.
	Unblock(t *thread.TCB)

	// Yield gives up the baton without blocking; the current thread is
	// re-enqueued as ready and may be rescheduled immediately if no other
	// ready thread outranks it.
	Yield()

	// DonationEnabled reports whether the scheduler is in priority mode
	// (true) or MLFQ mode (false); §4.4 disables donation under MLFQ.
	DonationEnabled() bool

	// FixReadyPosition repairs t's position in the ready heap after a
	// donation changed its effective priority while it was already
	// enqueued as ready. No-op if t is not currently ready.
	FixReadyPosition(t *thread.TCB)
}
