package sync

import (
	"github.com/kernelkit/pintos-go/kernel/kerrors"
	"github.com/kernelkit/pintos-go/kernel/thread"
)

// Lock is a non-reentrant mutex with priority donation, built on an
// internal binary Semaphore, per §3/§4.2/§4.4.
type Lock struct {
	sema   *Semaphore
	holder *thread.TCB
}

// compile-time assertion that Lock satisfies thread.LockHandle.
var _ thread.LockHandle = (*Lock)(nil)

// NewLock returns an unheld lock.
func NewLock() *Lock {
	return &Lock{sema: NewSemaphore(1)}
}

// EffectivePriority implements thread.LockHandle: the highest priority
// currently waiting to acquire this lock.
func (l *Lock) EffectivePriority() int32 {
	return l.sema.highestWaiterPriority()
}

// Holder returns the thread currently holding the lock, or nil.
func (l *Lock) Holder() *thread.TCB { return l.holder }

// Acquire performs priority donation (when enabled) then blocks until the
// lock is free, per §4.2/§4.4.
func (l *Lock) Acquire(sched Scheduler) error {
	cur := sched.CurrentThread()
	if l.holder == cur {
		return kerrors.ErrReentrantLock
	}

	// sema_down inlined: cur must already be among the waiters when the
	// donation is propagated, since the lock's effective priority is read
	// from that list.
	for l.sema.value == 0 {
		l.sema.waiters.Push(cur)
		if sched.DonationEnabled() {
			cur.Blocker = l
			l.propagateDonation(sched)
		}
		sched.Block(cur)
	}
	l.sema.value--

	cur.Blocker = nil
	l.holder = cur
	cur.AddHeldLock(l)
	return nil
}

// TryAcquire attempts to acquire the lock without blocking or donating.
// Returns false if already held.
func (l *Lock) TryAcquire(sched Scheduler) bool {
	if !l.sema.TryDown() {
		return false
	}
	cur := sched.CurrentThread()
	l.holder = cur
	cur.AddHeldLock(l)
	return true
}

// Release hands the lock to the highest-priority waiter, if any, and
// yields if that waiter now outranks the releaser's own (post-release)
// effective priority, per §4.2's release rule.
func (l *Lock) Release(sched Scheduler) {
	cur := sched.CurrentThread()
	l.holder = nil
	cur.RemoveHeldLock(l)

	newOwnPriority := cur.EffectivePriority()
	hadWaiter := l.sema.WaiterCount() > 0
	nextWaiterPriority := l.sema.highestWaiterPriority()

	l.sema.Up(sched)

	if hadWaiter && nextWaiterPriority > newOwnPriority {
		// the thread we just unblocked outranks us; give it the CPU now
		// rather than waiting for the next tick.
		sched.Yield()
	}
}

// propagateDonation walks the hold graph from this lock's holder upward,
// following whichever lock each intermediate holder is itself blocked on.
// Because TCB.EffectivePriority and Lock.EffectivePriority are computed on
// demand by walking live data (never cached), every thread along the chain
// already "sees" the new donation the instant it asks; what can go stale
// is a holder's position in a binary heap (the ready heap, or the waiter
// heap of the lock it is itself blocked on), so this walk repairs the
// waiter-heap position of each blocked link and keeps walking to that
// lock's holder, and repairs the ready-heap position of the first link
// that is presently ready. The walk
// terminates because the hold graph is acyclic in a correct program (§4.2).
func (l *Lock) propagateDonation(sched Scheduler) {
	h := l.holder
	for h != nil {
		switch h.Status() {
		case thread.StatusReady:
			sched.FixReadyPosition(h)
			return
		case thread.StatusBlocked:
			next, ok := h.Blocker.(*Lock)
			if !ok || next == nil {
				return
			}
			next.sema.waiters.Fix(h)
			h = next.holder
		default:
			// running, sleeping, or dying: nothing further to fix here.
			return
		}
	}
}
