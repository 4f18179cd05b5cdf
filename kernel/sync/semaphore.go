package sync

import "github.com/kernelkit/pintos-go/kernel/thread"

// Semaphore is a non-negative counter with an ordered waiter list,
// descending effective priority with FIFO tie-break, per §3/§4.4.
type Semaphore struct {
	value   int
	waiters *thread.PriorityQueue
}

// NewSemaphore returns a semaphore initialised to value.
func NewSemaphore(value int) *Semaphore {
	return &Semaphore{value: value, waiters: thread.NewPriorityQueue()}
}

// Down blocks the current thread while the counter is zero, then
// decrements it. Mirrors sema_down: interrupts (here: the CPU baton) stay
// with this call until either the counter was already positive or some
// other thread's Up unblocks this thread.
func (s *Semaphore) Down(sched Scheduler) {
	cur := sched.CurrentThread()
	// A plain "if" would suffice given the single-unblock-per-Up
	// invariant below, but the loop form matches the source's sema_down
	// defensively and costs nothing extra.
	for s.value == 0 {
		s.waiters.Push(cur)
		sched.Block(cur)
	}
	s.value--
}

// TryDown decrements and returns true if the counter is already positive,
// without blocking. Not part of the source's API but convenient for
// non-blocking probes in tests; never used by kernel code paths that must
// match sema_down's exact blocking behaviour.
func (s *Semaphore) TryDown() bool {
	if s.value == 0 {
		return false
	}
	s.value--
	return true
}

// Up increments the counter and, if any thread is waiting, unblocks the
// highest-effective-priority one.
func (s *Semaphore) Up(sched Scheduler) {
	s.value++
	if w := s.waiters.Pop(); w != nil {
		sched.Unblock(w)
	}
}

// Value returns the current counter value, for diagnostics and tests.
func (s *Semaphore) Value() int { return s.value }

// highestWaiterPriority returns the effective priority of the
// highest-priority waiter, or thread.PriMin if none are waiting. This is
// the quantity a Lock reports as its own EffectivePriority (§3: "a lock's
// effective priority is the max priority waiting on its semaphore").
func (s *Semaphore) highestWaiterPriority() int32 {
	if w := s.waiters.Peek(); w != nil {
		return w.EffectivePriority()
	}
	return thread.PriMin
}

// WaiterCount returns the number of threads currently blocked on this
// semaphore.
func (s *Semaphore) WaiterCount() int { return s.waiters.Len() }
