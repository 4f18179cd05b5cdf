package sync

// CondVar is a condition variable whose three operations must all be
// called with the associated monitor Lock held, per §4.4.
type CondVar struct {
	waiters []*Semaphore
}

// NewCondVar returns an empty condition variable.
func NewCondVar() *CondVar {
	return &CondVar{}
}

// Wait creates a private one-shot semaphore, enqueues it, releases mon,
// blocks on the private semaphore, then re-acquires mon before returning.
func (c *CondVar) Wait(sched Scheduler, mon *Lock) {
	waiter := NewSemaphore(0)
	c.waiters = append(c.waiters, waiter)
	mon.Release(sched)
	waiter.Down(sched)
	mon.Acquire(sched)
}

// Signal wakes the longest-waiting blocked thread, if any. No-op if no
// thread is waiting.
func (c *CondVar) Signal(sched Scheduler) {
	if len(c.waiters) == 0 {
		return
	}
	w := c.waiters[0]
	c.waiters = c.waiters[1:]
	w.Up(sched)
}

// Broadcast wakes every waiting thread.
func (c *CondVar) Broadcast(sched Scheduler) {
	for len(c.waiters) > 0 {
		c.Signal(sched)
	}
}
