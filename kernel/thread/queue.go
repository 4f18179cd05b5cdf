package thread

import "container/heap"

// ReadyQueue and SleepQueue are the two ordered collections named in the
// data model. Both are grounded on the reference reactor's timerHeap
// (container/heap.Interface over a slice, min-heap by a single ordering
// key); unlike the reactor's timer heap they are never touched by more
// than one goroutine at a time, because the whole kernel enforces a single
// CPU baton (kernel/sched), so no mutex guards these
// structures; the "interrupts disabled" requirement of the data model is
// satisfied by construction rather than by a lock.

// readyHeapImpl orders by effective priority descending, ties broken by
// insertion sequence ascending (FIFO among equal priorities), matching
// "ordered by effective priority descending (insertion-ordered ordered
// insert)".
type readyHeapImpl []*TCB

func (h readyHeapImpl) Len() int { return len(h) }
func (h readyHeapImpl) Less(i, j int) bool {
	pi, pj := h[i].EffectivePriority(), h[j].EffectivePriority()
	if pi != pj {
		return pi > pj
	}
	return h[i].seq < h[j].seq
}
func (h readyHeapImpl) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].queueIndex = i
	h[j].queueIndex = j
}
func (h *readyHeapImpl) Push(x any) {
	t := x.(*TCB)
	t.queueIndex = len(*h)
	*h = append(*h, t)
}
func (h *readyHeapImpl) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.queueIndex = -1
	*h = old[:n-1]
	return t
}

// ReadyQueue is the scheduler's ready list. It is also reused, unmodified,
// as the waiter list inside kernel/sync's Semaphore: "ordered by effective
// priority descending, ties broken by FIFO insertion" is exactly the
// ordering both the ready list and a semaphore's waiters need.
type ReadyQueue struct {
	h readyHeapImpl
	// pushed counts insertions; Push stamps each thread's seq with it so
	// equal priorities are served in insertion order.
	pushed uint64
}

// PriorityQueue is an alias for ReadyQueue, used where the "ready list"
// name would be misleading (e.g. a lock or semaphore's waiter list).
type PriorityQueue = ReadyQueue

// NewPriorityQueue returns an empty priority-ordered queue.
func NewPriorityQueue() *PriorityQueue { return NewReadyQueue() }

// NewReadyQueue returns an empty ready queue.
func NewReadyQueue() *ReadyQueue {
	q := &ReadyQueue{}
	heap.Init(&q.h)
	return q
}

// Push enqueues t as ready. t must not already be in a queue.
func (q *ReadyQueue) Push(t *TCB) {
	q.pushed++
	t.seq = q.pushed
	heap.Push(&q.h, t)
}

// Pop removes and returns the highest-effective-priority thread, or nil if
// empty.
func (q *ReadyQueue) Pop() *TCB {
	if q.h.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.h).(*TCB)
}

// Peek returns the highest-effective-priority thread without removing it,
// or nil if empty.
func (q *ReadyQueue) Peek() *TCB {
	if q.h.Len() == 0 {
		return nil
	}
	return q.h[0]
}

// Len returns the number of ready threads.
func (q *ReadyQueue) Len() int { return q.h.Len() }

// Fix re-establishes heap order for t after its effective priority changed
// in place (e.g. a donation or set_priority), without a remove/reinsert.
func (q *ReadyQueue) Fix(t *TCB) {
	if t.queueIndex >= 0 && t.queueIndex < q.h.Len() && q.h[t.queueIndex] == t {
		heap.Fix(&q.h, t.queueIndex)
	}
}

// Reorder re-establishes heap order after many entries' priorities changed
// at once (e.g. an MLFQ all-priorities recompute), cheaper than calling Fix
// once per affected thread.
func (q *ReadyQueue) Reorder() {
	heap.Init(&q.h)
}

// sleepHeapImpl orders by wakeup tick ascending, ties broken by insertion
// sequence, so the sleep ticker can stop at the first not-yet-due thread.
type sleepHeapImpl []*TCB

func (h sleepHeapImpl) Len() int { return len(h) }
func (h sleepHeapImpl) Less(i, j int) bool {
	if h[i].WakeupTick != h[j].WakeupTick {
		return h[i].WakeupTick < h[j].WakeupTick
	}
	return h[i].seq < h[j].seq
}
func (h sleepHeapImpl) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].queueIndex = i
	h[j].queueIndex = j
}
func (h *sleepHeapImpl) Push(x any) {
	t := x.(*TCB)
	t.queueIndex = len(*h)
	*h = append(*h, t)
}
func (h *sleepHeapImpl) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.queueIndex = -1
	*h = old[:n-1]
	return t
}

// SleepQueue is the global sleeping-thread list, ordered by wakeup_tick
// ascending per §4.3.
type SleepQueue struct {
	h sleepHeapImpl
	// pushed counts insertions; Push stamps each thread's seq with it.
	pushed uint64
}

// NewSleepQueue returns an empty sleep queue.
func NewSleepQueue() *SleepQueue {
	q := &SleepQueue{}
	heap.Init(&q.h)
	return q
}

// Push enqueues t to sleep until t.WakeupTick.
func (q *SleepQueue) Push(t *TCB) {
	q.pushed++
	t.seq = q.pushed
	heap.Push(&q.h, t)
}

// Peek returns the soonest-to-wake thread without removing it, or nil if
// empty.
func (q *SleepQueue) Peek() *TCB {
	if q.h.Len() == 0 {
		return nil
	}
	return q.h[0]
}

// PopDue removes and returns every thread whose WakeupTick is <= now,
// stopping at the first thread still in the future, per §4.3's "sorted
// list, iteration stops at the first future wake-tick".
func (q *SleepQueue) PopDue(now uint64) []*TCB {
	var due []*TCB
	for q.h.Len() > 0 && q.h[0].WakeupTick <= now {
		due = append(due, heap.Pop(&q.h).(*TCB))
	}
	return due
}

// Len returns the number of sleeping threads.
func (q *SleepQueue) Len() int { return q.h.Len() }
