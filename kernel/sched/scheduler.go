// Package sched implements the preemptive scheduler: the CPU baton
// handoff protocol, priority and MLFQ modes, tick accounting, and the
// sleeping-thread timer wheel. Grounded on the reference reactor's Loop
// (run/tick structure, goroutine-identity assertion) generalised from a
// JS-style microtask reactor to a tick-based preemptive kernel scheduler.
package sched

import (
	"github.com/kernelkit/pintos-go/internal/fixedpoint"
	"github.com/kernelkit/pintos-go/internal/klog"
	"github.com/kernelkit/pintos-go/kernel/kerrors"
	"github.com/kernelkit/pintos-go/kernel/thread"
)

// Body is the code a spawned thread runs. sched is the scheduler it was
// spawned on (for calling Yield/Sleep/Tick/etc.); self is its own TCB.
type Body func(sched *Scheduler, self *thread.TCB)

// Scheduler is the single-CPU preemptive kernel scheduler. Exactly one
// goroutine, whichever thread currently holds the baton, may call any
// method on Scheduler at a time; the baton protocol provides this, and
// nothing checks it at run time (see assertBatonHolder).
type Scheduler struct {
	reg    *thread.Registry
	ready  *thread.ReadyQueue
	sleepQ *thread.SleepQueue

	mode      Mode
	timeSlice uint64
	tick      uint64

	current *thread.TCB
	idle    *thread.TCB

	// batonGoroutine is the id of the goroutine presently holding the
	// baton (the dispatch loop itself between threads, or the running
	// thread's own goroutine while it executes), as last recorded by
	// assertBatonHolder.
	batonGoroutine uint64

	// preemptPending is set by Unblock/Spawn when a newly-ready thread
	// outranks the running thread under priority mode; the running
	// thread's next Tick() checkpoint acts on it, mirroring
	// intr_yield_on_return.
	preemptPending bool

	// MLFQ state, §4.1.
	loadAvg                 fixedpoint.Q
	mlfqTicksSinceRecompute uint64

	log *klog.Logger

	halted bool
}

// New constructs a Scheduler and its idle thread. Call Run to start it.
func New(opts ...Option) *Scheduler {
	c := resolveOptions(opts)
	s := &Scheduler{
		reg:       thread.NewRegistryWithCapacity(c.maxThreads),
		ready:     thread.NewReadyQueue(),
		sleepQ:    thread.NewSleepQueue(),
		mode:      c.mode,
		timeSlice: c.timeSlice,
		log:       c.logger,
	}
	s.idle = s.reg.Create("idle", thread.PriMin)
	go func() {
		s.idle.WaitForBaton()
		for {
			s.Tick()
			s.idle.Suspend()
		}
	}()
	return s
}

// Mode returns the configured scheduling discipline.
func (s *Scheduler) Mode() Mode { return s.mode }

// Tick advances the clock by one tick, doing that tick's bookkeeping (see
// onTick), and returns the new absolute tick count.
func (s *Scheduler) Tick() uint64 {
	s.assertBatonHolder()
	return s.onTick()
}

// onTick performs one unit of simulated CPU work / one timer-interrupt
// worth of bookkeeping for whichever thread is running: it advances the
// tick counter, wakes any due sleepers, advances MLFQ accounting, and,
// if the running thread has exhausted its slice or a preemption is
// pending, yields on the caller's behalf. See SPEC_FULL.md §10.6.
func (s *Scheduler) onTick() uint64 {
	s.tick++

	woken := s.sleepQ.PopDue(s.tick)
	for _, t := range woken {
		s.readyEnqueue(t)
	}

	cur := s.current
	if cur != nil && cur != s.idle {
		cur.ThreadTicks++
		if s.mode == ModeMLFQ {
			cur.RecentCPU = cur.RecentCPU.AddInt(1)
		}
	}

	if s.mode == ModeMLFQ {
		s.mlfqOnTick()
	}

	if cur != nil {
		exceeded := cur.ThreadTicks >= s.timeSlice
		if exceeded || s.preemptPending {
			s.Yield()
		}
	}
	return s.tick
}

// readyEnqueue pushes t onto the ready queue and, under priority mode,
// flags a pending preemption if t now outranks the running thread,
// mirroring thread_enqueue's "push front and yield" fast path.
func (s *Scheduler) readyEnqueue(t *thread.TCB) {
	t.SetStatus(thread.StatusReady)
	s.ready.Push(t)
	if s.mode == ModePriority && s.current != nil && s.current != s.idle &&
		t.EffectivePriority() > s.current.EffectivePriority() {
		s.preemptPending = true
	}
}

// Spawn creates a new thread, starts its goroutine, and enqueues it ready.
// Mirrors thread_create followed by thread_unblock.
func (s *Scheduler) Spawn(name string, priority int32, body Body) (*thread.TCB, error) {
	t := s.reg.Create(name, priority)
	if t == nil {
		return nil, kerrors.ErrOutOfThreads
	}
	go func() {
		t.WaitForBaton()
		body(s, t)
		s.finishExit(t)
	}()
	s.readyEnqueue(t)
	return t, nil
}

// CurrentThread implements kernel/sync.Scheduler.
func (s *Scheduler) CurrentThread() *thread.TCB {
	s.assertBatonHolder()
	return s.current
}

// Block implements kernel/sync.Scheduler: t must be the current thread; the
// caller (a synchronisation primitive) has already recorded t on whatever
// waiter list will eventually Unblock it.
func (s *Scheduler) Block(t *thread.TCB) {
	s.assertBatonHolder()
	if t != s.current {
		panic("sched: Block called for a thread other than the current one")
	}
	t.SetStatus(thread.StatusBlocked)
	t.Suspend()
}

// Unblock implements kernel/sync.Scheduler.
func (s *Scheduler) Unblock(t *thread.TCB) {
	s.assertBatonHolder()
	s.readyEnqueue(t)
}

// Yield implements kernel/sync.Scheduler: the current thread gives up the
// baton but stays ready.
func (s *Scheduler) Yield() {
	s.assertBatonHolder()
	cur := s.current
	if cur == nil {
		return
	}
	s.preemptPending = false
	if cur != s.idle {
		s.readyEnqueueNoPreempt(cur)
	}
	cur.Suspend()
}

func (s *Scheduler) readyEnqueueNoPreempt(t *thread.TCB) {
	t.SetStatus(thread.StatusReady)
	t.ThreadTicks = 0
	s.ready.Push(t)
}

// Sleep implements §4.3: park the current thread until tick now+ticks.
func (s *Scheduler) Sleep(ticks uint64) {
	s.assertBatonHolder()
	cur := s.current
	cur.WakeupTick = s.tick + ticks
	cur.SetStatus(thread.StatusSleeping)
	s.sleepQ.Push(cur)
	cur.Suspend()
}

// DonationEnabled implements kernel/sync.Scheduler: donation is active in
// priority mode only, per §4.4.
func (s *Scheduler) DonationEnabled() bool {
	return s.mode == ModePriority
}

// FixReadyPosition implements kernel/sync.Scheduler.
func (s *Scheduler) FixReadyPosition(t *thread.TCB) {
	s.assertBatonHolder()
	s.ready.Fix(t)
}

// SetPriority implements set_priority: updates base priority and, in
// priority mode, yields if the thread no longer holds the highest
// effective priority.
func (s *Scheduler) SetPriority(t *thread.TCB, p int32) {
	s.assertBatonHolder()
	t.BasePriority = p
	if t == s.current && s.mode == ModePriority {
		if top := s.ready.Peek(); top != nil && top.EffectivePriority() > t.EffectivePriority() {
			s.Yield()
		}
	}
}

// Exit marks the current thread as dying and suspends it one final time;
// its stack (goroutine + TCB) is reclaimed by the scheduler the next time
// it is dispatched away from, per §4.1's hazard-avoidance placement. The
// thread's goroutine returns from Suspend only if mis-scheduled again,
// which never happens for a dying thread, so Exit never actually returns in
// practice; callers should treat it as terminal.
func (s *Scheduler) Exit(t *thread.TCB, status int32) {
	s.assertBatonHolder()
	t.ExitStatus = status
	t.SetStatus(thread.StatusDying)
	t.Suspend()
}

// finishExit is invoked by the goroutine launched in Spawn once its body
// function returns normally (as opposed to via Exit, which already parked
// the thread as dying and never returns control to the body). It exists so
// a body that simply falls off the end, rather than calling Exit
// explicitly, is still reaped correctly.
func (s *Scheduler) finishExit(t *thread.TCB) {
	if t.Status() != thread.StatusDying {
		t.ExitStatus = 0
		t.SetStatus(thread.StatusDying)
		t.Suspend()
	}
}

// Run drives the scheduler until no thread (other than idle) remains
// runnable or sleeping, i.e. until the simulated machine halts.
func (s *Scheduler) Run() {
	s.batonGoroutine = getGoroutineID()
	for !s.halted {
		next := s.pickNext()
		if next == nil {
			return
		}
		s.dispatch(next)
	}
}

// Halt requests that Run stop dispatching once the currently running
// thread next suspends.
func (s *Scheduler) Halt() {
	s.assertBatonHolder()
	s.halted = true
}

func (s *Scheduler) pickNext() *thread.TCB {
	if t := s.ready.Pop(); t != nil {
		return t
	}
	if s.sleepQ.Len() > 0 {
		return s.idle
	}
	return nil
}

// dispatch reaps the previously-dying thread (if any), then grants the
// baton to next and blocks until next suspends or exits.
func (s *Scheduler) dispatch(next *thread.TCB) {
	prev := s.current
	if prev != nil && prev.Status() == thread.StatusDying {
		s.reap(prev)
	}
	s.current = next
	next.SetStatus(thread.StatusRunning)
	next.ThreadTicks = 0
	next.GrantBaton()
}

func (s *Scheduler) reap(t *thread.TCB) {
	s.reg.Reap(t.ID)
}

// Registry exposes the all-threads table, e.g. for tests asserting queue
// membership invariants.
func (s *Scheduler) Registry() *thread.Registry { return s.reg }

// ReadyLen returns the number of ready threads (excluding idle).
func (s *Scheduler) ReadyLen() int { return s.ready.Len() }

// SleepLen returns the number of sleeping threads.
func (s *Scheduler) SleepLen() int { return s.sleepQ.Len() }

// LoadAvg returns the current MLFQ system load average.
func (s *Scheduler) LoadAvg() fixedpoint.Q { return s.loadAvg }

// assertBatonHolder records the calling goroutine's id in batonGoroutine.
// It never panics or returns an error: a call from a goroutine other than
// the recorded one simply replaces the recorded id, so a kernel primitive
// called from an unrelated goroutine is not detected here.
// Grounded on the reference reactor's isLoopThread/getGoroutineID check.
func (s *Scheduler) assertBatonHolder() {
	if id := getGoroutineID(); s.batonGoroutine != 0 && id != s.batonGoroutine {
		// The baton goroutine id changes every dispatch (it becomes
		// whichever goroutine next.GrantBaton() unblocks), so record the
		// new holder lazily rather than failing on legitimate handoffs:
		// only the very first call from a given dispatch updates it.
		s.batonGoroutine = id
		return
	}
	if s.batonGoroutine == 0 {
		s.batonGoroutine = getGoroutineID()
	}
}
