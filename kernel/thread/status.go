package thread

import "sync/atomic"

// Status is the lifecycle state of a thread control block. The ordering of
// the constants has no semantic meaning beyond readability; unlike the
// reference reactor's LoopState, nothing here depends on numeric ordering
// for backward compatibility, since this is a new system.
type Status uint32

const (
	// StatusReady means the thread sits in the scheduler's ready queue,
	// eligible to be picked as the next thread to run.
	StatusReady Status = iota
	// StatusRunning means the thread currently holds the CPU baton.
	StatusRunning
	// StatusBlocked means the thread is waiting on a semaphore, lock, or
	// condition variable and will be unblocked by some other thread.
	StatusBlocked
	// StatusSleeping means the thread is parked in the sleep queue until a
	// wakeup tick elapses.
	StatusSleeping
	// StatusDying means the thread has exited and is waiting for its stack
	// page to be reclaimed by the next thread scheduled after it.
	StatusDying
)

// String renders the status for logging.
func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusBlocked:
		return "blocked"
	case StatusSleeping:
		return "sleeping"
	case StatusDying:
		return "dying"
	default:
		return "unknown"
	}
}

// statusBox is a lock-free holder for a thread's status, following the
// reference reactor's FastState: pure atomic CAS, no mutex, cache-line
// padded to avoid false sharing between threads that poll each other's
// status (e.g. the scheduler inspecting a candidate while it still runs).
type statusBox struct { // betteralign:ignore
	_ [64]byte
	v atomic.Uint32
	_ [60]byte
}

func newStatusBox(initial Status) *statusBox {
	b := &statusBox{}
	b.v.Store(uint32(initial))
	return b
}

func (b *statusBox) Load() Status {
	return Status(b.v.Load())
}

func (b *statusBox) Store(s Status) {
	b.v.Store(uint32(s))
}

func (b *statusBox) CompareAndSwap(from, to Status) bool {
	return b.v.CompareAndSwap(uint32(from), uint32(to))
}
