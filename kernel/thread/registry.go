package thread

import "sync"

// Registry is the all-threads table: it allocates monotonic thread ids
// (closing Open Question (b): two live threads can never share an id),
// and lets the scheduler or a test harness look a thread up by id in O(1)
// rather than the original kernel's linear scan of all_list.
//
// Grounded on the reference reactor's registry.go, simplified: we keep
// strong references rather than weak pointers, because a TCB's lifetime is
// exactly the thread's lifetime and there is no garbage-collection-driven
// cleanup concern; Reap removes it explicitly once the thread has died.
type Registry struct {
	mu      sync.Mutex
	nextID  uint64
	nextSeq uint64
	byID    map[uint64]*TCB
	maxLive int
}

// DefaultMaxThreads bounds the number of simultaneously live threads, standing
// in for the original kernel's one-page-per-thread-stack allocation out of a
// fixed-size physical pool: a real resource exhaustion, not a manufactured
// one. kernel/sched.WithMaxThreads overrides it.
const DefaultMaxThreads = 4096

// NewRegistry returns an empty registry whose first allocated id is 1.
func NewRegistry() *Registry {
	return NewRegistryWithCapacity(DefaultMaxThreads)
}

// NewRegistryWithCapacity is NewRegistry with an explicit live-thread cap.
func NewRegistryWithCapacity(maxLive int) *Registry {
	return &Registry{
		nextID:  1,
		byID:    make(map[uint64]*TCB),
		maxLive: maxLive,
	}
}

// Create allocates a new TCB with a fresh id, registers it, and returns it, or
// returns nil if the live-thread cap has been reached. The TCB starts in
// StatusBlocked; the caller (kernel/sched.Spawn) is responsible for
// transitioning it to ready once its goroutine is primed and for actually
// starting that goroutine.
func (r *Registry) Create(name string, priority int32) *TCB {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.byID) >= r.maxLive {
		return nil
	}
	id := r.nextID
	r.nextID++
	seq := r.nextSeq
	r.nextSeq++
	t := newTCB(id, seq, name, priority)
	r.byID[id] = t
	return t
}

// Lookup returns the TCB for id, or nil if it is not currently registered
// (either never created or already reaped).
func (r *Registry) Lookup(id uint64) *TCB {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id]
}

// Reap removes a thread from the registry once it is fully torn down. The
// scheduler calls it at the first dispatch after the thread dies, whether
// or not a parent has observed its exit status.
func (r *Registry) Reap(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

// Len returns the number of currently registered (live) threads.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// All returns a snapshot slice of every currently registered thread. Used
// by the MLFQ passes to visit every live thread.
func (r *Registry) All() []*TCB {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*TCB, 0, len(r.byID))
	for _, t := range r.byID {
		out = append(out, t)
	}
	return out
}
