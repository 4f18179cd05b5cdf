package vm

import (
	"github.com/kernelkit/pintos-go/internal/klog"
	"github.com/kernelkit/pintos-go/kernel/elfbin"
	"github.com/kernelkit/pintos-go/kernel/kerrors"
	"github.com/kernelkit/pintos-go/kernel/pagedir"
	"github.com/kernelkit/pintos-go/kernel/palloc"
	"github.com/kernelkit/pintos-go/kernel/sync"
)

// Frame is one entry of the frame table: a physical page currently backing
// a specific process's page descriptor.
type Frame struct {
	Addr        palloc.Addr
	OwnerID     uint64
	Dir         *pagedir.Table
	Page        *Page
	UnusedCount int32
}

// Table is the frame allocator and frame table of §4.7: a global
// allocation lock serialises get_user_page (so eviction-then-retry is
// guaranteed to succeed), while a separate, finer-grained table lock
// guards frame insertion/removal to avoid priority inversion with the
// eviction scan holding the allocation lock.
type Table struct {
	pool *palloc.Pool
	swap *Swap
	log  *klog.Logger

	allocLock *sync.Lock
	tableLock *sync.Lock

	order []palloc.Addr
	byID  map[palloc.Addr]*Frame
}

// NewTable constructs a frame table over pool, writing evicted pages to
// swap.
func NewTable(pool *palloc.Pool, swap *Swap, log *klog.Logger) *Table {
	return &Table{
		pool:      pool,
		swap:      swap,
		log:       log,
		allocLock: sync.NewLock(),
		tableLock: sync.NewLock(),
		byID:      make(map[palloc.Addr]*Frame),
	}
}

// GetUserPage implements frame_allocator_get_user_page: acquires the
// allocation lock, gets a page from the pool (evicting once if exhausted),
// maps it into dir at page, registers it in the frame table, and returns
// the zeroed backing buffer.
func (t *Table) GetUserPage(sched sync.Scheduler, ownerID uint64, dir *pagedir.Table, page *Page) (*[elfbin.PageSize]byte, palloc.Addr, error) {
	mustAcquire(sched, t.allocLock)
	defer t.allocLock.Release(sched)

	addr, buf, ok := t.pool.Get()
	if !ok {
		if err := t.evictOne(sched); err != nil {
			return nil, 0, err
		}
		addr, buf, ok = t.pool.Get()
		if !ok {
			return nil, 0, kerrors.ErrOutOfFrames
		}
	}

	dir.SetPage(page.Vaddr, uint32(addr), page.Writable)

	f := &Frame{Addr: addr, OwnerID: ownerID, Dir: dir, Page: page}
	mustAcquire(sched, t.tableLock)
	t.byID[addr] = f
	t.order = append(t.order, addr)
	t.tableLock.Release(sched)

	return buf, addr, nil
}

// FreeUserPage implements frame_allocator_free_user_page: unmaps addr from
// its owner's page directory, removes it from the frame table, and
// returns the physical page to the pool.
func (t *Table) FreeUserPage(sched sync.Scheduler, addr palloc.Addr) error {
	mustAcquire(sched, t.tableLock)
	f, ok := t.byID[addr]
	if !ok {
		t.tableLock.Release(sched)
		return kerrors.ErrCorruptFrameTable
	}
	delete(t.byID, addr)
	t.removeFromOrder(addr)
	t.tableLock.Release(sched)

	f.Page.Kind &^= KindInMemory
	f.Dir.ClearPage(f.Page.Vaddr)
	t.pool.Free(addr)
	return nil
}

func (t *Table) removeFromOrder(addr palloc.Addr) {
	for i, a := range t.order {
		if a == addr {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}

// evictOne implements frame_allocator_evict_page: choose a candidate via
// the pseudo-LRU scan, write it back (mmap flush, swap, or discard), then
// free it. Called with the allocation lock already held, matching the
// original's is_locked=true recursive free.
func (t *Table) evictOne(sched sync.Scheduler) error {
	f := t.chooseEvictionCandidate(sched)
	if f == nil {
		return kerrors.ErrCorruptFrameTable
	}
	t.logEviction(f)
	if err := t.writeBack(f); err != nil {
		return err
	}
	return t.FreeUserPage(sched, f.Addr)
}

// logEviction emits a rate-limited warning naming the frame chosen for
// eviction. t.log may be nil (tests construct frame tables without one).
func (t *Table) logEviction(f *Frame) {
	if t.log == nil {
		return
	}
	if b := t.log.EvictionWarning(); b != nil {
		b.Field("owner", f.OwnerID).
			Field("vaddr", f.Page.Vaddr).
			Field("unused_count", f.UnusedCount).
			Log("evicting frame")
	}
}

// chooseEvictionCandidate implements the pseudo-LRU second-chance scan of
// §4.7: walk the frame table once, clearing accessed bits and bumping
// unused_count for frames that look idle, skipping read-only
// filesystem-backed frames (they are never chosen, since discarding them is
// always free, so evicting them first would waste the scan), and keeping
// the frame with the largest unused_count seen so far.
func (t *Table) chooseEvictionCandidate(sched sync.Scheduler) *Frame {
	mustAcquire(sched, t.tableLock)
	defer t.tableLock.Release(sched)

	var best *Frame
	var bestCount int32 = -1
	for _, addr := range t.order {
		f := t.byID[addr]
		if f.Page.Kind&KindFilesys != 0 && !f.Page.Writable {
			continue
		}
		accessed := f.Dir.IsAccessed(f.Page.Vaddr)
		if accessed {
			f.Dir.ClearAccessed(f.Page.Vaddr)
		} else {
			f.UnusedCount++
		}
		if f.Dir.IsDirty(f.Page.Vaddr) {
			// dirty pages are worse eviction candidates than clean ones;
			// leave their count alone so a clean page wins ties.
		} else {
			f.UnusedCount++
		}
		if f.UnusedCount > bestCount {
			bestCount = f.UnusedCount
			best = f
		}
	}
	return best
}

// writeBack persists f's contents per §4.7's eviction rule: mmap+dirty
// writes back to the mapped file; a read-only filesystem-backed page is
// discarded; anything else goes to swap.
func (t *Table) writeBack(f *Frame) error {
	page := f.Page
	dirty := f.Dir.IsDirty(page.Vaddr)

	switch {
	case page.Kind&KindMmap != 0 && dirty:
		buf := t.currentBuffer(f)
		n := int(page.Mmap.ReadBytes)
		if _, err := page.Mmap.Writer.WriteAt(buf[:n], int64(page.Mmap.Offset)); err != nil {
			return err
		}
	case page.Kind&KindFilesys != 0 && !page.Writable:
		// read-only filesystem page: discard, it can be re-read on fault.
	default:
		slot, err := t.swap.Alloc()
		if err != nil {
			// swap exhaustion while evicting is fatal.
			kerrors.Panic(t.log, "vm: evict to swap", err)
		}
		buf := t.currentBuffer(f)
		if err := t.swap.Save(slot, buf); err != nil {
			t.swap.Free(slot)
			return err
		}
		page.Swap = &SwapBacking{Slot: slot}
		page.Kind |= KindSwap
	}
	page.Kind &^= KindInMemory
	return nil
}

// currentBuffer recovers the live page contents backing f from the pool.
// The pool keeps the buffer keyed by address for exactly this purpose.
func (t *Table) currentBuffer(f *Frame) *[elfbin.PageSize]byte {
	return t.pool.Buffer(f.Addr)
}

func mustAcquire(sched sync.Scheduler, l *sync.Lock) {
	if err := l.Acquire(sched); err != nil {
		panic(kerrors.Wrap("vm: frame table lock", err))
	}
}
