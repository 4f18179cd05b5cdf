package vm

import (
	"github.com/kernelkit/pintos-go/kernel/elfbin"
	"github.com/kernelkit/pintos-go/kernel/kerrors"
	"github.com/kernelkit/pintos-go/kernel/pagedir"
	"github.com/kernelkit/pintos-go/kernel/sync"
)

// HandleFault implements §4.7's fault resolution for a user page fault at
// addr: validate, look up the supplemental entry, resolve its backing
// into a fresh frame, install the page-table entry, and mark it
// in-memory. Returns kerrors.ErrBadPointer for an invalid or
// unmapped address; the caller receives it as an ordinary error, and
// nothing on this path terminates the faulting process.
func (t *Table) HandleFault(sched sync.Scheduler, ownerID uint64, dir *pagedir.Table, spt *SupplementalPageTable, addr uint32) error {
	if addr < elfbin.PageSize {
		return kerrors.ErrBadPointer
	}
	vpage := addr &^ uint32(elfbin.PageSize-1)

	page := spt.Lookup(vpage)
	if page == nil {
		return kerrors.ErrBadPointer
	}

	buf, _, err := t.GetUserPage(sched, ownerID, dir, page)
	if err != nil {
		return err
	}

	switch {
	case page.Kind&KindSwap != 0:
		if err := t.swap.Load(page.Swap.Slot, buf); err != nil {
			return err
		}
		t.swap.Free(page.Swap.Slot)
		page.Swap = nil
		page.Kind &^= KindSwap
	case page.Kind&(KindFilesys|KindMmap) != 0:
		fb := page.File
		if fb == nil && page.Mmap != nil {
			fb = &page.Mmap.FileBacking
		}
		if fb != nil && fb.ReadBytes > 0 {
			if _, err := fb.Reader.ReadAt(buf[:fb.ReadBytes], int64(fb.Offset)); err != nil {
				return err
			}
		}
		// the rest of buf is already zero: GetUserPage hands back a
		// freshly zeroed page from the pool.
	default:
		// zero page: nothing further to do.
	}

	page.Kind |= KindInMemory
	t.logPageFault(ownerID, vpage, page.Kind)
	return nil
}

// logPageFault emits a rate-limited debug line recording a resolved page
// fault. t.log may be nil (tests construct frame tables without one).
func (t *Table) logPageFault(ownerID uint64, vaddr uint32, kind Kind) {
	if t.log == nil {
		return
	}
	if b := t.log.PageFaultDebug(); b != nil {
		b.Field("owner", ownerID).
			Field("vaddr", vaddr).
			Field("kind", uint32(kind)).
			Log("resolved page fault")
	}
}
