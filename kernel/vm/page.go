// Package vm implements the supplemental page table, frame table, and
// fault resolution of §4.7, plus the swap interface of §4.8. Grounded on
// original_source's vm/frame.c (two-lock frame allocator, pseudo-LRU
// eviction scan) and vm/page.c's page_status bitmask (not independently
// retrieved; its kind set is described directly by §3's "Page
// (supplemental)" entry).
package vm

import (
	"sync"

	"github.com/kernelkit/pintos-go/kernel/blockdev"
)

// Kind is the page-descriptor status bitmask from the data model.
type Kind uint8

const (
	KindInMemory Kind = 1 << iota
	KindSwap
	KindFilesys
	KindMmap
	KindZero
)

// FileBacking describes a filesystem- or mmap-backed page's source range.
type FileBacking struct {
	Reader     FileReader
	Offset     uint32
	ReadBytes  uint32
	ZeroBytes  uint32
}

// FileReader is the narrow view of an open file a page needs to fault
// itself in; kernel/fsys.File satisfies it.
type FileReader interface {
	ReadAt(b []byte, off int64) (int, error)
}

// FileWriter is the narrow view needed to write back a dirty mmap page.
type FileWriter interface {
	WriteAt(b []byte, off int64) (int, error)
}

// MmapBacking additionally carries the writer used to flush a dirty page
// and the mapping id it belongs to. No package keeps a table of mappings
// by that id.
type MmapBacking struct {
	FileBacking
	Writer FileWriter
	MapID  uint32
}

// SwapBacking names the slot a page was written to on eviction.
type SwapBacking struct {
	Slot blockdev.Slot
}

// Page is one process's supplemental-page-table entry, keyed by the page
// round-down of a user virtual address.
type Page struct {
	Vaddr    uint32
	Writable bool
	Kind     Kind

	File *FileBacking
	Mmap *MmapBacking
	Swap *SwapBacking
}

// SupplementalPageTable is a process's full set of Page entries.
type SupplementalPageTable struct {
	mu    sync.Mutex
	pages map[uint32]*Page
}

// NewSupplementalPageTable returns an empty table.
func NewSupplementalPageTable() *SupplementalPageTable {
	return &SupplementalPageTable{pages: make(map[uint32]*Page)}
}

// Install adds or replaces the entry for p.Vaddr.
func (t *SupplementalPageTable) Install(p *Page) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pages[p.Vaddr] = p
}

// Lookup returns the entry for the page containing vaddr (already
// page-rounded by the caller), or nil if absent.
func (t *SupplementalPageTable) Lookup(vaddr uint32) *Page {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pages[vaddr]
}

// Remove deletes the entry for vaddr.
func (t *SupplementalPageTable) Remove(vaddr uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pages, vaddr)
}

// All returns every entry, for process teardown (closing mmaps, freeing
// swap slots still owned by pages never faulted back in).
func (t *SupplementalPageTable) All() []*Page {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Page, 0, len(t.pages))
	for _, p := range t.pages {
		out = append(out, p)
	}
	return out
}
