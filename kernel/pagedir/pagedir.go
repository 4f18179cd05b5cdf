// Package pagedir simulates the per-process page table (the MMU's view):
// a mapping from user virtual page to physical frame plus the
// accessed/dirty bits the eviction scan inspects. Grounded on
// original_source's userprog/pagedir.c API surface
// (pagedir_set_page/clear_page/is_dirty/is_accessed), reduced to the
// operations this kernel's fault handler and evictor actually call.
package pagedir

import "sync"

type entry struct {
	frame    uint32
	writable bool
	accessed bool
	dirty    bool
}

// Table is one process's page directory.
type Table struct {
	mu      sync.Mutex
	entries map[uint32]*entry
}

// Create returns a fresh, empty page table.
func Create() *Table {
	return &Table{entries: make(map[uint32]*entry)}
}

// SetPage installs a mapping from user page vaddr to physical frame,
// replacing any existing mapping.
func (t *Table) SetPage(vaddr, frame uint32, writable bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[vaddr] = &entry{frame: frame, writable: writable}
}

// ClearPage removes the mapping for vaddr, if any.
func (t *Table) ClearPage(vaddr uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, vaddr)
}

// Lookup returns the physical frame mapped to vaddr and whether it exists.
func (t *Table) Lookup(vaddr uint32) (uint32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[vaddr]
	if !ok {
		return 0, false
	}
	return e.frame, true
}

// MarkAccessed sets the accessed bit for vaddr, as a real MMU would on any
// read or write through the mapping.
func (t *Table) MarkAccessed(vaddr uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[vaddr]; ok {
		e.accessed = true
	}
}

// MarkDirty sets the dirty bit for vaddr, as a real MMU would on a write.
func (t *Table) MarkDirty(vaddr uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[vaddr]; ok {
		e.dirty = true
	}
}

// IsAccessed reports and the eviction scan's ClearAccessed resets the
// accessed bit, mirroring pagedir_is_accessed / pagedir_set_accessed(false).
func (t *Table) IsAccessed(vaddr uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[vaddr]
	return ok && e.accessed
}

// ClearAccessed resets the accessed bit for vaddr.
func (t *Table) ClearAccessed(vaddr uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[vaddr]; ok {
		e.accessed = false
	}
}

// IsDirty reports the dirty bit for vaddr.
func (t *Table) IsDirty(vaddr uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[vaddr]
	return ok && e.dirty
}

// Writable reports whether vaddr was installed as writable.
func (t *Table) Writable(vaddr uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[vaddr]
	return ok && e.writable
}
