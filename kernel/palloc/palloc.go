// Package palloc simulates the kernel's physical page pool: a fixed
// number of page-sized buffers handed out and reclaimed as opaque
// addresses (here, small integers standing in for kernel virtual
// addresses of physical frames). Grounded on original_source's
// palloc_get_page/palloc_free_page, simplified to a single user-page
// pool since this kernel never separately tracks a kernel pool.
package palloc

import (
	"sync"

	"github.com/kernelkit/pintos-go/kernel/elfbin"
)

// Addr is an opaque handle for one physical page-sized buffer.
type Addr uint32

// Pool is a fixed-capacity page allocator.
type Pool struct {
	mu     sync.Mutex
	free   []Addr
	pages  map[Addr]*[elfbin.PageSize]byte
	nextID Addr
}

// New returns a pool with room for capacity pages.
func New(capacity int) *Pool {
	p := &Pool{pages: make(map[Addr]*[elfbin.PageSize]byte, capacity)}
	for i := 0; i < capacity; i++ {
		p.nextID++
		p.free = append(p.free, p.nextID)
	}
	return p
}

// Get returns a zeroed page and its address, or ok=false if the pool is
// exhausted.
func (p *Pool) Get() (Addr, *[elfbin.PageSize]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		return 0, nil, false
	}
	a := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	buf := new([elfbin.PageSize]byte)
	p.pages[a] = buf
	return a, buf, true
}

// Buffer returns the live backing buffer for an address still on loan, or
// nil if a is not currently allocated.
func (p *Pool) Buffer(a Addr) *[elfbin.PageSize]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pages[a]
}

// Free returns a page to the pool.
func (p *Pool) Free(a Addr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pages, a)
	p.free = append(p.free, a)
}

// Len returns the number of pages currently on loan.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pages)
}

// Capacity returns the total number of pages this pool was created with.
func (p *Pool) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pages) + len(p.free)
}
