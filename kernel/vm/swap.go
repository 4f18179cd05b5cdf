package vm

import (
	"sync"

	"github.com/kernelkit/pintos-go/kernel/blockdev"
	"github.com/kernelkit/pintos-go/kernel/elfbin"
	"github.com/kernelkit/pintos-go/kernel/kerrors"
)

// Swap implements the §4.8 interface over a blockdev.Device: alloc, free,
// save, load. Free-slot tracking is a bitmap: a plain []bool is
// used rather than a third-party bitset, since nothing in the retrieved
// corpus provides one.
type Swap struct {
	mu   sync.Mutex
	dev  *blockdev.Device
	used []bool
}

// NewSwap wraps dev as a slot allocator.
func NewSwap(dev *blockdev.Device) *Swap {
	return &Swap{dev: dev, used: make([]bool, dev.Capacity())}
}

// Alloc reserves and returns a free slot, or kerrors.ErrSwapExhausted.
func (s *Swap) Alloc() (blockdev.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, used := range s.used {
		if !used {
			s.used[i] = true
			return blockdev.Slot(i), nil
		}
	}
	return 0, kerrors.ErrSwapExhausted
}

// Free releases slot back to the pool.
func (s *Swap) Free(slot blockdev.Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used[slot] = false
}

// Save writes a full page into slot.
func (s *Swap) Save(slot blockdev.Slot, page *[elfbin.PageSize]byte) error {
	return s.dev.Write(slot, page)
}

// Load reads a full page from slot.
func (s *Swap) Load(slot blockdev.Slot, page *[elfbin.PageSize]byte) error {
	return s.dev.Read(slot, page)
}
