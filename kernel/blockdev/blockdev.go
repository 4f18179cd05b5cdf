// Package blockdev simulates the page-sized-slot backing store that
// kernel/vm's swap interface writes to, per §4.8. Grounded on the original
// kernel's generic "block device" abstraction (devices/block.c is not in
// the retrieved source set; behaviour here is the minimal read/write-slot
// contract §4.8 actually names).
package blockdev

import (
	"fmt"

	"github.com/kernelkit/pintos-go/kernel/elfbin"
)

// Slot identifies one page-sized region of the device.
type Slot uint32

// Device is a fixed-size array of page-sized slots.
type Device struct {
	slots [][elfbin.PageSize]byte
}

// New returns a device with room for n page-sized slots.
func New(n int) *Device {
	return &Device{slots: make([][elfbin.PageSize]byte, n)}
}

// Capacity returns the number of slots on the device.
func (d *Device) Capacity() int { return len(d.slots) }

// Write copies a full page into slot s.
func (d *Device) Write(s Slot, page *[elfbin.PageSize]byte) error {
	if int(s) >= len(d.slots) {
		return fmt.Errorf("blockdev: slot %d out of range", s)
	}
	d.slots[s] = *page
	return nil
}

// Read copies slot s into page.
func (d *Device) Read(s Slot, page *[elfbin.PageSize]byte) error {
	if int(s) >= len(d.slots) {
		return fmt.Errorf("blockdev: slot %d out of range", s)
	}
	*page = d.slots[s]
	return nil
}
