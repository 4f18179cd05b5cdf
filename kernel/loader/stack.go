// Package loader packs argv onto the simulated user stack and maps ELF
// LOAD segments into lazily-faulted supplemental pages. Grounded on
// original_source's argument-pushing sequence in start_process() and the
// file_page/mem_page/page_offset segment math in load().
package loader

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/kernelkit/pintos-go/kernel/elfbin"
	"github.com/kernelkit/pintos-go/kernel/kerrors"
)

// PhysBase is the top of the user address space and the initial stack
// pointer value, per §4.5.
const PhysBase uint32 = uint32(elfbin.UserVaddrLimit)

// StackImage is the packed content of the single user stack page installed
// at PhysBase-PageSize, plus the resulting initial stack pointer. Bytes
// are laid out exactly as they would appear in the simulated page,
// addressed from the high end down; Offset(addr) maps a simulated address
// back into this slice for tests and for the frame allocator to install.
type StackImage struct {
	Page      [elfbin.PageSize]byte
	InitialSP uint32
}

// Offset converts a simulated user address within this page into an index
// into Page.
func (s *StackImage) Offset(addr uint32) int {
	return int(addr - (PhysBase - elfbin.PageSize))
}

// BuildArgvStack packs argv (argv[0] is the executable name) onto a fresh
// zero-filled stack page following §4.5's five-step sequence:
//  1. copy each string (with trailing NUL), recording its new address
//  2. pad to a 4-byte boundary
//  3. push a NULL sentinel (argv[argc])
//  4. push argv pointers in reverse order
//  5. push &argv[0], then argc, then a fake return address of 0
//
// Returns an error wrapping kerrors.ErrStackOverflow if the packed data
// would not fit in the single page.
func BuildArgvStack(argv []string) (*StackImage, error) {
	img := &StackImage{}
	sp := PhysBase

	write := func(b []byte) error {
		n := uint32(len(b))
		if sp-n < PhysBase-elfbin.PageSize {
			return fmt.Errorf("loader: argument stack overflow: %w", kerrors.ErrStackOverflow)
		}
		sp -= n
		copy(img.Page[img.Offset(sp):], b)
		return nil
	}
	writeU32 := func(v uint32) error {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		return write(b[:])
	}

	argvAddrs := make([]uint32, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		s := argv[i]
		if err := write([]byte(s + "\x00")); err != nil {
			return nil, err
		}
		argvAddrs[i] = sp
	}

	if pad := sp % 4; pad != 0 {
		if err := write(make([]byte, pad)); err != nil {
			return nil, err
		}
	}

	if err := writeU32(0); err != nil { // argv[argc] sentinel
		return nil, err
	}

	for i := len(argvAddrs) - 1; i >= 0; i-- {
		if err := writeU32(argvAddrs[i]); err != nil {
			return nil, err
		}
	}

	argvBase := sp
	if err := writeU32(argvBase); err != nil { // pointer to argv[0]
		return nil, err
	}
	if err := writeU32(uint32(len(argv))); err != nil { // argc
		return nil, err
	}
	if err := writeU32(0); err != nil { // fake return address
		return nil, err
	}

	img.InitialSP = sp
	return img, nil
}

// TokenizeCommandLine splits a command line on spaces, matching
// process_load_setup's strtok_r(" ") behaviour: consecutive spaces collapse
// and leading/trailing space produces no empty tokens.
func TokenizeCommandLine(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool { return r == ' ' })
}
