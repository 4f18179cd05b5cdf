// Package elfbin parses and validates the ELF32 executables this kernel
// can load, per §4.5. Grounded directly on original_source's load() and
// validate_segment(), translated from raw struct reads into
// encoding/binary decodes.
package elfbin

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kernelkit/pintos-go/kernel/kerrors"
)

const (
	// PageSize matches the simulated machine's page size throughout this
	// kernel (kernel/palloc, kernel/vm, kernel/loader all share it).
	PageSize = 4096
	pageMask = PageSize - 1

	ehdrSize = 52
	phdrSize = 32

	maxProgramHeaders = 1024

	etExec  = 2
	emI386  = 3
	evCurr  = 1
	eiClass = 1 // ELFCLASS32
	eiData  = 1 // ELFDATA2LSB
)

// Segment type constants, per the original's PT_* macros.
const (
	PTNull    = 0
	PTLoad    = 1
	PTDynamic = 2
	PTInterp  = 3
	PTNote    = 4
	PTShlib   = 5
	PTPhdr    = 6
	PTStack   = 0x6474e551
)

// Segment flag bits.
const (
	PFX = 1 << 0
	PFW = 1 << 1
	PFR = 1 << 2
)

// Header is the decoded subset of an Elf32_Ehdr this kernel cares about.
type Header struct {
	Entry  uint32
	PhOff  uint32
	PhNum  uint16
	PhSize uint16
}

// ProgramHeader is the decoded subset of an Elf32_Phdr this kernel cares
// about.
type ProgramHeader struct {
	Type   uint32
	Offset uint32
	Vaddr  uint32
	Filesz uint32
	Memsz  uint32
	Flags  uint32
}

// Writable reports whether PF_W is set.
func (p ProgramHeader) Writable() bool { return p.Flags&PFW != 0 }

// Binary is a fully parsed and validated executable image: its header and
// every PT_LOAD segment, in file order.
type Binary struct {
	Header   Header
	Segments []ProgramHeader
}

// Parse reads and validates an ELF32 executable from r, whose total length
// is fileLen (needed to bounds-check segment offsets without seeking past
// EOF). It implements exactly the rejection rules of §4.5.
func Parse(r io.ReaderAt, fileLen int64) (*Binary, error) {
	var raw [ehdrSize]byte
	if _, err := r.ReadAt(raw[:], 0); err != nil {
		return nil, kerrors.Wrap("elfbin: read header", kerrors.ErrBadELF)
	}

	if !bytes.Equal(raw[0:4], []byte{0x7F, 'E', 'L', 'F'}) {
		return nil, fmt.Errorf("elfbin: bad magic: %w", kerrors.ErrBadELF)
	}
	if raw[4] != eiClass || raw[5] != eiData {
		return nil, fmt.Errorf("elfbin: not 32-bit little-endian: %w", kerrors.ErrBadELF)
	}

	h := Header{
		Entry:  binary.LittleEndian.Uint32(raw[24:28]),
		PhOff:  binary.LittleEndian.Uint32(raw[28:32]),
		PhSize: binary.LittleEndian.Uint16(raw[42:44]),
		PhNum:  binary.LittleEndian.Uint16(raw[44:46]),
	}
	eType := binary.LittleEndian.Uint16(raw[16:18])
	eMachine := binary.LittleEndian.Uint16(raw[18:20])
	eVersion := binary.LittleEndian.Uint32(raw[20:24])

	if eType != etExec || eMachine != emI386 || eVersion != evCurr ||
		h.PhSize != phdrSize || h.PhNum > maxProgramHeaders {
		return nil, fmt.Errorf("elfbin: unsupported executable: %w", kerrors.ErrBadELF)
	}

	b := &Binary{Header: h}

	fileOfs := int64(h.PhOff)
	for i := uint16(0); i < h.PhNum; i++ {
		if fileOfs < 0 || fileOfs > fileLen {
			return nil, fmt.Errorf("elfbin: program header offset out of range: %w", kerrors.ErrBadELF)
		}
		var praw [phdrSize]byte
		if _, err := r.ReadAt(praw[:], fileOfs); err != nil {
			return nil, fmt.Errorf("elfbin: read program header: %w", kerrors.ErrBadELF)
		}
		fileOfs += phdrSize

		ph := ProgramHeader{
			Type:   binary.LittleEndian.Uint32(praw[0:4]),
			Offset: binary.LittleEndian.Uint32(praw[4:8]),
			Vaddr:  binary.LittleEndian.Uint32(praw[8:12]),
			Filesz: binary.LittleEndian.Uint32(praw[16:20]),
			Memsz:  binary.LittleEndian.Uint32(praw[20:24]),
			Flags:  binary.LittleEndian.Uint32(praw[24:28]),
		}

		switch ph.Type {
		case PTNull, PTNote, PTPhdr, PTStack:
			// ignored
		case PTDynamic, PTInterp, PTShlib:
			return nil, fmt.Errorf("elfbin: unsupported segment type %d: %w", ph.Type, kerrors.ErrBadELF)
		case PTLoad:
			if err := validateSegment(ph, fileLen); err != nil {
				return nil, err
			}
			b.Segments = append(b.Segments, ph)
		default:
			// unrecognised segment types are ignored, matching the
			// original's default case.
		}
	}

	return b, nil
}

// validateSegment implements validate_segment's rules exactly.
func validateSegment(ph ProgramHeader, fileLen int64) error {
	if (ph.Offset & pageMask) != (ph.Vaddr & pageMask) {
		return fmt.Errorf("elfbin: misaligned segment offset/vaddr: %w", kerrors.ErrBadELF)
	}
	if int64(ph.Offset) > fileLen {
		return fmt.Errorf("elfbin: segment offset past end of file: %w", kerrors.ErrBadELF)
	}
	if ph.Memsz < ph.Filesz {
		return fmt.Errorf("elfbin: memsz < filesz: %w", kerrors.ErrBadELF)
	}
	if ph.Filesz == 0 && ph.Memsz == 0 {
		return fmt.Errorf("elfbin: empty segment: %w", kerrors.ErrBadELF)
	}
	if ph.Vaddr < PageSize {
		return fmt.Errorf("elfbin: segment overlaps page zero: %w", kerrors.ErrBadELF)
	}
	end := uint64(ph.Vaddr) + uint64(ph.Memsz)
	if end < uint64(ph.Vaddr) {
		return fmt.Errorf("elfbin: segment wraps address space: %w", kerrors.ErrBadELF)
	}
	if end > UserVaddrLimit {
		return fmt.Errorf("elfbin: segment exceeds user address space: %w", kerrors.ErrBadELF)
	}
	return nil
}

// UserVaddrLimit is PHYS_BASE: the top of user-accessible virtual address
// space in the simulated machine, matching the original's 3GiB split.
const UserVaddrLimit uint64 = 0xC0000000

// PageOfOffset and PageOfVaddr round down to the containing page, the
// file_page/mem_page computation from load().
func PageOfOffset(off uint32) uint32 { return off &^ pageMask }
func PageOfVaddr(v uint32) uint32    { return v &^ pageMask }

// PageOffset returns the in-page offset shared by p_offset and p_vaddr.
func PageOffset(v uint32) uint32 { return v & pageMask }

// RoundUpPage rounds n up to the next page boundary.
func RoundUpPage(n uint32) uint32 {
	return (n + pageMask) &^ pageMask
}
