package elfbin

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildMinimal assembles a minimal valid ELF32 image with a single
// PT_LOAD segment, for testing Parse without a real toolchain-built binary.
func buildMinimal(t *testing.T, loadVaddr, filesz, memsz uint32) []byte {
	t.Helper()
	buf := make([]byte, ehdrSize+phdrSize)

	copy(buf[0:4], []byte{0x7F, 'E', 'L', 'F'})
	buf[4] = eiClass
	buf[5] = eiData
	binary.LittleEndian.PutUint16(buf[16:18], etExec)
	binary.LittleEndian.PutUint16(buf[18:20], emI386)
	binary.LittleEndian.PutUint32(buf[20:24], evCurr)
	binary.LittleEndian.PutUint32(buf[24:28], loadVaddr) // e_entry
	binary.LittleEndian.PutUint32(buf[28:32], ehdrSize)  // e_phoff
	binary.LittleEndian.PutUint16(buf[42:44], phdrSize)  // e_phentsize
	binary.LittleEndian.PutUint16(buf[44:46], 1)         // e_phnum

	ph := buf[ehdrSize:]
	binary.LittleEndian.PutUint32(ph[0:4], PTLoad)
	binary.LittleEndian.PutUint32(ph[4:8], 0) // p_offset
	binary.LittleEndian.PutUint32(ph[8:12], loadVaddr)
	binary.LittleEndian.PutUint32(ph[16:20], filesz)
	binary.LittleEndian.PutUint32(ph[20:24], memsz)
	binary.LittleEndian.PutUint32(ph[24:28], PFR|PFX)

	return buf
}

func TestParseAcceptsMinimalValidBinary(t *testing.T) {
	data := buildMinimal(t, PageSize, 16, 16)
	b, err := Parse(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, b.Segments, 1)
	assert.Equal(t, uint32(PageSize), b.Segments[0].Vaddr)
}

func TestParseRejectsBadMagic(t *testing.T) {
	data := buildMinimal(t, PageSize, 16, 16)
	data[0] = 0
	_, err := Parse(bytes.NewReader(data), int64(len(data)))
	assert.Error(t, err)
}

func TestParseRejectsSegmentOverlappingPageZero(t *testing.T) {
	data := buildMinimal(t, 0, 16, 16)
	_, err := Parse(bytes.NewReader(data), int64(len(data)))
	assert.Error(t, err)
}

func TestParseRejectsMemszLessThanFilesz(t *testing.T) {
	data := buildMinimal(t, PageSize, 64, 16)
	_, err := Parse(bytes.NewReader(data), int64(len(data)))
	assert.Error(t, err)
}

func TestParseRejectsSegmentExceedingUserAddressSpace(t *testing.T) {
	data := buildMinimal(t, uint32(UserVaddrLimit)-PageSize, 16, 2*PageSize)
	_, err := Parse(bytes.NewReader(data), int64(len(data)))
	assert.Error(t, err)
}

func TestRoundUpPageRoundsToPageBoundary(t *testing.T) {
	assert.Equal(t, uint32(PageSize), RoundUpPage(1))
	assert.Equal(t, uint32(0), RoundUpPage(0))
	assert.Equal(t, uint32(2*PageSize), RoundUpPage(PageSize+1))
}
