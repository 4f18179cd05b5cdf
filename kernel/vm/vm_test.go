package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kernelkit/pintos-go/kernel/blockdev"
	"github.com/kernelkit/pintos-go/kernel/elfbin"
	"github.com/kernelkit/pintos-go/kernel/pagedir"
	"github.com/kernelkit/pintos-go/kernel/palloc"
	"github.com/kernelkit/pintos-go/kernel/sched"
	"github.com/kernelkit/pintos-go/kernel/thread"
)

type memFile struct{ data []byte }

func (f *memFile) ReadAt(b []byte, off int64) (int, error) {
	return copy(b, f.data[off:]), nil
}

func (f *memFile) WriteAt(b []byte, off int64) (int, error) {
	return copy(f.data[off:], b), nil
}

func runFault(t *testing.T, capacity int, fn func(s *sched.Scheduler, ft *Table, dir *pagedir.Table, spt *SupplementalPageTable)) {
	t.Helper()
	pool := palloc.New(capacity)
	swap := NewSwap(blockdev.New(capacity))
	ft := NewTable(pool, swap, nil)
	dir := pagedir.Create()
	spt := NewSupplementalPageTable()

	s := sched.New()
	_, err := s.Spawn("t", thread.PriDefault, func(s *sched.Scheduler, self *thread.TCB) {
		fn(s, ft, dir, spt)
		s.Exit(self, 0)
	})
	require.NoError(t, err)
	s.Run()
}

func TestHandleFaultInstallsZeroPage(t *testing.T) {
	runFault(t, 4, func(s *sched.Scheduler, ft *Table, dir *pagedir.Table, spt *SupplementalPageTable) {
		spt.Install(&Page{Vaddr: elfbin.PageSize, Writable: true, Kind: KindZero})
		err := ft.HandleFault(s, 1, dir, spt, elfbin.PageSize+10)
		require.NoError(t, err)

		frame, ok := dir.Lookup(elfbin.PageSize)
		assert.True(t, ok)
		_ = frame
	})
}

func TestHandleFaultRejectsPageZero(t *testing.T) {
	runFault(t, 4, func(s *sched.Scheduler, ft *Table, dir *pagedir.Table, spt *SupplementalPageTable) {
		err := ft.HandleFault(s, 1, dir, spt, 10)
		assert.Error(t, err)
	})
}

func TestHandleFaultRejectsUnmappedAddress(t *testing.T) {
	runFault(t, 4, func(s *sched.Scheduler, ft *Table, dir *pagedir.Table, spt *SupplementalPageTable) {
		err := ft.HandleFault(s, 1, dir, spt, elfbin.PageSize*5)
		assert.Error(t, err)
	})
}

func TestHandleFaultReadsFilesystemBackedPage(t *testing.T) {
	runFault(t, 4, func(s *sched.Scheduler, ft *Table, dir *pagedir.Table, spt *SupplementalPageTable) {
		f := &memFile{data: []byte("hello world")}
		spt.Install(&Page{
			Vaddr: elfbin.PageSize, Writable: false, Kind: KindFilesys,
			File: &FileBacking{Reader: f, Offset: 0, ReadBytes: 11},
		})
		err := ft.HandleFault(s, 1, dir, spt, elfbin.PageSize)
		require.NoError(t, err)
	})
}

func TestEvictionFreesAFrameWhenPoolExhausted(t *testing.T) {
	runFault(t, 1, func(s *sched.Scheduler, ft *Table, dir *pagedir.Table, spt *SupplementalPageTable) {
		spt.Install(&Page{Vaddr: elfbin.PageSize, Writable: true, Kind: KindZero})
		spt.Install(&Page{Vaddr: elfbin.PageSize * 2, Writable: true, Kind: KindZero})

		require.NoError(t, ft.HandleFault(s, 1, dir, spt, elfbin.PageSize))
		// the pool only has one page: this second fault must evict the
		// first frame and succeed rather than returning ErrOutOfFrames.
		require.NoError(t, ft.HandleFault(s, 1, dir, spt, elfbin.PageSize*2))

		_, stillMapped := dir.Lookup(elfbin.PageSize)
		assert.False(t, stillMapped)
		_, newlyMapped := dir.Lookup(elfbin.PageSize * 2)
		assert.True(t, newlyMapped)
	})
}

// TestEvictionSwapRoundTripPreservesPageContents writes a non-zero
// pattern into a frame, forces it to swap by exhausting the one-frame
// pool, faults it back in, and checks the bytes survive the round trip:
// a zero-filled page (as every other eviction test here uses) can't tell
// a correct swap.Save/Load from a silently broken one.
func TestEvictionSwapRoundTripPreservesPageContents(t *testing.T) {
	pool := palloc.New(1)
	swap := NewSwap(blockdev.New(2))
	ft := NewTable(pool, swap, nil)
	dir := pagedir.Create()
	spt := NewSupplementalPageTable()

	spt.Install(&Page{Vaddr: elfbin.PageSize, Writable: true, Kind: KindZero})
	spt.Install(&Page{Vaddr: elfbin.PageSize * 2, Writable: true, Kind: KindZero})

	pattern := []byte("the quick brown fox jumps over the lazy dog")
	var readBack [elfbin.PageSize]byte

	s := sched.New()
	_, err := s.Spawn("t", thread.PriDefault, func(s *sched.Scheduler, self *thread.TCB) {
		require.NoError(t, ft.HandleFault(s, 1, dir, spt, elfbin.PageSize))

		addr, ok := dir.Lookup(elfbin.PageSize)
		require.True(t, ok)
		copy(pool.Buffer(palloc.Addr(addr))[:], pattern)

		// the pool only has one frame: this fault evicts page one to swap.
		require.NoError(t, ft.HandleFault(s, 1, dir, spt, elfbin.PageSize*2))

		// faulting page one back in must read the pattern back from swap.
		require.NoError(t, ft.HandleFault(s, 1, dir, spt, elfbin.PageSize))
		addr2, ok := dir.Lookup(elfbin.PageSize)
		require.True(t, ok)
		copy(readBack[:], pool.Buffer(palloc.Addr(addr2))[:])

		s.Exit(self, 0)
	})
	require.NoError(t, err)
	s.Run()

	assert.Equal(t, pattern, readBack[:len(pattern)])
}

// TestEvictionWritesBackDirtyMmapPage exercises the mmap-dirty write-back
// branch of writeBack: a dirty mmap page must be flushed to its backing
// file on eviction, not discarded or routed to swap.
func TestEvictionWritesBackDirtyMmapPage(t *testing.T) {
	pool := palloc.New(1)
	swap := NewSwap(blockdev.New(1))
	ft := NewTable(pool, swap, nil)
	dir := pagedir.Create()
	spt := NewSupplementalPageTable()

	backing := &memFile{data: make([]byte, elfbin.PageSize)}
	spt.Install(&Page{
		Vaddr: elfbin.PageSize, Writable: true, Kind: KindMmap,
		Mmap: &MmapBacking{
			FileBacking: FileBacking{Reader: backing, Offset: 0, ReadBytes: elfbin.PageSize},
			Writer:      backing,
		},
	})
	spt.Install(&Page{Vaddr: elfbin.PageSize * 2, Writable: true, Kind: KindZero})

	pattern := []byte("mmap dirty page content")

	s := sched.New()
	_, err := s.Spawn("t", thread.PriDefault, func(s *sched.Scheduler, self *thread.TCB) {
		require.NoError(t, ft.HandleFault(s, 1, dir, spt, elfbin.PageSize))

		addr, ok := dir.Lookup(elfbin.PageSize)
		require.True(t, ok)
		copy(pool.Buffer(palloc.Addr(addr))[:], pattern)
		dir.MarkDirty(elfbin.PageSize)

		// the pool only has one frame: this fault evicts the dirty mmap
		// page, which must flush to backing rather than going to swap.
		require.NoError(t, ft.HandleFault(s, 1, dir, spt, elfbin.PageSize*2))

		s.Exit(self, 0)
	})
	require.NoError(t, err)
	s.Run()

	assert.Equal(t, pattern, backing.data[:len(pattern)])
}

func TestSwapAllocExhaustionReturnsError(t *testing.T) {
	swap := NewSwap(blockdev.New(0))
	_, err := swap.Alloc()
	assert.Error(t, err)
}
