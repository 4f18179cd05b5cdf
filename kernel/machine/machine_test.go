package machine

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kernelkit/pintos-go/kernel/pagedir"
	"github.com/kernelkit/pintos-go/kernel/process"
	"github.com/kernelkit/pintos-go/kernel/sched"
	"github.com/kernelkit/pintos-go/kernel/syscall"
	"github.com/kernelkit/pintos-go/kernel/thread"
	"github.com/kernelkit/pintos-go/kernel/vm"
)

// buildMinimalELF assembles a header-only ELF32 image (no PT_LOAD
// segments): enough for load() to succeed without needing a real
// toolchain-built binary, since every test program here runs as a
// registered Go closure rather than interpreted machine code.
func buildMinimalELF(t *testing.T) []byte {
	t.Helper()
	buf := make([]byte, 52)
	copy(buf[0:4], []byte{0x7F, 'E', 'L', 'F'})
	buf[4] = 1 // ELFCLASS32
	buf[5] = 1 // ELFDATA2LSB
	binary.LittleEndian.PutUint16(buf[16:18], 2) // ET_EXEC
	binary.LittleEndian.PutUint16(buf[18:20], 3) // EM_386
	binary.LittleEndian.PutUint32(buf[20:24], 1) // EV_CURRENT
	binary.LittleEndian.PutUint32(buf[24:28], 0x08048000)
	binary.LittleEndian.PutUint32(buf[28:32], 52)
	binary.LittleEndian.PutUint16(buf[42:44], 32)
	binary.LittleEndian.PutUint16(buf[44:46], 0)
	return buf
}

func newTestMachine() *Machine {
	return New(Config{FrameCapacity: 8, SwapCapacity: 8})
}

func TestSpawnLoadsAndRunsRegisteredProgramThenExits(t *testing.T) {
	m := newTestMachine()
	m.FS.Create("echo", buildMinimalELF(t))

	ran := false
	m.RegisterProgram("echo", func(sm syscall.Machine) {
		ran = true
		sm.SysExit(7)
	})

	proc, err := m.Spawn("echo")
	require.NoError(t, err)

	m.Run()

	assert.True(t, ran)
	status, exited := proc.ExitStatus()
	assert.True(t, exited)
	assert.Equal(t, int32(7), status)
}

func TestSpawnFailsForUnparsableExecutable(t *testing.T) {
	m := newTestMachine()
	m.FS.Create("bad", []byte("not an elf"))

	proc, err := m.Spawn("bad")
	require.NoError(t, err) // Spawn only fails before the thread even starts

	m.Run()

	status, exited := proc.ExitStatus()
	assert.True(t, exited)
	assert.Equal(t, int32(-1), status)
}

// TestExecSpawnsChildAndParentWaitObservesStatus exercises the
// process-layer rendezvous end to end: a manually constructed "parent"
// thread calls Exec to load a child, then Wait()s on it and observes the
// exit status the child's registered program reports via SysExit.
func TestExecSpawnsChildAndParentWaitObservesStatus(t *testing.T) {
	m := newTestMachine()
	m.FS.Create("parent", buildMinimalELF(t))
	m.FS.Create("child", buildMinimalELF(t))

	m.RegisterProgram("child", func(sm syscall.Machine) {
		sm.SysExit(5)
	})

	var gotStatus int32
	var gotOK bool

	_, err := m.Sched.Spawn("parent", thread.PriDefault, func(s *sched.Scheduler, self *thread.TCB) {
		parentProc := process.New(999, "parent", nil)
		self.Proc = parentProc

		m.mu.Lock()
		m.byPID[999] = &procState{
			proc: parentProc,
			dir:  pagedir.Create(),
			spt:  vm.NewSupplementalPageTable(),
			self: self,
		}
		m.mu.Unlock()

		pid, err := m.Exec(self, "child")
		if err != nil {
			return
		}
		gotStatus, gotOK = parentProc.Wait(s, uint64(pid))
	})
	require.NoError(t, err)

	m.Run()

	assert.True(t, gotOK)
	assert.Equal(t, int32(5), gotStatus)
}

func TestExecOfMissingExecutableReportsLoadFailure(t *testing.T) {
	m := newTestMachine()
	m.FS.Create("parent", buildMinimalELF(t))

	var execErr error
	_, err := m.Sched.Spawn("parent", thread.PriDefault, func(s *sched.Scheduler, self *thread.TCB) {
		parentProc := process.New(1, "parent", nil)
		self.Proc = parentProc
		m.mu.Lock()
		m.byPID[1] = &procState{proc: parentProc, dir: pagedir.Create(), spt: vm.NewSupplementalPageTable(), self: self}
		m.mu.Unlock()

		_, execErr = m.Exec(self, "nonexistent")
	})
	require.NoError(t, err)

	m.Run()

	assert.Error(t, execErr)
}

func TestSysOpenWithNullPointerReturnsErrorNotPanic(t *testing.T) {
	m := newTestMachine()
	m.FS.Create("opener", buildMinimalELF(t))

	var openErr error
	m.RegisterProgram("opener", func(sm syscall.Machine) {
		_, openErr = sm.SysOpen(0)
		sm.SysExit(0)
	})

	_, err := m.Spawn("opener")
	require.NoError(t, err)
	m.Run()

	assert.Error(t, openErr)
}

func TestDispatchOfUnknownSyscallPanics(t *testing.T) {
	m := newTestMachine()
	m.FS.Create("bogus", buildMinimalELF(t))

	_, err := m.Sched.Spawn("bogus", thread.PriDefault, func(s *sched.Scheduler, self *thread.TCB) {
		proc := process.New(1, "bogus", nil)
		self.Proc = proc
		m.mu.Lock()
		m.byPID[1] = &procState{proc: proc, dir: pagedir.Create(), spt: vm.NewSupplementalPageTable(), self: self}
		m.mu.Unlock()
		assert.Panics(t, func() {
			_, _ = m.Dispatch(self, syscall.Num(99), syscall.Args{})
		})
	})
	require.NoError(t, err)
	m.Run()
}
