package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kernelkit/pintos-go/kernel/sched"
	"github.com/kernelkit/pintos-go/kernel/thread"
)

type fakeFile struct{ closed bool }

func (f *fakeFile) Close() error { f.closed = true; return nil }

func TestFDTableReservesStdStreamsAndAllocatesAscending(t *testing.T) {
	tbl := NewFDTable()
	a := tbl.Install(&fakeFile{})
	b := tbl.Install(&fakeFile{})
	assert.Equal(t, 2, a)
	assert.Equal(t, 3, b)
}

func TestFDTableCloseAllClosesEveryFile(t *testing.T) {
	tbl := NewFDTable()
	f1, f2 := &fakeFile{}, &fakeFile{}
	tbl.Install(f1)
	tbl.Install(f2)
	tbl.CloseAll()
	assert.True(t, f1.closed)
	assert.True(t, f2.closed)
	assert.Equal(t, 0, tbl.Len())
}

// runOnScheduler spawns a single kernel thread, runs body with a
// sched.Scheduler wired through, and drives the scheduler to completion.
func runOnScheduler(t *testing.T, body func(s *sched.Scheduler, self *thread.TCB)) {
	t.Helper()
	s := sched.New()
	_, err := s.Spawn("t", thread.PriDefault, func(s *sched.Scheduler, self *thread.TCB) {
		body(s, self)
		s.Exit(self, 0)
	})
	require.NoError(t, err)
	s.Run()
}

func TestParentWaitsForChildLoadResult(t *testing.T) {
	var gotOK bool
	runOnScheduler(t, func(s *sched.Scheduler, self *thread.TCB) {
		parent := New(1, "parent", nil)
		child := New(2, "child", parent)

		done := make(chan struct{})
		childT, err := s.Spawn("child", thread.PriDefault, func(s *sched.Scheduler, childSelf *thread.TCB) {
			child.ReportLoad(s, true, nil)
			close(done)
		})
		require.NoError(t, err)
		_ = childT

		res := child.WaitForLoad(s)
		gotOK = res.OK
	})
	assert.True(t, gotOK)
}

func TestWaitReturnsFalseForUnknownChild(t *testing.T) {
	runOnScheduler(t, func(s *sched.Scheduler, self *thread.TCB) {
		parent := New(1, "parent", nil)
		_, ok := parent.Wait(s, 99)
		assert.False(t, ok)
	})
}

// TestExitUnblocksChildWhenParentAlreadyExited covers the case where the
// parent tears down before the child ever calls Exit: the child must see
// itself as already abandoned and return immediately instead of blocking
// forever for an acknowledging Wait that will never come.
func TestExitUnblocksChildWhenParentAlreadyExited(t *testing.T) {
	var childReturned bool
	runOnScheduler(t, func(s *sched.Scheduler, self *thread.TCB) {
		parent := New(1, "parent", nil)
		child := New(2, "child", parent)

		_, err := s.Spawn("childexit", thread.PriDefault, func(s *sched.Scheduler, childSelf *thread.TCB) {
			child.Exit(s, 9)
			childReturned = true
		})
		require.NoError(t, err)

		// The parent exits without ever calling Wait on child.
		parent.Exit(s, 0)
	})
	assert.True(t, childReturned)
}

// TestExitUnblocksChildAlreadyBlockedWhenParentExits covers the harder
// ordering: the child is already parked in Exit's acknowledgement wait
// when its parent tears down. The parent's exit must reach in and wake
// the blocked child rather than leaving it, and the goroutine backing it,
// parked forever.
func TestExitUnblocksChildAlreadyBlockedWhenParentExits(t *testing.T) {
	var childReturned bool
	runOnScheduler(t, func(s *sched.Scheduler, self *thread.TCB) {
		parent := New(1, "parent", nil)
		child := New(2, "child", parent)

		_, err := s.Spawn("childexit", thread.PriDefault, func(s *sched.Scheduler, childSelf *thread.TCB) {
			child.Exit(s, 9)
			childReturned = true
		})
		require.NoError(t, err)

		// Let the child thread run first and block inside Exit waiting for
		// an acknowledgement.
		s.Yield()

		// The parent exits without ever calling Wait on the still-blocked
		// child.
		parent.Exit(s, 0)
	})
	assert.True(t, childReturned)
}

func TestExitPublishesStatusToWaitingParent(t *testing.T) {
	var status int32
	var ok bool
	runOnScheduler(t, func(s *sched.Scheduler, self *thread.TCB) {
		parent := New(1, "parent", nil)
		child := New(2, "child", parent)

		_, err := s.Spawn("childexit", thread.PriDefault, func(s *sched.Scheduler, childSelf *thread.TCB) {
			child.Exit(s, 7)
		})
		require.NoError(t, err)

		status, ok = parent.Wait(s, child.PID)
	})
	assert.True(t, ok)
	assert.Equal(t, int32(7), status)
}
