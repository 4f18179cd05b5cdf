package thread

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLock struct{ prio int32 }

func (f *fakeLock) EffectivePriority() int32 { return f.prio }

func TestRegistryAssignsMonotonicUniqueIDs(t *testing.T) {
	r := NewRegistry()
	a := r.Create("a", PriDefault)
	b := r.Create("b", PriDefault)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a, r.Lookup(a.ID))
	r.Reap(a.ID)
	assert.Nil(t, r.Lookup(a.ID))
}

func TestEffectivePriorityIsMaxOfBaseAndDonations(t *testing.T) {
	r := NewRegistry()
	th := r.Create("t", 31)
	assert.EqualValues(t, 31, th.EffectivePriority())

	th.AddHeldLock(&fakeLock{prio: 20})
	assert.EqualValues(t, 31, th.EffectivePriority(), "donation below base must not lower effective priority")

	th.AddHeldLock(&fakeLock{prio: 50})
	assert.EqualValues(t, 50, th.EffectivePriority())

	th.RemoveHeldLock(&fakeLock{prio: 50})
	// removing a distinct pointer value is a no-op; real locks are stable pointers.
	assert.EqualValues(t, 50, th.EffectivePriority())
}

func TestHeldLocksStayOrderedDescending(t *testing.T) {
	th := newTCB(1, 0, "t", 31)
	l1 := &fakeLock{prio: 10}
	l2 := &fakeLock{prio: 40}
	l3 := &fakeLock{prio: 25}
	th.AddHeldLock(l1)
	th.AddHeldLock(l2)
	th.AddHeldLock(l3)
	require.Len(t, th.HeldLocks, 3)
	assert.Equal(t, l2, th.HeldLocks[0])
	assert.Equal(t, l3, th.HeldLocks[1])
	assert.Equal(t, l1, th.HeldLocks[2])
}

func TestReadyQueueOrdersByPriorityThenFIFO(t *testing.T) {
	r := NewRegistry()
	low := r.Create("low", 10)
	hi := r.Create("hi", 50)
	mid1 := r.Create("mid1", 30)
	mid2 := r.Create("mid2", 30)

	q := NewReadyQueue()
	q.Push(low)
	q.Push(hi)
	q.Push(mid1)
	q.Push(mid2)

	assert.Equal(t, hi, q.Pop())
	assert.Equal(t, mid1, q.Pop(), "equal priority ties break FIFO by insertion order")
	assert.Equal(t, mid2, q.Pop())
	assert.Equal(t, low, q.Pop())
	assert.Nil(t, q.Pop())
}

func TestSleepQueuePopDueStopsAtFirstFuture(t *testing.T) {
	r := NewRegistry()
	a := r.Create("a", PriDefault)
	b := r.Create("b", PriDefault)
	c := r.Create("c", PriDefault)
	a.WakeupTick = 30
	b.WakeupTick = 10
	c.WakeupTick = 20

	q := NewSleepQueue()
	q.Push(a)
	q.Push(b)
	q.Push(c)

	due := q.PopDue(15)
	require.Len(t, due, 1)
	assert.Equal(t, b, due[0])

	due = q.PopDue(25)
	require.Len(t, due, 1)
	assert.Equal(t, c, due[0])

	due = q.PopDue(100)
	require.Len(t, due, 1)
	assert.Equal(t, a, due[0])

	assert.Equal(t, 0, q.Len())
}
