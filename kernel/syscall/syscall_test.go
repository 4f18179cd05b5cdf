package syscall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMachine struct {
	exitStatus int32
	halted     bool
	writeN     int32
	writeErr   error
}

func (f *fakeMachine) SysHalt()                                                 { f.halted = true }
func (f *fakeMachine) SysExit(status int32)                                     { f.exitStatus = status }
func (f *fakeMachine) SysExec(uint32) (int32, error)                            { return 7, nil }
func (f *fakeMachine) SysWait(int32) (int32, error)                             { return 0, nil }
func (f *fakeMachine) SysCreate(uint32, uint32) (bool, error)                   { return true, nil }
func (f *fakeMachine) SysRemove(uint32) (bool, error)                           { return false, nil }
func (f *fakeMachine) SysOpen(uint32) (int32, error)                            { return 2, nil }
func (f *fakeMachine) SysFilesize(int32) (int32, error)                        { return 123, nil }
func (f *fakeMachine) SysRead(int32, uint32, uint32) (int32, error)             { return 5, nil }
func (f *fakeMachine) SysWrite(int32, uint32, uint32) (int32, error)            { return f.writeN, f.writeErr }
func (f *fakeMachine) SysSeek(int32, uint32) error                              { return nil }
func (f *fakeMachine) SysTell(int32) (uint32, error)                            { return 42, nil }
func (f *fakeMachine) SysClose(int32) error                                     { return nil }

func TestDispatchExitUpdatesMachineStatus(t *testing.T) {
	m := &fakeMachine{}
	_, err := Dispatch(m, Exit, Args{A0: 0xFFFFFFFF}) // -1 as uint32
	require.NoError(t, err)
	assert.Equal(t, int32(-1), m.exitStatus)
}

func TestDispatchCreateReturnsBoolAsInt(t *testing.T) {
	m := &fakeMachine{}
	ret, err := Dispatch(m, Create, Args{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), ret)
}

func TestDispatchWritePropagatesError(t *testing.T) {
	m := &fakeMachine{writeN: -1, writeErr: assert.AnError}
	_, err := Dispatch(m, Write, Args{A0: 1})
	assert.Error(t, err)
}

func TestDispatchUnknownNumberPanics(t *testing.T) {
	m := &fakeMachine{}
	assert.Panics(t, func() {
		Dispatch(m, Num(99), Args{})
	})
}
