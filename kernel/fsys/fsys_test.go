package fsys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenReadAndClose(t *testing.T) {
	fs := New()
	fs.Create("run.exe", []byte("payload"))

	f, err := fs.Open("run.exe")
	require.NoError(t, err)

	buf := make([]byte, 7)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, "payload", string(buf))
	require.NoError(t, f.Close())
}

func TestDenyWriteBlocksOtherHandles(t *testing.T) {
	fs := New()
	fs.Create("a.out", []byte("x"))

	owner, err := fs.Open("a.out")
	require.NoError(t, err)
	owner.DenyWrite()

	writer, err := fs.Open("a.out")
	require.NoError(t, err)
	_, err = writer.WriteAt([]byte("y"), 0)
	assert.Error(t, err)

	require.NoError(t, owner.Close())
	_, err = writer.WriteAt([]byte("y"), 0)
	assert.NoError(t, err)
}

func TestOpenMissingFileFails(t *testing.T) {
	fs := New()
	_, err := fs.Open("nope")
	assert.Error(t, err)
}
