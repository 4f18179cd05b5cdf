// Package fsys is a minimal in-memory filesystem standing in for an
// on-disk one: exactly enough to open, read, write, and deny-write an
// executable or data file, per §4.5/§4.6/§6. No filesys/*.c sources were
// available to ground this package on directly, so it is built straight
// from the named operations (filesys_open/file_read/file_deny_write/
// file_close).
package fsys

import (
	"fmt"
	"sync"
)

// inode is the shared, refcounted backing store for one named file; every
// open File handle to the same path shares one inode, so a deny-write
// taken out by one process-owned handle is visible to all.
type inode struct {
	mu         sync.Mutex
	data       []byte
	openCount  int
	denyWriteN int
}

// FS is an in-memory filesystem: a flat namespace of named byte blobs.
type FS struct {
	mu    sync.Mutex
	files map[string]*inode
}

// New returns an empty filesystem.
func New() *FS {
	return &FS{files: make(map[string]*inode)}
}

// Create adds a new file with the given initial contents, replacing any
// existing file of the same name.
func (fs *FS) Create(name string, data []byte) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.files[name] = &inode{data: append([]byte(nil), data...)}
}

// Open returns a handle to an existing file, or an error if it does not
// exist.
func (fs *FS) Open(name string) (*File, error) {
	fs.mu.Lock()
	ino, ok := fs.files[name]
	fs.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("fsys: %s: no such file", name)
	}
	ino.mu.Lock()
	ino.openCount++
	ino.mu.Unlock()
	return &File{name: name, ino: ino}, nil
}

// Length returns the length of an open file's contents.
func (fs *FS) Length(name string) (int64, error) {
	fs.mu.Lock()
	ino, ok := fs.files[name]
	fs.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("fsys: %s: no such file", name)
	}
	ino.mu.Lock()
	defer ino.mu.Unlock()
	return int64(len(ino.data)), nil
}

// File is one process's open handle to a filesystem entry.
type File struct {
	name       string
	ino        *inode
	pos        int64
	deniedHere bool
	closed     bool
}

// ReadAt implements vm.FileReader / elfbin's io.ReaderAt, used by the
// loader and the lazy page-fault path.
func (f *File) ReadAt(b []byte, off int64) (int, error) {
	f.ino.mu.Lock()
	defer f.ino.mu.Unlock()
	if off >= int64(len(f.ino.data)) {
		return 0, nil
	}
	n := copy(b, f.ino.data[off:])
	return n, nil
}

// WriteAt implements vm.FileWriter, used to flush dirty mmap pages on
// eviction; fails if a deny-write is in effect.
func (f *File) WriteAt(b []byte, off int64) (int, error) {
	f.ino.mu.Lock()
	defer f.ino.mu.Unlock()
	if f.ino.denyWriteN > 0 {
		return 0, fmt.Errorf("fsys: %s: write denied", f.name)
	}
	end := off + int64(len(b))
	if end > int64(len(f.ino.data)) {
		grown := make([]byte, end)
		copy(grown, f.ino.data)
		f.ino.data = grown
	}
	return copy(f.ino.data[off:], b), nil
}

// Read reads from the file's current position and advances it, matching
// file_read's stateful cursor semantics.
func (f *File) Read(b []byte) (int, error) {
	n, err := f.ReadAt(b, f.pos)
	f.pos += int64(n)
	return n, err
}

// Write writes to the file at its current position and advances it,
// matching file_write's stateful cursor semantics.
func (f *File) Write(b []byte) (int, error) {
	n, err := f.WriteAt(b, f.pos)
	f.pos += int64(n)
	return n, err
}

// Seek repositions the file's cursor.
func (f *File) Seek(pos int64) { f.pos = pos }

// Tell returns the file's current cursor position.
func (f *File) Tell() int64 { return f.pos }

// Length returns the current size of the file's backing data.
func (f *File) Length() int64 {
	f.ino.mu.Lock()
	defer f.ino.mu.Unlock()
	return int64(len(f.ino.data))
}

// DenyWrite implements file_deny_write: marks this file (for every handle
// sharing its inode) as non-writable for as long as any opener has denied
// it.
func (f *File) DenyWrite() {
	f.ino.mu.Lock()
	defer f.ino.mu.Unlock()
	if f.deniedHere {
		return
	}
	f.deniedHere = true
	f.ino.denyWriteN++
}

// AllowWrite reverses a prior DenyWrite by this handle.
func (f *File) AllowWrite() {
	f.ino.mu.Lock()
	defer f.ino.mu.Unlock()
	if !f.deniedHere {
		return
	}
	f.deniedHere = false
	f.ino.denyWriteN--
}

// Close releases this handle. Per §4.6, the last closer of a
// write-denied executable re-allows writes.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	if f.deniedHere {
		f.AllowWrite()
	}
	f.ino.mu.Lock()
	f.ino.openCount--
	f.ino.mu.Unlock()
	return nil
}
