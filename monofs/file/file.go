package file

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/jacobsa/fuse/fuseops"
)

// MaxSize is the largest content a file can hold
const MaxSize = math.MaxUint16

var ErrTooLarge = errors.New("file too large")

// Store persists whole file contents
type Store interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, content []byte) error
}

// FsFile buffers the content of an open file. Writes stay in the buffer until Sync
// replaces the stored content with it.
type FsFile struct {
	store  Store
	name   string
	inode  fuseops.InodeID
	handle fuseops.HandleID
	mu     sync.Mutex
	data   []byte
	dirty  bool
}

// Open loads the stored content of name
func Open(store Store, name string, inode fuseops.InodeID, handle fuseops.HandleID) (*FsFile, error) {
	data, err := store.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return New(store, name, inode, handle, data), nil
}

// New creates new FsFile object with data as its content
func New(store Store, name string, inode fuseops.InodeID, handle fuseops.HandleID, data []byte) *FsFile {
	return &FsFile{
		store:  store,
		name:   name,
		inode:  inode,
		handle: handle,
		data:   data,
	}
}

func (file *FsFile) GetName() string {
	return file.name
}

func (file *FsFile) GetInode() fuseops.InodeID {
	return file.inode
}

func (file *FsFile) GetHandle() fuseops.HandleID {
	return file.handle
}

// GetSize returns size of the buffered content
func (file *FsFile) GetSize() uint64 {
	file.mu.Lock()
	defer file.mu.Unlock()
	return uint64(len(file.data))
}

// Dirty reports whether the buffer holds unsynced writes
func (file *FsFile) Dirty() bool {
	file.mu.Lock()
	defer file.mu.Unlock()
	return file.dirty
}

func (file *FsFile) ReadAt(b []byte, off int64) (n int, err error) {
	file.mu.Lock()
	defer file.mu.Unlock()
	if off >= int64(len(file.data)) {
		return 0, nil
	}
	n = copy(b, file.data[off:])
	return
}

func (file *FsFile) WriteAt(b []byte, off int64) (n int, err error) {
	file.mu.Lock()
	defer file.mu.Unlock()
	end := off + int64(len(b))
	if end > MaxSize {
		return 0, fmt.Errorf("%w: %s would grow to %d bytes", ErrTooLarge, file.name, end)
	}
	// Extend the file if necessary.
	if int64(len(file.data)) < end {
		file.data = append(file.data, make([]byte, end-int64(len(file.data)))...)
	}
	n = copy(file.data[off:], b)
	file.dirty = true
	return
}

// Truncate cuts or zero-extends the buffer to size
func (file *FsFile) Truncate(size int64) error {
	file.mu.Lock()
	defer file.mu.Unlock()
	if size > MaxSize {
		return fmt.Errorf("%w: %s truncated to %d bytes", ErrTooLarge, file.name, size)
	}
	if size <= int64(len(file.data)) {
		file.data = file.data[:size]
	} else {
		file.data = append(file.data, make([]byte, size-int64(len(file.data)))...)
	}
	file.dirty = true
	return nil
}

// Sync replaces the stored content with the buffer when it changed
func (file *FsFile) Sync() error {
	file.mu.Lock()
	defer file.mu.Unlock()
	if !file.dirty {
		return nil
	}
	if err := file.store.WriteFile(file.name, file.data); err != nil {
		return err
	}
	file.dirty = false
	return nil
}
