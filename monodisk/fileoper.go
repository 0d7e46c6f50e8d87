package monodisk

import (
	"fmt"
	"math"
	"sync"

	"github.com/rarydzu/monodisk/monodisk/layout"
	"github.com/rarydzu/monodisk/utils"
)

// lookup resolves name to its table slot. lock is the file lock the caller holds, nil
// when the caller holds none. Caller holds mu.
func (d *Disk) lookup(name string, lock *sync.RWMutex) (int, error) {
	if d.closed {
		return -1, ErrClosed
	}
	// the file was deleted while the caller waited for its lock
	if lock != nil && !d.locks.Current(name, lock) {
		return -1, notFound(name)
	}
	slot := d.meta.Lookup(name)
	if slot < 0 {
		return -1, notFound(name)
	}
	return slot, nil
}

// CreateFile adds an empty file to the table
func (d *Disk) CreateFile(name string) error {
	if err := ValidateName(name); err != nil {
		return d.failed("CreateFile", name, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.meta.Lookup(name) >= 0 {
		return d.failed("CreateFile", name, fmt.Errorf("%w: %s", ErrAlreadyExists, name))
	}
	slot := d.meta.FreeSlot()
	if slot < 0 {
		return d.failed("CreateFile", name, fmt.Errorf("%w: %d files", ErrTableFull, len(d.meta.Entries)))
	}
	err := d.mutate(func() error {
		d.meta.Entries[slot] = layout.FileEntry{Name: name, FirstBlock: layout.Empty}
		return nil
	})
	if err != nil {
		return d.failed("CreateFile", name, err)
	}
	d.locks.Register(name)
	d.log.Debugf("CreateFile(%s): slot %d", name, slot)
	return nil
}

// WriteFile replaces the content of an existing file. The new chain is allocated and
// written before the old one is released, so a failed write keeps the old content.
func (d *Disk) WriteFile(name string, content []byte) error {
	lock, ok := d.locks.Get(name)
	if !ok {
		return d.failed("WriteFile", name, notFound(name))
	}
	lock.Lock()
	defer lock.Unlock()
	d.mu.Lock()
	defer d.mu.Unlock()

	slot, err := d.lookup(name, lock)
	if err != nil {
		return d.failed("WriteFile", name, err)
	}
	if len(content) > math.MaxUint16 {
		return d.failed("WriteFile", name,
			fmt.Errorf("%w: file too large: %d bytes, limit %d", ErrInsufficientSpace, len(content), math.MaxUint16))
	}
	bs := d.meta.BlockSize()
	needed := utils.CeilDiv(len(content), bs)
	if free := d.alloc.CountFree(); free < needed {
		return d.failed("WriteFile", name,
			fmt.Errorf("%w: file too large: need %d blocks, %d free", ErrInsufficientSpace, needed, free))
	}

	old := d.meta.Entries[slot]
	err = d.mutate(func() error {
		blocks, err := d.alloc.Allocate(needed)
		if err != nil {
			return err
		}
		for i, b := range blocks {
			end := (i + 1) * bs
			if end > len(content) {
				end = len(content)
			}
			if err := d.store.WriteBlock(b, content[i*bs:end]); err != nil {
				return err
			}
		}
		if old.FirstBlock != layout.Empty {
			if err := d.alloc.Free(int(old.FirstBlock), nil); err != nil {
				return err
			}
		}
		first := int16(layout.Empty)
		if len(blocks) > 0 {
			first = int16(blocks[0])
		}
		d.meta.Entries[slot] = layout.FileEntry{Name: name, Size: uint16(len(content)), FirstBlock: first}
		return nil
	})
	if err != nil {
		return d.failed("WriteFile", name, err)
	}
	d.log.Debugf("WriteFile(%s): %d bytes in %d blocks", name, len(content), needed)
	return nil
}

// ReadFile returns the content of a file
func (d *Disk) ReadFile(name string) ([]byte, error) {
	lock, ok := d.locks.Get(name)
	if !ok {
		return nil, d.failed("ReadFile", name, notFound(name))
	}
	lock.RLock()
	defer lock.RUnlock()
	d.mu.Lock()
	defer d.mu.Unlock()

	slot, err := d.lookup(name, lock)
	if err != nil {
		return nil, d.failed("ReadFile", name, err)
	}
	entry := d.meta.Entries[slot]
	content := make([]byte, int(entry.Size))
	off := 0
	for b := int(entry.FirstBlock); b != layout.End && off < len(content); b = int(d.meta.Nodes[b].Next) {
		buf, err := d.store.ReadBlock(b)
		if err != nil {
			return nil, d.failed("ReadFile", name, err)
		}
		off += copy(content[off:], buf)
	}
	return content, nil
}

// DeleteFile zeroes the blocks of a file and removes it from the table
func (d *Disk) DeleteFile(name string) error {
	lock, ok := d.locks.Get(name)
	if !ok {
		return d.failed("DeleteFile", name, notFound(name))
	}
	lock.Lock()
	defer lock.Unlock()
	d.mu.Lock()
	defer d.mu.Unlock()

	slot, err := d.lookup(name, lock)
	if err != nil {
		return d.failed("DeleteFile", name, err)
	}
	entry := d.meta.Entries[slot]
	err = d.mutate(func() error {
		if entry.FirstBlock != layout.Empty {
			if err := d.alloc.Free(int(entry.FirstBlock), d.store.ZeroBlock); err != nil {
				return err
			}
		}
		d.meta.Entries[slot] = layout.EmptyEntry()
		return nil
	})
	if err != nil {
		return d.failed("DeleteFile", name, err)
	}
	// retired under mu, so a CreateFile of the same name registers a fresh lock
	d.locks.Retire(name, lock)
	d.log.Debugf("DeleteFile(%s): slot %d", name, slot)
	return nil
}

// ListFiles returns names of all files in table order
func (d *Disk) ListFiles() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.meta.Names()
}

// StatFile returns size and block usage of a file
func (d *Disk) StatFile(name string) (FileInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	slot, err := d.lookup(name, nil)
	if err != nil {
		return FileInfo{}, err
	}
	entry := d.meta.Entries[slot]
	info := FileInfo{Name: entry.Name, Size: int(entry.Size)}
	if entry.FirstBlock != layout.Empty {
		info.Blocks = len(d.alloc.Chain(int(entry.FirstBlock)))
	}
	return info, nil
}
