// Package monodisk keeps a small flat file store inside a single disk file.
//
// Two lock classes protect it. Every file has a reader/writer lock taken first by the
// operations that touch an existing file (read, write, delete). A single metadata mutex
// is taken second and guards the file table, the chain table, the free bitmap and the
// metadata save. Locks are released in reverse order and no operation holds two file
// locks, so the order can not cycle.
package monodisk

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rarydzu/monodisk/monodisk/allocator"
	"github.com/rarydzu/monodisk/monodisk/blockstore"
	"github.com/rarydzu/monodisk/monodisk/config"
	"github.com/rarydzu/monodisk/monodisk/filelock"
	"github.com/rarydzu/monodisk/monodisk/layout"
	"github.com/ztrue/tracerr"
	"go.uber.org/zap"
)

type Disk struct {
	log   *zap.SugaredLogger
	cfg   *config.Config
	store *blockstore.Store
	meta  *layout.Metadata
	alloc *allocator.Allocator
	locks *filelock.Registry
	// mu is the global metadata mutex
	mu     sync.Mutex
	closed bool
}

// FileInfo describes a stored file
type FileInfo struct {
	Name   string
	Size   int
	Blocks int
}

// Stats describes disk usage
type Stats struct {
	BlockSize  int
	Blocks     int
	DataBlocks int
	FreeBlocks int
	Files      int
	MaxFiles   int
}

// Open opens the disk file named in cfg, formatting it when it is absent or empty
func Open(cfg *config.Config, log *zap.SugaredLogger) (*Disk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, fresh, err := blockstore.OpenFile(cfg.Path, cfg.BlockSize, cfg.MaxBlocks())
	if err != nil {
		return nil, err
	}
	d, err := attach(store, fresh, cfg, log)
	if err != nil {
		store.Close()
		return nil, err
	}
	return d, nil
}

func attach(store *blockstore.Store, fresh bool, cfg *config.Config, log *zap.SugaredLogger) (*Disk, error) {
	d := &Disk{
		log:   log,
		cfg:   cfg,
		store: store,
		locks: filelock.New(cfg.MaxFiles),
	}
	if fresh {
		d.meta = layout.New(cfg.MaxFiles, cfg.MaxBlocks(), cfg.BlockSize)
		if err := d.saveMetadata(); err != nil {
			return nil, err
		}
		log.Infof("formatted %s: %d blocks of %d bytes, data starts at block %d",
			cfg.Path, cfg.MaxBlocks(), cfg.BlockSize, d.meta.DataBlockStart())
	} else {
		meta, err := d.loadMetadata()
		if err != nil {
			return nil, err
		}
		d.meta = meta
		for _, name := range meta.Names() {
			d.locks.Register(name)
		}
		log.Infof("loaded %s: %d files", cfg.Path, len(meta.Names()))
	}
	d.alloc = allocator.New(d.meta)
	return d, nil
}

func (d *Disk) loadMetadata() (*layout.Metadata, error) {
	buf := make([]byte, layout.RegionSize(d.cfg.MaxFiles, d.cfg.MaxBlocks()))
	if err := d.store.ReadAt(buf, 0); err != nil {
		if errors.Is(err, blockstore.ErrShortRead) {
			return nil, tracerr.Errorf("%w: %v", ErrStorageCorruption, err)
		}
		return nil, err
	}
	return layout.Decode(buf, d.cfg.MaxFiles, d.cfg.MaxBlocks(), d.cfg.BlockSize)
}

// saveMetadata rewrites the whole metadata region. Caller holds mu.
func (d *Disk) saveMetadata() error {
	if err := d.store.WriteAt(d.meta.Encode(), 0); err != nil {
		return err
	}
	if d.cfg.SyncWrites {
		return d.store.Sync()
	}
	return nil
}

// mutate applies change and persists it. On any failure the tables are restored, so
// a failed operation leaves the in-memory state as it was. Caller holds mu.
func (d *Disk) mutate(change func() error) error {
	snap := d.meta.Clone()
	if err := change(); err != nil {
		d.meta.Restore(snap)
		return err
	}
	if err := d.saveMetadata(); err != nil {
		d.meta.Restore(snap)
		return err
	}
	return nil
}

// failed logs err at a level matching its class and returns it
func (d *Disk) failed(op, name string, err error) error {
	if errors.Is(err, ErrIO) || errors.Is(err, ErrStorageCorruption) {
		d.log.Errorf("%s(%s): %v", op, name, err)
	} else {
		d.log.Debugf("%s(%s): %v", op, name, err)
	}
	return err
}

// Stats returns block and file usage
func (d *Disk) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		BlockSize:  d.meta.BlockSize(),
		Blocks:     d.meta.MaxBlocks(),
		DataBlocks: d.meta.MaxBlocks() - d.meta.DataBlockStart(),
		FreeBlocks: d.alloc.CountFree(),
		Files:      d.meta.Files(),
		MaxFiles:   len(d.meta.Entries),
	}
}

// Sync persists the metadata region again
func (d *Disk) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if err := d.saveMetadata(); err != nil {
		return d.failed("Sync", d.cfg.Path, err)
	}
	return nil
}

// Close persists the metadata and releases the medium
func (d *Disk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	serr := d.saveMetadata()
	cerr := d.store.Close()
	if serr != nil {
		return d.failed("Close", d.cfg.Path, serr)
	}
	if cerr != nil {
		return d.failed("Close", d.cfg.Path, cerr)
	}
	return nil
}

func (d *Disk) String() string {
	return fmt.Sprintf("monodisk(%s)", d.cfg.Path)
}
