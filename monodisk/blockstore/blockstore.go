// Package blockstore addresses the backing medium as an array of fixed-size blocks.
package blockstore

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ztrue/tracerr"
)

var (
	ErrIO         = errors.New("i/o failure")
	ErrShortRead  = fmt.Errorf("%w: short read", ErrIO)
	ErrOutOfRange = errors.New("block index out of range")
)

// Medium is both a ReaderAt and a WriterAt.
type Medium interface {
	io.ReaderAt
	io.WriterAt
}

type syncer interface {
	Sync() error
}

type Store struct {
	medium    Medium
	blockSize int
	blocks    int
}

// New wraps medium as a store of blocks*blockSize bytes
func New(medium Medium, blockSize, blocks int) *Store {
	return &Store{
		medium:    medium,
		blockSize: blockSize,
		blocks:    blocks,
	}
}

// OpenFile opens or creates the backing file. fresh reports whether the file was
// absent or empty; a fresh file is expanded to the full medium size.
func OpenFile(path string, blockSize, blocks int) (store *Store, fresh bool, err error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0640)
	if err != nil {
		return nil, false, ioFailure("open "+path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, false, ioFailure("stat "+path, err)
	}
	if info.Size() == 0 {
		fresh = true
		if err := f.Truncate(int64(blocks) * int64(blockSize)); err != nil {
			f.Close()
			return nil, false, ioFailure("truncate "+path, err)
		}
	}
	return New(f, blockSize, blocks), fresh, nil
}

// BlockSize returns size of single block in bytes
func (s *Store) BlockSize() int {
	return s.blockSize
}

// Blocks returns number of blocks on the medium
func (s *Store) Blocks() int {
	return s.blocks
}

func (s *Store) offset(index int) (int64, error) {
	if index < 0 || index >= s.blocks {
		return 0, fmt.Errorf("%w: %d", ErrOutOfRange, index)
	}
	return int64(index) * int64(s.blockSize), nil
}

// ReadBlock returns the content of a whole block
func (s *Store) ReadBlock(index int) ([]byte, error) {
	off, err := s.offset(index)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, s.blockSize)
	if err := s.ReadAt(buf, off); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteBlock writes data at the start of a block, zero padding the rest
func (s *Store) WriteBlock(index int, data []byte) error {
	off, err := s.offset(index)
	if err != nil {
		return err
	}
	if len(data) > s.blockSize {
		return fmt.Errorf("block %d: %d bytes exceed block size %d", index, len(data), s.blockSize)
	}
	buf := data
	if len(data) < s.blockSize {
		buf = make([]byte, s.blockSize)
		copy(buf, data)
	}
	return s.WriteAt(buf, off)
}

// ZeroBlock overwrites a block with zero bytes
func (s *Store) ZeroBlock(index int) error {
	return s.WriteBlock(index, nil)
}

// ReadAt fills buf from the medium; a short read is a failure
func (s *Store) ReadAt(buf []byte, off int64) error {
	n, err := s.medium.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || err == io.EOF {
		return tracerr.Errorf("%w: %d of %d bytes at %d", ErrShortRead, n, len(buf), off)
	}
	return ioFailure(fmt.Sprintf("read %d bytes at %d", len(buf), off), err)
}

// WriteAt writes buf to the medium; a short write is a failure
func (s *Store) WriteAt(buf []byte, off int64) error {
	n, err := s.medium.WriteAt(buf, off)
	if err == nil && n != len(buf) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return ioFailure(fmt.Sprintf("write %d bytes at %d", len(buf), off), err)
	}
	return nil
}

// Sync flushes the medium if it supports it
func (s *Store) Sync() error {
	if sm, ok := s.medium.(syncer); ok {
		if err := sm.Sync(); err != nil {
			return ioFailure("sync", err)
		}
	}
	return nil
}

// Close releases the medium if it is closable
func (s *Store) Close() error {
	if c, ok := s.medium.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return ioFailure("close", err)
		}
	}
	return nil
}

func ioFailure(op string, err error) error {
	return tracerr.Errorf("%w: %s: %v", ErrIO, op, err)
}
