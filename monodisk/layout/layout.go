// Package layout holds the metadata region of the disk: the file table, the block
// chain table and the free block bitmap, and their fixed binary encoding.
package layout

import (
	"errors"
	"fmt"

	"github.com/rarydzu/monodisk/utils"
	"github.com/ztrue/tracerr"
)

var ErrStorageCorruption = errors.New("storage corruption")

// Metadata is the in-memory image of the metadata region.
type Metadata struct {
	Entries []FileEntry
	Nodes   []ChainNode
	// Free holds one flag per block, true = free
	Free []bool

	blockSize      int
	dataBlockStart int
}

// RegionSize returns number of bytes used by the metadata region
func RegionSize(maxFiles, maxBlocks int) int {
	return maxFiles*EntrySize + maxBlocks*(NodeSize+FlagSize)
}

// MetadataBlocks returns number of blocks occupied by the metadata region
func MetadataBlocks(maxFiles, maxBlocks, blockSize int) int {
	return utils.CeilDiv(RegionSize(maxFiles, maxBlocks), blockSize)
}

func EmptyEntry() FileEntry {
	return FileEntry{FirstBlock: Empty}
}

// New returns the image of a freshly formatted disk
func New(maxFiles, maxBlocks, blockSize int) *Metadata {
	m := &Metadata{
		Entries:        make([]FileEntry, maxFiles),
		Nodes:          make([]ChainNode, maxBlocks),
		Free:           make([]bool, maxBlocks),
		blockSize:      blockSize,
		dataBlockStart: MetadataBlocks(maxFiles, maxBlocks, blockSize),
	}
	for i := range m.Entries {
		m.Entries[i] = EmptyEntry()
	}
	for i := range m.Nodes {
		m.Nodes[i] = ChainNode{BlockIndex: int32(i), Next: End}
		m.Free[i] = i >= m.dataBlockStart
	}
	return m
}

// BlockSize returns size of a block in bytes
func (m *Metadata) BlockSize() int {
	return m.blockSize
}

// DataBlockStart returns index of the first data block
func (m *Metadata) DataBlockStart() int {
	return m.dataBlockStart
}

// MaxBlocks returns number of blocks on the medium
func (m *Metadata) MaxBlocks() int {
	return len(m.Nodes)
}

// IsDataBlock reports whether index lies inside the data region
func (m *Metadata) IsDataBlock(index int) bool {
	return index >= m.dataBlockStart && index < len(m.Nodes)
}

// Lookup returns slot of the file with given name or -1
func (m *Metadata) Lookup(name string) int {
	for i, e := range m.Entries {
		if !e.IsEmpty() && e.Name == name {
			return i
		}
	}
	return -1
}

// FreeSlot returns the first unused slot or -1
func (m *Metadata) FreeSlot() int {
	for i, e := range m.Entries {
		if e.IsEmpty() {
			return i
		}
	}
	return -1
}

// Names returns names of all files in slot order
func (m *Metadata) Names() []string {
	names := []string{}
	for _, e := range m.Entries {
		if !e.IsEmpty() {
			names = append(names, e.Name)
		}
	}
	return names
}

// Files returns number of used slots
func (m *Metadata) Files() int {
	n := 0
	for _, e := range m.Entries {
		if !e.IsEmpty() {
			n++
		}
	}
	return n
}

// Encode serializes the whole region: entries, then nodes, then bitmap
func (m *Metadata) Encode() []byte {
	buf := make([]byte, RegionSize(len(m.Entries), len(m.Nodes)))
	off := 0
	for _, e := range m.Entries {
		e.Encode(buf[off : off+EntrySize])
		off += EntrySize
	}
	for _, n := range m.Nodes {
		n.Encode(buf[off : off+NodeSize])
		off += NodeSize
	}
	for _, free := range m.Free {
		if free {
			buf[off] = 1
		}
		off += FlagSize
	}
	return buf
}

// Decode parses a metadata region and checks its invariants
func Decode(data []byte, maxFiles, maxBlocks, blockSize int) (*Metadata, error) {
	size := RegionSize(maxFiles, maxBlocks)
	if len(data) < size {
		return nil, tracerr.Errorf("%w: metadata region truncated: %d < %d bytes", ErrStorageCorruption, len(data), size)
	}
	m := New(maxFiles, maxBlocks, blockSize)
	off := 0
	for i := range m.Entries {
		var e FileEntry
		e.Decode(data[off : off+EntrySize])
		if e.IsEmpty() {
			e = EmptyEntry()
		}
		m.Entries[i] = e
		off += EntrySize
	}
	for i := range m.Nodes {
		m.Nodes[i].Decode(data[off : off+NodeSize])
		off += NodeSize
	}
	for i := range m.Free {
		switch data[off] {
		case 0:
			m.Free[i] = false
		case 1:
			m.Free[i] = true
		default:
			return nil, tracerr.Errorf("%w: block %d has free flag %d", ErrStorageCorruption, i, data[off])
		}
		off += FlagSize
	}
	if err := m.Validate(); err != nil {
		return nil, tracerr.Wrap(err)
	}
	return m, nil
}

// Validate checks the layout invariants of the image
func (m *Metadata) Validate() error {
	owner := make([]int, len(m.Nodes))
	for i := range owner {
		owner[i] = -1
	}
	for i, n := range m.Nodes {
		if int(n.BlockIndex) != i {
			return fmt.Errorf("%w: node %d claims block %d", ErrStorageCorruption, i, n.BlockIndex)
		}
		if n.Next != End && !m.IsDataBlock(int(n.Next)) {
			return fmt.Errorf("%w: node %d links to block %d outside data region", ErrStorageCorruption, i, n.Next)
		}
	}
	for i := 0; i < m.dataBlockStart && i < len(m.Free); i++ {
		if m.Free[i] {
			return fmt.Errorf("%w: metadata block %d marked free", ErrStorageCorruption, i)
		}
	}
	for slot, e := range m.Entries {
		if e.IsEmpty() {
			continue
		}
		if other := m.Lookup(e.Name); other != slot {
			return fmt.Errorf("%w: name %q used by slots %d and %d", ErrStorageCorruption, e.Name, other, slot)
		}
		want := utils.CeilDiv(int(e.Size), m.blockSize)
		if e.FirstBlock == Empty {
			if want != 0 {
				return fmt.Errorf("%w: file %q has size %d but no blocks", ErrStorageCorruption, e.Name, e.Size)
			}
			continue
		}
		if !m.IsDataBlock(int(e.FirstBlock)) {
			return fmt.Errorf("%w: file %q starts at block %d outside data region", ErrStorageCorruption, e.Name, e.FirstBlock)
		}
		count := 0
		for b := int32(e.FirstBlock); b != End; b = m.Nodes[b].Next {
			if owner[b] != -1 {
				return fmt.Errorf("%w: block %d reachable twice (file %q)", ErrStorageCorruption, b, e.Name)
			}
			if m.Free[b] {
				return fmt.Errorf("%w: block %d of file %q marked free", ErrStorageCorruption, b, e.Name)
			}
			owner[b] = slot
			count++
		}
		if count != want {
			return fmt.Errorf("%w: file %q has %d blocks, size %d needs %d", ErrStorageCorruption, e.Name, count, e.Size, want)
		}
	}
	for i := m.dataBlockStart; i < len(m.Free); i++ {
		if !m.Free[i] && owner[i] == -1 {
			return fmt.Errorf("%w: block %d used but owned by no file", ErrStorageCorruption, i)
		}
	}
	return nil
}

// Clone returns a deep copy of the image
func (m *Metadata) Clone() *Metadata {
	c := &Metadata{
		Entries:        make([]FileEntry, len(m.Entries)),
		Nodes:          make([]ChainNode, len(m.Nodes)),
		Free:           make([]bool, len(m.Free)),
		blockSize:      m.blockSize,
		dataBlockStart: m.dataBlockStart,
	}
	copy(c.Entries, m.Entries)
	copy(c.Nodes, m.Nodes)
	copy(c.Free, m.Free)
	return c
}

// Restore copies the tables of snap back into m
func (m *Metadata) Restore(snap *Metadata) {
	copy(m.Entries, snap.Entries)
	copy(m.Nodes, snap.Nodes)
	copy(m.Free, snap.Free)
}
