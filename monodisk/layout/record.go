package layout

import (
	"github.com/rarydzu/monodisk/utils"
)

const (
	// NameSize is the on-disk width of a file name
	NameSize = 11
	// EntrySize is name + size(2) + firstBlock(2)
	EntrySize = NameSize + 4
	// NodeSize is blockIndex(4) + next(4)
	NodeSize = 8
	// FlagSize is one free/used byte per block
	FlagSize = 1

	// Empty marks a file entry without blocks
	Empty = -1
	// End terminates a block chain
	End = -1
)

// FileEntry describes one slot of the file table. A slot with an empty name is unused.
type FileEntry struct {
	Name       string
	Size       uint16
	FirstBlock int16
}

// ChainNode links a data block to the following block of the same file.
type ChainNode struct {
	BlockIndex int32
	Next       int32
}

// IsEmpty reports whether the slot holds no file
func (e FileEntry) IsEmpty() bool {
	return e.Name == ""
}

func (e FileEntry) Encode(buf []byte) {
	copy(buf[0:NameSize], utils.PadName(e.Name, NameSize))
	copy(buf[NameSize:NameSize+2], utils.Uint16ToBytes(e.Size))
	copy(buf[NameSize+2:EntrySize], utils.Int16ToBytes(e.FirstBlock))
}

func (e *FileEntry) Decode(data []byte) {
	e.Name = utils.TrimName(data[0:NameSize])
	e.Size = utils.BytesToUint16(data[NameSize : NameSize+2])
	e.FirstBlock = utils.BytesToInt16(data[NameSize+2 : EntrySize])
}

func (n ChainNode) Encode(buf []byte) {
	copy(buf[0:4], utils.Int32ToBytes(n.BlockIndex))
	copy(buf[4:NodeSize], utils.Int32ToBytes(n.Next))
}

func (n *ChainNode) Decode(data []byte) {
	n.BlockIndex = utils.BytesToInt32(data[0:4])
	n.Next = utils.BytesToInt32(data[4:NodeSize])
}
