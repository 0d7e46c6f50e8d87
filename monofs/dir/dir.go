package dir

import (
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
)

type FsDir struct {
	inode    fuseops.InodeID
	dentries []fuseutil.Dirent
}

// New creates new FsDir object over a snapshot of the directory entries
func New(inode fuseops.InodeID, dentries []fuseutil.Dirent) *FsDir {
	for x := range dentries {
		dentries[x].Offset = fuseops.DirOffset(x + 1)
	}
	return &FsDir{
		inode:    inode,
		dentries: dentries,
	}
}

// GetDentries returns entries starting at offset
func (dir *FsDir) GetDentries(offset fuseops.DirOffset) []fuseutil.Dirent {
	if int(offset) >= len(dir.dentries) {
		return nil
	}
	return dir.dentries[offset:]
}

// GetInodeID returns inode id
func (dir *FsDir) GetInodeID() fuseops.InodeID {
	return dir.inode
}

// CacheSize returns number of entries in the snapshot
func (dir *FsDir) CacheSize() int {
	return len(dir.dentries)
}
