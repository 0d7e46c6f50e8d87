package monofs

import (
	"context"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	monodir "github.com/rarydzu/monodisk/monofs/dir"
)

// OpenDir opens the root directory for reading.
func (fs *Monofs) OpenDir(
	ctx context.Context,
	op *fuseops.OpenDirOp) error {
	if op.Inode != fuseops.RootInodeID {
		if _, ok := fs.nameOf(op.Inode); ok {
			return fuse.ENOTDIR
		}
		return fuse.ENOENT
	}
	names := fs.disk.ListFiles()
	dentries := make([]fuseutil.Dirent, 0, len(names))
	for _, name := range names {
		dentries = append(dentries, fuseutil.Dirent{
			Inode: fs.inodeOf(name),
			Name:  name,
			Type:  fuseutil.DT_File,
		})
	}
	op.Handle = fs.NextHandle()
	fs.addDirHandle(op.Handle, monodir.New(op.Inode, dentries))
	return nil
}

// ReadDir reads a directory.
func (fs *Monofs) ReadDir(
	ctx context.Context,
	op *fuseops.ReadDirOp) error {
	dir, ok := fs.dirHandle(op.Handle)
	if !ok {
		return fuse.ENOTDIR
	}
	if op.Inode != dir.GetInodeID() {
		fs.log.Errorf("ReadDir(%d): wrong inode %d", op.Inode, dir.GetInodeID())
		return fuse.EINVAL
	}
	for _, dirent := range dir.GetDentries(op.Offset) {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], dirent)
		// Stop if we've filled the buffer.
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

// ReleaseDirHandle releases a directory handle.
func (fs *Monofs) ReleaseDirHandle(
	ctx context.Context,
	op *fuseops.ReleaseDirHandleOp) error {
	fs.DeleteDirHandle(op.Handle)
	return nil
}
