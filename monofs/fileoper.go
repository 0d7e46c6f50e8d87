package monofs

import (
	"context"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	monofile "github.com/rarydzu/monodisk/monofs/file"
)

// CreateFile Create a new file.
func (fs *Monofs) CreateFile(
	ctx context.Context,
	op *fuseops.CreateFileOp) error {
	if op.Parent != fuseops.RootInodeID {
		return fuse.ENOENT
	}
	if err := fs.disk.CreateFile(op.Name); err != nil {
		return fs.fail("CreateFile", op.Name, err)
	}
	inode := fs.inodeOf(op.Name)
	fs.touch(inode)
	attrs, err := fs.fileAttributes(inode, op.Name)
	if err != nil {
		return fs.fail("CreateFile", op.Name, err)
	}
	op.Handle = fs.NextHandle()
	fs.addFileHandle(monofile.New(fs.disk, op.Name, inode, op.Handle, []byte{}))
	op.Entry.Child = inode
	op.Entry.Attributes = attrs
	return nil
}

// Unlink remove a file
func (fs *Monofs) Unlink(
	ctx context.Context,
	op *fuseops.UnlinkOp) error {
	if op.Parent != fuseops.RootInodeID {
		return fuse.ENOENT
	}
	if err := fs.disk.DeleteFile(op.Name); err != nil {
		return fs.fail("Unlink", op.Name, err)
	}
	fs.forget(op.Name)
	return nil
}

// OpenFile open a file
func (fs *Monofs) OpenFile(
	ctx context.Context,
	op *fuseops.OpenFileOp) error {
	name, ok := fs.nameOf(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	handle := fs.NextHandle()
	file, err := monofile.Open(fs.disk, name, op.Inode, handle)
	if err != nil {
		return fs.fail("OpenFile", name, err)
	}
	fs.addFileHandle(file)
	op.Handle = handle
	return nil
}

// ReadFile read a file
func (fs *Monofs) ReadFile(
	ctx context.Context,
	op *fuseops.ReadFileOp) error {
	var err error
	handle, ok := fs.fileHandle(op.Handle)
	if !ok {
		return fuse.EINVAL
	}
	op.BytesRead, err = handle.ReadAt(op.Dst, op.Offset)
	return err
}

// WriteFile write into the handle buffer
func (fs *Monofs) WriteFile(
	ctx context.Context,
	op *fuseops.WriteFileOp) error {
	handle, ok := fs.fileHandle(op.Handle)
	if !ok {
		return fuse.EINVAL
	}
	if _, err := handle.WriteAt(op.Data, op.Offset); err != nil {
		return fs.fail("WriteFile", handle.GetName(), err)
	}
	fs.touch(op.Inode)
	return nil
}

// FlushFile store the handle buffer
func (fs *Monofs) FlushFile(
	ctx context.Context,
	op *fuseops.FlushFileOp) error {
	return fs.syncHandle("FlushFile", op.Handle)
}

// SyncFile store the handle buffer
func (fs *Monofs) SyncFile(
	ctx context.Context,
	op *fuseops.SyncFileOp) error {
	return fs.syncHandle("SyncFile", op.Handle)
}

func (fs *Monofs) syncHandle(op string, h fuseops.HandleID) error {
	handle, ok := fs.fileHandle(h)
	if !ok {
		return fuse.EINVAL
	}
	if err := handle.Sync(); err != nil {
		return fs.fail(op, handle.GetName(), err)
	}
	return nil
}

// ReleaseFileHandle release a file handle
func (fs *Monofs) ReleaseFileHandle(
	ctx context.Context,
	op *fuseops.ReleaseFileHandleOp) error {
	fs.DeleteFileHandle(op.Handle)
	return nil
}
