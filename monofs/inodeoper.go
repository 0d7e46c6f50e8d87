package monofs

import (
	"context"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	monofile "github.com/rarydzu/monodisk/monofs/file"
)

// attributes reports the attributes of the root or of a file inode
func (fs *Monofs) attributes(inode fuseops.InodeID) (fuseops.InodeAttributes, error) {
	if inode == fuseops.RootInodeID {
		return fs.rootAttributes(), nil
	}
	name, ok := fs.nameOf(inode)
	if !ok {
		return fuseops.InodeAttributes{}, fuse.ENOENT
	}
	attrs, err := fs.fileAttributes(inode, name)
	if err != nil {
		return attrs, fs.fail("GetInodeAttributes", name, err)
	}
	return attrs, nil
}

// LookUpInode looks up a child inode by name and reports its attributes.
func (fs *Monofs) LookUpInode(
	ctx context.Context,
	op *fuseops.LookUpInodeOp) error {
	if op.Parent != fuseops.RootInodeID {
		return fuse.ENOENT
	}
	if _, err := fs.disk.StatFile(op.Name); err != nil {
		return errno(err)
	}
	inode := fs.inodeOf(op.Name)
	attrs, err := fs.fileAttributes(inode, op.Name)
	if err != nil {
		return fs.fail("LookUpInode", op.Name, err)
	}
	// Report the inode's attributes.
	op.Entry.Child = inode
	op.Entry.Attributes = attrs
	return nil
}

// GetInodeAttributes looks up an inode and reports its attributes.
func (fs *Monofs) GetInodeAttributes(
	ctx context.Context,
	op *fuseops.GetInodeAttributesOp) error {
	attrs, err := fs.attributes(op.Inode)
	if err != nil {
		return err
	}
	op.Attributes = attrs
	return nil
}

// SetInodeAttributes resizes a file. Mode and ownership are fixed.
func (fs *Monofs) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error {
	if op.Inode != fuseops.RootInodeID && op.Size != nil {
		name, ok := fs.nameOf(op.Inode)
		if !ok {
			return fuse.ENOENT
		}
		file, err := monofile.Open(fs.disk, name, op.Inode, 0)
		if err != nil {
			return fs.fail("SetInodeAttributes", name, err)
		}
		if err := file.Truncate(int64(*op.Size)); err != nil {
			return fs.fail("SetInodeAttributes", name, err)
		}
		if err := file.Sync(); err != nil {
			return fs.fail("SetInodeAttributes", name, err)
		}
		if err := fs.truncateHandles(op.Inode, int64(*op.Size)); err != nil {
			return fs.fail("SetInodeAttributes", name, err)
		}
		fs.touch(op.Inode)
	}
	attrs, err := fs.attributes(op.Inode)
	if err != nil {
		return err
	}
	op.Attributes = attrs
	return nil
}

// ForgetInode - Forget about an inode.
func (fs *Monofs) ForgetInode(
	ctx context.Context,
	op *fuseops.ForgetInodeOp) error {
	return nil
}
