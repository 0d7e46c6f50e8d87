package monofs

import (
	"context"
	"os"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	monodir "github.com/rarydzu/monodisk/monofs/dir"
	monofile "github.com/rarydzu/monodisk/monofs/file"
)

const (
	fileMode = 0644
	dirMode  = os.ModeDir | 0755
)

// NewMonoFuseFS wraps fs as a fuse server
func NewMonoFuseFS(fs *Monofs) fuse.Server {
	fs.log.Debugf("serving %s, %d files", fs.Name, len(fs.disk.ListFiles()))
	return fuseutil.NewFileSystemServer(fs)
}

// StatFS Get file system attributes.
func (fs *Monofs) StatFS(
	ctx context.Context,
	op *fuseops.StatFSOp) error {
	st := fs.disk.Stats()
	op.BlockSize = uint32(st.BlockSize)
	op.IoSize = uint32(st.BlockSize)
	op.Blocks = uint64(st.DataBlocks)
	op.BlocksFree = uint64(st.FreeBlocks)
	op.BlocksAvailable = uint64(st.FreeBlocks)
	op.Inodes = uint64(st.MaxFiles)
	op.InodesFree = uint64(st.MaxFiles - st.Files)
	return nil
}

// NextHandle find unused handle
func (fs *Monofs) NextHandle() fuseops.HandleID {
	fs.lockHandle.Lock()
	defer fs.lockHandle.Unlock()
	handle := fs.nextHandle
	for fs.handleUsed(handle) {
		handle++
	}
	fs.nextHandle = handle + 1
	return handle
}

func (fs *Monofs) handleUsed(handle fuseops.HandleID) bool {
	_, file := fs.fileHandles[handle]
	_, dir := fs.dirHandles[handle]
	return file || dir
}

func (fs *Monofs) addFileHandle(file *monofile.FsFile) {
	fs.lockHandle.Lock()
	defer fs.lockHandle.Unlock()
	fs.fileHandles[file.GetHandle()] = file
}

func (fs *Monofs) fileHandle(handle fuseops.HandleID) (*monofile.FsFile, bool) {
	fs.lockHandle.Lock()
	defer fs.lockHandle.Unlock()
	file, ok := fs.fileHandles[handle]
	return file, ok
}

// DeleteFileHandle delete file handle
func (fs *Monofs) DeleteFileHandle(handle fuseops.HandleID) {
	fs.lockHandle.Lock()
	defer fs.lockHandle.Unlock()
	delete(fs.fileHandles, handle)
}

func (fs *Monofs) addDirHandle(handle fuseops.HandleID, dir *monodir.FsDir) {
	fs.lockHandle.Lock()
	defer fs.lockHandle.Unlock()
	fs.dirHandles[handle] = dir
}

func (fs *Monofs) dirHandle(handle fuseops.HandleID) (*monodir.FsDir, bool) {
	fs.lockHandle.Lock()
	defer fs.lockHandle.Unlock()
	dir, ok := fs.dirHandles[handle]
	return dir, ok
}

// DeleteDirHandle delete dir handle
func (fs *Monofs) DeleteDirHandle(handle fuseops.HandleID) {
	fs.lockHandle.Lock()
	defer fs.lockHandle.Unlock()
	delete(fs.dirHandles, handle)
}

// dirtySize returns the buffered size of inode if an open handle has unsynced writes
func (fs *Monofs) dirtySize(inode fuseops.InodeID) (uint64, bool) {
	fs.lockHandle.Lock()
	defer fs.lockHandle.Unlock()
	for _, file := range fs.fileHandles {
		if file.GetInode() == inode && file.Dirty() {
			return file.GetSize(), true
		}
	}
	return 0, false
}

// truncateHandles resizes the buffers of open handles of inode
func (fs *Monofs) truncateHandles(inode fuseops.InodeID, size int64) error {
	fs.lockHandle.Lock()
	defer fs.lockHandle.Unlock()
	for _, file := range fs.fileHandles {
		if file.GetInode() == inode {
			if err := file.Truncate(size); err != nil {
				return err
			}
		}
	}
	return nil
}

func (fs *Monofs) rootAttributes() fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:   uint64(fs.disk.Stats().BlockSize),
		Nlink:  1,
		Mode:   dirMode,
		Atime:  fs.mounted,
		Mtime:  fs.mounted,
		Ctime:  fs.mounted,
		Crtime: fs.mounted,
		Uid:    fs.uid,
		Gid:    fs.gid,
	}
}

// fileAttributes reports the attributes of a stored file
func (fs *Monofs) fileAttributes(inode fuseops.InodeID, name string) (fuseops.InodeAttributes, error) {
	info, err := fs.disk.StatFile(name)
	if err != nil {
		return fuseops.InodeAttributes{}, err
	}
	size := uint64(info.Size)
	if dirty, ok := fs.dirtySize(inode); ok {
		size = dirty
	}
	t := fs.mtime(inode)
	return fuseops.InodeAttributes{
		Size:   size,
		Nlink:  1,
		Mode:   fileMode,
		Atime:  t,
		Mtime:  t,
		Ctime:  t,
		Crtime: fs.mounted,
		Uid:    fs.uid,
		Gid:    fs.gid,
	}, nil
}

// Destroy flushes open handles and the disk metadata.
func (fs *Monofs) Destroy() {
	fs.lockHandle.Lock()
	files := make([]*monofile.FsFile, 0, len(fs.fileHandles))
	for _, file := range fs.fileHandles {
		files = append(files, file)
	}
	fs.lockHandle.Unlock()
	for _, file := range files {
		if err := file.Sync(); err != nil {
			fs.log.Errorf("Destroy(%s): %v", file.GetName(), err)
		}
	}
	if err := fs.disk.Sync(); err != nil {
		fs.log.Errorf("Error syncing disk: %v", err)
	}
}
