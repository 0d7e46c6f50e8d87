package monofs

import (
	"os/user"
	"strconv"
	"sync"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/timeutil"
	monodir "github.com/rarydzu/monodisk/monofs/dir"
	monofile "github.com/rarydzu/monodisk/monofs/file"
	"github.com/rarydzu/monodisk/monodisk"
	"go.uber.org/zap"
)

// Disk is the part of the disk the filesystem needs
type Disk interface {
	CreateFile(name string) error
	WriteFile(name string, content []byte) error
	ReadFile(name string) ([]byte, error)
	DeleteFile(name string) error
	ListFiles() []string
	StatFile(name string) (monodisk.FileInfo, error)
	Stats() monodisk.Stats
	Sync() error
}

// Monofs exposes the flat namespace of a disk as a single directory
type Monofs struct {
	fuseutil.NotImplementedFileSystem
	Name        string
	log         *zap.SugaredLogger
	disk        Disk
	Clock       timeutil.Clock
	uid         uint32
	gid         uint32
	mounted     time.Time
	lockInode   sync.RWMutex
	nextInode   fuseops.InodeID
	inodes      map[fuseops.InodeID]string
	names       map[string]fuseops.InodeID
	mtimes      map[fuseops.InodeID]time.Time
	lockHandle  sync.Mutex
	nextHandle  fuseops.HandleID
	fileHandles map[fuseops.HandleID]*monofile.FsFile
	dirHandles  map[fuseops.HandleID]*monodir.FsDir
}

func NewMonoFS(name string, disk Disk, clock timeutil.Clock, log *zap.SugaredLogger) (*Monofs, error) {
	user, err := user.Current()
	if err != nil {
		return nil, err
	}
	uid, err := strconv.ParseUint(user.Uid, 10, 32)
	if err != nil {
		return nil, err
	}
	gid, err := strconv.ParseUint(user.Gid, 10, 32)
	if err != nil {
		return nil, err
	}
	fs := &Monofs{
		Name:        name,
		log:         log,
		disk:        disk,
		Clock:       clock,
		uid:         uint32(uid),
		gid:         uint32(gid),
		mounted:     clock.Now(),
		nextInode:   fuseops.RootInodeID + 1,
		inodes:      make(map[fuseops.InodeID]string),
		names:       make(map[string]fuseops.InodeID),
		mtimes:      make(map[fuseops.InodeID]time.Time),
		fileHandles: make(map[fuseops.HandleID]*monofile.FsFile),
		dirHandles:  make(map[fuseops.HandleID]*monodir.FsDir),
	}
	return fs, nil
}

// inodeOf returns the inode of name, assigning a new one on first use
func (fs *Monofs) inodeOf(name string) fuseops.InodeID {
	fs.lockInode.Lock()
	defer fs.lockInode.Unlock()
	if id, ok := fs.names[name]; ok {
		return id
	}
	id := fs.nextInode
	fs.nextInode++
	fs.names[name] = id
	fs.inodes[id] = name
	return id
}

// nameOf returns the file name behind inode
func (fs *Monofs) nameOf(inode fuseops.InodeID) (string, bool) {
	fs.lockInode.RLock()
	defer fs.lockInode.RUnlock()
	name, ok := fs.inodes[inode]
	return name, ok
}

// forget drops the inode of a deleted file
func (fs *Monofs) forget(name string) {
	fs.lockInode.Lock()
	defer fs.lockInode.Unlock()
	if id, ok := fs.names[name]; ok {
		delete(fs.inodes, id)
		delete(fs.mtimes, id)
		delete(fs.names, name)
	}
}

func (fs *Monofs) touch(inode fuseops.InodeID) {
	fs.lockInode.Lock()
	defer fs.lockInode.Unlock()
	fs.mtimes[inode] = fs.Clock.Now()
}

func (fs *Monofs) mtime(inode fuseops.InodeID) time.Time {
	fs.lockInode.RLock()
	defer fs.lockInode.RUnlock()
	if t, ok := fs.mtimes[inode]; ok {
		return t
	}
	return fs.mounted
}
