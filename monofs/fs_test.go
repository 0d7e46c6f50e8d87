package monofs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/timeutil"
	"go.uber.org/zap"

	. "github.com/jacobsa/ogletest"
	"github.com/rarydzu/monodisk/monodisk"
	"github.com/rarydzu/monodisk/monodisk/config"
)

func TestMonoFS(t *testing.T) { RunTests(t) }

type MonoFSTest struct {
	ctx   context.Context
	clock timeutil.SimulatedClock
	dir   string
	disk  *monodisk.Disk
	fs    *Monofs
}

func init() { RegisterTestSuite(&MonoFSTest{}) }

func (t *MonoFSTest) SetUp(ti *TestInfo) {
	var err error
	t.ctx = context.Background()
	t.clock.SetTime(time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC))
	t.dir, err = os.MkdirTemp("", "monofs_disk")
	AssertEq(nil, err)
	cfg := config.Default()
	cfg.Path = filepath.Join(t.dir, "disk.img")
	cfg.TotalSize = 128 * 64
	cfg.SyncWrites = false
	logger, err := zap.NewDevelopment()
	AssertEq(nil, err)
	t.disk, err = monodisk.Open(cfg, logger.Sugar())
	AssertEq(nil, err)
	t.fs, err = NewMonoFS("test", t.disk, &t.clock, logger.Sugar())
	AssertEq(nil, err)
}

func (t *MonoFSTest) TearDown() {
	AssertEq(nil, t.disk.Close())
	os.RemoveAll(t.dir)
}

func (t *MonoFSTest) create(name string) *fuseops.CreateFileOp {
	op := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: name, Mode: fileMode}
	AssertEq(nil, t.fs.CreateFile(t.ctx, op))
	return op
}

func (t *MonoFSTest) lookUp(name string) (*fuseops.LookUpInodeOp, error) {
	op := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: name}
	return op, t.fs.LookUpInode(t.ctx, op)
}

func (t *MonoFSTest) WriteFlushRead() {
	c := t.create("notes")
	w := &fuseops.WriteFileOp{Inode: c.Entry.Child, Handle: c.Handle, Data: []byte("hello world")}
	AssertEq(nil, t.fs.WriteFile(t.ctx, w))

	// buffered until flush
	stored, err := t.disk.ReadFile("notes")
	AssertEq(nil, err)
	ExpectEq(0, len(stored))
	attr := &fuseops.GetInodeAttributesOp{Inode: c.Entry.Child}
	AssertEq(nil, t.fs.GetInodeAttributes(t.ctx, attr))
	ExpectEq(uint64(11), attr.Attributes.Size)

	AssertEq(nil, t.fs.FlushFile(t.ctx, &fuseops.FlushFileOp{Inode: c.Entry.Child, Handle: c.Handle}))
	AssertEq(nil, t.fs.ReleaseFileHandle(t.ctx, &fuseops.ReleaseFileHandleOp{Handle: c.Handle}))
	stored, err = t.disk.ReadFile("notes")
	AssertEq(nil, err)
	ExpectEq("hello world", string(stored))

	open := &fuseops.OpenFileOp{Inode: c.Entry.Child}
	AssertEq(nil, t.fs.OpenFile(t.ctx, open))
	r := &fuseops.ReadFileOp{Inode: c.Entry.Child, Handle: open.Handle, Offset: 6, Dst: make([]byte, 64)}
	AssertEq(nil, t.fs.ReadFile(t.ctx, r))
	ExpectEq("world", string(r.Dst[:r.BytesRead]))

	r = &fuseops.ReadFileOp{Inode: c.Entry.Child, Handle: open.Handle, Offset: 100, Dst: make([]byte, 64)}
	AssertEq(nil, t.fs.ReadFile(t.ctx, r))
	ExpectEq(0, r.BytesRead)
}

func (t *MonoFSTest) WriteAtOffset() {
	AssertEq(nil, t.disk.CreateFile("f"))
	AssertEq(nil, t.disk.WriteFile("f", []byte("abcdef")))
	l, err := t.lookUp("f")
	AssertEq(nil, err)
	ExpectEq(uint64(6), l.Entry.Attributes.Size)

	open := &fuseops.OpenFileOp{Inode: l.Entry.Child}
	AssertEq(nil, t.fs.OpenFile(t.ctx, open))
	w := &fuseops.WriteFileOp{Inode: l.Entry.Child, Handle: open.Handle, Offset: 4, Data: []byte("XYZ")}
	AssertEq(nil, t.fs.WriteFile(t.ctx, w))
	AssertEq(nil, t.fs.SyncFile(t.ctx, &fuseops.SyncFileOp{Inode: l.Entry.Child, Handle: open.Handle}))

	stored, err := t.disk.ReadFile("f")
	AssertEq(nil, err)
	ExpectEq("abcdXYZ", string(stored))
}

func (t *MonoFSTest) LookUpMissing() {
	_, err := t.lookUp("nope")
	ExpectTrue(err == fuse.ENOENT)

	AssertEq(nil, t.disk.CreateFile("f"))
	l, err := t.lookUp("f")
	AssertEq(nil, err)
	nested := &fuseops.LookUpInodeOp{Parent: l.Entry.Child, Name: "x"}
	ExpectTrue(t.fs.LookUpInode(t.ctx, nested) == fuse.ENOENT)

	attr := &fuseops.GetInodeAttributesOp{Inode: 12345}
	ExpectTrue(t.fs.GetInodeAttributes(t.ctx, attr) == fuse.ENOENT)
}

func (t *MonoFSTest) StableInodes() {
	AssertEq(nil, t.disk.CreateFile("f"))
	first, err := t.lookUp("f")
	AssertEq(nil, err)
	second, err := t.lookUp("f")
	AssertEq(nil, err)
	ExpectEq(first.Entry.Child, second.Entry.Child)
	ExpectTrue(first.Entry.Child != fuseops.RootInodeID)
}

func (t *MonoFSTest) RootAttributes() {
	attr := &fuseops.GetInodeAttributesOp{Inode: fuseops.RootInodeID}
	AssertEq(nil, t.fs.GetInodeAttributes(t.ctx, attr))
	ExpectTrue(attr.Attributes.Mode.IsDir())
	ExpectTrue(attr.Attributes.Mtime.Equal(t.clock.Now()))
}

func (t *MonoFSTest) ReadDirRoot() {
	AssertEq(nil, t.disk.CreateFile("foo"))
	AssertEq(nil, t.disk.CreateFile("bar"))
	open := &fuseops.OpenDirOp{Inode: fuseops.RootInodeID}
	AssertEq(nil, t.fs.OpenDir(t.ctx, open))

	r := &fuseops.ReadDirOp{Inode: fuseops.RootInodeID, Handle: open.Handle, Dst: make([]byte, 4096)}
	AssertEq(nil, t.fs.ReadDir(t.ctx, r))
	listing := string(r.Dst[:r.BytesRead])
	ExpectTrue(strings.Contains(listing, "foo"))
	ExpectTrue(strings.Contains(listing, "bar"))

	r = &fuseops.ReadDirOp{Inode: fuseops.RootInodeID, Handle: open.Handle, Offset: 2, Dst: make([]byte, 4096)}
	AssertEq(nil, t.fs.ReadDir(t.ctx, r))
	ExpectEq(0, r.BytesRead)
	AssertEq(nil, t.fs.ReleaseDirHandle(t.ctx, &fuseops.ReleaseDirHandleOp{Handle: open.Handle}))

	l, err := t.lookUp("foo")
	AssertEq(nil, err)
	ExpectTrue(t.fs.OpenDir(t.ctx, &fuseops.OpenDirOp{Inode: l.Entry.Child}) == fuse.ENOTDIR)
}

func (t *MonoFSTest) Unlink() {
	c := t.create("gone")
	AssertEq(nil, t.fs.Unlink(t.ctx, &fuseops.UnlinkOp{Parent: fuseops.RootInodeID, Name: "gone"}))
	ExpectEq(0, len(t.disk.ListFiles()))
	_, err := t.lookUp("gone")
	ExpectTrue(err == fuse.ENOENT)
	attr := &fuseops.GetInodeAttributesOp{Inode: c.Entry.Child}
	ExpectTrue(t.fs.GetInodeAttributes(t.ctx, attr) == fuse.ENOENT)

	err = t.fs.Unlink(t.ctx, &fuseops.UnlinkOp{Parent: fuseops.RootInodeID, Name: "gone"})
	ExpectTrue(err == fuse.ENOENT)
}

func (t *MonoFSTest) CreateErrors() {
	t.create("dup")
	err := t.fs.CreateFile(t.ctx, &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "dup"})
	ExpectTrue(err == fuse.EEXIST)

	err = t.fs.CreateFile(t.ctx, &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "much_too_long_name"})
	ExpectTrue(err == fuse.EINVAL)

	for _, name := range []string{"b", "c", "d", "e"} {
		t.create(name)
	}
	err = t.fs.CreateFile(t.ctx, &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "f"})
	ExpectTrue(err == syscall.ENOSPC)
}

func (t *MonoFSTest) NoSpace() {
	c := t.create("big")
	// 64 blocks, 6 of them metadata
	w := &fuseops.WriteFileOp{Inode: c.Entry.Child, Handle: c.Handle, Data: make([]byte, 128*59)}
	AssertEq(nil, t.fs.WriteFile(t.ctx, w))
	err := t.fs.FlushFile(t.ctx, &fuseops.FlushFileOp{Inode: c.Entry.Child, Handle: c.Handle})
	ExpectTrue(err == syscall.ENOSPC)

	w = &fuseops.WriteFileOp{Inode: c.Entry.Child, Handle: c.Handle, Offset: 65530, Data: make([]byte, 10)}
	ExpectTrue(t.fs.WriteFile(t.ctx, w) == syscall.ENOSPC)
}

func (t *MonoFSTest) Truncate() {
	AssertEq(nil, t.disk.CreateFile("f"))
	AssertEq(nil, t.disk.WriteFile("f", []byte("abcdef")))
	l, err := t.lookUp("f")
	AssertEq(nil, err)

	size := uint64(2)
	op := &fuseops.SetInodeAttributesOp{Inode: l.Entry.Child, Size: &size}
	AssertEq(nil, t.fs.SetInodeAttributes(t.ctx, op))
	ExpectEq(uint64(2), op.Attributes.Size)
	stored, err := t.disk.ReadFile("f")
	AssertEq(nil, err)
	ExpectEq("ab", string(stored))

	size = 4
	AssertEq(nil, t.fs.SetInodeAttributes(t.ctx, op))
	stored, err = t.disk.ReadFile("f")
	AssertEq(nil, err)
	ExpectEq("ab\x00\x00", string(stored))
}

func (t *MonoFSTest) ModificationTime() {
	c := t.create("f")
	t.clock.AdvanceTime(time.Hour)
	w := &fuseops.WriteFileOp{Inode: c.Entry.Child, Handle: c.Handle, Data: []byte("x")}
	AssertEq(nil, t.fs.WriteFile(t.ctx, w))

	attr := &fuseops.GetInodeAttributesOp{Inode: c.Entry.Child}
	AssertEq(nil, t.fs.GetInodeAttributes(t.ctx, attr))
	ExpectTrue(attr.Attributes.Mtime.Equal(t.clock.Now()))
	ExpectFalse(attr.Attributes.Crtime.Equal(t.clock.Now()))
}

func (t *MonoFSTest) StatFS() {
	AssertEq(nil, t.disk.CreateFile("f"))
	AssertEq(nil, t.disk.WriteFile("f", make([]byte, 300)))
	op := &fuseops.StatFSOp{}
	AssertEq(nil, t.fs.StatFS(t.ctx, op))
	ExpectEq(uint32(128), op.BlockSize)
	ExpectEq(uint64(58), op.Blocks)
	ExpectEq(uint64(55), op.BlocksFree)
	ExpectEq(uint64(5), op.Inodes)
	ExpectEq(uint64(4), op.InodesFree)
}

func (t *MonoFSTest) DestroyFlushesHandles() {
	c := t.create("f")
	w := &fuseops.WriteFileOp{Inode: c.Entry.Child, Handle: c.Handle, Data: []byte("late")}
	AssertEq(nil, t.fs.WriteFile(t.ctx, w))
	t.fs.Destroy()
	stored, err := t.disk.ReadFile("f")
	AssertEq(nil, err)
	ExpectEq("late", string(stored))
}
