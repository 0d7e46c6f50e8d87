package monofs

import (
	"errors"
	"syscall"

	"github.com/jacobsa/fuse"
	monofile "github.com/rarydzu/monodisk/monofs/file"
	"github.com/rarydzu/monodisk/monodisk"
)

// errno maps disk errors to the errno reported to the kernel
func errno(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, monodisk.ErrNotFound):
		return fuse.ENOENT
	case errors.Is(err, monodisk.ErrAlreadyExists):
		return fuse.EEXIST
	case errors.Is(err, monodisk.ErrInvalidName):
		return fuse.EINVAL
	case errors.Is(err, monodisk.ErrTableFull),
		errors.Is(err, monodisk.ErrInsufficientSpace),
		errors.Is(err, monofile.ErrTooLarge):
		return syscall.ENOSPC
	default:
		return fuse.EIO
	}
}

// fail logs unexpected errors and returns the errno for err
func (fs *Monofs) fail(op string, arg interface{}, err error) error {
	e := errno(err)
	if e == fuse.EIO {
		fs.log.Errorf("%s(%v): %v", op, arg, err)
	} else {
		fs.log.Debugf("%s(%v): %v", op, arg, err)
	}
	return e
}
