package monodisk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rarydzu/monodisk/monodisk/allocator"
	"github.com/rarydzu/monodisk/monodisk/blockstore"
	"github.com/rarydzu/monodisk/monodisk/layout"
)

var (
	ErrInvalidName       = errors.New("invalid file name")
	ErrNameTooLong       = fmt.Errorf("%w: name too long", ErrInvalidName)
	ErrAlreadyExists     = errors.New("file already exists")
	ErrNotFound          = errors.New("file does not exist")
	ErrTableFull         = errors.New("maximum number of files reached")
	ErrInsufficientSpace = allocator.ErrInsufficientSpace
	ErrStorageCorruption = layout.ErrStorageCorruption
	ErrIO                = blockstore.ErrIO
	ErrClosed            = errors.New("disk closed")
)

// ValidateName checks that name fits the on-disk name field and survives its padding
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if len(name) > layout.NameSize {
		return fmt.Errorf("%w: %q has %d bytes, limit is %d", ErrNameTooLong, name, len(name), layout.NameSize)
	}
	if strings.ContainsRune(name, 0) || strings.HasSuffix(name, " ") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func notFound(name string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, name)
}
