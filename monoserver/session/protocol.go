// Package session serves the text command protocol of a disk over TCP and websocket.
package session

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/rarydzu/monodisk/monodisk"
	"go.uber.org/zap"
)

// Disk is the part of the disk the protocol drives
type Disk interface {
	CreateFile(name string) error
	WriteFile(name string, content []byte) error
	ReadFile(name string) ([]byte, error)
	DeleteFile(name string) error
	ListFiles() []string
}

// Handler executes protocol commands against a disk
type Handler struct {
	disk Disk
	log  *zap.SugaredLogger
}

func NewHandler(disk Disk, log *zap.SugaredLogger) *Handler {
	return &Handler{
		disk: disk,
		log:  log,
	}
}

// splitCommand splits line on whitespace into at most 3 parts, the last one keeping
// its inner whitespace
func splitCommand(line string) []string {
	parts := make([]string, 0, 3)
	rest := strings.TrimSpace(line)
	for len(parts) < 2 && rest != "" {
		i := strings.IndexFunc(rest, unicode.IsSpace)
		if i < 0 {
			break
		}
		parts = append(parts, rest[:i])
		rest = strings.TrimLeftFunc(rest[i:], unicode.IsSpace)
	}
	if rest != "" {
		parts = append(parts, rest)
	}
	return parts
}

// Execute runs one command line and returns the reply. quit reports that the client
// asked to disconnect.
func (h *Handler) Execute(line string) (reply string, quit bool) {
	parts := splitCommand(line)
	if len(parts) == 0 {
		return "ERROR: Empty command", false
	}
	switch strings.ToUpper(parts[0]) {
	case "CREATE":
		if len(parts) < 2 {
			return "ERROR: CREATE requires a filename", false
		}
		if err := h.disk.CreateFile(parts[1]); err != nil {
			return h.errorReply(parts[1], err), false
		}
		return fmt.Sprintf("SUCCESS: File '%s' created.", parts[1]), false
	case "WRITE":
		if len(parts) < 3 {
			return "ERROR: WRITE requires filename and content", false
		}
		if err := h.disk.WriteFile(parts[1], []byte(parts[2])); err != nil {
			return h.errorReply(parts[1], err), false
		}
		return fmt.Sprintf("SUCCESS: File '%s' written.", parts[1]), false
	case "READ":
		if len(parts) < 2 {
			return "ERROR: READ requires a filename", false
		}
		content, err := h.disk.ReadFile(parts[1])
		if err != nil {
			return h.errorReply(parts[1], err), false
		}
		return string(content), false
	case "DELETE":
		if len(parts) < 2 {
			return "ERROR: DELETE requires a filename", false
		}
		if err := h.disk.DeleteFile(parts[1]); err != nil {
			return h.errorReply(parts[1], err), false
		}
		return fmt.Sprintf("SUCCESS: File '%s' deleted.", parts[1]), false
	case "LIST":
		names := h.disk.ListFiles()
		if len(names) == 0 {
			return "No files found.", false
		}
		return strings.Join(names, "\n"), false
	case "QUIT":
		return "SUCCESS: Disconnecting.", true
	default:
		return "ERROR: Unknown command", false
	}
}

func (h *Handler) errorReply(name string, err error) string {
	switch {
	case errors.Is(err, monodisk.ErrNameTooLong):
		return "ERROR: filename too large"
	case errors.Is(err, monodisk.ErrInvalidName):
		return "ERROR: invalid filename"
	case errors.Is(err, monodisk.ErrAlreadyExists):
		return fmt.Sprintf("ERROR: file %s already exists", name)
	case errors.Is(err, monodisk.ErrNotFound):
		return fmt.Sprintf("ERROR: file %s does not exist", name)
	case errors.Is(err, monodisk.ErrTableFull):
		return "ERROR: maximum number of files reached"
	case errors.Is(err, monodisk.ErrInsufficientSpace):
		return "ERROR: file too large"
	case errors.Is(err, monodisk.ErrClosed):
		return "ERROR: server shutting down"
	}
	h.log.Errorf("command on %s failed: %v", name, err)
	return "ERROR: " + err.Error()
}
