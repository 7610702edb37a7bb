// Package storage abstracts the removable card the logger writes to and
// serves downloads from.
package storage

import (
	"errors"
	"io"
	"strings"
)

var (
	ErrUnavailable = errors.New("storage unavailable")
	ErrNotFound    = errors.New("file not found")
)

// FileInfo describes one listed file.
type FileInfo struct {
	Name string
	Size int64
}

// File is an open read handle.
type File interface {
	io.ReadCloser
	Size() int64
}

// Accessor is the storage surface used by the transfer engine and file ops.
type Accessor interface {
	Available() bool
	List() ([]FileInfo, error)
	Exists(name string) bool
	Open(name string) (File, error)
	Remove(name string) error
}

// listed reports whether a name carries one of the extensions shown to clients.
func listed(name string) bool {
	for _, ext := range []string{".bin", ".log", ".txt", ".csv"} {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// validName rejects anything that could escape the card root.
func validName(name string) bool {
	name = strings.TrimPrefix(name, "/")
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, "/\\") && !strings.Contains(name, "\x00")
}
