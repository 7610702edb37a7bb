package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Dir serves files from the directory the card is mounted on.
type Dir struct {
	Root string
}

// NewDir returns an accessor rooted at root.
func NewDir(root string) *Dir {
	return &Dir{Root: root}
}

// Available reports whether the mount point exists and is a directory.
func (d *Dir) Available() bool {
	st, err := os.Stat(d.Root)
	return err == nil && st.IsDir()
}

func (d *Dir) path(name string) (string, error) {
	if !validName(name) {
		return "", ErrNotFound
	}
	return filepath.Join(d.Root, strings.TrimPrefix(name, "/")), nil
}

// List returns the regular files with a listed extension, sorted by name.
func (d *Dir) List() ([]FileInfo, error) {
	if !d.Available() {
		return nil, ErrUnavailable
	}
	entries, err := os.ReadDir(d.Root)
	if err != nil {
		return nil, fmt.Errorf("read root %s: %w", d.Root, err)
	}
	var out []FileInfo
	for _, e := range entries {
		if e.IsDir() || !listed(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			log.Printf("[storage] warning: stat %s: %v", e.Name(), err)
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		out = append(out, FileInfo{Name: e.Name(), Size: info.Size()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Exists reports whether name is a regular file under the root.
func (d *Dir) Exists(name string) bool {
	p, err := d.path(name)
	if err != nil {
		return false
	}
	st, err := os.Stat(p)
	return err == nil && st.Mode().IsRegular()
}

// Open opens name for reading.
func (d *Dir) Open(name string) (File, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	st, err := f.Stat()
	if err != nil {
		if cerr := f.Close(); cerr != nil {
			log.Printf("[storage] warning: close %s: %v", name, cerr)
		}
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}
	if !st.Mode().IsRegular() {
		if cerr := f.Close(); cerr != nil {
			log.Printf("[storage] warning: close %s: %v", name, cerr)
		}
		return nil, ErrNotFound
	}
	return &osFile{File: f, size: st.Size()}, nil
}

// Remove deletes name.
func (d *Dir) Remove(name string) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// Create creates name for writing. It fails with fs.ErrExist rather than
// truncate an existing file.
func (d *Dir) Create(name string) (*os.File, error) {
	if !d.Available() {
		return nil, ErrUnavailable
	}
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
}

type osFile struct {
	*os.File
	size int64
}

func (f *osFile) Size() int64 { return f.size }
