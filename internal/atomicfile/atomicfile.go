// Package atomicfile writes files through a temporary sibling and renames
// them into place, so readers never observe a half-written file.
package atomicfile

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TempSuffix marks in-progress files. Anything carrying it is garbage after a crash.
const TempSuffix = ".tmp"

// File is a pending atomic write.
type File struct {
	path string
	tmp  *os.File
	buf  *bufio.Writer
	done bool
}

// Create opens a temporary file next to path.
func Create(path string) (*File, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*"+TempSuffix)
	if err != nil {
		return nil, fmt.Errorf("create temp for %s: %w", path, err)
	}
	return &File{path: path, tmp: tmp, buf: bufio.NewWriterSize(tmp, 256<<10)}, nil
}

// Write buffers p into the temporary file.
func (f *File) Write(p []byte) (int, error) {
	return f.buf.Write(p)
}

// Path is the final destination.
func (f *File) Path() string {
	return f.path
}

// Commit flushes, syncs and renames the temporary file over the destination.
func (f *File) Commit() error {
	if f.done {
		return nil
	}
	f.done = true

	if err := f.buf.Flush(); err != nil {
		f.cleanup()
		return fmt.Errorf("flush %s: %w", f.path, err)
	}
	if err := f.tmp.Sync(); err != nil {
		f.cleanup()
		return fmt.Errorf("sync %s: %w", f.path, err)
	}
	if err := f.tmp.Close(); err != nil {
		os.Remove(f.tmp.Name())
		return fmt.Errorf("close %s: %w", f.path, err)
	}
	if err := os.Rename(f.tmp.Name(), f.path); err != nil {
		os.Remove(f.tmp.Name())
		return fmt.Errorf("rename %s: %w", f.path, err)
	}
	return syncDir(filepath.Dir(f.path))
}

// Abort discards the temporary file. Safe after Commit.
func (f *File) Abort() {
	if f.done {
		return
	}
	f.done = true
	f.cleanup()
}

func (f *File) cleanup() {
	f.tmp.Close()
	os.Remove(f.tmp.Name())
}

// WriteFile atomically replaces path with data.
func WriteFile(path string, data []byte) error {
	f, err := Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Abort()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Commit()
}

// IsTemp reports whether name is a leftover temporary file.
func IsTemp(name string) bool {
	return strings.HasSuffix(name, TempSuffix)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir %s: %w", dir, err)
	}
	defer d.Close()
	// Some filesystems reject directory fsync; the rename itself already happened.
	_ = d.Sync()
	return nil
}
