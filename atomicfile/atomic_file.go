package atomicfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

// Some references:
// - https://www.slideshare.net/nan1nan1/eat-my-data
// - https://lwn.net/Articles/457667/

var (
	// ErrCancelled is returned by calls subsequent to RemoveIfNotClosed()
	ErrCancelled = errors.New("cancelled")

	// ensure we implement desired interface
	_ io.WriteCloser = &File{}
)

// File writes to a temporary file in the destination directory and
// renames it over the destination on Close. Readers of the destination
// see either the old or the new content, never a partial write.
type File struct {
	dstPath string
	dir     string
	perm    os.FileMode
	tmpFile *os.File
	err     error

	tmpPath string // for debugging
}

// New creates new File with 0644 permissions
func New(path string) (*File, error) {
	return NewWithPerm(path, 0644)
}

// NewWithPerm creates new File. perm is applied before rename
func NewWithPerm(path string, perm os.FileMode) (*File, error) {
	dir, fName := filepath.Split(path)
	if fName == "" {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrInvalid}
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	// the temp file must be in the same directory so that rename
	// doesn't cross file systems
	tmpFile, err := os.CreateTemp(dir, "."+fName+".tmp-*")
	if err != nil {
		return nil, err
	}

	return &File{
		dstPath: path,
		dir:     dir,
		perm:    perm,
		tmpFile: tmpFile,
		tmpPath: tmpFile.Name(),
	}, nil
}

func (f *File) handleError(err error) error {
	if err == nil {
		return nil
	}
	// remember the first error
	if f.err == nil {
		f.err = err
	}
	// cleanup i.e. delete temporary file
	_ = f.Close()
	return err
}

// Write writes data to a temporary file
func (f *File) Write(d []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n, err := f.tmpFile.Write(d)
	return n, f.handleError(err)
}

func (f *File) alreadyClosed() bool {
	return f.tmpFile == nil
}

// RemoveIfNotClosed removes the temp file if we didn't Close
// the file yet. Destination file will not be created.
// Use it with defer to ensure cleanup in case of a panic on the
// same goroutine that happens before Close.
// RemoveIfNotClosed after Close is a no-op.
func (f *File) RemoveIfNotClosed() {
	if f == nil || f.alreadyClosed() {
		return
	}
	f.err = ErrCancelled
	_ = f.Close()
}

// Close syncs the temporary file and renames it over destination.
// Can be called multiple times to make it easier to use via defer.
func (f *File) Close() error {
	if f.alreadyClosed() {
		// return the first error we encountered
		return f.err
	}
	tmpFile := f.tmpFile
	f.tmpFile = nil

	// https://www.joeshaw.org/dont-defer-close-on-writable-files/
	errSync := tmpFile.Sync()
	errChmod := tmpFile.Chmod(f.perm)
	errClose := tmpFile.Close()

	didRename := false
	defer func() {
		if !didRename {
			_ = os.Remove(f.tmpPath)
		}
	}()

	// if there was an error during write, return that error
	if f.err != nil {
		return f.err
	}

	err := errors.Join(errSync, errChmod, errClose)
	if err == nil {
		// this will over-write dstPath (if it exists)
		err = os.Rename(f.tmpPath, f.dstPath)
		didRename = (err == nil)
		// sync directory after rename so the rename survives a crash
		fdir, _ := os.Open(f.dir)
		if fdir != nil {
			_ = fdir.Sync()
			_ = fdir.Close()
		}
	}

	if f.err == nil {
		f.err = err
	}
	return f.err
}

// WriteFile atomically replaces path with d
func WriteFile(path string, d []byte) error {
	f, err := New(path)
	if err != nil {
		return err
	}
	defer f.RemoveIfNotClosed()
	if _, err = f.Write(d); err != nil {
		return err
	}
	return f.Close()
}
