// Package storeerr defines errors returned by the record and attachment
// stores when the underlying files can't be read or written.
package storeerr

import "fmt"

// ReadError is returned when an existing file can't be read or parsed
type ReadError struct {
	Op   string
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s '%s': %s", e.Op, e.Path, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// WriteError is returned when creating or writing a file or directory fails
type WriteError struct {
	Op   string
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s '%s': %s", e.Op, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

func Read(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &ReadError{Op: op, Path: path, Err: err}
}

func Write(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &WriteError{Op: op, Path: path, Err: err}
}
