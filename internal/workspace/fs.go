// Package workspace owns the files a conversion run writes: the serialized
// document, temporary texture copies and their final destinations.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrFileSystem is the category of every error returned by this package.
var ErrFileSystem = errors.New("file system error")

// FileSystemError records a failed file operation.
type FileSystemError struct {
	Op   string
	Path string
	Err  error
}

// Error formats the failure for logs.
func (e *FileSystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap exposes ErrFileSystem and the OS cause.
func (e *FileSystemError) Unwrap() []error {
	return []error{ErrFileSystem, e.Err}
}

func fsError(op, path string, err error) error {
	return &FileSystemError{Op: op, Path: path, Err: err}
}

// WriteFile writes data to path, creating parent directories and replacing
// any existing file.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fsError("mkdir", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fsError("write", path, err)
	}
	return nil
}

// Remove deletes path. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fsError("remove", path, err)
	}
	return nil
}

// RemoveDirIfEmpty removes dir when it has no entries left.
// It reports whether the directory is gone afterwards.
func RemoveDirIfEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true, nil
		}
		return false, fsError("readdir", dir, err)
	}
	if len(entries) > 0 {
		return false, nil
	}
	if err := os.Remove(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fsError("rmdir", dir, err)
	}
	return true, nil
}

// Move moves src to dst, replacing dst. Across file systems it copies and
// then deletes src, so src never survives a successful move.
func Move(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fsError("mkdir", filepath.Dir(dst), err)
	}

	renameErr := os.Rename(src, dst)
	if renameErr == nil {
		return nil
	}
	if _, err := os.Stat(src); err != nil {
		return fsError("move", src, renameErr)
	}

	if err := copyFile(src, dst); err != nil {
		_ = os.Remove(dst)
		return fsError("move", src, errors.Join(renameErr, err))
	}
	if err := os.Remove(src); err != nil {
		return fsError("move", src, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
