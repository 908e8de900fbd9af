package filesystem

import (
	"fmt"
	"strings"

	"github.com/weberc2/blockfs/pkg/directory"
	"github.com/weberc2/blockfs/pkg/inode"
	"github.com/weberc2/blockfs/pkg/types"
)

const (
	TrailingSlashErr types.ConstError = "trailing slash is only valid for directories"
	NotADirErr                        = directory.NotADirErr
	IsADirErr        types.ConstError = "is a directory"
	NotEmptyErr                       = directory.NotEmptyErr
)

// File is an open regular file: a reference-counted inode plus the
// caller's own byte offset, mirroring the original's struct file.
type File struct {
	ino *inode.Inode
	pos int64
}

func hasTrailingSlash(path string) bool {
	return len(path) > 1 && strings.HasSuffix(path, "/")
}

// Create makes a new, empty regular file at path and closes it
// immediately, matching filesys_create's create-then-the-caller-opens-
// separately contract.
func (fs *FileSystem) Create(cwd CurrentDir, path string) error {
	return fs.createEntry(cwd, path, false)
}

// Mkdir creates a new, empty directory at path, supplementing the
// specification's explicit file-creation entry points with the
// directory-creation operation original_source/filesys/directory.c's
// dir_create/root-init pattern generalizes to.
func (fs *FileSystem) Mkdir(cwd CurrentDir, path string) error {
	return fs.createEntry(cwd, path, true)
}

func (fs *FileSystem) createEntry(cwd CurrentDir, path string, isDir bool) error {
	parent, leaf, err := resolve(fs, cwd, path, true)
	if err != nil {
		return fmt.Errorf("creating `%s`: %w", path, err)
	}
	defer fs.Inodes.Close(parent)

	if !fs.Inodes.IsDir(parent) {
		return fmt.Errorf("creating `%s`: %w", path, NotADirErr)
	}

	sector, ok := fs.FreeMap.Allocate(1)
	if !ok {
		return fmt.Errorf("creating `%s`: %w", path, inode.OutOfSectorsErr)
	}
	if err := fs.Inodes.Create(sector, 0, isDir); err != nil {
		fs.FreeMap.Release(sector)
		return fmt.Errorf("creating `%s`: %w", path, err)
	}

	if isDir {
		child, err := fs.Inodes.Open(sector)
		if err != nil {
			fs.FreeMap.Release(sector)
			return fmt.Errorf("creating `%s`: %w", path, err)
		}
		if err := directory.InitDir(fs.Inodes, parent, child); err != nil {
			fs.Inodes.Close(child)
			fs.FreeMap.Release(sector)
			return fmt.Errorf("creating `%s`: %w", path, err)
		}
		if err := fs.Inodes.Close(child); err != nil {
			return fmt.Errorf("creating `%s`: %w", path, err)
		}
	}

	if err := directory.Add(fs.Inodes, parent, leaf, sector); err != nil {
		fs.FreeMap.Release(sector)
		return fmt.Errorf("creating `%s`: %w", path, err)
	}
	return nil
}

// Open resolves path and returns a handle positioned at offset 0. A
// trailing slash on path is only valid when the resolved inode is
// itself a directory; open of a regular file through a trailing-slash
// path fails.
func (fs *FileSystem) Open(cwd CurrentDir, path string) (*File, error) {
	ino, _, err := resolve(fs, cwd, path, false)
	if err != nil {
		return nil, fmt.Errorf("opening `%s`: %w", path, err)
	}
	if hasTrailingSlash(path) && !fs.Inodes.IsDir(ino) {
		fs.Inodes.Close(ino)
		return nil, fmt.Errorf("opening `%s`: %w", path, TrailingSlashErr)
	}
	return &File{ino: ino}, nil
}

// Close releases path's underlying inode reference.
func (fs *FileSystem) Close(f *File) error {
	return fs.Inodes.Close(f.ino)
}

// Read copies up to len(buf) bytes starting at f's current position,
// advancing it by the number of bytes actually read.
func (fs *FileSystem) Read(f *File, buf []byte) int {
	n := fs.Inodes.ReadAt(f.ino, buf, f.pos)
	f.pos += int64(n)
	return n
}

// Write appends or overwrites up to len(buf) bytes starting at f's
// current position, advancing it by the number of bytes actually
// written. A write that would cross the maximum file size is truncated;
// the returned error wraps inode.SizeLimitErr in that case.
func (fs *FileSystem) Write(f *File, buf []byte) (int, error) {
	n, err := fs.Inodes.WriteAt(f.ino, buf, f.pos)
	f.pos += int64(n)
	return n, err
}

// Seek repositions f's cursor to offset.
func (fs *FileSystem) Seek(f *File, offset int64) { f.pos = offset }

// Tell reports f's current cursor position.
func (fs *FileSystem) Tell(f *File) int64 { return f.pos }

// Length reports the file's current on-disk length.
func (fs *FileSystem) Length(f *File) int64 { return fs.Inodes.Length(f.ino) }

// IsDir reports whether f refers to a directory inode.
func (fs *FileSystem) IsDir(f *File) bool { return fs.Inodes.IsDir(f.ino) }

// Readdir yields the next in-use entry of a directory file, advancing h.
// Read and Write do not check the inode kind, so they also operate on a
// directory's raw entry records.
func (fs *FileSystem) Readdir(f *File, h *directory.Handle) (string, types.Sector, bool) {
	return directory.Readdir(fs.Inodes, f.ino, h)
}

// Remove unlinks path from its parent directory and marks the target
// inode for deletion; its sectors are released once every remaining
// opener has closed it. Removing a non-empty directory fails.
func (fs *FileSystem) Remove(cwd CurrentDir, path string) error {
	parent, leaf, err := resolve(fs, cwd, path, true)
	if err != nil {
		return fmt.Errorf("removing `%s`: %w", path, err)
	}
	defer fs.Inodes.Close(parent)

	sector, err := directory.Lookup(fs.Inodes, parent, leaf)
	if err != nil {
		return fmt.Errorf("removing `%s`: %w", path, err)
	}

	target, err := fs.Inodes.Open(sector)
	if err != nil {
		return fmt.Errorf("removing `%s`: %w", path, err)
	}

	if fs.Inodes.IsDir(target) && !directory.IsEmpty(fs.Inodes, target) {
		fs.Inodes.Close(target)
		return fmt.Errorf("removing `%s`: %w", path, NotEmptyErr)
	}

	if _, err := directory.Remove(fs.Inodes, parent, leaf); err != nil {
		fs.Inodes.Close(target)
		return fmt.Errorf("removing `%s`: %w", path, err)
	}

	fs.Inodes.Remove(target)
	return fs.Inodes.Close(target)
}
