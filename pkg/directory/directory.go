// Package directory implements directories as regular inodes whose data is
// a packed array of fixed-size dir_entry records, grounded on
// original_source/filesys/directory.c for the lookup/add/remove control
// flow and on fs/pkg/directory's Add/Lookup/Open/ReadNext split for the Go
// idiom, adapted for this format's fixed-size records instead of that
// lineage's ext2-style variable-length ones.
package directory

import (
	"fmt"

	"github.com/weberc2/blockfs/pkg/encode"
	"github.com/weberc2/blockfs/pkg/inode"
	"github.com/weberc2/blockfs/pkg/types"
)

const (
	NotFoundErr    types.ConstError = "no such directory entry"
	NameTooLongErr types.ConstError = "name too long"
	NameEmptyErr   types.ConstError = "name is empty"
	ExistsErr      types.ConstError = "entry already exists"
	NotADirErr     types.ConstError = "not a directory"
	NotEmptyErr    types.ConstError = "directory not empty"
)

// dotIndex and dotDotIndex are the two reserved slots at the front of
// every directory's entry array.
const (
	dotIndex    = 0
	dotDotIndex = 1
)

func entryOffset(index int) int64 { return int64(index) * encode.DirEntrySize }

func readEntryAt(inodes *inode.Table, dir *inode.Inode, offset int64, out *types.DirEntry) bool {
	var buf [encode.DirEntrySize]byte
	n := inodes.ReadAt(dir, buf[:], offset)
	if n != encode.DirEntrySize {
		return false
	}
	encode.DecodeDirEntry(out, &buf)
	return true
}

func writeEntryAt(inodes *inode.Table, dir *inode.Inode, offset int64, entry *types.DirEntry) {
	var buf [encode.DirEntrySize]byte
	encode.EncodeDirEntry(entry, &buf)
	inodes.WriteAt(dir, buf[:], offset)
}

// InitRoot writes the root directory's self-referential "." and ".."
// entries. The root is its own parent.
func InitRoot(inodes *inode.Table, root *inode.Inode) error {
	return InitDir(inodes, root, root)
}

// InitDir writes dir's "." (pointing at dir) and ".." (pointing at
// parent) entries. Called both for the root (parent == dir) and for every
// newly created subdirectory.
func InitDir(inodes *inode.Table, parent, dir *inode.Inode) error {
	var dot types.DirEntry
	dot.InUse = true
	dot.SetName(".")
	dot.Sector = dir.Sector
	writeEntryAt(inodes, dir, entryOffset(dotIndex), &dot)

	var dotDot types.DirEntry
	dotDot.InUse = true
	dotDot.SetName("..")
	dotDot.Sector = parent.Sector
	writeEntryAt(inodes, dir, entryOffset(dotDotIndex), &dotDot)

	return nil
}

// Lookup performs a linear scan of dir's entries and returns the sector
// of the first in-use entry named name.
func Lookup(inodes *inode.Table, dir *inode.Inode, name string) (types.Sector, error) {
	length := inodes.Length(dir)
	var entry types.DirEntry
	for offset := int64(0); offset < length; offset += encode.DirEntrySize {
		if !readEntryAt(inodes, dir, offset, &entry) {
			break
		}
		if entry.InUse && entry.NameString() == name {
			return entry.Sector, nil
		}
	}
	return 0, fmt.Errorf("looking up `%s`: %w", name, NotFoundErr)
}

// Add validates name, rejects duplicates, and writes a new entry into the
// first free slot (reusing a cleared record when one exists, appending at
// end-of-file otherwise) pointing at targetSector.
func Add(inodes *inode.Table, dir *inode.Inode, name string, targetSector types.Sector) error {
	if len(name) == 0 {
		return NameEmptyErr
	}
	if len(name) > types.NameMax {
		return fmt.Errorf("adding `%s`: %w", name, NameTooLongErr)
	}

	length := inodes.Length(dir)
	var entry types.DirEntry
	var freeOffset int64 = -1
	for offset := int64(0); offset < length; offset += encode.DirEntrySize {
		if !readEntryAt(inodes, dir, offset, &entry) {
			break
		}
		if entry.InUse {
			if entry.NameString() == name {
				return fmt.Errorf("adding `%s`: %w", name, ExistsErr)
			}
			continue
		}
		if freeOffset < 0 {
			freeOffset = offset
		}
	}

	if freeOffset < 0 {
		freeOffset = length
	}

	var newEntry types.DirEntry
	newEntry.InUse = true
	newEntry.SetName(name)
	newEntry.Sector = targetSector
	writeEntryAt(inodes, dir, freeOffset, &newEntry)
	return nil
}

// Remove clears the entry named name, returning the sector it pointed at
// so the caller can mark that inode removed.
func Remove(inodes *inode.Table, dir *inode.Inode, name string) (types.Sector, error) {
	length := inodes.Length(dir)
	var entry types.DirEntry
	for offset := int64(0); offset < length; offset += encode.DirEntrySize {
		if !readEntryAt(inodes, dir, offset, &entry) {
			break
		}
		if entry.InUse && entry.NameString() == name {
			target := entry.Sector
			entry.InUse = false
			writeEntryAt(inodes, dir, offset, &entry)
			return target, nil
		}
	}
	return 0, fmt.Errorf("removing `%s`: %w", name, NotFoundErr)
}

// IsEmpty reports whether dir contains no in-use entries beyond the
// reserved "." and ".." slots.
func IsEmpty(inodes *inode.Table, dir *inode.Inode) bool {
	length := inodes.Length(dir)
	var entry types.DirEntry
	for offset := entryOffset(dotDotIndex + 1); offset < length; offset += encode.DirEntrySize {
		if !readEntryAt(inodes, dir, offset, &entry) {
			break
		}
		if entry.InUse {
			return false
		}
	}
	return true
}

// Handle is stateful iteration cursor for Readdir, mirroring the original
// file->pos-driven dir_readdir.
type Handle struct {
	offset int64
}

// NewHandle returns a Handle positioned to skip the reserved "." and ".."
// entries.
func NewHandle() *Handle {
	return &Handle{offset: entryOffset(dotDotIndex + 1)}
}

// Readdir yields the next in-use entry's name and target sector, or
// ok == false once dir is exhausted.
func Readdir(inodes *inode.Table, dir *inode.Inode, h *Handle) (name string, sector types.Sector, ok bool) {
	length := inodes.Length(dir)
	var entry types.DirEntry
	for h.offset < length {
		offset := h.offset
		h.offset += encode.DirEntrySize
		if !readEntryAt(inodes, dir, offset, &entry) {
			return "", 0, false
		}
		if entry.InUse {
			return entry.NameString(), entry.Sector, true
		}
	}
	return "", 0, false
}
