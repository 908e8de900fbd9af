// Package encode implements the fixed binary layouts of the on-disk inode
// record and directory entry, the way fs/pkg/encode does for its ext2-style
// records — but laid out for this format's fixed-size records rather than
// ext2's variable-length ones.
package encode

import (
	"encoding/binary"

	"github.com/weberc2/blockfs/pkg/types"
)

const (
	inodeLengthStart  = 0
	inodeLengthSize   = 4
	inodeIsDirStart   = inodeLengthStart + inodeLengthSize
	inodeIsDirSize    = 1
	inodeSectorsStart = 8
	sectorPointerSize = 4
)

// InodeDiskSize is the exact on-disk size of an inode record; it must
// equal types.SectorSize.
const InodeDiskSize = inodeSectorsStart + (types.DirectBlocksCount+2)*sectorPointerSize

func init() {
	if InodeDiskSize != types.SectorSize {
		panic("encode: InodeDisk layout does not fill exactly one sector")
	}
}

// EncodeInode writes inode into a sector-sized buffer.
func EncodeInode(inode *types.InodeDisk, b *[types.SectorSize]byte) {
	binary.LittleEndian.PutUint32(b[inodeLengthStart:], uint32(inode.Length))
	if inode.IsDir {
		b[inodeIsDirStart] = 1
	} else {
		b[inodeIsDirStart] = 0
	}
	for i, sector := range inode.Sectors {
		start := inodeSectorsStart + i*sectorPointerSize
		binary.LittleEndian.PutUint32(b[start:], uint32(sector))
	}
}

// DecodeInode populates inode from a sector-sized buffer previously
// written by EncodeInode.
func DecodeInode(inode *types.InodeDisk, b *[types.SectorSize]byte) {
	inode.Length = int64(int32(binary.LittleEndian.Uint32(b[inodeLengthStart:])))
	inode.IsDir = b[inodeIsDirStart] != 0
	for i := range inode.Sectors {
		start := inodeSectorsStart + i*sectorPointerSize
		inode.Sectors[i] = types.Sector(binary.LittleEndian.Uint32(b[start:]))
	}
}

const (
	dirEntryInUseStart = 0
	dirEntryInUseSize  = 1
	dirEntryNameStart  = dirEntryInUseStart + dirEntryInUseSize
	dirEntryNameSize   = types.NameMax
	dirEntryLenStart   = dirEntryNameStart + dirEntryNameSize
	dirEntryLenSize    = 1
	dirEntrySectorStart = dirEntryLenStart + dirEntryLenSize
	dirEntrySectorSize  = 4
)

// DirEntrySize is the fixed on-disk size of one directory entry record.
const DirEntrySize = dirEntrySectorStart + dirEntrySectorSize

// EncodeDirEntry writes entry into a DirEntrySize-byte buffer.
func EncodeDirEntry(entry *types.DirEntry, b *[DirEntrySize]byte) {
	if entry.InUse {
		b[dirEntryInUseStart] = 1
	} else {
		b[dirEntryInUseStart] = 0
	}
	copy(b[dirEntryNameStart:dirEntryNameStart+dirEntryNameSize], entry.Name[:])
	b[dirEntryLenStart] = entry.NameLen
	binary.LittleEndian.PutUint32(b[dirEntrySectorStart:], uint32(entry.Sector))
}

// DecodeDirEntry populates entry from a DirEntrySize-byte buffer.
func DecodeDirEntry(entry *types.DirEntry, b *[DirEntrySize]byte) {
	entry.InUse = b[dirEntryInUseStart] != 0
	copy(entry.Name[:], b[dirEntryNameStart:dirEntryNameStart+dirEntryNameSize])
	entry.NameLen = b[dirEntryLenStart]
	entry.Sector = types.Sector(binary.LittleEndian.Uint32(b[dirEntrySectorStart:]))
}
