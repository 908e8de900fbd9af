// Package device provides the block device contract the buffer cache sits
// on top of, along with an in-memory implementation for tests and an
// os.File-backed implementation for the CLI, in the spirit of fs/pkg/io's
// Volume abstraction.
package device

import (
	"fmt"
	"os"

	"github.com/weberc2/blockfs/pkg/types"
)

// BlockDevice is the raw, sector-addressable storage contract. Device I/O
// failures are fatal to the process, matching the original PANIC() on a
// failed block_read/block_write.
type BlockDevice interface {
	ReadSector(sector types.Sector, buf *[types.SectorSize]byte)
	WriteSector(sector types.Sector, buf *[types.SectorSize]byte)
	SectorCount() types.Sector
}

// MemoryDevice is a fixed-size in-memory BlockDevice, used by tests.
type MemoryDevice struct {
	bytes []byte
}

// NewMemoryDevice allocates a zeroed device of the given sector count.
func NewMemoryDevice(sectors types.Sector) *MemoryDevice {
	return &MemoryDevice{bytes: make([]byte, int(sectors)*types.SectorSize)}
}

func (d *MemoryDevice) SectorCount() types.Sector {
	return types.Sector(len(d.bytes) / types.SectorSize)
}

func (d *MemoryDevice) ReadSector(sector types.Sector, buf *[types.SectorSize]byte) {
	off := int(sector) * types.SectorSize
	if off < 0 || off+types.SectorSize > len(d.bytes) {
		panic(fmt.Sprintf("device: sector `%d` out of range", sector))
	}
	copy(buf[:], d.bytes[off:off+types.SectorSize])
}

func (d *MemoryDevice) WriteSector(sector types.Sector, buf *[types.SectorSize]byte) {
	off := int(sector) * types.SectorSize
	if off < 0 || off+types.SectorSize > len(d.bytes) {
		panic(fmt.Sprintf("device: sector `%d` out of range", sector))
	}
	copy(d.bytes[off:off+types.SectorSize], buf[:])
}

// FileDevice is an os.File-backed BlockDevice using positional ReadAt and
// WriteAt so that background goroutines never contend on a shared file
// offset.
type FileDevice struct {
	file    *os.File
	sectors types.Sector
}

// OpenFileDevice opens (creating if necessary) a disk image of exactly
// sectors*SectorSize bytes.
func OpenFileDevice(path string, sectors types.Sector) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening device file `%s`: %w", path, err)
	}
	size := int64(sectors) * types.SectorSize
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("sizing device file `%s`: %w", path, err)
	}
	return &FileDevice{file: f, sectors: sectors}, nil
}

func (d *FileDevice) SectorCount() types.Sector {
	return d.sectors
}

func (d *FileDevice) ReadSector(sector types.Sector, buf *[types.SectorSize]byte) {
	off := int64(sector) * types.SectorSize
	if _, err := d.file.ReadAt(buf[:], off); err != nil {
		panic(fmt.Sprintf("device: reading sector `%d`: %v", sector, err))
	}
}

func (d *FileDevice) WriteSector(sector types.Sector, buf *[types.SectorSize]byte) {
	off := int64(sector) * types.SectorSize
	if _, err := d.file.WriteAt(buf[:], off); err != nil {
		panic(fmt.Sprintf("device: writing sector `%d`: %v", sector, err))
	}
}

// Close closes the underlying file.
func (d *FileDevice) Close() error {
	return d.file.Close()
}
