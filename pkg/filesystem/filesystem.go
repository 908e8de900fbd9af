package filesystem

import (
	"fmt"

	"github.com/weberc2/blockfs/pkg/cache"
	"github.com/weberc2/blockfs/pkg/device"
	"github.com/weberc2/blockfs/pkg/directory"
	"github.com/weberc2/blockfs/pkg/freemap"
	"github.com/weberc2/blockfs/pkg/inode"
	"github.com/weberc2/blockfs/pkg/types"
)

// freeMapSector holds the free-map's persisted bitmap snapshot. It is
// read and written directly against the device, bypassing the buffer
// cache entirely, since the free map's own persistence predates and is
// independent of the cache's sector-indexed bookkeeping — the same
// separation the specification draws between the buffer cache and the
// free map as distinct external collaborators.
const freeMapSector types.Sector = 0

// FileSystem wires the buffer cache, free map, and open-inode table
// together and exposes the file-system-level entry points, grounded on
// original_source/filesys/filesys.c's filesys_init/filesys_done pairing
// and its create/open/remove trio.
type FileSystem struct {
	Device  device.BlockDevice
	Cache   *cache.Cache
	FreeMap *freemap.FreeMap
	Inodes  *inode.Table
}

// Init brings up a FileSystem over dev. When format is true, it lays down
// a fresh free map and root directory, matching do_format; otherwise it
// reloads the free map's persisted bitmap from freeMapSector.
func Init(dev device.BlockDevice, format bool) (*FileSystem, error) {
	c := cache.New(dev)
	fs := &FileSystem{Device: dev, Cache: c}

	if format {
		fs.FreeMap = freemap.New(dev.SectorCount(), types.RootDirSector)
		fs.Inodes = inode.NewTable(c, fs.FreeMap)

		if err := fs.Inodes.Create(types.RootDirSector, 0, true); err != nil {
			return nil, fmt.Errorf("formatting: %w", err)
		}
		root, err := fs.Inodes.Open(types.RootDirSector)
		if err != nil {
			return nil, fmt.Errorf("formatting: %w", err)
		}
		if err := directory.InitRoot(fs.Inodes, root); err != nil {
			fs.Inodes.Close(root)
			return nil, fmt.Errorf("formatting: %w", err)
		}
		if err := fs.Inodes.Close(root); err != nil {
			return nil, fmt.Errorf("formatting: %w", err)
		}
		if err := fs.persistFreeMap(); err != nil {
			return nil, fmt.Errorf("formatting: %w", err)
		}
		return fs, nil
	}

	var buf [types.SectorSize]byte
	dev.ReadSector(freeMapSector, &buf)
	fs.FreeMap = freemap.Load(buf[:], dev.SectorCount())
	fs.Inodes = inode.NewTable(c, fs.FreeMap)
	return fs, nil
}

func (fs *FileSystem) persistFreeMap() error {
	bytes := fs.FreeMap.Bytes()
	if len(bytes) > types.SectorSize {
		return fmt.Errorf(
			"free map of `%d` bytes exceeds one sector; device too large for this format",
			len(bytes),
		)
	}
	var buf [types.SectorSize]byte
	copy(buf[:], bytes)
	fs.Device.WriteSector(freeMapSector, &buf)
	return nil
}

// Shutdown persists the free map and drains the buffer cache, matching
// filesys_done's write-everything-back-then-stop contract.
func (fs *FileSystem) Shutdown() error {
	if err := fs.persistFreeMap(); err != nil {
		return err
	}
	fs.Cache.Shutdown()
	return nil
}
