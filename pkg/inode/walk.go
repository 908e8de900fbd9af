package inode

import (
	"github.com/weberc2/blockfs/pkg/cache"
	"github.com/weberc2/blockfs/pkg/freemap"
	"github.com/weberc2/blockfs/pkg/types"
)

// sectorResult is the tagged variant the walker returns at its boundary,
// per the specification's design note: ok==false is the only
// representation of "allocation failed, stop" (the in-memory NO_SECTOR
// sentinel); a zero Sector with ok==true is a legitimate "hole" result
// meaning the caller should treat the range as zero-filled, not an error.
type sectorResult struct {
	sector types.Sector
	ok     bool
}

const maxBlockIndex = types.DirectBlocksCount + types.BlocksPerSector + types.BlocksPerSector*types.BlocksPerSector

// walk translates a block index (pos/SectorSize) within disk into a data
// sector. When create is false, it never allocates: an absent
// intermediate indirect block means every data sector beneath it is a
// hole, reported as sectorResult{0, true}. When create is true, it
// allocates indirect blocks and the final data sector lazily, zero-filling
// every newly allocated indirect block through the cache before any
// pointer is read back out of it. On free-map exhaustion it returns
// sectorResult{0, false} and never partially commits an allocation chain
// that isn't fully wired by the time it returns.
//
// The outer-indirect and inner-indirect steps of the double-indirect case
// are always two independent cache acquisitions; neither the slot nor any
// buffer is shared between them, resolving the aliased-buffer bug in the
// original byte_to_sector/byte_to_double_indirect_sec pair.
func walk(
	c *cache.Cache,
	fm *freemap.FreeMap,
	disk *types.InodeDisk,
	idx uint64,
	create bool,
) sectorResult {
	if idx >= maxBlockIndex {
		return sectorResult{0, false}
	}

	if idx < types.DirectBlocksCount {
		sector := disk.Sectors[idx]
		if sector == 0 && create {
			allocated, ok := fm.Allocate(1)
			if !ok {
				return sectorResult{0, false}
			}
			zeroSector(c, allocated)
			disk.Sectors[idx] = allocated
			sector = allocated
		}
		return sectorResult{sector, true}
	}

	if idx < types.DirectBlocksCount+types.BlocksPerSector {
		innerIdx := idx - types.DirectBlocksCount
		sector, ok := resolveIndirect(
			c,
			fm,
			&disk.Sectors[types.SingleIndirectIndex],
			innerIdx,
			create,
		)
		if !ok {
			return sectorResult{0, false}
		}
		return sectorResult{sector, true}
	}

	k := idx - types.DirectBlocksCount - types.BlocksPerSector
	outerIdx := k / types.BlocksPerSector
	innerIdx := k % types.BlocksPerSector

	outerSector, ok := resolveIndirectSector(
		c,
		fm,
		&disk.Sectors[types.DoubleIndirectIndex],
		create,
	)
	if !ok {
		return sectorResult{0, false}
	}
	if outerSector == 0 {
		// Double-indirect block itself doesn't exist (read path): every
		// slot beneath it is a hole.
		return sectorResult{0, true}
	}

	sector, ok := resolveIndirect(c, fm, &outerSector, outerIdx, create)
	if !ok {
		return sectorResult{0, false}
	}
	if sector == 0 {
		return sectorResult{0, true}
	}

	dataSector, ok := resolveIndirect(c, fm, &sector, innerIdx, create)
	if !ok {
		return sectorResult{0, false}
	}
	return sectorResult{dataSector, true}
}

// resolveIndirectSector ensures *ptr names an allocated, zero-filled
// indirect sector, allocating one on demand when create is true and *ptr
// is currently zero. It returns the (possibly unchanged) sector value;
// ok is false only on allocation failure.
func resolveIndirectSector(
	c *cache.Cache,
	fm *freemap.FreeMap,
	ptr *types.Sector,
	create bool,
) (types.Sector, bool) {
	if *ptr != 0 {
		return *ptr, true
	}
	if !create {
		return 0, true
	}
	allocated, ok := fm.Allocate(1)
	if !ok {
		return 0, false
	}
	zeroSector(c, allocated)
	*ptr = allocated
	return allocated, true
}

// resolveIndirect reads (and, if create, lazily allocates) the pointer at
// index idx within the indirect sector named by *indirectSector,
// allocating the indirect sector itself on demand first. It pins the
// indirect sector's cache slot only for the duration of this one pointer
// access.
func resolveIndirect(
	c *cache.Cache,
	fm *freemap.FreeMap,
	indirectSector *types.Sector,
	idx uint64,
	create bool,
) (types.Sector, bool) {
	sector, ok := resolveIndirectSector(c, fm, indirectSector, create)
	if !ok {
		return 0, false
	}
	if sector == 0 {
		return 0, true
	}

	h := c.Acquire(sector)
	ptr := readSectorPointer(h.Data(), idx)
	if ptr != 0 || !create {
		c.Release(h, false)
		return ptr, true
	}

	allocated, ok := fm.Allocate(1)
	if !ok {
		c.Release(h, false)
		return 0, false
	}
	writeSectorPointer(h.Data(), idx, allocated)
	c.Release(h, true)
	zeroSector(c, allocated)
	return allocated, true
}

func zeroSector(c *cache.Cache, sector types.Sector) {
	h := c.Acquire(sector)
	*h.Data() = [types.SectorSize]byte{}
	c.Release(h, true)
}

func readSectorPointer(buf *[types.SectorSize]byte, idx uint64) types.Sector {
	start := idx * 4
	return types.Sector(
		uint32(buf[start]) |
			uint32(buf[start+1])<<8 |
			uint32(buf[start+2])<<16 |
			uint32(buf[start+3])<<24,
	)
}

func writeSectorPointer(buf *[types.SectorSize]byte, idx uint64, sector types.Sector) {
	start := idx * 4
	v := uint32(sector)
	buf[start] = byte(v)
	buf[start+1] = byte(v >> 8)
	buf[start+2] = byte(v >> 16)
	buf[start+3] = byte(v >> 24)
}
