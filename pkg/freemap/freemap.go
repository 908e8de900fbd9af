// Package freemap is the free-sector bitmap allocator external
// collaborator, grounded on fs/pkg/alloc's Bitmap/FlushableBitmap pair: a
// plain bit-twiddling Bitmap wrapped in its own mutex so it can be shared
// by concurrent create/remove calls without the cache or inode locks ever
// needing to know about it.
package freemap

import (
	"sync"

	"github.com/weberc2/blockfs/pkg/types"
)

const bitsPerByte = 8

// FreeMap allocates and releases sectors. Only single-sector allocations
// are exercised by this file system, but Allocate's signature keeps the
// count parameter to mirror the external contract.
type FreeMap struct {
	mutex sync.Mutex
	bits  []byte
}

// New constructs a FreeMap covering exactly sectorCount sectors, with
// sector 0 and every sector in reserved pre-marked as allocated.
func New(sectorCount types.Sector, reserved ...types.Sector) *FreeMap {
	fm := &FreeMap{bits: make([]byte, (int(sectorCount)+bitsPerByte-1)/bitsPerByte)}
	fm.reserve(0)
	// Bits past sectorCount in the last byte name no real sector.
	for s := int(sectorCount); s < len(fm.bits)*bitsPerByte; s++ {
		fm.reserve(types.Sector(s))
	}
	for _, r := range reserved {
		fm.reserve(r)
	}
	return fm
}

func (fm *FreeMap) reserve(sector types.Sector) {
	fm.setBit(sector, true)
}

// Allocate reserves a single free sector and returns it. count is
// currently required to be 1; the external contract described in the
// specification permits larger contiguous runs, but nothing in this file
// system ever asks for one.
func (fm *FreeMap) Allocate(count int) (types.Sector, bool) {
	if count != 1 {
		panic("freemap: only single-sector allocation is supported")
	}
	fm.mutex.Lock()
	defer fm.mutex.Unlock()
	for i, byt := range fm.bits {
		if byt == 0xff {
			continue
		}
		for bit := 0; bit < bitsPerByte; bit++ {
			mask := byte(1) << bit
			if byt&mask == 0 {
				fm.bits[i] |= mask
				return types.Sector(i*bitsPerByte + bit), true
			}
		}
	}
	return 0, false
}

// Release frees a single previously allocated sector.
func (fm *FreeMap) Release(sector types.Sector) {
	fm.mutex.Lock()
	defer fm.mutex.Unlock()
	fm.setBit(sector, false)
}

func (fm *FreeMap) setBit(sector types.Sector, value bool) {
	i := int(sector) / bitsPerByte
	mask := byte(1) << (int(sector) % bitsPerByte)
	if value {
		fm.bits[i] |= mask
	} else {
		fm.bits[i] &^= mask
	}
}

// IsFree reports whether sector is currently unallocated. Exposed for
// tests that check a removed inode's sectors are freed on last close.
func (fm *FreeMap) IsFree(sector types.Sector) bool {
	fm.mutex.Lock()
	defer fm.mutex.Unlock()
	i := int(sector) / bitsPerByte
	mask := byte(1) << (int(sector) % bitsPerByte)
	return fm.bits[i]&mask == 0
}

// Bytes returns a snapshot of the bitmap suitable for persisting to the
// reserved free-map sector, mirroring fs/pkg/alloc/store's BitmapStore
// contract minus its own on-disk chunking (this bitmap is always sized to
// fit within a single sector for the device sizes this file system
// targets).
func (fm *FreeMap) Bytes() []byte {
	fm.mutex.Lock()
	defer fm.mutex.Unlock()
	out := make([]byte, len(fm.bits))
	copy(out, fm.bits)
	return out
}

// Load reconstructs a FreeMap of sectorCount sectors from a previously
// persisted snapshot.
func Load(snapshot []byte, sectorCount types.Sector) *FreeMap {
	fm := &FreeMap{bits: make([]byte, (int(sectorCount)+bitsPerByte-1)/bitsPerByte)}
	copy(fm.bits, snapshot)
	return fm
}
