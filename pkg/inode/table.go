// Package inode implements the open-inode table, the indirect-block
// walker, and read_at/write_at/close — grounded on original_source's
// inode.c for the core algorithms and on fs/pkg/inode/data's
// reader/writer split for the Go-idiomatic shape of that code.
package inode

import (
	"fmt"
	"sync"

	"github.com/weberc2/blockfs/pkg/cache"
	"github.com/weberc2/blockfs/pkg/encode"
	"github.com/weberc2/blockfs/pkg/freemap"
	"github.com/weberc2/blockfs/pkg/types"
)

// Inode is the in-memory, reference-counted view of one on-disk inode
// record. Per the specification's recommended resolution of the "cached
// on-disk view" design note, it owns a private copy of the record (disk)
// rather than a raw pointer into a cache slot. The copy is loaded from the
// inode's own sector on first Open and written back through the cache by
// WriteAt whenever a write changes it.
type Inode struct {
	Sector types.Sector

	// mu guards disk, Removed, and DenyWriteCount; OpenCount is changed
	// under the Table's own lock. The
	// specification describes this as the inode's lock, serializing
	// directory-entry mutations and length updates; this implementation
	// also uses it to guard ordinary reads/writes of the cached record,
	// since those mutate disk.Sectors during lazy allocation.
	mu             sync.Mutex
	disk           types.InodeDisk
	OpenCount      int
	Removed        bool
	DenyWriteCount int
}

// Table is the process-wide open-inode table: it enforces that exactly
// one Inode exists per sector at any time.
type Table struct {
	cache   *cache.Cache
	freeMap *freemap.FreeMap

	mu   sync.Mutex
	open map[types.Sector]*Inode
}

// NewTable constructs an open-inode table backed by c and fm.
func NewTable(c *cache.Cache, fm *freemap.FreeMap) *Table {
	return &Table{cache: c, freeMap: fm, open: make(map[types.Sector]*Inode)}
}

// Create builds a zero-initialized on-disk record with the given length
// and kind at sector, writing it through the cache.
func (t *Table) Create(sector types.Sector, length int64, isDir bool) error {
	disk := types.InodeDisk{Length: length, IsDir: isDir}
	h := t.cache.Acquire(sector)
	encode.EncodeInode(&disk, h.Data())
	t.cache.Release(h, true)
	return nil
}

// Open returns the in-memory inode for sector, creating and loading it on
// first open or incrementing its open count on a repeat open. Per scenario
// 7, two concurrent opens of the same sector observe the identical
// *Inode, with OpenCount incremented to 2.
func (t *Table) Open(sector types.Sector) (*Inode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.open[sector]; ok {
		existing.OpenCount++
		return existing, nil
	}

	ino := &Inode{Sector: sector, OpenCount: 1}
	h := t.cache.Acquire(sector)
	encode.DecodeInode(&ino.disk, h.Data())
	t.cache.Release(h, false)

	t.open[sector] = ino
	return ino, nil
}

// Reopen increments ino's open count, matching the original's
// inode_reopen.
func (t *Table) Reopen(ino *Inode) *Inode {
	t.mu.Lock()
	defer t.mu.Unlock()
	ino.OpenCount++
	return ino
}

// Close decrements ino's open count; when it reaches zero, the inode is
// removed from the table, and if it had been marked Removed, every sector
// it owned — direct, single-indirect, double-indirect, and every data
// sector they reference — is released back to the free map.
func (t *Table) Close(ino *Inode) error {
	t.mu.Lock()
	ino.OpenCount--
	last := ino.OpenCount == 0
	if last {
		delete(t.open, ino.Sector)
	}
	t.mu.Unlock()

	if !last || !ino.Removed {
		return nil
	}
	return t.freeAllSectors(ino)
}

func (t *Table) freeAllSectors(ino *Inode) error {
	ino.mu.Lock()
	disk := ino.disk
	ino.mu.Unlock()

	for _, sector := range disk.Sectors[:types.DirectBlocksCount] {
		if sector != 0 {
			t.freeMap.Release(sector)
		}
	}

	if single := disk.Sectors[types.SingleIndirectIndex]; single != 0 {
		t.freeIndirect(single)
		t.freeMap.Release(single)
	}

	if double := disk.Sectors[types.DoubleIndirectIndex]; double != 0 {
		h := t.cache.Acquire(double)
		outerPointers := make([]types.Sector, types.BlocksPerSector)
		for i := range outerPointers {
			outerPointers[i] = readSectorPointer(h.Data(), uint64(i))
		}
		t.cache.Release(h, false)

		for _, outer := range outerPointers {
			if outer != 0 {
				t.freeIndirect(outer)
				t.freeMap.Release(outer)
			}
		}
		t.freeMap.Release(double)
	}

	return nil
}

// freeIndirect releases every non-zero data-sector pointer held by the
// indirect sector at `sector`, but not `sector` itself.
func (t *Table) freeIndirect(sector types.Sector) {
	h := t.cache.Acquire(sector)
	pointers := make([]types.Sector, types.BlocksPerSector)
	for i := range pointers {
		pointers[i] = readSectorPointer(h.Data(), uint64(i))
	}
	t.cache.Release(h, false)

	for _, p := range pointers {
		if p != 0 {
			t.freeMap.Release(p)
		}
	}
}

// Remove marks ino for deletion: its sectors are released when the last
// opener closes it.
func (t *Table) Remove(ino *Inode) {
	ino.mu.Lock()
	ino.Removed = true
	ino.mu.Unlock()
}

// IsRemoved reports whether ino has been marked for deletion by Remove.
func (t *Table) IsRemoved(ino *Inode) bool {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	return ino.Removed
}

const invariantViolationPanic = "inode: deny_write_count exceeded open_count"

// DenyWrite increments ino's deny-write counter. Exceeding OpenCount is a
// programming error, surfaced as a panic per the specification's
// assertion-class InvariantViolation.
func (t *Table) DenyWrite(ino *Inode) {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	ino.DenyWriteCount++
	if ino.DenyWriteCount > ino.OpenCount {
		panic(fmt.Sprintf(
			"%s: deny_write_count=`%d` open_count=`%d`",
			invariantViolationPanic,
			ino.DenyWriteCount,
			ino.OpenCount,
		))
	}
}

// AllowWrite decrements ino's deny-write counter.
func (t *Table) AllowWrite(ino *Inode) {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	if ino.DenyWriteCount == 0 {
		panic(invariantViolationPanic)
	}
	ino.DenyWriteCount--
}
