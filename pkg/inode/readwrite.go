package inode

import (
	"fmt"

	"github.com/weberc2/blockfs/pkg/encode"
	"github.com/weberc2/blockfs/pkg/types"
)

// Length returns ino's current on-disk length.
func (t *Table) Length(ino *Inode) int64 {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	return ino.disk.Length
}

// IsDir reports whether ino represents a directory.
func (t *Table) IsDir(ino *Inode) bool {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	return ino.disk.IsDir
}

// ReadAt copies up to len(buf) bytes from ino starting at offset into buf,
// returning the number of bytes actually copied. It never allocates: a
// data sector that is a hole (including one beneath an unallocated
// indirect block) is read as zero-valued bytes, and the loop stops only
// when the walker signals allocation failure (which cannot happen on a
// read) or when offset reaches the inode's length.
func (t *Table) ReadAt(ino *Inode, buf []byte, offset int64) int {
	ino.mu.Lock()
	defer ino.mu.Unlock()

	var bytesRead int
	for len(buf) > 0 {
		if offset >= ino.disk.Length {
			break
		}
		idx := uint64(offset) / types.SectorSize
		result := walk(t.cache, t.freeMap, &ino.disk, idx, false)
		if !result.ok {
			break
		}

		sectorOffset := int(offset % types.SectorSize)
		inodeLeft := ino.disk.Length - offset
		sectorLeft := types.SectorSize - sectorOffset
		chunk := minInt(len(buf), int(minInt64(inodeLeft, int64(sectorLeft))))
		if chunk <= 0 {
			break
		}

		if result.sector == 0 {
			for i := 0; i < chunk; i++ {
				buf[i] = 0
			}
		} else {
			h := t.cache.Acquire(result.sector)
			copy(buf[:chunk], h.Data()[sectorOffset:sectorOffset+chunk])
			t.cache.Release(h, false)
		}

		buf = buf[chunk:]
		offset += int64(chunk)
		bytesRead += chunk
	}

	t.nominateReadAhead(ino, offset)
	return bytesRead
}

// nominateReadAhead hints the cache to prefetch the sector holding byte
// offset+SectorSize-1 (the next sector the reader has not finished),
// provided that byte lies within the file's length.
func (t *Table) nominateReadAhead(ino *Inode, offset int64) {
	next := offset + types.SectorSize - 1
	if next >= ino.disk.Length {
		return
	}
	idx := uint64(next) / types.SectorSize
	result := walk(t.cache, t.freeMap, &ino.disk, idx, false)
	if result.ok && result.sector != 0 {
		t.cache.NominateReadAhead(result.sector)
	}
}

// WriteAt writes up to len(buf) bytes into ino starting at offset,
// allocating sectors lazily via the walker. It refuses silently (returns
// 0) while DenyWriteCount is nonzero. After the loop, ino's stored length
// becomes max(length, finalOffset) — the specification's corrected
// arithmetic, replacing the original's unconditional
// overwrite-with-offset. If offset plus len(buf) would exceed
// types.MaxFileSize, the write is truncated at the ceiling and the
// returned error wraps SizeLimitErr.
func (t *Table) WriteAt(ino *Inode, buf []byte, offset int64) (int, error) {
	ino.mu.Lock()
	defer ino.mu.Unlock()

	if ino.DenyWriteCount > 0 {
		return 0, nil
	}

	var bytesWritten int
	dirty := false
	atCeiling := false
	for len(buf) > 0 {
		if offset >= types.MaxFileSize {
			atCeiling = true
			break
		}
		idx := uint64(offset) / types.SectorSize
		result := walk(t.cache, t.freeMap, &ino.disk, idx, true)
		if !result.ok {
			break
		}
		// The walk may have allocated and wired a new direct or indirect
		// pointer even if the chunk below turns out to be empty; the
		// inode record must be re-persisted whenever that's possible.
		dirty = true

		sectorOffset := int(offset % types.SectorSize)
		sectorLeft := types.SectorSize - sectorOffset
		inodeLeft := types.MaxFileSize - offset
		chunk := minInt(len(buf), int(minInt64(inodeLeft, int64(sectorLeft))))
		if chunk <= 0 {
			atCeiling = true
			break
		}

		h := t.cache.Acquire(result.sector)
		copy(h.Data()[sectorOffset:sectorOffset+chunk], buf[:chunk])
		t.cache.Release(h, true)
		dirty = true

		buf = buf[chunk:]
		offset += int64(chunk)
		bytesWritten += chunk
	}

	if offset > ino.disk.Length {
		ino.disk.Length = offset
		dirty = true
	}
	if dirty {
		h := t.cache.Acquire(ino.Sector)
		encode.EncodeInode(&ino.disk, h.Data())
		t.cache.Release(h, true)
	}

	if atCeiling {
		return bytesWritten, fmt.Errorf("writing at offset `%d`: %w", offset, SizeLimitErr)
	}
	return bytesWritten, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
