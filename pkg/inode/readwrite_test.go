package inode

import (
	"bytes"
	"errors"
	"testing"

	"github.com/weberc2/blockfs/pkg/types"
)

func TestWriteThenReadWithinOneSector(t *testing.T) {
	c, table := newTestTable(64)
	defer c.Shutdown()

	table.Create(10, 0, false)
	ino, _ := table.Open(10)
	defer table.Close(ino)

	data := []byte("hello, world")
	n, err := table.WriteAt(ino, data, 0)
	if err != nil {
		t.Fatalf("WriteAt(): unexpected err: %v", err)
	}
	if n != len(data) {
		t.Fatalf("WriteAt(): wanted `%d` bytes written; found `%d`", len(data), n)
	}
	if table.Length(ino) != int64(len(data)) {
		t.Fatalf("Length(): wanted `%d`; found `%d`", len(data), table.Length(ino))
	}

	buf := make([]byte, len(data))
	n = table.ReadAt(ino, buf, 0)
	if n != len(data) {
		t.Fatalf("ReadAt(): wanted `%d` bytes read; found `%d`", len(data), n)
	}
	if !bytes.Equal(buf, data) {
		t.Fatalf("ReadAt(): wanted `%s`; found `%s`", data, buf)
	}
}

func TestWriteAcrossSectorBoundary(t *testing.T) {
	c, table := newTestTable(256)
	defer c.Shutdown()

	table.Create(10, 0, false)
	ino, _ := table.Open(10)
	defer table.Close(ino)

	data := make([]byte, types.SectorSize+100)
	for i := range data {
		data[i] = byte(i % 256)
	}

	n, err := table.WriteAt(ino, data, types.SectorSize-50)
	if err != nil {
		t.Fatalf("WriteAt() across boundary: unexpected err: %v", err)
	}
	if n != len(data) {
		t.Fatalf("WriteAt() across boundary: wanted `%d` bytes; found `%d`", len(data), n)
	}

	buf := make([]byte, len(data))
	n = table.ReadAt(ino, buf, types.SectorSize-50)
	if n != len(data) {
		t.Fatalf("ReadAt() across boundary: wanted `%d` bytes; found `%d`", len(data), n)
	}
	if !bytes.Equal(buf, data) {
		t.Fatalf("ReadAt() across boundary: contents did not round-trip")
	}
}

func TestReadBeyondLengthStopsAtLength(t *testing.T) {
	c, table := newTestTable(64)
	defer c.Shutdown()

	table.Create(10, 0, false)
	ino, _ := table.Open(10)
	defer table.Close(ino)

	table.WriteAt(ino, []byte("abc"), 0)

	buf := make([]byte, 100)
	n := table.ReadAt(ino, buf, 0)
	if n != 3 {
		t.Fatalf("ReadAt() beyond length: wanted `3` bytes; found `%d`", n)
	}
}

func TestWriteGrowsLengthMonotonically(t *testing.T) {
	c, table := newTestTable(64)
	defer c.Shutdown()

	table.Create(10, 0, false)
	ino, _ := table.Open(10)
	defer table.Close(ino)

	table.WriteAt(ino, []byte("0123456789"), 0)
	if table.Length(ino) != 10 {
		t.Fatalf("Length() after first write: wanted `10`; found `%d`", table.Length(ino))
	}

	// A short write entirely within the existing length must not shrink it.
	table.WriteAt(ino, []byte("x"), 2)
	if table.Length(ino) != 10 {
		t.Fatalf("Length() after in-place write: wanted `10`; found `%d`", table.Length(ino))
	}
}

func TestWriteWhileDeniedReturnsZero(t *testing.T) {
	c, table := newTestTable(64)
	defer c.Shutdown()

	table.Create(10, 0, false)
	ino, _ := table.Open(10)
	defer table.Close(ino)

	table.DenyWrite(ino)
	n, err := table.WriteAt(ino, []byte("nope"), 0)
	if err != nil {
		t.Fatalf("WriteAt() while denied: unexpected err: %v", err)
	}
	if n != 0 {
		t.Fatalf("WriteAt() while denied: wanted `0` bytes written; found `%d`", n)
	}
	table.AllowWrite(ino)
}

func TestWriteAtCeilingTruncatesAndSignalsSizeLimit(t *testing.T) {
	c, table := newTestTable(64)
	defer c.Shutdown()

	table.Create(10, 0, false)
	ino, _ := table.Open(10)
	defer table.Close(ino)

	data := make([]byte, 20)
	var offset int64 = types.MaxFileSize - 10
	n, err := table.WriteAt(ino, data, offset)
	if n != 10 {
		t.Fatalf("WriteAt() spanning the ceiling: wanted `10` bytes written; found `%d`", n)
	}
	if !errors.Is(err, SizeLimitErr) {
		t.Fatalf("WriteAt() spanning the ceiling: wanted `SizeLimitErr`; found `%v`", err)
	}
	if table.Length(ino) != types.MaxFileSize {
		t.Fatalf("Length() after spanning write: wanted `%d`; found `%d`", types.MaxFileSize, table.Length(ino))
	}

	n, err = table.WriteAt(ino, []byte("x"), types.MaxFileSize)
	if n != 0 {
		t.Fatalf("WriteAt() at the ceiling: wanted `0` bytes written; found `%d`", n)
	}
	if !errors.Is(err, SizeLimitErr) {
		t.Fatalf("WriteAt() at the ceiling: wanted `SizeLimitErr`; found `%v`", err)
	}
}
