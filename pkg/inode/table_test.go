package inode

import (
	"testing"

	"github.com/weberc2/blockfs/pkg/cache"
	"github.com/weberc2/blockfs/pkg/device"
	"github.com/weberc2/blockfs/pkg/freemap"
	"github.com/weberc2/blockfs/pkg/types"
)

func newTestTable(sectors types.Sector) (*cache.Cache, *Table) {
	dev := device.NewMemoryDevice(sectors)
	c := cache.New(dev)
	fm := freemap.New(sectors, types.RootDirSector)
	return c, NewTable(c, fm)
}

func TestOpenTwiceReturnsSameInode(t *testing.T) {
	c, table := newTestTable(64)
	defer c.Shutdown()

	if err := table.Create(10, 0, false); err != nil {
		t.Fatalf("Create(): unexpected err: %v", err)
	}

	first, err := table.Open(10)
	if err != nil {
		t.Fatalf("Open(): unexpected err: %v", err)
	}
	second, err := table.Open(10)
	if err != nil {
		t.Fatalf("Open(): unexpected err: %v", err)
	}

	if first != second {
		t.Fatalf("Open() twice: wanted the identical *Inode; found distinct pointers")
	}
	if second.OpenCount != 2 {
		t.Fatalf("OpenCount after two opens: wanted `2`; found `%d`", second.OpenCount)
	}

	if err := table.Close(first); err != nil {
		t.Fatalf("Close(): unexpected err: %v", err)
	}
	if first.OpenCount != 1 {
		t.Fatalf("OpenCount after one close: wanted `1`; found `%d`", first.OpenCount)
	}
	if err := table.Close(second); err != nil {
		t.Fatalf("Close(): unexpected err: %v", err)
	}
}

func TestRemoveFreesSectorsOnLastClose(t *testing.T) {
	c, table := newTestTable(64)
	defer c.Shutdown()

	if err := table.Create(10, 0, false); err != nil {
		t.Fatalf("Create(): unexpected err: %v", err)
	}
	ino, err := table.Open(10)
	if err != nil {
		t.Fatalf("Open(): unexpected err: %v", err)
	}

	table.WriteAt(ino, []byte("hello"), 0)

	table.Remove(ino)
	if err := table.Close(ino); err != nil {
		t.Fatalf("Close(): unexpected err: %v", err)
	}

	fm := table.freeMap
	if !fm.IsFree(ino.disk.Sectors[0]) {
		t.Fatalf(
			"direct sector `%d`: wanted free after removal; found still allocated",
			ino.disk.Sectors[0],
		)
	}
}

func TestDenyWriteExceedingOpenCountPanics(t *testing.T) {
	c, table := newTestTable(64)
	defer c.Shutdown()

	if err := table.Create(10, 0, false); err != nil {
		t.Fatalf("Create(): unexpected err: %v", err)
	}
	ino, err := table.Open(10)
	if err != nil {
		t.Fatalf("Open(): unexpected err: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("DenyWrite() past OpenCount: wanted a panic; found none")
		}
	}()
	table.DenyWrite(ino)
	table.DenyWrite(ino)
}
