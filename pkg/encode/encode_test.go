package encode

import (
	"testing"

	"github.com/weberc2/blockfs/pkg/types"
)

func TestInodeRoundTrip(t *testing.T) {
	in := types.InodeDisk{Length: 12345, IsDir: true}
	in.Sectors[0] = 7
	in.Sectors[types.SingleIndirectIndex] = 99
	in.Sectors[types.DoubleIndirectIndex] = 100

	var buf [types.SectorSize]byte
	EncodeInode(&in, &buf)

	var out types.InodeDisk
	DecodeInode(&out, &buf)

	if out != in {
		t.Fatalf("DecodeInode(): wanted `%+v`; found `%+v`", in, out)
	}
}

func TestInodeDiskSizeFillsOneSector(t *testing.T) {
	if InodeDiskSize != types.SectorSize {
		t.Fatalf(
			"InodeDiskSize: wanted `%d`; found `%d`",
			types.SectorSize,
			InodeDiskSize,
		)
	}
}

func TestDirEntryRoundTrip(t *testing.T) {
	var in types.DirEntry
	in.InUse = true
	in.SetName("foo.txt")
	in.Sector = 42

	var buf [DirEntrySize]byte
	EncodeDirEntry(&in, &buf)

	var out types.DirEntry
	DecodeDirEntry(&out, &buf)

	if out != in {
		t.Fatalf("DecodeDirEntry(): wanted `%+v`; found `%+v`", in, out)
	}
}

func TestDirEntryNotInUseRoundTrip(t *testing.T) {
	var in types.DirEntry
	in.InUse = false

	var buf [DirEntrySize]byte
	EncodeDirEntry(&in, &buf)

	var out types.DirEntry
	DecodeDirEntry(&out, &buf)

	if out.InUse {
		t.Fatalf("DecodeDirEntry(): wanted InUse=`false`; found `true`")
	}
}
