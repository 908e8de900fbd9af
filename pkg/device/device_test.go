package device

import (
	"testing"

	"github.com/weberc2/blockfs/pkg/types"
)

func TestMemoryDeviceRoundTrip(t *testing.T) {
	d := NewMemoryDevice(16)

	var in [types.SectorSize]byte
	for i := range in {
		in[i] = byte(i)
	}
	d.WriteSector(3, &in)

	var out [types.SectorSize]byte
	d.ReadSector(3, &out)

	if out != in {
		t.Fatalf("ReadSector(3): contents did not round-trip")
	}
}

func TestMemoryDeviceSectorCount(t *testing.T) {
	d := NewMemoryDevice(16)
	if found := d.SectorCount(); found != 16 {
		t.Fatalf("SectorCount(): wanted `16`; found `%d`", found)
	}
}

func TestMemoryDeviceOutOfRangePanics(t *testing.T) {
	d := NewMemoryDevice(4)
	defer func() {
		if recover() == nil {
			t.Fatalf("ReadSector(4): wanted a panic; found none")
		}
	}()
	var buf [types.SectorSize]byte
	d.ReadSector(4, &buf)
}
