package encoding

import (
	"bytes"
	"testing"

	"github.com/kestrelcore/memhier/internal/memctrl"
)

func singleChannelController(t *testing.T) *memctrl.Controller {
	t.Helper()

	ctrl, err := memctrl.Setup(memctrl.Config{
		Topology: memctrl.Topology{
			Channels:    1,
			Ranks:       1,
			Banks:       1,
			Rows:        1,
			ColumnWidth: 4096,
			Order:       [5]memctrl.Coord{memctrl.CoordColumn, memctrl.CoordBank, memctrl.CoordRow, memctrl.CoordRank, memctrl.CoordChannel},
		},
		BurstLength: 4,
		MemSize:     4096,
	})
	if err != nil {
		t.Fatalf("memctrl.Setup: %v", err)
	}

	return ctrl
}

func TestLoadWritesRecordsDirectlyIntoDRAM(t *testing.T) {
	t.Parallel()

	ctrl := singleChannelController(t)

	img := NewImage([]Record{
		{Address: 0x40, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		{Address: 0x80, Data: []byte{8, 7, 6, 5, 4, 3, 2, 1}},
	})

	n, err := Load(ctrl, img)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if n != 16 {
		t.Errorf("loaded %d bytes, want 16", n)
	}

	dst := make([]byte, 8)
	if err := ctrl.MemoryRead(dst, 8, 0x80); err != nil {
		t.Fatalf("MemoryRead: %v", err)
	}

	if !bytes.Equal(dst, []byte{8, 7, 6, 5, 4, 3, 2, 1}) {
		t.Errorf("0x80 = %x, want 0807060504030201", dst)
	}
}

func TestDumpReadsEntireMappedRange(t *testing.T) {
	t.Parallel()

	ctrl := singleChannelController(t)

	if err := ctrl.MemoryWrite([]byte{1, 2, 3, 4, 5, 6, 7, 8}, 8, 0x100); err != nil {
		t.Fatalf("MemoryWrite: %v", err)
	}

	img, err := Dump(ctrl, 0, 4096)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}

	if len(img.records) != 1 {
		t.Fatalf("records = %d, want 1", len(img.records))
	}

	if len(img.records[0].Data) != 4096 {
		t.Fatalf("dumped %d bytes, want 4096", len(img.records[0].Data))
	}

	got := img.records[0].Data[0x100 : 0x100+8]
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Errorf("dumped bytes at 0x100 = %x, want 0102030405060708", got)
	}
}

func TestLoadThenDumpRoundTrip(t *testing.T) {
	t.Parallel()

	ctrl := singleChannelController(t)

	src := NewImage([]Record{{Address: 0x200, Data: []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff, 0x11, 0x22}}})
	if _, err := Load(ctrl, src); err != nil {
		t.Fatalf("Load: %v", err)
	}

	dumped, err := Dump(ctrl, 0, 4096)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}

	got := dumped.records[0].Data[0x200 : 0x200+8]
	if !bytes.Equal(got, src.records[0].Data) {
		t.Errorf("round-tripped bytes = %x, want %x", got, src.records[0].Data)
	}
}
