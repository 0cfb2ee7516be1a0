package memctrl

import (
	"testing"

	"github.com/kestrelcore/memhier/internal/ddr"
)

func singleChannelTopology(columnWidth uint64) Topology {
	return Topology{
		Channels:    1,
		Ranks:       1,
		Banks:       1,
		Rows:        1,
		ColumnWidth: columnWidth,
		Order:       [5]Coord{CoordColumn, CoordBank, CoordRow, CoordRank, CoordChannel},
	}
}

func TestSetupRejectsNonPowerOfTwo(t *testing.T) {
	t.Parallel()

	top := singleChannelTopology(4096)
	top.Banks = 3

	if _, err := Setup(Config{Topology: top, MemSize: 4096}); err == nil {
		t.Fatal("expected setup error for non-power-of-two banks")
	}
}

func TestSetupRejectsBadPermutation(t *testing.T) {
	t.Parallel()

	top := singleChannelTopology(4096)
	top.Order = [5]Coord{CoordColumn, CoordColumn, CoordRow, CoordRank, CoordChannel}

	if _, err := Setup(Config{Topology: top, MemSize: 4096}); err == nil {
		t.Fatal("expected setup error for non-permutation order")
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	t.Parallel()

	ctrl, err := Setup(Config{
		Topology:    singleChannelTopology(4096),
		BurstLength: 4,
		MemSize:     4096,
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	src := []byte{0x44, 0x33, 0x22, 0x11, 0, 0, 0, 0}

	if err := ctrl.MemoryWrite(src, 8, 0x40); err != nil {
		t.Fatalf("MemoryWrite: %v", err)
	}

	dst := make([]byte, 8)
	if err := ctrl.MemoryRead(dst, 8, 0x40); err != nil {
		t.Fatalf("MemoryRead: %v", err)
	}

	for i := range src {
		if dst[i] != src[i] {
			t.Errorf("byte %d = %#x, want %#x", i, dst[i], src[i])
		}
	}
}

func TestContractViolationUnalignedAddress(t *testing.T) {
	t.Parallel()

	ctrl, err := Setup(Config{Topology: singleChannelTopology(4096), MemSize: 4096})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	dst := make([]byte, 8)
	if err := ctrl.MemoryRead(dst, 8, 0x41); err == nil {
		t.Error("expected contract error for unaligned address")
	}
}

func TestOutOfRangeReadReturnsZeroesAndRecordsFault(t *testing.T) {
	t.Parallel()

	ctrl, err := Setup(Config{Topology: singleChannelTopology(4096), MemSize: 4096})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	dst := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := ctrl.MemoryRead(dst, 8, 0x10000); err != nil {
		t.Fatalf("MemoryRead: %v", err)
	}

	for i, b := range dst {
		if b != 0 {
			t.Errorf("byte %d = %#x, want 0", i, b)
		}
	}

	faults := ctrl.RangeFaults()
	if len(faults) != 1 || faults[0].Address != 0x10000 {
		t.Errorf("RangeFaults() = %+v, want one fault at 0x10000", faults)
	}
}

func TestOutOfRangeWriteIsDropped(t *testing.T) {
	t.Parallel()

	ctrl, err := Setup(Config{Topology: singleChannelTopology(4096), MemSize: 4096})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	src := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := ctrl.MemoryWrite(src, 8, 0x10000); err != nil {
		t.Fatalf("MemoryWrite: %v", err)
	}

	if len(ctrl.RangeFaults()) != 1 {
		t.Errorf("expected one range fault recorded")
	}
}

// TestBurstSegmentationSingleActivate pins spec.md §8's round-trip law #3:
// with burst length 4 and Column lowest, reading 32 contiguous aligned
// bytes from a single (rank,bank,row) issues exactly one Activate and four
// Read/ReadBurstContinue messages.
func TestBurstSegmentationSingleActivate(t *testing.T) {
	t.Parallel()

	ctrl, err := Setup(Config{
		Topology:    singleChannelTopology(4096),
		BurstLength: 4,
		MemSize:     4096,
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	var commands []ddr.Command
	ctrl.Channels[0].Trace = func(m ddr.Message) { commands = append(commands, m.Command) }

	dst := make([]byte, 32)
	if err := ctrl.MemoryRead(dst, 32, 0); err != nil {
		t.Fatalf("MemoryRead: %v", err)
	}

	activates, reads := 0, 0

	for _, c := range commands {
		switch c {
		case ddr.Activate:
			activates++
		case ddr.Read, ddr.ReadBurstContinue:
			reads++
		}
	}

	if activates != 1 {
		t.Errorf("activates = %d, want 1", activates)
	}

	if reads != 4 {
		t.Errorf("read/read-continue messages = %d, want 4", reads)
	}
}

// TestSegmentationAcrossChannels adapts spec.md §8 scenario #6: a 128-byte
// read that crosses a channel boundary partway through issues one Activate
// per channel touched and transfers exactly 16 data words overall. The
// column width here (64 bytes) is chosen, unlike the spec's illustrative
// 4096, so that the channel coordinate's bit sits immediately above the
// column field and the crossing lands exactly 64 bytes in, as the scenario
// describes (see DESIGN.md).
func TestSegmentationAcrossChannels(t *testing.T) {
	t.Parallel()

	top := Topology{
		Channels:    2,
		Ranks:       1,
		Banks:       1,
		Rows:        1,
		ColumnWidth: 64,
		Order:       [5]Coord{CoordColumn, CoordChannel, CoordBank, CoordRow, CoordRank},
	}

	ctrl, err := Setup(Config{Topology: top, BurstLength: 4, MemSize: 128})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	var commands0, commands1 []ddr.Command
	ctrl.Channels[0].Trace = func(m ddr.Message) { commands0 = append(commands0, m.Command) }
	ctrl.Channels[1].Trace = func(m ddr.Message) { commands1 = append(commands1, m.Command) }

	dst := make([]byte, 128)
	if err := ctrl.MemoryRead(dst, 128, 0); err != nil {
		t.Fatalf("MemoryRead: %v", err)
	}

	countActivates := func(cmds []ddr.Command) int {
		n := 0

		for _, c := range cmds {
			if c == ddr.Activate {
				n++
			}
		}

		return n
	}

	countWords := func(cmds []ddr.Command) int {
		n := 0

		for _, c := range cmds {
			if c == ddr.Read || c == ddr.ReadBurstContinue {
				n++
			}
		}

		return n
	}

	if got := countActivates(commands0) + countActivates(commands1); got != 2 {
		t.Errorf("total activates across channels = %d, want 2", got)
	}

	if got := countWords(commands0) + countWords(commands1); got != 16 {
		t.Errorf("total burst words across channels = %d, want 16", got)
	}
}
