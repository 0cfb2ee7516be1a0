package adapter

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/kestrelcore/memhier/internal/chain"
	"github.com/kestrelcore/memhier/internal/fault"
	"github.com/kestrelcore/memhier/internal/memctrl"
)

func singleChannelConfig() chain.Config {
	return chain.Config{
		Controller: memctrl.Config{
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
		},
	}
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)

	return b
}

func TestWriteThenReadRoundTripNoCaching(t *testing.T) {
	t.Parallel()

	f, err := New(singleChannelConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	src := []byte{0xde, 0xad, 0xbe, 0xef}
	if err := f.Write(EntryData, src, 4, 0x100); err != nil {
		t.Fatalf("Write: %v", err)
	}

	dst := make([]byte, 4)
	if err := f.Read(EntryInstruction, dst, 4, 0x100); err != nil {
		t.Fatalf("Read: %v", err)
	}

	if !bytes.Equal(dst, src) {
		t.Fatalf("read = %x, want %x", dst, src)
	}
}

func TestReadWriteSpanMultipleWords(t *testing.T) {
	t.Parallel()

	f, err := New(singleChannelConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	src := make([]byte, 20)
	for i := range src {
		src[i] = byte(i + 1)
	}

	// Deliberately unaligned start so walkWords must cross several word
	// boundaries with a partial first and last segment.
	if err := f.Write(EntryData, src, len(src), 0x44); err != nil {
		t.Fatalf("Write: %v", err)
	}

	dst := make([]byte, 20)
	if err := f.Read(EntryData, dst, len(dst), 0x44); err != nil {
		t.Fatalf("Read: %v", err)
	}

	if !bytes.Equal(dst, src) {
		t.Fatalf("read = %x, want %x", dst, src)
	}
}

func TestReadLengthExceedingDestinationIsContractViolation(t *testing.T) {
	t.Parallel()

	f, err := New(singleChannelConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := f.Read(EntryData, make([]byte, 2), 4, 0x0); err == nil {
		t.Fatal("expected contract violation for length > len(dst)")
	}
}

func TestMetricsRegisterReadsChainMetrics(t *testing.T) {
	t.Parallel()

	cfg := singleChannelConfig()
	cfg.Enable = true
	cfg.L1Enable = true
	cfg.DL1 = chain.LevelConfig{Enable: true, Size: 64, Assoc: 1, BlockSize: 64}

	f, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := f.Write(EntryData, []byte{1, 2, 3, 4}, 4, 0x40); err != nil {
		t.Fatalf("Write: %v", err)
	}

	hits, misses, ok := f.ReadRegister(RegMetrics(chain.LevelDL1))
	if !ok {
		t.Fatal("ReadRegister(RegMetrics(D-L1)) reported not ok")
	}

	if hits != 0 || misses != 1 {
		t.Errorf("D-L1 metrics = (hits=%d, misses=%d), want (0, 1)", hits, misses)
	}
}

func TestReadRegisterOnWriteOnlyRegisterIsMalformed(t *testing.T) {
	t.Parallel()

	f, err := New(singleChannelConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, _, ok := f.ReadRegister(RegFaultSelect()); ok {
		t.Fatal("ReadRegister(RegFaultSelect()) should be malformed, not ok")
	}
}

// TestFaultMaskPerturbsSelectedChannel exercises spec.md §8 scenario #5 at
// the adapter/register level: selecting a channel and ORing a pull-up mask
// into its DQ pins, then observing the perturbation on a subsequent read.
func TestFaultMaskPerturbsSelectedChannel(t *testing.T) {
	t.Parallel()

	f, err := New(singleChannelConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := f.Write(EntryData, []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, 8, 0x80); err != nil {
		t.Fatalf("Write: %v", err)
	}

	f.WriteRegister(RegFaultSelect(), le64(0))
	f.WriteRegister(RegFaultMask(fault.GroupDQ, PullUp), le64(0xff))

	dst := make([]byte, 8)
	if err := f.Read(EntryData, dst, 8, 0x80); err != nil {
		t.Fatalf("Read: %v", err)
	}

	if dst[0] != 0xff {
		t.Errorf("low byte = %#x, want 0xff (DQ pull-up stuck the low byte high)", dst[0])
	}
}

func TestFaultMaskWriteWithNoChannelSelectedIsDropped(t *testing.T) {
	t.Parallel()

	f, err := New(singleChannelConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// No RegFaultSelect write yet: this must be logged and dropped, not
	// panic or corrupt state.
	f.WriteRegister(RegFaultMask(fault.GroupDQ, PullUp), le64(0xff))

	if err := f.Write(EntryData, []byte{1, 2, 3, 4, 5, 6, 7, 8}, 8, 0x80); err != nil {
		t.Fatalf("Write: %v", err)
	}

	dst := make([]byte, 8)
	if err := f.Read(EntryData, dst, 8, 0x80); err != nil {
		t.Fatalf("Read: %v", err)
	}

	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if !bytes.Equal(dst, want) {
		t.Errorf("read = %x, want %x (fault-mask write with no channel selected must be a no-op)", dst, want)
	}
}

func TestFaultSelectOutOfRangeIsDropped(t *testing.T) {
	t.Parallel()

	f, err := New(singleChannelConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	f.WriteRegister(RegFaultSelect(), le64(7)) // only channel 0 exists

	if f.faultSelected {
		t.Fatal("out-of-range fault-select write must not be applied")
	}
}

func TestReconfigureRebuildsChain(t *testing.T) {
	t.Parallel()

	f, err := New(singleChannelConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	bad := singleChannelConfig()
	bad.Controller.Topology.Channels = 3 // not a power of two

	if err := f.Reconfigure(bad); err == nil {
		t.Fatal("expected Reconfigure to reject a non-power-of-two channel count")
	}

	// The façade must still be serviceable against its previous chain.
	if err := f.Write(EntryData, []byte{9, 9, 9, 9}, 4, 0x10); err != nil {
		t.Fatalf("Write after failed Reconfigure: %v", err)
	}
}
