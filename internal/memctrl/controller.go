// Package memctrl is the memory controller: it linearises an address into
// (channel, rank, bank, row, column) coordinates, splits a request across
// channel and burst boundaries, and drives a sequence of DDR-style command
// messages at the channel(s) that own the result.
package memctrl

import (
	"errors"
	"fmt"

	"github.com/kestrelcore/memhier/internal/ddr"
	"github.com/kestrelcore/memhier/internal/log"
	"github.com/kestrelcore/memhier/internal/memchannel"
)

// Sentinel errors. Controller-level failures wrap one of these so callers
// can errors.Is against the kind without parsing message text.
var (
	ErrSetup    = errors.New("memctrl: setup")
	ErrContract = errors.New("memctrl: contract violation")
)

// DefaultBurst is the DDR burst length used when Config.BurstLength is zero.
const DefaultBurst = uint64(4)

// Config is the flat configuration record passed to Setup (spec.md §6).
type Config struct {
	Topology    Topology
	BurstLength uint64 // power of two; 0 means DefaultBurst
	MemSize     uint64 // bytes mapped to DRAM, starting at MemOffset
	MemOffset   uint64
}

// RangeFault is the diagnostic event recorded when a request targets an
// address outside the controller's mapped DRAM range (spec.md §7). Reads
// return zeroes and writes are dropped; RangeFault lets tests observe that
// this happened, through Controller.RangeFaults.
type RangeFault struct {
	Address uint64
	Length  int
}

// Controller is the memory controller (spec.md §4.3).
type Controller struct {
	topology    Topology
	table       coordTable
	burstBytes  uint64
	boundBytes  uint64
	memSize     uint64
	memOffset   uint64
	burstLength uint64

	Channels []*memchannel.Channel

	tracked []channelTracking

	rangeFaults []RangeFault

	log *log.Logger
}

type channelTracking struct {
	valid bool
	bank  uint64
}

// Setup validates a Config and builds a Controller, allocating one
// memchannel.Channel per configured channel. Any error is returned before
// any channel is allocated, so there is nothing to release on failure
// (spec.md §7).
func Setup(cfg Config) (*Controller, error) {
	t := cfg.Topology

	for _, v := range []uint64{t.Channels, t.Ranks, t.Banks, t.Rows, t.ColumnWidth} {
		if !isPowerOfTwo(v) {
			return nil, fmt.Errorf("%w: topology dimension %d is not a power of two", ErrSetup, v)
		}
	}

	var seen [5]bool
	for _, c := range t.Order {
		if c >= numCoords || seen[c] {
			return nil, fmt.Errorf("%w: topological order is not a permutation of the five coordinates: %v", ErrSetup, t.Order)
		}

		seen[c] = true
	}

	burst := cfg.BurstLength
	if burst == 0 {
		burst = DefaultBurst
	}

	if !isPowerOfTwo(burst) {
		return nil, fmt.Errorf("%w: burst length %d is not a power of two", ErrSetup, burst)
	}

	if t.ColumnWidth < burst*ddr.BusWidth {
		return nil, fmt.Errorf("%w: column width %d smaller than burst*bus width %d",
			ErrSetup, t.ColumnWidth, burst*ddr.BusWidth)
	}

	table := newCoordTable(t)

	burstBytes := uint64(ddr.BusWidth)
	if t.lowest() == CoordColumn {
		burstBytes = ddr.BusWidth * burst
	}

	boundBytes := uint64(1) << t.width(t.lowest())

	ctrl := &Controller{
		topology:    t,
		table:       table,
		burstBytes:  burstBytes,
		boundBytes:  boundBytes,
		memSize:     cfg.MemSize,
		memOffset:   cfg.MemOffset,
		burstLength: burst,
		Channels:    make([]*memchannel.Channel, t.Channels),
		tracked:     make([]channelTracking, t.Channels),
		log:         log.DefaultLogger(),
	}

	for i := range ctrl.Channels {
		ctrl.Channels[i] = memchannel.New(t.Ranks, t.Banks, t.Rows, t.ColumnWidth)
	}

	return ctrl, nil
}

// WithLogger overrides the controller's (and its channels') logger.
func (ctrl *Controller) WithLogger(l *log.Logger) {
	ctrl.log = l

	for _, ch := range ctrl.Channels {
		ch.WithLogger(l)
	}
}

// RangeFaults returns the diagnostic events recorded for out-of-range
// accesses since the controller was created.
func (ctrl *Controller) RangeFaults() []RangeFault {
	return append([]RangeFault(nil), ctrl.rangeFaults...)
}

// inRange reports whether [address, address+length) lies entirely within
// the controller's mapped DRAM range.
func (ctrl *Controller) inRange(address uint64, length int) bool {
	if address < ctrl.memOffset {
		return false
	}

	end := address - ctrl.memOffset + uint64(length)

	return end <= ctrl.memSize
}

// MemoryRead services a read request, splitting it across channel and burst
// boundaries as necessary. Precondition: address is 8-byte aligned and
// length is a multiple of 8 (spec.md §4.3); violating it is a contract
// error.
func (ctrl *Controller) MemoryRead(dst []byte, length int, address uint64) error {
	if err := ctrl.checkContract(length, address); err != nil {
		return err
	}

	if !ctrl.inRange(address, length) {
		ctrl.log.Error("memctrl: out-of-range read", "address", address, "length", length)
		ctrl.rangeFaults = append(ctrl.rangeFaults, RangeFault{Address: address, Length: length})

		for i := range dst[:length] {
			dst[i] = 0
		}

		return nil
	}

	remaining := uint64(length)
	addr := address
	pos := 0

	for remaining > 0 {
		step := ctrl.stepSize(remaining, addr)
		if err := ctrl.readSegment(dst[pos:pos+int(step)], addr); err != nil {
			return err
		}

		addr += step
		pos += int(step)
		remaining -= step
	}

	return nil
}

// MemoryWrite services a write request with the same segmentation as
// MemoryRead.
func (ctrl *Controller) MemoryWrite(src []byte, length int, address uint64) error {
	if err := ctrl.checkContract(length, address); err != nil {
		return err
	}

	if !ctrl.inRange(address, length) {
		ctrl.log.Error("memctrl: out-of-range write", "address", address, "length", length)
		ctrl.rangeFaults = append(ctrl.rangeFaults, RangeFault{Address: address, Length: length})

		return nil
	}

	remaining := uint64(length)
	addr := address
	pos := 0

	for remaining > 0 {
		step := ctrl.stepSize(remaining, addr)
		if err := ctrl.writeSegment(src[pos:pos+int(step)], addr); err != nil {
			return err
		}

		addr += step
		pos += int(step)
		remaining -= step
	}

	return nil
}

func (ctrl *Controller) checkContract(length int, address uint64) error {
	if address%ddr.BusWidth != 0 {
		return fmt.Errorf("%w: address %#x is not 8-byte aligned", ErrContract, address)
	}

	if length%ddr.BusWidth != 0 {
		return fmt.Errorf("%w: length %d is not a multiple of 8", ErrContract, length)
	}

	return nil
}

func (ctrl *Controller) stepSize(remaining, address uint64) uint64 {
	step := remaining
	if ctrl.burstBytes < step {
		step = ctrl.burstBytes
	}

	boundRemaining := ctrl.boundBytes - (address % ctrl.boundBytes)
	if boundRemaining < step {
		step = boundRemaining
	}

	return step
}

// readSegment transfers one contiguous segment (bounded by stepSize) from a
// single channel, issuing Activate (if needed) plus one Read followed by
// ReadBurstContinue messages.
func (ctrl *Controller) readSegment(dst []byte, address uint64) error {
	coords := ctrl.table.decode(address - ctrl.memOffset)
	channel := ctrl.Channels[coords[CoordChannel]]

	ctrl.maybeActivate(coords)

	words := len(dst) / ddr.BusWidth

	for i := 0; i < words; i++ {
		var msg ddr.Message
		if i == 0 {
			msg = ddr.ReadAt(coords[CoordColumn])
		} else {
			msg = ddr.ReadContinue()
		}

		msg = channel.Fault.Apply(msg)
		word := channel.Handle(msg)
		word = channel.Fault.ApplyData(word)

		bytes := ddr.ToBytes(word)
		copy(dst[i*ddr.BusWidth:(i+1)*ddr.BusWidth], bytes[:])
	}

	return nil
}

// writeSegment is the write-path twin of readSegment.
func (ctrl *Controller) writeSegment(src []byte, address uint64) error {
	coords := ctrl.table.decode(address - ctrl.memOffset)
	channel := ctrl.Channels[coords[CoordChannel]]

	ctrl.maybeActivate(coords)

	words := len(src) / ddr.BusWidth

	for i := 0; i < words; i++ {
		var wordBytes [ddr.BusWidth]byte
		copy(wordBytes[:], src[i*ddr.BusWidth:(i+1)*ddr.BusWidth])
		word := ddr.FromBytes(wordBytes)

		var msg ddr.Message
		if i == 0 {
			msg = ddr.WriteAt(coords[CoordColumn], word)
		} else {
			msg = ddr.WriteContinue(word)
		}

		msg = channel.Fault.Apply(msg)
		channel.Handle(msg)
	}

	return nil
}

// maybeActivate emits an Activate message if the channel's tracked bank
// differs from the segment's target bank (spec.md §4.3 step 2).
func (ctrl *Controller) maybeActivate(coords [numCoords]uint64) {
	chIdx := coords[CoordChannel]
	channel := ctrl.Channels[chIdx]
	bank := coords[CoordBank]

	state := ctrl.tracked[chIdx]
	if state.valid && state.bank == bank {
		return
	}

	msg := ddr.Activation(bank, coords[CoordRow], coords[CoordRank])
	msg = channel.Fault.Apply(msg)
	channel.Handle(msg)

	ctrl.tracked[chIdx] = channelTracking{valid: true, bank: bank}
}
