// Package memchannel simulates one DDR channel: a small state machine that
// owns a contiguous backing store and interprets Activate / Read / Write /
// burst-continue / Precharge messages against it.
package memchannel

import (
	"encoding/binary"

	"github.com/kestrelcore/memhier/internal/ddr"
	"github.com/kestrelcore/memhier/internal/fault"
	"github.com/kestrelcore/memhier/internal/log"
)

// none marks "no bank/row/rank currently selected."
const none = ^uint64(0)

// Channel is one DDR channel: ranks × banks × rows × columnWidth bytes of
// backing store plus the registers a real channel would hold between
// commands (the activated bank, the selected row and rank, and the current
// burst column).
type Channel struct {
	Ranks       uint64
	Banks       uint64
	Rows        uint64
	ColumnWidth uint64 // bytes per row per bank

	// Fault is applied by the caller (the memory controller) before a
	// message reaches Handle; Channel itself never perturbs a message. It
	// is kept here only so config commands can target "channel N's fault
	// model" without the controller needing a side table.
	Fault fault.Model

	backing []byte

	bankMask uint64
	rowMask  uint64
	rankMask uint64

	activatedBank uint64
	selectedRow   uint64
	selectedRank  uint64
	currentColumn uint64
	activated     bool

	// Trace, if non-nil, is invoked with every message Handle receives,
	// before the command is interpreted. It exists so tests can count
	// exactly how many Activate/Read/ReadBurstContinue messages a request
	// produced, per spec.md §8.
	Trace func(ddr.Message)

	log *log.Logger
}

// New creates a channel and seeds its backing store with a deterministic,
// recognisable pattern so an uninitialized read is visibly distinct from a
// real write (see SPEC_FULL.md §10).
func New(ranks, banks, rows, columnWidth uint64) *Channel {
	size := ranks * banks * rows * columnWidth

	c := &Channel{
		Ranks:         ranks,
		Banks:         banks,
		Rows:          rows,
		ColumnWidth:   columnWidth,
		backing:       make([]byte, size),
		bankMask:      banks - 1,
		rowMask:       rows - 1,
		rankMask:      ranks - 1,
		activatedBank: none,
		log:           log.DefaultLogger(),
	}

	for i := range c.backing {
		c.backing[i] = byte(uint64(i) ^ (uint64(i) >> 8))
	}

	return c
}

// WithLogger overrides the channel's logger.
func (c *Channel) WithLogger(l *log.Logger) {
	c.log = l
}

// Size returns the size of the backing store in bytes.
func (c *Channel) Size() uint64 {
	return uint64(len(c.backing))
}

// View returns a copy of the backing store, for tests and the `dump` CLI
// command. It is not on the request path.
func (c *Channel) View() []byte {
	view := make([]byte, len(c.backing))
	copy(view, c.backing)

	return view
}

func (c *Channel) offset(bank, row, rank, column uint64) uint64 {
	return ((rank*c.Banks+bank)*c.Rows+row)*c.ColumnWidth + column
}

// Handle interprets one DDR message against the channel's state, returning
// the 64-bit data word for Read/ReadBurstContinue (zero otherwise). The
// channel trusts that the controller issued Activate before any Read/Write
// targeting the activated bank/row/rank; it performs no validation of
// command ordering (spec.md §4.4).
func (c *Channel) Handle(msg ddr.Message) uint64 {
	if c.Trace != nil {
		c.Trace(msg)
	}

	switch msg.Command {
	case ddr.Activate:
		// Masked: the fault model runs before Handle and can set pull-up
		// bits past the topology's actual bank/row/rank width, and an
		// unmasked coordinate overruns the backing store in loadWord/storeWord.
		c.activatedBank = msg.Payload.BA & c.bankMask
		c.selectedRow = msg.Payload.A & c.rowMask
		c.selectedRank = msg.Payload.S & c.rankMask
		c.activated = true

		return 0

	case ddr.Read:
		c.currentColumn = msg.Payload.A
		word := c.loadWord(c.currentColumn)
		c.currentColumn += ddr.BusWidth

		return word

	case ddr.ReadBurstContinue:
		word := c.loadWord(c.currentColumn)
		c.currentColumn += ddr.BusWidth

		return word

	case ddr.Write:
		c.currentColumn = msg.Payload.A
		c.storeWord(c.currentColumn, msg.Payload.DQ)
		c.currentColumn += ddr.BusWidth

		return 0

	case ddr.WriteBurstContinue:
		c.storeWord(c.currentColumn, msg.Payload.DQ)
		c.currentColumn += ddr.BusWidth

		return 0

	case ddr.Precharge:
		c.activated = false

		return 0

	default:
		c.log.Error("memchannel: unknown command", "command", msg.Command)

		return 0
	}
}

func (c *Channel) loadWord(column uint64) uint64 {
	off := c.offset(c.activatedBank, c.selectedRow, c.selectedRank, column)

	return binary.LittleEndian.Uint64(c.backing[off : off+ddr.BusWidth])
}

func (c *Channel) storeWord(column, word uint64) {
	off := c.offset(c.activatedBank, c.selectedRow, c.selectedRank, column)
	binary.LittleEndian.PutUint64(c.backing[off:off+ddr.BusWidth], word)
}
