// Package adapter is the external-interface façade: it splits arbitrary-
// length MMIO accesses into the within-block requests the cache engine
// requires, and decodes the sideband configuration, metrics, and fault
// registers (spec.md §6; SPEC_FULL.md §4.6). It is grounded on the
// teacher's vm.Memory (MAR/MDR-mediated dispatch to one of two entry
// points) and vm.MMIO (a closed, address-keyed device table), repurposed:
// the sideband surface here is the adapter's own configuration plane, not
// guest-visible memory, so it is keyed by the small Reg enum instead of a
// vm.Word.
package adapter

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/kestrelcore/memhier/internal/chain"
	"github.com/kestrelcore/memhier/internal/ddr"
	"github.com/kestrelcore/memhier/internal/fault"
	"github.com/kestrelcore/memhier/internal/log"
)

// ErrContract is wrapped by errors the façade raises against its own
// callers (not the core): a length argument that disagrees with a slice,
// or a Reconfigure that fails chain.Setup.
var ErrContract = errors.New("adapter: contract violation")

// wordSize is the granularity the façade splits every access into before
// forwarding to the chain. It is the spec's own phrase for the adapter's
// job ("splitting multi-block MMIO into per-word accesses", spec.md §7) and
// divides evenly into any legal block size, since block sizes are powers of
// two no smaller than ddr.BusWidth.
const wordSize = uint64(ddr.BusWidth)

// Facade is the single entry point an external caller (the `bench`/`repl`
// CLI commands, or a test) drives: two data-path methods plus the sideband
// register surface.
type Facade struct {
	ch  *chain.Chain
	cfg chain.Config

	faultSelect   int
	faultSelected bool

	log *log.Logger
}

// New builds a Facade and the chain.Chain it wraps from an initial
// configuration.
func New(cfg chain.Config) (*Facade, error) {
	ch, err := chain.Setup(cfg)
	if err != nil {
		return nil, err
	}

	return &Facade{ch: ch, cfg: cfg, log: log.DefaultLogger()}, nil
}

// WithLogger overrides the façade's logger.
func (f *Facade) WithLogger(l *log.Logger) {
	f.log = l
}

// Reconfigure rebuilds the chain from a new Config, matching setup_chain's
// single-failure-return contract (spec.md §7): on error the façade keeps
// running against its previous, still-valid chain.
func (f *Facade) Reconfigure(cfg chain.Config) error {
	ch, err := chain.Setup(cfg)
	if err != nil {
		return fmt.Errorf("%w: reconfigure: %w", ErrContract, err)
	}

	f.ch = ch
	f.cfg = cfg

	return nil
}

// Read services a load through the given entry point, splitting it into
// word-granularity segments before forwarding each to the chain.
func (f *Facade) Read(entry ChainEntry, dst []byte, length int, address uint64) error {
	if length < 0 || length > len(dst) {
		return fmt.Errorf("%w: read: length %d exceeds destination of %d bytes", ErrContract, length, len(dst))
	}

	read := f.readFunc(entry)

	return walkWords(uint64(length), address, func(segLen int, segAddr uint64, offset uint64) error {
		return read(dst[offset:offset+uint64(segLen)], segLen, segAddr)
	})
}

// Write services a store through the given entry point, splitting it into
// word-granularity segments before forwarding each to the chain. The
// chain's write-through/write-back policy is already fixed at
// chain.Setup (spec.md §6's write_through bit is the chain's policy,
// forwarded unchanged); Write does not re-expose it as a parameter.
func (f *Facade) Write(entry ChainEntry, src []byte, length int, address uint64) error {
	if length < 0 || length > len(src) {
		return fmt.Errorf("%w: write: length %d exceeds source of %d bytes", ErrContract, length, len(src))
	}

	write := f.writeFunc(entry)

	return walkWords(uint64(length), address, func(segLen int, segAddr uint64, offset uint64) error {
		return write(src[offset:offset+uint64(segLen)], segLen, segAddr)
	})
}

func (f *Facade) readFunc(entry ChainEntry) func([]byte, int, uint64) error {
	if entry == EntryInstruction {
		return f.ch.ReadInstruction
	}

	return f.ch.ReadData
}

func (f *Facade) writeFunc(entry ChainEntry) func([]byte, int, uint64) error {
	if entry == EntryInstruction {
		return f.ch.WriteInstruction
	}

	return f.ch.WriteData
}

// walkWords segments a [address, address+length) access the same way
// memctrl segments a request across a boundary (step = min(remaining,
// bound - address%bound)), but bounded at word granularity rather than a
// burst or channel boundary, then calls fn once per segment.
func walkWords(length, address uint64, fn func(segLen int, segAddr uint64, offset uint64) error) error {
	var offset uint64

	for offset < length {
		remaining := length - offset
		toBoundary := wordSize - (address+offset)%wordSize

		step := remaining
		if toBoundary < step {
			step = toBoundary
		}

		if err := fn(int(step), address+offset, offset); err != nil {
			return err
		}

		offset += step
	}

	return nil
}

// Metrics returns the chain's four cache-slot (hits, misses) counters, in
// the fixed order [I-L1, D-L1, L2, L3] (spec.md §6).
func (f *Facade) Metrics() [4]chain.Metrics {
	return f.ch.Metrics()
}

// Flush flushes every enabled cache level.
func (f *Facade) Flush() error {
	return f.ch.Flush()
}

// ReadRegister reads a sideband register. Only RegMetrics is readable;
// reading any other register is a malformed access and returns (0, false)
// rather than an error, matching the write side's "silently ignored"
// contract (spec.md §6).
func (f *Facade) ReadRegister(reg Reg) (hits, misses uint64, ok bool) {
	if reg.kind != kindMetrics {
		f.log.Error("adapter: register is not readable", "register", reg)
		return 0, 0, false
	}

	if reg.level > chain.LevelL3 {
		f.log.Error("adapter: metrics register names an unknown cache level", "register", reg)
		return 0, 0, false
	}

	m := f.ch.Metrics()[reg.level]

	return m.Hits, m.Misses, true
}

// WriteRegister writes a sideband register. A malformed write — an
// unreadable register for a writable-only op, a selected channel out of
// range, a bad pin group or polarity, or a payload of the wrong length —
// is logged at Error and dropped rather than returned as an error, per
// spec.md §6: "malformed sideband register writes are silently ignored in
// the current contract."
func (f *Facade) WriteRegister(reg Reg, payload []byte) {
	switch reg.kind {
	case kindConfig:
		if err := f.Reconfigure(f.cfg); err != nil {
			f.log.Error("adapter: reconfigure failed", "err", err)
		}

	case kindFaultSelect:
		if len(payload) != 8 {
			f.log.Error("adapter: fault-select register write has wrong length", "length", len(payload))
			return
		}

		idx := int(binary.LittleEndian.Uint64(payload))
		if idx < 0 || idx >= len(f.ch.Controller.Channels) {
			f.log.Error("adapter: fault-select channel index out of range", "index", idx)
			return
		}

		f.faultSelect = idx
		f.faultSelected = true

	case kindFaultMask:
		if len(payload) != 8 {
			f.log.Error("adapter: fault-mask register write has wrong length", "length", len(payload))
			return
		}

		if reg.group > fault.GroupS {
			f.log.Error("adapter: fault-mask register names an unknown pin group", "register", reg)
			return
		}

		if !f.faultSelected {
			f.log.Error("adapter: fault-mask register write with no channel selected", "register", reg)
			return
		}

		bits := binary.LittleEndian.Uint64(payload)
		channel := f.ch.Controller.Channels[f.faultSelect]

		switch reg.pol {
		case PullUp:
			channel.Fault.SetPullUp(reg.group, bits)
		case PullDown:
			channel.Fault.SetPullDown(reg.group, bits)
		default:
			f.log.Error("adapter: fault-mask register names an unknown polarity", "register", reg)
		}

	case kindMetrics:
		f.log.Error("adapter: metrics register is read-only", "register", reg)

	default:
		f.log.Error("adapter: unknown sideband register", "register", reg)
	}
}
