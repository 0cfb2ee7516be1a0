// Package chain assembles the cache levels (I-L1, D-L1, L2, L3) and the
// memory controller into the two pipelines an MMIO access actually runs
// through — one for instruction fetches, one for data accesses — and
// aggregates their hit/miss metrics for the configuration surface.
package chain

import (
	"errors"
	"fmt"

	"github.com/kestrelcore/memhier/internal/cache"
	"github.com/kestrelcore/memhier/internal/memctrl"
)

// ErrSetup is wrapped by every error Setup returns.
var ErrSetup = errors.New("chain: setup")

// LevelConfig is the per-cache-level slice of the configuration surface
// (spec.md §6): enable plus geometry. Size, Assoc, and BlockSize are
// ignored when Enable is false.
type LevelConfig struct {
	Enable    bool
	Size      uint64
	Assoc     uint64
	BlockSize uint64
}

// Config is the flat configuration record passed to Setup (spec.md §6).
// Enable is the master switch for the whole cache subsystem; when false,
// both entry points go straight to the memory controller regardless of
// the per-level Enable flags. L1Enable additionally gates I-L1 and D-L1
// as a pair, on top of their own per-level Enable bits (see DESIGN.md for
// why the two-flag L1 gating was resolved this way).
type Config struct {
	Enable      bool
	L1Enable    bool
	Write       cache.WritePolicy
	Replacement cache.ReplacementPolicy

	IL1, DL1, L2, L3 LevelConfig

	Controller memctrl.Config
}

// Level names one of the four fixed cache slots, in the order the
// metrics surface reports them (spec.md §6).
type Level int

const (
	LevelIL1 Level = iota
	LevelDL1
	LevelL2
	LevelL3

	numLevels
)

func (l Level) String() string {
	switch l {
	case LevelIL1:
		return "I-L1"
	case LevelDL1:
		return "D-L1"
	case LevelL2:
		return "L2"
	case LevelL3:
		return "L3"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Metrics is one cache slot's read-only hit/miss counters.
type Metrics struct {
	Hits   uint64
	Misses uint64
}

// Chain is the assembled pipeline: the memory controller plus whichever
// of the four cache levels are enabled, wired bottom-up per spec.md §4.2.
type Chain struct {
	Controller *memctrl.Controller

	il1, dl1, l2, l3 *cache.Cache // nil when the level is disabled

	// entryInstructionRead/Write and entryDataRead/Write are each either
	// the corresponding L1 cache's own Read/Write, or — when that L1 is
	// disabled — whatever the shared lower target below L1 is (L2, L3,
	// or the controller itself).
	entryInstructionRead  cache.ReadFunc
	entryInstructionWrite cache.WriteFunc
	entryDataRead         cache.ReadFunc
	entryDataWrite        cache.WriteFunc

	// writeThrough is the chain's single configured write policy bit
	// (spec.md §6): decided once at Setup, then forwarded unchanged to
	// every Write call rather than chosen per request.
	writeThrough bool
}

// Setup builds a Chain from a Config, allocating the memory controller and
// every enabled cache level.
func Setup(cfg Config) (*Chain, error) {
	ctrl, err := memctrl.Setup(cfg.Controller)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}

	ch := &Chain{Controller: ctrl, writeThrough: cfg.Write == cache.WriteThrough}

	// The controller moves only whole, aligned 8-byte words: widen narrower accesses.
	lowerRead := cache.ReadFunc(func(dst []byte, length int, address uint64) error {
		base, buf := address&^7, make([]byte, (address%8+uint64(length)+7)&^7)
		err := ctrl.MemoryRead(buf, len(buf), base)
		copy(dst[:length], buf[address-base:])
		return err
	})
	lowerWrite := cache.WriteFunc(func(src []byte, length int, address uint64, _ bool) error {
		if address%8 == 0 && length%8 == 0 {
			return ctrl.MemoryWrite(src, length, address)
		}
		base, buf := address&^7, make([]byte, (address%8+uint64(length)+7)&^7)
		if err := ctrl.MemoryRead(buf, len(buf), base); err != nil {
			return err
		}
		copy(buf[address-base:], src[:length])
		return ctrl.MemoryWrite(buf, len(buf), base)
	})

	if cfg.Enable && cfg.L3.Enable {
		ch.l3, err = cache.Setup("L3", cfg.L3.Size, cfg.L3.BlockSize, cfg.L3.Assoc, cfg.Replacement, lowerRead, lowerWrite)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSetup, err)
		}

		lowerRead, lowerWrite = ch.l3.Read, ch.l3.Write
	}

	if cfg.Enable && cfg.L2.Enable {
		ch.l2, err = cache.Setup("L2", cfg.L2.Size, cfg.L2.BlockSize, cfg.L2.Assoc, cfg.Replacement, lowerRead, lowerWrite)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSetup, err)
		}

		lowerRead, lowerWrite = ch.l2.Read, ch.l2.Write
	}

	// I-L1 and D-L1 independently decide whether to exist, but both, when
	// present, share the exact same lower target (spec.md §4.2).
	ch.entryInstructionRead, ch.entryInstructionWrite = lowerRead, lowerWrite
	if cfg.Enable && cfg.L1Enable && cfg.IL1.Enable {
		ch.il1, err = cache.Setup("I-L1", cfg.IL1.Size, cfg.IL1.BlockSize, cfg.IL1.Assoc, cfg.Replacement, lowerRead, lowerWrite)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSetup, err)
		}

		ch.entryInstructionRead, ch.entryInstructionWrite = ch.il1.Read, ch.il1.Write
	}

	ch.entryDataRead, ch.entryDataWrite = lowerRead, lowerWrite
	if cfg.Enable && cfg.L1Enable && cfg.DL1.Enable {
		ch.dl1, err = cache.Setup("D-L1", cfg.DL1.Size, cfg.DL1.BlockSize, cfg.DL1.Assoc, cfg.Replacement, lowerRead, lowerWrite)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSetup, err)
		}

		ch.entryDataRead, ch.entryDataWrite = ch.dl1.Read, ch.dl1.Write
	}

	return ch, nil
}

// ReadInstruction services a read through the instruction-side entry point.
func (ch *Chain) ReadInstruction(dst []byte, length int, address uint64) error {
	return ch.entryInstructionRead(dst, length, address)
}

// WriteInstruction services a write through the instruction-side entry
// point (self-modifying guest code, or instruction-cache warm-up), using
// the chain's configured write policy.
func (ch *Chain) WriteInstruction(src []byte, length int, address uint64) error {
	return ch.entryInstructionWrite(src, length, address, ch.writeThrough)
}

// ReadData services a read through the data-side entry point.
func (ch *Chain) ReadData(dst []byte, length int, address uint64) error {
	return ch.entryDataRead(dst, length, address)
}

// WriteData services a write through the data-side entry point, using the
// chain's configured write policy (spec.md §6: the write-through bit is
// the chain's policy, forwarded unchanged — not a per-request choice).
func (ch *Chain) WriteData(src []byte, length int, address uint64) error {
	return ch.entryDataWrite(src, length, address, ch.writeThrough)
}

// Metrics returns the four cache slots' (hits, misses) counters in the
// fixed order [I-L1, D-L1, L2, L3] (spec.md §6). A disabled slot reports
// zero for both counters.
func (ch *Chain) Metrics() [numLevels]Metrics {
	var m [numLevels]Metrics

	for level, c := range [numLevels]*cache.Cache{ch.il1, ch.dl1, ch.l2, ch.l3} {
		if c != nil {
			m[level] = Metrics{Hits: c.Hits(), Misses: c.Misses()}
		}
	}

	return m
}

// Flush flushes every enabled cache level, writing back dirty blocks.
func (ch *Chain) Flush() error {
	for _, c := range [numLevels]*cache.Cache{ch.il1, ch.dl1, ch.l2, ch.l3} {
		if c == nil {
			continue
		}

		if err := c.Flush(); err != nil {
			return err
		}
	}

	return nil
}
