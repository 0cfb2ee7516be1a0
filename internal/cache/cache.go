// Package cache is a single, reusable N-way set-associative cache. One
// Cache instance models one level (I-L1, D-L1, L2, or L3 in the chain
// package); its configurable geometry, replacement policy, and write
// policy are shared code across every level.
package cache

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"sort"
	"sync/atomic"

	"github.com/kestrelcore/memhier/internal/log"
)

// ErrSetup is wrapped by every error Setup returns.
var ErrSetup = errors.New("cache: setup")

// ReadFunc is the shape of both a Cache's own Read method and the
// lower_read callback used to refill a block from the next level down (or
// from the memory controller, for the lowest enabled level).
type ReadFunc func(dst []byte, length int, address uint64) error

// WriteFunc is the shape of both a Cache's own Write method and the
// lower_write callback. writeThrough carries the chain's write policy
// unchanged to whatever is downstream.
type WriteFunc func(src []byte, length int, address uint64, writeThrough bool) error

// Cache is one set-associative cache level.
type Cache struct {
	Name string // label used in logs and the metrics surface, e.g. "L2"

	blockSize     uint64
	blockSizeLog2 uint8
	assoc         uint64
	numberOfSets  uint64

	replacement ReplacementPolicy

	sets []set

	hits   atomic.Uint64
	misses atomic.Uint64

	lowerRead  ReadFunc
	lowerWrite WriteFunc

	log *log.Logger
}

// Setup allocates a cache level. size, blockSize, and assoc must all be
// powers of two, and size must be an exact multiple of assoc×blockSize so
// that number_of_sets is itself a power of two (spec.md §3).
func Setup(name string, size, blockSize, assoc uint64, replacement ReplacementPolicy, lowerRead ReadFunc, lowerWrite WriteFunc) (*Cache, error) {
	for _, v := range []uint64{size, blockSize, assoc} {
		if !isPowerOfTwo(v) {
			return nil, fmt.Errorf("%w: %s: %d is not a power of two", ErrSetup, name, v)
		}
	}

	setBytes := assoc * blockSize
	if setBytes == 0 || size%setBytes != 0 {
		return nil, fmt.Errorf("%w: %s: size %d is not a multiple of assoc*block_size %d", ErrSetup, name, size, setBytes)
	}

	numberOfSets := size / setBytes
	if !isPowerOfTwo(numberOfSets) {
		return nil, fmt.Errorf("%w: %s: number_of_sets %d is not a power of two", ErrSetup, name, numberOfSets)
	}

	if lowerRead == nil || lowerWrite == nil {
		return nil, fmt.Errorf("%w: %s: lower_read and lower_write are required", ErrSetup, name)
	}

	c := &Cache{
		Name:          name,
		blockSize:     blockSize,
		blockSizeLog2: log2(blockSize),
		assoc:         assoc,
		numberOfSets:  numberOfSets,
		replacement:   replacement,
		sets:          make([]set, numberOfSets),
		lowerRead:     lowerRead,
		lowerWrite:    lowerWrite,
		log:           log.DefaultLogger(),
	}

	for i := range c.sets {
		c.sets[i] = set{
			index:  uint64(i),
			blocks: make([]block, assoc),
			rng:    lcgSeed,
		}

		for j := range c.sets[i].blocks {
			c.sets[i].blocks[j].data = make([]byte, blockSize)
		}
	}

	return c, nil
}

// WithLogger overrides the cache's logger.
func (c *Cache) WithLogger(l *log.Logger) {
	c.log = l
}

// Hits returns the number of accesses that this level serviced from a
// valid block. The counter is an atomic, so a reader on another goroutine
// (such as a progress ticker) can poll it without a data race (spec.md §5).
func (c *Cache) Hits() uint64 { return c.hits.Load() }

// Misses returns the number of accesses that required a refill from below.
func (c *Cache) Misses() uint64 { return c.misses.Load() }

func (c *Cache) setIndex(address uint64) uint64 {
	return (address >> c.blockSizeLog2) % c.numberOfSets
}

func (c *Cache) tagOf(address uint64) uint64 {
	return address >> c.blockSizeLog2
}

func (c *Cache) blockBase(address uint64) uint64 {
	return address &^ (c.blockSize - 1)
}

// Read implements ReadFunc: the cache-level entry point for a load.
// Precondition: [address, address+length) lies entirely within one block
// of this cache; a higher cache or the adapter is responsible for
// splitting a request that doesn't (spec.md §4.1).
func (c *Cache) Read(dst []byte, length int, address uint64) error {
	s := &c.sets[c.setIndex(address)]
	tag := c.tagOf(address)

	blk, hit := s.find(tag)
	if hit {
		c.hits.Add(1)
		c.stampGeneration(s, blk)
	} else {
		c.misses.Add(1)

		var err error

		blk, err = c.allocate(s, tag)
		if err != nil {
			return err
		}

		if err := c.lowerRead(blk.data, int(c.blockSize), c.blockBase(address)); err != nil {
			return err
		}
	}

	offset := address % c.blockSize
	copy(dst[:length], blk.data[offset:offset+uint64(length)])

	return nil
}

// Write implements WriteFunc: the cache-level entry point for a store.
// writeThrough is the chain's configured write policy, forwarded
// unchanged (spec.md §4.1).
func (c *Cache) Write(src []byte, length int, address uint64, writeThrough bool) error {
	s := &c.sets[c.setIndex(address)]
	tag := c.tagOf(address)

	blk, hit := s.find(tag)

	switch {
	case hit:
		c.hits.Add(1)
	case !writeThrough:
		// Write-back, write-allocate: bring the block in before writing it.
		c.misses.Add(1)

		var err error

		blk, err = c.allocate(s, tag)
		if err != nil {
			return err
		}

		if err := c.lowerRead(blk.data, int(c.blockSize), c.blockBase(address)); err != nil {
			return err
		}
	default:
		// Write-through, write-no-allocate: forward unchanged, untouched
		// by this level.
		c.misses.Add(1)
		return c.lowerWrite(src, length, address, true)
	}

	offset := address % c.blockSize
	copy(blk.data[offset:offset+uint64(length)], src[:length])
	c.stampGeneration(s, blk)

	if writeThrough {
		if err := c.lowerWrite(blk.data, int(c.blockSize), c.blockBase(address), true); err != nil {
			return err
		}

		blk.dirty = false
	} else {
		blk.dirty = true
	}

	return nil
}

// stampGeneration updates a block's recency stamp on every access, not
// only on allocation — without this, LRU degenerates into FIFO-by-
// allocation (spec.md §9). RANDOM ignores generation entirely.
func (c *Cache) stampGeneration(s *set, blk *block) {
	if c.replacement != LRU && c.replacement != MRU {
		return
	}

	if s.generationCounter == math.MaxUint64 {
		c.compactGenerations(s)
	}

	s.generationCounter++
	blk.generation = s.generationCounter
}

// compactGenerations re-ranks every block's generation to its relative
// order (0..assoc-1) and resets the set's counter accordingly, so a
// 64-bit generation counter never actually wraps around in practice
// (spec.md §9's compaction alternative to widening the counter).
func (c *Cache) compactGenerations(s *set) {
	order := make([]int, len(s.blocks))
	for i := range order {
		order[i] = i
	}

	sort.Slice(order, func(i, j int) bool {
		return s.blocks[order[i]].generation < s.blocks[order[j]].generation
	})

	for rank, idx := range order {
		s.blocks[idx].generation = uint64(rank)
	}

	s.generationCounter = uint64(len(s.blocks))
}

// allocate returns a destination block for tag, evicting a victim (and
// flushing it if dirty) when every block in the set is already valid.
func (c *Cache) allocate(s *set, tag uint64) (*block, error) {
	idx := -1

	for i := range s.blocks {
		if !s.blocks[i].valid {
			idx = i
			break
		}
	}

	if idx < 0 {
		idx = c.selectVictim(s)
	}

	victim := &s.blocks[idx]

	if err := c.freeAndFlush(victim); err != nil {
		return nil, err
	}

	victim.tag = tag
	victim.valid = true
	victim.dirty = false

	c.stampGeneration(s, victim)

	return victim, nil
}

// selectVictim picks a block index to evict per the cache's replacement
// policy. An unrecognised policy value falls back to the lowest index
// (spec.md §7) — reachable only through a deliberately malformed
// configuration, never through RANDOM/LRU/MRU.
func (c *Cache) selectVictim(s *set) int {
	switch c.replacement {
	case LRU:
		victim := 0

		for i := 1; i < len(s.blocks); i++ {
			if s.blocks[i].generation < s.blocks[victim].generation {
				victim = i
			}
		}

		return victim

	case MRU:
		victim := 0

		for i := 1; i < len(s.blocks); i++ {
			if s.blocks[i].generation > s.blocks[victim].generation {
				victim = i
			}
		}

		return victim

	case Random:
		return int(s.nextRandom() % uint64(len(s.blocks)))

	default:
		c.log.Error("cache: unknown replacement policy, evicting index 0", "cache", c.Name, "policy", c.replacement)

		return 0
	}
}

// freeAndFlush writes a dirty block back through lower_write (never as a
// write-through — eviction writeback is always write-back semantics, per
// spec.md §4.1) and clears its valid/dirty bits.
func (c *Cache) freeAndFlush(blk *block) error {
	if blk.valid && blk.dirty {
		base := blk.tag << c.blockSizeLog2
		if err := c.lowerWrite(blk.data, int(c.blockSize), base, false); err != nil {
			return err
		}
	}

	blk.valid = false
	blk.dirty = false

	return nil
}

// Flush calls free_and_flush on every block in the cache (spec.md §4.1),
// writing back any dirty data and invalidating the whole cache.
func (c *Cache) Flush() error {
	for i := range c.sets {
		s := &c.sets[i]

		for j := range s.blocks {
			if err := c.freeAndFlush(&s.blocks[j]); err != nil {
				return err
			}
		}
	}

	return nil
}

func isPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}

func log2(v uint64) uint8 {
	return uint8(bits.TrailingZeros64(v))
}
