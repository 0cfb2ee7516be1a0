package cache

// block is one cache line: a tag, the valid/dirty state bits, a generation
// stamp used by LRU/MRU victim selection, and its data region.
type block struct {
	tag        uint64
	valid      bool
	dirty      bool
	generation uint64
	data       []byte
}

// set is an associativity-way group of blocks sharing one set index, plus
// the per-set state used to pick a victim: a generation counter for
// LRU/MRU and an independent PRNG for RANDOM. index is stored explicitly
// rather than reconstructed from a block's position in a backing array
// (spec.md §9): nothing here depends on pointer arithmetic into a sets
// slice.
type set struct {
	index             uint64
	blocks            []block
	generationCounter uint64
	rng               uint64
}

// find scans the set for a valid block carrying the given tag. Sets
// maintain the invariant that at most one valid block per tag exists, so
// the first match is the only match.
func (s *set) find(tag uint64) (*block, bool) {
	for i := range s.blocks {
		b := &s.blocks[i]
		if b.valid && b.tag == tag {
			return b, true
		}
	}

	return nil, false
}

// nextRandom advances the set's PRNG and returns the raw LCG output.
func (s *set) nextRandom() uint64 {
	s.rng = (lcgMultiplier*s.rng + lcgIncrement) % lcgModulus
	return s.rng
}
