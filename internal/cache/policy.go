package cache

import "fmt"

// ReplacementPolicy selects which block a set evicts on a miss with no
// invalid block available. The numeric values match the wire encoding of
// the configuration surface (spec.md §6): RANDOM=0, LRU=1, MRU=2.
type ReplacementPolicy uint8

const (
	Random ReplacementPolicy = iota
	LRU
	MRU
)

func (p ReplacementPolicy) String() string {
	switch p {
	case Random:
		return "random"
	case LRU:
		return "lru"
	case MRU:
		return "mru"
	default:
		return fmt.Sprintf("replacement(%d)", uint8(p))
	}
}

// WritePolicy selects how a cache level treats writes: forwarded immediately
// (write-through) or held dirty until eviction (write-back).
type WritePolicy uint8

const (
	WriteBack WritePolicy = iota
	WriteThrough
)

func (p WritePolicy) String() string {
	switch p {
	case WriteBack:
		return "write-back"
	case WriteThrough:
		return "write-through"
	default:
		return fmt.Sprintf("writepolicy(%d)", uint8(p))
	}
}

// The fixed LCG constants for the per-set RANDOM replacement PRNG
// (spec.md §4.1): s ← (75·s + 74) mod (2¹⁶+1).
const (
	lcgMultiplier = 75
	lcgIncrement  = 74
	lcgModulus    = 1<<16 + 1

	// lcgSeed is the fixed per-set seed. Every set starts from the same
	// seed (spec.md §9: "keep it per-set, seeded identically"); sets still
	// diverge from each other because each set's sequence of evictions
	// depends on its own access history, not on a shared PRNG instance.
	lcgSeed = 1
)
