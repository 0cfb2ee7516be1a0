package memctrl

import (
	"fmt"
	"math/bits"
)

// Coord names one of the five address coordinates a linear address
// decomposes into. The numeric values match the wire encoding used by the
// configuration surface (spec.md §6): Channel=0, Rank=1, Bank=2, Row=3,
// Column=4.
type Coord uint8

const (
	CoordChannel Coord = iota
	CoordRank
	CoordBank
	CoordRow
	CoordColumn

	numCoords
)

func (c Coord) String() string {
	switch c {
	case CoordChannel:
		return "channel"
	case CoordRank:
		return "rank"
	case CoordBank:
		return "bank"
	case CoordRow:
		return "row"
	case CoordColumn:
		return "column"
	default:
		return fmt.Sprintf("coord(%d)", uint8(c))
	}
}

// Topology describes the DRAM geometry and the linear-to-coordinate mapping.
type Topology struct {
	Channels    uint64
	Ranks       uint64
	Banks       uint64
	Rows        uint64
	ColumnWidth uint64 // bytes per row per bank; must be >= BurstLength*BusWidth

	// Order is a permutation of the five Coord values, lowest-significance
	// first, giving the bit layout of a linear address.
	Order [5]Coord
}

// width returns the number of address bits a coordinate occupies.
func (t Topology) width(c Coord) uint8 {
	switch c {
	case CoordChannel:
		return log2(t.Channels)
	case CoordRank:
		return log2(t.Ranks)
	case CoordBank:
		return log2(t.Banks)
	case CoordRow:
		return log2(t.Rows)
	case CoordColumn:
		return log2(t.ColumnWidth)
	default:
		return 0
	}
}

// log2 returns the base-2 logarithm of a power-of-two value. Callers are
// responsible for validating the power-of-two precondition (Setup does).
func log2(v uint64) uint8 {
	return uint8(bits.TrailingZeros64(v))
}

func isPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}

// coordTable holds the per-coordinate (offset, mask) pair computed by
// walking Topology.Order.
type coordTable struct {
	offset [numCoords]uint8
	mask   [numCoords]uint64
}

func newCoordTable(t Topology) coordTable {
	var table coordTable

	var bitOffset uint8

	for _, c := range t.Order {
		w := t.width(c)
		table.offset[c] = bitOffset
		table.mask[c] = (uint64(1) << w) - 1
		bitOffset += w
	}

	return table
}

// decode extracts each coordinate from a linear address.
func (table coordTable) decode(address uint64) [numCoords]uint64 {
	var coords [numCoords]uint64

	for c := Coord(0); c < numCoords; c++ {
		coords[c] = (address >> table.offset[c]) & table.mask[c]
	}

	return coords
}

// lowest returns the lowest-significance coordinate of the mapping (Order[0]).
func (t Topology) lowest() Coord {
	return t.Order[0]
}
