package adapter

import "fmt"

// ChainEntry selects which of the chain's two independent pipelines a
// request enters through (spec.md §6: "ctx is the opaque chain entry for
// data or instruction side").
type ChainEntry uint8

const (
	EntryData ChainEntry = iota
	EntryInstruction
)

func (e ChainEntry) String() string {
	switch e {
	case EntryData:
		return "data"
	case EntryInstruction:
		return "instruction"
	default:
		return fmt.Sprintf("entry(%d)", uint8(e))
	}
}
