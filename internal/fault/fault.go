// Package fault models stuck DRAM command/address/data wires: a pull-up and
// pull-down mask per pin group, applied to outbound DDR messages and to
// returned data words before the memory model interprets them.
package fault

import (
	"fmt"

	"github.com/kestrelcore/memhier/internal/ddr"
)

// Group names a pin group a mask pair applies to.
type Group uint8

// The four pin groups a fault model can perturb.
const (
	GroupDQ Group = iota
	GroupA
	GroupBA
	GroupS

	numGroups
)

func (g Group) String() string {
	switch g {
	case GroupDQ:
		return "DQ"
	case GroupA:
		return "A"
	case GroupBA:
		return "BA"
	case GroupS:
		return "S"
	default:
		return fmt.Sprintf("GROUP(%d)", uint8(g))
	}
}

// mask is a pull-up/pull-down mask pair for one pin group. A bit set in both
// pullup and pulldown is a contradiction; Apply always resolves it in favour
// of pulldown, matching spec.md §3's tie-break rule.
type mask struct {
	pullup   uint64
	pulldown uint64
}

func (m mask) apply(field uint64) uint64 {
	return (field | m.pullup) &^ m.pulldown
}

// Model is a fault model: one mask pair per pin group. The zero value is the
// identity model — it leaves every message unmodified.
type Model struct {
	masks [numGroups]mask
}

// SetPullUp ORs bits into the pull-up mask for a pin group.
func (f *Model) SetPullUp(group Group, bits uint64) {
	f.masks[group].pullup |= bits
}

// SetPullDown ORs bits into the pull-down mask for a pin group.
func (f *Model) SetPullDown(group Group, bits uint64) {
	f.masks[group].pulldown |= bits
}

// PullUp returns the current pull-up mask for a pin group.
func (f Model) PullUp(group Group) uint64 {
	return f.masks[group].pullup
}

// PullDown returns the current pull-down mask for a pin group.
func (f Model) PullDown(group Group) uint64 {
	return f.masks[group].pulldown
}

// Reset clears all masks, returning the model to the identity transform.
func (f *Model) Reset() {
	f.masks = [numGroups]mask{}
}

// Apply perturbs every pin field of a message according to the model.
// Applying the transform to the same message twice gives the same result as
// applying it once (spec.md §8's idempotence law): each field's mask is
// unconditionally ORed/cleared, independent of its current value.
func (f Model) Apply(m ddr.Message) ddr.Message {
	m.Payload.DQ = f.masks[GroupDQ].apply(m.Payload.DQ)
	m.Payload.A = f.masks[GroupA].apply(m.Payload.A)
	m.Payload.BA = f.masks[GroupBA].apply(m.Payload.BA)
	m.Payload.S = f.masks[GroupS].apply(m.Payload.S)

	return m
}

// ApplyData perturbs a lone 64-bit data word using only the DQ masks, for
// faulting returned read data independently of the command fields that
// carried it.
func (f Model) ApplyData(word uint64) uint64 {
	return f.masks[GroupDQ].apply(word)
}
