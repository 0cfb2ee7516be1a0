package adapter

import (
	"fmt"

	"github.com/kestrelcore/memhier/internal/chain"
	"github.com/kestrelcore/memhier/internal/fault"
)

// Polarity names which mask a fault-mask register write targets.
type Polarity uint8

const (
	PullUp Polarity = iota
	PullDown
)

func (p Polarity) String() string {
	switch p {
	case PullUp:
		return "pullup"
	case PullDown:
		return "pulldown"
	default:
		return fmt.Sprintf("polarity(%d)", uint8(p))
	}
}

// kind names which of the four sideband registers a Reg value addresses
// (spec.md §6: configuration, metrics, and fault surfaces).
type kind uint8

const (
	kindConfig kind = iota
	kindMetrics
	kindFaultSelect
	kindFaultMask
)

// Reg is an opaque sideband register selector, keyed the way the teacher's
// vm.MMIO keys its device table by logical address — except this surface is
// the adapter's own configuration plane, not guest-visible memory, so the
// key is this small closed enum instead of a vm.Word (SPEC_FULL.md §4.6).
type Reg struct {
	kind  kind
	level chain.Level
	group fault.Group
	pol   Polarity
}

// RegConfig selects the control register that rebuilds the chain: writing
// to it (any payload) builds a fresh chain from the Config the Facade
// currently holds, the one last applied by New or Reconfigure. It is the
// "command decoder" spec.md §1 scopes the
// sideband surface down to — the Config struct itself is supplied directly
// to Reconfigure, not assembled field-by-field over the register surface.
func RegConfig() Reg { return Reg{kind: kindConfig} }

// RegMetrics selects the read-only (hits, misses) register pair for one
// cache slot.
func RegMetrics(level chain.Level) Reg { return Reg{kind: kindMetrics, level: level} }

// RegFaultSelect selects the register that chooses which memory channel
// subsequent RegFaultMask writes apply to.
func RegFaultSelect() Reg { return Reg{kind: kindFaultSelect} }

// RegFaultMask selects the register that ORs bits into one pin group's
// pull-up or pull-down mask on the currently selected channel.
func RegFaultMask(group fault.Group, pol Polarity) Reg {
	return Reg{kind: kindFaultMask, group: group, pol: pol}
}

func (r Reg) String() string {
	switch r.kind {
	case kindConfig:
		return "config"
	case kindMetrics:
		return fmt.Sprintf("metrics(%s)", r.level)
	case kindFaultSelect:
		return "fault-select"
	case kindFaultMask:
		return fmt.Sprintf("fault-mask(%s,%s)", r.group, r.pol)
	default:
		return fmt.Sprintf("reg(%d)", r.kind)
	}
}
