// Package ddr models the wire-level command messages exchanged between a
// memory controller and a DRAM channel: a tagged command kind plus the four
// pin-level fields (DQ, A, BA, S) that carry its payload.
package ddr

import "fmt"

// Command identifies the kind of DDR message travelling on the command bus.
type Command uint8

// The command kinds a channel understands.
const (
	Activate Command = iota
	Read
	Write
	ReadBurstContinue
	WriteBurstContinue
	Precharge
)

func (c Command) String() string {
	switch c {
	case Activate:
		return "ACTIVATE"
	case Read:
		return "READ"
	case Write:
		return "WRITE"
	case ReadBurstContinue:
		return "READ_CONT"
	case WriteBurstContinue:
		return "WRITE_CONT"
	case Precharge:
		return "PRECHARGE"
	default:
		return fmt.Sprintf("COMMAND(%#02x)", uint8(c))
	}
}

// Payload carries the pin-level fields of a message: the data bus (DQ), the
// address bus (A), the bank address (BA), and the chip-select (S).
type Payload struct {
	DQ uint64
	A  uint64
	BA uint64
	S  uint64
}

// Message is one DDR command as it appears on the wire: a command tag and
// its pin payload.
type Message struct {
	Command Command
	Payload Payload
}

func (m Message) String() string {
	return fmt.Sprintf("%s{DQ:%#016x A:%#x BA:%#x S:%#x}",
		m.Command, m.Payload.DQ, m.Payload.A, m.Payload.BA, m.Payload.S)
}

// Activation builds an Activate message latching bank, row, and rank.
func Activation(bank, row, rank uint64) Message {
	return Message{
		Command: Activate,
		Payload: Payload{BA: bank, A: row, S: rank},
	}
}

// ReadAt builds the initial Read message for a column.
func ReadAt(column uint64) Message {
	return Message{Command: Read, Payload: Payload{A: column}}
}

// ReadContinue builds a ReadBurstContinue message.
func ReadContinue() Message {
	return Message{Command: ReadBurstContinue}
}

// WriteAt builds the initial Write message for a column, carrying the first
// data word.
func WriteAt(column, data uint64) Message {
	return Message{Command: Write, Payload: Payload{A: column, DQ: data}}
}

// WriteContinue builds a WriteBurstContinue message carrying the next data
// word.
func WriteContinue(data uint64) Message {
	return Message{Command: WriteBurstContinue, Payload: Payload{DQ: data}}
}

// PrechargeAll builds a Precharge message.
func PrechargeAll() Message {
	return Message{Command: Precharge}
}
