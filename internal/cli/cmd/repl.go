package cmd

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kestrelcore/memhier/internal/adapter"
	"github.com/kestrelcore/memhier/internal/chain"
	"github.com/kestrelcore/memhier/internal/cli"
	"github.com/kestrelcore/memhier/internal/log"
	"github.com/kestrelcore/memhier/internal/tty"
)

// repl is an interactive console driving a Facade directly: read/write
// commands at byte granularity, plus metrics and fault-injection, for
// manual exploration of a configured chain (SPEC_FULL.md §1.1).
type repl struct {
	l1, l2, l3   uint64
	assoc, block uint64
}

var _ cli.Command = (*repl)(nil)

func Repl() *repl {
	return &repl{l1: 4096, l2: 32768, assoc: 4, block: 64}
}

func (repl) Description() string {
	return "interactive byte-level read/write console"
}

func (r *repl) FlagSet() *cli.FlagSet {
	fs := flag.NewFlagSet("repl", flag.ExitOnError)

	fs.Uint64Var(&r.l1, "l1", 4096, "L1 (I-L1 and D-L1) size in bytes; 0 disables L1")
	fs.Uint64Var(&r.l2, "l2", 32768, "L2 size in bytes; 0 disables L2")
	fs.Uint64Var(&r.l3, "l3", 0, "L3 size in bytes; 0 disables L3")
	fs.Uint64Var(&r.assoc, "assoc", 4, "set associativity for every enabled cache level")
	fs.Uint64Var(&r.block, "block", 64, "block size in bytes for every enabled cache level")

	return fs
}

func (r *repl) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `repl [option]...

Start an interactive console over the configured chain. Commands:

  read <addr> <len>         read len bytes at addr and print them in hex
  write <addr> <hexbytes>   write the given hex-encoded bytes at addr
  metrics                   print hit/miss counters for every cache level
  flush                     flush dirty blocks in every enabled cache level
  select <channel>          select a channel for subsequent fault commands
  fault <group> <pol> <bits-hex>
                            OR bits into the selected channel's pin group
  quit                      exit the console`)

	return err
}

func (r *repl) Run(ctx context.Context, _ []string, _ io.Writer, logger *log.Logger) int {
	cfg := defaultFacadeConfig()
	cfg.Enable = true
	cfg.L1Enable = r.l1 > 0
	cfg.IL1 = chain.LevelConfig{Enable: r.l1 > 0, Size: r.l1, Assoc: r.assoc, BlockSize: r.block}
	cfg.DL1 = cfg.IL1
	cfg.L2 = chain.LevelConfig{Enable: r.l2 > 0, Size: r.l2, Assoc: r.assoc, BlockSize: r.block}
	cfg.L3 = chain.LevelConfig{Enable: r.l3 > 0, Size: r.l3, Assoc: r.assoc, BlockSize: r.block}

	facade, err := adapter.New(cfg)
	if err != nil {
		logger.Error("repl: setup", "err", err)
		return 1
	}

	facade.WithLogger(logger)

	ctx, console, cancel := tty.ConsoleContext(ctx)
	defer cancel()

	if err := context.Cause(ctx); errors.Is(err, tty.ErrNoTTY) {
		logger.Error("repl: not a terminal", "err", err)
		return 1
	}

	console.WriteLine("memhier repl ready, type 'quit' to exit")

	for {
		line, err := console.ReadCommand(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("repl: read command", "err", err)
			}

			return 0
		}

		if r.dispatch(console, facade, line) {
			return 0
		}
	}
}

// dispatch runs one command line and reports whether the console should
// exit.
func (r *repl) dispatch(console *tty.Console, facade *adapter.Facade, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	var err error

	switch fields[0] {
	case "quit", "exit":
		return true

	case "read":
		err = r.cmdRead(console, facade, fields)

	case "write":
		err = r.cmdWrite(console, facade, fields)

	case "metrics":
		r.cmdMetrics(console, facade)

	case "flush":
		err = facade.Flush()

	case "select":
		err = r.cmdSelect(facade, fields)

	case "fault":
		err = r.cmdFault(facade, fields)

	default:
		err = fmt.Errorf("unknown command %q", fields[0])
	}

	if err != nil {
		console.WriteLine("error: %s", err)
	}

	return false
}

func (r *repl) cmdRead(console *tty.Console, facade *adapter.Facade, fields []string) error {
	if len(fields) != 3 {
		return errors.New("usage: read <addr> <len>")
	}

	addr, err := strconv.ParseUint(fields[1], 0, 64)
	if err != nil {
		return fmt.Errorf("addr: %w", err)
	}

	length, err := strconv.Atoi(fields[2])
	if err != nil {
		return fmt.Errorf("len: %w", err)
	}

	buf := make([]byte, length)
	if err := facade.Read(adapter.EntryData, buf, length, addr); err != nil {
		return err
	}

	console.WriteLine("%#x: %s", addr, hex.EncodeToString(buf))

	return nil
}

func (r *repl) cmdWrite(console *tty.Console, facade *adapter.Facade, fields []string) error {
	if len(fields) != 3 {
		return errors.New("usage: write <addr> <hexbytes>")
	}

	addr, err := strconv.ParseUint(fields[1], 0, 64)
	if err != nil {
		return fmt.Errorf("addr: %w", err)
	}

	data, err := hex.DecodeString(fields[2])
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}

	if err := facade.Write(adapter.EntryData, data, len(data), addr); err != nil {
		return err
	}

	console.WriteLine("wrote %d bytes at %#x", len(data), addr)

	return nil
}

func (r *repl) cmdMetrics(console *tty.Console, facade *adapter.Facade) {
	for _, level := range [4]chain.Level{chain.LevelIL1, chain.LevelDL1, chain.LevelL2, chain.LevelL3} {
		m := facade.Metrics()[level]
		console.WriteLine("%-6s hits=%d misses=%d", level, m.Hits, m.Misses)
	}
}

func (r *repl) cmdSelect(facade *adapter.Facade, fields []string) error {
	if len(fields) != 2 {
		return errors.New("usage: select <channel>")
	}

	idx, err := strconv.ParseUint(fields[1], 0, 64)
	if err != nil {
		return fmt.Errorf("channel: %w", err)
	}

	payload := make([]byte, 8)
	for i := range payload {
		payload[i] = byte(idx >> (8 * i))
	}

	facade.WriteRegister(adapter.RegFaultSelect(), payload)

	return nil
}

func (r *repl) cmdFault(facade *adapter.Facade, fields []string) error {
	if len(fields) != 4 {
		return errors.New("usage: fault <group> <pol> <bits-hex>")
	}

	group, err := parseGroup(fields[1])
	if err != nil {
		return err
	}

	pol, err := parsePolarity(fields[2])
	if err != nil {
		return err
	}

	bits, err := strconv.ParseUint(fields[3], 0, 64)
	if err != nil {
		return fmt.Errorf("bits: %w", err)
	}

	payload := make([]byte, 8)
	for i := range payload {
		payload[i] = byte(bits >> (8 * i))
	}

	facade.WriteRegister(adapter.RegFaultMask(group, pol), payload)

	return nil
}
