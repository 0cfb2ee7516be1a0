package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/kestrelcore/memhier/internal/cli"
	"github.com/kestrelcore/memhier/internal/encoding"
	"github.com/kestrelcore/memhier/internal/log"
	"github.com/kestrelcore/memhier/internal/memctrl"
)

// dump reads or writes a DRAM backing store as an Intel-Hex-like image
// (internal/encoding), bypassing the cache chain the same way the
// controller's MemoryRead/MemoryWrite do directly.
type dump struct {
	memSize, memOffset uint64
	load, out          string
}

var _ cli.Command = (*dump)(nil)

func Dump() *dump {
	return &dump{}
}

func (dump) Description() string {
	return "hex-dump (or load) a channel's backing store"
}

func (d *dump) FlagSet() *cli.FlagSet {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)

	fs.Uint64Var(&d.memSize, "mem-size", 1<<16, "bytes of DRAM to dump")
	fs.Uint64Var(&d.memOffset, "mem-offset", 0, "address the dumped range starts at")
	fs.StringVar(&d.load, "load", "", "path to an Intel-Hex-like image to load before dumping; empty dumps the seeded backing store")
	fs.StringVar(&d.out, "out", "", "path to write the dumped image to; empty writes to standard output")

	return fs
}

func (d *dump) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `dump [option]...

Read a controller's mapped DRAM range and print it as an Intel-Hex-like
image. With -load, first loads an image file's records into DRAM via
internal/encoding.Load before dumping.`)

	return err
}

func (d *dump) Run(_ context.Context, _ []string, out io.Writer, logger *log.Logger) int {
	cfg := memctrl.Config{
		Topology: memctrl.Topology{
			Channels:    1,
			Ranks:       1,
			Banks:       4,
			Rows:        1024,
			ColumnWidth: 1024,
			Order:       [5]memctrl.Coord{memctrl.CoordColumn, memctrl.CoordBank, memctrl.CoordRow, memctrl.CoordRank, memctrl.CoordChannel},
		},
		BurstLength: memctrl.DefaultBurst,
		MemSize:     d.memSize,
		MemOffset:   d.memOffset,
	}

	ctrl, err := memctrl.Setup(cfg)
	if err != nil {
		logger.Error("dump: setup", "err", err)
		return 1
	}

	ctrl.WithLogger(logger)

	if d.load != "" {
		text, err := os.ReadFile(d.load)
		if err != nil {
			logger.Error("dump: read image", "err", err)
			return 1
		}

		img := encoding.NewImage(nil)
		if err := img.UnmarshalText(text); err != nil {
			logger.Error("dump: decode image", "err", err)
			return 1
		}

		n, err := encoding.Load(ctrl, img)
		if err != nil {
			logger.Error("dump: load image", "err", err)
			return 1
		}

		fmt.Fprintf(out, "  loaded %d bytes from %s\n", n, d.load)
	}

	img, err := encoding.Dump(ctrl, d.memOffset, d.memSize)
	if err != nil {
		logger.Error("dump: dump image", "err", err)
		return 1
	}

	text, err := img.MarshalText()
	if err != nil {
		logger.Error("dump: encode image", "err", err)
		return 1
	}

	if d.out == "" {
		_, err = out.Write(text)
	} else {
		err = os.WriteFile(d.out, text, 0o644)
	}

	if err != nil {
		logger.Error("dump: write image", "err", err)
		return 1
	}

	return 0
}
