package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/kestrelcore/memhier/internal/adapter"
	"github.com/kestrelcore/memhier/internal/cache"
	"github.com/kestrelcore/memhier/internal/chain"
	"github.com/kestrelcore/memhier/internal/cli"
	"github.com/kestrelcore/memhier/internal/log"
	"github.com/kestrelcore/memhier/internal/memctrl"
)

// bench runs a synthetic access trace through a configured cache chain and
// reports hit/miss metrics, with a live progress ticker modeled on
// search.WorkerPool's progress-reporter goroutine (SPEC_FULL.md §5).
type bench struct {
	channels, ranks, banks, rows, columnWidth uint64
	burst, memSize, memOffset                 uint64

	l1, l2, l3          uint64
	assoc, block        uint64
	replacement         string
	write               string

	n        uint64
	pattern  string
	stride   uint64
	seed     int64
	writeFrac float64
}

var _ cli.Command = (*bench)(nil)

func Bench() *bench {
	return &bench{}
}

func (bench) Description() string {
	return "run a synthetic access trace through a configured cache chain"
}

func (b *bench) FlagSet() *cli.FlagSet {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)

	fs.Uint64Var(&b.channels, "channels", 1, "DRAM channel count, power of two")
	fs.Uint64Var(&b.ranks, "ranks", 1, "ranks per channel, power of two")
	fs.Uint64Var(&b.banks, "banks", 4, "banks per rank, power of two")
	fs.Uint64Var(&b.rows, "rows", 1024, "rows per bank, power of two")
	fs.Uint64Var(&b.columnWidth, "column-width", 1024, "bytes per row, power of two")
	fs.Uint64Var(&b.burst, "burst", memctrl.DefaultBurst, "DDR burst length, power of two")
	fs.Uint64Var(&b.memSize, "mem-size", 1<<20, "bytes of DRAM mapped into the address space")
	fs.Uint64Var(&b.memOffset, "mem-offset", 0, "address the mapped DRAM range starts at")

	fs.Uint64Var(&b.l1, "l1", 4096, "L1 (I-L1 and D-L1) size in bytes; 0 disables L1")
	fs.Uint64Var(&b.l2, "l2", 32768, "L2 size in bytes; 0 disables L2")
	fs.Uint64Var(&b.l3, "l3", 0, "L3 size in bytes; 0 disables L3")
	fs.Uint64Var(&b.assoc, "assoc", 4, "set associativity for every enabled cache level")
	fs.Uint64Var(&b.block, "block", 64, "block size in bytes for every enabled cache level")
	fs.StringVar(&b.replacement, "replacement", "lru", "replacement policy: random, lru, or mru")
	fs.StringVar(&b.write, "write", "write-back", "write policy: write-back or write-through")

	fs.Uint64Var(&b.n, "n", 1_000_000, "number of accesses to issue")
	fs.StringVar(&b.pattern, "pattern", "sequential", "address pattern: sequential, stride, or random")
	fs.Uint64Var(&b.stride, "stride", 0, "stride in bytes for the stride pattern; 0 means one block")
	fs.Int64Var(&b.seed, "seed", 1, "PRNG seed for the random pattern")
	fs.Float64Var(&b.writeFrac, "write-frac", 0.3, "fraction of accesses that are writes")

	return fs
}

func (b *bench) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `bench [option]...

Run a synthetic trace of reads and writes through a cache chain built from
the given topology and cache geometry, and report hit/miss metrics per
level once the trace completes.`)

	return err
}

func (b *bench) Run(ctx context.Context, _ []string, out io.Writer, logger *log.Logger) int {
	cfg, err := b.config()
	if err != nil {
		logger.Error("bench: bad configuration", "err", err)
		return 1
	}

	facade, err := adapter.New(cfg)
	if err != nil {
		logger.Error("bench: setup", "err", err)
		return 1
	}

	facade.WithLogger(logger)

	done := make(chan struct{})
	start := time.Now()

	go b.reportProgress(out, facade, done, start)

	b.run(facade)

	close(done)

	elapsed := time.Since(start)
	fmt.Fprintf(out, "\n  [%s] %d accesses | %.1fM accesses/s | DONE\n",
		elapsed.Round(time.Second), b.n, float64(b.n)/elapsed.Seconds()/1e6)

	b.printMetrics(out, facade)

	return 0
}

// run drives the trace itself, single-threaded: the core is synchronous, so
// only the progress ticker ever touches the facade from a second goroutine
// (SPEC_FULL.md §5).
func (b *bench) run(facade *adapter.Facade) {
	rng := rand.New(rand.NewSource(b.seed))
	buf := make([]byte, 8)

	stride := b.stride
	if stride == 0 {
		stride = b.block
	}

	for i := uint64(0); i < b.n; i++ {
		addr := b.nextAddress(i, stride, rng)

		if rng.Float64() < b.writeFrac {
			_ = facade.Write(adapter.EntryData, buf, 8, addr)
		} else {
			_ = facade.Read(adapter.EntryData, buf, 8, addr)
		}
	}
}

func (b *bench) nextAddress(i, stride uint64, rng *rand.Rand) uint64 {
	switch b.pattern {
	case "stride":
		return b.memOffset + (i*stride)%b.memSize
	case "random":
		return b.memOffset + (uint64(rng.Int63())%(b.memSize/8))*8
	default: // sequential
		return b.memOffset + (i*8)%b.memSize
	}
}

func (b *bench) reportProgress(out io.Writer, facade *adapter.Facade, done chan struct{}, start time.Time) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			var hits, misses uint64

			for _, m := range facade.Metrics() {
				hits += m.Hits
				misses += m.Misses
			}

			elapsed := now.Sub(start)
			total := hits + misses

			var rate float64
			if elapsed.Seconds() > 0 {
				rate = float64(total) / elapsed.Seconds()
			}

			fmt.Fprintf(out, "  [%s] %d accesses seen | %.1fM accesses/s\n",
				elapsed.Round(time.Second), total, rate/1e6)
		}
	}
}

func (b *bench) printMetrics(out io.Writer, facade *adapter.Facade) {
	levels := [4]chain.Level{chain.LevelIL1, chain.LevelDL1, chain.LevelL2, chain.LevelL3}
	metrics := facade.Metrics()

	for _, level := range levels {
		m := metrics[level]
		total := m.Hits + m.Misses

		var rate float64
		if total > 0 {
			rate = float64(m.Hits) / float64(total) * 100
		}

		fmt.Fprintf(out, "  %-6s hits=%-10d misses=%-10d hit-rate=%.1f%%\n", level, m.Hits, m.Misses, rate)
	}
}

func (b *bench) config() (chain.Config, error) {
	replacement, err := parseReplacement(b.replacement)
	if err != nil {
		return chain.Config{}, err
	}

	write, err := parseWrite(b.write)
	if err != nil {
		return chain.Config{}, err
	}

	level := func(size uint64) chain.LevelConfig {
		return chain.LevelConfig{Enable: size > 0, Size: size, Assoc: b.assoc, BlockSize: b.block}
	}

	cfg := chain.Config{
		Enable:      true,
		L1Enable:    b.l1 > 0,
		Write:       write,
		Replacement: replacement,

		IL1: level(b.l1),
		DL1: level(b.l1),
		L2:  level(b.l2),
		L3:  level(b.l3),

		Controller: memctrl.Config{
			Topology: memctrl.Topology{
				Channels:    b.channels,
				Ranks:       b.ranks,
				Banks:       b.banks,
				Rows:        b.rows,
				ColumnWidth: b.columnWidth,
				Order:       [5]memctrl.Coord{memctrl.CoordColumn, memctrl.CoordBank, memctrl.CoordRow, memctrl.CoordRank, memctrl.CoordChannel},
			},
			BurstLength: b.burst,
			MemSize:     b.memSize,
			MemOffset:   b.memOffset,
		},
	}

	return cfg, nil
}

func parseReplacement(s string) (cache.ReplacementPolicy, error) {
	switch s {
	case "random":
		return cache.Random, nil
	case "lru":
		return cache.LRU, nil
	case "mru":
		return cache.MRU, nil
	default:
		return 0, fmt.Errorf("bench: unknown replacement policy %q", s)
	}
}

func parseWrite(s string) (cache.WritePolicy, error) {
	switch s {
	case "write-back":
		return cache.WriteBack, nil
	case "write-through":
		return cache.WriteThrough, nil
	default:
		return 0, fmt.Errorf("bench: unknown write policy %q", s)
	}
}
