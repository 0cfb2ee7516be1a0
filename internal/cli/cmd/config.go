package cmd

import (
	"github.com/kestrelcore/memhier/internal/chain"
	"github.com/kestrelcore/memhier/internal/memctrl"
)

// defaultFacadeConfig is a minimal, cacheless chain shared by fault, which
// drives the memory controller with no cache in between, and repl, which
// adds its own cache levels on top of it.
func defaultFacadeConfig() chain.Config {
	return chain.Config{
		Enable: false,
		Controller: memctrl.Config{
			Topology: memctrl.Topology{
				Channels:    1,
				Ranks:       1,
				Banks:       4,
				Rows:        1024,
				ColumnWidth: 1024,
				Order:       [5]memctrl.Coord{memctrl.CoordColumn, memctrl.CoordBank, memctrl.CoordRow, memctrl.CoordRank, memctrl.CoordChannel},
			},
			BurstLength: memctrl.DefaultBurst,
			MemSize:     1 << 20,
			MemOffset:   0,
		},
	}
}
