package encoding

import (
	"errors"
	"fmt"

	"github.com/kestrelcore/memhier/internal/memctrl"
)

// ErrImageLoader is wrapped by errors Load returns.
var ErrImageLoader = errors.New("encoding: image loader")

// Load writes every record in an Image directly into a controller's DRAM
// via MemoryWrite, bypassing every cache level — the way the teacher's
// Loader writes object code straight into backing memory via mem.store
// rather than through Mem.Fetch/Store. Each record's address and length
// must already satisfy the controller's alignment contract (spec.md §7);
// Load does not pad or split a malformed record, it reports the
// controller's contract-violation error.
func Load(ctrl *memctrl.Controller, img *Image) (uint64, error) {
	var count uint64

	for _, rec := range img.records {
		if len(rec.Data) == 0 {
			continue
		}

		if err := ctrl.MemoryWrite(rec.Data, len(rec.Data), rec.Address); err != nil {
			return count, fmt.Errorf("%w: %w", ErrImageLoader, err)
		}

		count += uint64(len(rec.Data))
	}

	return count, nil
}

// Dump reads a controller's entire mapped DRAM range into a single Image
// record, for the `dump` CLI command.
func Dump(ctrl *memctrl.Controller, memOffset, memSize uint64) (*Image, error) {
	data := make([]byte, memSize)

	if err := ctrl.MemoryRead(data, len(data), memOffset); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageLoader, err)
	}

	return NewImage([]Record{{Address: memOffset, Data: data}}), nil
}
